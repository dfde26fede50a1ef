package app

import (
	"github.com/robfig/cron/v3"
	"github.com/zaptalk/zapcampaigns/config"
	"gorm.io/gorm"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SettingsProvider provides per-tenant settings access
type SettingsProvider interface {
	GetSettingsStringValue(tenantID int64, key string) (string, bool)
	GetSettingsInt64Value(tenantID int64, key string, def int64) int64
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// AppContext combines all provider interfaces for full application context.
// Services should depend on specific providers or this combined interface.
type AppContext interface {
	DBProvider
	ConfigProvider
	SettingsProvider
	SchedulerProvider

	MigrateDB() error
	InitDb()
}
