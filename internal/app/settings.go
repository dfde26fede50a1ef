package app

import (
	"errors"
	"sync"
	"time"

	"github.com/spf13/cast"
	"github.com/zaptalk/zapcampaigns/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const settingsCacheTTL = 30 * time.Second

type settingsEntry struct {
	value    string
	found    bool
	loadedAt time.Time
}

// SettingsManager reads per-tenant key/value settings from the database with
// a short-lived cache. Missing keys report found=false so callers can apply
// their own defaults.
type SettingsManager struct {
	db    *gorm.DB
	mu    sync.RWMutex
	cache map[int64]map[string]settingsEntry
}

func NewSettingsManager(db *gorm.DB) *SettingsManager {
	return &SettingsManager{
		db:    db,
		cache: make(map[int64]map[string]settingsEntry),
	}
}

// GetString returns the raw setting value for a tenant.
func (m *SettingsManager) GetString(tenantID int64, key string) (string, bool) {
	m.mu.RLock()
	if byKey, ok := m.cache[tenantID]; ok {
		if e, ok := byKey[key]; ok && time.Since(e.loadedAt) < settingsCacheTTL {
			m.mu.RUnlock()
			return e.value, e.found
		}
	}
	m.mu.RUnlock()

	var row domain.TenantSetting
	err := m.db.Where("tenant_id = ? and key = ?", tenantID, key).First(&row).Error
	found := true
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		found = false
	case err != nil:
		zap.L().Warn("settings lookup failed",
			zap.Int64("tenant_id", tenantID),
			zap.String("key", key),
			zap.Error(err))
		return "", false
	}

	m.mu.Lock()
	if m.cache[tenantID] == nil {
		m.cache[tenantID] = make(map[string]settingsEntry)
	}
	m.cache[tenantID][key] = settingsEntry{value: row.Value, found: found, loadedAt: time.Now()}
	m.mu.Unlock()

	return row.Value, found
}

// GetInt64 returns an int64 setting, falling back to def when the key is
// missing or not numeric.
func (m *SettingsManager) GetInt64(tenantID int64, key string, def int64) int64 {
	raw, ok := m.GetString(tenantID, key)
	if !ok {
		return def
	}
	v, err := cast.ToInt64E(raw)
	if err != nil {
		return def
	}
	return v
}

// Set writes a setting and invalidates its cache entry.
func (m *SettingsManager) Set(tenantID int64, key, value string) error {
	var row domain.TenantSetting
	err := m.db.Where("tenant_id = ? and key = ?", tenantID, key).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = m.db.Create(&domain.TenantSetting{TenantId: tenantID, Key: key, Value: value}).Error
	case err == nil:
		err = m.db.Model(&domain.TenantSetting{}).Where("id = ?", row.ID).Update("value", value).Error
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.cache[tenantID], key)
	m.mu.Unlock()
	return nil
}
