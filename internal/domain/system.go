package domain

import "time"

// TenantSetting is a per-tenant key/value configuration row. Values are
// plain strings; JSON-typed settings are parsed by the consumer with a
// silent fallback to defaults on parse failure.
type TenantSetting struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	TenantId  int64     `gorm:"index:idx_tenant_setting,unique" json:"tenant_id,string"`
	Key       string    `gorm:"index:idx_tenant_setting,unique" json:"key"`
	Value     string    `json:"value" gorm:"type:text"`
	Remark    string    `json:"remark"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TenantSetting) TableName() string {
	return "tenant_settings"
}
