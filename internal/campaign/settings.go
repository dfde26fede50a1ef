package campaign

import (
	"encoding/json"
	"time"
)

// Tenant setting keys consumed by the dispatch engine.
const (
	SettingMessageInterval     = "campaign.messageInterval"
	SettingLongerIntervalAfter = "campaign.longerIntervalAfter"
	SettingGreaterInterval     = "campaign.greaterInterval"
	SettingCustomVariables     = "campaign.customVariables"
	SettingHourlyCap           = "campaign.hourlyCap"
	SettingDailyCap            = "campaign.dailyCap"
	SettingBackoffThreshold    = "campaign.backoffErrorThreshold"
	SettingBackoffPauseMinutes = "campaign.backoffPauseMinutes"
	SettingSuppressionTags     = "campaign.suppressionTags"
)

// Defaults applied when a tenant has no explicit setting.
const (
	DefaultMessageIntervalSec  = 20
	DefaultLongerIntervalAfter = 20
	DefaultGreaterIntervalSec  = 60
	DefaultHourlyCap           = 300
	DefaultDailyCap            = 2000
	DefaultBackoffThreshold    = 5
	DefaultBackoffPauseMinutes = 10
)

// DefaultSuppressionTags are matched case-insensitively against contact tag
// names. The Portuguese entries cover the common opt-out replies of
// Brazilian tenants.
var DefaultSuppressionTags = []string{
	"DNC", "OPT-OUT", "OPTOUT", "STOP",
	"CANCELAR", "DESCADASTRAR", "REMOVER", "SAIR", "PARE",
}

// CustomVariable is a campaign-level key/value substitution pair.
type CustomVariable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// DispatchSettings is the per-tenant throttle and templating configuration.
type DispatchSettings struct {
	MessageInterval     time.Duration
	LongerIntervalAfter int
	GreaterInterval     time.Duration
	HourlyCap           int64
	DailyCap            int64
	BackoffThreshold    int
	BackoffPause        time.Duration
	CustomVariables     []CustomVariable
	SuppressionTags     []string
}

// SettingsSource reads raw per-tenant settings. Implemented by
// app.SettingsManager.
type SettingsSource interface {
	GetSettingsStringValue(tenantID int64, key string) (string, bool)
	GetSettingsInt64Value(tenantID int64, key string, def int64) int64
}

// LoadDispatchSettings resolves a tenant's dispatch settings, applying
// defaults for missing keys. Malformed JSON values fall back silently.
func LoadDispatchSettings(src SettingsSource, tenantID int64) DispatchSettings {
	s := DispatchSettings{
		MessageInterval:     time.Duration(src.GetSettingsInt64Value(tenantID, SettingMessageInterval, DefaultMessageIntervalSec)) * time.Second,
		LongerIntervalAfter: int(src.GetSettingsInt64Value(tenantID, SettingLongerIntervalAfter, DefaultLongerIntervalAfter)),
		GreaterInterval:     time.Duration(src.GetSettingsInt64Value(tenantID, SettingGreaterInterval, DefaultGreaterIntervalSec)) * time.Second,
		HourlyCap:           src.GetSettingsInt64Value(tenantID, SettingHourlyCap, DefaultHourlyCap),
		DailyCap:            src.GetSettingsInt64Value(tenantID, SettingDailyCap, DefaultDailyCap),
		BackoffThreshold:    int(src.GetSettingsInt64Value(tenantID, SettingBackoffThreshold, DefaultBackoffThreshold)),
		BackoffPause:        time.Duration(src.GetSettingsInt64Value(tenantID, SettingBackoffPauseMinutes, DefaultBackoffPauseMinutes)) * time.Minute,
		SuppressionTags:     DefaultSuppressionTags,
	}

	if raw, ok := src.GetSettingsStringValue(tenantID, SettingCustomVariables); ok && raw != "" {
		var vars []CustomVariable
		if err := json.Unmarshal([]byte(raw), &vars); err == nil {
			s.CustomVariables = vars
		}
	}

	if raw, ok := src.GetSettingsStringValue(tenantID, SettingSuppressionTags); ok && raw != "" {
		var tags []string
		// Parse failure keeps the default list.
		if err := json.Unmarshal([]byte(raw), &tags); err == nil && len(tags) > 0 {
			s.SuppressionTags = tags
		}
	}

	return s
}
