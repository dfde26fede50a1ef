package domain

import "time"

// Shipping statuses.
const (
	ShippingStatusPending    = "pending"
	ShippingStatusProcessing = "processing"
	ShippingStatusDelivered  = "delivered"
	ShippingStatusFailed     = "failed"
	ShippingStatusSuppressed = "suppressed"
)

// CampaignShipping tracks delivery of a single contact within a campaign.
// Created by the fan-out stage, mutated only by the dispatch stage, never
// deleted. At most one scheduled job handle is authoritative per record; a
// new handle always supersedes the previous one.
type CampaignShipping struct {
	ID         int64 `json:"id,string" gorm:"primaryKey"`
	TenantId   int64 `json:"tenant_id,string" gorm:"index"`
	CampaignId int64 `json:"campaign_id,string" gorm:"index:idx_shipping_campaign_contact,unique"`
	ContactId  int64 `json:"contact_id,string" gorm:"index:idx_shipping_campaign_contact,unique"`

	Number              string `json:"number" gorm:"index"`
	IsGroup             bool   `json:"is_group"`
	Message             string `json:"message" gorm:"type:text"`
	ConfirmationMessage string `json:"confirmation_message" gorm:"type:text"`
	MessageVariant      int    `json:"message_variant"`

	Status                  string     `json:"status" gorm:"index"`
	WhatsappId              int64      `json:"whatsapp_id,string" gorm:"index"`
	JobHandle               int64      `json:"job_handle,string"`
	Confirmation            *bool      `json:"confirmation"`
	ConfirmationRequestedAt *time.Time `json:"confirmation_requested_at"`
	DeliveredAt             *time.Time `json:"delivered_at" gorm:"index"`

	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error"`
	LastErrorAt *time.Time `json:"last_error_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CampaignShipping) TableName() string {
	return "campaign_shippings"
}

// Terminal reports whether the record reached a state no dispatch job may act
// on again.
func (s *CampaignShipping) Terminal() bool {
	return s.DeliveredAt != nil ||
		s.Status == ShippingStatusDelivered ||
		s.Status == ShippingStatusSuppressed ||
		s.Status == ShippingStatusFailed
}
