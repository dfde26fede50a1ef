package domain

import "time"

// Whatsapp connection statuses. Only CONNECTED lines are usable for
// dispatch.
const (
	WhatsappStatusConnected    = "CONNECTED"
	WhatsappStatusDisconnected = "DISCONNECTED"
	WhatsappStatusPairing      = "PAIRING"
)

// Whatsapp is an outbound WhatsApp line. Read-only from the dispatch
// engine's perspective; session lifecycle is owned by the transport layer.
type Whatsapp struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	TenantId  int64     `json:"tenant_id,string" gorm:"index"`
	Name      string    `json:"name"`
	Jid       string    `json:"jid"`
	Status    string    `json:"status" gorm:"index"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Whatsapp) TableName() string {
	return "whatsapps"
}

// Connected reports whether the line can currently send.
func (w *Whatsapp) Connected() bool {
	return w.Status == WhatsappStatusConnected
}
