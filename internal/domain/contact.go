package domain

import "time"

// Contact is a CRM-side record, looked up by number for message-variable
// enrichment and suppression-tag checks.
type Contact struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	TenantId  int64     `json:"tenant_id,string" gorm:"index"`
	Name      string    `json:"name" gorm:"index"`
	Number    string    `json:"number" gorm:"index"`
	Email     string    `json:"email"`
	IsGroup   bool      `json:"is_group"`
	Company   string    `json:"company"`
	City      string    `json:"city"`
	Situation string    `json:"situation"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

type Tag struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	TenantId  int64     `json:"tenant_id,string" gorm:"index"`
	Name      string    `json:"name" gorm:"index"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Tag) TableName() string {
	return "tags"
}

type ContactTag struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	ContactId int64     `json:"contact_id,string" gorm:"index"`
	TagId     int64     `json:"tag_id,string" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
}

func (ContactTag) TableName() string {
	return "contact_tags"
}

// ContactList is the target audience of a campaign.
type ContactList struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`
	TenantId  int64     `json:"tenant_id,string" gorm:"index"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ContactList) TableName() string {
	return "contact_lists"
}

// ContactListItem is one destination within a contact list. Only items that
// passed WhatsApp number validation take part in the fan-out.
type ContactListItem struct {
	ID              int64     `json:"id,string" gorm:"primaryKey"`
	TenantId        int64     `json:"tenant_id,string" gorm:"index"`
	ContactListId   int64     `json:"contact_list_id,string" gorm:"index"`
	Name            string    `json:"name"`
	Number          string    `json:"number" gorm:"index"`
	Email           string    `json:"email"`
	IsGroup         bool      `json:"is_group"`
	IsWhatsappValid bool      `json:"is_whatsapp_valid" gorm:"index"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (ContactListItem) TableName() string {
	return "contact_list_items"
}
