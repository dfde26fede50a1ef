package domain

var Tables = []interface{}{
	// System
	&TenantSetting{},
	// Contacts
	&Contact{},
	&Tag{},
	&ContactTag{},
	&ContactList{},
	&ContactListItem{},
	// Connections
	&Whatsapp{},
	// Campaigns
	&Campaign{},
	&CampaignShipping{},
}
