package domain

import (
	"strconv"
	"strings"
	"time"
)

// Campaign statuses. Transitions are monotonic:
// Draft/Scheduled -> Running -> Cancelled | Finished.
const (
	CampaignStatusDraft     = "Draft"
	CampaignStatusScheduled = "Scheduled"
	CampaignStatusRunning   = "Running"
	CampaignStatusCancelled = "Cancelled"
	CampaignStatusFinished  = "Finished"
)

// Dispatch strategies.
const (
	DispatchStrategySingle     = "single"
	DispatchStrategyRoundRobin = "round_robin"
)

// MaxMessageVariants is the fixed number of message slots a campaign carries.
const MaxMessageVariants = 5

// Campaign is a tenant-defined bulk-send job targeting a contact list with
// up to five message variants and five confirmation variants.
type Campaign struct {
	ID            int64      `json:"id,string" gorm:"primaryKey"`
	TenantId      int64      `json:"tenant_id,string" gorm:"index"`
	Name          string     `json:"name"`
	Status        string     `json:"status" gorm:"index"`
	ScheduledAt   time.Time  `json:"scheduled_at" gorm:"index"`
	CompletedAt   *time.Time `json:"completed_at"`
	Confirmation  bool       `json:"confirmation"`
	ContactListId int64      `json:"contact_list_id,string" gorm:"index"`

	// Connection selection. WhatsappId is the default/fixed connection;
	// AllowedWhatsappIds is a comma-separated allow-list used by round_robin.
	DispatchStrategy   string `json:"dispatch_strategy"`
	WhatsappId         int64  `json:"whatsapp_id,string"`
	AllowedWhatsappIds string `json:"allowed_whatsapp_ids"`

	Message1 string `json:"message1" gorm:"type:text"`
	Message2 string `json:"message2" gorm:"type:text"`
	Message3 string `json:"message3" gorm:"type:text"`
	Message4 string `json:"message4" gorm:"type:text"`
	Message5 string `json:"message5" gorm:"type:text"`

	ConfirmationMessage1 string `json:"confirmation_message1" gorm:"type:text"`
	ConfirmationMessage2 string `json:"confirmation_message2" gorm:"type:text"`
	ConfirmationMessage3 string `json:"confirmation_message3" gorm:"type:text"`
	ConfirmationMessage4 string `json:"confirmation_message4" gorm:"type:text"`
	ConfirmationMessage5 string `json:"confirmation_message5" gorm:"type:text"`

	// Campaign-level media, sent after the text unless a per-variant
	// attachment overrides it.
	MediaPath string `json:"media_path"`
	MediaName string `json:"media_name"`
	MediaMime string `json:"media_mime"`

	MediaPath1 string `json:"media_path1"`
	MediaName1 string `json:"media_name1"`
	MediaMime1 string `json:"media_mime1"`
	MediaPath2 string `json:"media_path2"`
	MediaName2 string `json:"media_name2"`
	MediaMime2 string `json:"media_mime2"`
	MediaPath3 string `json:"media_path3"`
	MediaName3 string `json:"media_name3"`
	MediaMime3 string `json:"media_mime3"`
	MediaPath4 string `json:"media_path4"`
	MediaName4 string `json:"media_name4"`
	MediaMime4 string `json:"media_mime4"`
	MediaPath5 string `json:"media_path5"`
	MediaName5 string `json:"media_name5"`
	MediaMime5 string `json:"media_mime5"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// MessageVariants returns the non-empty message templates with their 1-based
// slot indexes, in slot order.
func (c *Campaign) MessageVariants() ([]string, []int) {
	all := [MaxMessageVariants]string{c.Message1, c.Message2, c.Message3, c.Message4, c.Message5}
	var texts []string
	var idxs []int
	for i, m := range all {
		if strings.TrimSpace(m) != "" {
			texts = append(texts, m)
			idxs = append(idxs, i+1)
		}
	}
	return texts, idxs
}

// ConfirmationVariants returns the non-empty confirmation templates.
func (c *Campaign) ConfirmationVariants() []string {
	all := [MaxMessageVariants]string{
		c.ConfirmationMessage1, c.ConfirmationMessage2, c.ConfirmationMessage3,
		c.ConfirmationMessage4, c.ConfirmationMessage5,
	}
	var texts []string
	for _, m := range all {
		if strings.TrimSpace(m) != "" {
			texts = append(texts, m)
		}
	}
	return texts
}

// Media describes a file attachment resolved for a send.
type Media struct {
	Path string
	Name string
	Mime string
}

// IsAudioMime reports whether a mime type is an audio/voice-note type.
func IsAudioMime(mime string) bool {
	return strings.HasPrefix(strings.ToLower(mime), "audio/")
}

// MediaForVariant resolves the attachment for a 1-based variant index:
// the per-variant slot when set, otherwise the campaign-level attachment.
// Returns nil when neither exists.
func (c *Campaign) MediaForVariant(variant int) *Media {
	perVariant := [MaxMessageVariants]Media{
		{c.MediaPath1, c.MediaName1, c.MediaMime1},
		{c.MediaPath2, c.MediaName2, c.MediaMime2},
		{c.MediaPath3, c.MediaName3, c.MediaMime3},
		{c.MediaPath4, c.MediaName4, c.MediaMime4},
		{c.MediaPath5, c.MediaName5, c.MediaMime5},
	}
	if variant >= 1 && variant <= MaxMessageVariants {
		if m := perVariant[variant-1]; m.Path != "" {
			return &m
		}
	}
	if c.MediaPath != "" {
		return &Media{Path: c.MediaPath, Name: c.MediaName, Mime: c.MediaMime}
	}
	return nil
}

// AllowedConnectionIds parses the comma-separated allow-list. An empty list
// means every connected line of the tenant is a candidate.
func (c *Campaign) AllowedConnectionIds() []int64 {
	if strings.TrimSpace(c.AllowedWhatsappIds) == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(c.AllowedWhatsappIds, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
