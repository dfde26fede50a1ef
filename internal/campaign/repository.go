package campaign

import (
	"context"
	"time"

	stderrors "errors"

	"github.com/pkg/errors"
	"github.com/zaptalk/zapcampaigns/internal/domain"
	"gorm.io/gorm"
)

// CampaignRepository reads and transitions campaigns.
type CampaignRepository interface {
	Get(ctx context.Context, id int64) (*domain.Campaign, error)
	// FindDue lists Scheduled campaigns whose scheduled time falls within
	// [from, to].
	FindDue(ctx context.Context, from, to time.Time) ([]domain.Campaign, error)
	// MarkRunning flips a Scheduled campaign to Running. Returns false when
	// the campaign was already claimed (guard against duplicate activation).
	MarkRunning(ctx context.Context, id int64) (bool, error)
	// Finish flips a Running campaign to Finished with a completion time.
	// Returns false when the campaign was not in Running state.
	Finish(ctx context.Context, id int64, at time.Time) (bool, error)
}

// ShippingRepository owns per-contact delivery bookkeeping.
type ShippingRepository interface {
	Get(ctx context.Context, id int64) (*domain.CampaignShipping, error)
	FindByCampaignAndContact(ctx context.Context, campaignID, contactID int64) (*domain.CampaignShipping, error)
	Save(ctx context.Context, rec *domain.CampaignShipping) error
	UpdateJobHandle(ctx context.Context, id, handle int64) error
	MarkDelivered(ctx context.Context, id, connectionID int64, at time.Time) error
	MarkSuppressed(ctx context.Context, id int64, at time.Time) error
	MarkConfirmationRequested(ctx context.Context, id, connectionID int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string, at time.Time) error
	RecordError(ctx context.Context, id int64, reason string, at time.Time) error
	// CountDelivered counts records satisfying the completion rule: delivered,
	// and confirmed when the campaign requires confirmation.
	CountDelivered(ctx context.Context, campaignID int64, requireConfirmation bool) (int64, error)
	// DeliveredCountSince counts deliveries on one connection since a window
	// boundary (hourly/daily cap accounting).
	DeliveredCountSince(ctx context.Context, connectionID int64, since time.Time) (int64, error)
}

// ContactRepository resolves campaign audiences and CRM enrichment.
type ContactRepository interface {
	ListValidItems(ctx context.Context, listID int64) ([]domain.ContactListItem, error)
	CountValidItems(ctx context.Context, listID int64) (int64, error)
	GetItem(ctx context.Context, id int64) (*domain.ContactListItem, error)
	FindByNumber(ctx context.Context, tenantID int64, number string) (*domain.Contact, error)
	TagsByNumber(ctx context.Context, tenantID int64, number string) ([]string, error)
}

// ConnectionRepository reads WhatsApp lines. Read-only for the engine.
type ConnectionRepository interface {
	Get(ctx context.Context, id int64) (*domain.Whatsapp, error)
	ListConnected(ctx context.Context, tenantID int64) ([]domain.Whatsapp, error)
}

// ErrNotFound is returned by repositories when an entity does not exist.
var ErrNotFound = stderrors.New("campaign: not found")

// ---------------------------------------------------------------------------
// Gorm implementations

type GormCampaignRepository struct {
	DB *gorm.DB
}

func (r *GormCampaignRepository) Get(ctx context.Context, id int64) (*domain.Campaign, error) {
	var c domain.Campaign
	err := r.DB.WithContext(ctx).First(&c, id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get campaign")
	}
	return &c, nil
}

func (r *GormCampaignRepository) FindDue(ctx context.Context, from, to time.Time) ([]domain.Campaign, error) {
	var list []domain.Campaign
	err := r.DB.WithContext(ctx).
		Where("status = ? and scheduled_at between ? and ?", domain.CampaignStatusScheduled, from, to).
		Order("scheduled_at asc").
		Find(&list).Error
	if err != nil {
		return nil, errors.Wrap(err, "find due campaigns")
	}
	return list, nil
}

func (r *GormCampaignRepository) MarkRunning(ctx context.Context, id int64) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&domain.Campaign{}).
		Where("id = ? and status = ?", id, domain.CampaignStatusScheduled).
		Update("status", domain.CampaignStatusRunning)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "mark campaign running")
	}
	return res.RowsAffected > 0, nil
}

func (r *GormCampaignRepository) Finish(ctx context.Context, id int64, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&domain.Campaign{}).
		Where("id = ? and status = ?", id, domain.CampaignStatusRunning).
		Updates(map[string]interface{}{
			"status":       domain.CampaignStatusFinished,
			"completed_at": at,
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "finish campaign")
	}
	return res.RowsAffected > 0, nil
}

type GormShippingRepository struct {
	DB *gorm.DB
}

func (r *GormShippingRepository) Get(ctx context.Context, id int64) (*domain.CampaignShipping, error) {
	var rec domain.CampaignShipping
	err := r.DB.WithContext(ctx).First(&rec, id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get shipping")
	}
	return &rec, nil
}

func (r *GormShippingRepository) FindByCampaignAndContact(ctx context.Context, campaignID, contactID int64) (*domain.CampaignShipping, error) {
	var rec domain.CampaignShipping
	err := r.DB.WithContext(ctx).
		Where("campaign_id = ? and contact_id = ?", campaignID, contactID).
		First(&rec).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find shipping")
	}
	return &rec, nil
}

func (r *GormShippingRepository) Save(ctx context.Context, rec *domain.CampaignShipping) error {
	return errors.Wrap(r.DB.WithContext(ctx).Save(rec).Error, "save shipping")
}

func (r *GormShippingRepository) UpdateJobHandle(ctx context.Context, id, handle int64) error {
	err := r.DB.WithContext(ctx).Model(&domain.CampaignShipping{}).
		Where("id = ?", id).
		Update("job_handle", handle).Error
	return errors.Wrap(err, "update job handle")
}

func (r *GormShippingRepository) MarkDelivered(ctx context.Context, id, connectionID int64, at time.Time) error {
	err := r.DB.WithContext(ctx).Model(&domain.CampaignShipping{}).
		Where("id = ? and delivered_at is null", id).
		Updates(map[string]interface{}{
			"status":       domain.ShippingStatusDelivered,
			"delivered_at": at,
			"whatsapp_id":  connectionID,
		}).Error
	return errors.Wrap(err, "mark delivered")
}

func (r *GormShippingRepository) MarkSuppressed(ctx context.Context, id int64, at time.Time) error {
	// Suppressed records still get deliveredAt so they do not block campaign
	// completion; the status keeps the audit trail honest.
	err := r.DB.WithContext(ctx).Model(&domain.CampaignShipping{}).
		Where("id = ? and delivered_at is null", id).
		Updates(map[string]interface{}{
			"status":       domain.ShippingStatusSuppressed,
			"delivered_at": at,
		}).Error
	return errors.Wrap(err, "mark suppressed")
}

func (r *GormShippingRepository) MarkConfirmationRequested(ctx context.Context, id, connectionID int64, at time.Time) error {
	err := r.DB.WithContext(ctx).Model(&domain.CampaignShipping{}).
		Where("id = ? and confirmation_requested_at is null", id).
		Updates(map[string]interface{}{
			"confirmation_requested_at": at,
			"whatsapp_id":               connectionID,
		}).Error
	return errors.Wrap(err, "mark confirmation requested")
}

func (r *GormShippingRepository) MarkFailed(ctx context.Context, id int64, reason string, at time.Time) error {
	err := r.DB.WithContext(ctx).Model(&domain.CampaignShipping{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        domain.ShippingStatusFailed,
			"last_error":    reason,
			"last_error_at": at,
		}).Error
	return errors.Wrap(err, "mark failed")
}

func (r *GormShippingRepository) RecordError(ctx context.Context, id int64, reason string, at time.Time) error {
	err := r.DB.WithContext(ctx).Model(&domain.CampaignShipping{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":      gorm.Expr("attempts + 1"),
			"last_error":    reason,
			"last_error_at": at,
		}).Error
	return errors.Wrap(err, "record error")
}

func (r *GormShippingRepository) CountDelivered(ctx context.Context, campaignID int64, requireConfirmation bool) (int64, error) {
	q := r.DB.WithContext(ctx).Model(&domain.CampaignShipping{}).
		Where("campaign_id = ? and delivered_at is not null", campaignID)
	if requireConfirmation {
		// Suppressed records never receive a confirmation; they satisfy the
		// rule by status so they cannot hold a campaign open.
		q = q.Where("confirmation = ? or status = ?", true, domain.ShippingStatusSuppressed)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "count delivered")
	}
	return n, nil
}

func (r *GormShippingRepository) DeliveredCountSince(ctx context.Context, connectionID int64, since time.Time) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&domain.CampaignShipping{}).
		Where("whatsapp_id = ? and delivered_at >= ?", connectionID, since).
		Count(&n).Error
	if err != nil {
		return 0, errors.Wrap(err, "delivered count")
	}
	return n, nil
}

type GormContactRepository struct {
	DB *gorm.DB
}

func (r *GormContactRepository) ListValidItems(ctx context.Context, listID int64) ([]domain.ContactListItem, error) {
	var items []domain.ContactListItem
	err := r.DB.WithContext(ctx).
		Where("contact_list_id = ? and is_whatsapp_valid = ?", listID, true).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "list contact items")
	}
	return items, nil
}

func (r *GormContactRepository) CountValidItems(ctx context.Context, listID int64) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&domain.ContactListItem{}).
		Where("contact_list_id = ? and is_whatsapp_valid = ?", listID, true).
		Count(&n).Error
	if err != nil {
		return 0, errors.Wrap(err, "count contact items")
	}
	return n, nil
}

func (r *GormContactRepository) GetItem(ctx context.Context, id int64) (*domain.ContactListItem, error) {
	var item domain.ContactListItem
	err := r.DB.WithContext(ctx).First(&item, id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get contact item")
	}
	return &item, nil
}

func (r *GormContactRepository) FindByNumber(ctx context.Context, tenantID int64, number string) (*domain.Contact, error) {
	var c domain.Contact
	err := r.DB.WithContext(ctx).
		Where("tenant_id = ? and number = ?", tenantID, number).
		First(&c).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find contact")
	}
	return &c, nil
}

func (r *GormContactRepository) TagsByNumber(ctx context.Context, tenantID int64, number string) ([]string, error) {
	var names []string
	err := r.DB.WithContext(ctx).Model(&domain.Tag{}).
		Joins("join contact_tags on contact_tags.tag_id = tags.id").
		Joins("join contacts on contacts.id = contact_tags.contact_id").
		Where("contacts.tenant_id = ? and contacts.number = ?", tenantID, number).
		Pluck("tags.name", &names).Error
	if err != nil {
		return nil, errors.Wrap(err, "tags by number")
	}
	return names, nil
}

type GormConnectionRepository struct {
	DB *gorm.DB
}

func (r *GormConnectionRepository) Get(ctx context.Context, id int64) (*domain.Whatsapp, error) {
	var w domain.Whatsapp
	err := r.DB.WithContext(ctx).First(&w, id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get connection")
	}
	return &w, nil
}

func (r *GormConnectionRepository) ListConnected(ctx context.Context, tenantID int64) ([]domain.Whatsapp, error) {
	var list []domain.Whatsapp
	err := r.DB.WithContext(ctx).
		Where("tenant_id = ? and status = ?", tenantID, domain.WhatsappStatusConnected).
		Order("id asc").
		Find(&list).Error
	if err != nil {
		return nil, errors.Wrap(err, "list connected")
	}
	return list, nil
}
