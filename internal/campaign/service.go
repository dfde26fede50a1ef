// Package campaign implements the bulk-campaign dispatch engine: the job
// chain from activation scan through contact fan-out and per-message
// dispatch to completion detection, with per-connection caps, adaptive
// backoff, suppression filtering and idempotent delivery bookkeeping.
package campaign

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/zaptalk/zapcampaigns/internal/domain"
	"github.com/zaptalk/zapcampaigns/internal/queue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Job types consumed by the engine.
const (
	JobCampaignFanout   = "campaign:fanout"
	JobContactPrepare   = "campaign:prepare"
	JobShippingDispatch = "campaign:dispatch"
)

// FanoutPayload expands one activated campaign into per-contact work.
type FanoutPayload struct {
	CampaignID int64
}

// PreparePayload resolves one contact's message and creates its shipping.
type PreparePayload struct {
	CampaignID int64
	ItemID     int64
}

// DispatchPayload attempts delivery for one shipping record.
type DispatchPayload struct {
	CampaignID int64
	ShippingID int64
}

// Sender is the opaque outbound WhatsApp capability.
type Sender interface {
	SendText(ctx context.Context, conn *domain.Whatsapp, chatID, text string) error
	SendMedia(ctx context.Context, conn *domain.Whatsapp, chatID string, media domain.Media, caption string) error
}

// ChatID derives the WhatsApp chat id for a destination number.
func ChatID(number string, group bool) string {
	if group {
		return fmt.Sprintf("%s@g.us", number)
	}
	return fmt.Sprintf("%s@s.whatsapp.net", number)
}

// JobQueue is the delayed job broker contract the engine schedules on.
type JobQueue interface {
	Enqueue(jobType string, payload interface{}, delay time.Duration) (int64, error)
	Register(jobType string, concurrency int, h queue.Handler) error
	Cancel(id int64) bool
}

// EventSink receives realtime campaign updates for tenant workspaces.
type EventSink interface {
	PublishCampaign(action string, tenantID, campaignID, shippingID int64)
}

// RetryPolicy bounds the reschedule loop on transient send failures.
// MaxAttempts == 0 keeps the historical unbounded behavior.
type RetryPolicy struct {
	MaxAttempts int
}

// ServiceConfig carries engine-level knobs.
type ServiceConfig struct {
	// ActivationLookahead is how far ahead the scanner claims scheduled
	// campaigns.
	ActivationLookahead time.Duration
	Retry               RetryPolicy
	SuppressionPolicy   SuppressionLookupPolicy
	FanoutWorkers       int
	PrepareWorkers      int
	SendWorkers         int
}

// Service is the dispatch engine.
type Service struct {
	campaigns CampaignRepository
	shippings ShippingRepository
	contacts  ContactRepository
	conns     ConnectionRepository

	queue    JobQueue
	sender   Sender
	events   EventSink
	settings SettingsSource

	throttle    *ThrottleRegistry
	selector    *ConnectionSelector
	suppression *SuppressionFilter

	cfg ServiceConfig

	// scanning serializes activation scans: a tick arriving while a scan is
	// still running is a no-op.
	scanning atomic.Bool

	now func() time.Time
	rnd func(n int) int
}

// NewService wires the engine from its collaborators.
func NewService(
	campaigns CampaignRepository,
	shippings ShippingRepository,
	contacts ContactRepository,
	conns ConnectionRepository,
	q JobQueue,
	sender Sender,
	events EventSink,
	settings SettingsSource,
	cfg ServiceConfig,
) *Service {
	if cfg.ActivationLookahead <= 0 {
		cfg.ActivationLookahead = 3 * time.Hour
	}
	return &Service{
		campaigns:   campaigns,
		shippings:   shippings,
		contacts:    contacts,
		conns:       conns,
		queue:       q,
		sender:      sender,
		events:      events,
		settings:    settings,
		throttle:    NewThrottleRegistry(),
		selector:    NewConnectionSelector(conns),
		suppression: NewSuppressionFilter(contacts, cfg.SuppressionPolicy),
		cfg:         cfg,
		now:         time.Now,
		rnd:         rand.Intn,
	}
}

// NewGormService builds a Service on gorm-backed repositories.
func NewGormService(db *gorm.DB, q JobQueue, sender Sender, events EventSink, settings SettingsSource, cfg ServiceConfig) *Service {
	return NewService(
		&GormCampaignRepository{DB: db},
		&GormShippingRepository{DB: db},
		&GormContactRepository{DB: db},
		&GormConnectionRepository{DB: db},
		q, sender, events, settings, cfg,
	)
}

// Throttle exposes the registry (status endpoints, tests).
func (s *Service) Throttle() *ThrottleRegistry {
	return s.throttle
}

// RegisterConsumers installs the engine's job handlers on the queue.
func (s *Service) RegisterConsumers() error {
	if err := s.queue.Register(JobCampaignFanout, workersOr(s.cfg.FanoutWorkers, 4), func(job queue.Job) {
		p, ok := job.Payload.(FanoutPayload)
		if !ok {
			zap.L().Error("fanout: bad payload type", zap.Int64("job_id", job.ID))
			return
		}
		if err := s.ProcessCampaign(context.Background(), p.CampaignID); err != nil {
			zap.L().Error("fanout failed", zap.Int64("campaign_id", p.CampaignID), zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if err := s.queue.Register(JobContactPrepare, workersOr(s.cfg.PrepareWorkers, 16), func(job queue.Job) {
		p, ok := job.Payload.(PreparePayload)
		if !ok {
			zap.L().Error("prepare: bad payload type", zap.Int64("job_id", job.ID))
			return
		}
		if err := s.PrepareContact(context.Background(), p.CampaignID, p.ItemID); err != nil {
			zap.L().Error("prepare failed",
				zap.Int64("campaign_id", p.CampaignID),
				zap.Int64("item_id", p.ItemID),
				zap.Error(err))
		}
	}); err != nil {
		return err
	}

	return s.queue.Register(JobShippingDispatch, workersOr(s.cfg.SendWorkers, 16), func(job queue.Job) {
		p, ok := job.Payload.(DispatchPayload)
		if !ok {
			zap.L().Error("dispatch: bad payload type", zap.Int64("job_id", job.ID))
			return
		}
		if err := s.DispatchShipping(context.Background(), p.CampaignID, p.ShippingID); err != nil {
			zap.L().Error("dispatch failed",
				zap.Int64("campaign_id", p.CampaignID),
				zap.Int64("shipping_id", p.ShippingID),
				zap.Error(err))
		}
	})
}

func workersOr(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}
