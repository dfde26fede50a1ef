package campaign

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/zaptalk/zapcampaigns/internal/domain"
	"github.com/zaptalk/zapcampaigns/internal/events"
	"go.uber.org/zap"
)

// DispatchShipping attempts delivery for one shipping record. The record
// re-enters the queue with a fresh job handle whenever a cap or backoff
// window defers it; a record already delivered, suppressed or failed is
// dropped without a send, so stale job handles are harmless.
func (s *Service) DispatchShipping(ctx context.Context, campaignID, shippingID int64) error {
	rec, err := s.shippings.Get(ctx, shippingID)
	if errors.Is(err, ErrNotFound) {
		zap.L().Warn("dispatch: shipping record gone",
			zap.Int64("shipping_id", shippingID))
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "dispatch: load shipping")
	}
	if rec.Terminal() {
		return nil
	}

	now := s.now()

	camp, err := s.campaigns.Get(ctx, campaignID)
	if errors.Is(err, ErrNotFound) {
		// The record would sit pending forever; close it out loudly so
		// operators see it in the failure report instead of a silent stall.
		zap.L().Error("dispatch: campaign missing, failing record",
			zap.Int64("campaign_id", campaignID),
			zap.Int64("shipping_id", shippingID))
		return s.shippings.MarkFailed(ctx, rec.ID, "campaign no longer exists", now)
	}
	if err != nil {
		return errors.Wrap(err, "dispatch: load campaign")
	}
	switch camp.Status {
	case domain.CampaignStatusCancelled, domain.CampaignStatusFinished:
		return nil
	}

	st := LoadDispatchSettings(s.settings, camp.TenantId)

	conn, err := s.selector.Select(ctx, camp)
	if err != nil || conn == nil || !conn.Connected() {
		reason := "no usable connection"
		if err != nil {
			reason = err.Error()
		}
		zap.L().Error("dispatch: connection unavailable",
			zap.Int64("campaign_id", campaignID),
			zap.Int64("shipping_id", shippingID),
			zap.String("reason", reason))
		return s.shippings.MarkFailed(ctx, rec.ID, reason, now)
	}

	// State may have changed since preparation; never send to a number that
	// opted out in the meantime.
	if s.suppression.IsSuppressed(ctx, camp.TenantId, rec.Number, st.SuppressionTags) {
		if err := s.shippings.MarkSuppressed(ctx, rec.ID, now); err != nil {
			return errors.Wrap(err, "dispatch: mark suppressed")
		}
		s.events.PublishCampaign(events.ActionCampaignUpdate, camp.TenantId, camp.ID, rec.ID)
		return s.CheckCampaignCompletion(ctx, campaignID)
	}

	deferBy, err := s.dispatchDefer(ctx, conn.ID, st, now)
	if err != nil {
		return err
	}
	if deferBy > 0 {
		zap.L().Info("dispatch deferred",
			zap.Int64("shipping_id", rec.ID),
			zap.Int64("connection_id", conn.ID),
			zap.Duration("defer", deferBy))
		return s.reschedule(ctx, rec, deferBy)
	}

	chatID := ChatID(rec.Number, rec.IsGroup)

	if camp.Confirmation && rec.ConfirmationRequestedAt == nil && rec.ConfirmationMessage != "" {
		if err := s.sender.SendText(ctx, conn, chatID, rec.ConfirmationMessage); err != nil {
			return s.handleSendError(ctx, rec, conn.ID, st, err)
		}
		s.throttle.RecordSuccess(conn.ID)
		if err := s.shippings.MarkConfirmationRequested(ctx, rec.ID, conn.ID, s.now()); err != nil {
			return errors.Wrap(err, "dispatch: mark confirmation requested")
		}
		s.events.PublishCampaign(events.ActionCampaignUpdate, camp.TenantId, camp.ID, rec.ID)
		return nil
	}

	if err := s.sendMessage(ctx, conn, chatID, camp, rec); err != nil {
		return s.handleSendError(ctx, rec, conn.ID, st, err)
	}
	s.throttle.RecordSuccess(conn.ID)

	if err := s.shippings.MarkDelivered(ctx, rec.ID, conn.ID, s.now()); err != nil {
		return errors.Wrap(err, "dispatch: mark delivered")
	}
	s.events.PublishCampaign(events.ActionCampaignUpdate, camp.TenantId, camp.ID, rec.ID)
	return s.CheckCampaignCompletion(ctx, campaignID)
}

// dispatchDefer combines cap and backoff deferrals; the larger wins.
func (s *Service) dispatchDefer(ctx context.Context, connID int64, st DispatchSettings, now time.Time) (time.Duration, error) {
	hourly, err := s.shippings.DeliveredCountSince(ctx, connID, HourWindowStart(now))
	if err != nil {
		return 0, errors.Wrap(err, "dispatch: hourly count")
	}
	daily, err := s.shippings.DeliveredCountSince(ctx, connID, DayWindowStart(now))
	if err != nil {
		return 0, errors.Wrap(err, "dispatch: daily count")
	}

	capDefer := s.throttle.CapDefer(now, hourly, st.HourlyCap, daily, st.DailyCap)
	backoffDefer := s.throttle.BackoffDefer(connID, now)
	if backoffDefer > capDefer {
		return backoffDefer, nil
	}
	return capDefer, nil
}

// sendMessage delivers the resolved text plus any attachment for the record's
// variant. Audio attachments get the text as a standalone message first, so
// the voice note arrives the way the app presents them.
func (s *Service) sendMessage(ctx context.Context, conn *domain.Whatsapp, chatID string, camp *domain.Campaign, rec *domain.CampaignShipping) error {
	media := camp.MediaForVariant(rec.MessageVariant)
	if media == nil {
		return s.sender.SendText(ctx, conn, chatID, rec.Message)
	}

	if domain.IsAudioMime(media.Mime) {
		if err := s.sender.SendText(ctx, conn, chatID, rec.Message); err != nil {
			return err
		}
		return s.sender.SendMedia(ctx, conn, chatID, *media, "")
	}

	if err := s.sender.SendText(ctx, conn, chatID, rec.Message); err != nil {
		return err
	}
	return s.sender.SendMedia(ctx, conn, chatID, *media, media.Name)
}

// handleSendError is the sole retry path for transient send failures. The
// throttle registry classifies the error; the record is rescheduled after the
// connection's remaining pause, or one standard interval when no pause is
// active. A configured attempt ceiling turns the loop into a bounded one.
func (s *Service) handleSendError(ctx context.Context, rec *domain.CampaignShipping, connID int64, st DispatchSettings, sendErr error) error {
	now := s.now()
	zap.L().Error("dispatch: send failed",
		zap.Int64("shipping_id", rec.ID),
		zap.Int64("connection_id", connID),
		zap.Error(sendErr))

	if err := s.shippings.RecordError(ctx, rec.ID, sendErr.Error(), now); err != nil {
		zap.L().Error("dispatch: record error failed", zap.Error(err))
	}

	if tripped := s.throttle.RecordError(connID, sendErr, st.BackoffThreshold, st.BackoffPause); tripped {
		zap.L().Warn("connection paused after repeated rate-limit errors",
			zap.Int64("connection_id", connID),
			zap.Duration("pause", st.BackoffPause))
	}

	if s.cfg.Retry.MaxAttempts > 0 && rec.Attempts+1 >= s.cfg.Retry.MaxAttempts {
		zap.L().Error("dispatch: attempt ceiling reached, failing record",
			zap.Int64("shipping_id", rec.ID),
			zap.Int("attempts", rec.Attempts+1))
		return s.shippings.MarkFailed(ctx, rec.ID, sendErr.Error(), now)
	}

	delay := s.throttle.BackoffDefer(connID, now)
	if delay <= 0 {
		delay = st.MessageInterval + s.throttle.jitter(250, 1000)
	}
	return s.reschedule(ctx, rec, delay)
}

// reschedule re-enqueues the record's dispatch and makes the new handle the
// authoritative one.
func (s *Service) reschedule(ctx context.Context, rec *domain.CampaignShipping, delay time.Duration) error {
	handle, err := s.queue.Enqueue(JobShippingDispatch, DispatchPayload{
		CampaignID: rec.CampaignId,
		ShippingID: rec.ID,
	}, delay)
	if err != nil {
		return errors.Wrap(err, "dispatch: reschedule")
	}
	return errors.Wrap(s.shippings.UpdateJobHandle(ctx, rec.ID, handle), "dispatch: store job handle")
}
