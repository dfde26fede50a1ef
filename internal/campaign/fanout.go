package campaign

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/zaptalk/zapcampaigns/internal/domain"
	"go.uber.org/zap"
)

// fanoutJitterMs bounds the uniform jitter added to every per-contact delay
// so messages never fire in the exact same instant.
const fanoutJitterMs = 2000

// ProcessCampaign expands an activated campaign into one preparation job per
// valid contact. The running send timestamp starts at the campaign's
// scheduled time and advances per contact by the standard interval, or by
// the greater interval once the contact index exceeds longerIntervalAfter —
// a throttled ramp instead of a burst.
func (s *Service) ProcessCampaign(ctx context.Context, campaignID int64) error {
	camp, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return errors.Wrap(err, "fanout: load campaign")
	}
	switch camp.Status {
	case domain.CampaignStatusCancelled, domain.CampaignStatusFinished:
		zap.L().Info("fanout skipped: campaign no longer active",
			zap.Int64("campaign_id", campaignID),
			zap.String("status", camp.Status))
		return nil
	}

	items, err := s.contacts.ListValidItems(ctx, camp.ContactListId)
	if err != nil {
		return errors.Wrap(err, "fanout: load contact list")
	}
	if len(items) == 0 {
		zap.L().Warn("fanout: campaign has no valid contacts",
			zap.Int64("campaign_id", campaignID))
		return nil
	}

	st := LoadDispatchSettings(s.settings, camp.TenantId)
	now := s.now()
	baseDelay := camp.ScheduledAt

	for i, item := range items {
		interval := st.MessageInterval
		if i > st.LongerIntervalAfter {
			interval = st.GreaterInterval
		}
		baseDelay = baseDelay.Add(interval)

		delay := baseDelay.Sub(now) + interval + time.Duration(s.rnd(fanoutJitterMs))*time.Millisecond
		if delay < 0 {
			delay = 0
		}

		_, err := s.queue.Enqueue(JobContactPrepare, PreparePayload{
			CampaignID: camp.ID,
			ItemID:     item.ID,
		}, delay)
		if err != nil {
			return errors.Wrapf(err, "fanout: enqueue contact %d", item.ID)
		}
	}

	zap.L().Info("campaign fan-out complete",
		zap.Int64("campaign_id", campaignID),
		zap.Int("contacts", len(items)))
	return nil
}
