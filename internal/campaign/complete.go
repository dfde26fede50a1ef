package campaign

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zaptalk/zapcampaigns/internal/domain"
	"github.com/zaptalk/zapcampaigns/internal/events"
	"go.uber.org/zap"
)

// CheckCampaignCompletion re-evaluates whether every contact of a campaign
// has reached a terminal delivered state and, when so, flips the campaign to
// Finished. It runs after every terminal record outcome rather than keeping a
// counter; the redundant count queries keep the transition correct under
// concurrent completions, and the guarded status update makes the flip
// happen exactly once.
func (s *Service) CheckCampaignCompletion(ctx context.Context, campaignID int64) error {
	camp, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return errors.Wrap(err, "completion: load campaign")
	}
	if camp.Status != domain.CampaignStatusRunning {
		return nil
	}

	total, err := s.contacts.CountValidItems(ctx, camp.ContactListId)
	if err != nil {
		return errors.Wrap(err, "completion: count contacts")
	}
	if total == 0 {
		return nil
	}

	done, err := s.shippings.CountDelivered(ctx, campaignID, camp.Confirmation)
	if err != nil {
		return errors.Wrap(err, "completion: count delivered")
	}
	if done < total {
		return nil
	}

	finished, err := s.campaigns.Finish(ctx, campaignID, s.now())
	if err != nil {
		return errors.Wrap(err, "completion: finish campaign")
	}
	if !finished {
		// A concurrent completion check already flipped it.
		return nil
	}

	zap.L().Info("campaign finished",
		zap.Int64("campaign_id", campaignID),
		zap.Int64("delivered", done))
	s.events.PublishCampaign(events.ActionCampaignFinished, camp.TenantId, camp.ID, 0)
	return nil
}
