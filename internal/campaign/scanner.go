package campaign

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartActivationScanner schedules the periodic campaign activation scan.
func (s *Service) StartActivationScanner(sched *cron.Cron, spec string) error {
	if spec == "" {
		spec = "@every 20s"
	}
	_, err := sched.AddFunc(spec, s.ScanDueCampaigns)
	return err
}

// ScanDueCampaigns finds Scheduled campaigns due within the lookahead window
// and moves each into the dispatch pipeline exactly once. A tick arriving
// while a previous scan is still executing is a no-op; the in-flight flag is
// always cleared so later ticks are never blocked.
func (s *Service) ScanDueCampaigns() {
	if !s.scanning.CompareAndSwap(false, true) {
		return
	}
	defer s.scanning.Store(false)

	ctx := context.Background()
	now := s.now()
	due, err := s.campaigns.FindDue(ctx, now, now.Add(s.cfg.ActivationLookahead))
	if err != nil {
		zap.L().Error("activation scan failed", zap.Error(err))
		return
	}

	for _, c := range due {
		// One campaign's failure must not block the rest of the tick.
		if err := s.activateCampaign(ctx, c.ID, c.ScheduledAt.Sub(now)); err != nil {
			zap.L().Error("campaign activation failed",
				zap.Int64("campaign_id", c.ID),
				zap.Error(err))
		}
	}
}

func (s *Service) activateCampaign(ctx context.Context, campaignID int64, remaining time.Duration) error {
	claimed, err := s.campaigns.MarkRunning(ctx, campaignID)
	if err != nil {
		return err
	}
	if !claimed {
		// Another tick (or process) already activated it.
		return nil
	}

	delay := remaining
	if delay < 0 {
		delay = 0
	}
	if _, err := s.queue.Enqueue(JobCampaignFanout, FanoutPayload{CampaignID: campaignID}, delay); err != nil {
		return err
	}
	zap.L().Info("campaign activated",
		zap.Int64("campaign_id", campaignID),
		zap.Duration("start_delay", delay))
	return nil
}
