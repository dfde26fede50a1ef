package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zaptalk/zapcampaigns/config"
	"github.com/zaptalk/zapcampaigns/internal/adminapi"
	"github.com/zaptalk/zapcampaigns/internal/app"
	"github.com/zaptalk/zapcampaigns/internal/campaign"
	"github.com/zaptalk/zapcampaigns/internal/events"
	"github.com/zaptalk/zapcampaigns/internal/queue"
	"github.com/zaptalk/zapcampaigns/internal/whatsapp"
	"go.uber.org/zap"
)

var (
	confFile = flag.String("conf", "zapcampaigns.yml", "config file path")
	nodeID   = flag.Int64("node", 1, "queue node id (distinguishes processes)")
	initDb   = flag.Bool("initdb", false, "drop and recreate all tables, then exit")
)

func main() {
	flag.Parse()

	cfg := config.LoadConfig(*confFile)
	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initDb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	sender, err := whatsapp.New(application)
	if err != nil {
		zap.L().Fatal("whatsapp service init failed", zap.Error(err))
	}

	q, err := queue.New(*nodeID)
	if err != nil {
		zap.L().Fatal("job queue init failed", zap.Error(err))
	}
	defer q.Shutdown()

	svc := campaign.NewGormService(application.DB(), q, sender, events.NewBus(), application, campaign.ServiceConfig{
		FanoutWorkers:  cfg.Dispatcher.FanoutWorkers,
		PrepareWorkers: cfg.Dispatcher.PrepareWorkers,
		SendWorkers:    cfg.Dispatcher.SendWorkers,
	})
	if err := svc.RegisterConsumers(); err != nil {
		zap.L().Fatal("consumer registration failed", zap.Error(err))
	}
	if err := svc.StartActivationScanner(application.Scheduler(), cfg.Dispatcher.ScanInterval); err != nil {
		zap.L().Fatal("activation scanner setup failed", zap.Error(err))
	}
	application.StartScheduler()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
		if err := adminapi.NewServer(application, sender).Start(addr); err != nil {
			zap.L().Error("admin api stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zap.L().Info("campaign dispatcher started",
		zap.String("scan_interval", cfg.Dispatcher.ScanInterval))

	if err := sender.Start(ctx); err != nil {
		zap.L().Error("whatsapp service stopped", zap.Error(err))
	}
	zap.L().Info("campaign dispatcher shutting down")
}
