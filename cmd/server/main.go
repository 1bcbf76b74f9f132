package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yield-ledger-go/internal/common"
	"yield-ledger-go/internal/config"
	"yield-ledger-go/internal/deposit"
	"yield-ledger-go/internal/scheduler"

	"go.uber.org/zap"
)

func main() {
	noCron := flag.Bool("no-cron", false, "Do not run scheduled jobs (signals, salaries, maintenance)")
	noPoll := flag.Bool("no-poll", false, "Do not poll pending deposit intents")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting yield ledger server")

	services, err := common.InitializeServices(ctx, cfg, true)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if err := services.Seed.Apply(ctx, services.DbService, cfg.Rewards.SignalsPerDay); err != nil {
		zap.L().Fatal("Failed to apply seed data", zap.Error(err))
	}

	services.Hub.Start()

	var poller *deposit.Poller
	if !*noPoll && services.Reconciler != nil {
		poller = deposit.NewPoller(services.Reconciler, cfg.Reconciler.PollingInterval)
		poller.Start(ctx)
	}

	var sched *scheduler.Scheduler
	if !*noCron {
		sched, err = scheduler.NewScheduler(cfg.Scheduler, scheduler.Jobs{
			Signals:       services.Signals,
			Salaries:      services.Referrals,
			Subscriptions: services.Subscriptions,
			Referrals:     services.Referrals,
		})
		if err != nil {
			zap.L().Fatal("Failed to create scheduler", zap.Error(err))
		}
		sched.Start()
	}

	zap.L().Info("Server running",
		zap.Bool("deposit_polling", poller != nil),
		zap.Bool("scheduler", sched != nil),
		zap.String("hub_addr", cfg.Hub.ListenAddr))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		if sched != nil {
			sched.Stop()
		}
		if poller != nil {
			poller.Stop()
		}
		cancel()
		services.Hub.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Server stopped gracefully")
	case <-time.After(30 * time.Second):
		zap.L().Warn("Forced shutdown after timeout")
	}
}
