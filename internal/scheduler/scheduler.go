package scheduler

import (
	"context"
	"fmt"
	"time"

	"yield-ledger-go/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type SignalGenerator interface {
	Generate(ctx context.Context, exclusive bool) ([]models.Signal, error)
}

type SalaryDistributor interface {
	DistributeWeeklySalaries(ctx context.Context, now time.Time) (int, error)
}

type SubscriptionMaintainer interface {
	MatureExpired(ctx context.Context) (int, error)
	AutoUpgradeAll(ctx context.Context) (int, error)
}

type LevelRecalculator interface {
	RecalculateAll(ctx context.Context) (int, error)
}

// Jobs are the batch entry points driven by the scheduler. Every one of them
// is safe to run more than once in the same period.
type Jobs struct {
	Signals       SignalGenerator
	Salaries      SalaryDistributor
	Subscriptions SubscriptionMaintainer
	Referrals     LevelRecalculator
}

// Scheduler runs Jobs on cron specs.
type Scheduler struct {
	cron *cron.Cron
	jobs Jobs
	loc  *time.Location
}

func NewScheduler(cfg models.SchedulerConfig, jobs Jobs) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		zap.L().Warn("Unknown scheduler timezone, using UTC", zap.String("timezone", cfg.Timezone), zap.Error(err))
		loc = time.UTC
	}

	s := &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		jobs: jobs,
		loc:  loc,
	}

	for _, spec := range cfg.SignalSpecs {
		if _, err := s.cron.AddFunc(spec, func() { s.RunSignals(context.Background()) }); err != nil {
			return nil, fmt.Errorf("invalid signal schedule %q: %w", spec, err)
		}
	}
	if cfg.SalarySpec != "" {
		if _, err := s.cron.AddFunc(cfg.SalarySpec, func() { s.RunSalaries(context.Background()) }); err != nil {
			return nil, fmt.Errorf("invalid salary schedule %q: %w", cfg.SalarySpec, err)
		}
	}
	if cfg.MaintenanceSpec != "" {
		if _, err := s.cron.AddFunc(cfg.MaintenanceSpec, func() { s.RunMaintenance(context.Background()) }); err != nil {
			return nil, fmt.Errorf("invalid maintenance schedule %q: %w", cfg.MaintenanceSpec, err)
		}
	}
	return s, nil
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	zap.L().Info("Scheduler started",
		zap.String("timezone", s.loc.String()),
		zap.Int("entries", len(s.cron.Entries())))
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.L().Info("Scheduler stopped")
}

// Entries is the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// RunSignals generates a signal for every active plan.
func (s *Scheduler) RunSignals(ctx context.Context) {
	ctx = models.WithTrigger(ctx, models.TriggerScheduler)
	s.run("signals", func() error {
		if s.jobs.Signals == nil {
			return nil
		}
		created, err := s.jobs.Signals.Generate(ctx, false)
		if err == nil {
			zap.L().Info("[CRON] Signals generated", zap.Int("count", len(created)))
		}
		return err
	})
}

// RunSalaries pays the weekly referral salaries.
func (s *Scheduler) RunSalaries(ctx context.Context) {
	ctx = models.WithTrigger(ctx, models.TriggerScheduler)
	s.run("salaries", func() error {
		if s.jobs.Salaries == nil {
			return nil
		}
		paid, err := s.jobs.Salaries.DistributeWeeklySalaries(ctx, time.Now().UTC())
		if err == nil {
			zap.L().Info("[CRON] Weekly salaries paid", zap.Int("count", paid))
		}
		return err
	})
}

// RunMaintenance matures and upgrades subscriptions, then recomputes levels.
func (s *Scheduler) RunMaintenance(ctx context.Context) {
	ctx = models.WithTrigger(ctx, models.TriggerScheduler)
	s.run("maintenance", func() error {
		if s.jobs.Subscriptions != nil {
			if _, err := s.jobs.Subscriptions.MatureExpired(ctx); err != nil {
				return fmt.Errorf("mature subscriptions: %w", err)
			}
			if _, err := s.jobs.Subscriptions.AutoUpgradeAll(ctx); err != nil {
				return fmt.Errorf("auto upgrade: %w", err)
			}
		}
		if s.jobs.Referrals != nil {
			if _, err := s.jobs.Referrals.RecalculateAll(ctx); err != nil {
				return fmt.Errorf("recalculate levels: %w", err)
			}
		}
		return nil
	})
}

func (s *Scheduler) run(name string, job func() error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("[CRON] Job panicked", zap.String("job", name), zap.Any("panic", r))
		}
	}()

	started := time.Now()
	zap.L().Debug("[CRON] Job started", zap.String("job", name))
	if err := job(); err != nil {
		zap.L().Error("[CRON] Job failed", zap.String("job", name), zap.Error(err))
		return
	}
	zap.L().Debug("[CRON] Job finished", zap.String("job", name), zap.Duration("took", time.Since(started)))
}
