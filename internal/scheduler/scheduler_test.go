package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"yield-ledger-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	signals, salaries, matured, upgraded, recalculated int
	fail                                               bool
}

func (f *fakeJobs) Generate(context.Context, bool) ([]models.Signal, error) {
	f.signals++
	if f.fail {
		panic("generator exploded")
	}
	return []models.Signal{{Code: "ABC123"}}, nil
}

func (f *fakeJobs) DistributeWeeklySalaries(context.Context, time.Time) (int, error) {
	f.salaries++
	return 1, nil
}

func (f *fakeJobs) MatureExpired(context.Context) (int, error) {
	f.matured++
	if f.fail {
		return 0, errors.New("db down")
	}
	return 0, nil
}

func (f *fakeJobs) AutoUpgradeAll(context.Context) (int, error) {
	f.upgraded++
	return 0, nil
}

func (f *fakeJobs) RecalculateAll(context.Context) (int, error) {
	f.recalculated++
	return 0, nil
}

func testConfig() models.SchedulerConfig {
	return models.SchedulerConfig{
		Timezone:        "UTC",
		SignalSpecs:     []string{"15 14 * * *", "0 17 * * *", "0 18 * * *"},
		SalarySpec:      "0 0 * * 1",
		MaintenanceSpec: "5 0 * * *",
	}
}

func TestNewScheduler(t *testing.T) {
	jobs := &fakeJobs{}
	s, err := NewScheduler(testConfig(), Jobs{Signals: jobs, Salaries: jobs, Subscriptions: jobs, Referrals: jobs})
	require.NoError(t, err)
	assert.Equal(t, 5, s.Entries())

	s.Start()
	s.Stop()
}

func TestInvalidSpec(t *testing.T) {
	cfg := testConfig()
	cfg.SalarySpec = "every tuesday"
	_, err := NewScheduler(cfg, Jobs{})
	assert.Error(t, err)
}

func TestUnknownTimezoneFallsBackToUTC(t *testing.T) {
	cfg := testConfig()
	cfg.Timezone = "Mars/Olympus_Mons"
	s, err := NewScheduler(cfg, Jobs{})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, s.loc)
}

func TestRunJobs(t *testing.T) {
	ctx := context.Background()
	jobs := &fakeJobs{}
	s, err := NewScheduler(testConfig(), Jobs{Signals: jobs, Salaries: jobs, Subscriptions: jobs, Referrals: jobs})
	require.NoError(t, err)

	s.RunSignals(ctx)
	s.RunSalaries(ctx)
	s.RunMaintenance(ctx)
	assert.Equal(t, 1, jobs.signals)
	assert.Equal(t, 1, jobs.salaries)
	assert.Equal(t, 1, jobs.matured)
	assert.Equal(t, 1, jobs.upgraded)
	assert.Equal(t, 1, jobs.recalculated)

	// failures and panics stay inside the job
	jobs.fail = true
	assert.NotPanics(t, func() { s.RunSignals(ctx) })
	s.RunMaintenance(ctx)
	assert.Equal(t, 2, jobs.matured)
	assert.Equal(t, 1, jobs.upgraded)
}

func TestNilJobsAreSkipped(t *testing.T) {
	s, err := NewScheduler(testConfig(), Jobs{})
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		s.RunSignals(context.Background())
		s.RunSalaries(context.Background())
		s.RunMaintenance(context.Background())
	})
}
