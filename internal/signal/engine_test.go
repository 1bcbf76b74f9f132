package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"yield-ledger-go/internal/ledger"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"
	"yield-ledger-go/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	st     store.Store
	ldg    *ledger.Service
	engine *Engine
	plan   *models.Plan
	user   *models.User
	sub    *models.Subscription
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := testutil.NewStore(t)
	ldg := ledger.NewService(nil)

	plan := &models.Plan{
		Name:           "Gold",
		DurationDays:   30,
		MinAmount:      testutil.Dec("100"),
		MaxAmount:      testutil.Dec("10000"),
		GainMultiplier: testutil.Dec("8"),
		SignalsPerDay:  4,
		IsActive:       true,
	}
	require.NoError(t, st.UpsertPlan(ctx, plan))

	user := testutil.NewUser(t, st, "alice@example.com", "")
	wallet := testutil.Wallet(t, st, user.Id)
	err := st.Atomically(ctx, func(q store.Querier) error {
		_, err := ldg.Credit(ctx, q, wallet, ledger.Entry{Bucket: models.BucketInvested, Amount: testutil.Dec("1000"), Type: models.TxInvestment})
		return err
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	sub := &models.Subscription{
		UserId:         user.Id,
		WalletId:       wallet.Id,
		PlanId:         plan.Id,
		InvestedAmount: testutil.Dec("1000"),
		StartDate:      now,
		EndDate:        now.AddDate(0, 0, 30),
		Status:         models.SubscriptionActive,
	}
	require.NoError(t, st.InsertSubscription(ctx, sub))

	rewards := models.RewardsConfig{SignalsPerDay: 4, SignalTTL: 30 * time.Minute, ExclusiveWindow: 96 * time.Hour}
	return &fixture{st: st, ldg: ldg, engine: NewEngine(st, ldg, rewards, nil), plan: plan, user: user, sub: sub}
}

func (f *fixture) signal(t *testing.T, planId, code string, expiresIn time.Duration, exclusive bool) *models.Signal {
	t.Helper()
	sig := &models.Signal{PlanId: planId, Code: code, IsExclusive: exclusive, ExpiresAt: time.Now().UTC().Add(expiresIn)}
	require.NoError(t, f.st.InsertSignal(context.Background(), sig))
	return sig
}

func TestGain(t *testing.T) {
	tests := []struct {
		invested, gains, multiplier string
		perDay                      int
		want                        string
	}{
		{"1000", "0", "8", 4, "20"},
		{"1000", "20", "8", 4, "20.4"},
		{"0", "0", "8", 4, "0"},
		{"1000", "0", "8", 0, "0"},
		{"333", "0", "10", 3, "11.1"},
	}
	for _, tt := range tests {
		got := Gain(testutil.Dec(tt.invested), testutil.Dec(tt.gains), testutil.Dec(tt.multiplier), tt.perDay)
		testutil.RequireDecimal(t, tt.want, got, tt)
	}
}

func TestUseSignalOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signal(t, f.plan.Id, "ABC123", time.Hour, false)

	r, err := f.engine.UseSignal(ctx, f.user.Id, "abc123")
	require.NoError(t, err)
	testutil.RequireDecimal(t, "20", r.Gain)
	require.NotNil(t, r.Transaction)
	assert.Equal(t, f.sub.Id, r.Transaction.RelatedSubscriptionId)

	_, err = f.engine.UseSignal(ctx, f.user.Id, "ABC123")
	assert.True(t, errors.Is(err, store.ErrConflict), "got %v", err)

	w := testutil.Wallet(t, f.st, f.user.Id)
	testutil.RequireDecimal(t, "20", w.Gains)
}

func TestUseSignalCompounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signal(t, f.plan.Id, "FIRST1", time.Hour, false)
	f.signal(t, f.plan.Id, "SECND2", time.Hour, false)

	_, err := f.engine.UseSignal(ctx, f.user.Id, "FIRST1")
	require.NoError(t, err)
	r, err := f.engine.UseSignal(ctx, f.user.Id, "SECND2")
	require.NoError(t, err)
	testutil.RequireDecimal(t, "20.4", r.Gain)
	testutil.RequireDecimal(t, "40.4", testutil.Wallet(t, f.st, f.user.Id).Gains)
}

func TestUseSignalRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	other := &models.Plan{Name: "Silver", DurationDays: 30, MinAmount: testutil.Dec("10"), MaxAmount: testutil.Dec("99"),
		GainMultiplier: testutil.Dec("5"), SignalsPerDay: 4, IsActive: true}
	require.NoError(t, f.st.UpsertPlan(ctx, other))

	f.signal(t, f.plan.Id, "OLD001", -time.Minute, false)
	f.signal(t, other.Id, "OTHER1", time.Hour, false)
	f.signal(t, f.plan.Id, "EXCL01", time.Hour, true)

	tests := []struct {
		name string
		user string
		code string
		want error
	}{
		{"unknown code", f.user.Id, "NOPE00", store.ErrNotFound},
		{"expired", f.user.Id, "OLD001", store.ErrValidation},
		{"other plan", f.user.Id, "OTHER1", store.ErrValidation},
		{"empty code", f.user.Id, " ", store.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.UseSignal(ctx, tt.user, tt.code)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	// exclusive signals require a recent subscription
	f.engine.now = func() time.Time { return time.Now().UTC().Add(5 * 24 * time.Hour) }
	f.signal(t, f.plan.Id, "EXCL02", 6*24*time.Hour, true)
	_, err := f.engine.UseSignal(ctx, f.user.Id, "EXCL02")
	assert.True(t, errors.Is(err, store.ErrValidation), "got %v", err)

	f.engine.now = func() time.Time { return time.Now().UTC() }
	_, err = f.engine.UseSignal(ctx, f.user.Id, "EXCL01")
	require.NoError(t, err)

	testutil.RequireDecimal(t, "20", testutil.Wallet(t, f.st, f.user.Id).Gains)
}

func TestSharedCodeResolvesToSubscribedPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	other := &models.Plan{Name: "Bronze", DurationDays: 30, MinAmount: testutil.Dec("1"), MaxAmount: testutil.Dec("99"),
		GainMultiplier: testutil.Dec("2"), SignalsPerDay: 4, IsActive: true}
	require.NoError(t, f.st.UpsertPlan(ctx, other))

	f.signal(t, other.Id, "SHARED", time.Hour, false)
	mine := f.signal(t, f.plan.Id, "SHARED", time.Hour, false)

	r, err := f.engine.UseSignal(ctx, f.user.Id, "SHARED")
	require.NoError(t, err)
	assert.Equal(t, mine.Id, r.Signal.Id)
	testutil.RequireDecimal(t, "20", r.Gain)
}

func TestGenerateAndCurrentSignal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	inactive := &models.Plan{Name: "Retired", DurationDays: 30, MinAmount: testutil.Dec("1"), MaxAmount: testutil.Dec("5"),
		GainMultiplier: testutil.Dec("1"), SignalsPerDay: 4, IsActive: false}
	require.NoError(t, f.st.UpsertPlan(ctx, inactive))
	second := &models.Plan{Name: "Platinum", DurationDays: 60, MinAmount: testutil.Dec("20000"), MaxAmount: testutil.Dec("90000"),
		GainMultiplier: testutil.Dec("12"), SignalsPerDay: 4, IsActive: true}
	require.NoError(t, f.st.UpsertPlan(ctx, second))

	created, err := f.engine.Generate(ctx, false)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, created[0].Code, created[1].Code)
	assert.Len(t, created[0].Code, 6)
	assert.Equal(t, f.plan.Id, created[0].PlanId)

	current, err := f.engine.GetCurrentSignal(ctx, f.user.Id)
	require.NoError(t, err)
	assert.Equal(t, created[0].Id, current.Signal.Id)
	assert.False(t, current.Used)

	_, err = f.engine.UseSignal(ctx, f.user.Id, created[0].Code)
	require.NoError(t, err)

	current, err = f.engine.GetCurrentSignal(ctx, f.user.Id)
	require.NoError(t, err)
	assert.True(t, current.Used)
}

func TestNewCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := NewCode()
		require.NoError(t, err)
		assert.Regexp(t, "^[A-Z0-9]{6}$", code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 40)
}
