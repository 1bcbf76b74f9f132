package bonus

import (
	"context"
	"testing"

	"yield-ledger-go/internal/ledger"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"
	"yield-ledger-go/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRewards() models.RewardsConfig {
	return models.RewardsConfig{
		WelcomeBonus:           testutil.Dec("20"),
		BonusTransferThreshold: testutil.Dec("100"),
		BonusTransferCap:       testutil.Dec("5"),
		ReferrerBonus:          testutil.Dec("10"),
		ReferrerAirdropBonus:   testutil.Dec("500"),
		RefereeBonus:           testutil.Dec("5"),
	}
}

func newEngine(t *testing.T) (*Engine, store.Store, *ledger.Service) {
	st := testutil.NewStore(t)
	ldg := ledger.NewService(nil)
	return NewEngine(st, ldg, testRewards(), nil), st, ldg
}

// invest credits a deposit and moves it to invested, then applies the bonus transfer.
func invest(t *testing.T, e *Engine, st store.Store, ldg *ledger.Service, userId, amount string) {
	t.Helper()
	ctx := context.Background()
	err := st.Atomically(ctx, func(q store.Querier) error {
		w, err := q.GetWalletByUserId(ctx, userId)
		if err != nil {
			return err
		}
		if _, err := ldg.Credit(ctx, q, w, ledger.Entry{Bucket: models.BucketSpendable, Amount: testutil.Dec(amount), Type: models.TxDeposit}); err != nil {
			return err
		}
		if _, err := ldg.TransferBucket(ctx, q, w, models.BucketSpendable, ledger.Entry{Bucket: models.BucketInvested, Amount: testutil.Dec(amount), Type: models.TxInvestment}); err != nil {
			return err
		}
		_, err = e.TransferBonusToInvestment(ctx, q, w, testutil.Dec(amount), "")
		return err
	})
	require.NoError(t, err)
}

func TestWelcomeBonusGrantedOnce(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newEngine(t)
	user := testutil.NewUser(t, st, "alice@example.com", "")

	tx, err := e.GrantWelcomeBonusForUser(ctx, user.Id)
	require.NoError(t, err)
	require.NotNil(t, tx)

	tx, err = e.GrantWelcomeBonusForUser(ctx, user.Id)
	require.NoError(t, err)
	assert.Nil(t, tx)

	w := testutil.Wallet(t, st, user.Id)
	testutil.RequireDecimal(t, "20", w.Bonus)
	n, err := st.CountTransactions(ctx, w.Id, models.TxBonus, models.TxStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBonusTransferBelowThreshold(t *testing.T) {
	ctx := context.Background()
	e, st, ldg := newEngine(t)
	user := testutil.NewUser(t, st, "bob@example.com", "")

	_, err := e.GrantWelcomeBonusForUser(ctx, user.Id)
	require.NoError(t, err)

	invest(t, e, st, ldg, user.Id, "50")

	w := testutil.Wallet(t, st, user.Id)
	testutil.RequireDecimal(t, "15", w.Bonus)
	testutil.RequireDecimal(t, "55", w.Invested)
	testutil.RequireDecimal(t, "0", w.Spendable)

	txs, err := st.ListTransactions(ctx, w.Id, 20, 0)
	require.NoError(t, err)
	require.NoError(t, ledger.Reconcile(w, txs))
}

func TestBonusTransferAmount(t *testing.T) {
	e := NewEngine(nil, nil, testRewards(), nil)
	tests := []struct {
		name     string
		bonus    string
		invested string
		want     string
	}{
		{"below threshold caps", "20", "50", "5"},
		{"below threshold small bonus", "3", "50", "3"},
		{"at threshold moves all", "20", "100", "20"},
		{"no bonus", "0", "500", "0"},
		{"no investment", "20", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.BonusTransferAmount(testutil.Dec(tt.bonus), testutil.Dec(tt.invested))
			testutil.RequireDecimal(t, tt.want, got)
		})
	}
}

func TestReferralDepositBonus(t *testing.T) {
	ctx := context.Background()
	e, st, ldg := newEngine(t)
	referrer := testutil.NewUser(t, st, "ref@example.com", "")
	user := testutil.NewUser(t, st, "new@example.com", referrer.Id)

	// no deposit yet
	require.NoError(t, e.ProcessReferralDepositBonus(ctx, user.Id))
	testutil.RequireDecimal(t, "0", testutil.Wallet(t, st, referrer.Id).Spendable)

	deposit := func() {
		err := st.Atomically(ctx, func(q store.Querier) error {
			w, err := q.GetWalletByUserId(ctx, user.Id)
			if err != nil {
				return err
			}
			_, err = ldg.Credit(ctx, q, w, ledger.Entry{Bucket: models.BucketSpendable, Amount: testutil.Dec("50"), Type: models.TxDeposit})
			return err
		})
		require.NoError(t, err)
	}

	deposit()
	require.NoError(t, e.ProcessReferralDepositBonus(ctx, user.Id))
	require.NoError(t, e.ProcessReferralDepositBonus(ctx, user.Id))

	rw := testutil.Wallet(t, st, referrer.Id)
	testutil.RequireDecimal(t, "10", rw.Spendable)
	testutil.RequireDecimal(t, "500", rw.Airdrop)
	testutil.RequireDecimal(t, "5", testutil.Wallet(t, st, user.Id).Bonus)

	_, err := st.GetTransactionByIdempotencyKey(ctx, ReferralBonusKey(referrer.Id, user.Id))
	require.NoError(t, err)

	// a second deposit never grants again
	deposit()
	require.NoError(t, e.ProcessReferralDepositBonus(ctx, user.Id))
	testutil.RequireDecimal(t, "10", testutil.Wallet(t, st, referrer.Id).Spendable)
}

func TestReferralDepositBonusLosesRace(t *testing.T) {
	ctx := context.Background()
	e, st, ldg := newEngine(t)
	referrer := testutil.NewUser(t, st, "racer@example.com", "")
	user := testutil.NewUser(t, st, "raced@example.com", referrer.Id)

	credit := func(userId string, entry ledger.Entry) {
		err := st.Atomically(ctx, func(q store.Querier) error {
			w, err := q.GetWalletByUserId(ctx, userId)
			if err != nil {
				return err
			}
			_, err = ldg.Credit(ctx, q, w, entry)
			return err
		})
		require.NoError(t, err)
	}
	credit(user.Id, ledger.Entry{Bucket: models.BucketSpendable, Amount: testutil.Dec("50"), Type: models.TxDeposit})
	// a concurrent grant already wrote the airdrop row but not the spendable one
	credit(referrer.Id, ledger.Entry{
		Bucket:         models.BucketAirdrop,
		Amount:         testutil.Dec("500"),
		Type:           models.TxReferralAirdropBonus,
		IdempotencyKey: ReferralAirdropBonusKey(referrer.Id, user.Id),
	})

	require.NoError(t, e.ProcessReferralDepositBonus(ctx, user.Id))

	rw := testutil.Wallet(t, st, referrer.Id)
	testutil.RequireDecimal(t, "0", rw.Spendable)
	testutil.RequireDecimal(t, "500", rw.Airdrop)
	testutil.RequireDecimal(t, "0", testutil.Wallet(t, st, user.Id).Bonus)

	_, err := st.GetTransactionByIdempotencyKey(ctx, ReferralBonusKey(referrer.Id, user.Id))
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetTransactionByIdempotencyKey(ctx, ReferralWelcomeKey(user.Id))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReferralDepositBonusWithoutReferrer(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newEngine(t)
	user := testutil.NewUser(t, st, "solo@example.com", "")

	require.NoError(t, e.ProcessReferralDepositBonus(ctx, user.Id))
	w := testutil.Wallet(t, st, user.Id)
	assert.True(t, w.Total().IsZero())
}
