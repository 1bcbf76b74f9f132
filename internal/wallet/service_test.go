package wallet

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

func newService(t *testing.T) (*Service, store.Store, *ledger.Service) {
	st := testutil.NewStore(t)
	ldg := ledger.NewService(nil)
	rewards := models.RewardsConfig{
		DailyAirdrop:      testutil.Dec("100"),
		WithdrawalFeeRate: testutil.Dec("0.05"),
	}
	return NewService(st, ldg, rewards, nil), st, ldg
}

func credit(t *testing.T, st store.Store, ldg *ledger.Service, userId string, bucket models.Bucket, amount string) {
	t.Helper()
	ctx := context.Background()
	err := st.Atomically(ctx, func(q store.Querier) error {
		w, err := q.GetWalletByUserId(ctx, userId)
		if err != nil {
			return err
		}
		_, err = ldg.Credit(ctx, q, w, ledger.Entry{Bucket: bucket, Amount: testutil.Dec(amount), Type: models.TxDeposit})
		return err
	})
	require.NoError(t, err)
}

func requireReconciled(t *testing.T, st store.Store, userId string) {
	t.Helper()
	w := testutil.Wallet(t, st, userId)
	txs, err := st.ListTransactions(context.Background(), w.Id, 100, 0)
	require.NoError(t, err)
	require.NoError(t, ledger.Reconcile(w, txs))
}

func TestClaimGains(t *testing.T) {
	ctx := context.Background()
	svc, st, ldg := newService(t)
	user := testutil.NewUser(t, st, "alice@example.com", "")

	_, err := svc.ClaimGains(ctx, user.Id)
	assert.True(t, errors.Is(err, store.ErrValidation), "got %v", err)

	credit(t, st, ldg, user.Id, models.BucketGains, "12.34567891")
	tx, err := svc.ClaimGains(ctx, user.Id)
	require.NoError(t, err)
	assert.Equal(t, models.BucketGains, tx.CounterBucket)

	w := testutil.Wallet(t, st, user.Id)
	testutil.RequireDecimal(t, "0", w.Gains)
	testutil.RequireDecimal(t, "12.34567891", w.Spendable)
	requireReconciled(t, st, user.Id)
}

func TestClaimAirdropOncePerDay(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)
	user := testutil.NewUser(t, st, "bob@example.com", "")

	day := time.Date(2025, time.March, 10, 23, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return day }

	_, err := svc.ClaimAirdrop(ctx, user.Id)
	require.NoError(t, err)

	svc.now = func() time.Time { return day.Add(20 * time.Minute) }
	_, err = svc.ClaimAirdrop(ctx, user.Id)
	assert.True(t, errors.Is(err, store.ErrConflict), "got %v", err)

	svc.now = func() time.Time { return day.Add(40 * time.Minute) }
	_, err = svc.ClaimAirdrop(ctx, user.Id)
	require.NoError(t, err)

	w := testutil.Wallet(t, st, user.Id)
	testutil.RequireDecimal(t, "200", w.Airdrop)
	require.NotNil(t, w.AirdropLastClaimedAt)
	assert.Equal(t, 11, w.AirdropLastClaimedAt.UTC().Day())

	_, err = st.GetTransactionByIdempotencyKey(ctx, AirdropKey(user.Id, day))
	require.NoError(t, err)
}

func TestWithdrawalFee(t *testing.T) {
	svc, _, _ := newService(t)
	tests := []struct{ amount, want string }{
		{"100", "5"},
		{"33.33", "1.67"},
		{"0.1", "0.01"},
		{"0.05", "0"},
	}
	for _, tt := range tests {
		testutil.RequireDecimal(t, tt.want, svc.WithdrawalFee(testutil.Dec(tt.amount)), tt.amount)
	}
}

func TestWithdrawalApproveConfirm(t *testing.T) {
	ctx := context.Background()
	svc, st, ldg := newService(t)
	user := testutil.NewUser(t, st, "carol@example.com", "")
	credit(t, st, ldg, user.Id, models.BucketSpendable, "110")

	_, err := svc.RequestWithdrawal(ctx, user.Id, testutil.Dec("105"), "0xdest")
	assert.True(t, errors.Is(err, store.ErrInsufficientFunds), "got %v", err)

	w, err := svc.RequestWithdrawal(ctx, user.Id, testutil.Dec("100"), "0xdest")
	require.NoError(t, err)
	require.NotNil(t, w.Fee)
	assert.Equal(t, models.TxStatusPendingApproval, w.Transaction.Status)
	testutil.RequireDecimal(t, "-100", w.Transaction.Amount)
	testutil.RequireDecimal(t, "-5", w.Fee.Amount)
	testutil.RequireDecimal(t, "5", testutil.Wallet(t, st, user.Id).Spendable)

	_, err = svc.ConfirmWithdrawal(ctx, w.Transaction.Id)
	assert.True(t, errors.Is(err, store.ErrConflict), "got %v", err)

	tx, err := svc.ApproveWithdrawal(ctx, w.Transaction.Id)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusProcessingWithdrawal, tx.Status)

	tx, err = svc.ConfirmWithdrawal(ctx, w.Transaction.Id)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCompleted, tx.Status)

	_, err = svc.RejectWithdrawal(ctx, w.Transaction.Id, "too late")
	assert.True(t, errors.Is(err, store.ErrConflict), "got %v", err)

	_, err = svc.ApproveWithdrawal(ctx, w.Fee.Id)
	assert.True(t, errors.Is(err, store.ErrValidation), "got %v", err)

	requireReconciled(t, st, user.Id)
}

func TestWithdrawalReject(t *testing.T) {
	ctx := context.Background()
	svc, st, ldg := newService(t)
	user := testutil.NewUser(t, st, "dave@example.com", "")
	credit(t, st, ldg, user.Id, models.BucketSpendable, "50")

	w, err := svc.RequestWithdrawal(ctx, user.Id, testutil.Dec("40"), "0xdest")
	require.NoError(t, err)
	_, err = svc.ApproveWithdrawal(ctx, w.Transaction.Id)
	require.NoError(t, err)

	refund, err := svc.RejectWithdrawal(ctx, w.Transaction.Id, "address flagged")
	require.NoError(t, err)
	testutil.RequireDecimal(t, "42", refund.Amount)
	assert.Equal(t, RefundKey(w.Transaction.Id), refund.IdempotencyKey)

	testutil.RequireDecimal(t, "50", testutil.Wallet(t, st, user.Id).Spendable)

	for _, id := range []string{w.Transaction.Id, w.Fee.Id} {
		tx, err := st.GetTransaction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.TxStatusRejected, tx.Status)
	}

	_, err = svc.RejectWithdrawal(ctx, w.Transaction.Id, "")
	assert.True(t, errors.Is(err, store.ErrConflict), "got %v", err)

	requireReconciled(t, st, user.Id)
}

func TestWithdrawalValidation(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)
	user := testutil.NewUser(t, st, "erin@example.com", "")

	_, err := svc.RequestWithdrawal(ctx, user.Id, testutil.Dec("-1"), "0xdest")
	assert.True(t, errors.Is(err, store.ErrValidation))
	_, err = svc.RequestWithdrawal(ctx, user.Id, testutil.Dec("1"), "  ")
	assert.True(t, errors.Is(err, store.ErrValidation))
	_, err = svc.ApproveWithdrawal(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
