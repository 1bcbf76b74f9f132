package referral

import (
	"context"
	"fmt"
	"testing"
	"time"

	"yield-ledger-go/internal/ledger"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"
	"yield-ledger-go/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLevels = []models.ReferralLevel{
	{Level: 0, MinReferrals: 0},
	{Level: 1, MinReferrals: 5, WeeklySalary: testutil.Dec("10")},
	{Level: 2, MinReferrals: 30, WeeklySalary: testutil.Dec("75.555")},
}

func seedLevels(t *testing.T, st store.Store) {
	t.Helper()
	for _, l := range testLevels {
		require.NoError(t, st.UpsertReferralLevel(context.Background(), l))
	}
}

func activate(t *testing.T, st store.Store, ldg *ledger.Service, userId string) {
	t.Helper()
	ctx := context.Background()
	err := st.Atomically(ctx, func(q store.Querier) error {
		w, err := q.GetWalletByUserId(ctx, userId)
		if err != nil {
			return err
		}
		_, err = ldg.Credit(ctx, q, w, ledger.Entry{Bucket: models.BucketInvested, Amount: testutil.Dec("100"), Type: models.TxInvestment})
		return err
	})
	require.NoError(t, err)
}

func TestSelectLevel(t *testing.T) {
	tests := []struct {
		name   string
		direct int
		team   int
		want   int
	}{
		{"nothing", 0, 0, 0},
		{"four direct", 4, 4, 0},
		{"five direct", 5, 5, 1},
		{"team without direct", 0, 40, 2},
		{"five direct large team", 5, 30, 2},
		{"team just short", 5, 29, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectLevel(testLevels, tt.direct, tt.team))
		})
	}
}

func TestLevelFromDirectThenTeam(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewStore(t)
	ldg := ledger.NewService(nil)
	seedLevels(t, st)
	tree := NewTree(st, ldg, nil)

	root := testutil.NewUser(t, st, "root@example.com", "")
	var direct []*models.User
	for i := 0; i < 5; i++ {
		u := testutil.NewUser(t, st, fmt.Sprintf("d%d@example.com", i), root.Id)
		activate(t, st, ldg, u.Id)
		direct = append(direct, u)
	}

	updated, err := tree.UpdateUserLevel(ctx, root.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ReferralLevel)
	assert.Equal(t, 5, updated.DirectActiveReferrals)

	// 25 more active users below the first direct referral
	parent := direct[0].Id
	for i := 0; i < 25; i++ {
		u := testutil.NewUser(t, st, fmt.Sprintf("t%d@example.com", i), parent)
		activate(t, st, ldg, u.Id)
		if i%5 == 4 {
			parent = u.Id
		}
	}

	// walking up from the deepest user reaches root
	deepest := testutil.NewUser(t, st, "leaf@example.com", parent)
	require.NoError(t, tree.UpdateUplineLevels(ctx, deepest.Id))

	stored, err := st.GetUserById(ctx, root.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ReferralLevel)
	assert.Equal(t, 5, stored.DirectActiveReferrals)
	assert.Equal(t, 30, stored.TotalActiveTeam)
}

func TestGraphsAgree(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewStore(t)
	ldg := ledger.NewService(nil)

	root := testutil.NewUser(t, st, "root@example.com", "")
	a := testutil.NewUser(t, st, "a@example.com", root.Id)
	b := testutil.NewUser(t, st, "b@example.com", root.Id)
	a1 := testutil.NewUser(t, st, "a1@example.com", a.Id)
	a2 := testutil.NewUser(t, st, "a2@example.com", a.Id)
	b1 := testutil.NewUser(t, st, "b1@example.com", b.Id)
	b11 := testutil.NewUser(t, st, "b11@example.com", b1.Id)
	other := testutil.NewUser(t, st, "other@example.com", "")
	for _, u := range []*models.User{a, a2, b1, b11} {
		activate(t, st, ldg, u.Id)
	}

	edges, err := st.ListReferralEdges(ctx)
	require.NoError(t, err)
	mem := NewMemoryGraph(edges)
	sql := NewSQLGraph(st)

	for _, u := range []*models.User{root, a, b, a1, a2, b1, b11, other} {
		wantDirect, err := sql.DirectActiveCount(ctx, u.Id)
		require.NoError(t, err)
		gotDirect, err := mem.DirectActiveCount(ctx, u.Id)
		require.NoError(t, err)
		assert.Equal(t, wantDirect, gotDirect, "direct count of %s", u.Email)

		wantTeam, err := sql.TotalActiveDescendantCount(ctx, u.Id)
		require.NoError(t, err)
		gotTeam, err := mem.TotalActiveDescendantCount(ctx, u.Id)
		require.NoError(t, err)
		assert.Equal(t, wantTeam, gotTeam, "team count of %s", u.Email)
	}

	team, _ := mem.TotalActiveDescendantCount(ctx, root.Id)
	assert.Equal(t, 4, team)
}

func TestRecalculateAllAndSalaries(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewStore(t)
	ldg := ledger.NewService(nil)
	seedLevels(t, st)
	tree := NewTree(st, ldg, nil)

	root := testutil.NewUser(t, st, "root@example.com", "")
	for i := 0; i < 5; i++ {
		u := testutil.NewUser(t, st, fmt.Sprintf("d%d@example.com", i), root.Id)
		activate(t, st, ldg, u.Id)
	}

	changed, err := tree.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	changed, err = tree.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	now := time.Now().UTC()
	paid, err := tree.DistributeWeeklySalaries(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, paid)

	paid, err = tree.DistributeWeeklySalaries(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, paid)

	w := testutil.Wallet(t, st, root.Id)
	testutil.RequireDecimal(t, "10", w.Spendable)
	tx, err := st.GetTransactionByIdempotencyKey(ctx, SalaryKey(root.Id, now))
	require.NoError(t, err)
	assert.Equal(t, models.TxReferralSalary, tx.Type)
}

func TestSalaryPaidEveryWeek(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewStore(t)
	ldg := ledger.NewService(nil)
	seedLevels(t, st)
	tree := NewTree(st, ldg, nil)

	root := testutil.NewUser(t, st, "weekly@example.com", "")
	for i := 0; i < 5; i++ {
		u := testutil.NewUser(t, st, fmt.Sprintf("w%d@example.com", i), root.Id)
		activate(t, st, ldg, u.Id)
	}
	_, err := tree.RecalculateAll(ctx)
	require.NoError(t, err)

	now := time.Now().UTC()
	paid, err := tree.DistributeWeeklySalaries(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, paid)

	nextWeek := now.Add(7 * 24 * time.Hour)
	paid, err = tree.DistributeWeeklySalaries(ctx, nextWeek)
	require.NoError(t, err)
	assert.Equal(t, 1, paid)

	paid, err = tree.DistributeWeeklySalaries(ctx, nextWeek)
	require.NoError(t, err)
	assert.Equal(t, 0, paid)

	testutil.RequireDecimal(t, "20", testutil.Wallet(t, st, root.Id).Spendable)
}

func TestSalaryKey(t *testing.T) {
	at := time.Date(2025, time.December, 29, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "referral_salary:u1:2026-W01", SalaryKey("u1", at))
}
