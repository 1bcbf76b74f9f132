package deposit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"yield-ledger-go/internal/gateway"
	"yield-ledger-go/internal/ledger"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"
	"yield-ledger-go/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	failing  map[string]bool
	hashes   map[string]string
	calls    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		balances: map[string]decimal.Decimal{},
		failing:  map[string]bool{},
		hashes:   map[string]string{},
	}
}

func (g *fakeGateway) GetBalance(_ context.Context, address, _ string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failing[address] {
		return decimal.Zero, fmt.Errorf("%w: rate limited", gateway.ErrExternalService)
	}
	return g.balances[address], nil
}

func (g *fakeGateway) GetDeposits(_ context.Context, address, _ string, _ time.Duration) ([]gateway.InboundTransfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	hash, ok := g.hashes[address]
	if !ok {
		return nil, fmt.Errorf("%w: explorer down", gateway.ErrExternalService)
	}
	return []gateway.InboundTransfer{{TxHash: hash, Amount: g.balances[address], Timestamp: time.Now()}}, nil
}

type recordingBonus struct {
	mu      sync.Mutex
	userIds []string
}

func (b *recordingBonus) ProcessReferralDepositBonus(_ context.Context, userId string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.userIds = append(b.userIds, userId)
	return nil
}

func newIntent(t *testing.T, st store.Store, userId, address, network string) *models.DepositIntent {
	t.Helper()
	intent := &models.DepositIntent{
		UserId:    userId,
		Currency:  "USDT",
		Network:   network,
		Address:   address,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, st.InsertDepositIntent(context.Background(), intent))
	return intent
}

func newReconciler(st store.Store, gw gateway.BlockchainGateway, bonus FirstDepositHandler) *Reconciler {
	return NewReconciler(st, ledger.NewService(nil), gw, bonus, nil, models.ReconcilerConfig{
		SweepConcurrency: 4,
		LookbackWindow:   time.Hour,
	})
}

func depositCount(t *testing.T, st store.Store, userId string) int {
	t.Helper()
	w := testutil.Wallet(t, st, userId)
	n, err := st.CountTransactions(context.Background(), w.Id, models.TxDeposit, models.TxStatusCompleted)
	require.NoError(t, err)
	return n
}

func TestReconcileCreditsOnce(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewStore(t)
	user := testutil.NewUser(t, st, "alice@example.com", "")
	intent := newIntent(t, st, user.Id, "0xaaa", "ERC20")

	gw := newFakeGateway()
	gw.balances["0xaaa"] = testutil.Dec("50")
	gw.hashes["0xaaa"] = "0xhash1"
	bonus := &recordingBonus{}
	r := newReconciler(st, gw, bonus)

	result, err := r.ProcessPendingForUser(ctx, user.Id)
	require.NoError(t, err)
	assert.Equal(t, PassResult{Credited: 1}, result)

	result, err = r.ProcessPendingForUser(ctx, user.Id)
	require.NoError(t, err)
	assert.Equal(t, PassResult{}, result)

	w := testutil.Wallet(t, st, user.Id)
	testutil.RequireDecimal(t, "50", w.Spendable)
	assert.Equal(t, 1, depositCount(t, st, user.Id))

	tx, err := st.GetTransactionByIdempotencyKey(ctx, "deposit:"+intent.Id)
	require.NoError(t, err)
	assert.Contains(t, tx.Description, "TXID: 0xhash1")
	assert.Equal(t, intent.Id, tx.Reference)

	pending, err := st.ListPendingIntents(ctx, user.Id)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, []string{user.Id}, bonus.userIds)
}

func TestConcurrentPassesCreditOnce(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewStore(t)
	user := testutil.NewUser(t, st, "bob@example.com", "")
	newIntent(t, st, user.Id, "0xbbb", "BEP20")

	gw := newFakeGateway()
	gw.balances["0xbbb"] = testutil.Dec("50")
	r := newReconciler(st, gw, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.ProcessPendingForUser(ctx, user.Id)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, depositCount(t, st, user.Id))
	testutil.RequireDecimal(t, "50", testutil.Wallet(t, st, user.Id).Spendable)

	w := testutil.Wallet(t, st, user.Id)
	txs, err := st.ListTransactions(ctx, w.Id, 10, 0)
	require.NoError(t, err)
	require.NoError(t, ledger.Reconcile(w, txs))
}

func TestGatewayFailureSkipsOnlyThatIntent(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewStore(t)
	user := testutil.NewUser(t, st, "carol@example.com", "")
	broken := newIntent(t, st, user.Id, "0xbroken", "ERC20")
	newIntent(t, st, user.Id, "0xgood", "BEP20")

	gw := newFakeGateway()
	gw.failing["0xbroken"] = true
	gw.balances["0xgood"] = testutil.Dec("12.5")
	r := newReconciler(st, gw, nil)

	result, err := r.ProcessPendingForUser(ctx, user.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Credited)
	assert.Equal(t, 1, result.Skipped)

	pending, err := st.ListPendingIntents(ctx, user.Id)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, broken.Id, pending[0].Id)

	// no hash available: the description falls back to the address
	w := testutil.Wallet(t, st, user.Id)
	txs, err := st.ListTransactions(ctx, w.Id, 10, 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Contains(t, txs[0].Description, "Address: 0xgood")
}

func TestNothingToCredit(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewStore(t)
	user := testutil.NewUser(t, st, "dave@example.com", "")
	newIntent(t, st, user.Id, "0xempty", "ERC20")
	newIntent(t, st, user.Id, "Tron1", "TRC20")

	gw := newFakeGateway()
	gw.balances["Tron1"] = testutil.Dec("99")
	r := newReconciler(st, gw, nil)

	result, err := r.ProcessPendingForUser(ctx, user.Id)
	require.NoError(t, err)
	assert.Equal(t, PassResult{}, result)
	assert.Equal(t, 1, gw.calls, "unsupported networks must not reach the gateway")

	pending, err := st.ListPendingIntents(ctx, user.Id)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestSweepAndTrigger(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewStore(t)
	gw := newFakeGateway()

	var users []*models.User
	for i := 0; i < 5; i++ {
		u := testutil.NewUser(t, st, fmt.Sprintf("user%d@example.com", i), "")
		addr := fmt.Sprintf("0x%d", i)
		newIntent(t, st, u.Id, addr, "ERC20")
		gw.balances[addr] = decimal.NewFromInt(int64(10 * (i + 1)))
		users = append(users, u)
	}
	r := newReconciler(st, gw, nil)

	credited, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, credited)
	testutil.RequireDecimal(t, "30", testutil.Wallet(t, st, users[2].Id).Spendable)

	late := testutil.NewUser(t, st, "late@example.com", "")
	newIntent(t, st, late.Id, "0xlate", "BEP20")
	gw.mu.Lock()
	gw.balances["0xlate"] = testutil.Dec("7")
	gw.mu.Unlock()

	r.Trigger(late.Id)
	r.Wait()
	testutil.RequireDecimal(t, "7", testutil.Wallet(t, st, late.Id).Spendable)
}

type panickingGateway struct {
	*fakeGateway
	bad string
}

func (g *panickingGateway) GetBalance(ctx context.Context, address, network string) (decimal.Decimal, error) {
	if address == g.bad {
		panic("provider returned malformed payload")
	}
	return g.fakeGateway.GetBalance(ctx, address, network)
}

func TestSweepContainsPanickingPass(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewStore(t)
	bad := testutil.NewUser(t, st, "bad@example.com", "")
	good := testutil.NewUser(t, st, "good@example.com", "")
	newIntent(t, st, bad.Id, "0xbad", "ERC20")
	newIntent(t, st, good.Id, "0xgood", "ERC20")

	gw := &panickingGateway{fakeGateway: newFakeGateway(), bad: "0xbad"}
	gw.balances["0xgood"] = testutil.Dec("25")
	r := newReconciler(st, gw, nil)

	var credited int
	require.NotPanics(t, func() {
		var err error
		credited, err = r.Sweep(ctx)
		require.NoError(t, err)
	})
	assert.Equal(t, 1, credited)
	testutil.RequireDecimal(t, "25", testutil.Wallet(t, st, good.Id).Spendable)
	testutil.RequireDecimal(t, "0", testutil.Wallet(t, st, bad.Id).Spendable)

	// the store is still writable after the aborted pass
	pending, err := st.ListPendingIntents(ctx, bad.Id)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

type slowGateway struct {
	*fakeGateway
	delay time.Duration
}

func (g *slowGateway) GetBalance(ctx context.Context, address, network string) (decimal.Decimal, error) {
	time.Sleep(g.delay)
	return g.fakeGateway.GetBalance(ctx, address, network)
}

func TestSlowGatewayDoesNotSerializeUsers(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewStore(t)
	gw := &slowGateway{fakeGateway: newFakeGateway(), delay: 300 * time.Millisecond}

	var users []*models.User
	for i := 0; i < 4; i++ {
		u := testutil.NewUser(t, st, fmt.Sprintf("slow%d@example.com", i), "")
		addr := fmt.Sprintf("0xslow%d", i)
		newIntent(t, st, u.Id, addr, "BEP20")
		gw.balances[addr] = testutil.Dec("10")
		users = append(users, u)
	}
	r := newReconciler(st, gw, nil)

	start := time.Now()
	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, userId string) {
			defer wg.Done()
			_, errs[i] = r.ProcessPendingForUser(ctx, userId)
		}(i, u.Id)
	}
	wg.Wait()
	elapsed := time.Since(start)

	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, u := range users {
		testutil.RequireDecimal(t, "10", testutil.Wallet(t, st, u.Id).Spendable)
	}
	assert.Less(t, elapsed, 900*time.Millisecond, "gateway calls ran one user at a time")
}

func TestPollerStopWithoutStart(t *testing.T) {
	st := testutil.NewStore(t)
	p := NewPoller(newReconciler(st, newFakeGateway(), nil), time.Hour)

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a poller that was never started")
	}

	// Start after Stop is a no-op
	p.Start(context.Background())
	p.Stop()
}

type fakeGenerator struct {
	next    int
	reuse   string
	lastNet string
}

func (g *fakeGenerator) NewAddress(_ context.Context, _, network string) (string, string, error) {
	g.lastNet = network
	if g.reuse != "" {
		return g.reuse, "wallet", nil
	}
	g.next++
	return fmt.Sprintf("0xnew%d", g.next), "wallet", nil
}

func TestIssuer(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewStore(t)
	user := testutil.NewUser(t, st, "erin@example.com", "")
	gen := &fakeGenerator{}
	issuer := NewIssuer(st, gen, time.Hour)

	first, err := issuer.Issue(ctx, user.Id, "usdt", "erc20")
	require.NoError(t, err)
	assert.Equal(t, "USDT", first.Currency)
	assert.Equal(t, "ERC20", first.Network)
	assert.Equal(t, "ERC20", gen.lastNet)

	again, err := issuer.Issue(ctx, user.Id, "USDT", "ERC20")
	require.NoError(t, err)
	assert.Equal(t, first.Id, again.Id)
	assert.Equal(t, 1, gen.next)

	// a completed intent is never reused
	ok, err := st.CompleteIntent(ctx, first.Id, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	fresh, err := issuer.Issue(ctx, user.Id, "USDT", "ERC20")
	require.NoError(t, err)
	assert.NotEqual(t, first.Address, fresh.Address)

	// an expired intent is replaced
	issuer.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	replaced, err := issuer.Issue(ctx, user.Id, "USDT", "ERC20")
	require.NoError(t, err)
	assert.NotEqual(t, fresh.Id, replaced.Id)

	_, err = issuer.Issue(ctx, user.Id, "USDT", "TRC20")
	assert.True(t, errors.Is(err, store.ErrValidation))

	gen.reuse = first.Address
	_, err = issuer.Issue(ctx, user.Id, "USDT", "BEP20")
	assert.True(t, errors.Is(err, store.ErrConflict), "got %v", err)
	assert.True(t, strings.Contains(err.Error(), first.Address))
}
