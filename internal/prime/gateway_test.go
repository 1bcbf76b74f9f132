package prime

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"

	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/shopspring/decimal"
)

type fakePrime struct {
	deposits  []models.PrimeDeposit
	err       error
	walletIds []string
	next      int
}

func (f *fakePrime) ListDeposits(_ context.Context, _, walletId string, _ time.Time) ([]models.PrimeDeposit, error) {
	f.walletIds = append(f.walletIds, walletId)
	return f.deposits, f.err
}

func (f *fakePrime) CreateDepositAddress(_ context.Context, _, walletId, currency, primeNetwork string) (*models.DepositAddress, error) {
	f.next++
	return &models.DepositAddress{
		Address:   fmt.Sprintf("0xaddr%d", f.next),
		Network:   primeNetwork,
		Currency:  currency,
		WalletRef: walletId,
	}, nil
}

var testAssets = []models.MonitoredAsset{
	{Symbol: "USDT", Network: "ERC20", PrimeNetwork: "ethereum-mainnet", WalletId: "wallet-eth"},
	{Symbol: "USDT", Network: "BEP20", PrimeNetwork: "bsc-mainnet", WalletId: "wallet-bsc"},
}

func TestGatewayBalanceSumsImportedDeposits(t *testing.T) {
	fake := &fakePrime{deposits: []models.PrimeDeposit{
		{Id: "1", Status: StatusImported, Amount: decimal.NewFromInt(30), Address: "0xABC", TxHash: "0xh1"},
		{Id: "2", Status: StatusImported, Amount: decimal.NewFromInt(20), AccountIdentifier: "0xabc", TxHash: "0xh2"},
		{Id: "3", Status: "TRANSACTION_IMPORT_PENDING", Amount: decimal.NewFromInt(99), Address: "0xabc"},
		{Id: "4", Status: StatusImported, Amount: decimal.NewFromInt(7), Address: "0xother"},
	}}
	g := newGateway(fake, fake, "portfolio", testAssets, time.Hour)

	balance, err := g.GetBalance(context.Background(), "0xabc", "erc20")
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("balance = %s, want 50", balance)
	}
	if len(fake.walletIds) != 1 || fake.walletIds[0] != "wallet-eth" {
		t.Errorf("queried wallets = %v, want [wallet-eth]", fake.walletIds)
	}
}

func TestGatewayErrors(t *testing.T) {
	fake := &fakePrime{err: fmt.Errorf("%w: rate limited", store.ErrExternalService)}
	g := newGateway(fake, fake, "portfolio", testAssets, time.Hour)

	if _, err := g.GetBalance(context.Background(), "0xabc", "ERC20"); !errors.Is(err, store.ErrExternalService) {
		t.Errorf("expected external service error, got %v", err)
	}
	if _, err := g.GetDeposits(context.Background(), "0xabc", "TRC20", time.Hour); !errors.Is(err, store.ErrValidation) {
		t.Errorf("expected validation error for unmonitored network, got %v", err)
	}
}

func TestGatewayNewAddress(t *testing.T) {
	fake := &fakePrime{}
	g := newGateway(fake, fake, "portfolio", testAssets, time.Hour)

	addr, ref, err := g.NewAddress(context.Background(), "USDT", "BEP20")
	if err != nil {
		t.Fatalf("NewAddress error: %v", err)
	}
	if addr != "0xaddr1" || ref != "wallet-bsc" {
		t.Errorf("NewAddress() = (%q, %q)", addr, ref)
	}

	if _, _, err := g.NewAddress(context.Background(), "BTC", "ERC20"); !errors.Is(err, store.ErrValidation) {
		t.Errorf("expected validation error for wrong currency, got %v", err)
	}
}

type pagedTransactions struct {
	transactions.TransactionsService
	pages   [][]*model.Transaction
	cursors []string
}

func (p *pagedTransactions) ListWalletTransactions(_ context.Context, request *transactions.ListWalletTransactionsRequest) (*transactions.ListWalletTransactionsResponse, error) {
	p.cursors = append(p.cursors, request.Pagination.Cursor)
	page := len(p.cursors) - 1
	response := &transactions.ListWalletTransactionsResponse{Transactions: p.pages[page]}
	if page < len(p.pages)-1 {
		response.Pagination = &model.Pagination{HasNext: true, NextCursor: fmt.Sprintf("cursor-%d", page+1)}
	}
	return response, nil
}

func TestListDepositsFollowsCursor(t *testing.T) {
	paged := &pagedTransactions{pages: [][]*model.Transaction{
		{{Id: "1", Status: StatusImported, Amount: "10", TransferTo: &model.Transfer{Address: "0xabc"}}},
		{{Id: "2", Status: StatusImported, Amount: "bad"}},
		{{Id: "3", Status: StatusImported, Amount: "5", TransferTo: &model.Transfer{Address: "0xlate"}, BlockchainIds: []string{"0xh3"}}},
	}}
	svc := &Service{transactionsSvc: paged}

	deposits, err := svc.ListDeposits(context.Background(), "portfolio", "wallet", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListDeposits error: %v", err)
	}
	if len(deposits) != 2 {
		t.Fatalf("deposits = %d, want 2", len(deposits))
	}
	if deposits[1].Address != "0xlate" || deposits[1].TxHash != "0xh3" {
		t.Errorf("last page deposit = %+v", deposits[1])
	}
	want := []string{"", "cursor-1", "cursor-2"}
	if fmt.Sprint(paged.cursors) != fmt.Sprint(want) {
		t.Errorf("cursors = %v, want %v", paged.cursors, want)
	}
}
