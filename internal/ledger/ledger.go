package ledger

import (
	"context"
	"fmt"
	"time"

	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const mirrorTimeout = 30 * time.Second

// Mirror receives every committed ledger row.
type Mirror interface {
	Post(ctx context.Context, tx models.Transaction) error
}

// Entry describes one ledger mutation.
type Entry struct {
	Bucket                models.Bucket
	Amount                decimal.Decimal
	Type                  models.TransactionType
	Status                string
	Description           string
	IdempotencyKey        string
	Reference             string
	RelatedSubscriptionId string
}

// Service owns wallet buckets and the transaction log. Every method takes the
// Querier of the caller's atomic unit so the balance write and the log row
// commit together.
type Service struct {
	mirror Mirror
}

// NewService creates a ledger. mirror may be nil.
func NewService(mirror Mirror) *Service {
	return &Service{mirror: mirror}
}

// Credit adds amount to a bucket.
func (s *Service) Credit(ctx context.Context, q store.Querier, wallet *models.Wallet, e Entry) (*models.Transaction, error) {
	amount, err := validate(wallet, e)
	if err != nil {
		return nil, err
	}
	before := wallet.Balance(e.Bucket)
	return s.apply(ctx, q, wallet, e, amount, before, before.Add(amount), "")
}

// Debit removes amount from a bucket. The row carries a negative amount.
func (s *Service) Debit(ctx context.Context, q store.Querier, wallet *models.Wallet, e Entry) (*models.Transaction, error) {
	amount, err := validate(wallet, e)
	if err != nil {
		return nil, err
	}
	before := wallet.Balance(e.Bucket)
	if before.LessThan(amount) {
		return nil, fmt.Errorf("%w: %s balance %s is below %s", store.ErrInsufficientFunds, e.Bucket, before, amount)
	}
	return s.apply(ctx, q, wallet, e, amount.Neg(), before, before.Sub(amount), "")
}

// TransferBucket moves amount from one bucket to e.Bucket. The row records the
// destination in bucket, the source in counter_bucket and a positive amount.
func (s *Service) TransferBucket(ctx context.Context, q store.Querier, wallet *models.Wallet, from models.Bucket, e Entry) (*models.Transaction, error) {
	amount, err := validate(wallet, e)
	if err != nil {
		return nil, err
	}
	if !from.Valid() || from == e.Bucket {
		return nil, fmt.Errorf("%w: cannot transfer from %q to %q", store.ErrValidation, from, e.Bucket)
	}
	source := wallet.Balance(from)
	if source.LessThan(amount) {
		return nil, fmt.Errorf("%w: %s balance %s is below %s", store.ErrInsufficientFunds, from, source, amount)
	}
	wallet.SetBalance(from, source.Sub(amount))
	before := wallet.Balance(e.Bucket)
	tx, err := s.apply(ctx, q, wallet, e, amount, before, before.Add(amount), from)
	if err != nil {
		wallet.SetBalance(from, source)
		return nil, err
	}
	return tx, nil
}

// Record writes a zero-amount audit row without touching any balance.
func (s *Service) Record(ctx context.Context, q store.Querier, wallet *models.Wallet, e Entry) (*models.Transaction, error) {
	if !e.Bucket.Valid() {
		return nil, fmt.Errorf("%w: unknown bucket %q", store.ErrValidation, e.Bucket)
	}
	balance := wallet.Balance(e.Bucket)
	tx := newTransaction(wallet, e, decimal.Zero, balance, balance, "")
	if err := q.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func validate(wallet *models.Wallet, e Entry) (decimal.Decimal, error) {
	if wallet == nil {
		return decimal.Zero, fmt.Errorf("wallet %w", store.ErrNotFound)
	}
	if !e.Bucket.Valid() {
		return decimal.Zero, fmt.Errorf("%w: unknown bucket %q", store.ErrValidation, e.Bucket)
	}
	if e.Type == "" {
		return decimal.Zero, fmt.Errorf("%w: transaction type is required", store.ErrValidation)
	}
	amount := e.Amount.Round(models.CryptoPrecision)
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive, got %s", store.ErrValidation, e.Amount)
	}
	return amount, nil
}

func newTransaction(wallet *models.Wallet, e Entry, amount, before, after decimal.Decimal, counter models.Bucket) *models.Transaction {
	status := e.Status
	if status == "" {
		status = models.TxStatusCompleted
	}
	return &models.Transaction{
		WalletId:              wallet.Id,
		UserId:                wallet.UserId,
		Type:                  e.Type,
		Status:                status,
		Bucket:                e.Bucket,
		CounterBucket:         counter,
		Amount:                amount,
		BalanceBefore:         before,
		BalanceAfter:          after,
		IdempotencyKey:        e.IdempotencyKey,
		Reference:             e.Reference,
		Description:           e.Description,
		RelatedSubscriptionId: e.RelatedSubscriptionId,
	}
}

func (s *Service) apply(ctx context.Context, q store.Querier, wallet *models.Wallet, e Entry,
	amount, before, after decimal.Decimal, counter models.Bucket) (*models.Transaction, error) {
	// Insert first so a duplicate idempotency key aborts before any balance write.
	tx := newTransaction(wallet, e, amount, before, after, counter)
	if err := q.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}

	wallet.SetBalance(e.Bucket, after)
	if err := q.UpdateWallet(ctx, wallet); err != nil {
		wallet.SetBalance(e.Bucket, before)
		return nil, err
	}

	zap.L().Debug("Ledger mutation applied",
		zap.String("transaction_id", tx.Id),
		zap.String("user_id", wallet.UserId),
		zap.String("type", string(tx.Type)),
		zap.String("bucket", string(tx.Bucket)),
		zap.String("amount", tx.Amount.String()),
		zap.String("balance_after", after.String()))

	if s.mirror != nil {
		posted := *tx
		q.OnCommit(func() { go s.post(posted) })
	}
	return tx, nil
}

// post forwards a committed row to the mirror. Failures are logged only.
func (s *Service) post(tx models.Transaction) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Ledger mirror panicked", zap.String("transaction_id", tx.Id), zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := s.mirror.Post(ctx, tx); err != nil {
		zap.L().Error("Failed to mirror ledger transaction",
			zap.String("transaction_id", tx.Id),
			zap.String("type", string(tx.Type)),
			zap.Error(err))
	}
}
