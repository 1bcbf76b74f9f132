package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

const auditPageSize = 500

// ErrUnbalanced is returned when wallet buckets disagree with the transaction log.
var ErrUnbalanced = errors.New("ledger does not reconcile")

// BucketTotals folds the log into per-bucket sums. A transfer row adds its
// amount to bucket and removes it from counter_bucket.
func BucketTotals(txs []models.Transaction) map[models.Bucket]decimal.Decimal {
	totals := make(map[models.Bucket]decimal.Decimal, len(models.Buckets))
	for _, b := range models.Buckets {
		totals[b] = decimal.Zero
	}
	for _, tx := range txs {
		totals[tx.Bucket] = totals[tx.Bucket].Add(tx.Amount)
		if tx.IsTransfer() {
			totals[tx.CounterBucket] = totals[tx.CounterBucket].Sub(tx.Amount)
		}
	}
	return totals
}

// Reconcile checks that every bucket of wallet equals the sum of its log.
func Reconcile(wallet *models.Wallet, txs []models.Transaction) error {
	totals := BucketTotals(txs)

	var mismatches []string
	for _, b := range models.Buckets {
		if !wallet.Balance(b).Equal(totals[b]) {
			mismatches = append(mismatches, fmt.Sprintf("%s: wallet=%s log=%s", b, wallet.Balance(b), totals[b]))
		}
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%w for wallet %s: %s", ErrUnbalanced, wallet.Id, strings.Join(mismatches, ", "))
	}
	return nil
}

// Audit loads a user's wallet and full log and reconciles them.
func (s *Service) Audit(ctx context.Context, q store.Querier, userId string) (*models.Wallet, []models.Transaction, error) {
	wallet, err := q.GetWalletByUserId(ctx, userId)
	if err != nil {
		return nil, nil, err
	}

	var all []models.Transaction
	for offset := 0; ; offset += auditPageSize {
		page, err := q.ListTransactions(ctx, wallet.Id, auditPageSize, offset)
		if err != nil {
			return nil, nil, err
		}
		all = append(all, page...)
		if len(page) < auditPageSize {
			break
		}
	}

	return wallet, all, Reconcile(wallet, all)
}
