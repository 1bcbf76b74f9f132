package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var txType, bucket string
	var counterBucket, idempotencyKey, reference, relatedSubscriptionId sql.NullString
	err := row.Scan(&t.Id, &t.WalletId, &t.UserId, &txType, &t.Status, &bucket, &counterBucket,
		&t.Amount, &t.BalanceBefore, &t.BalanceAfter,
		&idempotencyKey, &reference, &t.Description, &relatedSubscriptionId,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Type = models.TransactionType(txType)
	t.Bucket = models.Bucket(bucket)
	t.CounterBucket = models.Bucket(counterBucket.String)
	t.IdempotencyKey = idempotencyKey.String
	t.Reference = reference.String
	t.RelatedSubscriptionId = relatedSubscriptionId.String
	return &t, nil
}

func (q *queries) scanTransactions(ctx context.Context, query string, args ...interface{}) ([]models.Transaction, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query transactions: %w", err)
	}
	defer closeRows(rows)

	var transactions []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan transaction row: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}

// InsertTransaction appends a ledger row. A clash on idempotency_key is
// reported as store.ErrDuplicateTransaction.
func (q *queries) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	if t.Id == "" {
		t.Id = uuid.New().String()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := q.exec(ctx, queryInsertTransaction,
		t.Id, t.WalletId, t.UserId, string(t.Type), t.Status, string(t.Bucket), nullString(string(t.CounterBucket)),
		t.Amount, t.BalanceBefore, t.BalanceAfter,
		nullString(t.IdempotencyKey), nullString(t.Reference), t.Description, nullString(t.RelatedSubscriptionId),
		t.CreatedAt.UTC(), t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			zap.L().Warn("Duplicate idempotency key detected",
				zap.String("idempotency_key", t.IdempotencyKey),
				zap.String("type", string(t.Type)))
			return fmt.Errorf("%w: idempotency key %s already exists", store.ErrDuplicateTransaction, t.IdempotencyKey)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (q *queries) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	t, err := scanTransaction(q.queryRow(ctx, queryGetTransaction, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query transaction: %w", err)
	}
	return t, nil
}

func (q *queries) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	t, err := scanTransaction(q.queryRow(ctx, queryGetTransactionByKey, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction with key %s %w", key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query transaction by key: %w", err)
	}
	return t, nil
}

func (q *queries) FindTransactionByReference(ctx context.Context, walletId string, txType models.TransactionType, reference string) (*models.Transaction, error) {
	t, err := scanTransaction(q.queryRow(ctx, queryFindTransactionByReference, walletId, string(txType), reference))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s transaction referencing %s %w", txType, reference, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query transaction by reference: %w", err)
	}
	return t, nil
}

func (q *queries) CountTransactions(ctx context.Context, walletId string, txType models.TransactionType, status string) (int, error) {
	n, err := q.count(ctx, queryCountTransactions, walletId, string(txType), status)
	if err != nil {
		return 0, fmt.Errorf("unable to count transactions: %w", err)
	}
	return n, nil
}

func (q *queries) HasTransactionSince(ctx context.Context, walletId string, txType models.TransactionType, since time.Time) (bool, error) {
	n, err := q.count(ctx, queryHasTransactionSince, walletId, string(txType), since.UTC())
	if err != nil {
		return false, fmt.Errorf("unable to check recent transactions: %w", err)
	}
	return n > 0, nil
}

func (q *queries) ListTransactions(ctx context.Context, walletId string, limit, offset int) ([]models.Transaction, error) {
	return q.scanTransactions(ctx, queryListTransactions, walletId, limit, offset)
}

func (q *queries) UpdateTransactionStatus(ctx context.Context, id, from, to string) (bool, error) {
	result, err := q.exec(ctx, queryUpdateTransactionStatus, to, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("unable to update transaction status: %w", err)
	}
	return affectedOne(result)
}
