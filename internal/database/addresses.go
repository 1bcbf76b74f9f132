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

func scanDepositIntent(row rowScanner) (*models.DepositIntent, error) {
	var d models.DepositIntent
	var completedAt sql.NullTime
	err := row.Scan(&d.Id, &d.UserId, &d.Currency, &d.Network, &d.Address, &d.WalletRef,
		&d.ExpectedAmount, &d.Status, &d.ExpiresAt, &completedAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		d.CompletedAt = &t
	}
	return &d, nil
}

func (q *queries) InsertDepositIntent(ctx context.Context, intent *models.DepositIntent) error {
	if intent.Id == "" {
		intent.Id = uuid.New().String()
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}
	if intent.Status == "" {
		intent.Status = models.DepositStatusPending
	}

	_, err := q.exec(ctx, queryInsertDepositIntent,
		intent.Id, intent.UserId, intent.Currency, intent.Network, intent.Address, intent.WalletRef,
		intent.ExpectedAmount, intent.Status, intent.ExpiresAt.UTC(), nullTime(intent.CompletedAt), intent.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: address %s was already issued", store.ErrConflict, intent.Address)
		}
		return fmt.Errorf("unable to insert deposit intent: %w", err)
	}

	zap.L().Info("Deposit intent stored",
		zap.String("intent_id", intent.Id),
		zap.String("user_id", intent.UserId),
		zap.String("currency", intent.Currency),
		zap.String("network", intent.Network),
		zap.String("address", intent.Address))
	return nil
}

func (q *queries) FindReusableIntent(ctx context.Context, userId, currency, network string, now time.Time) (*models.DepositIntent, error) {
	intent, err := scanDepositIntent(q.queryRow(ctx, queryFindReusableIntent, userId, currency, network, now.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reusable deposit intent %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query deposit intent: %w", err)
	}
	return intent, nil
}

func (q *queries) ListPendingIntents(ctx context.Context, userId string) ([]models.DepositIntent, error) {
	rows, err := q.query(ctx, queryListPendingIntents, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query pending deposit intents: %w", err)
	}
	defer closeRows(rows)

	var intents []models.DepositIntent
	for rows.Next() {
		intent, err := scanDepositIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan deposit intent: %w", err)
		}
		intents = append(intents, *intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deposit intents: %w", err)
	}
	return intents, nil
}

func (q *queries) ListUsersWithPendingIntents(ctx context.Context) ([]string, error) {
	rows, err := q.query(ctx, queryListUsersWithPendingIntents)
	if err != nil {
		return nil, fmt.Errorf("unable to query users with pending deposits: %w", err)
	}
	defer closeRows(rows)

	var userIds []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("unable to scan user id: %w", err)
		}
		userIds = append(userIds, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user ids: %w", err)
	}
	return userIds, nil
}

func (q *queries) LockPendingIntent(ctx context.Context, id string) (*models.DepositIntent, error) {
	intent, err := scanDepositIntent(q.queryRow(ctx, q.dialect.locking(queryLockPendingIntent), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pending deposit intent %s %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to lock deposit intent: %w", err)
	}
	return intent, nil
}

func (q *queries) CompleteIntent(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	result, err := q.exec(ctx, queryCompleteIntent, completedAt.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("unable to complete deposit intent: %w", err)
	}
	return affectedOne(result)
}

func (q *queries) AddressInUse(ctx context.Context, address string) (bool, error) {
	n, err := q.count(ctx, queryAddressInUse, address)
	if err != nil {
		return false, fmt.Errorf("unable to check address usage: %w", err)
	}
	return n > 0, nil
}
