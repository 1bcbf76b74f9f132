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

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	var claimedAt sql.NullTime
	err := row.Scan(&w.Id, &w.UserId, &w.Currency,
		&w.Spendable, &w.Invested, &w.Gains, &w.Bonus, &w.Airdrop,
		&claimedAt, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		w.AirdropLastClaimedAt = &t
	}
	return &w, nil
}

func (q *queries) CreateWallet(ctx context.Context, userId, currency string) (*models.Wallet, error) {
	now := time.Now().UTC()
	id := uuid.New().String()
	if _, err := q.exec(ctx, queryInsertWallet, id, userId, currency, now, now); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: wallet already exists for user %s", store.ErrConflict, userId)
		}
		return nil, fmt.Errorf("unable to create wallet: %w", err)
	}

	zap.L().Info("Wallet created", zap.String("wallet_id", id), zap.String("user_id", userId))
	return q.GetWalletByUserId(ctx, userId)
}

func (q *queries) GetWalletByUserId(ctx context.Context, userId string) (*models.Wallet, error) {
	wallet, err := scanWallet(q.queryRow(ctx, queryGetWalletByUserId, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", store.ErrWalletNotFound, userId)
		}
		return nil, fmt.Errorf("unable to query wallet: %w", err)
	}
	return wallet, nil
}

func (q *queries) UpdateWallet(ctx context.Context, wallet *models.Wallet) error {
	now := time.Now().UTC()
	result, err := q.exec(ctx, queryUpdateWallet,
		wallet.Spendable, wallet.Invested, wallet.Gains, wallet.Bonus, wallet.Airdrop,
		nullTime(wallet.AirdropLastClaimedAt), now,
		wallet.Id, wallet.Version)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}

	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("wallet %s update failed - %w", wallet.Id, store.ErrConcurrentModification)
	}

	wallet.Version++
	wallet.UpdatedAt = now
	return nil
}
