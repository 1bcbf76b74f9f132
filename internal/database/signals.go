package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"

	"github.com/google/uuid"
)

func scanSignal(row rowScanner) (*models.Signal, error) {
	var s models.Signal
	err := row.Scan(&s.Id, &s.PlanId, &s.Code, &s.Status, &s.IsExclusive, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (q *queries) InsertSignal(ctx context.Context, signal *models.Signal) error {
	if signal.Id == "" {
		signal.Id = uuid.New().String()
	}
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now().UTC()
	}
	if signal.Status == "" {
		signal.Status = models.SignalStatusActive
	}
	_, err := q.exec(ctx, queryInsertSignal,
		signal.Id, signal.PlanId, signal.Code, signal.Status, signal.IsExclusive,
		signal.ExpiresAt.UTC(), signal.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: signal code %s already exists for plan %s", store.ErrConflict, signal.Code, signal.PlanId)
		}
		return fmt.Errorf("unable to insert signal: %w", err)
	}
	return nil
}

func (q *queries) FindSignalsByCode(ctx context.Context, code string) ([]models.Signal, error) {
	rows, err := q.query(ctx, queryFindSignalsByCode, code)
	if err != nil {
		return nil, fmt.Errorf("unable to query signals: %w", err)
	}
	defer closeRows(rows)

	var signals []models.Signal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan signal: %w", err)
		}
		signals = append(signals, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}
	return signals, nil
}

// LatestSignalForPlans returns the newest unexpired signal of any of the plans.
func (q *queries) LatestSignalForPlans(ctx context.Context, planIds []string, now time.Time) (*models.Signal, error) {
	if len(planIds) == 0 {
		return nil, fmt.Errorf("signal %w", store.ErrNotFound)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(planIds)), ", ")
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE plan_id IN (` + placeholders + `) AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1`

	args := make([]interface{}, 0, len(planIds)+1)
	for _, id := range planIds {
		args = append(args, id)
	}
	args = append(args, now.UTC())

	s, err := scanSignal(q.queryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("signal %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query latest signal: %w", err)
	}
	return s, nil
}

func (q *queries) UserSignalExists(ctx context.Context, userId, signalId string) (bool, error) {
	n, err := q.count(ctx, queryUserSignalExists, userId, signalId)
	if err != nil {
		return false, fmt.Errorf("unable to check signal redemption: %w", err)
	}
	return n > 0, nil
}

// InsertUserSignal records a redemption. The (user_id, signal_id) unique
// constraint turns a racing second redemption into store.ErrConflict.
func (q *queries) InsertUserSignal(ctx context.Context, us *models.UserSignal) error {
	if us.Id == "" {
		us.Id = uuid.New().String()
	}
	if us.UsedAt.IsZero() {
		us.UsedAt = time.Now().UTC()
	}
	_, err := q.exec(ctx, queryInsertUserSignal, us.Id, us.UserId, us.SignalId, us.UsedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: signal already used", store.ErrConflict)
		}
		return fmt.Errorf("unable to record signal redemption: %w", err)
	}
	return nil
}
