package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"

	"github.com/google/uuid"
)

func scanPlan(row rowScanner) (*models.Plan, error) {
	var p models.Plan
	err := row.Scan(&p.Id, &p.Name, &p.DurationDays, &p.MinAmount, &p.MaxAmount,
		&p.GainMultiplier, &p.SignalsPerDay, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPlan inserts a plan or updates the existing plan with the same name.
// On return plan.Id holds the persisted id.
func (q *queries) UpsertPlan(ctx context.Context, plan *models.Plan) error {
	if plan.Id == "" {
		plan.Id = uuid.New().String()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	_, err := q.exec(ctx, queryUpsertPlan,
		plan.Id, plan.Name, plan.DurationDays, plan.MinAmount, plan.MaxAmount,
		plan.GainMultiplier, plan.SignalsPerDay, plan.IsActive, plan.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("unable to upsert plan %s: %w", plan.Name, err)
	}

	stored, err := q.GetPlanByName(ctx, plan.Name)
	if err != nil {
		return err
	}
	*plan = *stored
	return nil
}

func (q *queries) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	p, err := scanPlan(q.queryRow(ctx, queryGetPlan, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("plan %s %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query plan: %w", err)
	}
	return p, nil
}

func (q *queries) GetPlanByName(ctx context.Context, name string) (*models.Plan, error) {
	p, err := scanPlan(q.queryRow(ctx, queryGetPlanByName, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("plan %q %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query plan by name: %w", err)
	}
	return p, nil
}

// ListActivePlans returns active plans ordered by minimum amount.
func (q *queries) ListActivePlans(ctx context.Context) ([]models.Plan, error) {
	rows, err := q.query(ctx, queryListActivePlans)
	if err != nil {
		return nil, fmt.Errorf("unable to query plans: %w", err)
	}
	defer closeRows(rows)

	var plans []models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}

	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].MinAmount.LessThan(plans[j].MinAmount)
	})
	return plans, nil
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(&s.Id, &s.UserId, &s.WalletId, &s.PlanId, &s.InvestedAmount,
		&s.StartDate, &s.EndDate, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (q *queries) InsertSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.Id == "" {
		sub.Id = uuid.New().String()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	_, err := q.exec(ctx, queryInsertSubscription,
		sub.Id, sub.UserId, sub.WalletId, sub.PlanId, sub.InvestedAmount,
		sub.StartDate.UTC(), sub.EndDate.UTC(), sub.Status, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("unable to insert subscription: %w", err)
	}
	return nil
}

func (q *queries) GetActiveSubscription(ctx context.Context, userId string) (*models.Subscription, error) {
	s, err := scanSubscription(q.queryRow(ctx, queryGetActiveSubscription, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active subscription %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query subscription: %w", err)
	}
	return s, nil
}

func (q *queries) GetActiveSubscriptionForPlan(ctx context.Context, userId, planId string) (*models.Subscription, error) {
	s, err := scanSubscription(q.queryRow(ctx, queryGetActiveSubscriptionForPlan, userId, planId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active subscription to plan %s %w", planId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query subscription: %w", err)
	}
	return s, nil
}

func (q *queries) ListActiveSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	rows, err := q.query(ctx, queryListActiveSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("unable to query subscriptions: %w", err)
	}
	defer closeRows(rows)

	var subs []models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan subscription: %w", err)
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return subs, nil
}

func (q *queries) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	result, err := q.exec(ctx, queryUpdateSubscription,
		sub.PlanId, sub.InvestedAmount, sub.StartDate.UTC(), sub.EndDate.UTC(), sub.Status, sub.UpdatedAt, sub.Id)
	if err != nil {
		return fmt.Errorf("unable to update subscription: %w", err)
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("subscription %s %w", sub.Id, store.ErrNotFound)
	}
	return nil
}

func (q *queries) UpsertReferralLevel(ctx context.Context, level models.ReferralLevel) error {
	if _, err := q.exec(ctx, queryUpsertReferralLevel, level.Level, level.MinReferrals, level.WeeklySalary); err != nil {
		return fmt.Errorf("unable to upsert referral level %d: %w", level.Level, err)
	}
	return nil
}

func (q *queries) ListReferralLevels(ctx context.Context) ([]models.ReferralLevel, error) {
	rows, err := q.query(ctx, queryListReferralLevels)
	if err != nil {
		return nil, fmt.Errorf("unable to query referral levels: %w", err)
	}
	defer closeRows(rows)

	var levels []models.ReferralLevel
	for rows.Next() {
		var l models.ReferralLevel
		if err := rows.Scan(&l.Level, &l.MinReferrals, &l.WeeklySalary); err != nil {
			return nil, fmt.Errorf("unable to scan referral level: %w", err)
		}
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referral levels: %w", err)
	}
	return levels, nil
}
