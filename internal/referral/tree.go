package referral

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"yield-ledger-go/internal/ledger"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/notify"
	"yield-ledger-go/internal/store"

	"go.uber.org/zap"
)

// Tree keeps each user's referral level in step with the activity of the
// users below them, and pays the weekly salary attached to a level.
type Tree struct {
	store    store.Store
	ledger   *ledger.Service
	notifier *notify.Notifier
}

func NewTree(st store.Store, ldg *ledger.Service, notifier *notify.Notifier) *Tree {
	return &Tree{store: st, ledger: ldg, notifier: notifier}
}

// SelectLevel picks the level with the highest threshold that is met. Level 1
// is measured on direct active referrals, higher levels on the whole active
// team, and level 0 always qualifies.
func SelectLevel(levels []models.ReferralLevel, direct, team int) int {
	ordered := make([]models.ReferralLevel, len(levels))
	copy(ordered, levels)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].MinReferrals != ordered[j].MinReferrals {
			return ordered[i].MinReferrals > ordered[j].MinReferrals
		}
		return ordered[i].Level > ordered[j].Level
	})

	for _, l := range ordered {
		switch {
		case l.Level <= 0:
			return 0
		case l.Level == 1:
			if direct >= l.MinReferrals {
				return 1
			}
		default:
			if team >= l.MinReferrals {
				return l.Level
			}
		}
	}
	return 0
}

// computeStats derives the referral fields of userId from g.
func computeStats(ctx context.Context, g Graph, levels []models.ReferralLevel, userId string) (store.ReferralStats, error) {
	direct, err := g.DirectActiveCount(ctx, userId)
	if err != nil {
		return store.ReferralStats{}, fmt.Errorf("direct referrals of %s: %w", userId, err)
	}
	team, err := g.TotalActiveDescendantCount(ctx, userId)
	if err != nil {
		return store.ReferralStats{}, fmt.Errorf("team of %s: %w", userId, err)
	}
	return store.ReferralStats{
		Level:                 SelectLevel(levels, direct, team),
		DirectActiveReferrals: direct,
		TotalActiveTeam:       team,
	}, nil
}

func unchanged(u *models.User, s store.ReferralStats) bool {
	return u.ReferralLevel == s.Level &&
		u.DirectActiveReferrals == s.DirectActiveReferrals &&
		u.TotalActiveTeam == s.TotalActiveTeam
}

// UpdateUserLevel recomputes one user's counts and level and persists them
// only when something changed.
func (t *Tree) UpdateUserLevel(ctx context.Context, userId string) (*models.User, error) {
	var updated *models.User
	err := t.store.Atomically(ctx, func(q store.Querier) error {
		levels, err := q.ListReferralLevels(ctx)
		if err != nil {
			return err
		}
		updated, err = updateUserLevel(ctx, q, NewSQLGraph(q), levels, userId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func updateUserLevel(ctx context.Context, q store.Querier, g Graph, levels []models.ReferralLevel, userId string) (*models.User, error) {
	user, err := q.GetUserById(ctx, userId)
	if err != nil {
		return nil, err
	}
	stats, err := computeStats(ctx, g, levels, userId)
	if err != nil {
		return nil, err
	}
	if unchanged(user, stats) {
		return user, nil
	}

	if err := q.UpdateReferralStats(ctx, userId, stats); err != nil {
		return nil, err
	}
	if user.ReferralLevel != stats.Level {
		zap.L().Info("Referral level changed",
			zap.String("user_id", userId),
			zap.Int("from", user.ReferralLevel),
			zap.Int("to", stats.Level),
			zap.Int("direct_active", stats.DirectActiveReferrals),
			zap.Int("active_team", stats.TotalActiveTeam))
	}
	user.ReferralLevel = stats.Level
	user.DirectActiveReferrals = stats.DirectActiveReferrals
	user.TotalActiveTeam = stats.TotalActiveTeam
	return user, nil
}

// UpdateUplineLevels recomputes every ancestor of startingUserId, nearest first.
func (t *Tree) UpdateUplineLevels(ctx context.Context, startingUserId string) error {
	user, err := t.store.GetUserById(ctx, startingUserId)
	if err != nil {
		return err
	}

	visited := map[string]bool{startingUserId: true}
	for next := user.ReferrerId; next != "" && !visited[next]; {
		visited[next] = true
		ancestor, err := t.UpdateUserLevel(ctx, next)
		if err != nil {
			return fmt.Errorf("failed to update upline of %s: %w", startingUserId, err)
		}
		next = ancestor.ReferrerId
	}
	return nil
}

// RecalculateAll loads the whole forest once and recomputes every user. It
// returns the number of users whose stats changed.
func (t *Tree) RecalculateAll(ctx context.Context) (int, error) {
	edges, err := t.store.ListReferralEdges(ctx)
	if err != nil {
		return 0, err
	}
	levels, err := t.store.ListReferralLevels(ctx)
	if err != nil {
		return 0, err
	}
	users, err := t.store.GetUsers(ctx)
	if err != nil {
		return 0, err
	}

	g := NewMemoryGraph(edges)
	changed := 0
	for i := range users {
		u := &users[i]
		stats, err := computeStats(ctx, g, levels, u.Id)
		if err != nil {
			return changed, err
		}
		if unchanged(u, stats) {
			continue
		}
		if err := t.store.UpdateReferralStats(ctx, u.Id, stats); err != nil {
			return changed, err
		}
		changed++
	}

	zap.L().Info("Referral levels recalculated",
		zap.Int("users", len(users)),
		zap.Int("changed", changed))
	return changed, nil
}

// salaryWindow is slightly shorter than a week so that the next weekly run,
// which may fire a little before the previous row's created_at plus seven
// days, still pays.
const salaryWindow = 7*24*time.Hour - time.Hour

// SalaryKey identifies the salary of one ISO week.
func SalaryKey(userId string, now time.Time) string {
	year, week := now.UTC().ISOWeek()
	return fmt.Sprintf("referral_salary:%s:%d-W%02d", userId, year, week)
}

// DistributeWeeklySalaries pays every user whose level carries a salary and
// who has not been paid within the trailing seven days. Safe to run more than
// once per week.
func (t *Tree) DistributeWeeklySalaries(ctx context.Context, now time.Time) (int, error) {
	levels, err := t.store.ListReferralLevels(ctx)
	if err != nil {
		return 0, err
	}
	salaries := make(map[int]models.ReferralLevel, len(levels))
	for _, l := range levels {
		if l.WeeklySalary.IsPositive() {
			salaries[l.Level] = l
		}
	}
	if len(salaries) == 0 {
		return 0, nil
	}

	users, err := t.store.GetUsers(ctx)
	if err != nil {
		return 0, err
	}

	paid := 0
	for _, u := range users {
		level, ok := salaries[u.ReferralLevel]
		if !ok {
			continue
		}

		tx, err := t.paySalary(ctx, u, level, now)
		if err != nil {
			zap.L().Error("Failed to pay referral salary",
				zap.String("user_id", u.Id),
				zap.Int("level", level.Level),
				zap.Error(err))
			continue
		}
		if tx == nil {
			continue
		}
		paid++

		t.notifier.Publish(notify.Event{
			Type:   notify.EventBalanceUpdate,
			UserId: u.Id,
			Data:   map[string]string{"spendable": tx.BalanceAfter.String()},
		})
		t.notifier.Mail(u.Email, "Weekly referral salary",
			fmt.Sprintf("Your level %d weekly salary of %s has been credited.", level.Level, tx.Amount))
	}

	zap.L().Info("Weekly salaries distributed", zap.Int("paid", paid))
	return paid, nil
}

func (t *Tree) paySalary(ctx context.Context, u models.User, level models.ReferralLevel, now time.Time) (*models.Transaction, error) {
	var tx *models.Transaction
	err := t.store.Atomically(ctx, func(q store.Querier) error {
		wallet, err := q.GetWalletByUserId(ctx, u.Id)
		if err != nil {
			return err
		}
		recent, err := q.HasTransactionSince(ctx, wallet.Id, models.TxReferralSalary, now.Add(-salaryWindow))
		if err != nil || recent {
			return err
		}

		tx, err = t.ledger.Credit(ctx, q, wallet, ledger.Entry{
			Bucket:         models.BucketSpendable,
			Amount:         level.WeeklySalary.Round(models.FiatPrecision),
			Type:           models.TxReferralSalary,
			Description:    fmt.Sprintf("Level %d weekly referral salary", level.Level),
			IdempotencyKey: SalaryKey(u.Id, now),
		})
		return err
	})
	if errors.Is(err, store.ErrDuplicateTransaction) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}
