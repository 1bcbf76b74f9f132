package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"yield-ledger-go/internal/bonus"
	"yield-ledger-go/internal/ledger"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/notify"
	"yield-ledger-go/internal/referral"
	"yield-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service manages plan subscriptions. A user holds at most one active
// subscription.
type Service struct {
	store    store.Store
	ledger   *ledger.Service
	bonus    *bonus.Engine
	tree     *referral.Tree
	notifier *notify.Notifier
	now      func() time.Time
}

func NewService(st store.Store, ldg *ledger.Service, bonusEngine *bonus.Engine, tree *referral.Tree, notifier *notify.Notifier) *Service {
	return &Service{
		store:    st,
		ledger:   ldg,
		bonus:    bonusEngine,
		tree:     tree,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func endDate(start time.Time, plan *models.Plan) time.Time {
	return start.AddDate(0, 0, plan.DurationDays)
}

// Subscribe moves amount from spendable to invested and opens a subscription
// to planId. Part of the bonus bucket follows the investment.
func (s *Service) Subscribe(ctx context.Context, userId, planId string, amount decimal.Decimal) (*models.Subscription, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}

	var sub *models.Subscription
	var wallet *models.Wallet
	err := s.store.Atomically(ctx, func(q store.Querier) error {
		if err := q.LockUser(ctx, userId); err != nil {
			return err
		}
		if _, err := q.GetActiveSubscription(ctx, userId); err == nil {
			return fmt.Errorf("%w: user already has an active subscription", store.ErrConflict)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		plan, err := q.GetPlan(ctx, planId)
		if err != nil {
			return err
		}
		if !plan.IsActive {
			return fmt.Errorf("%w: plan %s is not available", store.ErrValidation, plan.Name)
		}
		if amount.LessThan(plan.MinAmount) || amount.GreaterThan(plan.MaxAmount) {
			return fmt.Errorf("%w: plan %s accepts between %s and %s", store.ErrValidation, plan.Name, plan.MinAmount, plan.MaxAmount)
		}

		wallet, err = q.GetWalletByUserId(ctx, userId)
		if err != nil {
			return err
		}

		start := s.now()
		sub = &models.Subscription{
			UserId:         userId,
			WalletId:       wallet.Id,
			PlanId:         plan.Id,
			InvestedAmount: amount,
			StartDate:      start,
			EndDate:        endDate(start, plan),
			Status:         models.SubscriptionActive,
		}
		if err := q.InsertSubscription(ctx, sub); err != nil {
			return err
		}

		if _, err := s.ledger.TransferBucket(ctx, q, wallet, models.BucketSpendable, ledger.Entry{
			Bucket:                models.BucketInvested,
			Amount:                amount,
			Type:                  models.TxInvestment,
			Description:           fmt.Sprintf("Investment in %s", plan.Name),
			RelatedSubscriptionId: sub.Id,
		}); err != nil {
			return err
		}
		_, err = s.bonus.TransferBonusToInvestment(ctx, q, wallet, amount, sub.Id)
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Subscription created",
		zap.String("user_id", userId),
		zap.String("subscription_id", sub.Id),
		zap.String("plan_id", planId),
		zap.String("amount", amount.String()))

	if s.tree != nil {
		if err := s.tree.UpdateUplineLevels(ctx, userId); err != nil {
			zap.L().Error("Failed to update upline levels", zap.String("user_id", userId), zap.Error(err))
		}
	}
	s.publishBalances(wallet)
	return sub, nil
}

// Upgrade moves the user's active subscription to a plan with a higher entry
// amount that the invested balance already covers. No funds move; a zero
// amount row records the change.
func (s *Service) Upgrade(ctx context.Context, userId, targetPlanId string) (*models.Subscription, error) {
	var sub *models.Subscription
	var target *models.Plan
	err := s.store.Atomically(ctx, func(q store.Querier) error {
		var err error
		sub, err = q.GetActiveSubscription(ctx, userId)
		if err != nil {
			return err
		}
		current, err := q.GetPlan(ctx, sub.PlanId)
		if err != nil {
			return err
		}
		target, err = q.GetPlan(ctx, targetPlanId)
		if err != nil {
			return err
		}
		if !target.IsActive {
			return fmt.Errorf("%w: plan %s is not available", store.ErrValidation, target.Name)
		}
		if !target.MinAmount.GreaterThan(current.MinAmount) {
			return fmt.Errorf("%w: %s is not an upgrade from %s", store.ErrValidation, target.Name, current.Name)
		}

		wallet, err := q.GetWalletByUserId(ctx, userId)
		if err != nil {
			return err
		}
		if wallet.Invested.LessThan(target.MinAmount) {
			return fmt.Errorf("%w: %s requires %s invested, have %s",
				store.ErrInsufficientFunds, target.Name, target.MinAmount, wallet.Invested)
		}

		start := s.now()
		sub.PlanId = target.Id
		sub.InvestedAmount = wallet.Invested
		sub.StartDate = start
		sub.EndDate = endDate(start, target)
		if err := q.UpdateSubscription(ctx, sub); err != nil {
			return err
		}

		_, err = s.ledger.Record(ctx, q, wallet, ledger.Entry{
			Bucket:                models.BucketInvested,
			Type:                  models.TxPlanUpgrade,
			Description:           fmt.Sprintf("Upgraded from %s to %s", current.Name, target.Name),
			RelatedSubscriptionId: sub.Id,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Subscription upgraded",
		zap.String("user_id", userId),
		zap.String("subscription_id", sub.Id),
		zap.String("plan", target.Name))

	if user, err := s.store.GetUserById(ctx, userId); err == nil {
		s.notifier.Mail(user.Email, "Plan upgraded",
			fmt.Sprintf("Your subscription now runs on the %s plan until %s.", target.Name, sub.EndDate.Format("2006-01-02")))
	}
	return sub, nil
}

// AutoUpgradeAll upgrades every active subscription to the highest active plan
// its invested balance qualifies for. It returns the number of upgrades.
func (s *Service) AutoUpgradeAll(ctx context.Context) (int, error) {
	plans, err := s.store.ListActivePlans(ctx)
	if err != nil {
		return 0, err
	}
	subs, err := s.store.ListActiveSubscriptions(ctx)
	if err != nil {
		return 0, err
	}
	minAmounts := make(map[string]decimal.Decimal, len(plans))
	for _, p := range plans {
		minAmounts[p.Id] = p.MinAmount
	}

	upgraded := 0
	for _, sub := range subs {
		wallet, err := s.store.GetWalletByUserId(ctx, sub.UserId)
		if err != nil {
			zap.L().Error("Auto upgrade skipped", zap.String("user_id", sub.UserId), zap.Error(err))
			continue
		}

		best := bestPlan(plans, wallet.Invested)
		if best == nil || best.Id == sub.PlanId {
			continue
		}
		if currentMin, ok := minAmounts[sub.PlanId]; ok && !best.MinAmount.GreaterThan(currentMin) {
			continue
		}

		if _, err := s.Upgrade(ctx, sub.UserId, best.Id); err != nil {
			zap.L().Error("Auto upgrade failed",
				zap.String("user_id", sub.UserId),
				zap.String("target_plan", best.Name),
				zap.Error(err))
			continue
		}
		upgraded++
	}

	zap.L().Info("Auto upgrade finished",
		zap.Int("subscriptions", len(subs)),
		zap.Int("upgraded", upgraded))
	return upgraded, nil
}

// bestPlan returns the plan with the highest entry amount not above invested.
// plans must be sorted by MinAmount ascending.
func bestPlan(plans []models.Plan, invested decimal.Decimal) *models.Plan {
	var best *models.Plan
	for i := range plans {
		if plans[i].MinAmount.LessThanOrEqual(invested) {
			best = &plans[i]
		}
	}
	return best
}

// MatureExpired marks active subscriptions past their end date as matured.
func (s *Service) MatureExpired(ctx context.Context) (int, error) {
	subs, err := s.store.ListActiveSubscriptions(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	matured := 0
	for i := range subs {
		sub := &subs[i]
		if !now.After(sub.EndDate) {
			continue
		}
		sub.Status = models.SubscriptionMatured
		if err := s.store.UpdateSubscription(ctx, sub); err != nil {
			zap.L().Error("Failed to mature subscription", zap.String("subscription_id", sub.Id), zap.Error(err))
			continue
		}
		matured++
	}

	if matured > 0 {
		zap.L().Info("Subscriptions matured", zap.Int("count", matured))
	}
	return matured, nil
}

func (s *Service) publishBalances(w *models.Wallet) {
	if w == nil {
		return
	}
	s.notifier.Publish(notify.Event{
		Type:   notify.EventBalanceUpdate,
		UserId: w.UserId,
		Data: map[string]string{
			"spendable": w.Spendable.String(),
			"invested":  w.Invested.String(),
			"bonus":     w.Bonus.String(),
		},
	})
}
