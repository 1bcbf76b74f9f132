package deposit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"yield-ledger-go/internal/gateway"
	"yield-ledger-go/internal/ledger"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/notify"
	"yield-ledger-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const triggerTimeout = 2 * time.Minute

// FirstDepositHandler is told about every credited deposit after commit.
type FirstDepositHandler interface {
	ProcessReferralDepositBonus(ctx context.Context, userId string) error
}

// PassResult summarises one reconciliation pass.
type PassResult struct {
	Credited int
	Skipped  int
	Failed   int
}

// Reconciler credits observed on-chain balances of pending deposit intents.
// Each intent is processed under its row lock so that two concurrent passes
// credit it at most once.
type Reconciler struct {
	store       store.Store
	ledger      *ledger.Service
	gateway     gateway.BlockchainGateway
	bonus       FirstDepositHandler
	notifier    *notify.Notifier
	concurrency int
	lookback    time.Duration

	triggers sync.WaitGroup
}

func NewReconciler(st store.Store, ldg *ledger.Service, gw gateway.BlockchainGateway, bonus FirstDepositHandler,
	notifier *notify.Notifier, cfg models.ReconcilerConfig) *Reconciler {
	concurrency := cfg.SweepConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Reconciler{
		store:       st,
		ledger:      ldg,
		gateway:     gw,
		bonus:       bonus,
		notifier:    notifier,
		concurrency: concurrency,
		lookback:    cfg.LookbackWindow,
	}
}

// ProcessPendingForUser runs one pass over the user's pending intents. Errors
// scoped to a single intent are logged and counted; only a failure to list the
// intents is returned.
func (r *Reconciler) ProcessPendingForUser(ctx context.Context, userId string) (PassResult, error) {
	var result PassResult

	intents, err := r.store.ListPendingIntents(ctx, userId)
	if err != nil {
		return result, fmt.Errorf("failed to list pending intents: %w", err)
	}

	for _, intent := range intents {
		tx, err := r.processIntent(ctx, intent)
		switch {
		case err == nil && tx != nil:
			result.Credited++
			r.afterCredit(ctx, intent, tx)
		case err == nil:
		case errors.Is(err, gateway.ErrExternalService):
			result.Skipped++
			zap.L().Warn("Gateway unavailable, deposit intent skipped",
				zap.String("intent_id", intent.Id),
				zap.String("address", intent.Address),
				zap.String("network", intent.Network),
				zap.Error(err))
		default:
			result.Failed++
			zap.L().Error("Failed to reconcile deposit intent",
				zap.String("intent_id", intent.Id),
				zap.String("user_id", userId),
				zap.Error(err))
		}
	}

	if result.Credited > 0 || result.Skipped > 0 || result.Failed > 0 {
		zap.L().Info("Reconciliation pass finished",
			zap.String("user_id", userId),
			zap.String("trigger", models.TriggerFromContext(ctx)),
			zap.Int("intents", len(intents)),
			zap.Int("credited", result.Credited),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

// processIntent returns the deposit row when the intent was credited, nil when
// there was nothing to do. Gateway I/O happens before the intent is locked so
// that a slow provider never holds the database write lock; the pending
// recheck under the lock and the deposit:<id> key keep the credit exactly-once.
func (r *Reconciler) processIntent(ctx context.Context, intent models.DepositIntent) (*models.Transaction, error) {
	if !gateway.SupportedNetwork(intent.Network) {
		zap.L().Warn("Unsupported deposit network",
			zap.String("intent_id", intent.Id),
			zap.String("network", intent.Network))
		return nil, nil
	}

	balance, err := r.gateway.GetBalance(ctx, intent.Address, intent.Network)
	if err != nil {
		return nil, fmt.Errorf("balance of %s on %s: %w", intent.Address, intent.Network, err)
	}
	if !balance.IsPositive() {
		return nil, nil
	}
	description := r.describe(ctx, &intent)

	var credited *models.Transaction
	err = r.store.Atomically(ctx, func(q store.Querier) error {
		locked, err := q.LockPendingIntent(ctx, intent.Id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				zap.L().Debug("Deposit intent no longer pending", zap.String("intent_id", intent.Id))
				return nil
			}
			return err
		}

		wallet, err := q.GetWalletByUserId(ctx, locked.UserId)
		if err != nil {
			return err
		}

		tx, err := r.ledger.Credit(ctx, q, wallet, ledger.Entry{
			Bucket:         models.BucketSpendable,
			Amount:         balance,
			Type:           models.TxDeposit,
			Description:    description,
			IdempotencyKey: "deposit:" + locked.Id,
			Reference:      locked.Id,
		})
		if err != nil {
			return fmt.Errorf("failed to credit deposit: %w", err)
		}

		ok, err := q.CompleteIntent(ctx, locked.Id, time.Now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: deposit intent %s already completed", store.ErrConflict, locked.Id)
		}

		credited = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return credited, nil
}

// describe resolves the most recent transfer hash for the audit row. A lookup
// failure falls back to the address.
func (r *Reconciler) describe(ctx context.Context, intent *models.DepositIntent) string {
	prefix := fmt.Sprintf("%s deposit via %s", intent.Currency, intent.Network)

	transfers, err := r.gateway.GetDeposits(ctx, intent.Address, intent.Network, r.lookback)
	if err != nil {
		zap.L().Debug("Transaction hash lookup failed",
			zap.String("intent_id", intent.Id),
			zap.Error(err))
	}
	if latest, ok := gateway.LatestTransfer(transfers); ok && latest.TxHash != "" {
		return fmt.Sprintf("%s - TXID: %s", prefix, latest.TxHash)
	}
	return fmt.Sprintf("%s - Address: %s", prefix, intent.Address)
}

func (r *Reconciler) afterCredit(ctx context.Context, intent models.DepositIntent, tx *models.Transaction) {
	zap.L().Info("Deposit credited",
		zap.String("intent_id", intent.Id),
		zap.String("user_id", intent.UserId),
		zap.String("amount", tx.Amount.String()),
		zap.String("currency", intent.Currency),
		zap.String("network", intent.Network),
		zap.String("transaction_id", tx.Id))

	if r.bonus != nil {
		if err := r.bonus.ProcessReferralDepositBonus(ctx, intent.UserId); err != nil {
			zap.L().Error("Referral deposit bonus failed",
				zap.String("user_id", intent.UserId),
				zap.Error(err))
		}
	}

	r.notifier.Publish(notify.Event{
		Type:   notify.EventDepositCompleted,
		UserId: intent.UserId,
		Data: map[string]string{
			"amount":   tx.Amount.String(),
			"currency": intent.Currency,
			"network":  intent.Network,
		},
	})
	r.notifier.Publish(notify.Event{
		Type:   notify.EventBalanceUpdate,
		UserId: intent.UserId,
		Data:   map[string]string{"spendable": tx.BalanceAfter.String()},
	})

	user, err := r.store.GetUserById(ctx, intent.UserId)
	if err != nil {
		zap.L().Warn("Unable to load user for deposit email", zap.String("user_id", intent.UserId), zap.Error(err))
		return
	}
	r.notifier.Mail(user.Email, "Deposit received",
		fmt.Sprintf("Your deposit of %s %s on %s has been credited.", tx.Amount, intent.Currency, intent.Network))
}

// Sweep runs a pass for every user with pending intents, several users at a
// time. It returns the number of credited intents.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	userIds, err := r.store.ListUsersWithPendingIntents(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users with pending deposits: %w", err)
	}

	var mu sync.Mutex
	credited := 0

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, userId := range userIds {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					zap.L().Error("Reconciliation pass panicked", zap.String("user_id", userId), zap.Any("panic", p))
				}
			}()

			result, err := r.ProcessPendingForUser(ctx, userId)
			if err != nil {
				zap.L().Error("Reconciliation pass failed", zap.String("user_id", userId), zap.Error(err))
				return nil
			}
			mu.Lock()
			credited += result.Credited
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Debug("Deposit sweep finished",
		zap.Int("users", len(userIds)),
		zap.Int("credited", credited))
	return credited, nil
}

// Trigger starts a pass for userId in the background and returns at once.
// Callers must not assume the deposit is reflected when Trigger returns.
func (r *Reconciler) Trigger(userId string) {
	r.triggers.Add(1)
	go func() {
		defer r.triggers.Done()
		defer func() {
			if p := recover(); p != nil {
				zap.L().Error("Deposit check panicked", zap.String("user_id", userId), zap.Any("panic", p))
			}
		}()

		ctx, cancel := context.WithTimeout(models.WithTrigger(context.Background(), models.TriggerRequest), triggerTimeout)
		defer cancel()
		if _, err := r.ProcessPendingForUser(ctx, userId); err != nil {
			zap.L().Error("Background deposit check failed", zap.String("user_id", userId), zap.Error(err))
		}
	}()
}

// Wait blocks until every triggered pass has finished.
func (r *Reconciler) Wait() {
	r.triggers.Wait()
}
