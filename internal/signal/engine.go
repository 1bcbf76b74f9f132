package signal

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"yield-ledger-go/internal/ledger"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/notify"
	"yield-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeAttempts = 5
)

var hundred = decimal.NewFromInt(100)

// Redemption is the outcome of a successful UseSignal.
type Redemption struct {
	Signal      models.Signal
	Gain        decimal.Decimal
	Transaction *models.Transaction
}

// CurrentSignal is the newest live signal of a user's plan.
type CurrentSignal struct {
	Signal models.Signal
	Used   bool
}

// Engine redeems signal codes into the gains bucket and issues new codes.
type Engine struct {
	store    store.Store
	ledger   *ledger.Service
	rewards  models.RewardsConfig
	notifier *notify.Notifier
	now      func() time.Time
}

func NewEngine(st store.Store, ldg *ledger.Service, rewards models.RewardsConfig, notifier *notify.Notifier) *Engine {
	return &Engine{
		store:    st,
		ledger:   ldg,
		rewards:  rewards,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Gain is (invested + gains) * multiplier% / signalsPerDay, rounded to crypto
// precision.
func Gain(invested, gains, multiplier decimal.Decimal, signalsPerDay int) decimal.Decimal {
	if signalsPerDay <= 0 {
		return decimal.Zero
	}
	base := invested.Add(gains)
	return base.Mul(multiplier).Div(hundred.Mul(decimal.NewFromInt(int64(signalsPerDay)))).Round(models.CryptoPrecision)
}

// UseSignal redeems code for the user. A code shared by several plans resolves
// to the plan of the user's active subscription.
func (e *Engine) UseSignal(ctx context.Context, userId, code string) (*Redemption, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: signal code is required", store.ErrValidation)
	}

	var redemption *Redemption
	err := e.store.Atomically(ctx, func(q store.Querier) error {
		signals, err := q.FindSignalsByCode(ctx, code)
		if err != nil {
			return err
		}
		if len(signals) == 0 {
			return fmt.Errorf("signal %s %w", code, store.ErrNotFound)
		}

		sub, err := q.GetActiveSubscription(ctx, userId)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		sig := signals[0]
		if sub != nil {
			for _, s := range signals {
				if s.PlanId == sub.PlanId {
					sig = s
					break
				}
			}
		}

		now := e.now()
		if sig.Expired(now) {
			return fmt.Errorf("%w: signal %s has expired", store.ErrValidation, code)
		}
		if sub == nil || sub.PlanId != sig.PlanId {
			return fmt.Errorf("%w: signal %s requires an active subscription to its plan", store.ErrValidation, code)
		}
		if sig.IsExclusive && now.Sub(sub.StartDate) > e.rewards.ExclusiveWindow {
			return fmt.Errorf("%w: signal %s is reserved for new subscriptions", store.ErrValidation, code)
		}

		used, err := q.UserSignalExists(ctx, userId, sig.Id)
		if err != nil {
			return err
		}
		if used {
			return fmt.Errorf("%w: signal %s already used", store.ErrConflict, code)
		}
		if err := q.InsertUserSignal(ctx, &models.UserSignal{UserId: userId, SignalId: sig.Id, UsedAt: now}); err != nil {
			return err
		}

		plan, err := q.GetPlan(ctx, sig.PlanId)
		if err != nil {
			return err
		}
		wallet, err := q.GetWalletByUserId(ctx, userId)
		if err != nil {
			return err
		}

		perDay := plan.SignalsPerDay
		if perDay <= 0 {
			perDay = e.rewards.SignalsPerDay
		}
		gain := Gain(wallet.Invested, wallet.Gains, plan.GainMultiplier, perDay)

		redemption = &Redemption{Signal: sig, Gain: gain}
		if !gain.IsPositive() {
			zap.L().Info("Signal redeemed without gain",
				zap.String("user_id", userId),
				zap.String("signal_id", sig.Id))
			return nil
		}

		tx, err := e.ledger.Credit(ctx, q, wallet, ledger.Entry{
			Bucket:                models.BucketGains,
			Amount:                gain,
			Type:                  models.TxSignalGain,
			Description:           fmt.Sprintf("Signal %s on %s", code, plan.Name),
			Reference:             sig.Id,
			RelatedSubscriptionId: sub.Id,
		})
		if err != nil {
			return err
		}
		redemption.Transaction = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Signal redeemed",
		zap.String("user_id", userId),
		zap.String("code", code),
		zap.String("plan_id", redemption.Signal.PlanId),
		zap.String("gain", redemption.Gain.String()))

	if redemption.Transaction != nil {
		e.notifier.Publish(notify.Event{
			Type:   notify.EventBalanceUpdate,
			UserId: userId,
			Data:   map[string]string{"gains": redemption.Transaction.BalanceAfter.String()},
		})
	}
	if user, err := e.store.GetUserById(ctx, userId); err == nil {
		e.notifier.Mail(user.Email, "Signal redeemed",
			fmt.Sprintf("Signal %s added %s to your gains.", code, redemption.Gain))
	}
	return redemption, nil
}

// GetCurrentSignal returns the newest unexpired signal of the user's active plan.
func (e *Engine) GetCurrentSignal(ctx context.Context, userId string) (*CurrentSignal, error) {
	sub, err := e.store.GetActiveSubscription(ctx, userId)
	if err != nil {
		return nil, err
	}
	sig, err := e.store.LatestSignalForPlans(ctx, []string{sub.PlanId}, e.now())
	if err != nil {
		return nil, err
	}
	used, err := e.store.UserSignalExists(ctx, userId, sig.Id)
	if err != nil {
		return nil, err
	}
	return &CurrentSignal{Signal: *sig, Used: used}, nil
}

// Generate issues one code shared by a new signal on every active plan.
func (e *Engine) Generate(ctx context.Context, exclusive bool) ([]models.Signal, error) {
	plans, err := e.store.ListActivePlans(ctx)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		zap.L().Warn("No active plans, no signal generated")
		return nil, nil
	}

	var created []models.Signal
	for attempt := 1; ; attempt++ {
		code, err := NewCode()
		if err != nil {
			return nil, err
		}
		now := e.now()

		created = created[:0]
		err = e.store.Atomically(ctx, func(q store.Querier) error {
			for _, p := range plans {
				sig := models.Signal{
					PlanId:      p.Id,
					Code:        code,
					IsExclusive: exclusive,
					ExpiresAt:   now.Add(e.rewards.SignalTTL),
					CreatedAt:   now,
				}
				if err := q.InsertSignal(ctx, &sig); err != nil {
					return err
				}
				created = append(created, sig)
			}
			return nil
		})
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= codeAttempts {
			return nil, fmt.Errorf("failed to generate signal: %w", err)
		}
	}

	code := created[0].Code
	zap.L().Info("Signal generated",
		zap.String("code", code),
		zap.Int("plans", len(created)),
		zap.Bool("exclusive", exclusive),
		zap.Time("expires_at", created[0].ExpiresAt))

	e.notifier.Publish(notify.Event{
		Type: notify.EventSignalGenerated,
		Data: map[string]string{
			"code":       code,
			"expires_at": created[0].ExpiresAt.Format(time.RFC3339),
		},
	})
	return created, nil
}

// NewCode returns a random uppercase alphanumeric code.
func NewCode() (string, error) {
	var b strings.Builder
	size := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("unable to generate signal code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
