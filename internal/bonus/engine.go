package bonus

import (
	"context"
	"errors"
	"fmt"

	"yield-ledger-go/internal/ledger"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/notify"
	"yield-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine grants welcome, referral and bonus-transfer rewards. Each grant
// carries an idempotency key so replays are no-ops.
type Engine struct {
	store    store.Store
	ledger   *ledger.Service
	rewards  models.RewardsConfig
	notifier *notify.Notifier
}

func NewEngine(st store.Store, ldg *ledger.Service, rewards models.RewardsConfig, notifier *notify.Notifier) *Engine {
	return &Engine{store: st, ledger: ldg, rewards: rewards, notifier: notifier}
}

func WelcomeBonusKey(userId string) string {
	return "welcome_bonus:" + userId
}

func ReferralBonusKey(referrerId, userId string) string {
	return fmt.Sprintf("referral_bonus:%s:%s", referrerId, userId)
}

func ReferralAirdropBonusKey(referrerId, userId string) string {
	return fmt.Sprintf("referral_airdrop_bonus:%s:%s", referrerId, userId)
}

func ReferralWelcomeKey(userId string) string {
	return "referral_welcome:" + userId
}

// GrantWelcomeBonus credits the welcome bonus when both invested and bonus are
// zero. It returns nil when nothing was granted.
func (e *Engine) GrantWelcomeBonus(ctx context.Context, q store.Querier, wallet *models.Wallet) (*models.Transaction, error) {
	if !wallet.Invested.IsZero() || !wallet.Bonus.IsZero() {
		return nil, nil
	}
	granted, err := keyExists(ctx, q, WelcomeBonusKey(wallet.UserId))
	if err != nil || granted {
		return nil, err
	}

	tx, err := e.ledger.Credit(ctx, q, wallet, ledger.Entry{
		Bucket:         models.BucketBonus,
		Amount:         e.rewards.WelcomeBonus,
		Type:           models.TxBonus,
		Description:    "Welcome bonus",
		IdempotencyKey: WelcomeBonusKey(wallet.UserId),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to grant welcome bonus: %w", err)
	}

	zap.L().Info("Welcome bonus granted",
		zap.String("user_id", wallet.UserId),
		zap.String("amount", tx.Amount.String()))
	return tx, nil
}

// GrantWelcomeBonusForUser runs GrantWelcomeBonus in its own atomic unit.
func (e *Engine) GrantWelcomeBonusForUser(ctx context.Context, userId string) (*models.Transaction, error) {
	var granted *models.Transaction
	err := e.store.Atomically(ctx, func(q store.Querier) error {
		wallet, err := q.GetWalletByUserId(ctx, userId)
		if err != nil {
			return err
		}
		granted, err = e.GrantWelcomeBonus(ctx, q, wallet)
		return err
	})
	if err != nil {
		return nil, err
	}
	return granted, nil
}

// BonusTransferAmount is the part of bonus that moves to invested for an
// investment of investedAmount.
func (e *Engine) BonusTransferAmount(bonus, investedAmount decimal.Decimal) decimal.Decimal {
	if !bonus.IsPositive() || !investedAmount.IsPositive() {
		return decimal.Zero
	}
	if investedAmount.GreaterThanOrEqual(e.rewards.BonusTransferThreshold) {
		return bonus
	}
	return decimal.Min(bonus, e.rewards.BonusTransferCap)
}

// TransferBonusToInvestment moves part of the bonus bucket to invested after an
// investment. It returns nil when nothing moved.
func (e *Engine) TransferBonusToInvestment(ctx context.Context, q store.Querier, wallet *models.Wallet,
	investedAmount decimal.Decimal, subscriptionId string) (*models.Transaction, error) {
	amount := e.BonusTransferAmount(wallet.Bonus, investedAmount)
	if !amount.IsPositive() {
		return nil, nil
	}

	tx, err := e.ledger.TransferBucket(ctx, q, wallet, models.BucketBonus, ledger.Entry{
		Bucket:                models.BucketInvested,
		Amount:                amount,
		Type:                  models.TxBonusTransfer,
		Description:           fmt.Sprintf("Bonus of %s moved to investment", amount),
		RelatedSubscriptionId: subscriptionId,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to transfer bonus: %w", err)
	}

	zap.L().Info("Bonus transferred to investment",
		zap.String("user_id", wallet.UserId),
		zap.String("amount", amount.String()),
		zap.String("invested_amount", investedAmount.String()))
	return tx, nil
}

// ProcessReferralDepositBonus rewards the referrer and the user on the user's
// first completed deposit. The referral bonus key makes the grant happen at
// most once per referrer and user even when two deposits complete together.
func (e *Engine) ProcessReferralDepositBonus(ctx context.Context, userId string) error {
	var referrer *models.User
	var referrerWallet *models.Wallet

	err := e.store.Atomically(ctx, func(q store.Querier) error {
		user, err := q.GetUserById(ctx, userId)
		if err != nil {
			return err
		}
		if !user.HasReferrer() {
			return nil
		}

		wallet, err := q.GetWalletByUserId(ctx, userId)
		if err != nil {
			return err
		}
		deposits, err := q.CountTransactions(ctx, wallet.Id, models.TxDeposit, models.TxStatusCompleted)
		if err != nil {
			return err
		}
		if deposits != 1 {
			zap.L().Debug("Not a first deposit, referral bonus skipped",
				zap.String("user_id", userId),
				zap.Int("completed_deposits", deposits))
			return nil
		}

		granted, err := keyExists(ctx, q, ReferralBonusKey(user.ReferrerId, userId))
		if err != nil || granted {
			return err
		}

		ref, err := q.GetUserById(ctx, user.ReferrerId)
		if err != nil {
			return fmt.Errorf("referrer of %s: %w", userId, err)
		}
		refWallet, err := q.GetWalletByUserId(ctx, ref.Id)
		if err != nil {
			return fmt.Errorf("referrer wallet: %w", err)
		}

		grants := []struct {
			wallet *models.Wallet
			entry  ledger.Entry
		}{
			{refWallet, ledger.Entry{
				Bucket:         models.BucketSpendable,
				Amount:         e.rewards.ReferrerBonus,
				Type:           models.TxReferralBonus,
				Description:    fmt.Sprintf("Referral bonus for %s", user.Email),
				IdempotencyKey: ReferralBonusKey(ref.Id, userId),
				Reference:      userId,
			}},
			{refWallet, ledger.Entry{
				Bucket:         models.BucketAirdrop,
				Amount:         e.rewards.ReferrerAirdropBonus,
				Type:           models.TxReferralAirdropBonus,
				Description:    fmt.Sprintf("Referral airdrop bonus for %s", user.Email),
				IdempotencyKey: ReferralAirdropBonusKey(ref.Id, userId),
				Reference:      userId,
			}},
			{wallet, ledger.Entry{
				Bucket:         models.BucketBonus,
				Amount:         e.rewards.RefereeBonus,
				Type:           models.TxBonus,
				Description:    "Referral welcome bonus",
				IdempotencyKey: ReferralWelcomeKey(userId),
				Reference:      ref.Id,
			}},
		}
		for _, g := range grants {
			if !g.entry.Amount.IsPositive() {
				continue
			}
			if _, err := e.ledger.Credit(ctx, q, g.wallet, g.entry); err != nil {
				return fmt.Errorf("failed to credit %s: %w", g.entry.Type, err)
			}
		}

		referrer, referrerWallet = ref, refWallet
		return nil
	})
	if errors.Is(err, store.ErrDuplicateTransaction) {
		zap.L().Info("Referral bonus already granted", zap.String("user_id", userId))
		return nil
	}
	if err != nil {
		return err
	}
	if referrer == nil {
		return nil
	}

	zap.L().Info("Referral deposit bonus granted",
		zap.String("user_id", userId),
		zap.String("referrer_id", referrer.Id),
		zap.String("referrer_bonus", e.rewards.ReferrerBonus.String()),
		zap.String("airdrop_bonus", e.rewards.ReferrerAirdropBonus.String()),
		zap.String("referee_bonus", e.rewards.RefereeBonus.String()))

	e.notifier.Publish(notify.Event{
		Type:   notify.EventBalanceUpdate,
		UserId: referrer.Id,
		Data: map[string]string{
			"spendable": referrerWallet.Spendable.String(),
			"airdrop":   referrerWallet.Airdrop.String(),
		},
	})
	e.notifier.Mail(referrer.Email, "Referral bonus received",
		fmt.Sprintf("One of your referrals made a first deposit. %s has been added to your balance.", e.rewards.ReferrerBonus))
	return nil
}

func keyExists(ctx context.Context, q store.Querier, key string) (bool, error) {
	_, err := q.GetTransactionByIdempotencyKey(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}
