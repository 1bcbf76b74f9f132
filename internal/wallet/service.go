package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"yield-ledger-go/internal/ledger"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/notify"
	"yield-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Withdrawal is a requested payout with its fee row.
type Withdrawal struct {
	Transaction *models.Transaction
	Fee         *models.Transaction
}

// Service implements the user-initiated wallet operations.
type Service struct {
	store    store.Store
	ledger   *ledger.Service
	rewards  models.RewardsConfig
	notifier *notify.Notifier
	now      func() time.Time
}

func NewService(st store.Store, ldg *ledger.Service, rewards models.RewardsConfig, notifier *notify.Notifier) *Service {
	return &Service{
		store:    st,
		ledger:   ldg,
		rewards:  rewards,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func AirdropKey(userId string, day time.Time) string {
	return fmt.Sprintf("airdrop_claim:%s:%s", userId, day.UTC().Format("2006-01-02"))
}

func RefundKey(withdrawalTxId string) string {
	return "withdrawal_refund:" + withdrawalTxId
}

// WithdrawalFee is the fee charged on amount, rounded to cents.
func (s *Service) WithdrawalFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.rewards.WithdrawalFeeRate).Round(models.FiatPrecision)
}

// ClaimGains moves the whole gains bucket to spendable.
func (s *Service) ClaimGains(ctx context.Context, userId string) (*models.Transaction, error) {
	var tx *models.Transaction
	err := s.store.Atomically(ctx, func(q store.Querier) error {
		wallet, err := q.GetWalletByUserId(ctx, userId)
		if err != nil {
			return err
		}
		if !wallet.Gains.IsPositive() {
			return fmt.Errorf("%w: no gains to claim", store.ErrValidation)
		}
		tx, err = s.ledger.TransferBucket(ctx, q, wallet, models.BucketGains, ledger.Entry{
			Bucket:      models.BucketSpendable,
			Amount:      wallet.Gains,
			Type:        models.TxClaimGains,
			Description: "Gains claimed",
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Gains claimed",
		zap.String("user_id", userId),
		zap.String("amount", tx.Amount.String()))
	s.publish(userId, "spendable", tx.BalanceAfter)
	return tx, nil
}

// ClaimAirdrop credits the daily airdrop once per UTC calendar day.
func (s *Service) ClaimAirdrop(ctx context.Context, userId string) (*models.Transaction, error) {
	now := s.now()
	var tx *models.Transaction
	err := s.store.Atomically(ctx, func(q store.Querier) error {
		wallet, err := q.GetWalletByUserId(ctx, userId)
		if err != nil {
			return err
		}
		if last := wallet.AirdropLastClaimedAt; last != nil && sameDay(*last, now) {
			return fmt.Errorf("%w: airdrop already claimed today", store.ErrConflict)
		}

		// persisted by the credit's wallet update
		wallet.AirdropLastClaimedAt = &now
		tx, err = s.ledger.Credit(ctx, q, wallet, ledger.Entry{
			Bucket:         models.BucketAirdrop,
			Amount:         s.rewards.DailyAirdrop,
			Type:           models.TxAirdropClaim,
			Description:    "Daily airdrop",
			IdempotencyKey: AirdropKey(userId, now),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Airdrop claimed",
		zap.String("user_id", userId),
		zap.String("amount", tx.Amount.String()))
	s.publish(userId, "airdrop", tx.BalanceAfter)
	return tx, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// RequestWithdrawal debits amount plus fee from spendable. The withdrawal row
// waits for admin approval; the fee row is final unless the withdrawal is
// rejected.
func (s *Service) RequestWithdrawal(ctx context.Context, userId string, amount decimal.Decimal, address string) (*Withdrawal, error) {
	address = strings.TrimSpace(address)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}
	if address == "" {
		return nil, fmt.Errorf("%w: destination address is required", store.ErrValidation)
	}
	fee := s.WithdrawalFee(amount)

	var w Withdrawal
	err := s.store.Atomically(ctx, func(q store.Querier) error {
		wallet, err := q.GetWalletByUserId(ctx, userId)
		if err != nil {
			return err
		}
		total := amount.Add(fee)
		if wallet.Spendable.LessThan(total) {
			return fmt.Errorf("%w: withdrawal of %s plus fee %s exceeds spendable %s",
				store.ErrInsufficientFunds, amount, fee, wallet.Spendable)
		}

		w.Transaction, err = s.ledger.Debit(ctx, q, wallet, ledger.Entry{
			Bucket:      models.BucketSpendable,
			Amount:      amount,
			Type:        models.TxWithdrawal,
			Status:      models.TxStatusPendingApproval,
			Description: fmt.Sprintf("Withdrawal to %s", address),
			Reference:   address,
		})
		if err != nil {
			return err
		}
		if !fee.IsPositive() {
			return nil
		}
		w.Fee, err = s.ledger.Debit(ctx, q, wallet, ledger.Entry{
			Bucket:      models.BucketSpendable,
			Amount:      fee,
			Type:        models.TxWithdrawalFee,
			Description: "Withdrawal fee",
			Reference:   w.Transaction.Id,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal requested",
		zap.String("user_id", userId),
		zap.String("transaction_id", w.Transaction.Id),
		zap.String("amount", amount.String()),
		zap.String("fee", fee.String()),
		zap.String("address", address))

	s.mail(ctx, userId, "Withdrawal requested",
		fmt.Sprintf("Your withdrawal of %s to %s is awaiting approval. Fee: %s.", amount, address, fee))
	return &w, nil
}

// ApproveWithdrawal hands a pending withdrawal to processing.
func (s *Service) ApproveWithdrawal(ctx context.Context, txId string) (*models.Transaction, error) {
	return s.transition(ctx, txId, models.TxStatusPendingApproval, models.TxStatusProcessingWithdrawal,
		"Withdrawal approved", "Your withdrawal of %s has been approved and is being processed.")
}

// ConfirmWithdrawal marks a processing withdrawal as paid out.
func (s *Service) ConfirmWithdrawal(ctx context.Context, txId string) (*models.Transaction, error) {
	return s.transition(ctx, txId, models.TxStatusProcessingWithdrawal, models.TxStatusCompleted,
		"Withdrawal completed", "Your withdrawal of %s has been sent.")
}

func (s *Service) transition(ctx context.Context, txId, from, to, subject, body string) (*models.Transaction, error) {
	var tx *models.Transaction
	err := s.store.Atomically(ctx, func(q store.Querier) error {
		var err error
		tx, err = loadWithdrawal(ctx, q, txId)
		if err != nil {
			return err
		}
		ok, err := q.UpdateTransactionStatus(ctx, txId, from, to)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: withdrawal %s is %s, expected %s", store.ErrConflict, txId, tx.Status, from)
		}
		tx.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal status changed",
		zap.String("transaction_id", txId),
		zap.String("from", from),
		zap.String("to", to))
	s.mail(ctx, tx.UserId, subject, fmt.Sprintf(body, tx.Amount.Abs()))
	return tx, nil
}

// RejectWithdrawal marks a not yet completed withdrawal and its fee rejected
// and refunds both to spendable in one row.
func (s *Service) RejectWithdrawal(ctx context.Context, txId, reason string) (*models.Transaction, error) {
	var refund *models.Transaction
	err := s.store.Atomically(ctx, func(q store.Querier) error {
		tx, err := loadWithdrawal(ctx, q, txId)
		if err != nil {
			return err
		}
		if tx.Status != models.TxStatusPendingApproval && tx.Status != models.TxStatusProcessingWithdrawal {
			return fmt.Errorf("%w: withdrawal %s is %s", store.ErrConflict, txId, tx.Status)
		}
		ok, err := q.UpdateTransactionStatus(ctx, txId, tx.Status, models.TxStatusRejected)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: withdrawal %s changed concurrently", store.ErrConflict, txId)
		}

		amount := tx.Amount.Abs()
		fee, err := q.FindTransactionByReference(ctx, tx.WalletId, models.TxWithdrawalFee, tx.Id)
		switch {
		case err == nil:
			if _, err := q.UpdateTransactionStatus(ctx, fee.Id, fee.Status, models.TxStatusRejected); err != nil {
				return err
			}
			amount = amount.Add(fee.Amount.Abs())
		case errors.Is(err, store.ErrNotFound):
		default:
			return err
		}

		wallet, err := q.GetWalletByUserId(ctx, tx.UserId)
		if err != nil {
			return err
		}
		description := "Refund of rejected withdrawal"
		if reason != "" {
			description += ": " + reason
		}
		refund, err = s.ledger.Credit(ctx, q, wallet, ledger.Entry{
			Bucket:         models.BucketSpendable,
			Amount:         amount,
			Type:           models.TxWithdrawal,
			Description:    description,
			IdempotencyKey: RefundKey(tx.Id),
			Reference:      tx.Id,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal rejected",
		zap.String("transaction_id", txId),
		zap.String("refund", refund.Amount.String()),
		zap.String("reason", reason))

	s.publish(refund.UserId, "spendable", refund.BalanceAfter)
	s.mail(ctx, refund.UserId, "Withdrawal rejected",
		fmt.Sprintf("Your withdrawal was rejected and %s has been returned to your balance.", refund.Amount))
	return refund, nil
}

func loadWithdrawal(ctx context.Context, q store.Querier, txId string) (*models.Transaction, error) {
	tx, err := q.GetTransaction(ctx, txId)
	if err != nil {
		return nil, err
	}
	if tx.Type != models.TxWithdrawal || !tx.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: transaction %s is not a withdrawal", store.ErrValidation, txId)
	}
	return tx, nil
}

func (s *Service) mail(ctx context.Context, userId, subject, body string) {
	user, err := s.store.GetUserById(ctx, userId)
	if err != nil {
		zap.L().Warn("Unable to load user for email", zap.String("user_id", userId), zap.Error(err))
		return
	}
	s.notifier.Mail(user.Email, subject, body)
}

func (s *Service) publish(userId, bucket string, balance decimal.Decimal) {
	s.notifier.Publish(notify.Event{
		Type:   notify.EventBalanceUpdate,
		UserId: userId,
		Data:   map[string]string{bucket: balance.String()},
	})
}
