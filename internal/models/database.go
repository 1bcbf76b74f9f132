package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a platform user and its position in the referral forest
type User struct {
	Id                    string    `db:"id"`
	Name                  string    `db:"name"`
	Email                 string    `db:"email"`
	ReferrerId            string    `db:"referrer_id"`
	ReferralLevel         int       `db:"referral_level"`
	DirectActiveReferrals int       `db:"direct_active_referrals"`
	TotalActiveTeam       int       `db:"total_active_team"`
	CreatedAt             time.Time `db:"created_at"`
	UpdatedAt             time.Time `db:"updated_at"`
}

// HasReferrer reports whether the user was referred by another user.
func (u *User) HasReferrer() bool {
	return u.ReferrerId != ""
}

// Wallet holds the five balance buckets of a user (hot data)
type Wallet struct {
	Id                   string          `db:"id"`
	UserId               string          `db:"user_id"`
	Currency             string          `db:"currency"`
	Spendable            decimal.Decimal `db:"spendable"`
	Invested             decimal.Decimal `db:"invested"`
	Gains                decimal.Decimal `db:"gains"`
	Bonus                decimal.Decimal `db:"bonus"`
	Airdrop              decimal.Decimal `db:"airdrop"`
	AirdropLastClaimedAt *time.Time      `db:"airdrop_last_claimed_at"`
	Version              int64           `db:"version"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

// Balance returns the amount held in a bucket.
func (w *Wallet) Balance(b Bucket) decimal.Decimal {
	switch b {
	case BucketSpendable:
		return w.Spendable
	case BucketInvested:
		return w.Invested
	case BucketGains:
		return w.Gains
	case BucketBonus:
		return w.Bonus
	case BucketAirdrop:
		return w.Airdrop
	}
	return decimal.Zero
}

// SetBalance overwrites the amount held in a bucket.
func (w *Wallet) SetBalance(b Bucket, amount decimal.Decimal) {
	switch b {
	case BucketSpendable:
		w.Spendable = amount
	case BucketInvested:
		w.Invested = amount
	case BucketGains:
		w.Gains = amount
	case BucketBonus:
		w.Bonus = amount
	case BucketAirdrop:
		w.Airdrop = amount
	}
}

// Total is the sum of every bucket.
func (w *Wallet) Total() decimal.Decimal {
	return w.Spendable.Add(w.Invested).Add(w.Gains).Add(w.Bonus).Add(w.Airdrop)
}

// Transaction represents an immutable ledger row (cold data)
type Transaction struct {
	Id                    string          `db:"id"`
	WalletId              string          `db:"wallet_id"`
	UserId                string          `db:"user_id"`
	Type                  TransactionType `db:"type"`
	Status                string          `db:"status"`
	Bucket                Bucket          `db:"bucket"`
	CounterBucket         Bucket          `db:"counter_bucket"`
	Amount                decimal.Decimal `db:"amount"`
	BalanceBefore         decimal.Decimal `db:"balance_before"`
	BalanceAfter          decimal.Decimal `db:"balance_after"`
	IdempotencyKey        string          `db:"idempotency_key"`
	Reference             string          `db:"reference"`
	Description           string          `db:"description"`
	RelatedSubscriptionId string          `db:"related_subscription_id"`
	CreatedAt             time.Time       `db:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at"`
}

// IsTransfer reports whether the row moved value between two buckets of the same wallet.
func (t *Transaction) IsTransfer() bool {
	return t.CounterBucket != ""
}

// DepositIntent is a single-use deposit address awaiting an on-chain transfer
type DepositIntent struct {
	Id             string          `db:"id"`
	UserId         string          `db:"user_id"`
	Currency       string          `db:"currency"`
	Network        string          `db:"network"`
	Address        string          `db:"address"`
	WalletRef      string          `db:"wallet_ref"`
	ExpectedAmount decimal.Decimal `db:"expected_amount"`
	Status         string          `db:"status"`
	ExpiresAt      time.Time       `db:"expires_at"`
	CompletedAt    *time.Time      `db:"completed_at"`
	CreatedAt      time.Time       `db:"created_at"`
}

// Expired reports whether the intent's address is past its validity window.
func (d *DepositIntent) Expired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// Plan is an investment product
type Plan struct {
	Id             string          `db:"id"`
	Name           string          `db:"name"`
	DurationDays   int             `db:"duration_days"`
	MinAmount      decimal.Decimal `db:"min_amount"`
	MaxAmount      decimal.Decimal `db:"max_amount"`
	GainMultiplier decimal.Decimal `db:"gain_multiplier"`
	SignalsPerDay  int             `db:"signals_per_day"`
	IsActive       bool            `db:"is_active"`
	CreatedAt      time.Time       `db:"created_at"`
}

// Subscription binds a user's wallet to a Plan
type Subscription struct {
	Id             string          `db:"id"`
	UserId         string          `db:"user_id"`
	WalletId       string          `db:"wallet_id"`
	PlanId         string          `db:"plan_id"`
	InvestedAmount decimal.Decimal `db:"invested_amount"`
	StartDate      time.Time       `db:"start_date"`
	EndDate        time.Time       `db:"end_date"`
	Status         string          `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Signal is a time-boxed redemption code tied to a plan
type Signal struct {
	Id          string    `db:"id"`
	PlanId      string    `db:"plan_id"`
	Code        string    `db:"code"`
	Status      string    `db:"status"`
	IsExclusive bool      `db:"is_exclusive"`
	ExpiresAt   time.Time `db:"expires_at"`
	CreatedAt   time.Time `db:"created_at"`
}

// Expired reports whether the signal can no longer be redeemed.
func (s *Signal) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// UserSignal records a single redemption of a signal by a user
type UserSignal struct {
	Id       string    `db:"id"`
	UserId   string    `db:"user_id"`
	SignalId string    `db:"signal_id"`
	UsedAt   time.Time `db:"used_at"`
}

// ReferralLevel is one tier of the referral qualification table
type ReferralLevel struct {
	Level        int             `db:"level"`
	MinReferrals int             `db:"min_referrals"`
	WeeklySalary decimal.Decimal `db:"weekly_salary"`
}
