package models

// Bucket names one sub-balance of a wallet
type Bucket string

const (
	BucketSpendable Bucket = "spendable"
	BucketInvested  Bucket = "invested"
	BucketGains     Bucket = "gains"
	BucketBonus     Bucket = "bonus"
	BucketAirdrop   Bucket = "airdrop"
)

// Buckets lists every wallet bucket in display order.
var Buckets = []Bucket{BucketSpendable, BucketInvested, BucketGains, BucketBonus, BucketAirdrop}

// Valid reports whether b is a known bucket.
func (b Bucket) Valid() bool {
	for _, known := range Buckets {
		if b == known {
			return true
		}
	}
	return false
}

// TransactionType classifies a ledger row
type TransactionType string

const (
	TxDeposit              TransactionType = "deposit"
	TxWithdrawal           TransactionType = "withdrawal"
	TxWithdrawalFee        TransactionType = "withdrawal_fee"
	TxInvestment           TransactionType = "investment"
	TxPlanUpgrade          TransactionType = "plan_upgrade"
	TxSignalGain           TransactionType = "signal_gain"
	TxReferralBonus        TransactionType = "referral_bonus"
	TxReferralAirdropBonus TransactionType = "referral_airdrop_bonus"
	TxBonus                TransactionType = "bonus"
	TxBonusTransfer        TransactionType = "bonus_transfer"
	TxClaimGains           TransactionType = "claim_gains"
	TxReferralSalary       TransactionType = "referral_salary"
	TxAirdropClaim         TransactionType = "airdrop_claim"
)

// Transaction statuses
const (
	TxStatusCompleted            = "completed"
	TxStatusPendingApproval      = "pending_admin_approval"
	TxStatusProcessingWithdrawal = "processing_withdrawal"
	TxStatusRejected             = "rejected"
)

// Deposit intent statuses
const (
	DepositStatusPending   = "pending"
	DepositStatusCompleted = "completed"
)

// Subscription statuses
const (
	SubscriptionActive    = "active"
	SubscriptionMatured   = "matured"
	SubscriptionCancelled = "cancelled"
)

// Signal statuses
const (
	SignalStatusActive = "active"
)

// Decimal places used when rounding money.
const (
	CryptoPrecision = 8
	FiatPrecision   = 2
)

// DefaultCurrency is the settlement currency of every wallet.
const DefaultCurrency = "USDT"
