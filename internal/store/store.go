package store

import (
	"context"
	"time"

	"yield-ledger-go/internal/models"
)

// CreateUserParams contains the parameters for registering a user.
type CreateUserParams struct {
	Id         string
	Name       string
	Email      string
	ReferrerId string
}

// ReferralEdge is one user of the referral forest with its parent and activity flag.
type ReferralEdge struct {
	UserId     string
	ReferrerId string
	Active     bool
}

// ReferralStats are the derived referral fields persisted on a user.
type ReferralStats struct {
	Level                 int
	DirectActiveReferrals int
	TotalActiveTeam       int
}

// UserQueries covers users and the referral forest.
type UserQueries interface {
	CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	// LockUser takes a row lock on the user for the rest of the atomic unit.
	LockUser(ctx context.Context, userId string) error
	UpdateReferralStats(ctx context.Context, userId string, stats ReferralStats) error
	CountDirectActiveReferrals(ctx context.Context, userId string) (int, error)
	CountActiveDescendants(ctx context.Context, userId string) (int, error)
	ListReferralEdges(ctx context.Context) ([]ReferralEdge, error)
}

// WalletQueries covers wallet rows and the append-only transaction log.
type WalletQueries interface {
	CreateWallet(ctx context.Context, userId, currency string) (*models.Wallet, error)
	GetWalletByUserId(ctx context.Context, userId string) (*models.Wallet, error)
	// UpdateWallet persists every bucket and bumps the version. It fails with
	// ErrConcurrentModification when wallet.Version no longer matches the row.
	UpdateWallet(ctx context.Context, wallet *models.Wallet) error

	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	GetTransactionByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
	FindTransactionByReference(ctx context.Context, walletId string, txType models.TransactionType, reference string) (*models.Transaction, error)
	CountTransactions(ctx context.Context, walletId string, txType models.TransactionType, status string) (int, error)
	HasTransactionSince(ctx context.Context, walletId string, txType models.TransactionType, since time.Time) (bool, error)
	ListTransactions(ctx context.Context, walletId string, limit, offset int) ([]models.Transaction, error)
	// UpdateTransactionStatus moves a row from one status to another and reports
	// whether the row was in the expected state.
	UpdateTransactionStatus(ctx context.Context, id, from, to string) (bool, error)
}

// DepositQueries covers deposit intents.
type DepositQueries interface {
	InsertDepositIntent(ctx context.Context, intent *models.DepositIntent) error
	FindReusableIntent(ctx context.Context, userId, currency, network string, now time.Time) (*models.DepositIntent, error)
	ListPendingIntents(ctx context.Context, userId string) ([]models.DepositIntent, error)
	ListUsersWithPendingIntents(ctx context.Context) ([]string, error)
	// LockPendingIntent acquires the row lock for a deposit intent and returns
	// it only if it is still pending, otherwise ErrNotFound.
	LockPendingIntent(ctx context.Context, id string) (*models.DepositIntent, error)
	CompleteIntent(ctx context.Context, id string, completedAt time.Time) (bool, error)
	AddressInUse(ctx context.Context, address string) (bool, error)
}

// PlanQueries covers plans, subscriptions and referral levels.
type PlanQueries interface {
	UpsertPlan(ctx context.Context, plan *models.Plan) error
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	GetPlanByName(ctx context.Context, name string) (*models.Plan, error)
	ListActivePlans(ctx context.Context) ([]models.Plan, error)

	InsertSubscription(ctx context.Context, sub *models.Subscription) error
	GetActiveSubscription(ctx context.Context, userId string) (*models.Subscription, error)
	GetActiveSubscriptionForPlan(ctx context.Context, userId, planId string) (*models.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]models.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error

	UpsertReferralLevel(ctx context.Context, level models.ReferralLevel) error
	// ListReferralLevels returns levels ordered by min_referrals descending.
	ListReferralLevels(ctx context.Context) ([]models.ReferralLevel, error)
}

// SignalQueries covers signals and their redemptions.
type SignalQueries interface {
	InsertSignal(ctx context.Context, signal *models.Signal) error
	FindSignalsByCode(ctx context.Context, code string) ([]models.Signal, error)
	LatestSignalForPlans(ctx context.Context, planIds []string, now time.Time) (*models.Signal, error)
	UserSignalExists(ctx context.Context, userId, signalId string) (bool, error)
	InsertUserSignal(ctx context.Context, us *models.UserSignal) error
}

// Querier is the full set of queries available inside or outside an atomic unit.
type Querier interface {
	UserQueries
	WalletQueries
	DepositQueries
	PlanQueries
	SignalQueries

	// OnCommit registers fn to run after the surrounding atomic unit commits.
	// Outside an atomic unit fn runs immediately.
	OnCommit(fn func())
}

// Store defines the contract every backend (SQLite, PostgreSQL) must satisfy.
type Store interface {
	Querier

	// Atomically runs fn inside a single database transaction. Any error
	// returned by fn rolls back every write made through q.
	Atomically(ctx context.Context, fn func(q Querier) error) error

	Close()
}
