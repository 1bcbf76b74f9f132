package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Reconciler ReconcilerConfig
	Scheduler  SchedulerConfig
	Rewards    RewardsConfig
	Prime      PrimeConfig
	Formance   FormanceConfig
	Hub        HubConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string        `envconfig:"DB_DRIVER" default:"sqlite3"`
	Path            string        `envconfig:"DATABASE_PATH" default:"yield.db"`
	URL             string        `envconfig:"DATABASE_URL"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	ConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"30s"`
	PingTimeout     time.Duration `envconfig:"DB_PING_TIMEOUT" default:"5s"`
	BusyTimeout     time.Duration `envconfig:"DB_BUSY_TIMEOUT" default:"10s"`
}

// ReconcilerConfig holds deposit reconciliation settings
type ReconcilerConfig struct {
	PollingInterval  time.Duration `envconfig:"RECONCILER_POLLING_INTERVAL" default:"60s"`
	SweepConcurrency int           `envconfig:"RECONCILER_SWEEP_CONCURRENCY" default:"8"`
	AddressTTL       time.Duration `envconfig:"DEPOSIT_ADDRESS_TTL" default:"24h"`
	LookbackWindow   time.Duration `envconfig:"RECONCILER_LOOKBACK_WINDOW" default:"72h"`
	SeedFile         string        `envconfig:"SEED_FILE" default:"seed.yaml"`
}

// SchedulerConfig holds cron settings for batch jobs
type SchedulerConfig struct {
	Timezone        string   `envconfig:"SCHEDULER_TIMEZONE" default:"UTC"`
	SignalSpecs     []string `envconfig:"SCHEDULER_SIGNAL_SPECS" default:"15 14 * * *,0 17 * * *,0 18 * * *"`
	SalarySpec      string   `envconfig:"SCHEDULER_SALARY_SPEC" default:"0 0 * * 1"`
	MaintenanceSpec string   `envconfig:"SCHEDULER_MAINTENANCE_SPEC" default:"5 0 * * *"`
}

// RewardsConfig holds the fixed amounts and ratios of the bonus programme
type RewardsConfig struct {
	WelcomeBonus           decimal.Decimal `envconfig:"REWARD_WELCOME_BONUS" default:"20"`
	BonusTransferThreshold decimal.Decimal `envconfig:"REWARD_BONUS_TRANSFER_THRESHOLD" default:"100"`
	BonusTransferCap       decimal.Decimal `envconfig:"REWARD_BONUS_TRANSFER_CAP" default:"5"`
	ReferrerBonus          decimal.Decimal `envconfig:"REWARD_REFERRER_BONUS" default:"10"`
	ReferrerAirdropBonus   decimal.Decimal `envconfig:"REWARD_REFERRER_AIRDROP_BONUS" default:"500"`
	RefereeBonus           decimal.Decimal `envconfig:"REWARD_REFEREE_BONUS" default:"5"`
	DailyAirdrop           decimal.Decimal `envconfig:"REWARD_DAILY_AIRDROP" default:"100"`
	WithdrawalFeeRate      decimal.Decimal `envconfig:"WITHDRAWAL_FEE_RATE" default:"0.05"`
	SignalsPerDay          int             `envconfig:"SIGNALS_PER_DAY" default:"4"`
	SignalTTL              time.Duration   `envconfig:"SIGNAL_TTL" default:"30m"`
	ExclusiveWindow        time.Duration   `envconfig:"SIGNAL_EXCLUSIVE_WINDOW" default:"96h"`
}

// PrimeConfig holds Coinbase Prime credentials
type PrimeConfig struct {
	AccessKey   string `envconfig:"PRIME_ACCESS_KEY"`
	Passphrase  string `envconfig:"PRIME_PASSPHRASE"`
	SigningKey  string `envconfig:"PRIME_SIGNING_KEY"`
	PortfolioId string `envconfig:"PRIME_PORTFOLIO_ID"`
}

// Enabled reports whether all Prime credentials are present.
func (c PrimeConfig) Enabled() bool {
	return c.AccessKey != "" && c.Passphrase != "" && c.SigningKey != ""
}

// FormanceConfig holds settings for the Formance ledger mirror
type FormanceConfig struct {
	StackURL     string `envconfig:"FORMANCE_STACK_URL"`
	ClientID     string `envconfig:"FORMANCE_CLIENT_ID"`
	ClientSecret string `envconfig:"FORMANCE_CLIENT_SECRET"`
	LedgerName   string `envconfig:"FORMANCE_LEDGER_NAME" default:"yield-ledger"`
}

// Enabled reports whether the mirror is configured.
func (c FormanceConfig) Enabled() bool {
	return c.StackURL != ""
}

// HubConfig holds settings for the websocket notification hub
type HubConfig struct {
	ListenAddr string `envconfig:"HUB_LISTEN_ADDR" default:":8081"`
}
