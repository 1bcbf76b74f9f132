package database

import (
	"context"
	"strings"
)

// schemaTemplate uses {{money}} and {{ts}} so the same layout serves both
// dialects: SQLite keeps money as TEXT to avoid REAL affinity, PostgreSQL
// uses NUMERIC.
const schemaTemplate = `
	-- Users and the referral forest
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		referrer_id TEXT REFERENCES users(id),
		referral_level INTEGER NOT NULL DEFAULT 0,
		direct_active_referrals INTEGER NOT NULL DEFAULT 0,
		total_active_team INTEGER NOT NULL DEFAULT 0,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_referrer_id ON users(referrer_id);

	-- Wallet buckets (hot data)
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE REFERENCES users(id),
		currency TEXT NOT NULL,
		spendable {{money}} NOT NULL DEFAULT '0',
		invested {{money}} NOT NULL DEFAULT '0',
		gains {{money}} NOT NULL DEFAULT '0',
		bonus {{money}} NOT NULL DEFAULT '0',
		airdrop {{money}} NOT NULL DEFAULT '0',
		airdrop_last_claimed_at {{ts}},
		version INTEGER NOT NULL DEFAULT 1,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	);

	-- Transactions (append-only audit trail)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		bucket TEXT NOT NULL,
		counter_bucket TEXT,
		amount {{money}} NOT NULL,
		balance_before {{money}} NOT NULL,
		balance_after {{money}} NOT NULL,
		idempotency_key TEXT UNIQUE,
		reference TEXT,
		description TEXT NOT NULL DEFAULT '',
		related_subscription_id TEXT,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_wallet_type ON transactions(wallet_id, type, status);
	CREATE INDEX IF NOT EXISTS idx_transactions_wallet_created ON transactions(wallet_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference ON transactions(reference);

	-- Deposit intents; an address is never issued twice
	CREATE TABLE IF NOT EXISTS deposit_intents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		currency TEXT NOT NULL,
		network TEXT NOT NULL,
		address TEXT NOT NULL UNIQUE,
		wallet_ref TEXT NOT NULL DEFAULT '',
		expected_amount {{money}} NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		expires_at {{ts}} NOT NULL,
		completed_at {{ts}},
		created_at {{ts}} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deposit_intents_user_status ON deposit_intents(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_deposit_intents_lookup ON deposit_intents(user_id, currency, network, status);

	-- Plans and subscriptions
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		duration_days INTEGER NOT NULL,
		min_amount {{money}} NOT NULL,
		max_amount {{money}} NOT NULL,
		gain_multiplier {{money}} NOT NULL,
		signals_per_day INTEGER NOT NULL DEFAULT 4,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at {{ts}} NOT NULL
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		plan_id TEXT NOT NULL REFERENCES plans(id),
		invested_amount {{money}} NOT NULL,
		start_date {{ts}} NOT NULL,
		end_date {{ts}} NOT NULL,
		status TEXT NOT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_subscriptions_user_status ON subscriptions(user_id, status);

	-- Signals and redemptions
	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL REFERENCES plans(id),
		code TEXT NOT NULL,
		status TEXT NOT NULL,
		is_exclusive BOOLEAN NOT NULL DEFAULT FALSE,
		expires_at {{ts}} NOT NULL,
		created_at {{ts}} NOT NULL,
		UNIQUE(code, plan_id)
	);

	CREATE INDEX IF NOT EXISTS idx_signals_plan_expires ON signals(plan_id, expires_at);

	CREATE TABLE IF NOT EXISTS user_signals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		signal_id TEXT NOT NULL REFERENCES signals(id),
		used_at {{ts}} NOT NULL,
		UNIQUE(user_id, signal_id)
	);

	-- Referral level table
	CREATE TABLE IF NOT EXISTS referral_levels (
		level INTEGER PRIMARY KEY,
		min_referrals INTEGER NOT NULL,
		weekly_salary {{money}} NOT NULL DEFAULT '0'
	);
	`

func (d dialect) schema() string {
	return strings.NewReplacer("{{money}}", d.moneyType, "{{ts}}", d.timestampType).Replace(schemaTemplate)
}

// InitSchema creates every table and index if they do not exist yet.
func (s *Service) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.dialect.schema())
	return err
}
