/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

// Queries are written with ? placeholders and rebound per dialect.
const (
	// User queries
	userColumns = `id, name, email, referrer_id, referral_level, direct_active_referrals, total_active_team, created_at, updated_at`

	queryInsertUser = `
		INSERT INTO users (id, name, email, referrer_id, referral_level, direct_active_referrals, total_active_team, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 0, 0, ?, ?)`

	queryGetUsers = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at`

	queryGetUserById = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = ?`

	queryGetUserByEmail = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = ?`

	queryLockUser = `
		SELECT id FROM users WHERE id = ?`

	queryUpdateReferralStats = `
		UPDATE users
		SET referral_level = ?, direct_active_referrals = ?, total_active_team = ?, updated_at = ?
		WHERE id = ?`

	queryCountDirectActiveReferrals = `
		SELECT COUNT(*)
		FROM users u
		JOIN wallets w ON w.user_id = u.id
		WHERE u.referrer_id = ? AND CAST(w.invested AS REAL) > 0`

	queryCountActiveDescendants = `
		WITH RECURSIVE team(id) AS (
			SELECT id FROM users WHERE referrer_id = ?
			UNION
			SELECT u.id FROM users u JOIN team t ON u.referrer_id = t.id
		)
		SELECT COUNT(DISTINCT t.id)
		FROM team t
		JOIN wallets w ON w.user_id = t.id
		WHERE CAST(w.invested AS REAL) > 0`

	queryListReferralEdges = `
		SELECT u.id, u.referrer_id, CASE WHEN CAST(w.invested AS REAL) > 0 THEN 1 ELSE 0 END
		FROM users u
		LEFT JOIN wallets w ON w.user_id = u.id`

	// Wallet queries
	walletColumns = `id, user_id, currency, spendable, invested, gains, bonus, airdrop, airdrop_last_claimed_at, version, created_at, updated_at`

	queryInsertWallet = `
		INSERT INTO wallets (id, user_id, currency, spendable, invested, gains, bonus, airdrop, version, created_at, updated_at)
		VALUES (?, ?, ?, '0', '0', '0', '0', '0', 1, ?, ?)`

	queryGetWalletByUserId = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = ?`

	queryUpdateWallet = `
		UPDATE wallets
		SET spendable = ?, invested = ?, gains = ?, bonus = ?, airdrop = ?, airdrop_last_claimed_at = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	// Transaction queries
	transactionColumns = `id, wallet_id, user_id, type, status, bucket, counter_bucket, amount, balance_before, balance_after,
		idempotency_key, reference, description, related_subscription_id, created_at, updated_at`

	queryInsertTransaction = `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransaction = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = ?`

	queryGetTransactionByKey = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE idempotency_key = ?`

	queryFindTransactionByReference = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE wallet_id = ? AND type = ? AND reference = ?
		ORDER BY created_at DESC
		LIMIT 1`

	queryCountTransactions = `
		SELECT COUNT(*)
		FROM transactions
		WHERE wallet_id = ? AND type = ? AND status = ?`

	queryHasTransactionSince = `
		SELECT COUNT(*)
		FROM transactions
		WHERE wallet_id = ? AND type = ? AND created_at >= ?`

	queryListTransactions = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE wallet_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`

	queryUpdateTransactionStatus = `
		UPDATE transactions
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	// Deposit intent queries
	depositColumns = `id, user_id, currency, network, address, wallet_ref, expected_amount, status, expires_at, completed_at, created_at`

	queryInsertDepositIntent = `
		INSERT INTO deposit_intents (` + depositColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryFindReusableIntent = `
		SELECT ` + depositColumns + `
		FROM deposit_intents
		WHERE user_id = ? AND currency = ? AND network = ? AND status = 'pending' AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1`

	queryListPendingIntents = `
		SELECT ` + depositColumns + `
		FROM deposit_intents
		WHERE user_id = ? AND status = 'pending'
		ORDER BY created_at`

	queryListUsersWithPendingIntents = `
		SELECT DISTINCT user_id
		FROM deposit_intents
		WHERE status = 'pending'`

	queryLockPendingIntent = `
		SELECT ` + depositColumns + `
		FROM deposit_intents
		WHERE id = ? AND status = 'pending'`

	queryCompleteIntent = `
		UPDATE deposit_intents
		SET status = 'completed', completed_at = ?
		WHERE id = ? AND status = 'pending'`

	queryAddressInUse = `
		SELECT COUNT(*) FROM deposit_intents WHERE LOWER(address) = LOWER(?)`

	// Plan queries
	planColumns = `id, name, duration_days, min_amount, max_amount, gain_multiplier, signals_per_day, is_active, created_at`

	queryUpsertPlan = `
		INSERT INTO plans (` + planColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			duration_days = excluded.duration_days,
			min_amount = excluded.min_amount,
			max_amount = excluded.max_amount,
			gain_multiplier = excluded.gain_multiplier,
			signals_per_day = excluded.signals_per_day,
			is_active = excluded.is_active`

	queryGetPlan = `
		SELECT ` + planColumns + `
		FROM plans
		WHERE id = ?`

	queryGetPlanByName = `
		SELECT ` + planColumns + `
		FROM plans
		WHERE name = ?`

	queryListActivePlans = `
		SELECT ` + planColumns + `
		FROM plans
		WHERE is_active = TRUE
		ORDER BY name`

	// Subscription queries
	subscriptionColumns = `id, user_id, wallet_id, plan_id, invested_amount, start_date, end_date, status, created_at, updated_at`

	queryInsertSubscription = `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetActiveSubscription = `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = ? AND status = 'active'
		ORDER BY start_date DESC
		LIMIT 1`

	queryGetActiveSubscriptionForPlan = `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = ? AND plan_id = ? AND status = 'active'
		ORDER BY start_date DESC
		LIMIT 1`

	queryListActiveSubscriptions = `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'active'
		ORDER BY start_date`

	queryUpdateSubscription = `
		UPDATE subscriptions
		SET plan_id = ?, invested_amount = ?, start_date = ?, end_date = ?, status = ?, updated_at = ?
		WHERE id = ?`

	// Referral level queries
	queryUpsertReferralLevel = `
		INSERT INTO referral_levels (level, min_referrals, weekly_salary)
		VALUES (?, ?, ?)
		ON CONFLICT (level) DO UPDATE SET
			min_referrals = excluded.min_referrals,
			weekly_salary = excluded.weekly_salary`

	queryListReferralLevels = `
		SELECT level, min_referrals, weekly_salary
		FROM referral_levels
		ORDER BY min_referrals DESC, level DESC`

	// Signal queries
	signalColumns = `id, plan_id, code, status, is_exclusive, expires_at, created_at`

	queryInsertSignal = `
		INSERT INTO signals (` + signalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryFindSignalsByCode = `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE code = ?
		ORDER BY created_at DESC`

	queryUserSignalExists = `
		SELECT COUNT(*) FROM user_signals WHERE user_id = ? AND signal_id = ?`

	queryInsertUserSignal = `
		INSERT INTO user_signals (id, user_id, signal_id, used_at)
		VALUES (?, ?, ?, ?)`
)
