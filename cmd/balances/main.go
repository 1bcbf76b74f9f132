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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"yield-ledger-go/internal/common"
	"yield-ledger-go/internal/config"
	"yield-ledger-go/internal/database"
	"yield-ledger-go/internal/formance"
	"yield-ledger-go/internal/ledger"
	"yield-ledger-go/internal/models"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalUsers     int
	fundedUsers    int
	driftedWallets int
	mirrorMismatch int
}

func printTransactions(txs []models.Transaction) {
	for i, tx := range txs {
		fmt.Printf("%s %-12s %-22s %-10s %14s  %-22s %s\n",
			common.BoxPrefix(i == len(txs)-1),
			common.ShortId(tx.Id),
			tx.Type,
			tx.Bucket,
			tx.Amount.StringFixed(models.FiatPrecision),
			tx.Status,
			tx.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func processUser(ctx context.Context, user models.User, dbService *database.Service, mirror *formance.Service, history int, audit bool, stats *balanceStats) error {
	w, err := dbService.GetWalletByUserId(ctx, user.Id)
	if err != nil {
		return fmt.Errorf("failed to get wallet: %w", err)
	}

	common.PrintUserHeader(user, fmt.Sprintf("Level: %d (direct %d, team %d)",
		user.ReferralLevel, user.DirectActiveReferrals, user.TotalActiveTeam), 78)
	common.PrintBuckets(w)
	if w.Total().IsPositive() {
		stats.fundedUsers++
	}

	if history > 0 {
		txs, err := dbService.ListTransactions(ctx, w.Id, history, 0)
		if err != nil {
			return fmt.Errorf("failed to list transactions: %w", err)
		}
		fmt.Printf("│\n│  Last %d transactions\n", len(txs))
		printTransactions(txs)
	}

	if audit {
		_, txs, err := ledger.NewService(nil).Audit(ctx, dbService, user.Id)
		switch {
		case errors.Is(err, ledger.ErrUnbalanced):
			stats.driftedWallets++
			fmt.Printf("   ✗ Ledger drift: %v\n", err)
		case err != nil:
			return err
		default:
			fmt.Printf("   ✓ Buckets match %d ledger rows\n", len(txs))
		}
	}

	if audit && mirror != nil {
		mirrored, err := mirror.BucketBalances(ctx, user.Id, w.Currency)
		if err != nil {
			return fmt.Errorf("failed to read mirrored balances: %w", err)
		}
		for _, b := range models.Buckets {
			if !mirrored[b].Equal(w.Balance(b)) {
				stats.mirrorMismatch++
				fmt.Printf("   ✗ Mirror %s: local=%s formance=%s\n", b, w.Balance(b), mirrored[b])
			}
		}
	}
	return nil
}

func connectMirror(ctx context.Context, cfg models.FormanceConfig) *formance.Service {
	if !cfg.Enabled() {
		return nil
	}
	mirror, err := formance.NewService(ctx, cfg)
	if err != nil {
		zap.L().Warn("Formance mirror unavailable, skipping mirror comparison", zap.Error(err))
		return nil
	}
	return mirror
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific user email (optional)")
	historyFlag := flag.Int("history", 0, "Show the last N transactions per user")
	auditFlag := flag.Bool("audit", false, "Check every bucket against the transaction log")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// read-only: no Prime API needed
	logger.Info("Connecting to database", zap.String("driver", cfg.Database.Driver))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	users, err := common.ResolveUsers(ctx, dbService, *emailFlag)
	if err != nil {
		logger.Fatal("Failed to load users", zap.Error(err))
	}

	common.PrintHeader("WALLET BALANCE REPORT", common.DefaultWidth)

	var mirror *formance.Service
	if *auditFlag {
		mirror = connectMirror(ctx, cfg.Formance)
	}

	stats := &balanceStats{}
	for _, user := range users {
		stats.totalUsers++
		if err := processUser(ctx, user, dbService, mirror, *historyFlag, *auditFlag, stats); err != nil {
			logger.Error("Failed to process user",
				zap.String("user_id", user.Id),
				zap.String("user_name", user.Name),
				zap.Error(err))
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d of %d users hold funds", stats.fundedUsers, stats.totalUsers)
	if *auditFlag {
		summary += fmt.Sprintf(", %d wallets drifted, %d mirror mismatches", stats.driftedWallets, stats.mirrorMismatch)
	}
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_funds", stats.fundedUsers),
		zap.Int("drifted_wallets", stats.driftedWallets))
}
