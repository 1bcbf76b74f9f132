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
	"flag"
	"fmt"
	"time"

	"yield-ledger-go/internal/common"
	"yield-ledger-go/internal/config"
	"yield-ledger-go/internal/models"

	"go.uber.org/zap"
)

type reportStats struct {
	totalUsers       int
	totalIntents     int
	usersWithIntents int
}

func printIntent(intent models.DepositIntent, now time.Time, isLast bool) {
	state := "live"
	if intent.Expired(now) {
		state = "expired"
	}
	network := fmt.Sprintf("%s-%s", intent.Currency, intent.Network)
	fmt.Printf("%s %-14s → %s (%s, expires %s)\n",
		common.BoxPrefix(isLast), network, intent.Address, state, intent.ExpiresAt.Format("2006-01-02 15:04"))
	if intent.WalletRef != "" {
		fmt.Printf("%s   Wallet: %s\n", common.BoxDetailPrefix(isLast), intent.WalletRef)
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific user email (optional)")
	issueFlag := flag.String("issue", "", "Issue (or reuse) a deposit address on this network for --email, e.g. ERC20")
	checkFlag := flag.Bool("check", false, "Reconcile pending deposits for the listed users before reporting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg, false)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if (*issueFlag != "" || *checkFlag) && services.RequirePrime() != nil {
		logger.Fatal("Prime credentials are required for --issue and --check")
	}

	users, err := common.ResolveUsers(ctx, services.DbService, *emailFlag)
	if err != nil {
		logger.Fatal("Failed to load users", zap.Error(err))
	}

	if *issueFlag != "" {
		if *emailFlag == "" {
			logger.Fatal("--issue requires --email")
		}
		intent, err := services.Issuer.Issue(ctx, users[0].Id, models.DefaultCurrency, *issueFlag)
		if err != nil {
			logger.Fatal("Failed to issue deposit address", zap.Error(err))
		}
		fmt.Printf("✓ %s-%s: %s\n", intent.Currency, intent.Network, intent.Address)
	}

	common.PrintHeader("PENDING DEPOSIT ADDRESSES", common.WideWidth)

	now := time.Now().UTC()
	stats := reportStats{}
	for _, user := range users {
		stats.totalUsers++

		if *checkFlag {
			result, err := services.Reconciler.ProcessPendingForUser(models.WithTrigger(ctx, models.TriggerCLI), user.Id)
			if err != nil {
				logger.Error("Failed to reconcile user", zap.String("user_id", user.Id), zap.Error(err))
			} else if result.Credited > 0 {
				fmt.Printf("\n✓ %s: %d deposit(s) credited\n", user.Email, result.Credited)
			}
		}

		intents, err := services.DbService.ListPendingIntents(ctx, user.Id)
		if err != nil {
			logger.Error("Failed to list deposit intents",
				zap.String("user_id", user.Id),
				zap.Error(err))
			continue
		}
		if len(intents) == 0 {
			continue
		}

		stats.usersWithIntents++
		stats.totalIntents += len(intents)
		common.PrintUserHeader(user, fmt.Sprintf("Pending: %d", len(intents)), 98)
		for i, intent := range intents {
			printIntent(intent, now, i == len(intents)-1)
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d pending addresses across %d users (%d users queried)",
		stats.totalIntents, stats.usersWithIntents, stats.totalUsers)
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Address query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_intents", stats.usersWithIntents),
		zap.Int("total_intents", stats.totalIntents))
}
