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
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type withdrawalRequest struct {
	email       string
	amount      decimal.Decimal
	destination string
}

type adminAction struct {
	approve string
	confirm string
	reject  string
	reason  string
}

func parseAndValidateFlags() (*withdrawalRequest, *adminAction, error) {
	emailFlag := flag.String("email", "", "User email")
	amountFlag := flag.String("amount", "", "Amount to withdraw")
	destinationFlag := flag.String("destination", "", "Destination address")
	approveFlag := flag.String("approve", "", "Withdrawal transaction id to approve")
	confirmFlag := flag.String("confirm", "", "Withdrawal transaction id to confirm as sent")
	rejectFlag := flag.String("reject", "", "Withdrawal transaction id to reject and refund")
	reasonFlag := flag.String("reason", "", "Rejection reason")
	flag.Parse()

	if *approveFlag != "" || *confirmFlag != "" || *rejectFlag != "" {
		return nil, &adminAction{approve: *approveFlag, confirm: *confirmFlag, reject: *rejectFlag, reason: *reasonFlag}, nil
	}

	if *emailFlag == "" || *amountFlag == "" || *destinationFlag == "" {
		return nil, nil, fmt.Errorf("all flags are required: --email, --amount, --destination")
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid amount format: %w", err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, fmt.Errorf("amount must be greater than zero")
	}

	return &withdrawalRequest{email: *emailFlag, amount: amount, destination: *destinationFlag}, nil, nil
}

func printWithdrawalSummary(user *models.User, w *models.Wallet, req *withdrawalRequest, fee decimal.Decimal) {
	common.PrintHeader("WITHDRAWAL REQUEST", common.DefaultWidth)
	fmt.Printf("User:              %s (%s)\n", user.Name, user.Email)
	fmt.Printf("Spendable:         %s\n", common.FormatAmount(w.Spendable, w.Currency))
	fmt.Printf("Withdrawal Amount: %s\n", common.FormatAmount(req.amount, w.Currency))
	fmt.Printf("Fee:               %s\n", common.FormatAmount(fee, w.Currency))
	fmt.Printf("Destination:       %s\n", req.destination)
	common.PrintSeparator("=", common.DefaultWidth)
}

func runAdminAction(ctx context.Context, services *common.Services, action *adminAction) {
	var tx *models.Transaction
	var err error
	switch {
	case action.approve != "":
		tx, err = services.Wallets.ApproveWithdrawal(ctx, action.approve)
	case action.confirm != "":
		tx, err = services.Wallets.ConfirmWithdrawal(ctx, action.confirm)
	default:
		tx, err = services.Wallets.RejectWithdrawal(ctx, action.reject, action.reason)
	}
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			zap.L().Fatal("Withdrawal is not in the expected state", zap.Error(err))
		}
		zap.L().Fatal("Withdrawal update failed", zap.Error(err))
	}

	fmt.Printf("✓ Transaction %s: %s %s (%s)\n", tx.Id, tx.Type, tx.Amount.StringFixed(models.FiatPrecision), tx.Status)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, action, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg, false)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if action != nil {
		runAdminAction(ctx, services, action)
		return
	}

	zap.L().Info("Starting withdrawal request",
		zap.String("email", req.email),
		zap.String("amount", req.amount.String()),
		zap.String("destination", req.destination))

	user, err := services.DbService.GetUserByEmail(ctx, req.email)
	if err != nil {
		zap.L().Fatal("User not found", zap.String("email", req.email), zap.Error(err))
	}
	w, err := services.DbService.GetWalletByUserId(ctx, user.Id)
	if err != nil {
		zap.L().Fatal("Failed to load wallet", zap.Error(err))
	}

	printWithdrawalSummary(user, w, req, services.Wallets.WithdrawalFee(req.amount))

	withdrawal, err := services.Wallets.RequestWithdrawal(ctx, user.Id, req.amount, req.destination)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			fmt.Println("\n❌ Insufficient spendable balance for amount plus fee")
		}
		zap.L().Fatal("Withdrawal request failed", zap.Error(err))
	}

	fmt.Println("\n✅ Withdrawal submitted for approval")
	fmt.Printf("   Transaction ID: %s\n", withdrawal.Transaction.Id)
	fmt.Printf("   Status:         %s\n\n", withdrawal.Transaction.Status)
}
