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
	"regexp"
	"strings"

	"yield-ledger-go/internal/common"
	"yield-ledger-go/internal/config"
	"yield-ledger-go/internal/store"

	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func issueAddresses(ctx context.Context, services *common.Services, userId string) (int, []string) {
	fmt.Printf("Issuing deposit addresses for %d networks...\n\n", len(services.Seed.Assets))

	var issued int
	var failed []string
	for _, asset := range services.Seed.Assets {
		intent, err := services.Issuer.Issue(ctx, userId, asset.Symbol, asset.Network)
		if err != nil {
			zap.L().Error("Failed to issue deposit address",
				zap.String("asset", asset.Symbol),
				zap.String("network", asset.Network),
				zap.Error(err))
			fmt.Printf("✗ %s-%s: Failed to create address\n", asset.Symbol, asset.Network)
			failed = append(failed, asset.Network)
			continue
		}
		fmt.Printf("✓ %s-%s: %s\n", asset.Symbol, asset.Network, intent.Address)
		issued++
	}
	return issued, failed
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "", "User's full name (required)")
	emailFlag := flag.String("email", "", "User's email address (required)")
	referrerFlag := flag.String("referrer", "", "Email of the referring user (optional)")
	flag.Parse()

	if *nameFlag == "" || *emailFlag == "" {
		zap.L().Fatal("Both flags are required: --name and --email")
	}
	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
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

	user, wallet, err := common.RegisterUser(ctx, services.DbService, services.Bonus, *nameFlag, *emailFlag, *referrerFlag)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			zap.L().Fatal("User already exists with this email", zap.String("email", *emailFlag))
		}
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	fmt.Println()
	common.PrintHeader("USER CREATED", common.DefaultWidth)
	fmt.Printf("ID:       %s\n", user.Id)
	fmt.Printf("Name:     %s\n", user.Name)
	fmt.Printf("Email:    %s\n", user.Email)
	if user.HasReferrer() {
		fmt.Printf("Referrer: %s\n", *referrerFlag)
	}
	fmt.Printf("Bonus:    %s\n", common.FormatAmount(wallet.Bonus, wallet.Currency))
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	if services.RequirePrime() != nil || len(services.Seed.Assets) == 0 {
		fmt.Println("User created but no deposit addresses issued")
		fmt.Println("Configure Prime credentials and the seed file, then run: go run cmd/setup/main.go --addresses")
		return
	}

	issued, failed := issueAddresses(ctx, services, user.Id)

	fmt.Println()
	common.PrintHeader("ADDRESS SUMMARY", common.DefaultWidth)
	fmt.Printf("Networks:   %d\n", len(services.Seed.Assets))
	fmt.Printf("Issued:     %d\n", issued)
	fmt.Printf("Failed:     %d\n", len(failed))
	if len(failed) > 0 {
		fmt.Printf("Failed on:  %s\n", strings.Join(failed, ", "))
	}
	common.PrintSeparator("=", common.DefaultWidth)

	if len(failed) > 0 {
		zap.L().Warn("User created but some addresses failed",
			zap.String("user_id", user.Id),
			zap.Strings("failed_networks", failed))
		fmt.Println("You can re-run address issuing: go run cmd/setup/main.go --addresses --email", user.Email)
	}
}
