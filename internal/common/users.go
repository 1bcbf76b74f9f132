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

package common

import (
	"context"
	"fmt"

	"yield-ledger-go/internal/bonus"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"

	"go.uber.org/zap"
)

// RegisterUser creates a user and its wallet and grants the welcome bonus, all
// in one atomic unit. referrerEmail may be empty.
func RegisterUser(ctx context.Context, st store.Store, bonusEngine *bonus.Engine, name, email, referrerEmail string) (*models.User, *models.Wallet, error) {
	var referrerId string
	if referrerEmail != "" {
		referrer, err := st.GetUserByEmail(ctx, referrerEmail)
		if err != nil {
			return nil, nil, fmt.Errorf("referrer lookup failed: %w", err)
		}
		referrerId = referrer.Id
	}

	var user *models.User
	var wallet *models.Wallet
	err := st.Atomically(ctx, func(q store.Querier) error {
		var err error
		user, err = q.CreateUser(ctx, store.CreateUserParams{Name: name, Email: email, ReferrerId: referrerId})
		if err != nil {
			return err
		}
		wallet, err = q.CreateWallet(ctx, user.Id, models.DefaultCurrency)
		if err != nil {
			return err
		}
		_, err = bonusEngine.GrantWelcomeBonus(ctx, q, wallet)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("User registered",
		zap.String("user_id", user.Id),
		zap.String("email", user.Email),
		zap.String("referrer_id", referrerId),
		zap.String("bonus", wallet.Bonus.String()))
	return user, wallet, nil
}

// ResolveUsers returns the user with the given email, or every user when
// emailFilter is empty.
func ResolveUsers(ctx context.Context, st store.Querier, emailFilter string) ([]models.User, error) {
	if emailFilter != "" {
		zap.L().Info("Looking up user by email", zap.String("email", emailFilter))
		user, err := st.GetUserByEmail(ctx, emailFilter)
		if err != nil {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return []models.User{*user}, nil
	}

	users, err := st.GetUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	zap.L().Info("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}
