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

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var referrerId sql.NullString
	err := row.Scan(&user.Id, &user.Name, &user.Email, &referrerId,
		&user.ReferralLevel, &user.DirectActiveReferrals, &user.TotalActiveTeam,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.ReferrerId = referrerId.String
	return &user, nil
}

func (q *queries) GetUsers(ctx context.Context) ([]models.User, error) {
	zap.L().Debug("Querying users")

	rows, err := q.query(ctx, queryGetUsers)
	if err != nil {
		zap.L().Error("Failed to query users", zap.Error(err))
		return nil, fmt.Errorf("unable to query users: %w", err)
	}
	defer closeRows(rows)

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			zap.L().Error("Failed to scan user row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan user row: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during user row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	zap.L().Debug("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}

func (q *queries) GetUserById(ctx context.Context, userId string) (*models.User, error) {
	user, err := scanUser(q.queryRow(ctx, queryGetUserById, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrUserNotFound, userId)
		}
		zap.L().Error("Failed to query user by ID", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("unable to query user by ID: %w", err)
	}
	return user, nil
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := scanUser(q.queryRow(ctx, queryGetUserByEmail, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrUserNotFound, email)
		}
		zap.L().Error("Failed to query user by email", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("unable to query user by email: %w", err)
	}
	return user, nil
}

func (q *queries) CreateUser(ctx context.Context, params store.CreateUserParams) (*models.User, error) {
	if params.Id == "" {
		params.Id = uuid.New().String()
	}
	zap.L().Info("Creating user",
		zap.String("id", params.Id),
		zap.String("name", params.Name),
		zap.String("email", params.Email),
		zap.String("referrer_id", params.ReferrerId))

	now := time.Now().UTC()
	_, err := q.exec(ctx, queryInsertUser, params.Id, params.Name, params.Email, nullString(params.ReferrerId), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: user with email %s already exists", store.ErrConflict, params.Email)
		}
		zap.L().Error("Failed to insert user", zap.String("email", params.Email), zap.Error(err))
		return nil, fmt.Errorf("unable to insert user: %w", err)
	}

	return q.GetUserById(ctx, params.Id)
}

func (q *queries) LockUser(ctx context.Context, userId string) error {
	var id string
	err := q.queryRow(ctx, q.dialect.locking(queryLockUser), userId).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", store.ErrUserNotFound, userId)
		}
		return fmt.Errorf("unable to lock user: %w", err)
	}
	return nil
}

func (q *queries) UpdateReferralStats(ctx context.Context, userId string, stats store.ReferralStats) error {
	result, err := q.exec(ctx, queryUpdateReferralStats,
		stats.Level, stats.DirectActiveReferrals, stats.TotalActiveTeam, time.Now().UTC(), userId)
	if err != nil {
		return fmt.Errorf("unable to update referral stats: %w", err)
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrUserNotFound, userId)
	}
	return nil
}

func (q *queries) CountDirectActiveReferrals(ctx context.Context, userId string) (int, error) {
	n, err := q.count(ctx, queryCountDirectActiveReferrals, userId)
	if err != nil {
		return 0, fmt.Errorf("unable to count direct active referrals: %w", err)
	}
	return n, nil
}

func (q *queries) CountActiveDescendants(ctx context.Context, userId string) (int, error) {
	n, err := q.count(ctx, queryCountActiveDescendants, userId)
	if err != nil {
		return 0, fmt.Errorf("unable to count active team members: %w", err)
	}
	return n, nil
}

func (q *queries) ListReferralEdges(ctx context.Context) ([]store.ReferralEdge, error) {
	rows, err := q.query(ctx, queryListReferralEdges)
	if err != nil {
		return nil, fmt.Errorf("unable to query referral edges: %w", err)
	}
	defer closeRows(rows)

	var edges []store.ReferralEdge
	for rows.Next() {
		var edge store.ReferralEdge
		var referrerId sql.NullString
		var active int
		if err := rows.Scan(&edge.UserId, &referrerId, &active); err != nil {
			return nil, fmt.Errorf("unable to scan referral edge: %w", err)
		}
		edge.ReferrerId = referrerId.String
		edge.Active = active == 1
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referral edges: %w", err)
	}
	return edges, nil
}
