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

package config

import (
	"fmt"

	"yield-ledger-go/internal/models"

	"github.com/kelseyhightower/envconfig"
)

// Load reads every configuration section from the environment. Each section
// is processed without a prefix so variable names match their tags exactly.
func Load() (*models.Config, error) {
	var cfg models.Config

	sections := []struct {
		name   string
		target interface{}
	}{
		{"database", &cfg.Database},
		{"reconciler", &cfg.Reconciler},
		{"scheduler", &cfg.Scheduler},
		{"rewards", &cfg.Rewards},
		{"prime", &cfg.Prime},
		{"formance", &cfg.Formance},
		{"hub", &cfg.Hub},
	}

	for _, section := range sections {
		if err := envconfig.Process("", section.target); err != nil {
			return nil, fmt.Errorf("unable to load %s configuration: %w", section.name, err)
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the services rely on at construction time.
func Validate(cfg *models.Config) error {
	switch cfg.Database.Driver {
	case "sqlite3":
		if cfg.Database.Path == "" {
			return fmt.Errorf("DATABASE_PATH cannot be empty for sqlite3")
		}
	case "pgx":
		if cfg.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for pgx")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want sqlite3 or pgx)", cfg.Database.Driver)
	}

	if cfg.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("max open connections must be positive, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns < 0 {
		return fmt.Errorf("max idle connections cannot be negative, got %d", cfg.Database.MaxIdleConns)
	}
	if cfg.Database.PingTimeout <= 0 {
		return fmt.Errorf("ping timeout must be positive, got %v", cfg.Database.PingTimeout)
	}

	if cfg.Reconciler.PollingInterval <= 0 {
		return fmt.Errorf("RECONCILER_POLLING_INTERVAL must be positive")
	}
	if cfg.Reconciler.SweepConcurrency <= 0 {
		return fmt.Errorf("RECONCILER_SWEEP_CONCURRENCY must be positive")
	}
	if cfg.Reconciler.AddressTTL <= 0 {
		return fmt.Errorf("DEPOSIT_ADDRESS_TTL must be positive")
	}

	if cfg.Rewards.SignalsPerDay <= 0 {
		return fmt.Errorf("SIGNALS_PER_DAY must be positive, got %d", cfg.Rewards.SignalsPerDay)
	}
	if cfg.Rewards.WithdrawalFeeRate.IsNegative() {
		return fmt.Errorf("WITHDRAWAL_FEE_RATE cannot be negative")
	}

	if cfg.Formance.Enabled() && (cfg.Formance.ClientID == "" || cfg.Formance.ClientSecret == "") {
		return fmt.Errorf("formance mirror requires FORMANCE_CLIENT_ID and FORMANCE_CLIENT_SECRET")
	}
	return nil
}
