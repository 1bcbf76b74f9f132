package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type AssetConfig struct {
	Symbol       string `yaml:"symbol"`
	Network      string `yaml:"network"`
	PrimeNetwork string `yaml:"prime_network"`
	WalletId     string `yaml:"wallet_id"`
}

// PlanConfig keeps amounts as strings so they parse exactly into decimals.
type PlanConfig struct {
	Name           string `yaml:"name"`
	DurationDays   int    `yaml:"duration_days"`
	MinAmount      string `yaml:"min_amount"`
	MaxAmount      string `yaml:"max_amount"`
	GainMultiplier string `yaml:"gain_multiplier"`
	SignalsPerDay  int    `yaml:"signals_per_day"`
	Active         *bool  `yaml:"active"`
}

type ReferralLevelConfig struct {
	Level        int    `yaml:"level"`
	MinReferrals int    `yaml:"min_referrals"`
	WeeklySalary string `yaml:"weekly_salary"`
}

type SeedConfig struct {
	Assets         []AssetConfig         `yaml:"assets"`
	Plans          []PlanConfig          `yaml:"plans"`
	ReferralLevels []ReferralLevelConfig `yaml:"referral_levels"`
}

// Seed is a parsed and validated SeedConfig.
type Seed struct {
	Assets         []models.MonitoredAsset
	Plans          []models.Plan
	ReferralLevels []models.ReferralLevel
}

func resolvePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(wd, file), nil
}

// LoadSeed reads the seed file holding monitored assets, plans and referral levels.
func LoadSeed(file string) (*Seed, error) {
	path, err := resolvePath(file)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", file, err)
	}

	seed, err := ParseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", file, err)
	}
	return seed, nil
}

func ParseSeed(data []byte) (*Seed, error) {
	var cfg SeedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	seed := &Seed{}
	for i, a := range cfg.Assets {
		if a.Symbol == "" {
			return nil, fmt.Errorf("asset at index %d missing symbol", i)
		}
		if a.Network == "" {
			return nil, fmt.Errorf("asset at index %d missing network", i)
		}
		seed.Assets = append(seed.Assets, models.MonitoredAsset{
			Symbol:       strings.ToUpper(a.Symbol),
			Network:      strings.ToUpper(a.Network),
			PrimeNetwork: a.PrimeNetwork,
			WalletId:     a.WalletId,
		})
	}

	for i, p := range cfg.Plans {
		plan, err := p.toPlan()
		if err != nil {
			return nil, fmt.Errorf("plan at index %d: %w", i, err)
		}
		seed.Plans = append(seed.Plans, plan)
	}

	for i, l := range cfg.ReferralLevels {
		salary, err := decimal.NewFromString(l.WeeklySalary)
		if err != nil {
			return nil, fmt.Errorf("referral level at index %d: invalid weekly_salary %q", i, l.WeeklySalary)
		}
		if l.Level <= 0 || l.MinReferrals < 0 || salary.IsNegative() {
			return nil, fmt.Errorf("referral level at index %d is invalid", i)
		}
		seed.ReferralLevels = append(seed.ReferralLevels, models.ReferralLevel{
			Level:        l.Level,
			MinReferrals: l.MinReferrals,
			WeeklySalary: salary,
		})
	}
	return seed, nil
}

func (p PlanConfig) toPlan() (models.Plan, error) {
	if p.Name == "" {
		return models.Plan{}, fmt.Errorf("missing name")
	}
	if p.DurationDays <= 0 {
		return models.Plan{}, fmt.Errorf("%s: duration_days must be positive", p.Name)
	}

	amounts := make([]decimal.Decimal, 3)
	for i, raw := range []string{p.MinAmount, p.MaxAmount, p.GainMultiplier} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return models.Plan{}, fmt.Errorf("%s: invalid amount %q", p.Name, raw)
		}
		amounts[i] = d
	}
	if !amounts[0].IsPositive() || amounts[1].LessThan(amounts[0]) {
		return models.Plan{}, fmt.Errorf("%s: min_amount must be positive and not above max_amount", p.Name)
	}

	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return models.Plan{
		Name:           p.Name,
		DurationDays:   p.DurationDays,
		MinAmount:      amounts[0],
		MaxAmount:      amounts[1],
		GainMultiplier: amounts[2],
		SignalsPerDay:  p.SignalsPerDay,
		IsActive:       active,
	}, nil
}

// Apply upserts plans and referral levels in one atomic unit. Plans without a
// per-plan signal count get the configured default.
func (s *Seed) Apply(ctx context.Context, st store.Store, defaultSignalsPerDay int) error {
	return st.Atomically(ctx, func(q store.Querier) error {
		for i := range s.Plans {
			plan := s.Plans[i]
			if plan.SignalsPerDay <= 0 {
				plan.SignalsPerDay = defaultSignalsPerDay
			}
			if err := q.UpsertPlan(ctx, &plan); err != nil {
				return err
			}
			zap.L().Info("Plan seeded",
				zap.String("name", plan.Name),
				zap.String("min_amount", plan.MinAmount.String()),
				zap.String("max_amount", plan.MaxAmount.String()),
				zap.Bool("active", plan.IsActive))
		}
		for _, level := range s.ReferralLevels {
			if err := q.UpsertReferralLevel(ctx, level); err != nil {
				return err
			}
			zap.L().Info("Referral level seeded",
				zap.Int("level", level.Level),
				zap.Int("min_referrals", level.MinReferrals),
				zap.String("weekly_salary", level.WeeklySalary.String()))
		}
		return nil
	})
}

// AssetSymbols lists assets as SYMBOL-NETWORK.
func (s *Seed) AssetSymbols() []string {
	symbols := make([]string, len(s.Assets))
	for i, a := range s.Assets {
		symbols[i] = fmt.Sprintf("%s-%s", a.Symbol, a.Network)
	}
	return symbols
}
