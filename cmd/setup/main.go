package main

import (
	"context"
	"flag"
	"fmt"

	"yield-ledger-go/internal/common"
	"yield-ledger-go/internal/config"
	"yield-ledger-go/internal/models"

	"go.uber.org/zap"
)

// issueAddresses makes sure every user has a live deposit address on every
// monitored network.
func issueAddresses(ctx context.Context, services *common.Services, users []models.User) (int, []string) {
	var issued int
	var failed []string

	for _, user := range users {
		zap.L().Info("Processing user",
			zap.String("id", user.Id),
			zap.String("name", user.Name),
			zap.String("email", user.Email))

		for _, asset := range services.Seed.Assets {
			intent, err := services.Issuer.Issue(ctx, user.Id, asset.Symbol, asset.Network)
			if err != nil {
				zap.L().Error("Failed to issue deposit address",
					zap.String("user_id", user.Id),
					zap.String("asset", asset.Symbol),
					zap.String("network", asset.Network),
					zap.Error(err))
				failed = append(failed, fmt.Sprintf("%s/%s-%s", user.Email, asset.Symbol, asset.Network))
				continue
			}
			issued++
			zap.L().Info("Deposit address ready",
				zap.String("user_id", user.Id),
				zap.String("network", intent.Network),
				zap.String("address", intent.Address),
				zap.Time("expires_at", intent.ExpiresAt))
		}
	}
	return issued, failed
}

func runInit(ctx context.Context, services *common.Services) {
	zap.L().Info("Seeding plans and referral levels",
		zap.Int("plans", len(services.Seed.Plans)),
		zap.Int("referral_levels", len(services.Seed.ReferralLevels)))

	if err := services.Seed.Apply(ctx, services.DbService, services.Config.Rewards.SignalsPerDay); err != nil {
		zap.L().Fatal("Failed to seed database", zap.Error(err))
	}
	zap.L().Info("Initialization complete")
}

func runRecalculate(ctx context.Context, services *common.Services) {
	count, err := services.Referrals.RecalculateAll(ctx)
	if err != nil {
		zap.L().Fatal("Failed to recalculate referral levels", zap.Error(err))
	}
	fmt.Printf("Referral levels recalculated for %d users\n", count)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	initFlag := flag.Bool("init", false, "Seed plans and referral levels from the seed file")
	recalcFlag := flag.Bool("recalculate", false, "Recalculate every user's referral level")
	addressesFlag := flag.Bool("addresses", false, "Issue a deposit address per monitored network for every user")
	emailFlag := flag.String("email", "", "Limit address issuing to one user (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg, false)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if !*initFlag && !*recalcFlag && !*addressesFlag {
		*initFlag = true
	}

	if *initFlag {
		runInit(ctx, services)
	}
	if *recalcFlag {
		runRecalculate(ctx, services)
	}
	if !*addressesFlag {
		return
	}

	if err := services.RequirePrime(); err != nil {
		zap.L().Fatal("Cannot issue addresses", zap.Error(err))
	}

	users, err := common.ResolveUsers(ctx, services.DbService, *emailFlag)
	if err != nil {
		zap.L().Fatal("Failed to read users from database", zap.Error(err))
	}

	issued, failed := issueAddresses(ctx, services, users)
	if len(failed) > 0 {
		zap.L().Warn("Address issuing completed with some failures",
			zap.Int("issued", issued),
			zap.Int("failed", len(failed)),
			zap.Strings("failed_user_assets", failed))
	} else {
		zap.L().Info("Address issuing completed successfully", zap.Int("issued", issued))
	}
}
