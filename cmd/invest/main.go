package main

import (
	"context"
	"flag"
	"fmt"

	"yield-ledger-go/internal/common"
	"yield-ledger-go/internal/config"
	"yield-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func printWallet(title string, user *models.User, w *models.Wallet) {
	common.PrintHeader(title, common.DefaultWidth)
	fmt.Printf("User: %s (%s)\n", user.Name, user.Email)
	common.PrintBuckets(w)
	common.PrintSeparator("=", common.DefaultWidth)
}

func listPlans(ctx context.Context, services *common.Services) {
	plans, err := services.DbService.ListActivePlans(ctx)
	if err != nil {
		zap.L().Fatal("Failed to list plans", zap.Error(err))
	}
	common.PrintHeader("ACTIVE PLANS", common.DefaultWidth)
	for i, p := range plans {
		fmt.Printf("%s %-10s %10s - %-10s %3d days  x%s  %d signals/day\n",
			common.BoxPrefix(i == len(plans)-1), p.Name,
			p.MinAmount.StringFixed(models.FiatPrecision), p.MaxAmount.StringFixed(models.FiatPrecision),
			p.DurationDays, p.GainMultiplier, p.SignalsPerDay)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "User email")
	planFlag := flag.String("plan", "", "Plan name to subscribe to")
	amountFlag := flag.String("amount", "", "Amount to invest from the spendable balance")
	upgradeFlag := flag.String("upgrade", "", "Plan name to upgrade the active subscription to")
	claimFlag := flag.Bool("claim-gains", false, "Move all gains to the spendable balance")
	airdropFlag := flag.Bool("airdrop", false, "Claim today's airdrop")
	plansFlag := flag.Bool("plans", false, "List active plans")
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

	if *plansFlag {
		listPlans(ctx, services)
		return
	}

	if *emailFlag == "" {
		zap.L().Fatal("--email is required")
	}
	user, err := services.DbService.GetUserByEmail(ctx, *emailFlag)
	if err != nil {
		zap.L().Fatal("User not found", zap.String("email", *emailFlag), zap.Error(err))
	}

	switch {
	case *planFlag != "":
		amount, err := decimal.NewFromString(*amountFlag)
		if err != nil {
			zap.L().Fatal("Invalid amount", zap.String("amount", *amountFlag), zap.Error(err))
		}
		plan, err := services.DbService.GetPlanByName(ctx, *planFlag)
		if err != nil {
			zap.L().Fatal("Plan not found", zap.String("plan", *planFlag), zap.Error(err))
		}
		sub, err := services.Subscriptions.Subscribe(ctx, user.Id, plan.Id, amount)
		if err != nil {
			zap.L().Fatal("Subscription failed", zap.Error(err))
		}
		fmt.Printf("✓ Subscribed to %s with %s until %s\n",
			plan.Name, sub.InvestedAmount.StringFixed(models.FiatPrecision), sub.EndDate.Format("2006-01-02"))

	case *upgradeFlag != "":
		plan, err := services.DbService.GetPlanByName(ctx, *upgradeFlag)
		if err != nil {
			zap.L().Fatal("Plan not found", zap.String("plan", *upgradeFlag), zap.Error(err))
		}
		sub, err := services.Subscriptions.Upgrade(ctx, user.Id, plan.Id)
		if err != nil {
			zap.L().Fatal("Upgrade failed", zap.Error(err))
		}
		fmt.Printf("✓ Upgraded to %s until %s\n", plan.Name, sub.EndDate.Format("2006-01-02"))

	case *claimFlag:
		tx, err := services.Wallets.ClaimGains(ctx, user.Id)
		if err != nil {
			zap.L().Fatal("Claim failed", zap.Error(err))
		}
		fmt.Printf("✓ Claimed %s\n", tx.Amount.StringFixed(models.FiatPrecision))

	case *airdropFlag:
		tx, err := services.Wallets.ClaimAirdrop(ctx, user.Id)
		if err != nil {
			zap.L().Fatal("Airdrop claim failed", zap.Error(err))
		}
		fmt.Printf("✓ Airdrop of %s credited\n", tx.Amount.StringFixed(models.FiatPrecision))
	}

	w, err := services.DbService.GetWalletByUserId(ctx, user.Id)
	if err != nil {
		zap.L().Fatal("Failed to load wallet", zap.Error(err))
	}
	printWallet("WALLET", user, w)
}
