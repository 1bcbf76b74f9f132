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

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	generateFlag := flag.Bool("generate", false, "Generate a signal for every active plan")
	exclusiveFlag := flag.Bool("exclusive", false, "With --generate, restrict redemption to recent subscribers")
	emailFlag := flag.String("email", "", "User email for --use or --current")
	useFlag := flag.String("use", "", "Signal code to redeem")
	currentFlag := flag.Bool("current", false, "Show the user's current signal")
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

	if *generateFlag {
		signals, err := services.Signals.Generate(ctx, *exclusiveFlag)
		if err != nil {
			zap.L().Fatal("Failed to generate signals", zap.Error(err))
		}
		common.PrintHeader("SIGNALS GENERATED", common.DefaultWidth)
		for i, s := range signals {
			fmt.Printf("%s %s plan=%s expires=%s exclusive=%v\n",
				common.BoxPrefix(i == len(signals)-1), s.Code, common.ShortId(s.PlanId),
				s.ExpiresAt.Format("15:04:05"), s.IsExclusive)
		}
		common.PrintSeparator("=", common.DefaultWidth)
		return
	}

	if *emailFlag == "" {
		zap.L().Fatal("--email is required with --use or --current")
	}
	user, err := services.DbService.GetUserByEmail(ctx, *emailFlag)
	if err != nil {
		zap.L().Fatal("User not found", zap.String("email", *emailFlag), zap.Error(err))
	}

	switch {
	case *useFlag != "":
		redemption, err := services.Signals.UseSignal(ctx, user.Id, *useFlag)
		if err != nil {
			zap.L().Fatal("Signal redemption failed", zap.Error(err))
		}
		fmt.Printf("✓ Signal %s redeemed: +%s gains\n",
			redemption.Signal.Code, redemption.Gain.StringFixed(models.CryptoPrecision))

	case *currentFlag:
		current, err := services.Signals.GetCurrentSignal(ctx, user.Id)
		if err != nil {
			zap.L().Fatal("No current signal", zap.Error(err))
		}
		fmt.Printf("Current signal %s, expires %s, used=%v\n",
			current.Signal.Code, current.Signal.ExpiresAt.Format("2006-01-02 15:04:05"), current.Used)

	default:
		flag.Usage()
	}
}
