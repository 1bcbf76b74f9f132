package common

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"yield-ledger-go/internal/bonus"
	"yield-ledger-go/internal/database"
	"yield-ledger-go/internal/deposit"
	"yield-ledger-go/internal/formance"
	"yield-ledger-go/internal/ledger"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/notify"
	"yield-ledger-go/internal/prime"
	"yield-ledger-go/internal/referral"
	"yield-ledger-go/internal/signal"
	"yield-ledger-go/internal/subscription"
	"yield-ledger-go/internal/wallet"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services is the fully wired platform. Prime-backed parts (Gateway, Issuer,
// Reconciler) are nil when no Prime credentials are configured.
type Services struct {
	Config *models.Config
	Seed   *Seed

	DbService *database.Service
	Ledger    *ledger.Service
	Hub       *notify.Hub
	Notifier  *notify.Notifier

	PrimeService     *prime.Service
	DefaultPortfolio *models.Portfolio
	Gateway          *prime.Gateway
	Issuer           *deposit.Issuer
	Reconciler       *deposit.Reconciler

	Bonus         *bonus.Engine
	Referrals     *referral.Tree
	Signals       *signal.Engine
	Subscriptions *subscription.Service
	Wallets       *wallet.Service
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires every component. With realtime set, events are
// published to a websocket Hub which the caller must Start.
func InitializeServices(ctx context.Context, cfg *models.Config, realtime bool) (*Services, error) {
	seed, err := loadSeedIfPresent(cfg.Reconciler.SeedFile)
	if err != nil {
		return nil, err
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	s := &Services{Config: cfg, Seed: seed, DbService: dbService}

	var mirror ledger.Mirror
	if cfg.Formance.Enabled() {
		formanceService, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to initialize formance mirror: %w", err)
		}
		mirror = formanceService
	}
	s.Ledger = ledger.NewService(mirror)

	var publisher notify.Publisher
	if realtime {
		s.Hub = notify.NewHub(cfg.Hub)
		publisher = s.Hub
	}
	s.Notifier = notify.NewNotifier(notify.LogMailer{}, publisher)

	s.Bonus = bonus.NewEngine(dbService, s.Ledger, cfg.Rewards, s.Notifier)
	s.Referrals = referral.NewTree(dbService, s.Ledger, s.Notifier)
	s.Signals = signal.NewEngine(dbService, s.Ledger, cfg.Rewards, s.Notifier)
	s.Subscriptions = subscription.NewService(dbService, s.Ledger, s.Bonus, s.Referrals, s.Notifier)
	s.Wallets = wallet.NewService(dbService, s.Ledger, cfg.Rewards, s.Notifier)

	if !cfg.Prime.Enabled() {
		zap.L().Warn("Prime credentials not configured, deposit issuing and reconciliation are disabled")
		return s, nil
	}

	if err := s.initializePrime(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) initializePrime(ctx context.Context) error {
	cfg := s.Config

	zap.L().Info("Loading Prime API credentials")
	primeService, err := prime.NewService(cfg.Prime)
	if err != nil {
		return err
	}
	s.PrimeService = primeService

	if cfg.Prime.PortfolioId != "" {
		s.DefaultPortfolio = &models.Portfolio{Id: cfg.Prime.PortfolioId}
	} else {
		zap.L().Info("Finding default portfolio")
		portfolio, err := primeService.FindDefaultPortfolio(ctx)
		if err != nil {
			return err
		}
		s.DefaultPortfolio = portfolio
	}
	zap.L().Info("Using portfolio",
		zap.String("name", s.DefaultPortfolio.Name),
		zap.String("id", s.DefaultPortfolio.Id))

	assets, err := primeService.ResolveAssetWallets(ctx, s.DefaultPortfolio.Id, s.Seed.Assets)
	if err != nil {
		return err
	}
	s.Seed.Assets = assets

	s.Gateway = prime.NewGateway(primeService, s.DefaultPortfolio.Id, assets, cfg.Reconciler.LookbackWindow)
	s.Issuer = deposit.NewIssuer(s.DbService, s.Gateway, cfg.Reconciler.AddressTTL)
	s.Reconciler = deposit.NewReconciler(s.DbService, s.Ledger, s.Gateway, s.Bonus, s.Notifier, cfg.Reconciler)
	return nil
}

// InitializeDatabaseOnly initializes just the database service without Prime API
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	return database.NewService(ctx, cfg.Database)
}

// RequirePrime fails when the Prime-backed components were not wired.
func (s *Services) RequirePrime() error {
	if s.Reconciler == nil || s.Issuer == nil {
		return fmt.Errorf("prime credentials are required: set PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}
	return nil
}

// Close waits for detached work and closes the database.
func (s *Services) Close() {
	if s.Reconciler != nil {
		s.Reconciler.Wait()
	}
	if s.Notifier != nil {
		s.Notifier.Wait()
	}
	if s.DbService != nil {
		s.DbService.Close()
	}
}

func loadSeedIfPresent(file string) (*Seed, error) {
	seed, err := LoadSeed(file)
	if err == nil {
		return seed, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		zap.L().Warn("Seed file not found, continuing without monitored assets", zap.String("file", file))
		return &Seed{}, nil
	}
	return nil, err
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
