package prime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"yield-ledger-go/internal/gateway"
	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	_ gateway.BlockchainGateway = (*Gateway)(nil)
	_ gateway.AddressGenerator  = (*Gateway)(nil)
)

type depositLister interface {
	ListDeposits(ctx context.Context, portfolioId, walletId string, start time.Time) ([]models.PrimeDeposit, error)
}

type addressCreator interface {
	CreateDepositAddress(ctx context.Context, portfolioId, walletId, currency, primeNetwork string) (*models.DepositAddress, error)
}

// Gateway answers balance and transfer queries for deposit addresses from the
// Prime wallets that receive them, and issues fresh addresses on those wallets.
type Gateway struct {
	deposits    depositLister
	addresses   addressCreator
	portfolioId string
	assets      map[string]models.MonitoredAsset
	lookback    time.Duration
}

// NewGateway binds monitored assets (one Prime wallet per network) to a portfolio.
func NewGateway(svc *Service, portfolioId string, assets []models.MonitoredAsset, lookback time.Duration) *Gateway {
	return newGateway(svc, svc, portfolioId, assets, lookback)
}

func newGateway(deposits depositLister, addresses addressCreator, portfolioId string, assets []models.MonitoredAsset, lookback time.Duration) *Gateway {
	byNetwork := make(map[string]models.MonitoredAsset, len(assets))
	for _, a := range assets {
		byNetwork[strings.ToUpper(a.Network)] = a
	}
	return &Gateway{
		deposits:    deposits,
		addresses:   addresses,
		portfolioId: portfolioId,
		assets:      byNetwork,
		lookback:    lookback,
	}
}

func (g *Gateway) asset(network string) (models.MonitoredAsset, error) {
	a, ok := g.assets[strings.ToUpper(network)]
	if !ok || a.WalletId == "" {
		return models.MonitoredAsset{}, fmt.Errorf("%w: network %s is not monitored", store.ErrValidation, network)
	}
	return a, nil
}

// GetBalance sums completed deposits into address within the lookback window.
func (g *Gateway) GetBalance(ctx context.Context, address, network string) (decimal.Decimal, error) {
	transfers, err := g.GetDeposits(ctx, address, network, g.lookback)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, t := range transfers {
		total = total.Add(t.Amount)
	}
	return total, nil
}

// GetDeposits lists completed inbound transfers to address.
func (g *Gateway) GetDeposits(ctx context.Context, address, network string, lookback time.Duration) ([]gateway.InboundTransfer, error) {
	a, err := g.asset(network)
	if err != nil {
		return nil, err
	}

	deposits, err := g.deposits.ListDeposits(ctx, g.portfolioId, a.WalletId, time.Now().Add(-lookback))
	if err != nil {
		return nil, err
	}

	var transfers []gateway.InboundTransfer
	for _, d := range deposits {
		if d.Status != StatusImported || !d.Amount.IsPositive() {
			continue
		}
		if !strings.EqualFold(d.Address, address) && !strings.EqualFold(d.AccountIdentifier, address) {
			continue
		}
		transfers = append(transfers, gateway.InboundTransfer{
			TxHash:    d.TxHash,
			From:      d.SourceAddress,
			Amount:    d.Amount,
			Timestamp: d.Created,
		})
	}

	zap.L().Debug("Resolved inbound transfers",
		zap.String("address", address),
		zap.String("network", network),
		zap.Int("count", len(transfers)))
	return transfers, nil
}

// NewAddress creates a deposit address on the wallet monitoring network.
func (g *Gateway) NewAddress(ctx context.Context, currency, network string) (string, string, error) {
	a, err := g.asset(network)
	if err != nil {
		return "", "", err
	}
	if !strings.EqualFold(a.Symbol, currency) {
		return "", "", fmt.Errorf("%w: %s is not accepted on %s", store.ErrValidation, currency, network)
	}

	addr, err := g.addresses.CreateDepositAddress(ctx, g.portfolioId, a.WalletId, a.Symbol, a.PrimeNetwork)
	if err != nil {
		return "", "", err
	}
	return addr.Address, addr.WalletRef, nil
}

// ResolveAssetWallets fills in the Prime trading wallet of every monitored
// asset that does not name one, creating the wallet when none exists.
func (s *Service) ResolveAssetWallets(ctx context.Context, portfolioId string, assets []models.MonitoredAsset) ([]models.MonitoredAsset, error) {
	resolved := make([]models.MonitoredAsset, len(assets))
	for i, a := range assets {
		resolved[i] = a
		if a.WalletId != "" {
			continue
		}

		wallets, err := s.ListWallets(ctx, portfolioId, "TRADING", []string{a.Symbol})
		if err != nil {
			return nil, err
		}
		if len(wallets) > 0 {
			resolved[i].WalletId = wallets[0].Id
			zap.L().Info("Using existing wallet",
				zap.String("asset", a.Symbol),
				zap.String("network", a.Network),
				zap.String("wallet_id", wallets[0].Id))
			continue
		}

		walletName := fmt.Sprintf("%s Trading Wallet", a.Symbol)
		created, err := s.CreateWallet(ctx, portfolioId, walletName, a.Symbol, "TRADING")
		if err != nil {
			return nil, err
		}
		resolved[i].WalletId = created.Id
		zap.L().Info("Created new wallet",
			zap.String("asset", a.Symbol),
			zap.String("wallet_name", walletName),
			zap.String("wallet_id", created.Id))
	}
	return resolved, nil
}
