package prime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"yield-ledger-go/internal/models"
	"yield-ledger-go/internal/store"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// StatusImported is the Prime status of a deposit credited to a wallet.
const StatusImported = "TRANSACTION_IMPORTED"

const (
	depositPageSize = 500
	maxDepositPages = 20
)

type Service struct {
	client          client.RestClient
	portfoliosSvc   portfolios.PortfoliosService
	walletsSvc      wallets.WalletsService
	transactionsSvc transactions.TransactionsService
}

// NewService builds a Prime client from config credentials.
func NewService(cfg models.PrimeConfig) (*Service, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("prime config requires access key, passphrase, and signing key")
	}

	creds := &credentials.Credentials{
		AccessKey:  cfg.AccessKey,
		Passphrase: cfg.Passphrase,
		SigningKey: cfg.SigningKey,
	}

	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(creds, httpClient)

	return &Service{
		client:          restClient,
		portfoliosSvc:   portfolios.NewPortfoliosService(restClient),
		walletsSvc:      wallets.NewWalletsService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func (s *Service) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	response, err := s.portfoliosSvc.ListPortfolios(ctx, &portfolios.ListPortfoliosRequest{})
	if err != nil {
		return nil, fmt.Errorf("%w: unable to list portfolios: %v", store.ErrExternalService, err)
	}

	portfolioList := make([]models.Portfolio, len(response.Portfolios))
	for i, p := range response.Portfolios {
		portfolioList[i] = models.Portfolio{
			Id:   p.Id,
			Name: p.Name,
		}
	}
	return portfolioList, nil
}

func (s *Service) FindDefaultPortfolio(ctx context.Context) (*models.Portfolio, error) {
	portfolioList, err := s.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}

	for _, portfolio := range portfolioList {
		if portfolio.Name == "Default Portfolio" {
			return &portfolio, nil
		}
	}
	return nil, fmt.Errorf("default portfolio %w", store.ErrNotFound)
}

func (s *Service) ListWallets(ctx context.Context, portfolioId, walletType string, symbols []string) ([]models.PrimeWallet, error) {
	request := &wallets.ListWalletsRequest{
		PortfolioId: portfolioId,
		Type:        walletType,
		Symbols:     symbols,
	}

	response, err := s.walletsSvc.ListWallets(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to list wallets: %v", store.ErrExternalService, err)
	}

	walletList := make([]models.PrimeWallet, len(response.Wallets))
	for i, w := range response.Wallets {
		walletList[i] = models.PrimeWallet{
			Id:     w.Id,
			Name:   w.Name,
			Symbol: w.Symbol,
			Type:   w.Type,
		}
	}
	return walletList, nil
}

func (s *Service) CreateWallet(ctx context.Context, portfolioId, name, symbol, walletType string) (*models.PrimeWallet, error) {
	request := &wallets.CreateWalletRequest{
		PortfolioId:    portfolioId,
		Name:           name,
		Symbol:         symbol,
		Type:           walletType,
		IdempotencyKey: uuid.New().String(),
	}

	response, err := s.walletsSvc.CreateWallet(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to create wallet: %v", store.ErrExternalService, err)
	}

	return &models.PrimeWallet{
		Id:     response.ActivityId,
		Name:   response.Name,
		Symbol: response.Symbol,
		Type:   response.Type,
	}, nil
}

// CreateDepositAddress asks Prime for a new address on a wallet. Prime never
// hands out the same address twice for a wallet.
func (s *Service) CreateDepositAddress(ctx context.Context, portfolioId, walletId, currency, primeNetwork string) (*models.DepositAddress, error) {
	request := &wallets.CreateWalletAddressRequest{
		PortfolioId: portfolioId,
		WalletId:    walletId,
		NetworkId:   primeNetwork,
	}

	response, err := s.walletsSvc.CreateWalletAddress(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to create wallet address: %v", store.ErrExternalService, err)
	}

	zap.L().Debug("Prime address created",
		zap.String("wallet_id", walletId),
		zap.String("network", primeNetwork),
		zap.String("account_identifier", response.AccountIdentifier))

	return &models.DepositAddress{
		Address:   response.Address,
		Network:   primeNetwork,
		Currency:  currency,
		WalletRef: walletId,
	}, nil
}

// ListDeposits fetches DEPOSIT transactions of a wallet created after start,
// following the pagination cursor up to maxDepositPages pages.
func (s *Service) ListDeposits(ctx context.Context, portfolioId, walletId string, start time.Time) ([]models.PrimeDeposit, error) {
	zap.L().Debug("Making Prime API request",
		zap.String("portfolio_id", portfolioId),
		zap.String("wallet_id", walletId),
		zap.String("start_time_formatted", start.UTC().Format("2006-01-02T15:04:05Z")))

	var deposits []models.PrimeDeposit
	cursor := ""
	for page := 0; page < maxDepositPages; page++ {
		request := &transactions.ListWalletTransactionsRequest{
			PortfolioId: portfolioId,
			WalletId:    walletId,
			Start:       start,
			Types:       []string{"DEPOSIT"},
			Pagination: &model.PaginationParams{
				Cursor: cursor,
				Limit:  depositPageSize,
			},
		}

		response, err := s.transactionsSvc.ListWalletTransactions(ctx, request)
		if err != nil {
			zap.L().Error("Failed to list wallet transactions",
				zap.String("wallet_id", walletId),
				zap.Int("page", page),
				zap.Error(err))
			return nil, fmt.Errorf("%w: unable to list wallet transactions: %v", store.ErrExternalService, err)
		}

		for _, tx := range response.Transactions {
			if deposit, ok := toPrimeDeposit(tx); ok {
				deposits = append(deposits, deposit)
			}
		}

		if response.Pagination == nil || !response.Pagination.HasNext || response.Pagination.NextCursor == "" {
			break
		}
		cursor = response.Pagination.NextCursor
		if page == maxDepositPages-1 {
			zap.L().Warn("Prime deposit listing truncated",
				zap.String("wallet_id", walletId),
				zap.Int("pages", maxDepositPages))
		}
	}

	zap.L().Debug("Prime API response received",
		zap.String("wallet_id", walletId),
		zap.Int("count", len(deposits)))
	return deposits, nil
}

func toPrimeDeposit(tx *model.Transaction) (models.PrimeDeposit, bool) {
	amount, err := decimal.NewFromString(tx.Amount)
	if err != nil {
		zap.L().Warn("Skipping Prime transaction with unparseable amount",
			zap.String("id", tx.Id),
			zap.String("amount", tx.Amount))
		return models.PrimeDeposit{}, false
	}

	deposit := models.PrimeDeposit{
		Id:      tx.Id,
		Status:  tx.Status,
		Symbol:  tx.Symbol,
		Network: tx.Network,
		Amount:  amount,
		Created: tx.Created,
	}
	if len(tx.BlockchainIds) > 0 {
		deposit.TxHash = tx.BlockchainIds[0]
	}
	if tx.TransferTo != nil {
		deposit.Address = tx.TransferTo.Address
		deposit.AccountIdentifier = tx.TransferTo.AccountIdentifier
	}
	if tx.TransferFrom != nil {
		// Prime reports the sender in Address, Value, or AccountIdentifier.
		deposit.SourceAddress = tx.TransferFrom.Address
		if deposit.SourceAddress == "" {
			deposit.SourceAddress = tx.TransferFrom.Value
		}
		if deposit.SourceAddress == "" {
			deposit.SourceAddress = tx.TransferFrom.AccountIdentifier
		}
	}
	return deposit, true
}
