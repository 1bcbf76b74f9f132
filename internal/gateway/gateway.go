// Package gateway defines the blockchain data source the deposit reconciler polls.
package gateway

import (
	"context"
	"strings"
	"time"

	"yield-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

// ErrExternalService marks provider failures (rate limits, RPC errors). The
// reconciler skips the affected intent and retries on the next pass.
var ErrExternalService = store.ErrExternalService

// Networks the reconciler knows how to query.
const (
	NetworkERC20 = "ERC20"
	NetworkBEP20 = "BEP20"
)

// SupportedNetwork reports whether deposits on network are reconciled.
func SupportedNetwork(network string) bool {
	switch strings.ToUpper(network) {
	case NetworkERC20, NetworkBEP20:
		return true
	}
	return false
}

// InboundTransfer is one transfer into a watched address.
type InboundTransfer struct {
	TxHash    string
	From      string
	Amount    decimal.Decimal
	Timestamp time.Time
}

// BlockchainGateway reads balances and inbound transfers of deposit addresses.
type BlockchainGateway interface {
	GetBalance(ctx context.Context, address, network string) (decimal.Decimal, error)
	GetDeposits(ctx context.Context, address, network string, lookback time.Duration) ([]InboundTransfer, error)
}

// AddressGenerator derives a fresh deposit address for a currency and network.
type AddressGenerator interface {
	NewAddress(ctx context.Context, currency, network string) (address, walletRef string, err error)
}

// LatestTransfer returns the most recent transfer, or false when there is none.
func LatestTransfer(transfers []InboundTransfer) (InboundTransfer, bool) {
	var latest InboundTransfer
	found := false
	for _, t := range transfers {
		if !found || t.Timestamp.After(latest.Timestamp) {
			latest = t
			found = true
		}
	}
	return latest, found
}
