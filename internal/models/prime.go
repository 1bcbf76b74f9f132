package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio represents a Prime portfolio
type Portfolio struct {
	Id   string
	Name string
}

// PrimeWallet represents a Prime custody wallet receiving user deposits
type PrimeWallet struct {
	Id     string
	Name   string
	Symbol string
	Type   string
}

// DepositAddress represents a freshly generated on-chain address
type DepositAddress struct {
	Address   string
	Network   string
	Currency  string
	WalletRef string
}

// PrimeDeposit is an inbound transfer reported by a Prime wallet
type PrimeDeposit struct {
	Id                string
	Status            string
	Symbol            string
	Network           string
	Amount            decimal.Decimal
	Address           string
	AccountIdentifier string
	SourceAddress     string
	TxHash            string
	Created           time.Time
}

// MonitoredAsset binds a deposit network label to the Prime wallet that
// receives it
type MonitoredAsset struct {
	Symbol       string
	Network      string
	PrimeNetwork string
	WalletId     string
}
