package types

import (
	"github.com/shopspring/decimal"
)

// Balance represents the account equity and what is free for new orders.
type Balance struct {
	// Equity is the total account value including unrealized P&L
	Equity decimal.Decimal `json:"equity" yaml:"equity"`
	// Available is the wallet balance that can back new orders
	Available decimal.Decimal `json:"balance" yaml:"balance"`
}

// Ticker is the last known price of a symbol.
type Ticker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}
