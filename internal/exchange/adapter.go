// Package exchange defines the normalized exchange adapter contract and the
// order protocol shared by every adapter.
package exchange

import (
	"context"
	"encoding/json"

	"github.com/moznion/go-optional"
	"github.com/shigeo-nakamura/dex-router/internal/cache"
	"github.com/shigeo-nakamura/dex-router/internal/types"
)

// Adapter is one exchange behind the normalized interface.
type Adapter interface {
	// Name returns the routing key of the exchange
	Name() Name
	// GetTicker returns the last known price of symbol. It fails with
	// ErrCodePriceUnavailable when no price is known yet.
	GetTicker(ctx context.Context, symbol string) (types.Ticker, error)
	// GetBalance returns account equity and available balance
	GetBalance(ctx context.Context) (types.Balance, error)
	// CreateOrder places an instant-fill order. A result in state UNKNOWN is
	// not an error: the order was accepted but its fill was not confirmed in time.
	CreateOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error)
	// CancelOrder cancels an open order
	CancelOrder(ctx context.Context, req types.CancelRequest) error
	// CloseAllPositions flattens every open position, or only the one of symbol.
	// The report is meaningful even when an error is returned.
	CloseAllPositions(ctx context.Context, symbol optional.Option[string]) (types.CloseReport, error)
	// GetFilledOrders returns the fill confirmations held for symbol
	GetFilledOrders(symbol string) []types.FillRecord
	// ClearFilledOrder acknowledges one fill confirmation
	ClearFilledOrder(symbol, orderID string)
	// StartFeeds starts the streaming feeds that populate Store
	StartFeeds(ctx context.Context) error
	// Store returns the price and fill cache of the adapter
	Store() *cache.Store
	// Close stops the feeds and releases credentials
	Close() error
}

// PnLReporter is implemented by exchanges that report the previous day P&L.
type PnLReporter interface {
	GetYesterdayPnL(ctx context.Context) (json.RawMessage, error)
}
