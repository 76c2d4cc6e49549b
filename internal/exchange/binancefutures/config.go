package binancefutures

import (
	"time"

	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/stream"
	"github.com/shigeo-nakamura/dex-router/internal/utils"
)

const (
	MainnetURL = "https://fapi.binance.com"
	TestnetURL = "https://testnet.binancefuture.com"

	MainnetStreamURL = "wss://fstream.binance.com/ws"
	TestnetStreamURL = "wss://stream.binancefuture.com/ws"

	// DefaultListenKeyKeepalive refreshes the user data listen key well inside
	// its 60 minute validity.
	DefaultListenKeyKeepalive = 30 * time.Minute
)

// Config configures the Binance USD-M futures adapter.
type Config struct {
	APIKey    string
	APISecret string

	BaseURL   string
	StreamURL string

	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int

	Padding            utils.Padding
	Confirm            exchange.ConfirmPolicy
	ListenKeyKeepalive time.Duration
	Symbols            []string
	Stream             stream.Config
}

// URLs returns the default endpoints for the environment.
func URLs(mainnet bool) (rest, ws string) {
	if mainnet {
		return MainnetURL, MainnetStreamURL
	}

	return TestnetURL, TestnetStreamURL
}
