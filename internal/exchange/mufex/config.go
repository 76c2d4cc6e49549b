package mufex

import (
	"time"

	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/stream"
	"github.com/shigeo-nakamura/dex-router/internal/utils"
)

const (
	MainnetURL = "https://api.mufex.finance"
	TestnetURL = "https://api.testnet.mufex.finance"

	MainnetPublicStreamURL  = "wss://ws.mufex.finance/realtime_public"
	MainnetPrivateStreamURL = "wss://ws.mufex.finance/realtime_private"
	TestnetPublicStreamURL  = "wss://ws.testnet.mufex.finance/realtime_public"
	TestnetPrivateStreamURL = "wss://ws.testnet.mufex.finance/realtime_private"
)

// Config configures the Mufex adapter.
type Config struct {
	APIKey    string
	APISecret string

	BaseURL          string
	PublicStreamURL  string
	PrivateStreamURL string

	RecvWindow        int64
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int

	Padding utils.Padding
	Confirm exchange.ConfirmPolicy
	// Symbols are subscribed on the ticker feed.
	Symbols []string
	Stream  stream.Config
}

// URLs returns the default endpoints for the environment.
func URLs(mainnet bool) (rest, public, private string) {
	if mainnet {
		return MainnetURL, MainnetPublicStreamURL, MainnetPrivateStreamURL
	}

	return TestnetURL, TestnetPublicStreamURL, TestnetPrivateStreamURL
}
