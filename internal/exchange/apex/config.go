package apex

import (
	"time"

	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/stream"
	"github.com/shigeo-nakamura/dex-router/internal/utils"
)

const (
	MainnetURL = "https://pro.apex.exchange"
	TestnetURL = "https://testnet.pro.apex.exchange"

	MainnetPublicStreamURL  = "wss://quote.pro.apex.exchange/realtime_public?v=2"
	MainnetPrivateStreamURL = "wss://quote.pro.apex.exchange/realtime_private?v=2"
	TestnetPublicStreamURL  = "wss://qa-quote.pro.apex.exchange/realtime_public?v=2"
	TestnetPrivateStreamURL = "wss://qa-quote.pro.apex.exchange/realtime_private?v=2"

	// DefaultOrderExpiry is how far in the future signed orders expire.
	DefaultOrderExpiry = 28 * 24 * time.Hour
)

// Config configures the ApeX adapter.
type Config struct {
	APIKey     string
	APISecret  string
	Passphrase string
	// OrderSigningKey is the hex Stark private key that signs order payloads.
	OrderSigningKey string

	BaseURL          string
	PublicStreamURL  string
	PrivateStreamURL string

	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int

	Padding     utils.Padding
	Confirm     exchange.ConfirmPolicy
	OrderExpiry time.Duration
	Symbols     []string
	Stream      stream.Config
}

// URLs returns the default endpoints for the environment.
func URLs(mainnet bool) (rest, public, private string) {
	if mainnet {
		return MainnetURL, MainnetPublicStreamURL, MainnetPrivateStreamURL
	}

	return TestnetURL, TestnetPublicStreamURL, TestnetPrivateStreamURL
}
