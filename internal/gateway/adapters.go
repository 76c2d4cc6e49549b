package gateway

import (
	"github.com/shigeo-nakamura/dex-router/internal/config"
	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/exchange/apex"
	"github.com/shigeo-nakamura/dex-router/internal/exchange/binancefutures"
	"github.com/shigeo-nakamura/dex-router/internal/exchange/mufex"
)

func confirmPolicy(e config.ExchangeConfig) exchange.ConfirmPolicy {
	return exchange.ConfirmPolicy{Attempts: e.ConfirmAttempts, Interval: e.ConfirmInterval}
}

// orDefault returns value unless it is empty.
func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}

func mufexConfig(cfg *config.Config, e config.ExchangeConfig) mufex.Config {
	rest, public, private := mufex.URLs(cfg.Mainnet())

	return mufex.Config{
		APIKey:            e.APIKey,
		APISecret:         e.APISecret,
		BaseURL:           orDefault(e.BaseURL, rest),
		PublicStreamURL:   orDefault(e.PublicStreamURL, public),
		PrivateStreamURL:  orDefault(e.PrivateStreamURL, private),
		RecvWindow:        e.RecvWindow,
		Timeout:           e.Timeout,
		RequestsPerSecond: e.RequestsPerSecond,
		Burst:             e.Burst,
		Padding:           e.Padding(),
		Confirm:           confirmPolicy(e),
		Symbols:           e.Symbols,
	}
}

func apexConfig(cfg *config.Config, e config.ExchangeConfig) apex.Config {
	rest, public, private := apex.URLs(cfg.Mainnet())

	return apex.Config{
		APIKey:            e.APIKey,
		APISecret:         e.APISecret,
		Passphrase:        e.Passphrase,
		OrderSigningKey:   e.OrderSigningKey,
		BaseURL:           orDefault(e.BaseURL, rest),
		PublicStreamURL:   orDefault(e.PublicStreamURL, public),
		PrivateStreamURL:  orDefault(e.PrivateStreamURL, private),
		Timeout:           e.Timeout,
		RequestsPerSecond: e.RequestsPerSecond,
		Burst:             e.Burst,
		Padding:           e.Padding(),
		Confirm:           confirmPolicy(e),
		OrderExpiry:       e.OrderExpiry,
		Symbols:           e.Symbols,
	}
}

func binanceConfig(cfg *config.Config, e config.ExchangeConfig) binancefutures.Config {
	rest, ws := binancefutures.URLs(cfg.Mainnet())

	return binancefutures.Config{
		APIKey:            e.APIKey,
		APISecret:         e.APISecret,
		BaseURL:           orDefault(e.BaseURL, rest),
		StreamURL:         orDefault(e.PublicStreamURL, ws),
		Timeout:           e.Timeout,
		RequestsPerSecond: e.RequestsPerSecond,
		Burst:             e.Burst,
		Padding:           e.Padding(),
		Confirm:           confirmPolicy(e),
		Symbols:           e.Symbols,
	}
}
