package mocks

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shigeo-nakamura/dex-router/internal/types"
	"github.com/shopspring/decimal"
)

// DataGenerator generates price paths and fill confirmations for tests.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how feed data is generated.
type GeneratorConfig struct {
	// Symbol is the exchange symbol (e.g., "BTC-USDC", "BTCUSDT")
	Symbol string
	// StartTime is the timestamp of the first fill
	StartTime time.Time
	// Interval is the duration between fills
	Interval time.Duration
	// Count is the number of data points to generate
	Count int
	// InitialPrice is the starting price
	InitialPrice float64
	// Volatility controls price movement per step (0.001 = 0.1%)
	Volatility float64
	// TickSize is the price increment prices are rounded to
	TickSize decimal.Decimal
	// StepSize is the size increment fill sizes are rounded to
	StepSize decimal.Decimal
	// FeeRate is charged on the filled value
	FeeRate decimal.Decimal
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:       "BTC-USDC",
		StartTime:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Interval:     time.Second,
		Count:        100,
		InitialPrice: 50000,
		Volatility:   0.001,
		TickSize:     decimal.RequireFromString("0.5"),
		StepSize:     decimal.RequireFromString("0.001"),
		FeeRate:      decimal.RequireFromString("0.0005"),
	}
}

// Prices returns a random walk of prices rounded to the tick size.
// The walk follows a geometric Brownian motion.
func (g *DataGenerator) Prices(config GeneratorConfig) []decimal.Decimal {
	prices := make([]decimal.Decimal, config.Count)
	current := config.InitialPrice

	for i := 0; i < config.Count; i++ {
		// Box-Muller transform for a normal sample
		u1 := 1 - g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		next := current * (1 + config.Volatility*z)
		if next <= 0 {
			next = current * 0.99
		}

		current = next
		prices[i] = roundToStep(decimal.NewFromFloat(current), config.TickSize)
	}

	return prices
}

// Tickers returns the price path as ticker updates of the symbol.
func (g *DataGenerator) Tickers(config GeneratorConfig) []types.Ticker {
	prices := g.Prices(config)
	tickers := make([]types.Ticker, len(prices))

	for i, p := range prices {
		tickers[i] = types.Ticker{Symbol: config.Symbol, Price: p.String()}
	}

	return tickers
}

// Fills returns one fill confirmation per price with ids order-0, order-1, ...
func (g *DataGenerator) Fills(config GeneratorConfig) []types.FillRecord {
	prices := g.Prices(config)
	fills := make([]types.FillRecord, len(prices))
	ts := config.StartTime

	for i, p := range prices {
		size := roundToStep(decimal.NewFromFloat(0.001+g.rng.Float64()), config.StepSize)
		if size.IsZero() {
			size = config.StepSize
		}

		value := size.Mul(p)

		fills[i] = types.FillRecord{
			OrderID:     fmt.Sprintf("order-%d", i),
			Timestamp:   ts,
			FilledSize:  size,
			FilledValue: value,
			FilledFee:   value.Mul(config.FeeRate),
		}
		ts = ts.Add(config.Interval)
	}

	return fills
}

// roundToStep rounds down to a multiple of step. A zero step leaves the value unchanged.
func roundToStep(val, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return val
	}

	return val.Div(step).Floor().Mul(step)
}
