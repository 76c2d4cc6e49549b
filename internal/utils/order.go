package utils

import (
	"github.com/shigeo-nakamura/dex-router/internal/types"
	"github.com/shopspring/decimal"
)

// DefaultPaddingTicks is how many ticks an instant-fill price is pushed past the book.
const DefaultPaddingTicks = 5

// RoundToStep truncates value toward zero to a multiple of step.
// A non-positive step leaves value untouched.
func RoundToStep(value, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return value
	}

	return value.Sub(value.Mod(step))
}

// Padding describes how far an instant-fill price is pushed away from the book.
// Exactly one of Ticks and Percent is used; Percent wins when it is positive.
type Padding struct {
	Ticks   int64           `yaml:"ticks" json:"ticks"`
	Percent decimal.Decimal `yaml:"percent" json:"percent"`
}

// TickPadding pads by n ticks.
func TickPadding(n int64) Padding {
	return Padding{Ticks: n, Percent: decimal.Zero}
}

// PercentPadding pads by a fraction of the price, e.g. 0.1 for 10%.
func PercentPadding(pct decimal.Decimal) Padding {
	return Padding{Ticks: 0, Percent: pct}
}

// Apply returns the worst acceptable price for side, starting from a price that
// is already a multiple of tick. BUY prices move up and SELL prices move down.
func (p Padding) Apply(rounded, tick decimal.Decimal, side types.Side) decimal.Decimal {
	var offset decimal.Decimal
	if p.Percent.IsPositive() {
		offset = RoundToStep(rounded.Mul(p.Percent), tick)
	} else {
		offset = tick.Mul(decimal.NewFromInt(p.Ticks))
	}

	if side == types.SideBuy {
		return rounded.Add(offset)
	}

	adjusted := rounded.Sub(offset)
	if adjusted.LessThan(tick) {
		// never submit a non-positive sell price
		return decimal.Min(tick, rounded)
	}

	return adjusted
}

// InstantFillPrice rounds price to tick and applies the padding for side.
func InstantFillPrice(price, tick decimal.Decimal, side types.Side, padding Padding) (rounded, adjusted decimal.Decimal) {
	rounded = RoundToStep(price, tick)

	return rounded, padding.Apply(rounded, tick, side)
}
