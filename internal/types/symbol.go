package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SymbolRule holds the trading increments of one symbol.
type SymbolRule struct {
	Symbol   string          `json:"symbol"`
	TickSize decimal.Decimal `json:"tick_size"`
	StepSize decimal.Decimal `json:"step_size"`
}

// IsSupported reports whether the rule carries usable increments. A zero rule is
// what lookups return for unknown symbols.
func (r SymbolRule) IsSupported() bool {
	return r.TickSize.IsPositive() && r.StepSize.IsPositive()
}

// NormalizeSymbol maps BTC-USDC, btcusdc and BTCUSDC to the same key.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "-", ""))
}
