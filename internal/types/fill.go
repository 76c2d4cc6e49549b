package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// FillRecord confirms that an order executed.
type FillRecord struct {
	OrderID     string          `json:"order_id"`
	Timestamp   time.Time       `json:"timestamp"`
	FilledSize  decimal.Decimal `json:"filled_size"`
	FilledValue decimal.Decimal `json:"filled_value"`
	FilledFee   decimal.Decimal `json:"filled_fee"`
}

// Summary derives the execution price as FilledValue / FilledSize.
// It returns false when the size is zero; callers treat that as UNKNOWN.
func (f FillRecord) Summary() (FillSummary, bool) {
	if f.FilledSize.IsZero() {
		return FillSummary{}, false
	}

	return FillSummary{
		Price: f.FilledValue.Div(f.FilledSize),
		Size:  f.FilledSize,
		Fee:   f.FilledFee,
	}, true
}
