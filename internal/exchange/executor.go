package exchange

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shigeo-nakamura/dex-router/internal/cache"
	"github.com/shigeo-nakamura/dex-router/internal/types"
	"github.com/shigeo-nakamura/dex-router/internal/utils"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"github.com/shopspring/decimal"
)

// ConfirmPolicy bounds how long an adapter waits for a fill confirmation.
type ConfirmPolicy struct {
	Attempts int
	Interval time.Duration
}

// DefaultConfirmPolicy waits up to ten seconds.
var DefaultConfirmPolicy = ConfirmPolicy{Attempts: 10, Interval: time.Second}

// Budget is the total confirmation wait.
func (p ConfirmPolicy) Budget() time.Duration {
	return time.Duration(p.Attempts) * p.Interval
}

// PreparedOrder is an order after rounding and padding, ready to be encoded
// for one exchange.
type PreparedOrder struct {
	Symbol string
	Side   types.Side
	// Size is truncated to the step size. It may be zero; the exchange decides.
	Size decimal.Decimal
	// Reference is the base price truncated to the tick size.
	Reference optional.Option[decimal.Decimal]
	// Price is the padded instant-fill price. None when no base price was known.
	Price      optional.Option[decimal.Decimal]
	ReduceOnly bool
}

// PrepareInstantFill applies truncating tick/step rounding and instant-fill
// padding. The request price, when present, takes precedence over basePrice.
func PrepareInstantFill(rule types.SymbolRule, req types.OrderRequest, basePrice optional.Option[decimal.Decimal], padding utils.Padding) (PreparedOrder, error) {
	if !rule.IsSupported() {
		return PreparedOrder{}, errors.Newf(errors.ErrCodeUnsupportedSymbol, "no trading rule for symbol %s", req.Symbol)
	}

	prepared := PreparedOrder{
		Symbol:     rule.Symbol,
		Side:       req.Side,
		Size:       utils.RoundToStep(req.Size, rule.StepSize),
		Reference:  optional.None[decimal.Decimal](),
		Price:      optional.None[decimal.Decimal](),
		ReduceOnly: req.ReduceOnly,
	}

	base := req.Price
	if base.IsNone() {
		base = basePrice
	}

	if base.IsSome() {
		rounded, adjusted := utils.InstantFillPrice(base.Unwrap(), rule.TickSize, req.Side, padding)
		prepared.Reference = optional.Some(rounded)
		prepared.Price = optional.Some(adjusted)
	}

	return prepared, nil
}

// LiveQuote fetches a price from the exchange REST API.
type LiveQuote func(ctx context.Context, symbol string) (decimal.Decimal, error)

// DiscoverPrice walks the price discovery chain: cached stream price, then a
// live quote. A miss at every step yields None and is not an error.
func DiscoverPrice(ctx context.Context, store *cache.Store, symbol string, live LiveQuote) optional.Option[decimal.Decimal] {
	if cached := store.Price(symbol); cached.IsSome() {
		if price, err := decimal.NewFromString(cached.Unwrap()); err == nil && price.IsPositive() {
			return optional.Some(price)
		}
	}

	if live == nil {
		return optional.None[decimal.Decimal]()
	}

	price, err := live(ctx, symbol)
	if err != nil || !price.IsPositive() {
		return optional.None[decimal.Decimal]()
	}

	return optional.Some(price)
}

// FillCheck checks once whether an order has filled. A non-nil error means
// the order reached a terminal state without a fill and waiting stops.
type FillCheck func(ctx context.Context) (types.FillSummary, bool, error)

// AwaitFill checks up to policy.Attempts times, sleeping policy.Interval
// between checks. It returns None when the budget runs out or ctx is done.
func AwaitFill(ctx context.Context, policy ConfirmPolicy, check FillCheck) (optional.Option[types.FillSummary], error) {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		fill, ok, err := check(ctx)
		if err != nil {
			return optional.None[types.FillSummary](), err
		}

		if ok {
			return optional.Some(fill), nil
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return optional.None[types.FillSummary](), nil
		case <-time.After(policy.Interval):
		}
	}

	return optional.None[types.FillSummary](), nil
}

// StoreCheck confirms a fill from the fill cache populated by the account stream.
func StoreCheck(store *cache.Store, symbol, orderID string) FillCheck {
	return func(context.Context) (types.FillSummary, bool, error) {
		record := store.FilledOrder(symbol, orderID)
		if record.IsNone() {
			return types.FillSummary{}, false, nil
		}

		fill, ok := record.Unwrap().Summary()

		return fill, ok, nil
	}
}

// Result turns an optional fill into the order result.
func Result(orderID string, fill optional.Option[types.FillSummary]) types.OrderResult {
	if fill.IsNone() {
		return types.Pending(orderID)
	}

	return types.Filled(orderID, fill.Unwrap())
}
