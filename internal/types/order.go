package types

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"github.com/shopspring/decimal"
)

type Side string

type OrderState string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order lifecycle: REQUESTED -> SUBMITTED -> {FILLED, REJECTED, UNKNOWN}.
const (
	OrderStateRequested OrderState = "REQUESTED"
	OrderStateSubmitted OrderState = "SUBMITTED"
	OrderStateFilled    OrderState = "FILLED"
	OrderStateRejected  OrderState = "REJECTED"
	// OrderStateUnknown means the order was accepted but no fill confirmation
	// arrived within the confirmation budget. It is a result, not an error.
	OrderStateUnknown OrderState = "UNKNOWN"
)

// ParseSide parses a side string case-insensitively.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order side: %s", s)
	}
}

// Opposite returns the side that closes an exposure opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}

	return SideBuy
}

// OrderRequest is a normalized instant-fill order.
type OrderRequest struct {
	Symbol string          `json:"symbol" validate:"required"`
	Size   decimal.Decimal `json:"size"`
	Side   Side            `json:"side" validate:"required,oneof=BUY SELL"`
	// Price is an optional reference price. When it is None the adapter discovers one.
	Price optional.Option[decimal.Decimal] `json:"-"`
	// ReduceOnly is set by the close-all orchestrator.
	ReduceOnly bool `json:"reduce_only"`
}

// Validate validates the OrderRequest struct.
func (r *OrderRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid order request", err)
	}

	if !r.Size.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidParameter, "order size must be greater than zero: %s", r.Size)
	}

	if r.Price.IsSome() && !r.Price.Unwrap().IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidParameter, "order price must be greater than zero: %s", r.Price.Unwrap())
	}

	return nil
}

// FillSummary is the realized execution of an order.
type FillSummary struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Fee   decimal.Decimal `json:"fee"`
}

// OrderResult is what create_order hands back to the caller.
type OrderResult struct {
	OrderID string     `json:"order_id"`
	State   OrderState `json:"state"`
	// Fill is set only when State is FILLED.
	Fill optional.Option[FillSummary] `json:"-"`
}

// Pending builds the UNKNOWN result returned when a fill could not be confirmed in time.
func Pending(orderID string) OrderResult {
	return OrderResult{
		OrderID: orderID,
		State:   OrderStateUnknown,
		Fill:    optional.None[FillSummary](),
	}
}

// Filled builds a FILLED result.
func Filled(orderID string, fill FillSummary) OrderResult {
	return OrderResult{
		OrderID: orderID,
		State:   OrderStateFilled,
		Fill:    optional.Some(fill),
	}
}

// CancelRequest identifies an order to cancel. Symbol is optional because some
// exchanges can resolve it from the open orders list.
type CancelRequest struct {
	OrderID string                  `json:"order_id" validate:"required"`
	Symbol  optional.Option[string] `json:"-"`
}

// Validate validates the CancelRequest struct.
func (r *CancelRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid cancel request", err)
	}

	return nil
}
