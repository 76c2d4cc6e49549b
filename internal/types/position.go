package types

import (
	"strings"

	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"github.com/shopspring/decimal"
)

type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// ParsePositionSide accepts LONG/SHORT as well as the Buy/Sell spelling some
// exchanges use for position direction.
func ParsePositionSide(s string) (PositionSide, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return PositionSideLong, nil
	case "SHORT", "SELL":
		return PositionSideShort, nil
	default:
		return "", errors.Newf(errors.ErrCodeDataShape, "unknown position side: %s", s)
	}
}

// ClosingSide returns the order side that flattens the position.
func (p PositionSide) ClosingSide() Side {
	if p == PositionSideShort {
		return SideBuy
	}

	return SideSell
}

// Position is an open exposure. Positions are fetched fresh and never cached.
type Position struct {
	Symbol string          `json:"symbol"`
	Side   PositionSide    `json:"side"`
	Size   decimal.Decimal `json:"size"`
}

// ClosedPosition pairs a position with the order that flattened it.
type ClosedPosition struct {
	Position Position    `json:"position"`
	Result   OrderResult `json:"result"`
}

// CloseReport lists what a close-all run did. When the run aborts, Remaining
// holds the positions that were not attempted, the failing one first.
type CloseReport struct {
	Closed    []ClosedPosition `json:"closed"`
	Remaining []Position       `json:"remaining"`
}
