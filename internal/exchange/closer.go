package exchange

import (
	"context"

	"github.com/moznion/go-optional"
	"github.com/shigeo-nakamura/dex-router/internal/logger"
	"github.com/shigeo-nakamura/dex-router/internal/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PositionSource fetches the open positions of the account.
type PositionSource func(ctx context.Context) ([]types.Position, error)

// PriceHint returns a reference price for a closing order, or None.
type PriceHint func(ctx context.Context, symbol string) optional.Option[decimal.Decimal]

// OrderPlacer submits one instant-fill order.
type OrderPlacer func(ctx context.Context, req types.OrderRequest) (types.OrderResult, error)

// CloseAllPositions flattens open positions sequentially. Positions are fetched
// fresh, zero sizes are skipped and, when symbol is set, only matching
// positions are closed. A missing price hint does not abort the run; the first
// submission error does, and the report then lists what was left untouched.
func CloseAllPositions(
	ctx context.Context,
	fetch PositionSource,
	symbol optional.Option[string],
	hint PriceHint,
	place OrderPlacer,
	log *logger.Logger,
) (types.CloseReport, error) {
	report := types.CloseReport{
		Closed:    []types.ClosedPosition{},
		Remaining: []types.Position{},
	}

	positions, err := fetch(ctx)
	if err != nil {
		return report, err
	}

	targets := make([]types.Position, 0, len(positions))

	for _, position := range positions {
		if position.Size.IsZero() {
			continue
		}

		if symbol.IsSome() && types.NormalizeSymbol(position.Symbol) != types.NormalizeSymbol(symbol.Unwrap()) {
			continue
		}

		targets = append(targets, position)
	}

	for i, position := range targets {
		req := types.OrderRequest{
			Symbol:     position.Symbol,
			Size:       position.Size.Abs(),
			Side:       position.Side.ClosingSide(),
			Price:      optional.None[decimal.Decimal](),
			ReduceOnly: true,
		}

		if hint != nil {
			req.Price = hint(ctx, position.Symbol)
		}

		if req.Price.IsNone() {
			log.Warn("No price hint for closing order, submitting without one",
				zap.String("symbol", position.Symbol),
			)
		}

		result, err := place(ctx, req)
		if err != nil {
			log.Error("Failed to close position",
				zap.String("symbol", position.Symbol),
				zap.String("side", string(position.Side)),
				zap.String("size", position.Size.String()),
				zap.Error(err),
			)

			report.Remaining = append(report.Remaining, targets[i:]...)

			return report, err
		}

		log.Info("Closed position",
			zap.String("symbol", position.Symbol),
			zap.String("side", string(req.Side)),
			zap.String("size", req.Size.String()),
			zap.String("order_id", result.OrderID),
			zap.String("state", string(result.State)),
		)

		report.Closed = append(report.Closed, types.ClosedPosition{Position: position, Result: result})
	}

	return report, nil
}
