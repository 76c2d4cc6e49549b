package exchange

import (
	"context"
	"sync"

	"github.com/shigeo-nakamura/dex-router/internal/cache"
	"github.com/shigeo-nakamura/dex-router/internal/logger"
	"github.com/shigeo-nakamura/dex-router/internal/metrics"
	"github.com/shigeo-nakamura/dex-router/internal/stream"
	"github.com/shigeo-nakamura/dex-router/internal/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Base carries the state every adapter shares: the cache, the stream workers,
// the logger and the metrics recorder. Adapters embed it.
type Base struct {
	name    Name
	store   *cache.Store
	log     *logger.Logger
	metrics *metrics.Recorder

	mu      sync.Mutex
	workers []*stream.Worker
}

// NewBase creates the shared adapter state.
func NewBase(name Name, store *cache.Store, log *logger.Logger, rec *metrics.Recorder) *Base {
	if store == nil {
		store = cache.NewStore()
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Base{
		name:    name,
		store:   store,
		log:     log.With(zap.String("exchange", string(name))),
		metrics: rec,
	}
}

func (b *Base) Name() Name {
	return b.name
}

func (b *Base) Store() *cache.Store {
	return b.store
}

func (b *Base) Logger() *logger.Logger {
	return b.log
}

func (b *Base) Metrics() *metrics.Recorder {
	return b.metrics
}

// GetFilledOrders implements Adapter.
func (b *Base) GetFilledOrders(symbol string) []types.FillRecord {
	return b.store.FilledOrders(symbol)
}

// ClearFilledOrder implements Adapter.
func (b *Base) ClearFilledOrder(symbol, orderID string) {
	b.store.ClearFilledOrder(symbol, orderID)
}

// IngestTicker writes a streamed price. Events without a symbol or without a
// positive decimal price are dropped with a log line; the feed keeps running.
func (b *Base) IngestTicker(symbol, price string) {
	if symbol == "" || price == "" {
		b.log.Debug("Dropping ticker event with missing fields",
			zap.String("symbol", symbol),
			zap.String("price", price),
		)

		return
	}

	parsed, err := decimal.NewFromString(price)
	if err != nil || !parsed.IsPositive() {
		b.log.Warn("Dropping ticker event with invalid price",
			zap.String("symbol", symbol),
			zap.String("price", price),
		)

		return
	}

	b.store.SetPrice(symbol, price)
	b.metrics.RecordTickerEvent(string(b.name))
}

// IngestFill writes a streamed fill confirmation. Duplicates are no-ops.
func (b *Base) IngestFill(symbol string, record types.FillRecord) bool {
	if symbol == "" || record.OrderID == "" {
		b.log.Warn("Dropping fill event with missing fields",
			zap.String("symbol", symbol),
			zap.String("order_id", record.OrderID),
		)

		return false
	}

	inserted := b.store.RecordFill(symbol, record)
	b.metrics.RecordFillEvent(string(b.name), inserted)

	if inserted {
		b.log.Info("Order filled",
			zap.String("symbol", symbol),
			zap.String("order_id", record.OrderID),
			zap.String("size", record.FilledSize.String()),
			zap.String("value", record.FilledValue.String()),
		)
	}

	return inserted
}

// RunFeeds starts one stream worker per handler.
func (b *Base) RunFeeds(ctx context.Context, cfg stream.Config, handlers ...stream.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, handler := range handlers {
		worker := stream.NewWorker(handler, cfg, b.log)

		feed := handler.ID()
		worker.OnConnected(func() {
			b.metrics.RecordStreamConnect(string(b.name), feed)
		})

		worker.Start(ctx)
		b.workers = append(b.workers, worker)
	}
}

// StopFeeds stops every stream worker started by RunFeeds.
func (b *Base) StopFeeds() {
	b.mu.Lock()
	workers := b.workers
	b.workers = nil
	b.mu.Unlock()

	for _, worker := range workers {
		worker.Stop()
	}
}

// UpstreamFailed records a failed exchange call.
func (b *Base) UpstreamFailed(operation string, err error) {
	b.metrics.RecordUpstreamError(string(b.name), operation)
	b.log.Warn("Exchange call failed", zap.String("operation", operation), zap.Error(err))
}
