// Package gateway owns the lifecycle of the configured exchange adapters:
// construction, stream feeds, fill cache sweepers and shutdown.
package gateway

import (
	"context"
	"sort"
	"sync"

	"github.com/shigeo-nakamura/dex-router/internal/cache"
	"github.com/shigeo-nakamura/dex-router/internal/config"
	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/exchange/apex"
	"github.com/shigeo-nakamura/dex-router/internal/exchange/binancefutures"
	"github.com/shigeo-nakamura/dex-router/internal/exchange/mufex"
	"github.com/shigeo-nakamura/dex-router/internal/logger"
	"github.com/shigeo-nakamura/dex-router/internal/metrics"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"go.uber.org/zap"
)

// Gateway routes requests to adapters by exchange name.
type Gateway struct {
	cache   config.CacheConfig
	log     *logger.Logger
	metrics *metrics.Recorder

	adapters map[exchange.Name]exchange.Adapter

	mu       sync.Mutex
	sweepers []*cache.Sweeper
	started  bool
}

// New builds every enabled adapter. Adapter construction loads symbol
// metadata, so a failure here is fatal for startup.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, rec *metrics.Recorder) (*Gateway, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	adapters := make([]exchange.Adapter, 0, 3)

	fail := func(err error) (*Gateway, error) {
		for _, a := range adapters {
			_ = a.Close()
		}

		return nil, err
	}

	storeFor := func() *cache.Store {
		return cache.NewStore(cache.WithFillExpiration(cfg.Cache.FillExpiration))
	}

	if e := cfg.Exchanges.Mufex; e.Enabled {
		a, err := mufex.New(ctx, mufexConfig(cfg, e), storeFor(), log, rec)
		if err != nil {
			return fail(errors.Wrap(errors.GetCode(err), "failed to create mufex adapter", err))
		}

		adapters = append(adapters, a)
	}

	if e := cfg.Exchanges.Apex; e.Enabled {
		a, err := apex.New(ctx, apexConfig(cfg, e), storeFor(), log, rec)
		if err != nil {
			return fail(errors.Wrap(errors.GetCode(err), "failed to create apex adapter", err))
		}

		adapters = append(adapters, a)
	}

	if e := cfg.Exchanges.BinanceFutures; e.Enabled {
		a, err := binancefutures.New(ctx, binanceConfig(cfg, e), storeFor(), log, rec)
		if err != nil {
			return fail(errors.Wrap(errors.GetCode(err), "failed to create binance futures adapter", err))
		}

		adapters = append(adapters, a)
	}

	return NewWithAdapters(cfg.Cache, log, rec, adapters...), nil
}

// NewWithAdapters wraps already constructed adapters.
// This is used for testing with mock adapters.
func NewWithAdapters(cacheCfg config.CacheConfig, log *logger.Logger, rec *metrics.Recorder, adapters ...exchange.Adapter) *Gateway {
	if log == nil {
		log = logger.NewNopLogger()
	}

	g := &Gateway{
		cache:    cacheCfg,
		log:      log.Named("gateway"),
		metrics:  rec,
		adapters: make(map[exchange.Name]exchange.Adapter, len(adapters)),
	}

	for _, a := range adapters {
		g.adapters[a.Name()] = a
	}

	return g
}

// Start launches the stream feeds and one fill cache sweeper per adapter.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return nil
	}

	for _, name := range g.names() {
		a := g.adapters[name]

		if err := a.StartFeeds(ctx); err != nil {
			return errors.Wrapf(errors.GetCode(err), err, "failed to start %s feeds", name)
		}

		exchangeName := string(name)
		sweeper := cache.NewSweeper(a.Store(), g.cache.SweepInterval, g.log.With(zap.String("exchange", exchangeName)), func(n int) {
			g.metrics.RecordEviction(exchangeName, n)
		})
		sweeper.Start(ctx)
		g.sweepers = append(g.sweepers, sweeper)

		g.log.Info("Exchange started", zap.String("exchange", exchangeName))
	}

	g.started = true

	return nil
}

// Adapter resolves the dex routing key. Known but unconfigured exchanges are
// reported as not found.
func (g *Gateway) Adapter(dex string) (exchange.Adapter, error) {
	name, err := exchange.ParseName(dex)
	if err != nil {
		return nil, err
	}

	a, ok := g.adapters[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeNotFound, "dex %s is not enabled", name)
	}

	return a, nil
}

// Names returns the enabled exchanges, sorted.
func (g *Gateway) Names() []exchange.Name {
	return g.names()
}

func (g *Gateway) names() []exchange.Name {
	names := make([]exchange.Name, 0, len(g.adapters))
	for name := range g.adapters {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	return names
}

// Stop halts the sweepers and closes every adapter. The first close error is returned.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	sweepers := g.sweepers
	g.sweepers = nil
	g.started = false
	g.mu.Unlock()

	for _, s := range sweepers {
		s.Stop()
	}

	var firstErr error

	for _, name := range g.names() {
		if err := g.adapters[name].Close(); err != nil {
			g.log.Warn("Failed to close adapter", zap.String("exchange", string(name)), zap.Error(err))

			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
