package cache

import (
	"context"
	"sync"
	"time"

	"github.com/shigeo-nakamura/dex-router/internal/logger"
	"go.uber.org/zap"
)

// DefaultSweepInterval is how often expired fills are evicted.
const DefaultSweepInterval = 10 * time.Second

// Sweeper periodically evicts expired fill records from a Store.
type Sweeper struct {
	store    *Store
	interval time.Duration
	log      *logger.Logger
	onEvict  func(n int)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper. onEvict may be nil.
func NewSweeper(store *Store, interval time.Duration, log *logger.Logger, onEvict func(n int)) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Sweeper{
		store:    store,
		interval: interval,
		log:      log,
		onEvict:  onEvict,
	}
}

// Start launches the sweep loop. Calling Start on a running sweeper does nothing.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
}

// Stop ends the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	removed := s.store.Sweep()
	if removed == 0 {
		return
	}

	s.log.Debug("Evicted expired fill records", zap.Int("count", removed))

	if s.onEvict != nil {
		s.onEvict(removed)
	}
}
