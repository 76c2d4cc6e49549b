// Package cache holds the streamed state of one exchange adapter: the last
// price per symbol and the fill confirmations per symbol and order.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shigeo-nakamura/dex-router/internal/types"
)

// DefaultFillExpiration is how long a fill record is kept after ingestion.
const DefaultFillExpiration = 60 * time.Second

type fillEntry struct {
	record     types.FillRecord
	insertedAt time.Time
}

// Store is the price and fill cache shared by the stream handlers, the order
// executor and the HTTP layer. A single lock guards both maps so every
// operation is atomic with respect to the others.
type Store struct {
	mu         sync.Mutex
	prices     map[string]string
	fills      map[string]map[string]fillEntry
	expiration time.Duration
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithFillExpiration overrides DefaultFillExpiration.
func WithFillExpiration(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.expiration = d
		}
	}
}

// WithClock replaces the time source used for expiration.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		prices:     make(map[string]string),
		fills:      make(map[string]map[string]fillEntry),
		expiration: DefaultFillExpiration,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Expiration returns the fill retention window.
func (s *Store) Expiration() time.Duration {
	return s.expiration
}

// SetPrice records the last price of symbol. Last write wins.
func (s *Store) SetPrice(symbol, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices[types.NormalizeSymbol(symbol)] = price
}

// Price returns the last price of symbol.
func (s *Store) Price(symbol string) optional.Option[string] {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[types.NormalizeSymbol(symbol)]
	if !ok {
		return optional.None[string]()
	}

	return optional.Some(price)
}

// RecordFill stores a fill confirmation. A record already present for the
// same symbol and order is kept untouched, which makes redelivered stream
// events harmless. It reports whether the record was inserted.
func (s *Store) RecordFill(symbol string, record types.FillRecord) bool {
	key := types.NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	orders, ok := s.fills[key]
	if !ok {
		orders = make(map[string]fillEntry)
		s.fills[key] = orders
	}

	if _, exists := orders[record.OrderID]; exists {
		return false
	}

	orders[record.OrderID] = fillEntry{record: record, insertedAt: s.now()}

	return true
}

// FilledOrders returns the fill records of symbol ordered by order id.
func (s *Store) FilledOrders(symbol string) []types.FillRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := s.fills[types.NormalizeSymbol(symbol)]
	out := make([]types.FillRecord, 0, len(orders))

	for _, entry := range orders {
		out = append(out, entry.record)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })

	return out
}

// FilledOrder returns a single fill record.
func (s *Store) FilledOrder(symbol, orderID string) optional.Option[types.FillRecord] {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.fills[types.NormalizeSymbol(symbol)][orderID]
	if !ok {
		return optional.None[types.FillRecord]()
	}

	return optional.Some(entry.record)
}

// ClearFilledOrder removes one fill record. Clearing an absent record is a no-op.
func (s *Store) ClearFilledOrder(symbol, orderID string) {
	key := types.NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	orders, ok := s.fills[key]
	if !ok {
		return
	}

	delete(orders, orderID)

	if len(orders) == 0 {
		delete(s.fills, key)
	}
}

// Sweep removes records older than the expiration window and drops symbols
// left without records. It returns the number of records removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0

	for symbol, orders := range s.fills {
		for orderID, entry := range orders {
			if now.Sub(entry.insertedAt) > s.expiration {
				delete(orders, orderID)
				removed++
			}
		}

		if len(orders) == 0 {
			delete(s.fills, symbol)
		}
	}

	return removed
}

// FillCount returns the total number of fill records held.
func (s *Store) FillCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, orders := range s.fills {
		total += len(orders)
	}

	return total
}

// SymbolCount returns the number of symbols that currently hold fill records.
func (s *Store) SymbolCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.fills)
}
