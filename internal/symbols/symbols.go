// Package symbols holds the per-symbol trading rules loaded once at adapter start.
package symbols

import (
	"context"
	"sort"

	"github.com/shigeo-nakamura/dex-router/internal/types"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
)

// Fetcher returns the raw instrument list from an exchange.
type Fetcher func(ctx context.Context) ([]types.SymbolRule, error)

// Cache is a read-only symbol table keyed by normalized symbol.
// It is populated once and safe for concurrent reads.
type Cache struct {
	rules map[string]types.SymbolRule
}

// New builds a cache from rules. When a symbol appears twice the first entry wins.
func New(rules []types.SymbolRule) *Cache {
	c := &Cache{rules: make(map[string]types.SymbolRule, len(rules))}

	for _, rule := range rules {
		key := types.NormalizeSymbol(rule.Symbol)
		if key == "" {
			continue
		}

		if _, exists := c.rules[key]; exists {
			continue
		}

		c.rules[key] = rule
	}

	return c
}

// Load fetches the instrument list and builds the cache.
func Load(ctx context.Context, fetch Fetcher) (*Cache, error) {
	rules, err := fetch(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMetadataLoadFail, "failed to load symbol metadata", err)
	}

	if len(rules) == 0 {
		return nil, errors.New(errors.ErrCodeMetadataLoadFail, "exchange returned no instruments")
	}

	return New(rules), nil
}

// Lookup returns the rule for symbol. Unknown symbols yield a zero rule whose
// IsSupported reports false.
func (c *Cache) Lookup(symbol string) types.SymbolRule {
	if c == nil {
		return types.SymbolRule{Symbol: symbol}
	}

	rule, ok := c.rules[types.NormalizeSymbol(symbol)]
	if !ok {
		return types.SymbolRule{Symbol: symbol}
	}

	return rule
}

// Len returns the number of symbols.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}

	return len(c.rules)
}

// Symbols returns the exchange-native symbol names, sorted.
func (c *Cache) Symbols() []string {
	if c == nil {
		return nil
	}

	out := make([]string, 0, len(c.rules))
	for _, rule := range c.rules {
		out = append(out, rule.Symbol)
	}

	sort.Strings(out)

	return out
}
