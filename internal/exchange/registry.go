package exchange

import (
	"sort"
	"strings"

	"github.com/shigeo-nakamura/dex-router/pkg/errors"
)

// Name is the routing key of an exchange, as used in the `dex` query parameter.
type Name string

const (
	NameMufex          Name = "mufex"
	NameApex           Name = "apex"
	NameBinanceFutures Name = "binance_futures"
)

// Info describes a supported exchange.
type Info struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	// AsyncFills is true when fills are only confirmed through the account stream.
	AsyncFills bool `json:"asyncFills"`
	// YesterdayPnL is true when the adapter implements PnLReporter.
	YesterdayPnL bool `json:"yesterdayPnl"`
}

var registry = map[Name]Info{
	NameMufex: {
		Name:         string(NameMufex),
		DisplayName:  "Mufex",
		Description:  "Mufex linear perpetuals with HMAC signed REST and order polling",
		AsyncFills:   false,
		YesterdayPnL: false,
	},
	NameApex: {
		Name:         string(NameApex),
		DisplayName:  "ApeX Pro",
		Description:  "ApeX perpetuals with signed orders and fills confirmed over the account stream",
		AsyncFills:   true,
		YesterdayPnL: true,
	},
	NameBinanceFutures: {
		Name:         string(NameBinanceFutures),
		DisplayName:  "Binance USD-M Futures",
		Description:  "Binance USD-M futures through the official SDK with IOC limit orders",
		AsyncFills:   false,
		YesterdayPnL: false,
	},
}

// GetSupportedExchanges returns the routing keys of every known exchange, sorted.
func GetSupportedExchanges() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, string(name))
	}

	sort.Strings(names)

	return names
}

// GetExchangeInfo returns metadata for one exchange.
func GetExchangeInfo(name string) (Info, error) {
	parsed, err := ParseName(name)
	if err != nil {
		return Info{}, err
	}

	return registry[parsed], nil
}

// ParseName validates a routing key.
func ParseName(name string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := registry[n]; !ok {
		return "", errors.Newf(errors.ErrCodeUnsupportedDex, "unsupported dex: %s", name)
	}

	return n, nil
}
