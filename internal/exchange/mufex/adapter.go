// Package mufex implements the exchange adapter for Mufex linear perpetuals.
package mufex

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shigeo-nakamura/dex-router/internal/cache"
	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/logger"
	"github.com/shigeo-nakamura/dex-router/internal/metrics"
	"github.com/shigeo-nakamura/dex-router/internal/signing"
	"github.com/shigeo-nakamura/dex-router/internal/stream"
	"github.com/shigeo-nakamura/dex-router/internal/symbols"
	"github.com/shigeo-nakamura/dex-router/internal/transport"
	"github.com/shigeo-nakamura/dex-router/internal/types"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	orderStatusFilled = "Filled"
	category          = "linear"
)

// terminal statuses after which an IOC order will never fill further.
var terminalStatuses = map[string]bool{
	"Cancelled":               true,
	"PartiallyFilledCanceled": true,
	"Rejected":                true,
	"Deactivated":             true,
}

// Adapter talks to Mufex. Fills are confirmed synchronously by polling the
// activity orders endpoint, with the private order stream as a shortcut.
type Adapter struct {
	*exchange.Base

	cfg     Config
	client  *client
	signer  *signing.HMACSigner
	symbols *symbols.Cache
}

// New creates the adapter and loads the instrument list. It fails when the
// credentials are missing or the instruments cannot be fetched.
func New(ctx context.Context, cfg Config, store *cache.Store, log *logger.Logger, rec *metrics.Recorder) (*Adapter, error) {
	signer, err := signing.NewHMACSigner(cfg.APIKey, cfg.APISecret, cfg.RecvWindow)
	if err != nil {
		return nil, err
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = TestnetURL
	}

	if cfg.Confirm.Attempts <= 0 {
		cfg.Confirm = exchange.DefaultConfirmPolicy
	}

	a := &Adapter{
		Base: exchange.NewBase(exchange.NameMufex, store, log, rec),
		cfg:  cfg,
		client: &client{
			http: transport.NewClient(transport.Config{
				BaseURL:           cfg.BaseURL,
				Timeout:           cfg.Timeout,
				RequestsPerSecond: cfg.RequestsPerSecond,
				Burst:             cfg.Burst,
			}),
			signer: signer,
		},
		signer: signer,
	}

	a.symbols, err = symbols.Load(ctx, a.fetchInstruments)
	if err != nil {
		signer.Wipe()

		return nil, err
	}

	a.Logger().Info("Loaded instruments", zap.Int("count", a.symbols.Len()))

	return a, nil
}

type instrument struct {
	Symbol      string `json:"symbol"`
	PriceFilter struct {
		TickSize string `json:"tickSize"`
	} `json:"priceFilter"`
	LotSizeFilter struct {
		QtyStep string `json:"qtyStep"`
	} `json:"lotSizeFilter"`
}

func (a *Adapter) fetchInstruments(ctx context.Context) ([]types.SymbolRule, error) {
	data, err := a.client.public(ctx, pathInstruments, url.Values{"category": {category}})
	if err != nil {
		return nil, err
	}

	list, err := listOf[instrument](data)
	if err != nil {
		return nil, err
	}

	rules := make([]types.SymbolRule, 0, len(list))

	for _, item := range list {
		tick, tickErr := decimal.NewFromString(item.PriceFilter.TickSize)
		step, stepErr := decimal.NewFromString(item.LotSizeFilter.QtyStep)

		if tickErr != nil || stepErr != nil {
			a.Logger().Warn("Skipping instrument with malformed filters", zap.String("symbol", item.Symbol))

			continue
		}

		rules = append(rules, types.SymbolRule{Symbol: item.Symbol, TickSize: tick, StepSize: step})
	}

	return rules, nil
}

type ticker struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}

func (a *Adapter) liveTicker(ctx context.Context, symbol string) (string, error) {
	data, err := a.client.public(ctx, pathTickers, url.Values{"symbol": {types.NormalizeSymbol(symbol)}})
	if err != nil {
		a.UpstreamFailed("ticker", err)

		return "", err
	}

	list, err := listOf[ticker](data)
	if err != nil {
		return "", err
	}

	if len(list) == 0 || list[0].LastPrice == "" {
		return "", errors.Newf(errors.ErrCodePriceUnavailable, "no price for %s", symbol)
	}

	return list[0].LastPrice, nil
}

func (a *Adapter) liveQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, err := a.liveTicker(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return decimal.Zero, errors.Wrap(errors.ErrCodeDataShape, "malformed ticker price", err)
	}

	return parsed, nil
}

// GetTicker returns the streamed price when one is known, else a live quote.
func (a *Adapter) GetTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	if cached := a.Store().Price(symbol); cached.IsSome() {
		return types.Ticker{Symbol: symbol, Price: cached.Unwrap()}, nil
	}

	price, err := a.liveTicker(ctx, symbol)
	if err != nil {
		return types.Ticker{}, err
	}

	return types.Ticker{Symbol: symbol, Price: price}, nil
}

type balance struct {
	Equity        string `json:"equity"`
	WalletBalance string `json:"walletBalance"`
}

// GetBalance implements exchange.Adapter.
func (a *Adapter) GetBalance(ctx context.Context) (types.Balance, error) {
	data, err := a.client.get(ctx, pathBalance, url.Values{})
	if err != nil {
		a.UpstreamFailed("balance", err)

		return types.Balance{}, err
	}

	list, err := listOf[balance](data)
	if err != nil {
		return types.Balance{}, err
	}

	if len(list) == 0 {
		return types.Balance{}, errors.New(errors.ErrCodeDataShape, "balance response has no accounts")
	}

	equity, err := decimal.NewFromString(list[0].Equity)
	if err != nil {
		return types.Balance{}, errors.Wrap(errors.ErrCodeDataShape, "malformed equity", err)
	}

	wallet, err := decimal.NewFromString(list[0].WalletBalance)
	if err != nil {
		return types.Balance{}, errors.Wrap(errors.ErrCodeDataShape, "malformed wallet balance", err)
	}

	return types.Balance{Equity: equity, Available: wallet}, nil
}

type createOrderBody struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	PositionIdx int    `json:"positionIdx"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce"`
	ReduceOnly  bool   `json:"reduceOnly,omitempty"`
	OrderLinkID string `json:"orderLinkId"`
}

// CreateOrder submits an IOC order at the padded price, or a market IOC order
// when no price could be discovered, then polls for the fill.
func (a *Adapter) CreateOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return types.OrderResult{}, err
	}

	rule := a.symbols.Lookup(req.Symbol)

	base := req.Price
	if base.IsNone() && rule.IsSupported() {
		base = exchange.DiscoverPrice(ctx, a.Store(), req.Symbol, a.liveQuote)
	}

	prepared, err := exchange.PrepareInstantFill(rule, req, base, a.cfg.Padding)
	if err != nil {
		return types.OrderResult{}, err
	}

	body := createOrderBody{
		Symbol:      types.NormalizeSymbol(prepared.Symbol),
		Side:        sideString(prepared.Side),
		PositionIdx: 0,
		OrderType:   "Market",
		Qty:         prepared.Size.String(),
		TimeInForce: "ImmediateOrCancel",
		ReduceOnly:  prepared.ReduceOnly,
		OrderLinkID: uuid.NewString(),
	}

	if prepared.Price.IsSome() {
		body.OrderType = "Limit"
		body.Price = prepared.Price.Unwrap().String()
	}

	data, err := a.client.post(ctx, pathCreateOrder, body, errors.ErrCodeOrderRejected)
	if err != nil {
		a.UpstreamFailed("create_order", err)

		return types.OrderResult{}, err
	}

	var created struct {
		OrderID string `json:"orderId"`
	}

	if err := transport.Decode(data, &created); err != nil {
		return types.OrderResult{}, err
	}

	if created.OrderID == "" {
		return types.OrderResult{}, errors.New(errors.ErrCodeDataShape, "create order response has no orderId")
	}

	a.Logger().Info("Order submitted",
		zap.String("order_id", created.OrderID),
		zap.String("symbol", body.Symbol),
		zap.String("side", body.Side),
		zap.String("qty", body.Qty),
		zap.String("price", body.Price),
	)

	fill, err := exchange.AwaitFill(ctx, a.cfg.Confirm, a.fillCheck(body.Symbol, created.OrderID))
	if err != nil {
		return types.OrderResult{}, err
	}

	return exchange.Result(created.OrderID, fill), nil
}

type activityOrder struct {
	OrderID      string `json:"orderId"`
	Symbol       string `json:"symbol"`
	OrderStatus  string `json:"orderStatus"`
	CumExecQty   string `json:"cumExecQty"`
	CumExecValue string `json:"cumExecValue"`
	CumExecFee   string `json:"cumExecFee"`
}

func (o activityOrder) record() (types.FillRecord, error) {
	size, err := decimal.NewFromString(o.CumExecQty)
	if err != nil {
		return types.FillRecord{}, errors.Wrap(errors.ErrCodeDataShape, "malformed cumExecQty", err)
	}

	value, err := decimal.NewFromString(o.CumExecValue)
	if err != nil {
		return types.FillRecord{}, errors.Wrap(errors.ErrCodeDataShape, "malformed cumExecValue", err)
	}

	fee, err := decimal.NewFromString(o.CumExecFee)
	if err != nil {
		return types.FillRecord{}, errors.Wrap(errors.ErrCodeDataShape, "malformed cumExecFee", err)
	}

	return types.FillRecord{
		OrderID:     o.OrderID,
		Timestamp:   time.Now(),
		FilledSize:  size,
		FilledValue: value,
		FilledFee:   fee,
	}, nil
}

func (a *Adapter) activityOrders(ctx context.Context, query url.Values) ([]activityOrder, error) {
	data, err := a.client.get(ctx, pathActivityOrders, query)
	if err != nil {
		return nil, err
	}

	return listOf[activityOrder](data)
}

// fillCheck checks the fill cache first, then asks activity-orders.
func (a *Adapter) fillCheck(symbol, orderID string) exchange.FillCheck {
	fromStream := exchange.StoreCheck(a.Store(), symbol, orderID)

	return func(ctx context.Context) (types.FillSummary, bool, error) {
		if fill, ok, _ := fromStream(ctx); ok {
			return fill, true, nil
		}

		orders, err := a.activityOrders(ctx, url.Values{"orderId": {orderID}, "symbol": {symbol}})
		if err != nil {
			a.Logger().Warn("Fill poll failed", zap.String("order_id", orderID), zap.Error(err))

			return types.FillSummary{}, false, nil
		}

		if len(orders) == 0 {
			return types.FillSummary{}, false, nil
		}

		order := orders[0]

		if order.OrderStatus != orderStatusFilled && !terminalStatuses[order.OrderStatus] {
			return types.FillSummary{}, false, nil
		}

		record, err := order.record()
		if err != nil {
			a.Logger().Warn("Malformed activity order", zap.String("order_id", orderID), zap.Error(err))

			return types.FillSummary{}, false, nil
		}

		fill, ok := record.Summary()
		if !ok {
			if order.OrderStatus == orderStatusFilled {
				return types.FillSummary{}, false, nil
			}

			return types.FillSummary{}, false, errors.Newf(errors.ErrCodeOrderRejected, "order %s ended %s without a fill", orderID, order.OrderStatus)
		}

		return fill, true, nil
	}
}

// CancelOrder cancels an open order. Without a symbol the order is first
// looked up among the active orders.
func (a *Adapter) CancelOrder(ctx context.Context, req types.CancelRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	symbol := ""
	if req.Symbol.IsSome() {
		symbol = types.NormalizeSymbol(req.Symbol.Unwrap())
	} else {
		orders, err := a.activityOrders(ctx, url.Values{"orderId": {req.OrderID}})
		if err != nil {
			a.UpstreamFailed("cancel_order", err)

			return err
		}

		if len(orders) == 0 {
			return errors.Newf(errors.ErrCodeNotFound, "order not found: %s", req.OrderID)
		}

		symbol = orders[0].Symbol
	}

	body := map[string]string{"symbol": symbol, "orderId": req.OrderID}

	if _, err := a.client.post(ctx, pathCancelOrder, body, errors.ErrCodeOrderRejected); err != nil {
		a.UpstreamFailed("cancel_order", err)

		return err
	}

	return nil
}

type position struct {
	Symbol string `json:"symbol"`
	Size   string `json:"size"`
	Side   string `json:"side"`
}

func (a *Adapter) positions(symbol optional.Option[string]) exchange.PositionSource {
	return func(ctx context.Context) ([]types.Position, error) {
		query := url.Values{}
		if symbol.IsSome() {
			query.Set("symbol", types.NormalizeSymbol(symbol.Unwrap()))
		}

		data, err := a.client.get(ctx, pathPositions, query)
		if err != nil {
			a.UpstreamFailed("positions", err)

			return nil, err
		}

		list, err := listOf[position](data)
		if err != nil {
			return nil, err
		}

		out := make([]types.Position, 0, len(list))

		for _, p := range list {
			size, err := decimal.NewFromString(p.Size)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrCodeDataShape, err, "malformed size for %s", p.Symbol)
			}

			if size.IsZero() {
				continue
			}

			side, err := types.ParsePositionSide(p.Side)
			if err != nil {
				return nil, err
			}

			out = append(out, types.Position{Symbol: p.Symbol, Side: side, Size: size.Abs()})
		}

		return out, nil
	}
}

// CloseAllPositions implements exchange.Adapter.
func (a *Adapter) CloseAllPositions(ctx context.Context, symbol optional.Option[string]) (types.CloseReport, error) {
	hint := func(ctx context.Context, symbol string) optional.Option[decimal.Decimal] {
		return exchange.DiscoverPrice(ctx, a.Store(), symbol, a.liveQuote)
	}

	report, err := exchange.CloseAllPositions(ctx, a.positions(symbol), symbol, hint, a.CreateOrder, a.Logger())

	for _, closed := range report.Closed {
		a.Metrics().RecordPositionClosed(string(a.Name()), string(closed.Position.Side))
	}

	return report, err
}

// StartFeeds starts the ticker feed for the configured symbols and the
// private order feed.
func (a *Adapter) StartFeeds(ctx context.Context) error {
	handlers := make([]stream.Handler, 0, 2)

	if a.cfg.PublicStreamURL != "" && len(a.cfg.Symbols) > 0 {
		handlers = append(handlers, newTickerHandler(a.cfg.PublicStreamURL, a.cfg.Symbols, a.Base))
	}

	if a.cfg.PrivateStreamURL != "" {
		handlers = append(handlers, newOrderHandler(a.cfg.PrivateStreamURL, a.signer, a.Base))
	}

	for _, h := range handlers {
		a.RunFeeds(ctx, a.cfg.Stream, h)
	}

	return nil
}

// Close implements exchange.Adapter.
func (a *Adapter) Close() error {
	a.StopFeeds()
	a.signer.Wipe()

	return nil
}

// Symbols returns the loaded instrument names.
func (a *Adapter) Symbols() []string {
	return a.symbols.Symbols()
}

func sideString(side types.Side) string {
	if side == types.SideSell {
		return "Sell"
	}

	return "Buy"
}

var _ exchange.Adapter = (*Adapter)(nil)
