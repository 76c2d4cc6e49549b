// Package binancefutures implements the exchange adapter for Binance USD-M
// futures on top of the go-binance SDK.
package binancefutures

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shigeo-nakamura/dex-router/internal/cache"
	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/logger"
	"github.com/shigeo-nakamura/dex-router/internal/metrics"
	"github.com/shigeo-nakamura/dex-router/internal/symbols"
	"github.com/shigeo-nakamura/dex-router/internal/transport"
	"github.com/shigeo-nakamura/dex-router/internal/types"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// terminal statuses after which an IOC order will never fill further.
var terminalStatuses = map[futures.OrderStatusType]bool{
	futures.OrderStatusTypeCanceled: true,
	futures.OrderStatusTypeExpired:  true,
	futures.OrderStatusTypeRejected: true,
}

// Adapter talks to Binance USD-M futures. Orders are LIMIT IOC at the padded
// price and are confirmed by GetOrder, with the user data stream as a shortcut.
type Adapter struct {
	*exchange.Base

	cfg     Config
	client  FuturesClient
	limiter *rate.Limiter
	symbols *symbols.Cache

	keepaliveCancel context.CancelFunc
	keepaliveWG     sync.WaitGroup
	user            *userHandler
}

// New creates the adapter and loads the exchange info.
func New(ctx context.Context, cfg Config, store *cache.Store, log *logger.Logger, rec *metrics.Recorder) (*Adapter, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New(errors.ErrCodeMissingSecret, "binance api key and secret are required")
	}

	client := futures.NewClient(cfg.APIKey, cfg.APISecret)

	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = transport.DefaultTimeout
	}

	client.HTTPClient = &http.Client{Timeout: timeout}

	return newAdapterWithClient(ctx, cfg, &realFuturesClient{client: client}, store, log, rec)
}

// newAdapterWithClient creates the adapter with a custom client.
// This is used for testing with mock clients.
func newAdapterWithClient(ctx context.Context, cfg Config, client FuturesClient, store *cache.Store, log *logger.Logger, rec *metrics.Recorder) (*Adapter, error) {
	if cfg.Confirm.Attempts <= 0 {
		cfg.Confirm = exchange.DefaultConfirmPolicy
	}

	if cfg.ListenKeyKeepalive <= 0 {
		cfg.ListenKeyKeepalive = DefaultListenKeyKeepalive
	}

	a := &Adapter{
		Base:   exchange.NewBase(exchange.NameBinanceFutures, store, log, rec),
		cfg:    cfg,
		client: client,
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}

		a.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	var err error

	a.symbols, err = symbols.Load(ctx, a.fetchExchangeInfo)
	if err != nil {
		return nil, err
	}

	a.Logger().Info("Loaded exchange info", zap.Int("symbols", a.symbols.Len()))

	return a, nil
}

func (a *Adapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeUpstreamTimeout, "rate limiter wait aborted", err)
	}

	return nil
}

// convertError maps SDK failures onto the error taxonomy. API errors carry the
// exchange message verbatim.
func convertError(err error, rejectCode errors.ErrorCode, message string) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return errors.New(rejectCode, apiErr.Message+" ("+strconv.FormatInt(apiErr.Code, 10)+")")
	}

	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Wrap(errors.ErrCodeUpstreamTimeout, message, err)
	}

	return errors.Wrap(errors.ErrCodeUpstream, message, err)
}

func (a *Adapter) fetchExchangeInfo(ctx context.Context) ([]types.SymbolRule, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}

	info, err := a.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, convertError(err, errors.ErrCodeUpstream, "failed to get exchange info from Binance")
	}

	rules := make([]types.SymbolRule, 0, len(info.Symbols))

	for i := range info.Symbols {
		symbol := &info.Symbols[i]

		priceFilter := symbol.PriceFilter()
		lotFilter := symbol.LotSizeFilter()

		if priceFilter == nil || lotFilter == nil {
			continue
		}

		tick, tickErr := decimal.NewFromString(priceFilter.TickSize)
		step, stepErr := decimal.NewFromString(lotFilter.StepSize)

		if tickErr != nil || stepErr != nil {
			a.Logger().Warn("Skipping symbol with malformed filters", zap.String("symbol", symbol.Symbol))

			continue
		}

		rules = append(rules, types.SymbolRule{Symbol: symbol.Symbol, TickSize: tick, StepSize: step})
	}

	return rules, nil
}

func (a *Adapter) liveQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := a.wait(ctx); err != nil {
		return decimal.Zero, err
	}

	prices, err := a.client.NewListPricesService().Symbol(types.NormalizeSymbol(symbol)).Do(ctx)
	if err != nil {
		return decimal.Zero, convertError(err, errors.ErrCodeUpstream, "failed to get price from Binance")
	}

	if len(prices) == 0 {
		return decimal.Zero, errors.Newf(errors.ErrCodePriceUnavailable, "no price for %s", symbol)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(errors.ErrCodeDataShape, err, "malformed price for %s", symbol)
	}

	return price, nil
}

// GetTicker returns the streamed mark price of symbol, falling back to the last price.
func (a *Adapter) GetTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	if cached := a.Store().Price(symbol); cached.IsSome() {
		return types.Ticker{Symbol: symbol, Price: cached.Unwrap()}, nil
	}

	price, err := a.liveQuote(ctx, symbol)
	if err != nil {
		if !errors.HasCode(err, errors.ErrCodePriceUnavailable) {
			a.UpstreamFailed("ticker", err)
		}

		return types.Ticker{}, err
	}

	return types.Ticker{Symbol: symbol, Price: price.String()}, nil
}

// GetBalance implements exchange.Adapter.
func (a *Adapter) GetBalance(ctx context.Context) (types.Balance, error) {
	if err := a.wait(ctx); err != nil {
		return types.Balance{}, err
	}

	account, err := a.client.NewGetAccountService().Do(ctx)
	if err != nil {
		err = convertError(err, errors.ErrCodeUpstream, "failed to get account info from Binance")
		a.UpstreamFailed("balance", err)

		return types.Balance{}, err
	}

	equity, err := decimal.NewFromString(account.TotalMarginBalance)
	if err != nil {
		return types.Balance{}, errors.Wrap(errors.ErrCodeDataShape, "malformed totalMarginBalance", err)
	}

	available, err := decimal.NewFromString(account.AvailableBalance)
	if err != nil {
		return types.Balance{}, errors.Wrap(errors.ErrCodeDataShape, "malformed availableBalance", err)
	}

	return types.Balance{Equity: equity, Available: available}, nil
}

func toFuturesSide(side types.Side) futures.SideType {
	if side == types.SideSell {
		return futures.SideTypeSell
	}

	return futures.SideTypeBuy
}

// orderFill interprets the cumulative fill of an order. A terminal order
// without any fill is a rejection.
func orderFill(orderID string, status futures.OrderStatusType, executed, cumQuote string) (types.FillSummary, bool, error) {
	if status != futures.OrderStatusTypeFilled && !terminalStatuses[status] {
		return types.FillSummary{}, false, nil
	}

	size, sizeErr := decimal.NewFromString(executed)
	value, valueErr := decimal.NewFromString(cumQuote)

	if sizeErr != nil || valueErr != nil {
		return types.FillSummary{}, false, nil
	}

	record := types.FillRecord{OrderID: orderID, FilledSize: size, FilledValue: value, FilledFee: decimal.Zero}

	fill, ok := record.Summary()
	if !ok && terminalStatuses[status] {
		return types.FillSummary{}, false, errors.Newf(errors.ErrCodeOrderRejected, "order %s ended %s without a fill", orderID, status)
	}

	return fill, ok, nil
}

// fillCheck checks the fill cache first, then queries the order.
func (a *Adapter) fillCheck(symbol string, orderID int64) exchange.FillCheck {
	id := strconv.FormatInt(orderID, 10)
	fromStream := exchange.StoreCheck(a.Store(), symbol, id)

	return func(ctx context.Context) (types.FillSummary, bool, error) {
		if fill, ok, _ := fromStream(ctx); ok {
			return fill, true, nil
		}

		if err := a.wait(ctx); err != nil {
			return types.FillSummary{}, false, nil
		}

		order, err := a.client.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
		if err != nil {
			a.Logger().Warn("Fill poll failed", zap.String("order_id", id), zap.Error(err))

			return types.FillSummary{}, false, nil
		}

		fill, ok, err := orderFill(id, order.Status, order.ExecutedQuantity, order.CumQuote)
		if !ok || err != nil {
			return fill, ok, err
		}

		return a.tradeFee(ctx, symbol, orderID, fill), true, nil
	}
}

// tradeFee fills in the commission of a REST-confirmed order. A fee already
// summed by the account stream wins; otherwise the order's trades are listed.
// A failed lookup leaves the fee at zero.
func (a *Adapter) tradeFee(ctx context.Context, symbol string, orderID int64, fill types.FillSummary) types.FillSummary {
	id := strconv.FormatInt(orderID, 10)

	if record := a.Store().FilledOrder(symbol, id); record.IsSome() {
		fill.Fee = record.Unwrap().FilledFee

		return fill
	}

	if err := a.wait(ctx); err != nil {
		return fill
	}

	trades, err := a.client.NewListAccountTradeService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		a.Logger().Warn("Trade fee lookup failed", zap.String("order_id", id), zap.Error(err))

		return fill
	}

	fee := decimal.Zero

	for _, trade := range trades {
		if trade.OrderID != orderID {
			continue
		}

		commission, err := decimal.NewFromString(trade.Commission)
		if err != nil {
			a.Logger().Warn("Malformed trade commission",
				zap.String("order_id", id),
				zap.String("commission", trade.Commission),
			)

			return fill
		}

		fee = fee.Add(commission)
	}

	fill.Fee = fee

	return fill
}

// CreateOrder places a LIMIT IOC order at the padded price and confirms it.
func (a *Adapter) CreateOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	if err := req.Validate(); err != nil {
		return types.OrderResult{}, err
	}

	rule := a.symbols.Lookup(req.Symbol)
	if !rule.IsSupported() {
		return types.OrderResult{}, errors.Newf(errors.ErrCodeUnsupportedSymbol, "no trading rule for symbol %s", req.Symbol)
	}

	base := req.Price
	if base.IsNone() {
		base = exchange.DiscoverPrice(ctx, a.Store(), rule.Symbol, a.liveQuote)
	}

	if base.IsNone() {
		return types.OrderResult{}, errors.Newf(errors.ErrCodePriceUnavailable, "no price to pad for %s", rule.Symbol)
	}

	prepared, err := exchange.PrepareInstantFill(rule, req, base, a.cfg.Padding)
	if err != nil {
		return types.OrderResult{}, err
	}

	if err := a.wait(ctx); err != nil {
		return types.OrderResult{}, err
	}

	clientID := uuid.NewString()

	service := a.client.NewCreateOrderService().
		Symbol(prepared.Symbol).
		Side(toFuturesSide(prepared.Side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeIOC).
		Quantity(prepared.Size.String()).
		Price(prepared.Price.Unwrap().String()).
		NewClientOrderID(clientID).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)

	if prepared.ReduceOnly {
		service = service.ReduceOnly(true)
	}

	created, err := service.Do(ctx)
	if err != nil {
		err = convertError(err, errors.ErrCodeOrderRejected, "failed to place order on Binance")
		a.UpstreamFailed("create_order", err)

		return types.OrderResult{}, err
	}

	id := strconv.FormatInt(created.OrderID, 10)

	a.Logger().Info("Order submitted",
		zap.String("order_id", id),
		zap.String("client_id", clientID),
		zap.String("symbol", prepared.Symbol),
		zap.String("side", string(prepared.Side)),
		zap.String("size", prepared.Size.String()),
		zap.String("price", prepared.Price.Unwrap().String()),
		zap.String("status", string(created.Status)),
	)

	fill, ok, err := orderFill(id, created.Status, created.ExecutedQuantity, created.CumQuote)
	if err != nil {
		return types.OrderResult{}, err
	}

	if ok {
		return types.Filled(id, a.tradeFee(ctx, prepared.Symbol, created.OrderID, fill)), nil
	}

	confirmed, err := exchange.AwaitFill(ctx, a.cfg.Confirm, a.fillCheck(prepared.Symbol, created.OrderID))
	if err != nil {
		return types.OrderResult{}, err
	}

	return exchange.Result(id, confirmed), nil
}

// CancelOrder cancels an order. Without a symbol the open orders are searched
// for the id first.
func (a *Adapter) CancelOrder(ctx context.Context, req types.CancelRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	orderID, err := strconv.ParseInt(req.OrderID, 10, 64)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid order ID format", err)
	}

	symbol := optional.None[string]()
	if req.Symbol.IsSome() {
		symbol = optional.Some(types.NormalizeSymbol(req.Symbol.Unwrap()))
	}

	if symbol.IsNone() {
		if err := a.wait(ctx); err != nil {
			return err
		}

		open, err := a.client.NewListOpenOrdersService().Do(ctx)
		if err != nil {
			err = convertError(err, errors.ErrCodeUpstream, "failed to get open orders from Binance")
			a.UpstreamFailed("open_orders", err)

			return err
		}

		for _, order := range open {
			if order.OrderID == orderID {
				symbol = optional.Some(order.Symbol)

				break
			}
		}

		if symbol.IsNone() {
			return errors.Newf(errors.ErrCodeNotFound, "order not found: %s", req.OrderID)
		}
	}

	if err := a.wait(ctx); err != nil {
		return err
	}

	if _, err := a.client.NewCancelOrderService().Symbol(symbol.Unwrap()).OrderID(orderID).Do(ctx); err != nil {
		err = convertError(err, errors.ErrCodeOrderRejected, "failed to cancel order on Binance")
		a.UpstreamFailed("cancel_order", err)

		return err
	}

	return nil
}

func (a *Adapter) positions(ctx context.Context) ([]types.Position, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}

	risks, err := a.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		err = convertError(err, errors.ErrCodeUpstream, "failed to get positions from Binance")
		a.UpstreamFailed("positions", err)

		return nil, err
	}

	out := make([]types.Position, 0, len(risks))

	for _, risk := range risks {
		amount, err := decimal.NewFromString(risk.PositionAmt)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeDataShape, err, "malformed positionAmt for %s", risk.Symbol)
		}

		if amount.IsZero() {
			continue
		}

		side := types.PositionSideLong
		if amount.IsNegative() {
			side = types.PositionSideShort
		}

		out = append(out, types.Position{Symbol: risk.Symbol, Side: side, Size: amount.Abs()})
	}

	return out, nil
}

// CloseAllPositions implements exchange.Adapter.
func (a *Adapter) CloseAllPositions(ctx context.Context, symbol optional.Option[string]) (types.CloseReport, error) {
	hint := func(ctx context.Context, symbol string) optional.Option[decimal.Decimal] {
		return exchange.DiscoverPrice(ctx, a.Store(), symbol, a.liveQuote)
	}

	report, err := exchange.CloseAllPositions(ctx, a.positions, symbol, hint, a.CreateOrder, a.Logger())

	for _, closed := range report.Closed {
		a.Metrics().RecordPositionClosed(string(a.Name()), string(closed.Position.Side))
	}

	return report, err
}

// Symbols returns the symbols loaded from the exchange info.
func (a *Adapter) Symbols() []string {
	return a.symbols.Symbols()
}

// StartFeeds starts the mark price feed for the configured symbols and the
// user data feed. The listen key is created here and kept alive until Close.
func (a *Adapter) StartFeeds(ctx context.Context) error {
	if a.cfg.StreamURL == "" {
		return nil
	}

	if len(a.cfg.Symbols) > 0 {
		a.RunFeeds(ctx, a.cfg.Stream, newMarkPriceHandler(a.cfg.StreamURL, a.cfg.Symbols, a.Base))
	}

	if err := a.wait(ctx); err != nil {
		return err
	}

	listenKey, err := a.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		err = convertError(err, errors.ErrCodeUpstream, "failed to start user data stream")
		a.UpstreamFailed("listen_key", err)

		return err
	}

	a.user = newUserHandler(a.cfg.StreamURL, listenKey, a.Base)
	a.RunFeeds(ctx, a.cfg.Stream, a.user)

	keepaliveCtx, cancel := context.WithCancel(ctx)
	a.keepaliveCancel = cancel

	a.keepaliveWG.Add(1)

	go a.keepalive(keepaliveCtx)

	return nil
}

// keepalive extends the listen key and replaces it when Binance no longer
// knows it. The worker picks the new key up on its next reconnect.
func (a *Adapter) keepalive(ctx context.Context) {
	defer a.keepaliveWG.Done()

	ticker := time.NewTicker(a.cfg.ListenKeyKeepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refreshListenKey(ctx)
		}
	}
}

func (a *Adapter) refreshListenKey(ctx context.Context) {
	err := a.client.NewKeepaliveUserStreamService().ListenKey(a.user.ListenKey()).Do(ctx)
	if err == nil {
		return
	}

	a.UpstreamFailed("listen_key_keepalive", err)

	listenKey, err := a.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		a.UpstreamFailed("listen_key", err)

		return
	}

	a.user.SetListenKey(listenKey)
}

// Close implements exchange.Adapter.
func (a *Adapter) Close() error {
	if a.keepaliveCancel != nil {
		a.keepaliveCancel()
		a.keepaliveWG.Wait()
	}

	a.StopFeeds()

	return nil
}

var _ exchange.Adapter = (*Adapter)(nil)
