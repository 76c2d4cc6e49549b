// Package apex implements the exchange adapter for ApeX perpetuals.
package apex

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
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

// limitFeePlaces is the precision of the limitFee field.
const limitFeePlaces = 6

// Adapter talks to ApeX. Order fills are only confirmed through the account
// stream, so CreateOrder waits on the fill cache.
type Adapter struct {
	*exchange.Base

	cfg         Config
	client      *client
	signer      *signing.RequestSigner
	orderSigner signing.KeyPairSigner
	symbols     *symbols.Cache
	takerFee    decimal.Decimal
	now         func() time.Time
}

// New creates the adapter, loading the symbol configs and the account fee rate.
func New(ctx context.Context, cfg Config, store *cache.Store, log *logger.Logger, rec *metrics.Recorder) (*Adapter, error) {
	signer, err := signing.NewRequestSigner(cfg.APIKey, cfg.APISecret, cfg.Passphrase)
	if err != nil {
		return nil, err
	}

	orderSigner, err := signing.NewStarkSigner(cfg.OrderSigningKey)
	if err != nil {
		return nil, err
	}

	return newAdapter(ctx, cfg, signer, orderSigner, store, log, rec)
}

func newAdapter(
	ctx context.Context,
	cfg Config,
	signer *signing.RequestSigner,
	orderSigner signing.KeyPairSigner,
	store *cache.Store,
	log *logger.Logger,
	rec *metrics.Recorder,
) (*Adapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = TestnetURL
	}

	if cfg.Confirm.Attempts <= 0 {
		cfg.Confirm = exchange.DefaultConfirmPolicy
	}

	if cfg.OrderExpiry <= 0 {
		cfg.OrderExpiry = DefaultOrderExpiry
	}

	a := &Adapter{
		Base: exchange.NewBase(exchange.NameApex, store, log, rec),
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
		signer:      signer,
		orderSigner: orderSigner,
		now:         time.Now,
	}

	a.Logger().Info("Order signing key loaded", zap.String("public_key", orderSigner.PublicKey()))

	var err error

	a.symbols, err = symbols.Load(ctx, a.fetchSymbols)
	if err != nil {
		return nil, err
	}

	account, err := a.account(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMetadataLoadFail, "failed to load account", err)
	}

	a.takerFee, err = decimal.NewFromString(account.TakerFeeRate)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMetadataLoadFail, "malformed takerFeeRate", err)
	}

	a.Logger().Info("Loaded symbol configs",
		zap.Int("count", a.symbols.Len()),
		zap.String("taker_fee_rate", a.takerFee.String()),
	)

	return a, nil
}

type contract struct {
	Symbol   string `json:"symbol"`
	TickSize string `json:"tickSize"`
	StepSize string `json:"stepSize"`
}

func (a *Adapter) fetchSymbols(ctx context.Context) ([]types.SymbolRule, error) {
	data, err := a.client.public(ctx, pathSymbols, url.Values{})
	if err != nil {
		return nil, err
	}

	var configs struct {
		PerpetualContract []contract `json:"perpetualContract"`
	}

	if err := transport.Decode(data, &configs); err != nil {
		return nil, err
	}

	rules := make([]types.SymbolRule, 0, len(configs.PerpetualContract))

	for _, c := range configs.PerpetualContract {
		tick, tickErr := decimal.NewFromString(c.TickSize)
		step, stepErr := decimal.NewFromString(c.StepSize)

		if tickErr != nil || stepErr != nil {
			a.Logger().Warn("Skipping contract with malformed increments", zap.String("symbol", c.Symbol))

			continue
		}

		rules = append(rules, types.SymbolRule{Symbol: c.Symbol, TickSize: tick, StepSize: step})
	}

	return rules, nil
}

type accountPosition struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Size   string `json:"size"`
}

type accountInfo struct {
	TakerFeeRate string            `json:"takerFeeRate"`
	Positions    []accountPosition `json:"positions"`
}

func (a *Adapter) account(ctx context.Context) (accountInfo, error) {
	data, err := a.client.get(ctx, pathAccount, url.Values{})
	if err != nil {
		return accountInfo{}, err
	}

	var info accountInfo
	if err := transport.Decode(data, &info); err != nil {
		return accountInfo{}, err
	}

	return info, nil
}

// GetTicker returns the streamed price of symbol, falling back to the REST ticker.
func (a *Adapter) GetTicker(ctx context.Context, symbol string) (types.Ticker, error) {
	if cached := a.Store().Price(symbol); cached.IsSome() {
		return types.Ticker{Symbol: symbol, Price: cached.Unwrap()}, nil
	}

	data, err := a.client.public(ctx, pathTicker, url.Values{"symbol": {types.NormalizeSymbol(symbol)}})
	if err != nil {
		a.UpstreamFailed("ticker", err)

		return types.Ticker{}, err
	}

	var list []struct {
		LastPrice string `json:"lastPrice"`
	}

	if err := transport.Decode(data, &list); err != nil {
		return types.Ticker{}, err
	}

	if len(list) == 0 || list[0].LastPrice == "" {
		return types.Ticker{}, errors.Newf(errors.ErrCodePriceUnavailable, "no price for %s", symbol)
	}

	return types.Ticker{Symbol: symbol, Price: list[0].LastPrice}, nil
}

// GetBalance implements exchange.Adapter.
func (a *Adapter) GetBalance(ctx context.Context) (types.Balance, error) {
	data, err := a.client.get(ctx, pathAccountBalance, url.Values{})
	if err != nil {
		a.UpstreamFailed("balance", err)

		return types.Balance{}, err
	}

	var payload struct {
		TotalEquityValue string `json:"totalEquityValue"`
		AvailableBalance string `json:"availableBalance"`
	}

	if err := transport.Decode(data, &payload); err != nil {
		return types.Balance{}, err
	}

	equity, err := decimal.NewFromString(payload.TotalEquityValue)
	if err != nil {
		return types.Balance{}, errors.Wrap(errors.ErrCodeDataShape, "malformed totalEquityValue", err)
	}

	available, err := decimal.NewFromString(payload.AvailableBalance)
	if err != nil {
		return types.Balance{}, errors.Wrap(errors.ErrCodeDataShape, "malformed availableBalance", err)
	}

	return types.Balance{Equity: equity, Available: available}, nil
}

func (a *Adapter) worstPrice(ctx context.Context, symbol string, side types.Side, size decimal.Decimal) (decimal.Decimal, error) {
	data, err := a.client.get(ctx, pathWorstPrice, url.Values{
		"symbol": {symbol},
		"side":   {string(side)},
		"size":   {size.String()},
	})
	if err != nil {
		return decimal.Zero, err
	}

	var payload struct {
		WorstPrice string `json:"worstPrice"`
	}

	if err := transport.Decode(data, &payload); err != nil {
		return decimal.Zero, err
	}

	price, err := decimal.NewFromString(payload.WorstPrice)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, errors.Newf(errors.ErrCodePriceUnavailable, "no worst price for %s", symbol)
	}

	return price, nil
}

// LimitFee is the maximum fee the order may pay: size * price * takerFeeRate
// rounded up to six decimals.
func LimitFee(size, price, takerFeeRate decimal.Decimal) decimal.Decimal {
	return size.Mul(price).Mul(takerFeeRate).RoundCeil(limitFeePlaces)
}

// CreateOrder quotes the worst price for the order, signs it and waits for the
// account stream to report the fill.
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
		worst, err := a.worstPrice(ctx, rule.Symbol, req.Side, req.Size)
		if err != nil {
			a.UpstreamFailed("worst_price", err)

			return types.OrderResult{}, err
		}

		base = optional.Some(worst)
	}

	prepared, err := exchange.PrepareInstantFill(rule, req, base, a.cfg.Padding)
	if err != nil {
		return types.OrderResult{}, err
	}

	price := prepared.Price.Unwrap()
	clientID := uuid.NewString()

	fields := map[string]string{
		"symbol":      prepared.Symbol,
		"side":        string(prepared.Side),
		"type":        "MARKET",
		"size":        prepared.Size.String(),
		"price":       price.String(),
		"limitFee":    LimitFee(prepared.Size, price, a.takerFee).String(),
		"expiration":  strconv.FormatInt(a.now().Add(a.cfg.OrderExpiry).Unix(), 10),
		"timeInForce": "IMMEDIATE_OR_CANCEL",
		"clientId":    clientID,
		"reduceOnly":  strconv.FormatBool(prepared.ReduceOnly),
	}

	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}

	signature, err := a.orderSigner.SignOrder(fields)
	if err != nil {
		return types.OrderResult{}, err
	}

	form.Set("signature", signature)

	data, err := a.client.post(ctx, pathCreateOrder, form, errors.ErrCodeOrderRejected)
	if err != nil {
		a.UpstreamFailed("create_order", err)

		return types.OrderResult{}, err
	}

	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}

	if err := transport.Decode(data, &created); err != nil {
		return types.OrderResult{}, err
	}

	if created.ID == "" {
		return types.OrderResult{}, errors.New(errors.ErrCodeDataShape, "create order response has no id")
	}

	a.Logger().Info("Order submitted",
		zap.String("order_id", created.ID),
		zap.String("client_id", clientID),
		zap.String("symbol", prepared.Symbol),
		zap.String("side", string(prepared.Side)),
		zap.String("size", fields["size"]),
		zap.String("price", fields["price"]),
	)

	fill, err := exchange.AwaitFill(ctx, a.cfg.Confirm, exchange.StoreCheck(a.Store(), prepared.Symbol, created.ID))
	if err != nil {
		return types.OrderResult{}, err
	}

	return exchange.Result(created.ID, fill), nil
}

// CancelOrder implements exchange.Adapter. ApeX cancels by id alone.
func (a *Adapter) CancelOrder(ctx context.Context, req types.CancelRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	if _, err := a.client.post(ctx, pathDeleteOrder, url.Values{"id": {req.OrderID}}, errors.ErrCodeOrderRejected); err != nil {
		a.UpstreamFailed("cancel_order", err)

		return err
	}

	return nil
}

func (a *Adapter) positions(ctx context.Context) ([]types.Position, error) {
	account, err := a.account(ctx)
	if err != nil {
		a.UpstreamFailed("positions", err)

		return nil, err
	}

	out := make([]types.Position, 0, len(account.Positions))

	for _, p := range account.Positions {
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

// CloseAllPositions implements exchange.Adapter. Closing orders use the
// streamed price when known and otherwise the worst-price quote.
func (a *Adapter) CloseAllPositions(ctx context.Context, symbol optional.Option[string]) (types.CloseReport, error) {
	hint := func(_ context.Context, symbol string) optional.Option[decimal.Decimal] {
		return exchange.DiscoverPrice(ctx, a.Store(), symbol, nil)
	}

	report, err := exchange.CloseAllPositions(ctx, a.positions, symbol, hint, a.CreateOrder, a.Logger())

	for _, closed := range report.Closed {
		a.Metrics().RecordPositionClosed(string(a.Name()), string(closed.Position.Side))
	}

	return report, err
}

// GetYesterdayPnL implements exchange.PnLReporter.
func (a *Adapter) GetYesterdayPnL(ctx context.Context) (json.RawMessage, error) {
	data, err := a.client.get(ctx, pathYesterdayPnL, url.Values{})
	if err != nil {
		a.UpstreamFailed("yesterday_pnl", err)

		return nil, err
	}

	return data, nil
}

// StartFeeds implements exchange.Adapter.
func (a *Adapter) StartFeeds(ctx context.Context) error {
	if a.cfg.PublicStreamURL != "" && len(a.cfg.Symbols) > 0 {
		a.RunFeeds(ctx, a.cfg.Stream, newTickerHandler(a.cfg.PublicStreamURL, a.cfg.Symbols, a.Base))
	}

	if a.cfg.PrivateStreamURL != "" {
		a.RunFeeds(ctx, a.cfg.Stream, newAccountHandler(a.cfg.PrivateStreamURL, a.signer, a.Base))
	}

	return nil
}

// Close implements exchange.Adapter.
func (a *Adapter) Close() error {
	a.StopFeeds()

	return nil
}

var (
	_ exchange.Adapter     = (*Adapter)(nil)
	_ exchange.PnLReporter = (*Adapter)(nil)
	_ stream.Handler       = (*tickerHandler)(nil)
	_ stream.Handler       = (*accountHandler)(nil)
)
