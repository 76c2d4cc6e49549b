package binancefutures

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/stream"
	"github.com/shigeo-nakamura/dex-router/internal/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	markPriceEvent   = "markPriceUpdate"
	orderUpdateEvent = "ORDER_TRADE_UPDATE"
	tradeExecution   = "TRADE"
)

type subscribeFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// markPriceHandler feeds the price cache from <symbol>@markPrice.
type markPriceHandler struct {
	url     string
	symbols []string
	base    *exchange.Base
}

func newMarkPriceHandler(url string, symbols []string, base *exchange.Base) *markPriceHandler {
	return &markPriceHandler{url: url, symbols: symbols, base: base}
}

func (h *markPriceHandler) ID() string  { return "binance-mark-price" }
func (h *markPriceHandler) URL() string { return h.url }

func (h *markPriceHandler) OnConnect(_ context.Context, w stream.Writer) error {
	params := make([]string, 0, len(h.symbols))
	for _, symbol := range h.symbols {
		params = append(params, strings.ToLower(types.NormalizeSymbol(symbol))+"@markPrice")
	}

	return w.WriteJSON(subscribeFrame{Method: "SUBSCRIBE", Params: params, ID: 1})
}

func (h *markPriceHandler) OnMessage(msg []byte) {
	// every key is declared: encoding/json falls back to case-insensitive
	// matching, and Binance uses keys that differ only in case.
	var event struct {
		Event           string `json:"e"`
		EventTime       int64  `json:"E"`
		Symbol          string `json:"s"`
		MarkPrice       string `json:"p"`
		EstimatedSettle string `json:"P"`
		IndexPrice      string `json:"i"`
		FundingRate     string `json:"r"`
		NextFundingTime int64  `json:"T"`
	}

	if err := json.Unmarshal(msg, &event); err != nil {
		h.base.Logger().Debug("Ignoring undecodable mark price frame", zap.Error(err))

		return
	}

	if event.Event != markPriceEvent {
		return
	}

	h.base.IngestTicker(event.Symbol, event.MarkPrice)
}

// userHandler records fills from the user data stream. The listen key is
// part of the URL, so a replaced key takes effect on the next reconnect.
// Each TRADE execution carries only its own commission, so fees are summed
// per order until the order reaches a final status.
type userHandler struct {
	url  string
	base *exchange.Base

	mu        sync.RWMutex
	listenKey string

	feeMu sync.Mutex
	fees  map[int64]decimal.Decimal
}

func newUserHandler(url, listenKey string, base *exchange.Base) *userHandler {
	return &userHandler{url: url, listenKey: listenKey, base: base, fees: make(map[int64]decimal.Decimal)}
}

func (h *userHandler) ID() string { return "binance-user" }

func (h *userHandler) URL() string {
	return strings.TrimSuffix(h.url, "/") + "/" + h.ListenKey()
}

func (h *userHandler) ListenKey() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.listenKey
}

func (h *userHandler) SetListenKey(listenKey string) {
	h.mu.Lock()
	h.listenKey = listenKey
	h.mu.Unlock()
}

func (h *userHandler) OnConnect(context.Context, stream.Writer) error {
	return nil
}

type orderUpdate struct {
	Symbol          string                  `json:"s"`
	Side            string                  `json:"S"`
	OrderID         int64                   `json:"i"`
	ExecutionType   string                  `json:"x"`
	Status          futures.OrderStatusType `json:"X"`
	AccumulatedQty  string                  `json:"z"`
	AveragePrice    string                  `json:"ap"`
	CommissionAsset string                  `json:"N"`
	Commission      string                  `json:"n"`
	TransactionTime int64                   `json:"T"`
	TradeID         int64                   `json:"t"`
}

func (o orderUpdate) record(fee decimal.Decimal) (types.FillRecord, bool) {
	size, err := decimal.NewFromString(o.AccumulatedQty)
	if err != nil || !size.IsPositive() {
		return types.FillRecord{}, false
	}

	price, err := decimal.NewFromString(o.AveragePrice)
	if err != nil || !price.IsPositive() {
		return types.FillRecord{}, false
	}

	timestamp := time.Now()
	if o.TransactionTime > 0 {
		timestamp = time.UnixMilli(o.TransactionTime)
	}

	return types.FillRecord{
		OrderID:     strconv.FormatInt(o.OrderID, 10),
		Timestamp:   timestamp,
		FilledSize:  size,
		FilledValue: size.Mul(price),
		FilledFee:   fee,
	}, true
}

func (h *userHandler) OnMessage(msg []byte) {
	var event struct {
		Event     string      `json:"e"`
		EventTime int64       `json:"E"`
		Time      int64       `json:"T"`
		Order     orderUpdate `json:"o"`
	}

	if err := json.Unmarshal(msg, &event); err != nil {
		h.base.Logger().Debug("Ignoring undecodable user data frame", zap.Error(err))

		return
	}

	if event.Event != orderUpdateEvent {
		return
	}

	order := event.Order

	if order.ExecutionType == tradeExecution {
		h.addFee(order)
	}

	if order.Status != futures.OrderStatusTypeFilled && !terminalStatuses[order.Status] {
		return
	}

	record, ok := order.record(h.takeFee(order.OrderID))
	if !ok {
		if order.Status == futures.OrderStatusTypeFilled {
			h.base.Logger().Warn("Dropping malformed fill event", zap.Int64("order_id", order.OrderID))
		}

		return
	}

	h.base.IngestFill(order.Symbol, record)
}

func (h *userHandler) addFee(order orderUpdate) {
	if order.Commission == "" {
		return
	}

	commission, err := decimal.NewFromString(order.Commission)
	if err != nil {
		h.base.Logger().Warn("Ignoring malformed commission",
			zap.Int64("order_id", order.OrderID),
			zap.String("commission", order.Commission),
		)

		return
	}

	h.feeMu.Lock()
	h.fees[order.OrderID] = h.fees[order.OrderID].Add(commission)
	h.feeMu.Unlock()
}

// takeFee returns the summed commission of an order and forgets it.
func (h *userHandler) takeFee(orderID int64) decimal.Decimal {
	h.feeMu.Lock()
	defer h.feeMu.Unlock()

	fee := h.fees[orderID]
	delete(h.fees, orderID)

	return fee
}

var (
	_ stream.Handler = (*markPriceHandler)(nil)
	_ stream.Handler = (*userHandler)(nil)
)
