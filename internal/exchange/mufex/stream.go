package mufex

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/signing"
	"github.com/shigeo-nakamura/dex-router/internal/stream"
	"github.com/shigeo-nakamura/dex-router/internal/types"
	"go.uber.org/zap"
)

const (
	tickerTopicPrefix = "tickers."
	orderTopic        = "order"
	authExpiry        = 10 * time.Second
)

type subscribeFrame struct {
	Op   string `json:"op"`
	Args []any  `json:"args"`
}

type pingFrame struct {
	Op string `json:"op"`
}

// tickerHandler feeds the price cache from the public tickers topic.
type tickerHandler struct {
	url     string
	symbols []string
	base    *exchange.Base
}

func newTickerHandler(url string, symbols []string, base *exchange.Base) *tickerHandler {
	return &tickerHandler{url: url, symbols: symbols, base: base}
}

func (h *tickerHandler) ID() string  { return "mufex-ticker" }
func (h *tickerHandler) URL() string { return h.url }

func (h *tickerHandler) OnConnect(_ context.Context, w stream.Writer) error {
	args := make([]any, 0, len(h.symbols))
	for _, symbol := range h.symbols {
		args = append(args, tickerTopicPrefix+types.NormalizeSymbol(symbol))
	}

	return w.WriteJSON(subscribeFrame{Op: "subscribe", Args: args})
}

func (h *tickerHandler) OnMessage(msg []byte) {
	var frame struct {
		Topic string `json:"topic"`
		Data  struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"data"`
	}

	if err := json.Unmarshal(msg, &frame); err != nil {
		h.base.Logger().Debug("Ignoring undecodable ticker frame", zap.Error(err))

		return
	}

	if !strings.HasPrefix(frame.Topic, tickerTopicPrefix) {
		return
	}

	h.base.IngestTicker(frame.Data.Symbol, frame.Data.LastPrice)
}

func (h *tickerHandler) PingMessage() any {
	return pingFrame{Op: "ping"}
}

// orderHandler authenticates on the private feed and records fills.
type orderHandler struct {
	url    string
	signer *signing.HMACSigner
	base   *exchange.Base
}

func newOrderHandler(url string, signer *signing.HMACSigner, base *exchange.Base) *orderHandler {
	return &orderHandler{url: url, signer: signer, base: base}
}

func (h *orderHandler) ID() string  { return "mufex-order" }
func (h *orderHandler) URL() string { return h.url }

func (h *orderHandler) OnConnect(_ context.Context, w stream.Writer) error {
	expires := h.signer.Now().Add(authExpiry).UnixMilli()
	signature := h.signer.SignMessage("GET/realtime" + strconv.FormatInt(expires, 10))

	if err := w.WriteJSON(subscribeFrame{Op: "auth", Args: []any{h.signer.APIKey(), expires, signature}}); err != nil {
		return err
	}

	return w.WriteJSON(subscribeFrame{Op: "subscribe", Args: []any{orderTopic}})
}

func (h *orderHandler) OnMessage(msg []byte) {
	var frame struct {
		Topic string          `json:"topic"`
		Data  []activityOrder `json:"data"`
	}

	if err := json.Unmarshal(msg, &frame); err != nil {
		h.base.Logger().Debug("Ignoring undecodable order frame", zap.Error(err))

		return
	}

	if frame.Topic != orderTopic {
		return
	}

	for _, order := range frame.Data {
		if order.OrderStatus != orderStatusFilled {
			continue
		}

		record, err := order.record()
		if err != nil {
			h.base.Logger().Warn("Dropping malformed fill event", zap.String("order_id", order.OrderID), zap.Error(err))

			continue
		}

		h.base.IngestFill(order.Symbol, record)
	}
}

func (h *orderHandler) PingMessage() any {
	return pingFrame{Op: "ping"}
}
