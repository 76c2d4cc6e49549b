package apex

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/signing"
	"github.com/shigeo-nakamura/dex-router/internal/stream"
	"github.com/shigeo-nakamura/dex-router/internal/types"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	tickerTopicPrefix = "instrumentInfo.H."
	accountTopic      = "ws_zk_accounts_v3"
	loginPath         = "/ws/accounts"
	orderStatusFilled = "FILLED"
)

// closedStatuses end an order that may still carry a partial fill, as an IOC
// order cancelled after matching part of its size does.
var closedStatuses = map[string]bool{
	"CANCELED": true,
	"EXPIRED":  true,
}

type opFrame struct {
	Op   string `json:"op"`
	Args []any  `json:"args"`
}

type loginRequest struct {
	Type        string   `json:"type"`
	Topics      []string `json:"topics"`
	HTTPMethod  string   `json:"httpMethod"`
	RequestPath string   `json:"requestPath"`
	APIKey      string   `json:"apiKey"`
	Passphrase  string   `json:"passphrase"`
	Timestamp   int64    `json:"timestamp"`
	Signature   string   `json:"signature"`
}

// tickerHandler feeds the price cache from instrumentInfo frames.
type tickerHandler struct {
	url     string
	symbols []string
	base    *exchange.Base
}

func newTickerHandler(url string, symbols []string, base *exchange.Base) *tickerHandler {
	return &tickerHandler{url: url, symbols: symbols, base: base}
}

func (h *tickerHandler) ID() string  { return "apex-ticker" }
func (h *tickerHandler) URL() string { return h.url }

func (h *tickerHandler) OnConnect(_ context.Context, w stream.Writer) error {
	args := make([]any, 0, len(h.symbols))
	for _, symbol := range h.symbols {
		args = append(args, tickerTopicPrefix+types.NormalizeSymbol(symbol))
	}

	return w.WriteJSON(opFrame{Op: "subscribe", Args: args})
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
	return pingFrame()
}

// accountHandler logs in on the private feed and records filled orders.
type accountHandler struct {
	url    string
	signer *signing.RequestSigner
	base   *exchange.Base
}

func newAccountHandler(url string, signer *signing.RequestSigner, base *exchange.Base) *accountHandler {
	return &accountHandler{url: url, signer: signer, base: base}
}

func (h *accountHandler) ID() string  { return "apex-account" }
func (h *accountHandler) URL() string { return h.url }

func (h *accountHandler) OnConnect(_ context.Context, w stream.Writer) error {
	sig := h.signer.Sign(http.MethodGet, loginPath, "")

	login, err := json.Marshal(loginRequest{
		Type:        "login",
		Topics:      []string{accountTopic},
		HTTPMethod:  http.MethodGet,
		RequestPath: loginPath,
		APIKey:      h.signer.APIKey(),
		Passphrase:  h.signer.Passphrase(),
		Timestamp:   sig.Timestamp,
		Signature:   sig.Value,
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeUnknown, "failed to encode login request", err)
	}

	if err := w.WriteJSON(opFrame{Op: "login", Args: []any{string(login)}}); err != nil {
		return err
	}

	return w.WriteJSON(opFrame{Op: "subscribe", Args: []any{accountTopic}})
}

type streamOrder struct {
	ID                  string `json:"id"`
	Symbol              string `json:"symbol"`
	Status              string `json:"status"`
	UpdatedAt           int64  `json:"updatedAt"`
	CumSuccessFillSize  string `json:"cumSuccessFillSize"`
	CumSuccessFillValue string `json:"cumSuccessFillValue"`
	CumSuccessFillFee   string `json:"cumSuccessFillFee"`
}

func (o streamOrder) record() (types.FillRecord, error) {
	size, err := decimal.NewFromString(o.CumSuccessFillSize)
	if err != nil {
		return types.FillRecord{}, errors.Wrap(errors.ErrCodeDataShape, "malformed cumSuccessFillSize", err)
	}

	value, err := decimal.NewFromString(o.CumSuccessFillValue)
	if err != nil {
		return types.FillRecord{}, errors.Wrap(errors.ErrCodeDataShape, "malformed cumSuccessFillValue", err)
	}

	fee := decimal.Zero
	if o.CumSuccessFillFee != "" {
		if fee, err = decimal.NewFromString(o.CumSuccessFillFee); err != nil {
			return types.FillRecord{}, errors.Wrap(errors.ErrCodeDataShape, "malformed cumSuccessFillFee", err)
		}
	}

	timestamp := time.Now()
	if o.UpdatedAt > 0 {
		timestamp = time.UnixMilli(o.UpdatedAt)
	}

	return types.FillRecord{
		OrderID:     o.ID,
		Timestamp:   timestamp,
		FilledSize:  size,
		FilledValue: value,
		FilledFee:   fee,
	}, nil
}

func (h *accountHandler) OnMessage(msg []byte) {
	var frame struct {
		Topic    string `json:"topic"`
		Contents struct {
			Orders []streamOrder `json:"orders"`
		} `json:"contents"`
	}

	if err := json.Unmarshal(msg, &frame); err != nil {
		h.base.Logger().Debug("Ignoring undecodable account frame", zap.Error(err))

		return
	}

	if frame.Topic != accountTopic {
		return
	}

	for _, order := range frame.Contents.Orders {
		if order.Status != orderStatusFilled && !closedStatuses[order.Status] {
			continue
		}

		record, err := order.record()
		if err != nil {
			h.base.Logger().Warn("Dropping malformed fill event", zap.String("order_id", order.ID), zap.Error(err))

			continue
		}

		if order.Status != orderStatusFilled && !record.FilledSize.IsPositive() {
			continue
		}

		h.base.IngestFill(order.Symbol, record)
	}
}

func (h *accountHandler) PingMessage() any {
	return pingFrame()
}

func pingFrame() opFrame {
	return opFrame{Op: "ping", Args: []any{strconv.FormatInt(time.Now().UnixMilli(), 10)}}
}
