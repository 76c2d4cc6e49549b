package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/moznion/go-optional"
	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/metrics"
	"github.com/shigeo-nakamura/dex-router/internal/types"
	"github.com/shigeo-nakamura/dex-router/internal/version"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type createOrderRequest struct {
	Symbol string           `json:"symbol"`
	Size   *decimal.Decimal `json:"size"`
	Side   string           `json:"side"`
	Price  *decimal.Decimal `json:"price"`
}

type cancelOrderRequest struct {
	OrderID string `json:"order_id"`
	Symbol  string `json:"symbol"`
}

type closeAllRequest struct {
	Symbol string `json:"symbol"`
}

// detach keeps exchange calls running when the caller goes away. An order
// that reached the exchange must still be confirmed.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// decodeBody decodes a JSON body. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && err != io.EOF {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid JSON body", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	names := s.router.Names()
	exchanges := make([]exchange.Info, 0, len(names))

	for _, name := range names {
		info, err := exchange.GetExchangeInfo(string(name))
		if err != nil {
			continue
		}

		exchanges = append(exchanges, info)
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Result:    resultOk,
		Version:   version.GetVersion(),
		Exchanges: exchanges,
		Supported: exchange.GetSupportedExchanges(),
	})
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeMessage(w, http.StatusBadRequest, "Missing required parameter: symbol.")
		return
	}

	ticker, err := adapterFrom(r).GetTicker(detach(r), symbol)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tickerResponse{Result: resultOk, Symbol: ticker.Symbol, Price: ticker.Price})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := adapterFrom(r).GetBalance(detach(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{Result: resultOk, Equity: balance.Equity, Available: balance.Available})
}

func (s *Server) handleYesterdayPnL(w http.ResponseWriter, r *http.Request) {
	adapter := adapterFrom(r)

	reporter, ok := adapter.(exchange.PnLReporter)
	if !ok {
		s.writeError(w, errors.Newf(errors.ErrCodeInvalidParameter, "yesterday pnl is not supported by %s", adapter.Name()))
		return
	}

	data, err := reporter.GetYesterdayPnL(detach(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pnlResponse{Result: resultOk, Data: data})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var body createOrderRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}

	if body.Symbol == "" || body.Size == nil || body.Side == "" {
		writeMessage(w, http.StatusBadRequest, "Missing required parameters: symbol, size, and/or side.")
		return
	}

	side, err := types.ParseSide(body.Side)
	if err != nil {
		s.writeError(w, err)
		return
	}

	req := types.OrderRequest{
		Symbol: body.Symbol,
		Size:   *body.Size,
		Side:   side,
		Price:  optional.None[decimal.Decimal](),
	}
	if body.Price != nil {
		req.Price = optional.Some(*body.Price)
	}

	if err := req.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	adapter := adapterFrom(r)
	name := string(adapter.Name())
	timer := metrics.NewTimer()

	result, err := adapter.CreateOrder(detach(r), req)
	s.metrics.RecordOrderLatency(name, timer.Elapsed())

	if err != nil {
		state := "ERROR"
		if errors.HasCode(err, errors.ErrCodeOrderRejected) {
			state = string(types.OrderStateRejected)
		}

		s.metrics.RecordOrder(name, string(side), state)
		s.writeError(w, err)

		return
	}

	s.metrics.RecordOrder(name, string(side), string(result.State))
	s.log.Info("Order placed",
		zap.String("exchange", name),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(side)),
		zap.String("order_id", result.OrderID),
		zap.String("state", string(result.State)))

	writeJSON(w, http.StatusOK, createOrderResponse{Result: resultOk, orderResponse: newOrderResponse(result)})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var body cancelOrderRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}

	req := types.CancelRequest{OrderID: body.OrderID, Symbol: optional.None[string]()}
	if body.Symbol != "" {
		req.Symbol = optional.Some(body.Symbol)
	}

	if err := req.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	if err := adapterFrom(r).CancelOrder(detach(r), req); err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{Result: resultOk})
}

func (s *Server) handleCloseAllPositions(w http.ResponseWriter, r *http.Request) {
	var body closeAllRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}

	symbol := optional.None[string]()
	if strings.TrimSpace(body.Symbol) != "" {
		symbol = optional.Some(strings.TrimSpace(body.Symbol))
	}

	report, err := adapterFrom(r).CloseAllPositions(detach(r), symbol)
	resp := newCloseAllResponse(report)

	if err != nil {
		status := statusFor(err)
		s.log.Error("Close all positions aborted",
			zap.String("exchange", string(adapterFrom(r).Name())),
			zap.Int("closed", len(report.Closed)),
			zap.Int("remaining", len(report.Remaining)),
			zap.Error(err))

		resp.Result = resultErr
		resp.Message = describe(err)
		writeJSON(w, status, resp)

		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFilledOrders(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeMessage(w, http.StatusBadRequest, "Missing required parameter: symbol.")
		return
	}

	orders := adapterFrom(r).GetFilledOrders(symbol)
	if orders == nil {
		orders = []types.FillRecord{}
	}

	writeJSON(w, http.StatusOK, filledOrdersResponse{Result: resultOk, Symbol: symbol, Orders: orders})
}

func (s *Server) handleClearFilledOrder(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	symbol, orderID := query.Get("symbol"), query.Get("order_id")

	if symbol == "" || orderID == "" {
		writeMessage(w, http.StatusBadRequest, "Missing required parameters: symbol and/or order_id.")
		return
	}

	adapterFrom(r).ClearFilledOrder(symbol, orderID)
	writeJSON(w, http.StatusOK, okResponse{Result: resultOk})
}
