package api

import (
	"encoding/json"
	"net/http"

	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/types"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	resultOk  = "Ok"
	resultErr = "Err"
)

type errorResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

type tickerResponse struct {
	Result string `json:"result"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type balanceResponse struct {
	Result    string          `json:"result"`
	Equity    decimal.Decimal `json:"equity"`
	Available decimal.Decimal `json:"balance"`
}

type okResponse struct {
	Result string `json:"result"`
}

// healthResponse lists the enabled exchanges with their capabilities, and
// every exchange the build supports.
type healthResponse struct {
	Result    string          `json:"result"`
	Version   string          `json:"version"`
	Exchanges []exchange.Info `json:"exchanges"`
	Supported []string        `json:"supported"`
}

type pnlResponse struct {
	Result string          `json:"result"`
	Data   json.RawMessage `json:"data"`
}

type filledOrdersResponse struct {
	Result string             `json:"result"`
	Symbol string             `json:"symbol"`
	Orders []types.FillRecord `json:"orders"`
}

// orderResponse flattens an OrderResult. The fill fields are only present when
// the state is FILLED.
type orderResponse struct {
	OrderID string           `json:"order_id"`
	State   string           `json:"state"`
	Price   *decimal.Decimal `json:"price,omitempty"`
	Size    *decimal.Decimal `json:"size,omitempty"`
	Fee     *decimal.Decimal `json:"fee,omitempty"`
}

type createOrderResponse struct {
	Result string `json:"result"`
	orderResponse
}

type closedPosition struct {
	Position types.Position `json:"position"`
	Result   orderResponse  `json:"result"`
}

type closeAllResponse struct {
	Result    string           `json:"result"`
	Message   string           `json:"message,omitempty"`
	Closed    []closedPosition `json:"closed"`
	Remaining []types.Position `json:"remaining"`
}

func newOrderResponse(r types.OrderResult) orderResponse {
	resp := orderResponse{OrderID: r.OrderID, State: string(r.State)}

	if r.Fill.IsSome() {
		fill := r.Fill.Unwrap()
		resp.Price = &fill.Price
		resp.Size = &fill.Size
		resp.Fee = &fill.Fee
	}

	return resp
}

func newCloseAllResponse(report types.CloseReport) closeAllResponse {
	resp := closeAllResponse{
		Result:    resultOk,
		Closed:    make([]closedPosition, 0, len(report.Closed)),
		Remaining: report.Remaining,
	}

	if resp.Remaining == nil {
		resp.Remaining = []types.Position{}
	}

	for _, c := range report.Closed {
		resp.Closed = append(resp.Closed, closedPosition{Position: c.Position, Result: newOrderResponse(c.Result)})
	}

	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Result: resultErr, Message: message})
}

// writeError maps the error code to a status. Exchange failures, rejections
// included, are logged as warnings; other server side failures as errors.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	switch {
	case errors.IsUpstream(err):
		s.log.Warn("Exchange request failed", zap.Int("status", status), zap.Error(err))
	case status >= http.StatusInternalServerError:
		s.log.Error("Request failed", zap.Int("status", status), zap.Error(err))
	}

	writeMessage(w, status, describe(err))
}

func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidParameter,
		errors.ErrCodeMissingParameter,
		errors.ErrCodeUnsupportedSymbol,
		errors.ErrCodeUnsupportedDex,
		errors.ErrCodeOrderRejected:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodePriceUnavailable:
		return http.StatusServiceUnavailable
	case errors.ErrCodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeUpstream, errors.ErrCodeDataShape:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// describe joins the messages of the error chain without the code prefixes.
func describe(err error) string {
	var e *errors.Error
	if errors.As(err, &e) && e.Cause != nil {
		return e.Message + ": " + describe(e.Cause)
	}

	return errors.Message(err)
}
