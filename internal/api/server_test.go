package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/moznion/go-optional"
	"github.com/shigeo-nakamura/dex-router/internal/config"
	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/gateway"
	"github.com/shigeo-nakamura/dex-router/internal/logger"
	"github.com/shigeo-nakamura/dex-router/internal/metrics"
	"github.com/shigeo-nakamura/dex-router/internal/types"
	"github.com/shigeo-nakamura/dex-router/mocks"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testAPIKey = "secret-key"

// pnlAdapter is an adapter that also reports yesterday's P&L.
type pnlAdapter struct {
	*mocks.MockAdapter
	reporter *mocks.MockPnLReporter
}

func (a pnlAdapter) GetYesterdayPnL(ctx context.Context) (json.RawMessage, error) {
	return a.reporter.GetYesterdayPnL(ctx)
}

type ServerTestSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	mufex    *mocks.MockAdapter
	apex     *mocks.MockAdapter
	reporter *mocks.MockPnLReporter
	recorder *metrics.Recorder
	logs     *observer.ObservedLogs
	server   *httptest.Server
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (suite *ServerTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.mufex = mocks.NewMockAdapter(suite.ctrl)
	suite.apex = mocks.NewMockAdapter(suite.ctrl)
	suite.reporter = mocks.NewMockPnLReporter(suite.ctrl)
	suite.recorder = metrics.NewRecorder()

	suite.mufex.EXPECT().Name().Return(exchange.NameMufex).AnyTimes()
	suite.apex.EXPECT().Name().Return(exchange.NameApex).AnyTimes()

	gw := gateway.NewWithAdapters(config.CacheConfig{}, logger.NewNopLogger(), suite.recorder,
		suite.mufex, pnlAdapter{MockAdapter: suite.apex, reporter: suite.reporter})

	core, logs := observer.New(zapcore.DebugLevel)
	suite.logs = logs

	s := NewServer(Config{APIKey: testAPIKey}, gw, &logger.Logger{Logger: zap.New(core)}, suite.recorder)
	suite.server = httptest.NewServer(s.Handler())
}

func (suite *ServerTestSuite) TearDownTest() {
	suite.server.Close()
	suite.ctrl.Finish()
}

func (suite *ServerTestSuite) do(method, path, body string, authorized bool) (int, map[string]any) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, suite.server.URL+path, reader)
	suite.Require().NoError(err)

	if authorized {
		req.Header.Set("Authorization", testAPIKey)
	}

	resp, err := http.DefaultClient.Do(req)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	suite.Require().NoError(err)

	var decoded map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		suite.Require().NoError(json.Unmarshal(raw, &decoded))
	}

	return resp.StatusCode, decoded
}

func (suite *ServerTestSuite) TestHealthNeedsNoKey() {
	status, body := suite.do(http.MethodGet, "/health", "", false)
	suite.Equal(http.StatusOK, status)
	suite.Equal("main", body["version"])
	suite.Equal([]any{"apex", "binance_futures", "mufex"}, body["supported"])

	exchanges, ok := body["exchanges"].([]any)
	suite.Require().True(ok)
	suite.Require().Len(exchanges, 2)

	apex := exchanges[0].(map[string]any)
	suite.Equal("apex", apex["name"])
	suite.Equal("ApeX Pro", apex["displayName"])
	suite.Equal(true, apex["asyncFills"])
	suite.Equal(true, apex["yesterdayPnl"])

	mufex := exchanges[1].(map[string]any)
	suite.Equal("mufex", mufex["name"])
	suite.Equal(false, mufex["asyncFills"])
}

func (suite *ServerTestSuite) TestAuthorization() {
	status, body := suite.do(http.MethodGet, "/ticker?dex=mufex&symbol=BTC-USDC", "", false)
	suite.Equal(http.StatusUnauthorized, status)
	suite.Equal("API key missing", body["message"])

	req, _ := http.NewRequest(http.MethodGet, suite.server.URL+"/ticker?dex=mufex&symbol=BTC-USDC", nil)
	req.Header.Set("Authorization", "wrong")
	resp, err := http.DefaultClient.Do(req)
	suite.Require().NoError(err)
	resp.Body.Close()
	suite.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (suite *ServerTestSuite) TestDexRouting() {
	tests := []struct {
		name    string
		query   string
		status  int
		message string
	}{
		{name: "missing", query: "", status: http.StatusBadRequest, message: "DEX missing"},
		{name: "unsupported", query: "dex=dydx", status: http.StatusBadRequest, message: "Unsupported DEX"},
		{name: "not enabled", query: "dex=binance_futures", status: http.StatusNotFound, message: "dex binance_futures is not enabled"},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			status, body := suite.do(http.MethodGet, "/balance?"+tc.query, "", true)
			suite.Equal(tc.status, status)
			suite.Equal(tc.message, body["message"])
		})
	}
}

func (suite *ServerTestSuite) TestTicker() {
	suite.mufex.EXPECT().GetTicker(gomock.Any(), "BTC-USDC").Return(types.Ticker{Symbol: "BTC-USDC", Price: "50000"}, nil)

	status, body := suite.do(http.MethodGet, "/ticker?dex=mufex&symbol=BTC-USDC", "", true)
	suite.Equal(http.StatusOK, status)
	suite.Equal("Ok", body["result"])
	suite.Equal("50000", body["price"])

	status, body = suite.do(http.MethodGet, "/ticker?dex=mufex", "", true)
	suite.Equal(http.StatusBadRequest, status)
	suite.Equal("Missing required parameter: symbol.", body["message"])
}

func (suite *ServerTestSuite) TestTickerUnavailable() {
	suite.mufex.EXPECT().GetTicker(gomock.Any(), "ETH-USDC").
		Return(types.Ticker{}, errors.New(errors.ErrCodePriceUnavailable, "no price for ETH-USDC"))

	status, body := suite.do(http.MethodGet, "/ticker?dex=mufex&symbol=ETH-USDC", "", true)
	suite.Equal(http.StatusServiceUnavailable, status)
	suite.Equal("Err", body["result"])
	suite.Equal("no price for ETH-USDC", body["message"])
}

func (suite *ServerTestSuite) TestBalance() {
	suite.apex.EXPECT().GetBalance(gomock.Any()).Return(types.Balance{
		Equity:    decimal.RequireFromString("1200.5"),
		Available: decimal.RequireFromString("800"),
	}, nil)

	status, body := suite.do(http.MethodGet, "/balance?dex=apex", "", true)
	suite.Equal(http.StatusOK, status)
	suite.Equal("1200.5", body["equity"])
	suite.Equal("800", body["balance"])
}

func (suite *ServerTestSuite) TestCreateOrderFilled() {
	suite.mufex.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
			// the exchange call must outlive the HTTP request
			suite.Nil(ctx.Done())
			suite.Equal("BTC-USDC", req.Symbol)
			suite.Equal(types.SideBuy, req.Side)
			suite.True(req.Size.Equal(decimal.RequireFromString("0.0125")))
			suite.True(req.Price.IsNone())

			return types.Filled("42", types.FillSummary{
				Price: decimal.RequireFromString("50002.5"),
				Size:  decimal.RequireFromString("0.012"),
				Fee:   decimal.RequireFromString("0.3"),
			}), nil
		})

	status, body := suite.do(http.MethodPost, "/create-order?dex=mufex", `{"symbol":"BTC-USDC","size":0.0125,"side":"buy"}`, true)
	suite.Equal(http.StatusOK, status)
	suite.Equal("42", body["order_id"])
	suite.Equal("FILLED", body["state"])
	suite.Equal("50002.5", body["price"])
	suite.Equal("0.012", body["size"])

	status, metricsBody := suite.doRaw("/metrics")
	suite.Equal(http.StatusOK, status)
	suite.Contains(metricsBody, `dexrouter_orders_total{exchange="mufex",side="BUY",state="FILLED"} 1`)
}

func (suite *ServerTestSuite) doRaw(path string) (int, string) {
	resp, err := http.Get(suite.server.URL + path)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	suite.Require().NoError(err)

	return resp.StatusCode, string(raw)
}

func (suite *ServerTestSuite) TestCreateOrderWithPriceUnknown() {
	suite.apex.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req types.OrderRequest) (types.OrderResult, error) {
			suite.Require().True(req.Price.IsSome())
			suite.True(req.Price.Unwrap().Equal(decimal.RequireFromString("40000")))

			return types.Pending("7"), nil
		})

	status, body := suite.do(http.MethodPost, "/create-order?dex=apex", `{"symbol":"BTC-USDC","size":"1","side":"SELL","price":"40000"}`, true)
	suite.Equal(http.StatusOK, status)
	suite.Equal("UNKNOWN", body["state"])
	suite.NotContains(body, "price")
}

func (suite *ServerTestSuite) TestCreateOrderValidation() {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing size", body: `{"symbol":"BTC-USDC","side":"BUY"}`},
		{name: "bad side", body: `{"symbol":"BTC-USDC","size":"1","side":"LONG"}`},
		{name: "zero size", body: `{"symbol":"BTC-USDC","size":"0","side":"BUY"}`},
		{name: "negative price", body: `{"symbol":"BTC-USDC","size":"1","side":"BUY","price":"-1"}`},
		{name: "not json", body: `symbol=BTC`},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			status, body := suite.do(http.MethodPost, "/create-order?dex=mufex", tc.body, true)
			suite.Equal(http.StatusBadRequest, status)
			suite.Equal("Err", body["result"])
		})
	}
}

func (suite *ServerTestSuite) TestCreateOrderErrors() {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "rejected", err: errors.New(errors.ErrCodeOrderRejected, "insufficient margin"), status: http.StatusBadRequest},
		{name: "unsupported symbol", err: errors.New(errors.ErrCodeUnsupportedSymbol, "no trading rule"), status: http.StatusBadRequest},
		{name: "timeout", err: errors.New(errors.ErrCodeUpstreamTimeout, "timed out"), status: http.StatusGatewayTimeout},
		{name: "upstream", err: errors.Wrap(errors.ErrCodeUpstream, "failed to place order", io.ErrUnexpectedEOF), status: http.StatusBadGateway},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.mufex.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).Return(types.OrderResult{}, tc.err)

			status, body := suite.do(http.MethodPost, "/create-order?dex=mufex", `{"symbol":"BTC-USDC","size":"1","side":"BUY"}`, true)
			suite.Equal(tc.status, status)
			suite.Equal("Err", body["result"])
		})
	}

	_, metricsBody := suite.doRaw("/metrics")
	suite.Contains(metricsBody, `dexrouter_orders_total{exchange="mufex",side="BUY",state="REJECTED"} 1`)
}

func (suite *ServerTestSuite) TestUpstreamMessageKeepsCause() {
	suite.mufex.EXPECT().GetBalance(gomock.Any()).
		Return(types.Balance{}, errors.Wrap(errors.ErrCodeUpstream, "failed to fetch balance", io.ErrUnexpectedEOF))

	status, body := suite.do(http.MethodGet, "/balance?dex=mufex", "", true)
	suite.Equal(http.StatusBadGateway, status)
	suite.Equal("failed to fetch balance: unexpected EOF", body["message"])
}

func (suite *ServerTestSuite) TestExchangeFailuresLogAsWarnings() {
	suite.mufex.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).
		Return(types.OrderResult{}, errors.New(errors.ErrCodeOrderRejected, "insufficient margin"))

	status, _ := suite.do(http.MethodPost, "/create-order?dex=mufex", `{"symbol":"BTC-USDC","size":"1","side":"BUY"}`, true)
	suite.Equal(http.StatusBadRequest, status)

	warnings := suite.logs.FilterMessage("Exchange request failed").All()
	suite.Require().Len(warnings, 1)
	suite.Equal(zapcore.WarnLevel, warnings[0].Level)

	suite.mufex.EXPECT().GetBalance(gomock.Any()).Return(types.Balance{}, io.EOF)

	status, _ = suite.do(http.MethodGet, "/balance?dex=mufex", "", true)
	suite.Equal(http.StatusInternalServerError, status)
	suite.Equal(1, suite.logs.FilterMessage("Request failed").FilterLevelExact(zapcore.ErrorLevel).Len())

	suite.mufex.EXPECT().GetTicker(gomock.Any(), "BTC-USDC").
		Return(types.Ticker{}, errors.New(errors.ErrCodeUnsupportedSymbol, "no trading rule"))

	status, _ = suite.do(http.MethodGet, "/ticker?dex=mufex&symbol=BTC-USDC", "", true)
	suite.Equal(http.StatusBadRequest, status)
	suite.Equal(1, suite.logs.FilterMessage("Exchange request failed").Len())
}

func (suite *ServerTestSuite) TestCancelOrder() {
	suite.mufex.EXPECT().CancelOrder(gomock.Any(), types.CancelRequest{OrderID: "42", Symbol: optional.Some("BTC-USDC")}).Return(nil)

	status, _ := suite.do(http.MethodPost, "/cancel-order?dex=mufex", `{"order_id":"42","symbol":"BTC-USDC"}`, true)
	suite.Equal(http.StatusOK, status)

	status, _ = suite.do(http.MethodPost, "/cancel-order?dex=mufex", `{"symbol":"BTC-USDC"}`, true)
	suite.Equal(http.StatusBadRequest, status)

	suite.mufex.EXPECT().CancelOrder(gomock.Any(), gomock.Any()).Return(errors.New(errors.ErrCodeNotFound, "order 43 not found"))

	status, _ = suite.do(http.MethodPost, "/cancel-order?dex=mufex", `{"order_id":"43"}`, true)
	suite.Equal(http.StatusNotFound, status)
}

func (suite *ServerTestSuite) TestCloseAllPositions() {
	closed := types.ClosedPosition{
		Position: types.Position{Symbol: "BTC-USDC", Side: types.PositionSideLong, Size: decimal.RequireFromString("0.5")},
		Result: types.Filled("1", types.FillSummary{
			Price: decimal.RequireFromString("49997.5"),
			Size:  decimal.RequireFromString("0.5"),
			Fee:   decimal.Zero,
		}),
	}

	suite.mufex.EXPECT().CloseAllPositions(gomock.Any(), optional.None[string]()).
		Return(types.CloseReport{Closed: []types.ClosedPosition{closed}}, nil)

	status, body := suite.do(http.MethodPost, "/close_all_positions?dex=mufex", "", true)
	suite.Equal(http.StatusOK, status)
	suite.Len(body["closed"], 1)
	suite.Empty(body["remaining"])
}

func (suite *ServerTestSuite) TestCloseAllPositionsAborted() {
	remaining := types.Position{Symbol: "ETH-USDC", Side: types.PositionSideShort, Size: decimal.RequireFromString("2")}

	suite.apex.EXPECT().CloseAllPositions(gomock.Any(), optional.Some("ETH-USDC")).
		Return(types.CloseReport{Remaining: []types.Position{remaining}}, errors.New(errors.ErrCodeUpstreamTimeout, "timed out"))

	status, body := suite.do(http.MethodPost, "/close_all_positions?dex=apex", `{"symbol":"ETH-USDC"}`, true)
	suite.Equal(http.StatusGatewayTimeout, status)
	suite.Equal("Err", body["result"])
	suite.Equal("timed out", body["message"])
	suite.Len(body["remaining"], 1)
}

func (suite *ServerTestSuite) TestFilledOrders() {
	config := mocks.DefaultConfig()
	config.Count = 3
	fills := mocks.NewDataGenerator(42).Fills(config)

	suite.mufex.EXPECT().GetFilledOrders("BTC-USDC").Return(fills)

	status, body := suite.do(http.MethodGet, "/filled-orders?dex=mufex&symbol=BTC-USDC", "", true)
	suite.Equal(http.StatusOK, status)

	orders, ok := body["orders"].([]any)
	suite.Require().True(ok)
	suite.Len(orders, 3)
	suite.Equal("order-0", orders[0].(map[string]any)["order_id"])

	suite.mufex.EXPECT().GetFilledOrders("ETH-USDC").Return(nil)

	_, body = suite.do(http.MethodGet, "/filled-orders?dex=mufex&symbol=ETH-USDC", "", true)
	suite.Equal([]any{}, body["orders"])
}

func (suite *ServerTestSuite) TestClearFilledOrder() {
	suite.mufex.EXPECT().ClearFilledOrder("BTC-USDC", "order-0")

	status, _ := suite.do(http.MethodDelete, "/filled-orders?dex=mufex&symbol=BTC-USDC&order_id=order-0", "", true)
	suite.Equal(http.StatusOK, status)

	status, _ = suite.do(http.MethodDelete, "/filled-orders?dex=mufex&symbol=BTC-USDC", "", true)
	suite.Equal(http.StatusBadRequest, status)
}

func (suite *ServerTestSuite) TestYesterdayPnL() {
	suite.reporter.EXPECT().GetYesterdayPnL(gomock.Any()).Return(json.RawMessage(`{"totalPnl":"12.5"}`), nil)

	status, body := suite.do(http.MethodGet, "/yesterday-pnl?dex=apex", "", true)
	suite.Equal(http.StatusOK, status)
	suite.Equal(map[string]any{"totalPnl": "12.5"}, body["data"])

	status, body = suite.do(http.MethodGet, "/yesterday-pnl?dex=mufex", "", true)
	suite.Equal(http.StatusBadRequest, status)
	suite.Equal("yesterday pnl is not supported by mufex", body["message"])
}

func (suite *ServerTestSuite) TestStatusMapping() {
	suite.Equal(http.StatusBadGateway, statusFor(errors.New(errors.ErrCodeDataShape, "bad payload")))
	suite.Equal(http.StatusInternalServerError, statusFor(io.EOF))
	suite.Equal(http.StatusInternalServerError, statusFor(errors.New(errors.ErrCodeConfiguration, "bad config")))
}
