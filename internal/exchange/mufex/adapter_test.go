package mufex

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/moznion/go-optional"
	"github.com/shigeo-nakamura/dex-router/internal/cache"
	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/logger"
	"github.com/shigeo-nakamura/dex-router/internal/types"
	"github.com/shigeo-nakamura/dex-router/internal/utils"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

const (
	testKey    = "test-key"
	testSecret = "test-secret"
)

// fakeMufex is an in-memory Mufex REST API.
type fakeMufex struct {
	mu             sync.Mutex
	created        []map[string]any
	cancelled      []map[string]string
	orderStatus    string
	createCode     int
	tickerPrice    string
	instrumentsErr bool
	positions      []map[string]string
	badSignatures  int
}

func (f *fakeMufex) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc(pathInstruments, func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		failing := f.instrumentsErr
		f.mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		writeData(w, map[string]any{"list": []map[string]any{
			{"symbol": "BTCUSDT", "priceFilter": map[string]string{"tickSize": "0.5"}, "lotSizeFilter": map[string]string{"qtyStep": "0.001"}},
			{"symbol": "ETHUSDT", "priceFilter": map[string]string{"tickSize": "0.01"}, "lotSizeFilter": map[string]string{"qtyStep": "0.01"}},
		}})
	}).Methods(http.MethodGet)

	r.HandleFunc(pathTickers, func(w http.ResponseWriter, req *http.Request) {
		f.mu.Lock()
		price := f.tickerPrice
		f.mu.Unlock()

		if price == "" {
			writeData(w, map[string]any{"list": []any{}})

			return
		}

		writeData(w, map[string]any{"list": []map[string]string{{"symbol": req.URL.Query().Get("symbol"), "lastPrice": price}}})
	}).Methods(http.MethodGet)

	r.HandleFunc(pathCreateOrder, func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		f.verify(req, "", string(body))

		f.mu.Lock()
		defer f.mu.Unlock()

		if f.createCode != 0 {
			writeJSON(w, map[string]any{"code": f.createCode, "message": "insufficient balance"})

			return
		}

		var order map[string]any
		_ = json.Unmarshal(body, &order)
		f.created = append(f.created, order)

		writeData(w, map[string]string{"orderId": "order-" + order["symbol"].(string)})
	}).Methods(http.MethodPost)

	r.HandleFunc(pathActivityOrders, func(w http.ResponseWriter, req *http.Request) {
		f.verify(req, req.URL.RawQuery, "")

		f.mu.Lock()
		status := f.orderStatus
		f.mu.Unlock()

		orderID := req.URL.Query().Get("orderId")
		if orderID == "missing" {
			writeData(w, map[string]any{"list": []any{}})

			return
		}

		qty, value, fee := "0.012", "600.0", "0.36"
		if status != orderStatusFilled {
			qty, value, fee = "0", "0", "0"
		}

		writeData(w, map[string]any{"list": []map[string]string{{
			"orderId":      orderID,
			"symbol":       "ETHUSDT",
			"orderStatus":  status,
			"cumExecQty":   qty,
			"cumExecValue": value,
			"cumExecFee":   fee,
		}}})
	}).Methods(http.MethodGet)

	r.HandleFunc(pathCancelOrder, func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		f.verify(req, "", string(body))

		var cancel map[string]string
		_ = json.Unmarshal(body, &cancel)

		f.mu.Lock()
		f.cancelled = append(f.cancelled, cancel)
		f.mu.Unlock()

		writeData(w, map[string]string{"orderId": cancel["orderId"]})
	}).Methods(http.MethodPost)

	r.HandleFunc(pathPositions, func(w http.ResponseWriter, req *http.Request) {
		f.verify(req, req.URL.RawQuery, "")

		f.mu.Lock()
		positions := f.positions
		f.mu.Unlock()

		writeData(w, map[string]any{"list": positions})
	}).Methods(http.MethodGet)

	r.HandleFunc(pathBalance, func(w http.ResponseWriter, req *http.Request) {
		f.verify(req, "", "")
		writeData(w, map[string]any{"list": []map[string]string{{"equity": "1050.5", "walletBalance": "1000"}}})
	}).Methods(http.MethodGet)

	return r
}

// verify recomputes the request signature from the headers.
func (f *fakeMufex) verify(req *http.Request, query, body string) {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(req.Header.Get("MF-ACCESS-TIMESTAMP") + testKey + req.Header.Get("MF-ACCESS-RECV-WINDOW") + query + body))

	if req.Header.Get("MF-ACCESS-SIGN") != hex.EncodeToString(mac.Sum(nil)) ||
		req.Header.Get("MF-ACCESS-API-KEY") != testKey ||
		req.Header.Get("MF-ACCESS-SIGN-TYPE") != "2" {
		f.mu.Lock()
		f.badSignatures++
		f.mu.Unlock()
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, map[string]any{"code": 0, "message": "OK", "data": data})
}

type MufexTestSuite struct {
	suite.Suite
	fake    *fakeMufex
	server  *httptest.Server
	adapter *Adapter
}

func TestMufexSuite(t *testing.T) {
	suite.Run(t, new(MufexTestSuite))
}

func (suite *MufexTestSuite) SetupTest() {
	suite.fake = &fakeMufex{orderStatus: orderStatusFilled, tickerPrice: "50000.3"}
	suite.server = httptest.NewServer(suite.fake.router())

	adapter, err := New(context.Background(), suite.config(), cache.NewStore(), logger.NewNopLogger(), nil)
	suite.Require().NoError(err)
	suite.adapter = adapter
}

func (suite *MufexTestSuite) TearDownTest() {
	suite.NoError(suite.adapter.Close())
	suite.server.Close()
	suite.Equal(0, suite.fake.badSignatures)
}

func (suite *MufexTestSuite) config() Config {
	return Config{
		APIKey:    testKey,
		APISecret: testSecret,
		BaseURL:   suite.server.URL,
		Timeout:   time.Second,
		Padding:   utils.TickPadding(5),
		Confirm:   exchange.ConfirmPolicy{Attempts: 2, Interval: time.Millisecond},
	}
}

func (suite *MufexTestSuite) TestNewFailsWithoutSecret() {
	cfg := suite.config()
	cfg.APISecret = ""

	_, err := New(context.Background(), cfg, nil, nil, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeMissingSecret))
}

func (suite *MufexTestSuite) TestNewFailsWhenInstrumentsUnavailable() {
	suite.fake.instrumentsErr = true

	_, err := New(context.Background(), suite.config(), nil, nil, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeMetadataLoadFail))
}

func (suite *MufexTestSuite) TestSymbolsLoaded() {
	suite.Equal([]string{"BTCUSDT", "ETHUSDT"}, suite.adapter.Symbols())
}

func (suite *MufexTestSuite) TestCreateOrderPadsAndConfirms() {
	result, err := suite.adapter.CreateOrder(context.Background(), types.OrderRequest{
		Symbol: "BTC-USDT",
		Size:   decimal.RequireFromString("0.0125"),
		Side:   types.SideBuy,
	})
	suite.Require().NoError(err)

	suite.Equal(types.OrderStateFilled, result.State)
	suite.Equal("order-BTCUSDT", result.OrderID)
	suite.Equal("50000", result.Fill.Unwrap().Price.String())
	suite.Equal("0.012", result.Fill.Unwrap().Size.String())
	suite.Equal("0.36", result.Fill.Unwrap().Fee.String())

	suite.Require().Len(suite.fake.created, 1)
	order := suite.fake.created[0]
	suite.Equal("BTCUSDT", order["symbol"])
	suite.Equal("Buy", order["side"])
	suite.Equal("Limit", order["orderType"])
	suite.Equal("0.012", order["qty"])
	suite.Equal("50002.5", order["price"])
	suite.Equal("ImmediateOrCancel", order["timeInForce"])
	suite.EqualValues(0, order["positionIdx"])
	suite.NotEmpty(order["orderLinkId"])
}

func (suite *MufexTestSuite) TestCreateOrderUsesCachedPrice() {
	suite.adapter.Store().SetPrice("BTCUSDT", "60000")

	_, err := suite.adapter.CreateOrder(context.Background(), types.OrderRequest{
		Symbol: "BTCUSDT",
		Size:   decimal.RequireFromString("1"),
		Side:   types.SideSell,
	})
	suite.Require().NoError(err)
	suite.Equal("59997.5", suite.fake.created[0]["price"])
	suite.Equal("Sell", suite.fake.created[0]["side"])
}

func (suite *MufexTestSuite) TestCreateOrderWithoutAnyPriceGoesMarket() {
	suite.fake.tickerPrice = ""

	_, err := suite.adapter.CreateOrder(context.Background(), types.OrderRequest{
		Symbol: "BTCUSDT",
		Size:   decimal.RequireFromString("1"),
		Side:   types.SideBuy,
	})
	suite.Require().NoError(err)
	suite.Equal("Market", suite.fake.created[0]["orderType"])
	suite.NotContains(suite.fake.created[0], "price")
}

func (suite *MufexTestSuite) TestCreateOrderRejected() {
	suite.fake.createCode = 30031

	_, err := suite.adapter.CreateOrder(context.Background(), types.OrderRequest{
		Symbol: "BTCUSDT",
		Size:   decimal.RequireFromString("1"),
		Side:   types.SideBuy,
	})
	suite.True(errors.HasCode(err, errors.ErrCodeOrderRejected))
	suite.Equal("insufficient balance (30031)", errors.Message(err))
}

func (suite *MufexTestSuite) TestCreateOrderUnconfirmedIsUnknown() {
	suite.fake.orderStatus = "New"

	result, err := suite.adapter.CreateOrder(context.Background(), types.OrderRequest{
		Symbol: "BTCUSDT",
		Size:   decimal.RequireFromString("1"),
		Side:   types.SideBuy,
	})
	suite.Require().NoError(err)
	suite.Equal(types.OrderStateUnknown, result.State)
	suite.Equal("order-BTCUSDT", result.OrderID)
	suite.True(result.Fill.IsNone())
}

func (suite *MufexTestSuite) TestCreateOrderCancelledWithoutFill() {
	suite.fake.orderStatus = "Cancelled"

	_, err := suite.adapter.CreateOrder(context.Background(), types.OrderRequest{
		Symbol: "BTCUSDT",
		Size:   decimal.RequireFromString("1"),
		Side:   types.SideBuy,
	})
	suite.True(errors.HasCode(err, errors.ErrCodeOrderRejected))
}

func (suite *MufexTestSuite) TestCreateOrderUnsupportedSymbol() {
	_, err := suite.adapter.CreateOrder(context.Background(), types.OrderRequest{
		Symbol: "DOGEUSDT",
		Size:   decimal.RequireFromString("1"),
		Side:   types.SideBuy,
	})
	suite.True(errors.HasCode(err, errors.ErrCodeUnsupportedSymbol))
	suite.Empty(suite.fake.created)
}

func (suite *MufexTestSuite) TestCreateOrderConfirmedFromStream() {
	suite.fake.orderStatus = "New"
	store := suite.adapter.Store()

	// the private stream delivered the fill before the first poll
	store.RecordFill("BTCUSDT", types.FillRecord{
		OrderID:     "order-BTCUSDT",
		FilledSize:  decimal.RequireFromString("1"),
		FilledValue: decimal.RequireFromString("50000"),
		FilledFee:   decimal.RequireFromString("5"),
	})

	result, err := suite.adapter.CreateOrder(context.Background(), types.OrderRequest{
		Symbol: "BTCUSDT",
		Size:   decimal.RequireFromString("1"),
		Side:   types.SideBuy,
	})
	suite.Require().NoError(err)
	suite.Equal(types.OrderStateFilled, result.State)
	suite.Equal("50000", result.Fill.Unwrap().Price.String())
}

func (suite *MufexTestSuite) TestGetTicker() {
	ticker, err := suite.adapter.GetTicker(context.Background(), "BTC-USDT")
	suite.Require().NoError(err)
	suite.Equal("50000.3", ticker.Price)
	suite.Equal("BTC-USDT", ticker.Symbol)

	suite.adapter.Store().SetPrice("BTCUSDT", "51000")
	ticker, err = suite.adapter.GetTicker(context.Background(), "BTC-USDT")
	suite.Require().NoError(err)
	suite.Equal("51000", ticker.Price)

	suite.fake.tickerPrice = ""
	_, err = suite.adapter.GetTicker(context.Background(), "ETHUSDT")
	suite.True(errors.HasCode(err, errors.ErrCodePriceUnavailable))
}

func (suite *MufexTestSuite) TestGetBalance() {
	balance, err := suite.adapter.GetBalance(context.Background())
	suite.Require().NoError(err)
	suite.Equal("1050.5", balance.Equity.String())
	suite.Equal("1000", balance.Available.String())
}

func (suite *MufexTestSuite) TestCloseAllPositions() {
	suite.fake.positions = []map[string]string{
		{"symbol": "BTCUSDT", "size": "1.0", "side": "Buy"},
		{"symbol": "ETHUSDT", "size": "2.0", "side": "Sell"},
		{"symbol": "SOLUSDT", "size": "0", "side": "None"},
	}

	report, err := suite.adapter.CloseAllPositions(context.Background(), optional.None[string]())
	suite.Require().NoError(err)
	suite.Len(report.Closed, 2)

	suite.Require().Len(suite.fake.created, 2)
	suite.Equal("BTCUSDT", suite.fake.created[0]["symbol"])
	suite.Equal("Sell", suite.fake.created[0]["side"])
	suite.Equal("1", suite.fake.created[0]["qty"])
	suite.Equal(true, suite.fake.created[0]["reduceOnly"])
	suite.Equal("ETHUSDT", suite.fake.created[1]["symbol"])
	suite.Equal("Buy", suite.fake.created[1]["side"])
	suite.Equal("2", suite.fake.created[1]["qty"])
}

func (suite *MufexTestSuite) TestCloseAllPositionsAbortsOnRejection() {
	suite.fake.positions = []map[string]string{
		{"symbol": "BTCUSDT", "size": "1.0", "side": "Buy"},
		{"symbol": "ETHUSDT", "size": "2.0", "side": "Sell"},
	}
	suite.fake.createCode = 110017

	report, err := suite.adapter.CloseAllPositions(context.Background(), optional.None[string]())
	suite.True(errors.HasCode(err, errors.ErrCodeOrderRejected))
	suite.Empty(report.Closed)
	suite.Len(report.Remaining, 2)
}

func (suite *MufexTestSuite) TestCancelOrder() {
	err := suite.adapter.CancelOrder(context.Background(), types.CancelRequest{OrderID: "abc", Symbol: optional.Some("BTC-USDT")})
	suite.Require().NoError(err)

	err = suite.adapter.CancelOrder(context.Background(), types.CancelRequest{OrderID: "def", Symbol: optional.None[string]()})
	suite.Require().NoError(err)

	suite.Require().Len(suite.fake.cancelled, 2)
	suite.Equal(map[string]string{"symbol": "BTCUSDT", "orderId": "abc"}, suite.fake.cancelled[0])
	suite.Equal(map[string]string{"symbol": "ETHUSDT", "orderId": "def"}, suite.fake.cancelled[1])

	err = suite.adapter.CancelOrder(context.Background(), types.CancelRequest{OrderID: "missing", Symbol: optional.None[string]()})
	suite.True(errors.HasCode(err, errors.ErrCodeNotFound))
}
