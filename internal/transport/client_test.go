package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ClientTestSuite struct {
	suite.Suite
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (suite *ClientTestSuite) TestGetWithQueryAndHeaders() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		suite.Equal("/public/v1/market/tickers", r.URL.Path)
		suite.Equal("category=linear&symbol=BTCUSDT", r.URL.RawQuery)
		suite.Equal("signed", r.Header.Get("X-Sign"))
		_, _ = w.Write([]byte(`{"code":0,"data":{"price":"50000"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/"})

	var out struct {
		Code int `json:"code"`
		Data struct {
			Price string `json:"price"`
		} `json:"data"`
	}

	err := client.DoJSON(context.Background(), Request{
		Path:    "/public/v1/market/tickers",
		Query:   "category=linear&symbol=BTCUSDT",
		Headers: map[string]string{"X-Sign": "signed"},
	}, &out)
	suite.Require().NoError(err)
	suite.Equal("50000", out.Data.Price)
}

func (suite *ClientTestSuite) TestPostBodyAndForm() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			suite.Equal("application/json", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			suite.JSONEq(`{"symbol":"BTCUSDT"}`, string(body))
		case "/form":
			suite.Require().NoError(r.ParseForm())
			suite.Equal("BTC-USDC", r.PostForm.Get("symbol"))
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})

	_, err := client.Do(context.Background(), Request{Method: http.MethodPost, Path: "/json", Body: []byte(`{"symbol":"BTCUSDT"}`)})
	suite.NoError(err)

	_, err = client.Do(context.Background(), Request{Method: http.MethodPost, Path: "/form", Form: url.Values{"symbol": {"BTC-USDC"}}})
	suite.NoError(err)
}

func (suite *ClientTestSuite) TestHTTPErrorStatus() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	}))
	defer server.Close()

	resp, err := NewClient(Config{BaseURL: server.URL}).Do(context.Background(), Request{Path: "/x"})
	suite.True(errors.HasCode(err, errors.ErrCodeUpstream))
	suite.Require().NotNil(resp)
	suite.Equal(http.StatusBadGateway, resp.StatusCode)
}

func (suite *ClientTestSuite) TestTimeout() {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewClient(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}).Do(context.Background(), Request{Path: "/slow"})
	suite.True(errors.HasCode(err, errors.ErrCodeUpstreamTimeout), "got %v", err)
	suite.Contains(err.Error(), "Request timed out: url="+server.URL+"/slow")
}

func (suite *ClientTestSuite) TestDecodeFailure() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	var out map[string]any
	err := NewClient(Config{BaseURL: server.URL}).DoJSON(context.Background(), Request{Path: "/"}, &out)
	suite.True(errors.HasCode(err, errors.ErrCodeDataShape))
}

func (suite *ClientTestSuite) TestRateLimitHonoursContext() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, RequestsPerSecond: 0.001, Burst: 1})

	_, err := client.Do(context.Background(), Request{Path: "/"})
	suite.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.Do(ctx, Request{Path: "/"})
	suite.True(errors.HasCode(err, errors.ErrCodeUpstreamTimeout))
}
