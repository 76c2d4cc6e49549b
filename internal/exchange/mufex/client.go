package mufex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shigeo-nakamura/dex-router/internal/signing"
	"github.com/shigeo-nakamura/dex-router/internal/transport"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
)

const (
	pathInstruments    = "/public/v1/instruments"
	pathTickers        = "/public/v1/market/tickers"
	pathCreateOrder    = "/private/v1/trade/create"
	pathCancelOrder    = "/private/v1/trade/cancel"
	pathActivityOrders = "/private/v1/trade/activity-orders"
	pathPositions      = "/private/v1/account/positions"
	pathBalance        = "/private/v1/account/balance"

	// missingCode is reported when a response carries no code at all.
	missingCode = 9999
)

// envelope is the common response wrapper.
type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) code() int {
	if e.Code == nil {
		return missingCode
	}

	return *e.Code
}

// client signs and sends Mufex REST calls.
type client struct {
	http   *transport.Client
	signer *signing.HMACSigner
}

func (c *client) headers(sig signing.Signature, withBody bool) map[string]string {
	h := map[string]string{
		"MF-ACCESS-SIGN-TYPE":   "2",
		"MF-ACCESS-SIGN":        sig.Value,
		"MF-ACCESS-API-KEY":     c.signer.APIKey(),
		"MF-ACCESS-TIMESTAMP":   sig.TimestampString(),
		"MF-ACCESS-RECV-WINDOW": sig.RecvWindowString(),
	}

	if withBody {
		h["Content-Type"] = "application/json"
	}

	return h
}

// public performs an unsigned GET and returns the data field.
func (c *client) public(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.call(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  query.Encode(),
	}, errors.ErrCodeUpstream)
}

// get performs a signed GET. The signature covers the encoded query string.
func (c *client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	encoded := query.Encode()
	sig := c.signer.Sign(encoded, "")

	return c.call(ctx, transport.Request{
		Method:  http.MethodGet,
		Path:    path,
		Query:   encoded,
		Headers: c.headers(sig, false),
	}, errors.ErrCodeUpstream)
}

// post performs a signed POST. The signature covers the exact body bytes.
// rejectCode is the error code used when the exchange answers with a non-zero code.
func (c *client) post(ctx context.Context, path string, body any, rejectCode errors.ErrorCode) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidParameter, "failed to encode request body", err)
	}

	sig := c.signer.Sign("", string(payload))

	return c.call(ctx, transport.Request{
		Method:  http.MethodPost,
		Path:    path,
		Body:    payload,
		Headers: c.headers(sig, true),
	}, rejectCode)
}

func (c *client) call(ctx context.Context, req transport.Request, rejectCode errors.ErrorCode) (json.RawMessage, error) {
	var env envelope
	if err := c.http.DoJSON(ctx, req, &env); err != nil {
		return nil, err
	}

	if code := env.code(); code != 0 {
		return nil, errors.New(rejectCode, env.Message+" ("+strconv.Itoa(code)+")")
	}

	return env.Data, nil
}

// listOf decodes the common {"list": [...]} data payload.
func listOf[T any](data json.RawMessage) ([]T, error) {
	var payload struct {
		List []T `json:"list"`
	}

	if err := transport.Decode(data, &payload); err != nil {
		return nil, err
	}

	return payload.List, nil
}
