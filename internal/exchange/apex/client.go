package apex

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
	pathSymbols        = "/api/v1/symbols"
	pathTicker         = "/api/v1/ticker"
	pathAccount        = "/api/v1/account"
	pathAccountBalance = "/api/v1/account-balance"
	pathWorstPrice     = "/api/v1/get-worst-price"
	pathCreateOrder    = "/api/v1/create-order"
	pathDeleteOrder    = "/api/v1/delete-order"
	pathYesterdayPnL   = "/api/v1/yesterday-pnl"
)

// envelope wraps every ApeX response. Errors carry a non-zero code.
type envelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type client struct {
	http   *transport.Client
	signer *signing.RequestSigner
}

func (c *client) headers(sig signing.Signature) map[string]string {
	return map[string]string{
		"APEX-SIGNATURE":  sig.Value,
		"APEX-TIMESTAMP":  sig.TimestampString(),
		"APEX-API-KEY":    c.signer.APIKey(),
		"APEX-PASSPHRASE": c.signer.Passphrase(),
	}
}

func (c *client) public(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.call(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  query.Encode(),
	}, errors.ErrCodeUpstream)
}

// get signs METHOD and the path including its query.
func (c *client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	encoded := query.Encode()

	signedPath := path
	if encoded != "" {
		signedPath += "?" + encoded
	}

	sig := c.signer.Sign(http.MethodGet, signedPath, "")

	return c.call(ctx, transport.Request{
		Method:  http.MethodGet,
		Path:    path,
		Query:   encoded,
		Headers: c.headers(sig),
	}, errors.ErrCodeUpstream)
}

// post sends a form body and signs its sorted encoding.
func (c *client) post(ctx context.Context, path string, form url.Values, rejectCode errors.ErrorCode) (json.RawMessage, error) {
	sig := c.signer.Sign(http.MethodPost, path, form.Encode())

	return c.call(ctx, transport.Request{
		Method:  http.MethodPost,
		Path:    path,
		Form:    form,
		Headers: c.headers(sig),
	}, rejectCode)
}

func (c *client) call(ctx context.Context, req transport.Request, rejectCode errors.ErrorCode) (json.RawMessage, error) {
	var env envelope
	if err := c.http.DoJSON(ctx, req, &env); err != nil {
		return nil, err
	}

	if env.Code != nil && *env.Code != 0 {
		return nil, errors.New(rejectCode, env.Msg+" ("+strconv.Itoa(*env.Code)+")")
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, errors.Newf(errors.ErrCodeDataShape, "response from %s has no data", req.Path)
	}

	return env.Data, nil
}
