// Package transport is the REST client shared by the exchange adapters.
package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = time.Second

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond of zero disables client side rate limiting.
	RequestsPerSecond float64
	Burst             int
}

// Request is one outbound call. Query is sent verbatim so it matches what was signed.
type Request struct {
	Method  string
	Path    string
	Query   string
	Body    []byte
	Form    url.Values
	Headers map[string]string
}

// Response is the raw answer of the exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client performs REST calls with a per-call timeout and an optional rate limit.
type Client struct {
	http    *resty.Client
	baseURL string
	limiter *rate.Limiter
}

// NewClient creates a client for one exchange.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		http:    resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		baseURL: baseURL,
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}

		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return c
}

// BaseURL returns the exchange root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do executes the request. Network timeouts map to ErrCodeUpstreamTimeout and
// HTTP error statuses to ErrCodeUpstream.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	fullURL := c.baseURL + req.Path
	if req.Query != "" {
		fullURL += "?" + req.Query
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeUpstreamTimeout, err, "Request timed out: url=%s", fullURL)
		}
	}

	r := c.http.R().SetContext(ctx).SetHeaders(req.Headers)

	if req.Body != nil {
		if _, ok := req.Headers["Content-Type"]; !ok {
			r.SetHeader("Content-Type", "application/json")
		}

		r.SetBody(req.Body)
	}

	if req.Form != nil {
		r.SetFormDataFromValues(req.Form)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := req.Path
	if req.Query != "" {
		target += "?" + req.Query
	}

	resp, err := r.Execute(method, target)
	if err != nil {
		if isTimeout(err) {
			return nil, errors.Wrapf(errors.ErrCodeUpstreamTimeout, err, "Request timed out: url=%s", fullURL)
		}

		return nil, errors.Wrapf(errors.ErrCodeUpstream, err, "request failed: url=%s", fullURL)
	}

	out := &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}

	if resp.StatusCode() >= http.StatusBadRequest {
		return out, errors.Newf(errors.ErrCodeUpstream, "HTTP %d from %s: %s", resp.StatusCode(), fullURL, truncate(string(out.Body), 256))
	}

	return out, nil
}

// DoJSON executes the request and decodes the body into out.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}

	return Decode(resp.Body, out)
}

// Decode unmarshals an exchange payload. Malformed payloads are data shape errors.
func Decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(errors.ErrCodeDataShape, "failed to decode exchange response", err)
	}

	return nil
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return stderrors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
