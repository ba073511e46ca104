// Package transport is the single RPC channel between the client and the
// remote store. Every call carries the session token as a request parameter
// and every failure comes back as a classified value.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseSize bounds how much of a response body is read (4MB).
const maxResponseSize = 4 << 20

// TokenSource supplies the session token and is cleared when the remote
// store rejects it.
type TokenSource interface {
	Token(ctx context.Context) string
	Clear(ctx context.Context) error
}

// Client issues requests against the remote store.
type Client struct {
	base           *url.URL
	http           *http.Client
	tokens         TokenSource
	param          string
	logger         *slog.Logger
	onUnauthorized func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithSessionParam names the request parameter carrying the token.
func WithSessionParam(name string) Option {
	return func(c *Client) { c.param = name }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the remote store rooted at baseURL.
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api url must be absolute, got %q", baseURL)
	}

	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 15 * time.Second},
		tokens: tokens,
		param:  "PHPSESSID",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OnUnauthorized registers fn to run after the session has been cleared
// because of a 401. It replaces any previous handler.
func (c *Client) OnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

// Call issues method against endpoint (which may carry its own query) with an
// optional JSON body, and returns the raw JSON response.
func (c *Client) Call(ctx context.Context, endpoint, method string, body any) (json.RawMessage, error) {
	target, err := c.resolve(ctx, endpoint)
	if err != nil {
		return nil, &Failure{Kind: EndpointMissing, Endpoint: endpoint, Err: err}
	}

	var reader io.Reader
	if body != nil && method != http.MethodGet {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("transport request", "method", method, "endpoint", endpoint)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("transport unreachable", "endpoint", endpoint, "error", err)
		return nil, &Failure{Kind: Unreachable, Endpoint: endpoint, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "endpoint", endpoint, "error", closeErr)
		}
	}()

	c.logger.Debug("transport response", "endpoint", endpoint, "status", resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusForbidden:
		return nil, &Failure{Kind: Forbidden, Endpoint: endpoint, Status: resp.StatusCode}
	case http.StatusUnauthorized:
		c.logger.Warn("session expired, clearing local state", "endpoint", endpoint)
		if err := c.tokens.Clear(ctx); err != nil {
			c.logger.Error("failed to clear session after 401", "error", err)
		}
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return nil, ErrAborted
	case http.StatusNotFound:
		return nil, &Failure{Kind: EndpointMissing, Endpoint: endpoint, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &Failure{Kind: Unreachable, Endpoint: endpoint, Status: resp.StatusCode, Err: err}
	}
	return classifyBody(endpoint, resp.StatusCode, raw)
}

func classifyBody(endpoint string, status int, raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return nil, &Failure{Kind: ServerError, Endpoint: endpoint, Status: status}
	}
	if !json.Valid(trimmed) {
		return nil, &Failure{
			Kind:     MalformedResponse,
			Endpoint: endpoint,
			Status:   status,
			Err:      errors.New("response is not valid JSON"),
		}
	}
	return json.RawMessage(trimmed), nil
}

// resolve joins endpoint onto the base URL and appends the token parameter.
func (c *Client) resolve(ctx context.Context, endpoint string) (string, error) {
	ref, err := url.Parse(strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", err
	}
	u := c.base.ResolveReference(ref)
	if tok := c.tokens.Token(ctx); tok != "" {
		q := u.Query()
		q.Set(c.param, tok)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
