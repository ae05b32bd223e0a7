// Remote lookup API client.
//
// Information Hiding:
// - URL joining and path escaping hidden
// - Token header and request IDs attached to every call
// - Non-success statuses and unparseable bodies turned into typed errors

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Prefix is the path every API endpoint lives under.
const Prefix = "/api/v1"

// DefaultBaseURL is used when nothing else is configured.
const DefaultBaseURL = "http://127.0.0.1:80"

// maxResponseBody caps how much of a response is read (10 MiB).
const maxResponseBody int64 = 10 << 20

// TokenHeader carries the access token on every request.
const TokenHeader = "token"

// RequestIDHeader carries a per-call identifier for server-side correlation.
const RequestIDHeader = "X-Request-ID"

// ErrUnparseable is returned when a successful response body is not JSON.
var ErrUnparseable = errors.New("response is not valid JSON")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("HTTP error: %s", e.Status)
	}
	return fmt.Sprintf("HTTP error: %s: %s", e.Status, body)
}

// Client talks to one lookup API server.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. Nil keeps the default.
// The client is never modified; WithTimeout applies to a copy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout. Zero keeps the client's own.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger. Nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient validates baseURL and builds a client for it.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: normalized,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.timeout > 0 && c.http.Timeout != c.timeout {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c, nil
}

// BaseURL returns the normalized server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// NormalizeBaseURL lowercases the address, requires an http or https scheme
// and rewrites localhost to 127.0.0.1.
func NormalizeBaseURL(raw string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return "", fmt.Errorf("invalid URL %q: it has to start with http:// or https://", raw)
	}
	u = strings.ReplaceAll(u, "localhost", "127.0.0.1")
	if _, err := url.Parse(u); err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	return strings.TrimRight(u, "/"), nil
}

// joinURL joins parts with exactly one slash between them. Trailing slashes
// on the last part are kept since the server distinguishes "/x/" from "/x".
func joinURL(parts ...string) string {
	out := ""
	for i, p := range parts {
		if i == 0 {
			out = strings.TrimRight(p, "/")
			continue
		}
		out = strings.TrimRight(out, "/") + "/" + strings.TrimLeft(p, "/")
	}
	return out
}

func (c *Client) endpoint(parts ...string) string {
	return joinURL(append([]string{c.baseURL, Prefix}, parts...)...)
}

// Lookup issues a single-item lookup: GET <prefix>/<category>/<escaped item>.
func (c *Client) Lookup(ctx context.Context, token, category, item string) (json.RawMessage, error) {
	u := c.endpoint(url.PathEscape(category), url.PathEscape(item))
	return c.do(ctx, http.MethodGet, u, token, nil)
}

// LookupBatch issues a batch lookup: POST <prefix>/<category>/ with a JSON array body.
func (c *Client) LookupBatch(ctx context.Context, token, category string, items []string) (json.RawMessage, error) {
	if items == nil {
		items = []string{}
	}
	u := c.endpoint(url.PathEscape(category), "/")
	return c.do(ctx, http.MethodPost, u, token, items)
}

// do performs one request and returns the JSON body of a 2xx response.
func (c *Client) do(ctx context.Context, method, u, token string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.Must(uuid.NewV7()).String()
	req.Header.Set(TokenHeader, token)
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("url", u),
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("url", u),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(data),
		}
	}
	if !json.Valid(data) {
		return nil, ErrUnparseable
	}
	return json.RawMessage(data), nil
}
