// Package api is the request/response channel to the TaskFlow backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/omochice/taskflow-chat/internal/logger"
	"github.com/omochice/taskflow-chat/internal/metrics"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 10 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithToken sets the initial bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithRateLimit paces outgoing calls. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = logger.OrDiscard(l) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client issues stateless calls against the backend. It is safe for
// concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu        sync.RWMutex
	token     string
	requestID atomic.Uint64
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken sets the bearer token attached to subsequent calls. An empty
// token disables the Authorization header.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do performs one call. It reports false with a nil error when the response
// carried no body (204 or empty).
func (c *Client) do(ctx context.Context, method, path string, body, out any) (bool, error) {
	id := fmt.Sprintf("req_%d", c.requestID.Add(1))
	start := time.Now()
	defer func() {
		c.metrics.ObserveRequest(method, time.Since(start).Seconds())
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.metrics.RequestFailed("network")
			return false, networkError(err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	token := c.Token()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("api request", "id", id, "method", method, "path", path, "authorized", token != "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RequestFailed("network")
		c.logger.Error("api network error", "id", id, "method", method, "path", path, "error", err)
		return false, networkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.metrics.RequestFailed("network")
		c.logger.Error("api read error", "id", id, "error", err)
		return false, networkError(err)
	}

	c.logger.Debug("api response", "id", id, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.RequestFailed("status")
		return false, statusError(resp.StatusCode, data)
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			c.metrics.RequestFailed("decode")
			return false, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return true, nil
}
