package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"mention-lab/internal/observability"
	"mention-lab/internal/ratelimit"
)

// Default configuration values.
const (
	DefaultTimeout      = 20 * time.Second
	DefaultMaxBodyBytes = 4 << 20
	DefaultUserAgent    = "mention-lab/1.0"
)

// httpClient carries the transport shared by both adapters.
type httpClient struct {
	client *http.Client
	gate   *ratelimit.Gate
	logger *zap.Logger
	now    func() time.Time
}

// ClientOption configures an adapter.
type ClientOption func(*httpClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *httpClient) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *httpClient) {
		c.client = client
	}
}

// WithGate routes every request through a shared gate.
func WithGate(g *ratelimit.Gate) ClientOption {
	return func(c *httpClient) {
		c.gate = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *httpClient) {
		c.logger = l
	}
}

func newHTTPClient(opts []ClientOption) httpClient {
	c := httpClient{
		client: &http.Client{Timeout: DefaultTimeout},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.gate == nil {
		c.gate = ratelimit.NewGate(ratelimit.DefaultConfig(), ratelimit.WithLogger(c.logger))
	}
	return c
}

// getJSON performs one gated GET and decodes the body into out.
// 429 and 503-with-retry-after become *ratelimit.ThrottledError, 404 becomes ErrNotFound.
func (c *httpClient) getJSON(ctx context.Context, endpoint, url string, out interface{}) error {
	_, err := ratelimit.Do(ctx, c.gate, endpoint, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.fetch(ctx, endpoint, url, out)
	})
	return err
}

func (c *httpClient) fetch(ctx context.Context, endpoint, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", DefaultUserAgent)

	start := c.now()
	resp, err := c.client.Do(req)
	if err != nil {
		observability.RecordMarketCall(endpoint, "error", time.Since(start).Seconds())
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()
	observability.RecordMarketCall(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	retryAfter := ratelimit.ParseRetryAfter(resp.Header.Get("Retry-After"), c.now())
	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusServiceUnavailable && retryAfter > 0:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, DefaultMaxBodyBytes))
		return &ratelimit.ThrottledError{Endpoint: endpoint, Status: resp.StatusCode, RetryAfter: retryAfter}
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%s: unexpected status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, DefaultMaxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s read body: %w", endpoint, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s decode: %w", endpoint, err)
	}
	return nil
}

// flexFloat accepts JSON numbers, numeric strings and null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}
