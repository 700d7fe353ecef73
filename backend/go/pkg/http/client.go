package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/circuitbreaker"
)

// Client wraps http.Client with a circuit breaker and a fixed User-Agent.
type Client struct {
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	userAgent  string

	breakerHook func(from, to circuitbreaker.State)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithBreakerHook observes breaker state transitions.
func WithBreakerHook(fn func(from, to circuitbreaker.State)) ClientOption {
	return func(c *Client) { c.breakerHook = fn }
}

// NewClient creates a Client. When the breaker is disabled in cfg every call goes straight through.
func NewClient(cfg config.CircuitBreakerConfig, timeout time.Duration, opts ...ClientOption) (*Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{httpClient: &http.Client{Timeout: timeout}}
	if cfg.Enabled {
		breaker, err := createCircuitBreaker(cfg, func(from, to circuitbreaker.State) {
			if c.breakerHook != nil {
				c.breakerHook(from, to)
			}
		})
		if err != nil {
			return nil, err
		}
		c.breaker = breaker
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do executes req. Status codes >= 500 count as breaker failures but the response is still returned.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	err := c.breaker.Execute(func() error {
		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("server error: received status code %d", resp.StatusCode)
		}
		return nil
	})
	if resp != nil && err != nil && resp.StatusCode >= http.StatusInternalServerError {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetBody fetches url and returns the body when the status is 2xx.
func (c *Client) GetBody(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}
	if limit <= 0 {
		limit = 4 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	return body, nil
}

// BreakerState reports the breaker state, Closed when disabled.
func (c *Client) BreakerState() circuitbreaker.State {
	if c.breaker == nil {
		return circuitbreaker.Closed
	}
	return c.breaker.State()
}
