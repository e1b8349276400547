// Package kalshi is the REST client for the binary contract venue. It
// lists markets, reads orderbooks and places orders, and adapts the
// venue's bid-only book into the trader's buyer-side orderbook.
package kalshi

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the venue REST API.
type Client struct {
	baseURL    string
	pathPrefix string // path of baseURL, part of every signed path
	creds      *Credentials
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient returns a client for baseURL, e.g.
// https://api.elections.kalshi.com/trade-api/v2. creds may be nil for
// public market data.
func NewClient(baseURL string, creds *Credentials, opts ...ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	prefix := ""
	if u, err := url.Parse(baseURL); err == nil {
		prefix = u.Path
	}
	c := &Client{
		baseURL:      baseURL,
		pathPrefix:   prefix,
		creds:        creds,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       slog.Default(),
		now:          time.Now,
		maxRetries:   3,
		retryBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries sets how often idempotent requests are retried.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
