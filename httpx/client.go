package httpx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// retryStatus lists the response codes treated as transient.
var retryStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpx: status %d from %s", e.StatusCode, e.URL)
}

// Retryable reports whether an error is worth another attempt. Context
// cancellation is never retried; status errors consult the transient set;
// everything else (transport failures, timeouts) is assumed transient.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryStatus[statusErr.StatusCode]
	}
	return true
}

// Client wraps an http.Client with bounded retries, exponential backoff plus
// jitter, and a per-call timeout. Source collaborators fetch their feeds
// through one of these.
type Client struct {
	inner     *http.Client
	retries   int
	backoff   time.Duration
	userAgent string
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the User-Agent header applied to every request.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// WithHTTPClient overrides the internal HTTP client.
func WithHTTPClient(inner *http.Client) Option {
	return func(c *Client) {
		c.inner = inner
	}
}

// NewClient creates a retrying HTTP client.
// retries is the number of attempts after the first; backoff is the base
// delay, doubled per attempt.
func NewClient(timeout time.Duration, retries int, backoff time.Duration, opts ...Option) *Client {
	c := &Client{
		inner:   &http.Client{Timeout: timeout},
		retries: retries,
		backoff: backoff,
		logger:  slog.Default().With("component", "httpx"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches url and returns the response body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, url, nil, nil)
}

// Do performs one logical request with retries. The body, if any, is replayed
// on each attempt. A non-2xx final status is returned as *StatusError.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, header http.Header) ([]byte, error) {
	if _, err := http.NewRequestWithContext(ctx, method, url, nil); err != nil {
		return nil, fmt.Errorf("httpx: build request: %w", err)
	}

	var payload []byte
	attempt := 0
	err := RetryWithBackoff(ctx, func() error {
		attempt++
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		for key, values := range header {
			for _, value := range values {
				req.Header.Set(key, value)
			}
		}

		resp, err := c.inner.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return &StatusError{StatusCode: resp.StatusCode, URL: url}
		}

		payload, err = io.ReadAll(resp.Body)
		return err
	}, c.retries+1, c.backoff)
	if err != nil {
		c.logger.Warn("request failed", "method", method, "url", url, "attempts", attempt, "err", err)
		return nil, err
	}
	return payload, nil
}
