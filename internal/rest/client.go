// Package rest provides the HTTP client shared by all remote annotation sources.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultUserAgent identifies cardiovar to the public APIs.
const DefaultUserAgent = "cardiovar/1.0 (+https://github.com/inodb/cardiovar)"

// ErrDecode is returned when a response body is not the expected JSON.
var ErrDecode = errors.New("decode response")

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if repeated.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Options configures a Client.
type Options struct {
	UserAgent string
	// RateLimit is the maximum number of requests per second; 0 disables limiting.
	RateLimit float64
	// Retries is the number of additional attempts after a temporary failure.
	// Negative values are treated as 0.
	Retries int
	// RetryWait is the initial backoff interval between attempts.
	RetryWait time.Duration
	// Transport overrides the default HTTP transport (used in tests).
	Transport http.RoundTripper
}

// Client issues JSON requests with a per-call deadline.
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	retries    int
	retryWait  time.Duration
	logger     *zap.Logger
}

// NewClient creates a client. Construct once and share between adapters.
func NewClient(opts Options) *Client {
	c := &Client{
		httpClient: &http.Client{Transport: opts.Transport},
		userAgent:  opts.UserAgent,
		retries:    opts.Retries,
		retryWait:  opts.RetryWait,
		logger:     zap.NewNop(),
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.retries < 0 {
		c.retries = 0
	}
	if c.retryWait <= 0 {
		c.retryWait = time.Second
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c
}

// SetLogger sets the logger for request diagnostics.
func (c *Client) SetLogger(l *zap.Logger) {
	c.logger = l
}

// GetJSON issues a GET request and decodes the JSON response into v.
// The call is abandoned once timeout elapses.
func (c *Client) GetJSON(ctx context.Context, url string, timeout time.Duration, v any) error {
	return c.do(ctx, http.MethodGet, url, nil, timeout, v)
}

// PostJSON issues a POST request with a JSON body and decodes the JSON response into v.
func (c *Client) PostJSON(ctx context.Context, url string, body any, timeout time.Duration, v any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, payload, timeout, v)
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte, timeout time.Duration, v any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	attempt := func() error {
		err := c.once(ctx, method, url, payload, v)
		if err == nil || isTemporary(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryWait
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retries)), ctx)

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying request",
			zap.String("url", url),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(attempt, policy, notify)
	// Retry returns the context error when the deadline fires between attempts.
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

func (c *Client) once(ctx context.Context, method, url string, payload []byte, v any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(msg)}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("read response %s: %w", url, ctx.Err())
		}
		return fmt.Errorf("%w from %s: %v", ErrDecode, url, err)
	}
	return nil
}

// isTemporary reports whether a failed attempt is worth retrying.
func isTemporary(err error) bool {
	if errors.Is(err, ErrDecode) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
