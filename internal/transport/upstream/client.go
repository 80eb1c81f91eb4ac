// Package upstream is the outbound HTTP client shared by provider adapters:
// bounded exponential retry for transient failures behind a circuit breaker.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 4 << 10

// StatusError is a non-2xx upstream response. Body is for logs only.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config tunes retries and the breaker.
type Config struct {
	Name            string
	MaxRetries      int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	HTTPClient      *http.Client
}

// RequestFunc builds a fresh request per attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Client sends requests to one upstream.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// New creates a client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Upstream circuit breaker state changed",
				zap.String("upstream", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{cfg: cfg, http: httpClient, breaker: breaker, logger: logger}
}

// Do sends the request built by build. On success the response has a 2xx status
// and the caller owns its body. Transient failures (network, 429, 5xx) are retried.
func (c *Client) Do(ctx context.Context, build RequestFunc) (*http.Response, error) {
	var resp *http.Response
	attempt := 0

	op := func() error {
		attempt++
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.send(ctx, build)
		})
		if err != nil {
			if !c.retryable(ctx, err) {
				return backoff.Permanent(err)
			}
			c.logger.Debug("Retrying upstream request",
				zap.String("upstream", c.cfg.Name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		resp = out.(*http.Response)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	retries := max(c.cfg.MaxRetries, 0)
	// #nosec G115 -- retries is non-negative
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("%s request: %w", c.cfg.Name, err)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, build RequestFunc) (*http.Response, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, &buildError{err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by Do
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

func (c *Client) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var be *buildError
	if errors.As(err, &be) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

// countsAsSuccess keeps caller mistakes and cancellations from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var be *buildError
	if errors.As(err, &be) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return !se.Retryable()
	}
	return false
}

type buildError struct {
	err error
}

func (e *buildError) Error() string { return "build request: " + e.err.Error() }
func (e *buildError) Unwrap() error { return e.err }
