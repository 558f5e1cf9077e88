// Package httpclient is the retrying HTTP client shared by the provider
// and embedder adapters. Retries are driven by response status codes and
// provider rate limit headers. Transport errors are never retried here;
// they surface immediately so the cascade can move to the next provider.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// RetryStrategy classifies how a status code should be retried.
type RetryStrategy int

const (
	// NoRetry returns the response to the caller as-is.
	NoRetry RetryStrategy = iota

	// ConservativeRetry allows at most two quick re-attempts. Used for
	// transient server errors where hammering the endpoint helps nobody.
	ConservativeRetry

	// SmartRetry honors the provider's rate limit headers and falls back
	// to exponential backoff when they are absent.
	SmartRetry
)

// RateLimitInfo carries whatever rate limit state a provider exposed in
// its response headers. Zero values mean the header was absent.
type RateLimitInfo struct {
	RetryAfter            time.Duration
	ResetTime             int64
	RequestsRemaining     int
	InputTokensRemaining  int
	OutputTokensRemaining int
	TokensRemaining       int
}

// RateLimitHeaderParser extracts rate limit info from response headers.
// Each provider family speaks its own header dialect; see parsers.go.
type RateLimitHeaderParser func(http.Header) RateLimitInfo

// RetryStrategyFunc decides the retry strategy for a status code.
type RetryStrategyFunc func(statusCode int) RetryStrategy

// conservativeMaxAttempts caps re-attempts under ConservativeRetry
// regardless of the configured retry budget.
const conservativeMaxAttempts = 2

// maxBackoff bounds a single wait between attempts.
const maxBackoff = 60 * time.Second

// Client wraps an *http.Client with status-driven retries.
type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	headerParser RateLimitHeaderParser
	strategyFunc RetryStrategyFunc
	log          *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithMaxRetries sets the retry budget for SmartRetry statuses.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseDelay sets the first backoff interval.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

// WithHeaderParser installs a provider-specific rate limit parser.
func WithHeaderParser(parser RateLimitHeaderParser) Option {
	return func(c *Client) {
		c.headerParser = parser
	}
}

// WithRetryStrategy overrides the status code classification.
func WithRetryStrategy(strategyFunc RetryStrategyFunc) Option {
	return func(c *Client) {
		c.strategyFunc = strategyFunc
	}
}

// WithLogger routes retry messages to the given logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New builds a Client. Defaults: 60s transport timeout, 5 retries,
// 2s base delay, DefaultRetryStrategy.
func New(opts ...Option) *Client {
	c := &Client{
		client:       &http.Client{Timeout: 60 * time.Second},
		maxRetries:   5,
		baseDelay:    2 * time.Second,
		strategyFunc: DefaultRetryStrategy,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultRetryStrategy maps rate limiting and overload to SmartRetry,
// transient server failures to ConservativeRetry, and everything else
// (auth failures, bad requests, missing models) to NoRetry.
func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// Do executes the request, retrying retryable statuses within the
// budget. Non-retryable statuses return (resp, nil); the caller reads
// the status and body. When the budget runs out the last response is
// returned together with a *RetryableError so callers can distinguish
// exhaustion from a plain failure. Transport errors return (nil, err)
// without retrying. Waits between attempts honor req.Context().
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("recreate request body for retry: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		strategy := c.strategyFunc(resp.StatusCode)
		if strategy == NoRetry {
			return resp, nil
		}

		var info RateLimitInfo
		if c.headerParser != nil {
			info = c.headerParser(resp.Header)
		}

		budget := c.maxRetries
		if strategy == ConservativeRetry && budget > conservativeMaxAttempts {
			budget = conservativeMaxAttempts
		}
		if attempt >= budget {
			return resp, &RetryableError{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("retry budget (%d) exhausted", budget),
				RetryAfter: c.backoff(strategy, attempt, info),
			}
		}

		delay := c.backoff(strategy, attempt, info)
		c.logRetry(strategy, resp.StatusCode, delay, attempt+1, budget)

		// The connection can only be reused once the body is drained.
		drain(resp)

		if err := wait(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// backoff computes the wait before the next attempt. SmartRetry prefers
// what the provider asked for over guessing.
func (c *Client) backoff(strategy RetryStrategy, attempt int, info RateLimitInfo) time.Duration {
	var delay time.Duration

	switch strategy {
	case SmartRetry:
		switch {
		case info.RetryAfter > 0:
			delay = info.RetryAfter
		case info.ResetTime > 0:
			delay = time.Until(time.Unix(info.ResetTime, 0))
		}
		if delay <= 0 {
			delay = c.baseDelay << attempt
			delay += time.Duration(float64(delay) * 0.1)
		}
	case ConservativeRetry:
		delay = time.Duration(attempt+1) * c.baseDelay
	default:
		return 0
	}

	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

func (c *Client) logRetry(strategy RetryStrategy, status int, delay time.Duration, attempt, budget int) {
	switch strategy {
	case SmartRetry:
		c.log.Warn("Rate limited, backing off",
			"status", status,
			"delay", delay,
			"attempt", fmt.Sprintf("%d/%d", attempt, budget))
	case ConservativeRetry:
		c.log.Debug("Server error, quick retry",
			"status", status,
			"delay", delay,
			"attempt", fmt.Sprintf("%d/%d", attempt, budget))
	}
}

// wait sleeps for d or until ctx is done, whichever comes first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
