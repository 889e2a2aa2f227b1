package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// retryClient wraps any Client with retry logic.
type retryClient struct {
	inner      Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
}

// wrapWithRetry wraps a client with retry logic. maxRetries counts attempts, so
// 1 (or less) means a single try.
func wrapWithRetry(client Client, maxRetries int) Client {
	if maxRetries <= 1 {
		return client
	}
	return &retryClient{
		inner:      client,
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   30 * time.Second,
		logger:     slog.Default(),
	}
}

func (r *retryClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryableError(err) || attempt == r.maxRetries-1 {
			break
		}

		delay := r.backoffDelay(attempt)
		r.logger.Warn("LLM request failed, retrying",
			"provider", r.inner.Provider(),
			"attempt", attempt+1,
			"max_retries", r.maxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if !isRetryableError(lastErr) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", r.maxRetries, lastErr)
}

func (r *retryClient) Provider() Provider { return r.inner.Provider() }
func (r *retryClient) Close() error       { return r.inner.Close() }

func (r *retryClient) backoffDelay(attempt int) time.Duration {
	delay := r.baseDelay << attempt
	if delay <= 0 || delay > r.maxDelay {
		return r.maxDelay
	}
	return delay
}

// isRetryableError reports whether err is transient: rate limits, server
// errors and network timeouts.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
