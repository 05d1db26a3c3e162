package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig defines retry behavior for adapter HTTP calls.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries)
	MaxRetries int
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries
	MaxDelay time.Duration
	// Multiplier grows the delay after each retry
	Multiplier float64
	// JitterFactor adds randomness to delays (0.0-1.0)
	JitterFactor float64
}

// DefaultRetryConfig returns sensible defaults for adapter retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// IsRetryableStatusCode reports whether an HTTP status warrants a retry.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsRetryableError reports whether an error warrants a retry. Context
// cancellation and deadline expiry never do.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// doWithRetry executes fn with exponential backoff and jitter. fn returns
// the response body and an optional HTTP status for retry classification.
func doWithRetry(ctx context.Context, cfg RetryConfig, fn func() (string, int, error)) (string, error) {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return "", fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			}
			return "", ctx.Err()
		default:
		}

		body, status, err := fn()
		if err == nil && !IsRetryableStatusCode(status) {
			return body, nil
		}

		if err != nil {
			lastErr = err
			if !IsRetryableError(err) {
				return "", err
			}
		} else {
			lastErr = fmt.Errorf("HTTP %d: retryable server error", status)
		}

		if attempt == cfg.MaxRetries {
			break
		}

		jitter := time.Duration(float64(delay) * cfg.JitterFactor * rand.Float64())
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay + jitter):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return "", fmt.Errorf("all %d attempts failed: %w", cfg.MaxRetries+1, lastErr)
}
