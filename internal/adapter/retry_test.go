package adapter

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(max int) RetryConfig {
	return RetryConfig{
		MaxRetries:   max,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		JitterFactor: 0,
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, IsRetryableStatusCode(code), code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		assert.False(t, IsRetryableStatusCode(code), code)
	}
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(context.DeadlineExceeded))
	assert.True(t, IsRetryableError(errors.New("connection reset")))
}

func TestDoWithRetryRecoversAfterTransientFailure(t *testing.T) {
	attempts := 0
	body, err := doWithRetry(context.Background(), fastRetry(2), func() (string, int, error) {
		attempts++
		if attempts < 3 {
			return "", http.StatusServiceUnavailable, nil
		}
		return "ok", http.StatusOK, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, 3, attempts)
}

func TestDoWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	_, err := doWithRetry(context.Background(), fastRetry(2), func() (string, int, error) {
		attempts++
		return "", 0, errors.New("down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoWithRetryStopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	_, err := doWithRetry(context.Background(), fastRetry(5), func() (string, int, error) {
		attempts++
		return "", 0, context.Canceled
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
