package adsb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:        maxRetries,
		InitialDelay:      time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		Multiplier:        2.0,
		RespectRetryAfter: true,
	}
}

// TestRetryWithBackoff tests basic retry logic.
func TestRetryWithBackoff(t *testing.T) {
	t.Run("Success on first attempt", func(t *testing.T) {
		attempts := 0
		err := RetryWithBackoff(context.Background(), DefaultRetryConfig(), func() error {
			attempts++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("Success after retries", func(t *testing.T) {
		attempts := 0
		err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("temporary error")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("Max retries exceeded", func(t *testing.T) {
		attempts := 0
		sentinel := errors.New("persistent error")
		err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
			attempts++
			return sentinel
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel)
		// initial + 3 retries
		assert.Equal(t, 4, attempts)
	})

	t.Run("Context cancellation", func(t *testing.T) {
		attempts := 0
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := RetryWithBackoff(ctx, DefaultRetryConfig(), func() error {
			attempts++
			return errors.New("error")
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})

	t.Run("Context timeout during retry", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		cfg := RetryConfig{
			MaxRetries:   10,
			InitialDelay: time.Second,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
		}

		start := time.Now()
		err := RetryWithBackoff(ctx, cfg, func() error { return errors.New("error") })
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})
}

func TestRetryConfigBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 10*time.Millisecond, cfg.backoff(0))
	assert.Equal(t, 20*time.Millisecond, cfg.backoff(1))
	assert.Equal(t, 40*time.Millisecond, cfg.backoff(2))
	assert.Equal(t, 50*time.Millisecond, cfg.backoff(3), "capped")
}

func TestRetryRespectsRetryAfter(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:        1,
		InitialDelay:      time.Millisecond,
		MaxDelay:          time.Millisecond,
		Multiplier:        2,
		RespectRetryAfter: true,
	}

	attempts := 0
	start := time.Now()
	got, err := RetryWithBackoffResult(context.Background(), cfg, func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, &RateLimitError{Message: "Rate limit exceeded", RetryAfter: 60 * time.Millisecond, Headers: RateLimitHeaders{Limit: 10, Remaining: 0}}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestIsRateLimitError(t *testing.T) {
	rle := &RateLimitError{StatusCode: 429, Message: "Rate limit exceeded", RetryAfter: 5 * time.Second}
	assert.Equal(t, "Rate limit exceeded (retry after 5s)", rle.Error())

	got, ok := IsRateLimitError(errors.Join(errors.New("poll"), rle))
	require.True(t, ok)
	assert.Same(t, rle, got)

	_, ok = IsRateLimitError(errors.New("plain"))
	assert.False(t, ok)
}
