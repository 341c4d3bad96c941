package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, JitterFactor: 0.25}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", NewTransientError(errors.New("flaky"), "flaky")
		}
		return "done", nil
	}, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	_, err := RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, NewPermanentError(errors.New("bad request"), "bad request")
	}, nil, nil)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	_, err := RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, NewTransientError(errors.New("always down"), "always down")
	}, nil, nil)

	require.Error(t, err)
	assert.Equal(t, 3, attempts, "one initial try plus MaxAttempts retries")
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestRetryInvokesOnRetryCallback(t *testing.T) {
	var seen []int
	_, _ = RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (int, error) {
		return 0, NewTransientError(errors.New("down"), "down")
	}, nil, func(attempt, maxAttempts int) {
		seen = append(seen, attempt)
		assert.Equal(t, 2, maxAttempts)
	})

	assert.Equal(t, []int{1, 2}, seen)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RetryWithResult(ctx, fastRetryConfig(), func(ctx context.Context) (int, error) {
		t.Fatal("fn must not run with a cancelled context")
		return 0, nil
	}, nil, nil)

	require.Error(t, err)
	assert.True(t, HasKind(err, KindAborted))
}

func TestBackoffIsExponentialAndCapped(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 8 * time.Second}

	assert.Equal(t, time.Second, cfg.Backoff(0))
	assert.Equal(t, 2*time.Second, cfg.Backoff(1))
	assert.Equal(t, 4*time.Second, cfg.Backoff(2))
	assert.Equal(t, 8*time.Second, cfg.Backoff(3))
	assert.Equal(t, 8*time.Second, cfg.Backoff(10), "cap holds for any attempt")
}

func TestBackoffJitterStaysWithinBounds(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 8 * time.Second, JitterFactor: 0.25}
	for i := 0; i < 100; i++ {
		d := cfg.Backoff(1) // nominal 2s, jitter ±0.5s
		assert.GreaterOrEqual(t, d, 1500*time.Millisecond)
		assert.LessOrEqual(t, d, 2500*time.Millisecond)
	}
}
