package errors

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"pilot/internal/shared/logging"
)

// RetryConfig configures retry behavior. It is a single reusable policy
// object; call sites never inline their own backoff math.
type RetryConfig struct {
	MaxAttempts  int           // retry attempts beyond the first try (default: 3 total tries)
	BaseDelay    time.Duration // base delay for exponential backoff (default: 1s)
	MaxDelay     time.Duration // cap for the backoff delay (default: 8s)
	JitterFactor float64       // ±fraction of randomization (default: 0.25)
}

// DefaultRetryConfig returns the defaults used for LLM calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  2,
		BaseDelay:    1 * time.Second,
		MaxDelay:     8 * time.Second,
		JitterFactor: 0.25,
	}
}

// Backoff returns the delay before retry number attempt (0-based).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	base := c.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	maxDelay := c.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 8 * time.Second
	}

	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}
	if c.JitterFactor > 0 {
		jitter := float64(delay) * c.JitterFactor
		delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
		if delay < 0 {
			delay = base
		}
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return delay
}

// RetryWithResult executes fn with exponential backoff until it succeeds,
// returns a non-transient error, or attempts are exhausted. onRetry, when
// non-nil, is called before each re-attempt with the 1-based attempt number.
func RetryWithResult[T any](
	ctx context.Context,
	config RetryConfig,
	fn func(ctx context.Context) (T, error),
	logger logging.Logger,
	onRetry func(attempt, maxAttempts int),
) (T, error) {
	logger = logging.OrNop(logger)

	var lastErr error
	var zero T

	for attempt := 0; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, Wrap(KindAborted, fmt.Errorf("context cancelled: %w", ctx.Err()))
		default:
		}

		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, config.MaxAttempts)
			}
			logger.Debug("retrying (attempt %d/%d)", attempt+1, config.MaxAttempts+1)
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("retry succeeded after %d attempts", attempt+1)
			}
			return result, nil
		}

		lastErr = err
		logger.Debug("attempt %d failed: %v", attempt+1, err)

		if !IsTransient(err) {
			return zero, err
		}
		if attempt == config.MaxAttempts {
			logger.Warn("max retries (%d) exhausted", config.MaxAttempts+1)
			break
		}

		delay := config.Backoff(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, Wrap(KindAborted, fmt.Errorf("context cancelled during retry: %w", ctx.Err()))
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}
