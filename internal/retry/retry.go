// Package retry re-runs operations that fail with transient errors, waiting
// delay × attempt between tries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMaxAttemptsExceeded is returned when every attempt failed with a retryable error.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the number of retries after the initial attempt.
	MaxAttempts int
	// Delay is the backoff unit; attempt n waits Delay × n.
	Delay time.Duration
	// IsRetryable decides whether an error is worth another attempt.
	IsRetryable func(error) bool
	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Backoff returns the wait before retry number attempt (1-based).
func Backoff(delay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return delay * time.Duration(attempt)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = func(error) bool { return true }
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := Backoff(cfg.Delay, attempt)
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, wait, lastErr)
			}
			if err := cfg.Sleep(ctx, wait); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !cfg.IsRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("%w after %d retries: %w", ErrMaxAttemptsExceeded, cfg.MaxAttempts, lastErr)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
