package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func recordSleeps(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestDoLinearBackoff(t *testing.T) {
	var waits []time.Duration
	calls := 0
	err := Do(context.Background(), Config{
		MaxAttempts: 3,
		Delay:       2 * time.Second,
		Sleep:       recordSleeps(&waits),
	}, func(context.Context) error {
		calls++
		return errTransient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}, waits)
}

func TestDoSucceedsAfterRetry(t *testing.T) {
	var waits []time.Duration
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, Delay: time.Second, Sleep: recordSleeps(&waits)},
		func(context.Context) error {
			calls++
			if calls < 2 {
				return errTransient
			}
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, waits, 1)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("forbidden")
	calls := 0
	err := Do(context.Background(), Config{
		MaxAttempts: 3,
		IsRetryable: func(err error) bool { return !errors.Is(err, permanent) },
	}, func(context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.NotErrorIs(t, err, ErrMaxAttemptsExceeded)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, Config{MaxAttempts: 3, Delay: time.Hour}, func(context.Context) error {
		return errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, Backoff(5*time.Second, 1))
	assert.Equal(t, 15*time.Second, Backoff(5*time.Second, 3))
	assert.Equal(t, 5*time.Second, Backoff(5*time.Second, 0))
}
