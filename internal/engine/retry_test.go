package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

// A non-retryable error (one not matching RetryableErrors) stops the loop
// immediately instead of burning through MaxAttempts.
func TestRetry_NonRetryableErrorStopsImmediately(t *testing.T) {
	sentinel := errors.New("sentinel")
	other := errors.New("different failure")
	calls := 0
	cfg := &RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, RetryableErrors: []error{sentinel}}

	err := Retry(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		return other
	})
	assert.ErrorIs(t, err, other)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesUpToMaxAttemptsThenFails(t *testing.T) {
	failure := errors.New("transient")
	calls := 0
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

	err := Retry(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		return failure
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 3, calls)
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

	err := Retry(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

// A cancelled context pre-empts the retry loop, so a workflow-level
// cancel stops a node that's stuck retrying instead of waiting it out.
func TestRetry_ContextCancellationStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond, BackoffFactor: 1}

	calls := 0
	err := Retry(ctx, cfg, func(ctx context.Context, attempt int) error {
		calls++
		if calls == 1 {
			cancel()
		}
		return errors.New("still failing")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 2)
}

func TestCalculateDelay_RespectsMaxDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: time.Second, MaxDelay: 2 * time.Second, BackoffFactor: 10, JitterFactor: 0}
	delay := calculateDelay(cfg, 5)
	assert.Equal(t, 2*time.Second, delay)
}

func TestRetryableError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	wrapped := &RetryableError{Err: inner}
	assert.ErrorIs(t, wrapped, inner)
	assert.Contains(t, wrapped.Error(), "root cause")
}
