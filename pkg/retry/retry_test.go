package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("conflict")

func fast(opts ...Option) *Retrier {
	return New(append([]Option{WithInitialDelay(0), WithJitter(0)}, opts...)...)
}

func TestDo_SucceedsAfterRetryableFailures(t *testing.T) {
	calls := 0
	err := fast(WithMaxAttempts(5)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errConflict)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	err := fast(WithMaxAttempts(4)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(errConflict)
	})

	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errConflict)
}

func TestDo_NonRetryableReturnedImmediately(t *testing.T) {
	calls := 0
	plain := errors.New("boom")
	err := fast(WithMaxAttempts(4)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return plain
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, plain, err)
}

func TestDo_PermanentUnwrapped(t *testing.T) {
	err := fast(WithRetryIf(func(error) bool { return true })).Do(context.Background(), func(ctx context.Context) error {
		return Permanent(errConflict)
	})
	assert.Same(t, errConflict, err)
}

func TestDo_RetryIfAndOnRetry(t *testing.T) {
	var attempts []int
	r := fast(
		WithMaxAttempts(3),
		WithRetryIf(func(err error) bool { return errors.Is(err, errConflict) }),
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			attempts = append(attempts, attempt)
		}),
	)

	err := r.Do(context.Background(), func(ctx context.Context) error { return errConflict })

	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := fast(WithMaxAttempts(10)).Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return Retryable(errConflict)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, errConflict)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	got, err := DoWithData(context.Background(), fast(), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, Retryable(errConflict)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestCalculateDelay_CappedAtMax(t *testing.T) {
	r := New(
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(time.Second),
		WithMultiplier(10),
		WithJitter(0),
	)

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, time.Second, r.calculateDelay(2))
	assert.Equal(t, time.Second, r.calculateDelay(5))
}

func TestLedgerRetrier(t *testing.T) {
	r := LedgerRetrier(7, func(err error) bool { return errors.Is(err, errConflict) })
	assert.Equal(t, 7, r.MaxAttempts())

	r = r.With(WithMaxAttempts(2))
	assert.Equal(t, 2, r.MaxAttempts())
}

func TestCacheRetrier(t *testing.T) {
	errTimeout := errors.New("i/o timeout")
	r := CacheRetrier(func(err error) bool { return errors.Is(err, errTimeout) })
	assert.Equal(t, 2, r.MaxAttempts())

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return errTimeout
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	errMiss := errors.New("miss")
	err = r.Do(context.Background(), func(context.Context) error {
		calls++
		return errMiss
	})
	assert.ErrorIs(t, err, errMiss)
	assert.Equal(t, 1, calls)
}
