package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fast() []Option {
	return []Option{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond), WithJitter(0)}
}

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("temporary"))
		}
		return nil
	}, append(fast(), WithMaxAttempts(5))...)

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPlainError(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return boom
	}, fast()...)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentIsUnwrapped(t *testing.T) {
	boom := errors.New("bad request")
	err := Do(context.Background(), func(ctx context.Context) error {
		return Permanent(boom)
	}, append(fast(), WithRetryIf(func(error) bool { return true }))...)

	assert.Equal(t, boom, err)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	var retried []int
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(errors.New("down"))
	}, append(fast(),
		WithMaxAttempts(3),
		WithOnRetry(func(attempt int, err error, delay time.Duration) { retried = append(retried, attempt) }),
	)...)

	assert.EqualError(t, err, "down")
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	v, err := DoWithData(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestBackoff_Capped(t *testing.T) {
	r := New(WithInitialDelay(10*time.Millisecond), WithMaxDelay(25*time.Millisecond), WithJitter(0))
	assert.Equal(t, 10*time.Millisecond, r.backoff(1))
	assert.Equal(t, 20*time.Millisecond, r.backoff(2))
	assert.Equal(t, 25*time.Millisecond, r.backoff(3))
}
