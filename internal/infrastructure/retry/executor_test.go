package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_AlwaysFailingIsInvokedMaxRetriesPlusOne(t *testing.T) {
	cfg := Config{MaxRetries: 2, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	var calls []time.Time
	boom := errors.New("boom")
	_, err := Execute(context.Background(), cfg, func(context.Context) (int, error) {
		calls = append(calls, time.Now())
		return 0, boom
	})

	require.ErrorIs(t, err, boom)
	require.Len(t, calls, 3)
	assert.GreaterOrEqual(t, calls[1].Sub(calls[0]), 100*time.Millisecond)
	assert.GreaterOrEqual(t, calls[2].Sub(calls[1]), 200*time.Millisecond)
}

func TestExecute_SurfacesLastError(t *testing.T) {
	cfg := Config{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffFactor: 1}
	n := 0
	_, err := Execute(context.Background(), cfg, func(context.Context) (string, error) {
		n++
		return "", errors.New("attempt " + string(rune('0'+n)))
	})
	require.Error(t, err)
	assert.Equal(t, "attempt 3", err.Error())
}

func TestExecute_SucceedsAfterTransientFailures(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}
	n := 0
	got, err := Execute(context.Background(), cfg, func(context.Context) (string, error) {
		n++
		if n < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, n)
}

func TestExecute_ShouldRetryStopsEarly(t *testing.T) {
	permanent := errors.New("bad request")
	cfg := Config{
		MaxRetries:   5,
		InitialDelay: time.Millisecond,
		ShouldRetry:  func(err error) bool { return !errors.Is(err, permanent) },
	}
	n := 0
	_, err := Execute(context.Background(), cfg, func(context.Context) (int, error) {
		n++
		return 0, permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, n)
}

func TestExecute_ContextCancelDuringBackoff(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialDelay: time.Second, BackoffFactor: 2}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Execute(ctx, cfg, func(context.Context) (int, error) {
		return 0, errors.New("down")
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDelay_CappedAtMax(t *testing.T) {
	cfg := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffFactor: 2}
	assert.Equal(t, 100*time.Millisecond, cfg.Delay(0))
	assert.Equal(t, 200*time.Millisecond, cfg.Delay(1))
	assert.Equal(t, 300*time.Millisecond, cfg.Delay(2))
	assert.Equal(t, 300*time.Millisecond, cfg.Delay(10))
}

func TestExecute_OnRetryHook(t *testing.T) {
	var attempts []int
	cfg := Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		OnRetry:      func(attempt int, _ time.Duration, _ error) { attempts = append(attempts, attempt) },
	}
	_, _ = Execute(context.Background(), cfg, func(context.Context) (int, error) { return 0, errors.New("x") })
	assert.Equal(t, []int{1, 2}, attempts)
}
