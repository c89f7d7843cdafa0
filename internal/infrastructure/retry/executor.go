// Package retry runs a function with deterministic exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config controls the backoff schedule. The delay after attempt i (0-based) is
// min(InitialDelay * BackoffFactor^i, MaxDelay). No jitter is applied.
type Config struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// ShouldRetry filters errors worth another attempt. Nil retries every error.
	ShouldRetry func(error) bool

	// OnRetry is invoked before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns 3 retries starting at 500ms, doubling, capped at 10s.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
	}
}

// Delay returns the sleep applied after the given 0-based attempt.
func (c Config) Delay(attempt int) time.Duration {
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := float64(c.InitialDelay) * math.Pow(factor, float64(attempt))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Execute calls fn up to MaxRetries+1 times and returns the first success.
// On exhaustion it returns the last error from fn. A done ctx aborts the
// backoff sleep and returns the last error wrapped with the context error.
func Execute[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
			return zero, err
		}

		delay := cfg.Delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry aborted after attempt %d: %w (last error: %v)", attempt+1, ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
	return zero, lastErr
}
