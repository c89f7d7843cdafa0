// Package ratelimit enforces a request budget per upstream provider identity.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Budget is the token-bucket configuration for one provider.
// RequestsPerSecond <= 0 disables limiting for that provider.
type Budget struct {
	RequestsPerSecond float64
	BurstSize         int
}

// Registry owns exactly one token bucket per provider identity for the process lifetime.
// Buckets start full. Throttling one identity never blocks callers of another.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	budgets  map[string]Budget
	fallback Budget
	logger   *zap.Logger

	// observe is called with the time spent waiting for each admission.
	observe func(identity string, waited time.Duration)
}

// NewRegistry creates a registry. Identities without an explicit budget use fallback.
func NewRegistry(budgets map[string]Budget, fallback Budget, logger *zap.Logger) *Registry {
	b := make(map[string]Budget, len(budgets))
	for id, budget := range budgets {
		b[id] = budget
	}
	return &Registry{
		limiters: make(map[string]*rate.Limiter),
		budgets:  b,
		fallback: fallback,
		logger:   logger.Named("RateLimiter"),
	}
}

// OnWait registers a hook receiving every admission's wait duration.
func (r *Registry) OnWait(fn func(identity string, waited time.Duration)) {
	r.mu.Lock()
	r.observe = fn
	r.mu.Unlock()
}

// Admit blocks until cost tokens are available in identity's bucket and debits them.
// It returns early with the context error if ctx is done first.
func (r *Registry) Admit(ctx context.Context, identity string, cost int) error {
	if cost <= 0 {
		cost = 1
	}
	lim, observe := r.limiterFor(identity)

	if lim.Limit() != rate.Inf && cost > lim.Burst() {
		return fmt.Errorf("admit %s: cost %d exceeds burst size %d", identity, cost, lim.Burst())
	}

	start := time.Now()
	if err := lim.WaitN(ctx, cost); err != nil {
		return fmt.Errorf("admit %s: %w", identity, err)
	}
	waited := time.Since(start)
	if waited > time.Millisecond {
		r.logger.Debug("Admission delayed by rate limit",
			zap.String("provider", identity),
			zap.Duration("waited", waited))
	}
	if observe != nil {
		observe(identity, waited)
	}
	return nil
}

// Admitter binds identity to a single-request admission, the hook transports call
// before every upstream request.
func (r *Registry) Admitter(identity string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return r.Admit(ctx, identity, 1)
	}
}

// Tokens reports the tokens currently available for identity (for diagnostics and tests).
func (r *Registry) Tokens(identity string) float64 {
	lim, _ := r.limiterFor(identity)
	return lim.Tokens()
}

func (r *Registry) limiterFor(identity string) (*rate.Limiter, func(string, time.Duration)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.limiters[identity]; ok {
		return lim, r.observe
	}

	budget, ok := r.budgets[identity]
	if !ok {
		budget = r.fallback
	}
	lim := newLimiter(budget)
	r.limiters[identity] = lim
	r.logger.Debug("Created token bucket",
		zap.String("provider", identity),
		zap.Float64("requestsPerSecond", budget.RequestsPerSecond),
		zap.Int("burstSize", budget.BurstSize))
	return lim, r.observe
}

func newLimiter(b Budget) *rate.Limiter {
	if b.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := b.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(b.RequestsPerSecond), burst)
}
