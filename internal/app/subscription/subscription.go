// Package subscription polls a fetch function on an interval and hands results to a callback.
package subscription

import (
	"context"
	"sync"
	"time"

	"wallet_aggregator/internal/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Subscription.
type State int

const (
	// Active subscriptions keep polling.
	Active State = iota
	// Stopped subscriptions gave up after MaxRetries consecutive failures without AutoReconnect.
	Stopped
	// Unsubscribed subscriptions were cancelled by their owner.
	Unsubscribed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Stopped:
		return "stopped"
	case Unsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

// Options controls the polling loop.
type Options struct {
	Interval time.Duration
	// AutoReconnect keeps polling past MaxRetries consecutive failures.
	AutoReconnect bool
	MaxRetries    int
}

// DefaultOptions polls every 30s and stops after 3 consecutive failures.
func DefaultOptions() Options {
	return Options{Interval: 30 * time.Second, MaxRetries: 3}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger

	// deliverMu is held while the callback runs, so Unsubscribe can wait for an in-flight delivery.
	deliverMu sync.Mutex
	mu        sync.Mutex
	state     State
}

// Subscribe starts polling fetch. The first fetch runs immediately, later ones every
// opts.Interval after the previous one finished. On success callback gets the data; on
// failure it gets the zero value and the error. The callback runs on the polling goroutine
// and must not call Unsubscribe synchronously.
func Subscribe[T any](ctx context.Context, fetch func(ctx context.Context) (T, error), callback func(data T, err error), opts Options, logger *zap.Logger) *Subscription {
	if opts.Interval <= 0 {
		opts.Interval = DefaultOptions().Interval
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
		state:  Active,
	}
	s.logger = logger.Named("Subscription").With(zap.String("subscriptionID", s.id))

	metrics.ActiveSubscriptions.Inc()
	go run(ctx, s, fetch, callback, opts)
	return s
}

func run[T any](ctx context.Context, s *Subscription, fetch func(ctx context.Context) (T, error), callback func(T, error), opts Options) {
	defer close(s.done)
	defer metrics.ActiveSubscriptions.Dec()

	timer := time.NewTimer(0)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		data, err := fetch(ctx)
		if err != nil {
			var zero T
			data = zero
		}
		if !s.deliver(func() { callback(data, err) }) {
			return
		}

		if err == nil {
			failures = 0
		} else {
			failures++
			s.logger.Warn("Subscription fetch failed",
				zap.Int("consecutiveFailures", failures),
				zap.Error(err))
			if failures >= opts.MaxRetries && !opts.AutoReconnect {
				s.stop()
				return
			}
		}
		timer.Reset(opts.Interval)
	}
}

// deliver runs fn unless the subscription left the Active state. Results of a fetch that
// was in flight while Unsubscribe ran are discarded here.
func (s *Subscription) deliver(fn func()) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if !s.IsActive() {
		return false
	}
	fn()
	return true
}

func (s *Subscription) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Active {
		s.state = Stopped
		s.logger.Info("Subscription stopped after repeated failures")
	}
	s.cancel()
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string { return s.id }

// Unsubscribe halts all future polling. No callback runs after it returns. It is idempotent.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.state != Unsubscribed {
		s.state = Unsubscribed
		s.logger.Debug("Unsubscribed")
	}
	s.mu.Unlock()
	s.cancel()

	// Wait for a callback that is already running.
	s.deliverMu.Lock()
	s.deliverMu.Unlock()
}

// IsActive reports whether the subscription is still polling.
func (s *Subscription) IsActive() bool {
	return s.State() == Active
}

func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the polling goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }
