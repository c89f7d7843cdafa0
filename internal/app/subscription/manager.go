package subscription

import (
	"sync"

	"go.uber.org/zap"
)

// Manager tracks subscriptions owned by one component so they can be torn down together.
type Manager struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	logger *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		subs:   make(map[string]*Subscription),
		logger: logger.Named("SubscriptionManager"),
	}
}

// Track registers s and returns it.
func (m *Manager) Track(s *Subscription) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s.ID()] = s
	return s
}

// Unsubscribe cancels and forgets the subscription with the given id.
func (m *Manager) Unsubscribe(id string) bool {
	m.mu.Lock()
	s, ok := m.subs[id]
	delete(m.subs, id)
	m.mu.Unlock()
	if ok {
		s.Unsubscribe()
	}
	return ok
}

// Active returns the number of tracked subscriptions still polling.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs {
		if s.IsActive() {
			n++
		}
	}
	return n
}

// Close unsubscribes everything and waits for the polling goroutines to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for id, s := range m.subs {
		subs = append(subs, s)
		delete(m.subs, id)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	for _, s := range subs {
		<-s.Done()
	}
	m.logger.Info("All subscriptions closed", zap.Int("count", len(subs)))
}
