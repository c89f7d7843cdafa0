// Package provider keeps the process-wide set of upstream providers keyed by identity.
package provider

import (
	"fmt"
	"sort"
	"sync"

	"wallet_aggregator/internal/app/port"

	"go.uber.org/zap"
)

// Registry maps a ProviderIdentity to its single instance.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]port.Provider
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		providers: make(map[string]port.Provider),
		logger:    logger.Named("ProviderRegistry"),
	}
}

// Register adds p under its identity. Registering the same identity twice is an error.
func (r *Registry) Register(p port.Provider) error {
	id := p.Identity()
	if id == "" {
		return fmt.Errorf("provider %T has an empty identity", p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider %q already registered", id)
	}
	r.providers[id] = p
	r.logger.Info("Provider registered", zap.String("provider", id))
	return nil
}

// MustRegister is Register for process wiring: it panics on a duplicate identity.
func (r *Registry) MustRegister(providers ...port.Provider) {
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
}

// Get returns the provider registered under identity.
func (r *Registry) Get(identity string) (port.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[identity]
	return p, ok
}

// Identities returns the registered identities sorted by name.
func (r *Registry) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
