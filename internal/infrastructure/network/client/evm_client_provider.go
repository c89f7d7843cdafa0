package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wallet_aggregator/internal/app/port"
	"wallet_aggregator/internal/domain/entity"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	defaultProviderConnectionTimeout = 10 * time.Second
	defaultClientIdleExpiration      = 30 * time.Minute
)

// evmClientProvider dials one client per network and keeps it while it is in use.
// Idle clients expire from the cache and are closed on eviction.
type evmClientProvider struct {
	identity          string
	clients           *cache.Cache
	mu                sync.Mutex
	logger            *zap.Logger
	connectionTimeout time.Duration
	rpcCallTimeout    time.Duration
}

// NewEVMClientProvider creates a new EVMClientProvider.
func NewEVMClientProvider(identity string, rpcCallTimeout time.Duration, logger *zap.Logger) port.BlockchainClientProvider {
	l := logger.Named("EVMClientProvider")
	clients := cache.New(defaultClientIdleExpiration, defaultClientIdleExpiration/2)
	clients.OnEvicted(func(key string, v interface{}) {
		if c, ok := v.(port.BlockchainClient); ok {
			l.Debug("Closing idle EVM client", zap.String("network", key))
			c.Close()
		}
	})
	return &evmClientProvider{
		identity:          identity,
		clients:           clients,
		logger:            l,
		connectionTimeout: defaultProviderConnectionTimeout,
		rpcCallTimeout:    rpcCallTimeout,
	}
}

// GetClient retrieves a blockchain client for the given network definition,
// dialing it on first use. Each access extends the client's idle expiration.
func (p *evmClientProvider) GetClient(ctx context.Context, netDef entity.NetworkDefinition) (port.BlockchainClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	clientKey := string(netDef.Identifier)
	if v, found := p.clients.Get(clientKey); found {
		p.clients.SetDefault(clientKey, v)
		return v.(port.BlockchainClient), nil
	}

	p.logger.Info("Creating new EVM client", zap.String("network", netDef.Name), zap.String("rpcPrimary", netDef.PrimaryRPCURL))
	newClient, err := NewEVMClient(ctx, p.identity, netDef, p.connectionTimeout, p.rpcCallTimeout)
	if err != nil {
		p.logger.Error("Failed to create EVM client", zap.String("network", netDef.Name), zap.Error(err))
		return nil, fmt.Errorf("failed to create EVM client for %s: %w", netDef.Name, err)
	}

	p.clients.SetDefault(clientKey, newClient)
	return newClient, nil
}

// Close closes every cached client.
func (p *evmClientProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.clients.Items() {
		p.clients.Delete(key)
	}
}
