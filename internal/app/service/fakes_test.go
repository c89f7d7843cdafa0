package service

import (
	"context"
	"sync"
	"testing"

	"wallet_aggregator/internal/app/port"
	"wallet_aggregator/internal/app/provider"
	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/infrastructure/memcache"
	"wallet_aggregator/internal/infrastructure/ratelimit"
	"wallet_aggregator/internal/infrastructure/retry"

	"go.uber.org/zap"
)

const testWallet = "0xabc0000000000000000000000000000000000001"

// fakeProvider serves every capability it has a function for and counts calls.
type fakeProvider struct {
	id     string
	chains map[entity.Chain]bool // nil supports every chain
	usd    bool

	native func(chain entity.Chain) (*entity.NativeBalance, error)
	tokens func(chain entity.Chain) ([]entity.TokenBalance, error)
	nfts   func(chain entity.Chain) (*entity.NFTPage, error)
	txs    func(chain entity.Chain) (*entity.TransactionPage, error)
	prices func(refs []entity.TokenRef) (map[string]entity.TokenPrice, error)

	mu    sync.Mutex
	calls map[entity.Capability]int
}

var (
	_ port.NativeBalanceProvider = (*fakeProvider)(nil)
	_ port.TokenBalanceProvider  = (*fakeProvider)(nil)
	_ port.NFTProvider           = (*fakeProvider)(nil)
	_ port.TransactionProvider   = (*fakeProvider)(nil)
	_ port.PriceProvider         = (*fakeProvider)(nil)
)

func (f *fakeProvider) Identity() string { return f.id }

func (f *fakeProvider) IsChainSupported(capability entity.Capability, chain entity.Chain) bool {
	if f.chains != nil && !f.chains[chain] {
		return false
	}
	switch capability {
	case entity.CapabilityNativeBalance:
		return f.native != nil
	case entity.CapabilityTokenBalances:
		return f.tokens != nil
	case entity.CapabilityNFTs:
		return f.nfts != nil
	case entity.CapabilityTransactions:
		return f.txs != nil
	case entity.CapabilityPrices:
		return f.prices != nil
	}
	return false
}

func (f *fakeProvider) ReturnsUSDPrices() bool { return f.usd }

func (f *fakeProvider) count(c entity.Capability) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[entity.Capability]int)
	}
	f.calls[c]++
}

func (f *fakeProvider) Calls(c entity.Capability) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[c]
}

func (f *fakeProvider) GetNativeBalance(_ context.Context, chain entity.Chain, _ string) (*entity.NativeBalance, error) {
	f.count(entity.CapabilityNativeBalance)
	return f.native(chain)
}

func (f *fakeProvider) GetTokenBalances(_ context.Context, chain entity.Chain, _ string, _ entity.TokenQuery) ([]entity.TokenBalance, error) {
	f.count(entity.CapabilityTokenBalances)
	return f.tokens(chain)
}

func (f *fakeProvider) GetNFTs(_ context.Context, chain entity.Chain, _ string, _ entity.NFTQuery) (*entity.NFTPage, error) {
	f.count(entity.CapabilityNFTs)
	return f.nfts(chain)
}

func (f *fakeProvider) GetTransactions(_ context.Context, chain entity.Chain, _ string, _ entity.TxQuery) (*entity.TransactionPage, error) {
	f.count(entity.CapabilityTransactions)
	return f.txs(chain)
}

func (f *fakeProvider) GetTokenPrices(_ context.Context, refs []entity.TokenRef) (map[string]entity.TokenPrice, error) {
	f.count(entity.CapabilityPrices)
	return f.prices(refs)
}

type fakeNetworks struct {
	defs map[entity.Chain]entity.NetworkDefinition
}

func (n fakeNetworks) GetAllNetworkDefinitions() []entity.NetworkDefinition {
	out := make([]entity.NetworkDefinition, 0, len(n.defs))
	for _, d := range n.defs {
		out = append(out, d)
	}
	return out
}

func (n fakeNetworks) GetNetworkDefinitionByName(name string) (entity.NetworkDefinition, bool) {
	d, ok := n.defs[entity.NormalizeChain(name)]
	return d, ok
}

func transientErr(id string) error {
	return entity.NewTransientError(id, 503, context.DeadlineExceeded)
}

func permanentErr(id string) error {
	return entity.NewPermanentError(id, 404, nil)
}

func noRetry() retry.Config {
	return retry.Config{MaxRetries: 0}
}

// allRoutes sends every capability on every chain to ids in order.
func allRoutes(ids ...string) RoutingTable {
	table := RoutingTable{}
	for _, c := range entity.AllCapabilities {
		table[c] = map[string][]string{DefaultRoute: ids}
	}
	return table
}

func newTestRouter(t *testing.T, routing RoutingTable, retryCfg retry.Config, providers ...port.Provider) *Router {
	t.Helper()
	reg := provider.NewRegistry(zap.NewNop())
	reg.MustRegister(providers...)
	limiter := ratelimit.NewRegistry(nil, ratelimit.Budget{}, zap.NewNop())
	return NewRouter(RouterConfig{Routing: routing, Retry: retryCfg}, reg, limiter, memcache.New(1000), zap.NewNop())
}

func ethBalance(raw, formatted string) func(entity.Chain) (*entity.NativeBalance, error) {
	return func(chain entity.Chain) (*entity.NativeBalance, error) {
		return &entity.NativeBalance{
			Chain:            chain,
			Address:          testWallet,
			Symbol:           "ETH",
			Decimals:         18,
			Balance:          raw,
			BalanceFormatted: formatted,
		}, nil
	}
}

func toPorts(fakes []*fakeProvider) []port.Provider {
	out := make([]port.Provider, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}
