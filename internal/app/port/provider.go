package port

import (
	"context"

	"wallet_aggregator/internal/domain/entity"
)

// Provider is an upstream data source. Identity is the stable name used for rate
// limiting, cache provenance and metrics. IsChainSupported is a pure static lookup.
type Provider interface {
	Identity() string
	IsChainSupported(capability entity.Capability, chain entity.Chain) bool
}

// RequestAdmitter is implemented by providers whose transport admits each upstream
// request through the rate limiter itself. The router does not admit calls to them
// again.
type RequestAdmitter interface {
	AdmitsPerRequest() bool
}

// NativeBalanceProvider serves entity.CapabilityNativeBalance.
type NativeBalanceProvider interface {
	Provider
	GetNativeBalance(ctx context.Context, chain entity.Chain, address string) (*entity.NativeBalance, error)
}

// TokenBalanceProvider serves entity.CapabilityTokenBalances.
type TokenBalanceProvider interface {
	Provider
	GetTokenBalances(ctx context.Context, chain entity.Chain, address string, query entity.TokenQuery) ([]entity.TokenBalance, error)
	// ReturnsUSDPrices reports whether balances come back already priced.
	ReturnsUSDPrices() bool
}

// NFTProvider serves entity.CapabilityNFTs.
type NFTProvider interface {
	Provider
	GetNFTs(ctx context.Context, chain entity.Chain, address string, query entity.NFTQuery) (*entity.NFTPage, error)
}

// TransactionProvider serves entity.CapabilityTransactions.
type TransactionProvider interface {
	Provider
	GetTransactions(ctx context.Context, chain entity.Chain, address string, query entity.TxQuery) (*entity.TransactionPage, error)
}

// PriceProvider serves entity.CapabilityPrices. The result is keyed by entity.PriceKey; tokens
// the provider could not price are omitted rather than failing the call.
type PriceProvider interface {
	Provider
	GetTokenPrices(ctx context.Context, tokens []entity.TokenRef) (map[string]entity.TokenPrice, error)
}
