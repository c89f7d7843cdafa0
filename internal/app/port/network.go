package port

import (
	"context"
	"math/big"

	"wallet_aggregator/internal/domain/entity"
)

// BlockchainClient talks to one EVM network over JSON-RPC.
type BlockchainClient interface {
	// GetNativeBalance fetches the native currency balance (e.g., ETH, BNB) for a wallet.
	GetNativeBalance(ctx context.Context, walletAddress string) (*big.Int, error)

	// GetBalances resolves native and ERC-20 balances in a single batch round trip.
	GetBalances(ctx context.Context, items []entity.BalanceRequestItem) ([]entity.BalanceResultItem, error)

	// Definition returns the network definition associated with this client.
	Definition() entity.NetworkDefinition

	Close()
}

// NetworkDefinitionProvider defines the interface for providing network definitions.
type NetworkDefinitionProvider interface {
	// GetAllNetworkDefinitions returns all available network definitions as a slice.
	GetAllNetworkDefinitions() []entity.NetworkDefinition

	// GetNetworkDefinitionByName returns a network definition by name or identifier.
	GetNetworkDefinitionByName(nameOrIdentifier string) (entity.NetworkDefinition, bool)
}

// BlockchainClientProvider hands out dialed clients per network.
type BlockchainClientProvider interface {
	GetClient(ctx context.Context, networkDefinition entity.NetworkDefinition) (BlockchainClient, error)
	Close()
}
