package port

import "wallet_aggregator/internal/domain/entity"

// TokenProvider defines the interface for fetching token watch lists.
type TokenProvider interface {
	// GetTokensByNetwork returns the watched tokens of each network, keyed by chain identifier.
	GetTokensByNetwork(networkDefs []entity.NetworkDefinition) (map[entity.Chain][]entity.TokenInfo, error)
}
