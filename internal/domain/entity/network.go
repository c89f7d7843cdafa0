package entity

// NetworkDefinition holds the static description of a chain and the identifiers
// each upstream provider uses for it. An empty provider field means that provider
// does not cover the chain.
type NetworkDefinition struct {
	ChainID                   uint64   `json:"chainId" yaml:"chainId"`
	Name                      string   `json:"name" yaml:"name"`
	Identifier                Chain    `json:"identifier" yaml:"identifier"`
	NativeSymbol              string   `json:"nativeSymbol" yaml:"nativeSymbol"`
	Decimals                  uint8    `json:"decimals" yaml:"decimals"`
	PrimaryRPCURL             string   `json:"primaryRpcUrl" yaml:"primaryRpcUrl"`
	FallbackRPCURLs           []string `json:"fallbackRpcUrls" yaml:"fallbackRpcUrls"`
	BlockExplorerURL          string   `json:"blockExplorerUrl,omitempty" yaml:"blockExplorerUrl,omitempty"`
	DEXScreenerChainID        string   `json:"dexScreenerChainId,omitempty" yaml:"dexScreenerChainId,omitempty"`
	CoinGeckoPlatform         string   `json:"coinGeckoPlatform,omitempty" yaml:"coinGeckoPlatform,omitempty"`
	MoralisChain              string   `json:"moralisChain,omitempty" yaml:"moralisChain,omitempty"`
	AlchemyNetwork            string   `json:"alchemyNetwork,omitempty" yaml:"alchemyNetwork,omitempty"`
	WrappedNativeTokenAddress string   `json:"wrappedNativeTokenAddress,omitempty" yaml:"wrappedNativeTokenAddress,omitempty"`
}
