package networkdefinition

import (
	"sort"

	"wallet_aggregator/internal/domain/entity"

	"go.uber.org/zap"
)

// NetworkDefinitionProvider provides network definitions.
type NetworkDefinitionProvider struct {
	logger            *zap.Logger
	allNetworkDefs    map[entity.Chain]entity.NetworkDefinition
	activeNetworkDefs []entity.NetworkDefinition
}

// Predefined network definitions
var ( //nolint:gochecknoglobals // Global for definitions
	Ethereum = entity.NetworkDefinition{
		ChainID:                   1,
		Name:                      "Ethereum Mainnet",
		Identifier:                "ethereum",
		NativeSymbol:              "ETH",
		Decimals:                  18,
		PrimaryRPCURL:             "https://ethereum-rpc.publicnode.com",
		FallbackRPCURLs:           []string{"https://rpc.ankr.com/eth", "https://ethereum.publicnode.com"},
		BlockExplorerURL:          "https://etherscan.io",
		DEXScreenerChainID:        "ethereum",
		CoinGeckoPlatform:         "ethereum",
		MoralisChain:              "eth",
		AlchemyNetwork:            "eth-mainnet",
		WrappedNativeTokenAddress: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", // WETH
	}
	BSC = entity.NetworkDefinition{
		ChainID:                   56,
		Name:                      "BNB Smart Chain",
		Identifier:                "bsc",
		NativeSymbol:              "BNB",
		Decimals:                  18,
		PrimaryRPCURL:             "https://1rpc.io/bnb",
		FallbackRPCURLs:           []string{"https://bsc-dataseed2.binance.org/", "https://bsc.publicnode.com"},
		BlockExplorerURL:          "https://bscscan.com",
		DEXScreenerChainID:        "bsc",
		CoinGeckoPlatform:         "binance-smart-chain",
		MoralisChain:              "bsc",
		AlchemyNetwork:            "bnb-mainnet",
		WrappedNativeTokenAddress: "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", // WBNB
	}
	Polygon = entity.NetworkDefinition{
		ChainID:                   137,
		Name:                      "Polygon PoS",
		Identifier:                "polygon",
		NativeSymbol:              "POL",
		Decimals:                  18,
		PrimaryRPCURL:             "https://polygon-rpc.com/",
		FallbackRPCURLs:           []string{"https://rpc.ankr.com/polygon", "https://polygon.publicnode.com"},
		BlockExplorerURL:          "https://polygonscan.com",
		DEXScreenerChainID:        "polygon",
		CoinGeckoPlatform:         "polygon-pos",
		MoralisChain:              "polygon",
		AlchemyNetwork:            "polygon-mainnet",
		WrappedNativeTokenAddress: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", // WMATIC
	}
	Arbitrum = entity.NetworkDefinition{
		ChainID:                   42161,
		Name:                      "Arbitrum One",
		Identifier:                "arbitrum",
		NativeSymbol:              "ETH",
		Decimals:                  18,
		PrimaryRPCURL:             "https://arb1.arbitrum.io/rpc",
		FallbackRPCURLs:           []string{"https://arbitrum.llamarpc.com", "https://arbitrum.publicnode.com"},
		BlockExplorerURL:          "https://arbiscan.io",
		DEXScreenerChainID:        "arbitrum",
		CoinGeckoPlatform:         "arbitrum-one",
		MoralisChain:              "arbitrum",
		AlchemyNetwork:            "arb-mainnet",
		WrappedNativeTokenAddress: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", // WETH on Arbitrum
	}
	Avalanche = entity.NetworkDefinition{
		ChainID:                   43114,
		Name:                      "Avalanche C-Chain",
		Identifier:                "avalanche",
		NativeSymbol:              "AVAX",
		Decimals:                  18,
		PrimaryRPCURL:             "https://api.avax.network/ext/bc/C/rpc",
		FallbackRPCURLs:           []string{"https://avalanche.public-rpc.com", "https://rpc.ankr.com/avalanche"},
		BlockExplorerURL:          "https://snowtrace.io",
		DEXScreenerChainID:        "avalanche",
		CoinGeckoPlatform:         "avalanche",
		MoralisChain:              "avalanche",
		AlchemyNetwork:            "avax-mainnet",
		WrappedNativeTokenAddress: "0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7", // WAVAX
	}
	Base = entity.NetworkDefinition{
		ChainID:                   8453,
		Name:                      "Base Mainnet",
		Identifier:                "base",
		NativeSymbol:              "ETH",
		Decimals:                  18,
		PrimaryRPCURL:             "https://1rpc.io/base",
		FallbackRPCURLs:           []string{"https://base.publicnode.com", "https://base.llamarpc.com"},
		BlockExplorerURL:          "https://basescan.org",
		DEXScreenerChainID:        "base",
		CoinGeckoPlatform:         "base",
		MoralisChain:              "base",
		AlchemyNetwork:            "base-mainnet",
		WrappedNativeTokenAddress: "0x4200000000000000000000000000000000000006", // WETH on Base
	}
	Optimism = entity.NetworkDefinition{
		ChainID:                   10,
		Name:                      "OP Mainnet",
		Identifier:                "optimism",
		NativeSymbol:              "ETH",
		Decimals:                  18,
		PrimaryRPCURL:             "https://op-pokt.nodies.app",
		FallbackRPCURLs:           []string{"https://optimism.publicnode.com", "https://rpc.ankr.com/optimism"},
		BlockExplorerURL:          "https://optimistic.etherscan.io",
		DEXScreenerChainID:        "optimism",
		CoinGeckoPlatform:         "optimistic-ethereum",
		MoralisChain:              "optimism",
		AlchemyNetwork:            "opt-mainnet",
		WrappedNativeTokenAddress: "0x4200000000000000000000000000000000000006", // WETH on Optimism
	}
	Fantom = entity.NetworkDefinition{
		ChainID:                   250,
		Name:                      "Fantom Opera",
		Identifier:                "fantom",
		NativeSymbol:              "FTM",
		Decimals:                  18,
		PrimaryRPCURL:             "https://1rpc.io/ftm",
		FallbackRPCURLs:           []string{"https://fantom.publicnode.com", "https://rpc.ankr.com/fantom"},
		BlockExplorerURL:          "https://ftmscan.com",
		DEXScreenerChainID:        "fantom",
		CoinGeckoPlatform:         "fantom",
		MoralisChain:              "fantom",
		WrappedNativeTokenAddress: "0x21be370D5312f44cB42ce377BC9b8a0cEF1A4C83", // WFTM
	}
	Gnosis = entity.NetworkDefinition{
		ChainID:                   100,
		Name:                      "Gnosis Chain",
		Identifier:                "gnosis",
		NativeSymbol:              "xDAI",
		Decimals:                  18,
		PrimaryRPCURL:             "https://0xrpc.io/gno",
		FallbackRPCURLs:           []string{"https://rpc.ankr.com/gnosis", "https://gnosis.publicnode.com"},
		BlockExplorerURL:          "https://gnosisscan.io",
		DEXScreenerChainID:        "gnosischain",
		CoinGeckoPlatform:         "xdai",
		MoralisChain:              "gnosis",
		AlchemyNetwork:            "gnosis-mainnet",
		WrappedNativeTokenAddress: "0xe91D153E0b41518A2Ce8DD3D7944Fa863463A97d", // WXDAI
	}
	Linea = entity.NetworkDefinition{
		ChainID:                   59144,
		Name:                      "Linea Mainnet",
		Identifier:                "linea",
		NativeSymbol:              "ETH",
		Decimals:                  18,
		PrimaryRPCURL:             "https://rpc.linea.build",
		FallbackRPCURLs:           []string{"https://linea.blockpi.network/v1/rpc/public"},
		BlockExplorerURL:          "https://lineascan.build",
		DEXScreenerChainID:        "linea",
		CoinGeckoPlatform:         "linea",
		MoralisChain:              "linea",
		AlchemyNetwork:            "linea-mainnet",
		WrappedNativeTokenAddress: "0xe5D7C2a44FfDDf6b295A15c148167daaAf5Cf34f", // WETH on Linea
	}
	Scroll = entity.NetworkDefinition{
		ChainID:                   534352,
		Name:                      "Scroll",
		Identifier:                "scroll",
		NativeSymbol:              "ETH",
		Decimals:                  18,
		PrimaryRPCURL:             "https://rpc.scroll.io",
		FallbackRPCURLs:           []string{"https://scroll.blockpi.network/v1/rpc/public"},
		BlockExplorerURL:          "https://scrollscan.com",
		DEXScreenerChainID:        "scroll",
		CoinGeckoPlatform:         "scroll",
		AlchemyNetwork:            "scroll-mainnet",
		WrappedNativeTokenAddress: "0x5300000000000000000000000000000000000004", // WETH on Scroll
	}
	ZkSync = entity.NetworkDefinition{ // zkSync Era
		ChainID:                   324,
		Name:                      "zkSync Era Mainnet",
		Identifier:                "zksync",
		NativeSymbol:              "ETH",
		Decimals:                  18,
		PrimaryRPCURL:             "https://mainnet.era.zksync.io",
		BlockExplorerURL:          "https://explorer.zksync.io",
		DEXScreenerChainID:        "zksync",
		CoinGeckoPlatform:         "zksync",
		AlchemyNetwork:            "zksync-mainnet",
		WrappedNativeTokenAddress: "0x5AEa5775959fBC2557Cc8789bC1bf90A239D9a91", // WETH on zkSync Era
	}
)

// allKnownDefinitions is a helper to quickly access all hardcoded definitions.
var allKnownDefinitions = map[entity.Chain]entity.NetworkDefinition{
	Ethereum.Identifier:  Ethereum,
	BSC.Identifier:       BSC,
	Polygon.Identifier:   Polygon,
	Arbitrum.Identifier:  Arbitrum,
	Avalanche.Identifier: Avalanche,
	Base.Identifier:      Base,
	Optimism.Identifier:  Optimism,
	Fantom.Identifier:    Fantom,
	Gnosis.Identifier:    Gnosis,
	Linea.Identifier:     Linea,
	Scroll.Identifier:    Scroll,
	ZkSync.Identifier:    ZkSync,
}

// NewNetworkDefinitionProvider creates a provider whose active set is the given
// chains, or every known chain when none are given. Unknown identifiers are skipped.
// RPC URL overrides replace a chain's primary endpoint.
func NewNetworkDefinitionProvider(logger *zap.Logger, enabled []string, rpcOverrides map[string]string) *NetworkDefinitionProvider {
	p := &NetworkDefinitionProvider{
		logger:            logger.Named("NetworkDefinitionProvider"),
		allNetworkDefs:    make(map[entity.Chain]entity.NetworkDefinition, len(allKnownDefinitions)),
		activeNetworkDefs: make([]entity.NetworkDefinition, 0),
	}
	for id, def := range allKnownDefinitions {
		if url, ok := rpcOverrides[string(id)]; ok && url != "" {
			def.FallbackRPCURLs = append([]string{def.PrimaryRPCURL}, def.FallbackRPCURLs...)
			def.PrimaryRPCURL = url
		}
		p.allNetworkDefs[id] = def
	}

	if len(enabled) == 0 {
		for _, def := range p.allNetworkDefs {
			p.activeNetworkDefs = append(p.activeNetworkDefs, def)
		}
	} else {
		seen := make(map[entity.Chain]struct{}, len(enabled))
		for _, raw := range enabled {
			id := entity.NormalizeChain(raw)
			if _, dup := seen[id]; dup {
				continue
			}
			def, ok := p.allNetworkDefs[id]
			if !ok {
				p.logger.Warn("Unknown network in configuration, skipping", zap.String("network", raw))
				continue
			}
			seen[id] = struct{}{}
			p.activeNetworkDefs = append(p.activeNetworkDefs, def)
		}
	}
	sort.Slice(p.activeNetworkDefs, func(i, j int) bool {
		return p.activeNetworkDefs[i].ChainID < p.activeNetworkDefs[j].ChainID
	})

	p.logger.Info("NetworkDefinitionProvider initialized", zap.Int("activeNetworks", len(p.activeNetworkDefs)))
	for _, netDef := range p.activeNetworkDefs {
		p.logger.Debug("Active network",
			zap.String("name", netDef.Name),
			zap.String("identifier", string(netDef.Identifier)),
			zap.Uint64("chainId", netDef.ChainID))
	}
	return p
}

// GetAllNetworkDefinitions returns the list of active network definitions ordered by chain ID.
func (p *NetworkDefinitionProvider) GetAllNetworkDefinitions() []entity.NetworkDefinition {
	if p == nil {
		return []entity.NetworkDefinition{}
	}
	defsCopy := make([]entity.NetworkDefinition, len(p.activeNetworkDefs))
	copy(defsCopy, p.activeNetworkDefs)
	return defsCopy
}

// GetNetworkDefinitionByName returns an active network definition by its identifier.
func (p *NetworkDefinitionProvider) GetNetworkDefinitionByName(identifier string) (entity.NetworkDefinition, bool) {
	if p == nil {
		return entity.NetworkDefinition{}, false
	}
	id := entity.NormalizeChain(identifier)
	for _, def := range p.activeNetworkDefs {
		if def.Identifier == id {
			return def, true
		}
	}
	return entity.NetworkDefinition{}, false
}

// GetNetworkDefinitionByChainID returns an active network definition by its chain ID.
func (p *NetworkDefinitionProvider) GetNetworkDefinitionByChainID(chainID uint64) (entity.NetworkDefinition, bool) {
	if p == nil {
		return entity.NetworkDefinition{}, false
	}
	for _, def := range p.activeNetworkDefs {
		if def.ChainID == chainID {
			return def, true
		}
	}
	return entity.NetworkDefinition{}, false
}
