package service

import (
	"context"
	"strings"
	"testing"

	"wallet_aggregator/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const wethAddr = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"

var testNetworks = fakeNetworks{defs: map[entity.Chain]entity.NetworkDefinition{
	"ethereum": {ChainID: 1, Identifier: "ethereum", NativeSymbol: "ETH", Decimals: 18, WrappedNativeTokenAddress: wethAddr},
	"polygon":  {ChainID: 137, Identifier: "polygon", NativeSymbol: "POL", Decimals: 18},
}}

func newTestAggregator(t *testing.T, routing RoutingTable, providers ...*fakeProvider) *Aggregator {
	t.Helper()
	r := newTestRouter(t, routing, noRetry(), toPorts(providers)...)
	snaps := NewSnapshotService(r, testNetworks, SnapshotConfig{DefaultChains: []entity.Chain{"ethereum", "polygon"}, MaxConcurrentChains: 4}, zap.NewNop())
	return NewAggregator(r, snaps, zap.NewNop())
}

func failing(id string) *fakeProvider {
	return &fakeProvider{
		id:     id,
		native: func(entity.Chain) (*entity.NativeBalance, error) { return nil, transientErr(id) },
		tokens: func(entity.Chain) ([]entity.TokenBalance, error) { return nil, transientErr(id) },
		nfts:   func(entity.Chain) (*entity.NFTPage, error) { return nil, transientErr(id) },
	}
}

func TestSnapshot_DropsChainsWithoutData(t *testing.T) {
	// Chain X fails on every sub-fetch, chain Y only has a native balance.
	p := &fakeProvider{
		id: "p",
		native: func(chain entity.Chain) (*entity.NativeBalance, error) {
			if chain == "chainx" {
				return nil, transientErr("p")
			}
			return ethBalance("1000000000000000000", "1.000000")(chain)
		},
		tokens: func(chain entity.Chain) ([]entity.TokenBalance, error) {
			if chain == "chainx" {
				return nil, transientErr("p")
			}
			return nil, nil
		},
		nfts: func(chain entity.Chain) (*entity.NFTPage, error) {
			if chain == "chainx" {
				return nil, permanentErr("p")
			}
			return &entity.NFTPage{}, nil
		},
	}
	agg := newTestAggregator(t, allRoutes("p"), p)

	snap, err := agg.GetSnapshot(context.Background(), testWallet, []string{"chainx", "chainy"})
	require.NoError(t, err)
	require.Len(t, snap.Chains, 1)
	assert.Equal(t, 1, snap.TotalChains)
	assert.Equal(t, entity.Chain("chainy"), snap.Chains[0].Chain)
	assert.Equal(t, "1.000000", snap.Chains[0].NativeBalance.BalanceFormatted)
}

func TestSnapshot_ZeroNativeOnlyChainIsDropped(t *testing.T) {
	p := &fakeProvider{
		id:     "p",
		native: ethBalance("0", "0.000000"),
		tokens: func(entity.Chain) ([]entity.TokenBalance, error) { return nil, nil },
		nfts:   func(entity.Chain) (*entity.NFTPage, error) { return &entity.NFTPage{Total: 0}, nil },
	}
	agg := newTestAggregator(t, allRoutes("p"), p)

	snap, err := agg.GetSnapshot(context.Background(), testWallet, []string{"ethereum"})
	require.NoError(t, err)
	assert.Equal(t, 0, snap.TotalChains)
	assert.Empty(t, snap.Chains)
	assert.Zero(t, snap.TotalValueUsd)
}

func TestSnapshot_EndToEndWithOneChainDown(t *testing.T) {
	eth := &fakeProvider{
		id:     "eth-only",
		chains: map[entity.Chain]bool{"ethereum": true},
		native: ethBalance("1500000000000000000", "1.500000"),
		tokens: func(entity.Chain) ([]entity.TokenBalance, error) { return []entity.TokenBalance{}, nil },
		nfts:   func(entity.Chain) (*entity.NFTPage, error) { return &entity.NFTPage{}, nil },
	}
	down := failing("polygon-down")
	down.chains = map[entity.Chain]bool{"polygon": true}
	agg := newTestAggregator(t, allRoutes("eth-only", "polygon-down"), eth, down)

	address := "0xABC0000000000000000000000000000000000001"
	snap, err := agg.GetSnapshot(context.Background(), address, []string{"ethereum", "polygon"})
	require.NoError(t, err)
	require.Equal(t, 1, snap.TotalChains)
	require.Len(t, snap.Chains, 1)

	cs := snap.Chains[0]
	assert.Equal(t, entity.Chain("ethereum"), cs.Chain)
	require.NotNil(t, cs.NativeBalance)
	assert.Equal(t, "1.500000", cs.NativeBalance.BalanceFormatted)
	assert.Equal(t, "ETH", cs.NativeBalance.Symbol)
	assert.Equal(t, strings.ToLower(address), snap.Address)

	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"total_chains":1`)
	assert.Contains(t, string(body), `"balance_formatted":"1.500000"`)
}

func TestSnapshot_ValuesNativeAndTokens(t *testing.T) {
	p := &fakeProvider{
		id:     "p",
		native: ethBalance("2000000000000000000", "2.000000"),
		tokens: func(entity.Chain) ([]entity.TokenBalance, error) {
			return []entity.TokenBalance{
				{TokenAddress: usdcAddr, Symbol: "USDC", Decimals: 6, Balance: "2500000", BalanceFormatted: "2.500000"},
				{TokenAddress: linkAddr, Symbol: "SCAM", Decimals: 18, Balance: "1", PossibleSpam: true},
			}, nil
		},
		nfts: func(entity.Chain) (*entity.NFTPage, error) {
			return &entity.NFTPage{Total: 12, Items: []entity.NFT{{TokenID: "1"}}}, nil
		},
		prices: func(refs []entity.TokenRef) (map[string]entity.TokenPrice, error) {
			out := map[string]entity.TokenPrice{}
			for _, ref := range refs {
				switch ref.Address {
				case wethAddr:
					out[ref.Key()] = entity.TokenPrice{UsdPrice: 3000, Source: "p"}
				case usdcAddr:
					out[ref.Key()] = entity.TokenPrice{UsdPrice: 1, Source: "p"}
				}
			}
			return out, nil
		},
	}
	agg := newTestAggregator(t, allRoutes("p"), p)

	snap, err := agg.GetSnapshot(context.Background(), testWallet, []string{"ethereum"})
	require.NoError(t, err)
	require.Len(t, snap.Chains, 1)

	cs := snap.Chains[0]
	assert.Equal(t, 12, cs.NFTsCount)
	require.Len(t, cs.Tokens, 1, "spam is filtered")
	require.NotNil(t, cs.NativeBalance.UsdValue)
	assert.InDelta(t, 6000, *cs.NativeBalance.UsdValue, 1e-6)
	assert.InDelta(t, 6002.5, cs.BalanceUsd, 1e-6)
	assert.InDelta(t, 6002.5, snap.TotalValueUsd, 1e-6)
}

func TestSnapshot_DefaultChainsAndDeduplication(t *testing.T) {
	p := &fakeProvider{id: "p", native: ethBalance("1", "0.000000")}
	agg := newTestAggregator(t, allRoutes("p"), p)

	snap, err := agg.GetSnapshot(context.Background(), testWallet, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalChains)
	assert.Equal(t, 2, p.Calls(entity.CapabilityNativeBalance))

	snap, err = agg.GetSnapshot(context.Background(), testWallet, []string{"Ethereum", "ethereum", " "})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalChains)
}
