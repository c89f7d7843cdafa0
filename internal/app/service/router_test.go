package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/infrastructure/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_CacheHitMakesNoUpstreamCall(t *testing.T) {
	a := &fakeProvider{id: "a", native: ethBalance("1500000000000000000", "1.500000")}
	r := newTestRouter(t, allRoutes("a"), noRetry(), a)
	ctx := context.Background()

	first, err := r.NativeBalance(ctx, "ethereum", testWallet)
	require.NoError(t, err)
	second, err := r.NativeBalance(ctx, "ethereum", testWallet)
	require.NoError(t, err)

	assert.Equal(t, 1, a.Calls(entity.CapabilityNativeBalance))
	assert.Same(t, first, second)
}

func TestRouter_CacheExpiresPerCapabilityTTL(t *testing.T) {
	a := &fakeProvider{id: "a", native: ethBalance("1", "0.000000")}
	r := newTestRouter(t, allRoutes("a"), noRetry(), a)
	r.policies[entity.CapabilityNativeBalance] = CachePolicy{Enabled: true, TTL: 20 * time.Millisecond}

	_, err := r.NativeBalance(context.Background(), "ethereum", testWallet)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = r.NativeBalance(context.Background(), "ethereum", testWallet)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Calls(entity.CapabilityNativeBalance))
}

func TestRouter_DisabledCacheAlwaysCalls(t *testing.T) {
	a := &fakeProvider{id: "a", native: ethBalance("1", "0.000000")}
	r := newTestRouter(t, allRoutes("a"), noRetry(), a)
	r.policies[entity.CapabilityNativeBalance] = CachePolicy{Enabled: false}

	for i := 0; i < 3; i++ {
		_, err := r.NativeBalance(context.Background(), "ethereum", testWallet)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, a.Calls(entity.CapabilityNativeBalance))
}

func TestRouter_FallsBackOnTransientFailure(t *testing.T) {
	a := &fakeProvider{id: "a", native: func(entity.Chain) (*entity.NativeBalance, error) { return nil, transientErr("a") }}
	b := &fakeProvider{id: "b", native: ethBalance("2000000000000000000", "2.000000")}
	r := newTestRouter(t, allRoutes("a", "b"), noRetry(), a, b)

	bal, err := r.NativeBalance(context.Background(), "ethereum", testWallet)
	require.NoError(t, err)
	assert.Equal(t, "2.000000", bal.BalanceFormatted)
	assert.Equal(t, 1, a.Calls(entity.CapabilityNativeBalance))
	assert.Equal(t, 1, b.Calls(entity.CapabilityNativeBalance))
}

func TestRouter_RetriesTransientBeforeFallback(t *testing.T) {
	a := &fakeProvider{id: "a", native: func(entity.Chain) (*entity.NativeBalance, error) { return nil, transientErr("a") }}
	b := &fakeProvider{id: "b", native: ethBalance("1", "0.000000")}
	cfg := retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
	r := newTestRouter(t, allRoutes("a", "b"), cfg, a, b)

	_, err := r.NativeBalance(context.Background(), "ethereum", testWallet)
	require.NoError(t, err)
	assert.Equal(t, 3, a.Calls(entity.CapabilityNativeBalance))
	assert.Equal(t, 1, b.Calls(entity.CapabilityNativeBalance))
}

func TestRouter_PermanentFailureIsNotRetried(t *testing.T) {
	a := &fakeProvider{id: "a", native: func(entity.Chain) (*entity.NativeBalance, error) { return nil, permanentErr("a") }}
	b := &fakeProvider{id: "b", native: ethBalance("1", "0.000000")}
	cfg := retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}
	r := newTestRouter(t, allRoutes("a", "b"), cfg, a, b)

	_, err := r.NativeBalance(context.Background(), "ethereum", testWallet)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Calls(entity.CapabilityNativeBalance))
}

func TestRouter_SkipsUnsupportedChainAndUnknownProviders(t *testing.T) {
	a := &fakeProvider{id: "a", chains: map[entity.Chain]bool{"polygon": true}, native: ethBalance("1", "0.000000")}
	b := &fakeProvider{id: "b", native: ethBalance("1", "0.000000")}
	r := newTestRouter(t, allRoutes("missing", "a", "b"), noRetry(), a, b)

	_, err := r.NativeBalance(context.Background(), "ethereum", testWallet)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Calls(entity.CapabilityNativeBalance))
	assert.Equal(t, 1, b.Calls(entity.CapabilityNativeBalance))
}

func TestRouter_ProviderReportedUnsupportedMovesOn(t *testing.T) {
	a := &fakeProvider{id: "a", native: func(chain entity.Chain) (*entity.NativeBalance, error) {
		return nil, entity.NewUnsupportedChainError("a", entity.CapabilityNativeBalance, chain)
	}}
	b := &fakeProvider{id: "b", native: ethBalance("1", "0.000000")}
	r := newTestRouter(t, allRoutes("a", "b"), retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond}, a, b)

	_, err := r.NativeBalance(context.Background(), "ethereum", testWallet)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Calls(entity.CapabilityNativeBalance))
}

func TestRouter_NoProviderAvailable(t *testing.T) {
	a := &fakeProvider{id: "a", native: func(entity.Chain) (*entity.NativeBalance, error) { return nil, transientErr("a") }}
	b := &fakeProvider{id: "b", native: func(entity.Chain) (*entity.NativeBalance, error) { return nil, permanentErr("b") }}
	r := newTestRouter(t, allRoutes("a", "b"), noRetry(), a, b)

	_, err := r.NativeBalance(context.Background(), "ethereum", testWallet)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrNoProviderAvailable)

	var npe *entity.NoProviderAvailableError
	require.True(t, errors.As(err, &npe))
	assert.Equal(t, entity.CapabilityNativeBalance, npe.Capability)
	assert.Equal(t, entity.Chain("ethereum"), npe.Chain)
	assert.Equal(t, []string{"a", "b"}, npe.Attempted)
	assert.ErrorIs(t, err, entity.ErrPermanentProvider)
}

func TestRouter_ChainSpecificRouteOverridesDefault(t *testing.T) {
	a := &fakeProvider{id: "a", native: ethBalance("1", "0.000000")}
	b := &fakeProvider{id: "b", native: ethBalance("2", "0.000000")}
	routing := RoutingTable{entity.CapabilityNativeBalance: {DefaultRoute: {"a"}, "polygon": {"b", "a"}}}
	r := newTestRouter(t, routing, noRetry(), a, b)

	assert.Equal(t, []string{"b", "a"}, r.Candidates(entity.CapabilityNativeBalance, "polygon"))
	assert.Equal(t, []string{"a"}, r.Candidates(entity.CapabilityNativeBalance, "ethereum"))
	assert.Empty(t, r.Candidates(entity.CapabilityNFTs, "ethereum"))

	bal, err := r.NativeBalance(context.Background(), "polygon", testWallet)
	require.NoError(t, err)
	assert.Equal(t, "2", bal.Balance)
}

func TestRouter_CancelledContextStopsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &fakeProvider{id: "a", native: func(entity.Chain) (*entity.NativeBalance, error) {
		cancel()
		return nil, transientErr("a")
	}}
	b := &fakeProvider{id: "b", native: ethBalance("1", "0.000000")}
	r := newTestRouter(t, allRoutes("a", "b"), noRetry(), a, b)

	_, err := r.NativeBalance(ctx, "ethereum", testWallet)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.Calls(entity.CapabilityNativeBalance))
}

const (
	usdcAddr = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	linkAddr = "0x514910771af9ca656af840dff83e8264ecf986ca"
)

func unpricedTokens(entity.Chain) ([]entity.TokenBalance, error) {
	return []entity.TokenBalance{
		{TokenAddress: usdcAddr, Symbol: "USDC", Decimals: 6, Balance: "2500000", BalanceFormatted: "2.500000"},
		{TokenAddress: linkAddr, Symbol: "LINK", Decimals: 18, Balance: "1000000000000000000", BalanceFormatted: "1.000000"},
	}, nil
}

func TestRouter_EnrichesUnpricedTokens(t *testing.T) {
	tokens := &fakeProvider{id: "rpc", tokens: unpricedTokens}
	prices := &fakeProvider{id: "dex", prices: func(refs []entity.TokenRef) (map[string]entity.TokenPrice, error) {
		return map[string]entity.TokenPrice{
			entity.PriceKey("ethereum", usdcAddr): {Chain: "ethereum", Address: usdcAddr, UsdPrice: 1, Source: "dex"},
		}, nil
	}}
	r := newTestRouter(t, allRoutes("rpc", "dex"), noRetry(), tokens, prices)

	got, err := r.TokenBalances(context.Background(), "ethereum", testWallet, entity.TokenQuery{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].UsdPrice)
	assert.InDelta(t, 1.0, *got[0].UsdPrice, 1e-9)
	assert.InDelta(t, 2.5, *got[0].UsdValue, 1e-9)
	assert.Nil(t, got[1].UsdPrice)

	// Cached balances are re-enriched from the per-token price cache.
	again, err := r.TokenBalances(context.Background(), "ethereum", testWallet, entity.TokenQuery{})
	require.NoError(t, err)
	require.NotNil(t, again[0].UsdPrice)
	assert.Equal(t, 1, tokens.Calls(entity.CapabilityTokenBalances))
	assert.Equal(t, 2, prices.Calls(entity.CapabilityPrices), "only the unpriced LINK is asked for again")
}

func TestRouter_EnrichmentFailureDegradesGracefully(t *testing.T) {
	tokens := &fakeProvider{id: "rpc", tokens: unpricedTokens}
	prices := &fakeProvider{id: "dex", prices: func([]entity.TokenRef) (map[string]entity.TokenPrice, error) {
		return nil, transientErr("dex")
	}}
	r := newTestRouter(t, allRoutes("rpc", "dex"), noRetry(), tokens, prices)

	got, err := r.TokenBalances(context.Background(), "ethereum", testWallet, entity.TokenQuery{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].UsdPrice)
	assert.Nil(t, got[0].UsdValue)
}

func TestRouter_SkipsEnrichmentForPricedProviders(t *testing.T) {
	priced := &fakeProvider{id: "moralis", usd: true, tokens: unpricedTokens}
	prices := &fakeProvider{id: "dex", prices: func([]entity.TokenRef) (map[string]entity.TokenPrice, error) {
		return map[string]entity.TokenPrice{}, nil
	}}
	r := newTestRouter(t, allRoutes("moralis", "dex"), noRetry(), priced, prices)

	_, err := r.TokenBalances(context.Background(), "ethereum", testWallet, entity.TokenQuery{})
	require.NoError(t, err)
	assert.Equal(t, 0, prices.Calls(entity.CapabilityPrices))
}

func TestRouter_PricesCachedPerToken(t *testing.T) {
	dex := &fakeProvider{id: "dex", prices: func(refs []entity.TokenRef) (map[string]entity.TokenPrice, error) {
		out := make(map[string]entity.TokenPrice, len(refs))
		for _, ref := range refs {
			out[ref.Key()] = entity.TokenPrice{Chain: ref.Chain, Address: ref.Address, UsdPrice: 2, Source: "dex"}
		}
		return out, nil
	}}
	r := newTestRouter(t, allRoutes("dex"), noRetry(), dex)
	ctx := context.Background()

	first, err := r.Prices(ctx, []entity.TokenRef{
		{Chain: "ethereum", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
		{Chain: "polygon", Address: linkAddr},
	})
	require.NoError(t, err)
	assert.Len(t, first, 2)
	assert.Equal(t, 2, dex.Calls(entity.CapabilityPrices), "one route per chain")

	second, err := r.Prices(ctx, []entity.TokenRef{{Chain: "ethereum", Address: usdcAddr}, {Chain: "polygon", Address: linkAddr}})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, dex.Calls(entity.CapabilityPrices))
}

func TestRouter_PricesFallBackToSecondProvider(t *testing.T) {
	dex := &fakeProvider{id: "dex", prices: func([]entity.TokenRef) (map[string]entity.TokenPrice, error) {
		return nil, transientErr("dex")
	}}
	cg := &fakeProvider{id: "cg", prices: func(refs []entity.TokenRef) (map[string]entity.TokenPrice, error) {
		return map[string]entity.TokenPrice{refs[0].Key(): {UsdPrice: 7, Source: "cg"}}, nil
	}}
	r := newTestRouter(t, allRoutes("dex", "cg"), noRetry(), dex, cg)

	got, err := r.Prices(context.Background(), []entity.TokenRef{{Chain: "ethereum", Address: usdcAddr}})
	require.NoError(t, err)
	assert.Equal(t, "cg", got[entity.PriceKey("ethereum", usdcAddr)].Source)
}

func TestRouter_PricesAllFail(t *testing.T) {
	dex := &fakeProvider{id: "dex", prices: func([]entity.TokenRef) (map[string]entity.TokenPrice, error) {
		return nil, permanentErr("dex")
	}}
	r := newTestRouter(t, allRoutes("dex"), noRetry(), dex)

	_, err := r.Prices(context.Background(), []entity.TokenRef{{Chain: "ethereum", Address: usdcAddr}})
	assert.ErrorIs(t, err, entity.ErrNoProviderAvailable)

	empty, err := r.Prices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
