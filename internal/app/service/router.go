package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"wallet_aggregator/internal/app/port"
	"wallet_aggregator/internal/app/provider"
	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/infrastructure/memcache"
	"wallet_aggregator/internal/infrastructure/ratelimit"
	"wallet_aggregator/internal/infrastructure/retry"
	"wallet_aggregator/internal/pkg/metrics"
	"wallet_aggregator/internal/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultRoute is the routing table key used when a chain has no explicit entry.
const DefaultRoute = "default"

// RoutingTable maps capability -> chain (or DefaultRoute) -> provider identities in priority order.
// It is loaded once at startup and never mutated.
type RoutingTable map[entity.Capability]map[string][]string

// CachePolicy is the freshness policy of one capability.
type CachePolicy struct {
	Enabled bool
	TTL     time.Duration
}

// DefaultCachePolicies returns the TTLs used when the configuration is silent.
func DefaultCachePolicies() map[entity.Capability]CachePolicy {
	return map[entity.Capability]CachePolicy{
		entity.CapabilityNativeBalance: {Enabled: true, TTL: 30 * time.Second},
		entity.CapabilityTokenBalances: {Enabled: true, TTL: time.Minute},
		entity.CapabilityNFTs:          {Enabled: true, TTL: 5 * time.Minute},
		entity.CapabilityTransactions:  {Enabled: true, TTL: time.Minute},
		entity.CapabilityPrices:        {Enabled: true, TTL: time.Minute},
	}
}

// RouterConfig holds the static routing policy.
type RouterConfig struct {
	Routing RoutingTable
	Cache   map[entity.Capability]CachePolicy
	Retry   retry.Config
}

// Router picks a provider per request, consulting the cache first and falling back
// through the priority list when a provider fails.
type Router struct {
	providers *provider.Registry
	limiter   *ratelimit.Registry
	cache     *memcache.Cache
	routing   RoutingTable
	policies  map[entity.Capability]CachePolicy
	retry     retry.Config
	logger    *zap.Logger
}

// NewRouter creates a Router. A nil Retry.ShouldRetry is replaced by entity.IsRetryable
// so permanent failures move to the next candidate immediately.
func NewRouter(cfg RouterConfig, providers *provider.Registry, limiter *ratelimit.Registry, cache *memcache.Cache, logger *zap.Logger) *Router {
	policies := DefaultCachePolicies()
	for c, p := range cfg.Cache {
		policies[c] = p
	}
	retryCfg := cfg.Retry
	if retryCfg.ShouldRetry == nil {
		retryCfg.ShouldRetry = entity.IsRetryable
	}
	return &Router{
		providers: providers,
		limiter:   limiter,
		cache:     cache,
		routing:   cfg.Routing,
		policies:  policies,
		retry:     retryCfg,
		logger:    logger.Named("ProviderRouter"),
	}
}

// Candidates returns the ordered provider identities configured for (capability, chain).
func (r *Router) Candidates(capability entity.Capability, chain entity.Chain) []string {
	byChain := r.routing[capability]
	list, ok := byChain[string(chain)]
	if !ok {
		list = byChain[DefaultRoute]
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// NativeBalance routes a native balance request.
func (r *Router) NativeBalance(ctx context.Context, chain entity.Chain, address string) (*entity.NativeBalance, error) {
	key := Fingerprint(entity.CapabilityNativeBalance, chain, address, nil)
	bal, _, err := route(ctx, r, entity.CapabilityNativeBalance, chain, key,
		func(p port.Provider) (func(context.Context) (*entity.NativeBalance, error), bool) {
			np, ok := p.(port.NativeBalanceProvider)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context) (*entity.NativeBalance, error) {
				return np.GetNativeBalance(ctx, chain, address)
			}, true
		})
	return bal, err
}

// TokenBalances routes a token balance request. Results from providers that do not
// price tokens are enriched through the Prices route; a failed enrichment leaves prices nil.
func (r *Router) TokenBalances(ctx context.Context, chain entity.Chain, address string, query entity.TokenQuery) ([]entity.TokenBalance, error) {
	key := Fingerprint(entity.CapabilityTokenBalances, chain, address, query.Params())
	tokens, servedBy, err := route(ctx, r, entity.CapabilityTokenBalances, chain, key,
		func(p port.Provider) (func(context.Context) ([]entity.TokenBalance, error), bool) {
			tp, ok := p.(port.TokenBalanceProvider)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context) ([]entity.TokenBalance, error) {
				return tp.GetTokenBalances(ctx, chain, address, query)
			}, true
		})
	if err != nil {
		return nil, err
	}
	if r.returnsUSDPrices(servedBy) {
		return tokens, nil
	}
	return r.enrichTokenPrices(ctx, chain, tokens), nil
}

// NFTs routes an NFT page request.
func (r *Router) NFTs(ctx context.Context, chain entity.Chain, address string, query entity.NFTQuery) (*entity.NFTPage, error) {
	key := Fingerprint(entity.CapabilityNFTs, chain, address, query.Params())
	page, _, err := route(ctx, r, entity.CapabilityNFTs, chain, key,
		func(p port.Provider) (func(context.Context) (*entity.NFTPage, error), bool) {
			np, ok := p.(port.NFTProvider)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context) (*entity.NFTPage, error) {
				return np.GetNFTs(ctx, chain, address, query)
			}, true
		})
	return page, err
}

// Transactions routes a transaction history request.
func (r *Router) Transactions(ctx context.Context, chain entity.Chain, address string, query entity.TxQuery) (*entity.TransactionPage, error) {
	key := Fingerprint(entity.CapabilityTransactions, chain, address, query.Params())
	page, _, err := route(ctx, r, entity.CapabilityTransactions, chain, key,
		func(p port.Provider) (func(context.Context) (*entity.TransactionPage, error), bool) {
			tp, ok := p.(port.TransactionProvider)
			if !ok {
				return nil, false
			}
			return func(ctx context.Context) (*entity.TransactionPage, error) {
				return tp.GetTransactions(ctx, chain, address, query)
			}, true
		})
	return page, err
}

// Prices resolves USD prices keyed by entity.PriceKey. Prices are cached per token,
// so only the misses reach a provider, one route per chain. Unpriced tokens are omitted.
// An error is returned only when nothing could be priced and some chain failed.
func (r *Router) Prices(ctx context.Context, tokens []entity.TokenRef) (map[string]entity.TokenPrice, error) {
	policy := r.policy(entity.CapabilityPrices)
	result := make(map[string]entity.TokenPrice, len(tokens))
	misses := make(map[entity.Chain][]entity.TokenRef)
	seen := make(map[string]struct{}, len(tokens))

	for _, t := range tokens {
		ref := entity.TokenRef{Chain: entity.NormalizeChain(string(t.Chain)), Address: strings.ToLower(t.Address)}
		if _, dup := seen[ref.Key()]; dup {
			continue
		}
		seen[ref.Key()] = struct{}{}
		if policy.Enabled {
			if entry, ok := r.cache.Get(priceFingerprint(ref.Chain, ref.Address), policy.TTL); ok {
				if price, ok := entry.Data.(entity.TokenPrice); ok {
					metrics.CacheLookups.WithLabelValues(entity.CapabilityPrices.String(), "hit").Inc()
					result[ref.Key()] = price
					continue
				}
			}
			metrics.CacheLookups.WithLabelValues(entity.CapabilityPrices.String(), "miss").Inc()
		}
		misses[ref.Chain] = append(misses[ref.Chain], ref)
	}
	if len(misses) == 0 {
		return result, nil
	}

	var (
		mu      sync.Mutex
		lastErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	for chain, refs := range misses {
		g.Go(func() error {
			prices, _, err := route(gctx, r, entity.CapabilityPrices, chain, "",
				func(p port.Provider) (func(context.Context) (map[string]entity.TokenPrice, error), bool) {
					pp, ok := p.(port.PriceProvider)
					if !ok {
						return nil, false
					}
					return func(ctx context.Context) (map[string]entity.TokenPrice, error) {
						return pp.GetTokenPrices(ctx, refs)
					}, true
				})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return nil
			}
			for _, ref := range refs {
				price, ok := prices[ref.Key()]
				if !ok {
					continue
				}
				result[ref.Key()] = price
				if policy.Enabled {
					r.cache.Set(priceFingerprint(ref.Chain, ref.Address), price, price.Source)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(result) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return result, nil
}

func (r *Router) enrichTokenPrices(ctx context.Context, chain entity.Chain, tokens []entity.TokenBalance) []entity.TokenBalance {
	refs := make([]entity.TokenRef, 0, len(tokens))
	for _, t := range tokens {
		if t.UsdPrice == nil && t.TokenAddress != "" {
			refs = append(refs, entity.TokenRef{Chain: chain, Address: t.TokenAddress})
		}
	}
	if len(refs) == 0 {
		return tokens
	}

	prices, err := r.Prices(ctx, refs)
	if err != nil {
		r.logger.Warn("Token price enrichment failed, returning balances without prices",
			zap.String("chain", string(chain)),
			zap.Int("tokens", len(refs)),
			zap.Error(err))
		return tokens
	}

	// The input may be a cached slice shared with other readers.
	out := make([]entity.TokenBalance, len(tokens))
	copy(out, tokens)
	for i := range out {
		if out[i].UsdPrice != nil {
			continue
		}
		price, ok := prices[entity.PriceKey(chain, out[i].TokenAddress)]
		if !ok {
			continue
		}
		out[i].UsdPrice = float64Ptr(price.UsdPrice)
		if amount, ok := utils.ParseBigInt(out[i].Balance); ok {
			out[i].UsdValue = float64Ptr(utils.UsdValue(amount, out[i].Decimals, price.UsdPrice))
		}
	}
	return out
}

func (r *Router) returnsUSDPrices(identity string) bool {
	p, ok := r.providers.Get(identity)
	if !ok {
		return false
	}
	tp, ok := p.(port.TokenBalanceProvider)
	return ok && tp.ReturnsUSDPrices()
}

func (r *Router) policy(capability entity.Capability) CachePolicy {
	return r.policies[capability]
}

func (r *Router) retryFor(identity string, capability entity.Capability, chain entity.Chain) retry.Config {
	cfg := r.retry
	next := cfg.OnRetry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		r.logger.Debug("Retrying provider call",
			zap.String("provider", identity),
			zap.String("capability", capability.String()),
			zap.String("chain", string(chain)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if next != nil {
			next(attempt, delay, err)
		}
	}
	return cfg
}

// route runs the cache check and the candidate walk for one request. bind adapts a
// provider to the capability call, reporting false when the provider does not serve it.
// An empty key disables caching for the call. It returns the value and the identity
// that produced it (the cache provenance on a hit).
func route[T any](
	ctx context.Context,
	r *Router,
	capability entity.Capability,
	chain entity.Chain,
	key string,
	bind func(p port.Provider) (func(context.Context) (T, error), bool),
) (T, string, error) {
	var zero T
	policy := r.policy(capability)
	useCache := policy.Enabled && key != ""

	if useCache {
		if entry, ok := r.cache.Get(key, policy.TTL); ok {
			if v, ok := entry.Data.(T); ok {
				metrics.CacheLookups.WithLabelValues(capability.String(), "hit").Inc()
				r.logger.Debug("Cache hit", zap.String("key", key), zap.String("provider", entry.Provenance))
				return v, entry.Provenance, nil
			}
		}
		metrics.CacheLookups.WithLabelValues(capability.String(), "miss").Inc()
	}

	var (
		attempted []string
		lastErr   error
	)
	for _, id := range r.Candidates(capability, chain) {
		p, ok := r.providers.Get(id)
		if !ok {
			r.logger.Debug("Routed provider is not registered", zap.String("provider", id))
			continue
		}
		if !p.IsChainSupported(capability, chain) {
			continue
		}
		call, ok := bind(p)
		if !ok {
			continue
		}

		attempted = append(attempted, id)
		v, err := callProvider(ctx, r, p, capability, chain, call)
		if err == nil {
			if useCache {
				r.cache.Set(key, v, id)
			}
			return v, id, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, "", fmt.Errorf("%s on %s: %w", capability, chain, ctx.Err())
		}

		r.logger.Warn("Provider failed, trying next candidate",
			zap.String("provider", id),
			zap.String("capability", capability.String()),
			zap.String("chain", string(chain)),
			zap.Error(err))
		metrics.Fallbacks.WithLabelValues(capability.String(), id).Inc()
	}

	r.logger.Error("No provider available",
		zap.String("capability", capability.String()),
		zap.String("chain", string(chain)),
		zap.Strings("attempted", attempted),
		zap.Error(lastErr))
	return zero, "", &entity.NoProviderAvailableError{
		Capability: capability,
		Chain:      chain,
		Attempted:  attempted,
		LastErr:    lastErr,
	}
}

// callProvider runs call under the retry policy. Providers that admit each upstream
// request themselves are not admitted here; every other attempt, retries included,
// spends one token of the provider's budget.
func callProvider[T any](
	ctx context.Context,
	r *Router,
	p port.Provider,
	capability entity.Capability,
	chain entity.Chain,
	call func(context.Context) (T, error),
) (T, error) {
	identity := p.Identity()
	admit := !admitsPerRequest(p)
	return retry.Execute(ctx, r.retryFor(identity, capability, chain), func(ctx context.Context) (T, error) {
		if admit {
			if err := r.limiter.Admit(ctx, identity, 1); err != nil {
				var zero T
				return zero, err
			}
		}
		v, err := call(ctx)
		metrics.UpstreamCalls.WithLabelValues(identity, capability.String(), outcome(err)).Inc()
		return v, err
	})
}

func admitsPerRequest(p port.Provider) bool {
	a, ok := p.(port.RequestAdmitter)
	return ok && a.AdmitsPerRequest()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case entity.IsRetryable(err):
		return "transient"
	default:
		return "permanent"
	}
}

func float64Ptr(v float64) *float64 { return &v }
