package service

import (
	"context"
	"sync"
	"time"

	"wallet_aggregator/internal/app/port"
	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/pkg/metrics"
	"wallet_aggregator/internal/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SnapshotConfig controls the wallet snapshot fan-out.
type SnapshotConfig struct {
	DefaultChains       []entity.Chain
	MaxConcurrentChains int
}

// SnapshotService builds cross-chain wallet snapshots on top of the Router.
type SnapshotService struct {
	router   *Router
	networks port.NetworkDefinitionProvider
	cfg      SnapshotConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewSnapshotService(router *Router, networks port.NetworkDefinitionProvider, cfg SnapshotConfig, logger *zap.Logger) *SnapshotService {
	return &SnapshotService{
		router:   router,
		networks: networks,
		cfg:      cfg,
		logger:   logger.Named("SnapshotService"),
		now:      time.Now,
	}
}

// Snapshot fetches native balance, spam-filtered tokens and the NFT count of address on
// every chain concurrently. Sub-fetch failures only empty their own field; a chain with
// no data at all is left out. An empty chains list falls back to the configured defaults.
func (s *SnapshotService) Snapshot(ctx context.Context, address string, chains []entity.Chain) *entity.WalletSnapshot {
	if len(chains) == 0 {
		chains = s.cfg.DefaultChains
	}
	chains = uniqueChains(chains)

	results := make([]entity.ChainSnapshot, len(chains))
	kept := make([]bool, len(chains))

	var g errgroup.Group
	if s.cfg.MaxConcurrentChains > 0 {
		g.SetLimit(s.cfg.MaxConcurrentChains)
	}
	for i, chain := range chains {
		// Every goroutine returns nil so one chain never cancels its siblings.
		g.Go(func() error {
			cs := s.chainSnapshot(ctx, chain, address)
			if cs.HasData() {
				results[i] = cs
				kept[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	snapshot := &entity.WalletSnapshot{
		Address:   address,
		Chains:    make([]entity.ChainSnapshot, 0, len(chains)),
		UpdatedAt: s.now().UTC(),
	}
	var total float64
	for i := range results {
		if !kept[i] {
			metrics.SnapshotChains.WithLabelValues("dropped").Inc()
			continue
		}
		metrics.SnapshotChains.WithLabelValues("kept").Inc()
		snapshot.Chains = append(snapshot.Chains, results[i])
		total += results[i].BalanceUsd
	}
	snapshot.TotalChains = len(snapshot.Chains)
	snapshot.TotalValueUsd = utils.RoundUsd(total)

	s.logger.Debug("Snapshot built",
		zap.String("address", address),
		zap.Int("requestedChains", len(chains)),
		zap.Int("totalChains", snapshot.TotalChains))
	return snapshot
}

func (s *SnapshotService) chainSnapshot(ctx context.Context, chain entity.Chain, address string) entity.ChainSnapshot {
	cs := entity.ChainSnapshot{Chain: chain}

	var (
		wg     sync.WaitGroup
		native *entity.NativeBalance
		tokens []entity.TokenBalance
		nfts   int
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		bal, err := s.router.NativeBalance(ctx, chain, address)
		if err != nil {
			s.logSubFetch(entity.CapabilityNativeBalance, chain, address, err)
			return
		}
		native = s.priceNative(ctx, chain, bal)
	}()
	go func() {
		defer wg.Done()
		list, err := s.router.TokenBalances(ctx, chain, address, entity.TokenQuery{ExcludeSpam: true})
		if err != nil {
			s.logSubFetch(entity.CapabilityTokenBalances, chain, address, err)
			return
		}
		tokens = withoutSpam(list)
	}()
	go func() {
		defer wg.Done()
		page, err := s.router.NFTs(ctx, chain, address, entity.NFTQuery{Limit: 1, ExcludeSpam: true})
		if err != nil {
			s.logSubFetch(entity.CapabilityNFTs, chain, address, err)
			return
		}
		nfts = page.Total
		if nfts == 0 {
			nfts = len(page.Items)
		}
	}()
	wg.Wait()

	if !native.IsZero() {
		cs.NativeBalance = native
		if native.UsdValue != nil {
			cs.BalanceUsd += *native.UsdValue
		}
	}
	cs.Tokens = tokens
	for _, t := range tokens {
		if t.UsdValue != nil {
			cs.BalanceUsd += *t.UsdValue
		}
	}
	cs.NFTsCount = nfts
	cs.BalanceUsd = utils.RoundUsd(cs.BalanceUsd)
	return cs
}

// priceNative values the native balance through the chain's wrapped native token.
// The returned value is a copy; bal may be shared through the cache.
func (s *SnapshotService) priceNative(ctx context.Context, chain entity.Chain, bal *entity.NativeBalance) *entity.NativeBalance {
	if bal == nil || bal.UsdPrice != nil || bal.IsZero() || s.networks == nil {
		return bal
	}
	def, ok := s.networks.GetNetworkDefinitionByName(string(chain))
	if !ok || def.WrappedNativeTokenAddress == "" {
		return bal
	}
	prices, err := s.router.Prices(ctx, []entity.TokenRef{{Chain: chain, Address: def.WrappedNativeTokenAddress}})
	if err != nil {
		s.logger.Debug("Native price unavailable", zap.String("chain", string(chain)), zap.Error(err))
		return bal
	}
	price, ok := prices[entity.PriceKey(chain, def.WrappedNativeTokenAddress)]
	if !ok {
		return bal
	}
	priced := *bal
	priced.UsdPrice = float64Ptr(price.UsdPrice)
	if amount, ok := utils.ParseBigInt(bal.Balance); ok {
		priced.UsdValue = float64Ptr(utils.UsdValue(amount, bal.Decimals, price.UsdPrice))
	}
	return &priced
}

func (s *SnapshotService) logSubFetch(capability entity.Capability, chain entity.Chain, address string, err error) {
	s.logger.Debug("Snapshot sub-fetch failed",
		zap.String("capability", capability.String()),
		zap.String("chain", string(chain)),
		zap.String("address", address),
		zap.Error(err))
}

// withoutSpam drops tokens flagged as spam by providers that have no server-side filter.
func withoutSpam(tokens []entity.TokenBalance) []entity.TokenBalance {
	out := make([]entity.TokenBalance, 0, len(tokens))
	for _, t := range tokens {
		if !t.PossibleSpam {
			out = append(out, t)
		}
	}
	return out
}

func uniqueChains(chains []entity.Chain) []entity.Chain {
	seen := make(map[entity.Chain]struct{}, len(chains))
	out := make([]entity.Chain, 0, len(chains))
	for _, c := range chains {
		c = entity.NormalizeChain(string(c))
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
