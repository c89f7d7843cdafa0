// Package dexscreener prices tokens from DEX Screener pair data.
package dexscreener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"wallet_aggregator/internal/app/port"
	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/infrastructure/httpclient"
	"wallet_aggregator/internal/infrastructure/provider/support"
	"wallet_aggregator/internal/pkg/utils"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Identity is the provider name used for rate limiting, cache provenance and metrics.
const Identity = "dexscreener"

const (
	DefaultBaseURL             = "https://api.dexscreener.com"
	DefaultMaxTokensPerRequest = 30
)

var stablecoinSymbols = map[string]struct{}{
	"USDC":   {},
	"USDT":   {},
	"DAI":    {},
	"USDC.E": {},
	"BUSD":   {},
}

// Config configures the DEX Screener provider.
type Config struct {
	BaseURL             string
	Timeout             time.Duration
	MaxTokensPerRequest int

	// Admit is called before every upstream request; nil disables per-request admission.
	Admit func(ctx context.Context) error
}

// Provider implements port.PriceProvider.
type Provider struct {
	http                *httpclient.Client
	support             support.Table
	maxTokensPerRequest int
	logger              *zap.Logger
}

var (
	_ port.PriceProvider   = (*Provider)(nil)
	_ port.RequestAdmitter = (*Provider)(nil)
)

// New creates the provider for every definition that has a DEX Screener chain id.
func New(cfg Config, defs []entity.NetworkDefinition, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	maxTokens := cfg.MaxTokensPerRequest
	if maxTokens <= 0 || maxTokens > DefaultMaxTokensPerRequest {
		maxTokens = DefaultMaxTokensPerRequest
	}
	return &Provider{
		http: httpclient.New(httpclient.Options{
			Provider: Identity,
			BaseURL:  baseURL,
			Timeout:  cfg.Timeout,
			Admit:    cfg.Admit,
		}, logger),
		support: support.NewTable(Identity, defs,
			func(d entity.NetworkDefinition) bool { return d.DEXScreenerChainID != "" },
			entity.CapabilityPrices),
		maxTokensPerRequest: maxTokens,
		logger:              logger.Named("DEXScreenerProvider"),
	}
}

func (p *Provider) Identity() string { return Identity }

// AdmitsPerRequest reports whether each upstream request spends rate budget on its own.
func (p *Provider) AdmitsPerRequest() bool { return p.http.AdmitsPerRequest() }

func (p *Provider) IsChainSupported(capability entity.Capability, chain entity.Chain) bool {
	return p.support.Supports(capability, chain)
}

// GetTokenPrices groups tokens by chain, queries them in batches and keeps the best
// pair per token. Unpriced tokens are omitted. The call fails only when no batch succeeded.
func (p *Provider) GetTokenPrices(ctx context.Context, tokens []entity.TokenRef) (map[string]entity.TokenPrice, error) {
	byChain := make(map[entity.Chain][]string)
	for _, t := range tokens {
		if !p.support.Supports(entity.CapabilityPrices, t.Chain) {
			continue
		}
		byChain[t.Chain] = append(byChain[t.Chain], strings.ToLower(t.Address))
	}

	result := make(map[string]entity.TokenPrice)
	if len(byChain) == 0 {
		if len(tokens) > 0 {
			return nil, entity.NewUnsupportedChainError(Identity, entity.CapabilityPrices, tokens[0].Chain)
		}
		return result, nil
	}

	var (
		mu        sync.Mutex
		succeeded int
		lastErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	for chain, addresses := range byChain {
		def, _ := p.support.Lookup(chain)
		for _, batch := range utils.BatchStrings(dedupe(addresses), p.maxTokensPerRequest) {
			g.Go(func() error {
				pairs, err := p.GetTokenPairsByAddresses(gctx, def.DEXScreenerChainID, batch)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					lastErr = support.Tag(err, entity.CapabilityPrices, chain)
					p.logger.Warn("Failed to get token pairs for batch",
						zap.String("chain", string(chain)),
						zap.Int("batchSize", len(batch)),
						zap.Error(err))
					return nil
				}
				succeeded++
				for addr, price := range p.selectPrices(chain, batch, pairs) {
					result[entity.PriceKey(chain, addr)] = price
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	if succeeded == 0 && lastErr != nil {
		return nil, lastErr
	}
	return result, nil
}

// GetTokenPairsByAddresses calls GET /tokens/v1/{chainId}/{addresses}.
func (p *Provider) GetTokenPairsByAddresses(ctx context.Context, dexscreenerChainID string, tokenAddresses []string) ([]PairData, error) {
	if len(tokenAddresses) == 0 {
		return nil, entity.NewPermanentError(Identity, 0, errors.New("tokenAddresses cannot be empty"))
	}
	if len(tokenAddresses) > p.maxTokensPerRequest {
		return nil, entity.NewPermanentError(Identity, 0,
			fmt.Errorf("number of token addresses (%d) exceeds max tokens per request (%d)", len(tokenAddresses), p.maxTokensPerRequest))
	}

	path := fmt.Sprintf("/tokens/v1/%s/%s", dexscreenerChainID, strings.Join(tokenAddresses, ","))
	var raw jsoniter.RawMessage
	if err := p.http.GetJSON(ctx, path, nil, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped DEXTokenPair
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, entity.NewPermanentError(Identity, 0, fmt.Errorf("decode pairs: %w", err))
		}
		return wrapped.Pairs, nil
	}
	var direct []PairData
	if err := json.Unmarshal(trimmed, &direct); err != nil {
		return nil, entity.NewPermanentError(Identity, 0, fmt.Errorf("decode pairs: %w", err))
	}
	return direct, nil
}

func (p *Provider) selectPrices(chain entity.Chain, requested []string, pairs []PairData) map[string]entity.TokenPrice {
	byBase := make(map[string][]PairData)
	for _, pair := range pairs {
		base := strings.ToLower(pair.BaseToken.Address)
		byBase[base] = append(byBase[base], pair)
	}

	out := make(map[string]entity.TokenPrice, len(requested))
	for _, addr := range requested {
		best := selectBestPair(byBase[addr])
		if best == nil {
			p.logger.Debug("No usable pair for token", zap.String("chain", string(chain)), zap.String("token", addr))
			continue
		}
		price, err := strconv.ParseFloat(best.PriceUsd, 64)
		if err != nil || price <= 0 {
			continue
		}
		out[addr] = entity.TokenPrice{
			Chain:        chain,
			Address:      addr,
			Symbol:       best.BaseToken.Symbol,
			UsdPrice:     price,
			LiquidityUsd: best.liquidityUsd(),
			Source:       Identity,
		}
	}
	return out
}

// selectBestPair prefers the most liquid pair quoted in a stablecoin and falls back
// to the most liquid pair overall. Pairs without a USD price are ignored.
func selectBestPair(pairs []PairData) *PairData {
	var bestOverall, bestStable *PairData
	for i := range pairs {
		pair := &pairs[i]
		if pair.PriceUsd == "" || pair.PriceUsd == "0" {
			continue
		}
		if _, ok := stablecoinSymbols[strings.ToUpper(pair.QuoteToken.Symbol)]; ok {
			if bestStable == nil || pair.liquidityUsd() > bestStable.liquidityUsd() {
				bestStable = pair
			}
		}
		if bestOverall == nil || pair.liquidityUsd() > bestOverall.liquidityUsd() {
			bestOverall = pair
		}
	}
	if bestStable != nil {
		return bestStable
	}
	return bestOverall
}

func dedupe(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
