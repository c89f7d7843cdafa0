// Package coingecko serves token prices from the CoinGecko simple token price endpoint.
package coingecko

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"wallet_aggregator/internal/app/port"
	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/infrastructure/httpclient"
	"wallet_aggregator/internal/infrastructure/provider/support"
	"wallet_aggregator/internal/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Identity is the provider name used for rate limiting, cache provenance and metrics.
const Identity = "coingecko"

const (
	DefaultBaseURL             = "https://api.coingecko.com/api/v3"
	DefaultVsCurrency          = "usd"
	DefaultMaxTokensPerRequest = 10
)

// Config configures the CoinGecko provider. An empty APIKey uses the keyless public tier.
type Config struct {
	BaseURL             string
	APIKey              string
	Timeout             time.Duration
	MaxTokensPerRequest int

	// Admit is called before every upstream request; nil disables per-request admission.
	Admit func(ctx context.Context) error
}

// Provider implements port.PriceProvider.
type Provider struct {
	http      *httpclient.Client
	support   support.Table
	maxTokens int
	logger    *zap.Logger
}

var (
	_ port.PriceProvider   = (*Provider)(nil)
	_ port.RequestAdmitter = (*Provider)(nil)
)

func New(cfg Config, defs []entity.NetworkDefinition, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	maxTokens := cfg.MaxTokensPerRequest
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokensPerRequest
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["x-cg-demo-api-key"] = cfg.APIKey
	}
	return &Provider{
		http: httpclient.New(httpclient.Options{
			Provider: Identity,
			BaseURL:  baseURL,
			Timeout:  cfg.Timeout,
			Headers:  headers,
			Admit:    cfg.Admit,
		}, logger),
		support: support.NewTable(Identity, defs,
			func(d entity.NetworkDefinition) bool { return d.CoinGeckoPlatform != "" },
			entity.CapabilityPrices),
		maxTokens: maxTokens,
		logger:    logger.Named("CoinGeckoProvider"),
	}
}

func (p *Provider) Identity() string { return Identity }

// AdmitsPerRequest reports whether each upstream request spends rate budget on its own.
func (p *Provider) AdmitsPerRequest() bool { return p.http.AdmitsPerRequest() }

func (p *Provider) IsChainSupported(capability entity.Capability, chain entity.Chain) bool {
	return p.support.Supports(capability, chain)
}

// quote is one entry of the simple/token_price response, keyed by lowercase contract address.
type quote map[string]float64

// GetTokenPrices calls GET /simple/token_price/{platform} per chain and batch.
// Tokens CoinGecko does not list are omitted. The call fails only when every batch failed.
func (p *Provider) GetTokenPrices(ctx context.Context, tokens []entity.TokenRef) (map[string]entity.TokenPrice, error) {
	byChain := make(map[entity.Chain][]string)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if !p.support.Supports(entity.CapabilityPrices, t.Chain) {
			continue
		}
		key := t.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
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
		for _, batch := range utils.BatchStrings(addresses, p.maxTokens) {
			g.Go(func() error {
				query := url.Values{}
				query.Set("contract_addresses", strings.Join(batch, ","))
				query.Set("vs_currencies", DefaultVsCurrency)

				var resp map[string]quote
				err := p.http.GetJSON(gctx, "/simple/token_price/"+def.CoinGeckoPlatform, query, &resp)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					lastErr = support.Tag(err, entity.CapabilityPrices, chain)
					p.logger.Warn("Failed to fetch prices",
						zap.String("platform", def.CoinGeckoPlatform),
						zap.Int("batchSize", len(batch)),
						zap.Error(err))
					return nil
				}
				succeeded++
				for addr, q := range resp {
					usd, ok := q[DefaultVsCurrency]
					if !ok || usd <= 0 {
						continue
					}
					result[entity.PriceKey(chain, addr)] = entity.TokenPrice{
						Chain:    chain,
						Address:  strings.ToLower(addr),
						UsdPrice: usd,
						Source:   Identity,
					}
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
