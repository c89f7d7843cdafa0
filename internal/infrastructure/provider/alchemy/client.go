// Package alchemy implements the wallet capabilities on top of Alchemy's enhanced
// JSON-RPC and NFT APIs. Token balances are not priced.
package alchemy

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
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
const Identity = "alchemy"

// DefaultBaseURL is expanded per chain by replacing {network} with the Alchemy network slug.
const DefaultBaseURL = "https://{network}.g.alchemy.com"

const metadataConcurrency = 5

// Config configures the Alchemy provider.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Admit is called before every upstream request; nil disables per-request admission.
	Admit func(ctx context.Context) error
}

// Provider is the Alchemy adapter. It keeps one HTTP client per chain and a
// per-instance cache of token metadata, which never changes for a contract.
type Provider struct {
	clients map[entity.Chain]*httpclient.Client
	apiKey  string
	admits  bool
	support support.Table
	logger  *zap.Logger

	metaMu   sync.RWMutex
	metadata map[string]tokenMetadata
}

var (
	_ port.NativeBalanceProvider = (*Provider)(nil)
	_ port.TokenBalanceProvider  = (*Provider)(nil)
	_ port.NFTProvider           = (*Provider)(nil)
	_ port.TransactionProvider   = (*Provider)(nil)
	_ port.RequestAdmitter       = (*Provider)(nil)
)

// New creates the provider. It covers every definition that carries an Alchemy network slug.
func New(cfg Config, defs []entity.NetworkDefinition, logger *zap.Logger) *Provider {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	p := &Provider{
		clients: make(map[entity.Chain]*httpclient.Client),
		apiKey:  cfg.APIKey,
		admits:  cfg.Admit != nil,
		support: support.NewTable(Identity, defs,
			func(d entity.NetworkDefinition) bool { return d.AlchemyNetwork != "" },
			entity.CapabilityNativeBalance, entity.CapabilityTokenBalances, entity.CapabilityNFTs, entity.CapabilityTransactions),
		logger:   logger.Named("AlchemyProvider"),
		metadata: make(map[string]tokenMetadata),
	}
	for _, chain := range p.support.Chains() {
		def, _ := p.support.Lookup(chain)
		p.clients[chain] = httpclient.New(httpclient.Options{
			Provider: Identity,
			BaseURL:  strings.ReplaceAll(base, "{network}", def.AlchemyNetwork),
			Timeout:  cfg.Timeout,
			Secret:   cfg.APIKey,
			Admit:    cfg.Admit,
		}, logger)
	}
	return p
}

func (p *Provider) Identity() string { return Identity }

// AdmitsPerRequest reports whether each upstream request, metadata lookups included,
// spends rate budget on its own.
func (p *Provider) AdmitsPerRequest() bool { return p.admits }

func (p *Provider) IsChainSupported(capability entity.Capability, chain entity.Chain) bool {
	return p.support.Supports(capability, chain)
}

func (p *Provider) ReturnsUSDPrices() bool { return false }

func (p *Provider) rpcPath() string { return "/v2/" + p.apiKey }

func (p *Provider) resolve(capability entity.Capability, chain entity.Chain) (entity.NetworkDefinition, *httpclient.Client, error) {
	def, err := p.support.Definition(capability, chain)
	if err != nil {
		return def, nil, err
	}
	return def, p.clients[chain], nil
}

// GetNativeBalance calls eth_getBalance.
func (p *Provider) GetNativeBalance(ctx context.Context, chain entity.Chain, address string) (*entity.NativeBalance, error) {
	def, c, err := p.resolve(entity.CapabilityNativeBalance, chain)
	if err != nil {
		return nil, err
	}

	var hexBalance string
	if err := c.CallRPC(ctx, p.rpcPath(), "eth_getBalance", []any{address, "latest"}, &hexBalance); err != nil {
		return nil, support.Tag(err, entity.CapabilityNativeBalance, chain)
	}
	amount, ok := utils.ParseBigInt(hexBalance)
	if !ok {
		return nil, entity.NewPermanentError(Identity, 0, fmt.Errorf("malformed balance %q", hexBalance))
	}
	return &entity.NativeBalance{
		Chain:            chain,
		Address:          address,
		Symbol:           def.NativeSymbol,
		Decimals:         def.Decimals,
		Balance:          amount.String(),
		BalanceFormatted: utils.FormatUnits(amount, def.Decimals),
	}, nil
}

type tokenBalancesResult struct {
	Address       string `json:"address"`
	TokenBalances []struct {
		ContractAddress string `json:"contractAddress"`
		TokenBalance    string `json:"tokenBalance"`
		Error           string `json:"error"`
	} `json:"tokenBalances"`
}

type tokenMetadata struct {
	Name     string          `json:"name"`
	Symbol   string          `json:"symbol"`
	Decimals support.FlexInt `json:"decimals"`
	Logo     string          `json:"logo"`
}

// GetTokenBalances calls alchemy_getTokenBalances, then resolves each non-zero
// holding's metadata. Tokens whose metadata cannot be fetched are left out.
func (p *Provider) GetTokenBalances(ctx context.Context, chain entity.Chain, address string, query entity.TokenQuery) ([]entity.TokenBalance, error) {
	_, c, err := p.resolve(entity.CapabilityTokenBalances, chain)
	if err != nil {
		return nil, err
	}

	var filter any = "erc20"
	if len(query.TokenAddresses) > 0 {
		filter = query.TokenAddresses
	}
	var res tokenBalancesResult
	if err := c.CallRPC(ctx, p.rpcPath(), "alchemy_getTokenBalances", []any{address, filter}, &res); err != nil {
		return nil, support.Tag(err, entity.CapabilityTokenBalances, chain)
	}

	type holding struct {
		contract string
		raw      string
	}
	holdings := make([]holding, 0, len(res.TokenBalances))
	for _, tb := range res.TokenBalances {
		if tb.Error != "" {
			continue
		}
		amount, ok := utils.ParseBigInt(tb.TokenBalance)
		if !ok || amount.Sign() == 0 {
			continue
		}
		holdings = append(holdings, holding{contract: strings.ToLower(tb.ContractAddress), raw: amount.String()})
	}

	balances := make([]*entity.TokenBalance, len(holdings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataConcurrency)
	for i, h := range holdings {
		g.Go(func() error {
			meta, err := p.tokenMetadata(gctx, c, chain, h.contract)
			if err != nil {
				p.logger.Debug("Skipping token without metadata",
					zap.String("chain", string(chain)), zap.String("token", h.contract), zap.Error(err))
				return nil
			}
			decimals := uint8(meta.Decimals)
			formatted, _ := utils.FormatRawUnits(h.raw, decimals)
			balances[i] = &entity.TokenBalance{
				TokenAddress:     h.contract,
				Name:             meta.Name,
				Symbol:           meta.Symbol,
				Logo:             meta.Logo,
				Decimals:         decimals,
				Balance:          h.raw,
				BalanceFormatted: formatted,
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]entity.TokenBalance, 0, len(balances))
	for _, b := range balances {
		if b != nil {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (p *Provider) tokenMetadata(ctx context.Context, c *httpclient.Client, chain entity.Chain, contract string) (tokenMetadata, error) {
	key := string(chain) + ":" + contract
	p.metaMu.RLock()
	meta, ok := p.metadata[key]
	p.metaMu.RUnlock()
	if ok {
		return meta, nil
	}

	if err := c.CallRPC(ctx, p.rpcPath(), "alchemy_getTokenMetadata", []any{contract}, &meta); err != nil {
		return tokenMetadata{}, err
	}
	p.metaMu.Lock()
	p.metadata[key] = meta
	p.metaMu.Unlock()
	return meta, nil
}

type nftsForOwnerResponse struct {
	OwnedNfts []struct {
		Contract struct {
			Address   string `json:"address"`
			Name      string `json:"name"`
			Symbol    string `json:"symbol"`
			TokenType string `json:"tokenType"`
			IsSpam    bool   `json:"isSpam"`
		} `json:"contract"`
		TokenID   string `json:"tokenId"`
		TokenType string `json:"tokenType"`
		Name      string `json:"name"`
		Balance   string `json:"balance"`
		TokenURI  string `json:"tokenUri"`
		Image     struct {
			CachedURL   string `json:"cachedUrl"`
			OriginalURL string `json:"originalUrl"`
		} `json:"image"`
	} `json:"ownedNfts"`
	TotalCount support.FlexInt `json:"totalCount"`
	PageKey    string          `json:"pageKey"`
}

// GetNFTs calls the NFT API getNFTsForOwner endpoint.
func (p *Provider) GetNFTs(ctx context.Context, chain entity.Chain, address string, query entity.NFTQuery) (*entity.NFTPage, error) {
	_, c, err := p.resolve(entity.CapabilityNFTs, chain)
	if err != nil {
		return nil, err
	}

	q := url.Values{"owner": {address}, "withMetadata": {"true"}}
	if query.Limit > 0 {
		q.Set("pageSize", strconv.Itoa(query.Limit))
	}
	if query.Cursor != "" {
		q.Set("pageKey", query.Cursor)
	}
	if query.ExcludeSpam {
		q.Add("excludeFilters[]", "SPAM")
	}

	var resp nftsForOwnerResponse
	if err := c.GetJSON(ctx, "/nft/v3/"+p.apiKey+"/getNFTsForOwner", q, &resp); err != nil {
		return nil, support.Tag(err, entity.CapabilityNFTs, chain)
	}

	page := &entity.NFTPage{Total: int(resp.TotalCount), Cursor: resp.PageKey, Items: make([]entity.NFT, 0, len(resp.OwnedNfts))}
	for _, n := range resp.OwnedNfts {
		if query.ExcludeSpam && n.Contract.IsSpam {
			continue
		}
		image := n.Image.CachedURL
		if image == "" {
			image = n.Image.OriginalURL
		}
		contractType := n.TokenType
		if contractType == "" {
			contractType = n.Contract.TokenType
		}
		page.Items = append(page.Items, entity.NFT{
			TokenAddress: strings.ToLower(n.Contract.Address),
			TokenID:      n.TokenID,
			ContractType: contractType,
			Name:         firstNonEmpty(n.Name, n.Contract.Name),
			Symbol:       n.Contract.Symbol,
			Amount:       firstNonEmpty(n.Balance, "1"),
			TokenURI:     n.TokenURI,
			Image:        image,
			PossibleSpam: n.Contract.IsSpam,
		})
	}
	if page.Total < len(page.Items) {
		page.Total = len(page.Items)
	}
	return page, nil
}

type assetTransfersResult struct {
	Transfers []struct {
		BlockNum    string   `json:"blockNum"`
		Hash        string   `json:"hash"`
		From        string   `json:"from"`
		To          string   `json:"to"`
		Value       *float64 `json:"value"`
		Asset       string   `json:"asset"`
		Category    string   `json:"category"`
		RawContract struct {
			Value   string `json:"value"`
			Decimal string `json:"decimal"`
		} `json:"rawContract"`
		Metadata struct {
			BlockTimestamp string `json:"blockTimestamp"`
		} `json:"metadata"`
	} `json:"transfers"`
	PageKey string `json:"pageKey"`
}

// GetTransactions calls alchemy_getAssetTransfers for transfers sent from address.
func (p *Provider) GetTransactions(ctx context.Context, chain entity.Chain, address string, query entity.TxQuery) (*entity.TransactionPage, error) {
	_, c, err := p.resolve(entity.CapabilityTransactions, chain)
	if err != nil {
		return nil, err
	}

	params := map[string]any{
		"fromAddress":  address,
		"category":     []string{"external", "erc20", "erc721", "erc1155"},
		"withMetadata": true,
		"order":        "desc",
		"fromBlock":    "0x0",
		"toBlock":      "latest",
	}
	if query.FromBlock > 0 {
		params["fromBlock"] = "0x" + strconv.FormatUint(query.FromBlock, 16)
	}
	if query.ToBlock > 0 {
		params["toBlock"] = "0x" + strconv.FormatUint(query.ToBlock, 16)
	}
	if query.Limit > 0 {
		params["maxCount"] = "0x" + strconv.FormatInt(int64(query.Limit), 16)
	}
	if query.Cursor != "" {
		params["pageKey"] = query.Cursor
	}

	var res assetTransfersResult
	if err := c.CallRPC(ctx, p.rpcPath(), "alchemy_getAssetTransfers", []any{params}, &res); err != nil {
		return nil, support.Tag(err, entity.CapabilityTransactions, chain)
	}

	page := &entity.TransactionPage{Cursor: res.PageKey, Items: make([]entity.Transaction, 0, len(res.Transfers))}
	for _, t := range res.Transfers {
		block, _ := utils.ParseBigInt(t.BlockNum)
		ts, _ := time.Parse(time.RFC3339, t.Metadata.BlockTimestamp)
		tx := entity.Transaction{
			Hash:      t.Hash,
			Timestamp: ts,
			From:      t.From,
			To:        t.To,
			Asset:     t.Asset,
			Category:  t.Category,
		}
		if block != nil {
			tx.BlockNumber = block.Uint64()
		}
		if raw, ok := utils.ParseBigInt(t.RawContract.Value); ok {
			tx.Value = raw.String()
			decimals := uint8(18)
			if d, ok := utils.ParseBigInt(t.RawContract.Decimal); ok {
				decimals = uint8(d.Uint64())
			}
			tx.ValueFormatted = utils.FormatUnits(raw, decimals)
		} else if t.Value != nil {
			tx.ValueFormatted = strconv.FormatFloat(*t.Value, 'f', utils.DisplayPlaces, 64)
		}
		page.Items = append(page.Items, tx)
	}
	return page, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
