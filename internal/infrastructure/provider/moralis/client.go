// Package moralis implements all four wallet capabilities on top of the Moralis Web3 Data API.
// Token balances come back priced in USD.
package moralis

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wallet_aggregator/internal/app/port"
	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/infrastructure/httpclient"
	"wallet_aggregator/internal/infrastructure/provider/support"
	"wallet_aggregator/internal/pkg/utils"

	"go.uber.org/zap"
)

// Identity is the provider name used for rate limiting, cache provenance and metrics.
const Identity = "moralis"

const DefaultBaseURL = "https://deep-index.moralis.io/api/v2.2"

// Config configures the Moralis provider.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Admit is called before every upstream request; nil disables per-request admission.
	Admit func(ctx context.Context) error
}

// Provider is the Moralis adapter.
type Provider struct {
	http    *httpclient.Client
	support support.Table
	logger  *zap.Logger
}

var (
	_ port.NativeBalanceProvider = (*Provider)(nil)
	_ port.TokenBalanceProvider  = (*Provider)(nil)
	_ port.NFTProvider           = (*Provider)(nil)
	_ port.TransactionProvider   = (*Provider)(nil)
	_ port.RequestAdmitter       = (*Provider)(nil)
)

// New creates the provider. It covers every definition that carries a Moralis chain slug.
func New(cfg Config, defs []entity.NetworkDefinition, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Provider{
		http: httpclient.New(httpclient.Options{
			Provider: Identity,
			BaseURL:  baseURL,
			Timeout:  cfg.Timeout,
			Headers:  map[string]string{"X-API-Key": cfg.APIKey},
			Admit:    cfg.Admit,
		}, logger),
		support: support.NewTable(Identity, defs,
			func(d entity.NetworkDefinition) bool { return d.MoralisChain != "" },
			entity.CapabilityNativeBalance, entity.CapabilityTokenBalances, entity.CapabilityNFTs, entity.CapabilityTransactions),
		logger: logger.Named("MoralisProvider"),
	}
}

func (p *Provider) Identity() string { return Identity }

// AdmitsPerRequest reports whether each upstream request spends rate budget on its own.
func (p *Provider) AdmitsPerRequest() bool { return p.http.AdmitsPerRequest() }

func (p *Provider) IsChainSupported(capability entity.Capability, chain entity.Chain) bool {
	return p.support.Supports(capability, chain)
}

func (p *Provider) ReturnsUSDPrices() bool { return true }

type nativeBalanceResponse struct {
	Balance string `json:"balance"`
}

// GetNativeBalance calls GET /{address}/balance.
func (p *Provider) GetNativeBalance(ctx context.Context, chain entity.Chain, address string) (*entity.NativeBalance, error) {
	def, err := p.support.Definition(entity.CapabilityNativeBalance, chain)
	if err != nil {
		return nil, err
	}

	var resp nativeBalanceResponse
	q := url.Values{"chain": {def.MoralisChain}}
	if err := p.http.GetJSON(ctx, "/"+address+"/balance", q, &resp); err != nil {
		return nil, support.Tag(err, entity.CapabilityNativeBalance, chain)
	}

	formatted, ok := utils.FormatRawUnits(resp.Balance, def.Decimals)
	if !ok {
		return nil, entity.NewPermanentError(Identity, 0, fmt.Errorf("malformed balance %q in response", resp.Balance))
	}
	return &entity.NativeBalance{
		Chain:            chain,
		Address:          address,
		Symbol:           def.NativeSymbol,
		Decimals:         def.Decimals,
		Balance:          resp.Balance,
		BalanceFormatted: formatted,
	}, nil
}

type tokenRecord struct {
	TokenAddress string            `json:"token_address"`
	Name         string            `json:"name"`
	Symbol       string            `json:"symbol"`
	Logo         string            `json:"logo"`
	Decimals     support.FlexInt   `json:"decimals"`
	Balance      string            `json:"balance"`
	PossibleSpam bool              `json:"possible_spam"`
	NativeToken  bool              `json:"native_token"`
	UsdPrice     support.FlexFloat `json:"usd_price"`
	UsdValue     support.FlexFloat `json:"usd_value"`
}

type tokensResponse struct {
	Cursor string        `json:"cursor"`
	Result []tokenRecord `json:"result"`
}

// GetTokenBalances calls GET /wallets/{address}/tokens. The native token row is dropped
// so that it is reported only once, through GetNativeBalance.
func (p *Provider) GetTokenBalances(ctx context.Context, chain entity.Chain, address string, query entity.TokenQuery) ([]entity.TokenBalance, error) {
	def, err := p.support.Definition(entity.CapabilityTokenBalances, chain)
	if err != nil {
		return nil, err
	}

	q := url.Values{"chain": {def.MoralisChain}}
	if query.ExcludeSpam {
		q.Set("exclude_spam", "true")
	}
	for i, addr := range query.TokenAddresses {
		q.Set("token_addresses["+strconv.Itoa(i)+"]", addr)
	}

	var resp tokensResponse
	if err := p.http.GetJSON(ctx, "/wallets/"+address+"/tokens", q, &resp); err != nil {
		return nil, support.Tag(err, entity.CapabilityTokenBalances, chain)
	}

	out := make([]entity.TokenBalance, 0, len(resp.Result))
	for _, r := range resp.Result {
		if r.NativeToken {
			continue
		}
		if query.ExcludeSpam && r.PossibleSpam {
			continue
		}
		decimals := uint8(r.Decimals)
		formatted, ok := utils.FormatRawUnits(r.Balance, decimals)
		if !ok {
			p.logger.Debug("Skipping token with malformed balance",
				zap.String("chain", string(chain)), zap.String("token", r.TokenAddress), zap.String("balance", r.Balance))
			continue
		}
		out = append(out, entity.TokenBalance{
			TokenAddress:     strings.ToLower(r.TokenAddress),
			Name:             r.Name,
			Symbol:           r.Symbol,
			Logo:             r.Logo,
			Decimals:         decimals,
			Balance:          r.Balance,
			BalanceFormatted: formatted,
			UsdPrice:         r.UsdPrice.Value,
			UsdValue:         r.UsdValue.Value,
			PossibleSpam:     r.PossibleSpam,
		})
	}
	return out, nil
}

type nftRecord struct {
	TokenAddress string `json:"token_address"`
	TokenID      string `json:"token_id"`
	ContractType string `json:"contract_type"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Amount       string `json:"amount"`
	TokenURI     string `json:"token_uri"`
	PossibleSpam bool   `json:"possible_spam"`
	Normalized   *struct {
		Image string `json:"image"`
	} `json:"normalized_metadata"`
}

type nftResponse struct {
	Total  support.FlexInt `json:"total"`
	Cursor string          `json:"cursor"`
	Result []nftRecord     `json:"result"`
}

// GetNFTs calls GET /{address}/nft. Total is the wallet-wide count, independent of Limit.
func (p *Provider) GetNFTs(ctx context.Context, chain entity.Chain, address string, query entity.NFTQuery) (*entity.NFTPage, error) {
	def, err := p.support.Definition(entity.CapabilityNFTs, chain)
	if err != nil {
		return nil, err
	}

	q := url.Values{"chain": {def.MoralisChain}, "format": {"decimal"}, "normalizeMetadata": {"true"}}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Cursor != "" {
		q.Set("cursor", query.Cursor)
	}
	if query.ExcludeSpam {
		q.Set("exclude_spam", "true")
	}

	var resp nftResponse
	if err := p.http.GetJSON(ctx, "/"+address+"/nft", q, &resp); err != nil {
		return nil, support.Tag(err, entity.CapabilityNFTs, chain)
	}

	page := &entity.NFTPage{Total: int(resp.Total), Cursor: resp.Cursor, Items: make([]entity.NFT, 0, len(resp.Result))}
	for _, r := range resp.Result {
		nft := entity.NFT{
			TokenAddress: strings.ToLower(r.TokenAddress),
			TokenID:      r.TokenID,
			ContractType: r.ContractType,
			Name:         r.Name,
			Symbol:       r.Symbol,
			Amount:       r.Amount,
			TokenURI:     r.TokenURI,
			PossibleSpam: r.PossibleSpam,
		}
		if r.Normalized != nil {
			nft.Image = r.Normalized.Image
		}
		page.Items = append(page.Items, nft)
	}
	if page.Total < len(page.Items) {
		page.Total = len(page.Items)
	}
	return page, nil
}

type txRecord struct {
	Hash           string          `json:"hash"`
	BlockNumber    support.FlexInt `json:"block_number"`
	BlockTimestamp string          `json:"block_timestamp"`
	FromAddress    string          `json:"from_address"`
	ToAddress      string          `json:"to_address"`
	Value          string          `json:"value"`
	ReceiptStatus  string          `json:"receipt_status"`
}

type txResponse struct {
	Cursor string     `json:"cursor"`
	Result []txRecord `json:"result"`
}

// GetTransactions calls GET /{address} (native transaction history).
func (p *Provider) GetTransactions(ctx context.Context, chain entity.Chain, address string, query entity.TxQuery) (*entity.TransactionPage, error) {
	def, err := p.support.Definition(entity.CapabilityTransactions, chain)
	if err != nil {
		return nil, err
	}

	q := url.Values{"chain": {def.MoralisChain}}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Cursor != "" {
		q.Set("cursor", query.Cursor)
	}
	if query.FromBlock > 0 {
		q.Set("from_block", strconv.FormatUint(query.FromBlock, 10))
	}
	if query.ToBlock > 0 {
		q.Set("to_block", strconv.FormatUint(query.ToBlock, 10))
	}

	var resp txResponse
	if err := p.http.GetJSON(ctx, "/"+address, q, &resp); err != nil {
		return nil, support.Tag(err, entity.CapabilityTransactions, chain)
	}

	page := &entity.TransactionPage{Cursor: resp.Cursor, Items: make([]entity.Transaction, 0, len(resp.Result))}
	for _, r := range resp.Result {
		ts, _ := time.Parse(time.RFC3339, r.BlockTimestamp)
		tx := entity.Transaction{
			Hash:        r.Hash,
			BlockNumber: uint64(r.BlockNumber),
			Timestamp:   ts,
			From:        r.FromAddress,
			To:          r.ToAddress,
			Value:       r.Value,
			Asset:       def.NativeSymbol,
			Category:    "external",
			Failed:      r.ReceiptStatus == "0",
		}
		if formatted, ok := utils.FormatRawUnits(r.Value, def.Decimals); ok {
			tx.ValueFormatted = formatted
		}
		page.Items = append(page.Items, tx)
	}
	return page, nil
}
