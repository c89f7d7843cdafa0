// Package evmrpc serves native and ERC-20 balances straight from public EVM JSON-RPC
// nodes. Token balances cover the configured watch list only and are not priced.
package evmrpc

import (
	"context"
	"strings"

	"wallet_aggregator/internal/app/port"
	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/infrastructure/provider/support"
	"wallet_aggregator/internal/pkg/utils"

	"go.uber.org/zap"
)

// Identity is the provider name used for rate limiting, cache provenance and metrics.
const Identity = "evmrpc"

// Provider reads balances through dialed go-ethereum clients.
type Provider struct {
	clients port.BlockchainClientProvider
	native  support.Table
	tokens  support.Table
	watch   map[entity.Chain][]entity.TokenInfo
	logger  *zap.Logger
}

var (
	_ port.NativeBalanceProvider = (*Provider)(nil)
	_ port.TokenBalanceProvider  = (*Provider)(nil)
)

// New creates the provider. Native balances cover every definition with an RPC URL;
// token balances cover the chains that have a non-empty watch list.
func New(clients port.BlockchainClientProvider, defs []entity.NetworkDefinition, watch map[entity.Chain][]entity.TokenInfo, logger *zap.Logger) *Provider {
	hasRPC := func(d entity.NetworkDefinition) bool { return d.PrimaryRPCURL != "" }
	hasWatch := func(d entity.NetworkDefinition) bool { return hasRPC(d) && len(watch[d.Identifier]) > 0 }
	return &Provider{
		clients: clients,
		native:  support.NewTable(Identity, defs, hasRPC, entity.CapabilityNativeBalance),
		tokens:  support.NewTable(Identity, defs, hasWatch, entity.CapabilityTokenBalances),
		watch:   watch,
		logger:  logger.Named("EVMRPCProvider"),
	}
}

func (p *Provider) Identity() string { return Identity }

func (p *Provider) IsChainSupported(capability entity.Capability, chain entity.Chain) bool {
	return p.native.Supports(capability, chain) || p.tokens.Supports(capability, chain)
}

func (p *Provider) ReturnsUSDPrices() bool { return false }

// GetNativeBalance calls eth_getBalance on the chain's node.
func (p *Provider) GetNativeBalance(ctx context.Context, chain entity.Chain, address string) (*entity.NativeBalance, error) {
	def, err := p.native.Definition(entity.CapabilityNativeBalance, chain)
	if err != nil {
		return nil, err
	}
	client, err := p.clients.GetClient(ctx, def)
	if err != nil {
		return nil, support.Tag(err, entity.CapabilityNativeBalance, chain)
	}
	amount, err := client.GetNativeBalance(ctx, address)
	if err != nil {
		return nil, support.Tag(err, entity.CapabilityNativeBalance, chain)
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

// GetTokenBalances reads balanceOf for every watched token in one batch and returns
// the non-zero holdings. Elements that fail individually are skipped.
func (p *Provider) GetTokenBalances(ctx context.Context, chain entity.Chain, address string, query entity.TokenQuery) ([]entity.TokenBalance, error) {
	def, err := p.tokens.Definition(entity.CapabilityTokenBalances, chain)
	if err != nil {
		return nil, err
	}
	client, err := p.clients.GetClient(ctx, def)
	if err != nil {
		return nil, support.Tag(err, entity.CapabilityTokenBalances, chain)
	}

	watched := filterWatched(p.watch[chain], query.TokenAddresses)
	items := make([]entity.BalanceRequestItem, 0, len(watched))
	for _, token := range watched {
		items = append(items, entity.BalanceRequestItem{Type: entity.TokenBalanceRequest, WalletAddress: address, Token: token})
	}

	results, err := client.GetBalances(ctx, items)
	if err != nil {
		return nil, support.Tag(err, entity.CapabilityTokenBalances, chain)
	}

	out := make([]entity.TokenBalance, 0, len(results))
	for _, r := range results {
		if r.Error != nil {
			p.logger.Debug("Skipping watched token",
				zap.String("chain", string(chain)), zap.String("token", r.Token.Address), zap.Error(r.Error))
			continue
		}
		if r.Balance == nil || r.Balance.Sign() == 0 {
			continue
		}
		out = append(out, entity.TokenBalance{
			TokenAddress:     strings.ToLower(r.Token.Address),
			Name:             r.Token.Name,
			Symbol:           r.Token.Symbol,
			Decimals:         r.Token.Decimals,
			Balance:          r.Balance.String(),
			BalanceFormatted: utils.FormatUnits(r.Balance, r.Token.Decimals),
		})
	}
	return out, nil
}

func filterWatched(watched []entity.TokenInfo, only []string) []entity.TokenInfo {
	if len(only) == 0 {
		return watched
	}
	wanted := make(map[string]struct{}, len(only))
	for _, a := range only {
		wanted[strings.ToLower(a)] = struct{}{}
	}
	out := make([]entity.TokenInfo, 0, len(only))
	for _, t := range watched {
		if _, ok := wanted[strings.ToLower(t.Address)]; ok {
			out = append(out, t)
		}
	}
	return out
}
