package service

import (
	"context"
	"fmt"
	"strings"

	"wallet_aggregator/internal/app/port"
	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/pkg/utils"

	"go.uber.org/zap"
)

// Aggregator is the caller-facing API of the data layer. Inputs are validated here so
// malformed requests never reach a provider.
type Aggregator struct {
	router    *Router
	snapshots *SnapshotService
	logger    *zap.Logger
}

var _ port.WalletService = (*Aggregator)(nil)

func NewAggregator(router *Router, snapshots *SnapshotService, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		router:    router,
		snapshots: snapshots,
		logger:    logger.Named("Aggregator"),
	}
}

func (a *Aggregator) GetNativeBalance(ctx context.Context, chain, address string) (*entity.NativeBalance, error) {
	c, addr, err := validate(chain, address)
	if err != nil {
		return nil, err
	}
	return a.router.NativeBalance(ctx, c, addr)
}

func (a *Aggregator) GetTokens(ctx context.Context, chain, address string, query entity.TokenQuery) ([]entity.TokenBalance, error) {
	c, addr, err := validate(chain, address)
	if err != nil {
		return nil, err
	}
	for _, t := range query.TokenAddresses {
		if !utils.IsAddress(t) {
			return nil, fmt.Errorf("%w: invalid token address %q", entity.ErrInvalidRequest, t)
		}
	}
	return a.router.TokenBalances(ctx, c, addr, query)
}

func (a *Aggregator) GetNFTs(ctx context.Context, chain, address string, query entity.NFTQuery) (*entity.NFTPage, error) {
	c, addr, err := validate(chain, address)
	if err != nil {
		return nil, err
	}
	if query.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", entity.ErrInvalidRequest)
	}
	return a.router.NFTs(ctx, c, addr, query)
}

func (a *Aggregator) GetTransactions(ctx context.Context, chain, address string, query entity.TxQuery) (*entity.TransactionPage, error) {
	c, addr, err := validate(chain, address)
	if err != nil {
		return nil, err
	}
	if query.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", entity.ErrInvalidRequest)
	}
	if query.ToBlock != 0 && query.FromBlock > query.ToBlock {
		return nil, fmt.Errorf("%w: from_block %d is after to_block %d", entity.ErrInvalidRequest, query.FromBlock, query.ToBlock)
	}
	return a.router.Transactions(ctx, c, addr, query)
}

// GetTokenPrice returns the price of one token. A token no provider could price
// yields (nil, nil).
func (a *Aggregator) GetTokenPrice(ctx context.Context, chain, address string) (*entity.TokenPrice, error) {
	c, addr, err := validate(chain, address)
	if err != nil {
		return nil, err
	}
	prices, err := a.router.Prices(ctx, []entity.TokenRef{{Chain: c, Address: addr}})
	if err != nil {
		return nil, err
	}
	price, ok := prices[entity.PriceKey(c, addr)]
	if !ok {
		return nil, nil
	}
	return &price, nil
}

// GetTokenPrices returns the prices keyed by entity.PriceKey.
func (a *Aggregator) GetTokenPrices(ctx context.Context, tokens []entity.TokenRef) (map[string]entity.TokenPrice, error) {
	refs := make([]entity.TokenRef, 0, len(tokens))
	for _, t := range tokens {
		c, addr, err := validate(string(t.Chain), t.Address)
		if err != nil {
			return nil, err
		}
		refs = append(refs, entity.TokenRef{Chain: c, Address: addr})
	}
	return a.router.Prices(ctx, refs)
}

// GetSnapshot aggregates the wallet across chains; an empty list uses the default chains.
func (a *Aggregator) GetSnapshot(ctx context.Context, address string, chains []string) (*entity.WalletSnapshot, error) {
	if !utils.IsAddress(address) {
		return nil, fmt.Errorf("%w: invalid address %q", entity.ErrInvalidRequest, address)
	}
	list := make([]entity.Chain, 0, len(chains))
	for _, c := range chains {
		if n := entity.NormalizeChain(c); n != "" {
			list = append(list, n)
		}
	}
	return a.snapshots.Snapshot(ctx, strings.ToLower(address), list), nil
}

func validate(chain, address string) (entity.Chain, string, error) {
	c := entity.NormalizeChain(chain)
	if c == "" {
		return "", "", fmt.Errorf("%w: chain is required", entity.ErrInvalidRequest)
	}
	if !utils.IsAddress(address) {
		return "", "", fmt.Errorf("%w: invalid address %q", entity.ErrInvalidRequest, address)
	}
	return c, strings.ToLower(address), nil
}
