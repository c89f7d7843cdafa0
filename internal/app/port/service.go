package port

import (
	"context"

	"wallet_aggregator/internal/domain/entity"
)

// WalletService is the caller-facing API served over HTTP.
type WalletService interface {
	GetNativeBalance(ctx context.Context, chain, address string) (*entity.NativeBalance, error)
	GetTokens(ctx context.Context, chain, address string, query entity.TokenQuery) ([]entity.TokenBalance, error)
	GetNFTs(ctx context.Context, chain, address string, query entity.NFTQuery) (*entity.NFTPage, error)
	GetTransactions(ctx context.Context, chain, address string, query entity.TxQuery) (*entity.TransactionPage, error)
	GetTokenPrice(ctx context.Context, chain, address string) (*entity.TokenPrice, error)
	GetTokenPrices(ctx context.Context, tokens []entity.TokenRef) (map[string]entity.TokenPrice, error)
	GetSnapshot(ctx context.Context, address string, chains []string) (*entity.WalletSnapshot, error)
}
