package entity

import "math/big"

// BalanceRequestType defines the type of balance request.
type BalanceRequestType int

const (
	// NativeBalanceRequest requests the native balance of a wallet.
	NativeBalanceRequest BalanceRequestType = iota
	// TokenBalanceRequest requests the ERC-20 balance of a wallet.
	TokenBalanceRequest
)

// ZeroAddress represents the EVM zero address.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// BalanceRequestItem is one element of a JSON-RPC batch balance request.
type BalanceRequestItem struct {
	Type          BalanceRequestType
	WalletAddress string
	Token         TokenInfo
}

// BalanceResultItem is the decoded result of one batch element.
type BalanceResultItem struct {
	Type    BalanceRequestType
	Token   TokenInfo
	Balance *big.Int
	Error   error
}
