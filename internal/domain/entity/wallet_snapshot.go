package entity

import "time"

// ChainSnapshot is the per-chain slice of a WalletSnapshot.
type ChainSnapshot struct {
	Chain         Chain          `json:"chain"`
	NativeBalance *NativeBalance `json:"native_balance"`
	Tokens        []TokenBalance `json:"tokens"`
	NFTsCount     int            `json:"nfts_count"`
	BalanceUsd    float64        `json:"balance_usd"`
}

// HasData reports whether any sub-fetch produced real data for the chain.
func (c ChainSnapshot) HasData() bool {
	return !c.NativeBalance.IsZero() || len(c.Tokens) > 0 || c.NFTsCount > 0
}

// WalletSnapshot aggregates a wallet's holdings across chains.
// Chains that yielded no data are omitted.
type WalletSnapshot struct {
	Address       string          `json:"address"`
	Chains        []ChainSnapshot `json:"chains"`
	TotalChains   int             `json:"total_chains"`
	TotalValueUsd float64         `json:"total_value_usd"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
