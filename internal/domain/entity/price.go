package entity

import "strings"

// TokenRef identifies a token contract on a chain.
type TokenRef struct {
	Chain   Chain  `json:"chain"`
	Address string `json:"address"`
}

// Key returns the "chain:address" map key with the address lowercased.
func (r TokenRef) Key() string {
	return PriceKey(r.Chain, r.Address)
}

// PriceKey builds the key used in price maps.
func PriceKey(chain Chain, address string) string {
	return string(chain) + ":" + strings.ToLower(address)
}

// TokenPrice is a USD quote for one token.
type TokenPrice struct {
	Chain        Chain   `json:"chain"`
	Address      string  `json:"address"`
	Symbol       string  `json:"symbol,omitempty"`
	UsdPrice     float64 `json:"usd_price"`
	LiquidityUsd float64 `json:"liquidity_usd,omitempty"`
	Source       string  `json:"source"`
}
