package entity

import "strings"

// Capability is one category of blockchain data an upstream provider can serve.
type Capability int

const (
	CapabilityNativeBalance Capability = iota
	CapabilityTokenBalances
	CapabilityNFTs
	CapabilityTransactions
	CapabilityPrices
)

// AllCapabilities lists every capability in declaration order.
var AllCapabilities = []Capability{CapabilityNativeBalance, CapabilityTokenBalances, CapabilityNFTs, CapabilityTransactions, CapabilityPrices}

func (c Capability) String() string {
	switch c {
	case CapabilityNativeBalance:
		return "native_balance"
	case CapabilityTokenBalances:
		return "token_balances"
	case CapabilityNFTs:
		return "nfts"
	case CapabilityTransactions:
		return "transactions"
	case CapabilityPrices:
		return "prices"
	default:
		return "unknown"
	}
}

// ParseCapability maps a config key such as "token_balances" back to its Capability.
func ParseCapability(s string) (Capability, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, c := range AllCapabilities {
		if c.String() == key {
			return c, true
		}
	}
	return 0, false
}

// Chain is an opaque chain slug such as "ethereum" or "polygon".
type Chain string

// NormalizeChain lowercases and trims a chain slug so lookups are case-insensitive.
func NormalizeChain(s string) Chain {
	return Chain(strings.ToLower(strings.TrimSpace(s)))
}

func (c Chain) String() string { return string(c) }
