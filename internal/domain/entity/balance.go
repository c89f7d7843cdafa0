package entity

// NativeBalance is the wallet's balance of the chain's native currency (ETH, MATIC, ...).
type NativeBalance struct {
	Chain            Chain    `json:"chain"`
	Address          string   `json:"address"`
	Symbol           string   `json:"symbol"`
	Decimals         uint8    `json:"decimals"`
	Balance          string   `json:"balance"` // raw integer amount in the smallest unit
	BalanceFormatted string   `json:"balance_formatted"`
	UsdPrice         *float64 `json:"usd_price"`
	UsdValue         *float64 `json:"usd_value"`
}

// IsZero reports whether the balance carries no funds.
func (b *NativeBalance) IsZero() bool {
	return b == nil || b.Balance == "" || isZeroAmount(b.Balance)
}

// TokenBalance is a single fungible token holding.
type TokenBalance struct {
	TokenAddress     string   `json:"token_address"`
	Name             string   `json:"name"`
	Symbol           string   `json:"symbol"`
	Logo             string   `json:"logo,omitempty"`
	Decimals         uint8    `json:"decimals"`
	Balance          string   `json:"balance"`
	BalanceFormatted string   `json:"balance_formatted"`
	UsdPrice         *float64 `json:"usd_price"`
	UsdValue         *float64 `json:"usd_value"`
	PossibleSpam     bool     `json:"possible_spam"`
	NativeToken      bool     `json:"native_token"`
}

// isZeroAmount accepts decimal amounts and 0x-prefixed hex quantities.
func isZeroAmount(raw string) bool {
	if len(raw) >= 2 && raw[0] == '0' && (raw[1] == 'x' || raw[1] == 'X') {
		raw = raw[2:]
	}
	for _, r := range raw {
		if r != '0' && r != '.' {
			return false
		}
	}
	return true
}
