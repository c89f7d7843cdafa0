package entity

import "strings"

// TokenQuery narrows a token balance request.
type TokenQuery struct {
	ExcludeSpam    bool
	TokenAddresses []string
}

// Params returns the options that take part in the request fingerprint.
func (q TokenQuery) Params() map[string]any {
	p := map[string]any{"exclude_spam": q.ExcludeSpam}
	if len(q.TokenAddresses) > 0 {
		p["token_addresses"] = strings.ToLower(strings.Join(q.TokenAddresses, ","))
	}
	return p
}

// NFTQuery narrows an NFT request.
type NFTQuery struct {
	Limit       int
	Cursor      string
	ExcludeSpam bool
}

func (q NFTQuery) Params() map[string]any {
	return map[string]any{
		"limit":        q.Limit,
		"cursor":       q.Cursor,
		"exclude_spam": q.ExcludeSpam,
	}
}

// TxQuery narrows a transaction history request. Zero block bounds mean "unbounded".
type TxQuery struct {
	Limit     int
	Cursor    string
	FromBlock uint64
	ToBlock   uint64
}

func (q TxQuery) Params() map[string]any {
	return map[string]any{
		"limit":      q.Limit,
		"cursor":     q.Cursor,
		"from_block": q.FromBlock,
		"to_block":   q.ToBlock,
	}
}
