package entity

// NFT is a single non-fungible token held by a wallet.
type NFT struct {
	TokenAddress string `json:"token_address"`
	TokenID      string `json:"token_id"`
	ContractType string `json:"contract_type"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Amount       string `json:"amount"`
	TokenURI     string `json:"token_uri,omitempty"`
	Image        string `json:"image,omitempty"`
	PossibleSpam bool   `json:"possible_spam"`
}

// NFTPage is one page of NFTs plus the provider's total count for the wallet.
type NFTPage struct {
	Total  int    `json:"total"`
	Cursor string `json:"cursor,omitempty"`
	Items  []NFT  `json:"result"`
}
