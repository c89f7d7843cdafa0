package entity

import "time"

// Transaction is a normalized wallet transaction or asset transfer.
type Transaction struct {
	Hash           string    `json:"hash"`
	BlockNumber    uint64    `json:"block_number"`
	Timestamp      time.Time `json:"block_timestamp"`
	From           string    `json:"from_address"`
	To             string    `json:"to_address"`
	Value          string    `json:"value"`
	ValueFormatted string    `json:"value_formatted,omitempty"`
	Asset          string    `json:"asset,omitempty"`
	Category       string    `json:"category,omitempty"`
	Failed         bool      `json:"failed"`
}

// TransactionPage is one page of transactions with an opaque continuation cursor.
type TransactionPage struct {
	Cursor string        `json:"cursor,omitempty"`
	Items  []Transaction `json:"result"`
}
