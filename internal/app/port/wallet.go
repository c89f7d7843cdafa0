package port

// WalletProvider defines the interface for fetching the tracked wallet addresses.
type WalletProvider interface {
	GetWallets() ([]string, error)
}
