package walletloader

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"wallet_aggregator/internal/app/port"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// WalletFileLoader implements the port.WalletProvider interface by loading wallets from a file.
// The file holds one address per line; blank lines and '#' comments are ignored.
type WalletFileLoader struct {
	filePath string
	logger   *zap.Logger
}

// NewWalletFileLoader creates a new WalletFileLoader.
func NewWalletFileLoader(filePath string, logger *zap.Logger) port.WalletProvider {
	return &WalletFileLoader{
		filePath: filePath,
		logger:   logger.Named("WalletLoader"),
	}
}

// GetWallets reads wallet addresses from the configured file path.
// Invalid and duplicate addresses are skipped.
func (l *WalletFileLoader) GetWallets() ([]string, error) {
	file, err := os.Open(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet file %s: %w", l.filePath, err)
	}
	defer file.Close()

	var wallets []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "0x") || !common.IsHexAddress(line) {
			l.logger.Warn("Skipping invalid wallet address",
				zap.String("file", l.filePath),
				zap.Int("lineNumber", lineNum),
				zap.String("address", line))
			continue
		}
		key := strings.ToLower(line)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		wallets = append(wallets, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning wallet file %s: %w", l.filePath, err)
	}

	l.logger.Info("Wallets loaded from file", zap.Int("count", len(wallets)), zap.String("path", l.filePath))
	return wallets, nil
}
