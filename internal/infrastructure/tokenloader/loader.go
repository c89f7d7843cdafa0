package tokenloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wallet_aggregator/internal/app/port"
	"wallet_aggregator/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TokenFileLoader implements port.TokenProvider by reading <identifier>.json files
// (arrays of entity.TokenInfo) from a directory.
type TokenFileLoader struct {
	tokenDirPath string
	logger       *zap.Logger
}

// NewTokenLoader creates a new TokenFileLoader.
func NewTokenLoader(tokenDirPath string, logger *zap.Logger) port.TokenProvider {
	return &TokenFileLoader{
		tokenDirPath: tokenDirPath,
		logger:       logger.Named("TokenLoader"),
	}
}

// GetTokensByNetwork reads the token files of the given networks and drops tokens
// whose chainId does not match the file's network. A missing directory yields an
// empty result; unreadable or malformed files are skipped.
func (l *TokenFileLoader) GetTokensByNetwork(networkDefs []entity.NetworkDefinition) (map[entity.Chain][]entity.TokenInfo, error) {
	tokensByChain := make(map[entity.Chain][]entity.TokenInfo)

	files, err := os.ReadDir(l.tokenDirPath)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn("Token directory does not exist, no tokens will be watched", zap.String("path", l.tokenDirPath))
			return tokensByChain, nil
		}
		return nil, fmt.Errorf("failed to read token directory %s: %w", l.tokenDirPath, err)
	}

	networks := make(map[entity.Chain]entity.NetworkDefinition, len(networkDefs))
	for _, netDef := range networkDefs {
		networks[netDef.Identifier] = netDef
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(strings.ToLower(file.Name()), ".json") {
			continue
		}

		identifier := entity.NormalizeChain(strings.TrimSuffix(file.Name(), filepath.Ext(file.Name())))
		networkDef, isActive := networks[identifier]
		if !isActive {
			l.logger.Debug("Token file found for an inactive network, skipping", zap.String("file", file.Name()))
			continue
		}

		filePath := filepath.Join(l.tokenDirPath, file.Name())
		data, err := os.ReadFile(filePath)
		if err != nil {
			l.logger.Warn("Failed to read token file, skipping", zap.String("path", filePath), zap.Error(err))
			continue
		}

		var tokensInFile []entity.TokenInfo
		if err := json.Unmarshal(data, &tokensInFile); err != nil {
			l.logger.Warn("Failed to unmarshal tokens from file, skipping", zap.String("path", filePath), zap.Error(err))
			continue
		}

		valid := make([]entity.TokenInfo, 0, len(tokensInFile))
		for _, token := range tokensInFile {
			if token.ChainID != networkDef.ChainID {
				l.logger.Warn("Token has mismatched chainId, skipping",
					zap.String("file", filePath),
					zap.String("symbol", token.Symbol),
					zap.Uint64("tokenChainId", token.ChainID),
					zap.Uint64("expectedChainId", networkDef.ChainID))
				continue
			}
			valid = append(valid, token)
		}

		if len(valid) > 0 {
			tokensByChain[identifier] = append(tokensByChain[identifier], valid...)
			l.logger.Info("Loaded watched tokens", zap.String("network", string(identifier)), zap.Int("count", len(valid)))
		}
	}

	return tokensByChain, nil
}
