package tokenloader

import (
	"os"
	"path/filepath"
	"testing"

	"wallet_aggregator/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetTokensByNetwork(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ethereum.json"), []byte(`[
		{"chainId":1,"address":"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48","name":"USD Coin","symbol":"USDC","decimals":6},
		{"chainId":137,"address":"0x2791bca1f2de4661ed88a30c99a7a9449aa84174","name":"USD Coin","symbol":"USDC","decimals":6}
	]`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "polygon.json"), []byte(`{broken`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bsc.json"), []byte(`[]`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0o600))

	l := NewTokenLoader(dir, zap.NewNop())
	got, err := l.GetTokensByNetwork([]entity.NetworkDefinition{
		{ChainID: 1, Identifier: "ethereum"},
		{ChainID: 137, Identifier: "polygon"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got["ethereum"], 1, "token with a foreign chainId is dropped")
	assert.Equal(t, "USDC", got["ethereum"][0].Symbol)
	assert.EqualValues(t, 6, got["ethereum"][0].Decimals)
}

func TestGetTokensByNetwork_MissingDirectory(t *testing.T) {
	l := NewTokenLoader(filepath.Join(t.TempDir(), "absent"), zap.NewNop())
	got, err := l.GetTokensByNetwork([]entity.NetworkDefinition{{ChainID: 1, Identifier: "ethereum"}})
	require.NoError(t, err)
	assert.Empty(t, got)
}
