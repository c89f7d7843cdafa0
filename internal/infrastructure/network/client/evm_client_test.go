package client

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wallet_aggregator/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type rpcCall struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newRPCServer answers eth_getBalance with 1.5 ETH and balanceOf with 2500000 (2.5 USDC).
func newRPCServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		body, _ := io.ReadAll(r.Body)
		answer := func(c rpcCall) map[string]any {
			resp := map[string]any{"jsonrpc": "2.0", "id": c.ID}
			switch c.Method {
			case "eth_getBalance":
				resp["result"] = "0x14d1120d7b160000"
			case "eth_call":
				if strings.Contains(string(c.Params[0]), "000000dead") {
					resp["error"] = map[string]any{"code": -32000, "message": "execution reverted"}
				} else {
					resp["result"] = "0x" + strings.Repeat("0", 58) + "2625a0"
				}
			default:
				resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
			}
			return resp
		}

		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(strings.TrimSpace(string(body)), "[") {
			var calls []rpcCall
			require.NoError(t, json.Unmarshal(body, &calls))
			out := make([]map[string]any, 0, len(calls))
			for _, c := range calls {
				out = append(out, answer(c))
			}
			_ = json.NewEncoder(w).Encode(out)
			return
		}
		var c rpcCall
		require.NoError(t, json.Unmarshal(body, &c))
		_ = json.NewEncoder(w).Encode(answer(c))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testNetwork(url string) entity.NetworkDefinition {
	return entity.NetworkDefinition{ChainID: 1, Name: "Ethereum", Identifier: "ethereum", NativeSymbol: "ETH", Decimals: 18, PrimaryRPCURL: url}
}

func TestEVMClient_GetNativeBalance(t *testing.T) {
	srv := newRPCServer(t, http.StatusOK)
	c, err := NewEVMClient(context.Background(), "evmrpc", testNetwork(srv.URL), time.Second, time.Second)
	require.NoError(t, err)
	defer c.Close()

	bal, err := c.GetNativeBalance(context.Background(), "0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, 0, want.Cmp(bal))
}

func TestEVMClient_GetBalancesBatch(t *testing.T) {
	srv := newRPCServer(t, http.StatusOK)
	c, err := NewEVMClient(context.Background(), "evmrpc", testNetwork(srv.URL), time.Second, time.Second)
	require.NoError(t, err)
	defer c.Close()

	wallet := "0x00000000000000000000000000000000000000aa"
	results, err := c.GetBalances(context.Background(), []entity.BalanceRequestItem{
		{Type: entity.NativeBalanceRequest, WalletAddress: wallet, Token: entity.TokenInfo{Symbol: "ETH", Decimals: 18}},
		{Type: entity.TokenBalanceRequest, WalletAddress: wallet, Token: entity.TokenInfo{Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Symbol: "USDC", Decimals: 6}},
		{Type: entity.TokenBalanceRequest, WalletAddress: wallet, Token: entity.TokenInfo{Address: "0x000000000000000000000000000000000000dead", Symbol: "BAD", Decimals: 18}},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Error)
	assert.Equal(t, "1500000000000000000", results[0].Balance.String())
	assert.NoError(t, results[1].Error)
	assert.Equal(t, "2500000", results[1].Balance.String())
	assert.Error(t, results[2].Error, "a reverted element fails alone")
}

func TestEVMClient_HTTPStatusIsClassified(t *testing.T) {
	srv := newRPCServer(t, http.StatusServiceUnavailable)
	c, err := NewEVMClient(context.Background(), "evmrpc", testNetwork(srv.URL), time.Second, time.Second)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetNativeBalance(context.Background(), "0x00000000000000000000000000000000000000aa")
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrTransientProvider)
}

func TestEVMClientProvider_ReusesClients(t *testing.T) {
	srv := newRPCServer(t, http.StatusOK)
	p := NewEVMClientProvider("evmrpc", time.Second, zap.NewNop())
	defer p.Close()

	a, err := p.GetClient(context.Background(), testNetwork(srv.URL))
	require.NoError(t, err)
	b, err := p.GetClient(context.Background(), testNetwork(srv.URL))
	require.NoError(t, err)
	assert.Same(t, a, b)
}
