package httpclient

import (
	"context"
	"fmt"
	"sync/atomic"

	"wallet_aggregator/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     uint64              `json:"id"`
	Result jsoniter.RawMessage `json:"result"`
	Error  *RPCError           `json:"error"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// Rate limits and server-side timeouts reported by common node providers.
var transientRPCCodes = map[int]bool{
	-32005: true, // limit exceeded
	-32603: true, // internal error
	429:    true,
}

var rpcID atomic.Uint64

// CallRPC performs a single JSON-RPC 2.0 call against baseURL+path and decodes the result into out.
func (c *Client) CallRPC(ctx context.Context, path, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}
	req := rpcRequest{JSONRPC: "2.0", ID: rpcID.Add(1), Method: method, Params: params}

	var resp rpcResponse
	if err := c.PostJSON(ctx, path, req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		if transientRPCCodes[resp.Error.Code] {
			return entity.NewTransientError(c.provider, 0, fmt.Errorf("%s: %w", method, resp.Error))
		}
		return entity.NewPermanentError(c.provider, 0, fmt.Errorf("%s: %w", method, resp.Error))
	}
	if out == nil {
		return nil
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return entity.NewPermanentError(c.provider, 0, fmt.Errorf("%s: empty result", method))
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return entity.NewPermanentError(c.provider, 0, fmt.Errorf("%s: decode result: %w", method, err))
	}
	return nil
}
