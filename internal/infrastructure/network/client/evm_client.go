package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"wallet_aggregator/internal/app/port"
	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/infrastructure/httpclient"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// EVMClient implements the port.BlockchainClient interface for EVM-compatible chains.
type EVMClient struct {
	ethClient      *ethclient.Client
	netDef         entity.NetworkDefinition
	rpcCallTimeout time.Duration
	identity       string
}

// ERC20 ABI minimal part for balanceOf
const erc20ABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"}]`

var (
	parsedERC20ABI  abi.ABI
	parsedERC20Once sync.Once
	erc20MethodID   []byte
)

func initParsedERC20ABI() {
	parsedERC20Once.Do(func() {
		var err error
		parsedERC20ABI, err = abi.JSON(strings.NewReader(erc20ABI))
		if err != nil {
			panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
		}
		balanceOfMethod, ok := parsedERC20ABI.Methods["balanceOf"]
		if !ok {
			panic("balanceOf method not found in parsed ERC20 ABI")
		}
		erc20MethodID = balanceOfMethod.ID
	})
}

// NewEVMClient dials the primary RPC endpoint of netDef, then each fallback in order.
// identity is the provider name used in classified errors.
func NewEVMClient(ctx context.Context, identity string, netDef entity.NetworkDefinition, connectionTimeout, rpcCallTimeout time.Duration) (*EVMClient, error) {
	initParsedERC20ABI()
	if rpcCallTimeout <= 0 {
		rpcCallTimeout = httpclient.DefaultTimeout
	}
	rpcURLs := append([]string{netDef.PrimaryRPCURL}, netDef.FallbackRPCURLs...)
	var lastErr error

	for _, rpcURL := range rpcURLs {
		if rpcURL == "" {
			continue
		}
		dialCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
		client, err := ethclient.DialContext(dialCtx, rpcURL)
		cancel()

		if err == nil {
			return &EVMClient{ethClient: client, netDef: netDef, rpcCallTimeout: rpcCallTimeout, identity: identity}, nil
		}
		lastErr = fmt.Errorf("failed to connect to RPC %s: %w", rpcURL, err)
	}
	if lastErr == nil {
		lastErr = errors.New("no RPC endpoint configured")
	}

	return nil, entity.NewTransientError(identity, 0,
		fmt.Errorf("all RPC connection attempts failed for network %s: %w", netDef.Name, lastErr))
}

var _ port.BlockchainClient = (*EVMClient)(nil)

// GetNativeBalance fetches the latest native balance of walletAddress.
func (c *EVMClient) GetNativeBalance(ctx context.Context, walletAddress string) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	balance, err := c.ethClient.BalanceAt(callCtx, common.HexToAddress(walletAddress), nil)
	if err != nil {
		return nil, c.classify(ctx, fmt.Errorf("eth_getBalance %s: %w", walletAddress, err))
	}
	return balance, nil
}

// GetBalances fetches multiple balances using one JSON-RPC batch request.
// A failing element is reported on its result item, not as a call error.
func (c *EVMClient) GetBalances(ctx context.Context, requests []entity.BalanceRequestItem) ([]entity.BalanceResultItem, error) {
	if len(requests) == 0 {
		return []entity.BalanceResultItem{}, nil
	}

	batchElems := make([]rpc.BatchElem, len(requests))
	results := make([]entity.BalanceResultItem, len(requests))

	for i, reqItem := range requests {
		results[i] = entity.BalanceResultItem{Type: reqItem.Type, Token: reqItem.Token}

		switch reqItem.Type {
		case entity.NativeBalanceRequest:
			batchElems[i] = rpc.BatchElem{
				Method: "eth_getBalance",
				Args:   []interface{}{common.HexToAddress(reqItem.WalletAddress), "latest"},
				Result: new(*hexutil.Big),
			}
		case entity.TokenBalanceRequest:
			paddedWalletAddress := common.LeftPadBytes(common.HexToAddress(reqItem.WalletAddress).Bytes(), 32)
			callData := append(append([]byte{}, erc20MethodID...), paddedWalletAddress...)

			callArgs := map[string]interface{}{
				"to":   common.HexToAddress(reqItem.Token.Address),
				"data": hexutil.Bytes(callData),
			}
			batchElems[i] = rpc.BatchElem{
				Method: "eth_call",
				Args:   []interface{}{callArgs, "latest"},
				Result: new(hexutil.Bytes),
			}
		default:
			results[i].Error = fmt.Errorf("unknown balance request type: %v for %s", reqItem.Type, reqItem.Token.Symbol)
		}
	}

	rpcCallCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	if err := c.ethClient.Client().BatchCallContext(rpcCallCtx, batchElems); err != nil {
		return results, c.classify(ctx, fmt.Errorf("RPC batch call failed: %w", err))
	}

	for i, elem := range batchElems {
		if results[i].Error != nil {
			continue
		}
		if elem.Error != nil {
			results[i].Error = fmt.Errorf("failed to fetch %s balance of %s: %w",
				requests[i].Token.Symbol, requests[i].WalletAddress, elem.Error)
			continue
		}

		switch requests[i].Type {
		case entity.NativeBalanceRequest:
			if result, ok := elem.Result.(**hexutil.Big); ok && result != nil && *result != nil {
				results[i].Balance = (*big.Int)(*result)
			} else {
				results[i].Error = errors.New("failed to decode native balance: unexpected type or nil result")
			}
		case entity.TokenBalanceRequest:
			results[i].Balance, results[i].Error = unpackBalanceOf(elem.Result)
		}

		if results[i].Error == nil && results[i].Balance == nil {
			results[i].Balance = big.NewInt(0)
		}
	}
	return results, nil
}

func unpackBalanceOf(raw interface{}) (*big.Int, error) {
	result, ok := raw.(*hexutil.Bytes)
	if !ok || result == nil {
		return nil, errors.New("failed to decode token balance: unexpected type or nil result")
	}
	if len(*result) == 0 {
		return big.NewInt(0), nil
	}
	unpacked, err := parsedERC20ABI.Unpack("balanceOf", *result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf result %s: %w", hexutil.Encode(*result), err)
	}
	if len(unpacked) == 0 {
		return nil, errors.New("balanceOf unpack returned no data")
	}
	balance, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", unpacked[0])
	}
	return balance, nil
}

// classify maps go-ethereum transport errors onto the provider error kinds.
func (c *EVMClient) classify(parent context.Context, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return &entity.ProviderError{
			Kind:       entity.ClassifyStatus(httpErr.StatusCode),
			Provider:   c.identity,
			Chain:      c.netDef.Identifier,
			StatusCode: httpErr.StatusCode,
			Err:        err,
		}
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() != -32005 {
		return &entity.ProviderError{Kind: entity.ErrPermanentProvider, Provider: c.identity, Chain: c.netDef.Identifier, Err: err}
	}
	return &entity.ProviderError{Kind: entity.ErrTransientProvider, Provider: c.identity, Chain: c.netDef.Identifier, Err: err}
}

// Definition returns the network definition for this client.
func (c *EVMClient) Definition() entity.NetworkDefinition {
	return c.netDef
}

// Close releases the underlying RPC connection.
func (c *EVMClient) Close() {
	c.ethClient.Close()
}
