package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.vocdoni.io/dvote/log"
)

// Client is a bind.ContractBackend and bind.DeployBackend over the endpoints
// of a chain in a Web3Pool. Every call is sent to the next available
// endpoint and, on failure, retried on the following one after disabling
// the failing endpoint. Contract reverts and context errors are returned
// straight away.
type Client struct {
	w3p     *Web3Pool
	chainID uint64
}

// ChainIDUint64 returns the chainID the client works with.
func (c *Client) ChainIDUint64() uint64 {
	return c.chainID
}

// IsRevert returns true if the error has been returned by the contract
// execution instead of the endpoint.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

// retry sends the call to the pool endpoints until one of them succeeds, the
// context is done, the call reverts or the retries are exhausted.
func retry[T any](ctx context.Context, c *Client, method string, fn func(*ethclient.Client) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for i := 0; i < DefaultMaxWeb3ClientRetries; i++ {
		endpoint, err := c.w3p.Endpoint(c.chainID)
		if err != nil {
			return zero, err
		}
		res, err := fn(endpoint.client)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil || IsRevert(err) || errors.Is(err, ethereum.NotFound) {
			return zero, err
		}
		lastErr = err
		log.Warnw("web3 call failed, trying next endpoint",
			"method", method, "chainID", c.chainID, "uri", endpoint.URI, "error", err)
		c.w3p.DisableEndpoint(c.chainID, endpoint.URI)
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", method, DefaultMaxWeb3ClientRetries, lastErr)
}

// CodeAt returns the code of the given account.
func (c *Client) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return retry(ctx, c, "CodeAt", func(cli *ethclient.Client) ([]byte, error) {
		return cli.CodeAt(ctx, contract, blockNumber)
	})
}

// CallContract executes an Ethereum contract call with the specified data as
// the input.
func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return retry(ctx, c, "CallContract", func(cli *ethclient.Client) ([]byte, error) {
		return cli.CallContract(ctx, call, blockNumber)
	})
}

// HeaderByNumber returns a block header from the current canonical chain. If
// number is nil, the latest known header is returned.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return retry(ctx, c, "HeaderByNumber", func(cli *ethclient.Client) (*types.Header, error) {
		return cli.HeaderByNumber(ctx, number)
	})
}

// PendingCodeAt returns the code of the given account in the pending state.
func (c *Client) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return retry(ctx, c, "PendingCodeAt", func(cli *ethclient.Client) ([]byte, error) {
		return cli.PendingCodeAt(ctx, account)
	})
}

// PendingNonceAt retrieves the current pending nonce associated with an
// account.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return retry(ctx, c, "PendingNonceAt", func(cli *ethclient.Client) (uint64, error) {
		return cli.PendingNonceAt(ctx, account)
	})
}

// SuggestGasPrice retrieves the currently suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return retry(ctx, c, "SuggestGasPrice", func(cli *ethclient.Client) (*big.Int, error) {
		return cli.SuggestGasPrice(ctx)
	})
}

// SuggestGasTipCap retrieves the currently suggested 1559 priority fee.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return retry(ctx, c, "SuggestGasTipCap", func(cli *ethclient.Client) (*big.Int, error) {
		return cli.SuggestGasTipCap(ctx)
	})
}

// EstimateGas tries to estimate the gas needed to execute a specific
// transaction.
func (c *Client) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return retry(ctx, c, "EstimateGas", func(cli *ethclient.Client) (uint64, error) {
		return cli.EstimateGas(ctx, call)
	})
}

// SendTransaction injects the transaction into the pending pool for
// execution.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := retry(ctx, c, "SendTransaction", func(cli *ethclient.Client) (struct{}, error) {
		return struct{}{}, cli.SendTransaction(ctx, tx)
	})
	return err
}

// FilterLogs executes a log filter operation.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return retry(ctx, c, "FilterLogs", func(cli *ethclient.Client) ([]types.Log, error) {
		return cli.FilterLogs(ctx, query)
	})
}

// SubscribeFilterLogs creates a background log filtering operation. It
// requires a websocket endpoint.
func (c *Client) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return retry(ctx, c, "SubscribeFilterLogs", func(cli *ethclient.Client) (ethereum.Subscription, error) {
		return cli.SubscribeFilterLogs(ctx, query, ch)
	})
}

// TransactionReceipt returns the receipt of a mined transaction. It returns
// ethereum.NotFound while the transaction is pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return retry(ctx, c, "TransactionReceipt", func(cli *ethclient.Client) (*types.Receipt, error) {
		return cli.TransactionReceipt(ctx, txHash)
	})
}

// BlockNumber returns the most recent block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return retry(ctx, c, "BlockNumber", func(cli *ethclient.Client) (uint64, error) {
		return cli.BlockNumber(ctx)
	})
}
