package rpc

// This package contains the Web3Pool struct, which is a pool of Web3Endpoint
// instances. It allows to add, disable and get endpoints. It also provides an
// implementation of the bind.ContractBackend and bind.DeployBackend
// interfaces for a web3 pool with an specific chainID.
// The pool balances the load between the available endpoints for every
// chainID, flagging them as unavailable if they fail to keep the pool
// healthy. If every endpoint fails for a chainID, the pool resets the
// available flag for all of them and starts again.

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.vocdoni.io/dvote/log"
)

const (
	// DefaultMaxWeb3ClientRetries is the default number of retries to connect to
	// a web3 provider.
	DefaultMaxWeb3ClientRetries = 5
	// checkWeb3EndpointsTimeout is the timeout to check the web3 endpoints.
	checkWeb3EndpointsTimeout = time.Second * 10
	// foundTxErrMessage is the error message when a transaction is found but it
	// is not supported.
	foundTxErrMessage = "transaction type not supported"
)

// notFoundTxRgx is a regular expression to match the error message when a
// transaction is not found.
var notFoundTxRgx = regexp.MustCompile(`not\s[be\s|]*found`)

// Web3Pool struct contains a map of chainID-[]*Web3Endpoint, where the key is
// the chainID and the value is an iterator over its endpoints. It allows to
// support multiple endpoints for the same chainID and switch between them
// looking for the available one.
type Web3Pool struct {
	mu        sync.RWMutex
	endpoints map[uint64]*Web3Iterator
}

// NewWeb3Pool method returns a new *Web3Pool instance.
func NewWeb3Pool() *Web3Pool {
	return &Web3Pool{
		endpoints: make(map[uint64]*Web3Iterator),
	}
}

// AddEndpoint method adds a new web3 provider URI to the Web3Pool.
// It returns the chainID of the endpoint added to the pool.
func (nm *Web3Pool) AddEndpoint(uri string) (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), checkWeb3EndpointsTimeout)
	defer cancel()
	// init the web3 client
	client, err := connect(ctx, uri)
	if err != nil {
		return 0, err
	}
	// get the chainID from the web3 endpoint
	bChainID, err := client.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("error getting the chainID from the web3 provider '%s': %w", uri, err)
	}
	chainID := bChainID.Uint64()

	// check if the endpoint is an archive node or not
	isArchive, err := isArchiveNode(ctx, client)
	if err != nil {
		log.Warnw("error checking if the web3 provider is an archive node", "chainID", chainID, "error", err)
	}
	endpoint := &Web3Endpoint{
		ChainID:   chainID,
		URI:       uri,
		client:    client,
		IsArchive: isArchive,
	}
	nm.mu.Lock()
	defer nm.mu.Unlock()
	if _, ok := nm.endpoints[chainID]; !ok {
		nm.endpoints[chainID] = NewWeb3Iterator(endpoint)
	} else {
		nm.endpoints[chainID].Add(endpoint)
	}
	log.Infow("web3 endpoint added", "chainID", chainID, "uri", uri, "archive", isArchive)
	return chainID, nil
}

// DelEndpoint method disables a web3 provider URI in every chainID where it
// was found.
func (nm *Web3Pool) DelEndpoint(uri string) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	for _, endpoints := range nm.endpoints {
		endpoints.Disable(uri)
	}
}

// Endpoint method returns the Web3Endpoint configured for the chainID
// provided. It returns the next available endpoint. If no available endpoint
// is found, returns an error.
func (nm *Web3Pool) Endpoint(chainID uint64) (*Web3Endpoint, error) {
	nm.mu.RLock()
	endpoints, ok := nm.endpoints[chainID]
	nm.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no endpoint found for chainID %d", chainID)
	}
	return endpoints.Next()
}

// DisableEndpoint method sets the available flag to false for the URI provided
// in the chainID provided.
func (nm *Web3Pool) DisableEndpoint(chainID uint64, uri string) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if endpoints, ok := nm.endpoints[chainID]; ok {
		endpoints.Disable(uri)
	}
}

// NumberOfEndpoints method returns the total number (or just the available ones)
// of endpoints for the chainID provided.
func (nm *Web3Pool) NumberOfEndpoints(chainID uint64, onlyAvailable bool) int {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if endpoints, ok := nm.endpoints[chainID]; ok {
		n := endpoints.Available()
		if !onlyAvailable {
			n += endpoints.Disabled()
		}
		return n
	}
	return 0
}

// Client method returns a new *Client instance for the chainID provided.
// It returns an error if the endpoint is not found.
func (nm *Web3Pool) Client(chainID uint64) (*Client, error) {
	if _, err := nm.Endpoint(chainID); err != nil {
		return nil, fmt.Errorf("error getting endpoint for chainID %d: %w", chainID, err)
	}
	return &Client{w3p: nm, chainID: chainID}, nil
}

// connect method returns a new *ethclient.Client instance for the URI provided.
// It retries to connect to the web3 provider if it fails, up to the
// DefaultMaxWeb3ClientRetries times.
func connect(ctx context.Context, uri string) (client *ethclient.Client, err error) {
	for i := 0; i < DefaultMaxWeb3ClientRetries; i++ {
		if client, err = ethclient.DialContext(ctx, uri); err != nil {
			continue
		}
		return
	}
	return nil, fmt.Errorf("error dialing web3 provider uri '%s': %w", uri, err)
}

// isArchiveNode method returns true if the web3 client is an archive node. To
// determine if the client is an archive node, checks the transactions of the
// block 1 of the chain. If client finds transactions, it is an archive node. If
// it does not find transactions, it is not an archive node. If an error occurs,
// it returns false and the error.
func isArchiveNode(ctx context.Context, client *ethclient.Client) (bool, error) {
	block, err := client.BlockByNumber(ctx, big.NewInt(1))
	if err != nil {
		if strings.Contains(err.Error(), foundTxErrMessage) {
			return true, nil
		}
		return false, fmt.Errorf("error getting block 1: %w", err)
	}

	if _, err := client.TransactionCount(ctx, block.Hash()); err != nil {
		if notFoundTxRgx.MatchString(err.Error()) {
			return false, nil
		}
		if strings.Contains(err.Error(), foundTxErrMessage) {
			return true, nil
		}
		return false, fmt.Errorf("error getting transaction in block 1: %w", err)
	}
	return true, nil
}
