// Package web3 implements the vote ledger over the voting contract of an
// EVM chain.
package web3

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/zk-anonvote/web3/rpc"
	"go.vocdoni.io/dvote/log"
)

const (
	// web3QueryTimeout is the timeout of every read only contract call.
	web3QueryTimeout = 10 * time.Second
)

// VotingABI is the ABI of the voting contract.
const VotingABI = `[
  {"inputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"name":"nullifierUsed","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"bytes","name":"proof","type":"bytes"},{"internalType":"bytes","name":"publicValues","type":"bytes"}],"name":"castVote","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"internalType":"uint32","name":"candidateId","type":"uint32"}],"name":"getVoteCount","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const (
	methodNullifierUsed = "nullifierUsed"
	methodCastVote      = "castVote"
	methodGetVoteCount  = "getVoteCount"
)

// Backend is the chain access the contracts need.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Contracts contains the binding to the deployed voting contract. The signer
// account is explicit: it must be set with SetAccountPrivateKey before
// casting votes.
type Contracts struct {
	ChainID  uint64
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
	backend  Backend
	web3pool *rpc.Web3Pool

	signerMu sync.Mutex
	privKey  *ecdsa.PrivateKey
	account  common.Address
	gasLimit uint64
}

// NewContracts creates a new Contracts instance for the voting contract
// deployed at the address provided, reachable through the web3 endpoint.
func NewContracts(address common.Address, web3rpc string) (*Contracts, error) {
	w3pool := rpc.NewWeb3Pool()
	chainID, err := w3pool.AddEndpoint(web3rpc)
	if err != nil {
		return nil, fmt.Errorf("failed to add web3 endpoint: %w", err)
	}
	cli, err := w3pool.Client(chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	c, err := NewContractsWithBackend(address, chainID, cli)
	if err != nil {
		return nil, err
	}
	c.web3pool = w3pool
	return c, nil
}

// NewContractsWithBackend creates a new Contracts instance over the backend
// provided.
func NewContractsWithBackend(address common.Address, chainID uint64, backend Backend) (*Contracts, error) {
	parsed, err := abi.JSON(strings.NewReader(VotingABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse voting ABI: %w", err)
	}
	return &Contracts{
		ChainID:  chainID,
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		backend:  backend,
	}, nil
}

// Address returns the address of the voting contract.
func (c *Contracts) Address() common.Address {
	return c.address
}

// AddWeb3Endpoint adds a new web3 endpoint to the pool.
func (c *Contracts) AddWeb3Endpoint(web3rpc string) error {
	if c.web3pool == nil {
		return fmt.Errorf("contracts not backed by a web3 pool")
	}
	chainID, err := c.web3pool.AddEndpoint(web3rpc)
	if err != nil {
		return err
	}
	if chainID != c.ChainID {
		c.web3pool.DisableEndpoint(chainID, web3rpc)
		return fmt.Errorf("endpoint %s is on chainID %d, expected %d", web3rpc, chainID, c.ChainID)
	}
	return nil
}

// SetAccountPrivateKey sets the private key to be used for signing transactions.
func (c *Contracts) SetAccountPrivateKey(hexPrivKey string) error {
	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexPrivKey, "0x"))
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	c.signerMu.Lock()
	defer c.signerMu.Unlock()
	c.privKey = privKey
	c.account = crypto.PubkeyToAddress(privKey.PublicKey)
	return nil
}

// AccountAddress returns the address of the account used to sign transactions.
func (c *Contracts) AccountAddress() common.Address {
	c.signerMu.Lock()
	defer c.signerMu.Unlock()
	return c.account
}

// SetGasLimit sets a fixed gas limit for the vote transactions. Zero means
// the gas is estimated for every transaction.
func (c *Contracts) SetGasLimit(gasLimit uint64) {
	c.signerMu.Lock()
	defer c.signerMu.Unlock()
	c.gasLimit = gasLimit
}

// authTransactOpts helper method creates the transact options with the private
// key configured. It sets the nonce, gas tip cap, and gas limit. If something
// goes wrong creating the signer, getting the nonce, or getting the gas tip,
// it returns an error. The caller must hold signerMu.
func (c *Contracts) authTransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.privKey == nil {
		return nil, fmt.Errorf("no private key set")
	}
	bChainID := new(big.Int).SetUint64(c.ChainID)
	auth, err := bind.NewKeyedTransactorWithChainID(c.privKey, bChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	log.Debugw("getting nonce", "address", c.account.Hex())
	nonce, err := c.backend.PendingNonceAt(ctx, c.account)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	if auth.GasTipCap, err = c.backend.SuggestGasTipCap(ctx); err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	// a zero gas limit makes the binding estimate it, which surfaces reverts
	// before the transaction is sent
	auth.GasLimit = c.gasLimit
	return auth, nil
}
