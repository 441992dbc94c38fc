package web3

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vocdoni/zk-anonvote/ledger"
	"github.com/vocdoni/zk-anonvote/types"
	"github.com/vocdoni/zk-anonvote/web3/rpc"
	"go.vocdoni.io/dvote/log"
)

var _ ledger.Ledger = (*Contracts)(nil)

// duplicateRevertReasons are the fragments of the revert reasons the voting
// contract uses for an already consumed nullifier.
var duplicateRevertReasons = []string{"nullifier", "already voted"}

// IsNullifierUsed returns true if the contract has already consumed the
// nullifier.
func (c *Contracts) IsNullifierUsed(ctx context.Context, nullifier []byte) (bool, error) {
	if len(nullifier) != types.HashLen {
		return false, fmt.Errorf("invalid nullifier length %d", len(nullifier))
	}
	var n [32]byte
	copy(n[:], nullifier)
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodNullifierUsed, n); err != nil {
		return false, callError(ctx, err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("%w: unexpected %s output", types.ErrLedgerUnavailable, methodNullifierUsed)
	}
	used, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("%w: unexpected %s output type %T", types.ErrLedgerUnavailable, methodNullifierUsed, out[0])
	}
	return used, nil
}

// VoteCount returns the votes of the candidate.
func (c *Contracts) VoteCount(ctx context.Context, candidateID uint32) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodGetVoteCount, candidateID); err != nil {
		return 0, callError(ctx, err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("%w: unexpected %s output", types.ErrLedgerUnavailable, methodGetVoteCount)
	}
	count, ok := out[0].(*big.Int)
	if !ok || !count.IsUint64() {
		return 0, fmt.Errorf("%w: unexpected %s output %v", types.ErrLedgerUnavailable, methodGetVoteCount, out[0])
	}
	return count.Uint64(), nil
}

// CastVote sends the castVote transaction. A revert detected before sending
// is returned as types.ErrDuplicateVote or types.ErrProofInvalid. The
// returned Tx waits for the transaction to be mined.
func (c *Contracts) CastVote(ctx context.Context, proof, publicValues []byte) (ledger.Tx, error) {
	outputs, err := types.DecodePublicValues(publicValues)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrProofInvalid, err)
	}

	c.signerMu.Lock()
	defer c.signerMu.Unlock()
	if c.privKey == nil {
		return nil, fmt.Errorf("no private key set")
	}
	opts, err := c.authTransactOpts(ctx)
	if err != nil {
		return nil, callError(ctx, err)
	}
	opts.Context = ctx
	tx, err := c.contract.Transact(opts, methodCastVote, proof, publicValues)
	if err != nil {
		return nil, callError(ctx, err)
	}
	log.Infow("vote transaction sent",
		"tx", tx.Hash().Hex(),
		"nullifier", outputs.Nullifier.String(),
		"chainID", c.ChainID)
	return &voteTx{contracts: c, tx: tx, nullifier: outputs.Nullifier}, nil
}

// voteTx is a castVote transaction.
type voteTx struct {
	contracts *Contracts
	tx        *ethtypes.Transaction
	nullifier []byte
}

func (t *voteTx) Hash() []byte {
	return t.tx.Hash().Bytes()
}

// Wait waits until the transaction is mined. A failed receipt is resolved
// by checking the nullifier again: if it has been consumed the vote is a
// duplicate, otherwise the proof has been rejected.
func (t *voteTx) Wait(ctx context.Context) error {
	receipt, err := bind.WaitMined(ctx, t.contracts.backend, t.tx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", types.ErrLedgerUnavailable, err)
	}
	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		log.Debugw("vote transaction mined", "tx", t.tx.Hash().Hex(), "block", receipt.BlockNumber)
		return nil
	}
	used, err := t.contracts.IsNullifierUsed(ctx, t.nullifier)
	if err != nil {
		return fmt.Errorf("transaction %s failed, nullifier status unknown: %w", t.tx.Hash().Hex(), err)
	}
	if used {
		return fmt.Errorf("%w: transaction %s failed", types.ErrDuplicateVote, t.tx.Hash().Hex())
	}
	return fmt.Errorf("%w: transaction %s failed", types.ErrProofInvalid, t.tx.Hash().Hex())
}

// callError maps the errors of the contract calls to the vote protocol
// errors.
func callError(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	if rpc.IsRevert(err) {
		reason := strings.ToLower(err.Error())
		for _, fragment := range duplicateRevertReasons {
			if strings.Contains(reason, fragment) {
				return fmt.Errorf("%w: %v", types.ErrDuplicateVote, err)
			}
		}
		return fmt.Errorf("%w: %v", types.ErrProofInvalid, err)
	}
	return fmt.Errorf("%w: %v", types.ErrLedgerUnavailable, err)
}
