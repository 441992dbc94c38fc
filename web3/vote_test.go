package web3

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-anonvote/ballot"
	"github.com/vocdoni/zk-anonvote/census"
	"github.com/vocdoni/zk-anonvote/credential"
	"github.com/vocdoni/zk-anonvote/prover"
	"github.com/vocdoni/zk-anonvote/state"
	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/db/metadb"
)

const testChainID = 1337

// fakeChain is a Backend that runs the voting contract calls against a
// local State.
type fakeChain struct {
	mu       sync.Mutex
	abi      abi.ABI
	ledger   *state.State
	nonce    uint64
	receipts map[common.Hash]*ethtypes.Receipt
	down     bool
}

func newFakeChain(c *qt.C, ledger *state.State) *fakeChain {
	parsed, err := abi.JSON(strings.NewReader(VotingABI))
	c.Assert(err, qt.IsNil)
	return &fakeChain{
		abi:      parsed,
		ledger:   ledger,
		receipts: make(map[common.Hash]*ethtypes.Receipt),
	}
}

func (f *fakeChain) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeChain) unavailable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return fmt.Errorf("dial tcp 127.0.0.1:8545: connection refused")
	}
	return nil
}

func (f *fakeChain) decode(data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("no method selector")
	}
	method, err := f.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	return method, args, err
}

func (f *fakeChain) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeChain) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := f.unavailable(); err != nil {
		return nil, err
	}
	method, args, err := f.decode(call.Data)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case methodNullifierUsed:
		nullifier := args[0].([32]byte)
		used, err := f.ledger.IsNullifierUsed(ctx, nullifier[:])
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(used)
	case methodGetVoteCount:
		count, err := f.ledger.VoteCount(ctx, args[0].(uint32))
		if err != nil {
			return nil, fmt.Errorf("execution reverted: %v", err)
		}
		return method.Outputs.Pack(new(big.Int).SetUint64(count))
	}
	return nil, fmt.Errorf("execution reverted: %s is not a view method", method.Name)
}

func (f *fakeChain) HeaderByNumber(context.Context, *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{Number: big.NewInt(1), BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	if err := f.unavailable(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	method, args, err := f.decode(call.Data)
	if err != nil {
		return 0, err
	}
	if method.Name == methodCastVote {
		outputs, err := types.DecodePublicValues(args[1].([]byte))
		if err != nil {
			return 0, fmt.Errorf("execution reverted: invalid public values")
		}
		used, err := f.ledger.IsNullifierUsed(ctx, outputs.Nullifier)
		if err != nil {
			return 0, err
		}
		if used {
			return 0, fmt.Errorf("execution reverted: nullifier already used")
		}
	}
	return 100_000, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	method, args, err := f.decode(tx.Data())
	if err != nil {
		return err
	}
	if method.Name != methodCastVote {
		return fmt.Errorf("unexpected method %s", method.Name)
	}
	status := ethtypes.ReceiptStatusSuccessful
	if _, err := f.ledger.CastVote(ctx, args[0].([]byte), args[1].([]byte)); err != nil {
		status = ethtypes.ReceiptStatusFailed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonce++
	f.receipts[tx.Hash()] = &ethtypes.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(f.nonce)),
	}
	return nil
}

func (f *fakeChain) FilterLogs(context.Context, ethereum.FilterQuery) ([]ethtypes.Log, error) {
	return nil, nil
}

func (f *fakeChain) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- ethtypes.Log) (ethereum.Subscription, error) {
	return nil, fmt.Errorf("subscriptions not supported")
}

func (f *fakeChain) TransactionReceipt(_ context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

type testContracts struct {
	contracts *Contracts
	chain     *fakeChain
	prover    *prover.Service
	deriver   *credential.Deriver
	builder   *ballot.Builder
}

func newTestContracts(c *qt.C) *testContracts {
	cs, err := types.ParseCandidates([]string{"1:Alice Johnson", "2:Bob Smith", "3:Carol Williams"})
	c.Assert(err, qt.IsNil)
	svc, err := prover.NewService(nil, credential.SchemePoseidon)
	c.Assert(err, qt.IsNil)
	st, err := state.New(metadb.NewTest(c.TB), state.Options{
		Candidates: cs,
		Verifier:   prover.NewAttestationVerifier(svc.Address()),
	})
	c.Assert(err, qt.IsNil)

	chain := newFakeChain(c, st)
	contracts, err := NewContractsWithBackend(common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), testChainID, chain)
	c.Assert(err, qt.IsNil)
	key, err := ethcrypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	c.Assert(contracts.SetAccountPrivateKey("0x"+hex.EncodeToString(ethcrypto.FromECDSA(key))), qt.IsNil)
	c.Assert(contracts.AccountAddress(), qt.Equals, ethcrypto.PubkeyToAddress(key.PublicKey))
	return &testContracts{
		contracts: contracts,
		chain:     chain,
		prover:    svc,
		deriver:   credential.New(credential.SchemePoseidon),
		builder:   ballot.NewBuilder(cs),
	}
}

func (tc *testContracts) artifact(c *qt.C, address string, candidateID uint32) *types.ProofArtifact {
	cred, err := tc.deriver.Derive(&types.VoterIdentity{
		Address: address,
		Token:   credential.ElectionToken([]byte("web3-test")),
	})
	c.Assert(err, qt.IsNil)
	witness, err := census.BuildWitness(cred, nil)
	c.Assert(err, qt.IsNil)
	req, err := tc.builder.Build(candidateID, cred, witness)
	c.Assert(err, qt.IsNil)
	artifact, err := tc.prover.Prove(context.Background(), req)
	c.Assert(err, qt.IsNil)
	return artifact
}

func TestContractsCastVote(t *testing.T) {
	c := qt.New(t)
	tc := newTestContracts(c)
	ctx := context.Background()
	artifact := tc.artifact(c, "0xvoter1", 3)

	used, err := tc.contracts.IsNullifierUsed(ctx, artifact.PublicOutputs.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(used, qt.IsFalse)

	tx, err := tc.contracts.CastVote(ctx, artifact.Proof, artifact.PublicValues)
	c.Assert(err, qt.IsNil)
	c.Assert(tx.Hash(), qt.HasLen, common.HashLength)
	c.Assert(tx.Wait(ctx), qt.IsNil)

	used, err = tc.contracts.IsNullifierUsed(ctx, artifact.PublicOutputs.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(used, qt.IsTrue)
	count, err := tc.contracts.VoteCount(ctx, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(1))
	count, err = tc.contracts.VoteCount(ctx, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(0))

	// the estimation reverts before sending the duplicate
	_, err = tc.contracts.CastVote(ctx, artifact.Proof, artifact.PublicValues)
	c.Assert(err, qt.ErrorIs, types.ErrDuplicateVote)
}

func TestContractsFailedReceipt(t *testing.T) {
	c := qt.New(t)
	tc := newTestContracts(c)
	ctx := context.Background()
	// a fixed gas limit skips the estimation, so reverts are only seen in
	// the receipts
	tc.contracts.SetGasLimit(2_000_000)

	artifact := tc.artifact(c, "0xvoter2", 1)
	tx, err := tc.contracts.CastVote(ctx, artifact.Proof, artifact.PublicValues)
	c.Assert(err, qt.IsNil)
	c.Assert(tx.Wait(ctx), qt.IsNil)

	tx, err = tc.contracts.CastVote(ctx, artifact.Proof, artifact.PublicValues)
	c.Assert(err, qt.IsNil)
	c.Assert(tx.Wait(ctx), qt.ErrorIs, types.ErrDuplicateVote)

	other := tc.artifact(c, "0xvoter3", 1)
	forged := append(types.HexBytes{}, other.Proof...)
	forged[0] ^= 0xff
	tx, err = tc.contracts.CastVote(ctx, forged, other.PublicValues)
	c.Assert(err, qt.IsNil)
	c.Assert(tx.Wait(ctx), qt.ErrorIs, types.ErrProofInvalid)

	count, err := tc.contracts.VoteCount(ctx, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(1))
}

func TestContractsErrors(t *testing.T) {
	c := qt.New(t)
	tc := newTestContracts(c)
	ctx := context.Background()
	artifact := tc.artifact(c, "0xvoter4", 2)

	_, err := tc.contracts.CastVote(ctx, artifact.Proof, artifact.PublicValues[:10])
	c.Assert(err, qt.ErrorIs, types.ErrProofInvalid)
	_, err = tc.contracts.IsNullifierUsed(ctx, []byte{1, 2, 3})
	c.Assert(err, qt.IsNotNil)
	_, err = tc.contracts.VoteCount(ctx, 9)
	c.Assert(err, qt.ErrorIs, types.ErrProofInvalid)

	tc.chain.setDown(true)
	_, err = tc.contracts.IsNullifierUsed(ctx, artifact.PublicOutputs.Nullifier)
	c.Assert(err, qt.ErrorIs, types.ErrLedgerUnavailable)
	_, err = tc.contracts.VoteCount(ctx, 2)
	c.Assert(err, qt.ErrorIs, types.ErrLedgerUnavailable)
	_, err = tc.contracts.CastVote(ctx, artifact.Proof, artifact.PublicValues)
	c.Assert(err, qt.ErrorIs, types.ErrLedgerUnavailable)
	c.Assert(types.Retryable(err), qt.IsTrue)

	tc.chain.setDown(false)
	tx, err := tc.contracts.CastVote(ctx, artifact.Proof, artifact.PublicValues)
	c.Assert(err, qt.IsNil)
	c.Assert(tx.Wait(ctx), qt.IsNil)
}

func TestContractsNoSigner(t *testing.T) {
	c := qt.New(t)
	chain := newFakeChain(c, nil)
	contracts, err := NewContractsWithBackend(common.Address{}, testChainID, chain)
	c.Assert(err, qt.IsNil)
	_, err = contracts.CastVote(context.Background(), nil, make([]byte, types.PublicValuesLen))
	c.Assert(err, qt.ErrorMatches, "no private key set")
	c.Assert(contracts.SetAccountPrivateKey("not a key"), qt.IsNotNil)
	c.Assert(contracts.AddWeb3Endpoint("http://localhost:8545"), qt.IsNotNil)
}
