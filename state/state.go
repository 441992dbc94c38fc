// Package state implements an authoritative vote ledger over a key-value
// database. Consumed nullifiers are kept in an arbo Merkle tree, so the set
// of nullifiers is committed by a single root, and the per candidate tallies
// are kept next to it. Every accepted vote updates both in the same write
// transaction.
package state

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/zk-anonvote/ledger"
	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
	"go.vocdoni.io/dvote/log"
)

var (
	// Prefixes for the keys in the database.
	nullifierTreePrefix = []byte("nt/")
	tallyPrefix         = []byte("tl/")
	votePrefix          = []byte("vt/")
	metaPrefix          = []byte("md/")

	keyEligibilityRoot = []byte("eligibilityRoot")
)

// hashFunc is the hash function used in the nullifier tree.
var hashFunc = arbo.HashFunctionSha256

// ErrNotFound is returned when a vote record is not found.
var ErrNotFound = errors.New("not found")

// Options configures a State.
type Options struct {
	// Candidates are the only candidate ids accepted.
	Candidates types.Candidates
	// Verifier checks the proof of every vote. Required.
	Verifier ledger.Verifier
	// EligibilityRoot, if set, is the only eligibility root accepted in the
	// public values. It overrides the root stored in the database.
	EligibilityRoot []byte
}

// State is the ledger. It is safe for concurrent use.
type State struct {
	mu         sync.RWMutex
	db         db.Database
	tree       *arbo.Tree
	candidates types.Candidates
	verifier   ledger.Verifier
	root       []byte
	encMode    cbor.EncMode
}

// New creates or opens a State stored in the database provided.
func New(database db.Database, opts Options) (*State, error) {
	if database == nil {
		return nil, fmt.Errorf("missing database")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("missing proof verifier")
	}
	if len(opts.Candidates) == 0 {
		return nil, fmt.Errorf("missing candidates")
	}
	tree, err := arbo.NewTree(arbo.Config{
		Database:     prefixeddb.NewPrefixedDatabase(database, nullifierTreePrefix),
		MaxLevels:    types.NullifierTreeMaxLevels,
		HashFunction: hashFunc,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open nullifier tree: %w", err)
	}
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	s := &State{
		db:         database,
		tree:       tree,
		candidates: opts.Candidates,
		verifier:   opts.Verifier,
		encMode:    encMode,
	}
	if len(opts.EligibilityRoot) > 0 {
		if err := s.SetEligibilityRoot(opts.EligibilityRoot); err != nil {
			return nil, err
		}
	} else {
		root, err := prefixeddb.NewPrefixedReader(database, metaPrefix).Get(keyEligibilityRoot)
		if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
			return nil, err
		}
		s.root = root
	}
	return s, nil
}

// Close the database, no more operations can be done after this.
func (s *State) Close() error {
	return s.db.Close()
}

// Candidates returns the accepted candidates.
func (s *State) Candidates() types.Candidates {
	return s.candidates
}

// SetEligibilityRoot fixes the eligibility root that the public values of
// every vote must carry. An empty root accepts any root.
func (s *State) SetEligibilityRoot(root []byte) error {
	if len(root) != 0 && len(root) != types.HashLen {
		return fmt.Errorf("invalid eligibility root length %d", len(root))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), metaPrefix)
	defer wTx.Discard()
	var err error
	if len(root) == 0 {
		err = wTx.Delete(keyEligibilityRoot)
	} else {
		err = wTx.Set(keyEligibilityRoot, root)
	}
	if err != nil {
		return err
	}
	if err := wTx.Commit(); err != nil {
		return err
	}
	s.root = bytes.Clone(root)
	log.Infow("eligibility root updated", "root", types.HexBytes(root).String())
	return nil
}

// EligibilityRoot returns the eligibility root accepted, if any.
func (s *State) EligibilityRoot() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bytes.Clone(s.root)
}

// IsNullifierUsed returns true if the nullifier has been consumed.
func (s *State) IsNullifierUsed(ctx context.Context, nullifier []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(nullifier) != types.HashLen {
		return false, fmt.Errorf("invalid nullifier length %d", len(nullifier))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nullifierUsed(s.db, nullifier)
}

// nullifierUsed checks the nullifier tree through the reader provided.
func (s *State) nullifierUsed(rTx db.Reader, nullifier []byte) (bool, error) {
	_, _, err := s.tree.GetWithTx(prefixeddb.NewPrefixedReader(rTx, nullifierTreePrefix), nullifier)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, arbo.ErrKeyNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", types.ErrLedgerUnavailable, err)
}

// CastVote verifies the proof and records the vote in a single atomic
// operation. The checks run in this order: public values decoding,
// candidate, eligibility root, proof and nullifier. Any failure leaves the
// ledger untouched. The returned Tx is already final.
func (s *State) CastVote(ctx context.Context, proof, publicValues []byte) (ledger.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	outputs, err := types.DecodePublicValues(publicValues)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrProofInvalid, err)
	}
	if !s.candidates.Contains(outputs.CandidateID) {
		return nil, fmt.Errorf("%w: unknown candidate %d", types.ErrProofInvalid, outputs.CandidateID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.root != nil && !bytes.Equal(s.root, outputs.Root) {
		return nil, fmt.Errorf("%w: eligibility root %x is not the published one", types.ErrProofInvalid, outputs.Root)
	}
	if err := s.verifier.Verify(proof, publicValues); err != nil {
		if errors.Is(err, types.ErrProofInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", types.ErrProofInvalid, err)
	}

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	used, err := s.nullifierUsed(wTx, outputs.Nullifier)
	if err != nil {
		return nil, err
	}
	if used {
		log.Debugw("duplicate vote rejected", "nullifier", outputs.Nullifier.String())
		return nil, fmt.Errorf("%w: %x", types.ErrDuplicateVote, outputs.Nullifier)
	}

	candidate := candidateKey(outputs.CandidateID)
	treeTx := prefixeddb.NewPrefixedWriteTx(wTx, nullifierTreePrefix)
	if err := s.tree.AddWithTx(treeTx, outputs.Nullifier, candidate); err != nil {
		if errors.Is(err, arbo.ErrKeyAlreadyExists) {
			return nil, fmt.Errorf("%w: %x", types.ErrDuplicateVote, outputs.Nullifier)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrLedgerUnavailable, err)
	}
	votes, err := s.tallyWithTx(wTx, outputs.CandidateID)
	if err != nil {
		return nil, err
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, tallyPrefix).Set(candidate, uint64Bytes(votes+1)); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrLedgerUnavailable, err)
	}
	record := newVoteRecord(outputs, proof, publicValues)
	if err := s.storeVote(wTx, record); err != nil {
		return nil, err
	}
	if err := wTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrLedgerUnavailable, err)
	}
	log.Infow("vote accepted",
		"nullifier", outputs.Nullifier.String(),
		"candidate", outputs.CandidateID,
		"tx", record.TxHash.String())
	return &ledger.DoneTx{TxHash: record.TxHash}, nil
}

// VoteCount returns the number of votes of the candidate.
func (s *State) VoteCount(ctx context.Context, candidateID uint32) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !s.candidates.Contains(candidateID) {
		return 0, fmt.Errorf("%w: %d", types.ErrInvalidCandidate, candidateID)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tallyWithTx(s.db, candidateID)
}

func (s *State) tallyWithTx(rTx db.Reader, candidateID uint32) (uint64, error) {
	value, err := prefixeddb.NewPrefixedReader(rTx, tallyPrefix).Get(candidateKey(candidateID))
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrLedgerUnavailable, err)
	}
	if len(value) != 8 {
		return 0, fmt.Errorf("corrupted tally of candidate %d", candidateID)
	}
	return binary.LittleEndian.Uint64(value), nil
}

// Tally returns an atomic snapshot of the votes of every candidate.
func (s *State) Tally() (*types.TallyState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tally := &types.TallyState{
		Counts:    make(map[uint32]uint64, len(s.candidates)),
		UpdatedAt: time.Now(),
	}
	for _, c := range s.candidates {
		votes, err := s.tallyWithTx(s.db, c.ID)
		if err != nil {
			return nil, err
		}
		tally.Counts[c.ID] = votes
		tally.Total += votes
	}
	return tally, nil
}

// NullifierRoot returns the root of the consumed nullifiers tree.
func (s *State) NullifierRoot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Root()
}

// Nullifiers returns the number of consumed nullifiers.
func (s *State) Nullifiers() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.tree.GetNLeafs()
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// Consistent checks that the sum of the tallies equals the number of
// consumed nullifiers.
func (s *State) Consistent() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, c := range s.candidates {
		votes, err := s.tallyWithTx(s.db, c.ID)
		if err != nil {
			return err
		}
		total += votes
	}
	n, err := s.tree.GetNLeafs()
	if err != nil {
		return err
	}
	if total != uint64(n) {
		return fmt.Errorf("inconsistent ledger: %d votes counted, %d nullifiers consumed", total, n)
	}
	return nil
}

// candidateKey encodes a candidate id as a key and as the nullifier tree
// leaf value.
func candidateKey(candidateID uint32) []byte {
	key := make([]byte, types.CandidateIDLen)
	binary.LittleEndian.PutUint32(key, candidateID)
	return key
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
