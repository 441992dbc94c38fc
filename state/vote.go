package state

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// VoteRecord is the receipt of an accepted vote. It is keyed by nullifier
// and never stores anything that links the vote to the voter.
type VoteRecord struct {
	Nullifier    types.HexBytes `cbor:"1,keyasint" json:"nullifier"`
	CandidateID  uint32         `cbor:"2,keyasint" json:"candidateId"`
	Root         types.HexBytes `cbor:"3,keyasint" json:"root"`
	TxHash       types.HexBytes `cbor:"4,keyasint" json:"txHash"`
	PublicValues types.HexBytes `cbor:"5,keyasint" json:"publicValues"`
	Proof        types.HexBytes `cbor:"6,keyasint" json:"proof"`
	Timestamp    int64          `cbor:"7,keyasint" json:"timestamp"`
}

func newVoteRecord(outputs *types.PublicOutputs, proof, publicValues []byte) *VoteRecord {
	return &VoteRecord{
		Nullifier:    outputs.Nullifier,
		CandidateID:  outputs.CandidateID,
		Root:         outputs.Root,
		TxHash:       TxHash(proof, publicValues),
		PublicValues: publicValues,
		Proof:        proof,
		Timestamp:    time.Now().Unix(),
	}
}

// TxHash returns the identifier of the vote transaction with the proof and
// public values provided.
func TxHash(proof, publicValues []byte) types.HexBytes {
	h := sha256.New()
	h.Write(publicValues)
	h.Write(proof)
	return h.Sum(nil)
}

func (s *State) storeVote(wTx db.WriteTx, record *VoteRecord) error {
	data, err := s.encMode.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode vote record: %w", err)
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, votePrefix).Set(record.Nullifier, data); err != nil {
		return fmt.Errorf("%w: %v", types.ErrLedgerUnavailable, err)
	}
	return nil
}

// Vote returns the receipt of the vote with the nullifier provided. It
// returns ErrNotFound if the nullifier has not been consumed.
func (s *State) Vote(nullifier []byte) (*VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := prefixeddb.NewPrefixedReader(s.db, votePrefix).Get(nullifier)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	record := &VoteRecord{}
	if err := cbor.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("decode vote record: %w", err)
	}
	return record, nil
}

// Votes returns the number of vote receipts stored.
func (s *State) Votes() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n uint64
	err := prefixeddb.NewPrefixedReader(s.db, votePrefix).Iterate(nil, func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}
