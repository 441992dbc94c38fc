package state

import (
	"fmt"

	"github.com/vocdoni/arbo"
	"github.com/vocdoni/zk-anonvote/types"
)

// NullifierProof is an arbo inclusion or exclusion proof of a nullifier in
// the consumed nullifiers tree.
type NullifierProof struct {
	// Key+Value hashed through Siblings path, should produce Root hash
	Root      types.HexBytes `json:"root"`
	Siblings  types.HexBytes `json:"siblings"`
	Key       types.HexBytes `json:"key"`
	Value     types.HexBytes `json:"value"`
	Existence bool           `json:"existence"`
}

// GenNullifierProof returns the proof of the nullifier against the current
// nullifiers root. Existence is false if the nullifier has not been consumed.
func (s *State) GenNullifierProof(nullifier []byte) (*NullifierProof, error) {
	if len(nullifier) != types.HashLen {
		return nil, fmt.Errorf("invalid nullifier length %d", len(nullifier))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, err := s.tree.Root()
	if err != nil {
		return nil, err
	}
	leafK, leafV, packedSiblings, existence, err := s.tree.GenProof(nullifier)
	if err != nil {
		return nil, err
	}
	return &NullifierProof{
		Root:      root,
		Siblings:  packedSiblings,
		Key:       leafK,
		Value:     leafV,
		Existence: existence,
	}, nil
}

// VerifyNullifierProof checks that the nullifier has been consumed, voting
// for the candidate provided, under the proof root.
func VerifyNullifierProof(p *NullifierProof, nullifier []byte, candidateID uint32) (bool, error) {
	if !p.Existence {
		return false, nil
	}
	return arbo.CheckProof(hashFunc, nullifier, candidateKey(candidateID), p.Root, p.Siblings)
}
