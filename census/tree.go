// Package census builds the eligibility set of an election and the membership
// witnesses of its voters.
//
// The set is a binary Merkle tree over voter commitments, where a commitment
// is SHA-256(secret || nullifier). Inner nodes hash the two children in
// ascending byte order, so the authentication path is a plain list of
// siblings. A node without sibling is promoted to the next level unchanged,
// which makes the root of a single member set the member commitment itself.
package census

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/vocdoni/zk-anonvote/types"
)

// Commitment returns the eligibility leaf of the credential provided.
func Commitment(cred *types.VoterCredential) []byte {
	h := sha256.New()
	h.Write(cred.Secret)
	h.Write(cred.Nullifier)
	return h.Sum(nil)
}

// hashPair hashes two nodes in ascending order.
func hashPair(a, b []byte) []byte {
	h := sha256.New()
	if bytes.Compare(a, b) < 0 {
		h.Write(a)
		h.Write(b)
	} else {
		h.Write(b)
		h.Write(a)
	}
	return h.Sum(nil)
}

// FoldPath computes the root reached from the leaf through the path of
// siblings provided.
func FoldPath(leaf []byte, path []types.HexBytes) []byte {
	current := append([]byte(nil), leaf...)
	for _, sibling := range path {
		current = hashPair(current, sibling)
	}
	return current
}

// EligibilitySet is an immutable Merkle tree of voter commitments.
type EligibilitySet struct {
	// levels[0] holds the sorted leaves, the last level holds the root.
	levels [][][]byte
}

// NewEligibilitySet builds the eligibility tree of the commitments provided.
// Duplicated commitments are merged. It fails if the list is empty or any
// commitment does not have the expected length.
func NewEligibilitySet(commitments [][]byte) (*EligibilitySet, error) {
	if len(commitments) == 0 {
		return nil, fmt.Errorf("empty eligibility set")
	}
	leaves := make([][]byte, 0, len(commitments))
	for _, c := range commitments {
		if len(c) != types.HashLen {
			return nil, fmt.Errorf("invalid commitment length %d", len(c))
		}
		leaves = append(leaves, append([]byte(nil), c...))
	}
	sort.Slice(leaves, func(i, j int) bool { return bytes.Compare(leaves[i], leaves[j]) < 0 })
	unique := leaves[:1]
	for _, l := range leaves[1:] {
		if !bytes.Equal(l, unique[len(unique)-1]) {
			unique = append(unique, l)
		}
	}

	levels := [][][]byte{unique}
	for current := unique; len(current) > 1; {
		next := make([][]byte, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 == len(current) {
				next = append(next, current[i])
				continue
			}
			next = append(next, hashPair(current[i], current[i+1]))
		}
		levels = append(levels, next)
		current = next
	}
	return &EligibilitySet{levels: levels}, nil
}

// Root returns the root of the eligibility tree.
func (s *EligibilitySet) Root() []byte {
	return append([]byte(nil), s.levels[len(s.levels)-1][0]...)
}

// Size returns the number of distinct members.
func (s *EligibilitySet) Size() int {
	return len(s.levels[0])
}

// Members returns a copy of the sorted member commitments.
func (s *EligibilitySet) Members() [][]byte {
	members := make([][]byte, len(s.levels[0]))
	for i, l := range s.levels[0] {
		members[i] = append([]byte(nil), l...)
	}
	return members
}

func (s *EligibilitySet) index(commitment []byte) (int, bool) {
	leaves := s.levels[0]
	i := sort.Search(len(leaves), func(i int) bool { return bytes.Compare(leaves[i], commitment) >= 0 })
	return i, i < len(leaves) && bytes.Equal(leaves[i], commitment)
}

// Contains returns true if the commitment is a member of the set.
func (s *EligibilitySet) Contains(commitment []byte) bool {
	_, ok := s.index(commitment)
	return ok
}

// Proof returns the authentication path from the commitment to the root. It
// fails with types.ErrWitnessUnavailable if the commitment is not a member.
func (s *EligibilitySet) Proof(commitment []byte) ([]types.HexBytes, error) {
	idx, ok := s.index(commitment)
	if !ok {
		return nil, fmt.Errorf("%w: commitment %x", types.ErrWitnessUnavailable, commitment)
	}
	path := []types.HexBytes{}
	for _, level := range s.levels[:len(s.levels)-1] {
		sibling := idx ^ 1
		if sibling < len(level) {
			path = append(path, append(types.HexBytes(nil), level[sibling]...))
		}
		idx /= 2
	}
	return path, nil
}
