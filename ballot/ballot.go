// Package ballot assembles the private input of the voting circuit.
package ballot

import (
	"fmt"

	"github.com/vocdoni/zk-anonvote/types"
)

// Builder builds vote requests for a fixed set of candidates.
type Builder struct {
	candidates types.Candidates
}

// NewBuilder returns a Builder for the candidates provided.
func NewBuilder(candidates types.Candidates) *Builder {
	return &Builder{candidates: candidates}
}

// Candidates returns the candidates the builder accepts.
func (b *Builder) Candidates() types.Candidates {
	return b.candidates
}

// Build returns the single use circuit input for the candidate, credential
// and witness provided. The candidate is validated first, so an invalid
// candidate is reported before any other check. Every byte slice of the
// result is a copy.
func (b *Builder) Build(candidateID uint32, cred *types.VoterCredential, witness *types.MembershipWitness) (*types.VoteRequest, error) {
	if !b.candidates.Contains(candidateID) {
		return nil, fmt.Errorf("%w: %d", types.ErrInvalidCandidate, candidateID)
	}
	if err := cred.Valid(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDerivation, err)
	}
	if witness == nil {
		return nil, fmt.Errorf("%w: missing membership witness", types.ErrWitnessUnavailable)
	}
	if len(witness.Root) != types.HashLen {
		return nil, fmt.Errorf("%w: invalid root length %d", types.ErrWitnessUnavailable, len(witness.Root))
	}
	path := make([]types.HexBytes, len(witness.Path))
	for i, sibling := range witness.Path {
		if len(sibling) != types.HashLen {
			return nil, fmt.Errorf("%w: invalid sibling length %d at level %d",
				types.ErrWitnessUnavailable, len(sibling), i)
		}
		path[i] = sibling.Bytes()
	}
	return &types.VoteRequest{
		CandidateID: candidateID,
		Credential: types.VoterCredential{
			Secret:    cred.Secret.Bytes(),
			Nullifier: cred.Nullifier.Bytes(),
		},
		Witness: types.MembershipWitness{
			Path: path,
			Root: witness.Root.Bytes(),
		},
	}, nil
}
