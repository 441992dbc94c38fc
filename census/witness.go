package census

import (
	"bytes"
	"fmt"

	"github.com/vocdoni/zk-anonvote/types"
)

// BuildWitness returns the membership witness of the credential. With a nil
// set the witness is the degenerate single member one: the voter commitment
// is the root and the path is empty. Otherwise the commitment must belong to
// the set, or types.ErrWitnessUnavailable is returned.
func BuildWitness(cred *types.VoterCredential, set *EligibilitySet) (*types.MembershipWitness, error) {
	if err := cred.Valid(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDerivation, err)
	}
	commitment := Commitment(cred)
	if set == nil {
		return &types.MembershipWitness{
			Path: []types.HexBytes{},
			Root: commitment,
		}, nil
	}
	path, err := set.Proof(commitment)
	if err != nil {
		return nil, err
	}
	return &types.MembershipWitness{
		Path: path,
		Root: set.Root(),
	}, nil
}

// VerifyWitness returns true if the commitment folded through the witness
// path reaches the witness root. An empty path only verifies a single
// member set.
func VerifyWitness(commitment []byte, w *types.MembershipWitness) bool {
	if w == nil || len(w.Root) != types.HashLen {
		return false
	}
	return bytes.Equal(FoldPath(commitment, w.Path), w.Root)
}
