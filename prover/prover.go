// Package prover obtains the zero knowledge proof of a vote request. The
// proof generation is delegated to a proving service: Client talks to a
// remote one over HTTP and Service is the reference in-process
// implementation used by the node.
package prover

import (
	"context"
	"fmt"

	"github.com/vocdoni/zk-anonvote/types"
)

// Prover produces the proof of a vote request. Implementations must not
// retry on their own: a failed attempt is reported to the caller.
type Prover interface {
	Prove(ctx context.Context, req *types.VoteRequest) (*types.ProofArtifact, error)
}

// checkArtifact ensures the public outputs of the artifact are the ones
// the request commits to and that the encoded public values match them.
func checkArtifact(req *types.VoteRequest, artifact *types.ProofArtifact) error {
	if len(artifact.Proof) == 0 {
		return fmt.Errorf("%w: empty proof", types.ErrProvingRejected)
	}
	outputs, err := types.DecodePublicValues(artifact.PublicValues)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrProvingRejected, err)
	}
	expected := &types.PublicOutputs{
		Nullifier:   req.Credential.Nullifier,
		CandidateID: req.CandidateID,
		Root:        req.Witness.Root,
	}
	if !outputs.Equal(expected) {
		return fmt.Errorf("%w: public outputs do not match the request", types.ErrProvingRejected)
	}
	artifact.PublicOutputs = *outputs
	return nil
}
