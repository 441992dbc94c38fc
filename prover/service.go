package prover

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/zk-anonvote/census"
	"github.com/vocdoni/zk-anonvote/credential"
	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/log"
)

// Service is the reference proving service. It checks the relation the
// voting circuit enforces and, instead of a succinct proof, attests the
// resulting public values with an ECDSA signature. Ledgers verify such
// attestations with the verifier returned by NewAttestationVerifier.
type Service struct {
	key     *ecdsa.PrivateKey
	deriver *credential.Deriver
	proofs  atomic.Uint64
}

// NewService returns a proving service that signs with the key provided and
// checks nullifiers with the derivation scheme provided. A nil key makes the
// service generate a random one.
func NewService(key *ecdsa.PrivateKey, scheme credential.Scheme) (*Service, error) {
	if key == nil {
		var err error
		if key, err = ethcrypto.GenerateKey(); err != nil {
			return nil, fmt.Errorf("could not generate attestation key: %w", err)
		}
	}
	return &Service{
		key:     key,
		deriver: credential.New(scheme),
	}, nil
}

// Address returns the address of the attestation key.
func (s *Service) Address() common.Address {
	return ethcrypto.PubkeyToAddress(s.key.PublicKey)
}

// Proofs returns the number of proofs generated.
func (s *Service) Proofs() uint64 {
	return s.proofs.Load()
}

// Prove checks that the voter commitment folded through the witness path
// reaches the witness root and that the nullifier belongs to the secret.
// Both failures are reported with types.ErrProvingRejected.
func (s *Service) Prove(ctx context.Context, req *types.VoteRequest) (*types.ProofArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", types.ErrProvingRejected)
	}
	if err := req.Credential.Valid(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrProvingRejected, err)
	}
	if err := s.deriver.Verify(&req.Credential); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrProvingRejected, err)
	}
	for i, sibling := range req.Witness.Path {
		if len(sibling) != types.HashLen {
			return nil, fmt.Errorf("%w: invalid sibling length %d at level %d",
				types.ErrProvingRejected, len(sibling), i)
		}
	}
	if !census.VerifyWitness(census.Commitment(&req.Credential), &req.Witness) {
		return nil, fmt.Errorf("%w: voter not in eligible list", types.ErrProvingRejected)
	}

	outputs := types.PublicOutputs{
		Nullifier:   req.Credential.Nullifier.Bytes(),
		CandidateID: req.CandidateID,
		Root:        req.Witness.Root.Bytes(),
	}
	publicValues, err := types.EncodePublicValues(&outputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrProvingRejected, err)
	}
	signature, err := ethcrypto.Sign(ethcrypto.Keccak256(publicValues), s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: could not sign public values: %v", types.ErrProvingUnavailable, err)
	}
	s.proofs.Add(1)
	log.Debugw("vote proof generated",
		"nullifier", outputs.Nullifier.String(),
		"candidate", outputs.CandidateID,
		"root", outputs.Root.String())
	return &types.ProofArtifact{
		Proof:         signature,
		PublicValues:  publicValues,
		PublicOutputs: outputs,
	}, nil
}
