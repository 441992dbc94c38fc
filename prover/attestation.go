package prover

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/zk-anonvote/ledger"
	"github.com/vocdoni/zk-anonvote/types"
)

// AttestationLen is the length of a proof generated by Service.
const AttestationLen = ethcrypto.SignatureLength

// NewAttestationVerifier returns a verifier that accepts the proofs signed
// by the proving service with the address provided. Every failure is
// reported with types.ErrProofInvalid.
func NewAttestationVerifier(address common.Address) ledger.Verifier {
	return ledger.VerifierFunc(func(proof, publicValues []byte) error {
		if len(proof) != AttestationLen {
			return fmt.Errorf("%w: invalid proof length %d", types.ErrProofInvalid, len(proof))
		}
		if len(publicValues) != types.PublicValuesLen {
			return fmt.Errorf("%w: invalid public values length %d", types.ErrProofInvalid, len(publicValues))
		}
		pubKey, err := ethcrypto.SigToPub(ethcrypto.Keccak256(publicValues), proof)
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrProofInvalid, err)
		}
		if signer := ethcrypto.PubkeyToAddress(*pubKey); signer != address {
			return fmt.Errorf("%w: unexpected signer %s", types.ErrProofInvalid, signer.Hex())
		}
		return nil
	})
}
