// Package ledger defines the interface of the append-only vote ledger. The
// ledger is the single authority on consumed nullifiers and vote counts.
package ledger

import "context"

// Ledger is the external vote ledger.
type Ledger interface {
	// IsNullifierUsed returns true if the nullifier has already been
	// consumed. It is a read only query.
	IsNullifierUsed(ctx context.Context, nullifier []byte) (bool, error)
	// CastVote submits the proof and its public values. The returned Tx
	// reports the final outcome of the submission.
	CastVote(ctx context.Context, proof, publicValues []byte) (Tx, error)
	// VoteCount returns the number of votes of the candidate.
	VoteCount(ctx context.Context, candidateID uint32) (uint64, error)
}

// Tx is a submitted vote. Wait blocks until the submission is final and
// returns nil if the vote was recorded, or one of types.ErrDuplicateVote,
// types.ErrProofInvalid or types.ErrLedgerUnavailable otherwise. If the
// context is done first, the context error is returned and the outcome is
// unknown.
type Tx interface {
	Hash() []byte
	Wait(ctx context.Context) error
}

// Verifier checks a proof against its public values. It returns nil if the
// proof is valid.
type Verifier interface {
	Verify(proof, publicValues []byte) error
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(proof, publicValues []byte) error

// Verify calls f(proof, publicValues).
func (f VerifierFunc) Verify(proof, publicValues []byte) error {
	return f(proof, publicValues)
}

// DoneTx is a Tx whose outcome is already known.
type DoneTx struct {
	TxHash []byte
	Err    error
}

// Hash returns the transaction hash.
func (t *DoneTx) Hash() []byte {
	return t.TxHash
}

// Wait returns the known outcome.
func (t *DoneTx) Wait(_ context.Context) error {
	return t.Err
}
