package types

import (
	"errors"
	"fmt"
)

var (
	// ErrDerivation is returned when the voter identity input is empty or
	// malformed. Fatal to the attempt.
	ErrDerivation = fmt.Errorf("credential derivation failed")
	// ErrWitnessUnavailable is returned when the voter commitment is not part
	// of the published eligibility set.
	ErrWitnessUnavailable = fmt.Errorf("voter is not in the eligible set")
	// ErrInvalidCandidate is returned when the candidate id is not one of the
	// configured candidates.
	ErrInvalidCandidate = fmt.Errorf("invalid candidate")
	// ErrProvingUnavailable is returned on transport failures against the
	// proving service. Safe to retry with the same request.
	ErrProvingUnavailable = fmt.Errorf("proving service unavailable")
	// ErrProvingRejected is returned when the proving service reports that the
	// inputs do not satisfy the circuit. Do not retry with the same inputs.
	ErrProvingRejected = fmt.Errorf("proving service rejected the request")
	// ErrDuplicateVote is returned when the nullifier has already been
	// consumed, either by the optimistic pre-check or by the ledger.
	ErrDuplicateVote = fmt.Errorf("nullifier already used")
	// ErrProofInvalid is returned when the ledger verifier rejects the proof.
	ErrProofInvalid = fmt.Errorf("proof verification failed")
	// ErrLedgerUnavailable is returned on transient ledger read/write
	// failures. Safe to retry with backoff.
	ErrLedgerUnavailable = fmt.Errorf("ledger unavailable")
)

// ErrorClass groups the error kinds by the user-visible behaviour they
// require.
type ErrorClass int

const (
	// ClassNone is returned for nil errors.
	ClassNone ErrorClass = iota
	// ClassAlreadyVoted means "you already voted".
	ClassAlreadyVoted
	// ClassNotEligible means the voter is not part of the eligible set.
	ClassNotEligible
	// ClassTryAgain means something transient went wrong and the attempt can
	// be restarted.
	ClassTryAgain
	// ClassContactSupport means this should not happen.
	ClassContactSupport
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassAlreadyVoted:
		return "already voted"
	case ClassNotEligible:
		return "not eligible"
	case ClassTryAgain:
		return "something went wrong, try again"
	default:
		return "this should not happen, contact support"
	}
}

// Classify returns the user-visible class of the error provided.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrDuplicateVote):
		return ClassAlreadyVoted
	case errors.Is(err, ErrWitnessUnavailable):
		return ClassNotEligible
	case Retryable(err):
		return ClassTryAgain
	default:
		return ClassContactSupport
	}
}

// Retryable returns true if the attempt that failed with err can be started
// again. Only transport kinds are retryable; every other kind is terminal for
// the inputs that produced it.
func Retryable(err error) bool {
	return errors.Is(err, ErrProvingUnavailable) || errors.Is(err, ErrLedgerUnavailable)
}
