// Package submitter submits proven votes to the ledger and reports the
// outcome of every submission.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/zk-anonvote/ledger"
	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/log"
)

// Step is a stage of a submission.
type Step int

const (
	// StepPreCheck queries the ledger for the nullifier before sending.
	StepPreCheck Step = iota
	// StepSubmit sends the vote to the ledger.
	StepSubmit
	// StepAwait waits for the ledger to settle the vote.
	StepAwait
	// StepOutcome is the final step of every submission.
	StepOutcome
)

func (s Step) String() string {
	switch s {
	case StepPreCheck:
		return "precheck"
	case StepSubmit:
		return "submit"
	case StepAwait:
		return "await"
	case StepOutcome:
		return "outcome"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Status is the result of a submission.
type Status int

const (
	// StatusFailed means the vote was never sent: the pre-check could not
	// reach the ledger or the submission could not be built. Safe to retry.
	StatusFailed Status = iota
	// StatusAlreadyVoted means the pre-check found the nullifier consumed.
	// The ledger has not been touched.
	StatusAlreadyVoted
	// StatusAccepted means the ledger recorded the vote.
	StatusAccepted
	// StatusRejected means the ledger refused the vote, because the proof
	// is not valid or the nullifier has been consumed meanwhile.
	StatusRejected
	// StatusPending means the vote may or may not have been recorded. It
	// must be reconciled before any retry.
	StatusPending
)

func (s Status) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusAlreadyVoted:
		return "already voted"
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	case StatusPending:
		return "pending"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the report of a submission.
type Outcome struct {
	Status    Status         `json:"status"`
	Steps     []Step         `json:"steps"`
	Nullifier types.HexBytes `json:"nullifier"`
	TxHash    types.HexBytes `json:"txHash,omitempty"`
	Err       error          `json:"-"`
}

// Accepted returns true if the ledger recorded the vote.
func (o *Outcome) Accepted() bool {
	return o != nil && o.Status == StatusAccepted
}

func (o *Outcome) step(s Step) {
	o.Steps = append(o.Steps, s)
}

func (o *Outcome) finish(status Status, err error) *Outcome {
	o.step(StepOutcome)
	o.Status = status
	o.Err = err
	countOutcome(o)
	return o
}

// Submitter sends proven votes to a ledger. It holds no state of its own
// besides the ledger, so it is safe for concurrent use.
type Submitter struct {
	ledger ledger.Ledger
}

// New returns a Submitter over the ledger provided.
func New(l ledger.Ledger) *Submitter {
	return &Submitter{ledger: l}
}

// Submit runs a submission of the artifact. The returned Outcome is never
// nil and its Err is set unless the vote has been accepted. The pre-check is
// optimistic: the ledger remains the authority on duplicates.
func (s *Submitter) Submit(ctx context.Context, artifact *types.ProofArtifact) *Outcome {
	outcome := &Outcome{}
	if artifact == nil {
		return outcome.finish(StatusFailed, fmt.Errorf("%w: nil proof artifact", types.ErrProofInvalid))
	}
	nullifier := artifact.PublicOutputs.Nullifier
	if len(nullifier) == 0 {
		outputs, err := types.DecodePublicValues(artifact.PublicValues)
		if err != nil {
			return outcome.finish(StatusFailed, fmt.Errorf("%w: %v", types.ErrProofInvalid, err))
		}
		nullifier = outputs.Nullifier
	}
	outcome.Nullifier = append(types.HexBytes{}, nullifier...)

	outcome.step(StepPreCheck)
	used, err := s.ledger.IsNullifierUsed(ctx, nullifier)
	if err != nil {
		return outcome.finish(StatusFailed, fmt.Errorf("nullifier pre-check: %w", err))
	}
	if used {
		log.Debugw("nullifier already used, vote not sent", "nullifier", outcome.Nullifier.String())
		return outcome.finish(StatusAlreadyVoted, types.ErrDuplicateVote)
	}

	outcome.step(StepSubmit)
	tx, err := s.ledger.CastVote(ctx, artifact.Proof, artifact.PublicValues)
	if err != nil {
		switch {
		case rejected(err):
			return outcome.finish(StatusRejected, err)
		case ctx.Err() != nil, errors.Is(err, types.ErrLedgerUnavailable):
			// the vote could have reached the ledger before the failure
			return outcome.finish(StatusPending, err)
		default:
			return outcome.finish(StatusFailed, err)
		}
	}
	outcome.TxHash = tx.Hash()
	log.Debugw("vote submitted", "nullifier", outcome.Nullifier.String(), "tx", outcome.TxHash.String())

	outcome.step(StepAwait)
	start := time.Now()
	err = tx.Wait(ctx)
	awaitDuration.UpdateDuration(start)
	switch {
	case err == nil:
		log.Infow("vote accepted", "nullifier", outcome.Nullifier.String(), "tx", outcome.TxHash.String())
		return outcome.finish(StatusAccepted, nil)
	case rejected(err):
		log.Infow("vote rejected", "nullifier", outcome.Nullifier.String(), "error", err.Error())
		return outcome.finish(StatusRejected, err)
	default:
		log.Warnw("vote outcome unknown", "nullifier", outcome.Nullifier.String(), "error", err.Error())
		return outcome.finish(StatusPending, err)
	}
}

// Reconcile tells whether a pending submission of the nullifier took effect.
// It must be called before retrying a pending vote.
func (s *Submitter) Reconcile(ctx context.Context, nullifier []byte) (bool, error) {
	used, err := s.ledger.IsNullifierUsed(ctx, nullifier)
	if err != nil {
		return false, fmt.Errorf("reconcile nullifier: %w", err)
	}
	return used, nil
}

func rejected(err error) bool {
	return errors.Is(err, types.ErrProofInvalid) || errors.Is(err, types.ErrDuplicateVote)
}
