// Package voter runs the whole vote submission pipeline of a voter: derive
// the credential, prove the eligibility, build the request, prove it and
// submit the proof.
package voter

import (
	"context"
	"fmt"

	"github.com/vocdoni/zk-anonvote/ballot"
	"github.com/vocdoni/zk-anonvote/census"
	"github.com/vocdoni/zk-anonvote/credential"
	"github.com/vocdoni/zk-anonvote/prover"
	"github.com/vocdoni/zk-anonvote/submitter"
	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/log"
)

// CensusProvider returns the membership witness of a voter credential.
type CensusProvider interface {
	Witness(ctx context.Context, cred *types.VoterCredential) (*types.MembershipWitness, error)
}

// CensusFunc adapts a function to the CensusProvider interface.
type CensusFunc func(ctx context.Context, cred *types.VoterCredential) (*types.MembershipWitness, error)

// Witness calls f(ctx, cred).
func (f CensusFunc) Witness(ctx context.Context, cred *types.VoterCredential) (*types.MembershipWitness, error) {
	return f(ctx, cred)
}

// SetCensus returns a CensusProvider over an in-memory eligibility set.
func SetCensus(set *census.EligibilitySet) CensusProvider {
	return CensusFunc(func(_ context.Context, cred *types.VoterCredential) (*types.MembershipWitness, error) {
		return census.BuildWitness(cred, set)
	})
}

// Voter casts votes through the pipeline. Every call to Vote is an
// independent attempt, so a Voter can be shared across goroutines.
type Voter struct {
	deriver   *credential.Deriver
	builder   *ballot.Builder
	prover    prover.Prover
	submitter *submitter.Submitter
	census    CensusProvider
}

// New returns a Voter. Without a census provider the degenerate single
// member witness is used.
func New(deriver *credential.Deriver, builder *ballot.Builder, p prover.Prover, s *submitter.Submitter) *Voter {
	return &Voter{
		deriver:   deriver,
		builder:   builder,
		prover:    p,
		submitter: s,
	}
}

// SetCensus sets the provider of the membership witnesses.
func (v *Voter) SetCensus(c CensusProvider) {
	v.census = c
}

// Vote casts the vote of the identity for the candidate. If the vote reached
// the submitter, the Outcome is returned together with its error. Failures
// before the submission return a nil Outcome. A failed attempt is never
// resumed: a retry starts again from the identity.
func (v *Voter) Vote(ctx context.Context, identity *types.VoterIdentity, candidateID uint32) (*submitter.Outcome, error) {
	if _, ok := v.builder.Candidates().Get(candidateID); !ok {
		return nil, fmt.Errorf("%w: %d", types.ErrInvalidCandidate, candidateID)
	}
	cred, err := v.deriver.Derive(identity)
	if err != nil {
		return nil, err
	}

	used, err := v.submitter.Reconcile(ctx, cred.Nullifier)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, fmt.Errorf("%w: nullifier %s", types.ErrDuplicateVote, cred.Nullifier)
	}

	witness, err := v.witness(ctx, cred)
	if err != nil {
		return nil, err
	}
	req, err := v.builder.Build(candidateID, cred, witness)
	if err != nil {
		return nil, err
	}
	log.Debugw("proving vote", "nullifier", cred.Nullifier.String(), "candidate", candidateID)
	artifact, err := v.prover.Prove(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("prove vote: %w", err)
	}

	outcome := v.submitter.Submit(ctx, artifact)
	log.Infow("vote attempt finished",
		"nullifier", outcome.Nullifier.String(),
		"status", outcome.Status.String(),
		"steps", len(outcome.Steps))
	return outcome, outcome.Err
}

func (v *Voter) witness(ctx context.Context, cred *types.VoterCredential) (*types.MembershipWitness, error) {
	if v.census == nil {
		return census.BuildWitness(cred, nil)
	}
	witness, err := v.census.Witness(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("membership witness: %w", err)
	}
	return witness, nil
}
