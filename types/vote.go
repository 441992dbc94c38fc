package types

import (
	"bytes"
	"fmt"
	"time"
)

// VoterIdentity is the material a voter credential is derived from: a
// public identifier (usually the wallet address) and a freshness token. The
// token must be fixed for a given election, otherwise every attempt yields a
// different nullifier.
type VoterIdentity struct {
	Address string `json:"address"`
	Token   []byte `json:"token"`
}

// VoterCredential holds the private secret of a voter and the public
// nullifier derived from it. It only lives client-side for a single attempt.
type VoterCredential struct {
	Secret    HexBytes `json:"secret"`
	Nullifier HexBytes `json:"nullifier"`
}

// Valid returns an error if the secret or the nullifier do not have the
// expected length.
func (c *VoterCredential) Valid() error {
	if c == nil {
		return fmt.Errorf("nil credential")
	}
	if len(c.Secret) != HashLen {
		return fmt.Errorf("invalid secret length %d", len(c.Secret))
	}
	if len(c.Nullifier) != HashLen {
		return fmt.Errorf("invalid nullifier length %d", len(c.Nullifier))
	}
	return nil
}

// MembershipWitness is the authentication path of the voter commitment up to
// the eligibility set root. An empty path means a single member set.
type MembershipWitness struct {
	Path []HexBytes `json:"path"`
	Root HexBytes   `json:"root"`
}

// VoteRequest is the full private input of the voting circuit. Single use.
type VoteRequest struct {
	CandidateID uint32            `json:"candidateId"`
	Credential  VoterCredential   `json:"credential"`
	Witness     MembershipWitness `json:"witness"`
}

// PublicOutputs are the values the voting circuit commits to. They are the
// only information that reaches the ledger and never include the secret.
type PublicOutputs struct {
	Nullifier   HexBytes `json:"nullifier"`
	CandidateID uint32   `json:"candidateId"`
	Root        HexBytes `json:"root"`
}

// Equal returns true if both public outputs are identical.
func (p *PublicOutputs) Equal(o *PublicOutputs) bool {
	return p.CandidateID == o.CandidateID &&
		bytes.Equal(p.Nullifier, o.Nullifier) &&
		bytes.Equal(p.Root, o.Root)
}

// ProofArtifact is the proof produced by the proving service together with
// its encoded and decoded public outputs.
type ProofArtifact struct {
	Proof         HexBytes      `json:"proof"`
	PublicValues  HexBytes      `json:"publicValues"`
	PublicOutputs PublicOutputs `json:"publicOutputs"`
}

// TallyState is a snapshot of the per candidate vote counts.
type TallyState struct {
	Counts    map[uint32]uint64 `json:"counts"`
	Total     uint64            `json:"total"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Percentage returns the share of the votes of the candidate, between 0 and
// 100. It returns 0 when no votes have been cast.
func (t *TallyState) Percentage(candidateID uint32) float64 {
	if t == nil || t.Total == 0 {
		return 0
	}
	return float64(t.Counts[candidateID]) * 100 / float64(t.Total)
}
