package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/zk-anonvote/types"
)

// ProofRequest is the body of a proof generation request. It carries the
// private inputs of the voting circuit and must only be sent to a trusted
// proving service.
type ProofRequest struct {
	VoterSecret    types.HexBytes   `json:"voterSecret"`
	VoterNullifier types.HexBytes   `json:"voterNullifier"`
	CandidateID    uint32           `json:"candidateId"`
	MerkleProof    []types.HexBytes `json:"merkleProof"`
	MerkleRoot     types.HexBytes   `json:"merkleRoot"`
}

// NewProofRequest returns the wire representation of the vote request.
func NewProofRequest(req *types.VoteRequest) *ProofRequest {
	path := req.Witness.Path
	if path == nil {
		path = []types.HexBytes{}
	}
	return &ProofRequest{
		VoterSecret:    req.Credential.Secret,
		VoterNullifier: req.Credential.Nullifier,
		CandidateID:    req.CandidateID,
		MerkleProof:    path,
		MerkleRoot:     req.Witness.Root,
	}
}

// VoteRequest returns the vote request carried by the proof request.
func (p *ProofRequest) VoteRequest() *types.VoteRequest {
	return &types.VoteRequest{
		CandidateID: p.CandidateID,
		Credential: types.VoterCredential{
			Secret:    p.VoterSecret,
			Nullifier: p.VoterNullifier,
		},
		Witness: types.MembershipWitness{
			Path: p.MerkleProof,
			Root: p.MerkleRoot,
		},
	}
}

// ProofResponse is the response of the proving service.
type ProofResponse struct {
	Proof        types.HexBytes `json:"proof"`
	PublicValues types.HexBytes `json:"publicValues"`
	Nullifier    types.HexBytes `json:"nullifier"`
}

// Vote is the body of a vote submission: the proof and the public values it
// commits to.
type Vote struct {
	Proof        types.HexBytes `json:"proof"`
	PublicValues types.HexBytes `json:"publicValues"`
}

// VoteResponse is the response to an accepted vote.
type VoteResponse struct {
	TxHash    types.HexBytes `json:"txHash"`
	Nullifier types.HexBytes `json:"nullifier"`
}

// NullifierStatus is the response to a nullifier query.
type NullifierStatus struct {
	Nullifier types.HexBytes `json:"nullifier"`
	Used      bool           `json:"used"`
}

// VoteCount is the response to a candidate vote count query.
type VoteCount struct {
	CandidateID uint32 `json:"candidateId"`
	Count       uint64 `json:"count"`
}

// CandidatesResponse lists the candidates of the election.
type CandidatesResponse struct {
	Candidates types.Candidates `json:"candidates"`
}

// TallyCandidate is the tally of a single candidate.
type TallyCandidate struct {
	types.Candidate
	Votes      uint64  `json:"votes"`
	Percentage float64 `json:"percentage"`
}

// Tally is the response to a tally request.
type Tally struct {
	Candidates    []TallyCandidate `json:"candidates"`
	Total         uint64           `json:"total"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	NullifierRoot types.HexBytes   `json:"nullifierRoot,omitempty"`
}

// NewCensus is the response to a new census creation request.
type NewCensus struct {
	Census uuid.UUID `json:"census"`
}

// CensusParticipants is a list of voter commitments to add to a census.
type CensusParticipants struct {
	Commitments []types.HexBytes `json:"commitments"`
}

// CensusRoot is the response to a census root request.
type CensusRoot struct {
	Root types.HexBytes `json:"root"`
	Size int            `json:"size"`
}

// CensusProof is the membership witness of a voter commitment.
type CensusProof struct {
	Commitment types.HexBytes   `json:"commitment"`
	Path       []types.HexBytes `json:"path"`
	Root       types.HexBytes   `json:"root"`
}
