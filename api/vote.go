package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/zk-anonvote/storage"
	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/log"
)

// getCandidates returns the candidates of the election.
// GET /candidates
func (a *API) getCandidates(w http.ResponseWriter, r *http.Request) {
	httpWriteJSON(w, &CandidatesResponse{Candidates: a.candidates})
}

// getNullifier returns whether the nullifier has been consumed.
// GET /nullifiers/{nullifier}
func (a *API) getNullifier(w http.ResponseWriter, r *http.Request) {
	nullifier, err := types.HexStringToHexBytes(chi.URLParam(r, NullifierURLParam))
	if err != nil {
		ErrMalformedNullifier.WithErr(err).Write(w)
		return
	}
	if len(nullifier) != types.HashLen {
		ErrMalformedNullifier.Withf("invalid length %d", len(nullifier)).Write(w)
		return
	}
	used, err := a.ledger.IsNullifierUsed(r.Context(), nullifier)
	if err != nil {
		FromProtocolError(err).Write(w)
		return
	}
	httpWriteJSON(w, &NullifierStatus{Nullifier: nullifier, Used: used})
}

// castVote submits the proof and public values to the ledger and waits for
// the outcome.
// POST /votes
func (a *API) castVote(w http.ResponseWriter, r *http.Request) {
	vote := &Vote{}
	if err := json.NewDecoder(r.Body).Decode(vote); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	outputs, err := types.DecodePublicValues(vote.PublicValues)
	if err != nil {
		ErrMalformedPublicValues.WithErr(err).Write(w)
		return
	}
	if len(vote.Proof) == 0 {
		ErrProofInvalid.With("empty proof").Write(w)
		return
	}
	tx, err := a.ledger.CastVote(r.Context(), vote.Proof, vote.PublicValues)
	if err != nil {
		FromProtocolError(err).Write(w)
		return
	}
	if err := tx.Wait(r.Context()); err != nil {
		FromProtocolError(err).Write(w)
		return
	}
	log.Infow("vote cast", "nullifier", outputs.Nullifier.String(), "tx", types.HexBytes(tx.Hash()).String())
	httpWriteJSON(w, &VoteResponse{TxHash: tx.Hash(), Nullifier: outputs.Nullifier})
}

// getVoteCount returns the votes of a candidate.
// GET /votes/{candidateId}
func (a *API) getVoteCount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, CandidateURLParam), 10, 32)
	if err != nil {
		ErrInvalidCandidate.WithErr(err).Write(w)
		return
	}
	if !a.candidates.Contains(uint32(id)) {
		ErrInvalidCandidate.Withf("unknown candidate %d", id).Write(w)
		return
	}
	count, err := a.ledger.VoteCount(r.Context(), uint32(id))
	if err != nil {
		FromProtocolError(err).Write(w)
		return
	}
	httpWriteJSON(w, &VoteCount{CandidateID: uint32(id), Count: count})
}

// getTally returns the latest tally snapshot. If no snapshot has been
// stored yet the tally is read from the ledger.
// GET /tally
func (a *API) getTally(w http.ResponseWriter, r *http.Request) {
	var snapshot *types.TallyState
	if a.storage != nil {
		var err error
		snapshot, err = a.storage.LatestTally()
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			ErrGenericInternalServerError.WithErr(err).Write(w)
			return
		}
	}
	if snapshot == nil {
		var err error
		if snapshot, err = a.tally.Read(r.Context()); err != nil {
			ErrTallyUnavailable.WithErr(err).Write(w)
			return
		}
	}
	res := &Tally{
		Total:     snapshot.Total,
		UpdatedAt: snapshot.UpdatedAt,
	}
	for _, c := range a.candidates {
		res.Candidates = append(res.Candidates, TallyCandidate{
			Candidate:  c,
			Votes:      snapshot.Counts[c.ID],
			Percentage: snapshot.Percentage(c.ID),
		})
	}
	if rooter, ok := a.ledger.(NullifierRooter); ok {
		root, err := rooter.NullifierRoot()
		if err != nil {
			log.Warnw("failed to get nullifier root", "error", err.Error())
		} else {
			res.NullifierRoot = root
		}
	}
	httpWriteJSON(w, res)
}

// getElection returns the election served by the node.
// GET /election
func (a *API) getElection(w http.ResponseWriter, r *http.Request) {
	election, err := a.storage.Election()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrResourceNotFound.With("no election configured").Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, election)
}

// generateProof runs the reference proving service.
// POST /generate-proof
func (a *API) generateProof(w http.ResponseWriter, r *http.Request) {
	req := &ProofRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if !a.candidates.Contains(req.CandidateID) {
		ErrInvalidCandidate.Withf("unknown candidate %d", req.CandidateID).Write(w)
		return
	}
	artifact, err := a.prover.Prove(r.Context(), req.VoteRequest())
	if err != nil {
		FromProtocolError(err).Write(w)
		return
	}
	httpWriteJSON(w, &ProofResponse{
		Proof:        artifact.Proof,
		PublicValues: artifact.PublicValues,
		Nullifier:    artifact.PublicOutputs.Nullifier,
	})
}
