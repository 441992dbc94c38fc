package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vocdoni/zk-anonvote/census"
	"github.com/vocdoni/zk-anonvote/types"
)

// censusID parses the census identifier of the request. It writes the error
// response and returns false if it is not a valid one.
func censusID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, CensusURLParam))
	if err != nil {
		ErrInvalidCensusID.WithErr(err).Write(w)
		return uuid.UUID{}, false
	}
	return id, true
}

// censusError writes the API error matching the census error provided.
func censusError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, census.ErrCensusNotFound):
		ErrCensusNotFound.WithErr(err).Write(w)
	case errors.Is(err, census.ErrEmptyCensus):
		ErrEmptyCensus.WithErr(err).Write(w)
	case errors.Is(err, types.ErrWitnessUnavailable):
		ErrVoterNotEligible.WithErr(err).Write(w)
	default:
		ErrGenericInternalServerError.WithErr(err).Write(w)
	}
}

// newCensus creates an empty census.
// POST /censuses
func (a *API) newCensus(w http.ResponseWriter, r *http.Request) {
	id := uuid.New()
	if _, err := a.storage.CensusDB().New(id); err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &NewCensus{Census: id})
}

// deleteCensus removes a census.
// DELETE /censuses/{censusId}
func (a *API) deleteCensus(w http.ResponseWriter, r *http.Request) {
	id, ok := censusID(w, r)
	if !ok {
		return
	}
	if !a.storage.CensusDB().Exists(id) {
		ErrCensusNotFound.Write(w)
		return
	}
	if err := a.storage.CensusDB().Del(id); err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// addCensusParticipants adds the voter commitments to the census and
// returns the new root.
// POST /censuses/{censusId}/participants
func (a *API) addCensusParticipants(w http.ResponseWriter, r *http.Request) {
	id, ok := censusID(w, r)
	if !ok {
		return
	}
	participants := &CensusParticipants{}
	if err := json.NewDecoder(r.Body).Decode(participants); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if len(participants.Commitments) == 0 {
		ErrMalformedBody.WithErr(fmt.Errorf("no commitments provided")).Write(w)
		return
	}
	if len(participants.Commitments) > MaxCensusParticipants {
		ErrCensusParticipantsLimit.Withf("%d > %d", len(participants.Commitments), MaxCensusParticipants).Write(w)
		return
	}
	commitments := make([][]byte, 0, len(participants.Commitments))
	for i, cm := range participants.Commitments {
		if len(cm) != types.HashLen {
			ErrMalformedCommitment.Withf("commitment %d has length %d", i, len(cm)).Write(w)
			return
		}
		commitments = append(commitments, cm)
	}
	if _, err := a.storage.CensusDB().Add(id, commitments); err != nil {
		censusError(w, err)
		return
	}
	a.writeCensusRoot(w, id)
}

// getCensusRoot returns the root and size of the census.
// GET /censuses/{censusId}/root
func (a *API) getCensusRoot(w http.ResponseWriter, r *http.Request) {
	id, ok := censusID(w, r)
	if !ok {
		return
	}
	a.writeCensusRoot(w, id)
}

func (a *API) writeCensusRoot(w http.ResponseWriter, id uuid.UUID) {
	set, err := a.storage.CensusDB().Load(id)
	if err != nil {
		censusError(w, err)
		return
	}
	httpWriteJSON(w, &CensusRoot{Root: set.Root(), Size: set.Size()})
}

// getCensusProof returns the membership witness of a voter commitment.
// GET /censuses/{censusId}/proof/{commitment}
func (a *API) getCensusProof(w http.ResponseWriter, r *http.Request) {
	id, ok := censusID(w, r)
	if !ok {
		return
	}
	commitment, err := types.HexStringToHexBytes(chi.URLParam(r, CommitmentURLParam))
	if err != nil {
		ErrMalformedCommitment.WithErr(err).Write(w)
		return
	}
	if len(commitment) != types.HashLen {
		ErrMalformedCommitment.Withf("invalid length %d", len(commitment)).Write(w)
		return
	}
	witness, err := a.storage.CensusDB().Witness(id, commitment)
	if err != nil {
		censusError(w, err)
		return
	}
	path := witness.Path
	if path == nil {
		path = []types.HexBytes{}
	}
	httpWriteJSON(w, &CensusProof{Commitment: commitment, Path: path, Root: witness.Root})
}
