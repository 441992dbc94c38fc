//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// Some of them are mapped to and from the vote protocol errors, see
// ProtocolError and FromProtocolError.
var (
	ErrResourceNotFound        = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody           = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedNullifier      = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed nullifier")}
	ErrCensusNotFound          = Error{Code: 40007, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("census not found")}
	ErrInvalidCensusID         = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid census ID")}
	ErrInvalidCandidate        = Error{Code: 40009, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid candidate")}
	ErrMalformedPublicValues   = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed public values")}
	ErrDuplicateVote           = Error{Code: 40011, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("nullifier already used")}
	ErrProofInvalid            = Error{Code: 40012, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("proof verification failed")}
	ErrVoterNotEligible        = Error{Code: 40013, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("voter not in eligible list")}
	ErrProvingRejected         = Error{Code: 40014, HTTPstatus: http.StatusUnprocessableEntity, Err: fmt.Errorf("proving inputs rejected")}
	ErrMalformedCommitment     = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed voter commitment")}
	ErrEmptyCensus             = Error{Code: 40016, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("census has no members")}
	ErrCensusParticipantsLimit = Error{Code: 40017, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("too many census participants")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrLedgerUnavailable          = Error{Code: 50003, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("ledger unavailable")}
	ErrProvingUnavailable         = Error{Code: 50004, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("proving service unavailable")}
	ErrTallyUnavailable           = Error{Code: 50005, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("tally not available yet")}
)
