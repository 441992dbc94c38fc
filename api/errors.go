package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/log"
)

// Error is used by handler functions to wrap errors, assigning a unique error code
// and also specifying which HTTP Status should be used.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// ErrorResponse is the JSON body of an API error as seen by clients.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// MarshalJSON returns a JSON containing Err.Error() and Code. Field HTTPstatus is ignored.
//
// Example output: {"error":"nullifier already used","code":40011}
func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(ErrorResponse{
		Error: e.Err.Error(),
		Code:  e.Code,
	})
}

// Error returns the Message contained inside the APIerror
func (e Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error, so errors.Is works on API errors.
func (e Error) Unwrap() error {
	return e.Err
}

// Write serializes a JSON msg using APIerror.Message and APIerror.Code
// and passes that to ctx.Send()
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warnw("failed to marshal API error", "error", err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	if log.Level() == log.LogLevelDebug {
		log.Debugw("API error response", "error", e.Error(), "code", e.Code, "httpStatus", e.HTTPstatus)
	}
	// set the content type to JSON
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, string(msg), e.HTTPstatus)
}

// Withf returns a copy of APIerror with the Sprintf formatted string appended at the end of e.Err
func (e Error) Withf(format string, args ...any) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, fmt.Sprintf(format, args...)),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// With returns a copy of APIerror with the string appended at the end of e.Err
func (e Error) With(s string) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, s),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// WithErr returns a copy of APIerror with err.Error() appended at the end of e.Err
func (e Error) WithErr(err error) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, err.Error()),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// FromProtocolError returns the API error matching the vote protocol error
// provided. Unknown errors are reported as internal server errors.
func FromProtocolError(err error) Error {
	switch {
	case errors.Is(err, types.ErrDuplicateVote):
		return ErrDuplicateVote.WithErr(err)
	case errors.Is(err, types.ErrProofInvalid):
		return ErrProofInvalid.WithErr(err)
	case errors.Is(err, types.ErrInvalidCandidate):
		return ErrInvalidCandidate.WithErr(err)
	case errors.Is(err, types.ErrWitnessUnavailable):
		return ErrVoterNotEligible.WithErr(err)
	case errors.Is(err, types.ErrProvingRejected), errors.Is(err, types.ErrDerivation):
		return ErrProvingRejected.WithErr(err)
	case errors.Is(err, types.ErrProvingUnavailable):
		return ErrProvingUnavailable.WithErr(err)
	case errors.Is(err, types.ErrLedgerUnavailable):
		return ErrLedgerUnavailable.WithErr(err)
	default:
		return ErrGenericInternalServerError.WithErr(err)
	}
}

// ProtocolError returns the vote protocol error matching the API error code
// provided, or nil if the code has no protocol meaning.
func ProtocolError(code int) error {
	switch code {
	case ErrDuplicateVote.Code:
		return types.ErrDuplicateVote
	case ErrProofInvalid.Code, ErrMalformedPublicValues.Code:
		return types.ErrProofInvalid
	case ErrInvalidCandidate.Code:
		return types.ErrInvalidCandidate
	case ErrVoterNotEligible.Code:
		return types.ErrWitnessUnavailable
	case ErrProvingRejected.Code:
		return types.ErrProvingRejected
	case ErrProvingUnavailable.Code:
		return types.ErrProvingUnavailable
	case ErrLedgerUnavailable.Code:
		return types.ErrLedgerUnavailable
	default:
		return nil
	}
}
