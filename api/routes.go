package api

import "strings"

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// CandidatesEndpoint is the endpoint to get the candidates of the election
	CandidatesEndpoint = "/candidates"
	// TallyEndpoint is the endpoint to get the latest tally snapshot
	TallyEndpoint = "/tally"
	// ElectionEndpoint is the endpoint to get the election served by the node
	ElectionEndpoint = "/election"
	// MetricsEndpoint is the endpoint exposing the prometheus metrics
	MetricsEndpoint = "/metrics"

	// NullifierEndpoint is the endpoint to check if a nullifier has been used
	NullifierURLParam = "nullifier"
	NullifierEndpoint = "/nullifiers/{" + NullifierURLParam + "}"
	// VotesEndpoint is the endpoint for submitting a vote
	VotesEndpoint = "/votes"
	// VoteCountEndpoint is the endpoint to get the votes of a candidate
	CandidateURLParam = "candidateId"
	VoteCountEndpoint = "/votes/{" + CandidateURLParam + "}"

	// GenerateProofEndpoint is the endpoint of the reference proving service
	GenerateProofEndpoint = "/generate-proof"

	// CensusesEndpoint is the endpoint for creating a new eligibility census
	CensusesEndpoint = "/censuses"
	// CensusEndpoint is the endpoint for deleting a census
	CensusURLParam = "censusId"
	CensusEndpoint = "/censuses/{" + CensusURLParam + "}"
	// CensusParticipantsEndpoint is the endpoint for adding voter commitments
	// to a census
	CensusParticipantsEndpoint = "/censuses/{" + CensusURLParam + "}/participants"
	// CensusRootEndpoint is the endpoint to get the root of a census
	CensusRootEndpoint = "/censuses/{" + CensusURLParam + "}/root"
	// CensusProofEndpoint is the endpoint to get the membership witness of a
	// voter commitment
	CommitmentURLParam  = "commitment"
	CensusProofEndpoint = "/censuses/{" + CensusURLParam + "}/proof/{" + CommitmentURLParam + "}"
)

// EndpointWithParam replaces the url parameter with the value provided.
func EndpointWithParam(endpoint, param, value string) string {
	return strings.ReplaceAll(endpoint, "{"+param+"}", value)
}
