package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/vocdoni/zk-anonvote/api"
	"github.com/vocdoni/zk-anonvote/census"
	"github.com/vocdoni/zk-anonvote/ledger"
	"github.com/vocdoni/zk-anonvote/storage"
	"github.com/vocdoni/zk-anonvote/types"
)

var _ ledger.Ledger = (*Node)(nil)

// Node is a ledger.Ledger served by the API of a node. Votes are settled by
// the node before it answers, so the returned transactions are final.
type Node struct {
	cli *HTTPclient
}

// NewNode returns a client of the node API served at the host provided.
func NewNode(host string) (*Node, error) {
	cli, err := New(host)
	if err != nil {
		return nil, err
	}
	return &Node{cli: cli}, nil
}

// HTTPClient returns the underlying HTTP client.
func (n *Node) HTTPClient() *HTTPclient {
	return n.cli
}

// IsNullifierUsed returns true if the node ledger has consumed the
// nullifier.
func (n *Node) IsNullifierUsed(ctx context.Context, nullifier []byte) (bool, error) {
	status := &api.NullifierStatus{}
	endpoint := api.EndpointWithParam(api.NullifierEndpoint, api.NullifierURLParam, types.HexBytes(nullifier).String())
	if err := n.do(ctx, HTTPGET, nil, status, endpoint); err != nil {
		return false, err
	}
	return status.Used, nil
}

// CastVote submits the vote to the node. Rejections are returned as errors
// right away; the transaction is only returned for accepted votes. The vote
// is sent exactly once: a transport failure fails with
// types.ErrLedgerUnavailable, since the node may have recorded the vote.
func (n *Node) CastVote(ctx context.Context, proof, publicValues []byte) (ledger.Tx, error) {
	res := &api.VoteResponse{}
	data, status, err := n.cli.RequestOnce(ctx, HTTPPOST, &api.Vote{Proof: proof, PublicValues: publicValues}, nil, api.VotesEndpoint)
	if err := decodeResponse(ctx, data, status, err, res); err != nil {
		return nil, err
	}
	return &ledger.DoneTx{TxHash: res.TxHash}, nil
}

// VoteCount returns the votes of the candidate.
func (n *Node) VoteCount(ctx context.Context, candidateID uint32) (uint64, error) {
	res := &api.VoteCount{}
	endpoint := api.EndpointWithParam(api.VoteCountEndpoint, api.CandidateURLParam, strconv.FormatUint(uint64(candidateID), 10))
	if err := n.do(ctx, HTTPGET, nil, res, endpoint); err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Candidates returns the candidates of the election.
func (n *Node) Candidates(ctx context.Context) (types.Candidates, error) {
	res := &api.CandidatesResponse{}
	if err := n.do(ctx, HTTPGET, nil, res, api.CandidatesEndpoint); err != nil {
		return nil, err
	}
	return types.NewCandidates(res.Candidates...)
}

// Tally returns the latest tally of the node.
func (n *Node) Tally(ctx context.Context) (*api.Tally, error) {
	res := &api.Tally{}
	if err := n.do(ctx, HTTPGET, nil, res, api.TallyEndpoint); err != nil {
		return nil, err
	}
	return res, nil
}

// Election returns the election served by the node.
func (n *Node) Election(ctx context.Context) (*storage.Election, error) {
	res := &storage.Election{}
	if err := n.do(ctx, HTTPGET, nil, res, api.ElectionEndpoint); err != nil {
		return nil, err
	}
	return res, nil
}

// NewCensus creates an empty census in the node.
func (n *Node) NewCensus(ctx context.Context) (uuid.UUID, error) {
	res := &api.NewCensus{}
	if err := n.do(ctx, HTTPPOST, nil, res, api.CensusesEndpoint); err != nil {
		return uuid.UUID{}, err
	}
	return res.Census, nil
}

// AddCensusParticipants adds the voter commitments to the census and
// returns its new root.
func (n *Node) AddCensusParticipants(ctx context.Context, censusID uuid.UUID, commitments [][]byte) (*api.CensusRoot, error) {
	req := &api.CensusParticipants{}
	for _, cm := range commitments {
		req.Commitments = append(req.Commitments, cm)
	}
	res := &api.CensusRoot{}
	endpoint := api.EndpointWithParam(api.CensusParticipantsEndpoint, api.CensusURLParam, censusID.String())
	if err := n.do(ctx, HTTPPOST, req, res, endpoint); err != nil {
		return nil, err
	}
	return res, nil
}

// CensusRoot returns the root and size of the census.
func (n *Node) CensusRoot(ctx context.Context, censusID uuid.UUID) (*api.CensusRoot, error) {
	res := &api.CensusRoot{}
	endpoint := api.EndpointWithParam(api.CensusRootEndpoint, api.CensusURLParam, censusID.String())
	if err := n.do(ctx, HTTPGET, nil, res, endpoint); err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteCensus removes the census from the node.
func (n *Node) DeleteCensus(ctx context.Context, censusID uuid.UUID) error {
	endpoint := api.EndpointWithParam(api.CensusEndpoint, api.CensusURLParam, censusID.String())
	return n.do(ctx, HTTPDELETE, nil, nil, endpoint)
}

// Witness returns the membership witness of the credential in the census.
func (n *Node) Witness(ctx context.Context, censusID uuid.UUID, cred *types.VoterCredential) (*types.MembershipWitness, error) {
	commitment := types.HexBytes(census.Commitment(cred))
	endpoint := api.EndpointWithParam(api.CensusProofEndpoint, api.CensusURLParam, censusID.String())
	endpoint = api.EndpointWithParam(endpoint, api.CommitmentURLParam, commitment.String())
	res := &api.CensusProof{}
	if err := n.do(ctx, HTTPGET, nil, res, endpoint); err != nil {
		return nil, err
	}
	witness := &types.MembershipWitness{Path: res.Path, Root: res.Root}
	if !census.VerifyWitness(commitment, witness) {
		return nil, fmt.Errorf("node returned an invalid witness for %s", commitment)
	}
	return witness, nil
}

// do sends the request and decodes the response into out. Transport
// failures and unexpected responses fail with types.ErrLedgerUnavailable.
func (n *Node) do(ctx context.Context, method string, body, out any, endpoint string) error {
	data, status, err := n.cli.Request(ctx, method, body, nil, endpoint)
	return decodeResponse(ctx, data, status, err, out)
}

// decodeResponse decodes the result of a request into out.
func decodeResponse(ctx context.Context, data []byte, status int, err error, out any) error {
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", types.ErrLedgerUnavailable, err)
	}
	if status != http.StatusOK {
		return responseError(status, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", types.ErrLedgerUnavailable, err)
	}
	return nil
}

// responseError returns the error of a non 200 response. The API error codes
// are mapped back to the vote protocol and census errors.
func responseError(status int, data []byte) error {
	apiErr := ParseError(data)
	if apiErr == nil {
		return fmt.Errorf("%w: unexpected status %d", types.ErrLedgerUnavailable, status)
	}
	if perr := api.ProtocolError(apiErr.Code); perr != nil {
		return fmt.Errorf("%w: %s", perr, apiErr.Error)
	}
	switch apiErr.Code {
	case api.ErrCensusNotFound.Code:
		return fmt.Errorf("%w: %s", census.ErrCensusNotFound, apiErr.Error)
	case api.ErrEmptyCensus.Code:
		return fmt.Errorf("%w: %s", census.ErrEmptyCensus, apiErr.Error)
	}
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s (code %d)", types.ErrLedgerUnavailable, apiErr.Error, apiErr.Code)
	}
	return fmt.Errorf("%s %d: %s", errCodeNot200, apiErr.Code, apiErr.Error)
}
