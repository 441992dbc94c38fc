package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vocdoni/zk-anonvote/api"
	"github.com/vocdoni/zk-anonvote/api/client"
	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/log"
)

// DefaultTimeout is the default time the client waits for a proof.
const DefaultTimeout = 5 * time.Minute

// Client is a Prover backed by a remote proving service.
type Client struct {
	cli *client.HTTPclient
}

// NewClient returns a proving service client for the host provided. Each
// proof request is sent exactly once.
func NewClient(host string, timeout time.Duration) (*Client, error) {
	cli, err := client.New(host)
	if err != nil {
		return nil, fmt.Errorf("could not create proving service client: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cli.SetRetries(1)
	cli.SetTimeout(timeout)
	return &Client{cli: cli}, nil
}

// Prove sends the vote request to the proving service and waits for the
// proof. Transport failures, 5xx responses and non-2xx responses without a
// well-formed error body fail with types.ErrProvingUnavailable. A 4xx
// response with an error body, or a proof whose public outputs do not match
// the request, fails with types.ErrProvingRejected.
func (c *Client) Prove(ctx context.Context, req *types.VoteRequest) (*types.ProofArtifact, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", types.ErrProvingRejected)
	}
	start := time.Now()
	data, status, err := c.cli.Request(ctx, client.HTTPPOST, api.NewProofRequest(req), nil, api.GenerateProofEndpoint)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", types.ErrProvingUnavailable, err)
	}
	if status != http.StatusOK {
		apiErr := client.ParseError(data)
		if status >= 400 && status < 500 && apiErr != nil {
			return nil, fmt.Errorf("%w: %s (code %d)", types.ErrProvingRejected, apiErr.Error, apiErr.Code)
		}
		return nil, fmt.Errorf("%w: unexpected status %d", types.ErrProvingUnavailable, status)
	}

	resp := &api.ProofResponse{}
	if err := json.Unmarshal(data, resp); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", types.ErrProvingUnavailable, err)
	}
	if len(resp.Nullifier) > 0 && !bytes.Equal(resp.Nullifier, req.Credential.Nullifier) {
		return nil, fmt.Errorf("%w: response nullifier does not match the request", types.ErrProvingRejected)
	}
	artifact := &types.ProofArtifact{
		Proof:        resp.Proof,
		PublicValues: resp.PublicValues,
	}
	if err := checkArtifact(req, artifact); err != nil {
		return nil, err
	}
	log.Debugw("proof received",
		"nullifier", artifact.PublicOutputs.Nullifier.String(),
		"candidate", artifact.PublicOutputs.CandidateID,
		"took", time.Since(start).String())
	return artifact, nil
}
