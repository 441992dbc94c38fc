package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/zk-anonvote/api"
	"github.com/vocdoni/zk-anonvote/api/client"
	"github.com/vocdoni/zk-anonvote/ballot"
	"github.com/vocdoni/zk-anonvote/census"
	"github.com/vocdoni/zk-anonvote/credential"
	"github.com/vocdoni/zk-anonvote/prover"
	"github.com/vocdoni/zk-anonvote/state"
	"github.com/vocdoni/zk-anonvote/storage"
	"github.com/vocdoni/zk-anonvote/submitter"
	"github.com/vocdoni/zk-anonvote/types"
	"github.com/vocdoni/zk-anonvote/voter"
	"go.vocdoni.io/dvote/db/metadb"
)

type testNode struct {
	server  *httptest.Server
	node    *client.Node
	state   *state.State
	storage *storage.Storage
	prover  *prover.Service
	deriver *credential.Deriver
	builder *ballot.Builder
}

func newTestNode(c *qt.C) *testNode {
	cs, err := types.ParseCandidates([]string{
		"1:Alice Johnson:Progressive",
		"2:Bob Smith:Conservative",
		"3:Carol Williams:Independent",
	})
	c.Assert(err, qt.IsNil)
	svc, err := prover.NewService(nil, credential.SchemePoseidon)
	c.Assert(err, qt.IsNil)
	st, err := state.New(metadb.NewTest(c.TB), state.Options{
		Candidates: cs,
		Verifier:   prover.NewAttestationVerifier(svc.Address()),
	})
	c.Assert(err, qt.IsNil)
	stg := storage.New(metadb.NewTest(c.TB))

	a, err := api.New(&api.APIConfig{
		Ledger:     st,
		Candidates: cs,
		Storage:    stg,
		Prover:     svc,
	})
	c.Assert(err, qt.IsNil)
	server := httptest.NewServer(a.Router())
	c.Cleanup(server.Close)
	node, err := client.NewNode(server.URL)
	c.Assert(err, qt.IsNil)
	return &testNode{
		server:  server,
		node:    node,
		state:   st,
		storage: stg,
		prover:  svc,
		deriver: credential.New(credential.SchemePoseidon),
		builder: ballot.NewBuilder(cs),
	}
}

func (n *testNode) credential(c *qt.C, i int) *types.VoterCredential {
	cred, err := n.deriver.Derive(&types.VoterIdentity{
		Address: fmt.Sprintf("0xapi%d", i),
		Token:   credential.ElectionToken([]byte("api-test")),
	})
	c.Assert(err, qt.IsNil)
	return cred
}

// request sends a raw request and returns the status and the API error
// code, if any.
func (n *testNode) request(c *qt.C, method, path, body string) (int, int) {
	req, err := http.NewRequest(method, n.server.URL+path, strings.NewReader(body))
	c.Assert(err, qt.IsNil)
	resp, err := http.DefaultClient.Do(req)
	c.Assert(err, qt.IsNil)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	c.Assert(err, qt.IsNil)
	if apiErr := client.ParseError(data); apiErr != nil {
		return resp.StatusCode, apiErr.Code
	}
	return resp.StatusCode, 0
}

func TestPingAndCandidates(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()

	c.Assert(n.node.HTTPClient().Ping(ctx), qt.IsNil)
	cs, err := n.node.Candidates(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(cs, qt.HasLen, 3)
	c.Assert(cs[1].Name, qt.Equals, "Bob Smith")
	c.Assert(cs[1].Party, qt.Equals, "Conservative")

	status, _ := n.request(c, http.MethodGet, api.MetricsEndpoint, "")
	c.Assert(status, qt.Equals, http.StatusOK)
}

func TestVoteThroughNode(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()

	// the node is the ledger, the proving service and the census of the voter
	censusID, err := n.node.NewCensus(ctx)
	c.Assert(err, qt.IsNil)
	var commitments [][]byte
	for i := 0; i < 4; i++ {
		commitments = append(commitments, census.Commitment(n.credential(c, i)))
	}
	root, err := n.node.AddCensusParticipants(ctx, censusID, commitments)
	c.Assert(err, qt.IsNil)
	c.Assert(root.Size, qt.Equals, 4)
	c.Assert(n.state.SetEligibilityRoot(root.Root), qt.IsNil)

	proverClient, err := prover.NewClient(n.server.URL, 0)
	c.Assert(err, qt.IsNil)
	v := voter.New(n.deriver, n.builder, proverClient, submitter.New(n.node))
	v.SetCensus(voter.CensusFunc(func(ctx context.Context, cred *types.VoterCredential) (*types.MembershipWitness, error) {
		return n.node.Witness(ctx, censusID, cred)
	}))

	identity := &types.VoterIdentity{Address: "0xapi2", Token: credential.ElectionToken([]byte("api-test"))}
	outcome, err := v.Vote(ctx, identity, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(outcome.Accepted(), qt.IsTrue)
	c.Assert(outcome.TxHash, qt.HasLen, types.HashLen)

	used, err := n.node.IsNullifierUsed(ctx, outcome.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(used, qt.IsTrue)
	count, err := n.node.VoteCount(ctx, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(1))

	// second attempt of the same voter
	_, err = v.Vote(ctx, identity, 1)
	c.Assert(err, qt.ErrorIs, types.ErrDuplicateVote)

	// not in the census
	stranger := &types.VoterIdentity{Address: "0xstranger", Token: credential.ElectionToken([]byte("api-test"))}
	_, err = v.Vote(ctx, stranger, 1)
	c.Assert(err, qt.ErrorIs, types.ErrWitnessUnavailable)

	tally, err := n.node.Tally(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(tally.Total, qt.Equals, uint64(1))
	c.Assert(tally.Candidates, qt.HasLen, 3)
	c.Assert(tally.Candidates[2].Votes, qt.Equals, uint64(1))
	c.Assert(tally.Candidates[2].Percentage, qt.Equals, 100.0)
	c.Assert(tally.NullifierRoot, qt.Not(qt.HasLen), 0)
}

func TestCastVoteErrors(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()

	cred := n.credential(c, 1)
	witness, err := census.BuildWitness(cred, nil)
	c.Assert(err, qt.IsNil)
	req, err := n.builder.Build(1, cred, witness)
	c.Assert(err, qt.IsNil)
	artifact, err := n.prover.Prove(ctx, req)
	c.Assert(err, qt.IsNil)

	tx, err := n.node.CastVote(ctx, artifact.Proof, artifact.PublicValues)
	c.Assert(err, qt.IsNil)
	c.Assert(tx.Wait(ctx), qt.IsNil)
	_, err = n.node.CastVote(ctx, artifact.Proof, artifact.PublicValues)
	c.Assert(err, qt.ErrorIs, types.ErrDuplicateVote)

	forged := append(types.HexBytes{}, artifact.Proof...)
	forged[3] ^= 0xff
	_, err = n.node.CastVote(ctx, forged, artifact.PublicValues)
	c.Assert(err, qt.ErrorIs, types.ErrProofInvalid)
	_, err = n.node.CastVote(ctx, artifact.Proof, artifact.PublicValues[:30])
	c.Assert(err, qt.ErrorIs, types.ErrProofInvalid)

	status, code := n.request(c, http.MethodPost, api.VotesEndpoint, "{not json")
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(code, qt.Equals, api.ErrMalformedBody.Code)
	status, code = n.request(c, http.MethodPost, api.VotesEndpoint, `{"proof":"abcd","publicValues":"00"}`)
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(code, qt.Equals, api.ErrMalformedPublicValues.Code)
}

func TestCastVoteLostResponse(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()

	// the node records the first vote it receives and the connection drops
	// before the response is written
	var votesPosted atomic.Int32
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == api.VotesEndpoint && votesPosted.Add(1) == 1 {
			n.server.Config.Handler.ServeHTTP(httptest.NewRecorder(), r)
			if conn, _, err := w.(http.Hijacker).Hijack(); err == nil {
				conn.Close()
			}
			return
		}
		n.server.Config.Handler.ServeHTTP(w, r)
	}))
	c.Cleanup(flaky.Close)
	node, err := client.NewNode(flaky.URL)
	c.Assert(err, qt.IsNil)

	cred := n.credential(c, 7)
	witness, err := census.BuildWitness(cred, nil)
	c.Assert(err, qt.IsNil)
	req, err := n.builder.Build(2, cred, witness)
	c.Assert(err, qt.IsNil)
	artifact, err := n.prover.Prove(ctx, req)
	c.Assert(err, qt.IsNil)

	s := submitter.New(node)
	outcome := s.Submit(ctx, artifact)
	c.Assert(outcome.Status, qt.Equals, submitter.StatusPending)
	c.Assert(outcome.Err, qt.ErrorIs, types.ErrLedgerUnavailable)
	c.Assert(votesPosted.Load(), qt.Equals, int32(1))

	used, err := s.Reconcile(ctx, cred.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(used, qt.IsTrue)
	count, err := n.state.VoteCount(ctx, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, uint64(1))
}

func TestQueryErrors(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)

	status, code := n.request(c, http.MethodGet, "/nullifiers/zz", "")
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(code, qt.Equals, api.ErrMalformedNullifier.Code)
	status, code = n.request(c, http.MethodGet, "/nullifiers/abcd", "")
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(code, qt.Equals, api.ErrMalformedNullifier.Code)

	status, code = n.request(c, http.MethodGet, "/votes/4", "")
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(code, qt.Equals, api.ErrInvalidCandidate.Code)
	status, code = n.request(c, http.MethodGet, "/votes/alice", "")
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(code, qt.Equals, api.ErrInvalidCandidate.Code)

	_, err := n.node.VoteCount(context.Background(), 7)
	c.Assert(err, qt.ErrorIs, types.ErrInvalidCandidate)
}

func TestGenerateProof(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()
	proverClient, err := prover.NewClient(n.server.URL, 0)
	c.Assert(err, qt.IsNil)

	cred := n.credential(c, 5)
	witness, err := census.BuildWitness(cred, nil)
	c.Assert(err, qt.IsNil)
	req, err := n.builder.Build(2, cred, witness)
	c.Assert(err, qt.IsNil)
	artifact, err := proverClient.Prove(ctx, req)
	c.Assert(err, qt.IsNil)
	c.Assert(artifact.PublicOutputs.Nullifier, qt.DeepEquals, cred.Nullifier)
	c.Assert(artifact.PublicOutputs.CandidateID, qt.Equals, uint32(2))

	// the root does not match the commitment
	req.Witness.Root = make(types.HexBytes, types.HashLen)
	_, err = proverClient.Prove(ctx, req)
	c.Assert(err, qt.ErrorIs, types.ErrProvingRejected)

	status, code := n.request(c, http.MethodPost, api.GenerateProofEndpoint,
		`{"voterSecret":"00","voterNullifier":"00","candidateId":9,"merkleProof":[],"merkleRoot":"00"}`)
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(code, qt.Equals, api.ErrInvalidCandidate.Code)
}

func TestCensusEndpoints(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()

	_, err := n.node.CensusRoot(ctx, uuid.New())
	c.Assert(err, qt.ErrorIs, census.ErrCensusNotFound)

	id, err := n.node.NewCensus(ctx)
	c.Assert(err, qt.IsNil)
	_, err = n.node.CensusRoot(ctx, id)
	c.Assert(err, qt.ErrorIs, census.ErrEmptyCensus)

	cred := n.credential(c, 1)
	root, err := n.node.AddCensusParticipants(ctx, id, [][]byte{census.Commitment(cred)})
	c.Assert(err, qt.IsNil)
	c.Assert(root.Size, qt.Equals, 1)
	// a single member census has the commitment as root
	c.Assert([]byte(root.Root), qt.DeepEquals, census.Commitment(cred))

	witness, err := n.node.Witness(ctx, id, cred)
	c.Assert(err, qt.IsNil)
	c.Assert(witness.Path, qt.HasLen, 0)
	_, err = n.node.Witness(ctx, id, n.credential(c, 2))
	c.Assert(err, qt.ErrorIs, types.ErrWitnessUnavailable)

	status, code := n.request(c, http.MethodGet, "/censuses/not-a-uuid/root", "")
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(code, qt.Equals, api.ErrInvalidCensusID.Code)
	status, code = n.request(c, http.MethodPost, "/censuses/"+id.String()+"/participants", `{"commitments":["abcd"]}`)
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(code, qt.Equals, api.ErrMalformedCommitment.Code)
	status, code = n.request(c, http.MethodPost, "/censuses/"+id.String()+"/participants", `{"commitments":[]}`)
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(code, qt.Equals, api.ErrMalformedBody.Code)
	status, code = n.request(c, http.MethodGet, "/censuses/"+id.String()+"/proof/xyz", "")
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(code, qt.Equals, api.ErrMalformedCommitment.Code)

	c.Assert(n.node.DeleteCensus(ctx, id), qt.IsNil)
	_, err = n.node.CensusRoot(ctx, id)
	c.Assert(err, qt.ErrorIs, census.ErrCensusNotFound)
	c.Assert(n.node.DeleteCensus(ctx, id), qt.ErrorIs, census.ErrCensusNotFound)
}

func TestElectionAndTallySnapshots(t *testing.T) {
	c := qt.New(t)
	n := newTestNode(c)
	ctx := context.Background()

	_, err := n.node.Election(ctx)
	c.Assert(err, qt.IsNotNil)
	cs, err := n.node.Candidates(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n.storage.SetElection(&storage.Election{Title: "Board election", Candidates: cs}), qt.IsNil)
	election, err := n.node.Election(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(election.Title, qt.Equals, "Board election")
	c.Assert(election.ID, qt.Not(qt.HasLen), 0)

	// stored snapshots are served instead of live reads
	c.Assert(n.storage.PushTally(&types.TallyState{
		Counts:    map[uint32]uint64{1: 2, 2: 2},
		Total:     4,
		UpdatedAt: time.Now(),
	}), qt.IsNil)
	tally, err := n.node.Tally(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(tally.Total, qt.Equals, uint64(4))
	c.Assert(tally.Candidates[0].Percentage, qt.Equals, 50.0)

	data, err := json.Marshal(tally)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Contains, `"name":"Alice Johnson"`)
}
