package service

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/zk-anonvote/api"
	"github.com/vocdoni/zk-anonvote/api/client"
	"github.com/vocdoni/zk-anonvote/ballot"
	"github.com/vocdoni/zk-anonvote/census"
	"github.com/vocdoni/zk-anonvote/credential"
	"github.com/vocdoni/zk-anonvote/prover"
	"github.com/vocdoni/zk-anonvote/state"
	"github.com/vocdoni/zk-anonvote/storage"
	"github.com/vocdoni/zk-anonvote/tally"
	"github.com/vocdoni/zk-anonvote/types"
)

type testLedger struct {
	state      *state.State
	prover     *prover.Service
	candidates types.Candidates
}

func newTestLedger(c *qt.C) *testLedger {
	cs, err := types.ParseCandidates([]string{"1:Alice Johnson", "2:Bob Smith", "3:Carol Williams"})
	c.Assert(err, qt.IsNil)
	svc, err := prover.NewService(nil, credential.SchemePoseidon)
	c.Assert(err, qt.IsNil)
	st, err := state.New(memdb.New(), state.Options{
		Candidates: cs,
		Verifier:   prover.NewAttestationVerifier(svc.Address()),
	})
	c.Assert(err, qt.IsNil)
	return &testLedger{state: st, prover: svc, candidates: cs}
}

func (l *testLedger) vote(c *qt.C, i int, candidateID uint32) {
	cred, err := credential.New(credential.SchemePoseidon).Derive(&types.VoterIdentity{
		Address: fmt.Sprintf("0xservice%d", i),
		Token:   credential.ElectionToken([]byte("service-test")),
	})
	c.Assert(err, qt.IsNil)
	witness, err := census.BuildWitness(cred, nil)
	c.Assert(err, qt.IsNil)
	req, err := ballot.NewBuilder(l.candidates).Build(candidateID, cred, witness)
	c.Assert(err, qt.IsNil)
	artifact, err := l.prover.Prove(context.Background(), req)
	c.Assert(err, qt.IsNil)
	_, err = l.state.CastVote(context.Background(), artifact.Proof, artifact.PublicValues)
	c.Assert(err, qt.IsNil)
}

func freePort(c *qt.C) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, qt.IsNil)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestAPIService(t *testing.T) {
	c := qt.New(t)
	l := newTestLedger(c)
	port := freePort(c)

	apiService := NewAPI(&api.APIConfig{
		Host:       "127.0.0.1",
		Port:       port,
		Ledger:     l.state,
		Candidates: l.candidates,
		Storage:    storage.New(memdb.New()),
	})
	ctx := context.Background()
	c.Assert(apiService.Start(ctx), qt.IsNil)
	defer apiService.Stop()

	host, p := apiService.HostPort()
	cli, err := client.New(fmt.Sprintf("http://%s:%d", host, p))
	c.Assert(err, qt.IsNil)
	cli.SetRetries(1)
	// wait for the server to listen
	deadline := time.Now().Add(5 * time.Second)
	for cli.Ping(ctx) != nil {
		c.Assert(time.Now().Before(deadline), qt.IsTrue)
		time.Sleep(50 * time.Millisecond)
	}

	// Test starting an already running service
	c.Assert(apiService.Start(ctx), qt.ErrorMatches, "service already running")

	// Test stopping and restarting
	apiService.Stop()
	c.Assert(cli.Ping(ctx), qt.IsNotNil)
	c.Assert(apiService.Start(ctx), qt.IsNil)

	// the API refuses to start without a ledger
	broken := NewAPI(&api.APIConfig{Host: "127.0.0.1", Port: freePort(c), Candidates: l.candidates})
	c.Assert(broken.Start(ctx), qt.IsNotNil)
}

func TestTallyMonitor(t *testing.T) {
	c := qt.New(t)
	l := newTestLedger(c)
	stg := storage.New(memdb.New())

	monitor := NewTallyMonitor(tally.NewReader(l.state, l.candidates), stg, 10*time.Millisecond)
	c.Assert(monitor.Latest(), qt.IsNil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.Assert(monitor.Start(ctx), qt.IsNil)
	defer monitor.Stop()
	c.Assert(monitor.Start(ctx), qt.ErrorMatches, "service already running")

	l.vote(c, 1, 1)
	l.vote(c, 2, 1)
	l.vote(c, 3, 3)

	for {
		if latest := monitor.Latest(); latest != nil && latest.Total == 3 {
			c.Assert(latest.Counts[1], qt.Equals, uint64(2))
			c.Assert(latest.Counts[3], qt.Equals, uint64(1))
			break
		}
		c.Assert(ctx.Err(), qt.IsNil)
		time.Sleep(5 * time.Millisecond)
	}
	monitor.Stop()

	stored, err := stg.LatestTally()
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Total, qt.Equals, uint64(3))

	// it can be started again after stopping
	c.Assert(monitor.Start(ctx), qt.IsNil)
}
