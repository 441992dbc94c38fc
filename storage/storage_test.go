package storage

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func testCandidates(c *qt.C) types.Candidates {
	cs, err := types.ParseCandidates([]string{
		"1:Alice Johnson:Progressive",
		"2:Bob Smith:Conservative",
		"3:Carol Williams:Independent",
	})
	c.Assert(err, qt.IsNil)
	return cs
}

func TestElection(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))

	_, err := stg.Election()
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	c.Assert(stg.SetElection(&Election{Title: "empty"}), qt.IsNotNil)

	election := &Election{
		Title:           "Student council",
		Candidates:      testCandidates(c),
		CensusID:        uuid.New().String(),
		EligibilityRoot: make(types.HexBytes, types.HashLen),
	}
	c.Assert(stg.SetElection(election), qt.IsNil)
	c.Assert(election.ID, qt.HasLen, maxKeySize)

	id, err := ElectionID("Student council", testCandidates(c))
	c.Assert(err, qt.IsNil)
	c.Assert(election.ID, qt.DeepEquals, id)
	other, err := ElectionID("Another election", testCandidates(c))
	c.Assert(err, qt.IsNil)
	c.Assert(other, qt.Not(qt.DeepEquals), id)

	res, err := stg.Election()
	c.Assert(err, qt.IsNil)
	c.Assert(res.ID, qt.DeepEquals, election.ID)
	c.Assert(res.Title, qt.Equals, election.Title)
	c.Assert(res.Candidates, qt.DeepEquals, election.Candidates)
	c.Assert(res.CensusID, qt.Equals, election.CensusID)
	c.Assert(res.EligibilityRoot, qt.DeepEquals, election.EligibilityRoot)
	c.Assert(res.CreatedAt.Equal(election.CreatedAt), qt.IsTrue)

	// a new eligibility root keeps the election id
	root := make(types.HexBytes, types.HashLen)
	root[0] = 0x01
	updated, err := stg.SetEligibilityRoot(root)
	c.Assert(err, qt.IsNil)
	c.Assert(updated.ID, qt.DeepEquals, election.ID)
	res, err = stg.Election()
	c.Assert(err, qt.IsNil)
	c.Assert(res.EligibilityRoot, qt.DeepEquals, root)
	c.Assert(res.Title, qt.Equals, election.Title)

	// an open election has no root
	_, err = stg.SetEligibilityRoot(nil)
	c.Assert(err, qt.IsNil)
	res, err = stg.Election()
	c.Assert(err, qt.IsNil)
	c.Assert(res.EligibilityRoot, qt.HasLen, 0)

	_, err = New(metadb.NewTest(t)).SetEligibilityRoot(root)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func TestTallies(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))
	stg.SetMaxTallySnapshots(3)

	_, err := stg.LatestTally()
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	start := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		c.Assert(stg.PushTally(&types.TallyState{
			Counts:    map[uint32]uint64{1: uint64(i), 2: 1},
			Total:     uint64(i) + 1,
			UpdatedAt: start.Add(time.Duration(i) * time.Second),
		}), qt.IsNil)
	}

	latest, err := stg.LatestTally()
	c.Assert(err, qt.IsNil)
	c.Assert(latest.Total, qt.Equals, uint64(5))
	c.Assert(latest.Counts, qt.DeepEquals, map[uint32]uint64{1: 4, 2: 1})

	tallies, err := stg.Tallies(10)
	c.Assert(err, qt.IsNil)
	c.Assert(tallies, qt.HasLen, 3)
	c.Assert(tallies[0].Total, qt.Equals, uint64(5))
	c.Assert(tallies[2].Total, qt.Equals, uint64(3))
}

func TestCensusDB(t *testing.T) {
	c := qt.New(t)
	stg := New(metadb.NewTest(t))
	id := uuid.New()
	_, err := stg.CensusDB().New(id)
	c.Assert(err, qt.IsNil)
	c.Assert(stg.CensusDB().Exists(id), qt.IsTrue)

	// the censuses do not leak into the other prefixes
	keys, err := stg.listArtifacts(tallyPrefix)
	c.Assert(err, qt.IsNil)
	c.Assert(keys, qt.HasLen, 0)
	keys, err = stg.listArtifacts(censusPrefix)
	c.Assert(err, qt.IsNil)
	c.Assert(len(keys) > 0, qt.IsTrue)
}
