package census

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func TestCensusDBLifecycle(t *testing.T) {
	c := qt.New(t)
	database := metadb.NewTest(t)
	censusDB := NewCensusDB(database)
	censusID := uuid.New()

	c.Assert(censusDB.Exists(censusID), qt.IsFalse)
	_, err := censusDB.New(censusID)
	c.Assert(err, qt.IsNil)
	c.Assert(censusDB.Exists(censusID), qt.IsTrue)
	_, err = censusDB.New(censusID)
	c.Assert(err, qt.ErrorIs, ErrCensusAlreadyExists)

	_, err = censusDB.Load(censusID)
	c.Assert(err, qt.ErrorIs, ErrEmptyCensus)

	creds := testCredentials(c, 5)
	root, err := censusDB.Add(censusID, commitments(creds[:3]))
	c.Assert(err, qt.IsNil)
	root2, err := censusDB.Add(censusID, commitments(creds[2:4]))
	c.Assert(err, qt.IsNil)
	c.Assert(root2, qt.Not(qt.DeepEquals), root)

	set, err := censusDB.Load(censusID)
	c.Assert(err, qt.IsNil)
	c.Assert(set.Size(), qt.Equals, 4)

	w, err := censusDB.Witness(censusID, Commitment(creds[3]))
	c.Assert(err, qt.IsNil)
	c.Assert([]byte(w.Root), qt.DeepEquals, root2)
	c.Assert(VerifyWitness(Commitment(creds[3]), w), qt.IsTrue)

	_, err = censusDB.Witness(censusID, Commitment(creds[4]))
	c.Assert(err, qt.ErrorIs, types.ErrWitnessUnavailable)

	byRoot, err := censusDB.ByRoot(root2)
	c.Assert(err, qt.IsNil)
	c.Assert(byRoot.Root(), qt.DeepEquals, root2)
	_, err = censusDB.ByRoot(root)
	c.Assert(err, qt.ErrorIs, ErrCensusNotFound)

	// a fresh instance over the same database restores the census
	reopened := NewCensusDB(database)
	r, err := reopened.Root(censusID)
	c.Assert(err, qt.IsNil)
	c.Assert(r, qt.DeepEquals, root2)

	c.Assert(censusDB.Del(censusID), qt.IsNil)
	c.Assert(censusDB.Exists(censusID), qt.IsFalse)
	_, err = censusDB.Load(censusID)
	c.Assert(err, qt.ErrorIs, ErrCensusNotFound)
}

func TestCensusDBInvalidCommitment(t *testing.T) {
	c := qt.New(t)
	censusDB := NewCensusDB(metadb.NewTest(t))
	censusID := uuid.New()
	_, err := censusDB.New(censusID)
	c.Assert(err, qt.IsNil)
	_, err = censusDB.Add(censusID, [][]byte{{0x01, 0x02}})
	c.Assert(err, qt.IsNotNil)
	_, err = censusDB.Add(uuid.New(), [][]byte{make([]byte, 32)})
	c.Assert(err, qt.ErrorIs, ErrCensusNotFound)
}

func TestCensusDBAddEmpty(t *testing.T) {
	c := qt.New(t)
	censusDB := NewCensusDB(metadb.NewTest(t))
	censusID := uuid.New()
	_, err := censusDB.New(censusID)
	c.Assert(err, qt.IsNil)

	_, err = censusDB.Add(censusID, nil)
	c.Assert(err, qt.ErrorIs, ErrEmptyCensus)
	_, err = censusDB.Add(censusID, [][]byte{})
	c.Assert(err, qt.ErrorIs, ErrEmptyCensus)

	// a rejected batch does not write any of its members
	creds := testCredentials(c, 2)
	_, err = censusDB.Add(censusID, [][]byte{Commitment(creds[0]), {0x01}})
	c.Assert(err, qt.IsNotNil)
	_, err = censusDB.Load(censusID)
	c.Assert(err, qt.ErrorIs, ErrEmptyCensus)
	members, err := censusDB.members(censusID)
	c.Assert(err, qt.IsNil)
	c.Assert(members, qt.HasLen, 0)

	root, err := censusDB.Add(censusID, [][]byte{Commitment(creds[1])})
	c.Assert(err, qt.IsNil)
	c.Assert(root, qt.DeepEquals, Commitment(creds[1]))
}
