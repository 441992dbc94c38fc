package ballot

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-anonvote/census"
	"github.com/vocdoni/zk-anonvote/credential"
	"github.com/vocdoni/zk-anonvote/types"
)

func testCandidates(c *qt.C) types.Candidates {
	cs, err := types.ParseCandidates([]string{"1:Alice Johnson", "2:Bob Smith", "3:Carol Williams"})
	c.Assert(err, qt.IsNil)
	return cs
}

func testCredential(c *qt.C) *types.VoterCredential {
	cred, err := credential.New(credential.SchemePoseidon).Derive(&types.VoterIdentity{
		Address: "0xABC",
		Token:   credential.TimestampToken(1000),
	})
	c.Assert(err, qt.IsNil)
	return cred
}

func TestBuild(t *testing.T) {
	c := qt.New(t)
	cred := testCredential(c)
	witness, err := census.BuildWitness(cred, nil)
	c.Assert(err, qt.IsNil)

	req, err := NewBuilder(testCandidates(c)).Build(2, cred, witness)
	c.Assert(err, qt.IsNil)
	c.Assert(req.CandidateID, qt.Equals, uint32(2))
	c.Assert(req.Credential.Secret, qt.DeepEquals, cred.Secret)
	c.Assert(req.Witness.Root, qt.DeepEquals, witness.Root)
	c.Assert(req.Witness.Path, qt.HasLen, 0)

	// the request does not alias the inputs
	cred.Secret[0] ^= 0xff
	witness.Root[0] ^= 0xff
	c.Assert(req.Credential.Secret, qt.Not(qt.DeepEquals), cred.Secret)
	c.Assert(req.Witness.Root, qt.Not(qt.DeepEquals), witness.Root)
}

func TestBuildInvalidCandidate(t *testing.T) {
	c := qt.New(t)
	b := NewBuilder(testCandidates(c))
	for _, id := range []uint32{0, 4, 1 << 31} {
		// the candidate is checked before the other inputs
		_, err := b.Build(id, nil, nil)
		c.Assert(err, qt.ErrorIs, types.ErrInvalidCandidate)
	}
}

func TestBuildInvalidInputs(t *testing.T) {
	c := qt.New(t)
	b := NewBuilder(testCandidates(c))
	cred := testCredential(c)
	witness, err := census.BuildWitness(cred, nil)
	c.Assert(err, qt.IsNil)

	_, err = b.Build(1, nil, witness)
	c.Assert(err, qt.ErrorIs, types.ErrDerivation)
	_, err = b.Build(1, &types.VoterCredential{Secret: cred.Secret, Nullifier: cred.Nullifier[:8]}, witness)
	c.Assert(err, qt.ErrorIs, types.ErrDerivation)
	_, err = b.Build(1, cred, nil)
	c.Assert(err, qt.ErrorIs, types.ErrWitnessUnavailable)
	_, err = b.Build(1, cred, &types.MembershipWitness{Root: witness.Root, Path: []types.HexBytes{{0x01}}})
	c.Assert(err, qt.ErrorIs, types.ErrWitnessUnavailable)
}
