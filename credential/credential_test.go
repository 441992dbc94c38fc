package credential

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-anonvote/types"
)

func TestDeriveDeterministic(t *testing.T) {
	c := qt.New(t)
	for _, scheme := range []Scheme{SchemePoseidon, SchemeHexReversal} {
		d := New(scheme)
		id := &types.VoterIdentity{Address: "0x71C7656EC7ab88b098defB751B7401B5f6d8976F", Token: ElectionToken([]byte("election-1"))}
		a, err := d.Derive(id)
		c.Assert(err, qt.IsNil)
		b, err := d.Derive(id)
		c.Assert(err, qt.IsNil)
		c.Assert(a, qt.DeepEquals, b, qt.Commentf("scheme %s", scheme))
		c.Assert(a.Valid(), qt.IsNil)
		c.Assert(d.Verify(a), qt.IsNil)
	}
}

func TestDeriveDistinctNullifiers(t *testing.T) {
	c := qt.New(t)
	d := New(SchemePoseidon)
	token := ElectionToken([]byte("election-1"))
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		cred, err := d.Derive(&types.VoterIdentity{Address: fmt.Sprintf("0xvoter%d", i), Token: token})
		c.Assert(err, qt.IsNil)
		_, dup := seen[string(cred.Nullifier)]
		c.Assert(dup, qt.IsFalse)
		seen[string(cred.Nullifier)] = struct{}{}
		// the nullifier must not leak the secret
		c.Assert(bytes.Equal(cred.Nullifier, cred.Secret), qt.IsFalse)
	}
}

func TestDeriveMalformedIdentity(t *testing.T) {
	c := qt.New(t)
	d := New(SchemePoseidon)
	token := TimestampToken(1000)
	for _, id := range []*types.VoterIdentity{
		nil,
		{Address: "", Token: token},
		{Address: "   ", Token: token},
		{Address: "0xAB C", Token: token},
		{Address: "0xABC\x00", Token: token},
		{Address: "0xABC", Token: nil},
	} {
		_, err := d.Derive(id)
		c.Assert(errors.Is(err, types.ErrDerivation), qt.IsTrue, qt.Commentf("identity %+v", id))
	}
}

func TestDeriveAddressCase(t *testing.T) {
	c := qt.New(t)
	d := New(SchemePoseidon)
	token := ElectionToken([]byte("election"))
	checksummed, err := d.Derive(&types.VoterIdentity{Address: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", Token: token})
	c.Assert(err, qt.IsNil)
	plain, err := d.Derive(&types.VoterIdentity{Address: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", Token: token})
	c.Assert(err, qt.IsNil)
	c.Assert(checksummed.Nullifier, qt.DeepEquals, plain.Nullifier)
	c.Assert(checksummed.Secret, qt.DeepEquals, plain.Secret)

	// other identities are opaque
	upper, err := d.Derive(&types.VoterIdentity{Address: "alice@example.org", Token: token})
	c.Assert(err, qt.IsNil)
	lower, err := d.Derive(&types.VoterIdentity{Address: "ALICE@example.org", Token: token})
	c.Assert(err, qt.IsNil)
	c.Assert(upper.Nullifier, qt.Not(qt.DeepEquals), lower.Nullifier)
}

func TestReferenceScenario(t *testing.T) {
	c := qt.New(t)
	d := New(SchemeHexReversal)
	cred, err := d.Derive(&types.VoterIdentity{Address: "0xABC", Token: TimestampToken(1000)})
	c.Assert(err, qt.IsNil)

	expected := sha256.Sum256([]byte("0xABC1000"))
	c.Assert([]byte(cred.Secret), qt.DeepEquals, expected[:])

	// the nullifier hex is the reversed hex digest of the secret
	secretHex := hex.EncodeToString(cred.Secret)
	nullifierHex := hex.EncodeToString(cred.Nullifier)
	for i := range secretHex {
		c.Assert(nullifierHex[i], qt.Equals, secretHex[len(secretHex)-1-i])
	}
}

func TestTokenChangesNullifier(t *testing.T) {
	c := qt.New(t)
	d := New(SchemePoseidon)
	a, err := d.Derive(&types.VoterIdentity{Address: "0xABC", Token: TimestampToken(1000)})
	c.Assert(err, qt.IsNil)
	b, err := d.Derive(&types.VoterIdentity{Address: "0xABC", Token: TimestampToken(1001)})
	c.Assert(err, qt.IsNil)
	c.Assert(a.Nullifier, qt.Not(qt.DeepEquals), b.Nullifier)
}

func TestVerifyMismatch(t *testing.T) {
	c := qt.New(t)
	d := New(SchemePoseidon)
	cred, err := d.Derive(&types.VoterIdentity{Address: "0xABC", Token: TimestampToken(1000)})
	c.Assert(err, qt.IsNil)
	cred.Nullifier[0] ^= 0xff
	c.Assert(errors.Is(d.Verify(cred), types.ErrDerivation), qt.IsTrue)
	// a reversal credential does not verify under poseidon
	legacy, err := New(SchemeHexReversal).Derive(&types.VoterIdentity{Address: "0xABC", Token: TimestampToken(1000)})
	c.Assert(err, qt.IsNil)
	c.Assert(d.Verify(legacy), qt.ErrorIs, types.ErrDerivation)
}

func TestParseScheme(t *testing.T) {
	c := qt.New(t)
	s, err := ParseScheme("HexReversal")
	c.Assert(err, qt.IsNil)
	c.Assert(s, qt.Equals, SchemeHexReversal)
	s, err = ParseScheme("")
	c.Assert(err, qt.IsNil)
	c.Assert(s, qt.Equals, SchemePoseidon)
	_, err = ParseScheme("md5")
	c.Assert(err, qt.IsNotNil)
}
