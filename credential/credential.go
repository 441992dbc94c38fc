// Package credential derives the private voter secret and the public
// nullifier from the voter identity material.
//
// The secret is SHA-256(identity || token). The nullifier is a function of
// the secret only, computed by the configured Scheme. The derivation is pure:
// the same identity and token always yield the same credential, so the
// nullifier can be recomputed before retrying an attempt.
package credential

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/zk-anonvote/types"
	"github.com/vocdoni/zk-anonvote/util"
)

// Scheme identifies the function used to derive the nullifier from the
// secret.
type Scheme int

const (
	// SchemePoseidon derives the nullifier as Poseidon(domain, secret_hi,
	// secret_lo) over the BN254 scalar field.
	SchemePoseidon Scheme = iota
	// SchemeHexReversal derives the nullifier by reversing the hex digest of
	// the secret. It has no hiding property at all and is only kept to
	// reproduce the legacy demo credentials. Do not use it for real votes.
	SchemeHexReversal
)

func (s Scheme) String() string {
	switch s {
	case SchemePoseidon:
		return "poseidon"
	case SchemeHexReversal:
		return "hexreversal"
	default:
		return "unknown"
	}
}

// ParseScheme returns the scheme with the given name.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(name) {
	case "", "poseidon":
		return SchemePoseidon, nil
	case "hexreversal":
		return SchemeHexReversal, nil
	default:
		return 0, fmt.Errorf("unknown nullifier scheme %q", name)
	}
}

// nullifierDomain separates the nullifier Poseidon instance from any other
// use of the same hash.
var nullifierDomain = new(big.Int).SetBytes([]byte("zk-anonvote/nullifier"))

// Deriver derives voter credentials. It holds no state besides the scheme, so
// it is safe for concurrent use.
type Deriver struct {
	scheme Scheme
}

// New returns a Deriver using the scheme provided.
func New(scheme Scheme) *Deriver {
	return &Deriver{scheme: scheme}
}

// Scheme returns the nullifier scheme of the deriver.
func (d *Deriver) Scheme() Scheme {
	return d.scheme
}

// Derive computes the credential of the identity provided. It fails with
// types.ErrDerivation if the address or the token are empty or malformed.
// Ethereum addresses are lowercased first, so the checksummed and plain
// forms of the same wallet share a nullifier. Any other identity is taken
// as is.
func (d *Deriver) Derive(id *types.VoterIdentity) (*types.VoterCredential, error) {
	if id == nil {
		return nil, fmt.Errorf("%w: nil identity", types.ErrDerivation)
	}
	address := strings.TrimSpace(id.Address)
	if address == "" {
		return nil, fmt.Errorf("%w: empty identity", types.ErrDerivation)
	}
	if strings.IndexFunc(address, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return nil, fmt.Errorf("%w: malformed identity %q", types.ErrDerivation, address)
	}
	if len(id.Token) == 0 {
		return nil, fmt.Errorf("%w: empty freshness token", types.ErrDerivation)
	}
	if common.IsHexAddress(address) {
		address = strings.ToLower(address)
	}
	h := sha256.New()
	h.Write([]byte(address))
	h.Write(id.Token)
	secret := h.Sum(nil)
	nullifier, err := d.Nullifier(secret)
	if err != nil {
		return nil, err
	}
	return &types.VoterCredential{
		Secret:    secret,
		Nullifier: nullifier,
	}, nil
}

// Nullifier derives the nullifier of the secret provided with the scheme of
// the deriver.
func (d *Deriver) Nullifier(secret []byte) ([]byte, error) {
	if len(secret) != types.HashLen {
		return nil, fmt.Errorf("%w: invalid secret length %d", types.ErrDerivation, len(secret))
	}
	switch d.scheme {
	case SchemePoseidon:
		hi, lo := util.SplitToFF(secret)
		n, err := poseidon.Hash([]*big.Int{util.BigToFF(nullifierDomain), hi, lo})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrDerivation, err)
		}
		return n.FillBytes(make([]byte, types.HashLen)), nil
	case SchemeHexReversal:
		digest := []byte(hex.EncodeToString(secret))
		for i, j := 0, len(digest)-1; i < j; i, j = i+1, j-1 {
			digest[i], digest[j] = digest[j], digest[i]
		}
		out := make([]byte, types.HashLen)
		if _, err := hex.Decode(out, digest); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrDerivation, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown scheme %d", types.ErrDerivation, d.scheme)
	}
}

// Verify checks that the nullifier of the credential is the one derived from
// its secret.
func (d *Deriver) Verify(cred *types.VoterCredential) error {
	if err := cred.Valid(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrDerivation, err)
	}
	expected, err := d.Nullifier(cred.Secret)
	if err != nil {
		return err
	}
	if !bytes.Equal(expected, cred.Nullifier) {
		return fmt.Errorf("%w: nullifier does not match secret", types.ErrDerivation)
	}
	return nil
}

// ElectionToken returns the freshness token bound to an election. It is fixed
// for the whole election, so a voter always derives the same nullifier.
func ElectionToken(electionID []byte) []byte {
	h := sha256.Sum256(append([]byte("zk-anonvote/election/"), electionID...))
	return h[:]
}

// TimestampToken returns the legacy token: the decimal representation of a
// timestamp. A token that changes between attempts yields a different
// nullifier each time and defeats double vote detection.
func TimestampToken(ts uint64) []byte {
	return []byte(strconv.FormatUint(ts, 10))
}
