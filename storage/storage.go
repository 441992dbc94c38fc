// storage package contains the artifacts a node keeps besides the ledger
// state. It wraps a key-value store where the following prefixes are used:
//   - 'm/' for the election metadata
//   - 'c/' for the eligibility censuses
//   - 't/' for the tally snapshots
package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vocdoni/zk-anonvote/census"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
	"go.vocdoni.io/dvote/log"
)

var (
	// Prefixes for the keys in the database.
	metadataPrefix = []byte("m/")
	censusPrefix   = []byte("c/")
	tallyPrefix    = []byte("t/")
)

const (
	// maxKeySize is the maximum size of the key in bytes. It is used to
	// generate the key of the artifacts stored in the database by truncating
	// the hash of the artifact itself.
	maxKeySize = 12
	// DefaultMaxTallySnapshots is the number of tally snapshots kept.
	DefaultMaxTallySnapshots = 1024
)

// ErrNotFound is returned when the requested artifact is not stored.
var ErrNotFound = fmt.Errorf("not found")

// Storage wraps the database of a node.
type Storage struct {
	db       db.Database
	censusDB *census.CensusDB

	tallyLock    sync.Mutex
	maxSnapshots int
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	return &Storage{
		db:           db,
		censusDB:     census.NewCensusDB(prefixeddb.NewPrefixedDatabase(db, censusPrefix)),
		maxSnapshots: DefaultMaxTallySnapshots,
	}
}

// Close closes the storage.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err.Error())
	}
}

// CensusDB returns the eligibility censuses database.
func (s *Storage) CensusDB() *census.CensusDB {
	return s.censusDB
}

// setArtifact encodes and stores the artifact under the prefix and key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	defer wTx.Discard()
	if err := wTx.Set(key, data); err != nil {
		return err
	}
	return wTx.Commit()
}

// getArtifact decodes the artifact stored under the prefix and key into out.
// It returns ErrNotFound if there is nothing stored.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return decodeArtifact(data, out)
}

// listArtifacts returns the keys stored under the prefix, in order.
func (s *Storage) listArtifacts(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	if err := prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, append([]byte{}, k...))
		return true
	}); err != nil {
		return nil, err
	}
	return keys, nil
}
