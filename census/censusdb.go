package census

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
	"go.vocdoni.io/dvote/log"
)

const (
	censusDBprefix          = "cs_"
	censusDBreferencePrefix = "cr_"
)

var (
	// ErrCensusNotFound is returned when a census is not found in the database.
	ErrCensusNotFound = fmt.Errorf("census not found in the local database")
	// ErrCensusAlreadyExists is returned by New() if the census already exists.
	ErrCensusAlreadyExists = fmt.Errorf("census already exists in the local database")
	// ErrEmptyCensus is returned when a proof or root is requested for a
	// census without members.
	ErrEmptyCensus = fmt.Errorf("census has no members")
)

// CensusRef is the persisted reference of an eligibility census.
type CensusRef struct {
	ID       uuid.UUID
	Size     int
	Root     []byte
	LastUsed time.Time
}

// rootKey converts a root (a byte slice) to its canonical hexadecimal string.
func rootKey(root []byte) string {
	return hex.EncodeToString(root)
}

// CensusDB is a safe and persistent database of eligibility sets. It keeps
// the built trees in memory and an index mapping the published roots to
// census IDs.
type CensusDB struct {
	mu        sync.RWMutex
	db        db.Database
	loaded    map[uuid.UUID]*EligibilitySet
	refs      map[uuid.UUID]*CensusRef
	rootIndex map[string]uuid.UUID
}

// NewCensusDB creates a new CensusDB object.
func NewCensusDB(db db.Database) *CensusDB {
	return &CensusDB{
		db:        db,
		loaded:    make(map[uuid.UUID]*EligibilitySet),
		refs:      make(map[uuid.UUID]*CensusRef),
		rootIndex: make(map[string]uuid.UUID),
	}
}

// New creates a new empty census. It returns ErrCensusAlreadyExists if a
// census with the given ID is already present.
func (c *CensusDB) New(censusID uuid.UUID) (*CensusRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.refs[censusID]; exists {
		return nil, ErrCensusAlreadyExists
	}
	if _, err := c.db.Get(referenceKey(censusID)); err == nil {
		return nil, ErrCensusAlreadyExists
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return nil, err
	}
	ref := &CensusRef{
		ID:       censusID,
		LastUsed: time.Now(),
	}
	if err := c.writeReference(ref); err != nil {
		return nil, err
	}
	c.refs[censusID] = ref
	return ref, nil
}

// Exists returns true if the censusID exists in the local database.
func (c *CensusDB) Exists(censusID uuid.UUID) bool {
	c.mu.RLock()
	_, exists := c.refs[censusID]
	c.mu.RUnlock()
	if exists {
		return true
	}
	_, err := c.db.Get(referenceKey(censusID))
	return err == nil
}

// Add inserts the commitments provided into the census. Commitments already
// present are ignored. It returns the new census root. The members and the
// updated reference are written in the same transaction, after the new tree
// has been built, so a failed call leaves the census untouched.
func (c *CensusDB) Add(censusID uuid.UUID, commitments [][]byte) ([]byte, error) {
	if len(commitments) == 0 {
		return nil, ErrEmptyCensus
	}
	for _, cm := range commitments {
		if len(cm) != types.HashLen {
			return nil, fmt.Errorf("invalid commitment length %d", len(cm))
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ref, err := c.loadReference(censusID)
	if err != nil {
		return nil, err
	}
	members, err := c.members(censusID)
	if err != nil {
		return nil, err
	}
	set, err := NewEligibilitySet(append(members, commitments...))
	if err != nil {
		return nil, err
	}
	updated := &CensusRef{
		ID:       censusID,
		Size:     set.Size(),
		Root:     set.Root(),
		LastUsed: time.Now(),
	}
	refBytes, err := encodeReference(updated)
	if err != nil {
		return nil, err
	}

	wtx := c.db.WriteTx()
	defer wtx.Discard()
	membersTx := prefixeddb.NewPrefixedWriteTx(wtx, censusPrefix(censusID))
	for _, cm := range commitments {
		if err := membersTx.Set(cm, []byte{1}); err != nil {
			return nil, err
		}
	}
	if err := wtx.Set(referenceKey(censusID), refBytes); err != nil {
		return nil, err
	}
	if err := wtx.Commit(); err != nil {
		return nil, err
	}

	if ref.Root != nil {
		delete(c.rootIndex, rootKey(ref.Root))
	}
	c.refs[censusID] = updated
	c.loaded[censusID] = set
	c.rootIndex[rootKey(updated.Root)] = censusID
	log.Debugw("census updated", "id", censusID.String(), "size", updated.Size, "root", hex.EncodeToString(updated.Root))
	return updated.Root, nil
}

// Load returns the eligibility set of the census. It fails with
// ErrEmptyCensus if no member has been added yet.
func (c *CensusDB) Load(censusID uuid.UUID) (*EligibilitySet, error) {
	c.mu.RLock()
	set, ok := c.loaded[censusID]
	c.mu.RUnlock()
	if ok {
		return set, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.loaded[censusID]; ok {
		return set, nil
	}
	ref, err := c.loadReference(censusID)
	if err != nil {
		return nil, err
	}
	if ref.Size == 0 {
		return nil, ErrEmptyCensus
	}
	set, err = c.buildSet(censusID)
	if err != nil {
		return nil, err
	}
	c.loaded[censusID] = set
	c.rootIndex[rootKey(set.Root())] = censusID
	return set, nil
}

// Root returns the published root of the census.
func (c *CensusDB) Root(censusID uuid.UUID) ([]byte, error) {
	set, err := c.Load(censusID)
	if err != nil {
		return nil, err
	}
	return set.Root(), nil
}

// Witness returns the membership witness of the commitment inside the census.
func (c *CensusDB) Witness(censusID uuid.UUID, commitment []byte) (*types.MembershipWitness, error) {
	set, err := c.Load(censusID)
	if err != nil {
		return nil, err
	}
	path, err := set.Proof(commitment)
	if err != nil {
		return nil, err
	}
	return &types.MembershipWitness{Path: path, Root: set.Root()}, nil
}

// ByRoot returns the eligibility set whose root is the one provided, if it
// has been loaded or updated by this instance.
func (c *CensusDB) ByRoot(root []byte) (*EligibilitySet, error) {
	c.mu.RLock()
	censusID, ok := c.rootIndex[rootKey(root)]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no census with root %x", ErrCensusNotFound, root)
	}
	return c.Load(censusID)
}

// Del removes a census from the database and memory.
func (c *CensusDB) Del(censusID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wtx := c.db.WriteTx()
	if err := wtx.Delete(referenceKey(censusID)); err != nil {
		wtx.Discard()
		return err
	}
	if err := wtx.Commit(); err != nil {
		return err
	}
	if ref, ok := c.refs[censusID]; ok && ref.Root != nil {
		delete(c.rootIndex, rootKey(ref.Root))
	}
	delete(c.refs, censusID)
	delete(c.loaded, censusID)

	n, err := deleteCensusMembers(c.db, censusPrefix(censusID))
	if err != nil {
		log.Warnw("error deleting census members", "id", censusID.String(), "err", err)
		return nil
	}
	log.Debugw("census deleted", "id", censusID.String(), "members", n)
	return nil
}

// loadReference returns the census reference from memory or from the
// database. The caller must hold the write lock.
func (c *CensusDB) loadReference(censusID uuid.UUID) (*CensusRef, error) {
	if ref, ok := c.refs[censusID]; ok {
		return ref, nil
	}
	b, err := c.db.Get(referenceKey(censusID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCensusNotFound, censusID)
		}
		return nil, err
	}
	var ref CensusRef
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&ref); err != nil {
		return nil, err
	}
	c.refs[censusID] = &ref
	return &ref, nil
}

// members reads every member of the census.
func (c *CensusDB) members(censusID uuid.UUID) ([][]byte, error) {
	database := prefixeddb.NewPrefixedReader(c.db, censusPrefix(censusID))
	var members [][]byte
	if err := database.Iterate(nil, func(k, _ []byte) bool {
		members = append(members, append([]byte(nil), k...))
		return true
	}); err != nil {
		return nil, err
	}
	return members, nil
}

// buildSet reads every member of the census and builds its tree.
func (c *CensusDB) buildSet(censusID uuid.UUID) (*EligibilitySet, error) {
	members, err := c.members(censusID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrEmptyCensus
	}
	return NewEligibilitySet(members)
}

func encodeReference(ref *CensusRef) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ref); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeReference writes a census reference to the database.
func (c *CensusDB) writeReference(ref *CensusRef) error {
	b, err := encodeReference(ref)
	if err != nil {
		return err
	}
	wtx := c.db.WriteTx()
	defer wtx.Discard()
	if err := wtx.Set(referenceKey(ref.ID), b); err != nil {
		return err
	}
	return wtx.Commit()
}

// deleteCensusMembers removes all keys belonging to a census from the database.
func deleteCensusMembers(kv db.Database, prefix []byte) (int, error) {
	database := prefixeddb.NewPrefixedDatabase(kv, prefix)
	var keys [][]byte
	if err := database.Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, append([]byte(nil), k...))
		return true
	}); err != nil {
		return 0, err
	}
	wtx := database.WriteTx()
	defer wtx.Discard()
	for _, k := range keys {
		if err := wtx.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), wtx.Commit()
}

func referenceKey(censusID uuid.UUID) []byte {
	return append([]byte(censusDBreferencePrefix), censusID[:]...)
}

// censusPrefix returns the prefix used for the census members in the database.
func censusPrefix(censusID uuid.UUID) []byte {
	return append([]byte(censusDBprefix), censusID[:]...)
}
