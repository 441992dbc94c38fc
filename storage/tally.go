package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/vocdoni/zk-anonvote/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// tallyKey sorts the snapshots by time.
func tallyKey(t *types.TallyState) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(t.UpdatedAt.UnixNano()))
	return key
}

// SetMaxTallySnapshots sets the number of tally snapshots kept. Older ones
// are deleted on the next push.
func (s *Storage) SetMaxTallySnapshots(n int) {
	s.tallyLock.Lock()
	defer s.tallyLock.Unlock()
	s.maxSnapshots = n
}

// PushTally stores a tally snapshot and prunes the oldest ones.
func (s *Storage) PushTally(t *types.TallyState) error {
	if t == nil {
		return fmt.Errorf("nil tally")
	}
	s.tallyLock.Lock()
	defer s.tallyLock.Unlock()
	if err := s.setArtifact(tallyPrefix, tallyKey(t), t); err != nil {
		return fmt.Errorf("store tally: %w", err)
	}
	keys, err := s.listArtifacts(tallyPrefix)
	if err != nil {
		return err
	}
	if len(keys) <= s.maxSnapshots {
		return nil
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), tallyPrefix)
	defer wTx.Discard()
	for _, k := range keys[:len(keys)-s.maxSnapshots] {
		if err := wTx.Delete(k); err != nil {
			return fmt.Errorf("prune tally: %w", err)
		}
	}
	return wTx.Commit()
}

// LatestTally returns the most recent tally snapshot or ErrNotFound.
func (s *Storage) LatestTally() (*types.TallyState, error) {
	tallies, err := s.Tallies(1)
	if err != nil {
		return nil, err
	}
	if len(tallies) == 0 {
		return nil, ErrNotFound
	}
	return tallies[0], nil
}

// Tallies returns up to limit tally snapshots, the newest first.
func (s *Storage) Tallies(limit int) ([]*types.TallyState, error) {
	keys, err := s.listArtifacts(tallyPrefix)
	if err != nil {
		return nil, err
	}
	var tallies []*types.TallyState
	for i := len(keys) - 1; i >= 0 && len(tallies) < limit; i-- {
		t := &types.TallyState{}
		if err := s.getArtifact(tallyPrefix, keys[i], t); err != nil {
			return nil, err
		}
		tallies = append(tallies, t)
	}
	return tallies, nil
}
