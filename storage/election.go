package storage

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vocdoni/zk-anonvote/types"
)

var electionKey = []byte("election")

// Election is the public description of the election served by a node.
type Election struct {
	ID              types.HexBytes   `json:"id" cbor:"1,keyasint"`
	Title           string           `json:"title" cbor:"2,keyasint"`
	Description     string           `json:"description,omitempty" cbor:"3,keyasint,omitempty"`
	Candidates      types.Candidates `json:"candidates" cbor:"4,keyasint"`
	CensusID        string           `json:"censusId,omitempty" cbor:"5,keyasint,omitempty"`
	EligibilityRoot types.HexBytes   `json:"eligibilityRoot,omitempty" cbor:"6,keyasint,omitempty"`
	CreatedAt       time.Time        `json:"createdAt" cbor:"7,keyasint"`
}

// ElectionID returns the identifier of an election with the title and
// candidates provided. Voters use it to build their freshness token, so it
// must not change during the election.
func ElectionID(title string, candidates types.Candidates) (types.HexBytes, error) {
	data, err := encodeArtifact(struct {
		Title      string
		Candidates types.Candidates
	}{title, candidates})
	if err != nil {
		return nil, err
	}
	return hashKey(data), nil
}

// SetElection stores the election. If the election has no ID it is
// computed with ElectionID.
func (s *Storage) SetElection(e *Election) error {
	if e == nil {
		return fmt.Errorf("nil election")
	}
	if len(e.Candidates) == 0 {
		return fmt.Errorf("election without candidates")
	}
	if len(e.ID) == 0 {
		id, err := ElectionID(e.Title, e.Candidates)
		if err != nil {
			return err
		}
		e.ID = id
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return s.setArtifact(metadataPrefix, electionKey, e)
}

// Election returns the stored election or ErrNotFound.
func (s *Storage) Election() (*Election, error) {
	e := &Election{}
	if err := s.getArtifact(metadataPrefix, electionKey, e); err != nil {
		return nil, err
	}
	return e, nil
}

// SetEligibilityRoot updates the eligibility root of the stored election,
// keeping its ID. It returns the updated election or ErrNotFound if no
// election is stored.
func (s *Storage) SetEligibilityRoot(root []byte) (*Election, error) {
	e, err := s.Election()
	if err != nil {
		return nil, err
	}
	if bytes.Equal(e.EligibilityRoot, root) {
		return e, nil
	}
	e.EligibilityRoot = append(types.HexBytes(nil), root...)
	if err := s.setArtifact(metadataPrefix, electionKey, e); err != nil {
		return nil, err
	}
	return e, nil
}
