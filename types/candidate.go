package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Candidate is one of the fixed options of the election.
type Candidate struct {
	ID    uint32 `json:"id"`
	Name  string `json:"name"`
	Party string `json:"party,omitempty"`
}

// Candidates is the fixed set of candidates of the election, sorted by id.
type Candidates []Candidate

// NewCandidates returns the sorted candidates set. It fails if the list is
// empty or if an id is repeated.
func NewCandidates(list ...Candidate) (Candidates, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("empty candidates list")
	}
	seen := make(map[uint32]struct{}, len(list))
	cs := make(Candidates, 0, len(list))
	for _, c := range list {
		if _, ok := seen[c.ID]; ok {
			return nil, fmt.Errorf("duplicated candidate id %d", c.ID)
		}
		seen[c.ID] = struct{}{}
		cs = append(cs, c)
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].ID < cs[j].ID })
	return cs, nil
}

// ParseCandidates parses a list of "id:name" or "id:name:party" entries.
func ParseCandidates(entries []string) (Candidates, error) {
	list := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		parts := strings.SplitN(e, ":", 3)
		if len(parts) < 2 || parts[1] == "" {
			return nil, fmt.Errorf("malformed candidate %q, expected id:name[:party]", e)
		}
		id, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed candidate id %q: %w", parts[0], err)
		}
		c := Candidate{ID: uint32(id), Name: parts[1]}
		if len(parts) == 3 {
			c.Party = parts[2]
		}
		list = append(list, c)
	}
	return NewCandidates(list...)
}

// Contains returns true if the candidate id is part of the set.
func (cs Candidates) Contains(id uint32) bool {
	_, ok := cs.Get(id)
	return ok
}

// Get returns the candidate with the given id.
func (cs Candidates) Get(id uint32) (Candidate, bool) {
	i := sort.Search(len(cs), func(i int) bool { return cs[i].ID >= id })
	if i < len(cs) && cs[i].ID == id {
		return cs[i], true
	}
	return Candidate{}, false
}

// IDs returns the candidate ids in ascending order.
func (cs Candidates) IDs() []uint32 {
	ids := make([]uint32, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}
