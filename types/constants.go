package types

import "time"

const (
	// HashLen is the length in bytes of secrets, nullifiers, commitments and
	// merkle nodes.
	HashLen = 32
	// CandidateIDLen is the length in bytes of the candidate id inside the
	// public values.
	CandidateIDLen = 4
	// PublicValuesLen is the length of the encoded public values committed by
	// the voting circuit: nullifier | candidateId (uint32 LE) | root.
	PublicValuesLen = HashLen + CandidateIDLen + HashLen
	// NullifierTreeMaxLevels is the maximum number of levels of the consumed
	// nullifiers tree.
	NullifierTreeMaxLevels = 256
	// DefaultTallyInterval is the default polling interval of the tally reader.
	DefaultTallyInterval = 30 * time.Second
)
