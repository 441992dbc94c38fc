package types

import (
	"encoding/binary"
	"fmt"
)

// EncodePublicValues serializes the public outputs with the layout committed
// by the voting circuit:
//
//	[0:32]  nullifier
//	[32:36] candidate id, uint32 little endian
//	[36:68] eligibility root
func EncodePublicValues(p *PublicOutputs) ([]byte, error) {
	if len(p.Nullifier) != HashLen {
		return nil, fmt.Errorf("invalid nullifier length %d", len(p.Nullifier))
	}
	if len(p.Root) != HashLen {
		return nil, fmt.Errorf("invalid root length %d", len(p.Root))
	}
	buf := make([]byte, PublicValuesLen)
	copy(buf[:HashLen], p.Nullifier)
	binary.LittleEndian.PutUint32(buf[HashLen:HashLen+CandidateIDLen], p.CandidateID)
	copy(buf[HashLen+CandidateIDLen:], p.Root)
	return buf, nil
}

// DecodePublicValues parses the public values committed by the voting
// circuit. Trailing bytes are not allowed.
func DecodePublicValues(data []byte) (*PublicOutputs, error) {
	if len(data) != PublicValuesLen {
		return nil, fmt.Errorf("invalid public values length %d, expected %d", len(data), PublicValuesLen)
	}
	return &PublicOutputs{
		Nullifier:   append(HexBytes(nil), data[:HashLen]...),
		CandidateID: binary.LittleEndian.Uint32(data[HashLen : HashLen+CandidateIDLen]),
		Root:        append(HexBytes(nil), data[HashLen+CandidateIDLen:]...),
	}, nil
}
