package filter

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	binpkg "github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/message"
)

// ErrChecksum is returned when a chunk fails its Fletcher-32 check.
var ErrChecksum = fmt.Errorf("fletcher32 checksum mismatch")

// Fletcher32 appends a checksum to each chunk.
type Fletcher32 struct{}

func NewFletcher32([]uint32) *Fletcher32 { return &Fletcher32{} }

func (f *Fletcher32) ID() uint16 { return message.FilterFletcher32 }

// Decode strips the trailing checksum after checking it. Files written by
// some library versions store it byte-swapped, so both orders are accepted.
func (f *Fletcher32) Decode(input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("%d-byte chunk has no room for a checksum", len(input))
	}
	data := input[:len(input)-4]
	stored := binary.LittleEndian.Uint32(input[len(input)-4:])
	sum := binpkg.Fletcher32(data)
	if stored != sum && stored != bits.ReverseBytes32(sum) {
		return nil, fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", ErrChecksum, stored, sum)
	}
	return data, nil
}

func (f *Fletcher32) Encode(input []byte) ([]byte, error) {
	out := append([]byte(nil), input...)
	return binary.LittleEndian.AppendUint32(out, binpkg.Fletcher32(input)), nil
}
