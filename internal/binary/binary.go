// Package binary reads and writes the fixed- and variable-width fields of
// HDF5 metadata. Offsets and lengths are sized by the superblock.
package binary

import (
	"encoding/binary"
	"errors"
)

// ErrInvalidSize is returned for offset or length widths other than 2, 4 or 8.
var ErrInvalidSize = errors.New("invalid offset/length size: must be 2, 4, or 8")

// Config carries the field widths and byte order of one file.
type Config struct {
	ByteOrder  binary.ByteOrder
	OffsetSize int
	LengthSize int
}

// DefaultConfig is little-endian with 8-byte offsets and lengths, which is
// what the superblock is parsed with before its own sizes are known.
func DefaultConfig() Config {
	return Config{ByteOrder: binary.LittleEndian, OffsetSize: 8, LengthSize: 8}
}

// sizes is the part of a Config shared by Reader and Writer.
type sizes struct {
	order      binary.ByteOrder
	offsetSize int
	lengthSize int
}

func sizesOf(cfg Config) sizes {
	return sizes{order: cfg.ByteOrder, offsetSize: cfg.OffsetSize, lengthSize: cfg.LengthSize}
}

// OffsetSize returns the width of file addresses in bytes.
func (s sizes) OffsetSize() int { return s.offsetSize }

// LengthSize returns the width of lengths in bytes.
func (s sizes) LengthSize() int { return s.lengthSize }

// ByteOrder returns the byte order of multi-byte fields.
func (s sizes) ByteOrder() binary.ByteOrder { return s.order }

// UndefinedOffset returns the all-ones address HDF5 uses for "no address".
func (s sizes) UndefinedOffset() uint64 { return allOnes(s.offsetSize) }

// IsUndefinedOffset reports whether addr is the undefined address.
func (s sizes) IsUndefinedOffset(addr uint64) bool { return addr == allOnes(s.offsetSize) }

func allOnes(width int) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}
	return uint64(1)<<(8*width) - 1
}

func (s sizes) decode(buf []byte) uint64 {
	switch len(buf) {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(s.order.Uint16(buf))
	case 4:
		return uint64(s.order.Uint32(buf))
	case 8:
		return s.order.Uint64(buf)
	}
	// odd widths only occur in little-endian files
	var v uint64
	for i := len(buf) - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

func (s sizes) encode(buf []byte, v uint64) {
	switch len(buf) {
	case 1:
		buf[0] = uint8(v)
	case 2:
		s.order.PutUint16(buf, uint16(v))
	case 4:
		s.order.PutUint32(buf, uint32(v))
	case 8:
		s.order.PutUint64(buf, v)
	default:
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
	}
}

func align(pos, alignment int64) int64 {
	if alignment <= 1 {
		return pos
	}
	if r := pos % alignment; r != 0 {
		pos += alignment - r
	}
	return pos
}
