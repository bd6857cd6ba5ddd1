// Package superblock reads and writes the HDF5 superblock, the fixed
// structure that gives the field widths of a file and the address of its
// root group.
package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	binpkg "github.com/robert-malhotra/virelay/internal/binary"
)

// Signature opens every superblock.
var Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// searchOffsets are the positions a superblock may start at when the file
// carries a user block.
var searchOffsets = []int64{0, 512, 1024, 2048}

var (
	ErrNotHDF5            = errors.New("not an HDF5 file: signature not found")
	ErrUnsupportedVersion = errors.New("unsupported superblock version")
	ErrInvalidSuperblock  = errors.New("invalid superblock structure")
)

// Superblock holds the fields of versions 0 to 3 that readers need.
type Superblock struct {
	Version              uint8
	OffsetSize           uint8
	LengthSize           uint8
	FileConsistencyFlags uint8

	BaseAddress                uint64
	SuperblockExtensionAddress uint64
	EOFAddress                 uint64
	RootGroupAddress           uint64

	// Versions 0 and 1 only.
	GroupLeafNodeK     uint16
	GroupInternalNodeK uint16
	IndexedStorageK    uint16
	// Cached from the root symbol table entry when it carries a scratch pad.
	RootGroupBTreeAddress     uint64
	RootGroupLocalHeapAddress uint64

	ByteOrder binary.ByteOrder
	// FileOffset is where the signature was found.
	FileOffset int64
}

// Read finds the superblock of r and parses it.
func Read(r io.ReaderAt) (*Superblock, error) {
	head := make([]byte, len(Signature)+1)
	for _, off := range searchOffsets {
		if _, err := r.ReadAt(head, off); err != nil {
			if errors.Is(err, io.EOF) {
				continue
			}
			return nil, err
		}
		if !bytes.Equal(head[:len(Signature)], Signature) {
			continue
		}

		var sb *Superblock
		var err error
		switch v := head[len(Signature)]; v {
		case 0, 1:
			sb, err = readV0(r, off, v)
		case 2, 3:
			sb, err = readV2(r, off, v)
		default:
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
		}
		if err != nil {
			return nil, err
		}
		sb.FileOffset = off
		sb.ByteOrder = binary.LittleEndian
		return sb, nil
	}
	return nil, ErrNotHDF5
}

// ReaderConfig returns the field widths for reading the rest of the file.
func (sb *Superblock) ReaderConfig() binpkg.Config {
	return binpkg.Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: int(sb.OffsetSize),
		LengthSize: int(sb.LengthSize),
	}
}

func validWidth(n uint8) bool { return n == 2 || n == 4 || n == 8 }

// readV0 parses versions 0 and 1:
//
//	sig(8) ver fsver rootver res shver osize lsize res leafK(2) internK(2) flags(4)
//	[v1: storageK(2) res(2)] base free eof driver root-symbol-entry
//
// The root symbol table entry is name(O) header(O) cache(4) res(4) scratch(16).
func readV0(r io.ReaderAt, off int64, version uint8) (*Superblock, error) {
	fixed := make([]byte, 16)
	if _, err := r.ReadAt(fixed, off+8); err != nil {
		return nil, err
	}
	sb := &Superblock{
		Version:            version,
		OffsetSize:         fixed[5],
		LengthSize:         fixed[6],
		GroupLeafNodeK:     binary.LittleEndian.Uint16(fixed[8:]),
		GroupInternalNodeK: binary.LittleEndian.Uint16(fixed[10:]),
	}
	if !validWidth(sb.OffsetSize) || !validWidth(sb.LengthSize) {
		return nil, fmt.Errorf("%w: offset size %d, length size %d", ErrInvalidSuperblock, sb.OffsetSize, sb.LengthSize)
	}

	br := binpkg.NewReader(r, sb.ReaderConfig()).At(off + 24)
	if version == 1 {
		k, err := br.ReadUint16()
		if err != nil {
			return nil, err
		}
		sb.IndexedStorageK = k
		br.Skip(2)
	}

	var err error
	read := func(dst *uint64) {
		if err == nil {
			*dst, err = br.ReadOffset()
		}
	}
	var free, driver, linkName uint64
	read(&sb.BaseAddress)
	read(&free)
	read(&sb.EOFAddress)
	read(&driver)
	read(&linkName)
	read(&sb.RootGroupAddress)
	if err != nil {
		return nil, err
	}
	cacheType, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}
	br.Skip(4)
	if cacheType == 1 {
		read(&sb.RootGroupBTreeAddress)
		read(&sb.RootGroupLocalHeapAddress)
		if err != nil {
			return nil, err
		}
	}
	return sb, nil
}

// readV2 parses versions 2 and 3:
//
//	sig(8) ver osize lsize flags base ext eof root checksum(4)
func readV2(r io.ReaderAt, off int64, version uint8) (*Superblock, error) {
	fixed := make([]byte, 4)
	if _, err := r.ReadAt(fixed, off+8); err != nil {
		return nil, err
	}
	sb := &Superblock{
		Version:              version,
		OffsetSize:           fixed[1],
		LengthSize:           fixed[2],
		FileConsistencyFlags: fixed[3],
	}
	if !validWidth(sb.OffsetSize) || !validWidth(sb.LengthSize) {
		return nil, fmt.Errorf("%w: offset size %d, length size %d", ErrInvalidSuperblock, sb.OffsetSize, sb.LengthSize)
	}

	body := make([]byte, sb.Size())
	if _, err := r.ReadAt(body, off); err != nil {
		return nil, err
	}
	n := len(body) - 4
	if binpkg.Lookup3Checksum(body[:n]) != binary.LittleEndian.Uint32(body[n:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidSuperblock)
	}

	br := binpkg.NewReader(bytes.NewReader(body), sb.ReaderConfig()).At(12)
	for _, dst := range []*uint64{&sb.BaseAddress, &sb.SuperblockExtensionAddress, &sb.EOFAddress, &sb.RootGroupAddress} {
		v, err := br.ReadOffset()
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	return sb, nil
}
