package object

import (
	"fmt"

	"github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/message"
)

// maxContinuations bounds the number of continuation blocks of one header.
const maxContinuations = 1024

// block is one run of header messages.
type block struct {
	offset, length uint64
}

// Read parses the object header at address.
//
// Version 1:
//
//	version(1) reserved(1) nmsgs(2) refcount(4) size(4) pad8
//	{ type(2) size(2) flags(1) reserved(3) data pad8 }...
//
// Version 2:
//
//	"OHDR" version(1) flags(1) [times(16)] [phase(4)] size(1<<flags&3)
//	{ type(1) size(2) flags(1) [order(2)] data }... checksum(4)
//
// Continuation blocks of version 2 start with "OCHK" and end with a
// checksum.
func Read(r *binary.Reader, address uint64) (*Header, error) {
	hr := r.At(int64(address))
	peek, err := hr.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("object header at %d: %w", address, err)
	}
	var (
		h     *Header
		first block
	)
	switch {
	case string(peek) == "OHDR":
		h, first, err = readPrefixV2(hr, address)
	case peek[0] == 1:
		h, first, err = readPrefixV1(hr, address)
	default:
		return nil, fmt.Errorf("%w at %d", ErrInvalidHeader, address)
	}
	if err != nil {
		return nil, fmt.Errorf("object header at %d: %w", address, err)
	}

	queue := []block{first}
	seen := map[uint64]bool{}
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		if seen[b.offset] || len(seen) > maxContinuations {
			return nil, fmt.Errorf("%w: continuation loop at %d", ErrInvalidHeader, b.offset)
		}
		seen[b.offset] = true
		more, err := h.readBlock(r, b, len(seen) > 1)
		if err != nil {
			return nil, fmt.Errorf("object header at %d: %w", address, err)
		}
		queue = append(queue, more...)
	}
	return h, nil
}

func readPrefixV1(r *binary.Reader, address uint64) (*Header, block, error) {
	r.Skip(2)
	if _, err := r.ReadUint16(); err != nil {
		return nil, block{}, err
	}
	refs, err := r.ReadUint32()
	if err != nil {
		return nil, block{}, err
	}
	size, err := r.ReadUint32()
	if err != nil {
		return nil, block{}, err
	}
	r.Align(8)
	h := &Header{Version: 1, Address: address, RefCount: refs}
	return h, block{offset: uint64(r.Pos()), length: uint64(size)}, nil
}

func readPrefixV2(r *binary.Reader, address uint64) (*Header, block, error) {
	r.Skip(4)
	version, err := r.ReadUint8()
	if err != nil {
		return nil, block{}, err
	}
	if version != 2 {
		return nil, block{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	flags, err := r.ReadUint8()
	if err != nil {
		return nil, block{}, err
	}
	h := &Header{Version: 2, Address: address, Flags: flags, RefCount: 1}
	if flags&0x20 != 0 {
		r.Skip(4)
		if h.ModTime, err = r.ReadUint32(); err != nil {
			return nil, block{}, err
		}
		r.Skip(8)
	}
	if flags&0x10 != 0 {
		r.Skip(4)
	}
	size, err := r.ReadUintN(1 << (flags & 0x03))
	if err != nil {
		return nil, block{}, err
	}
	// The first block of a version 2 header is checksummed from the
	// signature on; length here covers the messages only.
	return h, block{offset: uint64(r.Pos()), length: size}, nil
}

// readBlock appends the messages of b to h and returns the continuation
// blocks it names.
func (h *Header) readBlock(r *binary.Reader, b block, continuation bool) ([]block, error) {
	start, end := int64(b.offset), int64(b.offset+b.length)
	if h.Version == 2 {
		checked := start
		if continuation {
			sig, err := r.At(start).ReadBytes(4)
			if err != nil {
				return nil, err
			}
			if string(sig) != "OCHK" {
				return nil, fmt.Errorf("%w: continuation signature %q", ErrInvalidHeader, sig)
			}
			start += 4
			end -= 4
		} else {
			checked = int64(h.Address)
		}
		if err := verifyChecksum(r, checked, end); err != nil {
			return nil, err
		}
	}

	var more []block
	br := r.At(start)
	minEntry := int64(4)
	if h.Version == 1 {
		minEntry = 8
	}
	for br.Pos()+minEntry <= end {
		typ, size, flags, err := h.readEntry(br)
		if err != nil {
			return nil, err
		}
		if br.Pos()+int64(size) > end {
			return nil, fmt.Errorf("%w: message of %d bytes overruns its block", ErrInvalidHeader, size)
		}
		data, err := br.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}
		if h.Version == 1 {
			br.Align(8)
		}
		if typ == message.TypeNIL {
			continue
		}
		m, err := message.Parse(typ, data, flags, r)
		if err != nil {
			return nil, err
		}
		if c, ok := m.(*message.Continuation); ok {
			more = append(more, block{offset: c.Offset, length: c.Length})
			continue
		}
		h.Messages = append(h.Messages, m)
	}
	return more, nil
}

func (h *Header) readEntry(r *binary.Reader) (message.Type, uint32, uint8, error) {
	if h.Version == 1 {
		typ, err := r.ReadUint16()
		if err != nil {
			return 0, 0, 0, err
		}
		size, err := r.ReadUint16()
		if err != nil {
			return 0, 0, 0, err
		}
		flags, err := r.ReadUint8()
		r.Skip(3)
		return message.Type(typ), uint32(size), flags, err
	}
	typ, err := r.ReadUint8()
	if err != nil {
		return 0, 0, 0, err
	}
	size, err := r.ReadUint16()
	if err != nil {
		return 0, 0, 0, err
	}
	flags, err := r.ReadUint8()
	if h.Flags&0x04 != 0 {
		r.Skip(2)
	}
	return message.Type(typ), uint32(size), flags, err
}

// verifyChecksum checks the Jenkins lookup3 sum stored at end against the
// bytes [start, end).
func verifyChecksum(r *binary.Reader, start, end int64) error {
	cr := r.At(start)
	data, err := cr.ReadBytes(int(end - start))
	if err != nil {
		return err
	}
	stored, err := cr.ReadUint32()
	if err != nil {
		return err
	}
	if sum := binary.Lookup3Checksum(data); sum != stored {
		return fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", ErrChecksumMismatch, stored, sum)
	}
	return nil
}
