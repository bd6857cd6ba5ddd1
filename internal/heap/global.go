package heap

import (
	"encoding/binary"
	"fmt"

	binpkg "github.com/robert-malhotra/virelay/internal/binary"
)

// GlobalHeap is one global heap collection.
type GlobalHeap struct {
	CollectionSize uint64
	objects        map[uint16][]byte
}

// GlobalHeapID addresses one object of a collection.
type GlobalHeapID struct {
	CollectionAddress uint64
	ObjectIndex       uint32
}

// ReadGlobalHeap reads the collection at address:
//
//	"GCOL" version(1) reserved(3) size(L) { index(2) refs(2) res(4) size(L) data pad8 }...
//
// Index 0 ends the object list.
func ReadGlobalHeap(r *binpkg.Reader, address uint64) (*GlobalHeap, error) {
	if address == 0 || r.IsUndefinedOffset(address) {
		return nil, fmt.Errorf("invalid global heap address")
	}
	hr := r.At(int64(address))
	if err := expect(hr, "GCOL", 1, "global heap"); err != nil {
		return nil, err
	}
	size, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}
	h := &GlobalHeap{CollectionSize: size, objects: make(map[uint16][]byte)}

	end := int64(address) + int64(size)
	objectHeader := int64(8 + r.LengthSize())
	for hr.Pos()+objectHeader <= end {
		index, err := hr.ReadUint16()
		if err != nil || index == 0 {
			break
		}
		hr.Skip(6)
		n, err := hr.ReadLength()
		if err != nil {
			break
		}
		if hr.Pos()+int64(n) > end {
			return nil, fmt.Errorf("global heap object %d overruns its collection", index)
		}
		data, err := hr.ReadBytes(int(n))
		if err != nil {
			return nil, fmt.Errorf("reading global heap object %d: %w", index, err)
		}
		if n > 0 {
			h.objects[index] = data
		}
		hr.Align(8)
	}
	return h, nil
}

// GetObject returns a copy of object index.
func (h *GlobalHeap) GetObject(index uint16) ([]byte, error) {
	if h == nil {
		return nil, fmt.Errorf("nil global heap")
	}
	data, ok := h.objects[index]
	if !ok {
		return nil, fmt.Errorf("object index %d not found in global heap", index)
	}
	return append([]byte(nil), data...), nil
}

// GetString returns object index up to its first NUL byte.
func (h *GlobalHeap) GetString(index uint16) (string, error) {
	data, err := h.GetObject(index)
	if err != nil {
		return "", err
	}
	return cString(data), nil
}

// ParseGlobalHeapID decodes a heap ID: a little-endian address of
// offsetSize bytes followed by a 4-byte object index.
func ParseGlobalHeapID(data []byte, offsetSize int) (GlobalHeapID, error) {
	if len(data) < offsetSize+4 {
		return GlobalHeapID{}, fmt.Errorf("global heap ID too short: need %d bytes, have %d", offsetSize+4, len(data))
	}
	var addr uint64
	switch offsetSize {
	case 2:
		addr = uint64(binary.LittleEndian.Uint16(data))
	case 4:
		addr = uint64(binary.LittleEndian.Uint32(data))
	case 8:
		addr = binary.LittleEndian.Uint64(data)
	default:
		return GlobalHeapID{}, fmt.Errorf("unsupported offset size: %d", offsetSize)
	}
	return GlobalHeapID{
		CollectionAddress: addr,
		ObjectIndex:       binary.LittleEndian.Uint32(data[offsetSize:]),
	}, nil
}
