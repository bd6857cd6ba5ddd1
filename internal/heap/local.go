// Package heap reads the two HDF5 heaps: the local heap holding link names of
// symbol-table groups, and global heap collections holding variable-length
// data such as the strings h5py writes for attributes.
package heap

import (
	"bytes"
	"fmt"

	"github.com/robert-malhotra/virelay/internal/binary"
)

// LocalHeap is the data segment of a local heap.
type LocalHeap struct {
	DataSize    uint64
	FreeOffset  uint64
	DataAddress uint64
	data        []byte
}

// ReadLocalHeap reads the local heap at address:
//
//	"HEAP" version(1) reserved(3) size(L) free(L) data(O)
func ReadLocalHeap(r *binary.Reader, address uint64) (*LocalHeap, error) {
	hr := r.At(int64(address))
	if err := expect(hr, "HEAP", 0, "local heap"); err != nil {
		return nil, err
	}
	h := &LocalHeap{}
	var err error
	if h.DataSize, err = hr.ReadLength(); err != nil {
		return nil, err
	}
	if h.FreeOffset, err = hr.ReadLength(); err != nil {
		return nil, err
	}
	if h.DataAddress, err = hr.ReadOffset(); err != nil {
		return nil, err
	}
	if h.data, err = r.At(int64(h.DataAddress)).ReadBytes(int(h.DataSize)); err != nil {
		return nil, fmt.Errorf("reading local heap data: %w", err)
	}
	return h, nil
}

// GetString returns the NUL-terminated string at offset, or "" when offset
// is past the data segment.
func (h *LocalHeap) GetString(offset uint64) string {
	if offset >= uint64(len(h.data)) {
		return ""
	}
	return cString(h.data[offset:])
}

// expect consumes a 4-byte signature, a version byte and 3 reserved bytes.
func expect(r *binary.Reader, sig string, version uint8, what string) error {
	got, err := r.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("reading %s signature: %w", what, err)
	}
	if string(got) != sig {
		return fmt.Errorf("invalid %s signature: got %q, expected %q", what, got, sig)
	}
	v, err := r.ReadUint8()
	if err != nil {
		return err
	}
	if v != version {
		return fmt.Errorf("unsupported %s version: %d", what, v)
	}
	r.Skip(3)
	return nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
