package btree

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/virelay/internal/binary"
)

// Record types of version 2 B-trees indexing chunks.
const (
	typeChunk         = 10
	typeFilteredChunk = 11
)

// v2Header is the part of a "BTHD" header needed to walk the tree.
type v2Header struct {
	Type         uint8
	NodeSize     uint32
	RecordSize   uint16
	Depth        uint16
	RootAddr     uint64
	RootRecords  uint16
	TotalRecords uint64
}

// readV2Header reads
//
//	"BTHD" version(1)=0 type(1) node(4) record(2) depth(2) split(1) merge(1)
//	root(O) rootRecords(2) total(L) checksum(4)
func readV2Header(r *binary.Reader, addr uint64) (*v2Header, error) {
	nr := r.At(int64(addr))
	if err := v2Prefix(nr, "BTHD", "header"); err != nil {
		return nil, err
	}
	h := &v2Header{}
	var err error
	if h.Type, err = nr.ReadUint8(); err != nil {
		return nil, err
	}
	if h.NodeSize, err = nr.ReadUint32(); err != nil {
		return nil, err
	}
	if h.RecordSize, err = nr.ReadUint16(); err != nil {
		return nil, err
	}
	if h.Depth, err = nr.ReadUint16(); err != nil {
		return nil, err
	}
	nr.Skip(2)
	if h.RootAddr, err = nr.ReadOffset(); err != nil {
		return nil, err
	}
	if h.RootRecords, err = nr.ReadUint16(); err != nil {
		return nil, err
	}
	if h.TotalRecords, err = nr.ReadLength(); err != nil {
		return nil, err
	}
	return h, nil
}

// v2Prefix consumes a node signature and a zero version byte.
func v2Prefix(nr *binary.Reader, sig, what string) error {
	got, err := nr.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("reading B-tree v2 %s signature: %w", what, err)
	}
	if string(got) != sig {
		return fmt.Errorf("invalid B-tree v2 %s signature: %q (expected %s)", what, got, sig)
	}
	v, err := nr.ReadUint8()
	if err != nil {
		return err
	}
	if v != 0 {
		return fmt.Errorf("unsupported B-tree v2 %s version: %d", what, v)
	}
	return nil
}

// ReadChunkIndexV2 lists the chunks indexed by the version 2 B-tree at
// btreeAddr. Records store chunk coordinates scaled by chunkDims; the
// returned offsets are element coordinates.
func ReadChunkIndexV2(r *binary.Reader, btreeAddr uint64, chunkDims []uint32) ([]ChunkEntry, error) {
	h, err := readV2Header(r, btreeAddr)
	if err != nil {
		return nil, fmt.Errorf("reading B-tree v2 header: %w", err)
	}
	if h.Type != typeChunk && h.Type != typeFilteredChunk {
		return nil, fmt.Errorf("unexpected B-tree v2 type: %d (expected 10 or 11 for chunks)", h.Type)
	}
	if h.TotalRecords == 0 {
		return nil, nil
	}
	if h.RecordSize == 0 || h.NodeSize <= prefixSize {
		return nil, fmt.Errorf("B-tree v2 node size %d, record size %d", h.NodeSize, h.RecordSize)
	}
	w := &v2Walker{r: r, h: h, chunkDims: chunkDims}
	w.sizeFields()
	if err := w.node(h.RootAddr, int(h.RootRecords), int(h.Depth)); err != nil {
		return nil, err
	}
	return w.out, nil
}

type v2Walker struct {
	r         *binary.Reader
	h         *v2Header
	chunkDims []uint32
	out       []ChunkEntry

	// nrecWidth is the width of a child's record count; totalWidth[d] is
	// the width of the subtree total stored for children at depth d.
	nrecWidth  int
	totalWidth []int
}

// prefixSize is the signature, version, type and checksum of a node.
const prefixSize = 10

// encWidth is the number of bytes used to store values up to n.
func encWidth(n uint64) int {
	return (bits.Len64(n)-1)/8 + 1
}

// sizeFields derives the variable field widths of internal nodes from the
// node and record sizes.
func (w *v2Walker) sizeFields() {
	node, rec := uint64(w.h.NodeSize), uint64(w.h.RecordSize)
	maxRec := (node - prefixSize) / rec
	w.nrecWidth = encWidth(maxRec)
	cum := maxRec
	w.totalWidth = []int{0}
	for d := 1; d <= int(w.h.Depth); d++ {
		ptr := uint64(w.r.OffsetSize()+w.nrecWidth) + uint64(w.totalWidth[d-1])
		n := (node - (prefixSize + ptr)) / (rec + ptr)
		cum = (n+1)*cum + n
		w.totalWidth = append(w.totalWidth, encWidth(cum))
	}
}

// node reads a leaf ("BTLF" type records...) or an internal node ("BTIN"
// type records, then a child pointer per record plus one: child(O) count
// and, for depths above 1, a subtree total the walker skips).
func (w *v2Walker) node(addr uint64, records, depth int) error {
	nr := w.r.At(int64(addr))
	if depth == 0 {
		if err := v2Prefix(nr, "BTLF", "leaf"); err != nil {
			return err
		}
		nr.Skip(1)
		for i := 0; i < records; i++ {
			if err := w.record(nr); err != nil {
				return fmt.Errorf("reading record %d: %w", i, err)
			}
		}
		return nil
	}

	if err := v2Prefix(nr, "BTIN", "internal node"); err != nil {
		return err
	}
	nr.Skip(1)
	for i := 0; i < records; i++ {
		if err := w.record(nr); err != nil {
			return fmt.Errorf("reading record %d: %w", i, err)
		}
	}
	for i := 0; i <= records; i++ {
		child, err := nr.ReadOffset()
		if err != nil {
			return fmt.Errorf("reading child pointer %d: %w", i, err)
		}
		n, err := nr.ReadUintN(w.nrecWidth)
		if err != nil {
			return fmt.Errorf("reading child record count %d: %w", i, err)
		}
		if depth > 1 {
			nr.Skip(int64(w.totalWidth[depth-1]))
		}
		if err := w.node(child, int(n), depth-1); err != nil {
			return fmt.Errorf("reading child node %d: %w", i, err)
		}
	}
	return nil
}

// record reads one chunk record:
//
//	type 10: address(O) scaled(8)*rank
//	type 11: address(O) size(n) mask(4) scaled(8)*rank
//
// where n is whatever the record size leaves for the chunk size.
func (w *v2Walker) record(nr *binary.Reader) error {
	rank := len(w.chunkDims)
	var e ChunkEntry
	var err error
	if e.Address, err = nr.ReadOffset(); err != nil {
		return err
	}
	if w.h.Type == typeFilteredChunk {
		n := int(w.h.RecordSize) - w.r.OffsetSize() - 4 - 8*rank
		if n < 1 || n > 8 {
			return fmt.Errorf("record size %d leaves %d bytes for the chunk size", w.h.RecordSize, n)
		}
		size, err := nr.ReadUintN(n)
		if err != nil {
			return err
		}
		e.Size = uint32(size)
		if e.FilterMask, err = nr.ReadUint32(); err != nil {
			return err
		}
	}
	e.Offset = make([]uint64, rank)
	for d := range e.Offset {
		scaled, err := nr.ReadUint64()
		if err != nil {
			return err
		}
		e.Offset[d] = scaled * uint64(w.chunkDims[d])
	}
	if e.Address != 0 && !w.r.IsUndefinedOffset(e.Address) {
		w.out = append(w.out, e)
	}
	return nil
}
