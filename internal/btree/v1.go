// Package btree walks the B-trees HDF5 uses to index group members and
// dataset chunks. Version 1 trees index both; version 2 trees are read for
// chunk indexes only.
package btree

import (
	"fmt"

	"github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/heap"
)

// Node types of a version 1 B-tree.
const (
	nodeGroup = 0
	nodeChunk = 1
)

// GroupEntry is one link of a symbol-table group.
type GroupEntry struct {
	Name          string
	ObjectAddress uint64
	// LinkType is 0 for hard links and 1 for soft links.
	LinkType      uint32
	SoftLinkValue string
}

// ChunkEntry locates one stored chunk.
type ChunkEntry struct {
	// Offset is the element coordinate of the chunk's first element.
	Offset []uint64
	// FilterMask has bit i set when filter i was skipped for this chunk.
	FilterMask uint32
	// Size is the stored size in bytes, or 0 when the index does not record
	// it and the chunk is stored unfiltered.
	Size    uint32
	Address uint64
}

// v1Node is the decoded header of a "TREE" node with r positioned at its
// first key.
type v1Node struct {
	level   uint8
	entries int
	r       *binary.Reader
}

// readV1Node reads the node header at addr:
//
//	"TREE" type(1) level(1) entries(2) left(O) right(O)
func readV1Node(r *binary.Reader, addr uint64, want uint8) (*v1Node, error) {
	nr := r.At(int64(addr))
	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading btree signature: %w", err)
	}
	if string(sig) != "TREE" {
		return nil, fmt.Errorf("invalid B-tree signature: got %q, expected \"TREE\"", sig)
	}
	typ, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if typ != want {
		return nil, fmt.Errorf("unexpected B-tree node type: %d (expected %d)", typ, want)
	}
	level, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	n, err := nr.ReadUint16()
	if err != nil {
		return nil, err
	}
	nr.Skip(int64(2 * r.OffsetSize()))
	return &v1Node{level: level, entries: int(n), r: nr}, nil
}

// ReadGroupEntries lists the links of the symbol-table group whose B-tree is
// at btreeAddr. Names are resolved through localHeap.
func ReadGroupEntries(r *binary.Reader, btreeAddr uint64, localHeap *heap.LocalHeap) ([]GroupEntry, error) {
	node, err := readV1Node(r, btreeAddr, nodeGroup)
	if err != nil {
		return nil, err
	}
	var out []GroupEntry
	for i := 0; i < node.entries; i++ {
		// group keys are heap offsets of the largest name below them
		if _, err := node.r.ReadLength(); err != nil {
			return nil, err
		}
		child, err := node.r.ReadOffset()
		if err != nil {
			return nil, err
		}
		var entries []GroupEntry
		if node.level == 0 {
			entries, err = readSymbolTableNode(r, child, localHeap)
			if err != nil {
				err = fmt.Errorf("reading symbol table node: %w", err)
			}
		} else {
			entries, err = ReadGroupEntries(r, child, localHeap)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// readSymbolTableNode reads the entries of an "SNOD" node:
//
//	"SNOD" version(1)=1 reserved(1) count(2) entry...
func readSymbolTableNode(r *binary.Reader, addr uint64, localHeap *heap.LocalHeap) ([]GroupEntry, error) {
	nr := r.At(int64(addr))
	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading SNOD signature: %w", err)
	}
	if string(sig) != "SNOD" {
		return nil, fmt.Errorf("invalid symbol table node signature: got %q, expected \"SNOD\"", sig)
	}
	version, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, fmt.Errorf("unsupported symbol table node version: %d", version)
	}
	nr.Skip(1)
	count, err := nr.ReadUint16()
	if err != nil {
		return nil, err
	}

	var out []GroupEntry
	for i := 0; i < int(count); i++ {
		e, err := readSymbolTableEntry(nr, localHeap)
		if err != nil {
			return nil, fmt.Errorf("reading symbol table entry %d: %w", i, err)
		}
		if e.Name != "" {
			out = append(out, e)
		}
	}
	return out, nil
}

// readSymbolTableEntry reads name(O) header(O) cache(4) reserved(4)
// scratch(16). Cache type 2 marks a soft link whose target is a heap offset
// in the first four scratch bytes.
func readSymbolTableEntry(r *binary.Reader, localHeap *heap.LocalHeap) (GroupEntry, error) {
	name, err := r.ReadOffset()
	if err != nil {
		return GroupEntry{}, err
	}
	addr, err := r.ReadOffset()
	if err != nil {
		return GroupEntry{}, err
	}
	cache, err := r.ReadUint32()
	if err != nil {
		return GroupEntry{}, err
	}
	r.Skip(4)
	scratch, err := r.ReadBytes(16)
	if err != nil {
		return GroupEntry{}, err
	}

	e := GroupEntry{Name: localHeap.GetString(name), ObjectAddress: addr}
	if cache == 2 {
		target := uint64(r.ByteOrder().Uint32(scratch))
		e.LinkType = 1
		e.SoftLinkValue = localHeap.GetString(target)
		e.ObjectAddress = 0
	}
	return e, nil
}

// ReadChunkIndex lists the chunks of a dataset of rank ndims indexed by the
// version 1 B-tree at btreeAddr. Unallocated chunks are omitted.
//
// A chunk key is size(4) mask(4) offset(8)*(ndims+1); the extra offset is
// always zero. A node with n children carries n+1 keys.
func ReadChunkIndex(r *binary.Reader, btreeAddr uint64, ndims int) ([]ChunkEntry, error) {
	node, err := readV1Node(r, btreeAddr, nodeChunk)
	if err != nil {
		return nil, err
	}
	var out []ChunkEntry
	for i := 0; i < node.entries; i++ {
		size, err := node.r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("reading chunk size: %w", err)
		}
		mask, err := node.r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("reading filter mask: %w", err)
		}
		offset := make([]uint64, ndims+1)
		for d := range offset {
			if offset[d], err = node.r.ReadUint64(); err != nil {
				return nil, fmt.Errorf("reading chunk offset %d: %w", d, err)
			}
		}
		child, err := node.r.ReadOffset()
		if err != nil {
			return nil, fmt.Errorf("reading chunk address: %w", err)
		}

		if node.level > 0 {
			entries, err := ReadChunkIndex(r, child, ndims)
			if err != nil {
				return nil, err
			}
			out = append(out, entries...)
			continue
		}
		if r.IsUndefinedOffset(child) || size == 0 {
			continue
		}
		out = append(out, ChunkEntry{Offset: offset[:ndims], FilterMask: mask, Size: size, Address: child})
	}
	return out, nil
}
