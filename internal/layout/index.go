package layout

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/btree"
	"github.com/robert-malhotra/virelay/internal/message"
)

// readIndex lists the stored chunks of the dataset.
func (c *Chunked) readIndex() ([]btree.ChunkEntry, error) {
	addr := c.lm.ChunkIndexAddr
	if c.r.IsUndefinedOffset(addr) {
		return nil, nil
	}
	if c.lm.Version < 4 {
		return btree.ReadChunkIndex(c.r, addr, len(c.dims))
	}
	if c.lm.ChunkIndexType == message.ChunkIndexBTreeV2 {
		entries, err := btree.ReadChunkIndexV2(c.r, addr, c.lm.ChunkDims)
		for i := range entries {
			if entries[i].Size == 0 {
				entries[i].Size = uint32(c.chunkBytes())
			}
		}
		return entries, err
	}
	switch c.lm.ChunkIndexType {
	case message.ChunkIndexSingle:
		e := btree.ChunkEntry{Offset: make([]uint64, len(c.dims)), Address: addr, Size: uint32(c.chunkBytes())}
		if c.lm.ChunkFlags&message.ChunkSingleFiltered != 0 {
			e.Size = uint32(c.lm.FilteredSize)
			e.FilterMask = c.lm.FilterMask
		}
		return []btree.ChunkEntry{e}, nil
	case message.ChunkIndexImplicit:
		g := c.grid(false)
		entries := make([]btree.ChunkEntry, g.total)
		for i := range entries {
			entries[i] = btree.ChunkEntry{
				Offset:  g.offset(uint64(i)),
				Address: addr + uint64(i)*c.chunkBytes(),
				Size:    uint32(c.chunkBytes()),
			}
		}
		return entries, nil
	case message.ChunkIndexFixedArray:
		return c.readFixedArray(addr)
	case message.ChunkIndexExtensibleArray:
		return c.readExtensibleArray(addr)
	}
	return nil, fmt.Errorf("%w: chunk index type %d", ErrUnsupported, c.lm.ChunkIndexType)
}

// grid maps linear chunk indexes to element offsets. Axes are listed from
// slowest to fastest varying; an extensible array index moves its
// unlimited axis first.
type grid struct {
	axes   []int
	counts []uint64
	chunk  []uint64
	total  uint64
}

func (c *Chunked) grid(swizzle bool) grid {
	n := len(c.dims)
	g := grid{chunk: c.chunk, total: 1}
	unlimited := -1
	for d := range n {
		if c.maxDims != nil && c.maxDims[d] == message.Unlimited {
			unlimited = d
			break
		}
	}
	if swizzle && unlimited > 0 {
		g.axes = append(g.axes, unlimited)
	}
	for d := range n {
		if !(swizzle && d == unlimited && unlimited > 0) {
			g.axes = append(g.axes, d)
		}
	}
	for _, d := range g.axes {
		extent := c.dims[d]
		if c.maxDims != nil && c.maxDims[d] != message.Unlimited {
			extent = c.maxDims[d]
		}
		count := (extent + c.chunk[d] - 1) / c.chunk[d]
		g.counts = append(g.counts, count)
		g.total *= count
	}
	return g
}

func (g grid) offset(i uint64) []uint64 {
	off := make([]uint64, len(g.axes))
	for k := len(g.axes) - 1; k >= 0; k-- {
		d := g.axes[k]
		if k == 0 {
			off[d] = i * g.chunk[d]
			break
		}
		off[d] = (i % g.counts[k]) * g.chunk[d]
		i /= g.counts[k]
	}
	return off
}

// block reads the n-byte metadata block at addr, checks its signature,
// zero version and trailing checksum, and returns a reader positioned
// after the version byte.
func (c *Chunked) block(addr uint64, n int, sig string) (*binary.Reader, error) {
	raw, err := c.r.At(int64(addr)).ReadBytes(n)
	if err != nil {
		return nil, fmt.Errorf("%s at %d: %w", sig, addr, err)
	}
	if string(raw[:4]) != sig || raw[4] != 0 {
		return nil, fmt.Errorf("%w: expected %s version 0 at %d, found %q", ErrCorrupt, sig, addr, raw[:5])
	}
	if err := checkTrailer(raw); err != nil {
		return nil, fmt.Errorf("%s at %d: %w", sig, addr, err)
	}
	br := binary.NewReader(bytes.NewReader(raw[:n-4]), binary.Config{
		ByteOrder: c.r.ByteOrder(), OffsetSize: c.r.OffsetSize(), LengthSize: c.r.LengthSize(),
	})
	br.Skip(5)
	return br, nil
}

// element reads one index entry. Client 1 entries belong to filtered
// datasets and carry a size and filter mask after the address.
func (c *Chunked) element(br *binary.Reader, client uint8, entrySize int) (btree.ChunkEntry, error) {
	var e btree.ChunkEntry
	addr, err := br.ReadOffset()
	if err != nil {
		return e, err
	}
	e.Address = addr
	e.Size = uint32(c.chunkBytes())
	if client == 1 {
		width := entrySize - c.r.OffsetSize() - 4
		size, err := br.ReadUintN(width)
		if err != nil {
			return e, err
		}
		e.Size = uint32(size)
		if e.FilterMask, err = br.ReadUint32(); err != nil {
			return e, err
		}
	}
	return e, nil
}

func (c *Chunked) stored(addr uint64) bool {
	return addr != 0 && !c.r.IsUndefinedOffset(addr)
}

// readFixedArray reads a fixed array index:
//
//	"FAHD" ver client entrySize pageBits maxEntries(L) dataBlock(O) checksum
//	"FADB" ver client header(O) [pageBitmap] entries checksum
//
// A data block with more than 2^pageBits entries is split into pages that
// each end in a checksum; unset bitmap bits mark pages never written.
func (c *Chunked) readFixedArray(addr uint64) ([]btree.ChunkEntry, error) {
	osz, lsz := c.r.OffsetSize(), c.r.LengthSize()
	hr, err := c.block(addr, 4+1+1+1+1+lsz+osz+4, "FAHD")
	if err != nil {
		return nil, err
	}
	client, _ := hr.ReadUint8()
	entrySize, _ := hr.ReadUint8()
	pageBits, _ := hr.ReadUint8()
	n, _ := hr.ReadLength()
	dblk, err := hr.ReadOffset()
	if err != nil {
		return nil, err
	}

	g := c.grid(false)
	esz := int(entrySize)
	prefix := 4 + 1 + 1 + osz
	pageSize := uint64(1) << pageBits
	var entries []btree.ChunkEntry
	collect := func(br *binary.Reader, first, count uint64) error {
		for i := first; i < first+count; i++ {
			e, err := c.element(br, client, esz)
			if err != nil {
				return err
			}
			if c.stored(e.Address) {
				e.Offset = g.offset(i)
				entries = append(entries, e)
			}
		}
		return nil
	}

	if n <= pageSize {
		br, err := c.block(dblk, prefix+int(n)*esz+4, "FADB")
		if err != nil {
			return nil, err
		}
		br.Skip(int64(1 + osz))
		err = collect(br, 0, n)
		return entries, err
	}

	pages := (n + pageSize - 1) / pageSize
	bitmapLen := int((pages + 7) / 8)
	br, err := c.block(dblk, prefix+bitmapLen+4, "FADB")
	if err != nil {
		return nil, err
	}
	br.Skip(int64(1 + osz))
	bitmap, err := br.ReadBytes(bitmapLen)
	if err != nil {
		return nil, err
	}
	pageAddr := dblk + uint64(prefix+bitmapLen+4)
	for p := range pages {
		count := min(pageSize, n-p*pageSize)
		if bitmap[p/8]&(1<<(p%8)) != 0 {
			raw, err := c.r.At(int64(pageAddr)).ReadBytes(int(count)*esz + 4)
			if err != nil {
				return nil, err
			}
			if err := checkTrailer(raw); err != nil {
				return nil, fmt.Errorf("fixed array page %d: %w", p, err)
			}
			pr := binary.NewReader(bytes.NewReader(raw), binary.Config{
				ByteOrder: c.r.ByteOrder(), OffsetSize: osz, LengthSize: lsz,
			})
			if err := collect(pr, p*pageSize, count); err != nil {
				return nil, err
			}
		}
		pageAddr += pageSize*uint64(esz) + 4
	}
	return entries, nil
}

func checkTrailer(raw []byte) error {
	n := len(raw)
	stored := uint32(raw[n-4]) | uint32(raw[n-3])<<8 | uint32(raw[n-2])<<16 | uint32(raw[n-1])<<24
	if sum := binary.Lookup3Checksum(raw[:n-4]); sum != stored {
		return fmt.Errorf("%w: checksum 0x%08x, computed 0x%08x", ErrCorrupt, stored, sum)
	}
	return nil
}

// eaParams are the creation parameters of an extensible array.
type eaParams struct {
	client      uint8
	elemSize    int
	maxBits     int
	idxElements int
	minElements uint64
	minPointers int
	pageBits    int
}

// readExtensibleArray reads an extensible array index:
//
//	"EAHD" ver client elemSize maxBits idxElmts dblkMin sblkMinPtrs pageBits
//	       stats(6×L) indexBlock(O) checksum
//	"EAIB" ver client header(O) elements dblkAddrs sblkAddrs checksum
//	"EASB" ver client header(O) blockOffset dblkAddrs checksum
//	"EADB" ver client header(O) blockOffset elements checksum
//
// Super block s holds 2^(s/2) data blocks of dblkMin·2^((s+1)/2)
// elements. The first 2·log2(sblkMinPtrs) super blocks are addressed from
// the index block directly. Paged data blocks are not supported.
func (c *Chunked) readExtensibleArray(addr uint64) ([]btree.ChunkEntry, error) {
	osz, lsz := c.r.OffsetSize(), c.r.LengthSize()
	hr, err := c.block(addr, 4+1+7+6*lsz+osz+4, "EAHD")
	if err != nil {
		return nil, err
	}
	raw, err := hr.ReadBytes(7)
	if err != nil {
		return nil, err
	}
	p := eaParams{
		client:      raw[0],
		elemSize:    int(raw[1]),
		maxBits:     int(raw[2]),
		idxElements: int(raw[3]),
		minElements: uint64(raw[4]),
		minPointers: int(raw[5]),
		pageBits:    int(raw[6]),
	}
	if p.minElements == 0 || p.minPointers == 0 {
		return nil, fmt.Errorf("%w: extensible array parameters %v", ErrCorrupt, raw)
	}
	hr.Skip(int64(4 * lsz))
	maxIndex, _ := hr.ReadLength()
	hr.Skip(int64(lsz))
	iblock, err := hr.ReadOffset()
	if err != nil {
		return nil, err
	}
	if c.r.IsUndefinedOffset(iblock) {
		return nil, nil
	}

	iblockSuper := 2 * (bits.Len(uint(p.minPointers)) - 1)
	nsuper := 1 + p.maxBits - (bits.Len64(p.minElements) - 1)
	ndblk := 2 * (p.minPointers - 1)
	nsblk := max(nsuper-iblockSuper, 0)

	br, err := c.block(iblock, 4+1+1+osz+p.idxElements*p.elemSize+(ndblk+nsblk)*osz+4, "EAIB")
	if err != nil {
		return nil, err
	}
	br.Skip(int64(1 + osz))

	g := c.grid(true)
	var entries []btree.ChunkEntry
	var next uint64
	take := func(r *binary.Reader, count uint64) error {
		for range count {
			e, err := c.element(r, p.client, p.elemSize)
			if err != nil {
				return err
			}
			if next < maxIndex && c.stored(e.Address) {
				e.Offset = g.offset(next)
				entries = append(entries, e)
			}
			next++
		}
		return nil
	}
	if err := take(br, uint64(p.idxElements)); err != nil {
		return nil, err
	}

	direct := make([]uint64, ndblk)
	for i := range direct {
		if direct[i], err = br.ReadOffset(); err != nil {
			return nil, err
		}
	}
	supers := make([]uint64, nsblk)
	for i := range supers {
		if supers[i], err = br.ReadOffset(); err != nil {
			return nil, err
		}
	}

	offsetWidth := (p.maxBits + 7) / 8
	readData := func(dblk uint64, nelmts uint64) error {
		if !c.stored(dblk) {
			next += nelmts
			return nil
		}
		dr, err := c.block(dblk, 4+1+1+osz+offsetWidth+int(nelmts)*p.elemSize+4, "EADB")
		if err != nil {
			return err
		}
		dr.Skip(int64(1 + osz + offsetWidth))
		return take(dr, nelmts)
	}

	d := 0
	for s := 0; s < nsuper && next < maxIndex; s++ {
		count := 1 << (s / 2)
		nelmts := p.minElements << ((s + 1) / 2)
		if nelmts > 1<<p.pageBits {
			return nil, fmt.Errorf("%w: paged extensible array data blocks", ErrUnsupported)
		}
		addrs := make([]uint64, count)
		if s < iblockSuper {
			copy(addrs, direct[d:min(d+count, len(direct))])
			d += count
		} else {
			sblk := supers[s-iblockSuper]
			if !c.stored(sblk) {
				next += uint64(count) * nelmts
				continue
			}
			sr, err := c.block(sblk, 4+1+1+osz+offsetWidth+count*osz+4, "EASB")
			if err != nil {
				return nil, err
			}
			sr.Skip(int64(1 + osz + offsetWidth))
			for i := range addrs {
				if addrs[i], err = sr.ReadOffset(); err != nil {
					return nil, err
				}
			}
		}
		for _, a := range addrs {
			if next >= maxIndex {
				break
			}
			if err := readData(a, nelmts); err != nil {
				return nil, err
			}
		}
	}
	return entries, nil
}
