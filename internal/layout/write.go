package layout

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/filter"
	"github.com/robert-malhotra/virelay/internal/message"
)

// Allocator reserves size bytes of the file and returns their address.
type Allocator func(size int64) uint64

// WriteChunked stores data, row-major with shape dims, as chunks of
// chunkDims passed through pipeline. One chunk is indexed directly; more
// use a fixed array sized so that it is never paged.
func WriteChunked(w *binary.Writer, alloc Allocator, data []byte, dims []uint64, chunkDims []uint32,
	esize uint32, pipeline *filter.Pipeline) (*message.DataLayout, error) {
	chunks := SplitIntoChunks(data, dims, chunkDims, esize)
	filtered := pipeline != nil && !pipeline.Empty()
	addrs := make([]uint64, len(chunks))
	sizes := make([]uint64, len(chunks))
	for i, chunk := range chunks {
		if filtered {
			var err error
			if chunk, err = pipeline.Encode(chunk); err != nil {
				return nil, fmt.Errorf("chunk %d: %w", i, err)
			}
		}
		addrs[i] = alloc(int64(len(chunk)))
		sizes[i] = uint64(len(chunk))
		if err := w.At(int64(addrs[i])).WriteBytes(chunk); err != nil {
			return nil, err
		}
	}

	if len(chunks) <= 1 {
		lm := message.NewChunkedLayout(chunkDims, esize, message.ChunkIndexSingle)
		if len(chunks) == 0 {
			lm.ChunkIndexAddr = w.UndefinedOffset()
			return lm, nil
		}
		lm.ChunkIndexAddr = addrs[0]
		if filtered {
			lm.ChunkFlags |= message.ChunkSingleFiltered
			lm.FilteredSize = sizes[0]
		}
		return lm, nil
	}

	lm := message.NewChunkedLayout(chunkDims, esize, message.ChunkIndexFixedArray)
	lm.PageBits = uint8(max(10, bits.Len(uint(len(chunks)-1))))
	var sizeWidth int
	if filtered {
		sizeWidth = min(8, 1+(bits.Len64(product(chunkDims)*uint64(esize))-1+8)/8)
	}
	addr, err := writeFixedArray(w, alloc, addrs, sizes, sizeWidth, lm.PageBits)
	if err != nil {
		return nil, err
	}
	lm.ChunkIndexAddr = addr
	return lm, nil
}

// writeFixedArray writes the header and unpaged data block of a fixed array
// index. sizeWidth is zero for unfiltered chunks.
func writeFixedArray(w *binary.Writer, alloc Allocator, addrs, sizes []uint64, sizeWidth int, pageBits uint8) (uint64, error) {
	osz, lsz := w.OffsetSize(), w.LengthSize()
	client, entrySize := uint8(0), osz
	if sizeWidth > 0 {
		client, entrySize = 1, osz+sizeWidth+4
	}
	hdrAddr := alloc(int64(4 + 4 + lsz + osz + 4))
	dblkAddr := alloc(int64(4 + 2 + osz + len(addrs)*entrySize + 4))

	dblk := append([]byte("FADB"), 0, client)
	dblk = appendUint(dblk, hdrAddr, osz)
	for i, a := range addrs {
		dblk = appendUint(dblk, a, osz)
		if sizeWidth > 0 {
			dblk = appendUint(dblk, sizes[i], sizeWidth)
			dblk = appendUint(dblk, 0, 4)
		}
	}
	dblk = appendUint(dblk, uint64(binary.Lookup3Checksum(dblk)), 4)

	hdr := append([]byte("FAHD"), 0, client, uint8(entrySize), pageBits)
	hdr = appendUint(hdr, uint64(len(addrs)), lsz)
	hdr = appendUint(hdr, dblkAddr, osz)
	hdr = appendUint(hdr, uint64(binary.Lookup3Checksum(hdr)), 4)

	if err := w.At(int64(dblkAddr)).WriteBytes(dblk); err != nil {
		return 0, err
	}
	return hdrAddr, w.At(int64(hdrAddr)).WriteBytes(hdr)
}

func appendUint(buf []byte, v uint64, n int) []byte {
	for i := range n {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}

// SplitIntoChunks cuts row-major data into full-size chunks in chunk-grid
// order. Elements past the dataset edge are zero.
func SplitIntoChunks(data []byte, dims []uint64, chunkDims []uint32, esize uint32) [][]byte {
	n := len(dims)
	if n == 0 {
		return [][]byte{data}
	}
	chunk := make([]uint64, n)
	grid := make([]uint64, n)
	total := uint64(1)
	for d := range n {
		chunk[d] = uint64(chunkDims[d])
		grid[d] = (dims[d] + chunk[d] - 1) / chunk[d]
		total *= grid[d]
	}
	chunkBytes := product(chunk) * uint64(esize)

	out := make([][]byte, 0, total)
	idx := make([]uint64, n)
	lo := make([]uint64, n)
	count := make([]uint64, n)
	zero := make([]uint64, n)
	for range total {
		for d := range n {
			lo[d] = idx[d] * chunk[d]
			count[d] = min(chunk[d], dims[d]-lo[d])
		}
		buf := make([]byte, chunkBytes)
		copyBox(buf, chunk, zero, data, dims, lo, count, uint64(esize))
		out = append(out, buf)

		for d := n - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < grid[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out
}
