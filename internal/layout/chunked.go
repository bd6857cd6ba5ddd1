package layout

import (
	"fmt"
	"sync"

	"github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/btree"
	"github.com/robert-malhotra/virelay/internal/filter"
	"github.com/robert-malhotra/virelay/internal/message"
)

// Chunked data is split into equal boxes located through a chunk index.
// Chunks missing from the index read as zeros.
type Chunked struct {
	lm       *message.DataLayout
	dims     []uint64
	maxDims  []uint64
	chunk    []uint64
	esize    uint64
	pipeline *filter.Pipeline
	r        *binary.Reader

	entries func() ([]btree.ChunkEntry, error)
}

func newChunked(lm *message.DataLayout, ds *message.Dataspace, dt *message.Datatype,
	fp *message.FilterPipeline, r *binary.Reader) (*Chunked, error) {
	dims := shape(ds)
	if len(lm.ChunkDims) != len(dims) {
		return nil, fmt.Errorf("%w: chunk rank %d for %d dimensions", ErrCorrupt, len(lm.ChunkDims), len(dims))
	}
	pipeline, err := filter.NewPipeline(fp)
	if err != nil {
		return nil, err
	}
	c := &Chunked{
		lm:       lm,
		dims:     dims,
		maxDims:  ds.MaxDims,
		chunk:    make([]uint64, len(dims)),
		esize:    uint64(dt.Size),
		pipeline: pipeline,
		r:        r,
	}
	for i, n := range lm.ChunkDims {
		if n == 0 {
			return nil, fmt.Errorf("%w: zero chunk dimension %d", ErrCorrupt, i)
		}
		c.chunk[i] = uint64(n)
	}
	c.entries = sync.OnceValues(c.readIndex)
	return c, nil
}

func (c *Chunked) Class() message.LayoutClass { return message.LayoutChunked }

// chunkBytes is the unfiltered size of one chunk.
func (c *Chunked) chunkBytes() uint64 {
	return product(c.chunk) * c.esize
}

func (c *Chunked) Read() ([]byte, error) {
	return c.ReadSlice(make([]uint64, len(c.dims)), c.dims)
}

func (c *Chunked) ReadSlice(start, count []uint64) ([]byte, error) {
	if err := checkSelection(c.dims, start, count); err != nil {
		return nil, err
	}
	out := make([]byte, product(count)*c.esize)
	if len(out) == 0 {
		return out, nil
	}
	entries, err := c.entries()
	if err != nil {
		return nil, fmt.Errorf("chunk index: %w", err)
	}

	n := len(c.dims)
	lo := make([]uint64, n)
	size := make([]uint64, n)
	dstOff := make([]uint64, n)
	srcOff := make([]uint64, n)
	for _, e := range entries {
		if len(e.Offset) < n {
			return nil, fmt.Errorf("%w: chunk key of rank %d", ErrCorrupt, len(e.Offset))
		}
		overlap := true
		for d := range n {
			lo[d] = max(start[d], e.Offset[d])
			hi := min(start[d]+count[d], e.Offset[d]+c.chunk[d])
			if hi <= lo[d] {
				overlap = false
				break
			}
			size[d] = hi - lo[d]
			dstOff[d] = lo[d] - start[d]
			srcOff[d] = lo[d] - e.Offset[d]
		}
		if !overlap {
			continue
		}
		data, err := c.readChunk(e)
		if err != nil {
			return nil, fmt.Errorf("chunk at %v: %w", e.Offset[:n], err)
		}
		copyBox(out, count, dstOff, data, c.chunk, srcOff, size, c.esize)
	}
	return out, nil
}

func (c *Chunked) readChunk(e btree.ChunkEntry) ([]byte, error) {
	raw, err := c.r.At(int64(e.Address)).ReadBytes(int(e.Size))
	if err != nil {
		return nil, err
	}
	data, err := c.pipeline.Decode(raw, e.FilterMask)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if want := c.chunkBytes(); uint64(len(data)) < want {
		return nil, fmt.Errorf("%w: chunk decodes to %d bytes, want %d", ErrCorrupt, len(data), want)
	}
	return data, nil
}
