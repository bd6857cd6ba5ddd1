package layout

import (
	"fmt"

	"github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/message"
)

// Contiguous data is one run of bytes. Storage that was never allocated
// reads as zeros.
type Contiguous struct {
	addr  uint64
	size  uint64
	dims  []uint64
	esize uint64
	r     *binary.Reader
}

func newContiguous(lm *message.DataLayout, ds *message.Dataspace, dt *message.Datatype, r *binary.Reader) *Contiguous {
	c := &Contiguous{addr: lm.Address, size: lm.Size, dims: shape(ds), esize: uint64(dt.Size), r: r}
	if c.size == 0 {
		c.size = product(c.dims) * c.esize
	}
	return c
}

func (c *Contiguous) Class() message.LayoutClass { return message.LayoutContiguous }

func (c *Contiguous) allocated() bool {
	return !c.r.IsUndefinedOffset(c.addr)
}

func (c *Contiguous) Read() ([]byte, error) {
	n := product(c.dims) * c.esize
	if n > c.size {
		return nil, fmt.Errorf("%w: %d bytes stored for %d needed", ErrCorrupt, c.size, n)
	}
	if !c.allocated() {
		return make([]byte, n), nil
	}
	return c.r.At(int64(c.addr)).ReadBytes(int(n))
}

// ReadSlice reads only the rows spanned by the selection's first axis.
func (c *Contiguous) ReadSlice(start, count []uint64) ([]byte, error) {
	if err := checkSelection(c.dims, start, count); err != nil {
		return nil, err
	}
	if product(count) == 0 || !c.allocated() {
		return make([]byte, product(count)*c.esize), nil
	}
	rowBytes := product(c.dims[1:]) * c.esize
	from := start[0] * rowBytes
	span := count[0] * rowBytes
	if from+span > c.size {
		return nil, fmt.Errorf("%w: %d bytes stored, selection ends at %d", ErrCorrupt, c.size, from+span)
	}
	data, err := c.r.At(int64(c.addr + from)).ReadBytes(int(span))
	if err != nil {
		return nil, err
	}
	spanDims := append([]uint64{count[0]}, c.dims[1:]...)
	spanStart := append([]uint64{0}, start[1:]...)
	return extract(data, spanDims, spanStart, count, c.esize), nil
}
