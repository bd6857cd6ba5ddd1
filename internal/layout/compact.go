package layout

import (
	"fmt"

	"github.com/robert-malhotra/virelay/internal/message"
)

// Compact data lives in the layout message itself.
type Compact struct {
	data  []byte
	dims  []uint64
	esize uint64
}

func newCompact(lm *message.DataLayout, ds *message.Dataspace, dt *message.Datatype) (*Compact, error) {
	c := &Compact{data: lm.CompactData, dims: shape(ds), esize: uint64(dt.Size)}
	if need := product(c.dims) * c.esize; uint64(len(c.data)) < need {
		return nil, fmt.Errorf("%w: compact data holds %d bytes, need %d", ErrCorrupt, len(c.data), need)
	}
	return c, nil
}

func (c *Compact) Class() message.LayoutClass { return message.LayoutCompact }

func (c *Compact) Read() ([]byte, error) {
	return append([]byte(nil), c.data[:product(c.dims)*c.esize]...), nil
}

func (c *Compact) ReadSlice(start, count []uint64) ([]byte, error) {
	if err := checkSelection(c.dims, start, count); err != nil {
		return nil, err
	}
	return extract(c.data, c.dims, start, count, c.esize), nil
}
