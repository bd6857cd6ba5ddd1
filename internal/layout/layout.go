// Package layout reads and writes the raw data of datasets stored compact,
// contiguous or chunked.
package layout

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/message"
)

var (
	// ErrOutOfBounds is returned for a selection outside the dataspace.
	ErrOutOfBounds = errors.New("selection out of bounds")

	// ErrCorrupt is returned when stored data does not match its metadata.
	ErrCorrupt = errors.New("corrupt dataset storage")

	ErrUnsupported = errors.New("unsupported storage layout")
)

// Layout reads the elements of one dataset. Results are row-major bytes.
type Layout interface {
	Read() ([]byte, error)

	// ReadSlice reads the box of count elements starting at start.
	ReadSlice(start, count []uint64) ([]byte, error)

	Class() message.LayoutClass
}

// New returns the reader for a dataset's layout message.
func New(lm *message.DataLayout, ds *message.Dataspace, dt *message.Datatype,
	fp *message.FilterPipeline, r *binary.Reader) (Layout, error) {
	if lm == nil || ds == nil || dt == nil {
		return nil, fmt.Errorf("%w: missing layout, dataspace or datatype", ErrCorrupt)
	}
	switch lm.Class {
	case message.LayoutCompact:
		return newCompact(lm, ds, dt)
	case message.LayoutContiguous:
		return newContiguous(lm, ds, dt, r), nil
	case message.LayoutChunked:
		return newChunked(lm, ds, dt, fp, r)
	}
	return nil, fmt.Errorf("%w: class %d", ErrUnsupported, lm.Class)
}

// shape returns the dimensions of ds, treating a scalar as one element.
func shape(ds *message.Dataspace) []uint64 {
	if ds.IsScalar() {
		return []uint64{1}
	}
	return ds.Dimensions
}

func product[T uint32 | uint64](dims []T) uint64 {
	n := uint64(1)
	for _, d := range dims {
		n *= uint64(d)
	}
	return n
}

func checkSelection(dims, start, count []uint64) error {
	if len(start) != len(dims) || len(count) != len(dims) {
		return fmt.Errorf("%w: selection rank %d/%d for %d dimensions", ErrOutOfBounds,
			len(start), len(count), len(dims))
	}
	for d := range dims {
		if start[d] > dims[d] || count[d] > dims[d]-start[d] {
			return fmt.Errorf("%w: dimension %d start %d count %d size %d", ErrOutOfBounds,
				d, start[d], count[d], dims[d])
		}
	}
	return nil
}

// copyBox copies a box of count elements from src, an array of shape
// srcDims, at srcOff into dst, of shape dstDims, at dstOff.
func copyBox(dst []byte, dstDims, dstOff []uint64, src []byte, srcDims, srcOff []uint64,
	count []uint64, esize uint64) {
	n := len(count)
	for _, c := range count {
		if c == 0 {
			return
		}
	}
	row := count[n-1] * esize
	idx := make([]uint64, n)
	for {
		var so, do uint64
		for d := range n {
			so = so*srcDims[d] + srcOff[d] + idx[d]
			do = do*dstDims[d] + dstOff[d] + idx[d]
		}
		copy(dst[do*esize:do*esize+row], src[so*esize:so*esize+row])

		d := n - 2
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < count[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return
		}
	}
}

// extract returns the selection from a fully materialised array.
func extract(data []byte, dims, start, count []uint64, esize uint64) []byte {
	out := make([]byte, product(count)*esize)
	copyBox(out, count, make([]uint64, len(count)), data, dims, start, count, esize)
	return out
}
