// Package filter decodes and encodes chunk data through the HDF5 filter
// pipeline.
package filter

import (
	"fmt"

	"github.com/robert-malhotra/virelay/internal/message"
)

// Filter is one stage of a pipeline.
type Filter interface {
	ID() uint16

	// Decode reverses the filter on data read from the file.
	Decode(input []byte) ([]byte, error)

	// Encode applies the filter to data about to be written.
	Encode(input []byte) ([]byte, error)
}

// Registry maps filter IDs to constructors taking the client data values.
var Registry = map[uint16]func([]uint32) Filter{
	message.FilterDeflate:    func(cd []uint32) Filter { return NewDeflate(cd) },
	message.FilterShuffle:    func(cd []uint32) Filter { return NewShuffle(cd) },
	message.FilterFletcher32: func(cd []uint32) Filter { return NewFletcher32(cd) },
}

var filterNames = map[uint16]string{
	message.FilterDeflate:     "deflate",
	message.FilterShuffle:     "shuffle",
	message.FilterFletcher32:  "fletcher32",
	message.FilterSZIP:        "szip",
	message.FilterNBit:        "nbit",
	message.FilterScaleOffset: "scaleoffset",
}

// ErrUnsupported is returned for a required filter with no implementation.
var ErrUnsupported = fmt.Errorf("unsupported filter")

// New returns the filter described by info. An optional filter with no
// implementation returns nil and no error.
func New(info message.FilterInfo) (Filter, error) {
	constructor, ok := Registry[info.ID]
	if ok {
		return constructor(info.ClientData), nil
	}
	if info.IsOptional() {
		return nil, nil
	}
	if name, known := filterNames[info.ID]; known {
		return nil, fmt.Errorf("%w: %s (ID %d)", ErrUnsupported, name, info.ID)
	}
	return nil, fmt.Errorf("%w: ID %d", ErrUnsupported, info.ID)
}
