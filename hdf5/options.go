package hdf5

import "github.com/robert-malhotra/virelay/internal/message"

// FileOption configures file creation.
type FileOption func(*fileOptions)

type fileOptions struct {
	offsetSize int
	lengthSize int
}

// WithOffsetSize sets the size in bytes of file addresses (2, 4 or 8).
func WithOffsetSize(size int) FileOption {
	return func(o *fileOptions) {
		if size == 2 || size == 4 || size == 8 {
			o.offsetSize = size
		}
	}
}

// WithLengthSize sets the size in bytes of lengths (2, 4 or 8).
func WithLengthSize(size int) FileOption {
	return func(o *fileOptions) {
		if size == 2 || size == 4 || size == 8 {
			o.lengthSize = size
		}
	}
}

// DatasetOption configures dataset creation.
type DatasetOption func(*datasetOptions)

type attrDef struct {
	name  string
	value any
}

type datasetOptions struct {
	shape      []uint64
	chunks     []uint64
	maxDims    []uint64
	filters    []message.FilterInfo
	attributes []attrDef
}

// WithShape writes a flat slice as a dataset with the given dimensions.
// The product of dims must equal the slice length.
func WithShape(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.shape = dims
	}
}

// WithChunks stores the dataset in chunks of the given dimensions.
func WithChunks(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.chunks = dims
	}
}

// WithMaxDims sets the maximum dimensions recorded in the dataspace. Use
// message.Unlimited for an unbounded axis.
func WithMaxDims(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.maxDims = dims
	}
}

// WithDeflate compresses each chunk with zlib at level (1-9).
// Requires WithChunks.
func WithDeflate(level int) DatasetOption {
	return func(o *datasetOptions) {
		o.filters = append(o.filters, message.FilterInfo{
			ID:         message.FilterDeflate,
			ClientData: []uint32{uint32(min(max(level, 1), 9))},
		})
	}
}

// WithShuffle byte-shuffles each chunk before later filters run.
// Requires WithChunks.
func WithShuffle() DatasetOption {
	return func(o *datasetOptions) {
		o.filters = append(o.filters, message.FilterInfo{ID: message.FilterShuffle})
	}
}

// WithFletcher32 appends a checksum to each chunk. Requires WithChunks.
func WithFletcher32() DatasetOption {
	return func(o *datasetOptions) {
		o.filters = append(o.filters, message.FilterInfo{ID: message.FilterFletcher32})
	}
}

// WithAttribute attaches an attribute to the dataset. The value is a
// number, bool or string, or a slice of one of those.
func WithAttribute(name string, value any) DatasetOption {
	return func(o *datasetOptions) {
		o.attributes = append(o.attributes, attrDef{name: name, value: value})
	}
}
