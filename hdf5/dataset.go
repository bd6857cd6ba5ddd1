package hdf5

import (
	"fmt"
	"reflect"

	"github.com/robert-malhotra/virelay/internal/dtype"
	"github.com/robert-malhotra/virelay/internal/layout"
	"github.com/robert-malhotra/virelay/internal/message"
	"github.com/robert-malhotra/virelay/internal/object"
)

// Dataset is an HDF5 dataset.
type Dataset struct {
	node
	dataspace *message.Dataspace
	datatype  *message.Datatype
	filters   *message.FilterPipeline
	layout    layout.Layout
}

func newDataset(f *File, path string, header *object.Header) (*Dataset, error) {
	d := &Dataset{
		node:      node{file: f, path: path, header: header},
		dataspace: header.Dataspace(),
		datatype:  header.Datatype(),
		filters:   header.FilterPipeline(),
	}
	lm := header.DataLayout()
	switch {
	case d.dataspace == nil:
		return nil, fmt.Errorf("%s: %w: dataset has no dataspace", path, ErrCorrupt)
	case d.datatype == nil:
		return nil, fmt.Errorf("%s: %w: dataset has no datatype", path, ErrCorrupt)
	case lm == nil:
		return nil, fmt.Errorf("%s: %w: dataset has no layout", path, ErrCorrupt)
	}
	var err error
	if d.layout, err = layout.New(lm, d.dataspace, d.datatype, d.filters, f.reader); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Shape returns the dimensions, or nil for a scalar dataset.
func (d *Dataset) Shape() []uint64 {
	if d.dataspace.IsScalar() {
		return nil
	}
	return d.dataspace.Dimensions
}

// MaxShape returns the maximum dimensions; message.Unlimited marks an
// unbounded axis.
func (d *Dataset) MaxShape() []uint64 {
	if d.dataspace.MaxDims != nil {
		return d.dataspace.MaxDims
	}
	return d.Shape()
}

// Rank returns the number of dimensions.
func (d *Dataset) Rank() int {
	return d.dataspace.Rank()
}

// NumElements returns the number of elements.
func (d *Dataset) NumElements() uint64 {
	return d.dataspace.NumElements()
}

// IsScalar reports whether the dataset holds a single value without
// dimensions.
func (d *Dataset) IsScalar() bool {
	return d.dataspace.IsScalar()
}

// DtypeSize returns the size of one element in bytes.
func (d *Dataset) DtypeSize() int {
	return int(d.datatype.Size)
}

// DtypeClass returns the class of the element type.
func (d *Dataset) DtypeClass() message.DatatypeClass {
	return d.datatype.Class
}

// Datatype describes the element type.
func (d *Dataset) Datatype() string {
	return d.datatype.String()
}

// Filters returns the IDs of the dataset's filters in pipeline order.
func (d *Dataset) Filters() []uint16 {
	if d.filters == nil {
		return nil
	}
	ids := make([]uint16, len(d.filters.Filters))
	for i, f := range d.filters.Filters {
		ids[i] = f.ID
	}
	return ids
}

// Layout returns the storage class: compact, contiguous or chunked.
func (d *Dataset) Layout() message.LayoutClass {
	return d.layout.Class()
}

// GoType returns the Go type an element decodes to.
func (d *Dataset) GoType() (reflect.Type, error) {
	return dtype.GoType(d.datatype)
}

// Read decodes the whole dataset into dest, a pointer to a slice of a
// numeric type, string, bool or any.
func (d *Dataset) Read(dest any) error {
	raw, err := d.layout.Read()
	if err != nil {
		return fmt.Errorf("%s: reading data: %w", d.path, err)
	}
	return d.convert(raw, d.NumElements(), dest)
}

// ReadRaw returns the dataset's bytes in row-major order.
func (d *Dataset) ReadRaw() ([]byte, error) {
	return d.layout.Read()
}

// ReadSlice decodes the hyperslab at start of extent count into dest in
// row-major order. A selection past the dataset's extent fails with
// ErrOutOfBounds.
func (d *Dataset) ReadSlice(start, count []uint64, dest any) error {
	raw, err := d.layout.ReadSlice(start, count)
	if err != nil {
		return fmt.Errorf("%s: reading slice: %w", d.path, err)
	}
	n := uint64(1)
	for _, c := range count {
		n *= c
	}
	return d.convert(raw, n, dest)
}

// ReadRows decodes n entries along the first axis starting at row.
func (d *Dataset) ReadRows(row, n uint64, dest any) error {
	dims := d.Shape()
	if len(dims) == 0 {
		return fmt.Errorf("%s: %w: scalar dataset has no rows", d.path, ErrOutOfBounds)
	}
	start := make([]uint64, len(dims))
	count := append([]uint64(nil), dims...)
	start[0], count[0] = row, n
	return d.ReadSlice(start, count, dest)
}

// RowShape returns the dimensions of one entry along the first axis.
func (d *Dataset) RowShape() []uint64 {
	dims := d.Shape()
	if len(dims) <= 1 {
		return nil
	}
	return append([]uint64(nil), dims[1:]...)
}

// Len returns the extent of the first axis, or 1 for a scalar.
func (d *Dataset) Len() uint64 {
	if dims := d.Shape(); len(dims) > 0 {
		return dims[0]
	}
	return 1
}

// ReadFloat64 reads the dataset as float64 values.
func (d *Dataset) ReadFloat64() ([]float64, error) {
	var out []float64
	err := d.Read(&out)
	return out, err
}

// ReadFloat32 reads the dataset as float32 values.
func (d *Dataset) ReadFloat32() ([]float32, error) {
	var out []float32
	err := d.Read(&out)
	return out, err
}

// ReadInt64 reads the dataset as int64 values.
func (d *Dataset) ReadInt64() ([]int64, error) {
	var out []int64
	err := d.Read(&out)
	return out, err
}

// ReadString reads the dataset as strings.
func (d *Dataset) ReadString() ([]string, error) {
	var out []string
	err := d.Read(&out)
	return out, err
}

func (d *Dataset) convert(raw []byte, n uint64, dest any) error {
	if err := dtype.Convert(d.datatype, raw, n, dest, d.file.reader); err != nil {
		return fmt.Errorf("%s: %w", d.path, err)
	}
	return nil
}
