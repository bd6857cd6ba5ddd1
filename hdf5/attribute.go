package hdf5

import (
	"fmt"
	"reflect"

	"github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/dtype"
	"github.com/robert-malhotra/virelay/internal/message"
)

// Attribute is a small named value attached to a group or dataset.
type Attribute struct {
	msg    *message.Attribute
	reader *binary.Reader
}

// Name returns the attribute name.
func (a *Attribute) Name() string {
	return a.msg.Name
}

// Shape returns the dimensions of the value, or nil for a scalar.
func (a *Attribute) Shape() []uint64 {
	if a.IsScalar() {
		return nil
	}
	return a.msg.Dataspace.Dimensions
}

// NumElements returns the number of elements in the value.
func (a *Attribute) NumElements() uint64 {
	if a.msg.Dataspace == nil {
		return 1
	}
	return a.msg.Dataspace.NumElements()
}

// IsScalar reports whether the value is a single element without
// dimensions.
func (a *Attribute) IsScalar() bool {
	return a.msg.Dataspace == nil || a.msg.Dataspace.IsScalar()
}

// DtypeClass returns the class of the element type.
func (a *Attribute) DtypeClass() message.DatatypeClass {
	if a.msg.Datatype == nil {
		return 0
	}
	return a.msg.Datatype.Class
}

// Read decodes the value into dest; see Dataset.Read.
func (a *Attribute) Read(dest any) error {
	if a.msg.Datatype == nil {
		return fmt.Errorf("attribute %s: %w: no datatype", a.msg.Name, ErrCorrupt)
	}
	if err := dtype.Convert(a.msg.Datatype, a.msg.Data, a.NumElements(), dest, a.reader); err != nil {
		return fmt.Errorf("attribute %s: %w", a.msg.Name, err)
	}
	return nil
}

// ReadFloat64 reads the value as float64 values.
func (a *Attribute) ReadFloat64() ([]float64, error) {
	var out []float64
	err := a.Read(&out)
	return out, err
}

// ReadInt64 reads the value as int64 values.
func (a *Attribute) ReadInt64() ([]int64, error) {
	var out []int64
	err := a.Read(&out)
	return out, err
}

// ReadString reads the value as strings.
func (a *Attribute) ReadString() ([]string, error) {
	var out []string
	err := a.Read(&out)
	return out, err
}

// ReadScalarString reads the first string of the value.
func (a *Attribute) ReadScalarString() (string, error) {
	vals, err := a.ReadString()
	if err != nil {
		return "", err
	}
	if len(vals) == 0 {
		return "", fmt.Errorf("attribute %s: no values", a.msg.Name)
	}
	return vals[0], nil
}

// Value decodes the attribute into a natural Go value: int64, uint64,
// float64, string or bool slices for those classes, []any for compound,
// array and sequence types. A scalar attribute yields the single element
// instead of a slice.
func (a *Attribute) Value() (any, error) {
	dt := a.msg.Datatype
	if dt == nil {
		return nil, fmt.Errorf("attribute %s: %w: no datatype", a.msg.Name, ErrCorrupt)
	}
	switch {
	case dt.IsString():
		return collect[string](a)
	case dt.Class == message.ClassEnum && isBoolEnum(dt):
		return collect[bool](a)
	case dt.Class == message.ClassFloatPoint:
		return collect[float64](a)
	case dt.Class == message.ClassFixedPoint && !dt.Signed:
		return collect[uint64](a)
	case dt.Class == message.ClassFixedPoint, dt.Class == message.ClassEnum:
		return collect[int64](a)
	}
	return collect[any](a)
}

// collect reads the attribute into []T and unwraps scalars.
func collect[T any](a *Attribute) (any, error) {
	var out []T
	if err := a.Read(&out); err != nil {
		return nil, err
	}
	if a.IsScalar() && len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

func isBoolEnum(dt *message.Datatype) bool {
	t, err := dtype.GoType(dt)
	return err == nil && t.Kind() == reflect.Bool
}
