// Package dtype maps HDF5 datatypes to Go types and converts element bytes
// in both directions.
package dtype

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"github.com/robert-malhotra/virelay/internal/message"
)

// ErrUnsupported is returned for datatypes or destinations that have no
// conversion.
var ErrUnsupported = errors.New("unsupported conversion")

// GoType returns the natural Go type of one element of dt.
func GoType(dt *message.Datatype) (reflect.Type, error) {
	switch dt.Class {
	case message.ClassFixedPoint, message.ClassBitfield:
		return intType(dt.Size, dt.Class == message.ClassFixedPoint && dt.Signed)
	case message.ClassFloatPoint:
		switch dt.Size {
		case 4:
			return reflect.TypeFor[float32](), nil
		case 8:
			return reflect.TypeFor[float64](), nil
		}
	case message.ClassString:
		return reflect.TypeFor[string](), nil
	case message.ClassEnum:
		if isBool(dt) {
			return reflect.TypeFor[bool](), nil
		}
		return GoType(dt.Base)
	case message.ClassVarLen:
		if dt.IsVarLenString {
			return reflect.TypeFor[string](), nil
		}
		elem, err := GoType(dt.Base)
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil
	case message.ClassArray:
		t, err := GoType(dt.Base)
		if err != nil {
			return nil, err
		}
		for i := len(dt.ArrayDims) - 1; i >= 0; i-- {
			t = reflect.ArrayOf(int(dt.ArrayDims[i]), t)
		}
		return t, nil
	case message.ClassCompound:
		return reflect.TypeFor[map[string]any](), nil
	case message.ClassOpaque, message.ClassReference:
		return reflect.TypeFor[[]byte](), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, dt)
}

func intType(size uint32, signed bool) (reflect.Type, error) {
	types := map[uint32][2]reflect.Type{
		1: {reflect.TypeFor[uint8](), reflect.TypeFor[int8]()},
		2: {reflect.TypeFor[uint16](), reflect.TypeFor[int16]()},
		4: {reflect.TypeFor[uint32](), reflect.TypeFor[int32]()},
		8: {reflect.TypeFor[uint64](), reflect.TypeFor[int64]()},
	}
	pair, ok := types[size]
	if !ok {
		return nil, fmt.Errorf("%w: %d-byte integer", ErrUnsupported, size)
	}
	if signed {
		return pair[1], nil
	}
	return pair[0], nil
}

// isBool reports whether dt is the two-member FALSE/TRUE enumeration h5py
// writes for booleans.
func isBool(dt *message.Datatype) bool {
	return dt.Class == message.ClassEnum && len(dt.Enum) == 2 &&
		dt.Enum[0].Name == "FALSE" && dt.Enum[1].Name == "TRUE"
}

// GoTypeToDatatype returns the datatype written for Go elements of type t.
// Strings have no fixed width and are sized by StringDatatype instead.
func GoTypeToDatatype(t reflect.Type) (*message.Datatype, error) {
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return message.NewBoolDatatype(), nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return message.NewFixedPointDatatype(uint32(t.Size()), true, message.OrderLE), nil
	case reflect.Int:
		return message.NewFixedPointDatatype(8, true, message.OrderLE), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return message.NewFixedPointDatatype(uint32(t.Size()), false, message.OrderLE), nil
	case reflect.Uint:
		return message.NewFixedPointDatatype(8, false, message.OrderLE), nil
	case reflect.Float32:
		return message.NewFloatDatatype(4, message.OrderLE), nil
	case reflect.Float64:
		return message.NewFloatDatatype(8, message.OrderLE), nil
	}
	return nil, fmt.Errorf("%w: Go type %v", ErrUnsupported, t)
}

// StringDatatype returns a NUL-terminated UTF-8 type wide enough for the
// longest of values.
func StringDatatype(values ...string) *message.Datatype {
	longest := 0
	for _, s := range values {
		longest = max(longest, len(s))
	}
	return message.NewStringDatatype(uint32(longest+1), message.PadNullTerm, message.CharsetUTF8)
}

// DataSize returns the bytes taken by n elements of dt.
func DataSize(dt *message.Datatype, n uint64) uint64 {
	return uint64(dt.Size) * n
}

func byteOrder(dt *message.Datatype) binary.ByteOrder {
	if dt.ByteOrder == message.OrderBE {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
