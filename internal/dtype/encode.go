package dtype

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/robert-malhotra/virelay/internal/message"
)

// Encode lays out src as elements of dt. src is a scalar, a slice or an
// array of numbers, bools or strings, or a pointer to one.
func Encode(dt *message.Datatype, src any) ([]byte, error) {
	v := reflect.ValueOf(src)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		one := reflect.New(reflect.ArrayOf(1, v.Type())).Elem()
		one.Index(0).Set(v)
		v = one
	}
	order := byteOrder(dt)
	size := int(dt.Size)
	out := make([]byte, v.Len()*size)
	for i := range v.Len() {
		b := out[i*size : (i+1)*size]
		if err := put(dt, order, b, v.Index(i)); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

func put(dt *message.Datatype, order binary.ByteOrder, b []byte, e reflect.Value) error {
	var bits uint64
	switch dt.Class {
	case message.ClassString:
		if e.Kind() != reflect.String {
			return fmt.Errorf("%w: %v into %s", ErrUnsupported, e.Type(), dt)
		}
		s := e.String()
		if len(s) > len(b) || len(s) == len(b) && dt.StringPadding == message.PadNullTerm {
			return fmt.Errorf("string of %d bytes does not fit %s", len(s), dt)
		}
		copy(b, s)
		if dt.StringPadding == message.PadSpacePad {
			for i := len(s); i < len(b); i++ {
				b[i] = ' '
			}
		}
		return nil

	case message.ClassFloatPoint:
		var f float64
		switch e.Kind() {
		case reflect.Float32, reflect.Float64:
			f = e.Float()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f = float64(e.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			f = float64(e.Uint())
		default:
			return fmt.Errorf("%w: %v into %s", ErrUnsupported, e.Type(), dt)
		}
		if dt.Size == 4 {
			bits = uint64(math.Float32bits(float32(f)))
		} else {
			bits = math.Float64bits(f)
		}

	case message.ClassFixedPoint, message.ClassBitfield, message.ClassEnum:
		switch e.Kind() {
		case reflect.Bool:
			if e.Bool() {
				bits = 1
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			bits = uint64(e.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			bits = e.Uint()
		default:
			return fmt.Errorf("%w: %v into %s", ErrUnsupported, e.Type(), dt)
		}

	default:
		return fmt.Errorf("%w: encoding %s", ErrUnsupported, dt)
	}

	switch len(b) {
	case 1:
		b[0] = byte(bits)
	case 2:
		order.PutUint16(b, uint16(bits))
	case 4:
		order.PutUint32(b, uint32(bits))
	case 8:
		order.PutUint64(b, bits)
	default:
		return fmt.Errorf("%w: %d-byte %s", ErrUnsupported, len(b), dt.Class)
	}
	return nil
}
