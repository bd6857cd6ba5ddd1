package dtype

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	binpkg "github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/heap"
	"github.com/robert-malhotra/virelay/internal/message"
)

// Number is the set of Go element types a numeric read can fill.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint |
		~float32 | ~float64
}

// Convert decodes n elements of dt from raw into dest, which must be a
// pointer to a slice of a numeric type, string, bool or any, or a pointer
// to any. r resolves variable-length data and may be nil when dt has none.
func Convert(dt *message.Datatype, raw []byte, n uint64, dest any, r *binpkg.Reader) error {
	if need := DataSize(dt, n); uint64(len(raw)) < need {
		return fmt.Errorf("have %d bytes for %d elements of %s, need %d", len(raw), n, dt, need)
	}
	c := &converter{r: r}
	switch d := dest.(type) {
	case *[]float64:
		return fill(c, dt, raw, n, d)
	case *[]float32:
		return fill(c, dt, raw, n, d)
	case *[]int64:
		return fill(c, dt, raw, n, d)
	case *[]int32:
		return fill(c, dt, raw, n, d)
	case *[]int16:
		return fill(c, dt, raw, n, d)
	case *[]int8:
		return fill(c, dt, raw, n, d)
	case *[]int:
		return fill(c, dt, raw, n, d)
	case *[]uint64:
		return fill(c, dt, raw, n, d)
	case *[]uint32:
		return fill(c, dt, raw, n, d)
	case *[]uint16:
		return fill(c, dt, raw, n, d)
	case *[]uint8:
		return fill(c, dt, raw, n, d)
	case *[]uint:
		return fill(c, dt, raw, n, d)
	case *[]string:
		out := make([]string, n)
		for i := range out {
			s, err := c.str(dt, element(dt, raw, i))
			if err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = s
		}
		*d = out
		return nil
	case *[]bool:
		read, err := scalarReader(dt)
		if err != nil {
			return err
		}
		out := make([]bool, n)
		for i := range out {
			out[i] = read(element(dt, raw, i)).nonzero()
		}
		*d = out
		return nil
	case *[]any:
		out := make([]any, n)
		for i := range out {
			v, err := c.value(dt, element(dt, raw, i))
			if err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v
		}
		*d = out
		return nil
	case *any:
		if n == 0 {
			*d = nil
			return nil
		}
		v, err := c.value(dt, element(dt, raw, 0))
		if err != nil {
			return err
		}
		*d = v
		return nil
	}
	return fmt.Errorf("%w: %s into %T", ErrUnsupported, dt, dest)
}

func element(dt *message.Datatype, raw []byte, i int) []byte {
	size := int(dt.Size)
	return raw[i*size : (i+1)*size]
}

func fill[T Number](c *converter, dt *message.Datatype, raw []byte, n uint64, dest *[]T) error {
	read, err := scalarReader(dt)
	if err != nil {
		return err
	}
	out := make([]T, n)
	for i := range out {
		s := read(element(dt, raw, i))
		switch s.kind {
		case kindInt:
			out[i] = T(s.i)
		case kindUint:
			out[i] = T(s.u)
		default:
			out[i] = T(s.f)
		}
	}
	*dest = out
	return nil
}

type scalarKind uint8

const (
	kindInt scalarKind = iota
	kindUint
	kindFloat
)

type scalar struct {
	kind scalarKind
	i    int64
	u    uint64
	f    float64
}

func (s scalar) nonzero() bool {
	return s.i != 0 || s.u != 0 || s.f != 0
}

// scalarReader returns a decoder for one element of a numeric type.
// Enumerations decode as their base integer.
func scalarReader(dt *message.Datatype) (func([]byte) scalar, error) {
	order := byteOrder(dt)
	switch dt.Class {
	case message.ClassEnum:
		return scalarReader(dt.Base)
	case message.ClassFixedPoint, message.ClassBitfield:
		signed := dt.Class == message.ClassFixedPoint && dt.Signed
		switch dt.Size {
		case 1:
			if signed {
				return func(b []byte) scalar { return scalar{kind: kindInt, i: int64(int8(b[0]))} }, nil
			}
			return func(b []byte) scalar { return scalar{kind: kindUint, u: uint64(b[0])} }, nil
		case 2:
			if signed {
				return func(b []byte) scalar { return scalar{kind: kindInt, i: int64(int16(order.Uint16(b)))} }, nil
			}
			return func(b []byte) scalar { return scalar{kind: kindUint, u: uint64(order.Uint16(b))} }, nil
		case 4:
			if signed {
				return func(b []byte) scalar { return scalar{kind: kindInt, i: int64(int32(order.Uint32(b)))} }, nil
			}
			return func(b []byte) scalar { return scalar{kind: kindUint, u: uint64(order.Uint32(b))} }, nil
		case 8:
			if signed {
				return func(b []byte) scalar { return scalar{kind: kindInt, i: int64(order.Uint64(b))} }, nil
			}
			return func(b []byte) scalar { return scalar{kind: kindUint, u: order.Uint64(b)} }, nil
		}
	case message.ClassFloatPoint:
		switch dt.Size {
		case 4:
			return func(b []byte) scalar {
				return scalar{kind: kindFloat, f: float64(math.Float32frombits(order.Uint32(b)))}
			}, nil
		case 8:
			return func(b []byte) scalar {
				return scalar{kind: kindFloat, f: math.Float64frombits(order.Uint64(b))}
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is not numeric", ErrUnsupported, dt)
}

// converter caches global heap collections across the elements of one read.
type converter struct {
	r    *binpkg.Reader
	heap map[uint64]*heap.GlobalHeap
}

// vlen returns the bytes and element count of a variable-length element:
// count(4) collection(O) index(4).
func (c *converter) vlen(b []byte) ([]byte, int, error) {
	if c.r == nil {
		return nil, 0, fmt.Errorf("%w: variable-length data without a file", ErrUnsupported)
	}
	count := int(binary.LittleEndian.Uint32(b))
	if count == 0 {
		return nil, 0, nil
	}
	id, err := heap.ParseGlobalHeapID(b[4:], c.r.OffsetSize())
	if err != nil {
		return nil, 0, err
	}
	gh, ok := c.heap[id.CollectionAddress]
	if !ok {
		gh, err = heap.ReadGlobalHeap(c.r, id.CollectionAddress)
		if err != nil {
			return nil, 0, err
		}
		if c.heap == nil {
			c.heap = make(map[uint64]*heap.GlobalHeap)
		}
		c.heap[id.CollectionAddress] = gh
	}
	data, err := gh.GetObject(uint16(id.ObjectIndex))
	return data, count, err
}

func (c *converter) str(dt *message.Datatype, b []byte) (string, error) {
	switch {
	case dt.Class == message.ClassString:
		return trimString(b, dt.StringPadding), nil
	case dt.Class == message.ClassVarLen && dt.IsVarLenString:
		data, n, err := c.vlen(b)
		if err != nil {
			return "", err
		}
		return trimString(data[:min(n, len(data))], dt.StringPadding), nil
	}
	return "", fmt.Errorf("%w: %s is not a string", ErrUnsupported, dt)
}

func trimString(b []byte, pad message.StringPadding) string {
	switch pad {
	case message.PadSpacePad:
		return strings.TrimRight(string(b), " ")
	case message.PadNullPad:
		return strings.TrimRight(string(b), "\x00")
	}
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// value decodes one element into its natural Go value.
func (c *converter) value(dt *message.Datatype, b []byte) (any, error) {
	switch dt.Class {
	case message.ClassFixedPoint, message.ClassBitfield, message.ClassFloatPoint, message.ClassEnum:
		read, err := scalarReader(dt)
		if err != nil {
			return nil, err
		}
		s := read(b)
		if isBool(dt) {
			return s.nonzero(), nil
		}
		return typed(dt, s), nil

	case message.ClassString:
		return c.str(dt, b)

	case message.ClassCompound:
		out := make(map[string]any, len(dt.Members))
		for _, m := range dt.Members {
			end := int(m.ByteOffset + m.Type.Size)
			if end > len(b) {
				return nil, fmt.Errorf("member %q overruns a %d-byte compound", m.Name, len(b))
			}
			v, err := c.value(m.Type, b[m.ByteOffset:end])
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", m.Name, err)
			}
			out[m.Name] = v
		}
		return out, nil

	case message.ClassArray:
		n := 1
		for _, d := range dt.ArrayDims {
			n *= int(d)
		}
		return c.values(dt.Base, b, n)

	case message.ClassVarLen:
		if dt.IsVarLenString {
			return c.str(dt, b)
		}
		data, n, err := c.vlen(b)
		if err != nil {
			return nil, err
		}
		if uint64(len(data)) < DataSize(dt.Base, uint64(n)) {
			return nil, fmt.Errorf("variable-length sequence of %d holds %d bytes", n, len(data))
		}
		return c.values(dt.Base, data, n)

	case message.ClassOpaque, message.ClassReference:
		return append([]byte(nil), b...), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, dt)
}

func (c *converter) values(dt *message.Datatype, raw []byte, n int) ([]any, error) {
	out := make([]any, n)
	for i := range out {
		v, err := c.value(dt, element(dt, raw, i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// typed narrows a decoded scalar to the Go type GoType reports for dt.
func typed(dt *message.Datatype, s scalar) any {
	if dt.Class == message.ClassEnum {
		return typed(dt.Base, s)
	}
	switch s.kind {
	case kindFloat:
		if dt.Size == 4 {
			return float32(s.f)
		}
		return s.f
	case kindInt:
		switch dt.Size {
		case 1:
			return int8(s.i)
		case 2:
			return int16(s.i)
		case 4:
			return int32(s.i)
		}
		return s.i
	}
	switch dt.Size {
	case 1:
		return uint8(s.u)
	case 2:
		return uint16(s.u)
	case 4:
		return uint32(s.u)
	}
	return s.u
}
