package dtype

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"testing"

	binpkg "github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/message"
)

func TestGoType(t *testing.T) {
	tests := []struct {
		dt   *message.Datatype
		want reflect.Type
	}{
		{message.NewFixedPointDatatype(2, true, message.OrderBE), reflect.TypeFor[int16]()},
		{message.NewFixedPointDatatype(8, false, message.OrderLE), reflect.TypeFor[uint64]()},
		{message.NewFloatDatatype(4, message.OrderLE), reflect.TypeFor[float32]()},
		{message.NewStringDatatype(10, message.PadNullTerm, message.CharsetASCII), reflect.TypeFor[string]()},
		{message.NewVarLenStringDatatype(message.CharsetUTF8, 8), reflect.TypeFor[string]()},
		{message.NewBoolDatatype(), reflect.TypeFor[bool]()},
		{&message.Datatype{Class: message.ClassArray, ArrayDims: []uint32{2, 3},
			Base: message.NewFloatDatatype(8, message.OrderLE)}, reflect.TypeFor[[2][3]float64]()},
	}
	for _, tt := range tests {
		got, err := GoType(tt.dt)
		if err != nil {
			t.Fatalf("GoType(%s): %v", tt.dt, err)
		}
		if got != tt.want {
			t.Errorf("GoType(%s) = %v, want %v", tt.dt, got, tt.want)
		}
	}
	if _, err := GoType(message.NewFixedPointDatatype(3, true, message.OrderLE)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("3-byte integer: got %v", err)
	}
}

func TestGoTypeToDatatype(t *testing.T) {
	dt, err := GoTypeToDatatype(reflect.TypeFor[[]int32]())
	if err != nil {
		t.Fatal(err)
	}
	if dt.Class != message.ClassFixedPoint || dt.Size != 4 || !dt.Signed {
		t.Errorf("[]int32 -> %s", dt)
	}
	dt, err = GoTypeToDatatype(reflect.TypeFor[float64]())
	if err != nil || dt.Class != message.ClassFloatPoint || dt.Size != 8 {
		t.Errorf("float64 -> %v, %v", dt, err)
	}
	if _, err := GoTypeToDatatype(reflect.TypeFor[string]()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("string: got %v", err)
	}
	if got := StringDatatype("a", "abcd", "").Size; got != 5 {
		t.Errorf("StringDatatype size = %d, want 5", got)
	}
}

func TestConvertNumeric(t *testing.T) {
	raw := []byte{0xFF, 0xFE, 0x00, 0x07}
	dt := message.NewFixedPointDatatype(2, true, message.OrderBE)

	var asFloat []float64
	if err := Convert(dt, raw, 2, &asFloat, nil); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(asFloat, []float64{-2, 7}) {
		t.Errorf("got %v", asFloat)
	}

	var asInt []int64
	if err := Convert(dt, raw, 2, &asInt, nil); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(asInt, []int64{-2, 7}) {
		t.Errorf("got %v", asInt)
	}

	f32 := message.NewFloatDatatype(4, message.OrderLE)
	raw = binary.LittleEndian.AppendUint32(nil, math.Float32bits(1.5))
	raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(-0.25))
	var got []float32
	if err := Convert(f32, raw, 2, &got, nil); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []float32{1.5, -0.25}) {
		t.Errorf("got %v", got)
	}

	if err := Convert(f32, raw, 3, &got, nil); err == nil {
		t.Error("short buffer accepted")
	}
	var s []string
	if err := Convert(f32, raw, 2, &s, nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("float into strings: got %v", err)
	}
}

func TestConvertStrings(t *testing.T) {
	tests := []struct {
		pad  message.StringPadding
		raw  string
		want []string
	}{
		{message.PadNullTerm, "ab\x00x\x00cd\x00\x00", []string{"ab", "cd"}},
		{message.PadNullPad, "ab\x00\x00abcd", []string{"ab", "abcd"}},
		{message.PadSpacePad, "ab  c d ", []string{"ab", "c d"}},
	}
	for _, tt := range tests {
		dt := message.NewStringDatatype(4, tt.pad, message.CharsetASCII)
		var got []string
		if err := Convert(dt, []byte(tt.raw), 2, &got, nil); err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("padding %d: got %q, want %q", tt.pad, got, tt.want)
		}
	}
}

// globalHeap returns a file image holding one collection at offset 16 with
// object 1 set to payload.
func globalHeap(payload string) []byte {
	obj := binary.LittleEndian.AppendUint16(nil, 1)
	obj = append(obj, 0, 0, 0, 0, 0, 0)
	obj = binary.LittleEndian.AppendUint64(obj, uint64(len(payload)))
	obj = append(obj, payload...)
	for len(obj)%8 != 0 {
		obj = append(obj, 0)
	}
	size := 16 + len(obj) + 16

	buf := make([]byte, 16)
	buf = append(buf, "GCOL"...)
	buf = append(buf, 1, 0, 0, 0)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(size))
	buf = append(buf, obj...)
	return append(buf, make([]byte, 16)...)
}

func heapRef(count uint32) []byte {
	b := binary.LittleEndian.AppendUint32(nil, count)
	b = binary.LittleEndian.AppendUint64(b, 16)
	return binary.LittleEndian.AppendUint32(b, 1)
}

func TestConvertVarLen(t *testing.T) {
	r := binpkg.NewReader(bytes.NewReader(globalHeap("hello")), binpkg.DefaultConfig())
	dt := message.NewVarLenStringDatatype(message.CharsetUTF8, 8)

	raw := append(heapRef(5), heapRef(0)...)
	var got []string
	if err := Convert(dt, raw, 2, &got, r); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"hello", ""}) {
		t.Errorf("got %q", got)
	}

	if err := Convert(dt, raw, 2, &got, nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("no reader: got %v", err)
	}

	seq := &message.Datatype{Class: message.ClassVarLen, Size: 16,
		Base: message.NewFixedPointDatatype(1, false, message.OrderLE)}
	var v any
	if err := Convert(seq, heapRef(3), 1, &v, r); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(v, []any{uint8('h'), uint8('e'), uint8('l')}) {
		t.Errorf("sequence: got %v", v)
	}
}

func TestConvertValues(t *testing.T) {
	compound := &message.Datatype{
		Class: message.ClassCompound,
		Size:  12,
		Members: []message.CompoundMember{
			{Name: "id", ByteOffset: 0, Type: message.NewFixedPointDatatype(4, false, message.OrderLE)},
			{Name: "score", ByteOffset: 4, Type: message.NewFloatDatatype(8, message.OrderLE)},
		},
	}
	raw := binary.LittleEndian.AppendUint32(nil, 9)
	raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(0.5))
	var v any
	if err := Convert(compound, raw, 1, &v, nil); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"id": uint32(9), "score": 0.5}
	if !reflect.DeepEqual(v, want) {
		t.Errorf("compound: got %v", v)
	}

	array := &message.Datatype{Class: message.ClassArray, Size: 3, ArrayDims: []uint32{3},
		Base: message.NewFixedPointDatatype(1, true, message.OrderLE)}
	var vs []any
	if err := Convert(array, []byte{1, 0xFF, 3}, 1, &vs, nil); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(vs, []any{[]any{int8(1), int8(-1), int8(3)}}) {
		t.Errorf("array: got %v", vs)
	}

	var bools []bool
	if err := Convert(message.NewBoolDatatype(), []byte{0, 1, 1}, 3, &bools, nil); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(bools, []bool{false, true, true}) {
		t.Errorf("bools: got %v", bools)
	}
	if err := Convert(message.NewBoolDatatype(), []byte{1}, 1, &v, nil); err != nil || v != true {
		t.Errorf("bool value: got %v, %v", v, err)
	}
}

func TestEncode(t *testing.T) {
	f64 := message.NewFloatDatatype(8, message.OrderLE)
	raw, err := Encode(f64, []float64{1, -2.5})
	if err != nil {
		t.Fatal(err)
	}
	var back []float64
	if err := Convert(f64, raw, 2, &back, nil); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, []float64{1, -2.5}) {
		t.Errorf("got %v", back)
	}

	be := message.NewFixedPointDatatype(4, true, message.OrderBE)
	raw, err = Encode(be, int32(-2))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, []byte{0xFF, 0xFF, 0xFF, 0xFE}) {
		t.Errorf("scalar big-endian: got % x", raw)
	}

	str := StringDatatype("abc", "de")
	raw, err = Encode(str, []string{"abc", "de"})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "abc\x00de\x00\x00" {
		t.Errorf("strings: got %q", raw)
	}
	if _, err := Encode(message.NewStringDatatype(3, message.PadNullTerm, message.CharsetASCII), "abc"); err == nil {
		t.Error("string without room for its terminator accepted")
	}

	raw, err = Encode(message.NewBoolDatatype(), []bool{true, false})
	if err != nil || !bytes.Equal(raw, []byte{1, 0}) {
		t.Errorf("bools: got % x, %v", raw, err)
	}
	if _, err := Encode(f64, []string{"x"}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("string into float: got %v", err)
	}
}
