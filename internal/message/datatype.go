package message

import "fmt"

// DatatypeClass is the class nibble of a datatype message.
type DatatypeClass uint8

const (
	ClassFixedPoint DatatypeClass = 0
	ClassFloatPoint DatatypeClass = 1
	ClassTime       DatatypeClass = 2
	ClassString     DatatypeClass = 3
	ClassBitfield   DatatypeClass = 4
	ClassOpaque     DatatypeClass = 5
	ClassCompound   DatatypeClass = 6
	ClassReference  DatatypeClass = 7
	ClassEnum       DatatypeClass = 8
	ClassVarLen     DatatypeClass = 9
	ClassArray      DatatypeClass = 10
)

var classNames = [...]string{"integer", "float", "time", "string", "bitfield", "opaque",
	"compound", "reference", "enum", "vlen", "array"}

func (c DatatypeClass) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("class %d", uint8(c))
}

// ByteOrder of a numeric type.
type ByteOrder uint8

const (
	OrderLE ByteOrder = 0
	OrderBE ByteOrder = 1
)

// StringPadding says how short fixed-length strings are filled.
type StringPadding uint8

const (
	PadNullTerm StringPadding = 0
	PadNullPad  StringPadding = 1
	PadSpacePad StringPadding = 2
)

// CharacterSet of a string type.
type CharacterSet uint8

const (
	CharsetASCII CharacterSet = 0
	CharsetUTF8  CharacterSet = 1
)

// Datatype describes the element type of a dataset or attribute.
type Datatype struct {
	Class     DatatypeClass
	Version   uint8
	ClassBits uint32
	Size      uint32

	// integer, float and bitfield
	ByteOrder    ByteOrder
	Signed       bool
	BitOffset    uint16
	BitPrecision uint16

	// float
	ExpLocation  uint8
	ExpSize      uint8
	MantLocation uint8
	MantSize     uint8
	ExpBias      uint32

	// string and variable-length string
	StringPadding StringPadding
	CharSet       CharacterSet

	Members []CompoundMember
	Enum    []EnumMember

	// Base is the element type of an array, enum or variable-length type.
	Base      *Datatype
	ArrayDims []uint32

	IsVarLenString bool
	Tag            string
}

// CompoundMember is one field of a compound type.
type CompoundMember struct {
	Name       string
	ByteOffset uint32
	Type       *Datatype
}

// EnumMember names one value of an enumeration. Value is encoded in the
// base type.
type EnumMember struct {
	Name  string
	Value []byte
}

func (m *Datatype) Type() Type { return TypeDatatype }

// IsString reports whether values are fixed- or variable-length strings.
func (m *Datatype) IsString() bool {
	return m.Class == ClassString || (m.Class == ClassVarLen && m.IsVarLenString)
}

func (m *Datatype) String() string {
	switch m.Class {
	case ClassFixedPoint:
		if m.Signed {
			return fmt.Sprintf("int%d", m.Size*8)
		}
		return fmt.Sprintf("uint%d", m.Size*8)
	case ClassFloatPoint:
		return fmt.Sprintf("float%d", m.Size*8)
	case ClassString:
		return fmt.Sprintf("string[%d]", m.Size)
	case ClassVarLen:
		if m.IsVarLenString {
			return "vlen string"
		}
		if m.Base != nil {
			return "vlen " + m.Base.String()
		}
	case ClassArray, ClassEnum:
		if m.Base != nil {
			return fmt.Sprintf("%s%v %s", m.Class, m.ArrayDims, m.Base)
		}
	}
	return m.Class.String()
}

func decodeDatatype(d *decoder) (*Datatype, error) {
	dt := decodeType(d)
	return dt, d.err
}

// decodeType reads one datatype, recursing into member and base types.
func decodeType(d *decoder) *Datatype {
	head := d.u8()
	dt := &Datatype{
		Class:     DatatypeClass(head & 0x0F),
		Version:   head >> 4,
		ClassBits: uint32(d.uint(3)),
		Size:      d.u32(),
	}
	if d.err != nil {
		return dt
	}
	bits := dt.ClassBits
	switch dt.Class {
	case ClassFixedPoint, ClassBitfield:
		dt.ByteOrder = ByteOrder(bits & 0x01)
		dt.Signed = bits&0x08 != 0
		dt.BitOffset = d.u16()
		dt.BitPrecision = d.u16()

	case ClassFloatPoint:
		dt.ByteOrder = ByteOrder(bits & 0x01)
		if bits&0x40 != 0 {
			d.failf("VAX float order: %w", ErrUnsupported)
		}
		dt.BitOffset = d.u16()
		dt.BitPrecision = d.u16()
		dt.ExpLocation = d.u8()
		dt.ExpSize = d.u8()
		dt.MantLocation = d.u8()
		dt.MantSize = d.u8()
		dt.ExpBias = d.u32()

	case ClassTime:
		dt.ByteOrder = ByteOrder(bits & 0x01)
		dt.BitPrecision = d.u16()

	case ClassString:
		dt.StringPadding = StringPadding(bits & 0x0F)
		dt.CharSet = CharacterSet((bits >> 4) & 0x0F)

	case ClassOpaque:
		dt.Tag = d.fixedString(int(bits & 0xFF))

	case ClassCompound:
		n := int(bits & 0xFFFF)
		dt.Members = make([]CompoundMember, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			dt.Members = append(dt.Members, decodeMember(d, dt))
		}

	case ClassReference:

	case ClassEnum:
		n := int(bits & 0xFFFF)
		dt.Base = decodeType(d)
		dt.Enum = make([]EnumMember, n)
		for i := range dt.Enum {
			if dt.Version < 3 {
				dt.Enum[i].Name = d.paddedName()
			} else {
				dt.Enum[i].Name = d.cstring()
			}
		}
		for i := range dt.Enum {
			if dt.Base != nil {
				dt.Enum[i].Value = d.take(int(dt.Base.Size))
			}
		}

	case ClassVarLen:
		dt.IsVarLenString = bits&0x0F == 1
		dt.StringPadding = StringPadding((bits >> 4) & 0x0F)
		dt.CharSet = CharacterSet((bits >> 8) & 0x0F)
		dt.Base = decodeType(d)

	case ClassArray:
		rank := int(d.u8())
		if dt.Version < 3 {
			d.skip(3)
		}
		dt.ArrayDims = make([]uint32, rank)
		for i := range dt.ArrayDims {
			dt.ArrayDims[i] = d.u32()
		}
		if dt.Version < 3 {
			d.skip(4 * rank)
		}
		dt.Base = decodeType(d)

	default:
		d.failf("datatype class %d: %w", dt.Class, ErrUnsupported)
	}
	return dt
}

// decodeMember reads one compound member. Version 1 members may carry
// their own array dimensions, which become an array type here.
func decodeMember(d *decoder, parent *Datatype) CompoundMember {
	var m CompoundMember
	if parent.Version < 3 {
		m.Name = d.paddedName()
	} else {
		m.Name = d.cstring()
	}
	switch parent.Version {
	case 1:
		m.ByteOffset = d.u32()
		rank := int(d.u8())
		d.skip(3 + 4 + 4)
		dims := make([]uint32, 4)
		for i := range dims {
			dims[i] = d.u32()
		}
		m.Type = decodeType(d)
		if rank > 0 && m.Type != nil {
			total := uint32(1)
			for _, n := range dims[:rank] {
				total *= n
			}
			m.Type = &Datatype{Class: ClassArray, Version: 3, Size: total * m.Type.Size,
				ArrayDims: dims[:rank], Base: m.Type}
		}
	case 2:
		m.ByteOffset = d.u32()
		m.Type = decodeType(d)
	default:
		m.ByteOffset = uint32(d.uint(widthFor(uint64(parent.Size))))
		m.Type = decodeType(d)
	}
	return m
}

func (m *Datatype) encode(e *encoder) {
	version := uint8(1)
	if m.Class == ClassArray || m.Class == ClassCompound || m.Class == ClassEnum {
		version = 3
	}
	e.u8(version<<4 | uint8(m.Class))
	e.uint(uint64(m.classBits()), 3)
	e.u32(m.Size)
	switch m.Class {
	case ClassFixedPoint, ClassBitfield:
		e.u16(m.BitOffset)
		e.u16(m.BitPrecision)
	case ClassFloatPoint:
		e.u16(m.BitOffset)
		e.u16(m.BitPrecision)
		e.u8(m.ExpLocation)
		e.u8(m.ExpSize)
		e.u8(m.MantLocation)
		e.u8(m.MantSize)
		e.u32(m.ExpBias)
	case ClassOpaque:
		tag := make([]byte, (len(m.Tag)+8)&^7)
		copy(tag, m.Tag)
		e.bytes(tag)
	case ClassCompound:
		for _, mem := range m.Members {
			e.bytes([]byte(mem.Name))
			e.u8(0)
			e.uint(uint64(mem.ByteOffset), widthFor(uint64(m.Size)))
			mem.Type.encode(e)
		}
	case ClassEnum:
		m.Base.encode(e)
		for _, mem := range m.Enum {
			e.bytes([]byte(mem.Name))
			e.u8(0)
		}
		for _, mem := range m.Enum {
			e.bytes(mem.Value)
		}
	case ClassVarLen:
		m.Base.encode(e)
	case ClassArray:
		e.u8(uint8(len(m.ArrayDims)))
		for _, n := range m.ArrayDims {
			e.u32(n)
		}
		m.Base.encode(e)
	}
}

// classBits rebuilds the class bit field from the decoded properties.
func (m *Datatype) classBits() uint32 {
	switch m.Class {
	case ClassFixedPoint, ClassBitfield:
		b := uint32(m.ByteOrder)
		if m.Signed {
			b |= 0x08
		}
		return b
	case ClassFloatPoint:
		// implied leading mantissa bit, sign in the top bit
		return uint32(m.ByteOrder) | 0x20 | uint32(m.BitPrecision-1)<<8
	case ClassString:
		return uint32(m.StringPadding) | uint32(m.CharSet)<<4
	case ClassOpaque:
		return uint32((len(m.Tag) + 8) &^ 7)
	case ClassCompound:
		return uint32(len(m.Members))
	case ClassEnum:
		return uint32(len(m.Enum))
	case ClassVarLen:
		b := uint32(m.StringPadding)<<4 | uint32(m.CharSet)<<8
		if m.IsVarLenString {
			b |= 1
		}
		return b
	}
	return m.ClassBits
}

// NewFixedPointDatatype returns an integer type of size bytes.
func NewFixedPointDatatype(size uint32, signed bool, order ByteOrder) *Datatype {
	return &Datatype{Class: ClassFixedPoint, Size: size, Signed: signed, ByteOrder: order,
		BitPrecision: uint16(size * 8)}
}

// NewFloatDatatype returns an IEEE 754 binary32 or binary64 type.
func NewFloatDatatype(size uint32, order ByteOrder) *Datatype {
	dt := &Datatype{Class: ClassFloatPoint, Size: size, ByteOrder: order, BitPrecision: uint16(size * 8)}
	if size == 4 {
		dt.ExpLocation, dt.ExpSize, dt.MantSize, dt.ExpBias = 23, 8, 23, 127
	} else {
		dt.ExpLocation, dt.ExpSize, dt.MantSize, dt.ExpBias = 52, 11, 52, 1023
	}
	return dt
}

// NewStringDatatype returns a fixed-length string type.
func NewStringDatatype(size uint32, padding StringPadding, charset CharacterSet) *Datatype {
	return &Datatype{Class: ClassString, Size: size, StringPadding: padding, CharSet: charset}
}

// NewVarLenStringDatatype returns the variable-length string type h5py
// writes for str values.
func NewVarLenStringDatatype(charset CharacterSet, offsetSize int) *Datatype {
	return &Datatype{
		Class:          ClassVarLen,
		Size:           uint32(4 + offsetSize + 4),
		IsVarLenString: true,
		CharSet:        charset,
		Base:           &Datatype{Class: ClassFixedPoint, Size: 1, BitPrecision: 8},
	}
}

// NewBoolDatatype returns the FALSE/TRUE enumeration over int8 that h5py
// uses for numpy booleans.
func NewBoolDatatype() *Datatype {
	return &Datatype{
		Class: ClassEnum,
		Size:  1,
		Base:  NewFixedPointDatatype(1, true, OrderLE),
		Enum:  []EnumMember{{Name: "FALSE", Value: []byte{0}}, {Name: "TRUE", Value: []byte{1}}},
	}
}
