// Package message decodes and encodes the header messages carried by HDF5
// object headers: dataspace, datatype, storage layout, filters, attributes
// and links.
package message

import (
	"fmt"

	"github.com/robert-malhotra/virelay/internal/binary"
)

// Type is the header message type number.
type Type uint16

const (
	TypeNIL                      Type = 0x0000
	TypeDataspace                Type = 0x0001
	TypeLinkInfo                 Type = 0x0002
	TypeDatatype                 Type = 0x0003
	TypeFillValueOld             Type = 0x0004
	TypeFillValue                Type = 0x0005
	TypeLink                     Type = 0x0006
	TypeExternalDataFiles        Type = 0x0007
	TypeDataLayout               Type = 0x0008
	TypeGroupInfo                Type = 0x000A
	TypeFilterPipeline           Type = 0x000B
	TypeAttribute                Type = 0x000C
	TypeObjectComment            Type = 0x000D
	TypeObjectModTime            Type = 0x000E
	TypeObjectHeaderContinuation Type = 0x0010
	TypeSymbolTable              Type = 0x0011
	TypeAttributeInfo            Type = 0x0015
)

// Flag bits of a message entry in an object header.
const (
	FlagConstant uint8 = 0x01
	FlagShared   uint8 = 0x02
)

// Message is one decoded header message.
type Message interface {
	Type() Type
}

// Parse decodes the body of a message of type typ. Types the package does
// not interpret come back as *Unknown.
func Parse(typ Type, data []byte, flags uint8, r *binary.Reader) (Message, error) {
	if flags&FlagShared != 0 {
		switch typ {
		case TypeDatatype, TypeDataspace, TypeFilterPipeline, TypeFillValue, TypeAttribute:
			return nil, fmt.Errorf("shared %s message: %w", typ, ErrUnsupported)
		}
	}
	d := newDecoder(data, r)
	var (
		m   Message
		err error
	)
	switch typ {
	case TypeDataspace:
		m, err = decodeDataspace(d)
	case TypeDatatype:
		m, err = decodeDatatype(d)
	case TypeDataLayout:
		m, err = decodeDataLayout(d)
	case TypeFilterPipeline:
		m, err = decodeFilterPipeline(d)
	case TypeAttribute:
		m, err = decodeAttribute(d)
	case TypeLink:
		m, err = decodeLink(d)
	case TypeLinkInfo:
		m, err = decodeLinkInfo(d)
	case TypeSymbolTable:
		m, err = decodeSymbolTable(d)
	case TypeObjectHeaderContinuation:
		m, err = decodeContinuation(d)
	default:
		return &Unknown{typ: typ, data: data}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s message: %w", typ, err)
	}
	return m, nil
}

func (t Type) String() string {
	switch t {
	case TypeDataspace:
		return "dataspace"
	case TypeDatatype:
		return "datatype"
	case TypeDataLayout:
		return "layout"
	case TypeFilterPipeline:
		return "filter pipeline"
	case TypeAttribute:
		return "attribute"
	case TypeLink:
		return "link"
	case TypeLinkInfo:
		return "link info"
	case TypeGroupInfo:
		return "group info"
	case TypeSymbolTable:
		return "symbol table"
	case TypeObjectHeaderContinuation:
		return "continuation"
	}
	return fmt.Sprintf("type 0x%04x", uint16(t))
}

// Unknown is a message kept undecoded.
type Unknown struct {
	typ  Type
	data []byte
}

func (m *Unknown) Type() Type   { return m.typ }
func (m *Unknown) Data() []byte { return m.data }

// Continuation points at the next block of header messages.
type Continuation struct {
	Offset uint64
	Length uint64
}

func (m *Continuation) Type() Type { return TypeObjectHeaderContinuation }

func decodeContinuation(d *decoder) (*Continuation, error) {
	c := &Continuation{Offset: d.offset(), Length: d.length()}
	return c, d.err
}

// SymbolTable locates the B-tree and local heap of an old-style group.
type SymbolTable struct {
	BTreeAddress     uint64
	LocalHeapAddress uint64
}

func (m *SymbolTable) Type() Type { return TypeSymbolTable }

func decodeSymbolTable(d *decoder) (*SymbolTable, error) {
	s := &SymbolTable{BTreeAddress: d.offset(), LocalHeapAddress: d.offset()}
	return s, d.err
}

// Encoder is implemented by the messages this package can write.
type Encoder interface {
	Message
	encode(e *encoder)
}

// Encode returns the body of m laid out with the field widths of w.
func Encode(m Encoder, w *binary.Writer) []byte {
	e := &encoder{osz: w.OffsetSize(), lsz: w.LengthSize()}
	m.encode(e)
	return e.buf
}
