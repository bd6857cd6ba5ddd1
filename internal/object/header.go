// Package object reads and writes HDF5 object headers, the message lists
// that describe every group and dataset.
package object

import (
	"errors"

	"github.com/robert-malhotra/virelay/internal/message"
)

var (
	ErrInvalidHeader      = errors.New("invalid object header")
	ErrUnsupportedVersion = errors.New("unsupported object header version")
	ErrChecksumMismatch   = errors.New("object header checksum mismatch")
)

// Header is a parsed object header. Messages from continuation blocks are
// appended in the order the blocks are reached.
type Header struct {
	Version  uint8
	Address  uint64
	Flags    uint8
	RefCount uint32
	Messages []message.Message

	ModTime uint32
}

// Find returns the first message of type typ, or nil.
func (h *Header) Find(typ message.Type) message.Message {
	for _, m := range h.Messages {
		if m.Type() == typ {
			return m
		}
	}
	return nil
}

// FindAll returns every message of type typ.
func (h *Header) FindAll(typ message.Type) []message.Message {
	var out []message.Message
	for _, m := range h.Messages {
		if m.Type() == typ {
			out = append(out, m)
		}
	}
	return out
}

func find[T message.Message](h *Header, typ message.Type) T {
	m, _ := h.Find(typ).(T)
	return m
}

func (h *Header) Dataspace() *message.Dataspace {
	return find[*message.Dataspace](h, message.TypeDataspace)
}

func (h *Header) Datatype() *message.Datatype {
	return find[*message.Datatype](h, message.TypeDatatype)
}

func (h *Header) DataLayout() *message.DataLayout {
	return find[*message.DataLayout](h, message.TypeDataLayout)
}

func (h *Header) FilterPipeline() *message.FilterPipeline {
	return find[*message.FilterPipeline](h, message.TypeFilterPipeline)
}

func (h *Header) SymbolTable() *message.SymbolTable {
	return find[*message.SymbolTable](h, message.TypeSymbolTable)
}

func (h *Header) LinkInfo() *message.LinkInfo {
	return find[*message.LinkInfo](h, message.TypeLinkInfo)
}

// Attributes returns the attribute messages in header order.
func (h *Header) Attributes() []*message.Attribute {
	var out []*message.Attribute
	for _, m := range h.FindAll(message.TypeAttribute) {
		out = append(out, m.(*message.Attribute))
	}
	return out
}

// Links returns the link messages in header order.
func (h *Header) Links() []*message.Link {
	var out []*message.Link
	for _, m := range h.FindAll(message.TypeLink) {
		out = append(out, m.(*message.Link))
	}
	return out
}

// IsDataset reports whether the header describes a dataset.
func (h *Header) IsDataset() bool {
	return h.Find(message.TypeDataLayout) != nil
}

// IsGroup reports whether the header describes an old- or new-style group.
func (h *Header) IsGroup() bool {
	return h.Find(message.TypeSymbolTable) != nil || h.Find(message.TypeLinkInfo) != nil ||
		h.Find(message.TypeLink) != nil
}
