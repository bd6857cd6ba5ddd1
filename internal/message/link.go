package message

import "fmt"

// LinkType is the kind of target a link names.
type LinkType uint8

const (
	LinkTypeHard     LinkType = 0
	LinkTypeSoft     LinkType = 1
	LinkTypeExternal LinkType = 64
)

// Link is one member of a new-style group.
type Link struct {
	Version       uint8
	LinkType      LinkType
	CreationOrder uint64
	Name          string
	Charset       uint8

	ObjectAddress uint64
	SoftLinkValue string
	ExternalFile  string
	ExternalPath  string
}

func (m *Link) Type() Type { return TypeLink }

func (m *Link) IsHard() bool     { return m.LinkType == LinkTypeHard }
func (m *Link) IsSoft() bool     { return m.LinkType == LinkTypeSoft }
func (m *Link) IsExternal() bool { return m.LinkType == LinkTypeExternal }

func decodeLink(d *decoder) (*Link, error) {
	l := &Link{Version: d.u8()}
	if l.Version != 1 {
		d.failf("link version %d: %w", l.Version, ErrUnsupported)
		return l, d.err
	}
	flags := d.u8()
	if flags&0x08 != 0 {
		l.LinkType = LinkType(d.u8())
	}
	if flags&0x04 != 0 {
		l.CreationOrder = d.u64()
	}
	if flags&0x10 != 0 {
		l.Charset = d.u8()
	}
	nameLen := d.uint(1 << (flags & 0x03))
	l.Name = string(d.take(int(nameLen)))
	switch l.LinkType {
	case LinkTypeHard:
		l.ObjectAddress = d.offset()
	case LinkTypeSoft:
		l.SoftLinkValue = string(d.take(int(d.u16())))
	case LinkTypeExternal:
		ext := d.sub(int(d.u16()))
		ext.u8()
		l.ExternalFile = ext.cstring()
		l.ExternalPath = ext.cstring()
		if d.err == nil && ext.err != nil {
			d.err = fmt.Errorf("external link: %w", ext.err)
		}
	default:
		d.failf("link type %d: %w", l.LinkType, ErrUnsupported)
	}
	return l, d.err
}

func (m *Link) encode(e *encoder) {
	width := widthFor(uint64(len(m.Name)))
	flags := uint8(0)
	switch width {
	case 2:
		flags = 1
	case 4:
		flags = 2
	case 8:
		flags = 3
	}
	if m.LinkType != LinkTypeHard {
		flags |= 0x08
	}
	e.u8(1)
	e.u8(flags)
	if m.LinkType != LinkTypeHard {
		e.u8(uint8(m.LinkType))
	}
	e.uint(uint64(len(m.Name)), width)
	e.bytes([]byte(m.Name))
	switch m.LinkType {
	case LinkTypeHard:
		e.offset(m.ObjectAddress)
	case LinkTypeSoft:
		e.u16(uint16(len(m.SoftLinkValue)))
		e.bytes([]byte(m.SoftLinkValue))
	case LinkTypeExternal:
		e.u16(uint16(1 + len(m.ExternalFile) + 1 + len(m.ExternalPath) + 1))
		e.u8(0)
		e.bytes([]byte(m.ExternalFile))
		e.u8(0)
		e.bytes([]byte(m.ExternalPath))
		e.u8(0)
	}
}

// NewHardLink names the object whose header is at addr.
func NewHardLink(name string, addr uint64) *Link {
	return &Link{Version: 1, LinkType: LinkTypeHard, Name: name, ObjectAddress: addr}
}

// NewSoftLink names a path in the same file.
func NewSoftLink(name, target string) *Link {
	return &Link{Version: 1, LinkType: LinkTypeSoft, Name: name, SoftLinkValue: target}
}

// LinkInfo marks a new-style group. Dense groups keep their links in a
// fractal heap; groups written here keep them in the header.
type LinkInfo struct {
	Flags       uint8
	HeapAddress uint64
	Dense       bool
}

func (m *LinkInfo) Type() Type { return TypeLinkInfo }

func decodeLinkInfo(d *decoder) (*LinkInfo, error) {
	d.u8()
	m := &LinkInfo{Flags: d.u8()}
	if m.Flags&0x01 != 0 {
		d.u64()
	}
	m.HeapAddress = d.offset()
	m.Dense = !d.undefined(m.HeapAddress)
	return m, d.err
}

func (m *LinkInfo) encode(e *encoder) {
	e.u8(0)
	e.u8(0)
	e.undefined()
	e.undefined()
}

// GroupInfo carries group creation hints; the defaults are written.
type GroupInfo struct{}

func (m *GroupInfo) Type() Type { return TypeGroupInfo }

func (m *GroupInfo) encode(e *encoder) {
	e.u8(0)
	e.u8(0)
}
