package message

// Attribute is a small named value stored in an object header.
type Attribute struct {
	Version   uint8
	Name      string
	Datatype  *Datatype
	Dataspace *Dataspace
	Data      []byte
}

func (m *Attribute) Type() Type { return TypeAttribute }

// decodeAttribute reads versions 1 to 3. Version 1 pads the name, datatype
// and dataspace fields to eight bytes; version 3 adds a charset byte.
func decodeAttribute(d *decoder) (*Attribute, error) {
	a := &Attribute{Version: d.u8()}
	if a.Version < 1 || a.Version > 3 {
		d.failf("attribute version %d: %w", a.Version, ErrUnsupported)
		return a, d.err
	}
	flags := d.u8()
	if flags&0x03 != 0 {
		d.failf("shared attribute type: %w", ErrUnsupported)
		return a, d.err
	}
	nameLen := int(d.u16())
	typeLen := int(d.u16())
	spaceLen := int(d.u16())
	if a.Version == 3 {
		d.u8()
	}
	field := func(n int) *decoder {
		if a.Version == 1 {
			n = (n + 7) &^ 7
		}
		return d.sub(n)
	}
	a.Name = field(nameLen).fixedString(nameLen)

	td := field(typeLen)
	a.Datatype = decodeType(td)
	sd := field(spaceLen)
	ds, err := decodeDataspace(sd)
	if d.err == nil {
		if td.err != nil {
			d.err = td.err
		} else if err != nil {
			d.err = err
		}
	}
	a.Dataspace = ds
	if d.err != nil {
		return a, d.err
	}
	a.Data = append([]byte(nil), d.buf[d.pos:]...)
	return a, nil
}

func (m *Attribute) encode(e *encoder) {
	sub := func(x interface{ encode(*encoder) }) []byte {
		se := &encoder{osz: e.osz, lsz: e.lsz}
		x.encode(se)
		return se.buf
	}
	dt := sub(m.Datatype)
	ds := sub(m.Dataspace)
	e.u8(3)
	e.u8(0)
	e.u16(uint16(len(m.Name) + 1))
	e.u16(uint16(len(dt)))
	e.u16(uint16(len(ds)))
	e.u8(uint8(CharsetUTF8))
	e.bytes([]byte(m.Name))
	e.u8(0)
	e.bytes(dt)
	e.bytes(ds)
	e.bytes(m.Data)
}

// NewAttribute returns an attribute whose value is already encoded.
func NewAttribute(name string, dt *Datatype, ds *Dataspace, data []byte) *Attribute {
	return &Attribute{Version: 3, Name: name, Datatype: dt, Dataspace: ds, Data: data}
}
