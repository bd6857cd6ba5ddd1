package message

// Filter identifiers registered with the format.
const (
	FilterDeflate     uint16 = 1
	FilterShuffle     uint16 = 2
	FilterFletcher32  uint16 = 3
	FilterSZIP        uint16 = 4
	FilterNBit        uint16 = 5
	FilterScaleOffset uint16 = 6
)

// FilterInfo is one stage of a filter pipeline.
type FilterInfo struct {
	ID         uint16
	Flags      uint16
	Name       string
	ClientData []uint32
}

// IsOptional reports whether the stage may be skipped when it fails on
// write; readers honour the chunk filter mask instead.
func (f *FilterInfo) IsOptional() bool { return f.Flags&0x01 != 0 }

// FilterPipeline lists the filters applied to every chunk, in write order.
type FilterPipeline struct {
	Version uint8
	Filters []FilterInfo
}

func (m *FilterPipeline) Type() Type { return TypeFilterPipeline }

func decodeFilterPipeline(d *decoder) (*FilterPipeline, error) {
	fp := &FilterPipeline{Version: d.u8()}
	n := int(d.u8())
	switch fp.Version {
	case 1:
		d.skip(6)
	case 2:
	default:
		d.failf("filter pipeline version %d: %w", fp.Version, ErrUnsupported)
		return fp, d.err
	}
	fp.Filters = make([]FilterInfo, n)
	for i := range fp.Filters {
		f := &fp.Filters[i]
		f.ID = d.u16()
		var nameLen int
		if fp.Version == 1 || f.ID >= 256 {
			nameLen = int(d.u16())
		}
		f.Flags = d.u16()
		values := int(d.u16())
		if nameLen > 0 {
			if fp.Version == 1 {
				nameLen = (nameLen + 7) &^ 7
			}
			f.Name = d.fixedString(nameLen)
		}
		f.ClientData = make([]uint32, values)
		for j := range f.ClientData {
			f.ClientData[j] = d.u32()
		}
		if fp.Version == 1 && values%2 == 1 {
			d.skip(4)
		}
	}
	return fp, d.err
}

func (m *FilterPipeline) encode(e *encoder) {
	e.u8(2)
	e.u8(uint8(len(m.Filters)))
	for _, f := range m.Filters {
		e.u16(f.ID)
		if f.ID >= 256 {
			e.u16(uint16(len(f.Name) + 1))
		}
		e.u16(f.Flags)
		e.u16(uint16(len(f.ClientData)))
		if f.ID >= 256 {
			e.bytes([]byte(f.Name))
			e.u8(0)
		}
		for _, v := range f.ClientData {
			e.u32(v)
		}
	}
}
