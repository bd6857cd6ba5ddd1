package message

// DataspaceType distinguishes scalar, simple and null dataspaces.
type DataspaceType uint8

const (
	DataspaceScalar DataspaceType = 0
	DataspaceSimple DataspaceType = 1
	DataspaceNull   DataspaceType = 2
)

// Unlimited is the maximum dimension of an extendible axis.
const Unlimited = ^uint64(0)

// Dataspace gives the shape of a dataset or attribute.
type Dataspace struct {
	Version    uint8
	SpaceType  DataspaceType
	Dimensions []uint64
	MaxDims    []uint64
}

func (m *Dataspace) Type() Type { return TypeDataspace }

// Rank returns the number of dimensions; zero for scalar and null spaces.
func (m *Dataspace) Rank() int { return len(m.Dimensions) }

// IsScalar reports whether the space holds exactly one element with no
// dimensions.
func (m *Dataspace) IsScalar() bool { return m.SpaceType == DataspaceScalar }

// NumElements returns the element count: 1 for scalars, 0 for null spaces.
func (m *Dataspace) NumElements() uint64 {
	switch m.SpaceType {
	case DataspaceScalar:
		return 1
	case DataspaceNull:
		return 0
	}
	n := uint64(1)
	for _, d := range m.Dimensions {
		n *= d
	}
	return n
}

func decodeDataspace(d *decoder) (*Dataspace, error) {
	ds := &Dataspace{Version: d.u8()}
	rank := int(d.u8())
	flags := d.u8()
	switch ds.Version {
	case 1:
		d.skip(5)
		ds.SpaceType = DataspaceSimple
		if rank == 0 {
			ds.SpaceType = DataspaceScalar
		}
	case 2:
		ds.SpaceType = DataspaceType(d.u8())
	default:
		d.failf("dataspace version %d: %w", ds.Version, ErrUnsupported)
	}
	if ds.SpaceType != DataspaceSimple {
		return ds, d.err
	}
	ds.Dimensions = make([]uint64, rank)
	for i := range ds.Dimensions {
		ds.Dimensions[i] = d.length()
	}
	if flags&0x01 != 0 {
		ds.MaxDims = make([]uint64, rank)
		for i := range ds.MaxDims {
			ds.MaxDims[i] = d.length()
		}
	}
	return ds, d.err
}

func (m *Dataspace) encode(e *encoder) {
	var flags uint8
	if len(m.MaxDims) == len(m.Dimensions) && len(m.MaxDims) > 0 {
		flags |= 0x01
	}
	e.u8(2)
	e.u8(uint8(len(m.Dimensions)))
	e.u8(flags)
	e.u8(uint8(m.SpaceType))
	for _, n := range m.Dimensions {
		e.length(n)
	}
	if flags&0x01 != 0 {
		for _, n := range m.MaxDims {
			e.length(n)
		}
	}
}

// NewDataspace returns a simple dataspace. maxDims may be nil.
func NewDataspace(dims, maxDims []uint64) *Dataspace {
	return &Dataspace{Version: 2, SpaceType: DataspaceSimple, Dimensions: dims, MaxDims: maxDims}
}

// NewScalarDataspace returns a dataspace holding a single element.
func NewScalarDataspace() *Dataspace {
	return &Dataspace{Version: 2, SpaceType: DataspaceScalar}
}
