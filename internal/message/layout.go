package message

// LayoutClass says where the raw data of a dataset lives.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0
	LayoutContiguous LayoutClass = 1
	LayoutChunked    LayoutClass = 2
	LayoutVirtual    LayoutClass = 3
)

// ChunkIndexType selects the structure that maps chunk coordinates to
// addresses. Version 4 layouts store it; older ones always use a
// version 1 B-tree.
type ChunkIndexType uint8

const (
	ChunkIndexBTreeV1         ChunkIndexType = 0
	ChunkIndexSingle          ChunkIndexType = 1
	ChunkIndexImplicit        ChunkIndexType = 2
	ChunkIndexFixedArray      ChunkIndexType = 3
	ChunkIndexExtensibleArray ChunkIndexType = 4
	ChunkIndexBTreeV2         ChunkIndexType = 5
)

// Layout v4 chunk flags.
const (
	ChunkDontFilterPartialEdge uint8 = 0x01
	ChunkSingleFiltered        uint8 = 0x02
)

// DataLayout is the storage layout message.
type DataLayout struct {
	Version uint8
	Class   LayoutClass

	// compact
	CompactData []byte

	// contiguous
	Address uint64
	Size    uint64

	// chunked; ChunkDims excludes the trailing element size
	ChunkDims      []uint32
	ElementSize    uint32
	ChunkFlags     uint8
	ChunkIndexType ChunkIndexType
	ChunkIndexAddr uint64

	// single chunk index with ChunkSingleFiltered
	FilteredSize uint64
	FilterMask   uint32

	// fixed and extensible array indexes
	PageBits uint8
	// extensible array creation parameters
	MaxBits, IndexElements, MinPointers, MinElements uint8
	// version 2 B-tree index
	NodeSize           uint32
	SplitPct, MergePct uint8
}

func (m *DataLayout) Type() Type { return TypeDataLayout }

func decodeDataLayout(d *decoder) (*DataLayout, error) {
	m := &DataLayout{Version: d.u8()}
	switch m.Version {
	case 1, 2:
		decodeLayoutV1(d, m)
	case 3, 4:
		m.Class = LayoutClass(d.u8())
		switch m.Class {
		case LayoutCompact:
			m.Size = uint64(d.u16())
			m.CompactData = d.take(int(m.Size))
		case LayoutContiguous:
			m.Address = d.offset()
			m.Size = d.length()
		case LayoutChunked:
			if m.Version == 3 {
				rank := int(d.u8())
				m.ChunkIndexAddr = d.offset()
				m.setChunkDims(readDims(d, rank, 4))
			} else {
				decodeChunkedV4(d, m)
			}
		default:
			d.failf("layout class %d: %w", m.Class, ErrUnsupported)
		}
	default:
		d.failf("layout version %d: %w", m.Version, ErrUnsupported)
	}
	return m, d.err
}

// decodeLayoutV1 reads versions 1 and 2, where every class stores its
// dimensions and compact data follows them. Contiguous sizes are left zero
// for the reader to derive from the dataspace.
func decodeLayoutV1(d *decoder, m *DataLayout) {
	rank := int(d.u8())
	m.Class = LayoutClass(d.u8())
	d.skip(5)
	if m.Class != LayoutCompact {
		m.Address = d.offset()
	}
	dims := readDims(d, rank, 4)
	switch m.Class {
	case LayoutCompact:
		m.Size = uint64(d.u32())
		m.CompactData = d.take(int(m.Size))
	case LayoutChunked:
		m.ChunkIndexAddr = m.Address
		m.Address = 0
		m.setChunkDims(dims)
	}
}

func decodeChunkedV4(d *decoder, m *DataLayout) {
	m.ChunkFlags = d.u8()
	rank := int(d.u8())
	width := int(d.u8())
	if width < 1 || width > 8 {
		d.failf("chunk dimension width %d: %w", width, ErrUnsupported)
		return
	}
	m.setChunkDims(readDims(d, rank, width))
	m.ChunkIndexType = ChunkIndexType(d.u8())
	switch m.ChunkIndexType {
	case ChunkIndexSingle:
		if m.ChunkFlags&ChunkSingleFiltered != 0 {
			m.FilteredSize = d.length()
			m.FilterMask = d.u32()
		}
	case ChunkIndexImplicit:
	case ChunkIndexFixedArray:
		m.PageBits = d.u8()
	case ChunkIndexExtensibleArray:
		m.MaxBits = d.u8()
		m.IndexElements = d.u8()
		m.MinPointers = d.u8()
		m.MinElements = d.u8()
		m.PageBits = d.u8()
	case ChunkIndexBTreeV2:
		m.NodeSize = d.u32()
		m.SplitPct = d.u8()
		m.MergePct = d.u8()
	default:
		d.failf("chunk index type %d: %w", m.ChunkIndexType, ErrUnsupported)
	}
	m.ChunkIndexAddr = d.offset()
}

func readDims(d *decoder, rank, width int) []uint32 {
	dims := make([]uint32, rank)
	for i := range dims {
		dims[i] = uint32(d.uint(width))
	}
	return dims
}

// setChunkDims splits the stored dimensions into chunk shape and element
// size.
func (m *DataLayout) setChunkDims(dims []uint32) {
	if len(dims) == 0 {
		return
	}
	m.ChunkDims = dims[:len(dims)-1]
	m.ElementSize = dims[len(dims)-1]
}

func (m *DataLayout) encode(e *encoder) {
	switch m.Class {
	case LayoutCompact:
		e.u8(3)
		e.u8(uint8(LayoutCompact))
		e.u16(uint16(len(m.CompactData)))
		e.bytes(m.CompactData)
	case LayoutContiguous:
		e.u8(3)
		e.u8(uint8(LayoutContiguous))
		e.offset(m.Address)
		e.length(m.Size)
	case LayoutChunked:
		dims := append(append([]uint32{}, m.ChunkDims...), m.ElementSize)
		var largest uint64
		for _, n := range dims {
			largest = max(largest, uint64(n))
		}
		width := widthFor(largest)
		e.u8(4)
		e.u8(uint8(LayoutChunked))
		e.u8(m.ChunkFlags)
		e.u8(uint8(len(dims)))
		e.u8(uint8(width))
		for _, n := range dims {
			e.uint(uint64(n), width)
		}
		e.u8(uint8(m.ChunkIndexType))
		switch m.ChunkIndexType {
		case ChunkIndexSingle:
			if m.ChunkFlags&ChunkSingleFiltered != 0 {
				e.length(m.FilteredSize)
				e.u32(m.FilterMask)
			}
		case ChunkIndexFixedArray:
			e.u8(m.PageBits)
		case ChunkIndexExtensibleArray:
			e.bytes([]byte{m.MaxBits, m.IndexElements, m.MinPointers, m.MinElements, m.PageBits})
		case ChunkIndexBTreeV2:
			e.u32(m.NodeSize)
			e.u8(m.SplitPct)
			e.u8(m.MergePct)
		}
		e.offset(m.ChunkIndexAddr)
	}
}

// NewCompactLayout stores data inside the object header.
func NewCompactLayout(data []byte) *DataLayout {
	return &DataLayout{Version: 3, Class: LayoutCompact, CompactData: data, Size: uint64(len(data))}
}

// NewContiguousLayout stores size bytes at address.
func NewContiguousLayout(address, size uint64) *DataLayout {
	return &DataLayout{Version: 3, Class: LayoutContiguous, Address: address, Size: size}
}

// NewChunkedLayout returns a version 4 chunked layout; the caller fills in
// ChunkIndexAddr and any index parameters.
func NewChunkedLayout(chunkDims []uint32, elementSize uint32, index ChunkIndexType) *DataLayout {
	return &DataLayout{Version: 4, Class: LayoutChunked, ChunkDims: chunkDims,
		ElementSize: elementSize, ChunkIndexType: index}
}
