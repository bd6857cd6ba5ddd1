package layout

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/filter"
	"github.com/robert-malhotra/virelay/internal/message"
)

// memFile is a growable in-memory file.
type memFile struct{ b []byte }

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.b)) {
		return 0, io.EOF
	}
	n := copy(p, m.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(m.b) {
		m.b = append(m.b, make([]byte, end-len(m.b))...)
	}
	return copy(m.b[off:], p), nil
}

type testFile struct {
	mem  *memFile
	r    *binary.Reader
	w    *binary.Writer
	next int64
}

func newTestFile() *testFile {
	mem := &memFile{}
	cfg := binary.DefaultConfig()
	return &testFile{mem: mem, r: binary.NewReader(mem, cfg), w: binary.NewWriter(mem, cfg), next: 64}
}

func (f *testFile) alloc(size int64) uint64 {
	addr := f.next
	f.next += (size + 7) &^ 7
	return uint64(addr)
}

func seq(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

func TestSplitIntoChunks(t *testing.T) {
	// 3x3 in 2x2 chunks: four chunks, edges zero padded
	chunks := SplitIntoChunks(seq(9), []uint64{3, 3}, []uint32{2, 2}, 1)
	want := [][]byte{
		{1, 2, 4, 5},
		{3, 0, 6, 0},
		{7, 8, 0, 0},
		{9, 0, 0, 0},
	}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks", len(chunks))
	}
	for i := range want {
		if !bytes.Equal(chunks[i], want[i]) {
			t.Errorf("chunk %d = %v, want %v", i, chunks[i], want[i])
		}
	}

	chunks = SplitIntoChunks([]byte{1, 0, 2, 0, 3, 0}, []uint64{3}, []uint32{2}, 2)
	if len(chunks) != 2 || !bytes.Equal(chunks[1], []byte{3, 0, 0, 0}) {
		t.Errorf("1-D chunks = %v", chunks)
	}
}

func TestCompact(t *testing.T) {
	ds := message.NewDataspace([]uint64{2, 3}, nil)
	dt := message.NewFixedPointDatatype(1, false, message.OrderLE)
	l, err := New(message.NewCompactLayout(seq(6)), ds, dt, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := l.Read()
	if !bytes.Equal(got, seq(6)) {
		t.Errorf("Read = %v", got)
	}
	got, err = l.ReadSlice([]uint64{0, 1}, []uint64{2, 2})
	if err != nil || !bytes.Equal(got, []byte{2, 3, 5, 6}) {
		t.Errorf("ReadSlice = %v, %v", got, err)
	}
	if _, err := l.ReadSlice([]uint64{1, 2}, []uint64{1, 2}); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("out of bounds: got %v", err)
	}
	if _, err := New(message.NewCompactLayout(seq(5)), ds, dt, nil, nil); !errors.Is(err, ErrCorrupt) {
		t.Errorf("short compact data: got %v", err)
	}
}

func TestContiguous(t *testing.T) {
	f := newTestFile()
	addr := f.alloc(12)
	if err := f.w.At(int64(addr)).WriteBytes(seq(12)); err != nil {
		t.Fatal(err)
	}
	ds := message.NewDataspace([]uint64{3, 4}, nil)
	dt := message.NewFixedPointDatatype(1, false, message.OrderLE)

	// Older layout messages leave the size for the reader to derive.
	l, err := New(message.NewContiguousLayout(addr, 0), ds, dt, nil, f.r)
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Read()
	if err != nil || !bytes.Equal(got, seq(12)) {
		t.Errorf("Read = %v, %v", got, err)
	}
	got, err = l.ReadSlice([]uint64{1, 1}, []uint64{2, 2})
	if err != nil || !bytes.Equal(got, []byte{6, 7, 10, 11}) {
		t.Errorf("ReadSlice = %v, %v", got, err)
	}

	unwritten, _ := New(message.NewContiguousLayout(f.r.UndefinedOffset(), 12), ds, dt, nil, f.r)
	got, err = unwritten.ReadSlice([]uint64{2, 0}, []uint64{1, 4})
	if err != nil || !bytes.Equal(got, make([]byte, 4)) {
		t.Errorf("unallocated = %v, %v", got, err)
	}
}

func TestChunkedRoundTrip(t *testing.T) {
	deflate := &message.FilterPipeline{Filters: []message.FilterInfo{
		{ID: message.FilterShuffle, ClientData: []uint32{2}},
		{ID: message.FilterDeflate, ClientData: []uint32{4}},
	}}
	tests := []struct {
		name    string
		dims    []uint64
		chunks  []uint32
		filters *message.FilterPipeline
		index   message.ChunkIndexType
	}{
		{"single", []uint64{2, 3}, []uint32{2, 3}, nil, message.ChunkIndexSingle},
		{"single filtered", []uint64{2, 3}, []uint32{2, 3}, deflate, message.ChunkIndexSingle},
		{"fixed array", []uint64{5, 3}, []uint32{2, 2}, nil, message.ChunkIndexFixedArray},
		{"fixed array filtered", []uint64{5, 3}, []uint32{2, 2}, deflate, message.ChunkIndexFixedArray},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFile()
			n := int(tt.dims[0] * tt.dims[1])
			data := seq(2 * n)
			pipeline, err := filter.NewPipeline(tt.filters)
			if err != nil {
				t.Fatal(err)
			}
			lm, err := WriteChunked(f.w, f.alloc, data, tt.dims, tt.chunks, 2, pipeline)
			if err != nil {
				t.Fatal(err)
			}
			if lm.ChunkIndexType != tt.index {
				t.Errorf("index type %d, want %d", lm.ChunkIndexType, tt.index)
			}

			// Decode the layout as a reader would find it in the header.
			parsed, err := message.Parse(message.TypeDataLayout, message.Encode(lm, f.w), 0, f.r)
			if err != nil {
				t.Fatal(err)
			}
			ds := message.NewDataspace(tt.dims, nil)
			dt := message.NewFixedPointDatatype(2, false, message.OrderLE)
			l, err := New(parsed.(*message.DataLayout), ds, dt, tt.filters, f.r)
			if err != nil {
				t.Fatal(err)
			}
			got, err := l.Read()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("Read = %v\nwant %v", got, data)
			}

			// row 1, columns 1..2
			got, err = l.ReadSlice([]uint64{1, 1}, []uint64{1, 2})
			if err != nil {
				t.Fatal(err)
			}
			row := int(tt.dims[1]) * 2
			if want := data[row+2 : row+6]; !bytes.Equal(got, want) {
				t.Errorf("ReadSlice = %v, want %v", got, want)
			}
		})
	}
}

func TestChunkedImplicit(t *testing.T) {
	f := newTestFile()
	// 3 elements in chunks of 2: the second chunk is stored full size.
	addr := f.alloc(4)
	if err := f.w.At(int64(addr)).WriteBytes([]byte{7, 8, 9, 0}); err != nil {
		t.Fatal(err)
	}
	lm := message.NewChunkedLayout([]uint32{2}, 1, message.ChunkIndexImplicit)
	lm.ChunkIndexAddr = addr
	l, err := New(lm, message.NewDataspace([]uint64{3}, nil),
		message.NewFixedPointDatatype(1, false, message.OrderLE), nil, f.r)
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Read()
	if err != nil || !bytes.Equal(got, []byte{7, 8, 9}) {
		t.Errorf("Read = %v, %v", got, err)
	}
}

func TestChunkedUnallocated(t *testing.T) {
	f := newTestFile()
	lm := message.NewChunkedLayout([]uint32{2}, 4, message.ChunkIndexFixedArray)
	lm.ChunkIndexAddr = f.r.UndefinedOffset()
	l, err := New(lm, message.NewDataspace([]uint64{3}, nil), message.NewFloatDatatype(4, message.OrderLE), nil, f.r)
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Read()
	if err != nil || !bytes.Equal(got, make([]byte, 12)) {
		t.Errorf("Read = %v, %v", got, err)
	}
}

func withChecksum(b []byte) []byte {
	return appendUint(b, uint64(binary.Lookup3Checksum(b)), 4)
}

func TestChunkedExtensibleArray(t *testing.T) {
	f := newTestFile()
	undef := f.r.UndefinedOffset()

	// chunk i of a 1-D dataset holds {10i+1, 10i+2}
	var chunkAddrs []uint64
	for i := range 3 {
		a := f.alloc(2)
		if err := f.w.At(int64(a)).WriteBytes([]byte{byte(10*i + 1), byte(10*i + 2)}); err != nil {
			t.Fatal(err)
		}
		chunkAddrs = append(chunkAddrs, a)
	}

	const (
		idxElements = 4
		minElements = 16
		minPointers = 4
		maxBits     = 32
	)
	hdrAddr := f.alloc(72)
	iblockAddr := f.alloc(4 + 2 + 8 + idxElements*8 + (6+25)*8 + 4)

	iblock := append([]byte("EAIB"), 0, 0)
	iblock = appendUint(iblock, hdrAddr, 8)
	for _, a := range append(chunkAddrs, undef) {
		iblock = appendUint(iblock, a, 8)
	}
	for range 6 + 25 {
		iblock = appendUint(iblock, undef, 8)
	}
	hdr := append([]byte("EAHD"), 0, 0, 8, maxBits, idxElements, minElements, minPointers, 10)
	for _, v := range []uint64{0, 0, 0, 0, 3, 3} {
		hdr = appendUint(hdr, v, 8)
	}
	hdr = appendUint(hdr, iblockAddr, 8)
	if err := f.w.At(int64(iblockAddr)).WriteBytes(withChecksum(iblock)); err != nil {
		t.Fatal(err)
	}
	if err := f.w.At(int64(hdrAddr)).WriteBytes(withChecksum(hdr)); err != nil {
		t.Fatal(err)
	}

	lm := message.NewChunkedLayout([]uint32{2}, 1, message.ChunkIndexExtensibleArray)
	lm.ChunkIndexAddr = hdrAddr
	ds := message.NewDataspace([]uint64{5}, []uint64{message.Unlimited})
	l, err := New(lm, ds, message.NewFixedPointDatatype(1, false, message.OrderLE), nil, f.r)
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Read()
	if err != nil || !bytes.Equal(got, []byte{1, 2, 11, 12, 21}) {
		t.Errorf("Read = %v, %v", got, err)
	}

	// flip one byte of the index block
	f.mem.b[iblockAddr+20] ^= 0xFF
	l, _ = New(lm, ds, message.NewFixedPointDatatype(1, false, message.OrderLE), nil, f.r)
	if _, err := l.Read(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("corrupt index block: got %v", err)
	}
}
