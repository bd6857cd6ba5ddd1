package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	binpkg "github.com/robert-malhotra/virelay/internal/binary"
)

// memoryFile is a sized, zero-filled file image.
type memoryFile struct{ memory }

func newMemoryFile(size int) *memoryFile {
	return &memoryFile{memory{b: make([]byte, size)}}
}

func (m *memoryFile) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(m.b).ReadAt(p, off)
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, userBlock := range []int64{0, 512} {
		f := newMemoryFile(4096)
		sb := New()
		sb.RootGroupAddress = 96
		sb.EOFAddress = 4096
		w := binpkg.NewWriter(f, sb.ReaderConfig()).At(userBlock)
		n, err := sb.Write(w)
		if err != nil {
			t.Fatal(err)
		}
		if n != int64(sb.Size()) {
			t.Fatalf("wrote %d bytes, Size() = %d", n, sb.Size())
		}

		got, err := Read(f)
		if err != nil {
			t.Fatalf("user block %d: %v", userBlock, err)
		}
		if got.Version != 3 || got.OffsetSize != 8 || got.LengthSize != 8 {
			t.Errorf("got version %d sizes %d/%d", got.Version, got.OffsetSize, got.LengthSize)
		}
		if got.RootGroupAddress != 96 || got.EOFAddress != 4096 || got.FileOffset != userBlock {
			t.Errorf("got root %d eof %d at %d", got.RootGroupAddress, got.EOFAddress, got.FileOffset)
		}
		if got.SuperblockExtensionAddress != ^uint64(0) {
			t.Errorf("extension address %#x, want undefined", got.SuperblockExtensionAddress)
		}
	}
}

func TestReadRejectsCorruption(t *testing.T) {
	f := newMemoryFile(256)
	sb := New()
	sb.RootGroupAddress = 48
	if _, err := sb.Write(binpkg.NewWriter(f, sb.ReaderConfig())); err != nil {
		t.Fatal(err)
	}
	f.b[20] ^= 0xff
	if _, err := Read(f); !errors.Is(err, ErrInvalidSuperblock) {
		t.Errorf("corrupted checksum: %v", err)
	}

	tests := []struct {
		name  string
		patch func([]byte)
		want  error
	}{
		{"no signature", func(b []byte) { b[1] = 'X' }, ErrNotHDF5},
		{"version", func(b []byte) { b[8] = 9 }, ErrUnsupportedVersion},
		{"offset size", func(b []byte) { b[8], b[13] = 0, 3 }, ErrInvalidSuperblock},
	}
	for _, tt := range tests {
		f := newMemoryFile(256)
		copy(f.b, Signature)
		tt.patch(f.b)
		if _, err := Read(f); !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}
}

// v0 writes a version 0 superblock whose root entry caches a symbol table.
func v0() []byte {
	var b bytes.Buffer
	b.Write(Signature)
	b.Write([]byte{0, 0, 0, 0, 0, 8, 8, 0})
	binary.Write(&b, binary.LittleEndian, uint16(4))  // leaf K
	binary.Write(&b, binary.LittleEndian, uint16(16)) // internal K
	binary.Write(&b, binary.LittleEndian, uint32(0))  // flags
	for _, addr := range []uint64{0, ^uint64(0), 2048, ^uint64(0), 0, 96} {
		binary.Write(&b, binary.LittleEndian, addr)
	}
	binary.Write(&b, binary.LittleEndian, uint32(1)) // cache type
	binary.Write(&b, binary.LittleEndian, uint32(0))
	binary.Write(&b, binary.LittleEndian, uint64(136)) // B-tree
	binary.Write(&b, binary.LittleEndian, uint64(680)) // local heap
	return b.Bytes()
}

func TestReadV0(t *testing.T) {
	f := newMemoryFile(1024)
	copy(f.b, v0())

	sb, err := Read(f)
	if err != nil {
		t.Fatal(err)
	}
	want := Superblock{
		OffsetSize:                8,
		LengthSize:                8,
		GroupLeafNodeK:            4,
		GroupInternalNodeK:        16,
		EOFAddress:                2048,
		RootGroupAddress:          96,
		RootGroupBTreeAddress:     136,
		RootGroupLocalHeapAddress: 680,
		ByteOrder:                 binary.LittleEndian,
	}
	if *sb != want {
		t.Errorf("got %+v\nwant %+v", *sb, want)
	}
	if cfg := sb.ReaderConfig(); cfg.OffsetSize != 8 || cfg.LengthSize != 8 {
		t.Errorf("ReaderConfig() = %+v", cfg)
	}
}
