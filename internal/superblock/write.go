package superblock

import (
	binpkg "github.com/robert-malhotra/virelay/internal/binary"
)

// New returns a version 3 superblock with 8-byte offsets and lengths.
func New() *Superblock {
	return &Superblock{Version: 3, OffsetSize: 8, LengthSize: 8}
}

// Size returns the encoded size of a version 2 or 3 superblock.
func (sb *Superblock) Size() int {
	o := int(sb.OffsetSize)
	if o == 0 {
		o = 8
	}
	return 12 + 4*o + 4
}

// Write encodes sb as a version 2 or 3 superblock at w's position and
// returns the number of bytes written. Earlier versions are written as 2.
func (sb *Superblock) Write(w *binpkg.Writer) (int64, error) {
	buf := &memory{}
	bw := binpkg.NewWriter(buf, binpkg.Config{
		ByteOrder:  w.ByteOrder(),
		OffsetSize: w.OffsetSize(),
		LengthSize: w.LengthSize(),
	})

	ext := sb.SuperblockExtensionAddress
	if ext == 0 {
		ext = bw.UndefinedOffset()
	}
	steps := []func() error{
		func() error { return bw.WriteBytes(Signature) },
		func() error { return bw.WriteUint8(max(sb.Version, 2)) },
		func() error { return bw.WriteUint8(sb.OffsetSize) },
		func() error { return bw.WriteUint8(sb.LengthSize) },
		func() error { return bw.WriteUint8(sb.FileConsistencyFlags) },
		func() error { return bw.WriteOffset(sb.BaseAddress) },
		func() error { return bw.WriteOffset(ext) },
		func() error { return bw.WriteOffset(sb.EOFAddress) },
		func() error { return bw.WriteOffset(sb.RootGroupAddress) },
		func() error { return bw.WriteUint32(binpkg.Lookup3Checksum(buf.b)) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return 0, err
		}
	}
	if err := w.WriteBytes(buf.b); err != nil {
		return 0, err
	}
	return int64(len(buf.b)), nil
}

// memory is a growable in-memory io.WriterAt.
type memory struct{ b []byte }

func (m *memory) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(m.b) {
		m.b = append(m.b, make([]byte, end-len(m.b))...)
	}
	return copy(m.b[off:], p), nil
}
