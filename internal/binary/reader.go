package binary

import "io"

// Reader decodes fields sequentially from an io.ReaderAt.
type Reader struct {
	sizes
	r   io.ReaderAt
	pos int64
}

// NewReader returns a Reader positioned at 0.
func NewReader(r io.ReaderAt, cfg Config) *Reader {
	return &Reader{sizes: sizesOf(cfg), r: r}
}

// At returns a Reader over the same source positioned at offset.
func (r *Reader) At(offset int64) *Reader {
	return &Reader{sizes: r.sizes, r: r.r, pos: offset}
}

// Pos returns the current position.
func (r *Reader) Pos() int64 { return r.pos }

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int64) { r.pos += n }

// Align advances the position to the next multiple of alignment.
func (r *Reader) Align(alignment int64) { r.pos = align(r.pos, alignment) }

// Peek reads n bytes without advancing.
func (r *Reader) Peek(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := r.r.ReadAt(buf, r.pos); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf, err := r.Peek(n)
	if err != nil {
		return nil, err
	}
	r.pos += int64(len(buf))
	return buf, nil
}

// ReadUintN reads an n-byte unsigned integer.
func (r *Reader) ReadUintN(n int) (uint64, error) {
	buf, err := r.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	return r.decode(buf), nil
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	v, err := r.ReadUintN(1)
	return uint8(v), err
}

// ReadUint16 reads a 2-byte unsigned integer.
func (r *Reader) ReadUint16() (uint16, error) {
	v, err := r.ReadUintN(2)
	return uint16(v), err
}

// ReadUint32 reads a 4-byte unsigned integer.
func (r *Reader) ReadUint32() (uint32, error) {
	v, err := r.ReadUintN(4)
	return uint32(v), err
}

// ReadUint64 reads an 8-byte unsigned integer.
func (r *Reader) ReadUint64() (uint64, error) {
	return r.ReadUintN(8)
}

// ReadOffset reads a file address.
func (r *Reader) ReadOffset() (uint64, error) {
	return r.ReadUintN(r.offsetSize)
}

// ReadLength reads a length.
func (r *Reader) ReadLength() (uint64, error) {
	return r.ReadUintN(r.lengthSize)
}
