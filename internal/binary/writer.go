package binary

import "io"

// Writer encodes fields sequentially into an io.WriterAt.
type Writer struct {
	sizes
	w   io.WriterAt
	pos int64
}

// NewWriter returns a Writer positioned at 0.
func NewWriter(w io.WriterAt, cfg Config) *Writer {
	return &Writer{sizes: sizesOf(cfg), w: w}
}

// At returns a Writer over the same sink positioned at offset.
func (w *Writer) At(offset int64) *Writer {
	return &Writer{sizes: w.sizes, w: w.w, pos: offset}
}

// Pos returns the current position.
func (w *Writer) Pos() int64 { return w.pos }

// Skip advances the position by n bytes without writing.
func (w *Writer) Skip(n int64) { w.pos += n }

// Align advances the position to the next multiple of alignment without
// writing.
func (w *Writer) Align(alignment int64) { w.pos = align(w.pos, alignment) }

// WriteBytes writes data at the current position.
func (w *Writer) WriteBytes(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := w.w.WriteAt(data, w.pos)
	w.pos += int64(n)
	return err
}

// WriteZeros writes n zero bytes.
func (w *Writer) WriteZeros(n int) error {
	if n <= 0 {
		return nil
	}
	return w.WriteBytes(make([]byte, n))
}

// WriteUintN writes v as an n-byte unsigned integer.
func (w *Writer) WriteUintN(v uint64, n int) error {
	buf := make([]byte, n)
	w.encode(buf, v)
	return w.WriteBytes(buf)
}

// WriteUint8 writes one byte.
func (w *Writer) WriteUint8(v uint8) error { return w.WriteUintN(uint64(v), 1) }

// WriteUint16 writes a 2-byte unsigned integer.
func (w *Writer) WriteUint16(v uint16) error { return w.WriteUintN(uint64(v), 2) }

// WriteUint32 writes a 4-byte unsigned integer.
func (w *Writer) WriteUint32(v uint32) error { return w.WriteUintN(uint64(v), 4) }

// WriteUint64 writes an 8-byte unsigned integer.
func (w *Writer) WriteUint64(v uint64) error { return w.WriteUintN(v, 8) }

// WriteOffset writes a file address.
func (w *Writer) WriteOffset(v uint64) error { return w.WriteUintN(v, w.offsetSize) }

// WriteLength writes a length.
func (w *Writer) WriteLength(v uint64) error { return w.WriteUintN(v, w.lengthSize) }
