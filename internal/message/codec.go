package message

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/virelay/internal/binary"
)

var (
	ErrTruncated   = errors.New("message truncated")
	ErrUnsupported = errors.New("unsupported encoding")
)

// decoder walks a message body. The first failure sticks in err and every
// later read returns zero values.
type decoder struct {
	buf      []byte
	pos      int
	osz, lsz int
	err      error
}

func newDecoder(data []byte, r *binary.Reader) *decoder {
	return &decoder{buf: data, osz: r.OffsetSize(), lsz: r.LengthSize()}
}

// sub returns a decoder over the next n bytes and skips them here.
func (d *decoder) sub(n int) *decoder {
	b := d.take(n)
	return &decoder{buf: b, osz: d.osz, lsz: d.lsz, err: d.err}
}

func (d *decoder) failf(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > d.remaining() {
		d.err = fmt.Errorf("%w: need %d bytes at %d, have %d", ErrTruncated, n, d.pos, d.remaining())
		return nil
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) skip(n int) { d.take(n) }

// pad8 skips to the next multiple of eight from the start of the body.
func (d *decoder) pad8() {
	if r := d.pos % 8; r != 0 {
		d.skip(min(8-r, d.remaining()))
	}
}

func (d *decoder) uint(n int) uint64 {
	b := d.take(n)
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func (d *decoder) u8() uint8   { return uint8(d.uint(1)) }
func (d *decoder) u16() uint16 { return uint16(d.uint(2)) }
func (d *decoder) u32() uint32 { return uint32(d.uint(4)) }
func (d *decoder) u64() uint64 { return d.uint(8) }

func (d *decoder) offset() uint64 { return d.uint(d.osz) }
func (d *decoder) length() uint64 { return d.uint(d.lsz) }

// undefined reports whether addr is the all-ones address.
func (d *decoder) undefined(addr uint64) bool {
	if d.osz >= 8 {
		return addr == ^uint64(0)
	}
	return addr == uint64(1)<<(8*d.osz)-1
}

// cstring reads a NUL-terminated string and consumes the terminator.
func (d *decoder) cstring() string {
	if d.err != nil {
		return ""
	}
	for i := d.pos; i < len(d.buf); i++ {
		if d.buf[i] == 0 {
			s := string(d.buf[d.pos:i])
			d.pos = i + 1
			return s
		}
	}
	d.err = fmt.Errorf("%w: unterminated string at %d", ErrTruncated, d.pos)
	return ""
}

// paddedName reads a NUL-terminated name stored in a field padded to a
// multiple of eight bytes.
func (d *decoder) paddedName() string {
	start := d.pos
	s := d.cstring()
	if r := (d.pos - start) % 8; r != 0 {
		d.skip(8 - r)
	}
	return s
}

// fixedString reads n bytes and drops everything from the first NUL.
func (d *decoder) fixedString(n int) string {
	b := d.take(n)
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// encoder appends little-endian fields.
type encoder struct {
	buf      []byte
	osz, lsz int
}

func (e *encoder) uint(v uint64, n int) {
	for i := 0; i < n; i++ {
		e.buf = append(e.buf, byte(v>>(8*i)))
	}
}

func (e *encoder) u8(v uint8)   { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16) { e.uint(uint64(v), 2) }
func (e *encoder) u32(v uint32) { e.uint(uint64(v), 4) }
func (e *encoder) u64(v uint64) { e.uint(v, 8) }

func (e *encoder) offset(v uint64) { e.uint(v, e.osz) }
func (e *encoder) length(v uint64) { e.uint(v, e.lsz) }

func (e *encoder) undefined() { e.uint(^uint64(0), e.osz) }

func (e *encoder) bytes(b []byte) { e.buf = append(e.buf, b...) }

func (e *encoder) zeros(n int) { e.buf = append(e.buf, make([]byte, n)...) }

// widthFor returns the smallest of 1, 2, 4 or 8 bytes that holds v.
func widthFor(v uint64) int {
	switch {
	case v <= 0xFF:
		return 1
	case v <= 0xFFFF:
		return 2
	case v <= 0xFFFFFFFF:
		return 4
	}
	return 8
}
