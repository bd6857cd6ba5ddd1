package filter

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/robert-malhotra/virelay/internal/message"
)

// Deflate is zlib compression. Client data holds the level.
type Deflate struct {
	level int
}

func NewDeflate(clientData []uint32) *Deflate {
	level := 6
	if len(clientData) > 0 && clientData[0] <= 9 {
		level = int(clientData[0])
	}
	return &Deflate{level: level}
}

func (f *Deflate) ID() uint16 { return message.FilterDeflate }

func (f *Deflate) Decode(input []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (f *Deflate) Encode(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, f.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(input); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
