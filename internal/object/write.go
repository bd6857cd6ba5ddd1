package object

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/virelay/internal/binary"
	"github.com/robert-malhotra/virelay/internal/message"
)

// MinGroupChunkSize is the message area h5py reserves in group headers.
const MinGroupChunkSize = 120

// ErrMessageTooLarge is returned for a message body over 64 KiB, which a
// compact header cannot hold.
var ErrMessageTooLarge = errors.New("header message too large")

// Encode lays out a version 2 header holding messages. The message area is
// padded with a NIL message up to minChunk bytes.
func Encode(w *binary.Writer, messages []message.Encoder, minChunk int) ([]byte, error) {
	bodies := make([][]byte, len(messages))
	size := 0
	for i, m := range messages {
		bodies[i] = message.Encode(m, w)
		if len(bodies[i]) > 0xFFFF {
			return nil, fmt.Errorf("%w: %s of %d bytes", ErrMessageTooLarge, m.Type(), len(bodies[i]))
		}
		size += 4 + len(bodies[i])
	}
	chunk := max(size, minChunk)
	if gap := chunk - size; gap > 0 && gap < 4 {
		// A gap smaller than a message header cannot hold a NIL message.
		chunk += 4
	}
	width := 1
	for width < 8 && chunk >= 1<<(8*width) {
		width *= 2
	}

	buf := []byte("OHDR")
	buf = append(buf, 2, uint8(widthBits(width)))
	buf = appendUint(buf, uint64(chunk), width)
	for i, m := range messages {
		buf = append(buf, uint8(m.Type()))
		buf = appendUint(buf, uint64(len(bodies[i])), 2)
		buf = append(buf, 0)
		buf = append(buf, bodies[i]...)
	}
	if gap := chunk - size; gap > 0 {
		buf = append(buf, uint8(message.TypeNIL))
		buf = appendUint(buf, uint64(gap-4), 2)
		buf = append(buf, 0)
		buf = append(buf, make([]byte, gap-4)...)
	}
	return appendUint(buf, uint64(binary.Lookup3Checksum(buf)), 4), nil
}

func widthBits(width int) int {
	switch width {
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	}
	return 0
}

func appendUint(buf []byte, v uint64, n int) []byte {
	for i := range n {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}

// NewGroupHeader returns the messages of a compact new-style group.
func NewGroupHeader(links []*message.Link) []message.Encoder {
	out := []message.Encoder{&message.LinkInfo{}, &message.GroupInfo{}}
	for _, l := range links {
		out = append(out, l)
	}
	return out
}

// NewDatasetHeader returns the messages of a dataset. filters may be nil.
func NewDatasetHeader(ds *message.Dataspace, dt *message.Datatype, layout *message.DataLayout,
	filters *message.FilterPipeline, attrs []*message.Attribute) []message.Encoder {
	out := []message.Encoder{ds, dt}
	if filters != nil && len(filters.Filters) > 0 {
		out = append(out, filters)
	}
	out = append(out, layout)
	for _, a := range attrs {
		out = append(out, a)
	}
	return out
}
