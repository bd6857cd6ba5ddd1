package filter

import "github.com/robert-malhotra/virelay/internal/message"

// Shuffle groups byte j of every element together. Client data holds the
// element size. Bytes past the last whole element are left in place.
type Shuffle struct {
	elemSize int
}

func NewShuffle(clientData []uint32) *Shuffle {
	elemSize := 1
	if len(clientData) > 0 && clientData[0] > 0 {
		elemSize = int(clientData[0])
	}
	return &Shuffle{elemSize: elemSize}
}

func (f *Shuffle) ID() uint16 { return message.FilterShuffle }

func (f *Shuffle) Decode(input []byte) ([]byte, error) {
	return f.permute(input, false), nil
}

func (f *Shuffle) Encode(input []byte) ([]byte, error) {
	return f.permute(input, true), nil
}

func (f *Shuffle) permute(input []byte, shuffle bool) []byte {
	n := len(input) / f.elemSize
	if f.elemSize <= 1 || n <= 1 {
		return input
	}
	out := make([]byte, len(input))
	for i := range n {
		for j := range f.elemSize {
			if shuffle {
				out[j*n+i] = input[i*f.elemSize+j]
			} else {
				out[i*f.elemSize+j] = input[j*n+i]
			}
		}
	}
	copy(out[n*f.elemSize:], input[n*f.elemSize:])
	return out
}
