// Package dataset provides random access to the raw input samples of a
// project. Two backends share the Dataset interface: a directory of image
// files and a single HDF5 container holding data and label arrays.
package dataset

import (
	"log/slog"
	"math"

	"github.com/robert-malhotra/virelay/internal/logging"
	"github.com/robert-malhotra/virelay/labels"
	"github.com/robert-malhotra/virelay/tensor"
)

// Dataset is a random-access collection of samples addressed by index.
type Dataset interface {
	// Name is the dataset's display name from the manifest.
	Name() string
	// Len is the number of samples; valid indices are [0, Len()).
	Len() int
	// Sample materializes the sample at index. The returned value owns its
	// data and stays valid after Close.
	Sample(index int) (Sample, error)
	Close() error
}

// Sample is one raw input record.
type Sample struct {
	Index  int
	Labels []labels.Label
	// Data is channels-last for images (height, width, channels).
	Data *tensor.Tensor[float32]

	// bytes is set when Data was decoded from 8-bit pixels, which makes the
	// range heuristic in Pixels unnecessary.
	bytes bool
}

// pixel ranges the stored data is matched against, in order of preference.
var pixelRanges = [...][2]float64{{-1, 1}, {0, 1}, {0, 255}}

// Pixels converts the sample to 8-bit channels-last pixels. Floating point
// data is mapped from whichever of [-1,1], [0,1] or [0,255] its bounds lie
// closest to. Rank-2 data gains a single channel axis.
func (s Sample) Pixels() *tensor.Tensor[uint8] {
	data := s.Data
	if data.Rank() == 2 {
		data, _ = data.Reshape(data.Dim(0), data.Dim(1), 1)
	}
	out := make([]uint8, data.Len())
	if s.bytes {
		for i, v := range data.Data() {
			out[i] = clampByte(float64(v))
		}
		t, _ := tensor.New(data.Shape(), out)
		return t
	}

	lo, hi := data.MinMax()
	best, bestDist := 0, math.Inf(1)
	for i, r := range pixelRanges {
		d := math.Abs((r[0] - float64(lo)) + (r[1] - float64(hi)))
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	r := pixelRanges[best]
	scale := 255 / (r[1] - r[0])
	for i, v := range data.Data() {
		out[i] = clampByte((float64(v) - r[0]) * scale)
	}
	t, _ := tensor.New(data.Shape(), out)
	return t
}

func clampByte(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}

// Option configures a dataset backend.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for open and read diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func applyOptions(name string, opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrNop(o.logger).With("dataset", name)
	return o
}
