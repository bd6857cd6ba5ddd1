// Package heatmap turns signed relevance maps into RGB images.
//
// Positive and negative relevance are normalized separately, each by its own
// largest magnitude, so the strongest evidence on either side saturates the
// colour scale. A side with no relevance at all contributes no layer.
package heatmap

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/robert-malhotra/virelay/tensor"
)

var (
	// ErrUnsupported is returned for unknown modes, colour maps and shapes.
	ErrUnsupported = errors.New("heatmap: unsupported")
	// ErrNoSample is returned when a mode needs the input sample and none
	// was given.
	ErrNoSample = errors.New("heatmap: mode needs a sample image")
)

// overlayAlpha is the opacity of fully saturated relevance over the sample.
const overlayAlpha = 0.9

// Mode selects what Render draws.
type Mode string

const (
	// Raw returns the sample itself.
	Raw Mode = "raw"
	// Overlay blends the heatmap over a desaturated copy of the sample.
	Overlay Mode = "overlay"
	// AttributionOnly draws the heatmap alone.
	AttributionOnly Mode = "attribution"
)

// ParseMode returns the mode called name.
func ParseMode(name string) (Mode, error) {
	switch m := Mode(name); m {
	case Raw, Overlay, AttributionOnly:
		return m, nil
	}
	return "", fmt.Errorf("%w: mode %q", ErrUnsupported, name)
}

// Image is a plain RGB raster, row-major with three bytes per pixel.
type Image struct {
	Width, Height int
	Pix           []uint8
}

// FromPixels builds an Image from an (H, W) or (H, W, C) byte tensor. One
// channel is replicated to grey, a fourth channel is dropped.
func FromPixels(t *tensor.Tensor[uint8]) (*Image, error) {
	var h, w, c int
	switch t.Rank() {
	case 2:
		h, w, c = t.Dim(0), t.Dim(1), 1
	case 3:
		h, w, c = t.Dim(0), t.Dim(1), t.Dim(2)
	default:
		return nil, fmt.Errorf("%w: pixel tensor of shape %v", ErrUnsupported, t.Shape())
	}
	if c != 1 && c != 3 && c != 4 {
		return nil, fmt.Errorf("%w: %d colour channels", ErrUnsupported, c)
	}
	src := t.Data()
	m := &Image{Width: w, Height: h, Pix: make([]uint8, w*h*3)}
	for i := 0; i < w*h; i++ {
		if c == 1 {
			m.Pix[3*i], m.Pix[3*i+1], m.Pix[3*i+2] = src[i], src[i], src[i]
			continue
		}
		copy(m.Pix[3*i:3*i+3], src[c*i:c*i+3])
	}
	return m, nil
}

// RGBA converts m to an opaque image.RGBA, for encoding.
func (m *Image) RGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	for i := 0; i < m.Width*m.Height; i++ {
		copy(out.Pix[4*i:4*i+3], m.Pix[3*i:3*i+3])
		out.Pix[4*i+3] = 0xff
	}
	return out
}

func fromRGBA(src *image.RGBA) *Image {
	b := src.Bounds()
	m := &Image{Width: b.Dx(), Height: b.Dy(), Pix: make([]uint8, b.Dx()*b.Dy()*3)}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			o := src.PixOffset(b.Min.X+x, b.Min.Y+y)
			copy(m.Pix[3*(y*m.Width+x):], src.Pix[o:o+3])
		}
	}
	return m
}

// Relevance is a spatial relevance map split by sign. Both parts hold values
// in [0, 1]; a part is nil when no element has that sign.
type Relevance struct {
	Width, Height int
	Positive      []float32
	Negative      []float32
}

// Decompose sums the channels of a channels-last attribution and splits it
// by sign, normalizing each side by its own largest magnitude.
func Decompose(attr *tensor.Tensor[float32]) (Relevance, error) {
	t := attr
	if t.Rank() > 3 {
		t = t.Squeeze()
	}
	var r Relevance
	var summed []float32
	switch t.Rank() {
	case 0:
		r.Width, r.Height = 1, 1
		summed = append(summed, t.Data()...)
	case 1:
		r.Width, r.Height = t.Dim(0), 1
		summed = t.Data()
	case 2:
		r.Height, r.Width = t.Dim(0), t.Dim(1)
		summed = t.Data()
	case 3:
		r.Height, r.Width = t.Dim(0), t.Dim(1)
		c := t.Dim(2)
		src := t.Data()
		summed = make([]float32, r.Width*r.Height)
		for i := range summed {
			var s float32
			for _, v := range src[i*c : (i+1)*c] {
				s += v
			}
			summed[i] = s
		}
	default:
		return Relevance{}, fmt.Errorf("%w: attribution of shape %v", ErrUnsupported, attr.Shape())
	}

	// non-finite relevance carries no evidence for either side
	summed = finite(summed)
	var maxPos, maxNeg float32
	for _, v := range summed {
		maxPos = max(maxPos, v)
		maxNeg = max(maxNeg, -v)
	}
	if maxPos > 0 {
		r.Positive = make([]float32, len(summed))
	}
	if maxNeg > 0 {
		r.Negative = make([]float32, len(summed))
	}
	for i, v := range summed {
		switch {
		case v > 0:
			r.Positive[i] = v / maxPos
		case v < 0:
			r.Negative[i] = -v / maxNeg
		}
	}
	return r, nil
}

// finite returns vs with NaN and infinities replaced by zero. vs is copied
// only when it holds such a value.
func finite(vs []float32) []float32 {
	var out []float32
	for i, v := range vs {
		if f := float64(v); !math.IsNaN(f) && !math.IsInf(f, 0) {
			continue
		}
		if out == nil {
			out = append([]float32(nil), vs...)
		}
		out[i] = 0
	}
	if out == nil {
		return vs
	}
	return out
}

// signed returns the normalized relevance of pixel i in [-1, 1].
func (r Relevance) signed(i int) float64 {
	var v float64
	if r.Positive != nil {
		v += float64(r.Positive[i])
	}
	if r.Negative != nil {
		v -= float64(r.Negative[i])
	}
	return v
}

// Render draws rel in the given mode. Raw and Overlay need the sample the
// relevance was computed for; the overlay is drawn at the sample's size.
func Render(rel Relevance, mode Mode, cmap ColorMap, sample *Image) (*Image, error) {
	if n := rel.Width * rel.Height; (rel.Positive != nil && len(rel.Positive) != n) || (rel.Negative != nil && len(rel.Negative) != n) {
		return nil, fmt.Errorf("%w: relevance parts do not match %dx%d", ErrUnsupported, rel.Width, rel.Height)
	}
	switch mode {
	case Raw:
		if sample == nil {
			return nil, ErrNoSample
		}
		return &Image{Width: sample.Width, Height: sample.Height, Pix: append([]uint8(nil), sample.Pix...)}, nil
	case AttributionOnly:
		heat, err := colorize(rel, cmap)
		if err != nil {
			return nil, err
		}
		return fromRGBA(heat), nil
	case Overlay:
		if sample == nil {
			return nil, ErrNoSample
		}
		return overlay(rel, cmap, sample)
	}
	return nil, fmt.Errorf("%w: mode %q", ErrUnsupported, mode)
}

func colorize(rel Relevance, cmap ColorMap) (*image.RGBA, error) {
	out := image.NewRGBA(image.Rect(0, 0, rel.Width, rel.Height))
	for i := 0; i < rel.Width*rel.Height; i++ {
		c, err := cmap.color(rel.signed(i))
		if err != nil {
			return nil, err
		}
		out.Pix[4*i] = toByte(c[0])
		out.Pix[4*i+1] = toByte(c[1])
		out.Pix[4*i+2] = toByte(c[2])
		out.Pix[4*i+3] = 0xff
	}
	return out, nil
}

func toByte(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}

// mask turns one relevance side into blend opacity, or nil for an absent side.
func mask(part []float32, w, h int) *image.Alpha {
	if part == nil {
		return nil
	}
	m := image.NewAlpha(image.Rect(0, 0, w, h))
	for i, v := range part {
		m.Pix[i] = toByte(overlayAlpha * float64(v))
	}
	return m
}

func overlay(rel Relevance, cmap ColorMap, sample *Image) (*Image, error) {
	heat, err := colorize(rel, cmap)
	if err != nil {
		return nil, err
	}
	bounds := image.Rect(0, 0, sample.Width, sample.Height)
	var heatImg draw.Image = heat
	pos := mask(rel.Positive, rel.Width, rel.Height)
	neg := mask(rel.Negative, rel.Width, rel.Height)
	if heat.Bounds() != bounds {
		heatImg = resize(heat, bounds)
		if pos != nil {
			pos = resizeAlpha(pos, bounds)
		}
		if neg != nil {
			neg = resizeAlpha(neg, bounds)
		}
	}

	dst := desaturate(sample)
	for _, m := range []*image.Alpha{pos, neg} {
		if m != nil {
			draw.DrawMask(dst, bounds, heatImg, image.Point{}, m, image.Point{}, draw.Over)
		}
	}
	return fromRGBA(dst), nil
}

func resize(src image.Image, bounds image.Rectangle) *image.RGBA {
	out := image.NewRGBA(bounds)
	draw.BiLinear.Scale(out, bounds, src, src.Bounds(), draw.Src, nil)
	return out
}

func resizeAlpha(src *image.Alpha, bounds image.Rectangle) *image.Alpha {
	out := image.NewAlpha(bounds)
	draw.BiLinear.Scale(out, bounds, src, src.Bounds(), draw.Src, nil)
	return out
}

// desaturate returns an opaque grey copy of m using ITU-R 601 luma.
func desaturate(m *Image) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	for i := 0; i < m.Width*m.Height; i++ {
		r, g, b := uint32(m.Pix[3*i]), uint32(m.Pix[3*i+1]), uint32(m.Pix[3*i+2])
		l := uint8((299*r + 587*g + 114*b + 500) / 1000)
		out.Pix[4*i], out.Pix[4*i+1], out.Pix[4*i+2], out.Pix[4*i+3] = l, l, l, 0xff
	}
	return out
}
