package heatmap

import (
	"fmt"
	"math"
)

// ColorMap names a diverging colour scale.
type ColorMap string

const (
	GrayRed         ColorMap = "gray-red"
	BlackGreen      ColorMap = "black-green"
	BlackFireRed    ColorMap = "black-fire-red"
	BlueBlackYellow ColorMap = "blue-black-yellow"
	BlueWhiteRed    ColorMap = "blue-white-red"
	AFMHot          ColorMap = "afm-hot"
	Jet             ColorMap = "jet"
	Seismic         ColorMap = "seismic"
)

// ColorMaps lists every supported colour map.
var ColorMaps = []ColorMap{GrayRed, BlackGreen, BlackFireRed, BlueBlackYellow, BlueWhiteRed, AFMHot, Jet, Seismic}

// ParseColorMap returns the colour map called name.
func ParseColorMap(name string) (ColorMap, error) {
	for _, c := range ColorMaps {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: colour map %q", ErrUnsupported, name)
}

// rgb is a colour with components in [0, 1].
type rgb [3]float64

// color maps a signed relevance v in [-1, 1] to a colour.
func (c ColorMap) color(v float64) (rgb, error) {
	switch c {
	case GrayRed:
		const base = 0.8
		if v < 0 {
			return rgb{base + v*base, base + v*base, base - v*(1-base)}, nil
		}
		return rgb{base + v*(1-base), base - v*base, base - v*base}, nil
	case BlackGreen:
		if v < 0 {
			return rgb{0, 0, -v}, nil
		}
		return rgb{0, v, 0}, nil
	case BlueBlackYellow:
		if v < 0 {
			return rgb{0, 0, -v}, nil
		}
		return rgb{v, v, 0}, nil
	case BlackFireRed:
		band := func(x, lo, width float64) float64 {
			return clamp01((x - lo) / width)
		}
		return rgb{
			band(v, 0, 0.25) + band(-v, 0.5, 0.5),
			band(v, 0.25, 0.25) + band(-v, 0.25, 0.25),
			band(v, 0.5, 0.5) + band(-v, 0, 0.25),
		}, nil
	case BlueWhiteRed:
		return bwr.at((v + 1) / 2), nil
	case AFMHot:
		x := (v + 1) / 2
		return rgb{clamp01(2 * x), clamp01(2*x - 0.5), clamp01(2*x - 1)}, nil
	case Jet:
		return jet.at((v + 1) / 2), nil
	case Seismic:
		return seismic.at((v + 1) / 2), nil
	}
	return rgb{}, fmt.Errorf("%w: colour map %q", ErrUnsupported, c)
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Min(math.Max(x, 0), 1)
}

// stop is one control point of a piecewise linear channel.
type stop struct{ x, y float64 }

// segmented interpolates each channel between its stops.
type segmented [3][]stop

func (s segmented) at(x float64) rgb {
	x = clamp01(x)
	var out rgb
	for ch, stops := range s {
		for i := 1; i < len(stops); i++ {
			a, b := stops[i-1], stops[i]
			if x <= b.x || i == len(stops)-1 {
				t := 0.0
				if b.x > a.x {
					t = clamp01((x - a.x) / (b.x - a.x))
				}
				out[ch] = a.y + t*(b.y-a.y)
				break
			}
		}
	}
	return out
}

var (
	bwr = segmented{
		{{0, 0}, {0.5, 1}, {1, 1}},
		{{0, 0}, {0.5, 1}, {1, 0}},
		{{0, 1}, {0.5, 1}, {1, 0}},
	}
	seismic = segmented{
		{{0, 0}, {0.25, 0}, {0.5, 1}, {0.75, 1}, {1, 0.5}},
		{{0, 0}, {0.25, 0}, {0.5, 1}, {0.75, 0}, {1, 0}},
		{{0, 0.3}, {0.25, 1}, {0.5, 1}, {0.75, 0}, {1, 0}},
	}
	jet = segmented{
		{{0, 0}, {0.35, 0}, {0.66, 1}, {0.89, 1}, {1, 0.5}},
		{{0, 0}, {0.125, 0}, {0.375, 1}, {0.64, 1}, {0.91, 0}, {1, 0}},
		{{0, 0.5}, {0.11, 1}, {0.34, 1}, {0.65, 0}, {1, 0}},
	}
)
