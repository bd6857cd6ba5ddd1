package dataset

import (
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DownSampling is applied when an image is larger than the input size.
type DownSampling string

const (
	DownNone       DownSampling = "none"
	DownCenterCrop DownSampling = "center_crop"
	DownResize     DownSampling = "resize"
)

func (m DownSampling) valid() bool {
	switch m {
	case "", DownNone, DownCenterCrop, DownResize:
		return true
	}
	return false
}

// UpSampling is applied when an image is smaller than the input size.
type UpSampling string

const (
	UpNone       UpSampling = "none"
	UpFillZeros  UpSampling = "fill_zeros"
	UpFillOnes   UpSampling = "fill_ones"
	UpEdgeRepeat UpSampling = "edge_repeat"
	UpMirrorEdge UpSampling = "mirror_edge"
	UpWrapAround UpSampling = "wrap_around"
	UpResize     UpSampling = "resize"
)

func (m UpSampling) valid() bool {
	switch m {
	case "", UpNone, UpFillZeros, UpFillOnes, UpEdgeRepeat, UpMirrorEdge, UpWrapAround, UpResize:
		return true
	}
	return false
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// resample brings img to width x height. Up-sampling runs first on images
// smaller than the target in either axis, then down-sampling on images that
// were larger in either axis.
func resample(img *image.RGBA, width, height int, down DownSampling, up UpSampling) *image.RGBA {
	if width == 0 || height == 0 {
		return img
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	if w < width || h < height {
		switch up {
		case UpResize:
			img = scale(img, width, height)
		case UpFillZeros, UpFillOnes, UpEdgeRepeat, UpMirrorEdge, UpWrapAround:
			img = pad(img, max(w, width), max(h, height), up)
		}
	}
	if w > width || h > height {
		switch down {
		case DownResize:
			img = scale(img, width, height)
		case DownCenterCrop:
			img = centerCrop(img, width, height)
		}
	}
	return img
}

func scale(img *image.RGBA, width, height int) *image.RGBA {
	if img.Bounds().Dx() == width && img.Bounds().Dy() == height {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(out, out.Bounds(), img, img.Bounds(), draw.Src, nil)
	return out
}

func centerCrop(img *image.RGBA, width, height int) *image.RGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	cw, ch := min(w, width), min(h, height)
	if cw == w && ch == h {
		return img
	}
	left, top := (w-cw+1)/2, (h-ch+1)/2
	out := image.NewRGBA(image.Rect(0, 0, cw, ch))
	draw.Draw(out, out.Bounds(), img, image.Pt(left, top), draw.Src)
	return out
}

// pad grows img to width x height, centring it and filling the border
// according to method.
func pad(img *image.RGBA, width, height int, method UpSampling) *image.RGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	left, top := (width-w+1)/2, (height-h+1)/2
	out := image.NewRGBA(image.Rect(0, 0, width, height))

	var fill color.RGBA
	switch method {
	case UpFillZeros:
		fill = color.RGBA{A: 255}
	case UpFillOnes:
		fill = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sx, sy := x-left, y-top
			if sx >= 0 && sx < w && sy >= 0 && sy < h {
				out.SetRGBA(x, y, img.RGBAAt(sx, sy))
				continue
			}
			switch method {
			case UpEdgeRepeat:
				sx, sy = clampInt(sx, w), clampInt(sy, h)
			case UpMirrorEdge:
				sx, sy = mirror(sx, w), mirror(sy, h)
			case UpWrapAround:
				sx, sy = wrap(sx, w), wrap(sy, h)
			default:
				out.SetRGBA(x, y, fill)
				continue
			}
			out.SetRGBA(x, y, img.RGBAAt(sx, sy))
		}
	}
	return out
}

func clampInt(i, n int) int {
	return min(max(i, 0), n-1)
}

// mirror reflects i into [0, n) without repeating the edge sample.
func mirror(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i = wrap(i, period)
	if i >= n {
		i = period - i
	}
	return i
}

func wrap(i, n int) int {
	return ((i % n) + n) % n
}
