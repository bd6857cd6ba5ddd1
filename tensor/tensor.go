// Package tensor provides owned, shape-carrying numeric arrays.
package tensor

import (
	"fmt"
	"slices"
)

// Number is the set of element types a Tensor can hold.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Tensor is an N-dimensional array stored in row-major order. A Tensor owns
// its backing slice; constructors copy nothing, so callers must not retain
// the slice they pass in.
type Tensor[T Number] struct {
	shape []int
	data  []T
}

// New wraps data with the given shape. The product of shape must equal
// len(data).
func New[T Number](shape []int, data []T) (*Tensor[T], error) {
	n, err := size(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("shape %v holds %d elements, got %d", shape, n, len(data))
	}
	return &Tensor[T]{shape: slices.Clone(shape), data: data}, nil
}

// Zeros returns a zero-filled tensor.
func Zeros[T Number](shape ...int) *Tensor[T] {
	n, err := size(shape)
	if err != nil {
		panic(err)
	}
	return &Tensor[T]{shape: slices.Clone(shape), data: make([]T, n)}
}

func size(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension in shape %v", shape)
		}
		n *= d
	}
	return n, nil
}

// Shape returns a copy of the dimensions.
func (t *Tensor[T]) Shape() []int { return slices.Clone(t.shape) }

// Rank returns the number of dimensions.
func (t *Tensor[T]) Rank() int { return len(t.shape) }

// Len returns the number of elements.
func (t *Tensor[T]) Len() int { return len(t.data) }

// Data returns the backing slice in row-major order.
func (t *Tensor[T]) Data() []T { return t.data }

// Dim returns the extent of axis i.
func (t *Tensor[T]) Dim(i int) int { return t.shape[i] }

// At returns the element at the given coordinates.
func (t *Tensor[T]) At(idx ...int) T {
	return t.data[t.offset(idx)]
}

// Set stores v at the given coordinates.
func (t *Tensor[T]) Set(v T, idx ...int) {
	t.data[t.offset(idx)] = v
}

func (t *Tensor[T]) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: %d indices for rank %d", len(idx), len(t.shape)))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for axis %d of size %d", x, i, t.shape[i]))
		}
		off = off*t.shape[i] + x
	}
	return off
}

// Clone returns a deep copy.
func (t *Tensor[T]) Clone() *Tensor[T] {
	return &Tensor[T]{shape: slices.Clone(t.shape), data: slices.Clone(t.data)}
}

// Reshape returns a tensor sharing t's data with a new shape.
func (t *Tensor[T]) Reshape(shape ...int) (*Tensor[T], error) {
	return New(shape, t.data)
}

// Squeeze returns a tensor sharing t's data with all size-1 axes removed.
func (t *Tensor[T]) Squeeze() *Tensor[T] {
	shape := make([]int, 0, len(t.shape))
	for _, d := range t.shape {
		if d != 1 {
			shape = append(shape, d)
		}
	}
	return &Tensor[T]{shape: shape, data: t.data}
}

// MinMax returns the smallest and largest element. It returns zeros for an
// empty tensor.
func (t *Tensor[T]) MinMax() (lo, hi T) {
	if len(t.data) == 0 {
		return lo, hi
	}
	return slices.Min(t.data), slices.Max(t.data)
}

// ChannelsLast moves axis 0 of a rank-3 tensor to the end when no other axis
// is smaller, turning CHW data into HWC. Other tensors are returned as is.
func (t *Tensor[T]) ChannelsLast() *Tensor[T] {
	if len(t.shape) != 3 {
		return t
	}
	c, h, w := t.shape[0], t.shape[1], t.shape[2]
	if c > h || c > w {
		return t
	}
	out := make([]T, len(t.data))
	for ch := 0; ch < c; ch++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out[(y*w+x)*c+ch] = t.data[(ch*h+y)*w+x]
			}
		}
	}
	return &Tensor[T]{shape: []int{h, w, c}, data: out}
}

// Convert returns a copy of t with elements converted to U.
func Convert[U, T Number](t *Tensor[T]) *Tensor[U] {
	out := make([]U, len(t.data))
	for i, v := range t.data {
		out[i] = U(v)
	}
	return &Tensor[U]{shape: slices.Clone(t.shape), data: out}
}

// FromUint64 converts container dimensions to a tensor shape.
func FromUint64(dims []uint64) []int {
	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = int(d)
	}
	return shape
}
