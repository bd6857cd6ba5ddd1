package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesShape(t *testing.T) {
	_, err := New([]int{2, 3}, []float32{1, 2, 3})
	require.Error(t, err)

	_, err = New([]int{-1, 3}, []float32{})
	require.Error(t, err)

	x, err := New([]int{2, 3}, []float32{0, 1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, x.Shape())
	assert.Equal(t, 2, x.Rank())
	assert.Equal(t, 6, x.Len())
	assert.Equal(t, float32(5), x.At(1, 2))
	assert.Equal(t, float32(3), x.At(1, 0))
}

func TestShapeIsCopied(t *testing.T) {
	shape := []int{2, 2}
	x, err := New(shape, []int32{1, 2, 3, 4})
	require.NoError(t, err)
	shape[0] = 9
	x.Shape()[1] = 9
	assert.Equal(t, []int{2, 2}, x.Shape())
}

func TestCloneIsIndependent(t *testing.T) {
	x := Zeros[float64](2, 2)
	y := x.Clone()
	y.Set(7, 0, 1)
	assert.Equal(t, float64(0), x.At(0, 1))
	assert.Equal(t, float64(7), y.At(0, 1))
}

func TestChannelsLast(t *testing.T) {
	// 2 channels of a 2x3 image
	chw, err := New([]int{2, 2, 3}, []float32{
		0, 1, 2, 3, 4, 5,
		10, 11, 12, 13, 14, 15,
	})
	require.NoError(t, err)

	hwc := chw.ChannelsLast()
	assert.Equal(t, []int{2, 3, 2}, hwc.Shape())
	assert.Equal(t, float32(4), hwc.At(1, 1, 0))
	assert.Equal(t, float32(14), hwc.At(1, 1, 1))
	assert.Equal(t, float32(2), hwc.At(0, 2, 0))

	already, err := New([]int{2, 3, 1}, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Same(t, already, already.ChannelsLast())

	flat := Zeros[float32](6)
	assert.Same(t, flat, flat.ChannelsLast())
}

func TestSqueezeAndReshape(t *testing.T) {
	x := Zeros[uint8](1, 4, 1, 2)
	assert.Equal(t, []int{4, 2}, x.Squeeze().Shape())

	r, err := x.Reshape(8)
	require.NoError(t, err)
	assert.Equal(t, []int{8}, r.Shape())

	_, err = x.Reshape(3)
	assert.Error(t, err)
}

func TestConvertAndMinMax(t *testing.T) {
	x, err := New([]int{3}, []float64{-1.5, 2.25, 0})
	require.NoError(t, err)

	lo, hi := x.MinMax()
	assert.Equal(t, -1.5, lo)
	assert.Equal(t, 2.25, hi)

	f := Convert[float32](x)
	assert.Equal(t, []float32{-1.5, 2.25, 0}, f.Data())

	lo, hi = Zeros[float64](0).MinMax()
	assert.Zero(t, lo)
	assert.Zero(t, hi)

	assert.Equal(t, []int{4, 2}, FromUint64([]uint64{4, 2}))
}
