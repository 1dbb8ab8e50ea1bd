package syncnorm

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Tensor is a minimal host-side tensor holding the activations and gradients
// the operator works on. The layout is [batch, channels] or
// [batch, channels, height, width]; the channel axis is always axis 1.
//
// Values are stored as float32 regardless of the declared dtype: F16 inputs
// are widened on ingest and narrowed back by Float16Data, so all statistics
// and aggregation stay in single precision. F64 is rejected.
type Tensor struct {
	dtype dtypes.DType
	dims  []int
	data  []float32
}

func checkDims(dims []int) error {
	if len(dims) != 2 && len(dims) != 4 {
		return errors.Errorf("tensor must be [batch, channels] or [batch, channels, height, width], got %d axes", len(dims))
	}
	for i, dim := range dims {
		if dim < 1 {
			return errors.Errorf("tensor axis %d has invalid dimension %d", i, dim)
		}
	}
	return nil
}

func numElements(dims []int) int {
	n := 1
	for _, dim := range dims {
		n *= dim
	}
	return n
}

// NewTensor creates a zero-initialized F32 tensor with the given dimensions.
func NewTensor(dims ...int) (*Tensor, error) {
	if err := checkDims(dims); err != nil {
		return nil, err
	}
	return &Tensor{
		dtype: dtypes.F32,
		dims:  slices.Clone(dims),
		data:  make([]float32, numElements(dims)),
	}, nil
}

// TensorFromFlat creates an F32 tensor that takes ownership of data, which
// must be in row-major order and match the given dimensions.
func TensorFromFlat(data []float32, dims ...int) (*Tensor, error) {
	if err := checkDims(dims); err != nil {
		return nil, err
	}
	if len(data) != numElements(dims) {
		return nil, errors.Errorf("data has %d elements, dimensions %v require %d", len(data), dims, numElements(dims))
	}
	return &Tensor{dtype: dtypes.F32, dims: slices.Clone(dims), data: data}, nil
}

// TensorFromFloat16 creates a tensor from half-precision data, widened to
// float32 for all computation. The tensor remembers its F16 dtype so outputs
// derived from it convert back with Float16Data.
func TensorFromFloat16(data []float16.Float16, dims ...int) (*Tensor, error) {
	if err := checkDims(dims); err != nil {
		return nil, err
	}
	if len(data) != numElements(dims) {
		return nil, errors.Errorf("data has %d elements, dimensions %v require %d", len(data), dims, numElements(dims))
	}
	widened := make([]float32, len(data))
	for i, h := range data {
		widened[i] = h.Float32()
	}
	return &Tensor{dtype: dtypes.F16, dims: slices.Clone(dims), data: widened}, nil
}

// DType returns the tensor's declared element type (F32 or F16).
func (t *Tensor) DType() dtypes.DType { return t.dtype }

// Dims returns a copy of the tensor's dimensions.
func (t *Tensor) Dims() []int { return slices.Clone(t.dims) }

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int { return len(t.data) }

// Batch returns the size of the batch axis (axis 0) — the device's local
// shard size, not the global batch.
func (t *Tensor) Batch() int { return t.dims[0] }

// Channels returns the size of the channel axis (axis 1).
func (t *Tensor) Channels() int { return t.dims[1] }

// spatial returns the number of elements per (batch, channel) pair: 1 for 2D
// tensors, height*width for 4D.
func (t *Tensor) spatial() int {
	if len(t.dims) == 2 {
		return 1
	}
	return t.dims[2] * t.dims[3]
}

// Data returns the underlying float32 storage in row-major order.
// Mutations are visible to the tensor.
func (t *Tensor) Data() []float32 { return t.data }

// Float16Data returns the tensor's values narrowed to half precision.
func (t *Tensor) Float16Data() []float16.Float16 {
	out := make([]float16.Float16, len(t.data))
	for i, v := range t.data {
		out[i] = float16.Fromfloat32(v)
	}
	return out
}

// newLike creates a zero tensor with the same dimensions and dtype as t.
func newLike(t *Tensor) *Tensor {
	return &Tensor{
		dtype: t.dtype,
		dims:  slices.Clone(t.dims),
		data:  make([]float32, len(t.data)),
	}
}

// sameShape reports whether a and b have identical dimensions.
func sameShape(a, b *Tensor) bool {
	return slices.Equal(a.dims, b.dims)
}

// forEachChannelBlock calls visit once per (batch, channel) pair with the
// contiguous block of that pair's values. The channel-axis-1 layout makes
// each block a contiguous run of spatial() elements.
func (t *Tensor) forEachChannelBlock(visit func(channel int, block []float32)) {
	spatial := t.spatial()
	i := 0
	for n := 0; n < t.dims[0]; n++ {
		for c := 0; c < t.dims[1]; c++ {
			visit(c, t.data[i:i+spatial])
			i += spatial
		}
	}
}
