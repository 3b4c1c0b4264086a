package tensor

import (
	"fmt"
	"slices"
)

// Type is the static type of an operator input or output: (dtype, format)
// for sparse values and (dtype, rank) for dense ones.
type Type struct {
	Sparse bool
	DType  DType
	Format Format // sparse only
	Rank   int    // dense only; sparse values are always rank 2
}

func (t Type) String() string {
	if t.Sparse {
		return fmt.Sprintf("sparse(%s, %s)", t.Format, t.DType)
	}
	return fmt.Sprintf("dense(%s, rank %d)", t.DType, t.Rank)
}

// SparseType and DenseType build Types for the two kinds of values.
func SparseType(format Format, dtype DType) Type {
	return Type{Sparse: true, DType: dtype, Format: format, Rank: 2}
}

func DenseType(dtype DType, rank int) Type {
	return Type{DType: dtype, Rank: rank}
}

// Value is anything an operator consumes or produces: *Tensor or *SparseTensor.
type Value interface {
	Type() Type
	Dims() []int
}

// Tensor is a dense row-major array of rank 0, 1 or 2. Complex dtypes keep
// their imaginary parts in Imag, which is nil for every other dtype.
type Tensor struct {
	Shape []int
	DType DType
	Data  []float64
	Imag  []float64
}

// NewTensor creates a float64 tensor over a copy of data.
func NewTensor(shape []int, data []float64) (*Tensor, error) {
	return NewTypedTensor(Float64, shape, data)
}

// NewTypedTensor creates a tensor of the given dtype over a normalized copy of data.
func NewTypedTensor(dtype DType, shape []int, data []float64) (*Tensor, error) {
	if dtype.IsComplex() {
		return NewComplexTensor(dtype, shape, data, nil)
	}
	return newTensor(dtype, shape, data, nil)
}

// NewComplexTensor creates a complex tensor from real and imaginary parts.
// A nil imag means all imaginary parts are zero.
func NewComplexTensor(dtype DType, shape []int, re, im []float64) (*Tensor, error) {
	if !dtype.IsComplex() {
		return nil, errorf("NewComplexTensor", ErrTypeMismatch, "dtype %s is not complex", dtype)
	}
	if im == nil {
		im = make([]float64, len(re))
	}
	return newTensor(dtype, shape, re, im)
}

func newTensor(dtype DType, shape []int, re, im []float64) (*Tensor, error) {
	if !dtype.Valid() {
		return nil, errorf("NewTensor", ErrTypeMismatch, "invalid dtype %s", dtype)
	}
	if len(shape) > 2 {
		return nil, errorf("NewTensor", ErrTypeMismatch, "dense tensors support rank <= 2, got %d", len(shape))
	}
	size := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, errorf("NewTensor", ErrShapeMismatch, "negative dimension in shape %v", shape)
		}
		size *= dim
	}
	if len(re) != size {
		return nil, errorf("NewTensor", ErrShapeMismatch, "data length %d does not match shape %v (size %d)", len(re), shape, size)
	}
	if im != nil && len(im) != size {
		return nil, errorf("NewTensor", ErrShapeMismatch, "imaginary length %d does not match shape %v", len(im), shape)
	}
	t := &Tensor{Shape: slices.Clone(shape), DType: dtype, Data: slices.Clone(re)}
	if t.Shape == nil {
		t.Shape = []int{}
	}
	dtype.NormalizeSlice(t.Data)
	if im != nil {
		t.Imag = slices.Clone(im)
		dtype.NormalizeSlice(t.Imag)
	}
	return t, nil
}

// Zeros returns a zero-filled tensor.
func Zeros(dtype DType, shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	t := &Tensor{Shape: append([]int{}, shape...), DType: dtype, Data: make([]float64, size)}
	if dtype.IsComplex() {
		t.Imag = make([]float64, size)
	}
	return t
}

// Scalar returns a rank-0 tensor holding v.
func Scalar(dtype DType, v float64) *Tensor {
	t := Zeros(dtype)
	t.Data[0] = dtype.Normalize(v)
	return t
}

// Vector returns a rank-1 tensor over a normalized copy of values.
func Vector(dtype DType, values []float64) *Tensor {
	t := Zeros(dtype, len(values))
	copy(t.Data, values)
	dtype.NormalizeSlice(t.Data)
	return t
}

// IndexVector returns an int32 rank-1 tensor holding the given indices.
func IndexVector(indices []int32) *Tensor {
	t := Zeros(Int32, len(indices))
	for i, v := range indices {
		t.Data[i] = float64(v)
	}
	return t
}

func (t *Tensor) Type() Type { return DenseType(t.DType, len(t.Shape)) }

func (t *Tensor) Dims() []int { return t.Shape }

func (t *Tensor) Rank() int { return len(t.Shape) }

// Size returns the number of elements.
func (t *Tensor) Size() int { return len(t.Data) }

func (t *Tensor) IsComplex() bool { return t.DType.IsComplex() }

// Rows and Cols view t as a matrix; rank-1 tensors are a single row.
func (t *Tensor) Rows() int {
	if len(t.Shape) < 2 {
		return 1
	}
	return t.Shape[0]
}

func (t *Tensor) Cols() int {
	switch len(t.Shape) {
	case 0:
		return 1
	case 1:
		return t.Shape[0]
	}
	return t.Shape[1]
}

// At returns the real part of the element at (i, j) of a rank-2 tensor.
func (t *Tensor) At(i, j int) float64 {
	return t.Data[i*t.Cols()+j]
}

// Item returns the single element of a size-1 tensor.
func (t *Tensor) Item() (float64, error) {
	if len(t.Data) != 1 {
		return 0, errorf("Item", ErrShapeMismatch, "tensor of shape %v is not a scalar", t.Shape)
	}
	return t.Data[0], nil
}

// Ints returns the elements as ints, for index-valued tensors.
func (t *Tensor) Ints() []int {
	out := make([]int, len(t.Data))
	for i, v := range t.Data {
		out[i] = int(v)
	}
	return out
}

// Int32s returns the elements as int32 values.
func (t *Tensor) Int32s() []int32 {
	out := make([]int32, len(t.Data))
	for i, v := range t.Data {
		out[i] = int32(v)
	}
	return out
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Shape: slices.Clone(t.Shape),
		DType: t.DType,
		Data:  slices.Clone(t.Data),
		Imag:  slices.Clone(t.Imag),
	}
}

// AsType returns a copy converted to dtype. Casting complex values to a real
// dtype discards the imaginary part.
func (t *Tensor) AsType(dtype DType) *Tensor {
	out := &Tensor{Shape: slices.Clone(t.Shape), DType: dtype, Data: slices.Clone(t.Data)}
	dtype.NormalizeSlice(out.Data)
	if dtype.IsComplex() {
		if t.Imag != nil {
			out.Imag = slices.Clone(t.Imag)
			dtype.NormalizeSlice(out.Imag)
		} else {
			out.Imag = make([]float64, len(t.Data))
		}
	}
	return out
}

// As2D returns a view of t with rank 0 and 1 expanded to rank 2: a scalar
// becomes 1x1 and a vector of length n becomes 1xn.
func (t *Tensor) As2D() (*Tensor, error) {
	switch len(t.Shape) {
	case 2:
		return t, nil
	case 1:
		return &Tensor{Shape: []int{1, t.Shape[0]}, DType: t.DType, Data: t.Data, Imag: t.Imag}, nil
	case 0:
		return &Tensor{Shape: []int{1, 1}, DType: t.DType, Data: t.Data, Imag: t.Imag}, nil
	}
	return nil, errorf("As2D", ErrTypeMismatch, "rank %d tensors cannot be viewed as matrices", len(t.Shape))
}

// Reshape returns a view of t with a new shape of the same size.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	if size != len(t.Data) || len(shape) > 2 {
		return nil, errorf("Reshape", ErrShapeMismatch, "cannot reshape %v into %v", t.Shape, shape)
	}
	return &Tensor{Shape: append([]int{}, shape...), DType: t.DType, Data: t.Data, Imag: t.Imag}, nil
}

// Transpose returns a transposed copy of a rank-2 tensor. Lower ranks are
// returned as copies unchanged.
func (t *Tensor) Transpose() *Tensor {
	if len(t.Shape) != 2 {
		return t.Clone()
	}
	rows, cols := t.Shape[0], t.Shape[1]
	out := Zeros(t.DType, cols, rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Data[j*rows+i] = t.Data[i*cols+j]
			if t.Imag != nil {
				out.Imag[j*rows+i] = t.Imag[i*cols+j]
			}
		}
	}
	return out
}

// SameShape reports whether t and other have identical shapes.
func (t *Tensor) SameShape(other *Tensor) bool {
	return slices.Equal(t.Shape, other.Shape)
}

func (t *Tensor) String() string {
	if t.Imag != nil {
		return fmt.Sprintf("Tensor(%s, %v, re=%v, im=%v)", t.DType, t.Shape, t.Data, t.Imag)
	}
	return fmt.Sprintf("Tensor(%s, %v, %v)", t.DType, t.Shape, t.Data)
}
