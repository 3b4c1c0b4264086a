package matrix_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-sparseops/matrix"
	"github.com/tsawler/go-sparseops/tensor"
)

// [0 1 -2 0]
// [0 0  0 0]
// [1 0  0 6]
func otherCSR(t *testing.T) *tensor.SparseTensor {
	t.Helper()
	d := dense(t, 3, 4,
		0, 1, -2, 0,
		0, 0, 0, 0,
		1, 0, 0, 6)
	return applySparse(t, matrix.NewSparseFromDense(tensor.CSR), d)
}

func TestTransposeIsAView(t *testing.T) {
	x := exampleCSR(t)
	xt := applySparse(t, matrix.NewTranspose(), x)

	assert.Equal(t, tensor.CSC, xt.Format)
	assert.Equal(t, []int{4, 3}, xt.Shape)
	assert.Same(t, &x.Data[0], &xt.Data[0])
	assert.Equal(t, x.ToDense().Transpose().Data, xt.ToDense().Data)
	assert.Equal(t, []matrix.Alias{{Output: 0, Input: 0, Kind: matrix.AliasView}}, matrix.NewTranspose().Aliasing())

	grads, err := matrix.NewTranspose().Grad([]tensor.Value{x}, []tensor.Value{xt})
	require.NoError(t, err)
	gx := grads[0].(*tensor.SparseTensor)
	assert.Equal(t, tensor.CSR, gx.Format)
	assert.Equal(t, []int{3, 4}, gx.Shape)
}

func TestNeg(t *testing.T) {
	x := exampleCSR(t)
	out := applySparse(t, matrix.NewNeg(), x)
	assert.Equal(t, []float64{-1, -2, -3, -4, -5}, out.Data)
	assert.True(t, x.SamePattern(out))

	grads, err := matrix.NewNeg().Grad([]tensor.Value{x}, []tensor.Value{dense(t, 1, 2, 1, -1)})
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 1}, grads[0].(*tensor.Tensor).Data)
}

func TestAddSS(t *testing.T) {
	x, y := exampleCSR(t), otherCSR(t)
	out := applySparse(t, matrix.NewAddSS(), x, y)

	// (0,2) cancels and is not stored
	assert.Equal(t, []float64{1, 1, 3, 5, 5, 6}, out.Data)
	assert.Equal(t, []int32{0, 1, 3, 0, 1, 3}, out.Indices)
	assert.Equal(t, []int32{0, 2, 3, 6}, out.Indptr)

	sum, err := matrix.Add(x, y)
	require.NoError(t, err)
	assert.Equal(t, out.Data, sum.(*tensor.SparseTensor).Data)

	grads, err := matrix.NewAddSS().Grad([]tensor.Value{x, y}, []tensor.Value{out})
	require.NoError(t, err)
	assert.Same(t, out, grads[0])
	assert.Same(t, out, grads[1])
}

func TestAddSSComplex(t *testing.T) {
	x, err := tensor.NewTypedSparseTensor(tensor.CSR, tensor.Complex128, []int{1, 2},
		[]float64{1, 2}, []float64{3, -4}, []int32{0, 1}, []int32{0, 2})
	require.NoError(t, err)
	out := applySparse(t, matrix.NewAddSS(), x, x)
	assert.Equal(t, []float64{2, 4}, out.Data)
	assert.Equal(t, []float64{6, -8}, out.Imag)
}

func TestSubSelfIsEmpty(t *testing.T) {
	x := exampleCSR(t)
	out, err := matrix.Sub(x, x)
	require.NoError(t, err)
	assert.Equal(t, 0, out.(*tensor.SparseTensor).GetNNZ())

	d := dense(t, 3, 4,
		1, 1, 1, 1,
		1, 1, 1, 1,
		1, 1, 1, 1)
	diff, err := matrix.Sub(x, d)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, -1, 1, -1, -1, -1, -1, 2, 3, 4, -1, -1}, diff.(*tensor.Tensor).Data)
}

func TestElementwiseRejectsMismatchedOperands(t *testing.T) {
	x := exampleCSR(t)
	tests := []struct {
		name string
		op   matrix.Op
		in   []tensor.Value
		want error
	}{
		{"add format", matrix.NewAddSS(), []tensor.Value{x, x.ConvertToCSC()}, matrix.ErrTypeMismatch},
		{"mul format", matrix.NewMulSS(), []tensor.Value{x, x.ConvertToCSC()}, matrix.ErrTypeMismatch},
		{"add dtype", matrix.NewAddSS(), []tensor.Value{x, x.AsType(tensor.Float32)}, matrix.ErrTypeMismatch},
		{"add shape", matrix.NewAddSS(), []tensor.Value{x, tensor.EmptySparse(tensor.CSR, tensor.Float64, 4, 3)}, matrix.ErrShapeMismatch},
		{"add dense", matrix.NewAddSS(), []tensor.Value{x, x.ToDense()}, matrix.ErrTypeMismatch},
		{"mul_s_d vector", matrix.NewMulSD(), []tensor.Value{x, tensor.Vector(tensor.Float64, []float64{1, 2, 3, 4})}, matrix.ErrTypeMismatch},
		{"mul_s_d widening", matrix.NewMulSD(), []tensor.Value{x.AsType(tensor.Float32), x.ToDense()}, matrix.ErrTypeMismatch},
		{"mul_s_v length", matrix.NewMulSV(), []tensor.Value{x, tensor.Vector(tensor.Float64, []float64{1, 2, 3})}, matrix.ErrShapeMismatch},
		{"mul_s_v dtype", matrix.NewMulSV(), []tensor.Value{x, tensor.Vector(tensor.Float32, []float64{1, 2, 3, 4})}, matrix.ErrTypeMismatch},
		{"add_s_d dtype", matrix.NewAddSD(), []tensor.Value{x, x.ToDense().AsType(tensor.Float32)}, matrix.ErrTypeMismatch},
		{"add_s_s_data nnz", matrix.NewAddSSData(), []tensor.Value{x, otherCSR(t)}, matrix.ErrShapeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := matrix.Apply(tt.op, tt.in...)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAddSSData(t *testing.T) {
	x := exampleCSR(t)
	out := applySparse(t, matrix.NewAddSSData(), x, x)
	assert.Equal(t, []float64{2, 4, 6, 8, 10}, out.Data)

	xi := x.AsType(tensor.Int32)
	grads, err := matrix.NewAddSSData().Grad([]tensor.Value{x, xi}, []tensor.Value{out})
	require.NoError(t, err)
	assert.Same(t, out, grads[0])
	assert.Nil(t, grads[1])
}

func TestAddSD(t *testing.T) {
	x := exampleCSR(t)
	d := dense(t, 3, 4,
		1, 1, 1, 1,
		1, 1, 1, 1,
		1, 1, 1, 1)
	out := applyDense(t, matrix.NewAddSD(), x, d)
	assert.Equal(t, []float64{2, 1, 3, 1, 1, 1, 1, 4, 5, 6, 1, 1}, out.Data)

	sum, err := matrix.Add(d, x)
	require.NoError(t, err)
	assert.Equal(t, out.Data, sum.(*tensor.Tensor).Data)

	grads, err := matrix.NewAddSD().Grad([]tensor.Value{x, d}, []tensor.Value{d})
	require.NoError(t, err)
	gx := grads[0].(*tensor.SparseTensor)
	assert.True(t, x.SamePattern(gx))
	assert.Equal(t, []float64{1, 1, 1, 1, 1}, gx.Data)
	assert.Same(t, d, grads[1])
}

func TestMulSS(t *testing.T) {
	x, y := exampleCSR(t), otherCSR(t)
	out := applySparse(t, matrix.NewMulSS(), x, y)
	assert.Equal(t, []float64{-4, 4}, out.Data)
	assert.Equal(t, []int32{2, 0}, out.Indices)
	assert.Equal(t, []int32{0, 1, 1, 2}, out.Indptr)

	grads, err := matrix.NewMulSS().Grad([]tensor.Value{x, y}, []tensor.Value{matrix.SpOnesLike(x)})
	require.NoError(t, err)
	// gx = y * gz, gy = x * gz
	assert.Equal(t, []float64{-2, 1}, grads[0].(*tensor.SparseTensor).Data)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, grads[1].(*tensor.SparseTensor).Data)
}

func TestMulSD(t *testing.T) {
	x := exampleCSR(t)
	d := dense(t, 3, 4,
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12)
	out := applySparse(t, matrix.NewMulSD(), x, d)
	assert.True(t, x.SamePattern(out))
	assert.Equal(t, []float64{1, 6, 24, 36, 50}, out.Data)

	scaled := applySparse(t, matrix.NewMulSD(), x, tensor.Scalar(tensor.Float64, 2))
	assert.Equal(t, []float64{2, 4, 6, 8, 10}, scaled.Data)

	grads, err := matrix.NewMulSD().Grad([]tensor.Value{x, d}, []tensor.Value{matrix.SpOnesLike(x)})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 8, 9, 10}, grads[0].(*tensor.SparseTensor).Data)
	assert.Equal(t, x.ToDense().Data, grads[1].(*tensor.Tensor).Data)

	grads, err = matrix.NewMulSD().Grad([]tensor.Value{x, tensor.Scalar(tensor.Float64, 2)}, []tensor.Value{matrix.SpOnesLike(x)})
	require.NoError(t, err)
	assert.Equal(t, []float64{15}, grads[1].(*tensor.Tensor).Data)
}

func TestMulSV(t *testing.T) {
	x := exampleCSR(t)
	y := tensor.Vector(tensor.Float64, []float64{1, 2, 3, 4})
	out := applySparse(t, matrix.NewMulSV(), x, y)
	assert.True(t, x.SamePattern(out))
	assert.Equal(t, []float64{1, 6, 12, 4, 10}, out.Data)

	// Mul with a dense vector broadcasts through MulSV
	viaMul, err := matrix.Mul(x, y)
	require.NoError(t, err)
	assert.Equal(t, out.Data, viaMul.(*tensor.SparseTensor).Data)

	grads, err := matrix.NewMulSV().Grad([]tensor.Value{x, y}, []tensor.Value{matrix.SpOnesLike(x)})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 4, 1, 2}, grads[0].(*tensor.SparseTensor).Data)
	assert.Equal(t, []float64{5, 5, 2, 3}, grads[1].(*tensor.Tensor).Data)
}

func TestStructuredAddSV(t *testing.T) {
	x := exampleCSR(t)
	y := tensor.Vector(tensor.Float64, []float64{1, 2, 3, 4})
	out := applySparse(t, matrix.NewStructuredAddSV(), x, y)
	assert.True(t, x.SamePattern(out))
	assert.Equal(t, []float64{2, 5, 7, 5, 7}, out.Data)

	grads, err := matrix.NewStructuredAddSV().Grad([]tensor.Value{x, y}, []tensor.Value{matrix.SpOnesLike(x)})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1, 1}, grads[0].(*tensor.SparseTensor).Data)
	assert.Equal(t, []float64{2, 1, 1, 1}, grads[1].(*tensor.Tensor).Data)
}

func TestValuesHelpers(t *testing.T) {
	x := exampleCSR(t)
	ones := matrix.SpOnesLike(x)
	assert.True(t, x.SamePattern(ones))
	assert.Equal(t, []float64{1, 1, 1, 1, 1}, ones.Data)

	zeros := matrix.SpZerosLike(x)
	assert.Equal(t, 0, zeros.GetNNZ())
	assert.Equal(t, x.Shape, zeros.Shape)
	assert.Equal(t, x.Format, zeros.Format)
}
