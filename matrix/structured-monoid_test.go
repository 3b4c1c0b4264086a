package matrix_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-sparseops/matrix"
	"github.com/tsawler/go-sparseops/tensor"
)

func TestStructuredMonoidsTouchStoredValuesOnly(t *testing.T) {
	x := exampleCSR(t)
	tests := []struct {
		name string
		run  func(*tensor.SparseTensor) (tensor.Value, error)
		f    func(float64) float64
	}{
		{"exp", matrix.StructuredExp, math.Exp},
		{"log", matrix.StructuredLog, math.Log},
		{"sigmoid", matrix.StructuredSigmoid, func(v float64) float64 { return 1 / (1 + math.Exp(-v)) }},
		{"pow", func(x *tensor.SparseTensor) (tensor.Value, error) { return matrix.StructuredPow(x, 2) }, func(v float64) float64 { return v * v }},
		{"minimum", func(x *tensor.SparseTensor) (tensor.Value, error) { return matrix.StructuredMinimum(x, 3) }, func(v float64) float64 { return math.Min(v, 3) }},
		{"maximum", func(x *tensor.SparseTensor) (tensor.Value, error) { return matrix.StructuredMaximum(x, 2.5) }, func(v float64) float64 { return math.Max(v, 2.5) }},
		{"add", func(x *tensor.SparseTensor) (tensor.Value, error) { return matrix.StructuredAdd(x, -1) }, func(v float64) float64 { return v - 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.run(x)
			require.NoError(t, err)
			out := v.(*tensor.SparseTensor)
			assert.True(t, x.SamePattern(out), "pattern must be kept")
			want := make([]float64, len(x.Data))
			for k, d := range x.Data {
				want[k] = tt.f(d)
			}
			requireClose(t, want, out.Data, 1e-12)
		})
	}
}

func TestStructuredAddKeepsZerosAsStored(t *testing.T) {
	x := exampleCSR(t)
	v, err := matrix.StructuredAdd(x, -1)
	require.NoError(t, err)
	out := v.(*tensor.SparseTensor)
	// the stored 1 at (0,0) becomes an explicit zero, absent positions stay absent
	assert.Equal(t, 5, out.GetNNZ())
	assert.Equal(t, 0.0, out.Data[0])
	assert.Equal(t, 0.0, out.At(0, 1))
}

func TestStructuredMonoidDTypes(t *testing.T) {
	x := exampleCSR(t).AsType(tensor.Int32)

	out := applySparse(t, matrix.NewStructuredExp(), x)
	assert.Equal(t, tensor.Float64, out.DType)

	out = applySparse(t, matrix.NewStructuredExp(), x.AsType(tensor.Int8))
	assert.Equal(t, tensor.Float32, out.DType)

	// add keeps integer values integral
	out = applySparse(t, matrix.NewStructuredAdd(), x, tensor.Scalar(tensor.Int32, 2))
	assert.Equal(t, tensor.Int32, out.DType)
	assert.Equal(t, []float64{3, 4, 5, 6, 7}, out.Data)

	cplx := exampleCSR(t).AsType(tensor.Complex128)
	_, err := matrix.Apply(matrix.NewStructuredExp(), cplx)
	require.ErrorIs(t, err, matrix.ErrTypeMismatch)

	_, err = matrix.Apply(matrix.NewStructuredPow(), exampleCSR(t))
	require.ErrorIs(t, err, matrix.ErrUsage)

	_, err = matrix.Apply(matrix.NewStructuredExp(), exampleCSR(t).ToDense())
	require.ErrorIs(t, err, matrix.ErrTypeMismatch)
}

func TestStructuredMonoidGrad(t *testing.T) {
	x := exampleCSR(t)
	g := dense(t, 3, 4,
		1, 1, 1, 1,
		1, 1, 1, 1,
		1, 1, 1, 1)

	grads, err := matrix.NewStructuredExp().Grad([]tensor.Value{x}, []tensor.Value{g})
	require.NoError(t, err)
	gx := grads[0].(*tensor.SparseTensor)
	assert.True(t, x.SamePattern(gx))
	want := make([]float64, len(x.Data))
	for k, v := range x.Data {
		want[k] = math.Exp(v)
	}
	requireClose(t, want, gx.Data, 1e-12)

	// d(x**2)/dx = 2x and d(x**y)/dy = sum x**y log x
	y := tensor.Scalar(tensor.Float64, 2)
	grads, err = matrix.NewStructuredPow().Grad([]tensor.Value{x, y}, []tensor.Value{g})
	require.NoError(t, err)
	requireClose(t, []float64{2, 4, 6, 8, 10}, grads[0].(*tensor.SparseTensor).Data, 1e-12)
	var wantY float64
	for _, v := range x.Data {
		wantY += v * v * math.Log(v)
	}
	requireClose(t, []float64{wantY}, grads[1].(*tensor.Tensor).Data, 1e-9)

	// min routes the gradient to whichever side was selected; the tie at 3
	// reaches both sides
	three := tensor.Scalar(tensor.Float64, 3)
	grads, err = matrix.NewStructuredMinimum().Grad([]tensor.Value{x, three}, []tensor.Value{g})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 0, 0}, grads[0].(*tensor.SparseTensor).Data)
	assert.Equal(t, []float64{3}, grads[1].(*tensor.Tensor).Data)

	grads, err = matrix.NewStructuredMaximum().Grad([]tensor.Value{x, three}, []tensor.Value{g})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 1, 1}, grads[0].(*tensor.SparseTensor).Data)
	assert.Equal(t, []float64{3}, grads[1].(*tensor.Tensor).Data)
}

func TestStructuredMonoidGradIgnoresOffPatternGradient(t *testing.T) {
	x := exampleCSR(t)
	// gradient mass at (1,0) is outside x's pattern and must be dropped
	g, err := tensor.NewSparseTensor(tensor.CSR, []int{3, 4}, []float64{2, 9}, []int32{0, 0}, []int32{0, 1, 2, 2})
	require.NoError(t, err)

	grads, err := matrix.NewStructuredAdd().Grad([]tensor.Value{x}, []tensor.Value{g})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0, 0, 0, 0}, grads[0].(*tensor.SparseTensor).Data)

	grads, err = matrix.NewStructuredExp().Grad([]tensor.Value{x.AsType(tensor.Int32)}, []tensor.Value{g})
	require.NoError(t, err)
	assert.Nil(t, grads[0], "integer inputs receive no gradient")
}
