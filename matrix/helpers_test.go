package matrix_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-sparseops/matrix"
	"github.com/tsawler/go-sparseops/tensor"
)

// 3x4 matrix
//
//	[1 0 2 0]
//	[0 0 0 3]
//	[4 5 0 0]
func exampleCSR(t *testing.T) *tensor.SparseTensor {
	t.Helper()
	st, err := tensor.NewSparseTensor(tensor.CSR, []int{3, 4},
		[]float64{1, 2, 3, 4, 5},
		[]int32{0, 2, 3, 0, 1},
		[]int32{0, 2, 3, 5})
	require.NoError(t, err)
	return st
}

func dense(t *testing.T, rows, cols int, data ...float64) *tensor.Tensor {
	t.Helper()
	d, err := tensor.NewTensor([]int{rows, cols}, data)
	require.NoError(t, err)
	return d
}

// randomSparse returns a float64 matrix with roughly density*rows*cols
// stored entries drawn from [-1, 1).
func randomSparse(t *testing.T, rng *rand.Rand, format tensor.Format, rows, cols int, density float64) *tensor.SparseTensor {
	t.Helper()
	d := tensor.Zeros(tensor.Float64, rows, cols)
	for i := range d.Data {
		if rng.Float64() < density {
			d.Data[i] = 2*rng.Float64() - 1
		}
	}
	st, err := tensor.NewSparseTensorFromDense(d, format, 0)
	require.NoError(t, err)
	return st
}

func randomDense(rng *rand.Rand, rows, cols int) *tensor.Tensor {
	d := tensor.Zeros(tensor.Float64, rows, cols)
	for i := range d.Data {
		d.Data[i] = 2*rng.Float64() - 1
	}
	return d
}

func newRNG(seed uint64) *rand.Rand { return rand.New(rand.NewPCG(seed, seed+1)) }

func apply(t *testing.T, op matrix.Op, in ...tensor.Value) tensor.Value {
	t.Helper()
	out, err := matrix.Apply(op, in...)
	require.NoError(t, err)
	return out
}

func applySparse(t *testing.T, op matrix.Op, in ...tensor.Value) *tensor.SparseTensor {
	t.Helper()
	out, ok := apply(t, op, in...).(*tensor.SparseTensor)
	require.True(t, ok, "expected a sparse result")
	return out
}

func applyDense(t *testing.T, op matrix.Op, in ...tensor.Value) *tensor.Tensor {
	t.Helper()
	out, ok := apply(t, op, in...).(*tensor.Tensor)
	require.True(t, ok, "expected a dense result")
	return out
}

// requireClose compares two value slices with a relative tolerance.
func requireClose(t *testing.T, want, got []float64, tol float64) {
	t.Helper()
	require.Len(t, got, len(want))
	require.True(t, floats.EqualApprox(want, got, tol), "want %v\ngot  %v", want, got)
}

func denseOf(v tensor.Value) *tensor.Tensor {
	if st, ok := v.(*tensor.SparseTensor); ok {
		return st.ToDense()
	}
	return v.(*tensor.Tensor)
}
