package matrix_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-sparseops/matrix"
	"github.com/tsawler/go-sparseops/tensor"
)

func TestVerifyGrad(t *testing.T) {
	rng := newRNG(7)
	xr := randomSparse(t, rng, tensor.CSR, 5, 4, 0.5)
	xc := randomSparse(t, rng, tensor.CSC, 5, 4, 0.5)
	yr := randomSparse(t, rng, tensor.CSR, 5, 4, 0.5)
	d54 := randomDense(rng, 5, 4)
	d43 := randomDense(rng, 4, 3)
	d53 := randomDense(rng, 5, 3)
	d43b := randomDense(rng, 4, 3)
	p := randomSparse(t, rng, tensor.CSR, 5, 4, 0.5)
	cols := tensor.Vector(tensor.Float64, []float64{0.5, -1, 2, 1.5})
	rows := tensor.Vector(tensor.Float64, []float64{1, 2, -0.5, 3, 0.25})
	positive := exampleCSR(t)

	tests := []struct {
		name       string
		op         matrix.Op
		in         []tensor.Value
		structured bool
		inputs     []int
	}{
		{"structured dot", matrix.NewStructuredDot(), []tensor.Value{xc, d43}, true, nil},
		{"structured dot csr kernel", matrix.NewStructuredDotCSR(), []tensor.Value{xr, d43}, true, nil},
		{"dot", matrix.NewDot(), []tensor.Value{xr, d43}, false, nil},
		{"dot sparse sparse", matrix.NewDot(), []tensor.Value{xr, yr.T()}, false, nil},
		{"add", matrix.NewAddSS(), []tensor.Value{xr, yr}, false, nil},
		{"add structured", matrix.NewAddSS(), []tensor.Value{xr, yr}, true, nil},
		{"add sparse dense", matrix.NewAddSD(), []tensor.Value{xr, d54}, true, nil},
		{"mul sparse dense",matrix.NewMulSD(), []tensor.Value{xr, d54}, true, nil},
		{"mul sparse dense dense", matrix.NewMulSD(), []tensor.Value{xr, d54}, false, nil},
		{"mul sparse vector", matrix.NewMulSV(), []tensor.Value{xr, cols}, true, nil},
		{"structured add vector", matrix.NewStructuredAddSV(), []tensor.Value{xr, cols}, true, nil},
		{"neg", matrix.NewNeg(), []tensor.Value{xc}, false, nil},
		{"transpose", matrix.NewTranspose(), []tensor.Value{xr}, true, nil},
		{"sum", matrix.NewSpSum(matrix.AxisNone, false), []tensor.Value{xr}, false, nil},
		{"sum rows structured", matrix.NewSpSum(matrix.AxisRows, true), []tensor.Value{xc}, true, nil},
		{"sum cols", matrix.NewSpSum(matrix.AxisCols, false), []tensor.Value{xr}, false, nil},
		{"col scale", matrix.NewColScaleCSC(), []tensor.Value{xc, cols}, true, nil},
		{"row scale", matrix.NewRowScaleCSC(), []tensor.Value{xc, rows}, true, nil},
		{"sampling dot", matrix.NewSamplingDot(), []tensor.Value{d53, d43b, p}, true, []int{0, 1}},
		{"to dense", matrix.NewDenseFromSparse(true), []tensor.Value{xr}, true, nil},
		{"exp", matrix.NewStructuredExp(), []tensor.Value{xr}, true, nil},
		{"sigmoid", matrix.NewStructuredSigmoid(), []tensor.Value{xc}, true, nil},
		{"log", matrix.NewStructuredLog(), []tensor.Value{positive}, true, nil},
		{"pow", matrix.NewStructuredPow(), []tensor.Value{positive, tensor.Scalar(tensor.Float64, 1.5)}, true, nil},
		{"maximum", matrix.NewStructuredMaximum(), []tensor.Value{positive, tensor.Scalar(tensor.Float64, 2.5)}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := matrix.VerifyGrad(tt.op, tt.in, matrix.VerifyGradOptions{
				Structured: tt.structured,
				Src:        rand.NewPCG(11, 12),
				Inputs:     tt.inputs,
			})
			require.NoError(t, err)
		})
	}
}

// negatedGrad reports the gradient of its wrapped operator with the wrong sign.
type negatedGrad struct{ matrix.Op }

func (o negatedGrad) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return []tensor.Value{gout[0]}, nil
}

func TestVerifyGradDetectsWrongGradient(t *testing.T) {
	x := exampleCSR(t)
	err := matrix.VerifyGrad(negatedGrad{matrix.NewNeg()}, []tensor.Value{x}, matrix.VerifyGradOptions{})
	require.ErrorIs(t, err, matrix.ErrGradientCheck)
}

func TestVerifyGradRejectsIntegerInputs(t *testing.T) {
	x := exampleCSR(t).AsType(tensor.Int32)
	err := matrix.VerifyGrad(matrix.NewNeg(), []tensor.Value{x}, matrix.VerifyGradOptions{Inputs: []int{0}})
	require.ErrorIs(t, err, matrix.ErrTypeMismatch)

	err = matrix.VerifyGrad(matrix.NewNeg(), []tensor.Value{exampleCSR(t)}, matrix.VerifyGradOptions{Inputs: []int{3}})
	require.ErrorIs(t, err, matrix.ErrUsage)
}
