package matrix_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-sparseops/matrix"
	"github.com/tsawler/go-sparseops/tensor"
)

func TestSpSum(t *testing.T) {
	x := exampleCSR(t)
	tests := []struct {
		axis  matrix.Axis
		want  []float64
		shape []int
	}{
		{matrix.AxisNone, []float64{15}, []int{}},
		{matrix.AxisRows, []float64{5, 5, 2, 3}, []int{4}},
		{matrix.AxisCols, []float64{3, 3, 9}, []int{3}},
	}
	for _, tt := range tests {
		for _, format := range []tensor.Format{tensor.CSR, tensor.CSC} {
			op := matrix.NewSpSum(tt.axis, true)
			out := applyDense(t, op, x.ToFormat(format))
			assert.Equal(t, tt.want, out.Data)
			assert.Equal(t, tt.shape, out.Shape)

			shapes, err := op.InferShape(matrix.Shapes(x))
			require.NoError(t, err)
			assert.Equal(t, tt.shape, shapes[0])
		}
	}
}

func TestSpSumIllegalAxis(t *testing.T) {
	op := matrix.NewSpSum(matrix.Axis(2), false)
	_, err := matrix.Apply(op, exampleCSR(t))
	require.ErrorIs(t, err, matrix.ErrUsage)
	_, err = op.OutputTypes(matrix.Types(exampleCSR(t)))
	require.ErrorIs(t, err, matrix.ErrUsage)
}

func TestSpSumStructuredGrad(t *testing.T) {
	x := exampleCSR(t)

	grads, err := matrix.NewSpSum(matrix.AxisRows, true).Grad([]tensor.Value{x},
		[]tensor.Value{tensor.Vector(tensor.Float64, []float64{1, 2, 3, 4})})
	require.NoError(t, err)
	g := grads[0].(*tensor.SparseTensor)
	assert.True(t, x.SamePattern(g))
	assert.Equal(t, []float64{1, 3, 4, 1, 2}, g.Data)

	grads, err = matrix.NewSpSum(matrix.AxisCols, true).Grad([]tensor.Value{x},
		[]tensor.Value{tensor.Vector(tensor.Float64, []float64{1, 2, 3})})
	require.NoError(t, err)
	g = grads[0].(*tensor.SparseTensor)
	assert.True(t, x.SamePattern(g))
	assert.Equal(t, []float64{1, 1, 2, 3, 3}, g.Data)

	grads, err = matrix.NewSpSum(matrix.AxisNone, true).Grad([]tensor.Value{x},
		[]tensor.Value{tensor.Scalar(tensor.Float64, 7)})
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 7, 7, 7, 7}, grads[0].(*tensor.SparseTensor).Data)
}

func TestSpSumRegularGrad(t *testing.T) {
	x := exampleCSR(t)
	grads, err := matrix.NewSpSum(matrix.AxisCols, false).Grad([]tensor.Value{x},
		[]tensor.Value{tensor.Vector(tensor.Float64, []float64{1, 2, 3})})
	require.NoError(t, err)
	g := grads[0].(*tensor.SparseTensor)
	assert.Equal(t, 12, g.GetNNZ())
	assert.Equal(t, []float64{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3}, g.ToDense().Data)

	xi := x.AsType(tensor.Int32)
	grads, err = matrix.NewSpSum(matrix.AxisNone, false).Grad([]tensor.Value{xi},
		[]tensor.Value{tensor.Scalar(tensor.Int32, 1)})
	require.NoError(t, err)
	assert.Nil(t, grads[0])
}

func TestDiagOfSquareDiagonal(t *testing.T) {
	v := tensor.Vector(tensor.Float64, []float64{2, 4, 6})
	sq := applySparse(t, matrix.NewSquareDiagonal(), v)
	assert.Equal(t, tensor.CSC, sq.Format)
	assert.Equal(t, []int{3, 3}, sq.Shape)

	d := applyDense(t, matrix.NewDiag(), sq)
	assert.Equal(t, []float64{2, 4, 6}, d.Data)
}

func TestSquareDiagonalStoresZeros(t *testing.T) {
	sq := applySparse(t, matrix.NewSquareDiagonal(), tensor.Vector(tensor.Float64, []float64{0, 1}))
	assert.Equal(t, 2, sq.GetNNZ())
	assert.Equal(t, []float64{0, 1}, sq.Data)

	shapes, err := matrix.NewSquareDiagonal().InferShape([][]int{{5}})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{5, 5}}, shapes)
}

func TestDiagRejectsNonSquare(t *testing.T) {
	_, err := matrix.Apply(matrix.NewDiag(), exampleCSR(t))
	require.ErrorIs(t, err, matrix.ErrNonSquare)

	_, err = matrix.NewDiag().InferShape([][]int{{3, 4}})
	require.ErrorIs(t, err, matrix.ErrNonSquare)

	shapes, err := matrix.NewDiag().InferShape([][]int{{matrix.Unknown, 4}})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{4}}, shapes)
}

func TestDiagGrads(t *testing.T) {
	v := tensor.Vector(tensor.Float64, []float64{2, 4, 6})
	sq := applySparse(t, matrix.NewSquareDiagonal(), v)

	grads, err := matrix.NewDiag().Grad([]tensor.Value{sq}, []tensor.Value{tensor.Vector(tensor.Float64, []float64{1, 2, 3})})
	require.NoError(t, err)
	g := grads[0].(*tensor.SparseTensor)
	assert.Equal(t, []float64{1, 0, 0, 0, 2, 0, 0, 0, 3}, g.ToDense().Data)

	grads, err = matrix.NewSquareDiagonal().Grad([]tensor.Value{v}, []tensor.Value{g})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, grads[0].(*tensor.Tensor).Data)

	full := dense(t, 3, 3,
		1, 9, 9,
		9, 2, 9,
		9, 9, 3)
	grads, err = matrix.NewSquareDiagonal().Grad([]tensor.Value{v}, []tensor.Value{full})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, grads[0].(*tensor.Tensor).Data)
}

func TestScaleOps(t *testing.T) {
	x := exampleCSR(t)
	c := tensor.Vector(tensor.Float64, []float64{1, 2, 3, 4})
	r := tensor.Vector(tensor.Float64, []float64{10, 20, 30})

	colCSR, err := matrix.ColScale(x, c)
	require.NoError(t, err)
	colCSC, err := matrix.ColScale(x.ConvertToCSC(), c)
	require.NoError(t, err)
	assert.Equal(t, tensor.CSR, colCSR.Format)
	assert.Equal(t, []float64{1, 6, 12, 4, 10}, colCSR.Data)
	assert.Equal(t, colCSR.ToDense().Data, colCSC.ToDense().Data)

	row, err := matrix.RowScale(x, r)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 60, 120, 150}, row.Data)
}

func TestRowAndColScaleCommute(t *testing.T) {
	rng := newRNG(11)
	x := randomSparse(t, rng, tensor.CSC, 6, 5, 0.5)
	c := tensor.Vector(tensor.Float64, randomDense(rng, 1, 5).Data)
	r := tensor.Vector(tensor.Float64, randomDense(rng, 1, 6).Data)

	a, err := matrix.ColScale(x, c)
	require.NoError(t, err)
	a, err = matrix.RowScale(a, r)
	require.NoError(t, err)

	b, err := matrix.RowScale(x, r)
	require.NoError(t, err)
	b, err = matrix.ColScale(b, c)
	require.NoError(t, err)

	requireClose(t, a.ToDense().Data, b.ToDense().Data, 1e-12)
}

func TestScaleCSCKernelsValidate(t *testing.T) {
	x := exampleCSR(t)
	c := tensor.Vector(tensor.Float64, []float64{1, 2, 3, 4})

	_, err := matrix.Apply(matrix.NewColScaleCSC(), x, c)
	require.ErrorIs(t, err, matrix.ErrUnsupportedLayout)

	_, err = matrix.Apply(matrix.NewColScaleCSC(), x.ConvertToCSC(), tensor.Vector(tensor.Float64, []float64{1, 2}))
	require.ErrorIs(t, err, matrix.ErrShapeMismatch)

	_, err = matrix.Apply(matrix.NewRowScaleCSC(), x.ConvertToCSC(), c)
	require.ErrorIs(t, err, matrix.ErrShapeMismatch)
}

func TestScaleGrad(t *testing.T) {
	x := exampleCSR(t).ConvertToCSC()
	c := tensor.Vector(tensor.Float64, []float64{1, 2, 3, 4})

	grads, err := matrix.NewColScaleCSC().Grad([]tensor.Value{x, c}, []tensor.Value{matrix.SpOnesLike(x)})
	require.NoError(t, err)
	gx := grads[0].(*tensor.SparseTensor)
	assert.True(t, x.SamePattern(gx))
	assert.Equal(t, []float64{1, 0, 3, 0, 0, 0, 0, 4, 1, 2, 0, 0}, gx.ToDense().Data)
	// gradient of the scale vector is the column sums of x
	assert.Equal(t, []float64{5, 5, 2, 3}, grads[1].(*tensor.Tensor).Data)

	r := tensor.Vector(tensor.Float64, []float64{1, 1, 1})
	grads, err = matrix.NewRowScaleCSC().Grad([]tensor.Value{x, r}, []tensor.Value{matrix.SpOnesLike(x)})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 9}, grads[1].(*tensor.Tensor).Data)
}
