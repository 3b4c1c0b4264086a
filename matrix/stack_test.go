package matrix_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-sparseops/matrix"
	"github.com/tsawler/go-sparseops/tensor"
)

func TestHStack(t *testing.T) {
	a := exampleCSR(t)
	b, err := tensor.NewSparseTensor(tensor.CSC, []int{3, 1}, []float64{7}, []int32{1}, []int32{0, 1})
	require.NoError(t, err)

	out, err := matrix.HStack([]*tensor.SparseTensor{a, b}, tensor.CSR, tensor.InvalidDType)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5}, out.Shape)
	assert.Equal(t, tensor.CSR, out.Format)
	assert.Equal(t, tensor.Float64, out.DType)
	assert.True(t, out.HasSortedIndices())
	assert.Equal(t, []float64{
		1, 0, 2, 0, 0,
		0, 0, 0, 3, 7,
		4, 5, 0, 0, 0,
	}, out.ToDense().Data)
}

func TestVStack(t *testing.T) {
	a := exampleCSR(t)
	b := exampleCSR(t).ConvertToCSC().AsType(tensor.Float32)

	out, err := matrix.VStack([]*tensor.SparseTensor{a, b}, tensor.CSC, tensor.InvalidDType)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 4}, out.Shape)
	assert.Equal(t, tensor.CSC, out.Format)
	assert.Equal(t, tensor.Float64, out.DType)
	assert.Equal(t, 10, out.GetNNZ())

	top, err := matrix.GetItem(out, matrix.Span(0, 3))
	require.NoError(t, err)
	bottom, err := matrix.GetItem(out, matrix.From(3))
	require.NoError(t, err)
	assert.Equal(t, a.ToDense().Data, top.(*tensor.SparseTensor).ToDense().Data)
	assert.Equal(t, a.ToDense().Data, bottom.(*tensor.SparseTensor).ToDense().Data)

	// a fixed dtype narrows the values
	out, err = matrix.VStack([]*tensor.SparseTensor{a, b}, tensor.CSR, tensor.Int8)
	require.NoError(t, err)
	assert.Equal(t, tensor.Int8, out.DType)
}

func TestStackValidation(t *testing.T) {
	a := exampleCSR(t)

	_, err := matrix.HStack([]*tensor.SparseTensor{a, a.T()}, tensor.CSR, tensor.Float64)
	require.ErrorIs(t, err, matrix.ErrShapeMismatch)

	_, err = matrix.VStack(nil, tensor.CSR, tensor.Float64)
	require.ErrorIs(t, err, matrix.ErrUsage)

	_, err = matrix.NewHStack(tensor.CSR, tensor.InvalidDType).OutputTypes(matrix.Types(a))
	require.ErrorIs(t, err, matrix.ErrTypeMismatch)

	_, err = matrix.Apply(matrix.NewHStack(tensor.CSR, tensor.Float64), a, a.ToDense())
	require.ErrorIs(t, err, matrix.ErrTypeMismatch)

	shapes, err := matrix.NewVStack(tensor.CSR, tensor.Float64).InferShape([][]int{{3, 4}, {2, 4}})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{5, 4}}, shapes)

	shapes, err = matrix.NewHStack(tensor.CSR, tensor.Float64).InferShape([][]int{{3, 4}, {3, matrix.Unknown}})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{3, matrix.Unknown}}, shapes)
}

func TestStackGradSplitsBlocks(t *testing.T) {
	a := exampleCSR(t)
	b := tensor.EmptySparse(tensor.CSR, tensor.Int32, 3, 2)
	op := matrix.NewHStack(tensor.CSR, tensor.Float64)

	g := dense(t, 3, 6,
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
		13, 14, 15, 16, 17, 18)
	grads, err := op.Grad([]tensor.Value{a, b}, []tensor.Value{g})
	require.NoError(t, err)
	require.Len(t, grads, 2)

	ga := grads[0].(*tensor.SparseTensor)
	assert.Equal(t, []int{3, 4}, ga.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4, 7, 8, 9, 10, 13, 14, 15, 16}, ga.ToDense().Data)
	// integer blocks receive no gradient
	assert.Nil(t, grads[1])

	vop := matrix.NewVStack(tensor.CSC, tensor.Float64)
	gv := dense(t, 6, 4,
		1, 1, 1, 1,
		1, 1, 1, 1,
		1, 1, 1, 1,
		2, 2, 2, 2,
		2, 2, 2, 2,
		2, 2, 2, 2)
	grads, err = vop.Grad([]tensor.Value{a, a}, []tensor.Value{gv})
	require.NoError(t, err)
	assert.Equal(t, tensor.CSC, grads[1].(*tensor.SparseTensor).Format)
	assert.Equal(t, []float64{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2}, grads[1].(*tensor.SparseTensor).ToDense().Data)
}

func TestStackGradRejectsWrongShape(t *testing.T) {
	a := exampleCSR(t)
	hop := matrix.NewHStack(tensor.CSR, tensor.Float64)
	_, err := hop.Grad([]tensor.Value{a, a}, []tensor.Value{tensor.Zeros(tensor.Float64, 3, 4)})
	require.ErrorIs(t, err, matrix.ErrShapeMismatch)

	vop := matrix.NewVStack(tensor.CSR, tensor.Float64)
	_, err = vop.Grad([]tensor.Value{a, a}, []tensor.Value{tensor.Zeros(tensor.Float64, 6, 5)})
	require.ErrorIs(t, err, matrix.ErrShapeMismatch)
	_, err = vop.Grad([]tensor.Value{a, a}, []tensor.Value{tensor.Zeros(tensor.Float64, 6)})
	require.ErrorIs(t, err, matrix.ErrShapeMismatch)
}
