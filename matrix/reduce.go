package matrix

import (
	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-sparseops/tensor"
)

// SpSum sums a sparse matrix over every entry (AxisNone), down the rows
// (AxisRows, one value per column) or across the columns (AxisCols, one value
// per row). The result is dense. Structured selects a gradient restricted to
// the input's pattern; otherwise the gradient is a dense broadcast stored
// sparsely.
type SpSum struct {
	base
	axis       Axis
	structured bool
}

func NewSpSum(axis Axis, structured bool) *SpSum {
	return &SpSum{
		base:       base{Descriptor{Kind: KindSpSum, Axis: axis, Structured: structured}},
		axis:       axis,
		structured: structured,
	}
}

func (op *SpSum) checkAxis() error {
	switch op.axis {
	case AxisNone, AxisRows, AxisCols:
		return nil
	}
	return errorf(op.name(), ErrUsage, "illegal axis %d", op.axis)
}

func (op *SpSum) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := op.checkAxis(); err != nil {
		return nil, err
	}
	if _, err := sparseIdentityType(op.name(), in); err != nil {
		return nil, err
	}
	rank := 1
	if op.axis == AxisNone {
		rank = 0
	}
	return []tensor.Type{tensor.DenseType(in[0].DType, rank)}, nil
}

func (op *SpSum) InferShape(in [][]int) ([][]int, error) {
	if err := op.checkAxis(); err != nil {
		return nil, err
	}
	if err := checkShapeArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	switch op.axis {
	case AxisNone:
		return [][]int{{}}, nil
	case AxisRows:
		return [][]int{{in[0][1]}}, nil
	}
	return [][]int{{in[0][0]}}, nil
}

func (op *SpSum) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if err := op.checkAxis(); err != nil {
		return nil, err
	}
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	x, err := sparseArg(op.name(), in, 0)
	if err != nil {
		return nil, err
	}
	var out *tensor.Tensor
	switch op.axis {
	case AxisNone:
		out = tensor.Zeros(x.DType)
		out.Data[0] = floats.Sum(x.Data)
		if out.Imag != nil {
			out.Imag[0] = floats.Sum(x.Imag)
		}
	case AxisRows, AxisCols:
		n := x.Shape[1-int(op.axis)]
		out = tensor.Zeros(x.DType, n)
		x.Each(func(k, r, c int) {
			i := c
			if op.axis == AxisCols {
				i = r
			}
			out.Data[i] += x.Data[k]
			if out.Imag != nil {
				out.Imag[i] += imagAt(x.Imag, k)
			}
		})
	}
	out.DType.NormalizeSlice(out.Data)
	if out.Imag != nil {
		out.DType.NormalizeSlice(out.Imag)
	}
	return []tensor.Value{out}, nil
}

func (op *SpSum) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	x, err := sparseArg(op.name(), in, 0)
	if err != nil {
		return nil, err
	}
	g := gradArg(gout, 0)
	if g == nil || !x.DType.IsContinuous() {
		return []tensor.Value{nil}, nil
	}
	gz, err := asDense(op.name(), g)
	if err != nil {
		return nil, err
	}
	gz = gz.AsType(x.DType)
	if op.structured {
		ones := SpOnesLike(x)
		var r tensor.Value
		switch op.axis {
		case AxisNone:
			r, err = Apply(NewMulSD(), ones, gz)
		case AxisRows:
			r, err = ColScale(ones, gz)
		default:
			r, err = RowScale(ones, gz)
		}
		if err != nil {
			return nil, err
		}
		return []tensor.Value{r}, nil
	}

	rows, cols := x.Rows(), x.Cols()
	dense := tensor.Zeros(x.DType, rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			src := 0
			switch op.axis {
			case AxisRows:
				src = j
			case AxisCols:
				src = i
			}
			dense.Data[i*cols+j] = gz.Data[src]
			if dense.Imag != nil {
				dense.Imag[i*cols+j] = imagAt(gz.Imag, src)
			}
		}
	}
	r, err := Apply(NewSparseFromDense(x.Format), dense)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{r}, nil
}

// Diag extracts the diagonal of a square sparse matrix as a dense vector.
type Diag struct{ base }

func NewDiag() *Diag { return &Diag{base{Descriptor{Kind: KindDiag}}} }

func (op *Diag) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if _, err := sparseIdentityType(op.name(), in); err != nil {
		return nil, err
	}
	return []tensor.Type{tensor.DenseType(in[0].DType, 1)}, nil
}

func (op *Diag) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	r, c := in[0][0], in[0][1]
	if r != Unknown && c != Unknown && r != c {
		return nil, errorf(op.name(), ErrNonSquare, "shape %v", in[0])
	}
	if r == Unknown {
		return [][]int{{c}}, nil
	}
	return [][]int{{r}}, nil
}

func (op *Diag) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	x, err := sparseArg(op.name(), in, 0)
	if err != nil {
		return nil, err
	}
	if x.Rows() != x.Cols() {
		return nil, errorf(op.name(), ErrNonSquare, "shape %v", x.Shape)
	}
	return []tensor.Value{x.Diagonal()}, nil
}

func (op *Diag) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	g := gradArg(gout, 0)
	if g == nil {
		return []tensor.Value{nil}, nil
	}
	gz, err := asDense(op.name(), g)
	if err != nil {
		return nil, err
	}
	r, err := Apply(NewSquareDiagonal(), gz)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{r}, nil
}

// SquareDiagonal builds an NxN CSC matrix whose diagonal is the given dense
// vector. Every diagonal position is stored, including zeros.
type SquareDiagonal struct{ base }

func NewSquareDiagonal() *SquareDiagonal {
	return &SquareDiagonal{base{Descriptor{Kind: KindSquareDiagonal}}}
}

func (op *SquareDiagonal) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	if err := requireDenseType(op.name(), in[0], 0, 1); err != nil {
		return nil, err
	}
	return []tensor.Type{tensor.SparseType(tensor.CSC, in[0].DType)}, nil
}

func (op *SquareDiagonal) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	return [][]int{{in[0][0], in[0][0]}}, nil
}

func (op *SquareDiagonal) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	d, err := denseArg(op.name(), in, 0, 1)
	if err != nil {
		return nil, err
	}
	n := d.Size()
	indices := make([]int32, n)
	indptr := make([]int32, n+1)
	for i := range n {
		indices[i] = int32(i)
		indptr[i+1] = int32(i + 1)
	}
	out, err := tensor.NewTypedSparseTensor(tensor.CSC, d.DType, []int{n, n}, d.Data, d.Imag, indices, indptr)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{out}, nil
}

func (op *SquareDiagonal) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	switch g := gradArg(gout, 0).(type) {
	case *tensor.SparseTensor:
		r, err := Apply(NewDiag(), g)
		if err != nil {
			return nil, err
		}
		return []tensor.Value{r}, nil
	case *tensor.Tensor:
		gs, err := asSparse(op.name(), g, tensor.CSC)
		if err != nil {
			return nil, err
		}
		return []tensor.Value{gs.Diagonal()}, nil
	}
	return []tensor.Value{nil}, nil
}
