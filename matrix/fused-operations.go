package matrix

import (
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/tsawler/go-sparseops/tensor"
)

// Usmm computes alpha·x·y + z, where at least one of x and y is sparse, z is
// a dense matrix and alpha a dense scalar. It is a fused update and has no
// gradient.
type Usmm struct {
	base
	noGrad
}

func NewUsmm() *Usmm {
	return &Usmm{base{Descriptor{Kind: KindUsmm}}, noGrad{KindUsmm}}
}

func (op *Usmm) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 4); err != nil {
		return nil, err
	}
	if err := requireDenseType(op.name(), in[0], 0, 0); err != nil {
		return nil, err
	}
	if !in[1].Sparse && !in[2].Sparse {
		return nil, errorf(op.name(), ErrTypeMismatch, "at least one of x and y must be sparse")
	}
	for i := 1; i < 3; i++ {
		if !in[i].Sparse && in[i].Rank != 2 {
			return nil, errorf(op.name(), ErrTypeMismatch, "input %d must be a matrix, got rank %d", i, in[i].Rank)
		}
	}
	if err := requireDenseType(op.name(), in[3], 3, 2); err != nil {
		return nil, err
	}
	dtype := tensor.Upcast(in[0].DType, in[1].DType, in[2].DType, in[3].DType)
	return []tensor.Type{tensor.DenseType(dtype, 2)}, nil
}

func (op *Usmm) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 4); err != nil {
		return nil, err
	}
	return [][]int{append([]int{}, in[3]...)}, nil
}

func (op *Usmm) Forward(in []tensor.Value) ([]tensor.Value, error) {
	types, err := op.OutputTypes(Types(in...))
	if err != nil {
		return nil, err
	}
	dtype := types[0].DType
	alpha, err := denseArg(op.name(), in, 0, 0)
	if err != nil {
		return nil, err
	}
	z, err := denseArg(op.name(), in, 3, 2)
	if err != nil {
		return nil, err
	}
	xy, err := product(op.name(), in[1], in[2], dtype)
	if err != nil {
		return nil, err
	}
	if !xy.SameShape(z) {
		return nil, errorf(op.name(), ErrShapeMismatch, "product shape %v differs from z shape %v", xy.Shape, z.Shape)
	}
	ar, ai := alpha.Data[0], imagAt(alpha.Imag, 0)
	for i := range xy.Data {
		if xy.Imag == nil {
			xy.Data[i] = xy.Data[i]*ar + z.Data[i]
			continue
		}
		re, im := cmul(xy.Data[i], xy.Imag[i], ar, ai)
		xy.Data[i] = re + z.Data[i]
		xy.Imag[i] = im + imagAt(z.Imag, i)
	}
	dtype.NormalizeSlice(xy.Data)
	if xy.Imag != nil {
		dtype.NormalizeSlice(xy.Imag)
	}
	return []tensor.Value{xy}, nil
}

// UsmmCscDense is Usmm for a CSC x and dense y and z with float data. The
// in-place variant accumulates into z's buffer and returns z; it requires z
// to already have the output dtype.
type UsmmCscDense struct {
	base
	noGrad
	inplace bool
}

func NewUsmmCscDense(inplace bool) *UsmmCscDense {
	return &UsmmCscDense{
		base:    base{Descriptor{Kind: KindUsmmCscDense, Format: tensor.CSC, Inplace: inplace}},
		noGrad:  noGrad{KindUsmmCscDense},
		inplace: inplace,
	}
}

func (op *UsmmCscDense) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 4); err != nil {
		return nil, err
	}
	if err := requireDenseType(op.name(), in[0], 0, 0); err != nil {
		return nil, err
	}
	if err := requireSparseType(op.name(), in[1], 1); err != nil {
		return nil, err
	}
	if err := requireFormat(op.name(), in[1], tensor.CSC); err != nil {
		return nil, err
	}
	for i := 2; i < 4; i++ {
		if err := requireDenseType(op.name(), in[i], i, 2); err != nil {
			return nil, err
		}
	}
	if err := requireFloat(op.name(), in); err != nil {
		return nil, err
	}
	dtype := tensor.Upcast(in[0].DType, in[1].DType, in[2].DType, in[3].DType)
	if op.inplace && in[3].DType != dtype {
		return nil, errorf(op.name(), ErrTypeMismatch, "in-place update needs z of dtype %s, got %s", dtype, in[3].DType)
	}
	return []tensor.Type{tensor.DenseType(dtype, 2)}, nil
}

func (op *UsmmCscDense) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 4); err != nil {
		return nil, err
	}
	return [][]int{append([]int{}, in[3]...)}, nil
}

func (op *UsmmCscDense) Forward(in []tensor.Value) ([]tensor.Value, error) {
	types, err := op.OutputTypes(Types(in...))
	if err != nil {
		return nil, err
	}
	alpha := in[0].(*tensor.Tensor).Data[0]
	x := in[1].(*tensor.SparseTensor)
	y := in[2].(*tensor.Tensor)
	z := in[3].(*tensor.Tensor)
	if x.Cols() != y.Rows() || z.Rows() != x.Rows() || z.Cols() != y.Cols() {
		return nil, errorf(op.name(), ErrShapeMismatch, "x %v, y %v and z %v do not line up", x.Shape, y.Shape, z.Shape)
	}
	out := z
	if !op.inplace {
		out = z.AsType(types[0].DType)
	}
	n := y.Cols()
	err = parallelFor(n, len(x.Data)*n, func(c0, c1 int) error {
		for j := 0; j < x.Cols(); j++ {
			yrow := vec(y.Data[j*n+c0 : j*n+c1])
			for k := x.Indptr[j]; k < x.Indptr[j+1]; k++ {
				r := int(x.Indices[k])
				blas64.Axpy(alpha*x.Data[k], yrow, vec(out.Data[r*n+c0:r*n+c1]))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.DType.NormalizeSlice(out.Data)
	return []tensor.Value{out}, nil
}

func (op *UsmmCscDense) Aliasing() []Alias {
	if op.inplace {
		return []Alias{{Output: 0, Input: 3, Kind: AliasDestroy}}
	}
	return nil
}
