package matrix

import (
	"github.com/tsawler/go-sparseops/tensor"
)

// ColScaleCSC multiplies column j of a CSC matrix by s[j]. Its gradient is
// structured.
type ColScaleCSC struct{ base }

func NewColScaleCSC() *ColScaleCSC { return &ColScaleCSC{base{Descriptor{Kind: KindColScaleCSC}}} }

func (op *ColScaleCSC) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return scaleTypes(op.name(), in)
}

func (op *ColScaleCSC) InferShape(in [][]int) ([][]int, error) { return sameShape(op.name(), in) }

func (op *ColScaleCSC) Forward(in []tensor.Value) ([]tensor.Value, error) {
	x, s, err := scaleArgs(op.name(), in, 1)
	if err != nil {
		return nil, err
	}
	out := x.Clone()
	for j := 0; j < x.Cols(); j++ {
		for k := x.Indptr[j]; k < x.Indptr[j+1]; k++ {
			mulSlot(out, int(k), s, j)
		}
	}
	normalizeSparse(out)
	return []tensor.Value{out}, nil
}

func (op *ColScaleCSC) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return scaleGrad(op.name(), in, gout, ColScale, AxisRows)
}

// RowScaleCSC multiplies row i of a CSC matrix by s[i]. Its gradient is
// structured.
type RowScaleCSC struct{ base }

func NewRowScaleCSC() *RowScaleCSC { return &RowScaleCSC{base{Descriptor{Kind: KindRowScaleCSC}}} }

func (op *RowScaleCSC) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return scaleTypes(op.name(), in)
}

func (op *RowScaleCSC) InferShape(in [][]int) ([][]int, error) { return sameShape(op.name(), in) }

func (op *RowScaleCSC) Forward(in []tensor.Value) ([]tensor.Value, error) {
	x, s, err := scaleArgs(op.name(), in, 0)
	if err != nil {
		return nil, err
	}
	out := x.Clone()
	for k, i := range x.Indices {
		mulSlot(out, k, s, int(i))
	}
	normalizeSparse(out)
	return []tensor.Value{out}, nil
}

func (op *RowScaleCSC) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return scaleGrad(op.name(), in, gout, RowScale, AxisCols)
}

// ColScale multiplies column j of x by s[j]. CSR inputs are handled as the
// row scale of their CSC transpose.
func ColScale(x *tensor.SparseTensor, s *tensor.Tensor) (*tensor.SparseTensor, error) {
	var out tensor.Value
	var err error
	if x.Format == tensor.CSC {
		out, err = Apply(NewColScaleCSC(), x, s)
	} else {
		out, err = Apply(NewRowScaleCSC(), x.T(), s)
		if err == nil {
			out = out.(*tensor.SparseTensor).T()
		}
	}
	if err != nil {
		return nil, err
	}
	return out.(*tensor.SparseTensor), nil
}

// RowScale multiplies row i of x by s[i].
func RowScale(x *tensor.SparseTensor, s *tensor.Tensor) (*tensor.SparseTensor, error) {
	out, err := ColScale(x.T(), s)
	if err != nil {
		return nil, err
	}
	return out.T(), nil
}

func scaleTypes(name string, in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(name, in, 2); err != nil {
		return nil, err
	}
	if err := requireSparseType(name, in[0], 0); err != nil {
		return nil, err
	}
	if in[0].Format != tensor.CSC {
		return nil, errorf(name, ErrUnsupportedLayout, "csc input required, got %s", in[0].Format)
	}
	if err := requireDenseType(name, in[1], 1, 1); err != nil {
		return nil, err
	}
	return []tensor.Type{in[0]}, nil
}

// scaleArgs validates (csc x, vector s) where len(s) equals x's dimension dim.
func scaleArgs(name string, in []tensor.Value, dim int) (*tensor.SparseTensor, *tensor.Tensor, error) {
	if _, err := scaleTypes(name, Types(in...)); err != nil {
		return nil, nil, err
	}
	x := in[0].(*tensor.SparseTensor)
	s := in[1].(*tensor.Tensor)
	if s.Size() != x.Shape[dim] {
		return nil, nil, errorf(name, ErrShapeMismatch, "scale vector has length %d, matrix dimension %d is %d", s.Size(), dim, x.Shape[dim])
	}
	return x, s, nil
}

// scaleGrad returns (scale(gz, s), sum of x*gz along axis).
func scaleGrad(name string, in, gout []tensor.Value, scale func(*tensor.SparseTensor, *tensor.Tensor) (*tensor.SparseTensor, error), axis Axis) ([]tensor.Value, error) {
	if err := checkArity(name, in, 2); err != nil {
		return nil, err
	}
	x, err := sparseArg(name, in, 0)
	if err != nil {
		return nil, err
	}
	s, err := denseArg(name, in, 1, 1)
	if err != nil {
		return nil, err
	}
	g := gradArg(gout, 0)
	if g == nil {
		return make([]tensor.Value, 2), nil
	}
	gz, err := asSparse(name, g, x.Format)
	if err != nil {
		return nil, err
	}
	if gz.Format != x.Format {
		gz = gz.ToFormat(x.Format)
	}
	gz = gz.AsType(x.DType)
	gx, err := scale(gz, s)
	if err != nil {
		return nil, err
	}
	xg, err := Apply(NewMulSS(), x, gz)
	if err != nil {
		return nil, err
	}
	gs, err := Apply(NewSpSum(axis, false), xg)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{gx, gs.(*tensor.Tensor).AsType(s.DType)}, nil
}
