package matrix

import (
	"gonum.org/v1/gonum/cmplxs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-sparseops/tensor"
)

// StructuredDot multiplies a sparse matrix a by a matrix b. The gradient
// with respect to a is structured: it is only computed at a's stored
// positions. A dense b gives a dense result; a sparse b gives a sparse
// result in a's layout.
type StructuredDot struct{ base }

func NewStructuredDot() *StructuredDot {
	return &StructuredDot{base{Descriptor{Kind: KindStructuredDot}}}
}

func (op *StructuredDot) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return structuredDotTypes(op.name(), in)
}

func structuredDotTypes(name string, in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(name, in, 2); err != nil {
		return nil, err
	}
	if err := requireSparseType(name, in[0], 0); err != nil {
		return nil, err
	}
	dtype := tensor.Upcast(in[0].DType, in[1].DType)
	if in[1].Sparse {
		return []tensor.Type{tensor.SparseType(in[0].Format, dtype)}, nil
	}
	if in[1].Rank != 2 {
		return nil, errorf(name, ErrTypeMismatch, "b must be a matrix, got rank %d", in[1].Rank)
	}
	return []tensor.Type{tensor.DenseType(dtype, 2)}, nil
}

func (op *StructuredDot) InferShape(in [][]int) ([][]int, error) {
	return productShape(op.name(), in)
}

func productShape(name string, in [][]int) ([][]int, error) {
	if err := checkShapeArity(name, in, 2); err != nil {
		return nil, err
	}
	if len(in[0]) != 2 || len(in[1]) != 2 {
		return nil, errorf(name, ErrShapeMismatch, "matrix shapes required, got %v and %v", in[0], in[1])
	}
	return [][]int{{in[0][0], in[1][1]}}, nil
}

func (op *StructuredDot) Forward(in []tensor.Value) ([]tensor.Value, error) {
	types, err := structuredDotTypes(op.name(), Types(in...))
	if err != nil {
		return nil, err
	}
	a := in[0].(*tensor.SparseTensor)
	out, err := product(op.name(), a, in[1], types[0].DType)
	if err != nil {
		return nil, err
	}
	if types[0].Sparse {
		sp, err := tensor.NewSparseTensorFromDense(out, a.Format, 0)
		if err != nil {
			return nil, err
		}
		return []tensor.Value{sp}, nil
	}
	return []tensor.Value{out}, nil
}

// Grad returns the pattern-restricted gradient of a and the full gradient
// aᵀ·g of b.
func (op *StructuredDot) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return structuredDotGrad(op.name(), in, gout)
}

func structuredDotGrad(name string, in, gout []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(name, in, 2); err != nil {
		return nil, err
	}
	a, err := sparseArg(name, in, 0)
	if err != nil {
		return nil, err
	}
	g := gradArg(gout, 0)
	if g == nil {
		return make([]tensor.Value, 2), nil
	}
	b, err := asDense(name, in[1])
	if err != nil {
		return nil, err
	}
	gd, err := asDense(name, g)
	if err != nil {
		return nil, err
	}
	ga, err := Apply(NewStructuredDotGrad(), a, b, gd)
	if err != nil {
		return nil, err
	}
	gb, err := Apply(NewStructuredDot(), a.T(), g)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{ga, gb}, nil
}

// StructuredDotGrad computes the gradient of StructuredDot with respect to
// its sparse operand a: for every stored (i, j) of a, the value
// g[i,:]·b[j,:]. The result has a's layout and pattern.
type StructuredDotGrad struct {
	base
	noGrad
}

func NewStructuredDotGrad() *StructuredDotGrad {
	return &StructuredDotGrad{base{Descriptor{Kind: KindStructuredDotGrad}}, noGrad{KindStructuredDotGrad}}
}

func (op *StructuredDotGrad) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return structuredDotGradTypes(op.name(), in)
}

func structuredDotGradTypes(name string, in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(name, in, 3); err != nil {
		return nil, err
	}
	if err := requireSparseType(name, in[0], 0); err != nil {
		return nil, err
	}
	for i := 1; i < 3; i++ {
		if err := requireDenseType(name, in[i], i, 2); err != nil {
			return nil, err
		}
	}
	return []tensor.Type{tensor.SparseType(in[0].Format, tensor.Upcast(in[1].DType, in[2].DType))}, nil
}

func (op *StructuredDotGrad) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 3); err != nil {
		return nil, err
	}
	return [][]int{append([]int{}, in[0]...)}, nil
}

func (op *StructuredDotGrad) Forward(in []tensor.Value) ([]tensor.Value, error) {
	a, b, g, dtype, err := structuredDotGradArgs(op.name(), in)
	if err != nil {
		return nil, err
	}
	n := b.Cols()
	data := make([]float64, len(a.Data))
	imag := ensureImag(dtype, len(a.Data))
	a.Each(func(k, r, c int) {
		if imag == nil {
			data[k] = floats.Dot(g.Data[r*n:(r+1)*n], b.Data[c*n:(c+1)*n])
			return
		}
		for j := range n {
			re, im := cmul(g.Data[r*n+j], imagAt(g.Imag, r*n+j), b.Data[c*n+j], imagAt(b.Imag, c*n+j))
			data[k] += re
			imag[k] += im
		}
	})
	out, err := a.WithData(dtype, data, imag)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{out}, nil
}

func structuredDotGradArgs(name string, in []tensor.Value) (*tensor.SparseTensor, *tensor.Tensor, *tensor.Tensor, tensor.DType, error) {
	types, err := structuredDotGradTypes(name, Types(in...))
	if err != nil {
		return nil, nil, nil, 0, err
	}
	a := in[0].(*tensor.SparseTensor)
	b := in[1].(*tensor.Tensor)
	g := in[2].(*tensor.Tensor)
	if b.Rows() != a.Cols() || g.Rows() != a.Rows() || g.Cols() != b.Cols() {
		return nil, nil, nil, 0, errorf(name, ErrShapeMismatch, "a %v, b %v and g %v do not line up", a.Shape, b.Shape, g.Shape)
	}
	return a, b, g, types[0].DType, nil
}

// StructuredDotOf returns x·y where at least one operand is sparse. A dense
// x is handled through the transposed product (yᵀ·xᵀ)ᵀ.
func StructuredDotOf(x, y tensor.Value) (tensor.Value, error) {
	if xs, ok := x.(*tensor.SparseTensor); ok {
		return Apply(NewStructuredDot(), xs, y)
	}
	ys, ok := y.(*tensor.SparseTensor)
	if !ok {
		return nil, errorf("StructuredDotOf", ErrTypeMismatch, "at least one operand must be sparse")
	}
	xd, err := denseArg("StructuredDotOf", []tensor.Value{x}, 0, 2)
	if err != nil {
		return nil, err
	}
	out, err := Apply(NewStructuredDot(), ys.T(), xd.Transpose())
	if err != nil {
		return nil, err
	}
	return out.(*tensor.Tensor).Transpose(), nil
}

// Dot multiplies two matrices of which at least one is sparse, producing a
// dense result. Its gradient is regular.
type Dot struct{ base }

func NewDot() *Dot { return &Dot{base{Descriptor{Kind: KindDot}}} }

func (op *Dot) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 2); err != nil {
		return nil, err
	}
	if !in[0].Sparse && !in[1].Sparse {
		return nil, errorf(op.name(), ErrTypeMismatch, "at least one operand must be sparse")
	}
	for i, t := range in {
		if !t.Sparse && t.Rank != 2 {
			return nil, errorf(op.name(), ErrTypeMismatch, "input %d must be a matrix, got rank %d", i, t.Rank)
		}
	}
	return []tensor.Type{tensor.DenseType(tensor.Upcast(in[0].DType, in[1].DType), 2)}, nil
}

func (op *Dot) InferShape(in [][]int) ([][]int, error) { return productShape(op.name(), in) }

func (op *Dot) Forward(in []tensor.Value) ([]tensor.Value, error) {
	types, err := op.OutputTypes(Types(in...))
	if err != nil {
		return nil, err
	}
	out, err := product(op.name(), in[0], in[1], types[0].DType)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{out}, nil
}

// Grad returns the dense gradients g·yᵀ and xᵀ·g.
func (op *Dot) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 2); err != nil {
		return nil, err
	}
	g := gradArg(gout, 0)
	if g == nil {
		return make([]tensor.Value, 2), nil
	}
	gd, err := asDense(op.name(), g)
	if err != nil {
		return nil, err
	}
	x, y := in[0], in[1]
	gx, err := product(op.name(), gd, transposeValue(y), tensor.Upcast(gd.DType, y.Type().DType))
	if err != nil {
		return nil, err
	}
	gy, err := product(op.name(), transposeValue(x), gd, tensor.Upcast(gd.DType, x.Type().DType))
	if err != nil {
		return nil, err
	}
	return []tensor.Value{gx, gy}, nil
}

func transposeValue(v tensor.Value) tensor.Value {
	switch x := v.(type) {
	case *tensor.SparseTensor:
		return x.T()
	case *tensor.Tensor:
		return x.Transpose()
	}
	return v
}

// product multiplies two rank-2 values, sparse or dense, into a dense
// result of the given dtype.
func product(name string, x, y tensor.Value, dtype tensor.DType) (*tensor.Tensor, error) {
	xd, yd := x.Dims(), y.Dims()
	if len(xd) != 2 || len(yd) != 2 {
		return nil, errorf(name, ErrShapeMismatch, "matrix operands required, got %v and %v", xd, yd)
	}
	if xd[1] != yd[0] {
		return nil, errorf(name, ErrShapeMismatch, "inner dimensions of %v and %v differ", xd, yd)
	}
	var out *tensor.Tensor
	switch a := x.(type) {
	case *tensor.SparseTensor:
		switch b := y.(type) {
		case *tensor.SparseTensor:
			out = sparseSparseProduct(a, b, dtype)
		case *tensor.Tensor:
			out = sparseDenseProduct(a, b, dtype)
		}
	case *tensor.Tensor:
		switch b := y.(type) {
		case *tensor.SparseTensor:
			out = sparseDenseProduct(b.T(), a.Transpose(), dtype).Transpose()
		case *tensor.Tensor:
			out = denseProduct(a, b, dtype)
		}
	}
	if out == nil {
		return nil, errorf(name, ErrTypeMismatch, "unsupported operands %T and %T", x, y)
	}
	out.DType.NormalizeSlice(out.Data)
	if out.Imag != nil {
		out.DType.NormalizeSlice(out.Imag)
	}
	return out, nil
}

// sparseDenseProduct accumulates a[r,c]·b[c,:] into row r of the result for
// every stored entry of a.
func sparseDenseProduct(a *tensor.SparseTensor, b *tensor.Tensor, dtype tensor.DType) *tensor.Tensor {
	n := b.Cols()
	out := tensor.Zeros(dtype, a.Rows(), n)
	if out.Imag == nil {
		a.Each(func(k, r, c int) {
			floats.AddScaled(out.Data[r*n:(r+1)*n], a.Data[k], b.Data[c*n:(c+1)*n])
		})
		return out
	}
	bc := toComplex(b.Data, b.Imag)
	acc := make([]complex128, len(out.Data))
	a.Each(func(k, r, c int) {
		cmplxs.AddScaled(acc[r*n:(r+1)*n], complex(a.Data[k], imagAt(a.Imag, k)), bc[c*n:(c+1)*n])
	})
	fromComplex(acc, out.Data, out.Imag)
	return out
}

// sparseSparseProduct multiplies through gonum for real data, reading a via
// SparseView, and falls back to the accumulation loop for complex data.
func sparseSparseProduct(a, b *tensor.SparseTensor, dtype tensor.DType) *tensor.Tensor {
	if dtype.IsComplex() || a.Rows() == 0 || b.Cols() == 0 || a.Cols() == 0 {
		return sparseDenseProduct(a, b.ToDense(), dtype)
	}
	av, err := tensor.NewSparseView(a)
	if err != nil {
		return sparseDenseProduct(a, b.ToDense(), dtype)
	}
	bd, err := b.ToDense().ToGonum()
	if err != nil {
		return sparseDenseProduct(a, b.ToDense(), dtype)
	}
	var m mat.Dense
	m.Mul(av, bd)
	return tensor.FromGonum(&m, dtype)
}

func denseProduct(a, b *tensor.Tensor, dtype tensor.DType) *tensor.Tensor {
	if !dtype.IsComplex() && a.Size() > 0 && b.Size() > 0 {
		ag, errA := a.ToGonum()
		bg, errB := b.ToGonum()
		if errA == nil && errB == nil {
			var m mat.Dense
			m.Mul(ag, bg)
			return tensor.FromGonum(&m, dtype)
		}
	}
	out := tensor.Zeros(dtype, a.Rows(), b.Cols())
	n, inner := b.Cols(), a.Cols()
	ac, bc := toComplex(a.Data, a.Imag), toComplex(b.Data, b.Imag)
	acc := make([]complex128, len(out.Data))
	for i := 0; i < a.Rows(); i++ {
		for p := 0; p < inner; p++ {
			cmplxs.AddScaled(acc[i*n:(i+1)*n], ac[i*inner+p], bc[p*n:(p+1)*n])
		}
	}
	im := out.Imag
	if im == nil {
		im = make([]float64, len(out.Data))
	}
	fromComplex(acc, out.Data, im)
	return out
}

func toComplex(re, im []float64) []complex128 {
	c := make([]complex128, len(re))
	for k, v := range re {
		c[k] = complex(v, imagAt(im, k))
	}
	return c
}

func fromComplex(c []complex128, re, im []float64) {
	for k, v := range c {
		re[k], im[k] = real(v), imag(v)
	}
}
