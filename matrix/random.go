package matrix

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tsawler/go-sparseops/tensor"
)

// The generators draw from an injected rand.Source. A nil source uses the
// global generator. A source is not safe for concurrent use, so an operator
// holding one must not run on several goroutines at once. None of the
// generators has a gradient.

// Poisson replaces every stored value λ of x by a draw from Poisson(λ) and
// drops the entries that came out zero.
type Poisson struct {
	base
	noGrad
	src rand.Source
}

func NewPoisson(src rand.Source) *Poisson {
	return &Poisson{base{Descriptor{Kind: KindPoisson}}, noGrad{KindPoisson}, src}
}

func (op *Poisson) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	out, err := sparseIdentityType(op.name(), in)
	if err != nil {
		return nil, err
	}
	if in[0].DType.IsComplex() {
		return nil, errorf(op.name(), ErrTypeMismatch, "complex rates are not supported")
	}
	return out, nil
}

func (op *Poisson) InferShape(in [][]int) ([][]int, error) { return sameShape(op.name(), in) }

func (op *Poisson) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if _, err := op.OutputTypes(Types(in...)); err != nil {
		return nil, err
	}
	x := in[0].(*tensor.SparseTensor)
	out := x.Clone()
	for k, lambda := range x.Data {
		switch {
		case lambda < 0 || math.IsNaN(lambda):
			return nil, errorf(op.name(), ErrUsage, "rate %g at stored entry %d is not a valid Poisson mean", lambda, k)
		case lambda == 0:
			out.Data[k] = 0
		default:
			out.Data[k] = distuv.Poisson{Lambda: lambda, Src: op.src}.Rand()
		}
	}
	out.DType.NormalizeSlice(out.Data)
	out.EliminateZeros()
	return []tensor.Value{out}, nil
}

// Binomial samples a matrix of the given shape whose elements are draws
// from Binomial(n, p), stored sparsely in a fixed layout and dtype. Inputs
// are n (dense rank-0), p (dense rank-0) and the shape (dense integer vector
// of length 2).
type Binomial struct {
	base
	noGrad
	format tensor.Format
	dtype  tensor.DType
	src    rand.Source
}

func NewBinomial(format tensor.Format, dtype tensor.DType, src rand.Source) *Binomial {
	return &Binomial{
		base:   base{Descriptor{Kind: KindBinomial, Format: format, DType: dtype}},
		noGrad: noGrad{KindBinomial},
		format: format,
		dtype:  dtype,
		src:    src,
	}
}

func (op *Binomial) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 3); err != nil {
		return nil, err
	}
	for i := 0; i < 2; i++ {
		if err := requireDenseType(op.name(), in[i], i, 0); err != nil {
			return nil, err
		}
	}
	if err := requireDenseType(op.name(), in[2], 2, 1); err != nil {
		return nil, err
	}
	if !in[2].DType.IsInteger() {
		return nil, errorf(op.name(), ErrTypeMismatch, "shape must have an integer dtype, got %s", in[2].DType)
	}
	if !op.dtype.Valid() || op.dtype.IsComplex() {
		return nil, errorf(op.name(), ErrTypeMismatch, "invalid output dtype %s", op.dtype)
	}
	return []tensor.Type{tensor.SparseType(op.format, op.dtype)}, nil
}

// InferShape fails: the output shape is the value of the shape input.
func (op *Binomial) InferShape(in [][]int) ([][]int, error) {
	return nil, errorf(op.name(), ErrShapeNotInferable, "output shape is a runtime value")
}

func (op *Binomial) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if _, err := op.OutputTypes(Types(in...)); err != nil {
		return nil, err
	}
	nt, err := denseArg(op.name(), in, 0, 0)
	if err != nil {
		return nil, err
	}
	pt, err := denseArg(op.name(), in, 1, 0)
	if err != nil {
		return nil, err
	}
	st, err := denseArg(op.name(), in, 2, 1)
	if err != nil {
		return nil, err
	}
	n, p, shape := nt.Data[0], pt.Data[0], st.Ints()
	if len(shape) != 2 || shape[0] < 0 || shape[1] < 0 {
		return nil, errorf(op.name(), ErrShapeMismatch, "shape %v is not a valid matrix shape", shape)
	}
	if n < 0 || n != math.Trunc(n) {
		return nil, errorf(op.name(), ErrUsage, "trial count %g must be a non-negative integer", n)
	}
	if p < 0 || p > 1 || math.IsNaN(p) {
		return nil, errorf(op.name(), ErrUsage, "probability %g outside [0, 1]", p)
	}
	dense := tensor.Zeros(op.dtype, shape[0], shape[1])
	for i := range dense.Data {
		dense.Data[i] = drawBinomial(n, p, op.src)
	}
	dense.DType.NormalizeSlice(dense.Data)
	out, err := tensor.NewSparseTensorFromDense(dense, op.format, 0)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{out}, nil
}

func drawBinomial(n, p float64, src rand.Source) float64 {
	switch {
	case n == 0 || p == 0:
		return 0
	case p == 1:
		return n
	}
	return distuv.Binomial{N: n, P: p, Src: src}.Rand()
}

// Multinomial draws, for every row i of a CSR probability matrix p, counts
// from Multinomial(n_i, p[i,:]) over the row's stored entries. The result
// has p's pattern. n is a dense rank-0 count shared by all rows or a dense
// vector with one count per row. Only CSR input is supported.
type Multinomial struct {
	base
	noGrad
	src rand.Source
}

func NewMultinomial(src rand.Source) *Multinomial {
	return &Multinomial{base{Descriptor{Kind: KindMultinomial}}, noGrad{KindMultinomial}, src}
}

func (op *Multinomial) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 2); err != nil {
		return nil, err
	}
	if err := requireDenseType(op.name(), in[0], 0, -1); err != nil {
		return nil, err
	}
	if in[0].Rank > 1 {
		return nil, errorf(op.name(), ErrTypeMismatch, "n must be a scalar or vector, got rank %d", in[0].Rank)
	}
	if err := requireSparseType(op.name(), in[1], 1); err != nil {
		return nil, err
	}
	if in[1].Format != tensor.CSR {
		return nil, errorf(op.name(), ErrUnsupportedLayout, "csr probabilities required, got %s", in[1].Format)
	}
	if in[1].DType.IsComplex() {
		return nil, errorf(op.name(), ErrTypeMismatch, "complex probabilities are not supported")
	}
	return []tensor.Type{in[1]}, nil
}

func (op *Multinomial) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 2); err != nil {
		return nil, err
	}
	return [][]int{append([]int{}, in[1]...)}, nil
}

func (op *Multinomial) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if _, err := op.OutputTypes(Types(in...)); err != nil {
		return nil, err
	}
	n := in[0].(*tensor.Tensor)
	p := in[1].(*tensor.SparseTensor)
	if n.Rank() == 1 && n.Size() != p.Rows() {
		return nil, errorf(op.name(), ErrShapeMismatch, "n has %d counts for %d rows", n.Size(), p.Rows())
	}
	out := p.Clone()
	for i := 0; i < p.Rows(); i++ {
		count := n.Data[0]
		if n.Rank() == 1 {
			count = n.Data[i]
		}
		lo, hi := int(p.Indptr[i]), int(p.Indptr[i+1])
		if err := op.drawRow(count, p.Data[lo:hi], out.Data[lo:hi]); err != nil {
			return nil, errorf(op.name(), ErrUsage, "row %d: %v", i, err)
		}
	}
	out.DType.NormalizeSlice(out.Data)
	return []tensor.Value{out}, nil
}

// drawRow samples one multinomial row as a chain of conditional binomials:
// entry k receives Binomial(remaining trials, p_k / remaining mass), and the
// last entry receives whatever trials are left.
func (op *Multinomial) drawRow(n float64, probs, out []float64) error {
	if n < 0 || n != math.Trunc(n) {
		return errorf("drawRow", ErrUsage, "trial count %g must be a non-negative integer", n)
	}
	total := 0.0
	for _, v := range probs {
		if v < 0 || math.IsNaN(v) {
			return errorf("drawRow", ErrUsage, "negative probability %g", v)
		}
		total += v
	}
	if len(probs) > 0 && total-probs[len(probs)-1] > 1+1e-12 {
		return errorf("drawRow", ErrUsage, "probabilities sum to %g", total)
	}
	remaining, mass := n, 1.0
	for k, v := range probs {
		if k == len(probs)-1 {
			out[k] = remaining
			break
		}
		q := 0.0
		if mass > 0 {
			q = min(max(v/mass, 0), 1)
		}
		draw := drawBinomial(remaining, q, op.src)
		out[k] = draw
		remaining -= draw
		mass -= v
	}
	return nil
}
