package matrix

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-sparseops/tensor"
)

// StructuredMonoid applies an elementwise function to the stored values of
// a sparse matrix only. Positions that are not stored stay empty, so
// exp(0) = 1 is never materialized. Pow, Minimum and Maximum take a second,
// dense rank-0 operand; Add accepts one optionally.
type StructuredMonoid struct {
	base
}

// NewStructuredSigmoid returns the structured logistic sigmoid.
func NewStructuredSigmoid() *StructuredMonoid { return newMonoid(KindStructuredSigmoid) }

// NewStructuredExp returns the structured exponential.
func NewStructuredExp() *StructuredMonoid { return newMonoid(KindStructuredExp) }

// NewStructuredLog returns the structured natural logarithm.
func NewStructuredLog() *StructuredMonoid { return newMonoid(KindStructuredLog) }

// NewStructuredPow returns the structured power x**y for a scalar y.
func NewStructuredPow() *StructuredMonoid { return newMonoid(KindStructuredPow) }

// NewStructuredMinimum returns the structured min(x, y) for a scalar y.
func NewStructuredMinimum() *StructuredMonoid { return newMonoid(KindStructuredMinimum) }

// NewStructuredMaximum returns the structured max(x, y) for a scalar y.
func NewStructuredMaximum() *StructuredMonoid { return newMonoid(KindStructuredMaximum) }

// NewStructuredAdd returns the structured x + y for a scalar y.
func NewStructuredAdd() *StructuredMonoid { return newMonoid(KindStructuredAdd) }

func newMonoid(kind Kind) *StructuredMonoid {
	return &StructuredMonoid{base{Descriptor{Kind: kind}}}
}

func (op *StructuredMonoid) arity() (lo, hi int) {
	switch op.desc.Kind {
	case KindStructuredSigmoid, KindStructuredExp, KindStructuredLog:
		return 1, 1
	case KindStructuredAdd:
		return 1, 2
	}
	return 2, 2
}

func (op *StructuredMonoid) floatOutput() bool {
	switch op.desc.Kind {
	case KindStructuredSigmoid, KindStructuredExp, KindStructuredLog:
		return true
	}
	return false
}

func (op *StructuredMonoid) checkCount(n int) error {
	lo, hi := op.arity()
	if n < lo || n > hi {
		return errorf(op.name(), ErrUsage, "expected %d to %d inputs, got %d", lo, hi, n)
	}
	return nil
}

func (op *StructuredMonoid) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := op.checkCount(len(in)); err != nil {
		return nil, err
	}
	if err := requireSparseType(op.name(), in[0], 0); err != nil {
		return nil, err
	}
	dtypes := []tensor.DType{in[0].DType}
	if len(in) == 2 {
		if err := requireDenseType(op.name(), in[1], 1, 0); err != nil {
			return nil, err
		}
		dtypes = append(dtypes, in[1].DType)
	}
	for _, d := range dtypes {
		if d.IsComplex() {
			return nil, errorf(op.name(), ErrTypeMismatch, "complex values are not ordered or supported here")
		}
	}
	out := tensor.Upcast(dtypes...)
	if op.floatOutput() {
		out = out.FloatUpcast()
	}
	return []tensor.Type{tensor.SparseType(in[0].Format, out)}, nil
}

func (op *StructuredMonoid) InferShape(in [][]int) ([][]int, error) {
	if err := op.checkCount(len(in)); err != nil {
		return nil, err
	}
	return sameShape(op.name(), in)
}

func (op *StructuredMonoid) args(in []tensor.Value) (*tensor.SparseTensor, float64, tensor.DType, error) {
	types, err := op.OutputTypes(Types(in...))
	if err != nil {
		return nil, 0, 0, err
	}
	x, err := sparseArg(op.name(), in, 0)
	if err != nil {
		return nil, 0, 0, err
	}
	var y float64
	if len(in) == 2 {
		t, err := denseArg(op.name(), in, 1, 0)
		if err != nil {
			return nil, 0, 0, err
		}
		y = t.Data[0]
	}
	return x, y, types[0].DType, nil
}

func (op *StructuredMonoid) apply(v, y float64) float64 {
	switch op.desc.Kind {
	case KindStructuredSigmoid:
		return sigmoid(v)
	case KindStructuredExp:
		return math.Exp(v)
	case KindStructuredLog:
		return math.Log(v)
	case KindStructuredPow:
		return math.Pow(v, y)
	case KindStructuredMinimum:
		return math.Min(v, y)
	case KindStructuredMaximum:
		return math.Max(v, y)
	}
	return v + y
}

// derivatives returns d f / d v and d f / d y at one stored value.
func (op *StructuredMonoid) derivatives(v, y, out float64) (dv, dy float64) {
	switch op.desc.Kind {
	case KindStructuredSigmoid:
		return out * (1 - out), 0
	case KindStructuredExp:
		return out, 0
	case KindStructuredLog:
		return 1 / v, 0
	case KindStructuredPow:
		dv = y * math.Pow(v, y-1)
		if v > 0 {
			dy = out * math.Log(v)
		}
		return dv, dy
	case KindStructuredMinimum, KindStructuredMaximum:
		// a tie passes the full gradient to both operands
		if out == v {
			dv = 1
		}
		if out == y {
			dy = 1
		}
		return dv, dy
	}
	return 1, 1
}

func (op *StructuredMonoid) Forward(in []tensor.Value) ([]tensor.Value, error) {
	x, y, dtype, err := op.args(in)
	if err != nil {
		return nil, err
	}
	data := make([]float64, len(x.Data))
	for k, v := range x.Data {
		data[k] = op.apply(v, y)
	}
	dtype.NormalizeSlice(data)
	out, err := x.WithData(dtype, data, nil)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{out}, nil
}

// Grad aligns the output gradient with x's pattern and multiplies by the
// derivative at each stored value. The scalar operand, when present,
// receives the sum over stored entries.
func (op *StructuredMonoid) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	x, y, dtype, err := op.args(in)
	if err != nil {
		return nil, err
	}
	grads := make([]tensor.Value, len(in))
	g := gradArg(gout, 0)
	if g == nil || !dtype.IsContinuous() {
		return grads, nil
	}
	aligned, err := AlignToPattern(x, g)
	if err != nil {
		return nil, err
	}
	gx := make([]float64, len(x.Data))
	gy := make([]float64, len(x.Data))
	for k, v := range x.Data {
		out := dtype.Normalize(op.apply(v, y))
		dv, dy := op.derivatives(v, y, out)
		gx[k] = aligned.Data[k] * dv
		gy[k] = aligned.Data[k] * dy
	}
	if x.DType.IsContinuous() {
		x.DType.NormalizeSlice(gx)
		grads[0], err = x.WithData(x.DType, gx, nil)
		if err != nil {
			return nil, err
		}
	}
	if len(in) == 2 && in[1].Type().DType.IsContinuous() {
		grads[1] = tensor.Scalar(in[1].Type().DType, floats.Sum(gy))
	}
	return grads, nil
}

// StructuredSigmoid returns sigmoid applied to x's stored values.
func StructuredSigmoid(x *tensor.SparseTensor) (tensor.Value, error) {
	return Apply(NewStructuredSigmoid(), x)
}

// StructuredExp returns exp applied to x's stored values.
func StructuredExp(x *tensor.SparseTensor) (tensor.Value, error) {
	return Apply(NewStructuredExp(), x)
}

// StructuredLog returns log applied to x's stored values.
func StructuredLog(x *tensor.SparseTensor) (tensor.Value, error) {
	return Apply(NewStructuredLog(), x)
}

// StructuredPow raises x's stored values to the power y.
func StructuredPow(x *tensor.SparseTensor, y float64) (tensor.Value, error) {
	return Apply(NewStructuredPow(), x, tensor.Scalar(tensor.Float64, y))
}

// StructuredMinimum clamps x's stored values from above at y.
func StructuredMinimum(x *tensor.SparseTensor, y float64) (tensor.Value, error) {
	return Apply(NewStructuredMinimum(), x, tensor.Scalar(x.DType, y))
}

// StructuredMaximum clamps x's stored values from below at y.
func StructuredMaximum(x *tensor.SparseTensor, y float64) (tensor.Value, error) {
	return Apply(NewStructuredMaximum(), x, tensor.Scalar(x.DType, y))
}

// StructuredAdd adds y to x's stored values.
func StructuredAdd(x *tensor.SparseTensor, y float64) (tensor.Value, error) {
	return Apply(NewStructuredAdd(), x, tensor.Scalar(x.DType, y))
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

// AlignToPattern returns g restricted to x's pattern: a matrix with x's
// layout, indices and indptr whose k-th value is g's value at x's k-th stored
// position (zero where g stores nothing). Dense gradients are compressed
// first. Float data takes the pooled CSMGradFast path.
func AlignToPattern(x *tensor.SparseTensor, g tensor.Value) (*tensor.SparseTensor, error) {
	const name = "AlignToPattern"
	gs, err := asSparse(name, g, x.Format)
	if err != nil {
		return nil, err
	}
	if gs.Format != x.Format {
		gs = gs.ToFormat(x.Format)
	}
	if gs.Rows() != x.Rows() || gs.Cols() != x.Cols() {
		return nil, errorf(name, ErrShapeMismatch, "gradient shape %v differs from %v", gs.Shape, x.Shape)
	}
	xf, err := NewCSMProperties(nil).Forward([]tensor.Value{x})
	if err != nil {
		return nil, err
	}
	gf, err := NewCSMProperties(nil).Forward([]tensor.Value{gs})
	if err != nil {
		return nil, err
	}
	var grad Op = NewCSMGrad(nil)
	if x.DType.IsFloat() && gs.DType.IsFloat() {
		grad = NewCSMGradFast()
	}
	data, err := Apply(grad, append(xf, gf...)...)
	if err != nil {
		return nil, err
	}
	d := data.(*tensor.Tensor)
	dtype := tensor.Upcast(x.DType, gs.DType)
	return x.WithData(dtype, d.Data, d.Imag)
}
