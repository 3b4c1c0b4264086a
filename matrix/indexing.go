package matrix

import (
	"github.com/tsawler/go-sparseops/tensor"
)

// GetItem2d extracts the submatrix x[start1:stop1, start2:stop2]. Its inputs
// are x followed by four bounds, each either nil (open) or a dense rank-0
// integer. Bounds follow slice conventions: negative values count from the
// end and out-of-range values are clamped. It has no gradient.
type GetItem2d struct {
	base
	noGrad
}

func NewGetItem2d() *GetItem2d {
	return &GetItem2d{base{Descriptor{Kind: KindGetItem2d}}, noGrad{KindGetItem2d}}
}

func (op *GetItem2d) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 5); err != nil {
		return nil, err
	}
	if err := requireSparseType(op.name(), in[0], 0); err != nil {
		return nil, err
	}
	for i := 1; i < 5; i++ {
		if in[i] == (tensor.Type{}) {
			continue
		}
		if in[i].Sparse || in[i].Rank != 0 || !in[i].DType.IsInteger() {
			return nil, errorf(op.name(), ErrTypeMismatch, "bound %d must be a rank-0 integer, got %s", i, in[i])
		}
	}
	return []tensor.Type{in[0]}, nil
}

// InferShape fails: the output shape depends on the bound values.
func (op *GetItem2d) InferShape(in [][]int) ([][]int, error) {
	return nil, errorf(op.name(), ErrShapeNotInferable, "slice bounds are runtime values")
}

func (op *GetItem2d) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if _, err := op.OutputTypes(Types(in...)); err != nil {
		return nil, err
	}
	x := in[0].(*tensor.SparseTensor)
	bound := func(i int) *int {
		if in[i] == nil {
			return nil
		}
		v := in[i].(*tensor.Tensor).Ints()[0]
		return &v
	}
	r0, r1 := sliceBounds(bound(1), bound(2), x.Rows())
	c0, c1 := sliceBounds(bound(3), bound(4), x.Cols())
	out, err := x.Slice(r0, r1, c0, c1)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{out}, nil
}

// sliceBounds resolves optional start/stop against a dimension of length n.
func sliceBounds(start, stop *int, n int) (int, int) {
	resolve := func(p *int, def int) int {
		if p == nil {
			return def
		}
		v := *p
		if v < 0 {
			v += n
		}
		return min(max(v, 0), n)
	}
	lo, hi := resolve(start, 0), resolve(stop, n)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// GetItemScalar reads x[i, j] into a dense rank-0 value of x's dtype. i and
// j are dense rank-0 integers; negative values count from the end. It has no
// gradient.
type GetItemScalar struct {
	base
	noGrad
}

func NewGetItemScalar() *GetItemScalar {
	return &GetItemScalar{base{Descriptor{Kind: KindGetItemScalar}}, noGrad{KindGetItemScalar}}
}

func (op *GetItemScalar) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 3); err != nil {
		return nil, err
	}
	if err := requireSparseType(op.name(), in[0], 0); err != nil {
		return nil, err
	}
	for i := 1; i < 3; i++ {
		if in[i].Sparse || in[i].Rank != 0 || !in[i].DType.IsInteger() {
			return nil, errorf(op.name(), ErrTypeMismatch, "index %d must be a rank-0 integer, got %s", i, in[i])
		}
	}
	return []tensor.Type{tensor.DenseType(in[0].DType, 0)}, nil
}

func (op *GetItemScalar) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 3); err != nil {
		return nil, err
	}
	return [][]int{{}}, nil
}

func (op *GetItemScalar) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if _, err := op.OutputTypes(Types(in...)); err != nil {
		return nil, err
	}
	x := in[0].(*tensor.SparseTensor)
	i := in[1].(*tensor.Tensor).Ints()[0]
	j := in[2].(*tensor.Tensor).Ints()[0]
	if i < 0 {
		i += x.Rows()
	}
	if j < 0 {
		j += x.Cols()
	}
	if i < 0 || i >= x.Rows() || j < 0 || j >= x.Cols() {
		return nil, errorf(op.name(), ErrOutOfRange, "index (%d, %d) outside shape %v", i, j, x.Shape)
	}
	out := tensor.Zeros(x.DType)
	if x.IsComplex() {
		v := x.AtComplex(i, j)
		out.Data[0], out.Imag[0] = real(v), imag(v)
	} else {
		out.Data[0] = x.At(i, j)
	}
	return []tensor.Value{out}, nil
}

type indexKind int

const (
	indexFull indexKind = iota
	indexSpan
	indexPoint
)

// Index is one axis of a GetItem request: a full range, a span with
// optional bounds, or a single position.
type Index struct {
	kind        indexKind
	start, stop *int
	step        int
}

// Full selects a whole axis.
func Full() Index { return Index{kind: indexFull, step: 1} }

// Span selects [start, stop).
func Span(start, stop int) Index {
	return Index{kind: indexSpan, start: &start, stop: &stop, step: 1}
}

// From selects [start, end of axis).
func From(start int) Index { return Index{kind: indexSpan, start: &start, step: 1} }

// Until selects [0, stop).
func Until(stop int) Index { return Index{kind: indexSpan, stop: &stop, step: 1} }

// Point selects a single position.
func Point(i int) Index { return Index{kind: indexPoint, start: &i, step: 1} }

// Step returns the index with a stride. Only a stride of 1 is supported by
// GetItem.
func (ix Index) Step(step int) Index {
	ix.step = step
	return ix
}

// GetItem indexes x with one or two axis selections. Two points read a
// single element as a dense scalar; spans and full axes give a sparse
// submatrix. Mixing a point with a span would produce a sparse vector, which
// does not exist, so it is rejected.
func GetItem(x *tensor.SparseTensor, idx ...Index) (tensor.Value, error) {
	const name = "GetItem"
	if len(idx) == 1 {
		idx = append(idx, Full())
	}
	if len(idx) != 2 {
		return nil, errorf(name, ErrUsage, "expected 1 or 2 indices, got %d", len(idx))
	}
	for _, ix := range idx {
		if ix.step != 1 {
			return nil, errorf(name, ErrUsage, "slice step %d is not supported", ix.step)
		}
	}
	points := 0
	for _, ix := range idx {
		if ix.kind == indexPoint {
			points++
		}
	}
	switch points {
	case 2:
		return Apply(NewGetItemScalar(), x, scalarIndex(*idx[0].start), scalarIndex(*idx[1].start))
	case 1:
		return nil, errorf(name, ErrUsage, "mixing a scalar index with a slice; use a span of length 1 instead")
	}
	args := []tensor.Value{x}
	for _, ix := range idx {
		args = append(args, boundValue(ix.start), boundValue(ix.stop))
	}
	return Apply(NewGetItem2d(), args...)
}

func scalarIndex(i int) *tensor.Tensor { return tensor.Scalar(tensor.Int64, float64(i)) }

func boundValue(p *int) tensor.Value {
	if p == nil {
		return nil
	}
	return scalarIndex(*p)
}
