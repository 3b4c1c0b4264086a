package matrix

import (
	"github.com/tsawler/go-sparseops/tensor"
)

// DenseFromSparse materializes a sparse matrix. Its gradient is either
// structured (restricted to the input's pattern) or regular.
type DenseFromSparse struct {
	base
	structured bool
}

func NewDenseFromSparse(structured bool) *DenseFromSparse {
	return &DenseFromSparse{base: base{Descriptor{Kind: KindDenseFromSparse, Structured: structured}}, structured: structured}
}

func (op *DenseFromSparse) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	if !in[0].Sparse {
		return []tensor.Type{in[0]}, nil
	}
	return []tensor.Type{tensor.DenseType(in[0].DType, 2)}, nil
}

func (op *DenseFromSparse) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	return [][]int{append([]int{}, in[0]...)}, nil
}

// Forward returns x as a dense array. A dense input is a caller mistake; it
// is copied through unchanged and a warning is logged.
func (op *DenseFromSparse) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	switch x := in[0].(type) {
	case *tensor.SparseTensor:
		return []tensor.Value{x.ToDense()}, nil
	case *tensor.Tensor:
		logger().Info("WARNING: dense input passed to DenseFromSparse, returning it unchanged", "shape", x.Shape, "dtype", x.DType.String())
		return []tensor.Value{x.Clone()}, nil
	}
	return nil, errorf(op.name(), ErrTypeMismatch, "unsupported value %T", in[0])
}

func (op *DenseFromSparse) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	g := gradArg(gout, 0)
	if g == nil {
		return []tensor.Value{nil}, nil
	}
	x, ok := in[0].(*tensor.SparseTensor)
	if !ok {
		return []tensor.Value{g}, nil
	}
	gz, err := asDense(op.name(), g)
	if err != nil {
		return nil, err
	}
	if op.structured {
		r, err := Apply(NewMulSD(), SpOnesLike(x), gz)
		if err != nil {
			return nil, err
		}
		return []tensor.Value{r}, nil
	}
	r, err := Apply(NewSparseFromDense(x.Format), gz)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{r}, nil
}

// SparseFromDense compresses a dense array of rank at most 2 into the given
// layout. Rank 0 and 1 inputs are expanded to a single row.
type SparseFromDense struct {
	base
	format tensor.Format
}

func NewSparseFromDense(format tensor.Format) *SparseFromDense {
	return &SparseFromDense{base: base{Descriptor{Kind: KindSparseFromDense, Format: format}}, format: format}
}

func (op *SparseFromDense) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	if err := requireDenseType(op.name(), in[0], 0, -1); err != nil {
		return nil, err
	}
	if in[0].Rank > 2 {
		return nil, errorf(op.name(), ErrTypeMismatch, "rank %d input cannot be stored as a sparse matrix", in[0].Rank)
	}
	return []tensor.Type{tensor.SparseType(op.format, in[0].DType)}, nil
}

func (op *SparseFromDense) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	switch len(in[0]) {
	case 0:
		return [][]int{{1, 1}}, nil
	case 1:
		return [][]int{{1, in[0][0]}}, nil
	case 2:
		return [][]int{append([]int{}, in[0]...)}, nil
	}
	return nil, errorf(op.name(), ErrTypeMismatch, "rank %d input cannot be stored as a sparse matrix", len(in[0]))
}

func (op *SparseFromDense) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	x, err := denseArg(op.name(), in, 0, -1)
	if err != nil {
		return nil, err
	}
	m, err := x.As2D()
	if err != nil {
		return nil, errorf(op.name(), ErrTypeMismatch, "%v", err)
	}
	out, err := tensor.NewSparseTensorFromDense(m, op.format, 0)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{out}, nil
}

// Grad densifies the incoming gradient and reshapes it to the input's shape.
func (op *SparseFromDense) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	x, err := denseArg(op.name(), in, 0, -1)
	if err != nil {
		return nil, err
	}
	g := gradArg(gout, 0)
	if g == nil {
		return []tensor.Value{nil}, nil
	}
	gz, err := asDense(op.name(), g)
	if err != nil {
		return nil, err
	}
	r, err := gz.Reshape(x.Shape...)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{r}, nil
}

// Cast converts the values of a sparse matrix to another dtype, keeping its
// layout and pattern.
type Cast struct {
	base
	dtype tensor.DType
}

func NewCast(dtype tensor.DType) *Cast {
	return &Cast{base: base{Descriptor{Kind: KindCast, DType: dtype}}, dtype: dtype}
}

func (op *Cast) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	if err := requireSparseType(op.name(), in[0], 0); err != nil {
		return nil, err
	}
	if !op.dtype.Valid() {
		return nil, errorf(op.name(), ErrTypeMismatch, "invalid target dtype %s", op.dtype)
	}
	return []tensor.Type{tensor.SparseType(in[0].Format, op.dtype)}, nil
}

func (op *Cast) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	return [][]int{append([]int{}, in[0]...)}, nil
}

func (op *Cast) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	x, err := sparseArg(op.name(), in, 0)
	if err != nil {
		return nil, err
	}
	if !op.dtype.Valid() {
		return nil, errorf(op.name(), ErrTypeMismatch, "invalid target dtype %s", op.dtype)
	}
	return []tensor.Value{x.AsType(op.dtype)}, nil
}

// Grad casts the gradient back to the input dtype when that dtype is
// continuous; discrete inputs get no gradient.
func (op *Cast) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
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
	switch gz := g.(type) {
	case *tensor.SparseTensor:
		r, err := Apply(NewCast(x.DType), gz)
		if err != nil {
			return nil, err
		}
		return []tensor.Value{r}, nil
	case *tensor.Tensor:
		return []tensor.Value{gz.AsType(x.DType)}, nil
	}
	return nil, errorf(op.name(), ErrTypeMismatch, "unsupported gradient %T", g)
}

// EnsureSortedIndices sorts the indices of every outer slice. The in-place
// variant sorts the input's own buffers and returns it.
type EnsureSortedIndices struct {
	base
	inplace bool
}

func NewEnsureSortedIndices(inplace bool) *EnsureSortedIndices {
	return &EnsureSortedIndices{base: base{Descriptor{Kind: KindEnsureSortedIndices, Inplace: inplace}}, inplace: inplace}
}

func (op *EnsureSortedIndices) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return sparseIdentityType(op.name(), in)
}

func (op *EnsureSortedIndices) InferShape(in [][]int) ([][]int, error) {
	return sameShape(op.name(), in)
}

func (op *EnsureSortedIndices) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	x, err := sparseArg(op.name(), in, 0)
	if err != nil {
		return nil, err
	}
	if !op.inplace {
		x = x.Clone()
	}
	x.SortIndices()
	return []tensor.Value{x}, nil
}

func (op *EnsureSortedIndices) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return []tensor.Value{gradArg(gout, 0)}, nil
}

func (op *EnsureSortedIndices) Aliasing() []Alias {
	if op.inplace {
		return []Alias{{Output: 0, Input: 0, Kind: AliasDestroy}}
	}
	return nil
}

// Remove0 drops explicitly stored zeros.
type Remove0 struct {
	base
	inplace bool
}

func NewRemove0(inplace bool) *Remove0 {
	return &Remove0{base: base{Descriptor{Kind: KindRemove0, Inplace: inplace}}, inplace: inplace}
}

func (op *Remove0) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return sparseIdentityType(op.name(), in)
}

func (op *Remove0) InferShape(in [][]int) ([][]int, error) {
	return sameShape(op.name(), in)
}

func (op *Remove0) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	x, err := sparseArg(op.name(), in, 0)
	if err != nil {
		return nil, err
	}
	if !op.inplace {
		x = x.Clone()
	}
	x.EliminateZeros()
	return []tensor.Value{x}, nil
}

func (op *Remove0) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return []tensor.Value{gradArg(gout, 0)}, nil
}

func (op *Remove0) Aliasing() []Alias {
	if op.inplace {
		return []Alias{{Output: 0, Input: 0, Kind: AliasDestroy}}
	}
	return nil
}

// Clean removes explicit zeros from x and sorts its indices, returning a new
// matrix. x is not modified.
func Clean(x *tensor.SparseTensor) (*tensor.SparseTensor, error) {
	nz, err := Apply(NewRemove0(false), x)
	if err != nil {
		return nil, err
	}
	// nz is freshly allocated, so sorting it in place is safe
	out, err := Apply(NewEnsureSortedIndices(true), nz)
	if err != nil {
		return nil, err
	}
	return out.(*tensor.SparseTensor), nil
}

func sparseIdentityType(op string, in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op, in, 1); err != nil {
		return nil, err
	}
	if err := requireSparseType(op, in[0], 0); err != nil {
		return nil, err
	}
	return []tensor.Type{in[0]}, nil
}

func sameShape(op string, in [][]int) ([][]int, error) {
	if len(in) == 0 {
		return nil, errorf(op, ErrUsage, "no input shapes")
	}
	return [][]int{append([]int{}, in[0]...)}, nil
}
