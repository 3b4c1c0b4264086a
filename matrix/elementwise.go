package matrix

import (
	"fmt"
	"slices"

	"github.com/tsawler/go-sparseops/tensor"
)

// Transpose relabels a CSR matrix as the CSC matrix of its transpose (and
// vice versa). The output shares the input's buffers.
type Transpose struct{ base }

func NewTranspose() *Transpose { return &Transpose{base{Descriptor{Kind: KindTranspose}}} }

func (op *Transpose) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	if err := requireSparseType(op.name(), in[0], 0); err != nil {
		return nil, err
	}
	return []tensor.Type{tensor.SparseType(in[0].Format.Transposed(), in[0].DType)}, nil
}

func (op *Transpose) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	if len(in[0]) != 2 {
		return nil, errorf(op.name(), ErrShapeMismatch, "expected a 2-D shape, got %v", in[0])
	}
	return [][]int{{in[0][1], in[0][0]}}, nil
}

func (op *Transpose) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	x, err := sparseArg(op.name(), in, 0)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{x.T()}, nil
}

func (op *Transpose) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	switch g := gradArg(gout, 0).(type) {
	case *tensor.SparseTensor:
		return []tensor.Value{g.T()}, nil
	case *tensor.Tensor:
		return []tensor.Value{g.Transpose()}, nil
	}
	return []tensor.Value{nil}, nil
}

func (op *Transpose) Aliasing() []Alias {
	return []Alias{{Output: 0, Input: 0, Kind: AliasView}}
}

// Neg negates every stored value.
type Neg struct{ base }

func NewNeg() *Neg { return &Neg{base{Descriptor{Kind: KindNeg}}} }

func (op *Neg) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return sparseIdentityType(op.name(), in)
}

func (op *Neg) InferShape(in [][]int) ([][]int, error) { return sameShape(op.name(), in) }

func (op *Neg) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	x, err := sparseArg(op.name(), in, 0)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{negSparse(x)}, nil
}

func (op *Neg) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	switch g := gradArg(gout, 0).(type) {
	case *tensor.SparseTensor:
		return []tensor.Value{negSparse(g)}, nil
	case *tensor.Tensor:
		return []tensor.Value{negDense(g)}, nil
	}
	return []tensor.Value{nil}, nil
}

func negDense(t *tensor.Tensor) *tensor.Tensor {
	out := t.Clone()
	for i := range out.Data {
		out.Data[i] = -out.Data[i]
	}
	for i := range out.Imag {
		out.Imag[i] = -out.Imag[i]
	}
	out.DType.NormalizeSlice(out.Data)
	return out
}

func negSparse(x *tensor.SparseTensor) *tensor.SparseTensor {
	out := x.Clone()
	for k := range out.Data {
		out.Data[k] = -out.Data[k]
	}
	for k := range out.Imag {
		out.Imag[k] = -out.Imag[k]
	}
	out.DType.NormalizeSlice(out.Data)
	return out
}

// sliceAccumulator is a dense row used to combine outer slices of
// differently patterned matrices. Touched positions are tracked so the row
// can be cleared in time proportional to the entries visited.
type sliceAccumulator struct {
	re, im  []float64
	seen    []bool
	touched []int32
}

func newSliceAccumulator(inner int, complexValued bool) *sliceAccumulator {
	acc := &sliceAccumulator{re: make([]float64, inner), seen: make([]bool, inner)}
	if complexValued {
		acc.im = make([]float64, inner)
	}
	return acc
}

// add scatters sign * slice o of st into the row.
func (a *sliceAccumulator) add(st *tensor.SparseTensor, o int, sign float64) {
	for k := st.Indptr[o]; k < st.Indptr[o+1]; k++ {
		idx := st.Indices[k]
		if !a.seen[idx] {
			a.seen[idx] = true
			a.touched = append(a.touched, idx)
		}
		a.re[idx] += sign * st.Data[k]
		if a.im != nil {
			a.im[idx] += sign * imagAt(st.Imag, int(k))
		}
	}
}

// sorted returns the touched positions in increasing order.
func (a *sliceAccumulator) sorted() []int32 {
	slices.Sort(a.touched)
	return a.touched
}

func (a *sliceAccumulator) reset() {
	for _, idx := range a.touched {
		a.re[idx] = 0
		a.seen[idx] = false
		if a.im != nil {
			a.im[idx] = 0
		}
	}
	a.touched = a.touched[:0]
}

// AddSS adds two sparse matrices of identical dtype and layout. The result
// has sorted indices and no explicit zeros.
type AddSS struct{ base }

func NewAddSS() *AddSS { return &AddSS{base{Descriptor{Kind: KindAddSS}}} }

func (op *AddSS) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return sameSparseTypes(op.name(), in)
}

func (op *AddSS) InferShape(in [][]int) ([][]int, error) { return sameShape(op.name(), in) }

func (op *AddSS) Forward(in []tensor.Value) ([]tensor.Value, error) {
	x, y, err := sparsePair(op.name(), in)
	if err != nil {
		return nil, err
	}
	out := tensor.EmptySparse(x.Format, x.DType, x.Rows(), x.Cols())
	acc := newSliceAccumulator(x.Inner(), x.IsComplex())
	for o := 0; o < x.Outer(); o++ {
		acc.add(x, o, 1)
		acc.add(y, o, 1)
		for _, idx := range acc.sorted() {
			re := x.DType.Normalize(acc.re[idx])
			var im float64
			if acc.im != nil {
				im = x.DType.Normalize(acc.im[idx])
			}
			if re == 0 && im == 0 {
				continue
			}
			out.Indices = append(out.Indices, idx)
			out.Data = append(out.Data, re)
			if out.Imag != nil {
				out.Imag = append(out.Imag, im)
			}
		}
		acc.reset()
		out.Indptr[o+1] = int32(len(out.Data))
	}
	return []tensor.Value{out}, nil
}

func (op *AddSS) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	g := gradArg(gout, 0)
	return []tensor.Value{g, g}, nil
}

// AddSSData adds two sparse matrices that share a pattern by adding their
// data buffers slot by slot.
type AddSSData struct{ base }

func NewAddSSData() *AddSSData { return &AddSSData{base{Descriptor{Kind: KindAddSSData}}} }

func (op *AddSSData) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return sameSparseTypes(op.name(), in)
}

func (op *AddSSData) InferShape(in [][]int) ([][]int, error) { return sameShape(op.name(), in) }

func (op *AddSSData) Forward(in []tensor.Value) ([]tensor.Value, error) {
	x, y, err := sparsePair(op.name(), in)
	if err != nil {
		return nil, err
	}
	if len(x.Data) != len(y.Data) {
		return nil, errorf(op.name(), ErrShapeMismatch, "stored entry counts %d and %d differ", len(x.Data), len(y.Data))
	}
	out := x.Clone()
	for k := range out.Data {
		out.Data[k] += y.Data[k]
	}
	for k := range out.Imag {
		out.Imag[k] += imagAt(y.Imag, k)
	}
	out.DType.NormalizeSlice(out.Data)
	if out.Imag != nil {
		out.DType.NormalizeSlice(out.Imag)
	}
	return []tensor.Value{out}, nil
}

func (op *AddSSData) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 2); err != nil {
		return nil, err
	}
	g := gradArg(gout, 0)
	out := make([]tensor.Value, 2)
	for i, v := range in {
		if v.Type().DType.IsContinuous() {
			out[i] = g
		}
	}
	return out, nil
}

// AddSD adds a sparse matrix and a dense matrix of the same dtype, giving a
// dense result. The gradient with respect to the sparse operand is
// structured.
type AddSD struct{ base }

func NewAddSD() *AddSD { return &AddSD{base{Descriptor{Kind: KindAddSD}}} }

func (op *AddSD) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 2); err != nil {
		return nil, err
	}
	if err := requireSparseType(op.name(), in[0], 0); err != nil {
		return nil, err
	}
	if err := requireDenseType(op.name(), in[1], 1, 2); err != nil {
		return nil, err
	}
	if in[0].DType != in[1].DType {
		return nil, errorf(op.name(), ErrTypeMismatch, "dtypes %s and %s differ", in[0].DType, in[1].DType)
	}
	return []tensor.Type{in[1]}, nil
}

func (op *AddSD) InferShape(in [][]int) ([][]int, error) { return sameShape(op.name(), in) }

func (op *AddSD) Forward(in []tensor.Value) ([]tensor.Value, error) {
	x, y, err := sparseDensePair(op.name(), in, 2)
	if err != nil {
		return nil, err
	}
	if x.DType != y.DType {
		return nil, errorf(op.name(), ErrTypeMismatch, "dtypes %s and %s differ", x.DType, y.DType)
	}
	if !slices.Equal(x.Shape, y.Shape) {
		return nil, errorf(op.name(), ErrShapeMismatch, "shapes %v and %v differ", x.Shape, y.Shape)
	}
	out := y.Clone()
	if out.IsComplex() && out.Imag == nil {
		out.Imag = make([]float64, len(out.Data))
	}
	cols := x.Cols()
	x.Each(func(k, r, c int) {
		out.Data[r*cols+c] += x.Data[k]
		if out.Imag != nil {
			out.Imag[r*cols+c] += imagAt(x.Imag, k)
		}
	})
	out.DType.NormalizeSlice(out.Data)
	if out.Imag != nil {
		out.DType.NormalizeSlice(out.Imag)
	}
	return []tensor.Value{out}, nil
}

func (op *AddSD) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	x, _, err := sparseDensePair(op.name(), in, 2)
	if err != nil {
		return nil, err
	}
	g := gradArg(gout, 0)
	if g == nil {
		return make([]tensor.Value, 2), nil
	}
	gz, err := asDense(op.name(), g)
	if err != nil {
		return nil, err
	}
	gx, err := Apply(NewMulSD(), SpOnesLike(x), gz)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{gx, gz}, nil
}

// StructuredAddSV adds y[j] to every stored entry of column j. Positions
// that are not stored stay empty.
type StructuredAddSV struct{ base }

func NewStructuredAddSV() *StructuredAddSV {
	return &StructuredAddSV{base{Descriptor{Kind: KindStructuredAddSV}}}
}

func (op *StructuredAddSV) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return sparseVectorTypes(op.name(), in)
}

func (op *StructuredAddSV) InferShape(in [][]int) ([][]int, error) {
	return sameShape(op.name(), in)
}

func (op *StructuredAddSV) Forward(in []tensor.Value) ([]tensor.Value, error) {
	x, y, err := sparseVectorPair(op.name(), in)
	if err != nil {
		return nil, err
	}
	out := x.Clone()
	x.Each(func(k, _, c int) {
		out.Data[k] += y.Data[c]
		if out.Imag != nil {
			out.Imag[k] += imagAt(y.Imag, c)
		}
	})
	normalizeSparse(out)
	return []tensor.Value{out}, nil
}

func (op *StructuredAddSV) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return structuredAddSVGrad(op.name(), in, gout)
}

func structuredAddSVGrad(name string, in, gout []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(name, in, 2); err != nil {
		return nil, err
	}
	g := gradArg(gout, 0)
	if g == nil {
		return make([]tensor.Value, 2), nil
	}
	x, err := sparseArg(name, in, 0)
	if err != nil {
		return nil, err
	}
	gz, err := asSparse(name, g, x.Format)
	if err != nil {
		return nil, err
	}
	gy, err := Apply(NewSpSum(AxisRows, true), gz)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{gz, gy}, nil
}

// MulSS multiplies two sparse matrices of identical dtype and layout
// elementwise. The result stores the intersection of both patterns with
// sorted indices and without explicit zeros.
type MulSS struct{ base }

func NewMulSS() *MulSS { return &MulSS{base{Descriptor{Kind: KindMulSS}}} }

func (op *MulSS) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return sameSparseTypes(op.name(), in)
}

func (op *MulSS) InferShape(in [][]int) ([][]int, error) { return sameShape(op.name(), in) }

func (op *MulSS) Forward(in []tensor.Value) ([]tensor.Value, error) {
	x, y, err := sparsePair(op.name(), in)
	if err != nil {
		return nil, err
	}
	out := tensor.EmptySparse(x.Format, x.DType, x.Rows(), x.Cols())
	cplx := x.IsComplex()
	ax := newSliceAccumulator(x.Inner(), cplx)
	ay := newSliceAccumulator(x.Inner(), cplx)
	for o := 0; o < x.Outer(); o++ {
		ax.add(x, o, 1)
		ay.add(y, o, 1)
		for _, idx := range ax.sorted() {
			if !ay.seen[idx] {
				continue
			}
			re, im := ax.re[idx]*ay.re[idx], 0.0
			if cplx {
				re, im = cmul(ax.re[idx], ax.im[idx], ay.re[idx], ay.im[idx])
			}
			re, im = x.DType.Normalize(re), x.DType.Normalize(im)
			if re == 0 && im == 0 {
				continue
			}
			out.Indices = append(out.Indices, idx)
			out.Data = append(out.Data, re)
			if cplx {
				out.Imag = append(out.Imag, im)
			}
		}
		ax.reset()
		ay.reset()
		out.Indptr[o+1] = int32(len(out.Data))
	}
	return []tensor.Value{out}, nil
}

func (op *MulSS) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	x, y, err := sparsePair(op.name(), in)
	if err != nil {
		return nil, err
	}
	g := gradArg(gout, 0)
	if g == nil {
		return make([]tensor.Value, 2), nil
	}
	gz, err := asSparse(op.name(), g, x.Format)
	if err != nil {
		return nil, err
	}
	if gz.Format != x.Format {
		gz = gz.ToFormat(x.Format)
	}
	gz = gz.AsType(x.DType)
	gx, err := Apply(op, y, gz)
	if err != nil {
		return nil, err
	}
	gy, err := Apply(op, x, gz)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{gx, gy}, nil
}

// MulSD multiplies a sparse matrix elementwise by a dense matrix of the same
// shape, or by a dense scalar. The output keeps x's pattern and dtype; y is
// cast to x's dtype when that loses nothing.
type MulSD struct{ base }

func NewMulSD() *MulSD { return &MulSD{base{Descriptor{Kind: KindMulSD}}} }

func (op *MulSD) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return mulSDTypes(op.name(), in)
}

func mulSDTypes(name string, in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(name, in, 2); err != nil {
		return nil, err
	}
	if err := requireSparseType(name, in[0], 0); err != nil {
		return nil, err
	}
	if err := requireDenseType(name, in[1], 1, -1); err != nil {
		return nil, err
	}
	if in[1].Rank == 1 {
		return nil, errorf(name, ErrTypeMismatch, "vector operands need MulSV")
	}
	if tensor.Upcast(in[0].DType, in[1].DType) != in[0].DType {
		return nil, errorf(name, ErrTypeMismatch, "cannot multiply %s values by %s without widening", in[0].DType, in[1].DType)
	}
	return []tensor.Type{in[0]}, nil
}

func (op *MulSD) InferShape(in [][]int) ([][]int, error) { return sameShape(op.name(), in) }

func (op *MulSD) Forward(in []tensor.Value) ([]tensor.Value, error) {
	x, y, err := mulSDArgs(op.name(), in)
	if err != nil {
		return nil, err
	}
	out := x.Clone()
	if y.Rank() == 0 {
		scaleSparseData(out, y.Data[0], imagAt(y.Imag, 0))
		return []tensor.Value{out}, nil
	}
	cols := x.Cols()
	x.Each(func(k, r, c int) {
		mulSlot(out, k, y, r*cols+c)
	})
	normalizeSparse(out)
	return []tensor.Value{out}, nil
}

func (op *MulSD) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return mulSDGrad(op.name(), in, gout)
}

func mulSDArgs(name string, in []tensor.Value) (*tensor.SparseTensor, *tensor.Tensor, error) {
	x, y, err := sparseDensePair(name, in, -1)
	if err != nil {
		return nil, nil, err
	}
	if _, err := mulSDTypes(name, Types(x, y)); err != nil {
		return nil, nil, err
	}
	if y.Rank() == 2 && !slices.Equal(x.Shape, y.Shape) {
		return nil, nil, errorf(name, ErrShapeMismatch, "shapes %v and %v differ", x.Shape, y.Shape)
	}
	return x, y, nil
}

// mulSDGrad returns (y*gz, x*gz): the first keeps gz's pattern, the second is
// densified to match the dense operand (or summed for a scalar operand).
func mulSDGrad(name string, in, gout []tensor.Value) ([]tensor.Value, error) {
	x, y, err := mulSDArgs(name, in)
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
	gx, err := Apply(NewMulSD(), gz, y)
	if err != nil {
		return nil, err
	}
	xg, err := Apply(NewMulSS(), x, gz)
	if err != nil {
		return nil, err
	}
	xgs := xg.(*tensor.SparseTensor)
	if y.Rank() == 0 {
		s, err := Apply(NewSpSum(AxisNone, false), xgs)
		if err != nil {
			return nil, err
		}
		return []tensor.Value{gx, s.(*tensor.Tensor).AsType(y.DType)}, nil
	}
	return []tensor.Value{gx, xgs.ToDense().AsType(y.DType)}, nil
}

// MulSV multiplies every stored entry of column j by y[j]. The pattern of x
// is kept as is.
type MulSV struct{ base }

func NewMulSV() *MulSV { return &MulSV{base{Descriptor{Kind: KindMulSV}}} }

func (op *MulSV) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return sparseVectorTypes(op.name(), in)
}

func (op *MulSV) InferShape(in [][]int) ([][]int, error) { return sameShape(op.name(), in) }

func (op *MulSV) Forward(in []tensor.Value) ([]tensor.Value, error) {
	x, y, err := sparseVectorPair(op.name(), in)
	if err != nil {
		return nil, err
	}
	out := x.Clone()
	x.Each(func(k, _, c int) {
		mulSlot(out, k, y, c)
	})
	normalizeSparse(out)
	return []tensor.Value{out}, nil
}

func (op *MulSV) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return mulSVGrad(op.name(), in, gout)
}

// mulSVGrad returns (gz*y, column sums of x*gz).
func mulSVGrad(name string, in, gout []tensor.Value) ([]tensor.Value, error) {
	x, y, err := sparseVectorPair(name, in)
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
	gzx := gz.AsType(x.DType)
	gx, err := Apply(NewMulSV(), gzx, y)
	if err != nil {
		return nil, err
	}
	xg, err := Apply(NewMulSS(), x, gzx)
	if err != nil {
		return nil, err
	}
	gy, err := Apply(NewSpSum(AxisRows, true), xg)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{gx, gy}, nil
}

// mulSlot multiplies out's stored slot k by y's element i, complex-aware.
func mulSlot(out *tensor.SparseTensor, k int, y *tensor.Tensor, i int) {
	if out.Imag == nil {
		out.Data[k] *= y.Data[i]
		return
	}
	out.Data[k], out.Imag[k] = cmul(out.Data[k], out.Imag[k], y.Data[i], imagAt(y.Imag, i))
}

func scaleSparseData(out *tensor.SparseTensor, re, im float64) {
	for k := range out.Data {
		if out.Imag == nil {
			out.Data[k] *= re
			continue
		}
		out.Data[k], out.Imag[k] = cmul(out.Data[k], out.Imag[k], re, im)
	}
	normalizeSparse(out)
}

func normalizeSparse(st *tensor.SparseTensor) {
	st.DType.NormalizeSlice(st.Data)
	if st.Imag != nil {
		st.DType.NormalizeSlice(st.Imag)
	}
}

// Add returns x + y for a pair with at least one sparse operand.
func Add(x, y tensor.Value) (tensor.Value, error) {
	xs, xSparse := x.(*tensor.SparseTensor)
	ys, ySparse := y.(*tensor.SparseTensor)
	switch {
	case xSparse && ySparse:
		return Apply(NewAddSS(), xs, ys)
	case xSparse:
		return Apply(NewAddSD(), xs, y)
	case ySparse:
		return Apply(NewAddSD(), ys, x)
	}
	return nil, errorf("Add", ErrTypeMismatch, "at least one operand must be sparse")
}

// Sub returns x - y for a pair with at least one sparse operand.
func Sub(x, y tensor.Value) (tensor.Value, error) {
	switch yv := y.(type) {
	case *tensor.SparseTensor:
		return Add(x, negSparse(yv))
	case *tensor.Tensor:
		return Add(x, negDense(yv))
	}
	return nil, errorf("Sub", ErrTypeMismatch, "unsupported operand %T", y)
}

// Mul returns the elementwise product of a pair with at least one sparse
// operand. Dense vectors broadcast across rows.
func Mul(x, y tensor.Value) (tensor.Value, error) {
	xs, xSparse := x.(*tensor.SparseTensor)
	ys, ySparse := y.(*tensor.SparseTensor)
	switch {
	case xSparse && ySparse:
		return Apply(NewMulSS(), xs, ys)
	case xSparse:
		return mulSparseDense(xs, y)
	case ySparse:
		return mulSparseDense(ys, x)
	}
	return nil, errorf("Mul", ErrTypeMismatch, "at least one operand must be sparse")
}

func mulSparseDense(x *tensor.SparseTensor, v tensor.Value) (tensor.Value, error) {
	y, ok := v.(*tensor.Tensor)
	if !ok || y == nil {
		return nil, errorf("Mul", ErrTypeMismatch, "unsupported operand %T", v)
	}
	if y.Rank() == 1 {
		return Apply(NewMulSV(), x, y)
	}
	return Apply(NewMulSD(), x, y)
}

func sparsePair(name string, in []tensor.Value) (*tensor.SparseTensor, *tensor.SparseTensor, error) {
	if err := checkArity(name, in, 2); err != nil {
		return nil, nil, err
	}
	x, err := sparseArg(name, in, 0)
	if err != nil {
		return nil, nil, err
	}
	y, err := sparseArg(name, in, 1)
	if err != nil {
		return nil, nil, err
	}
	if err := x.IsCompatibleWith(y); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	return x, y, nil
}

func sparseDensePair(name string, in []tensor.Value, rank int) (*tensor.SparseTensor, *tensor.Tensor, error) {
	if err := checkArity(name, in, 2); err != nil {
		return nil, nil, err
	}
	x, err := sparseArg(name, in, 0)
	if err != nil {
		return nil, nil, err
	}
	y, err := denseArg(name, in, 1, rank)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

// sparseVectorPair validates (sparse x, dense vector y) with len(y) == x.Cols()
// and equal dtypes.
func sparseVectorPair(name string, in []tensor.Value) (*tensor.SparseTensor, *tensor.Tensor, error) {
	x, y, err := sparseDensePair(name, in, 1)
	if err != nil {
		return nil, nil, err
	}
	if x.DType != y.DType {
		return nil, nil, errorf(name, ErrTypeMismatch, "dtypes %s and %s differ", x.DType, y.DType)
	}
	if y.Size() != x.Cols() {
		return nil, nil, errorf(name, ErrShapeMismatch, "vector length %d != %d columns", y.Size(), x.Cols())
	}
	return x, y, nil
}

func sameSparseTypes(name string, in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(name, in, 2); err != nil {
		return nil, err
	}
	for i, t := range in {
		if err := requireSparseType(name, t, i); err != nil {
			return nil, err
		}
	}
	if in[0] != in[1] {
		return nil, errorf(name, ErrTypeMismatch, "operand types %s and %s differ", in[0], in[1])
	}
	return []tensor.Type{in[0]}, nil
}

func sparseVectorTypes(name string, in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(name, in, 2); err != nil {
		return nil, err
	}
	if err := requireSparseType(name, in[0], 0); err != nil {
		return nil, err
	}
	if err := requireDenseType(name, in[1], 1, 1); err != nil {
		return nil, err
	}
	if in[0].DType != in[1].DType {
		return nil, errorf(name, ErrTypeMismatch, "dtypes %s and %s differ", in[0].DType, in[1].DType)
	}
	return []tensor.Type{in[0]}, nil
}
