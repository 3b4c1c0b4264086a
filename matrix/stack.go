package matrix

import (
	"github.com/tsawler/go-sparseops/tensor"
)

// stackAxis is the dimension blocks are concatenated along.
type stackAxis int

const (
	stackCols stackAxis = iota // hstack: rows agree, columns add up
	stackRows                  // vstack: columns agree, rows add up
)

// stack concatenates sparse blocks into one matrix of a fixed layout and
// dtype. Its gradient splits the dense output gradient back into blocks;
// blocks with a discrete dtype get none.
type stack struct {
	base
	axis   stackAxis
	format tensor.Format
	dtype  tensor.DType
}

// HStackOp stacks sparse matrices side by side.
type HStackOp struct{ stack }

// VStackOp stacks sparse matrices on top of each other.
type VStackOp struct{ stack }

// NewHStack returns the horizontal stacking operator producing format and
// dtype.
func NewHStack(format tensor.Format, dtype tensor.DType) *HStackOp {
	return &HStackOp{newStack(KindHStack, stackCols, format, dtype)}
}

// NewVStack returns the vertical stacking operator producing format and
// dtype.
func NewVStack(format tensor.Format, dtype tensor.DType) *VStackOp {
	return &VStackOp{newStack(KindVStack, stackRows, format, dtype)}
}

func newStack(kind Kind, axis stackAxis, format tensor.Format, dtype tensor.DType) stack {
	return stack{
		base:   base{Descriptor{Kind: kind, Format: format, DType: dtype}},
		axis:   axis,
		format: format,
		dtype:  dtype,
	}
}

// HStack stacks blocks side by side. A zero dtype selects the upcast of the
// block dtypes.
func HStack(blocks []*tensor.SparseTensor, format tensor.Format, dtype tensor.DType) (*tensor.SparseTensor, error) {
	return runStack(blocks, dtype, func(d tensor.DType) Op { return NewHStack(format, d) })
}

// VStack stacks blocks on top of each other. A zero dtype selects the
// upcast of the block dtypes.
func VStack(blocks []*tensor.SparseTensor, format tensor.Format, dtype tensor.DType) (*tensor.SparseTensor, error) {
	return runStack(blocks, dtype, func(d tensor.DType) Op { return NewVStack(format, d) })
}

func runStack(blocks []*tensor.SparseTensor, dtype tensor.DType, build func(tensor.DType) Op) (*tensor.SparseTensor, error) {
	in := make([]tensor.Value, len(blocks))
	dtypes := make([]tensor.DType, len(blocks))
	for i, b := range blocks {
		in[i] = b
		dtypes[i] = b.DType
	}
	if dtype == tensor.InvalidDType && len(blocks) > 0 {
		dtype = tensor.Upcast(dtypes...)
	}
	out, err := Apply(build(dtype), in...)
	if err != nil {
		return nil, err
	}
	return out.(*tensor.SparseTensor), nil
}

// along returns the stacked and the shared dimension index.
func (op *stack) along() (int, int) {
	if op.axis == stackCols {
		return 1, 0
	}
	return 0, 1
}

func (op *stack) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if len(in) == 0 {
		return nil, errorf(op.name(), ErrUsage, "cannot stack an empty list of blocks")
	}
	if !op.dtype.Valid() {
		return nil, errorf(op.name(), ErrTypeMismatch, "output dtype must be specified")
	}
	for i, t := range in {
		if err := requireSparseType(op.name(), t, i); err != nil {
			return nil, err
		}
	}
	return []tensor.Type{tensor.SparseType(op.format, op.dtype)}, nil
}

func (op *stack) InferShape(in [][]int) ([][]int, error) {
	if len(in) == 0 {
		return nil, errorf(op.name(), ErrUsage, "cannot stack an empty list of blocks")
	}
	along, shared := op.along()
	out := []int{0, 0}
	out[shared] = in[0][shared]
	for _, s := range in {
		if s[along] == Unknown {
			out[along] = Unknown
			break
		}
		out[along] += s[along]
	}
	return [][]int{out}, nil
}

func (op *stack) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if _, err := op.OutputTypes(Types(in...)); err != nil {
		return nil, err
	}
	along, shared := op.along()
	n := in[0].Dims()[shared]
	var rows, cols []int
	var re, im []float64
	offset := 0
	for i, v := range in {
		b := v.(*tensor.SparseTensor)
		if b.Shape[shared] != n {
			return nil, errorf(op.name(), ErrShapeMismatch, "block %d has shape %v, expected dimension %d to be %d", i, b.Shape, shared, n)
		}
		b.Each(func(k, r, c int) {
			if op.axis == stackCols {
				c += offset
			} else {
				r += offset
			}
			rows = append(rows, r)
			cols = append(cols, c)
			re = append(re, b.Data[k])
			if op.dtype.IsComplex() {
				im = append(im, imagAt(b.Imag, k))
			}
		})
		offset += b.Shape[along]
	}
	shape := []int{0, 0}
	shape[along], shape[shared] = offset, n
	if re == nil {
		re = []float64{}
	}
	out, err := tensor.FromTriplets(op.format, op.dtype, shape, rows, cols, re, im)
	if err != nil {
		return nil, err
	}
	out.SortIndices()
	return []tensor.Value{out}, nil
}

func (op *stack) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	grads := make([]tensor.Value, len(in))
	g := gradArg(gout, 0)
	if g == nil {
		return grads, nil
	}
	gz, err := asDense(op.name(), g)
	if err != nil {
		return nil, err
	}
	along, shared := op.along()
	want := []int{0, 0}
	for _, v := range in {
		want[along] += v.Dims()[along]
		want[shared] = v.Dims()[shared]
	}
	if gz.Rank() != 2 || gz.Shape[0] != want[0] || gz.Shape[1] != want[1] {
		return nil, errorf(op.name(), ErrShapeMismatch, "gradient shape %v, want %v", gz.Shape, want)
	}
	offset := 0
	for i, v := range in {
		size := v.Dims()[along]
		var part *tensor.Tensor
		if op.axis == stackCols {
			part = denseBlock(gz, 0, gz.Rows(), offset, offset+size)
		} else {
			part = denseBlock(gz, offset, offset+size, 0, gz.Cols())
		}
		offset += size
		if !v.Type().DType.IsContinuous() {
			continue
		}
		grads[i], err = Apply(NewSparseFromDense(op.format), part)
		if err != nil {
			return nil, err
		}
	}
	return grads, nil
}

// denseBlock copies rows [r0, r1) and columns [c0, c1) of a dense matrix.
func denseBlock(t *tensor.Tensor, r0, r1, c0, c1 int) *tensor.Tensor {
	cols := t.Cols()
	out := tensor.Zeros(t.DType, r1-r0, c1-c0)
	w := c1 - c0
	for i := r0; i < r1; i++ {
		copy(out.Data[(i-r0)*w:(i-r0+1)*w], t.Data[i*cols+c0:i*cols+c1])
		if t.Imag != nil {
			copy(out.Imag[(i-r0)*w:(i-r0+1)*w], t.Imag[i*cols+c0:i*cols+c1])
		}
	}
	return out
}
