package matrix

import (
	"slices"

	"gonum.org/v1/gonum/blas/blas64"

	"github.com/tsawler/go-sparseops/tensor"
)

// The kernels in this file compute the same results as their generic
// operators for float32/float64 data in one fixed layout. Other dtypes are
// rejected with ErrUnsupportedLayout. They visit stored entries in storage
// order and accumulate, so within-slice index order does not affect the
// result. Large inputs are split across goroutines with parallelFor.

func requireFloat(name string, in []tensor.Type) error {
	for i, t := range in {
		if !t.DType.IsFloat() {
			return errorf(name, ErrUnsupportedLayout, "input %d has dtype %s, kernel needs float32 or float64", i, t.DType)
		}
	}
	return nil
}

func requireFormat(name string, t tensor.Type, format tensor.Format) error {
	if t.Format != format {
		return errorf(name, ErrUnsupportedLayout, "kernel needs %s input, got %s", format, t.Format)
	}
	return nil
}

func vec(data []float64) blas64.Vector {
	return blas64.Vector{N: len(data), Data: data, Inc: 1}
}

// StructuredDotCSC is StructuredDot for a CSC sparse operand and a dense
// right-hand side. Output columns are split between workers, so each worker
// owns a disjoint column band of every output row.
type StructuredDotCSC struct{ base }

func NewStructuredDotCSC() *StructuredDotCSC {
	return &StructuredDotCSC{base{Descriptor{Kind: KindStructuredDotCSC, Format: tensor.CSC}}}
}

func (op *StructuredDotCSC) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return structuredDotKernelTypes(op.name(), in, tensor.CSC)
}

func (op *StructuredDotCSC) InferShape(in [][]int) ([][]int, error) {
	return productShape(op.name(), in)
}

func (op *StructuredDotCSC) Forward(in []tensor.Value) ([]tensor.Value, error) {
	a, b, out, err := structuredDotKernelArgs(op.name(), in, tensor.CSC)
	if err != nil {
		return nil, err
	}
	n := b.Cols()
	err = parallelFor(n, len(a.Data)*n, func(c0, c1 int) error {
		for j := 0; j < a.Cols(); j++ {
			brow := b.Data[j*n+c0 : j*n+c1]
			for k := a.Indptr[j]; k < a.Indptr[j+1]; k++ {
				r := int(a.Indices[k])
				blas64.Axpy(a.Data[k], vec(brow), vec(out.Data[r*n+c0:r*n+c1]))
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

func (op *StructuredDotCSC) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return structuredDotGrad(op.name(), in, gout)
}

// StructuredDotCSR is StructuredDot for a CSR sparse operand and a dense
// right-hand side. Rows are split between workers.
type StructuredDotCSR struct{ base }

func NewStructuredDotCSR() *StructuredDotCSR {
	return &StructuredDotCSR{base{Descriptor{Kind: KindStructuredDotCSR, Format: tensor.CSR}}}
}

func (op *StructuredDotCSR) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return structuredDotKernelTypes(op.name(), in, tensor.CSR)
}

func (op *StructuredDotCSR) InferShape(in [][]int) ([][]int, error) {
	return productShape(op.name(), in)
}

func (op *StructuredDotCSR) Forward(in []tensor.Value) ([]tensor.Value, error) {
	a, b, out, err := structuredDotKernelArgs(op.name(), in, tensor.CSR)
	if err != nil {
		return nil, err
	}
	n := b.Cols()
	err = parallelFor(a.Rows(), len(a.Data)*n, func(r0, r1 int) error {
		for i := r0; i < r1; i++ {
			dst := vec(out.Data[i*n : (i+1)*n])
			for k := a.Indptr[i]; k < a.Indptr[i+1]; k++ {
				c := int(a.Indices[k])
				blas64.Axpy(a.Data[k], vec(b.Data[c*n:(c+1)*n]), dst)
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

func (op *StructuredDotCSR) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return structuredDotGrad(op.name(), in, gout)
}

func structuredDotKernelTypes(name string, in []tensor.Type, format tensor.Format) ([]tensor.Type, error) {
	if err := checkTypeArity(name, in, 2); err != nil {
		return nil, err
	}
	if err := requireSparseType(name, in[0], 0); err != nil {
		return nil, err
	}
	if err := requireFormat(name, in[0], format); err != nil {
		return nil, err
	}
	if err := requireDenseType(name, in[1], 1, 2); err != nil {
		return nil, err
	}
	if err := requireFloat(name, in); err != nil {
		return nil, err
	}
	return []tensor.Type{tensor.DenseType(tensor.Upcast(in[0].DType, in[1].DType), 2)}, nil
}

func structuredDotKernelArgs(name string, in []tensor.Value, format tensor.Format) (*tensor.SparseTensor, *tensor.Tensor, *tensor.Tensor, error) {
	types, err := structuredDotKernelTypes(name, Types(in...), format)
	if err != nil {
		return nil, nil, nil, err
	}
	a := in[0].(*tensor.SparseTensor)
	b := in[1].(*tensor.Tensor)
	if a.Cols() != b.Rows() {
		return nil, nil, nil, errorf(name, ErrShapeMismatch, "inner dimensions of %v and %v differ", a.Shape, b.Shape)
	}
	return a, b, tensor.Zeros(types[0].DType, a.Rows(), b.Cols()), nil
}

// StructuredDotGradCSC is StructuredDotGrad for a CSC sparse operand.
type StructuredDotGradCSC struct {
	base
	noGrad
}

func NewStructuredDotGradCSC() *StructuredDotGradCSC {
	return &StructuredDotGradCSC{base{Descriptor{Kind: KindStructuredDotGradCSC, Format: tensor.CSC}}, noGrad{KindStructuredDotGradCSC}}
}

func (op *StructuredDotGradCSC) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return structuredDotGradKernelTypes(op.name(), in, tensor.CSC)
}

func (op *StructuredDotGradCSC) InferShape(in [][]int) ([][]int, error) {
	return NewStructuredDotGrad().InferShape(in)
}

func (op *StructuredDotGradCSC) Forward(in []tensor.Value) ([]tensor.Value, error) {
	return structuredDotGradKernel(op.name(), in, tensor.CSC)
}

// StructuredDotGradCSR is StructuredDotGrad for a CSR sparse operand.
type StructuredDotGradCSR struct {
	base
	noGrad
}

func NewStructuredDotGradCSR() *StructuredDotGradCSR {
	return &StructuredDotGradCSR{base{Descriptor{Kind: KindStructuredDotGradCSR, Format: tensor.CSR}}, noGrad{KindStructuredDotGradCSR}}
}

func (op *StructuredDotGradCSR) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return structuredDotGradKernelTypes(op.name(), in, tensor.CSR)
}

func (op *StructuredDotGradCSR) InferShape(in [][]int) ([][]int, error) {
	return NewStructuredDotGrad().InferShape(in)
}

func (op *StructuredDotGradCSR) Forward(in []tensor.Value) ([]tensor.Value, error) {
	return structuredDotGradKernel(op.name(), in, tensor.CSR)
}

func structuredDotGradKernelTypes(name string, in []tensor.Type, format tensor.Format) ([]tensor.Type, error) {
	out, err := structuredDotGradTypes(name, in)
	if err != nil {
		return nil, err
	}
	if err := requireFormat(name, in[0], format); err != nil {
		return nil, err
	}
	if err := requireFloat(name, in); err != nil {
		return nil, err
	}
	return out, nil
}

// structuredDotGradKernel fills dA.data[k] = g[row(k),:]·b[col(k),:]. Outer
// slices own disjoint ranges of the data buffer, so they are split freely.
func structuredDotGradKernel(name string, in []tensor.Value, format tensor.Format) ([]tensor.Value, error) {
	if _, err := structuredDotGradKernelTypes(name, Types(in...), format); err != nil {
		return nil, err
	}
	a, b, g, dtype, err := structuredDotGradArgs(name, in)
	if err != nil {
		return nil, err
	}
	n := b.Cols()
	data := make([]float64, len(a.Data))
	err = parallelFor(a.Outer(), len(a.Data)*n, func(o0, o1 int) error {
		for o := o0; o < o1; o++ {
			for k := a.Indptr[o]; k < a.Indptr[o+1]; k++ {
				r, c := o, int(a.Indices[k])
				if format == tensor.CSC {
					r, c = c, o
				}
				data[k] = blas64.Dot(vec(g.Data[r*n:(r+1)*n]), vec(b.Data[c*n:(c+1)*n]))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out, err := a.WithData(dtype, data, nil)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{out}, nil
}

// MulSDCSC is MulSD for a CSC sparse operand and a dense matrix.
type MulSDCSC struct{ base }

func NewMulSDCSC() *MulSDCSC {
	return &MulSDCSC{base{Descriptor{Kind: KindMulSDCSC, Format: tensor.CSC}}}
}

func (op *MulSDCSC) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return mulSDKernelTypes(op.name(), in, tensor.CSC)
}

func (op *MulSDCSC) InferShape(in [][]int) ([][]int, error) { return sameShape(op.name(), in) }

func (op *MulSDCSC) Forward(in []tensor.Value) ([]tensor.Value, error) {
	return mulSDKernel(op.name(), in, tensor.CSC)
}

func (op *MulSDCSC) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return mulSDGrad(op.name(), in, gout)
}

// MulSDCSR is MulSD for a CSR sparse operand and a dense matrix.
type MulSDCSR struct{ base }

func NewMulSDCSR() *MulSDCSR {
	return &MulSDCSR{base{Descriptor{Kind: KindMulSDCSR, Format: tensor.CSR}}}
}

func (op *MulSDCSR) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return mulSDKernelTypes(op.name(), in, tensor.CSR)
}

func (op *MulSDCSR) InferShape(in [][]int) ([][]int, error) { return sameShape(op.name(), in) }

func (op *MulSDCSR) Forward(in []tensor.Value) ([]tensor.Value, error) {
	return mulSDKernel(op.name(), in, tensor.CSR)
}

func (op *MulSDCSR) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return mulSDGrad(op.name(), in, gout)
}

func mulSDKernelTypes(name string, in []tensor.Type, format tensor.Format) ([]tensor.Type, error) {
	out, err := mulSDTypes(name, in)
	if err != nil {
		return nil, err
	}
	if err := requireFormat(name, in[0], format); err != nil {
		return nil, err
	}
	if in[1].Rank != 2 {
		return nil, errorf(name, ErrUnsupportedLayout, "kernel needs a dense matrix operand, got rank %d", in[1].Rank)
	}
	if err := requireFloat(name, in); err != nil {
		return nil, err
	}
	return out, nil
}

func mulSDKernel(name string, in []tensor.Value, format tensor.Format) ([]tensor.Value, error) {
	if _, err := mulSDKernelTypes(name, Types(in...), format); err != nil {
		return nil, err
	}
	x, y, err := mulSDArgs(name, in)
	if err != nil {
		return nil, err
	}
	cols := x.Cols()
	data := slices.Clone(x.Data)
	err = parallelFor(x.Outer(), len(data), func(o0, o1 int) error {
		for o := o0; o < o1; o++ {
			for k := x.Indptr[o]; k < x.Indptr[o+1]; k++ {
				r, c := o, int(x.Indices[k])
				if format == tensor.CSC {
					r, c = c, o
				}
				data[k] *= y.Data[r*cols+c]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out, err := x.WithData(x.DType, data, nil)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{out}, nil
}

// MulSVCSR is MulSV for a CSR sparse operand.
type MulSVCSR struct{ base }

func NewMulSVCSR() *MulSVCSR {
	return &MulSVCSR{base{Descriptor{Kind: KindMulSVCSR, Format: tensor.CSR}}}
}

func (op *MulSVCSR) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return sparseVectorKernelTypes(op.name(), in)
}

func (op *MulSVCSR) InferShape(in [][]int) ([][]int, error) { return sameShape(op.name(), in) }

func (op *MulSVCSR) Forward(in []tensor.Value) ([]tensor.Value, error) {
	return sparseVectorKernel(op.name(), in, func(v, s float64) float64 { return v * s })
}

func (op *MulSVCSR) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return mulSVGrad(op.name(), in, gout)
}

// StructuredAddSVCSR is StructuredAddSV for a CSR sparse operand.
type StructuredAddSVCSR struct{ base }

func NewStructuredAddSVCSR() *StructuredAddSVCSR {
	return &StructuredAddSVCSR{base{Descriptor{Kind: KindStructuredAddSVCSR, Format: tensor.CSR}}}
}

func (op *StructuredAddSVCSR) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return sparseVectorKernelTypes(op.name(), in)
}

func (op *StructuredAddSVCSR) InferShape(in [][]int) ([][]int, error) {
	return sameShape(op.name(), in)
}

func (op *StructuredAddSVCSR) Forward(in []tensor.Value) ([]tensor.Value, error) {
	return sparseVectorKernel(op.name(), in, func(v, s float64) float64 { return v + s })
}

func (op *StructuredAddSVCSR) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return structuredAddSVGrad(op.name(), in, gout)
}

func sparseVectorKernelTypes(name string, in []tensor.Type) ([]tensor.Type, error) {
	out, err := sparseVectorTypes(name, in)
	if err != nil {
		return nil, err
	}
	if err := requireFormat(name, in[0], tensor.CSR); err != nil {
		return nil, err
	}
	if err := requireFloat(name, in); err != nil {
		return nil, err
	}
	return out, nil
}

// sparseVectorKernel combines every stored x[i,j] with y[j] by row ranges.
func sparseVectorKernel(name string, in []tensor.Value, combine func(v, s float64) float64) ([]tensor.Value, error) {
	if _, err := sparseVectorKernelTypes(name, Types(in...)); err != nil {
		return nil, err
	}
	x, y, err := sparseVectorPair(name, in)
	if err != nil {
		return nil, err
	}
	data := make([]float64, len(x.Data))
	err = parallelFor(x.Rows(), len(data), func(r0, r1 int) error {
		for i := r0; i < r1; i++ {
			for k := x.Indptr[i]; k < x.Indptr[i+1]; k++ {
				data[k] = combine(x.Data[k], y.Data[x.Indices[k]])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out, err := x.WithData(x.DType, data, nil)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{out}, nil
}
