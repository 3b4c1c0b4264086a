package matrix

import (
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/tsawler/go-sparseops/tensor"
)

// SamplingDot computes p ⊙ (x·yᵀ) for dense x and y, evaluating the product
// only at p's stored positions. The result has p's layout and pattern. p
// receives no gradient.
type SamplingDot struct{ base }

func NewSamplingDot() *SamplingDot {
	return &SamplingDot{base{Descriptor{Kind: KindSamplingDot}}}
}

func (op *SamplingDot) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	return samplingDotTypes(op.name(), in)
}

func samplingDotTypes(name string, in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(name, in, 3); err != nil {
		return nil, err
	}
	for i := 0; i < 2; i++ {
		if err := requireDenseType(name, in[i], i, 2); err != nil {
			return nil, err
		}
	}
	if err := requireSparseType(name, in[2], 2); err != nil {
		return nil, err
	}
	dtype := tensor.Upcast(in[0].DType, in[1].DType, in[2].DType)
	return []tensor.Type{tensor.SparseType(in[2].Format, dtype)}, nil
}

func (op *SamplingDot) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 3); err != nil {
		return nil, err
	}
	return [][]int{append([]int{}, in[2]...)}, nil
}

func (op *SamplingDot) Forward(in []tensor.Value) ([]tensor.Value, error) {
	x, y, p, dtype, err := samplingDotArgs(op.name(), in)
	if err != nil {
		return nil, err
	}
	n := x.Cols()
	data := make([]float64, len(p.Data))
	imag := ensureImag(dtype, len(p.Data))
	p.Each(func(k, r, c int) {
		var sr, si float64
		for j := range n {
			re, im := cmul(x.Data[r*n+j], imagAt(x.Imag, r*n+j), y.Data[c*n+j], imagAt(y.Imag, c*n+j))
			sr += re
			si += im
		}
		if imag == nil {
			data[k] = p.Data[k] * sr
			return
		}
		data[k], imag[k] = cmul(p.Data[k], imagAt(p.Imag, k), sr, si)
	})
	out, err := p.WithData(dtype, data, imag)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{out}, nil
}

// Grad returns ((p⊙g)·y, (p⊙g)ᵀ·x, nil).
func (op *SamplingDot) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return samplingDotGrad(op.name(), in, gout)
}

func samplingDotGrad(name string, in, gout []tensor.Value) ([]tensor.Value, error) {
	x, y, p, dtype, err := samplingDotArgs(name, in)
	if err != nil {
		return nil, err
	}
	g := gradArg(gout, 0)
	if g == nil {
		return make([]tensor.Value, 3), nil
	}
	gz, err := asSparse(name, g, p.Format)
	if err != nil {
		return nil, err
	}
	if gz.Format != p.Format {
		gz = gz.ToFormat(p.Format)
	}
	pg, err := Apply(NewMulSS(), p.AsType(dtype), gz.AsType(dtype))
	if err != nil {
		return nil, err
	}
	pgs := pg.(*tensor.SparseTensor)
	gx, err := Apply(NewDot(), pgs, y)
	if err != nil {
		return nil, err
	}
	gy, err := Apply(NewDot(), pgs.T(), x)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{gx, gy, nil}, nil
}

func samplingDotArgs(name string, in []tensor.Value) (*tensor.Tensor, *tensor.Tensor, *tensor.SparseTensor, tensor.DType, error) {
	types, err := samplingDotTypes(name, Types(in...))
	if err != nil {
		return nil, nil, nil, 0, err
	}
	x := in[0].(*tensor.Tensor)
	y := in[1].(*tensor.Tensor)
	p := in[2].(*tensor.SparseTensor)
	if x.Cols() != y.Cols() || p.Rows() != x.Rows() || p.Cols() != y.Rows() {
		return nil, nil, nil, 0, errorf(name, ErrShapeMismatch, "x %v, y %v and p %v do not line up", x.Shape, y.Shape, p.Shape)
	}
	return x, y, p, types[0].DType, nil
}

// SamplingDotCSR is SamplingDot for a CSR pattern and float data. Rows of p
// are split between workers.
type SamplingDotCSR struct{ base }

func NewSamplingDotCSR() *SamplingDotCSR {
	return &SamplingDotCSR{base{Descriptor{Kind: KindSamplingDotCSR, Format: tensor.CSR}}}
}

func (op *SamplingDotCSR) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	out, err := samplingDotTypes(op.name(), in)
	if err != nil {
		return nil, err
	}
	if err := requireFormat(op.name(), in[2], tensor.CSR); err != nil {
		return nil, err
	}
	if err := requireFloat(op.name(), in); err != nil {
		return nil, err
	}
	return out, nil
}

func (op *SamplingDotCSR) InferShape(in [][]int) ([][]int, error) {
	return NewSamplingDot().InferShape(in)
}

func (op *SamplingDotCSR) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if _, err := op.OutputTypes(Types(in...)); err != nil {
		return nil, err
	}
	x, y, p, dtype, err := samplingDotArgs(op.name(), in)
	if err != nil {
		return nil, err
	}
	n := x.Cols()
	data := make([]float64, len(p.Data))
	err = parallelFor(p.Rows(), len(p.Data)*n, func(r0, r1 int) error {
		for i := r0; i < r1; i++ {
			xrow := vec(x.Data[i*n : (i+1)*n])
			for k := p.Indptr[i]; k < p.Indptr[i+1]; k++ {
				c := int(p.Indices[k])
				data[k] = p.Data[k] * blas64.Dot(xrow, vec(y.Data[c*n:(c+1)*n]))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out, err := p.WithData(dtype, data, nil)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{out}, nil
}

func (op *SamplingDotCSR) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	return samplingDotGrad(op.name(), in, gout)
}
