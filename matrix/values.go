package matrix

import (
	"github.com/tsawler/go-sparseops/tensor"
)

// asSparse returns v as a sparse matrix, compressing a dense rank-2 value
// into format.
func asSparse(op string, v tensor.Value, format tensor.Format) (*tensor.SparseTensor, error) {
	switch x := v.(type) {
	case *tensor.SparseTensor:
		return x, nil
	case *tensor.Tensor:
		m, err := x.As2D()
		if err != nil {
			return nil, errorf(op, ErrTypeMismatch, "%v", err)
		}
		return tensor.NewSparseTensorFromDense(m, format, 0)
	}
	return nil, errorf(op, ErrTypeMismatch, "unsupported value %T", v)
}

// asDense returns v as a dense tensor, materializing sparse values.
func asDense(op string, v tensor.Value) (*tensor.Tensor, error) {
	switch x := v.(type) {
	case *tensor.Tensor:
		return x, nil
	case *tensor.SparseTensor:
		return x.ToDense(), nil
	}
	return nil, errorf(op, ErrTypeMismatch, "unsupported value %T", v)
}

// SpOnesLike returns a matrix with x's pattern and every stored value 1.
func SpOnesLike(x *tensor.SparseTensor) *tensor.SparseTensor {
	return x.OnesLike()
}

// SpZerosLike returns an all-zero matrix of x's shape, layout and dtype with
// no stored entries.
func SpZerosLike(x *tensor.SparseTensor) *tensor.SparseTensor {
	return tensor.EmptySparse(x.Format, x.DType, x.Rows(), x.Cols())
}

// cmul multiplies (ar + i·ai) by (br + i·bi).
func cmul(ar, ai, br, bi float64) (float64, float64) {
	return ar*br - ai*bi, ar*bi + ai*br
}

// imagAt returns imag[k], treating a nil slice as all zeros.
func imagAt(imag []float64, k int) float64 {
	if imag == nil {
		return 0
	}
	return imag[k]
}

// ensureImag allocates the imaginary buffer of a complex result.
func ensureImag(dtype tensor.DType, n int) []float64 {
	if dtype.IsComplex() {
		return make([]float64, n)
	}
	return nil
}
