package tensor

import (
	"gonum.org/v1/gonum/mat"
)

// SparseView adapts a real sparse tensor to gonum's mat.Matrix interface so
// that gonum routines can consume it without densifying first.
type SparseView struct {
	sparse *SparseTensor
}

// NewSparseView wraps st. Complex matrices are rejected because mat.Matrix
// is real-valued.
func NewSparseView(st *SparseTensor) (*SparseView, error) {
	if st.IsComplex() {
		return nil, errorf("NewSparseView", ErrTypeMismatch, "mat.Matrix cannot hold dtype %s", st.DType)
	}
	return &SparseView{sparse: st}, nil
}

// Dims returns the matrix dimensions.
func (sv *SparseView) Dims() (r, c int) {
	return sv.sparse.Shape[0], sv.sparse.Shape[1]
}

// At returns the element at (i, j), summing duplicate entries.
func (sv *SparseView) At(i, j int) float64 {
	r, c := sv.Dims()
	if i < 0 || i >= r || j < 0 || j >= c {
		panic(mat.ErrIndexOutOfRange)
	}
	return sv.sparse.At(i, j)
}

// T returns the transpose as another sparse view over the same buffers.
func (sv *SparseView) T() mat.Matrix {
	return &SparseView{sparse: sv.sparse.T()}
}

// Sparse returns the wrapped tensor.
func (sv *SparseView) Sparse() *SparseTensor { return sv.sparse }

// ToGonum copies a real rank-2 tensor into a *mat.Dense. gonum does not
// allow empty matrices, so zero-sized tensors are rejected.
func (t *Tensor) ToGonum() (*mat.Dense, error) {
	if t.IsComplex() {
		return nil, errorf("ToGonum", ErrTypeMismatch, "mat.Dense cannot hold dtype %s", t.DType)
	}
	m, err := t.As2D()
	if err != nil {
		return nil, err
	}
	if m.Shape[0] == 0 || m.Shape[1] == 0 {
		return nil, errorf("ToGonum", ErrShapeMismatch, "empty shape %v", t.Shape)
	}
	data := make([]float64, len(m.Data))
	copy(data, m.Data)
	return mat.NewDense(m.Shape[0], m.Shape[1], data), nil
}

// FromGonum copies any gonum matrix into a rank-2 tensor of the given dtype.
func FromGonum(m mat.Matrix, dtype DType) *Tensor {
	r, c := m.Dims()
	out := Zeros(dtype, r, c)
	if d, ok := m.(*mat.Dense); ok {
		raw := d.RawMatrix()
		for i := 0; i < r; i++ {
			copy(out.Data[i*c:(i+1)*c], raw.Data[i*raw.Stride:i*raw.Stride+c])
		}
	} else {
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				out.Data[i*c+j] = m.At(i, j)
			}
		}
	}
	dtype.NormalizeSlice(out.Data)
	return out
}
