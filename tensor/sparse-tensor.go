package tensor

import (
	"fmt"
	"slices"
)

// SparseTensor is a 2-D matrix in compressed CSC or CSR layout.
//
// In CSC layout Indptr has one entry per column plus one and Indices holds
// row ids; CSR swaps the roles. Indices within an outer slice need not be
// sorted and explicit zeros may be stored. Complex dtypes keep imaginary
// parts in Imag, which has the same length as Data.
type SparseTensor struct {
	Shape   []int
	Format  Format
	DType   DType
	Data    []float64
	Imag    []float64
	Indices []int32
	Indptr  []int32
}

// NewSparseTensor creates a float64 sparse tensor over copies of the given buffers.
func NewSparseTensor(format Format, shape []int, data []float64, indices, indptr []int32) (*SparseTensor, error) {
	return NewTypedSparseTensor(format, Float64, shape, data, nil, indices, indptr)
}

// NewTypedSparseTensor creates a sparse tensor of any dtype. imag may be nil
// for complex dtypes, meaning all imaginary parts are zero, and must be nil
// for every other dtype.
func NewTypedSparseTensor(format Format, dtype DType, shape []int, data, imag []float64, indices, indptr []int32) (*SparseTensor, error) {
	if !dtype.Valid() {
		return nil, errorf("NewSparseTensor", ErrTypeMismatch, "invalid dtype %s", dtype)
	}
	if imag != nil && !dtype.IsComplex() {
		return nil, errorf("NewSparseTensor", ErrTypeMismatch, "imaginary parts given for dtype %s", dtype)
	}
	st := &SparseTensor{
		Shape:   slices.Clone(shape),
		Format:  format,
		DType:   dtype,
		Data:    slices.Clone(data),
		Indices: slices.Clone(indices),
		Indptr:  slices.Clone(indptr),
	}
	if st.Data == nil {
		st.Data = []float64{}
	}
	if st.Indices == nil {
		st.Indices = []int32{}
	}
	dtype.NormalizeSlice(st.Data)
	if dtype.IsComplex() {
		if imag == nil {
			st.Imag = make([]float64, len(data))
		} else {
			st.Imag = slices.Clone(imag)
			dtype.NormalizeSlice(st.Imag)
		}
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return st, nil
}

// EmptySparse returns an all-zero sparse matrix with no stored entries.
func EmptySparse(format Format, dtype DType, rows, cols int) *SparseTensor {
	st := &SparseTensor{
		Shape:   []int{rows, cols},
		Format:  format,
		DType:   dtype,
		Data:    []float64{},
		Indices: []int32{},
	}
	st.Indptr = make([]int32, st.Outer()+1)
	if dtype.IsComplex() {
		st.Imag = []float64{}
	}
	return st
}

// Validate checks the compressed-layout invariants: indptr has outer+1
// non-decreasing entries starting at 0 and ending at nnz, and every index
// lies in [0, inner).
func (st *SparseTensor) Validate() error {
	const op = "Validate"
	if len(st.Shape) != 2 {
		return errorf(op, ErrShapeMismatch, "sparse tensors are 2-D, got shape %v", st.Shape)
	}
	if st.Shape[0] < 0 || st.Shape[1] < 0 {
		return errorf(op, ErrShapeMismatch, "negative dimension in shape %v", st.Shape)
	}
	if st.Format != CSC && st.Format != CSR {
		return errorf(op, ErrTypeMismatch, "unknown format %s", st.Format)
	}
	nnz := len(st.Data)
	if len(st.Indices) != nnz {
		return errorf(op, ErrShapeMismatch, "data length %d != indices length %d", nnz, len(st.Indices))
	}
	if st.DType.IsComplex() && len(st.Imag) != nnz {
		return errorf(op, ErrShapeMismatch, "imaginary length %d != data length %d", len(st.Imag), nnz)
	}
	outer, inner := st.Outer(), st.Inner()
	if len(st.Indptr) != outer+1 {
		return errorf(op, ErrShapeMismatch, "indptr length %d, want %d for %s shape %v", len(st.Indptr), outer+1, st.Format, st.Shape)
	}
	if st.Indptr[0] != 0 {
		return errorf(op, ErrShapeMismatch, "indptr[0] = %d, want 0", st.Indptr[0])
	}
	for i := 0; i < outer; i++ {
		if st.Indptr[i+1] < st.Indptr[i] {
			return errorf(op, ErrShapeMismatch, "indptr decreases at %d", i)
		}
	}
	if int(st.Indptr[outer]) != nnz {
		return errorf(op, ErrShapeMismatch, "indptr[-1] = %d, want nnz %d", st.Indptr[outer], nnz)
	}
	for k, idx := range st.Indices {
		if idx < 0 || int(idx) >= inner {
			return errorf(op, ErrShapeMismatch, "index %d at position %d outside [0, %d)", idx, k, inner)
		}
	}
	return nil
}

func (st *SparseTensor) Type() Type { return SparseType(st.Format, st.DType) }

func (st *SparseTensor) Dims() []int { return st.Shape }

func (st *SparseTensor) Rows() int { return st.Shape[0] }

func (st *SparseTensor) Cols() int { return st.Shape[1] }

// Outer returns the compressed dimension: columns for CSC, rows for CSR.
func (st *SparseTensor) Outer() int {
	if st.Format == CSC {
		return st.Shape[1]
	}
	return st.Shape[0]
}

// Inner returns the dimension the indices range over.
func (st *SparseTensor) Inner() int {
	if st.Format == CSC {
		return st.Shape[0]
	}
	return st.Shape[1]
}

// GetNNZ returns the number of stored entries, explicit zeros included.
func (st *SparseTensor) GetNNZ() int { return len(st.Data) }

// GetFormat returns the storage layout.
func (st *SparseTensor) GetFormat() Format { return st.Format }

// GetDensity returns nnz / (rows*cols).
func (st *SparseTensor) GetDensity() float64 {
	total := st.Shape[0] * st.Shape[1]
	if total == 0 {
		return 0
	}
	return float64(len(st.Data)) / float64(total)
}

func (st *SparseTensor) IsComplex() bool { return st.DType.IsComplex() }

// Coords returns the (row, col) position of the entry stored at slot k of
// outer slice outer.
func (st *SparseTensor) Coords(outer, k int) (row, col int) {
	if st.Format == CSC {
		return int(st.Indices[k]), outer
	}
	return outer, int(st.Indices[k])
}

// Each calls fn for every stored entry in storage order.
func (st *SparseTensor) Each(fn func(k, row, col int)) {
	for o := 0; o < st.Outer(); o++ {
		for k := st.Indptr[o]; k < st.Indptr[o+1]; k++ {
			r, c := st.Coords(o, int(k))
			fn(int(k), r, c)
		}
	}
}

// RowIDs returns the row of every stored entry.
func (st *SparseTensor) RowIDs() []int {
	out := make([]int, len(st.Data))
	st.Each(func(k, row, _ int) { out[k] = row })
	return out
}

// ColIDs returns the column of every stored entry.
func (st *SparseTensor) ColIDs() []int {
	out := make([]int, len(st.Data))
	st.Each(func(k, _, col int) { out[k] = col })
	return out
}

// At returns the real value at (i, j), summing duplicate entries.
func (st *SparseTensor) At(i, j int) float64 {
	re, _ := st.at(i, j)
	return re
}

// AtComplex returns the complex value at (i, j), summing duplicate entries.
func (st *SparseTensor) AtComplex(i, j int) complex128 {
	re, im := st.at(i, j)
	return complex(re, im)
}

func (st *SparseTensor) at(i, j int) (re, im float64) {
	outer, inner := i, j
	if st.Format == CSC {
		outer, inner = j, i
	}
	for k := st.Indptr[outer]; k < st.Indptr[outer+1]; k++ {
		if int(st.Indices[k]) == inner {
			re += st.Data[k]
			if st.Imag != nil {
				im += st.Imag[k]
			}
		}
	}
	return re, im
}

// Clone returns a deep copy.
func (st *SparseTensor) Clone() *SparseTensor {
	return &SparseTensor{
		Shape:   slices.Clone(st.Shape),
		Format:  st.Format,
		DType:   st.DType,
		Data:    slices.Clone(st.Data),
		Imag:    slices.Clone(st.Imag),
		Indices: slices.Clone(st.Indices),
		Indptr:  slices.Clone(st.Indptr),
	}
}

// WithData returns a matrix with st's pattern (copied) and the given values.
// imag may be nil for real dtypes.
func (st *SparseTensor) WithData(dtype DType, data, imag []float64) (*SparseTensor, error) {
	if len(data) != len(st.Data) {
		return nil, errorf("WithData", ErrShapeMismatch, "got %d values for %d stored entries", len(data), len(st.Data))
	}
	return NewTypedSparseTensor(st.Format, dtype, st.Shape, data, imag, st.Indices, st.Indptr)
}

// OnesLike returns a matrix with st's pattern and every stored value set to 1.
func (st *SparseTensor) OnesLike() *SparseTensor {
	out := st.Clone()
	for k := range out.Data {
		out.Data[k] = 1
	}
	for k := range out.Imag {
		out.Imag[k] = 0
	}
	return out
}

// ZerosLike returns a matrix with st's pattern and every stored value set to 0.
func (st *SparseTensor) ZerosLike() *SparseTensor {
	out := st.Clone()
	clear(out.Data)
	clear(out.Imag)
	return out
}

// T returns the transpose as a relabeling: a CSR matrix becomes a CSC
// matrix of the swapped shape over the very same buffers.
func (st *SparseTensor) T() *SparseTensor {
	return &SparseTensor{
		Shape:   []int{st.Shape[1], st.Shape[0]},
		Format:  st.Format.Transposed(),
		DType:   st.DType,
		Data:    st.Data,
		Imag:    st.Imag,
		Indices: st.Indices,
		Indptr:  st.Indptr,
	}
}

// SamePattern reports whether st and other store entries at exactly the same
// slots in the same layout.
func (st *SparseTensor) SamePattern(other *SparseTensor) bool {
	return st.Format == other.Format &&
		slices.Equal(st.Shape, other.Shape) &&
		slices.Equal(st.Indptr, other.Indptr) &&
		slices.Equal(st.Indices, other.Indices)
}

// IsCompatibleWith checks that st and other can take part in an elementwise
// operation together.
func (st *SparseTensor) IsCompatibleWith(other *SparseTensor) error {
	if !slices.Equal(st.Shape, other.Shape) {
		return errorf("IsCompatibleWith", ErrShapeMismatch, "shapes %v and %v differ", st.Shape, other.Shape)
	}
	if st.Format != other.Format {
		return errorf("IsCompatibleWith", ErrTypeMismatch, "formats %s and %s differ", st.Format, other.Format)
	}
	if st.DType != other.DType {
		return errorf("IsCompatibleWith", ErrTypeMismatch, "dtypes %s and %s differ", st.DType, other.DType)
	}
	return nil
}

func (st *SparseTensor) String() string {
	return fmt.Sprintf("SparseTensor(%s, %s, shape=%v, nnz=%d)", st.Format, st.DType, st.Shape, len(st.Data))
}

// SparseMatrixInfo summarizes a sparse matrix.
type SparseMatrixInfo struct {
	Rows, Cols  int
	NNZ         int
	Density     float64
	Format      Format
	DType       DType
	MemoryBytes int64
	Sorted      bool
}

// Info returns a summary of st, including an estimate of its storage size.
func (st *SparseTensor) Info() SparseMatrixInfo {
	valueBytes := int64(st.DType.Bits() / 8)
	mem := int64(len(st.Data))*(valueBytes+4) + int64(len(st.Indptr))*4
	return SparseMatrixInfo{
		Rows:        st.Shape[0],
		Cols:        st.Shape[1],
		NNZ:         len(st.Data),
		Density:     st.GetDensity(),
		Format:      st.Format,
		DType:       st.DType,
		MemoryBytes: mem,
		Sorted:      st.HasSortedIndices(),
	}
}

// IsSparseWorthwhile reports whether compressed storage of a float64 matrix
// with the given density takes less memory than dense storage.
func IsSparseWorthwhile(rows, cols int, density float64) bool {
	if rows <= 0 || cols <= 0 {
		return false
	}
	nnz := density * float64(rows) * float64(cols)
	compressed := nnz*12 + float64(rows+1)*4
	return compressed < float64(rows)*float64(cols)*8
}
