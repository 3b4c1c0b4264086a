package tensor

import (
	"slices"
	"sort"
)

// FromTriplets builds a sparse matrix in the given format from coordinate
// triplets. Entries keep their relative order within each outer slice and
// duplicates are kept as separate stored entries. imag may be nil.
func FromTriplets(format Format, dtype DType, shape []int, rows, cols []int, re, im []float64) (*SparseTensor, error) {
	const op = "FromTriplets"
	if len(shape) != 2 {
		return nil, errorf(op, ErrShapeMismatch, "shape %v is not 2-D", shape)
	}
	if len(rows) != len(cols) || len(rows) != len(re) || (im != nil && len(im) != len(re)) {
		return nil, errorf(op, ErrShapeMismatch, "triplet lengths differ: rows=%d cols=%d values=%d", len(rows), len(cols), len(re))
	}
	nrows, ncols := shape[0], shape[1]
	outerIDs, innerIDs, outer := rows, cols, nrows
	if format == CSC {
		outerIDs, innerIDs, outer = cols, rows, ncols
	}
	for k := range rows {
		if rows[k] < 0 || rows[k] >= nrows || cols[k] < 0 || cols[k] >= ncols {
			return nil, errorf(op, ErrOutOfRange, "entry (%d, %d) outside shape %v", rows[k], cols[k], shape)
		}
	}

	indptr := make([]int32, outer+1)
	for _, o := range outerIDs {
		indptr[o+1]++
	}
	for i := 0; i < outer; i++ {
		indptr[i+1] += indptr[i]
	}
	next := slices.Clone(indptr[:outer])
	indices := make([]int32, len(re))
	data := make([]float64, len(re))
	var imag []float64
	if dtype.IsComplex() {
		imag = make([]float64, len(re))
	}
	for k, o := range outerIDs {
		dst := next[o]
		next[o]++
		indices[dst] = int32(innerIDs[k])
		data[dst] = dtype.Normalize(re[k])
		if imag != nil && im != nil {
			imag[dst] = dtype.Normalize(im[k])
		}
	}
	st := &SparseTensor{
		Shape:   []int{nrows, ncols},
		Format:  format,
		DType:   dtype,
		Data:    data,
		Imag:    imag,
		Indices: indices,
		Indptr:  indptr,
	}
	return st, nil
}

// ToFormat returns a copy of st in the requested layout. Converting between
// layouts produces sorted indices; duplicates are preserved.
func (st *SparseTensor) ToFormat(format Format) *SparseTensor {
	if st.Format == format {
		return st.Clone()
	}
	var im []float64
	if st.Imag != nil {
		im = st.Imag
	}
	out, err := FromTriplets(format, st.DType, st.Shape, st.RowIDs(), st.ColIDs(), st.Data, im)
	if err != nil {
		// every coordinate of a valid matrix lies inside its own shape
		panic(err)
	}
	return out
}

// ConvertToCSR returns st in CSR layout.
func (st *SparseTensor) ConvertToCSR() *SparseTensor { return st.ToFormat(CSR) }

// ConvertToCSC returns st in CSC layout.
func (st *SparseTensor) ConvertToCSC() *SparseTensor { return st.ToFormat(CSC) }

// ToDense materializes st, summing duplicate entries.
func (st *SparseTensor) ToDense() *Tensor {
	rows, cols := st.Shape[0], st.Shape[1]
	out := Zeros(st.DType, rows, cols)
	st.Each(func(k, r, c int) {
		out.Data[r*cols+c] += st.Data[k]
		if st.Imag != nil {
			out.Imag[r*cols+c] += st.Imag[k]
		}
	})
	st.DType.NormalizeSlice(out.Data)
	if out.Imag != nil {
		st.DType.NormalizeSlice(out.Imag)
	}
	return out
}

// NewSparseTensorFromDense stores every element of a rank-2 tensor whose
// magnitude exceeds threshold. Use threshold 0 to keep all nonzeros. NaN
// entries are always kept.
func NewSparseTensorFromDense(dense *Tensor, format Format, threshold float64) (*SparseTensor, error) {
	if len(dense.Shape) != 2 {
		return nil, errorf("NewSparseTensorFromDense", ErrTypeMismatch, "need a rank-2 tensor, got rank %d", len(dense.Shape))
	}
	rows, cols := dense.Shape[0], dense.Shape[1]
	var rs, cs []int
	var re, im []float64
	keep := func(i int) bool {
		v := dense.Data[i]
		if !(v <= threshold && v >= -threshold) {
			return true
		}
		if dense.Imag != nil {
			w := dense.Imag[i]
			return !(w <= threshold && w >= -threshold)
		}
		return false
	}
	visit := func(i, j int) {
		idx := i*cols + j
		if !keep(idx) {
			return
		}
		rs = append(rs, i)
		cs = append(cs, j)
		re = append(re, dense.Data[idx])
		if dense.Imag != nil {
			im = append(im, dense.Imag[idx])
		}
	}
	if format == CSR {
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				visit(i, j)
			}
		}
	} else {
		for j := 0; j < cols; j++ {
			for i := 0; i < rows; i++ {
				visit(i, j)
			}
		}
	}
	if re == nil {
		re = []float64{}
	}
	return FromTriplets(format, dense.DType, dense.Shape, rs, cs, re, im)
}

// HasSortedIndices reports whether indices are non-decreasing within every
// outer slice.
func (st *SparseTensor) HasSortedIndices() bool {
	for o := 0; o < st.Outer(); o++ {
		for k := st.Indptr[o] + 1; k < st.Indptr[o+1]; k++ {
			if st.Indices[k] < st.Indices[k-1] {
				return false
			}
		}
	}
	return true
}

// SortIndices sorts the indices of every outer slice in place, carrying the
// values along. The sort is stable so duplicates keep their order.
func (st *SparseTensor) SortIndices() {
	for o := 0; o < st.Outer(); o++ {
		lo, hi := int(st.Indptr[o]), int(st.Indptr[o+1])
		if hi-lo < 2 {
			continue
		}
		sort.Stable(sliceSorter{st: st, lo: lo, n: hi - lo})
	}
}

type sliceSorter struct {
	st *SparseTensor
	lo int
	n  int
}

func (s sliceSorter) Len() int { return s.n }

func (s sliceSorter) Less(i, j int) bool {
	return s.st.Indices[s.lo+i] < s.st.Indices[s.lo+j]
}

func (s sliceSorter) Swap(i, j int) {
	i, j = s.lo+i, s.lo+j
	s.st.Indices[i], s.st.Indices[j] = s.st.Indices[j], s.st.Indices[i]
	s.st.Data[i], s.st.Data[j] = s.st.Data[j], s.st.Data[i]
	if s.st.Imag != nil {
		s.st.Imag[i], s.st.Imag[j] = s.st.Imag[j], s.st.Imag[i]
	}
}

// EliminateZeros removes explicitly stored zeros in place.
func (st *SparseTensor) EliminateZeros() {
	st.compact(func(k int) bool {
		return st.Data[k] != 0 || (st.Imag != nil && st.Imag[k] != 0)
	})
}

// compact keeps the entries for which keep returns true, in place.
func (st *SparseTensor) compact(keep func(k int) bool) {
	dst := 0
	start := 0
	for o := 0; o < st.Outer(); o++ {
		end := int(st.Indptr[o+1])
		for k := start; k < end; k++ {
			if !keep(k) {
				continue
			}
			st.Indices[dst] = st.Indices[k]
			st.Data[dst] = st.Data[k]
			if st.Imag != nil {
				st.Imag[dst] = st.Imag[k]
			}
			dst++
		}
		start = end
		st.Indptr[o+1] = int32(dst)
	}
	st.Indices = st.Indices[:dst]
	st.Data = st.Data[:dst]
	if st.Imag != nil {
		st.Imag = st.Imag[:dst]
	}
}

// SumDuplicates sorts indices and merges entries sharing a position, in place.
func (st *SparseTensor) SumDuplicates() {
	st.SortIndices()
	dst := 0
	start := 0
	for o := 0; o < st.Outer(); o++ {
		end := int(st.Indptr[o+1])
		first := dst
		for k := start; k < end; k++ {
			if dst > first && st.Indices[dst-1] == st.Indices[k] {
				st.Data[dst-1] += st.Data[k]
				if st.Imag != nil {
					st.Imag[dst-1] += st.Imag[k]
				}
				continue
			}
			st.Indices[dst] = st.Indices[k]
			st.Data[dst] = st.Data[k]
			if st.Imag != nil {
				st.Imag[dst] = st.Imag[k]
			}
			dst++
		}
		start = end
		st.Indptr[o+1] = int32(dst)
	}
	st.Indices = st.Indices[:dst]
	st.Data = st.Data[:dst]
	st.DType.NormalizeSlice(st.Data)
	if st.Imag != nil {
		st.Imag = st.Imag[:dst]
		st.DType.NormalizeSlice(st.Imag)
	}
}

// Canonical returns a copy with sorted indices and duplicates summed.
func (st *SparseTensor) Canonical() *SparseTensor {
	out := st.Clone()
	out.SumDuplicates()
	return out
}

// AsType returns a copy with values converted to dtype, keeping the pattern.
// Converting complex values to a real dtype discards the imaginary parts.
func (st *SparseTensor) AsType(dtype DType) *SparseTensor {
	out := st.Clone()
	out.DType = dtype
	dtype.NormalizeSlice(out.Data)
	switch {
	case dtype.IsComplex() && out.Imag == nil:
		out.Imag = make([]float64, len(out.Data))
	case dtype.IsComplex():
		dtype.NormalizeSlice(out.Imag)
	default:
		out.Imag = nil
	}
	return out
}

// Slice returns the submatrix of rows [r0, r1) and columns [c0, c1) in st's
// format. Bounds must already be clamped to the shape.
func (st *SparseTensor) Slice(r0, r1, c0, c1 int) (*SparseTensor, error) {
	if r0 < 0 || c0 < 0 || r1 > st.Shape[0] || c1 > st.Shape[1] || r0 > r1 || c0 > c1 {
		return nil, errorf("Slice", ErrOutOfRange, "rows [%d,%d) cols [%d,%d) outside shape %v", r0, r1, c0, c1, st.Shape)
	}
	o0, o1, i0, i1 := r0, r1, c0, c1
	if st.Format == CSC {
		o0, o1, i0, i1 = c0, c1, r0, r1
	}
	out := EmptySparse(st.Format, st.DType, r1-r0, c1-c0)
	for o := o0; o < o1; o++ {
		for k := st.Indptr[o]; k < st.Indptr[o+1]; k++ {
			idx := int(st.Indices[k])
			if idx < i0 || idx >= i1 {
				continue
			}
			out.Indices = append(out.Indices, int32(idx-i0))
			out.Data = append(out.Data, st.Data[k])
			if st.Imag != nil {
				out.Imag = append(out.Imag, st.Imag[k])
			}
		}
		out.Indptr[o-o0+1] = int32(len(out.Data))
	}
	return out, nil
}

// Diagonal returns the main diagonal as a dense vector of length
// min(rows, cols), summing duplicates.
func (st *SparseTensor) Diagonal() *Tensor {
	n := min(st.Shape[0], st.Shape[1])
	out := Zeros(st.DType, n)
	st.Each(func(k, r, c int) {
		if r != c {
			return
		}
		out.Data[r] += st.Data[k]
		if st.Imag != nil {
			out.Imag[r] += st.Imag[k]
		}
	})
	return out
}
