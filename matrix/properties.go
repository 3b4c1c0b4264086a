package matrix

import (
	"github.com/tsawler/go-sparseops/tensor"
)

// CSMProperties decomposes a sparse matrix into its (data, indices, indptr,
// shape) fields. With a kmap, the data output is data[kmap].
type CSMProperties struct {
	base
	kmap KMap
}

// NewCSMProperties returns the decomposition operator. An identity kmap is
// normalized to nil.
func NewCSMProperties(kmap []int32) *CSMProperties {
	km := NewKMap(kmap)
	return &CSMProperties{base: base{Descriptor{Kind: KindCSMProperties, KMap: km}}, kmap: km}
}

func (op *CSMProperties) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	if err := requireSparseType(op.name(), in[0], 0); err != nil {
		return nil, err
	}
	idx := tensor.DenseType(tensor.Int32, 1)
	return []tensor.Type{tensor.DenseType(in[0].DType, 1), idx, idx, idx}, nil
}

// InferShape reports the data and indices lengths as Unknown, since the
// stored-entry count is a runtime property. The indptr length depends on
// the layout, which a shape alone does not carry.
func (op *CSMProperties) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	data := []int{Unknown}
	if op.kmap != nil {
		data = []int{len(op.kmap)}
	}
	return [][]int{data, {Unknown}, {Unknown}, {2}}, nil
}

func (op *CSMProperties) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	x, err := sparseArg(op.name(), in, 0)
	if err != nil {
		return nil, err
	}
	var data *tensor.Tensor
	if op.kmap == nil {
		data = &tensor.Tensor{Shape: []int{len(x.Data)}, DType: x.DType, Data: x.Data, Imag: x.Imag}
	} else {
		data, err = gatherKMap(op.name(), x.DType, x.Data, x.Imag, op.kmap)
		if err != nil {
			return nil, err
		}
	}
	shape := tensor.IndexVector([]int32{int32(x.Shape[0]), int32(x.Shape[1])})
	return []tensor.Value{data, tensor.IndexVector(x.Indices), tensor.IndexVector(x.Indptr), shape}, nil
}

// Grad rebuilds a sparse matrix with the input's layout from the data
// gradient. The index outputs are not differentiable.
func (op *CSMProperties) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 1); err != nil {
		return nil, err
	}
	x, err := sparseArg(op.name(), in, 0)
	if err != nil {
		return nil, err
	}
	g, ok := gradArg(gout, 0).(*tensor.Tensor)
	if !ok || g == nil {
		return []tensor.Value{nil}, nil
	}
	if op.kmap != nil {
		if g.Size() != len(op.kmap) {
			return nil, errorf(op.name(), ErrShapeMismatch, "data gradient has %d entries, kmap selects %d", g.Size(), len(op.kmap))
		}
		g = scatterKMap(g, op.kmap, len(x.Data))
	}
	fields, err := NewCSMProperties(nil).Forward([]tensor.Value{x})
	if err != nil {
		return nil, err
	}
	fields[0] = g
	rebuilt, err := NewCSM(x.Format, nil).Forward(fields)
	if err != nil {
		return nil, err
	}
	return rebuilt, nil
}

func (op *CSMProperties) Aliasing() []Alias {
	if op.kmap != nil {
		return nil
	}
	return []Alias{{Output: 0, Input: 0, Kind: AliasView}}
}

// CSM composes a sparse matrix from (data, indices, indptr, shape). With a
// kmap, data[kmap] is used as the stored values.
type CSM struct {
	base
	format tensor.Format
	kmap   KMap
}

// NewCSM returns the construction operator for the given layout.
func NewCSM(format tensor.Format, kmap []int32) *CSM {
	km := NewKMap(kmap)
	return &CSM{base: base{Descriptor{Kind: KindCSM, Format: format, KMap: km}}, format: format, kmap: km}
}

func (op *CSM) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 4); err != nil {
		return nil, err
	}
	if err := requireDenseType(op.name(), in[0], 0, 1); err != nil {
		return nil, err
	}
	for i := 1; i < 4; i++ {
		if err := requireDenseType(op.name(), in[i], i, 1); err != nil {
			return nil, err
		}
		if !in[i].DType.IsInteger() {
			return nil, errorf(op.name(), ErrTypeMismatch, "input %d must be an integer vector, got %s", i, in[i])
		}
	}
	return []tensor.Type{tensor.SparseType(op.format, in[0].DType)}, nil
}

// InferShape cannot read the values of the shape input, so both output
// dimensions are Unknown.
func (op *CSM) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 4); err != nil {
		return nil, err
	}
	if len(in[3]) != 1 || (in[3][0] != Unknown && in[3][0] != 2) {
		return nil, errorf(op.name(), ErrShapeMismatch, "shape input must be a length-2 vector, got shape %v", in[3])
	}
	return [][]int{{Unknown, Unknown}}, nil
}

func (op *CSM) Forward(in []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 4); err != nil {
		return nil, err
	}
	data, err := denseArg(op.name(), in, 0, 1)
	if err != nil {
		return nil, err
	}
	indices, err := intArg(op.name(), in, 1, 1)
	if err != nil {
		return nil, err
	}
	indptr, err := intArg(op.name(), in, 2, 1)
	if err != nil {
		return nil, err
	}
	shape, err := intArg(op.name(), in, 3, 1)
	if err != nil {
		return nil, err
	}
	if shape.Size() != 2 {
		return nil, errorf(op.name(), ErrShapeMismatch, "shape should be an array of length 2, got %d", shape.Size())
	}
	if op.kmap != nil {
		data, err = gatherKMap(op.name(), data.DType, data.Data, data.Imag, op.kmap)
		if err != nil {
			return nil, err
		}
	}
	if data.Size() != indices.Size() {
		return nil, errorf(op.name(), ErrShapeMismatch, "data has %d elements but indices has %d", data.Size(), indices.Size())
	}
	out := &tensor.SparseTensor{
		Shape:   shape.Ints(),
		Format:  op.format,
		DType:   data.DType,
		Data:    data.Data,
		Imag:    data.Imag,
		Indices: indices.Int32s(),
		Indptr:  indptr.Int32s(),
	}
	if out.DType.IsComplex() && out.Imag == nil {
		out.Imag = make([]float64, len(out.Data))
	}
	if err := out.Validate(); err != nil {
		return nil, errorf(op.name(), ErrShapeMismatch, "%v", err)
	}
	return []tensor.Value{out}, nil
}

// Grad maps the output gradient back onto the data input with CSMGrad,
// inverting the kmap selection. Index inputs get no gradient.
func (op *CSM) Grad(in, gout []tensor.Value) ([]tensor.Value, error) {
	if err := checkArity(op.name(), in, 4); err != nil {
		return nil, err
	}
	g := gradArg(gout, 0)
	if g == nil {
		return make([]tensor.Value, 4), nil
	}
	gs, err := asSparse(op.name(), g, op.format)
	if err != nil {
		return nil, err
	}
	if gs.Format != op.format {
		gs = gs.ToFormat(op.format)
	}
	gfields, err := NewCSMProperties(nil).Forward([]tensor.Value{gs})
	if err != nil {
		return nil, err
	}
	args := append(append([]tensor.Value{}, in...), gfields...)
	gdata, err := Apply(NewCSMGrad(op.kmap), args...)
	if err != nil {
		return nil, err
	}
	return []tensor.Value{gdata, nil, nil, nil}, nil
}

func (op *CSM) Aliasing() []Alias {
	if op.kmap != nil {
		return nil
	}
	return []Alias{{Output: 0, Input: 0, Kind: AliasView}}
}

// CSMGrad computes the gradient of CSM's data input from a sparse gradient
// whose pattern may differ from the constructed matrix.
//
// Inputs are the decomposed forward matrix (x_data, x_indices, x_indptr,
// x_shape) followed by the decomposed gradient (g_data, g_indices,
// g_indptr, g_shape). For every outer slice, the gradient's entries are
// scattered into a dense row of inner-dimension length, gathered at the
// forward matrix's positions, and the touched row entries cleared again.
type CSMGrad struct {
	base
	noGrad
	kmap KMap
}

// NewCSMGrad returns the gradient operator of NewCSM(format, kmap).
func NewCSMGrad(kmap []int32) *CSMGrad {
	km := NewKMap(kmap)
	return &CSMGrad{base: base{Descriptor{Kind: KindCSMGrad, KMap: km}}, noGrad: noGrad{KindCSMGrad}, kmap: km}
}

func (op *CSMGrad) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	if err := checkTypeArity(op.name(), in, 8); err != nil {
		return nil, err
	}
	for i, t := range in {
		if err := requireDenseType(op.name(), t, i, 1); err != nil {
			return nil, err
		}
	}
	return []tensor.Type{tensor.DenseType(in[0].DType, 1)}, nil
}

func (op *CSMGrad) InferShape(in [][]int) ([][]int, error) {
	if err := checkShapeArity(op.name(), in, 8); err != nil {
		return nil, err
	}
	if op.kmap == nil {
		return [][]int{append([]int{}, in[1]...)}, nil
	}
	return [][]int{append([]int{}, in[0]...)}, nil
}

func (op *CSMGrad) Forward(in []tensor.Value) ([]tensor.Value, error) {
	args, err := csmGradArgs(op.name(), in)
	if err != nil {
		return nil, err
	}
	nnz := len(args.xIndices)
	if op.kmap != nil && nnz != len(op.kmap) {
		return nil, errorf(op.name(), ErrShapeMismatch, "kmap selects %d entries, matrix stores %d", len(op.kmap), nnz)
	}
	if op.kmap == nil && nnz != args.xData.Size() {
		return nil, errorf(op.name(), ErrShapeMismatch, "x_data has %d entries, x_indices %d", args.xData.Size(), nnz)
	}

	dtype := args.xData.DType
	gathered := tensor.Zeros(dtype, nnz)
	row := make([]float64, args.inner)
	args.gatherReal(row, gathered.Data, 0, args.outer)
	if gathered.Imag != nil {
		args.gatherImag(row, gathered.Imag)
	}
	dtype.NormalizeSlice(gathered.Data)

	if op.kmap == nil {
		return []tensor.Value{gathered}, nil
	}
	return []tensor.Value{scatterKMap(gathered, op.kmap, args.xData.Size())}, nil
}

// CSMGradFast is the float-only form of CSMGrad without a kmap. It reuses
// pooled scratch rows and splits large matrices across goroutines.
type CSMGradFast struct {
	base
	noGrad
}

func NewCSMGradFast() *CSMGradFast {
	return &CSMGradFast{base: base{Descriptor{Kind: KindCSMGradFast}}, noGrad: noGrad{KindCSMGradFast}}
}

func (op *CSMGradFast) OutputTypes(in []tensor.Type) ([]tensor.Type, error) {
	out, err := NewCSMGrad(nil).OutputTypes(in)
	if err != nil {
		return nil, err
	}
	if !in[0].DType.IsFloat() || !in[4].DType.IsFloat() {
		return nil, errorf(op.name(), ErrUnsupportedLayout, "float data required, got %s and %s", in[0].DType, in[4].DType)
	}
	return out, nil
}

func (op *CSMGradFast) InferShape(in [][]int) ([][]int, error) {
	return NewCSMGrad(nil).InferShape(in)
}

func (op *CSMGradFast) Forward(in []tensor.Value) ([]tensor.Value, error) {
	args, err := csmGradArgs(op.name(), in)
	if err != nil {
		return nil, err
	}
	if !args.xData.DType.IsFloat() || !args.gData.DType.IsFloat() {
		return nil, errorf(op.name(), ErrUnsupportedLayout, "float data required, got %s and %s", args.xData.DType, args.gData.DType)
	}
	nnz := len(args.xIndices)
	if nnz != args.xData.Size() {
		return nil, errorf(op.name(), ErrShapeMismatch, "x_data has %d entries, x_indices %d", args.xData.Size(), nnz)
	}
	out := tensor.Zeros(args.xData.DType, nnz)
	err = parallelFor(args.outer, nnz+len(args.gIndices), func(start, end int) error {
		row := getScratch(args.inner)
		defer putScratch(row)
		args.gatherReal(*row, out.Data, start, end)
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.DType.NormalizeSlice(out.Data)
	return []tensor.Value{out}, nil
}

// csmGradInputs holds the validated, index-decoded inputs of CSMGrad.
type csmGradInputs struct {
	xData    *tensor.Tensor
	gData    *tensor.Tensor
	xIndices []int32
	xIndptr  []int32
	gIndices []int32
	gIndptr  []int32
	outer    int
	inner    int
}

func csmGradArgs(op string, in []tensor.Value) (*csmGradInputs, error) {
	if err := checkArity(op, in, 8); err != nil {
		return nil, err
	}
	xData, err := denseArg(op, in, 0, 1)
	if err != nil {
		return nil, err
	}
	gData, err := denseArg(op, in, 4, 1)
	if err != nil {
		return nil, err
	}
	ints := make([][]int32, 8)
	for _, i := range []int{1, 2, 3, 5, 6} {
		t, err := intArg(op, in, i, 1)
		if err != nil {
			return nil, err
		}
		ints[i] = t.Int32s()
	}
	a := &csmGradInputs{
		xData:    xData,
		gData:    gData,
		xIndices: ints[1],
		xIndptr:  ints[2],
		gIndices: ints[5],
		gIndptr:  ints[6],
	}
	shape := ints[3]
	if len(shape) != 2 {
		return nil, errorf(op, ErrShapeMismatch, "x_shape must have length 2, got %d", len(shape))
	}
	if len(a.xIndptr) == 0 || len(a.gIndptr) != len(a.xIndptr) {
		return nil, errorf(op, ErrShapeMismatch, "indptr lengths %d and %d differ", len(a.xIndptr), len(a.gIndptr))
	}
	if len(a.gIndices) != gData.Size() {
		return nil, errorf(op, ErrShapeMismatch, "g_data has %d entries, g_indices %d", gData.Size(), len(a.gIndices))
	}
	a.outer = len(a.xIndptr) - 1
	if a.outer == int(shape[0]) {
		a.inner = int(shape[1])
	} else {
		a.inner = int(shape[0])
	}
	if int(a.xIndptr[a.outer]) != len(a.xIndices) || int(a.gIndptr[a.outer]) != len(a.gIndices) {
		return nil, errorf(op, ErrShapeMismatch, "indptr does not end at the number of stored entries")
	}
	for _, idx := range [][]int32{a.xIndices, a.gIndices} {
		for _, v := range idx {
			if v < 0 || int(v) >= a.inner {
				return nil, errorf(op, ErrOutOfRange, "index %d outside [0, %d)", v, a.inner)
			}
		}
	}
	return a, nil
}

// gatherReal runs the scatter/gather pass over outer slices [start, end),
// writing the real gradient at every stored position of x into out. row
// must be zeroed and is left zeroed.
func (a *csmGradInputs) gatherReal(row, out []float64, start, end int) {
	gatherSlices(row, out, a.gData.Data, a.xIndices, a.xIndptr, a.gIndices, a.gIndptr, start, end)
}

func (a *csmGradInputs) gatherImag(row, out []float64) {
	if a.gData.Imag == nil {
		return
	}
	gatherSlices(row, out, a.gData.Imag, a.xIndices, a.xIndptr, a.gIndices, a.gIndptr, 0, a.outer)
}

func gatherSlices(row, out, gData []float64, xIndices, xIndptr, gIndices, gIndptr []int32, start, end int) {
	for i := start; i < end; i++ {
		for k := gIndptr[i]; k < gIndptr[i+1]; k++ {
			row[gIndices[k]] += gData[k]
		}
		for k := xIndptr[i]; k < xIndptr[i+1]; k++ {
			out[k] = row[xIndices[k]]
		}
		for k := gIndptr[i]; k < gIndptr[i+1]; k++ {
			row[gIndices[k]] = 0
		}
	}
}

// gatherKMap returns data[kmap] as a fresh vector.
func gatherKMap(op string, dtype tensor.DType, data, imag []float64, kmap KMap) (*tensor.Tensor, error) {
	out := tensor.Zeros(dtype, len(kmap))
	for i, k := range kmap {
		if k < 0 || int(k) >= len(data) {
			return nil, errorf(op, ErrOutOfRange, "kmap entry %d outside data of length %d", k, len(data))
		}
		out.Data[i] = data[k]
		if out.Imag != nil && imag != nil {
			out.Imag[i] = imag[k]
		}
	}
	return out, nil
}

// scatterKMap places g[i] at position kmap[i] of a zero vector of length n,
// accumulating repeated positions.
func scatterKMap(g *tensor.Tensor, kmap KMap, n int) *tensor.Tensor {
	out := tensor.Zeros(g.DType, n)
	for i, k := range kmap {
		out.Data[k] += g.Data[i]
		if out.Imag != nil && g.Imag != nil {
			out.Imag[k] += g.Imag[i]
		}
	}
	return out
}
