package matrix

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"

	"github.com/tsawler/go-sparseops/tensor"
)

// Unknown marks a dimension that cannot be inferred without running an operator.
const Unknown = -1

// Op is a sparse operator. Forward is a pure function of its inputs except
// where Aliasing declares that an input buffer is exposed or consumed.
//
// Grad receives the forward inputs and one gradient per output (nil when no
// gradient flows into that output) and returns one gradient per input, nil
// for inputs that have no gradient. Operators that cannot be differentiated
// return ErrNoGradient.
type Op interface {
	Descriptor() Descriptor
	OutputTypes(in []tensor.Type) ([]tensor.Type, error)
	InferShape(in [][]int) ([][]int, error)
	Forward(in []tensor.Value) ([]tensor.Value, error)
	Grad(in, gout []tensor.Value) ([]tensor.Value, error)
	Aliasing() []Alias
}

// Kind identifies an operator family.
type Kind int

const (
	KindInvalid Kind = iota
	KindCSMProperties
	KindCSM
	KindCSMGrad
	KindCSMGradFast
	KindDenseFromSparse
	KindSparseFromDense
	KindCast
	KindEnsureSortedIndices
	KindRemove0
	KindTranspose
	KindNeg
	KindAddSS
	KindAddSSData
	KindAddSD
	KindStructuredAddSV
	KindStructuredAddSVCSR
	KindMulSS
	KindMulSD
	KindMulSDCSC
	KindMulSDCSR
	KindMulSV
	KindMulSVCSR
	KindStructuredSigmoid
	KindStructuredExp
	KindStructuredLog
	KindStructuredPow
	KindStructuredMinimum
	KindStructuredMaximum
	KindStructuredAdd
	KindColScaleCSC
	KindRowScaleCSC
	KindSpSum
	KindDiag
	KindSquareDiagonal
	KindStructuredDot
	KindStructuredDotCSC
	KindStructuredDotCSR
	KindStructuredDotGrad
	KindStructuredDotGradCSC
	KindStructuredDotGradCSR
	KindDot
	KindUsmm
	KindUsmmCscDense
	KindSamplingDot
	KindSamplingDotCSR
	KindGetItem2d
	KindGetItemScalar
	KindHStack
	KindVStack
	KindPoisson
	KindBinomial
	KindMultinomial
)

var kindNames = map[Kind]string{
	KindCSMProperties:        "CSMProperties",
	KindCSM:                  "CSM",
	KindCSMGrad:              "CSMGrad",
	KindCSMGradFast:          "CSMGradFast",
	KindDenseFromSparse:      "DenseFromSparse",
	KindSparseFromDense:      "SparseFromDense",
	KindCast:                 "Cast",
	KindEnsureSortedIndices:  "EnsureSortedIndices",
	KindRemove0:              "Remove0",
	KindTranspose:            "Transpose",
	KindNeg:                  "Neg",
	KindAddSS:                "AddSS",
	KindAddSSData:            "AddSSData",
	KindAddSD:                "AddSD",
	KindStructuredAddSV:      "StructuredAddSV",
	KindStructuredAddSVCSR:   "StructuredAddSVCSR",
	KindMulSS:                "MulSS",
	KindMulSD:                "MulSD",
	KindMulSDCSC:             "MulSDCSC",
	KindMulSDCSR:             "MulSDCSR",
	KindMulSV:                "MulSV",
	KindMulSVCSR:             "MulSVCSR",
	KindStructuredSigmoid:    "StructuredSigmoid",
	KindStructuredExp:        "StructuredExp",
	KindStructuredLog:        "StructuredLog",
	KindStructuredPow:        "StructuredPow",
	KindStructuredMinimum:    "StructuredMinimum",
	KindStructuredMaximum:    "StructuredMaximum",
	KindStructuredAdd:        "StructuredAdd",
	KindColScaleCSC:          "ColScaleCSC",
	KindRowScaleCSC:          "RowScaleCSC",
	KindSpSum:                "SpSum",
	KindDiag:                 "Diag",
	KindSquareDiagonal:       "SquareDiagonal",
	KindStructuredDot:        "StructuredDot",
	KindStructuredDotCSC:     "StructuredDotCSC",
	KindStructuredDotCSR:     "StructuredDotCSR",
	KindStructuredDotGrad:    "StructuredDotGrad",
	KindStructuredDotGradCSC: "StructuredDotGradCSC",
	KindStructuredDotGradCSR: "StructuredDotGradCSR",
	KindDot:                  "Dot",
	KindUsmm:                 "Usmm",
	KindUsmmCscDense:         "UsmmCscDense",
	KindSamplingDot:          "SamplingDot",
	KindSamplingDotCSR:       "SamplingDotCSR",
	KindGetItem2d:            "GetItem2d",
	KindGetItemScalar:        "GetItemScalar",
	KindHStack:               "HStack",
	KindVStack:               "VStack",
	KindPoisson:              "Poisson",
	KindBinomial:             "Binomial",
	KindMultinomial:          "Multinomial",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Axis selects the reduction axis of SpSum.
type Axis int

const (
	AxisNone Axis = -1 // reduce every stored entry to a scalar
	AxisRows Axis = 0  // sum down the rows, one value per column
	AxisCols Axis = 1  // sum across the columns, one value per row
)

// KMap selects and reorders entries of a data buffer before construction.
// The identity permutation is normalized to nil.
type KMap []int32

// NewKMap copies idx, returning nil when idx is nil or is the identity
// permutation 0..len(idx)-1.
func NewKMap(idx []int32) KMap {
	if idx == nil {
		return nil
	}
	identity := true
	for i, v := range idx {
		if int(v) != i {
			identity = false
			break
		}
	}
	if identity {
		return nil
	}
	return KMap(slices.Clone(idx))
}

// Descriptor is the structural identity of an operator instance. Two
// operators with equal descriptors compute the same function, which lets a
// graph engine deduplicate applications.
type Descriptor struct {
	Kind       Kind
	Format     tensor.Format
	DType      tensor.DType
	Axis       Axis
	Inplace    bool
	Structured bool
	KMap       KMap
}

// Equal compares descriptors field by field, kmap elementwise.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.Kind == o.Kind &&
		d.Format == o.Format &&
		d.DType == o.DType &&
		d.Axis == o.Axis &&
		d.Inplace == o.Inplace &&
		d.Structured == o.Structured &&
		slices.Equal(d.KMap, o.KMap)
}

// Hash returns a hash derived from the descriptor's contents, so equal
// descriptors always hash equally.
func (d Descriptor) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	put(int64(d.Kind))
	put(int64(d.Format))
	put(int64(d.DType))
	put(int64(d.Axis))
	put(boolBits(d.Inplace, d.Structured, d.KMap != nil))
	for _, v := range d.KMap {
		put(int64(v))
	}
	return h.Sum64()
}

func boolBits(flags ...bool) int64 {
	var out int64
	for i, f := range flags {
		if f {
			out |= 1 << i
		}
	}
	return out
}

func (d Descriptor) String() string {
	s := d.Kind.String()
	var params []string
	switch d.Kind {
	case KindCSM, KindSparseFromDense, KindHStack, KindVStack, KindBinomial:
		params = append(params, d.Format.String())
	}
	if d.DType != tensor.InvalidDType {
		params = append(params, d.DType.String())
	}
	if d.Kind == KindSpSum {
		params = append(params, fmt.Sprintf("axis=%d", d.Axis))
	}
	if d.Inplace {
		params = append(params, "inplace")
	}
	if d.Structured {
		params = append(params, "structured")
	}
	if d.KMap != nil {
		params = append(params, fmt.Sprintf("kmap=%v", []int32(d.KMap)))
	}
	if len(params) == 0 {
		return s
	}
	return s + "{" + strings.Join(params, ",") + "}"
}

// AliasKind describes how an output relates to an input buffer.
type AliasKind int

const (
	// AliasView means the output shares storage with the input; neither may
	// be mutated while the other is live.
	AliasView AliasKind = iota + 1
	// AliasDestroy means the operator overwrites the input's storage and
	// returns it as the output. The caller must not use the input afterward.
	AliasDestroy
)

func (k AliasKind) String() string {
	switch k {
	case AliasView:
		return "view"
	case AliasDestroy:
		return "destroy"
	}
	return "fresh"
}

// Alias declares that output Output reuses the storage of input Input.
// Outputs not listed own freshly allocated buffers.
type Alias struct {
	Output int
	Input  int
	Kind   AliasKind
}

// base carries the descriptor shared by every operator implementation.
type base struct {
	desc Descriptor
}

func (b base) Descriptor() Descriptor { return b.desc }

func (b base) Aliasing() []Alias { return nil }

func (b base) name() string { return b.desc.Kind.String() }

// noGrad is embedded by operators without a gradient.
type noGrad struct{ kind Kind }

func (n noGrad) Grad(_, _ []tensor.Value) ([]tensor.Value, error) {
	return nil, fmt.Errorf("%s: %w", n.kind, ErrNoGradient)
}

// Apply runs op on the given inputs and returns its single output.
func Apply(op Op, in ...tensor.Value) (tensor.Value, error) {
	out, err := op.Forward(in)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, errorf(op.Descriptor().Kind.String(), ErrUsage, "operator has %d outputs", len(out))
	}
	return out[0], nil
}

// Types returns the static types of the given values. An absent (nil)
// value has the zero Type.
func Types(values ...tensor.Value) []tensor.Type {
	out := make([]tensor.Type, len(values))
	for i, v := range values {
		if v != nil {
			out[i] = v.Type()
		}
	}
	return out
}

// Shapes returns the shapes of the given values, nil for absent values.
func Shapes(values ...tensor.Value) [][]int {
	out := make([][]int, len(values))
	for i, v := range values {
		if v != nil {
			out[i] = slices.Clone(v.Dims())
		}
	}
	return out
}
