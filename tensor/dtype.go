package tensor

import (
	"fmt"
	"math"
)

// DType identifies the element type of a dense or sparse value. Values of
// every dtype are held in float64 buffers; integer and float32 dtypes are
// kept normalized (truncated, wrapped or rounded) to their representable set.
type DType int

const (
	// InvalidDType is the zero value. Operators that accept an optional
	// output dtype treat it as "derive from the inputs".
	InvalidDType DType = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Complex64
	Complex128
)

var dtypeNames = map[DType]string{
	Int8:       "int8",
	Int16:      "int16",
	Int32:      "int32",
	Int64:      "int64",
	Uint8:      "uint8",
	Uint16:     "uint16",
	Uint32:     "uint32",
	Uint64:     "uint64",
	Float32:    "float32",
	Float64:    "float64",
	Complex64:  "complex64",
	Complex128: "complex128",
}

// AllDTypes lists every supported dtype in declaration order.
var AllDTypes = []DType{Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64, Float32, Float64, Complex64, Complex128}

func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DType(%d)", int(d))
}

// ParseDType converts a dtype name such as "float32" into a DType.
func ParseDType(name string) (DType, error) {
	for d, n := range dtypeNames {
		if n == name {
			return d, nil
		}
	}
	return InvalidDType, errorf("ParseDType", ErrTypeMismatch, "unknown dtype %q", name)
}

// Valid reports whether d is one of the supported dtypes.
func (d DType) Valid() bool {
	_, ok := dtypeNames[d]
	return ok
}

func (d DType) IsComplex() bool { return d == Complex64 || d == Complex128 }

func (d DType) IsFloat() bool { return d == Float32 || d == Float64 }

func (d DType) IsInteger() bool { return d >= Int8 && d <= Uint64 }

func (d DType) IsUnsigned() bool { return d >= Uint8 && d <= Uint64 }

// IsContinuous reports whether values of d can carry a gradient.
func (d DType) IsContinuous() bool { return d.IsFloat() || d.IsComplex() }

// Bits returns the storage width of one element.
func (d DType) Bits() int {
	switch d {
	case Int8, Uint8:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32, Float32:
		return 32
	case Int64, Uint64, Float64, Complex64:
		return 64
	case Complex128:
		return 128
	}
	return 0
}

// floatWidth is the float precision needed to hold every value of d exactly
// enough for promotion purposes.
func (d DType) floatWidth() int {
	switch d {
	case Int8, Int16, Uint8, Uint16, Float32, Complex64:
		return 32
	}
	return 64
}

// FloatUpcast returns the float dtype transcendental functions produce for d.
// Small integers map to float32, wide integers to float64, floats and
// complex dtypes are returned unchanged.
func (d DType) FloatUpcast() DType {
	if d.IsContinuous() {
		return d
	}
	if d.floatWidth() == 32 {
		return Float32
	}
	return Float64
}

// Upcast returns the smallest dtype every input can be promoted to without
// loss, following the usual numeric promotion lattice.
func Upcast(dtypes ...DType) DType {
	if len(dtypes) == 0 {
		return InvalidDType
	}
	out := dtypes[0]
	for _, d := range dtypes[1:] {
		out = promote(out, d)
	}
	return out
}

func promote(a, b DType) DType {
	if a == b {
		return a
	}
	if a.IsComplex() || b.IsComplex() {
		if max(a.floatWidth(), b.floatWidth()) == 32 {
			return Complex64
		}
		return Complex128
	}
	if a.IsFloat() || b.IsFloat() {
		if max(a.floatWidth(), b.floatWidth()) == 32 {
			return Float32
		}
		return Float64
	}
	if a.IsUnsigned() == b.IsUnsigned() {
		if a.Bits() >= b.Bits() {
			return a
		}
		return b
	}
	s, u := a, b
	if a.IsUnsigned() {
		s, u = b, a
	}
	if s.Bits() > u.Bits() {
		return s
	}
	switch u.Bits() {
	case 8:
		return Int16
	case 16:
		return Int32
	case 32:
		return Int64
	}
	return Float64
}

// Normalize maps v onto the value set of d: integers are truncated toward
// zero and wrapped, float32 values are rounded to single precision.
// Elements are held as float64, so Int64 and Uint64 values are exact only
// up to magnitude 2^53.
func (d DType) Normalize(v float64) float64 {
	switch d {
	case Float64, Complex128, InvalidDType:
		return v
	case Float32, Complex64:
		return float64(float32(v))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	t := math.Trunc(v)
	switch d {
	case Int8:
		return float64(int8(int64(t)))
	case Int16:
		return float64(int16(int64(t)))
	case Int32:
		return float64(int32(int64(t)))
	case Int64:
		return float64(int64(t))
	case Uint8:
		return float64(uint8(int64(t)))
	case Uint16:
		return float64(uint16(int64(t)))
	case Uint32:
		return float64(uint32(int64(t)))
	case Uint64:
		if t < 0 {
			return float64(uint64(int64(t)))
		}
		return float64(uint64(t))
	}
	return v
}

// NormalizeSlice normalizes every element of values in place.
func (d DType) NormalizeSlice(values []float64) {
	if d == Float64 || d == Complex128 {
		return
	}
	for i, v := range values {
		values[i] = d.Normalize(v)
	}
}

// Format is the compressed layout of a sparse matrix.
type Format int

const (
	CSC Format = iota // Compressed Sparse Column
	CSR               // Compressed Sparse Row
)

func (f Format) String() string {
	switch f {
	case CSC:
		return "csc"
	case CSR:
		return "csr"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat converts "csr" or "csc" into a Format.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "csc":
		return CSC, nil
	case "csr":
		return CSR, nil
	}
	return CSC, errorf("ParseFormat", ErrTypeMismatch, "unknown sparse format %q", name)
}

// Transposed returns the layout a transpose relabels f into.
func (f Format) Transposed() Format {
	if f == CSC {
		return CSR
	}
	return CSC
}
