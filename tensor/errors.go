package tensor

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the tensor and matrix packages. Every failure an
// operator reports wraps exactly one of the first four, so callers can match
// with errors.Is regardless of the detail text.
var (
	// ErrTypeMismatch reports a wrong dtype or format combination on inputs,
	// e.g. adding a CSR matrix to a CSC matrix.
	ErrTypeMismatch = errors.New("sparse: type mismatch")

	// ErrShapeMismatch reports incompatible dimensions or broken CSR/CSC
	// structural invariants.
	ErrShapeMismatch = errors.New("sparse: shape mismatch")

	// ErrUnsupportedLayout reports a format/dtype combination a specialized
	// kernel cannot handle, e.g. complex data in a structured product kernel.
	ErrUnsupportedLayout = errors.New("sparse: unsupported layout")

	// ErrUsage reports a structurally disallowed request.
	ErrUsage = errors.New("sparse: usage error")
)

// Finer-grained sentinels. Each one also matches its parent through errors.Is.
var (
	// ErrNoGradient is returned when differentiating an operator that has no
	// gradient (indexing, fused updates, random generators).
	ErrNoGradient = fmt.Errorf("%w: operator is not differentiable", ErrUsage)

	// ErrOutOfRange reports an element index outside the matrix bounds.
	ErrOutOfRange = fmt.Errorf("%w: index out of range", ErrShapeMismatch)

	// ErrNonSquare reports a square-only operation applied to a rectangular matrix.
	ErrNonSquare = fmt.Errorf("%w: matrix is not square", ErrUsage)
)

// errorf prefixes a sentinel with the failing operation, keeping the sentinel
// matchable with errors.Is.
func errorf(op string, sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, sentinel, fmt.Sprintf(format, args...))
}
