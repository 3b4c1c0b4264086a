package matrix

import (
	"fmt"

	"github.com/tsawler/go-sparseops/tensor"
)

// The matrix package reports the same sentinels as the tensor package so a
// single errors.Is check works across both.
var (
	ErrTypeMismatch      = tensor.ErrTypeMismatch
	ErrShapeMismatch     = tensor.ErrShapeMismatch
	ErrUnsupportedLayout = tensor.ErrUnsupportedLayout
	ErrUsage             = tensor.ErrUsage
	ErrNoGradient        = tensor.ErrNoGradient
	ErrOutOfRange        = tensor.ErrOutOfRange
	ErrNonSquare         = tensor.ErrNonSquare

	// ErrShapeNotInferable is returned by InferShape for operators whose
	// output shape depends on runtime values.
	ErrShapeNotInferable = fmt.Errorf("%w: shape cannot be inferred statically", tensor.ErrUsage)
)

func errorf(op string, sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, sentinel, fmt.Sprintf(format, args...))
}

func checkArity(op string, in []tensor.Value, n int) error {
	if len(in) != n {
		return errorf(op, ErrUsage, "expected %d inputs, got %d", n, len(in))
	}
	return nil
}

func checkTypeArity(op string, in []tensor.Type, n int) error {
	if len(in) != n {
		return errorf(op, ErrUsage, "expected %d inputs, got %d", n, len(in))
	}
	return nil
}

func checkShapeArity(op string, in [][]int, n int) error {
	if len(in) != n {
		return errorf(op, ErrUsage, "expected %d input shapes, got %d", n, len(in))
	}
	return nil
}

// sparseArg returns input i as a sparse matrix.
func sparseArg(op string, in []tensor.Value, i int) (*tensor.SparseTensor, error) {
	st, ok := in[i].(*tensor.SparseTensor)
	if !ok || st == nil {
		return nil, errorf(op, ErrTypeMismatch, "input %d must be sparse, got %T", i, in[i])
	}
	return st, nil
}

// denseArg returns input i as a dense tensor of the given rank; rank < 0
// accepts any rank.
func denseArg(op string, in []tensor.Value, i, rank int) (*tensor.Tensor, error) {
	t, ok := in[i].(*tensor.Tensor)
	if !ok || t == nil {
		return nil, errorf(op, ErrTypeMismatch, "input %d must be dense, got %T", i, in[i])
	}
	if rank >= 0 && t.Rank() != rank {
		return nil, errorf(op, ErrTypeMismatch, "input %d must have rank %d, got %d", i, rank, t.Rank())
	}
	return t, nil
}

// intArg returns input i as an integer-valued dense tensor of the given rank.
func intArg(op string, in []tensor.Value, i, rank int) (*tensor.Tensor, error) {
	t, err := denseArg(op, in, i, rank)
	if err != nil {
		return nil, err
	}
	if !t.DType.IsInteger() {
		return nil, errorf(op, ErrTypeMismatch, "input %d must have an integer dtype, got %s", i, t.DType)
	}
	return t, nil
}

func requireSparseType(op string, t tensor.Type, i int) error {
	if !t.Sparse {
		return errorf(op, ErrTypeMismatch, "input %d must be sparse, got %s", i, t)
	}
	return nil
}

func requireDenseType(op string, t tensor.Type, i, rank int) error {
	if t.Sparse {
		return errorf(op, ErrTypeMismatch, "input %d must be dense, got %s", i, t)
	}
	if !t.DType.Valid() {
		return errorf(op, ErrTypeMismatch, "input %d is missing", i)
	}
	if rank >= 0 && t.Rank != rank {
		return errorf(op, ErrTypeMismatch, "input %d must have rank %d, got %d", i, rank, t.Rank)
	}
	return nil
}

// gradArg returns gradient i, or nil when none flows in.
func gradArg(gout []tensor.Value, i int) tensor.Value {
	if i >= len(gout) {
		return nil
	}
	return gout[i]
}
