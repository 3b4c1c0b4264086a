package matrix

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-sparseops/tensor"
)

// ErrGradientCheck is returned by VerifyGrad when an analytic gradient
// disagrees with its finite-difference estimate.
var ErrGradientCheck = errors.New("sparse: gradient check failed")

// VerifyGradOptions configures VerifyGrad. Zero values select defaults.
type VerifyGradOptions struct {
	// Structured perturbs only the stored entries of sparse inputs and
	// compares gradients at those entries. Otherwise sparse inputs are
	// treated as dense matrices.
	Structured bool
	// Eps is the central-difference step. Default 1e-6.
	Eps float64
	// Tol bounds |analytic - numeric| / max(1, |analytic|, |numeric|).
	// Default 1e-4.
	Tol float64
	// Src seeds the random projection of the output. Default PCG(1, 2).
	Src rand.Source
	// Inputs lists the input positions to check. Default: every input
	// with a float dtype.
	Inputs []int
}

// VerifyGrad checks op.Grad against central finite differences of the
// scalar cost sum(R ⊙ dense(op(in))), where R is a fixed random matrix with
// the output's shape. Only real float inputs can be checked.
func VerifyGrad(op Op, in []tensor.Value, opts VerifyGradOptions) error {
	name := "VerifyGrad(" + op.Descriptor().String() + ")"
	if opts.Eps <= 0 {
		opts.Eps = 1e-6
	}
	if opts.Tol <= 0 {
		opts.Tol = 1e-4
	}
	if opts.Src == nil {
		opts.Src = rand.NewPCG(1, 2)
	}
	check := opts.Inputs
	if check == nil {
		for i, v := range in {
			if v != nil && v.Type().DType.IsFloat() {
				check = append(check, i)
			}
		}
	}

	out, err := Apply(op, in...)
	if err != nil {
		return err
	}
	outDense, err := asDense(name, out)
	if err != nil {
		return err
	}
	if outDense.IsComplex() {
		return errorf(name, ErrTypeMismatch, "complex outputs cannot be checked")
	}
	rng := rand.New(opts.Src)
	proj := make([]float64, outDense.Size())
	for i := range proj {
		proj[i] = 2*rng.Float64() - 1
	}
	cost := func(args []tensor.Value) (float64, error) {
		y, err := Apply(op, args...)
		if err != nil {
			return 0, err
		}
		yd, err := asDense(name, y)
		if err != nil {
			return 0, err
		}
		if yd.Size() != len(proj) {
			return 0, errorf(name, ErrShapeMismatch, "output size changed from %d to %d", len(proj), yd.Size())
		}
		return floats.Dot(proj, yd.Data), nil
	}

	projT, err := tensor.NewTypedTensor(outDense.DType, slices.Clone(outDense.Shape), proj)
	if err != nil {
		return err
	}
	var gout tensor.Value = projT
	if ys, ok := out.(*tensor.SparseTensor); ok {
		if opts.Structured {
			gout, err = Apply(NewMulSD(), SpOnesLike(ys), projT)
		} else {
			gout, err = Apply(NewSparseFromDense(ys.Format), projT)
		}
		if err != nil {
			return err
		}
	}
	grads, err := op.Grad(in, []tensor.Value{gout})
	if err != nil {
		return err
	}

	for _, i := range check {
		if i < 0 || i >= len(in) || in[i] == nil {
			return errorf(name, ErrUsage, "input %d cannot be checked", i)
		}
		if !in[i].Type().DType.IsFloat() {
			return errorf(name, ErrTypeMismatch, "input %d has dtype %s, only float inputs can be checked", i, in[i].Type().DType)
		}
		var g tensor.Value
		if i < len(grads) {
			g = grads[i]
		}
		analytic, err := flatGrad(name, in[i], g, opts.Structured)
		if err != nil {
			return err
		}
		perturb, n, err := perturber(name, in[i], opts.Structured)
		if err != nil {
			return err
		}
		args := slices.Clone(in)
		for k := 0; k < n; k++ {
			args[i] = perturb(k, opts.Eps)
			plus, err := cost(args)
			if err != nil {
				return err
			}
			args[i] = perturb(k, -opts.Eps)
			minus, err := cost(args)
			if err != nil {
				return err
			}
			numeric := (plus - minus) / (2 * opts.Eps)
			a := analytic[k]
			scale := math.Max(1, math.Max(math.Abs(a), math.Abs(numeric)))
			if math.Abs(a-numeric)/scale > opts.Tol || math.IsNaN(a) {
				return fmt.Errorf("%s: %w: input %d element %d: analytic %g, numeric %g", name, ErrGradientCheck, i, k, a, numeric)
			}
		}
	}
	return nil
}

// flatGrad returns the gradient of input x as a flat vector in the
// coordinates perturber uses. A nil gradient is all zeros.
func flatGrad(name string, x, g tensor.Value, structured bool) ([]float64, error) {
	xs, sparse := x.(*tensor.SparseTensor)
	switch {
	case sparse && structured:
		if g == nil {
			return make([]float64, len(xs.Data)), nil
		}
		aligned, err := AlignToPattern(xs, g)
		if err != nil {
			return nil, err
		}
		return aligned.Data, nil
	case g == nil:
		size := 1
		for _, d := range x.Dims() {
			size *= d
		}
		return make([]float64, size), nil
	}
	gd, err := asDense(name, g)
	if err != nil {
		return nil, err
	}
	size := 1
	for _, d := range x.Dims() {
		size *= d
	}
	if gd.Size() != size {
		return nil, errorf(name, ErrShapeMismatch, "gradient shape %v does not match input shape %v", gd.Shape, x.Dims())
	}
	return gd.Data, nil
}

// perturber returns a function building a copy of x with coordinate k moved
// by delta, and the number of coordinates.
func perturber(name string, x tensor.Value, structured bool) (func(k int, delta float64) tensor.Value, int, error) {
	switch v := x.(type) {
	case *tensor.SparseTensor:
		if structured {
			return func(k int, delta float64) tensor.Value {
				c := v.Clone()
				c.Data[k] += delta
				return c
			}, len(v.Data), nil
		}
		dense := v.ToDense()
		return func(k int, delta float64) tensor.Value {
			d := dense.Clone()
			d.Data[k] += delta
			st, _ := tensor.NewSparseTensorFromDense(d, v.Format, 0)
			return st
		}, dense.Size(), nil
	case *tensor.Tensor:
		return func(k int, delta float64) tensor.Value {
			d := v.Clone()
			d.Data[k] += delta
			return d
		}, v.Size(), nil
	}
	return nil, 0, errorf(name, ErrTypeMismatch, "unsupported input %T", x)
}
