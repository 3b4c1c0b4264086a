package main

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-sparseops/matrix"
	"github.com/tsawler/go-sparseops/tensor"
)

var errCheck = errors.New("check failed")

// problem is one random instance the checks run against.
type problem struct {
	rows, cols, width int
	density           float64
	rng               *rand.Rand
}

func (p problem) sparse(format tensor.Format, rows, cols int) (*tensor.SparseTensor, error) {
	d := p.dense(rows, cols)
	for i := range d.Data {
		if p.rng.Float64() >= p.density {
			d.Data[i] = 0
		}
	}
	return tensor.NewSparseTensorFromDense(d, format, 0)
}

func (p problem) dense(rows, cols int) *tensor.Tensor {
	d := tensor.Zeros(tensor.Float64, rows, cols)
	for i := range d.Data {
		d.Data[i] = 2*p.rng.Float64() - 1
	}
	return d
}

type check struct {
	name string
	run  func(p problem) error
}

var checks = []check{
	{"format round trip", checkFormatRoundTrip},
	{"dense round trip equals clean", checkDenseRoundTrip},
	{"decompose and rebuild", checkDecompose},
	{"specialized kernels agree", checkKernels},
	{"structured gradient keeps pattern", checkGradPattern},
	{"finite differences", checkFiniteDifferences},
}

func sameDense(name string, want, got tensor.Value) error {
	w, g := denseData(want), denseData(got)
	if len(w) != len(g) || !floats.EqualApprox(w, g, 1e-9) {
		return fmt.Errorf("%s: %w: values differ", name, errCheck)
	}
	return nil
}

func denseData(v tensor.Value) []float64 {
	switch x := v.(type) {
	case *tensor.SparseTensor:
		return x.ToDense().Data
	case *tensor.Tensor:
		return x.Data
	}
	return nil
}

func checkFormatRoundTrip(p problem) error {
	for _, format := range []tensor.Format{tensor.CSR, tensor.CSC} {
		x, err := p.sparse(format, p.rows, p.cols)
		if err != nil {
			return err
		}
		back := x.ToFormat(format.Transposed()).ToFormat(format)
		if err := back.Validate(); err != nil {
			return err
		}
		if err := sameDense(format.String(), x, back); err != nil {
			return err
		}
	}
	return nil
}

func checkDenseRoundTrip(p problem) error {
	x, err := p.sparse(tensor.CSC, p.rows, p.cols)
	if err != nil {
		return err
	}
	d, err := matrix.Apply(matrix.NewDenseFromSparse(true), x)
	if err != nil {
		return err
	}
	back, err := matrix.Apply(matrix.NewSparseFromDense(tensor.CSC), d)
	if err != nil {
		return err
	}
	clean, err := matrix.Clean(x)
	if err != nil {
		return err
	}
	b := back.(*tensor.SparseTensor)
	if !b.SamePattern(clean) || !floats.Equal(b.Data, clean.Data) {
		return fmt.Errorf("round trip: %w: result differs from clean", errCheck)
	}
	return nil
}

func checkDecompose(p problem) error {
	x, err := p.sparse(tensor.CSR, p.rows, p.cols)
	if err != nil {
		return err
	}
	parts, err := matrix.NewCSMProperties(nil).Forward([]tensor.Value{x})
	if err != nil {
		return err
	}
	rebuilt, err := matrix.Apply(matrix.NewCSM(tensor.CSR, nil), parts...)
	if err != nil {
		return err
	}
	return sameDense("csm", x, rebuilt)
}

func checkKernels(p problem) error {
	csc, err := p.sparse(tensor.CSC, p.rows, p.cols)
	if err != nil {
		return err
	}
	csr := csc.ConvertToCSR()
	y := p.dense(p.cols, p.width)
	same := p.dense(p.rows, p.cols)
	a, b := p.dense(p.rows, p.width), p.dense(p.cols, p.width)

	cases := []struct {
		op matrix.Op
		in []tensor.Value
	}{
		{matrix.NewStructuredDot(), []tensor.Value{csc, y}},
		{matrix.NewStructuredDot(), []tensor.Value{csr, y}},
		{matrix.NewStructuredDotGrad(), []tensor.Value{csc, y, p.dense(p.rows, p.width)}},
		{matrix.NewStructuredDotGrad(), []tensor.Value{csr, y, p.dense(p.rows, p.width)}},
		{matrix.NewMulSD(), []tensor.Value{csc, same}},
		{matrix.NewMulSD(), []tensor.Value{csr, same}},
		{matrix.NewSamplingDot(), []tensor.Value{a, b, csr}},
		{matrix.NewUsmm(), []tensor.Value{tensor.Scalar(tensor.Float64, -0.5), csc, y, p.dense(p.rows, p.width)}},
	}
	for _, c := range cases {
		fast, rules := matrix.Specialize(c.op, matrix.RuleContext{In: matrix.Types(c.in...)})
		if len(rules) == 0 {
			return fmt.Errorf("%s: %w: no specialization applied", c.op.Descriptor(), errCheck)
		}
		want, err := matrix.Apply(c.op, c.in...)
		if err != nil {
			return err
		}
		got, err := matrix.Apply(fast, c.in...)
		if err != nil {
			return err
		}
		if err := sameDense(rules[len(rules)-1], want, got); err != nil {
			return err
		}
	}
	return nil
}

func checkGradPattern(p problem) error {
	x, err := p.sparse(tensor.CSR, p.rows, p.cols)
	if err != nil {
		return err
	}
	y := p.dense(p.cols, p.width)
	g := p.dense(p.rows, p.width)
	grads, err := matrix.NewStructuredDot().Grad([]tensor.Value{x, y}, []tensor.Value{g})
	if err != nil {
		return err
	}
	gx, ok := grads[0].(*tensor.SparseTensor)
	if !ok || !gx.SamePattern(x) {
		return fmt.Errorf("structured dot: %w: gradient pattern differs from input", errCheck)
	}
	return nil
}

func checkFiniteDifferences(p problem) error {
	x, err := p.sparse(tensor.CSC, p.rows, p.cols)
	if err != nil {
		return err
	}
	y := p.dense(p.cols, p.width)
	return matrix.VerifyGrad(matrix.NewStructuredDot(), []tensor.Value{x, y}, matrix.VerifyGradOptions{
		Structured: true,
		Src:        rand.NewPCG(p.rng.Uint64(), p.rng.Uint64()),
	})
}
