package matrix_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-sparseops/matrix"
	"github.com/tsawler/go-sparseops/tensor"
)

func TestSpecializeRewrites(t *testing.T) {
	f64 := tensor.Float64
	csc := tensor.SparseType(tensor.CSC, f64)
	csr := tensor.SparseType(tensor.CSR, f64)
	mat := tensor.DenseType(f64, 2)
	vec := tensor.DenseType(f64, 1)
	scalar := tensor.DenseType(f64, 0)

	tests := []struct {
		name    string
		op      matrix.Op
		in      []tensor.Type
		inplace bool
		want    matrix.Kind
		rules   []string
	}{
		{"structured dot csc", matrix.NewStructuredDot(), []tensor.Type{csc, mat}, false, matrix.KindStructuredDotCSC, []string{"structured_dot_csc"}},
		{"structured dot csr", matrix.NewStructuredDot(), []tensor.Type{csr, mat}, false, matrix.KindStructuredDotCSR, []string{"structured_dot_csr"}},
		{"structured dot grad csc", matrix.NewStructuredDotGrad(), []tensor.Type{csc, mat, mat}, false, matrix.KindStructuredDotGradCSC, []string{"structured_dot_grad_csc"}},
		{"structured dot grad csr", matrix.NewStructuredDotGrad(), []tensor.Type{csr, mat, mat}, false, matrix.KindStructuredDotGradCSR, []string{"structured_dot_grad_csr"}},
		{"usmm", matrix.NewUsmm(), []tensor.Type{scalar, csc, mat, mat}, false, matrix.KindUsmmCscDense, []string{"usmm_csc_dense"}},
		{"usmm inplace", matrix.NewUsmm(), []tensor.Type{scalar, csc, mat, mat}, true, matrix.KindUsmmCscDense, []string{"usmm_csc_dense", "usmm_csc_dense_inplace"}},
		{"sampling dot", matrix.NewSamplingDot(), []tensor.Type{mat, mat, csr}, false, matrix.KindSamplingDotCSR, []string{"sampling_dot_csr"}},
		{"mul_s_d csc", matrix.NewMulSD(), []tensor.Type{csc, mat}, false, matrix.KindMulSDCSC, []string{"mul_s_d_csc"}},
		{"mul_s_d csr", matrix.NewMulSD(), []tensor.Type{csr, mat}, false, matrix.KindMulSDCSR, []string{"mul_s_d_csr"}},
		{"mul_s_v csr", matrix.NewMulSV(), []tensor.Type{csr, vec}, false, matrix.KindMulSVCSR, []string{"mul_s_v_csr"}},
		{"structured add csr", matrix.NewStructuredAddSV(), []tensor.Type{csr, vec}, false, matrix.KindStructuredAddSVCSR, []string{"structured_add_s_v_csr"}},
		{"csm grad", matrix.NewCSMGrad(nil), []tensor.Type{vec, vec, vec, vec, vec, vec, vec, vec}, false, matrix.KindCSMGradFast, []string{"csm_grad_fast"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, rules := matrix.Specialize(tt.op, matrix.RuleContext{In: tt.in, AllowInplace: tt.inplace})
			assert.Equal(t, tt.want, op.Descriptor().Kind)
			assert.Equal(t, tt.rules, rules)
		})
	}
}

func TestSpecializeLeavesOtherCasesAlone(t *testing.T) {
	f64 := tensor.Float64
	cplx := tensor.SparseType(tensor.CSC, tensor.Complex128)
	mat := tensor.DenseType(f64, 2)

	tests := []struct {
		name string
		op   matrix.Op
		in   []tensor.Type
	}{
		{"complex structured dot", matrix.NewStructuredDot(), []tensor.Type{cplx, tensor.DenseType(tensor.Complex128, 2)}},
		{"sparse rhs", matrix.NewStructuredDot(), []tensor.Type{tensor.SparseType(tensor.CSC, f64), tensor.SparseType(tensor.CSC, f64)}},
		{"mul_s_v csc", matrix.NewMulSV(), []tensor.Type{tensor.SparseType(tensor.CSC, f64), tensor.DenseType(f64, 1)}},
		{"mul_s_d scalar", matrix.NewMulSD(), []tensor.Type{tensor.SparseType(tensor.CSR, f64), tensor.DenseType(f64, 0)}},
		{"sampling dot csc", matrix.NewSamplingDot(), []tensor.Type{mat, mat, tensor.SparseType(tensor.CSC, f64)}},
		{"csm grad with kmap", matrix.NewCSMGrad([]int32{1, 0}), make([]tensor.Type, 8)},
		{"integer csm grad", matrix.NewCSMGrad(nil), []tensor.Type{
			tensor.DenseType(tensor.Int32, 1), {}, {}, {}, tensor.DenseType(tensor.Int32, 1), {}, {}, {},
		}},
		{"add", matrix.NewAddSS(), []tensor.Type{tensor.SparseType(tensor.CSR, f64), tensor.SparseType(tensor.CSR, f64)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, rules := matrix.Specialize(tt.op, matrix.RuleContext{In: tt.in, AllowInplace: true})
			assert.Same(t, tt.op, op)
			assert.Empty(t, rules)
		})
	}
}

func TestSpecializedOperatorsAgree(t *testing.T) {
	rng := newRNG(41)
	x := randomSparse(t, rng, tensor.CSC, 9, 7, 0.3)
	y := randomDense(rng, 7, 5)

	generic := matrix.NewStructuredDot()
	fast, rules := matrix.Specialize(generic, matrix.RuleContext{In: matrix.Types(x, y)})
	require.Equal(t, []string{"structured_dot_csc"}, rules)

	want := applyDense(t, generic, x, y)
	got := applyDense(t, fast, x, y)
	requireClose(t, want.Data, got.Data, 1e-9)

	// the kernel keeps the generic gradient
	g := randomDense(rng, 9, 5)
	wantGrads, err := generic.Grad([]tensor.Value{x, y}, []tensor.Value{g})
	require.NoError(t, err)
	gotGrads, err := fast.Grad([]tensor.Value{x, y}, []tensor.Value{g})
	require.NoError(t, err)
	requireClose(t, wantGrads[0].(*tensor.SparseTensor).Data, gotGrads[0].(*tensor.SparseTensor).Data, 1e-12)
	requireClose(t, wantGrads[1].(*tensor.Tensor).Data, gotGrads[1].(*tensor.Tensor).Data, 1e-12)
}

func TestSpecializationTableIsOrdered(t *testing.T) {
	var names []string
	for _, r := range matrix.Specializations() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{
		"structured_dot_csc",
		"structured_dot_csr",
		"structured_dot_grad_csc",
		"structured_dot_grad_csr",
		"usmm_csc_dense",
		"usmm_csc_dense_inplace",
		"sampling_dot_csr",
		"mul_s_d_csc",
		"mul_s_d_csr",
		"mul_s_v_csr",
		"structured_add_s_v_csr",
		"csm_grad_fast",
	}, names)
}
