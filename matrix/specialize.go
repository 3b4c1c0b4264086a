package matrix

import (
	"github.com/tsawler/go-sparseops/tensor"
)

// RuleContext is what a rewrite rule may inspect besides the operator: the
// static input types of the application and whether the caller permits
// operators that destroy an input buffer.
type RuleContext struct {
	In           []tensor.Type
	AllowInplace bool
}

// Rule replaces a generic operator by an equivalent specialized one when
// Match holds. Rewrite must compute the same function on every input that
// satisfies Match.
type Rule struct {
	Name    string
	Match   func(op Op, ctx RuleContext) bool
	Rewrite func(op Op, ctx RuleContext) Op
}

// Specializations returns the ordered rewrite table. Earlier rules win.
func Specializations() []Rule {
	return []Rule{
		{
			Name:    "structured_dot_csc",
			Match:   matchStructuredDot(tensor.CSC),
			Rewrite: func(Op, RuleContext) Op { return NewStructuredDotCSC() },
		},
		{
			Name:    "structured_dot_csr",
			Match:   matchStructuredDot(tensor.CSR),
			Rewrite: func(Op, RuleContext) Op { return NewStructuredDotCSR() },
		},
		{
			Name:    "structured_dot_grad_csc",
			Match:   matchSparseFirst(KindStructuredDotGrad, tensor.CSC, 3),
			Rewrite: func(Op, RuleContext) Op { return NewStructuredDotGradCSC() },
		},
		{
			Name:    "structured_dot_grad_csr",
			Match:   matchSparseFirst(KindStructuredDotGrad, tensor.CSR, 3),
			Rewrite: func(Op, RuleContext) Op { return NewStructuredDotGradCSR() },
		},
		{
			Name: "usmm_csc_dense",
			Match: func(op Op, ctx RuleContext) bool {
				in := ctx.In
				return op.Descriptor().Kind == KindUsmm && len(in) == 4 && allFloat(in) &&
					in[1].Sparse && in[1].Format == tensor.CSC &&
					!in[2].Sparse && in[2].Rank == 2
			},
			Rewrite: func(Op, RuleContext) Op { return NewUsmmCscDense(false) },
		},
		{
			Name: "usmm_csc_dense_inplace",
			Match: func(op Op, ctx RuleContext) bool {
				d := op.Descriptor()
				in := ctx.In
				return ctx.AllowInplace && d.Kind == KindUsmmCscDense && !d.Inplace && len(in) == 4 &&
					in[3].DType == tensor.Upcast(in[0].DType, in[1].DType, in[2].DType, in[3].DType)
			},
			Rewrite: func(Op, RuleContext) Op { return NewUsmmCscDense(true) },
		},
		{
			Name: "sampling_dot_csr",
			Match: func(op Op, ctx RuleContext) bool {
				in := ctx.In
				return op.Descriptor().Kind == KindSamplingDot && len(in) == 3 && allFloat(in) &&
					in[2].Sparse && in[2].Format == tensor.CSR
			},
			Rewrite: func(Op, RuleContext) Op { return NewSamplingDotCSR() },
		},
		{
			Name:    "mul_s_d_csc",
			Match:   matchMulSD(tensor.CSC),
			Rewrite: func(Op, RuleContext) Op { return NewMulSDCSC() },
		},
		{
			Name:    "mul_s_d_csr",
			Match:   matchMulSD(tensor.CSR),
			Rewrite: func(Op, RuleContext) Op { return NewMulSDCSR() },
		},
		{
			Name:    "mul_s_v_csr",
			Match:   matchSparseFirst(KindMulSV, tensor.CSR, 2),
			Rewrite: func(Op, RuleContext) Op { return NewMulSVCSR() },
		},
		{
			Name:    "structured_add_s_v_csr",
			Match:   matchSparseFirst(KindStructuredAddSV, tensor.CSR, 2),
			Rewrite: func(Op, RuleContext) Op { return NewStructuredAddSVCSR() },
		},
		{
			Name: "csm_grad_fast",
			Match: func(op Op, ctx RuleContext) bool {
				d := op.Descriptor()
				in := ctx.In
				return d.Kind == KindCSMGrad && d.KMap == nil && len(in) == 8 &&
					in[0].DType.IsFloat() && in[4].DType.IsFloat()
			},
			Rewrite: func(Op, RuleContext) Op { return NewCSMGradFast() },
		},
	}
}

// Specialize applies the rewrite table to op until no rule matches and
// returns the final operator with the names of the rules applied, in order.
func Specialize(op Op, ctx RuleContext) (Op, []string) {
	rules := Specializations()
	var applied []string
	for range len(rules) + 1 {
		rewritten := false
		for _, r := range rules {
			if r.Match(op, ctx) {
				op = r.Rewrite(op, ctx)
				applied = append(applied, r.Name)
				rewritten = true
				break
			}
		}
		if !rewritten {
			break
		}
	}
	return op, applied
}

func allFloat(in []tensor.Type) bool {
	for _, t := range in {
		if !t.DType.IsFloat() {
			return false
		}
	}
	return true
}

func matchStructuredDot(format tensor.Format) func(Op, RuleContext) bool {
	return func(op Op, ctx RuleContext) bool {
		in := ctx.In
		return op.Descriptor().Kind == KindStructuredDot && len(in) == 2 && allFloat(in) &&
			in[0].Sparse && in[0].Format == format &&
			!in[1].Sparse && in[1].Rank == 2
	}
}

func matchMulSD(format tensor.Format) func(Op, RuleContext) bool {
	return func(op Op, ctx RuleContext) bool {
		in := ctx.In
		return op.Descriptor().Kind == KindMulSD && len(in) == 2 && allFloat(in) &&
			in[0].Sparse && in[0].Format == format &&
			!in[1].Sparse && in[1].Rank == 2
	}
}

// matchSparseFirst matches kind applied to n float inputs whose first is a
// sparse matrix of the given format.
func matchSparseFirst(kind Kind, format tensor.Format, n int) func(Op, RuleContext) bool {
	return func(op Op, ctx RuleContext) bool {
		in := ctx.In
		return op.Descriptor().Kind == kind && len(in) == n && allFloat(in) &&
			in[0].Sparse && in[0].Format == format
	}
}
