package optimizer_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-sparseops/matrix"
	"github.com/tsawler/go-sparseops/optimizer"
	"github.com/tsawler/go-sparseops/tensor"
)

func sparseRow(t *testing.T, data ...float64) *tensor.SparseTensor {
	t.Helper()
	indices := make([]int32, len(data))
	for k := range indices {
		indices[k] = int32(2 * k)
	}
	st, err := tensor.NewSparseTensor(tensor.CSR, []int{1, 2 * len(data)}, data, indices, []int32{0, int32(len(data))})
	require.NoError(t, err)
	return st
}

func TestSGDOptimizer(t *testing.T) {
	p := sparseRow(t, 1, 2)
	g := sparseRow(t, 0.5, 1)

	opt := optimizer.NewSGD(optimizer.SGDConfig{OptimizerConfig: optimizer.OptimizerConfig{LearningRate: 0.1}})
	require.NoError(t, opt.Step([]*tensor.SparseTensor{p}, []*tensor.SparseTensor{g}))
	assert.InDeltaSlice(t, []float64{0.95, 1.9}, p.Data, 1e-12)
	assert.Equal(t, int64(1), opt.GetStepCount())
	assert.Equal(t, []int32{0, 2}, p.Indices, "the pattern is never touched")
}

func TestSGDMomentum(t *testing.T) {
	p := sparseRow(t, 1, 2)
	g := sparseRow(t, 0.5, 1)
	opt := optimizer.NewSGD(optimizer.SGDConfig{
		OptimizerConfig: optimizer.OptimizerConfig{LearningRate: 0.1},
		Momentum:        0.9,
	})
	for range 2 {
		require.NoError(t, opt.Step([]*tensor.SparseTensor{p}, []*tensor.SparseTensor{g}))
	}
	assert.InDeltaSlice(t, []float64{0.855, 1.71}, p.Data, 1e-12)
}

func TestSGDWeightDecay(t *testing.T) {
	p := sparseRow(t, 1, 2)
	g := sparseRow(t, 0, 0)
	opt := optimizer.NewSGD(optimizer.SGDConfig{OptimizerConfig: optimizer.OptimizerConfig{LearningRate: 0.1, WeightDecay: 0.1}})
	require.NoError(t, opt.Step([]*tensor.SparseTensor{p}, []*tensor.SparseTensor{g}))
	assert.InDeltaSlice(t, []float64{0.99, 1.98}, p.Data, 1e-12)
}

func TestAdamOptimizer(t *testing.T) {
	p := sparseRow(t, 1, 2)
	g := sparseRow(t, 0.5, -1)
	opt := optimizer.NewAdam(optimizer.AdamConfig{
		OptimizerConfig: optimizer.OptimizerConfig{LearningRate: 0.01},
		Beta1:           0.9,
		Beta2:           0.999,
		Epsilon:         1e-8,
	})
	require.NoError(t, opt.Step([]*tensor.SparseTensor{p}, []*tensor.SparseTensor{g}))
	// the first bias-corrected step moves each entry by lr against the gradient sign
	assert.InDeltaSlice(t, []float64{0.99, 2.01}, p.Data, 1e-6)

	opt.SetLearningRate(0.5)
	assert.Equal(t, 0.5, opt.GetLearningRate())
}

func TestStateFollowsParamCount(t *testing.T) {
	sgd := optimizer.NewSGD(optimizer.SGDConfig{
		OptimizerConfig: optimizer.OptimizerConfig{LearningRate: 0.1},
		Momentum:        0.9,
	})
	adam := optimizer.NewAdam(optimizer.AdamConfig{
		OptimizerConfig: optimizer.OptimizerConfig{LearningRate: 0.01},
		Beta1:           0.9,
		Beta2:           0.999,
		Epsilon:         1e-8,
	})
	for _, opt := range []optimizer.Optimizer{sgd, adam} {
		p1 := sparseRow(t, 1, 2)
		require.NoError(t, opt.Step([]*tensor.SparseTensor{p1}, []*tensor.SparseTensor{sparseRow(t, 0.5, 1)}))

		p2 := sparseRow(t, 3, 4, 5)
		require.NoError(t, opt.Step(
			[]*tensor.SparseTensor{p1, p2},
			[]*tensor.SparseTensor{sparseRow(t, 0.5, 1), sparseRow(t, 1, 1, 1)}))
		for _, v := range p2.Data {
			assert.Less(t, v, 5.0)
		}

		// a parameter whose stored entries changed gets fresh state
		p3 := sparseRow(t, 1, 1, 1, 1)
		require.NoError(t, opt.Step([]*tensor.SparseTensor{p3}, []*tensor.SparseTensor{sparseRow(t, 1, 1, 1, 1)}))
		assert.Equal(t, int64(3), opt.GetStepCount())
	}
}

func TestStepValidation(t *testing.T) {
	p := sparseRow(t, 1, 2)
	opt := optimizer.NewSGD(optimizer.SGDConfig{OptimizerConfig: optimizer.OptimizerConfig{LearningRate: 0.1}})

	other, err := tensor.NewSparseTensor(tensor.CSR, []int{1, 4}, []float64{1, 1}, []int32{0, 1}, []int32{0, 2})
	require.NoError(t, err)
	err = opt.Step([]*tensor.SparseTensor{p}, []*tensor.SparseTensor{other})
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	err = opt.Step([]*tensor.SparseTensor{p}, []*tensor.SparseTensor{p.AsType(tensor.Int32)})
	require.ErrorIs(t, err, tensor.ErrTypeMismatch)

	err = opt.Step([]*tensor.SparseTensor{p}, nil)
	require.ErrorIs(t, err, tensor.ErrUsage)

	assert.Zero(t, opt.GetStepCount(), "failed steps are not counted")
}

func TestZeroGrad(t *testing.T) {
	g := sparseRow(t, 3, 4)
	optimizer.NewSGD(optimizer.SGDConfig{}).ZeroGrad([]*tensor.SparseTensor{g})
	assert.Equal(t, []float64{0, 0}, g.Data)
	assert.Equal(t, 2, g.GetNNZ())
}

func TestAlignGrads(t *testing.T) {
	p := sparseRow(t, 1, 2)
	g, err := tensor.NewTensor([]int{1, 4}, []float64{5, 6, 7, 8})
	require.NoError(t, err)

	aligned, err := optimizer.AlignGrads([]*tensor.SparseTensor{p, p}, []tensor.Value{g, nil})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 7}, aligned[0].Data)
	assert.True(t, p.SamePattern(aligned[0]))
	assert.Equal(t, []float64{0, 0}, aligned[1].Data)

	wrong, err := tensor.NewTensor([]int{2, 2}, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	_, err = optimizer.AlignGrads([]*tensor.SparseTensor{p}, []tensor.Value{wrong})
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestGradientClipping(t *testing.T) {
	g1 := sparseRow(t, 3, 4)
	g2 := sparseRow(t, 12)
	grads := []*tensor.SparseTensor{g1, g2}

	assert.InDelta(t, 13.0, optimizer.ComputeGradNorm(grads), 1e-12)

	norm := optimizer.ClipGradsByNorm(grads, 6.5)
	assert.InDelta(t, 13.0, norm, 1e-12)
	assert.InDeltaSlice(t, []float64{1.5, 2}, g1.Data, 1e-12)
	assert.InDeltaSlice(t, []float64{6}, g2.Data, 1e-12)
	assert.InDelta(t, 6.5, optimizer.ComputeGradNorm(grads), 1e-12)

	// below the limit nothing changes
	assert.InDelta(t, 6.5, optimizer.ClipGradsByNorm(grads, 100), 1e-12)
	assert.InDeltaSlice(t, []float64{6}, g2.Data, 1e-12)

	require.NoError(t, optimizer.ClipGradsByValue(grads, -1, 1.75))
	assert.Equal(t, []float64{1.5, 1.75}, g1.Data)
	assert.Equal(t, []float64{1.75}, g2.Data)
	require.ErrorIs(t, optimizer.ClipGradsByValue(grads, 1, -1), tensor.ErrUsage)
}

func TestLearningRateSchedulers(t *testing.T) {
	tests := []struct {
		name  string
		sched optimizer.LRScheduler
		steps map[int64]float64
	}{
		{"step decay", optimizer.NewStepDecayScheduler(1, 0.5, 10), map[int64]float64{0: 1, 9: 1, 10: 0.5, 25: 0.25}},
		{"exponential", optimizer.NewExponentialDecayScheduler(1, 0.5, 10), map[int64]float64{0: 1, 5: math.Sqrt(0.5), 10: 0.5}},
		{"cosine", optimizer.NewCosineAnnealingScheduler(1, 0, 100), map[int64]float64{0: 1, 50: 0.5, 100: 0, 150: 0}},
		{"warmup", optimizer.NewWarmupScheduler(1, 4), map[int64]float64{0: 0.25, 3: 1, 10: 1}},
		{"warmup cosine", optimizer.NewWarmupCosineScheduler(1, 0, 4, 104), map[int64]float64{1: 0.5, 4: 1, 54: 0.5, 104: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := optimizer.NewSGD(optimizer.SGDConfig{})
			tt.sched.SetOptimizer(opt)
			for step, want := range tt.steps {
				require.NoError(t, tt.sched.Step(step))
				assert.InDelta(t, want, tt.sched.GetLR(), 1e-12, "step %d", step)
				assert.InDelta(t, want, opt.GetLearningRate(), 1e-12, "step %d", step)
			}
		})
	}
}

func TestSchedulerValidation(t *testing.T) {
	require.ErrorIs(t, optimizer.NewStepDecayScheduler(1, 0.5, 0).Step(1), tensor.ErrUsage)
	require.ErrorIs(t, optimizer.NewExponentialDecayScheduler(1, 0.5, -1).Step(1), tensor.ErrUsage)
	require.ErrorIs(t, optimizer.NewCosineAnnealingScheduler(1, 0, 0).Step(1), tensor.ErrUsage)
}

// TestOptimizerIntegration fits a sparse weight matrix through its
// structured gradient and checks the loss goes down while the pattern holds.
func TestOptimizerIntegration(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	w, err := tensor.NewSparseTensor(tensor.CSR, []int{3, 4},
		[]float64{0.1, -0.2, 0.3, 0.05, 0.2},
		[]int32{0, 2, 3, 0, 1},
		[]int32{0, 2, 3, 5})
	require.NoError(t, err)
	truth := w.Clone()
	copy(truth.Data, []float64{1, -1, 0.5, 2, -0.5})

	x := tensor.Zeros(tensor.Float64, 4, 3)
	for i := range x.Data {
		x.Data[i] = 2*rng.Float64() - 1
	}
	target, err := matrix.Apply(matrix.NewStructuredDot(), truth, x)
	require.NoError(t, err)
	want := target.(*tensor.Tensor)

	dot := matrix.NewStructuredDot()
	loss := func() (float64, *tensor.Tensor) {
		out, err := matrix.Apply(dot, w, x)
		require.NoError(t, err)
		resid := out.(*tensor.Tensor).Clone()
		floats.Sub(resid.Data, want.Data)
		return 0.5 * floats.Dot(resid.Data, resid.Data), resid
	}

	opt := optimizer.NewSGD(optimizer.SGDConfig{
		OptimizerConfig: optimizer.OptimizerConfig{LearningRate: 0.02},
		Momentum:        0.5,
	})
	sched := optimizer.NewStepDecayScheduler(0.02, 0.9, 50)
	sched.SetOptimizer(opt)

	initial, _ := loss()
	for step := range int64(200) {
		require.NoError(t, sched.Step(step))
		_, resid := loss()
		grads, err := dot.Grad([]tensor.Value{w, x}, []tensor.Value{resid})
		require.NoError(t, err)
		aligned, err := optimizer.AlignGrads([]*tensor.SparseTensor{w}, grads[:1])
		require.NoError(t, err)
		optimizer.ClipGradsByNorm(aligned, 10)
		require.NoError(t, opt.Step([]*tensor.SparseTensor{w}, aligned))
	}
	final, _ := loss()

	assert.Less(t, final, initial)
	assert.Equal(t, []int32{0, 2, 3, 0, 1}, w.Indices)
	assert.Equal(t, int64(200), opt.GetStepCount())
}
