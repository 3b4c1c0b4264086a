package optimizer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/tsawler/go-sparseops/matrix"
	"github.com/tsawler/go-sparseops/tensor"
)

// Optimizer updates sparse parameters in place from structured gradients.
// Only stored entries are touched, so a parameter's pattern never changes.
type Optimizer interface {
	Step(params []*tensor.SparseTensor, grads []*tensor.SparseTensor) error
	ZeroGrad(grads []*tensor.SparseTensor)
	GetLearningRate() float64
	SetLearningRate(lr float64)
	GetStepCount() int64
}

// OptimizerConfig holds common configuration for all optimizers
type OptimizerConfig struct {
	LearningRate float64
	WeightDecay  float64
}

// SGDConfig holds configuration specific to SGD optimizer
type SGDConfig struct {
	OptimizerConfig
	Momentum float64
}

// SGDOptimizer implements Stochastic Gradient Descent with momentum
type SGDOptimizer struct {
	config          SGDConfig
	momentumBuffers [][]float64
	stepCount       int64
}

// NewSGD creates a new SGD optimizer
func NewSGD(config SGDConfig) *SGDOptimizer {
	return &SGDOptimizer{config: config}
}

// Step performs one optimization step
func (opt *SGDOptimizer) Step(params []*tensor.SparseTensor, grads []*tensor.SparseTensor) error {
	if err := checkPairs("SGD", params, grads); err != nil {
		return err
	}

	if opt.config.Momentum != 0 {
		opt.momentumBuffers = fitBuffers(opt.momentumBuffers, params)
	}

	opt.stepCount++

	lr, wd, mu := opt.config.LearningRate, opt.config.WeightDecay, opt.config.Momentum
	for i, p := range params {
		g := grads[i].Data
		var buf []float64
		if opt.momentumBuffers != nil {
			buf = opt.momentumBuffers[i]
		}
		for k := range p.Data {
			d := g[k] + wd*p.Data[k]
			if buf != nil {
				buf[k] = mu*buf[k] + d
				d = buf[k]
			}
			p.Data[k] -= lr * d
		}
		p.DType.NormalizeSlice(p.Data)
	}
	return nil
}

// ZeroGrad zeros all gradients
func (opt *SGDOptimizer) ZeroGrad(grads []*tensor.SparseTensor) { zeroGrads(grads) }

// GetLearningRate returns the current learning rate
func (opt *SGDOptimizer) GetLearningRate() float64 { return opt.config.LearningRate }

// SetLearningRate sets the learning rate
func (opt *SGDOptimizer) SetLearningRate(lr float64) { opt.config.LearningRate = lr }

// GetStepCount returns the current step count
func (opt *SGDOptimizer) GetStepCount() int64 { return opt.stepCount }

// AdamConfig holds configuration specific to Adam optimizer
type AdamConfig struct {
	OptimizerConfig
	Beta1   float64
	Beta2   float64
	Epsilon float64
}

// AdamOptimizer implements the Adam optimization algorithm. Moment buffers
// follow the parameters' stored entries.
type AdamOptimizer struct {
	config    AdamConfig
	mBuffers  [][]float64
	vBuffers  [][]float64
	stepCount int64
}

// NewAdam creates a new Adam optimizer
func NewAdam(config AdamConfig) *AdamOptimizer {
	return &AdamOptimizer{config: config}
}

// Step performs one optimization step
func (opt *AdamOptimizer) Step(params []*tensor.SparseTensor, grads []*tensor.SparseTensor) error {
	if err := checkPairs("Adam", params, grads); err != nil {
		return err
	}

	opt.mBuffers = fitBuffers(opt.mBuffers, params)
	opt.vBuffers = fitBuffers(opt.vBuffers, params)

	opt.stepCount++

	c := opt.config
	bias1 := 1 - math.Pow(c.Beta1, float64(opt.stepCount))
	bias2 := 1 - math.Pow(c.Beta2, float64(opt.stepCount))
	for i, p := range params {
		g := grads[i].Data
		m, v := opt.mBuffers[i], opt.vBuffers[i]
		for k := range p.Data {
			d := g[k] + c.WeightDecay*p.Data[k]
			m[k] = c.Beta1*m[k] + (1-c.Beta1)*d
			v[k] = c.Beta2*v[k] + (1-c.Beta2)*d*d
			p.Data[k] -= c.LearningRate * (m[k] / bias1) / (math.Sqrt(v[k]/bias2) + c.Epsilon)
		}
		p.DType.NormalizeSlice(p.Data)
	}
	return nil
}

// ZeroGrad zeros all gradients
func (opt *AdamOptimizer) ZeroGrad(grads []*tensor.SparseTensor) { zeroGrads(grads) }

// GetLearningRate returns the current learning rate
func (opt *AdamOptimizer) GetLearningRate() float64 { return opt.config.LearningRate }

// SetLearningRate sets the learning rate
func (opt *AdamOptimizer) SetLearningRate(lr float64) { opt.config.LearningRate = lr }

// GetStepCount returns the current step count
func (opt *AdamOptimizer) GetStepCount() int64 { return opt.stepCount }

// fitBuffers grows the per-parameter state to cover params. A parameter
// whose stored-entry count changed starts again from zero state.
func fitBuffers(bufs [][]float64, params []*tensor.SparseTensor) [][]float64 {
	for len(bufs) < len(params) {
		bufs = append(bufs, nil)
	}
	for i, p := range params {
		if len(bufs[i]) != len(p.Data) {
			bufs[i] = make([]float64, len(p.Data))
		}
	}
	return bufs
}

// checkPairs validates that every gradient is a real float matrix sharing its
// parameter's layout and pattern, and that buffers keep their lengths.
func checkPairs(name string, params, grads []*tensor.SparseTensor) error {
	if len(params) != len(grads) {
		return fmt.Errorf("%s: %w: %d params but %d grads", name, tensor.ErrUsage, len(params), len(grads))
	}
	for i, p := range params {
		g := grads[i]
		if p == nil || g == nil {
			return fmt.Errorf("%s: %w: param or grad %d is nil", name, tensor.ErrUsage, i)
		}
		if !p.DType.IsFloat() || !g.DType.IsFloat() {
			return fmt.Errorf("%s: %w: param %d has dtype %s and grad %s, only real floats can be updated",
				name, tensor.ErrTypeMismatch, i, p.DType, g.DType)
		}
		if !p.SamePattern(g) {
			return fmt.Errorf("%s: %w: grad %d does not share the pattern of its param", name, tensor.ErrShapeMismatch, i)
		}
	}
	return nil
}

func zeroGrads(grads []*tensor.SparseTensor) {
	for _, g := range grads {
		if g != nil {
			clear(g.Data)
		}
	}
}

// AlignGrads restricts each gradient to its parameter's pattern, turning the
// output of any operator gradient (sparse with another pattern, or dense)
// into something Step accepts.
func AlignGrads(params []*tensor.SparseTensor, grads []tensor.Value) ([]*tensor.SparseTensor, error) {
	if len(params) != len(grads) {
		return nil, fmt.Errorf("AlignGrads: %w: %d params but %d grads", tensor.ErrUsage, len(params), len(grads))
	}
	out := make([]*tensor.SparseTensor, len(params))
	for i, p := range params {
		if grads[i] == nil {
			out[i] = p.ZerosLike()
			continue
		}
		g, err := matrix.AlignToPattern(p, grads[i])
		if err != nil {
			return nil, fmt.Errorf("grad %d: %w", i, err)
		}
		out[i] = g
	}
	return out, nil
}

// ClipGradsByNorm scales every gradient so the global norm does not exceed
// maxNorm. It returns the norm before clipping.
func ClipGradsByNorm(grads []*tensor.SparseTensor, maxNorm float64) float64 {
	norm := ComputeGradNorm(grads)
	if norm <= maxNorm || norm == 0 {
		return norm
	}
	scale := maxNorm / norm
	for _, g := range grads {
		floats.Scale(scale, g.Data)
	}
	return norm
}

// ClipGradsByValue clamps every stored gradient value into [minValue, maxValue].
func ClipGradsByValue(grads []*tensor.SparseTensor, minValue, maxValue float64) error {
	if minValue > maxValue {
		return fmt.Errorf("ClipGradsByValue: %w: min %g exceeds max %g", tensor.ErrUsage, minValue, maxValue)
	}
	for _, g := range grads {
		for k, v := range g.Data {
			g.Data[k] = math.Min(math.Max(v, minValue), maxValue)
		}
	}
	return nil
}

// ComputeGradNorm computes the global L2 norm over the stored entries of
// every gradient.
func ComputeGradNorm(grads []*tensor.SparseTensor) float64 {
	var sum float64
	for _, g := range grads {
		n := floats.Norm(g.Data, 2)
		sum += n * n
	}
	return math.Sqrt(sum)
}
