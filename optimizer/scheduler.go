package optimizer

import (
	"fmt"
	"math"

	"github.com/tsawler/go-sparseops/tensor"
)

// LRScheduler represents a learning rate scheduler interface
type LRScheduler interface {
	Step(step int64) error
	GetLR() float64
	SetOptimizer(opt Optimizer)
}

// ExponentialDecayScheduler implements exponential decay learning rate scheduling:
// lr = initialLR * decayRate^(step/decaySteps).
type ExponentialDecayScheduler struct {
	optimizer  Optimizer
	initialLR  float64
	decayRate  float64
	decaySteps int64
	currentLR  float64
}

// NewExponentialDecayScheduler creates a new exponential decay scheduler
func NewExponentialDecayScheduler(initialLR, decayRate float64, decaySteps int64) *ExponentialDecayScheduler {
	return &ExponentialDecayScheduler{
		initialLR:  initialLR,
		decayRate:  decayRate,
		decaySteps: decaySteps,
		currentLR:  initialLR,
	}
}

// Step updates the learning rate based on the current step
func (s *ExponentialDecayScheduler) Step(step int64) error {
	if s.decaySteps <= 0 {
		return fmt.Errorf("exponential decay: %w: decay steps must be positive, got %d", tensor.ErrUsage, s.decaySteps)
	}
	s.currentLR = s.initialLR * math.Pow(s.decayRate, float64(step)/float64(s.decaySteps))
	if s.optimizer != nil {
		s.optimizer.SetLearningRate(s.currentLR)
	}
	return nil
}

// GetLR returns the current learning rate
func (s *ExponentialDecayScheduler) GetLR() float64 { return s.currentLR }

// SetOptimizer sets the optimizer to update
func (s *ExponentialDecayScheduler) SetOptimizer(opt Optimizer) { s.optimizer = opt }

// StepDecayScheduler multiplies the learning rate by gamma every stepSize steps.
type StepDecayScheduler struct {
	optimizer Optimizer
	initialLR float64
	gamma     float64
	stepSize  int64
	currentLR float64
}

// NewStepDecayScheduler creates a new step decay scheduler
func NewStepDecayScheduler(initialLR, gamma float64, stepSize int64) *StepDecayScheduler {
	return &StepDecayScheduler{
		initialLR: initialLR,
		gamma:     gamma,
		stepSize:  stepSize,
		currentLR: initialLR,
	}
}

// Step updates the learning rate based on the current step
func (s *StepDecayScheduler) Step(step int64) error {
	if s.stepSize <= 0 {
		return fmt.Errorf("step decay: %w: step size must be positive, got %d", tensor.ErrUsage, s.stepSize)
	}
	s.currentLR = s.initialLR * math.Pow(s.gamma, float64(step/s.stepSize))
	if s.optimizer != nil {
		s.optimizer.SetLearningRate(s.currentLR)
	}
	return nil
}

// GetLR returns the current learning rate
func (s *StepDecayScheduler) GetLR() float64 { return s.currentLR }

// SetOptimizer sets the optimizer to update
func (s *StepDecayScheduler) SetOptimizer(opt Optimizer) { s.optimizer = opt }

// CosineAnnealingScheduler implements cosine annealing learning rate scheduling.
// Steps past totalSteps hold minLR.
type CosineAnnealingScheduler struct {
	optimizer  Optimizer
	initialLR  float64
	minLR      float64
	totalSteps int64
	currentLR  float64
}

// NewCosineAnnealingScheduler creates a new cosine annealing scheduler
func NewCosineAnnealingScheduler(initialLR, minLR float64, totalSteps int64) *CosineAnnealingScheduler {
	return &CosineAnnealingScheduler{
		initialLR:  initialLR,
		minLR:      minLR,
		totalSteps: totalSteps,
		currentLR:  initialLR,
	}
}

// Step updates the learning rate based on the current step
func (s *CosineAnnealingScheduler) Step(step int64) error {
	if s.totalSteps <= 0 {
		return fmt.Errorf("cosine annealing: %w: total steps must be positive, got %d", tensor.ErrUsage, s.totalSteps)
	}
	progress := math.Min(float64(step)/float64(s.totalSteps), 1)
	s.currentLR = s.minLR + (s.initialLR-s.minLR)*0.5*(1+math.Cos(math.Pi*progress))
	if s.optimizer != nil {
		s.optimizer.SetLearningRate(s.currentLR)
	}
	return nil
}

// GetLR returns the current learning rate
func (s *CosineAnnealingScheduler) GetLR() float64 { return s.currentLR }

// SetOptimizer sets the optimizer to update
func (s *CosineAnnealingScheduler) SetOptimizer(opt Optimizer) { s.optimizer = opt }

// WarmupScheduler ramps the learning rate linearly to targetLR over
// warmupSteps, then hands over to a base scheduler if one is set.
type WarmupScheduler struct {
	optimizer     Optimizer
	baseScheduler LRScheduler
	targetLR      float64
	warmupSteps   int64
	currentLR     float64
}

// NewWarmupScheduler creates a new warmup scheduler
func NewWarmupScheduler(targetLR float64, warmupSteps int64) *WarmupScheduler {
	return &WarmupScheduler{targetLR: targetLR, warmupSteps: warmupSteps}
}

// SetBaseScheduler sets a base scheduler to use after warmup completes
func (s *WarmupScheduler) SetBaseScheduler(scheduler LRScheduler) {
	s.baseScheduler = scheduler
}

// Step updates the learning rate based on the current step
func (s *WarmupScheduler) Step(step int64) error {
	switch {
	case step < s.warmupSteps:
		s.currentLR = s.targetLR * float64(step+1) / float64(s.warmupSteps)
	case s.baseScheduler != nil:
		if err := s.baseScheduler.Step(step - s.warmupSteps); err != nil {
			return err
		}
		s.currentLR = s.baseScheduler.GetLR()
	default:
		s.currentLR = s.targetLR
	}
	if s.optimizer != nil {
		s.optimizer.SetLearningRate(s.currentLR)
	}
	return nil
}

// GetLR returns the current learning rate
func (s *WarmupScheduler) GetLR() float64 { return s.currentLR }

// SetOptimizer sets the optimizer to update
func (s *WarmupScheduler) SetOptimizer(opt Optimizer) {
	s.optimizer = opt
	if s.baseScheduler != nil {
		s.baseScheduler.SetOptimizer(opt)
	}
}

// NewWarmupCosineScheduler creates the common warmup + cosine annealing schedule
func NewWarmupCosineScheduler(maxLR, minLR float64, warmupSteps, totalSteps int64) LRScheduler {
	w := NewWarmupScheduler(maxLR, warmupSteps)
	w.SetBaseScheduler(NewCosineAnnealingScheduler(maxLR, minLR, totalSteps-warmupSteps))
	return w
}
