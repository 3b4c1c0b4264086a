package main

import (
	"math/rand/v2"
	"testing"

	"github.com/go-logr/zapr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestChecksPass(t *testing.T) {
	for _, density := range []float64{0, 0.05, 0.3, 1} {
		p := problem{rows: 7, cols: 5, width: 3, density: density, rng: rand.New(rand.NewPCG(9, 10))}
		for _, c := range checks {
			require.NoError(t, c.run(p), "%s at density %g", c.name, density)
		}
	}
}

func TestRunCountsFailures(t *testing.T) {
	log := zapr.NewLogger(zaptest.NewLogger(t))
	p := problem{rows: 4, cols: 4, width: 2, density: 0.5, rng: rand.New(rand.NewPCG(1, 2))}
	assert.Zero(t, run(log, p, 2))

	saved := checks
	t.Cleanup(func() { checks = saved })
	checks = append([]check{{"always fails", func(problem) error { return errCheck }}}, saved...)
	assert.Equal(t, 3, run(log, p, 3))
}
