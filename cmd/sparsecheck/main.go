// Command sparsecheck draws random sparse matrices from a seeded generator
// and checks the operator layer's algebraic properties against them.
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tsawler/go-sparseops/matrix"
)

func main() {
	rows := flag.Int("rows", 40, "Rows of the random sparse matrices.")
	cols := flag.Int("cols", 30, "Columns of the random sparse matrices.")
	width := flag.Int("width", 8, "Columns of the dense right-hand operands.")
	density := flag.Float64("density", 0.1, "Fraction of entries stored.")
	seed := flag.Uint64("seed", 1, "Seed of the PCG generator.")
	iters := flag.Int("iters", 5, "Random instances per check.")
	verbosity := flag.Int("v", 0, "Log verbosity; higher values log every instance.")
	flag.Parse()

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.Level(-*verbosity))
	zc.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	zl, err := zc.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot build logger: %v\n", err)
		os.Exit(2)
	}
	defer zl.Sync() //nolint:errcheck
	log := zapr.NewLogger(zl).WithName("sparsecheck")
	matrix.SetLogger(log)

	if *rows <= 0 || *cols <= 0 || *width <= 0 || *iters <= 0 || *density < 0 || *density > 1 {
		log.Error(nil, "invalid flags", "rows", *rows, "cols", *cols, "width", *width, "iters", *iters, "density", *density)
		os.Exit(2)
	}

	p := problem{
		rows:    *rows,
		cols:    *cols,
		width:   *width,
		density: *density,
		rng:     rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)),
	}
	if failed := run(log, p, *iters); failed > 0 {
		log.Error(nil, "checks failed", "failures", failed)
		os.Exit(1)
	}
	log.Info("all checks passed", "checks", len(checks), "iters", *iters)
}

// run executes every check iters times and returns the number of failures.
func run(log logr.Logger, p problem, iters int) int {
	failed := 0
	for _, c := range checks {
		clog := log.WithValues("check", c.name)
		ok := true
		for i := range iters {
			if err := c.run(p); err != nil {
				clog.Error(err, "instance failed", "iter", i)
				ok = false
				failed++
				continue
			}
			clog.V(1).Info("instance passed", "iter", i)
		}
		if ok {
			clog.Info("passed")
		}
	}
	return failed
}
