package matrix

import (
	"golang.org/x/sync/errgroup"
)

// parallelFor runs fn over [0, n) in contiguous chunks. When work is below
// the configured threshold, or only one worker is allowed, fn runs once on
// the calling goroutine. Chunks are disjoint, so fn may write any output
// owned by its range without synchronization.
func parallelFor(n, work int, fn func(start, end int) error) error {
	if n <= 0 {
		return nil
	}
	cfg := CurrentConfig()
	workers := min(cfg.Workers, n)
	if cfg.ParallelThreshold <= 0 || work < cfg.ParallelThreshold || workers <= 1 {
		return fn(0, n)
	}
	var g errgroup.Group
	g.SetLimit(workers)
	chunk := (n + workers - 1) / workers
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error { return fn(start, end) })
	}
	return g.Wait()
}
