package matrix

import "sync"

// scratchPool recycles the dense accumulation rows used by the
// scatter/gather kernels so repeated gradient passes do not allocate.
var scratchPool = sync.Pool{
	New: func() any {
		buf := make([]float64, 0, 256)
		return &buf
	},
}

// getScratch returns a zeroed buffer of length n.
func getScratch(n int) *[]float64 {
	p := scratchPool.Get().(*[]float64)
	if cap(*p) < n {
		*p = make([]float64, n)
	} else {
		*p = (*p)[:n]
		clear(*p)
	}
	return p
}

// putScratch returns a buffer to the pool. Callers must not touch it afterward.
func putScratch(p *[]float64) {
	if p == nil {
		return
	}
	scratchPool.Put(p)
}
