package matrix

import (
	"runtime"
	"sync/atomic"

	"github.com/go-logr/logr"
)

// Config holds the process-wide tuning knobs of the operator layer.
type Config struct {
	// ParallelThreshold is the amount of kernel work (stored entries times
	// dense width) above which the CSR/CSC kernels split their outer loop
	// across goroutines. Zero or negative disables parallel execution.
	ParallelThreshold int

	// Workers caps the number of goroutines a single kernel uses.
	Workers int

	// Logger receives the few warnings the layer emits. Errors are returned,
	// never logged.
	Logger logr.Logger
}

// DefaultConfig returns the configuration used until SetConfig is called.
func DefaultConfig() Config {
	return Config{
		ParallelThreshold: 1 << 16,
		Workers:           runtime.GOMAXPROCS(0),
		Logger:            logr.Discard(),
	}
}

var current atomic.Pointer[Config]

func init() {
	cfg := DefaultConfig()
	current.Store(&cfg)
}

// SetConfig replaces the active configuration. It is safe to call while
// operators run; kernels read the configuration once per invocation.
func SetConfig(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}
	current.Store(&cfg)
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config {
	return *current.Load()
}

// SetLogger replaces only the logger of the active configuration.
func SetLogger(logger logr.Logger) {
	cfg := CurrentConfig()
	cfg.Logger = logger
	SetConfig(cfg)
}

func logger() logr.Logger {
	return current.Load().Logger.WithName("sparse")
}
