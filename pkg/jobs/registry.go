package jobs

import (
	"fmt"
	"sync"

	"github.com/northstarcredit/core/pkg/retry"
)

// registration pairs a Runner with the retry policy its job type should
// be scheduled under.
type registration struct {
	runner Runner
	retry  retry.Config
}

// Registry maps job type names to the Runner that executes them. It must
// be fully populated before Scheduler.Run is called; registering a type
// twice is a programmer error.
type Registry struct {
	mu    sync.RWMutex
	types map[string]registration
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]registration)}
}

// Register adds runner under jobType, retried per cfg.
func (r *Registry) Register(jobType string, runner Runner, cfg retry.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[jobType]; exists {
		panic(fmt.Sprintf("jobs: job type %q registered twice", jobType))
	}

	r.types[jobType] = registration{runner: runner, retry: cfg}
}

func (r *Registry) lookup(jobType string) (registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.types[jobType]

	return reg, ok
}
