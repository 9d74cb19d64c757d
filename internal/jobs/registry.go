package jobs

import (
	"errors"
	"sync"
)

// ErrJobAlreadyRunning is returned when a second run tries to take ownership
// of a job id that is already being processed.
var ErrJobAlreadyRunning = errors.New("job already running")

// Registry enforces at-most-one concurrent orchestrator run per job id.
// Ownership is held for the duration of a run; the orchestrator itself
// assumes single ownership and does not re-check.
type Registry struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewRegistry creates an empty run registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]struct{})}
}

// Acquire takes ownership of a job id for one run.
func (r *Registry) Acquire(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, running := r.active[jobID]; running {
		return ErrJobAlreadyRunning
	}
	r.active[jobID] = struct{}{}
	return nil
}

// Release returns ownership after a run finishes, regardless of outcome.
func (r *Registry) Release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, jobID)
}

// IsRunning reports whether a run currently owns the job id.
func (r *Registry) IsRunning(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, running := r.active[jobID]
	return running
}
