package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"scorescan/internal/domain"
)

// MemoryStore keeps job records in process memory. It backs one-shot CLI runs
// and tests; the worker deployment uses the Postgres adapter.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]domain.Job),
		now:  time.Now,
	}
}

// CreateJob registers a new pending job.
func (s *MemoryStore) CreateJob(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now().UTC()
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateStatus applies one atomic commit to a job record, enforcing the
// terminal-once and monotonic-progress invariants.
func (s *MemoryStore) UpdateStatus(_ context.Context, id string, update StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrJobTerminal, id)
	}

	if update.Status != "" {
		job.Status = update.Status
	}
	if update.Progress != nil {
		if *update.Progress < job.Progress {
			return fmt.Errorf("%w: %d -> %d", ErrProgressRegression, job.Progress, *update.Progress)
		}
		job.Progress = *update.Progress
	}
	if update.ErrorMessage != "" {
		job.ErrorMessage = update.ErrorMessage
	}
	if update.SymbolicScorePath != "" {
		job.SymbolicScorePath = update.SymbolicScorePath
	}
	if update.RenderedOutputPath != "" {
		job.RenderedOutputPath = update.RenderedOutputPath
	}
	if job.Status.IsTerminal() {
		completed := s.now().UTC()
		job.CompletedAt = &completed
	}

	s.jobs[id] = job
	return nil
}

// GetJob returns a snapshot of one job record.
func (s *MemoryStore) GetJob(_ context.Context, id string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// ClaimNext hands out the oldest pending job and marks it processing.
func (s *MemoryStore) ClaimNext(_ context.Context) (domain.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for id, job := range s.jobs {
		if job.Status == domain.JobStatusPending {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return domain.Job{}, false, nil
	}

	sort.Slice(ids, func(i, j int) bool {
		a, b := s.jobs[ids[i]], s.jobs[ids[j]]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	job := s.jobs[ids[0]]
	job.Status = domain.JobStatusProcessing
	s.jobs[job.ID] = job
	return job, true, nil
}
