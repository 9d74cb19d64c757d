package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"scorescan/internal/config"
	"scorescan/internal/domain"
	"scorescan/internal/jobs"
)

// recordingProcessor records which jobs were run.
type recordingProcessor struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (p *recordingProcessor) Run(_ context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, jobID)
	return p.err
}

func (p *recordingProcessor) ran() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.runs...)
}

func TestPoolProcessesAllPendingJobs(t *testing.T) {
	store := jobs.NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"job-1", "job-2", "job-3"} {
		if err := store.CreateJob(ctx, domain.Job{ID: id}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	processor := &recordingProcessor{}
	pool := NewPool(config.WorkerConfig{Concurrency: 2, PollInterval: 5 * time.Millisecond}, store, processor, zap.NewNop())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		pool.Run(runCtx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(processor.ran()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("processed %v before deadline", processor.ran())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	ran := processor.ran()
	if len(ran) != 3 {
		t.Fatalf("processed %v, want all three jobs exactly once", ran)
	}
	seen := map[string]bool{}
	for _, id := range ran {
		if seen[id] {
			t.Fatalf("job %s processed twice", id)
		}
		seen[id] = true
	}
}

func TestPoolContinuesAfterProcessorError(t *testing.T) {
	store := jobs.NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"job-1", "job-2"} {
		if err := store.CreateJob(ctx, domain.Job{ID: id}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	processor := &recordingProcessor{err: errors.New("recognition failed: no output")}
	pool := NewPool(config.WorkerConfig{Concurrency: 1, PollInterval: 5 * time.Millisecond}, store, processor, zap.NewNop())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		pool.Run(runCtx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(processor.ran()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("processed %v before deadline", processor.ran())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestPoolStopsOnCancel(t *testing.T) {
	store := jobs.NewMemoryStore()
	processor := &recordingProcessor{}
	pool := NewPool(config.WorkerConfig{Concurrency: 1, PollInterval: 5 * time.Millisecond}, store, processor, zap.NewNop())

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(runCtx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after cancel")
	}
}
