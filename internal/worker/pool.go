// Package worker runs the background pool that claims pending jobs and
// drives them through the conversion pipeline.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"scorescan/internal/config"
	"scorescan/internal/jobs"
)

// JobProcessor executes one claimed job to a terminal state.
type JobProcessor interface {
	Run(ctx context.Context, jobID string) error
}

// Pool polls the queue and fans claimed jobs out to worker goroutines.
type Pool struct {
	queue     jobs.Queue
	processor JobProcessor
	logger    *zap.Logger

	concurrency  int
	pollInterval time.Duration
}

// NewPool creates a worker pool from configuration.
func NewPool(cfg config.WorkerConfig, queue jobs.Queue, processor JobProcessor, logger *zap.Logger) *Pool {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &Pool{
		queue:        queue,
		processor:    processor,
		logger:       logger,
		concurrency:  concurrency,
		pollInterval: pollInterval,
	}
}

// Run claims and processes jobs until the context is cancelled, then waits
// for in-flight jobs to finish.
func (p *Pool) Run(ctx context.Context) {
	claimed := make(chan string, p.concurrency)

	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for jobID := range claimed {
				if err := p.processor.Run(ctx, jobID); err != nil {
					// The processor commits the terminal state itself.
					p.logger.Warn("job run finished with error",
						zap.Int("worker", idx),
						zap.String("jobId", jobID),
						zap.Error(err),
					)
					continue
				}
				p.logger.Info("job run finished",
					zap.Int("worker", idx),
					zap.String("jobId", jobID),
				)
			}
		}(i)
	}

	p.dispatch(ctx, claimed)
	close(claimed)
	wg.Wait()
}

// dispatch drains the queue on every tick until the context is cancelled.
func (p *Pool) dispatch(ctx context.Context, claimed chan<- string) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				job, found, err := p.queue.ClaimNext(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					p.logger.Error("job claim failed", zap.Error(err))
					break
				}
				if !found {
					break
				}

				select {
				case claimed <- job.ID:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
