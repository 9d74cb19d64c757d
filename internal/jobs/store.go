// Package jobs defines the job-record sink contract and run ownership rules.
// The orchestrator mutates exactly one job per run through this interface and
// never lists or queries other jobs.
package jobs

import (
	"context"
	"errors"

	"scorescan/internal/domain"
)

// ErrJobNotFound is returned for updates or reads against an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// ErrJobTerminal is returned when mutating a job that already completed or
// failed. Terminal jobs are read-only.
var ErrJobTerminal = errors.New("job already in terminal state")

// ErrProgressRegression is returned when a status update would move progress
// backwards within a run.
var ErrProgressRegression = errors.New("progress may not decrease")

// StatusUpdate is one atomic commit against a job record. Nil or zero fields
// are left untouched; fields are additive and never rolled back.
type StatusUpdate struct {
	Status             domain.JobStatus
	Progress           *int
	ErrorMessage       string
	SymbolicScorePath  string
	RenderedOutputPath string
}

// Store persists job records.
type Store interface {
	CreateJob(ctx context.Context, job domain.Job) error
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) error
	GetJob(ctx context.Context, id string) (domain.Job, error)
}

// Queue extends Store with background-worker claiming. ClaimNext hands a
// pending job to exactly one caller and marks it processing.
type Queue interface {
	Store
	ClaimNext(ctx context.Context) (domain.Job, bool, error)
}
