package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"scorescan/internal/domain"
	"scorescan/internal/jobs"
)

// Store implements jobs.Queue on a PostgreSQL jobs table.
type Store struct {
	db *DB
}

// NewStore creates a Postgres-backed job store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a new pending job row.
func (s *Store) CreateJob(ctx context.Context, job domain.Job) error {
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO jobs (id, status, progress, source_image_path, symbolic_score_path,
		                  rendered_output_path, semitones, from_key, to_key, error_message,
		                  created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, job.ID, job.Status, job.Progress, job.SourceImagePath, job.SymbolicScorePath,
		job.RenderedOutputPath, job.Transpose.Semitones, job.Transpose.FromKey,
		job.Transpose.ToKey, job.ErrorMessage, job.CreatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateStatus applies one atomic commit to a job row inside a transaction,
// enforcing the terminal-once and monotonic-progress invariants.
func (s *Store) UpdateStatus(ctx context.Context, id string, update jobs.StatusUpdate) (err error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	var (
		status   domain.JobStatus
		progress int
	)
	err = tx.QueryRow(ctx, `SELECT status, progress FROM jobs WHERE id = $1 FOR UPDATE`, id).
		Scan(&status, &progress)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}
	if err != nil {
		return err
	}
	if status.IsTerminal() {
		return fmt.Errorf("%w: %s", jobs.ErrJobTerminal, id)
	}

	if update.Status != "" {
		status = update.Status
	}
	if update.Progress != nil {
		if *update.Progress < progress {
			return fmt.Errorf("%w: %d -> %d", jobs.ErrProgressRegression, progress, *update.Progress)
		}
		progress = *update.Progress
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobs SET
			status = $2,
			progress = $3,
			error_message = CASE WHEN $4 <> '' THEN $4 ELSE error_message END,
			symbolic_score_path = CASE WHEN $5 <> '' THEN $5 ELSE symbolic_score_path END,
			rendered_output_path = CASE WHEN $6 <> '' THEN $6 ELSE rendered_output_path END,
			completed_at = CASE WHEN $7 THEN now() ELSE completed_at END
		WHERE id = $1
	`, id, status, progress, update.ErrorMessage, update.SymbolicScorePath,
		update.RenderedOutputPath, status.IsTerminal())
	return err
}

// GetJob loads one job row.
func (s *Store) GetJob(ctx context.Context, id string) (domain.Job, error) {
	job, err := scanJob(s.db.Pool.QueryRow(ctx, `
		SELECT id, status, progress, source_image_path, symbolic_score_path,
		       rendered_output_path, semitones, from_key, to_key, error_message,
		       created_at, completed_at
		FROM jobs WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}
	return job, err
}

// ClaimNext locks the oldest pending job with SKIP LOCKED and marks it
// processing, so concurrent workers never claim the same job.
func (s *Store) ClaimNext(ctx context.Context) (job domain.Job, found bool, err error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return job, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	job, err = scanJob(tx.QueryRow(ctx, `
		SELECT id, status, progress, source_image_path, symbolic_score_path,
		       rendered_output_path, semitones, from_key, to_key, error_message,
		       created_at, completed_at
		FROM jobs
		WHERE status = 'pending'
		ORDER BY created_at, id
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, err
	}

	if _, err = tx.Exec(ctx, `UPDATE jobs SET status = 'processing' WHERE id = $1`, job.ID); err != nil {
		return domain.Job{}, false, err
	}
	job.Status = domain.JobStatusProcessing
	return job, true, nil
}

func scanJob(row pgx.Row) (domain.Job, error) {
	var job domain.Job
	err := row.Scan(&job.ID, &job.Status, &job.Progress, &job.SourceImagePath,
		&job.SymbolicScorePath, &job.RenderedOutputPath, &job.Transpose.Semitones,
		&job.Transpose.FromKey, &job.Transpose.ToKey, &job.ErrorMessage,
		&job.CreatedAt, &job.CompletedAt)
	return job, err
}
