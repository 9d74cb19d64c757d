// Package pipeline drives one conversion job through its ordered stages:
// geometry normalization, optical recognition, optional transposition, and
// rendering. Each stage commits a progress checkpoint before the next starts.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"scorescan/internal/config"
	"scorescan/internal/domain"
	"scorescan/internal/engine"
	"scorescan/internal/jobs"
	"scorescan/internal/preprocess"
	"scorescan/internal/transpose"
)

// StageError is a stage-aware terminal pipeline error.
type StageError struct {
	Stage   string
	Message string
	Err     error
}

// Error formats the failure with its stage namespace.
func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s failed: %s", e.Stage, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// imageNormalizer prepares the photographed page for recognition.
type imageNormalizer interface {
	NormalizeFile(inputPath, outputPath string) error
}

// engineRunner executes one external engine binding.
type engineRunner interface {
	Run(ctx context.Context, binding engine.Binding, inputPath, outputDir string) domain.StageResult
}

// scoreTransposer rewrites MusicXML pitch content.
type scoreTransposer interface {
	TransposeFile(inputPath, outputPath string, semitones int) error
	TransposeFileByKey(inputPath, outputPath, fromKey, toKey string) (int, error)
}

// stage is one descriptor in the ordered execution plan. startProgress is
// committed before run, doneProgress after it succeeds.
type stage struct {
	name          string
	startProgress int
	doneProgress  int
	skip          bool
	run           func(ctx context.Context) (jobs.StatusUpdate, error)
}

// Orchestrator executes conversion jobs against a job-record sink. It mutates
// exactly one job per run and holds run ownership through the registry.
type Orchestrator struct {
	normalizer  imageNormalizer
	engines     engineRunner
	transposer  scoreTransposer
	recognition engine.Binding
	rendering   engine.Binding
	store       jobs.Store
	registry    *jobs.Registry
	events      *jobs.EventBus
	storage     config.StorageConfig
	logger      *zap.Logger
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(path string) error
}

// NewOrchestrator constructs the production pipeline from configuration.
func NewOrchestrator(cfg config.Config, store jobs.Store, registry *jobs.Registry, events *jobs.EventBus, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		normalizer:  preprocess.NewNormalizer(cfg.Preprocess, logger),
		engines:     engine.NewRunner(logger),
		transposer:  transpose.NewTransposer(logger),
		recognition: engine.RecognitionBinding(cfg.Engines),
		rendering:   engine.RenderBinding(cfg.Engines),
		store:       store,
		registry:    registry,
		events:      events,
		storage:     cfg.Storage,
		logger:      logger,
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
	}
}

// Run drives one job from pending to a terminal state. The returned error
// mirrors what was committed to the job record.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (err error) {
	if err := o.registry.Acquire(jobID); err != nil {
		return fmt.Errorf("job %s: %w", jobID, err)
	}
	defer o.registry.Release(jobID)

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s: %w", jobID, jobs.ErrJobTerminal)
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("pipeline panic", zap.String("jobId", jobID), zap.Any("panic", r))
			stageErr := &StageError{Stage: "pipeline", Message: "internal error"}
			o.fail(ctx, jobID, stageErr)
			err = stageErr
		}
	}()

	scratchDir, err := o.mkdirTemp("", "scorescan-*")
	if err != nil {
		stageErr := &StageError{Stage: "normalization", Message: "failed to create scratch workspace", Err: err}
		o.fail(ctx, jobID, stageErr)
		return stageErr
	}
	// The normalized page is an intermediate artifact; drop it on every path.
	defer func() {
		_ = o.removeAll(scratchDir)
	}()

	if err := o.commit(ctx, jobID, jobs.StatusUpdate{Status: domain.JobStatusProcessing, Progress: intPtr(0)}); err != nil {
		return err
	}
	o.publish(jobs.Event{JobID: jobID, Type: jobs.EventTypeStatus, Status: domain.JobStatusProcessing})

	normalizedPath := filepath.Join(scratchDir, "normalized.png")
	scorePath := ""
	renderedPath := ""

	plan := []stage{
		{
			name:          "normalization",
			startProgress: 0,
			doneProgress:  10,
			run: func(_ context.Context) (jobs.StatusUpdate, error) {
				if err := o.normalizer.NormalizeFile(job.SourceImagePath, normalizedPath); err != nil {
					return jobs.StatusUpdate{}, err
				}
				return jobs.StatusUpdate{}, nil
			},
		},
		{
			name:          "recognition",
			startProgress: 10,
			doneProgress:  50,
			run: func(ctx context.Context) (jobs.StatusUpdate, error) {
				result := o.engines.Run(ctx, o.recognition, normalizedPath, filepath.Join(o.storage.ScoreDir(), job.ID))
				if !result.Success {
					return jobs.StatusUpdate{}, fmt.Errorf("%s", result.Error)
				}
				scorePath = result.OutputPath
				return jobs.StatusUpdate{SymbolicScorePath: scorePath}, nil
			},
		},
		{
			name:          "transposition",
			startProgress: 55,
			doneProgress:  70,
			skip:          job.Transpose.IsZero(),
			run: func(_ context.Context) (jobs.StatusUpdate, error) {
				outPath := transposedPath(scorePath)
				if job.Transpose.Semitones != nil {
					if err := o.transposer.TransposeFile(scorePath, outPath, *job.Transpose.Semitones); err != nil {
						return jobs.StatusUpdate{}, err
					}
				} else {
					if _, err := o.transposer.TransposeFileByKey(scorePath, outPath, job.Transpose.FromKey, job.Transpose.ToKey); err != nil {
						return jobs.StatusUpdate{}, err
					}
				}
				scorePath = outPath
				return jobs.StatusUpdate{SymbolicScorePath: scorePath}, nil
			},
		},
		{
			name:          "rendering",
			startProgress: 75,
			doneProgress:  100,
			run: func(ctx context.Context) (jobs.StatusUpdate, error) {
				result := o.engines.Run(ctx, o.rendering, scorePath, filepath.Join(o.storage.PDFDir(), job.ID))
				if !result.Success {
					return jobs.StatusUpdate{}, fmt.Errorf("%s", result.Error)
				}
				renderedPath = result.OutputPath
				return jobs.StatusUpdate{RenderedOutputPath: renderedPath}, nil
			},
		},
	}

	for _, st := range plan {
		if st.skip {
			continue
		}

		if err := o.commit(ctx, jobID, jobs.StatusUpdate{Progress: intPtr(st.startProgress)}); err != nil {
			return err
		}
		o.publish(jobs.Event{JobID: jobID, Type: jobs.EventTypeStage, Stage: st.name, Progress: st.startProgress})
		o.logger.Info("stage started", zap.String("jobId", jobID), zap.String("stage", st.name))

		update, runErr := st.run(ctx)
		if runErr != nil {
			stageErr := &StageError{Stage: st.name, Message: runErr.Error(), Err: runErr}
			o.fail(ctx, jobID, stageErr)
			return stageErr
		}

		update.Progress = intPtr(st.doneProgress)
		if st.doneProgress == 100 {
			update.Status = domain.JobStatusCompleted
		}
		if err := o.commit(ctx, jobID, update); err != nil {
			return err
		}
		o.publish(jobs.Event{JobID: jobID, Type: jobs.EventTypeStage, Stage: st.name, Progress: st.doneProgress})
		if update.SymbolicScorePath != "" || update.RenderedOutputPath != "" {
			o.publish(jobs.Event{
				JobID: jobID,
				Type:  jobs.EventTypeArtifact,
				Stage: st.name,
				Path:  firstNonEmpty(update.RenderedOutputPath, update.SymbolicScorePath),
			})
		}
	}

	o.publish(jobs.Event{JobID: jobID, Type: jobs.EventTypeStatus, Status: domain.JobStatusCompleted})
	o.logger.Info("job completed",
		zap.String("jobId", jobID),
		zap.String("scorePath", scorePath),
		zap.String("renderedPath", renderedPath),
	)
	return nil
}

// fail commits the terminal failed state. Progress stays at its last
// committed checkpoint.
func (o *Orchestrator) fail(ctx context.Context, jobID string, stageErr *StageError) {
	update := jobs.StatusUpdate{
		Status:       domain.JobStatusFailed,
		ErrorMessage: stageErr.Error(),
	}
	if err := o.store.UpdateStatus(ctx, jobID, update); err != nil {
		o.logger.Error("failed to commit job failure", zap.String("jobId", jobID), zap.Error(err))
	}
	o.publish(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeError,
		Status:  domain.JobStatusFailed,
		Stage:   stageErr.Stage,
		Message: stageErr.Error(),
	})
	o.logger.Warn("job failed",
		zap.String("jobId", jobID),
		zap.String("stage", stageErr.Stage),
		zap.Error(stageErr),
	)
}

// commit writes one status update, surfacing sink errors to the caller.
func (o *Orchestrator) commit(ctx context.Context, jobID string, update jobs.StatusUpdate) error {
	if err := o.store.UpdateStatus(ctx, jobID, update); err != nil {
		return fmt.Errorf("commit job %s: %w", jobID, err)
	}
	return nil
}

// publish forwards one event when a bus is configured.
func (o *Orchestrator) publish(event jobs.Event) {
	if o.events != nil {
		o.events.Publish(event)
	}
}

// transposedPath derives the transposed score filename from the original.
func transposedPath(scorePath string) string {
	ext := filepath.Ext(scorePath)
	return scorePath[:len(scorePath)-len(ext)] + "-transposed" + ext
}

func intPtr(v int) *int { return &v }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewOrchestratorForTests constructs an orchestrator with injectable stage
// collaborators and OS dependencies.
func NewOrchestratorForTests(
	normalizer imageNormalizer,
	engines engineRunner,
	transposer scoreTransposer,
	recognition engine.Binding,
	rendering engine.Binding,
	store jobs.Store,
	registry *jobs.Registry,
	events *jobs.EventBus,
	storage config.StorageConfig,
	logger *zap.Logger,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
) *Orchestrator {
	return &Orchestrator{
		normalizer:  normalizer,
		engines:     engines,
		transposer:  transposer,
		recognition: recognition,
		rendering:   rendering,
		store:       store,
		registry:    registry,
		events:      events,
		storage:     storage,
		logger:      logger,
		mkdirTemp:   mkdirTemp,
		removeAll:   removeAll,
	}
}
