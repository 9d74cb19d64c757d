// Package engine invokes the external recognition and rendering tools and
// locates their output. External engines are opaque: exit codes are not
// authoritative, output-file presence is.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"scorescan/internal/domain"
)

// ErrTimeout reports that an external engine exceeded its wall-clock bound
// and was forcibly terminated.
var ErrTimeout = errors.New("engine timed out")

// diagnosticLimit caps how much captured process output is attached to a
// stage failure.
const diagnosticLimit = 500

// Invocation describes one external engine run.
type Invocation struct {
	Name string
	Args []string
	Env  []string
}

// Binding is one configured external engine: how to invoke it and what output
// it is expected to produce.
type Binding struct {
	// Label names the engine in logs and diagnostics.
	Label string
	// Command builds the process invocation for an input file and output dir.
	Command func(inputPath, outputDir string) Invocation
	// Candidates is the ordered extension probe list for output discovery.
	Candidates []Candidate
	// Timeout is the hard wall-clock bound.
	Timeout time.Duration
}

// commandResult captures one finished process.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, inv Invocation) (commandResult, error)
}

// execRunner executes commands via os/exec with inherited environment.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, inv Invocation) (commandResult, error) {
	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	cmd.Env = append(os.Environ(), inv.Env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// Runner executes engine bindings and resolves their output artifacts.
type Runner struct {
	runner  commandRunner
	logger  *zap.Logger
	readDir func(string) ([]os.DirEntry, error)
	stat    func(string) (os.FileInfo, error)
}

// NewRunner builds a runner with real OS dependencies.
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{
		runner:  &execRunner{},
		logger:  logger,
		readDir: os.ReadDir,
		stat:    os.Stat,
	}
}

// Run invokes the engine against inputPath, enforcing the binding timeout,
// then probes outputDir for a result. Non-zero exit alone never fails the
// stage; a missing output file does.
func (r *Runner) Run(ctx context.Context, binding Binding, inputPath, outputDir string) domain.StageResult {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return failure(fmt.Sprintf("create output directory: %v", err))
	}

	runCtx, cancel := context.WithTimeout(ctx, binding.Timeout)
	defer cancel()

	inv := binding.Command(inputPath, outputDir)
	r.logger.Info("running external engine",
		zap.String("engine", binding.Label),
		zap.String("command", inv.Name),
		zap.Strings("args", inv.Args))

	result, runErr := r.runner.Run(runCtx, inv)
	if runCtx.Err() == context.DeadlineExceeded {
		return failure(fmt.Sprintf("%v after %s: %s",
			ErrTimeout, binding.Timeout, truncate(result.Stderr, diagnosticLimit)))
	}
	if runErr != nil {
		// The engine may exit non-zero yet still have produced usable
		// output; fall through to discovery.
		r.logger.Warn("engine exited with error",
			zap.String("engine", binding.Label),
			zap.Int("exit_code", result.ExitCode),
			zap.Error(runErr))
	}

	outputPath, found := r.discoverOutput(inputPath, outputDir, binding.Candidates)
	if !found {
		msg := fmt.Sprintf("no output file found (exit code %d)", result.ExitCode)
		if diag := truncate(firstNonEmpty(result.Stderr, result.Stdout), diagnosticLimit); diag != "" {
			msg += ": " + diag
		}
		return failure(msg)
	}

	finalPath, err := r.normalizeOutput(outputPath, binding.Candidates)
	if err != nil {
		// Extraction failure is recoverable: pass the container through.
		r.logger.Warn("archive normalization failed, passing container through",
			zap.String("path", outputPath), zap.Error(err))
		finalPath = outputPath
	}

	return domain.StageResult{Success: true, OutputPath: finalPath}
}

// discoverOutput probes for the result file: first the input base name with
// each candidate extension, then a sorted directory scan for any accepted
// extension. The probe is deterministic, so repeated calls against the same
// directory select the same path.
func (r *Runner) discoverOutput(inputPath, outputDir string, candidates []Candidate) (string, bool) {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	for _, c := range candidates {
		path := filepath.Join(outputDir, base+c.Extension)
		if _, err := r.stat(path); err == nil {
			return path, true
		}
	}

	entries, err := r.readDir(outputDir)
	if err != nil {
		return "", false
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, c := range candidates {
		for _, name := range names {
			if strings.EqualFold(filepath.Ext(name), c.Extension) {
				return filepath.Join(outputDir, name), true
			}
		}
	}
	return "", false
}

// normalizeOutput converts a compressed container result into the canonical
// plain form. Plain results are returned as-is.
func (r *Runner) normalizeOutput(outputPath string, candidates []Candidate) (string, error) {
	c, ok := matchCandidate(outputPath, candidates)
	if !ok || c.Kind != FormatCompressedMXL {
		return outputPath, nil
	}

	plainPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".musicxml"
	if err := extractScorePayload(outputPath, plainPath); err != nil {
		return "", err
	}
	r.logger.Info("extracted compressed score",
		zap.String("container", outputPath),
		zap.String("plain", plainPath))
	return plainPath, nil
}

// failure builds an unsuccessful stage result.
func failure(msg string) domain.StageResult {
	return domain.StageResult{Success: false, Error: msg}
}

// truncate caps s at n bytes.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// firstNonEmpty returns the first non-blank string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
