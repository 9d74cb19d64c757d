// Package diagnostics verifies the external engines and storage layout a
// deployment needs before it accepts conversion jobs.
package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"scorescan/internal/config"
	"scorescan/internal/domain"
)

// Checker validates external engine binaries and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(cfg config.Config) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkEngine("recognition_engine", "Recognition engine", cfg.Engines.AudiverisPath),
		c.checkEngine("render_engine", "Render engine", cfg.Engines.MuseScorePath),
		c.checkWrapper(cfg.Engines.DisplayWrapper),
		c.checkStorageDir("upload_dir", "Upload directory", cfg.Storage.UploadDir()),
		c.checkStorageDir("score_dir", "Score directory", cfg.Storage.ScoreDir()),
		c.checkStorageDir("pdf_dir", "PDF directory", cfg.Storage.PDFDir()),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkEngine verifies a configured engine binary: absolute paths must exist
// and be executable files, bare names must resolve on PATH.
func (c *Checker) checkEngine(id, name, path string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}

	if strings.TrimSpace(path) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Engine path is empty."
		item.Hint = "Configure the engine binary path."
		return item
	}

	if !filepath.IsAbs(path) {
		resolved, err := c.lookPath(path)
		if err != nil {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Engine not found in PATH: %s", path)
			item.Hint = "Install the engine and ensure the binary is available on PATH."
			return item
		}
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Found at %s", resolved)
		return item
	}

	info, err := c.stat(path)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Engine binary does not exist: %s", path)
		} else {
			item.Message = fmt.Sprintf("Cannot access engine binary: %s", path)
		}
		item.Hint = "Install the engine or correct the configured path."
		return item
	}
	if info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Engine path is a directory: %s", path)
		item.Hint = "Point the configuration at the engine binary itself."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkWrapper verifies the virtual-display wrapper used for headless
// recognition runs.
func (c *Checker) checkWrapper(wrapper string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "display_wrapper", Name: "Display wrapper"}

	if strings.TrimSpace(wrapper) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Display wrapper is empty."
		item.Hint = "Configure the headless display wrapper, typically xvfb-run."
		return item
	}

	path, err := c.lookPath(wrapper)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Wrapper not found in PATH: %s", wrapper)
		item.Hint = "Install xvfb so recognition can run without a display server."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkStorageDir validates directory existence and write access.
func (c *Checker) checkStorageDir(id, name, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Storage directory is empty."
		item.Hint = "Set a storage root where job artifacts can be written."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory for job artifacts."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
