package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"scorescan/internal/config"
	"scorescan/internal/domain"
)

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	audiveris := filepath.Join(root, "Audiveris")
	if err := os.WriteFile(audiveris, []byte("stub"), 0o755); err != nil {
		t.Fatalf("write engine stub: %v", err)
	}

	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(config.Config{
		Storage: config.StorageConfig{Root: filepath.Join(root, "data")},
		Engines: config.EnginesConfig{
			AudiverisPath:  audiveris,
			MuseScorePath:  "musescore",
			DisplayWrapper: "xvfb-run",
		},
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	if report.GeneratedAt.IsZero() {
		t.Fatal("generatedAt not set")
	}
}

// TestCheckerRunMissingEnginesAndPaths validates failure reporting.
func TestCheckerRunMissingEnginesAndPaths(t *testing.T) {
	checker := NewCheckerForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(config.Config{
		Storage: config.StorageConfig{Root: ""},
		Engines: config.EnginesConfig{
			AudiverisPath:  "/path/that/does/not/exist",
			MuseScorePath:  "musescore",
			DisplayWrapper: "xvfb-run",
		},
	})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, "recognition_engine", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "render_engine", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "display_wrapper", domain.DiagnosticStatusFail)
}

// TestCheckerRunEnginePathIsDirectoryFails validates the binary check.
func TestCheckerRunEnginePathIsDirectoryFails(t *testing.T) {
	root := t.TempDir()

	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.Stat,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)
	report := checker.Run(config.Config{
		Storage: config.StorageConfig{Root: filepath.Join(root, "data")},
		Engines: config.EnginesConfig{
			AudiverisPath:  root,
			MuseScorePath:  "musescore",
			DisplayWrapper: "xvfb-run",
		},
	})

	assertStatusByID(t, report, "recognition_engine", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "score_dir", domain.DiagnosticStatusPass)
}

// TestCheckerRunUnwritableStorageFails validates write-access probing.
func TestCheckerRunUnwritableStorageFails(t *testing.T) {
	root := t.TempDir()
	audiveris := filepath.Join(root, "Audiveris")
	if err := os.WriteFile(audiveris, []byte("stub"), 0o755); err != nil {
		t.Fatalf("write engine stub: %v", err)
	}

	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.Stat,
		os.MkdirAll,
		func(string, string) (*os.File, error) { return nil, errors.New("read-only filesystem") },
		os.Remove,
	)
	report := checker.Run(config.Config{
		Storage: config.StorageConfig{Root: filepath.Join(root, "data")},
		Engines: config.EnginesConfig{
			AudiverisPath:  audiveris,
			MuseScorePath:  "musescore",
			DisplayWrapper: "xvfb-run",
		},
	})

	assertStatusByID(t, report, "upload_dir", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "pdf_dir", domain.DiagnosticStatusFail)
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
