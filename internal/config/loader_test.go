package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./storage", cfg.Storage.Root)
	assert.Equal(t, "/opt/audiveris/bin/Audiveris", cfg.Engines.AudiverisPath)
	assert.Equal(t, "xvfb-run", cfg.Engines.DisplayWrapper)
	assert.Equal(t, 300*time.Second, cfg.Engines.RecognizeTimeout)
	assert.Equal(t, 120*time.Second, cfg.Engines.RenderTimeout)
	assert.Equal(t, 300, cfg.Preprocess.TargetDPI)
	assert.True(t, cfg.Preprocess.Deskew)
	assert.True(t, cfg.Preprocess.Binarize)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scorescan.yaml")
	content := `
storage:
  root: /var/lib/scorescan
engines:
  recognize_timeout: 10m
preprocess:
  binarize: false
  target_dpi: 400
worker:
  concurrency: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/scorescan", cfg.Storage.Root)
	assert.Equal(t, 10*time.Minute, cfg.Engines.RecognizeTimeout)
	assert.False(t, cfg.Preprocess.Binarize)
	assert.Equal(t, 400, cfg.Preprocess.TargetDPI)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	// Untouched sections keep defaults.
	assert.Equal(t, "/usr/local/bin/musescore", cfg.Engines.MuseScorePath)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SCORESCAN_STORAGE_ROOT", "/tmp/scores")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/scores", cfg.Storage.Root)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("preprocess:\n  target_dpi: -1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target_dpi")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestStoragePaths(t *testing.T) {
	s := StorageConfig{Root: "/data"}
	assert.Equal(t, filepath.Join("/data", "uploads"), s.UploadDir())
	assert.Equal(t, filepath.Join("/data", "musicxml"), s.ScoreDir())
	assert.Equal(t, filepath.Join("/data", "pdf"), s.PDFDir())
}
