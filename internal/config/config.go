package config

import (
	"path/filepath"
	"time"
)

// Config is the immutable process configuration. It is materialized once at
// startup and passed by value into every component constructor; pipeline code
// never reads ambient settings.
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage"`
	Engines    EnginesConfig    `mapstructure:"engines"`
	Preprocess PreprocessConfig `mapstructure:"preprocess"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// StorageConfig locates the on-disk artifact tree.
type StorageConfig struct {
	Root string `mapstructure:"root"`
}

// UploadDir returns the directory holding source images.
func (s StorageConfig) UploadDir() string { return filepath.Join(s.Root, "uploads") }

// ScoreDir returns the directory holding symbolic score files.
func (s StorageConfig) ScoreDir() string { return filepath.Join(s.Root, "musicxml") }

// PDFDir returns the directory holding rendered output.
func (s StorageConfig) PDFDir() string { return filepath.Join(s.Root, "pdf") }

// EnginesConfig holds external tool paths and per-engine timeouts.
type EnginesConfig struct {
	AudiverisPath    string        `mapstructure:"audiveris_path"`
	MuseScorePath    string        `mapstructure:"musescore_path"`
	DisplayWrapper   string        `mapstructure:"display_wrapper"`
	RecognizeTimeout time.Duration `mapstructure:"recognize_timeout"`
	RenderTimeout    time.Duration `mapstructure:"render_timeout"`
}

// PreprocessConfig toggles geometry normalization steps.
type PreprocessConfig struct {
	Denoise     bool `mapstructure:"denoise"`
	Deskew      bool `mapstructure:"deskew"`
	Perspective bool `mapstructure:"perspective"`
	Binarize    bool `mapstructure:"binarize"`
	TargetDPI   int  `mapstructure:"target_dpi"`
}

// DatabaseConfig holds the job store connection string.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// WorkerConfig sizes the background processing pool.
type WorkerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}
