package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load builds the process configuration from defaults, an optional YAML file,
// and SCORESCAN_* environment overrides, in increasing precedence. An empty
// path skips file loading.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SCORESCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers baseline values mirroring a stock deployment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.root", "./storage")
	v.SetDefault("engines.audiveris_path", "/opt/audiveris/bin/Audiveris")
	v.SetDefault("engines.musescore_path", "/usr/local/bin/musescore")
	v.SetDefault("engines.display_wrapper", "xvfb-run")
	v.SetDefault("engines.recognize_timeout", "300s")
	v.SetDefault("engines.render_timeout", "120s")
	v.SetDefault("preprocess.denoise", true)
	v.SetDefault("preprocess.deskew", true)
	v.SetDefault("preprocess.perspective", true)
	v.SetDefault("preprocess.binarize", true)
	v.SetDefault("preprocess.target_dpi", 300)
	v.SetDefault("database.url", "postgres://localhost:5432/scorescan")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.poll_interval", "2s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
}

// validate rejects configurations the pipeline cannot run with.
func validate(cfg Config) error {
	if cfg.Storage.Root == "" {
		return fmt.Errorf("storage.root must not be empty")
	}
	if cfg.Preprocess.TargetDPI <= 0 {
		return fmt.Errorf("preprocess.target_dpi must be positive, got %d", cfg.Preprocess.TargetDPI)
	}
	if cfg.Engines.RecognizeTimeout <= 0 || cfg.Engines.RenderTimeout <= 0 {
		return fmt.Errorf("engine timeouts must be positive")
	}
	if cfg.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1, got %d", cfg.Worker.Concurrency)
	}
	return nil
}
