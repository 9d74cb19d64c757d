// Package cmd wires the scorescan CLI: one-shot conversions, the background
// worker pool, and environment diagnostics.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scorescan/internal/config"
	"scorescan/internal/observability"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "scorescan",
	Short:         "Convert photographed sheet music into clean printable scores",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString("scorescan: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// setup loads configuration and builds the process logger.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
