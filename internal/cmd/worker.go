package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scorescan/internal/jobs"
	"scorescan/internal/pipeline"
	"scorescan/internal/postgres"
	"scorescan/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background conversion worker pool against Postgres",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	store := postgres.NewStore(db)
	orchestrator := pipeline.NewOrchestrator(cfg, store, jobs.NewRegistry(), jobs.NewEventBus(0), logger)
	pool := worker.NewPool(cfg.Worker, store, orchestrator, logger)

	logger.Info("worker pool started",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Duration("pollInterval", cfg.Worker.PollInterval),
	)
	pool.Run(ctx)
	logger.Info("worker pool stopped")
	return nil
}
