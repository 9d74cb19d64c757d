package cmd

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scorescan/internal/domain"
	"scorescan/internal/jobs"
	"scorescan/internal/pipeline"
)

var (
	processSemitones int
	processFromKey   string
	processToKey     string
)

var processCmd = &cobra.Command{
	Use:   "process <image>",
	Short: "Convert one photographed score image to a printable PDF",
	Long: `Run the full conversion pipeline on a single image: geometry
normalization, optical recognition, optional transposition, and rendering.

Examples:
  scorescan process page.jpg
  scorescan process page.jpg --semitones 2
  scorescan process page.jpg --from-key C --to-key G`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().IntVar(&processSemitones, "semitones", 0, "transpose by semitone offset [-12, 12]")
	processCmd.Flags().StringVar(&processFromKey, "from-key", "", "transpose from this key (requires --to-key)")
	processCmd.Flags().StringVar(&processToKey, "to-key", "", "transpose to this key (requires --from-key)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	transposeReq, err := transposeRequest(cmd)
	if err != nil {
		return err
	}

	imagePath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := jobs.NewMemoryStore()
	orchestrator := pipeline.NewOrchestrator(cfg, store, jobs.NewRegistry(), jobs.NewEventBus(0), logger)

	jobID := uuid.NewString()
	if err := store.CreateJob(ctx, domain.Job{
		ID:              jobID,
		SourceImagePath: imagePath,
		Transpose:       transposeReq,
	}); err != nil {
		return err
	}

	logger.Info("processing image", zap.String("jobId", jobID), zap.String("image", imagePath))
	if err := orchestrator.Run(ctx, jobID); err != nil {
		return err
	}

	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "score: %s\npdf:   %s\n", job.SymbolicScorePath, job.RenderedOutputPath)
	return nil
}

// transposeRequest validates the mutually exclusive transposition flags.
func transposeRequest(cmd *cobra.Command) (domain.TransposeRequest, error) {
	semitonesSet := cmd.Flags().Changed("semitones")
	keysSet := processFromKey != "" || processToKey != ""

	if semitonesSet && keysSet {
		return domain.TransposeRequest{}, fmt.Errorf("--semitones and --from-key/--to-key are mutually exclusive")
	}
	if keysSet && (processFromKey == "" || processToKey == "") {
		return domain.TransposeRequest{}, fmt.Errorf("--from-key and --to-key must be given together")
	}

	if semitonesSet {
		offset := processSemitones
		return domain.TransposeRequest{Semitones: &offset}, nil
	}
	return domain.TransposeRequest{FromKey: processFromKey, ToKey: processToKey}, nil
}
