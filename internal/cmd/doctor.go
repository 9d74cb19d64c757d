package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"scorescan/internal/diagnostics"
	"scorescan/internal/domain"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check external engines and storage layout",
	Long: `Verify that the recognition and rendering engines, the headless
display wrapper, and the storage directories are usable.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	report := diagnostics.NewChecker().Run(cfg)

	out := cmd.OutOrStdout()
	for _, item := range report.Items {
		marker := "ok  "
		if item.Status == domain.DiagnosticStatusFail {
			marker = "FAIL"
		}
		fmt.Fprintf(out, "[%s] %-22s %s\n", marker, item.Name, item.Message)
		if item.Hint != "" {
			fmt.Fprintf(out, "       hint: %s\n", item.Hint)
		}
	}

	if report.HasFailures {
		return fmt.Errorf("diagnostics reported failures")
	}
	fmt.Fprintln(out, "all checks passed")
	return nil
}
