package engine

import (
	"path/filepath"
	"strings"

	"scorescan/internal/config"
)

// RecognitionBinding configures the optical recognition engine. It runs in
// batch mode under a virtual display wrapper so no interactive session is
// required, and exports the symbolic score into the output directory.
func RecognitionBinding(cfg config.EnginesConfig) Binding {
	return Binding{
		Label: "recognition",
		Command: func(inputPath, outputDir string) Invocation {
			return Invocation{
				Name: cfg.DisplayWrapper,
				Args: []string{
					"-a",
					cfg.AudiverisPath,
					"-batch",
					"-export",
					"-output", outputDir,
					inputPath,
				},
				Env: []string{"DISPLAY="},
			}
		},
		Candidates: scoreCandidates,
		Timeout:    cfg.RecognizeTimeout,
	}
}

// RenderBinding configures the notation-to-PDF renderer. It runs with the
// offscreen graphics platform so no display is required.
func RenderBinding(cfg config.EnginesConfig) Binding {
	return Binding{
		Label: "rendering",
		Command: func(inputPath, outputDir string) Invocation {
			base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
			return Invocation{
				Name: cfg.MuseScorePath,
				Args: []string{
					"-o", filepath.Join(outputDir, base+".pdf"),
					inputPath,
				},
				Env: []string{"QT_QPA_PLATFORM=offscreen"},
			}
		},
		Candidates: pdfCandidates,
		Timeout:    cfg.RenderTimeout,
	}
}
