package engine

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"scorescan/internal/config"
)

// fakeRunner simulates external engine execution.
type fakeRunner struct {
	run func(ctx context.Context, inv Invocation) (commandResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, inv Invocation) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, inv)
}

func newTestRunner(fake *fakeRunner) *Runner {
	return &Runner{
		runner:  fake,
		logger:  zap.NewNop(),
		readDir: os.ReadDir,
		stat:    os.Stat,
	}
}

func testBinding(timeout time.Duration) Binding {
	return Binding{
		Label: "recognition",
		Command: func(inputPath, outputDir string) Invocation {
			return Invocation{Name: "engine", Args: []string{inputPath, outputDir}}
		},
		Candidates: scoreCandidates,
		Timeout:    timeout,
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRunFindsOutputByBaseName(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	inputPath := filepath.Join(dir, "sonata.png")
	mustWriteFile(t, inputPath, "img")

	fake := &fakeRunner{
		run: func(ctx context.Context, inv Invocation) (commandResult, error) {
			mustWriteFile(t, filepath.Join(outDir, "sonata.musicxml"), "<score/>")
			return commandResult{Stdout: "ok"}, nil
		},
	}

	result := newTestRunner(fake).Run(context.Background(), testBinding(time.Minute), inputPath, outDir)
	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	if result.OutputPath != filepath.Join(outDir, "sonata.musicxml") {
		t.Fatalf("output path = %q", result.OutputPath)
	}
}

// TestRunNonZeroExitWithOutputSucceeds checks exit code is not authoritative.
func TestRunNonZeroExitWithOutputSucceeds(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	inputPath := filepath.Join(dir, "etude.png")
	mustWriteFile(t, inputPath, "img")

	fake := &fakeRunner{
		run: func(ctx context.Context, inv Invocation) (commandResult, error) {
			mustWriteFile(t, filepath.Join(outDir, "etude.xml"), "<score/>")
			return commandResult{Stderr: "warnings", ExitCode: 1}, errors.New("exit status 1")
		},
	}

	result := newTestRunner(fake).Run(context.Background(), testBinding(time.Minute), inputPath, outDir)
	if !result.Success {
		t.Fatalf("expected success despite non-zero exit: %s", result.Error)
	}
}

func TestRunDirectoryScanFallback(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	inputPath := filepath.Join(dir, "waltz.png")
	mustWriteFile(t, inputPath, "img")

	fake := &fakeRunner{
		run: func(ctx context.Context, inv Invocation) (commandResult, error) {
			// Engine renamed its output; only the scan can find it.
			mustWriteFile(t, filepath.Join(outDir, "movement-1.xml"), "<score/>")
			mustWriteFile(t, filepath.Join(outDir, "notes.txt"), "log")
			return commandResult{}, nil
		},
	}

	runner := newTestRunner(fake)
	result := runner.Run(context.Background(), testBinding(time.Minute), inputPath, outDir)
	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	want := filepath.Join(outDir, "movement-1.xml")
	if result.OutputPath != want {
		t.Fatalf("output path = %q, want %q", result.OutputPath, want)
	}

	// Repeating the probe against the same directory selects the same path.
	again, found := runner.discoverOutput(inputPath, outDir, scoreCandidates)
	if !found || again != want {
		t.Fatalf("repeat probe = %q found=%v, want %q", again, found, want)
	}
}

func TestRunNoOutputFailsWithDiagnostics(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	inputPath := filepath.Join(dir, "hymn.png")
	mustWriteFile(t, inputPath, "img")

	longStderr := strings.Repeat("z", 900)
	fake := &fakeRunner{
		run: func(ctx context.Context, inv Invocation) (commandResult, error) {
			return commandResult{Stderr: longStderr, ExitCode: 2}, errors.New("exit status 2")
		},
	}

	result := newTestRunner(fake).Run(context.Background(), testBinding(time.Minute), inputPath, outDir)
	if result.Success {
		t.Fatal("expected failure for missing output")
	}
	if !strings.Contains(result.Error, "no output file found") {
		t.Fatalf("error = %q", result.Error)
	}
	// Diagnostic bytes come only from stderr here, so counting them isolates
	// the truncated suffix from the fixed message prefix.
	if got := strings.Count(result.Error, "z"); got != diagnosticLimit {
		t.Fatalf("truncated diagnostics = %d bytes, want %d", got, diagnosticLimit)
	}
}

func TestRunTimeoutReported(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "slow.png")
	mustWriteFile(t, inputPath, "img")

	fake := &fakeRunner{
		run: func(ctx context.Context, inv Invocation) (commandResult, error) {
			<-ctx.Done()
			return commandResult{ExitCode: -1}, ctx.Err()
		},
	}

	result := newTestRunner(fake).Run(context.Background(), testBinding(20*time.Millisecond), inputPath, filepath.Join(dir, "out"))
	if result.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(result.Error, ErrTimeout.Error()) {
		t.Fatalf("error = %q, want timeout message", result.Error)
	}
}

func TestRunExtractsCompressedContainer(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	inputPath := filepath.Join(dir, "aria.png")
	mustWriteFile(t, inputPath, "img")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}

	containerPath := filepath.Join(outDir, "aria.mxl")
	writeMXL(t, containerPath, "<score-partwise/>")

	fake := &fakeRunner{}
	result := newTestRunner(fake).Run(context.Background(), testBinding(time.Minute), inputPath, outDir)
	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	if filepath.Ext(result.OutputPath) != ".musicxml" {
		t.Fatalf("output path = %q, want extracted .musicxml", result.OutputPath)
	}

	content, err := os.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatalf("read extracted: %v", err)
	}
	if string(content) != "<score-partwise/>" {
		t.Fatalf("payload = %q", content)
	}
}

// TestRunCorruptContainerPassesThrough checks the extraction fallback.
func TestRunCorruptContainerPassesThrough(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	inputPath := filepath.Join(dir, "march.png")
	mustWriteFile(t, inputPath, "img")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}

	containerPath := filepath.Join(outDir, "march.mxl")
	mustWriteFile(t, containerPath, "not a zip")

	fake := &fakeRunner{}
	result := newTestRunner(fake).Run(context.Background(), testBinding(time.Minute), inputPath, outDir)
	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	if result.OutputPath != containerPath {
		t.Fatalf("output path = %q, want container pass-through %q", result.OutputPath, containerPath)
	}
}

// writeMXL builds a compressed score container with a metadata member first.
func writeMXL(t *testing.T, path, payload string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	meta, err := w.Create("META-INF/container.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := meta.Write([]byte("<container/>")); err != nil {
		t.Fatal(err)
	}
	score, err := w.Create("score.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := score.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRecognitionBindingCommand(t *testing.T) {
	cfg := config.EnginesConfig{
		AudiverisPath:    "/opt/audiveris/bin/Audiveris",
		DisplayWrapper:   "xvfb-run",
		RecognizeTimeout: 300 * time.Second,
	}
	binding := RecognitionBinding(cfg)

	inv := binding.Command("/in/score.png", "/out")
	if inv.Name != "xvfb-run" {
		t.Fatalf("command = %q", inv.Name)
	}
	joined := strings.Join(inv.Args, " ")
	if !strings.Contains(joined, "-batch -export -output /out /in/score.png") {
		t.Fatalf("args = %q", joined)
	}
	if binding.Timeout != 300*time.Second {
		t.Fatalf("timeout = %v", binding.Timeout)
	}
}

func TestRenderBindingCommand(t *testing.T) {
	cfg := config.EnginesConfig{
		MuseScorePath: "/usr/local/bin/musescore",
		RenderTimeout: 120 * time.Second,
	}
	binding := RenderBinding(cfg)

	inv := binding.Command("/scores/piece.musicxml", "/out")
	if inv.Name != "/usr/local/bin/musescore" {
		t.Fatalf("command = %q", inv.Name)
	}
	if inv.Args[0] != "-o" || inv.Args[1] != filepath.Join("/out", "piece.pdf") {
		t.Fatalf("args = %v", inv.Args)
	}
	if len(inv.Env) == 0 || inv.Env[0] != "QT_QPA_PLATFORM=offscreen" {
		t.Fatalf("env = %v", inv.Env)
	}
}
