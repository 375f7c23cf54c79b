// Package main provides the go-exposure-run CLI entry point.
//
// go-exposure-run supervises one data-acquisition run: it launches the
// encoder logger and the image-capture loop as process-group leaders,
// waits for the first captured frame, and on stop tears the pair down in
// strict order before handing the run directory to the processing and
// plotting collaborators.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/drone-project/go-exposure-run/internal/config"
	"github.com/drone-project/go-exposure-run/internal/logging"
	"github.com/drone-project/go-exposure-run/internal/orchestrator"
	"github.com/drone-project/go-exposure-run/internal/process"
	"github.com/drone-project/go-exposure-run/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-exposure-run
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-exposure-run %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Initialize logger
	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.Observability.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.Observability.LogFormat, "info", cfg.Observability.Verbose)
	}
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Handle --print-cmd mode
	if cfg.PrintCmd {
		printCollaboratorCommands(cfg)
		return 0
	}

	// Log startup
	logger.Info("starting",
		"version", version,
		"exposure_time_s", cfg.Acquisition.ExposureTimeS,
		"gain", cfg.Acquisition.Gain,
		"duration", cfg.AcqDuration().String(),
		"ground_path", cfg.Motor.BasePath,
		"metrics_addr", cfg.Observability.MetricsAddr,
	)

	orch := orchestrator.New(cfg, logger)

	if cfg.Observability.TUIEnabled {
		return runWithTUI(orch, cfg)
	}

	printBanner(cfg)

	if err := orch.Run(context.Background()); err != nil {
		logger.Error("run_failed", "error", err)
		return 1
	}
	return 0
}

// runWithTUI runs the orchestrator under the live dashboard. The dashboard
// owns the terminal; quit keys request a run stop rather than exiting, so
// the ordered shutdown and batch stages always complete.
func runWithTUI(orch *orchestrator.Orchestrator, cfg *config.Config) int {
	model := tui.New(tui.Config{
		Fetch:  func() tui.Status { return fetchStatus(orch, cfg) },
		OnStop: orch.RequestStop,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())

	runErr := make(chan error, 1)
	go func() {
		runErr <- orch.Run(context.Background())
		tui.SendQuit(program)
	}()

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Dashboard error: %v\n", err)
		// Fall through: the run itself decides the exit code.
	}

	if err := <-runErr; err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return 1
	}
	return 0
}

// fetchStatus snapshots the orchestrator for one dashboard tick.
func fetchStatus(orch *orchestrator.Orchestrator, cfg *config.Config) tui.Status {
	status := tui.Status{
		State:     "starting",
		Remaining: -1,
	}

	r := orch.RunInfo()
	if r == nil {
		return status
	}

	status.RunID = r.ID
	status.State = r.State().String()
	status.Dir = r.Dir
	status.Elapsed = time.Since(r.StartedAt)

	if d := cfg.AcqDuration(); d > 0 {
		status.Remaining = d - status.Elapsed
		if status.Remaining < 0 {
			status.Remaining = 0
		}
	}

	if r.Capture != nil {
		status.CaptureAlive = r.Capture.Alive()
	}
	if r.Logger != nil {
		status.LoggerAlive = r.Logger.Alive()
	}

	snap := orch.FrameSnapshot()
	status.FrameCount = snap.Count
	status.FrameRate = snap.RatePerSec
	status.IntervalP50 = snap.IntervalP50
	status.IntervalP95 = snap.IntervalP95

	return status
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	duration := "manual stop (Ctrl+C)"
	if d := cfg.AcqDuration(); d > 0 {
		duration = d.String()
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        go-exposure-run                            ║")
	fmt.Println("║        Acquisition Run Supervisor (capture + encoder log)         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Exposure:    %gs at gain %d, interval %gs\n",
		cfg.Acquisition.ExposureTimeS, cfg.Acquisition.Gain, cfg.Acquisition.IntervalS)
	fmt.Printf("  Duration:    %s\n", duration)
	fmt.Printf("  Ground:      %s\n", cfg.Motor.BasePath)
	if cfg.Observability.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.Observability.MetricsAddr)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}

// printCollaboratorCommands prints the command lines that would be run for
// each collaborator. Run-dir placeholders stand in for the directory that
// is only created once a run starts.
func printCollaboratorCommands(cfg *config.Config) {
	const runDir = "<run-dir>"

	capture := process.NewCaptureRunner(&process.CaptureConfig{
		BinaryPath:    cfg.Paths.CaptureBin,
		OutputDir:     runDir + "/raw",
		ExposureTimeS: cfg.Acquisition.ExposureTimeS,
		Gain:          cfg.Acquisition.Gain,
		IntervalS:     cfg.Acquisition.IntervalS,
	})

	motor := process.NewMotorLoggerRunner(&process.MotorLoggerConfig{
		Python:     cfg.Paths.Python,
		ScriptPath: cfg.Paths.MotorLogger,
		GroundPath: cfg.Motor.BasePath,
		SpinRate:   cfg.Motor.SpinRate,
	})

	processor := process.NewProcessingRunner(&process.ProcessingConfig{
		Python:     cfg.Paths.Python,
		ScriptPath: cfg.Paths.Processor,
		RunDir:     runDir,
		Jobs:       cfg.Processing.Jobs,
		MakeFits:   cfg.Processing.MakeFits,
		MakeColor:  cfg.Processing.MakeColor,
		MakeGreen:  cfg.Processing.MakeGreen,
		Quiet:      cfg.Processing.Quiet,
	})

	plotter := process.NewPlottingRunner(&process.PlottingConfig{
		Python:          cfg.Paths.Python,
		ScriptPath:      cfg.Paths.Plotter,
		RunDir:          runDir,
		ArtifactPath:    runDir + "/encoder_data_<timestamp>.pkl",
		CountsPerRev:    cfg.Plotting.CountsPerRev,
		RoiSize:         cfg.Plotting.RoiSize,
		BackgroundX:     cfg.Plotting.BackgroundX,
		BackgroundY:     cfg.Plotting.BackgroundY,
		Debug:           cfg.Plotting.Debug,
		TimeOffsetHours: cfg.Plotting.TimeOffsetHours,
	})

	fmt.Println("# Commands that would be run for one acquisition run:")
	fmt.Println()
	fmt.Println("# encoder logger (started first, stopped last)")
	fmt.Println(motor.CommandString())
	fmt.Println()
	fmt.Println("# image capture")
	fmt.Println(capture.CommandString())
	fmt.Println()
	fmt.Println("# frame processing (after shutdown)")
	fmt.Println(processor.CommandString())
	fmt.Println()
	fmt.Println("# encoder plots")
	fmt.Println(plotter.CommandString())
}
