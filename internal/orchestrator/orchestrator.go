// Package orchestrator implements the run supervisor: it owns one
// acquisition run end to end, from collaborator launch through readiness,
// acquisition, ordered shutdown, artifact claiming, and the downstream
// processing and plotting stages.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/drone-project/go-exposure-run/internal/config"
	"github.com/drone-project/go-exposure-run/internal/logging"
	"github.com/drone-project/go-exposure-run/internal/metrics"
	"github.com/drone-project/go-exposure-run/internal/preflight"
	"github.com/drone-project/go-exposure-run/internal/process"
	"github.com/drone-project/go-exposure-run/internal/run"
	"github.com/drone-project/go-exposure-run/internal/stats"
	"github.com/drone-project/go-exposure-run/internal/supervisor"
)

// CollaboratorError reports a downstream collaborator that exited
// non-zero. The collaborator's own output is the diagnostic; this only
// carries the outcome.
type CollaboratorError struct {
	Stage    string
	ExitCode int
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator failed with exit code %d", e.Stage, e.ExitCode)
}

// Orchestrator coordinates all components for one acquisition run.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger

	// mu guards run and tracker, which the Run goroutine publishes and
	// the dashboard goroutine reads through RunInfo/FrameSnapshot.
	mu      sync.Mutex
	run     *run.Run
	tracker *stats.FrameTracker

	sequencer *supervisor.Sequencer

	collector     *metrics.Collector
	metricsServer *metrics.Server

	followers map[process.Role]*logging.Follower

	// External stop requests (TUI quit, tests) share the signal path.
	stopRequested chan struct{}
	stopOnce      sync.Once

	// shutdownOnce guarantees the teardown sequence runs exactly once per
	// run, regardless of which trigger fired it.
	shutdownOnce sync.Once
	stopReports  []supervisor.StopReport

	artifactPath string
	startTime    time.Time
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		config: cfg,
		logger: logger,
		sequencer: &supervisor.Sequencer{
			IntGrace:  cfg.IntGrace(),
			TermGrace: cfg.TermGrace(),
			Logger:    logger,
		},
		followers:     make(map[process.Role]*logging.Follower),
		stopRequested: make(chan struct{}),
	}

	if cfg.Observability.MetricsAddr != "" {
		o.collector = metrics.NewCollector()
		o.metricsServer = metrics.NewServer(cfg.Observability.MetricsAddr, logger)
	}

	return o
}

// RequestStop asks the supervisor to stop the run, exactly as an external
// SIGINT would. Safe to call multiple times.
func (o *Orchestrator) RequestStop() {
	o.stopOnce.Do(func() { close(o.stopRequested) })
}

// Run executes one acquisition run. It blocks until the run reaches a
// terminal state and returns nil only for StateDone.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	// Preflight before anything touches the filesystem: a missing
	// collaborator must not leave a run directory behind.
	if !o.config.SkipPreflight {
		result := preflight.RunAll(preflight.Inputs{
			CaptureBin:        o.config.Paths.CaptureBin,
			Python:            o.config.Paths.Python,
			MotorLoggerScript: o.config.Paths.MotorLogger,
			ProcessorScript:   o.config.Paths.Processor,
			PlotterScript:     o.config.Paths.Plotter,
			GroundPath:        o.config.Motor.BasePath,
		})
		preflight.PrintResults(result)
		if !result.Passed {
			return &process.LaunchError{
				Name: "preflight",
				Err:  errors.New("collaborator checks failed (use -skip-preflight to override)"),
			}
		}
	}

	o.mu.Lock()
	o.run = run.New(o.config, o.logger)
	o.mu.Unlock()
	defer o.run.Close()

	if err := o.run.CreateDirs(); err != nil {
		return err
	}

	o.logger.Info("run_created",
		"run_id", o.run.ID,
		"dir", o.run.Dir,
		"duration", o.config.AcqDuration().String(),
	)

	if o.metricsServer != nil {
		o.collector.SetRunInfo(o.run.ID, o.config.AcqDuration())
		o.collector.SetState(o.run.State().String())
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer o.stopMetricsServer()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := o.runLifecycle(ctx)
	if err != nil {
		o.run.Fail()
		o.observeState()
		o.logger.Error("run_failed", "run_id", o.run.ID, "error", err)
	}

	o.printExitSummary(err)
	return err
}

// runLifecycle drives the state machine. Any returned error marks the run
// Failed; the partial run directory is always left in place.
func (o *Orchestrator) runLifecycle(ctx context.Context) error {
	// Start the encoder logger first so encoder samples bracket every
	// captured frame on both ends of the run.
	if err := o.startLogger(ctx); err != nil {
		return err
	}

	if err := o.startCapture(ctx); err != nil {
		o.teardownSubprocesses()
		return err
	}

	if err := supervisor.WaitReady(ctx, o.run.RawDir(), o.config.ReadinessTimeout(), o.run.Capture.Alive); err != nil {
		o.teardownSubprocesses()
		return fmt.Errorf("capture readiness: %w", err)
	}

	if err := o.run.Transition(run.StateAcquiring); err != nil {
		return err
	}
	o.observeState()

	o.mu.Lock()
	o.tracker = stats.NewFrameTracker(o.run.RawDir(), o.onFrameSample)
	o.mu.Unlock()
	o.tracker.Start()

	o.acquireUntilStop(ctx)

	// The run context only governs acquisition: cancellation is one more
	// stop trigger and takes the same path as a manual stop. Everything
	// from here down must complete even when ctx is already cancelled.

	if err := o.run.Transition(run.StateStopping); err != nil {
		return err
	}
	o.observeState()

	o.teardownSubprocesses()

	artifact, err := o.run.ClaimEncoderSnapshot(o.config.Motor.BasePath)
	if err != nil {
		return err
	}
	o.artifactPath = artifact
	if o.collector != nil {
		o.collector.ArtifactClaimed(time.Now())
	}

	if err := o.run.Transition(run.StateProcessing); err != nil {
		return err
	}
	o.observeState()

	if err := o.runProcessing(context.Background()); err != nil {
		return err
	}
	if err := o.runPlotting(context.Background()); err != nil {
		return err
	}

	if err := o.run.Transition(run.StateDone); err != nil {
		return err
	}
	o.observeState()

	if o.config.Processing.CleanupRaw {
		if err := o.run.CleanupRaw(); err != nil {
			o.logger.Warn("raw_cleanup_failed", "error", err)
		} else {
			o.logger.Info("raw_cleanup_done", "dir", o.run.RawDir())
		}
	}

	return nil
}

// startLogger launches the motor / encoder logger.
func (o *Orchestrator) startLogger(ctx context.Context) error {
	runner := process.NewMotorLoggerRunner(&process.MotorLoggerConfig{
		Python:     o.config.Paths.Python,
		ScriptPath: o.config.Paths.MotorLogger,
		GroundPath: o.config.Motor.BasePath,
		SpinRate:   o.config.Motor.SpinRate,
	})

	handle, err := o.launch(ctx, process.RoleLogger, runner, o.run.MotorLog())
	if err != nil {
		return err
	}
	o.run.Logger = handle
	return nil
}

// startCapture launches the continuous image-capture loop.
func (o *Orchestrator) startCapture(ctx context.Context) error {
	runner := process.NewCaptureRunner(&process.CaptureConfig{
		BinaryPath:    o.config.Paths.CaptureBin,
		OutputDir:     o.run.RawDir(),
		ExposureTimeS: o.config.Acquisition.ExposureTimeS,
		Gain:          o.config.Acquisition.Gain,
		IntervalS:     o.config.Acquisition.IntervalS,
	})

	handle, err := o.launch(ctx, process.RoleCapture, runner, o.run.CameraLog())
	if err != nil {
		return err
	}
	o.run.Capture = handle
	return nil
}

// commandStringer is implemented by every runner for run_command.log.
type commandStringer interface {
	CommandString() string
}

// launch builds, records, and starts one long-running collaborator, and
// attaches a follower teeing its output into the role log file.
func (o *Orchestrator) launch(ctx context.Context, role process.Role, runner process.Runner, logPath string) (*process.Handle, error) {
	cmd, err := runner.BuildCommand(ctx)
	if err != nil {
		return nil, &process.LaunchError{Name: runner.Name(), Err: err}
	}

	if cs, ok := runner.(commandStringer); ok {
		o.run.RecordCommand(runner.Name(), cs.CommandString())
	}

	follower, err := logging.NewFollower(string(role), logPath, o.logger, o.config.Observability.Verbose)
	if err != nil {
		return nil, fmt.Errorf("create %s log: %w", role, err)
	}

	handle, output, err := process.Start(role, cmd, o.config.Environ())
	if err != nil {
		follower.Close()
		return nil, err
	}
	go follower.Follow(output)
	o.followers[role] = follower

	o.logger.Info("subprocess_started",
		"role", string(role),
		"pid", handle.PID(),
	)
	if o.collector != nil {
		o.collector.SetSubprocessUp(string(role), true)
	}

	return handle, nil
}

// acquireUntilStop blocks during acquisition until a stop condition:
// an external stop signal, the auto-stop timer, the capture subprocess
// exiting on its own, or context cancellation.
func (o *Orchestrator) acquireUntilStop(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	autoFired := make(chan struct{})
	autoStop := supervisor.ArmAutoStop(o.config.AcqDuration(), o.run.Capture.Alive, func() {
		close(autoFired)
	})
	defer autoStop.Cancel()

	select {
	case sig := <-sigCh:
		o.logger.Info("stop_requested", "trigger", "signal", "signal", sig.String())
	case <-o.stopRequested:
		o.logger.Info("stop_requested", "trigger", "external")
	case <-autoFired:
		o.logger.Info("stop_requested", "trigger", "duration_elapsed", "duration", o.config.AcqDuration().String())
	case <-o.run.Capture.Done():
		o.logger.Info("stop_requested", "trigger", "capture_exited", "exit_code", o.run.Capture.ExitCode())
	case <-ctx.Done():
		o.logger.Info("stop_requested", "trigger", "context_cancelled")
	}
}

// teardownSubprocesses runs the ordered shutdown exactly once: followers
// quiesce first, then capture is stopped before the logger, each through
// the escalation ladder. Cleanup is unconditional on the trigger; a
// plain context.Background keeps the ladder's grace windows intact even
// when the run context is already cancelled.
func (o *Orchestrator) teardownSubprocesses() {
	o.shutdownOnce.Do(func() {
		if o.tracker != nil {
			o.tracker.Stop()
		}
		for _, f := range o.followers {
			f.Quiet()
		}

		handles := make([]*process.Handle, 0, 2)
		if o.run.Capture != nil {
			handles = append(handles, o.run.Capture)
		}
		if o.run.Logger != nil {
			handles = append(handles, o.run.Logger)
		}

		o.stopReports = o.sequencer.Stop(context.Background(), handles)
		o.recordStopReports()

		for role, f := range o.followers {
			if err := f.Close(); err != nil {
				o.logger.Warn("follower_close_failed", "role", string(role), "error", err)
			}
		}

		for _, h := range handles {
			o.logger.Info("subprocess_exited",
				"role", string(h.Role()),
				"exit_code", h.Wait(),
				"uptime", h.Uptime().String(),
			)
			if o.collector != nil {
				o.collector.SetSubprocessUp(string(h.Role()), false)
			}
		}
	})
}

// recordStopReports bridges sequencer reports into metrics.
func (o *Orchestrator) recordStopReports() {
	if o.collector == nil {
		return
	}
	for _, report := range o.stopReports {
		for i, sig := range report.SignalsSent {
			o.collector.SignalSent(string(report.Role), sig)
			if i > 0 {
				o.collector.Escalated(string(report.Role))
			}
		}
	}
}

// runProcessing invokes the batch frame-conversion collaborator.
func (o *Orchestrator) runProcessing(ctx context.Context) error {
	runner := process.NewProcessingRunner(&process.ProcessingConfig{
		Python:     o.config.Paths.Python,
		ScriptPath: o.config.Paths.Processor,
		RunDir:     o.run.Dir,
		Jobs:       o.config.Processing.Jobs,
		MakeFits:   o.config.Processing.MakeFits,
		MakeColor:  o.config.Processing.MakeColor,
		MakeGreen:  o.config.Processing.MakeGreen,
		Quiet:      o.config.Processing.Quiet,
	})
	return o.runCollaborator(ctx, "processing", runner)
}

// runPlotting invokes the plot-generation collaborator with the claimed
// encoder snapshot.
func (o *Orchestrator) runPlotting(ctx context.Context) error {
	runner := process.NewPlottingRunner(&process.PlottingConfig{
		Python:          o.config.Paths.Python,
		ScriptPath:      o.config.Paths.Plotter,
		RunDir:          o.run.Dir,
		ArtifactPath:    o.artifactPath,
		CountsPerRev:    o.config.Plotting.CountsPerRev,
		RoiSize:         o.config.Plotting.RoiSize,
		BackgroundX:     o.config.Plotting.BackgroundX,
		BackgroundY:     o.config.Plotting.BackgroundY,
		Debug:           o.config.Plotting.Debug,
		TimeOffsetHours: o.config.Plotting.TimeOffsetHours,
	})
	return o.runCollaborator(ctx, "plotting", runner)
}

// runCollaborator runs a batch stage to completion in the foreground.
func (o *Orchestrator) runCollaborator(ctx context.Context, stage string, runner process.Runner) error {
	cmd, err := runner.BuildCommand(ctx)
	if err != nil {
		return &process.LaunchError{Name: stage, Err: err}
	}

	if cs, ok := runner.(commandStringer); ok {
		o.run.RecordCommand(stage, cs.CommandString())
	}

	o.logger.Info("collaborator_starting", "stage", stage)
	exitCode, err := process.RunToCompletion(stage, cmd, os.Stdout, o.config.Environ())
	if err != nil {
		return err
	}
	if o.collector != nil {
		o.collector.CollaboratorFinished(stage, exitCode)
	}
	if exitCode != 0 {
		return &CollaboratorError{Stage: stage, ExitCode: exitCode}
	}

	o.logger.Info("collaborator_finished", "stage", stage)
	return nil
}

// onFrameSample bridges tracker samples into metrics.
func (o *Orchestrator) onFrameSample(snap stats.FrameSnapshot) {
	if o.collector == nil {
		return
	}
	o.collector.SetFrames(snap.Count, snap.RatePerSec)
	if o.run.Capture != nil {
		o.collector.SetSubprocessUp(string(process.RoleCapture), o.run.Capture.Alive())
	}
	if o.run.Logger != nil {
		o.collector.SetSubprocessUp(string(process.RoleLogger), o.run.Logger.Alive())
	}
}

// observeState mirrors the run state into metrics.
func (o *Orchestrator) observeState() {
	if o.collector != nil {
		o.collector.SetState(o.run.State().String())
	}
}

// stopMetricsServer shuts the metrics server down with a bounded wait.
func (o *Orchestrator) stopMetricsServer() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

// RunInfo exposes the current run to the dashboard. Nil until the run
// has been created.
func (o *Orchestrator) RunInfo() *run.Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run
}

// FrameSnapshot exposes current frame stats to the dashboard. Zero value
// before acquisition begins.
func (o *Orchestrator) FrameSnapshot() stats.FrameSnapshot {
	o.mu.Lock()
	tracker := o.tracker
	o.mu.Unlock()
	if tracker == nil {
		return stats.FrameSnapshot{}
	}
	return tracker.Snapshot()
}
