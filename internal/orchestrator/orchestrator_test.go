package orchestrator

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/drone-project/go-exposure-run/internal/config"
	"github.com/drone-project/go-exposure-run/internal/logging"
	"github.com/drone-project/go-exposure-run/internal/process"
	"github.com/drone-project/go-exposure-run/internal/run"
)

// Fake collaborators. The capture stand-in creates its output directory
// lazily and writes frames until interrupted; the logger stand-in drops
// an encoder snapshot in its working directory on clean shutdown, like
// the real encoder readout.
const (
	fakeCapture = `#!/bin/sh
dir=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output-dir) dir="$2"; shift 2 ;;
    *) shift ;;
  esac
done
trap 'exit 0' INT TERM
sleep 0.1
mkdir -p "$dir"
i=0
while :; do
  i=$((i+1))
  : > "$dir/frame_$i.raw"
  sleep 0.05
done
`

	fakeLogger = `#!/bin/sh
trap ': > encoder_data_test.pkl; exit 0' INT TERM
while :; do sleep 0.1; done
`

	// Same liveness loop, but no snapshot on shutdown.
	fakeLoggerNoSnapshot = `#!/bin/sh
trap 'exit 0' INT TERM
while :; do sleep 0.1; done
`

	fakeStageOK   = "#!/bin/sh\nexit 0\n"
	fakeStageFail = "#!/bin/sh\nexit 2\n"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// testConfig builds a config whose collaborators are shell fakes rooted
// in a temp ground directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	ground := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Motor.BasePath = ground
	cfg.Paths.Python = "/bin/sh"
	cfg.Paths.CaptureBin = writeScript(t, ground, "capture-continuous.out", fakeCapture)
	cfg.Paths.MotorLogger = writeScript(t, ground, "motor-spin-logger.py", fakeLogger)
	cfg.Paths.Processor = writeScript(t, ground, "process-exposures-batch.py", fakeStageOK)
	cfg.Paths.Plotter = writeScript(t, ground, "create-plot.py", fakeStageOK)

	cfg.Acquisition.DurationS = 1
	cfg.Supervisor.ReadinessTimeoutS = 10
	cfg.Supervisor.IntGraceS = 3
	cfg.Supervisor.TermGraceS = 1

	// Keep the default Prometheus registry untouched across tests
	cfg.Observability.MetricsAddr = ""

	return cfg
}

func newTestOrchestrator(cfg *config.Config) *Orchestrator {
	logger := logging.NewLoggerWithWriter(io.Discard, "json", "error")
	return New(cfg, logger)
}

func TestRun_FullLifecycle(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(cfg)

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	r := o.RunInfo()
	if r.State() != run.StateDone {
		t.Errorf("final state = %s, want done", r.State())
	}

	// Frames were captured
	entries, err := os.ReadDir(r.RawDir())
	if err != nil || len(entries) == 0 {
		t.Errorf("raw/ frames = %d, err = %v", len(entries), err)
	}

	// Encoder snapshot was claimed into the run directory
	if _, err := os.Stat(filepath.Join(r.Dir, "encoder_data_test.pkl")); err != nil {
		t.Errorf("claimed snapshot missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Motor.BasePath, "encoder_data_test.pkl")); !os.IsNotExist(err) {
		t.Error("snapshot left behind in the ground directory")
	}

	// Run records are in place
	for _, name := range []string{run.ConfigLogName, run.CommandLogName, run.CameraLogName, run.MotorLogName} {
		if _, err := os.Stat(filepath.Join(r.Dir, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}

	// Both subprocesses are gone
	if r.Capture.Alive() || r.Logger.Alive() {
		t.Error("subprocess group survived the run")
	}
}

func TestRun_ManualStop(t *testing.T) {
	cfg := testConfig(t)
	cfg.Acquisition.DurationS = 0 // manual stop only
	o := newTestOrchestrator(cfg)

	go func() {
		// Wait for acquisition, then stop the way the dashboard would
		deadline := time.Now().Add(10 * time.Second)
		for time.Now().Before(deadline) {
			if r := o.RunInfo(); r != nil && r.State() == run.StateAcquiring {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
		o.RequestStop()
		o.RequestStop() // idempotent
	}()

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o.RunInfo().State() != run.StateDone {
		t.Errorf("final state = %s, want done", o.RunInfo().State())
	}
}

func TestRun_ContextCancelTakesGracefulPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Acquisition.DurationS = 0
	o := newTestOrchestrator(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		waitForState(t, o, run.StateAcquiring)
		cancel()
	}()

	if err := o.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	r := o.RunInfo()
	if r.State() != run.StateDone {
		t.Errorf("final state = %s, want done", r.State())
	}

	// The snapshot exists only if the logger's SIGINT flush ran, so a
	// cancellation that SIGKILLed the group would fail here.
	if _, err := os.Stat(filepath.Join(r.Dir, "encoder_data_test.pkl")); err != nil {
		t.Errorf("claimed snapshot missing after cancellation: %v", err)
	}
}

func TestRun_DashboardPollingDuringRun(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(cfg)

	// Poll the way the dashboard's tick does, concurrently with Run.
	pollDone := make(chan struct{})
	stopPoll := make(chan struct{})
	go func() {
		defer close(pollDone)
		for {
			select {
			case <-stopPoll:
				return
			default:
			}
			if r := o.RunInfo(); r != nil {
				_ = r.State()
			}
			_ = o.FrameSnapshot()
			time.Sleep(5 * time.Millisecond)
		}
	}()

	err := o.Run(context.Background())
	close(stopPoll)
	<-pollDone

	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o.RunInfo().State() != run.StateDone {
		t.Errorf("final state = %s, want done", o.RunInfo().State())
	}
}

// waitForState blocks until the run reaches the given state.
func waitForState(t *testing.T, o *Orchestrator, want run.State) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if r := o.RunInfo(); r != nil && r.State() == want {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestRun_MissingCaptureBinaryLeavesNoRunDir(t *testing.T) {
	cfg := testConfig(t)
	os.Remove(cfg.Paths.CaptureBin)
	o := newTestOrchestrator(cfg)

	err := o.Run(context.Background())
	var le *process.LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LaunchError", err)
	}

	// Preflight failed before anything touched the filesystem
	entries, readErr := os.ReadDir(cfg.Motor.BasePath)
	if readErr != nil {
		t.Fatal(readErr)
	}
	for _, e := range entries {
		if e.IsDir() {
			t.Errorf("run directory created despite launch failure: %s", e.Name())
		}
	}
}

func TestRun_MissingArtifactFailsRun(t *testing.T) {
	cfg := testConfig(t)
	writeScript(t, cfg.Motor.BasePath, "motor-spin-logger.py", fakeLoggerNoSnapshot)
	o := newTestOrchestrator(cfg)

	err := o.Run(context.Background())
	var noMatch *run.NoMatchingArtifactError
	if !errors.As(err, &noMatch) {
		t.Fatalf("err = %v, want *NoMatchingArtifactError", err)
	}
	if o.RunInfo().State() != run.StateFailed {
		t.Errorf("state = %s, want failed", o.RunInfo().State())
	}

	// Failed runs keep their directory for postmortem
	if _, statErr := os.Stat(o.RunInfo().Dir); statErr != nil {
		t.Errorf("run dir missing after failure: %v", statErr)
	}
}

func TestRun_ProcessingFailureFailsRun(t *testing.T) {
	cfg := testConfig(t)
	writeScript(t, cfg.Motor.BasePath, "process-exposures-batch.py", fakeStageFail)
	o := newTestOrchestrator(cfg)

	err := o.Run(context.Background())
	var ce *CollaboratorError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CollaboratorError", err)
	}
	if ce.Stage != "processing" || ce.ExitCode != 2 {
		t.Errorf("CollaboratorError = %+v", ce)
	}
	if o.RunInfo().State() != run.StateFailed {
		t.Errorf("state = %s, want failed", o.RunInfo().State())
	}
}

func TestRun_CleanupRaw(t *testing.T) {
	cfg := testConfig(t)
	cfg.Processing.CleanupRaw = true
	o := newTestOrchestrator(cfg)

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(o.RunInfo().RawDir()); !os.IsNotExist(err) {
		t.Error("raw/ not removed after a successful cleanup_raw run")
	}
	// The rest of the run directory survives
	if _, err := os.Stat(filepath.Join(o.RunInfo().Dir, "encoder_data_test.pkl")); err != nil {
		t.Errorf("claimed snapshot removed by cleanup: %v", err)
	}
}

func TestCollaboratorError_Message(t *testing.T) {
	err := &CollaboratorError{Stage: "plotting", ExitCode: 3}
	want := "plotting collaborator failed with exit code 3"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
