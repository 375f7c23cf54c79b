package run

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/drone-project/go-exposure-run/internal/config"
	"github.com/drone-project/go-exposure-run/internal/logging"
)

func newTestRun(t *testing.T) *Run {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Motor.BasePath = t.TempDir()
	logger := logging.NewLoggerWithWriter(io.Discard, "json", "info")
	return New(cfg, logger)
}

func TestNew_IDAndDir(t *testing.T) {
	r := newTestRun(t)

	if !regexp.MustCompile(`^\d{8}-\d{6}-\d+$`).MatchString(r.ID) {
		t.Errorf("ID = %q, want timestamp-pid form", r.ID)
	}
	if filepath.Base(r.Dir) != "exposures-"+r.ID {
		t.Errorf("Dir = %q, want exposures-<id> under ground path", r.Dir)
	}
	if r.State() != StateStarting {
		t.Errorf("initial state = %s, want starting", r.State())
	}
}

func TestRun_Layout(t *testing.T) {
	r := newTestRun(t)

	if r.RawDir() != filepath.Join(r.Dir, "raw") {
		t.Errorf("RawDir = %q", r.RawDir())
	}
	if r.ProcessedDir() != filepath.Join(r.Dir, "processed") {
		t.Errorf("ProcessedDir = %q", r.ProcessedDir())
	}
	if r.PlotsDir() != filepath.Join(r.Dir, "plots") {
		t.Errorf("PlotsDir = %q", r.PlotsDir())
	}
	if filepath.Base(r.CameraLog()) != CameraLogName || filepath.Base(r.MotorLog()) != MotorLogName {
		t.Errorf("log paths = %q, %q", r.CameraLog(), r.MotorLog())
	}
}

func TestCreateDirs(t *testing.T) {
	r := newTestRun(t)
	defer r.Close()

	if err := r.CreateDirs(); err != nil {
		t.Fatalf("CreateDirs: %v", err)
	}

	if _, err := os.Stat(r.Dir); err != nil {
		t.Errorf("run dir missing: %v", err)
	}

	// raw/ stays absent until the capture collaborator produces a frame
	if _, err := os.Stat(r.RawDir()); !os.IsNotExist(err) {
		t.Error("raw/ should not be pre-created")
	}

	snapshot, err := os.ReadFile(filepath.Join(r.Dir, ConfigLogName))
	if err != nil {
		t.Fatalf("config snapshot missing: %v", err)
	}
	if !strings.Contains(string(snapshot), "spin_rate: 250") {
		t.Errorf("snapshot content:\n%s", snapshot)
	}

	if _, err := os.Stat(filepath.Join(r.Dir, CommandLogName)); err != nil {
		t.Errorf("command log missing: %v", err)
	}
}

func TestRecordCommand(t *testing.T) {
	r := newTestRun(t)
	if err := r.CreateDirs(); err != nil {
		t.Fatal(err)
	}

	r.RecordCommand("capture", "/bin/capture --gain 100")
	r.Close()

	data, err := os.ReadFile(filepath.Join(r.Dir, CommandLogName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "capture: /bin/capture --gain 100") {
		t.Errorf("command log = %q", data)
	}
}

func TestRecordCommand_BeforeCreateDirs(t *testing.T) {
	r := newTestRun(t)
	r.RecordCommand("capture", "noop") // must not panic
}

func TestTransition(t *testing.T) {
	r := newTestRun(t)

	steps := []State{StateAcquiring, StateStopping, StateProcessing, StateDone}
	for _, next := range steps {
		if err := r.Transition(next); err != nil {
			t.Fatalf("Transition(%s): %v", next, err)
		}
	}
	if r.State() != StateDone {
		t.Errorf("final state = %s", r.State())
	}

	if err := r.Transition(StateAcquiring); err == nil {
		t.Error("transition out of a terminal state should fail")
	}
}

func TestTransition_Illegal(t *testing.T) {
	r := newTestRun(t)
	if err := r.Transition(StateProcessing); err == nil {
		t.Error("starting -> processing should be rejected")
	}
	if r.State() != StateStarting {
		t.Errorf("state changed on rejected transition: %s", r.State())
	}
}

func TestFail(t *testing.T) {
	r := newTestRun(t)
	if err := r.Transition(StateAcquiring); err != nil {
		t.Fatal(err)
	}

	r.Fail()
	if r.State() != StateFailed {
		t.Errorf("state = %s, want failed", r.State())
	}

	// Fail on a terminal state is a no-op, not a panic
	r.Fail()
	if r.State() != StateFailed {
		t.Errorf("state = %s after double Fail", r.State())
	}
}

func TestFail_NeverOverridesDone(t *testing.T) {
	r := newTestRun(t)
	for _, next := range []State{StateAcquiring, StateStopping, StateProcessing, StateDone} {
		if err := r.Transition(next); err != nil {
			t.Fatal(err)
		}
	}

	r.Fail()
	if r.State() != StateDone {
		t.Errorf("Fail overrode done: %s", r.State())
	}
}

func TestCleanupRaw(t *testing.T) {
	r := newTestRun(t)
	if err := r.CreateDirs(); err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err := os.MkdirAll(r.RawDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(r.RawDir(), "0001.raw"), []byte("frame"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Refused before the run succeeds
	if err := r.CleanupRaw(); err == nil {
		t.Error("CleanupRaw should refuse outside StateDone")
	}
	if _, err := os.Stat(r.RawDir()); err != nil {
		t.Error("raw/ removed despite refusal")
	}

	for _, next := range []State{StateAcquiring, StateStopping, StateProcessing, StateDone} {
		if err := r.Transition(next); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.CleanupRaw(); err != nil {
		t.Fatalf("CleanupRaw: %v", err)
	}
	if _, err := os.Stat(r.RawDir()); !os.IsNotExist(err) {
		t.Error("raw/ still present after cleanup")
	}
}
