package run

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/drone-project/go-exposure-run/internal/config"
	"github.com/drone-project/go-exposure-run/internal/process"
)

// Log file names inside the run directory.
const (
	CameraLogName  = "camera.log"
	MotorLogName   = "motor.log"
	ConfigLogName  = "run_config.log"
	CommandLogName = "run_command.log"
)

// Run is one supervised acquisition session. It exclusively owns the
// subprocess handles for its lifetime; no handle outlives the run.
type Run struct {
	// ID is monotonic and collision-resistant: start timestamp plus the
	// supervisor's pid.
	ID string

	// Dir is the run directory, a pure function of ID computed once at
	// creation and never re-derived from the filesystem.
	Dir string

	StartedAt time.Time

	// Config is the resolved configuration snapshot for this run.
	Config *config.Config

	// Subprocess handles, set by the supervisor as it launches them.
	Capture *process.Handle
	Logger  *process.Handle

	state   State
	stateMu sync.RWMutex

	log        *slog.Logger
	commandLog *os.File
}

// New creates a Run rooted under the ground base path. No directories are
// created yet; see CreateDirs.
func New(cfg *config.Config, logger *slog.Logger) *Run {
	now := time.Now()
	id := now.Format("20060102-150405") + "-" + strconv.Itoa(os.Getpid())
	return &Run{
		ID:        id,
		Dir:       filepath.Join(cfg.Motor.BasePath, "exposures-"+id),
		StartedAt: now,
		Config:    cfg,
		state:     StateStarting,
		log:       logger,
	}
}

// Directory layout accessors. raw/ is created lazily by the capture
// collaborator itself; processed/ and plots/ by the downstream
// collaborators.

func (r *Run) RawDir() string       { return filepath.Join(r.Dir, "raw") }
func (r *Run) ProcessedDir() string { return filepath.Join(r.Dir, "processed") }
func (r *Run) PlotsDir() string     { return filepath.Join(r.Dir, "plots") }
func (r *Run) CameraLog() string    { return filepath.Join(r.Dir, CameraLogName) }
func (r *Run) MotorLog() string     { return filepath.Join(r.Dir, MotorLogName) }

// CreateDirs creates the run directory and writes the resolved
// configuration snapshot. Called only after preflight has passed, so a
// missing collaborator never leaves an empty run directory behind.
func (r *Run) CreateDirs() error {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	snapshot, err := r.Config.Snapshot()
	if err != nil {
		return fmt.Errorf("marshal config snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.Dir, ConfigLogName), snapshot, 0o644); err != nil {
		return fmt.Errorf("write config snapshot: %w", err)
	}

	r.commandLog, err = os.Create(filepath.Join(r.Dir, CommandLogName))
	if err != nil {
		return fmt.Errorf("create command log: %w", err)
	}
	return nil
}

// RecordCommand appends one collaborator invocation to run_command.log.
func (r *Run) RecordCommand(name, cmdline string) {
	if r.commandLog == nil {
		return
	}
	fmt.Fprintf(r.commandLog, "%s %s: %s\n", time.Now().Format(time.RFC3339), name, cmdline)
}

// State returns the current run state.
func (r *Run) State() State {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

// Transition moves the run to next, rejecting anything but the legal
// forward transitions. Every transition is reported.
func (r *Run) Transition(next State) error {
	r.stateMu.Lock()
	current := r.state
	if !current.CanTransition(next) {
		r.stateMu.Unlock()
		return fmt.Errorf("illegal run state transition %s -> %s", current, next)
	}
	r.state = next
	r.stateMu.Unlock()

	r.log.Info("run_state_changed",
		"run_id", r.ID,
		"from", current.String(),
		"to", next.String(),
	)
	return nil
}

// Fail forces the run into StateFailed from any non-terminal state.
func (r *Run) Fail() {
	r.stateMu.Lock()
	current := r.state
	if current.IsTerminal() {
		r.stateMu.Unlock()
		return
	}
	r.state = StateFailed
	r.stateMu.Unlock()

	r.log.Info("run_state_changed",
		"run_id", r.ID,
		"from", current.String(),
		"to", StateFailed.String(),
	)
}

// Close flushes and closes the run's own log files. The run becomes inert.
func (r *Run) Close() {
	if r.commandLog != nil {
		r.commandLog.Close()
		r.commandLog = nil
	}
}

// CleanupRaw removes the raw frame directory. Only invoked after a
// successful run when processing.cleanup_raw is set; failed runs always
// keep their full directory.
func (r *Run) CleanupRaw() error {
	if r.State() != StateDone {
		return fmt.Errorf("refusing raw cleanup in state %s", r.State())
	}
	return os.RemoveAll(r.RawDir())
}
