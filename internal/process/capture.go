package process

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
)

// CaptureConfig holds configuration for the continuous image-capture
// collaborator.
type CaptureConfig struct {
	// BinaryPath is the path to the capture binary.
	BinaryPath string

	// OutputDir is where numbered frame files are written. The binary
	// creates it lazily on the first successful frame, which is what the
	// readiness watcher keys off.
	OutputDir string

	// ExposureTimeS is the per-frame exposure time in seconds.
	ExposureTimeS float64

	// Gain is the sensor gain.
	Gain int

	// IntervalS is the pause between frames in seconds (0 = back to back).
	IntervalS float64
}

// CaptureRunner implements Runner for the capture collaborator.
type CaptureRunner struct {
	config *CaptureConfig
}

// NewCaptureRunner creates a new capture runner with the given configuration.
func NewCaptureRunner(cfg *CaptureConfig) *CaptureRunner {
	return &CaptureRunner{config: cfg}
}

// Name returns "capture".
func (r *CaptureRunner) Name() string {
	return string(RoleCapture)
}

// BuildCommand creates an exec.Cmd for the capture binary. The command is
// deliberately not bound to ctx: the shutdown sequencer exclusively owns
// termination of the long-running roles, and a context cancellation must
// not SIGKILL the group past the SIGINT ladder.
func (r *CaptureRunner) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	return exec.Command(r.config.BinaryPath, r.buildArgs()...), nil
}

// buildArgs constructs the capture command-line arguments.
func (r *CaptureRunner) buildArgs() []string {
	return []string{
		"--output-dir", r.config.OutputDir,
		"--exposure-time", formatSeconds(r.config.ExposureTimeS),
		"--gain", strconv.Itoa(r.config.Gain),
		"--interval", formatSeconds(r.config.IntervalS),
	}
}

// Config returns the capture configuration.
func (r *CaptureRunner) Config() *CaptureConfig {
	return r.config
}

// CommandString returns the command that would be executed (for debugging).
func (r *CaptureRunner) CommandString() string {
	return r.config.BinaryPath + " " + strings.Join(r.buildArgs(), " ")
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'g', -1, 64)
}
