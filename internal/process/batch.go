package process

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
)

// ProcessingConfig holds configuration for the batch frame-conversion
// collaborator.
type ProcessingConfig struct {
	Python     string
	ScriptPath string
	RunDir     string

	Jobs      int // 0 = collaborator default
	MakeFits  bool
	MakeColor bool
	MakeGreen bool
	Quiet     bool
}

// ProcessingRunner implements Runner for the batch processor.
type ProcessingRunner struct {
	config *ProcessingConfig
}

// NewProcessingRunner creates a new processing runner.
func NewProcessingRunner(cfg *ProcessingConfig) *ProcessingRunner {
	return &ProcessingRunner{config: cfg}
}

// Name returns "processing".
func (r *ProcessingRunner) Name() string {
	return "processing"
}

// BuildCommand creates an exec.Cmd for the batch processor.
func (r *ProcessingRunner) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	return exec.CommandContext(ctx, r.config.Python, r.buildArgs()...), nil
}

// buildArgs constructs the processor command-line arguments. The
// collaborator generates everything by default, so only opt-outs are
// passed.
func (r *ProcessingRunner) buildArgs() []string {
	args := []string{r.config.ScriptPath, r.config.RunDir}

	if !r.config.MakeColor {
		args = append(args, "--no-color")
	}
	if !r.config.MakeGreen {
		args = append(args, "--no-green")
	}
	if !r.config.MakeFits {
		args = append(args, "--no-fits")
	}
	if r.config.Quiet {
		args = append(args, "--quiet")
	}
	if r.config.Jobs > 0 {
		args = append(args, "--jobs", strconv.Itoa(r.config.Jobs))
	}

	return args
}

// CommandString returns the command that would be executed (for debugging).
func (r *ProcessingRunner) CommandString() string {
	return r.config.Python + " " + strings.Join(r.buildArgs(), " ")
}

// PlottingConfig holds configuration for the plot-generation collaborator.
type PlottingConfig struct {
	Python     string
	ScriptPath string
	RunDir     string

	// ArtifactPath is the encoder snapshot claimed into the run directory.
	ArtifactPath string

	CountsPerRev    int
	RoiSize         int
	BackgroundX     int
	BackgroundY     int
	Debug           bool
	TimeOffsetHours *float64 // nil = flag omitted
}

// PlottingRunner implements Runner for the plot generator.
type PlottingRunner struct {
	config *PlottingConfig
}

// NewPlottingRunner creates a new plotting runner.
func NewPlottingRunner(cfg *PlottingConfig) *PlottingRunner {
	return &PlottingRunner{config: cfg}
}

// Name returns "plotting".
func (r *PlottingRunner) Name() string {
	return "plotting"
}

// BuildCommand creates an exec.Cmd for the plot generator.
func (r *PlottingRunner) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	return exec.CommandContext(ctx, r.config.Python, r.buildArgs()...), nil
}

// buildArgs constructs the plotter command-line arguments.
func (r *PlottingRunner) buildArgs() []string {
	args := []string{
		r.config.ScriptPath,
		"--counts-per-rev", strconv.Itoa(r.config.CountsPerRev),
		"--roi-size", strconv.Itoa(r.config.RoiSize),
		"--background-x", strconv.Itoa(r.config.BackgroundX),
		"--background-y", strconv.Itoa(r.config.BackgroundY),
	}

	if r.config.Debug {
		args = append(args, "--debug")
	}
	if r.config.TimeOffsetHours != nil {
		args = append(args, "--time-offset-hours", formatSeconds(*r.config.TimeOffsetHours))
	}

	args = append(args, r.config.RunDir, r.config.ArtifactPath)
	return args
}

// CommandString returns the command that would be executed (for debugging).
func (r *PlottingRunner) CommandString() string {
	return r.config.Python + " " + strings.Join(r.buildArgs(), " ")
}
