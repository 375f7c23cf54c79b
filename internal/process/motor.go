package process

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
)

// MotorLoggerConfig holds configuration for the motor / encoder logger
// collaborator.
type MotorLoggerConfig struct {
	// Python is the interpreter used to run the script.
	Python string

	// ScriptPath is the path to the motor-spin-logger script.
	ScriptPath string

	// GroundPath is the ground repo base path. It is also the working
	// directory of the logger, which pins where the encoder readout drops
	// its encoder_data_* snapshot at clean shutdown.
	GroundPath string

	// SpinRate is the motor spin rate.
	SpinRate int
}

// MotorLoggerRunner implements Runner for the encoder logger.
type MotorLoggerRunner struct {
	config *MotorLoggerConfig
}

// NewMotorLoggerRunner creates a new motor logger runner.
func NewMotorLoggerRunner(cfg *MotorLoggerConfig) *MotorLoggerRunner {
	return &MotorLoggerRunner{config: cfg}
}

// Name returns "logger".
func (r *MotorLoggerRunner) Name() string {
	return string(RoleLogger)
}

// BuildCommand creates an exec.Cmd for the motor logger.
func (r *MotorLoggerRunner) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	// Not bound to ctx: the sequencer owns termination, and the logger's
	// shutdown flush (the encoder snapshot) only happens on SIGINT.
	cmd := exec.Command(r.config.Python, r.buildArgs()...)
	cmd.Dir = r.config.GroundPath
	return cmd, nil
}

// buildArgs constructs the motor logger command-line arguments.
func (r *MotorLoggerRunner) buildArgs() []string {
	return []string{
		r.config.ScriptPath,
		"--ground-path", r.config.GroundPath,
		"--spin-rate", strconv.Itoa(r.config.SpinRate),
	}
}

// Config returns the motor logger configuration.
func (r *MotorLoggerRunner) Config() *MotorLoggerConfig {
	return r.config
}

// CommandString returns the command that would be executed (for debugging).
func (r *MotorLoggerRunner) CommandString() string {
	return r.config.Python + " " + strings.Join(r.buildArgs(), " ")
}
