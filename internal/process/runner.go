// Package process provides abstractions for launching and signalling the
// external collaborator programs of an acquisition run.
package process

import (
	"context"
	"fmt"
	"os/exec"
)

// Role is the logical category of a managed subprocess.
type Role string

const (
	// RoleCapture is the continuous image-capture loop.
	RoleCapture Role = "capture"

	// RoleLogger is the motor / angular-encoder logger.
	RoleLogger Role = "logger"
)

// Runner creates executable commands for collaborators.
// This interface keeps the run supervisor collaborator-agnostic.
type Runner interface {
	// BuildCommand returns a ready-to-start command.
	// The command should NOT be started yet.
	BuildCommand(ctx context.Context) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string
}

// LaunchError indicates a collaborator could not be started at all
// (missing binary, not executable). It is fatal before any subprocess
// work begins.
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// SignalError indicates a signal could not be delivered, typically because
// the target process group no longer exists. Callers treat it as
// already-stopped, not as a failure.
type SignalError struct {
	Role   Role
	Signal string
	Err    error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("signal %s to %s group: %v", e.Signal, e.Role, e.Err)
}

func (e *SignalError) Unwrap() error { return e.Err }
