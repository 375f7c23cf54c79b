package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Handle wraps one launched subprocess as a process-group leader. Signals
// are delivered to the whole group so descendants the collaborator spawns
// (the encoder readout under the motor logger, for instance) are stopped
// with it.
//
// The process is reaped by a background goroutine as soon as it exits, so
// Alive() flips promptly and Wait() is idempotent.
type Handle struct {
	role Role
	cmd  *exec.Cmd
	pgid int

	started time.Time

	done     chan struct{}
	exitCode int
	waitErr  error
}

// Start launches cmd as the leader of its own process group with extraEnv
// appended to the inherited environment. The subprocess's stdout and
// stderr are combined onto a pipe whose read end is returned for a
// follower to drain.
func Start(role Role, cmd *exec.Cmd, extraEnv []string) (*Handle, io.ReadCloser, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, &LaunchError{Name: string(role), Err: err}
	}

	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.Env = append(os.Environ(), extraEnv...)

	// Process group leadership for group-wide signalling
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, nil, &LaunchError{Name: string(role), Err: err}
	}

	// Parent must close its write end so the reader sees EOF when the
	// subprocess exits.
	pw.Close()

	h := &Handle{
		role:    role,
		cmd:     cmd,
		pgid:    cmd.Process.Pid, // pgid == pid for a group leader
		started: time.Now(),
		done:    make(chan struct{}),
	}

	go h.reap()

	return h, pr, nil
}

// reap waits for the process and records its exit status.
func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.exitCode = extractExitCode(err)
	h.waitErr = err
	close(h.done)
}

// Role returns the subprocess's role.
func (h *Handle) Role() Role { return h.role }

// PID returns the subprocess's process id (== its process group id).
func (h *Handle) PID() int { return h.pgid }

// StartedAt returns when the subprocess was launched.
func (h *Handle) StartedAt() time.Time { return h.started }

// Alive reports whether the process group still exists. This covers
// descendants: the group is alive until every member is gone, not just
// the leader.
func (h *Handle) Alive() bool {
	return syscall.Kill(-h.pgid, 0) == nil
}

// Signal delivers sig to the whole process group. A missing group is
// reported as a SignalError so callers can treat it as already-stopped.
func (h *Handle) Signal(sig syscall.Signal) error {
	if err := syscall.Kill(-h.pgid, sig); err != nil {
		return &SignalError{Role: h.role, Signal: sig.String(), Err: err}
	}
	return nil
}

// Wait blocks until the subprocess has exited and returns its exit code.
// Safe to call from multiple goroutines and after exit.
func (h *Handle) Wait() int {
	<-h.done
	return h.exitCode
}

// Done returns a channel closed once the subprocess has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitCode returns the exit code. Only valid once Done() is closed.
func (h *Handle) ExitCode() int { return h.exitCode }

// Uptime returns how long the subprocess has been (or was) running.
func (h *Handle) Uptime() time.Duration {
	return time.Since(h.started)
}

// RunToCompletion starts cmd in the foreground style used for the batch
// collaborators: output streams to the given writer, and the call blocks
// until exit. Returns the exit code.
func RunToCompletion(name string, cmd *exec.Cmd, output io.Writer, extraEnv []string) (int, error) {
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.Env = append(os.Environ(), extraEnv...)

	if err := cmd.Start(); err != nil {
		return 1, &LaunchError{Name: name, Err: err}
	}

	err := cmd.Wait()
	return extractExitCode(err), nil
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
