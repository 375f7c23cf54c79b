package supervisor

import (
	"context"
	"log/slog"
	"syscall"
	"time"

	"github.com/drone-project/go-exposure-run/internal/process"
)

// defaultStopPoll is how often the sequencer re-checks group liveness
// inside a grace window.
const defaultStopPoll = 100 * time.Millisecond

// Sequencer stops subprocesses role by role in a fixed precedence order,
// escalating SIGINT → SIGTERM → SIGKILL per role. It never starts on the
// next role before the previous role's handling completes: the capture
// loop must be fully stopped before the encoder stream it is correlated
// against, so the last encoder samples bracket the last frame.
type Sequencer struct {
	// IntGrace is the wait after SIGINT before escalating.
	IntGrace time.Duration

	// TermGrace is the (shorter) wait after SIGTERM before SIGKILL.
	TermGrace time.Duration

	// PollInterval overrides the liveness re-check interval (tests).
	PollInterval time.Duration

	Logger *slog.Logger
}

// StopReport describes how one role was brought down.
type StopReport struct {
	Role        process.Role
	SignalsSent []string
	AlreadyDead bool
	Killed      bool // reached SIGKILL
	Elapsed     time.Duration
}

// Stop brings down every handle in order. Handles must be passed in
// precedence order (capture before logger). Signal delivery failures are
// swallowed: the desired end state may already hold.
func (s *Sequencer) Stop(ctx context.Context, handles []*process.Handle) []StopReport {
	reports := make([]StopReport, 0, len(handles))
	for _, h := range handles {
		reports = append(reports, s.stopOne(ctx, h))
	}
	return reports
}

// stopOne runs the escalation ladder for a single role.
func (s *Sequencer) stopOne(ctx context.Context, h *process.Handle) StopReport {
	start := time.Now()
	report := StopReport{Role: h.Role()}

	if !h.Alive() {
		report.AlreadyDead = true
		report.Elapsed = time.Since(start)
		s.Logger.Info("subprocess_already_stopped", "role", h.Role())
		return report
	}

	// Cooperative shutdown first: collaborators flush their output on
	// SIGINT (the encoder snapshot exists only after a clean stop).
	s.signal(h, syscall.SIGINT, &report)
	if s.waitGone(ctx, h, s.IntGrace) {
		report.Elapsed = time.Since(start)
		s.Logger.Info("subprocess_stopped", "role", h.Role(), "signal", "SIGINT", "elapsed", report.Elapsed.String())
		return report
	}

	s.Logger.Warn("escalating_shutdown", "role", h.Role(), "signal", "SIGTERM")
	s.signal(h, syscall.SIGTERM, &report)
	if s.waitGone(ctx, h, s.TermGrace) {
		report.Elapsed = time.Since(start)
		s.Logger.Info("subprocess_stopped", "role", h.Role(), "signal", "SIGTERM", "elapsed", report.Elapsed.String())
		return report
	}

	// Last resort, unconditional.
	s.Logger.Warn("force_killing_process_group", "role", h.Role(), "pgid", h.PID())
	s.signal(h, syscall.SIGKILL, &report)
	report.Killed = true

	// SIGKILL cannot be ignored; bound the reap wait anyway.
	s.waitGone(ctx, h, s.TermGrace)
	report.Elapsed = time.Since(start)
	return report
}

// signal delivers sig to the group, recording it and swallowing delivery
// failures (the group being gone is an acceptable outcome).
func (s *Sequencer) signal(h *process.Handle, sig syscall.Signal, report *StopReport) {
	report.SignalsSent = append(report.SignalsSent, sig.String())
	if err := h.Signal(sig); err != nil {
		s.Logger.Debug("signal_delivery_failed",
			"role", h.Role(),
			"signal", sig.String(),
			"error", err,
		)
	}
}

// waitGone polls group liveness until the group is gone or the grace
// window elapses. Returns true once the group no longer exists.
func (s *Sequencer) waitGone(ctx context.Context, h *process.Handle, window time.Duration) bool {
	poll := s.PollInterval
	if poll <= 0 {
		poll = defaultStopPoll
	}

	deadline := time.NewTimer(window)
	defer deadline.Stop()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	done := h.Done()
	for {
		if !h.Alive() {
			return true
		}

		select {
		case <-deadline.C:
			return !h.Alive()
		case <-done:
			// Leader reaped; keep polling in case group members remain.
			done = nil
		case <-ticker.C:
		case <-ctx.Done():
			return !h.Alive()
		}
	}
}
