// Package metrics provides Prometheus metrics for go-exposure-run.
//
// One supervisor instance owns one run, so all metrics describe the
// current run: its state, subprocess liveness, frame production, and the
// signals the shutdown sequencer delivered.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exposure_run_info",
			Help: "Information about the current run (value always 1)",
		},
		[]string{"run_id"},
	)

	runState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exposure_run_state",
			Help: "Current run state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	runDurationSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exposure_run_duration_seconds",
			Help: "Configured acquisition duration (0 = manual stop)",
		},
	)

	runElapsedSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exposure_run_elapsed_seconds",
			Help: "Seconds since the run started",
		},
	)

	subprocessUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exposure_run_subprocess_up",
			Help: "Whether the role's process group is alive",
		},
		[]string{"role"},
	)

	framesWritten = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exposure_run_frames_written",
			Help: "Raw frame files observed in the run's raw directory",
		},
	)

	frameRatePerSec = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exposure_run_frames_per_second",
			Help: "Observed frame production rate",
		},
	)

	signalsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exposure_run_signals_sent_total",
			Help: "Shutdown signals delivered, by role and signal",
		},
		[]string{"role", "signal"},
	)

	escalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exposure_run_shutdown_escalations_total",
			Help: "Shutdown escalations past SIGINT, by role",
		},
		[]string{"role"},
	)

	artifactClaimed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exposure_run_artifact_claimed_timestamp_seconds",
			Help: "Unix time the encoder snapshot was claimed (0 = not yet)",
		},
	)

	collaboratorExitCode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exposure_run_collaborator_exit_code",
			Help: "Exit code of a finished collaborator, by stage",
		},
		[]string{"stage"},
	)
)

// Collector updates run metrics. Methods are called from the supervisor's
// control flow and from the frame tracker's sampling loop.
type Collector struct {
	startTime time.Time
}

// NewCollector creates a collector registered on the default registry.
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(registry prometheus.Registerer) *Collector {
	registry.MustRegister(
		runInfo,
		runState,
		runDurationSeconds,
		runElapsedSeconds,
		subprocessUp,
		framesWritten,
		frameRatePerSec,
		signalsSentTotal,
		escalationsTotal,
		artifactClaimed,
		collaboratorExitCode,
	)
	return &Collector{startTime: time.Now()}
}

// runStates mirrors the run state machine for the state gauge.
var runStates = []string{"starting", "acquiring", "stopping", "processing", "done", "failed"}

// SetRunInfo records the run identity and configured duration.
func (c *Collector) SetRunInfo(runID string, duration time.Duration) {
	runInfo.WithLabelValues(runID).Set(1)
	runDurationSeconds.Set(duration.Seconds())
}

// SetState marks the active run state.
func (c *Collector) SetState(state string) {
	for _, s := range runStates {
		v := 0.0
		if s == state {
			v = 1
		}
		runState.WithLabelValues(s).Set(v)
	}
}

// SetSubprocessUp records a role's process-group liveness.
func (c *Collector) SetSubprocessUp(role string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	subprocessUp.WithLabelValues(role).Set(v)
}

// SetFrames records the observed frame count and production rate.
func (c *Collector) SetFrames(count int, ratePerSec float64) {
	framesWritten.Set(float64(count))
	frameRatePerSec.Set(ratePerSec)
	runElapsedSeconds.Set(time.Since(c.startTime).Seconds())
}

// SignalSent counts one delivered shutdown signal.
func (c *Collector) SignalSent(role, signal string) {
	signalsSentTotal.WithLabelValues(role, signal).Inc()
}

// Escalated counts one escalation past SIGINT for a role.
func (c *Collector) Escalated(role string) {
	escalationsTotal.WithLabelValues(role).Inc()
}

// ArtifactClaimed records the claim time of the encoder snapshot.
func (c *Collector) ArtifactClaimed(at time.Time) {
	artifactClaimed.Set(float64(at.Unix()))
}

// CollaboratorFinished records a downstream collaborator's exit code.
func (c *Collector) CollaboratorFinished(stage string, exitCode int) {
	collaboratorExitCode.WithLabelValues(stage).Set(float64(exitCode))
}
