// Package config provides configuration management for go-exposure-run.
//
// Configuration is resolved in three layers: built-in defaults, a YAML
// config file (default ./config.yaml), and command-line flags. Later
// layers win. The resolved configuration is snapshotted into the run
// directory for reproducibility.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for one acquisition run.
type Config struct {
	Acquisition   Acquisition   `yaml:"acquisition"`
	Motor         Motor         `yaml:"motor"`
	Processing    Processing    `yaml:"processing"`
	Plotting      Plotting      `yaml:"plotting"`
	Paths         Paths         `yaml:"paths"`
	Supervisor    Supervisor    `yaml:"supervisor"`
	Observability Observability `yaml:"observability"`

	// Diagnostic modes (flags only, never persisted).
	ConfigPath    string `yaml:"-"`
	PrintCmd      bool   `yaml:"-"`
	SkipPreflight bool   `yaml:"-"`
}

// Acquisition configures the image-capture subprocess.
type Acquisition struct {
	ExposureTimeS float64 `yaml:"exposure_time_s"`
	Gain          int     `yaml:"gain"`
	IntervalS     float64 `yaml:"interval_s"`

	// DurationS is the auto-stop duration in seconds. 0 means the run
	// stops only on an external stop request.
	DurationS float64 `yaml:"duration_s"`
}

// Motor configures the encoder-logger subprocess.
type Motor struct {
	BasePath string `yaml:"base_path"`
	SpinRate int    `yaml:"spin_rate"`
}

// Processing configures the batch frame-conversion collaborator.
type Processing struct {
	Jobs      int  `yaml:"jobs"` // 0 = collaborator default (cpu_count-1)
	MakeFits  bool `yaml:"make_fits"`
	MakeColor bool `yaml:"make_color"`
	MakeGreen bool `yaml:"make_green"`
	Quiet     bool `yaml:"quiet"`

	// CleanupRaw removes raw/ after a successful run. Failed runs always
	// keep their full directory for postmortem.
	CleanupRaw bool `yaml:"cleanup_raw"`
}

// Plotting configures the plot-generation collaborator.
type Plotting struct {
	CountsPerRev    int      `yaml:"counts_per_rev"`
	RoiSize         int      `yaml:"roi_size"`
	BackgroundX     int      `yaml:"background_x"`
	BackgroundY     int      `yaml:"background_y"`
	Debug           bool     `yaml:"debug"`
	TimeOffsetHours *float64 `yaml:"time_offset_hours"` // nil = flag omitted
}

// Paths locates the collaborator programs. Empty values are resolved
// relative to Motor.BasePath by Resolve().
type Paths struct {
	CaptureBin  string `yaml:"capture_bin"`
	Python      string `yaml:"python"`
	MotorLogger string `yaml:"motor_logger"`
	Processor   string `yaml:"processor"`
	Plotter     string `yaml:"plotter"`
}

// Supervisor configures run lifecycle timing.
type Supervisor struct {
	ReadinessTimeoutS float64 `yaml:"readiness_timeout_s"`
	IntGraceS         float64 `yaml:"int_grace_s"`
	TermGraceS        float64 `yaml:"term_grace_s"`
}

// Observability configures logging, metrics and the dashboard.
type Observability struct {
	MetricsAddr string `yaml:"metrics_addr"` // empty = metrics disabled
	LogFormat   string `yaml:"log_format"`   // json, text
	Verbose     bool   `yaml:"verbose"`
	TUIEnabled  bool   `yaml:"tui"`
}

// DefaultConfig returns a Config with the same defaults the original
// acquisition rig shipped with.
func DefaultConfig() *Config {
	return &Config{
		Acquisition: Acquisition{
			ExposureTimeS: 0.001,
			Gain:          100,
			IntervalS:     0.001,
			DurationS:     0,
		},
		Motor: Motor{
			BasePath: "/home/declan/drone-project/ground/",
			SpinRate: 250,
		},
		Processing: Processing{
			Jobs:     0,
			MakeFits: true,
		},
		Plotting: Plotting{
			CountsPerRev: 2400,
			RoiSize:      50,
			BackgroundX:  100,
			BackgroundY:  100,
		},
		Paths: Paths{
			Python: "python3",
		},
		Supervisor: Supervisor{
			ReadinessTimeoutS: 30,
			IntGraceS:         5,
			TermGraceS:        2,
		},
		Observability: Observability{
			MetricsAddr: "0.0.0.0:17092", // metrics + health endpoints
			LogFormat:   "json",
		},
	}
}

// LoadFile overlays the YAML file at path onto cfg. A missing file is not
// an error: the rig is usable from flags alone.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Resolve fills derived values: collaborator paths default to their
// conventional locations under the ground base path.
func (c *Config) Resolve() {
	ground := c.Motor.BasePath
	if c.Paths.CaptureBin == "" {
		c.Paths.CaptureBin = filepath.Join(ground, "camera", "capture-continuous.out")
	}
	if c.Paths.Python == "" {
		c.Paths.Python = "python3"
	}
	if c.Paths.MotorLogger == "" {
		c.Paths.MotorLogger = filepath.Join(ground, "motor", "motor-spin-logger.py")
	}
	if c.Paths.Processor == "" {
		c.Paths.Processor = filepath.Join(ground, "readout", "process-exposures-batch.py")
	}
	if c.Paths.Plotter == "" {
		c.Paths.Plotter = filepath.Join(ground, "readout", "create-plot.py")
	}
}

// AcqDuration returns the auto-stop duration (0 = manual stop only).
func (c *Config) AcqDuration() time.Duration {
	return secondsToDuration(c.Acquisition.DurationS)
}

// ReadinessTimeout returns the readiness watcher deadline.
func (c *Config) ReadinessTimeout() time.Duration {
	return secondsToDuration(c.Supervisor.ReadinessTimeoutS)
}

// IntGrace returns the grace window after SIGINT.
func (c *Config) IntGrace() time.Duration {
	return secondsToDuration(c.Supervisor.IntGraceS)
}

// TermGrace returns the grace window after SIGTERM.
func (c *Config) TermGrace() time.Duration {
	return secondsToDuration(c.Supervisor.TermGraceS)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Environ returns the resolved configuration as environment variable
// assignments for subprocesses, matching the exports the original
// load-config step emitted for its shell consumers.
func (c *Config) Environ() []string {
	shbool := func(b bool) string {
		if b {
			return "1"
		}
		return "0"
	}
	timeOffset := ""
	if c.Plotting.TimeOffsetHours != nil {
		timeOffset = formatFloat(*c.Plotting.TimeOffsetHours)
	}
	return []string{
		"EXPOSURE_TIME=" + formatFloat(c.Acquisition.ExposureTimeS),
		"GAIN=" + strconv.Itoa(c.Acquisition.Gain),
		"INTERVAL=" + formatFloat(c.Acquisition.IntervalS),
		"ACQ_DURATION_S=" + formatFloat(c.Acquisition.DurationS),
		"GROUND_PATH=" + c.Motor.BasePath,
		"SPIN_RATE=" + strconv.Itoa(c.Motor.SpinRate),
		"PROCESS_JOBS=" + strconv.Itoa(c.Processing.Jobs),
		"PROCESS_MAKE_FITS=" + shbool(c.Processing.MakeFits),
		"PROCESS_MAKE_COLOR=" + shbool(c.Processing.MakeColor),
		"PROCESS_MAKE_GREEN=" + shbool(c.Processing.MakeGreen),
		"PROCESS_QUIET=" + shbool(c.Processing.Quiet),
		"PLOT_COUNTS_PER_REV=" + strconv.Itoa(c.Plotting.CountsPerRev),
		"PLOT_DEBUG=" + shbool(c.Plotting.Debug),
		"PLOT_TIME_OFFSET_HOURS=" + timeOffset,
	}
}

// Snapshot marshals the resolved configuration to YAML for run_config.log.
func (c *Config) Snapshot() ([]byte, error) {
	return yaml.Marshal(c)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
