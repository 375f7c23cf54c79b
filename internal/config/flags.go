package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// optionalHours is a flag type for plotting.time_offset_hours, which is
// omitted from the plot command entirely when never set.
type optionalHours struct {
	dst **float64
}

func (o optionalHours) String() string {
	if o.dst == nil || *o.dst == nil {
		return ""
	}
	return formatFloat(**o.dst)
}

func (o optionalHours) Set(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	*o.dst = &f
	return nil
}

// ParseFlags resolves the full configuration: defaults, then the YAML
// config file, then command-line flags. The config file path itself is
// found by a pre-scan so file values can serve as flag defaults.
func ParseFlags() (*Config, error) {
	return parseFlags(os.Args[1:], flag.CommandLine)
}

func parseFlags(args []string, fs *flag.FlagSet) (*Config, error) {
	cfg := DefaultConfig()
	cfg.ConfigPath = findConfigArg(args, "config.yaml")
	if err := LoadFile(cfg, cfg.ConfigPath); err != nil {
		return nil, err
	}

	fs.Usage = func() { printUsage(fs) }

	fs.String("config", cfg.ConfigPath, "Path to config.yaml")

	// Acquisition
	fs.Float64Var(&cfg.Acquisition.ExposureTimeS, "exposure-time", cfg.Acquisition.ExposureTimeS, "Exposure time in seconds")
	fs.IntVar(&cfg.Acquisition.Gain, "gain", cfg.Acquisition.Gain, "Camera gain")
	fs.Float64Var(&cfg.Acquisition.IntervalS, "interval", cfg.Acquisition.IntervalS, "Inter-frame interval in seconds")
	fs.Float64Var(&cfg.Acquisition.DurationS, "duration-s", cfg.Acquisition.DurationS, "Acquisition duration in seconds (0 = manual stop)")

	// Motor
	fs.StringVar(&cfg.Motor.BasePath, "ground-path", cfg.Motor.BasePath, "Base path to the ground repo")
	fs.IntVar(&cfg.Motor.SpinRate, "spin-rate", cfg.Motor.SpinRate, "Motor spin rate")

	// Processing
	fs.IntVar(&cfg.Processing.Jobs, "jobs", cfg.Processing.Jobs, "Processing worker count (0 = auto)")
	fs.BoolVar(&cfg.Processing.MakeFits, "make-fits", cfg.Processing.MakeFits, "Generate FITS output")
	fs.BoolVar(&cfg.Processing.MakeColor, "make-color", cfg.Processing.MakeColor, "Generate color previews")
	fs.BoolVar(&cfg.Processing.MakeGreen, "make-green", cfg.Processing.MakeGreen, "Generate green previews")
	fs.BoolVar(&cfg.Processing.Quiet, "quiet", cfg.Processing.Quiet, "Reduce processing output")
	fs.BoolVar(&cfg.Processing.CleanupRaw, "cleanup-raw", cfg.Processing.CleanupRaw, "Remove raw/ after a successful run")

	// Plotting
	fs.IntVar(&cfg.Plotting.CountsPerRev, "counts-per-rev", cfg.Plotting.CountsPerRev, "Encoder counts per revolution")
	fs.IntVar(&cfg.Plotting.RoiSize, "roi-size", cfg.Plotting.RoiSize, "Plot region-of-interest size")
	fs.IntVar(&cfg.Plotting.BackgroundX, "background-x", cfg.Plotting.BackgroundX, "Background sample X")
	fs.IntVar(&cfg.Plotting.BackgroundY, "background-y", cfg.Plotting.BackgroundY, "Background sample Y")
	fs.BoolVar(&cfg.Plotting.Debug, "plot-debug", cfg.Plotting.Debug, "Enable plot debug output")
	fs.Var(optionalHours{&cfg.Plotting.TimeOffsetHours}, "time-offset-hours", "Plot time offset in hours (omitted if never set)")

	// Collaborators
	fs.StringVar(&cfg.Paths.CaptureBin, "capture-bin", cfg.Paths.CaptureBin, "Path to the capture binary (default: <ground>/camera/capture-continuous.out)")
	fs.StringVar(&cfg.Paths.Python, "python", cfg.Paths.Python, "Python interpreter for script collaborators")

	// Supervisor timing
	fs.Float64Var(&cfg.Supervisor.ReadinessTimeoutS, "readiness-timeout-s", cfg.Supervisor.ReadinessTimeoutS, "Seconds to wait for the first captured frame")
	fs.Float64Var(&cfg.Supervisor.IntGraceS, "int-grace-s", cfg.Supervisor.IntGraceS, "Grace window after SIGINT before escalating")
	fs.Float64Var(&cfg.Supervisor.TermGraceS, "term-grace-s", cfg.Supervisor.TermGraceS, "Grace window after SIGTERM before SIGKILL")

	// Observability
	fs.StringVar(&cfg.Observability.MetricsAddr, "metrics", cfg.Observability.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.BoolVar(&cfg.Observability.Verbose, "v", cfg.Observability.Verbose, "Verbose logging")
	fs.StringVar(&cfg.Observability.LogFormat, "log-format", cfg.Observability.LogFormat, `Log format: "json" or "text"`)
	fs.BoolVar(&cfg.Observability.TUIEnabled, "tui", cfg.Observability.TUIEnabled, "Enable the live terminal dashboard")

	// Safety & Diagnostics (double-dash convention)
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print collaborator commands and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Resolve()
	return cfg, nil
}

// findConfigArg pre-scans args for -config/--config so the file can be
// loaded before flag defaults are registered.
func findConfigArg(args []string, fallback string) string {
	for i, arg := range args {
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "-config="):
			return strings.TrimPrefix(arg, "-config=")
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return fallback
}

// printUsage prints flags grouped by concern.
func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `go-exposure-run - supervised camera + encoder acquisition runs

Usage:
  go-exposure-run [flags]

Acquisition Flags:
`)
	printFlagCategory(fs, []string{"exposure-time", "gain", "interval", "duration-s"})

	fmt.Fprintf(os.Stderr, "\nMotor / Encoder:\n")
	printFlagCategory(fs, []string{"ground-path", "spin-rate"})

	fmt.Fprintf(os.Stderr, "\nProcessing:\n")
	printFlagCategory(fs, []string{"jobs", "make-fits", "make-color", "make-green", "quiet", "cleanup-raw"})

	fmt.Fprintf(os.Stderr, "\nPlotting:\n")
	printFlagCategory(fs, []string{"counts-per-rev", "roi-size", "background-x", "background-y", "plot-debug", "time-offset-hours"})

	fmt.Fprintf(os.Stderr, "\nCollaborators:\n")
	printFlagCategory(fs, []string{"capture-bin", "python"})

	fmt.Fprintf(os.Stderr, "\nSupervisor Timing:\n")
	printFlagCategory(fs, []string{"readiness-timeout-s", "int-grace-s", "term-grace-s"})

	fmt.Fprintf(os.Stderr, "\nObservability:\n")
	printFlagCategory(fs, []string{"metrics", "v", "log-format", "tui"})

	fmt.Fprintf(os.Stderr, "\nSafety & Diagnostics:\n")
	printFlagCategory(fs, []string{"config", "print-cmd", "skip-preflight"})

	fmt.Fprintf(os.Stderr, `
Examples:
  # 5 second run with back-to-back exposures
  go-exposure-run -interval 0 -duration-s 5

  # Manual run, stop with Ctrl+C
  go-exposure-run -exposure-time 0.002 -gain 120

`)
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(os.Stderr, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
					fmt.Fprintf(os.Stderr, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}
	if _, err := time.ParseDuration(f.DefValue); err == nil && strings.ContainsAny(f.DefValue, "smh") {
		return "duration"
	}
	if _, err := strconv.Atoi(f.DefValue); err == nil {
		return "int"
	}
	if _, err := strconv.ParseFloat(f.DefValue, 64); err == nil {
		return "float"
	}
	return "string"
}
