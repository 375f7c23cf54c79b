package config

import (
	"errors"
	"fmt"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Acquisition.ExposureTimeS <= 0 {
		errs = append(errs, ValidationError{
			Field:   "acquisition.exposure_time_s",
			Message: "must be positive",
		})
	}
	if cfg.Acquisition.Gain < 0 {
		errs = append(errs, ValidationError{
			Field:   "acquisition.gain",
			Message: "must not be negative",
		})
	}
	if cfg.Acquisition.IntervalS < 0 {
		errs = append(errs, ValidationError{
			Field:   "acquisition.interval_s",
			Message: "must not be negative",
		})
	}
	if cfg.Acquisition.DurationS < 0 {
		errs = append(errs, ValidationError{
			Field:   "acquisition.duration_s",
			Message: "must not be negative (0 = manual stop)",
		})
	}

	if cfg.Motor.BasePath == "" {
		errs = append(errs, ValidationError{
			Field:   "motor.base_path",
			Message: "ground path is required",
		})
	}
	if cfg.Motor.SpinRate <= 0 {
		errs = append(errs, ValidationError{
			Field:   "motor.spin_rate",
			Message: "must be positive",
		})
	}

	if cfg.Processing.Jobs < 0 {
		errs = append(errs, ValidationError{
			Field:   "processing.jobs",
			Message: "must not be negative (0 = auto)",
		})
	}

	if cfg.Plotting.CountsPerRev <= 0 {
		errs = append(errs, ValidationError{
			Field:   "plotting.counts_per_rev",
			Message: "must be positive",
		})
	}
	if cfg.Plotting.RoiSize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "plotting.roi_size",
			Message: "must be positive",
		})
	}

	if cfg.Supervisor.ReadinessTimeoutS <= 0 {
		errs = append(errs, ValidationError{
			Field:   "supervisor.readiness_timeout_s",
			Message: "must be positive",
		})
	}
	if cfg.Supervisor.IntGraceS <= 0 {
		errs = append(errs, ValidationError{
			Field:   "supervisor.int_grace_s",
			Message: "must be positive",
		})
	}
	if cfg.Supervisor.TermGraceS <= 0 {
		errs = append(errs, ValidationError{
			Field:   "supervisor.term_grace_s",
			Message: "must be positive",
		})
	}

	switch cfg.Observability.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, ValidationError{
			Field:   "observability.log_format",
			Message: `must be "json" or "text"`,
		})
	}

	return errors.Join(errs...)
}
