package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero exposure", func(c *Config) { c.Acquisition.ExposureTimeS = 0 }, "acquisition.exposure_time_s"},
		{"negative gain", func(c *Config) { c.Acquisition.Gain = -1 }, "acquisition.gain"},
		{"negative interval", func(c *Config) { c.Acquisition.IntervalS = -0.1 }, "acquisition.interval_s"},
		{"negative duration", func(c *Config) { c.Acquisition.DurationS = -1 }, "acquisition.duration_s"},
		{"empty ground path", func(c *Config) { c.Motor.BasePath = "" }, "motor.base_path"},
		{"zero spin rate", func(c *Config) { c.Motor.SpinRate = 0 }, "motor.spin_rate"},
		{"negative jobs", func(c *Config) { c.Processing.Jobs = -2 }, "processing.jobs"},
		{"zero counts per rev", func(c *Config) { c.Plotting.CountsPerRev = 0 }, "plotting.counts_per_rev"},
		{"zero roi", func(c *Config) { c.Plotting.RoiSize = 0 }, "plotting.roi_size"},
		{"zero readiness timeout", func(c *Config) { c.Supervisor.ReadinessTimeoutS = 0 }, "supervisor.readiness_timeout_s"},
		{"zero int grace", func(c *Config) { c.Supervisor.IntGraceS = 0 }, "supervisor.int_grace_s"},
		{"zero term grace", func(c *Config) { c.Supervisor.TermGraceS = 0 }, "supervisor.term_grace_s"},
		{"bad log format", func(c *Config) { c.Observability.LogFormat = "xml" }, "observability.log_format"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error %q does not name field %s", err, tc.field)
			}
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Acquisition.ExposureTimeS = 0
	cfg.Motor.BasePath = ""
	cfg.Plotting.RoiSize = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"acquisition.exposure_time_s", "motor.base_path", "plotting.roi_size"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("joined error missing %s: %v", field, err)
		}
	}

	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("joined error should unwrap to ValidationError")
	}
}
