package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration correctness.
// It does not mutate the configuration.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.Detection.Port) == "" {
		errs = append(errs, errors.New("detection.port is required"))
	}
	if cfg.Detection.Interval <= 0 {
		errs = append(errs, fmt.Errorf("detection.interval must be strictly positive, got %d", cfg.Detection.Interval))
	}
	if cfg.Detection.Range.Min >= cfg.Detection.Range.Max {
		errs = append(errs, fmt.Errorf(
			"detection.range.min (%g) must be less than detection.range.max (%g)",
			cfg.Detection.Range.Min,
			cfg.Detection.Range.Max,
		))
	}
	if cfg.Detection.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("detection.read_timeout must be positive, got %s", cfg.Detection.ReadTimeout))
	}
	if cfg.Geometry.BaseArea <= 0 {
		errs = append(errs, fmt.Errorf("geometry.base_area must be positive, got %g", cfg.Geometry.BaseArea))
	}
	if cfg.Sensor.NoDetectionDistance <= 0 {
		errs = append(errs, fmt.Errorf(
			"sensor.no_detection_distance must be positive, got %g",
			cfg.Sensor.NoDetectionDistance,
		))
	}
	if cfg.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must be positive, got %s", cfg.Server.ShutdownTimeout))
	}

	return errors.Join(errs...)
}
