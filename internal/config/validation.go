package config

import (
	"fmt"
	"strings"
)

// ValidationError describes a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates all validation failures for a config.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for invalid values. It returns a
// ValidationErrors listing every problem, or nil if the config is valid.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, validateFilter(&c.Filter)...)
	errs = append(errs, validateReport(&c.Report)...)
	errs = append(errs, validateMQTT(&c.MQTT)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateFilter(fc *FilterConfig) ValidationErrors {
	var errs ValidationErrors
	if fc.WindowMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "filter.window_ms",
			Message: fmt.Sprintf("must be >= 0, got %d", fc.WindowMs),
		})
	}
	if fc.WindowMs > 5000 {
		errs = append(errs, ValidationError{
			Field:   "filter.window_ms",
			Message: fmt.Sprintf("window above 5000ms would swallow normal typing, got %d", fc.WindowMs),
		})
	}
	if fc.NearMissMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "filter.near_miss_ms",
			Message: fmt.Sprintf("must be >= 0, got %d", fc.NearMissMs),
		})
	}
	return errs
}

func validateReport(rc *ReportConfig) ValidationErrors {
	var errs ValidationErrors
	if rc.IntervalSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "report.interval_sec",
			Message: fmt.Sprintf("must be >= 0, got %d", rc.IntervalSec),
		})
	}
	return errs
}

func validateMQTT(mc *MQTTConfig) ValidationErrors {
	var errs ValidationErrors
	if mc.Enabled && mc.Broker == "" {
		errs = append(errs, ValidationError{
			Field:   "mqtt.broker",
			Message: "required when mqtt is enabled",
		})
	}
	if mc.Enabled && mc.ClientID == "" {
		errs = append(errs, ValidationError{
			Field:   "mqtt.client_id",
			Message: "required when mqtt is enabled",
		})
	}
	return errs
}

func validateLogging(lc *LoggingConfig) ValidationErrors {
	var errs ValidationErrors
	switch lc.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("must be one of debug, info, warn, error; got %q", lc.Level),
		})
	}
	switch lc.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("must be text or json, got %q", lc.Format),
		})
	}
	return errs
}
