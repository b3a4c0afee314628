package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/filegate/internal/charset"
	"github.com/Iron-Ham/filegate/internal/xprocess"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "facade.read_timeout_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Upper bounds that catch unit mistakes (seconds entered as milliseconds etc.)
const (
	maxOptimisticRetries = 1000
	maxTimeoutMs         = 10 * 60 * 1000
	maxLogSizeMB         = 1000
	maxDebounceMs        = 60 * 1000
)

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateFacade()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateWatch()...)
	errors = append(errors, c.validateStress()...)

	return errors
}

// validateFacade validates the FacadeConfig
func (c *Config) validateFacade() []ValidationError {
	var errors []ValidationError

	if c.Facade.OptimisticRetries < 0 || c.Facade.OptimisticRetries > maxOptimisticRetries {
		errors = append(errors, ValidationError{
			Field:   "facade.optimistic_retries",
			Value:   c.Facade.OptimisticRetries,
			Message: fmt.Sprintf("must be between 0 and %d", maxOptimisticRetries),
		})
	}

	timeouts := []struct {
		field string
		value int
	}{
		{"facade.read_timeout_ms", c.Facade.ReadTimeoutMs},
		{"facade.write_timeout_ms", c.Facade.WriteTimeoutMs},
	}
	for _, to := range timeouts {
		if to.value < 0 {
			errors = append(errors, ValidationError{
				Field:   to.field,
				Value:   to.value,
				Message: "must be non-negative",
			})
		} else if to.value > maxTimeoutMs {
			errors = append(errors, ValidationError{
				Field:   to.field,
				Value:   to.value,
				Message: fmt.Sprintf("exceeds maximum of %dms", maxTimeoutMs),
			})
		}
	}

	if c.Facade.MaxReaders < 0 {
		errors = append(errors, ValidationError{
			Field:   "facade.max_readers",
			Value:   c.Facade.MaxReaders,
			Message: "must be non-negative",
		})
	}

	if c.Facade.LockBackend != "" && !slices.Contains(xprocess.ValidBackends(), c.Facade.LockBackend) {
		errors = append(errors, ValidationError{
			Field:   "facade.lock_backend",
			Value:   c.Facade.LockBackend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(xprocess.ValidBackends(), ", ")),
		})
	}

	if _, err := charset.Lookup(c.Facade.Encoding); err != nil {
		errors = append(errors, ValidationError{
			Field:   "facade.encoding",
			Value:   c.Facade.Encoding,
			Message: "unknown encoding",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateWatch validates the WatchConfig
func (c *Config) validateWatch() []ValidationError {
	var errors []ValidationError

	if c.Watch.DebounceMs <= 0 || c.Watch.DebounceMs > maxDebounceMs {
		errors = append(errors, ValidationError{
			Field:   "watch.debounce_ms",
			Value:   c.Watch.DebounceMs,
			Message: fmt.Sprintf("must be between 1 and %d", maxDebounceMs),
		})
	}

	return errors
}

// validateStress validates the StressConfig
func (c *Config) validateStress() []ValidationError {
	var errors []ValidationError

	nonNegative := []struct {
		field string
		value int
	}{
		{"stress.writers", c.Stress.Writers},
		{"stress.readers", c.Stress.Readers},
		{"stress.saves", c.Stress.Saves},
		{"stress.reader_pause_ms", c.Stress.ReaderPauseMs},
		{"stress.retry_backoff_ms", c.Stress.RetryBackoffMs},
	}
	for _, nn := range nonNegative {
		if nn.value < 0 {
			errors = append(errors, ValidationError{
				Field:   nn.field,
				Value:   nn.value,
				Message: "must be non-negative",
			})
		}
	}

	if c.Stress.Runs < 1 {
		errors = append(errors, ValidationError{
			Field:   "stress.runs",
			Value:   c.Stress.Runs,
			Message: "must be at least 1",
		})
	}

	if c.Stress.Processes < 1 {
		errors = append(errors, ValidationError{
			Field:   "stress.processes",
			Value:   c.Stress.Processes,
			Message: "must be at least 1",
		})
	}

	return errors
}
