package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateGeneration()...)
	errors = append(errors, c.validateSafety()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors
	db := &c.Database

	if db.Host == "" {
		errors = append(errors, ValidationError{Field: "database.host", Message: "host is required"})
	}
	if db.Port <= 0 || db.Port > 65535 {
		errors = append(errors, ValidationError{Field: "database.port", Message: "port must be between 1 and 65535"})
	}
	if db.User == "" {
		errors = append(errors, ValidationError{Field: "database.user", Message: "user is required"})
	}
	if db.Database == "" {
		errors = append(errors, ValidationError{Field: "database.database", Message: "database name is required"})
	}

	validSSL := map[string]bool{"disable": true, "prefer": true, "require": true, "": true}
	if !validSSL[db.SSLMode] {
		errors = append(errors, ValidationError{Field: "database.sslmode", Message: "sslmode must be 'disable', 'prefer', or 'require'"})
	}
	if db.MaxConnections < 0 {
		errors = append(errors, ValidationError{Field: "database.max_connections", Message: "max_connections cannot be negative"})
	}
	if db.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{Field: "database.max_idle_connections", Message: "max_idle_connections cannot be negative"})
	}

	return errors
}

func (c *Config) validateGeneration() ValidationErrors {
	var errors ValidationErrors
	g := &c.Generation

	if g.BatchSize <= 0 {
		errors = append(errors, ValidationError{Field: "generation.batch_size", Message: "batch_size must be positive"})
	}
	if g.BloomInitialCapacity == 0 {
		errors = append(errors, ValidationError{Field: "generation.bloom_initial_capacity", Message: "bloom_initial_capacity must be positive"})
	}
	if g.BloomErrorRate <= 0 || g.BloomErrorRate >= 1 {
		errors = append(errors, ValidationError{Field: "generation.bloom_error_rate", Message: "bloom_error_rate must be between 0 and 1"})
	}
	if g.MaxUniqueTries <= 0 {
		errors = append(errors, ValidationError{Field: "generation.max_unique_tries", Message: "max_unique_tries must be positive"})
	}
	if g.ProgressIntervalSecs < 0 {
		errors = append(errors, ValidationError{Field: "generation.progress_interval_seconds", Message: "progress_interval_seconds cannot be negative"})
	}

	return errors
}

func (c *Config) validateSafety() ValidationErrors {
	var errors ValidationErrors

	if c.Safety.AdvisoryLockTimeout < 0 {
		errors = append(errors, ValidationError{Field: "safety.advisory_lock_timeout_seconds", Message: "advisory_lock_timeout_seconds cannot be negative"})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{Field: "logging.level", Message: "level must be 'debug', 'info', 'warn', or 'error'"})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{Field: "logging.format", Message: "format must be 'json' or 'text'"})
	}

	return errors
}
