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
// ConfigInvalid errors abort before any DB work is attempted.
func (c *Config) Validate() error {
	var errors ValidationErrors

	if c.DBURI == "" {
		if err := c.validateDatabase(&c.Source); err != nil {
			errors = append(errors, err...)
		}
	}

	if len(c.Tables) == 0 {
		errors = append(errors, ValidationError{
			Field:   "tables",
			Message: "at least one table must be configured",
		})
	}
	for i, t := range c.Tables {
		if err := c.validateTable(i, &t); err != nil {
			errors = append(errors, err...)
		}
	}

	if err := c.validateLogging(); err != nil {
		errors = append(errors, err...)
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateDatabase(db *DatabaseConfig) ValidationErrors {
	var errors ValidationErrors

	if db.Host == "" {
		errors = append(errors, ValidationError{Field: "source.host", Message: "host is required when db_uri is not set"})
	}
	if db.Port <= 0 || db.Port > 65535 {
		errors = append(errors, ValidationError{Field: "source.port", Message: "port must be between 1 and 65535"})
	}
	if db.User == "" {
		errors = append(errors, ValidationError{Field: "source.user", Message: "user is required"})
	}
	if db.Database == "" {
		errors = append(errors, ValidationError{Field: "source.database", Message: "database name is required"})
	}

	validSSL := map[string]bool{"disable": true, "prefer": true, "require": true, "": true}
	if !validSSL[db.SSLMode] {
		errors = append(errors, ValidationError{Field: "source.sslmode", Message: "sslmode must be 'disable', 'prefer', or 'require'"})
	}
	if db.MaxConnections < 0 {
		errors = append(errors, ValidationError{Field: "source.max_connections", Message: "max_connections cannot be negative"})
	}
	if db.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{Field: "source.max_idle_connections", Message: "max_idle_connections cannot be negative"})
	}

	return errors
}

func (c *Config) validateTable(i int, t *TableRetention) ValidationErrors {
	var errors ValidationErrors
	prefix := fmt.Sprintf("tables[%d]", i)

	if t.Name == "" {
		errors = append(errors, ValidationError{Field: prefix + ".name", Message: "name is required"})
	}
	if len(t.KeyColumns) == 0 {
		errors = append(errors, ValidationError{Field: prefix + ".key_columns", Message: "at least one key column is required"})
	}
	if t.DateColumn == "" && !t.DisableCutoff {
		errors = append(errors, ValidationError{Field: prefix + ".date_column", Message: "date_column is required unless disable_cutoff is set"})
	}
	if t.BatchSize <= 0 {
		errors = append(errors, ValidationError{Field: prefix + ".batch_size", Message: "batch_size must be positive"})
	}
	if t.TimeOut < 0 {
		errors = append(errors, ValidationError{Field: prefix + ".time_out", Message: "time_out cannot be negative"})
	}

	for j, cond := range t.Conditions {
		if !cond.ValidOp() {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("%s.conditions[%d].op", prefix, j),
				Message: fmt.Sprintf("unrecognized operator %q", cond.Op),
			})
		}
	}

	for j, rel := range t.Related {
		relPrefix := fmt.Sprintf("%s.related[%d]", prefix, j)
		if err := c.validateRelation(relPrefix, &rel); err != nil {
			errors = append(errors, err...)
		}
	}

	return errors
}

func (c *Config) validateRelation(prefix string, rel *ManualRelation) ValidationErrors {
	var errors ValidationErrors

	if rel.Name == "" {
		errors = append(errors, ValidationError{Field: prefix + ".name", Message: "name is required"})
	}
	if len(rel.Mapping.ParentColumns) == 0 || len(rel.Mapping.ChildColumns) == 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".mapping",
			Message: "parent_columns and child_columns must each have at least one entry",
		})
	} else if len(rel.Mapping.ParentColumns) != len(rel.Mapping.ChildColumns) {
		errors = append(errors, ValidationError{
			Field:   prefix + ".mapping",
			Message: "parent_columns and child_columns must be the same length",
		})
	}

	for j, cond := range rel.Conditions {
		if !cond.ValidOp() {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("%s.conditions[%d].op", prefix, j),
				Message: fmt.Sprintf("unrecognized operator %q", cond.Op),
			})
		}
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
