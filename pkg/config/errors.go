package config

import (
	"errors"
	"fmt"
)

// ConfigError is the base interface for all config errors.
// Allows callers to use errors.As to get config-specific details.
type ConfigError interface {
	error
	ConfigError() // marker method
}

// ParseError indicates the config blob could not be parsed.
type ParseError struct {
	Filename string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Filename, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) ConfigError() {}

// SchemaError indicates the config structure doesn't match the schema.
// For example, wrong type for a field.
type SchemaError struct {
	Field   string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %q: %s", e.Field, e.Message)
}

func (e *SchemaError) ConfigError() {}

// ValidationError indicates a semantic validation failure.
// The config parses correctly but values are invalid.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) ConfigError() {}

// ValidationResult holds all errors from validation.
type ValidationResult struct {
	Errors []error
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Err returns a combined error if there are any validation errors, nil otherwise.
func (r *ValidationResult) Err() error {
	if !r.HasErrors() {
		return nil
	}
	return errors.Join(r.Errors...)
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(err error) {
	r.Errors = append(r.Errors, err)
}

// NewValidationResult creates an empty ValidationResult.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Errors: []error{},
	}
}
