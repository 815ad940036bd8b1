// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	// ErrConfigInvalid marks a malformed or self-contradictory strategy
	// configuration. Fatal: the run aborts before any snapshot is processed.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrCapacityExceeded marks an entry attempt beyond the configured
	// maximum concurrent positions. Local and recovered.
	ErrCapacityExceeded = errors.New("position capacity exceeded")

	// ErrUnknownPosition marks an exit attempt on a position id that is not
	// open. Local and recovered.
	ErrUnknownPosition = errors.New("unknown position")

	// ErrNoSnapshots marks a source that produced no data.
	ErrNoSnapshots = errors.New("snapshot source is empty")
)

// ConfigError represents a configuration validation failure.
type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap makes every ConfigError match ErrConfigInvalid.
func (e *ConfigError) Unwrap() error {
	return ErrConfigInvalid
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataQualityError represents a non-fatal data problem: zero or negative
// premium, missing Greeks, a gap in the series. The affected contract or
// snapshot is skipped and the run continues.
type DataQualityError struct {
	Kind    string
	Detail  string
	Message string
}

func (e *DataQualityError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("data quality [%s] %s: %s", e.Kind, e.Detail, e.Message)
	}
	return fmt.Sprintf("data quality [%s]: %s", e.Kind, e.Message)
}

// NewDataQualityError creates a new DataQualityError.
func NewDataQualityError(kind, detail, message string) *DataQualityError {
	return &DataQualityError{
		Kind:    kind,
		Detail:  detail,
		Message: message,
	}
}

// IOError represents an irrecoverable input/output failure: the snapshot
// source cannot be read or a required artifact cannot be written. Fatal.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error [%s] %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError.
func NewIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
