// Package errors provides error types and handling utilities for modmetrics.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Error constants for common validation errors
var (
	ErrUnknownDataType = errors.New("unknown data type")
	ErrDuplicateName   = errors.New("duplicate register name")
	ErrAddressOverlap  = errors.New("overlapping register addresses")
	ErrNegativeAddress = errors.New("negative register address")
	ErrEmptyName       = errors.New("register name cannot be empty")
)

// SchemaError represents a register schema that failed to load or validate.
// Schema errors are fatal at startup: the process must not begin polling
// with a partially valid schema.
type SchemaError struct {
	Document   string
	Register   string
	Underlying error
}

func (e SchemaError) Error() string {
	if e.Register != "" {
		return fmt.Sprintf("schema %s: register %q: %v", e.Document, e.Register, e.Underlying)
	}
	return fmt.Sprintf("schema %s: %v", e.Document, e.Underlying)
}

func (e SchemaError) Unwrap() error {
	return e.Underlying
}

// DecodeError represents a failure to decode raw register words into a
// physical value. The affected register is dropped from the sample and the
// poll cycle continues.
type DecodeError struct {
	Register string
	Want     int
	Got      int
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("decode %s: length mismatch: want %d words, got %d", e.Register, e.Want, e.Got)
}

// ReadError represents a failed or timed-out read of one register range.
// The affected registers are dropped from the sample; other ranges proceed.
type ReadError struct {
	Kind       string
	Start      uint16
	Count      uint16
	Underlying error
	Timestamp  time.Time
}

func (e ReadError) Error() string {
	return fmt.Sprintf("read %s registers [%d,%d): %v", e.Kind, e.Start, uint32(e.Start)+uint32(e.Count), e.Underlying)
}

func (e ReadError) Unwrap() error {
	return e.Underlying
}

// SinkError represents a failed delivery attempt to one metrics backend for
// one sample. It is scoped to a single sink and a single cycle.
type SinkError struct {
	Sink       string
	Endpoint   string
	StatusCode int
	Underlying error
}

func (e SinkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sink %s: delivery failed (status %d): %v", e.Sink, e.StatusCode, e.Underlying)
	}
	return fmt.Sprintf("sink %s: delivery failed: %v", e.Sink, e.Underlying)
}

func (e SinkError) Unwrap() error {
	return e.Underlying
}

// ConfigurationError represents an error in configuration validation.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in field %s (value: %s): %s", e.Field, e.Value, e.Reason)
}
