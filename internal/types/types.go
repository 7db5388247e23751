// Package types provides core domain types and validation utilities for
// modmetrics. It defines fundamental types like RegisterName and MetricName
// along with their validation logic.
package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// RegisterName identifies one register definition in the schema. It doubles
// as the metric/measurement name on export.
type RegisterName string

// MetricName represents a Prometheus metric name.
type MetricName string

// Unit is a free-text engineering unit annotation. It is passed through to
// sinks as a tag and never interpreted.
type Unit string

var (
	// ErrInvalidRegisterName is returned when a register name is invalid.
	ErrInvalidRegisterName = errors.New("invalid register name")
	// ErrInvalidMetricName is returned when a metric name is invalid.
	ErrInvalidMetricName = errors.New("invalid metric name")

	registerNameRegex = regexp.MustCompile(`^[a-zA-Z0-9\-._ ]+$`)
	metricNameRegex   = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	invalidMetricChar = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

// NewRegisterName creates a new RegisterName with validation.
func NewRegisterName(name string) (RegisterName, error) {
	if name == "" {
		return "", fmt.Errorf("register name cannot be empty")
	}
	if len(name) > 253 {
		return "", fmt.Errorf("register name too long: %d characters", len(name))
	}
	if !registerNameRegex.MatchString(name) {
		return "", fmt.Errorf("invalid register name format: %s", name)
	}
	return RegisterName(name), nil
}

// IsValid checks if the RegisterName meets validation requirements.
func (r RegisterName) IsValid() bool {
	return len(r) > 0 && len(r) <= 253 && registerNameRegex.MatchString(string(r))
}

func (r RegisterName) String() string {
	return string(r)
}

// Sanitize converts a register name into a valid Prometheus metric name:
// invalid characters become underscores and a leading digit gets an
// underscore prefix.
func (r RegisterName) Sanitize() MetricName {
	sanitized := invalidMetricChar.ReplaceAllString(string(r), "_")
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "_"
	}
	if sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "_" + sanitized
	}
	return MetricName(sanitized)
}

// NewMetricName creates a new MetricName with validation.
func NewMetricName(name string) (MetricName, error) {
	if name == "" {
		return "", fmt.Errorf("metric name cannot be empty")
	}
	if !metricNameRegex.MatchString(name) {
		return "", fmt.Errorf("invalid metric name format: %s", name)
	}
	return MetricName(name), nil
}

// IsValid checks if the MetricName meets validation requirements.
func (m MetricName) IsValid() bool {
	return len(m) > 0 && metricNameRegex.MatchString(string(m))
}

func (m MetricName) String() string {
	return string(m)
}

func (u Unit) String() string {
	return string(u)
}
