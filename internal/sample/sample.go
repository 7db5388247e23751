// Package sample defines the batch of decoded values produced by one poll
// cycle. A sample is owned by the cycle that created it and handed to sinks
// by reference; it is never mutated after assembly.
package sample

import (
	"time"

	"github.com/modmetrics/modmetrics/internal/types"
)

// DecodedValue is one register's physical value from one poll cycle.
type DecodedValue struct {
	Name      types.RegisterName
	Value     float64
	Unit      types.Unit
	Timestamp time.Time
}

// Sample is one poll cycle's batch of decoded values, tagged with the cycle
// timestamp and the identity of the source device.
type Sample struct {
	Timestamp time.Time
	Source    string
	Values    []DecodedValue
}

// Assemble constructs a sample from the values decoded in one cycle. The
// value set may be a strict subset of the schema: registers whose range
// failed to read are simply absent. Assemble never fails.
func Assemble(timestamp time.Time, source string, values []DecodedValue) *Sample {
	vs := make([]DecodedValue, len(values))
	copy(vs, values)
	return &Sample{
		Timestamp: timestamp,
		Source:    source,
		Values:    vs,
	}
}

// Len returns the number of decoded values in the sample.
func (s *Sample) Len() int {
	return len(s.Values)
}
