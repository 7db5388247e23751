// Package sink implements the metric backends a sample is exported to.
//
// Sinks are a closed set: the InfluxDB line-protocol writer and the
// Prometheus push-gateway writer. Each performs exactly one best-effort
// delivery per sample and never retries; retry policy belongs to the poll
// scheduler. Failure domains are independent per sink.
package sink

import (
	"context"

	"github.com/modmetrics/modmetrics/internal/sample"
)

// Sink delivers one sample to one metrics backend. Export must be safe for
// concurrent use with other sinks on the same (read-only) sample and must
// honor ctx for its delivery timeout.
type Sink interface {
	Export(ctx context.Context, s *sample.Sample) error
	Name() string
}
