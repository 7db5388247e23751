package sink

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"

	"github.com/modmetrics/modmetrics/internal/errors"
	"github.com/modmetrics/modmetrics/internal/sample"
)

// PushSink renders a sample as Prometheus exposition data and pushes it to a
// push gateway under the configured job. Every decoded value becomes one
// gauge whose name is the sanitized register name, with "unit" and "source"
// as const labels.
type PushSink struct {
	endpoint string
	job      string
	client   *http.Client
}

// PushOptions configures the Prometheus push sink.
type PushOptions struct {
	URL string
	Job string
	// Timeout bounds each push; 10s if unset.
	Timeout time.Duration
}

// NewPushSink creates a push-gateway sink.
func NewPushSink(opts PushOptions) *PushSink {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PushSink{
		endpoint: opts.URL,
		job:      opts.Job,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name identifies the sink in logs and self-metrics.
func (s *PushSink) Name() string {
	return "prometheus"
}

// Export performs a single push of the whole sample. Each export builds a
// fresh registry, so repeated exports of one sample are independent
// delivery attempts.
func (s *PushSink) Export(ctx context.Context, smp *sample.Sample) error {
	if smp.Len() == 0 {
		return nil
	}

	registry := prometheus.NewRegistry()
	for _, v := range smp.Values {
		labels := prometheus.Labels{"source": smp.Source}
		if v.Unit != "" {
			labels["unit"] = v.Unit.String()
		}
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        v.Name.Sanitize().String(),
			Help:        "Decoded register value",
			ConstLabels: labels,
		})
		gauge.Set(v.Value)
		if err := registry.Register(gauge); err != nil {
			// Two register names can sanitize to the same metric name;
			// the first one wins and the collision is logged.
			slog.Warn("skipping register with colliding metric name",
				"register", v.Name.String(), "metric", v.Name.Sanitize().String(), "error", err)
		}
	}

	pusher := push.New(s.endpoint, s.job).
		Gatherer(registry).
		Grouping("source", groupingValue(smp.Source)).
		Format(expfmt.NewFormat(expfmt.TypeTextPlain)).
		Client(s.client)

	if err := pusher.PushContext(ctx); err != nil {
		return &errors.SinkError{Sink: s.Name(), Endpoint: s.endpoint, Underlying: err}
	}
	return nil
}

// groupingValue keeps the grouping label usable when the source is empty.
func groupingValue(source string) string {
	if source == "" {
		return "unknown"
	}
	return source
}
