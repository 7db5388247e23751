package sink

import (
	"context"
	goerrors "errors"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"
	influxhttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/modmetrics/modmetrics/internal/errors"
	"github.com/modmetrics/modmetrics/internal/sample"
)

// InfluxSink writes samples to an InfluxDB v2 bucket. Every decoded value
// becomes one line-protocol point (measurement = register name, field
// "value", tags "unit" and "source") and the whole sample is submitted as a
// single write request.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI influxapi.WriteAPIBlocking
	endpoint string
}

// InfluxOptions configures the InfluxDB sink.
type InfluxOptions struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewInfluxSink creates an InfluxDB sink. The connection is lazy; the first
// failed write surfaces as a *errors.SinkError, not here.
func NewInfluxSink(opts InfluxOptions) *InfluxSink {
	client := influxdb2.NewClient(opts.URL, opts.Token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(opts.Org, opts.Bucket),
		endpoint: opts.URL,
	}
}

// Name identifies the sink in logs and self-metrics.
func (s *InfluxSink) Name() string {
	return "influxdb"
}

// Export delivers the sample in one write request. Any non-2xx response or
// transport failure is classified as a delivery failure; the sink never
// retries.
func (s *InfluxSink) Export(ctx context.Context, smp *sample.Sample) error {
	if smp.Len() == 0 {
		return nil
	}

	points := make([]*write.Point, 0, smp.Len())
	for _, v := range smp.Values {
		tags := map[string]string{"source": smp.Source}
		if v.Unit != "" {
			tags["unit"] = v.Unit.String()
		}
		points = append(points, influxdb2.NewPoint(
			v.Name.String(),
			tags,
			map[string]interface{}{"value": v.Value},
			smp.Timestamp,
		))
	}

	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		sinkErr := &errors.SinkError{Sink: s.Name(), Endpoint: s.endpoint, Underlying: err}
		var httpErr *influxhttp.Error
		if goerrors.As(err, &httpErr) {
			sinkErr.StatusCode = httpErr.StatusCode
		}
		return sinkErr
	}
	return nil
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
