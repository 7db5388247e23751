package sink

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	modErrors "github.com/modmetrics/modmetrics/internal/errors"
	"github.com/modmetrics/modmetrics/internal/sample"
)

type influxRecorder struct {
	mu     sync.Mutex
	bodies []string
	paths  []string
	auth   []string
}

func newInfluxBackend(t *testing.T, status int) (*httptest.Server, *influxRecorder) {
	t.Helper()
	rec := &influxRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.bodies = append(rec.bodies, string(body))
		rec.paths = append(rec.paths, r.URL.Path)
		rec.auth = append(rec.auth, r.Header.Get("Authorization"))
		rec.mu.Unlock()

		if status >= 400 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"code":"internal error","message":"boom"}`))
			return
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func testSample() *sample.Sample {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return sample.Assemble(ts, "10.0.0.7", []sample.DecodedValue{
		{Name: "temp", Value: 10.0, Unit: "degC", Timestamp: ts},
		{Name: "flow", Value: 25.0, Unit: "l/min", Timestamp: ts},
		{Name: "raw_counter", Value: 42, Timestamp: ts},
	})
}

func TestInfluxExportWritesLineProtocol(t *testing.T) {
	srv, rec := newInfluxBackend(t, http.StatusNoContent)

	s := NewInfluxSink(InfluxOptions{URL: srv.URL, Token: "secret", Org: "plant", Bucket: "telemetry"})
	defer s.Close()

	if err := s.Export(context.Background(), testSample()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.bodies) != 1 {
		t.Fatalf("Expected a single write request per sample, got %d", len(rec.bodies))
	}
	if !strings.Contains(rec.paths[0], "/api/v2/write") {
		t.Errorf("Expected v2 write endpoint, got %s", rec.paths[0])
	}
	if rec.auth[0] != "Token secret" {
		t.Errorf("Expected bearer token auth, got %q", rec.auth[0])
	}

	body := rec.bodies[0]
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 points, got %d: %q", len(lines), body)
	}
	if !strings.Contains(body, "temp,") || !strings.Contains(body, "unit=degC") {
		t.Errorf("Expected temp point tagged with unit, got %q", body)
	}
	if !strings.Contains(body, "source=10.0.0.7") {
		t.Errorf("Expected source tag, got %q", body)
	}
	if !strings.Contains(body, "value=25") {
		t.Errorf("Expected flow value field, got %q", body)
	}
	// Untagged unit stays off the line entirely.
	for _, line := range lines {
		if strings.HasPrefix(line, "raw_counter") && strings.Contains(line, "unit=") {
			t.Errorf("Expected no unit tag on raw_counter, got %q", line)
		}
	}
}

func TestInfluxExportServerErrorIsSinkError(t *testing.T) {
	srv, _ := newInfluxBackend(t, http.StatusInternalServerError)

	s := NewInfluxSink(InfluxOptions{URL: srv.URL, Token: "secret", Org: "plant", Bucket: "telemetry"})
	defer s.Close()

	err := s.Export(context.Background(), testSample())
	if err == nil {
		t.Fatal("Expected delivery failure, got nil")
	}
	var sinkErr *modErrors.SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("Expected *SinkError, got %T: %v", err, err)
	}
	if sinkErr.Sink != "influxdb" {
		t.Errorf("Expected sink influxdb, got %s", sinkErr.Sink)
	}
	if sinkErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500 carried on the error, got %d", sinkErr.StatusCode)
	}
}

func TestInfluxExportTransportFailureIsSinkError(t *testing.T) {
	srv, _ := newInfluxBackend(t, http.StatusNoContent)
	srv.Close() // connection refused from here on

	s := NewInfluxSink(InfluxOptions{URL: srv.URL, Token: "secret", Org: "plant", Bucket: "telemetry"})
	defer s.Close()

	err := s.Export(context.Background(), testSample())
	if err == nil {
		t.Fatal("Expected delivery failure, got nil")
	}
	var sinkErr *modErrors.SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("Expected *SinkError, got %T: %v", err, err)
	}
}

func TestInfluxExportTwiceIsTwoDeliveries(t *testing.T) {
	srv, rec := newInfluxBackend(t, http.StatusNoContent)

	s := NewInfluxSink(InfluxOptions{URL: srv.URL, Token: "secret", Org: "plant", Bucket: "telemetry"})
	defer s.Close()

	smp := testSample()
	if err := s.Export(context.Background(), smp); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := s.Export(context.Background(), smp); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.bodies) != 2 {
		t.Errorf("Expected two independent delivery attempts, got %d", len(rec.bodies))
	}
}

func TestInfluxExportEmptySampleIsNoop(t *testing.T) {
	srv, rec := newInfluxBackend(t, http.StatusNoContent)

	s := NewInfluxSink(InfluxOptions{URL: srv.URL, Token: "secret", Org: "plant", Bucket: "telemetry"})
	defer s.Close()

	empty := sample.Assemble(time.Now(), "device", nil)
	if err := s.Export(context.Background(), empty); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.bodies) != 0 {
		t.Errorf("Expected no write for an empty sample, got %d", len(rec.bodies))
	}
}
