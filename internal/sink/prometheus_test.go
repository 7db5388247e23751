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

type pushRecorder struct {
	mu      sync.Mutex
	bodies  []string
	paths   []string
	methods []string
}

func newPushBackend(t *testing.T, status int) (*httptest.Server, *pushRecorder) {
	t.Helper()
	rec := &pushRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.bodies = append(rec.bodies, string(body))
		rec.paths = append(rec.paths, r.URL.Path)
		rec.methods = append(rec.methods, r.Method)
		rec.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestPushExportRendersGauges(t *testing.T) {
	srv, rec := newPushBackend(t, http.StatusOK)

	s := NewPushSink(PushOptions{URL: srv.URL, Job: "electrolyzer"})

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	smp := sample.Assemble(ts, "10.0.0.7", []sample.DecodedValue{
		{Name: "stack temp", Value: 10.0, Unit: "degC", Timestamp: ts},
		{Name: "flow", Value: 25.0, Unit: "l/min", Timestamp: ts},
	})

	if err := s.Export(context.Background(), smp); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.bodies) != 1 {
		t.Fatalf("Expected a single push per sample, got %d", len(rec.bodies))
	}
	if rec.methods[0] != http.MethodPut {
		t.Errorf("Expected a single PUT push, got %s", rec.methods[0])
	}
	if !strings.Contains(rec.paths[0], "/metrics/job/electrolyzer") {
		t.Errorf("Expected push under the configured job, got %s", rec.paths[0])
	}
	if !strings.Contains(rec.paths[0], "source/10.0.0.7") {
		t.Errorf("Expected source grouping key, got %s", rec.paths[0])
	}

	body := rec.bodies[0]
	if !strings.Contains(body, "stack_temp{") {
		t.Errorf("Expected sanitized metric name stack_temp, got %q", body)
	}
	if !strings.Contains(body, `unit="degC"`) {
		t.Errorf("Expected unit label, got %q", body)
	}
	if !strings.Contains(body, `source="10.0.0.7"`) {
		t.Errorf("Expected source label, got %q", body)
	}
	if !strings.Contains(body, "flow{") || !strings.Contains(body, " 25") {
		t.Errorf("Expected flow gauge with value 25, got %q", body)
	}
}

func TestPushExportServerErrorIsSinkError(t *testing.T) {
	srv, _ := newPushBackend(t, http.StatusInternalServerError)

	s := NewPushSink(PushOptions{URL: srv.URL, Job: "electrolyzer"})

	smp := sample.Assemble(time.Now(), "device", []sample.DecodedValue{{Name: "temp", Value: 1}})

	err := s.Export(context.Background(), smp)
	if err == nil {
		t.Fatal("Expected delivery failure, got nil")
	}
	var sinkErr *modErrors.SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("Expected *SinkError, got %T: %v", err, err)
	}
	if sinkErr.Sink != "prometheus" {
		t.Errorf("Expected sink prometheus, got %s", sinkErr.Sink)
	}
}

func TestPushExportTimeoutIsSinkError(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	s := NewPushSink(PushOptions{URL: srv.URL, Job: "electrolyzer", Timeout: 50 * time.Millisecond})

	smp := sample.Assemble(time.Now(), "device", []sample.DecodedValue{{Name: "temp", Value: 1}})

	err := s.Export(context.Background(), smp)
	if err == nil {
		t.Fatal("Expected a timed-out push to fail like any delivery failure")
	}
	var sinkErr *modErrors.SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("Expected *SinkError, got %T: %v", err, err)
	}
}

func TestPushExportTwiceIsTwoDeliveries(t *testing.T) {
	srv, rec := newPushBackend(t, http.StatusOK)

	s := NewPushSink(PushOptions{URL: srv.URL, Job: "electrolyzer"})

	smp := sample.Assemble(time.Now(), "device", []sample.DecodedValue{{Name: "temp", Value: 1}})
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

func TestPushExportEmptySampleIsNoop(t *testing.T) {
	srv, rec := newPushBackend(t, http.StatusOK)

	s := NewPushSink(PushOptions{URL: srv.URL, Job: "electrolyzer"})

	if err := s.Export(context.Background(), sample.Assemble(time.Now(), "device", nil)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.bodies) != 0 {
		t.Errorf("Expected no push for an empty sample, got %d", len(rec.bodies))
	}
}

func TestPushExportCollidingMetricNamesKeepFirst(t *testing.T) {
	srv, rec := newPushBackend(t, http.StatusOK)

	s := NewPushSink(PushOptions{URL: srv.URL, Job: "electrolyzer"})

	ts := time.Now()
	smp := sample.Assemble(ts, "device", []sample.DecodedValue{
		{Name: "temp 1", Value: 1, Timestamp: ts},
		{Name: "temp-1", Value: 2, Timestamp: ts},
	})

	if err := s.Export(context.Background(), smp); err != nil {
		t.Fatalf("Expected collision to be tolerated, got %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.bodies) != 1 {
		t.Fatalf("Expected one push, got %d", len(rec.bodies))
	}
	if count := strings.Count(rec.bodies[0], "temp_1{"); count != 1 {
		t.Errorf("Expected exactly one temp_1 series, got %d in %q", count, rec.bodies[0])
	}
}
