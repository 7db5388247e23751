// Package server provides the operational HTTP surface for modmetrics:
// process self-metrics, health probes and a debug snapshot.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/modmetrics/modmetrics/internal/health"
)

var (
	version       = "dev"
	buildTime     = "unknown"
	startTime     = time.Now()
	healthChecker *health.HealthChecker
	pipeline      PipelineStatus
)

// PipelineStatus lets handlers report the poll scheduler's state without
// owning it.
type PipelineStatus interface {
	StateName() string
	LastSuccess() time.Time
}

// SetVersion sets the global version and build time for handlers.
func SetVersion(v string, bt string) {
	version = v
	buildTime = bt
}

// SetHealthChecker sets the global health checker for handlers.
func SetHealthChecker(hc *health.HealthChecker) {
	healthChecker = hc
}

// SetPipeline sets the pipeline whose state the handlers report.
func SetPipeline(p PipelineStatus) {
	pipeline = p
}

// DebugHandler reports process internals for troubleshooting.
func DebugHandler(w http.ResponseWriter, _ *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := map[string]interface{}{
		"version":        version,
		"build_time":     buildTime,
		"timestamp":      time.Now().Unix(),
		"uptime_seconds": int64(time.Since(startTime).Seconds()),
		"memory_mb":      bToMb(m.Alloc),
		"goroutines":     runtime.NumGoroutine(),
	}
	if pipeline != nil {
		status["poller_state"] = pipeline.StateName()
		if last := pipeline.LastSuccess(); !last.IsZero() {
			status["last_successful_cycle"] = last.Unix()
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// LivenessHandler implements the kubernetes liveness probe.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if healthChecker == nil {
		http.Error(w, "health checker not initialized", http.StatusServiceUnavailable)
		return
	}
	if err := healthChecker.LivenessCheck(r.Context()); err != nil {
		slog.Warn("liveness check failed", "error", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler implements the kubernetes readiness probe.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if healthChecker == nil {
		http.Error(w, "health checker not initialized", http.StatusServiceUnavailable)
		return
	}
	if err := healthChecker.ReadinessCheck(r.Context()); err != nil {
		slog.Warn("readiness check failed", "error", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// StartupHandler implements the kubernetes startup probe.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	if healthChecker == nil {
		http.Error(w, "health checker not initialized", http.StatusServiceUnavailable)
		return
	}
	if err := healthChecker.StartupCheck(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("started"))
}

// DetailedHealthHandler reports the per-component health status as JSON.
func DetailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	if healthChecker == nil {
		http.Error(w, "health checker not initialized", http.StatusServiceUnavailable)
		return
	}

	status := healthChecker.GetHealthStatus(r.Context())
	code := http.StatusOK
	if status.Overall == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
