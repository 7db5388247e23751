// Package health provides health checking for modmetrics components.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult represents the result of a health check for one component.
type CheckResult struct {
	Component   string        `json:"component"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
	Timestamp   time.Time     `json:"timestamp"`
	LastSuccess *time.Time    `json:"last_success,omitempty"`
}

// HealthStatus represents the overall status and the individual checks.
type HealthStatus struct {
	Overall Status                 `json:"overall"`
	Checks  map[string]CheckResult `json:"checks"`
}

// ComponentChecker is implemented by components that can report their own
// health (the poller, sinks).
type ComponentChecker interface {
	CheckHealth(ctx context.Context) error
	ComponentName() string
}

// HealthChecker manages health checks for multiple components.
type HealthChecker struct {
	components  map[string]ComponentChecker
	mu          sync.RWMutex
	lastChecks  map[string]CheckResult
	startupTime time.Time
}

// NewHealthChecker creates a new health checker instance.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		components:  make(map[string]ComponentChecker),
		lastChecks:  make(map[string]CheckResult),
		startupTime: time.Now(),
	}
}

// RegisterComponent adds a component to readiness and health reporting.
func (hc *HealthChecker) RegisterComponent(checker ComponentChecker) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.components[checker.ComponentName()] = checker
}

// LivenessCheck verifies the process is responsive. It has no external
// dependencies.
func (hc *HealthChecker) LivenessCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// ReadinessCheck verifies every registered component is healthy.
func (hc *HealthChecker) ReadinessCheck(ctx context.Context) error {
	components := hc.snapshot()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for name, component := range components {
		if err := component.CheckHealth(ctx); err != nil {
			return fmt.Errorf("component %s not ready: %w", name, err)
		}
	}
	return nil
}

// StartupCheck allows extra time for the first poll cycles before readiness
// semantics apply.
func (hc *HealthChecker) StartupCheck(ctx context.Context) error {
	if time.Since(hc.startupTime) < 30*time.Second {
		return hc.LivenessCheck(ctx)
	}
	return hc.ReadinessCheck(ctx)
}

// GetHealthStatus runs every component check and reports the aggregate.
func (hc *HealthChecker) GetHealthStatus(ctx context.Context) HealthStatus {
	components := hc.snapshot()

	results := make(map[string]CheckResult)
	overallHealthy := true
	degraded := false

	for name, component := range components {
		start := time.Now()
		err := component.CheckHealth(ctx)
		duration := time.Since(start)

		var status Status
		var message string
		var lastSuccess *time.Time

		if err != nil {
			status = StatusUnhealthy
			message = err.Error()
			overallHealthy = false

			hc.mu.RLock()
			if prev, exists := hc.lastChecks[name]; exists && prev.Status == StatusHealthy {
				lastSuccess = &prev.Timestamp
			}
			hc.mu.RUnlock()
		} else {
			status = StatusHealthy
			now := time.Now()
			lastSuccess = &now
		}

		if duration > 5*time.Second {
			degraded = true
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}

		results[name] = CheckResult{
			Component:   name,
			Status:      status,
			Message:     message,
			Duration:    duration,
			Timestamp:   time.Now(),
			LastSuccess: lastSuccess,
		}
	}

	hc.mu.Lock()
	for name, result := range results {
		hc.lastChecks[name] = result
	}
	hc.mu.Unlock()

	overall := StatusHealthy
	if !overallHealthy {
		overall = StatusUnhealthy
	} else if degraded {
		overall = StatusDegraded
	}

	return HealthStatus{Overall: overall, Checks: results}
}

func (hc *HealthChecker) snapshot() map[string]ComponentChecker {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	components := make(map[string]ComponentChecker, len(hc.components))
	for name, comp := range hc.components {
		components[name] = comp
	}
	return components
}
