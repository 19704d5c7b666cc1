package monitoring

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/NERVsystems/osmnodes/pkg/version"
)

// Health states
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Connection states
const (
	ConnConnected = "connected"
	ConnError     = "error"
)

// ServiceHealth is the body served by the health endpoint
type ServiceHealth struct {
	Service       string                `json:"service"`
	Version       string                `json:"version"`
	Status        string                `json:"status"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	StartTime     time.Time             `json:"start_time"`
	Connections   map[string]ConnStatus `json:"connections"`
	Metrics       map[string]any        `json:"metrics,omitempty"`
}

// ConnStatus is the last known state of an upstream dependency
type ConnStatus struct {
	Status    string    `json:"status"`
	Latency   int64     `json:"latency_ms,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// HealthChecker tracks upstream connections and reports service health
type HealthChecker struct {
	serviceName string
	version     string
	startTime   time.Time

	mu          sync.RWMutex
	connections map[string]ConnStatus
}

// NewHealthChecker creates a health checker and publishes the build info
// gauge.
func NewHealthChecker(serviceName, ver string) *HealthChecker {
	info := version.Info()
	SystemInfo.WithLabelValues(info["version"], info["go_version"], info["commit"], info["build_date"]).Set(1)

	return &HealthChecker{
		serviceName: serviceName,
		version:     ver,
		startTime:   time.Now(),
		connections: make(map[string]ConnStatus),
	}
}

// UpdateConnection records the outcome of a check against an upstream
func (h *HealthChecker) UpdateConnection(name string, latency time.Duration, err error) {
	st := ConnStatus{
		Status:    ConnConnected,
		Latency:   latency.Milliseconds(),
		CheckedAt: time.Now(),
	}
	if err != nil {
		st.Status = ConnError
		st.LastError = err.Error()
	}

	h.mu.Lock()
	h.connections[name] = st
	h.mu.Unlock()
}

// GetHealth returns the current health. Any upstream in error makes the
// service degraded; all of them in error makes it unhealthy.
func (h *HealthChecker) GetHealth() ServiceHealth {
	h.mu.RLock()
	connections := make(map[string]ConnStatus, len(h.connections))
	errorCount := 0
	for k, v := range h.connections {
		connections[k] = v
		if v.Status == ConnError {
			errorCount++
		}
	}
	h.mu.RUnlock()

	status := StatusHealthy
	switch {
	case errorCount > 0 && errorCount == len(connections):
		status = StatusUnhealthy
	case errorCount > 0:
		status = StatusDegraded
	}

	return ServiceHealth{
		Service:       h.serviceName,
		Version:       h.version,
		Status:        status,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		StartTime:     h.startTime,
		Connections:   connections,
		Metrics: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"cpu_count":  runtime.NumCPU(),
		},
	}
}

// HealthHandler serves GetHealth as JSON. Unhealthy answers 503.
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.GetHealth()

		w.Header().Set("Content-Type", "application/json")
		if health.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			slog.Default().Error("failed to encode health response", "error", err)
		}
	}
}

// ConnectionMonitor periodically checks one upstream and feeds the result
// into a HealthChecker.
type ConnectionMonitor struct {
	name     string
	checker  *HealthChecker
	check    func(context.Context) error
	interval time.Duration
	timeout  time.Duration
}

// NewConnectionMonitor creates a monitor. Each check gets its own timeout,
// bounded by the interval.
func NewConnectionMonitor(name string, hc *HealthChecker, check func(context.Context) error, interval time.Duration) *ConnectionMonitor {
	return &ConnectionMonitor{
		name:     name,
		checker:  hc,
		check:    check,
		interval: interval,
		timeout:  interval,
	}
}

// Run checks immediately and then on every tick until ctx is done.
func (cm *ConnectionMonitor) Run(ctx context.Context) {
	cm.CheckNow(ctx)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cm.CheckNow(ctx)
		}
	}
}

// CheckNow runs one check and records it
func (cm *ConnectionMonitor) CheckNow(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	start := time.Now()
	err := cm.check(ctx)
	cm.checker.UpdateConnection(cm.name, time.Since(start), err)
	if err != nil {
		RecordError("health", cm.name)
	}
}
