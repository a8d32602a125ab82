package observability

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ComponentStatus is one component's probe verdict.
type ComponentStatus string

const (
	StatusHealthy   ComponentStatus = "healthy"
	StatusUnhealthy ComponentStatus = "unhealthy"
	StatusUnknown   ComponentStatus = "unknown"
)

// Component names registered by the pipeline and the serve mode.
const (
	ComponentConfig    = "config"
	ComponentStore     = "dedup-store"
	ComponentWhitelist = "whitelist"
	ComponentModel     = "model-endpoint"
	ComponentNotifier  = "notifier"
	ComponentAPI       = "api"
)

// ComponentHealth is the last recorded verdict for one component.
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LastCheck time.Time       `json:"last_check"`
}

// HealthStatus is the aggregate the probe endpoints serve. The overall
// status is healthy only when every registered component is; an unknown
// component (registered but never probed) counts against readiness.
type HealthStatus struct {
	Status     ComponentStatus            `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// HealthCheckFunc probes one component. A nil return marks it healthy.
type HealthCheckFunc func(ctx context.Context) error

// HealthChecker tracks per-component health for the probe endpoints.
// Components are registered once at startup; verdicts are updated from
// wherever the component is touched.
type HealthChecker struct {
	mu       sync.RWMutex
	verdicts map[string]ComponentHealth
	logger   *slog.Logger
}

// NewHealthChecker creates a checker with no components registered.
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthChecker{
		verdicts: make(map[string]ComponentHealth),
		logger:   logger,
	}
}

// RegisterComponent adds a component in the unknown state. The probes
// report unhealthy until something records a real verdict for it.
func (h *HealthChecker) RegisterComponent(name string) {
	h.record(name, StatusUnknown, "")
}

// UpdateComponentHealth records a verdict for a component.
func (h *HealthChecker) UpdateComponentHealth(name string, status ComponentStatus, message string) {
	h.record(name, status, message)
}

func (h *HealthChecker) record(name string, status ComponentStatus, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.verdicts[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		LastCheck: time.Now(),
	}
}

// GetHealth snapshots every component and aggregates the overall status.
func (h *HealthChecker) GetHealth() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snapshot := HealthStatus{
		Status:     StatusHealthy,
		Components: make(map[string]ComponentHealth, len(h.verdicts)),
		Timestamp:  time.Now(),
	}
	for name, verdict := range h.verdicts {
		snapshot.Components[name] = verdict
		if verdict.Status != StatusHealthy {
			snapshot.Status = StatusUnhealthy
		}
	}
	return snapshot
}

// CheckComponent runs one probe and records its verdict.
func (h *HealthChecker) CheckComponent(ctx context.Context, name string, probe HealthCheckFunc) {
	if err := probe(ctx); err != nil {
		h.record(name, StatusUnhealthy, err.Error())
		h.logger.Warn("component health check failed",
			"component", name,
			"error", err.Error())
		return
	}
	h.record(name, StatusHealthy, "")
}

// StartPeriodicChecks probes every entry in checks at the given interval
// until the context is cancelled. The first round runs immediately so the
// probes answer before the first tick.
func (h *HealthChecker) StartPeriodicChecks(ctx context.Context, interval time.Duration, checks map[string]HealthCheckFunc) {
	h.checkAll(ctx, checks)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.checkAll(ctx, checks)
		}
	}
}

func (h *HealthChecker) checkAll(ctx context.Context, checks map[string]HealthCheckFunc) {
	for name, probe := range checks {
		h.CheckComponent(ctx, name, probe)
	}
}

// HealthHandler serves the full per-component breakdown, 503 when any
// component is not healthy.
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := h.GetHealth()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode(snapshot))
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			h.logger.Error("failed to encode health response",
				"error", err.Error())
		}
	}
}

// ReadyHandler serves the terse readiness probe for orchestrators that only
// want a yes or no.
func (h *HealthChecker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := h.GetHealth()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode(snapshot))
		if snapshot.Status == StatusHealthy {
			_, _ = w.Write([]byte(`{"status":"ready"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"not_ready"}`))
	}
}

func statusCode(snapshot HealthStatus) int {
	if snapshot.Status == StatusHealthy {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
