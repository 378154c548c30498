package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency whose reachability is reported by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler serves the health check endpoint.
type HealthHandler struct {
	components map[string]Pinger
	timeout    time.Duration
}

// NewHealthHandler creates a HealthHandler checking the named components.
// Nil components are skipped.
func NewHealthHandler(components map[string]Pinger) *HealthHandler {
	checked := make(map[string]Pinger, len(components))
	for name, p := range components {
		if p != nil {
			checked[name] = p
		}
	}
	return &HealthHandler{components: checked, timeout: 3 * time.Second}
}

// HealthResponse is the JSON response for /health.
type HealthResponse struct {
	Status     string                `json:"status"`
	Components map[string]CompStatus `json:"components,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}

// CompStatus is the status of an individual component.
type CompStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
}

// Health pings every component: 200 if all are up, 503 otherwise.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]CompStatus, len(h.components)),
	}
	for name, p := range h.components {
		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			resp.Components[name] = CompStatus{Status: "down"}
			resp.Status = "down"
			continue
		}
		resp.Components[name] = CompStatus{Status: "up", Latency: time.Since(start).String()}
	}
	resp.Timestamp = time.Now().UTC()

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
