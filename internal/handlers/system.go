package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Checker reports whether a dependency is reachable
type Checker func(ctx context.Context) error

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// SystemHandler serves liveness and readiness probes
type SystemHandler struct {
	checks map[string]Checker
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(checks map[string]Checker) *SystemHandler {
	return &SystemHandler{checks: checks}
}

// Health handles GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "OK", Timestamp: time.Now().UTC()})
}

// Ready handles GET /ready
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "OK", Timestamp: time.Now().UTC(), Checks: map[string]string{}}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			log.Error().Err(err).Str("check", name).Msg("Readiness check failed")
			resp.Checks[name] = "unavailable"
			resp.Status = "DEGRADED"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	respondJSON(w, status, resp)
}

// NotFound handles unknown routes
func NotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, "Route not found", http.StatusNotFound)
}
