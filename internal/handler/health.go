package handler

import (
	"net/http"
)

// Readiness reports whether a dependency is up.
type Readiness interface {
	IsConnected() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	bus Readiness
}

// NewHealthHandler creates a new health handler. bus may be nil when the
// session bus is disabled.
func NewHealthHandler(bus Readiness) *HealthHandler {
	return &HealthHandler{bus: bus}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.bus != nil && !h.bus.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "session bus not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
