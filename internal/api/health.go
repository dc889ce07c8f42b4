package api

import (
	"net/http"

	"fencetrack/pkg/probe"
)

// HealthHandler re-runs the readiness probes on every request.
type HealthHandler struct {
	probes []probe.Probe
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(probes []probe.Probe) *HealthHandler {
	return &HealthHandler{probes: probes}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Healthy bool           `json:"healthy"`
	Checks  []probe.Status `json:"checks"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks, healthy := probe.Statuses(probe.Run(r.Context(), h.probes))
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{Healthy: healthy, Checks: checks})
}
