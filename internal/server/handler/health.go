package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler answers liveness probes from the load balancer and the media
// server's origin check.
type HealthHandler struct {
	logger  *slog.Logger
	started time.Time
}

// NewHealthHandler creates a HealthHandler anchored at the current time.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger, started: time.Now().UTC()}
}

// HealthCheck reports the service identity and how long it has been up.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "memecast",
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}
