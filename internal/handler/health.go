package handler

import (
	"log/slog"
	"net/http"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping() error
}

// HealthHandler reports liveness for load balancers and ECS health checks.
type HealthHandler struct {
	db      Pinger
	backend string
	logger  *slog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db Pinger, backend string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, backend: backend, logger: logger}
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

// HandleHealth returns 200 when the history database answers, 503 otherwise.
//
// HTTP: GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Backend: h.backend})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Backend: h.backend})
}
