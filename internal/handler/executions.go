package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/fargate-executor/internal/apperror"
	"github.com/sakif/fargate-executor/internal/service"
)

// ExecutionsHandler serves the execution history.
type ExecutionsHandler struct {
	svc    *service.ExecutionService
	logger *slog.Logger
}

// NewExecutionsHandler creates a new ExecutionsHandler.
func NewExecutionsHandler(svc *service.ExecutionService, logger *slog.Logger) *ExecutionsHandler {
	return &ExecutionsHandler{svc: svc, logger: logger}
}

// HandleList returns recorded executions, newest first.
//
// HTTP: GET /api/executions?limit=20&offset=0
func (h *ExecutionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	executions, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, executions)
}

// HandleGet returns a single execution.
//
// HTTP: GET /api/executions/{id}
func (h *ExecutionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	execution, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, execution)
}

// queryInt parses an optional integer query parameter; missing means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}
