package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/fargate-executor/internal/apperror"
	"github.com/sakif/fargate-executor/internal/auth"
	"github.com/sakif/fargate-executor/internal/executor"
	"github.com/sakif/fargate-executor/internal/service"
)

// maxRequestBytes bounds the request body. The service enforces the real
// code limit; this only stops a client from streaming an unbounded body.
const maxRequestBytes = 2*service.MaxCodeLength + 64*1024

// ExecuteHandler handles code execution requests.
type ExecuteHandler struct {
	svc    *service.ExecutionService
	logger *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(svc *service.ExecutionService, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		svc:    svc,
		logger: logger,
	}
}

// HandleExecute runs a batch of code blocks and returns the recorded execution.
//
// HTTP: POST /api/execute
// REQUEST BODY: {"blocks": [{"code": "print('hi')", "language": "python"}]}
//
// The request blocks until the task stops, which on Fargate is typically
// a minute or more.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req executor.ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	subject, _ := auth.SubjectFromContext(r.Context())

	execution, err := h.svc.Execute(r.Context(), subject, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, execution)
}
