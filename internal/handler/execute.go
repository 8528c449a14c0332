package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/codecanvas/internal/apperror"
	"github.com/sakif/codecanvas/internal/executor"
)

// ExecuteHandler runs pen JavaScript for the editor's Run button.
type ExecuteHandler struct {
	exec   executor.Executor
	logger *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler. exec may be nil when the
// runner is disabled or Docker is unreachable; requests then get 503.
func NewExecuteHandler(exec executor.Executor, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec:   exec,
		logger: logger,
	}
}

// Enabled reports whether runs can be served.
func (h *ExecuteHandler) Enabled() bool {
	return h.exec != nil
}

// HandleExecute runs a script and returns its captured output.
//
// HTTP: POST /api/run (auth, rate limited)
// REQUEST BODY: {"code": "console.log(1)"}
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if h.exec == nil {
		writeError(w, apperror.Unavailable("code runner"))
		return
	}

	var req executor.ExecutionRequest
	body := http.MaxBytesReader(w, r.Body, executor.MaxCodeBytes+1024)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, apperror.ValidationFailed("code", "script is too large"))
			return
		}
		h.logger.WarnContext(r.Context(), "invalid execution request body", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	if req.Code == "" {
		writeError(w, apperror.ValidationFailed("code", "code cannot be empty"))
		return
	}
	if len(req.Code) > executor.MaxCodeBytes {
		writeError(w, apperror.ValidationFailed("code", "script is too large"))
		return
	}

	h.logger.InfoContext(r.Context(), "executing pen script", slog.Int("bytes", len(req.Code)))

	result, err := h.exec.Execute(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "code execution failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeEnvelope(w, r, http.StatusOK, result)
}
