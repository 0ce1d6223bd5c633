package facade

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/linkflow-ai/linkflow-ai/internal/credential"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/logger"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/response"
)

// Handler exposes the Façade over HTTP: POST /executions, GET
// /executions/{id}, GET /executions/{id}/progress.
type Handler struct {
	facade *Facade
	logger logger.Logger
}

// NewHandler creates an HTTP handler wrapping a Façade.
func NewHandler(f *Facade, log logger.Logger) *Handler {
	return &Handler{facade: f, logger: log}
}

// RegisterRoutes mounts the façade's endpoints on router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/executions", h.handleExecute).Methods("POST")
	router.HandleFunc("/executions/{id}", h.handleGetExecution).Methods("GET")
	router.HandleFunc("/executions/{id}/progress", h.handleGetProgress).Methods("GET")
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("body", err.Error()))
		return
	}

	result, err := h.facade.Execute(r.Context(), req)
	if err != nil {
		h.respondExecuteError(w, err)
		return
	}
	response.OK(w, result)
}

// respondExecuteError maps the façade's domain errors onto the
// platform's error response taxonomy. Node-execution failures are never
// surfaced here: they are recovered inside the engine and folded into
// the 200 response's status/failedNodes fields instead.
func (h *Handler) respondExecuteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAmbiguousTrigger), errors.Is(err, ErrNoTrigger):
		response.Error(w, response.ErrValidation.WithDetails("reason", err.Error()))
	case isNotFound(err):
		response.Error(w, response.ErrNotFound.WithDetails("reason", err.Error()))
	default:
		h.logger.Error("execution failed", "error", err)
		response.Error(w, response.ErrInternal)
	}
}

func isNotFound(err error) bool {
	var notFound *credential.CredentialNotFound
	if errors.As(err, &notFound) {
		return true
	}
	return false
}

func (h *Handler) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	execution, err := h.facade.Execution(r.Context(), id)
	if err != nil {
		response.Error(w, response.ErrNotFound.WithDetails("executionId", id))
		return
	}
	response.OK(w, executionDTO(execution))
}

func (h *Handler) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if view, ok := h.facade.Progress(r.Context(), id); ok {
		response.OK(w, view)
		return
	}

	// Evicted from the tracker's retention window (EXECUTION_RETENTION_MS):
	// fall back to the persisted row.
	execution, err := h.facade.Execution(r.Context(), id)
	if err != nil {
		response.Error(w, response.ErrNotFound.WithDetails("executionId", id))
		return
	}
	response.OK(w, executionDTO(execution))
}
