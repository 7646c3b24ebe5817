package httphandler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/vidrelay/internal/application"
	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

// Handler is the HTTP driving adapter that serves the control API.
type Handler struct {
	queue      *application.UploadQueue
	relay      *application.RelayService
	provenance *application.ProvenanceRecorder
	logger     *slog.Logger
}

// NewHandler creates a Handler. relay and provenance may be nil, in which
// case their endpoints answer 503.
func NewHandler(
	queue *application.UploadQueue,
	relay *application.RelayService,
	provenance *application.ProvenanceRecorder,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		queue:      queue,
		relay:      relay,
		provenance: provenance,
		logger:     logger,
	}
}

// RegisterAPIRoutes registers every /api/v1 route on mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("GET /api/v1/uploads", h.ListUploads)
	mux.HandleFunc("POST /api/v1/uploads", h.CreateUpload)
	mux.HandleFunc("POST /api/v1/uploads/clear", h.ClearCompleted)
	mux.HandleFunc("GET /api/v1/uploads/{id}", h.GetUpload)
	mux.HandleFunc("DELETE /api/v1/uploads/{id}", h.CancelUpload)
	mux.HandleFunc("POST /api/v1/uploads/{id}/retry", h.RetryUpload)

	mux.HandleFunc("GET /api/v1/queue", h.QueueStatus)
	mux.HandleFunc("POST /api/v1/queue/pause", h.PauseQueue)
	mux.HandleFunc("POST /api/v1/queue/resume", h.ResumeQueue)

	mux.HandleFunc("POST /api/v1/relay", h.Relay)
	mux.HandleFunc("GET /api/v1/history", h.History)
}

// ApplyMiddleware wraps next with recovery and request logging.
func ApplyMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, next)
	wrapped = loggingMiddleware(logger, wrapped)
	return wrapped
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	RegisterAPIRoutes(mux, h)
	return ApplyMiddleware(mux, logger)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// QueueStatus returns counts for the live set of the queue.
func (h *Handler) QueueStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.Status())
}

// PauseQueue stops new dispatches.
func (h *Handler) PauseQueue(w http.ResponseWriter, _ *http.Request) {
	h.queue.PauseQueue()
	writeJSON(w, http.StatusOK, h.queue.Status())
}

// ResumeQueue restores the configured concurrency.
func (h *Handler) ResumeQueue(w http.ResponseWriter, _ *http.Request) {
	h.queue.ResumeQueue()
	writeJSON(w, http.StatusOK, h.queue.Status())
}

// writeTaskError maps queue errors onto status codes.
func (h *Handler) writeTaskError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "upload not found")
	case errors.Is(err, model.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrInvalidTaskSpec):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("upload operation failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
