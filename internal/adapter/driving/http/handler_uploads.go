package httphandler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ericfisherdev/vidrelay/internal/application"
	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

// maxHistoryLimit caps the history page size.
const maxHistoryLimit = 500

// ListUploads returns every task in the live set in enqueue order.
func (h *Handler) ListUploads(w http.ResponseWriter, _ *http.Request) {
	tasks := h.queue.Tasks()

	resp := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toTaskResponse(t))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetUpload returns a single task by ID.
func (h *Handler) GetUpload(w http.ResponseWriter, r *http.Request) {
	t, err := h.queue.Task(r.PathValue("id"))
	if err != nil {
		h.writeTaskError(w, "get", err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// CreateUpload enqueues a local file for upload.
func (h *Handler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	var req CreateUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.queue.Enqueue(model.TaskSpec{
		FilePath:    req.Path,
		Title:       req.Title,
		Description: req.Description,
		GroupID:     req.GroupID,
		SourceURL:   req.SourceURL,
		Private:     req.Private,
	})
	if err != nil {
		h.writeTaskError(w, "enqueue", err)
		return
	}

	writeJSON(w, http.StatusCreated, toTaskResponse(t))
}

// CancelUpload cancels a pending task.
func (h *Handler) CancelUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Cancel(r.PathValue("id")); err != nil {
		h.writeTaskError(w, "cancel", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RetryUpload moves a failed task back to pending.
func (h *Handler) RetryUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.queue.Retry(id); err != nil {
		h.writeTaskError(w, "retry", err)
		return
	}

	t, err := h.queue.Task(id)
	if err != nil {
		h.writeTaskError(w, "retry", err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// ClearCompleted drops completed and cancelled tasks from the live set.
func (h *Handler) ClearCompleted(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ClearResponse{Removed: h.queue.ClearCompleted()})
}

// Relay downloads a source video and enqueues it. The response is sent once
// the file is local; the upload itself continues in the background.
func (h *Handler) Relay(w http.ResponseWriter, r *http.Request) {
	if h.relay == nil {
		writeError(w, http.StatusServiceUnavailable, "relay is not configured")
		return
	}

	var req RelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !isValidSourceURL(req.URL) {
		writeError(w, http.StatusBadRequest, "invalid url: expected an http(s) link")
		return
	}

	t, err := h.relay.Relay(r.Context(), req.URL, application.RelayOptions{
		Title:   req.Title,
		GroupID: req.GroupID,
		Private: req.Private,
		Format:  req.Format,
	})
	if err != nil {
		h.logger.Error("relay failed", "url", req.URL, "error", err)
		writeError(w, http.StatusBadGateway, "relay failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, toTaskResponse(t))
}

// History returns recorded uploads, newest first. ?limit=N bounds the page.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.provenance == nil {
		writeError(w, http.StatusServiceUnavailable, "history is not configured")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.provenance.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]UploadRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toUploadRecordResponse(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

// isValidSourceURL accepts absolute http and https URLs with a host.
func isValidSourceURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
