package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON body of the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// CreateUploadRequest is the JSON body for enqueuing a local file.
type CreateUploadRequest struct {
	Path        string `json:"path"`
	Title       string `json:"title"`
	Description string `json:"description"`
	GroupID     int64  `json:"group_id"`
	SourceURL   string `json:"source_url"`
	Private     bool   `json:"private"`
}

// RelayRequest is the JSON body for relaying a source video.
type RelayRequest struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	GroupID int64  `json:"group_id"`
	Private bool   `json:"private"`
	Format  string `json:"format"`
}

// ClearResponse reports how many tasks a clear removed.
type ClearResponse struct {
	Removed int `json:"removed"`
}

// ResultResponse is the JSON representation of a finished upload.
type ResultResponse struct {
	OwnerID int64  `json:"owner_id"`
	VideoID int64  `json:"video_id"`
	URL     string `json:"url"`
}

// TaskResponse is the JSON representation of an upload task.
type TaskResponse struct {
	ID          string          `json:"id"`
	FilePath    string          `json:"path"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	GroupID     int64           `json:"group_id"`
	SourceURL   string          `json:"source_url"`
	Private     bool            `json:"private"`
	Status      string          `json:"status"`
	Progress    int             `json:"progress"`
	LastError   string          `json:"last_error,omitempty"`
	RetryCount  int             `json:"retry_count"`
	CreatedAt   string          `json:"created_at"`
	StartedAt   string          `json:"started_at,omitempty"`
	CompletedAt string          `json:"completed_at,omitempty"`
	Result      *ResultResponse `json:"result,omitempty"`
}

// UploadRecordResponse is the JSON representation of a provenance record.
type UploadRecordResponse struct {
	TaskID      string `json:"task_id"`
	FilePath    string `json:"path"`
	Title       string `json:"title"`
	SourceURL   string `json:"source_url"`
	OwnerID     int64  `json:"owner_id"`
	VideoID     int64  `json:"video_id"`
	URL         string `json:"url"`
	CompletedAt string `json:"completed_at"`
}

func toTaskResponse(t model.Task) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		FilePath:    t.FilePath,
		Title:       t.Title,
		Description: t.Description,
		GroupID:     t.GroupID,
		SourceURL:   t.SourceURL,
		Private:     t.Private,
		Status:      string(t.Status),
		Progress:    t.Progress,
		LastError:   t.LastError,
		RetryCount:  t.RetryCount,
		CreatedAt:   formatTime(t.CreatedAt),
		StartedAt:   formatTime(t.StartedAt),
		CompletedAt: formatTime(t.CompletedAt),
	}
	if t.Result != nil {
		resp.Result = &ResultResponse{
			OwnerID: t.Result.OwnerID,
			VideoID: t.Result.VideoID,
			URL:     t.Result.URL,
		}
	}
	return resp
}

func toUploadRecordResponse(rec model.UploadRecord) UploadRecordResponse {
	return UploadRecordResponse{
		TaskID:      rec.TaskID,
		FilePath:    rec.FilePath,
		Title:       rec.Title,
		SourceURL:   rec.SourceURL,
		OwnerID:     rec.OwnerID,
		VideoID:     rec.VideoID,
		URL:         rec.URL,
		CompletedAt: formatTime(rec.CompletedAt),
	}
}

// formatTime renders t as RFC 3339 UTC, or "" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
