package model

import (
	"fmt"
	"strings"
	"time"
)

// provenancePrefix marks the line that links an upload back to its source.
const provenancePrefix = "ORIGINAL - "

// TaskSpec is what a caller supplies to request an upload.
type TaskSpec struct {
	FilePath    string
	Title       string
	Description string
	GroupID     int64
	SourceURL   string
	Private     bool
}

// Validate checks the fields every upload needs.
func (s TaskSpec) Validate() error {
	if strings.TrimSpace(s.FilePath) == "" {
		return fmt.Errorf("%w: file path is required", ErrInvalidTaskSpec)
	}
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTaskSpec)
	}
	return nil
}

// Task is one upload tracked by the queue. Only the queue mutates it; callers
// receive copies.
type Task struct {
	ID          string
	FilePath    string
	Title       string
	Description string
	GroupID     int64
	SourceURL   string
	Private     bool
	Status      TaskStatus
	Progress    int // 0-100, meaningful only while uploading
	LastError   string
	RetryCount  int
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Result      *UploadResult
}

// FullDescription returns the free-text description followed by a provenance
// line pointing at the source URL, separated by a blank line when both exist.
func (t Task) FullDescription() string {
	desc := t.Description
	if t.SourceURL != "" {
		if desc != "" {
			desc += "\n\n"
		}
		desc += provenancePrefix + t.SourceURL
	}
	return desc
}

// Privacy returns the privacy level to request for this task.
func (t Task) Privacy() Privacy {
	if t.Private {
		return PrivacyPrivate
	}
	return PrivacyAll
}

// UploadRequest converts the task into the parameters of a remote upload.
func (t Task) UploadRequest() UploadRequest {
	return UploadRequest{
		Title:       t.Title,
		Description: t.FullDescription(),
		GroupID:     t.GroupID,
		Privacy:     t.Privacy(),
	}
}

// QueueStatus summarises the live set of the upload queue.
type QueueStatus struct {
	Active    int  `json:"active"`
	Pending   int  `json:"pending"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Limit     int  `json:"limit"`
	Paused    bool `json:"paused"`
}
