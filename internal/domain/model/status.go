package model

// TaskStatus represents the lifecycle state of an upload task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusUploading TaskStatus = "uploading"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// String returns the string representation of TaskStatus.
func (s TaskStatus) String() string {
	return string(s)
}

// IsActive returns true while the task holds a concurrency slot.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusUploading
}

// IsTerminal returns true if no further automatic transition will happen.
// A failed task is terminal until a manual retry moves it back to pending.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Privacy controls who can view an uploaded video.
type Privacy string

const (
	PrivacyAll     Privacy = "all"
	PrivacyPrivate Privacy = "private"
)

// ViewCode maps the privacy level to the numeric privacy_view value the
// remote API expects. Unknown values fall back to public.
func (p Privacy) ViewCode() int {
	if p == PrivacyPrivate {
		return 2
	}
	return 0
}
