package model

import "time"

// EventKind names a notification emitted by the upload queue.
type EventKind string

const (
	EventQueued    EventKind = "queued"
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
	EventRetry     EventKind = "retry"
)

// AllEventKinds lists every kind in lifecycle order.
var AllEventKinds = []EventKind{
	EventQueued, EventStarted, EventProgress, EventCompleted,
	EventFailed, EventCancelled, EventRetry,
}

// Event carries a snapshot of the task at the moment of the transition.
// Result is set only for EventCompleted. Final is set on an EventFailed after
// which the queue will not retry the task on its own.
type Event struct {
	Kind   EventKind
	Task   Task
	Result *UploadResult
	Final  bool
	At     time.Time
}
