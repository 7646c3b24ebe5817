package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// recordTimeout bounds one history write from the event dispatcher.
const recordTimeout = 5 * time.Second

// ProvenanceRecorder persists where every completed upload came from.
type ProvenanceRecorder struct {
	store driven.UploadHistoryStore
}

// NewProvenanceRecorder creates a ProvenanceRecorder.
func NewProvenanceRecorder(store driven.UploadHistoryStore) *ProvenanceRecorder {
	return &ProvenanceRecorder{store: store}
}

// Attach subscribes the recorder to completed uploads on bus.
func (r *ProvenanceRecorder) Attach(bus *EventBus) {
	bus.Subscribe(model.EventCompleted, r.HandleCompleted)
}

// HandleCompleted records the result carried by a completed event.
func (r *ProvenanceRecorder) HandleCompleted(ev model.Event) error {
	if ev.Kind != model.EventCompleted || ev.Result == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	completedAt := ev.Task.CompletedAt
	if completedAt.IsZero() {
		completedAt = ev.At
	}

	err := r.store.Record(ctx, model.UploadRecord{
		TaskID:      ev.Task.ID,
		FilePath:    ev.Task.FilePath,
		Title:       ev.Task.Title,
		SourceURL:   ev.Task.SourceURL,
		OwnerID:     ev.Result.OwnerID,
		VideoID:     ev.Result.VideoID,
		URL:         ev.Result.URL,
		CompletedAt: completedAt,
	})
	if err != nil {
		return fmt.Errorf("record provenance for task %s: %w", ev.Task.ID, err)
	}
	return nil
}

// History returns recorded uploads, newest first. limit 0 returns all.
func (r *ProvenanceRecorder) History(ctx context.Context, limit int) ([]model.UploadRecord, error) {
	return r.store.List(ctx, limit)
}
