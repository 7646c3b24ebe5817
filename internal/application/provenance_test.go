package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/vidrelay/internal/application"
	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

func TestProvenanceRecorder_RecordsCompletedUploads(t *testing.T) {
	history := &memHistory{}
	recorder := application.NewProvenanceRecorder(history)

	h := newHarness(t, uploaderFunc(func(context.Context, model.Task, model.ProgressSink) (*model.UploadResult, error) {
		return okResult(), nil
	}), application.QueueConfig{})
	recorder.Attach(h.bus)

	task, err := h.queue.Enqueue(model.TaskSpec{FilePath: "/v/a.mp4", Title: "A", SourceURL: "https://youtu.be/a"})
	require.NoError(t, err)
	h.waitIdle(t)

	records, err := recorder.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, task.ID, records[0].TaskID)
	assert.Equal(t, "https://youtu.be/a", records[0].SourceURL)
	assert.Equal(t, "https://vk.com/video1_2", records[0].URL)
	assert.False(t, records[0].CompletedAt.IsZero())
}

func TestProvenanceRecorder_IgnoresOtherEvents(t *testing.T) {
	history := &memHistory{}
	recorder := application.NewProvenanceRecorder(history)

	require.NoError(t, recorder.HandleCompleted(model.Event{Kind: model.EventFailed, At: time.Now()}))
	require.NoError(t, recorder.HandleCompleted(model.Event{Kind: model.EventCompleted, At: time.Now()}))
	assert.Empty(t, history.records)
}
