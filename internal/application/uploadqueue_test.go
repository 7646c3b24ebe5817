package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/vidrelay/internal/application"
	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

func spec(title string) model.TaskSpec {
	return model.TaskSpec{FilePath: "/videos/" + title + ".mp4", Title: title}
}

func TestUploadQueue_FIFOAndConcurrencyBound(t *testing.T) {
	var active, peak atomic.Int32

	// Earlier tasks take longer so completions arrive out of enqueue order.
	delays := map[string]time.Duration{
		"t1": 60 * time.Millisecond,
		"t2": 10 * time.Millisecond,
		"t3": 40 * time.Millisecond,
		"t4": 5 * time.Millisecond,
		"t5": 20 * time.Millisecond,
	}

	uploader := uploaderFunc(func(_ context.Context, task model.Task, _ model.ProgressSink) (*model.UploadResult, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(delays[task.Title])
		active.Add(-1)
		return okResult(), nil
	})

	h := newHarness(t, uploader, application.QueueConfig{Concurrency: 2})
	for _, title := range []string{"t1", "t2", "t3", "t4", "t5"} {
		_, err := h.queue.Enqueue(spec(title))
		require.NoError(t, err)
	}
	h.waitIdle(t)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 5, h.queue.Status().Completed)

	// Started events are posted under the queue lock in dispatch order.
	var startOrder []string
	for _, ev := range h.events.all() {
		if ev.Kind == model.EventStarted {
			startOrder = append(startOrder, ev.Task.Title)
		}
	}
	assert.Equal(t, []string{"t1", "t2", "t3", "t4", "t5"}, startOrder)
}

func TestUploadQueue_StatusNeverExceedsLimit(t *testing.T) {
	release := make(chan struct{})
	uploader := uploaderFunc(func(ctx context.Context, _ model.Task, _ model.ProgressSink) (*model.UploadResult, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return okResult(), nil
	})

	h := newHarness(t, uploader, application.QueueConfig{Concurrency: 2})
	for i := range 4 {
		_, err := h.queue.Enqueue(spec(fmt.Sprintf("v%d", i)))
		require.NoError(t, err)
	}

	st := h.queue.Status()
	assert.Equal(t, 2, st.Active)
	assert.Equal(t, 2, st.Pending)
	assert.Equal(t, 2, st.Limit)

	close(release)
	h.waitIdle(t)
	assert.Equal(t, 4, h.queue.Status().Completed)
}

func TestUploadQueue_RetryBound(t *testing.T) {
	var attempts atomic.Int32
	uploader := uploaderFunc(func(context.Context, model.Task, model.ProgressSink) (*model.UploadResult, error) {
		attempts.Add(1)
		return nil, &model.TransportError{Op: "video.save", StatusCode: 502}
	})

	h := newHarness(t, uploader, application.QueueConfig{Concurrency: 1, MaxRetries: 3})
	task, err := h.queue.Enqueue(spec("flaky"))
	require.NoError(t, err)
	h.waitIdle(t)

	got, err := h.queue.Task(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)
	assert.NotEmpty(t, got.LastError)
	assert.Equal(t, int32(4), attempts.Load())

	assert.Equal(t, 4, h.events.count(model.EventFailed))
	assert.Equal(t, 3, h.events.count(model.EventRetry))

	events := h.events.forTask(task.ID)
	last := events[len(events)-1]
	assert.Equal(t, model.EventFailed, last.Kind)
	assert.True(t, last.Final)

	// Budget is spent: manual retry is a caller error.
	err = h.queue.Retry(task.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestUploadQueue_ManualRetry(t *testing.T) {
	var attempts atomic.Int32
	uploader := uploaderFunc(func(context.Context, model.Task, model.ProgressSink) (*model.UploadResult, error) {
		if attempts.Add(1) == 1 {
			return nil, fmt.Errorf("no usable credential: %w", model.ErrAuthDeclined)
		}
		return okResult(), nil
	})

	h := newHarness(t, uploader, application.QueueConfig{Concurrency: 1})
	task, err := h.queue.Enqueue(spec("needs-login"))
	require.NoError(t, err)
	h.waitIdle(t)

	// A declined authorization is not retried automatically.
	got, err := h.queue.Task(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Contains(t, got.LastError, "declined")

	require.NoError(t, h.queue.Retry(task.ID))
	h.waitIdle(t)

	got, err = h.queue.Task(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Empty(t, got.LastError)
}

func TestUploadQueue_InvalidTransitions(t *testing.T) {
	h := newHarness(t, uploaderFunc(func(context.Context, model.Task, model.ProgressSink) (*model.UploadResult, error) {
		return okResult(), nil
	}), application.QueueConfig{})

	assert.ErrorIs(t, h.queue.Cancel("missing"), model.ErrTaskNotFound)
	assert.ErrorIs(t, h.queue.Retry("missing"), model.ErrTaskNotFound)

	task, err := h.queue.Enqueue(spec("done"))
	require.NoError(t, err)
	h.waitIdle(t)

	assert.ErrorIs(t, h.queue.Cancel(task.ID), model.ErrInvalidTransition)
	assert.ErrorIs(t, h.queue.Retry(task.ID), model.ErrInvalidTransition)
}

func TestUploadQueue_EnqueueRejectsInvalidSpec(t *testing.T) {
	h := newHarness(t, uploaderFunc(func(context.Context, model.Task, model.ProgressSink) (*model.UploadResult, error) {
		return okResult(), nil
	}), application.QueueConfig{})

	_, err := h.queue.Enqueue(model.TaskSpec{Title: "no path"})
	assert.ErrorIs(t, err, model.ErrInvalidTaskSpec)
	_, err = h.queue.Enqueue(model.TaskSpec{FilePath: "/a.mp4"})
	assert.ErrorIs(t, err, model.ErrInvalidTaskSpec)
	assert.Empty(t, h.queue.Tasks())
}

func TestUploadQueue_DefaultGroup(t *testing.T) {
	h := newHarness(t, uploaderFunc(func(context.Context, model.Task, model.ProgressSink) (*model.UploadResult, error) {
		return okResult(), nil
	}), application.QueueConfig{DefaultGroupID: 77})
	h.queue.PauseQueue()

	task, err := h.queue.Enqueue(spec("grouped"))
	require.NoError(t, err)
	assert.Equal(t, int64(77), task.GroupID)

	explicit := spec("explicit")
	explicit.GroupID = 5
	task, err = h.queue.Enqueue(explicit)
	require.NoError(t, err)
	assert.Equal(t, int64(5), task.GroupID)
}

func TestUploadQueue_ClearCompletedIsIdempotent(t *testing.T) {
	uploader := uploaderFunc(func(_ context.Context, task model.Task, _ model.ProgressSink) (*model.UploadResult, error) {
		if task.Title == "bad" {
			return nil, &model.APIError{Method: "video.save", Code: 100, Message: "invalid param"}
		}
		return okResult(), nil
	})

	h := newHarness(t, uploader, application.QueueConfig{Concurrency: 2, MaxRetries: 1})
	for _, title := range []string{"good1", "bad", "good2"} {
		_, err := h.queue.Enqueue(spec(title))
		require.NoError(t, err)
	}
	h.waitIdle(t)

	assert.Equal(t, 2, h.queue.ClearCompleted())
	tasks := h.queue.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "bad", tasks[0].Title)
	assert.Equal(t, model.TaskStatusFailed, tasks[0].Status)

	assert.Equal(t, 0, h.queue.ClearCompleted())
	assert.Equal(t, tasks, h.queue.Tasks())
}

func TestUploadQueue_PauseAndResume(t *testing.T) {
	var ran atomic.Int32
	h := newHarness(t, uploaderFunc(func(context.Context, model.Task, model.ProgressSink) (*model.UploadResult, error) {
		ran.Add(1)
		return okResult(), nil
	}), application.QueueConfig{Concurrency: 2})

	h.queue.PauseQueue()
	for _, title := range []string{"a", "b", "c"} {
		_, err := h.queue.Enqueue(spec(title))
		require.NoError(t, err)
	}

	st := h.queue.Status()
	assert.True(t, st.Paused)
	assert.Equal(t, 3, st.Pending)
	assert.Equal(t, int32(0), ran.Load())

	h.queue.ResumeQueue()
	h.waitIdle(t)
	assert.Equal(t, int32(3), ran.Load())
	assert.False(t, h.queue.Status().Paused)
}

func TestUploadQueue_ProgressIsMonotonic(t *testing.T) {
	uploader := uploaderFunc(func(_ context.Context, _ model.Task, progress model.ProgressSink) (*model.UploadResult, error) {
		for _, p := range []int{10, 10, 5, 50, 50, 40, 100, 120} {
			progress(p)
		}
		return okResult(), nil
	})

	h := newHarness(t, uploader, application.QueueConfig{})
	task, err := h.queue.Enqueue(spec("progress"))
	require.NoError(t, err)
	h.waitIdle(t)

	var seen []int
	for _, ev := range h.events.forTask(task.ID) {
		if ev.Kind == model.EventProgress {
			seen = append(seen, ev.Task.Progress)
		}
	}
	assert.Equal(t, []int{10, 50, 100}, seen)
}

func TestUploadQueue_ProgressResetsPerAttempt(t *testing.T) {
	var attempts atomic.Int32
	uploader := uploaderFunc(func(_ context.Context, _ model.Task, progress model.ProgressSink) (*model.UploadResult, error) {
		progress(30)
		if attempts.Add(1) == 1 {
			return nil, errors.New("connection reset")
		}
		progress(100)
		return okResult(), nil
	})

	h := newHarness(t, uploader, application.QueueConfig{})
	task, err := h.queue.Enqueue(spec("reset"))
	require.NoError(t, err)
	h.waitIdle(t)

	assert.Equal(t, []model.EventKind{
		model.EventQueued,
		model.EventStarted, model.EventProgress, model.EventFailed, model.EventRetry,
		model.EventStarted, model.EventProgress, model.EventProgress, model.EventCompleted,
	}, kinds(h.events.forTask(task.ID)))
}

func TestUploadQueue_CompletesWithResult(t *testing.T) {
	uploader := uploaderFunc(func(_ context.Context, _ model.Task, progress model.ProgressSink) (*model.UploadResult, error) {
		time.Sleep(50 * time.Millisecond)
		progress(50)
		progress(100)
		return okResult(), nil
	})

	h := newHarness(t, uploader, application.QueueConfig{})
	task, err := h.queue.Enqueue(spec("single"))
	require.NoError(t, err)
	h.waitIdle(t)

	events := h.events.forTask(task.ID)
	assert.Equal(t, []model.EventKind{
		model.EventQueued, model.EventStarted, model.EventProgress, model.EventProgress, model.EventCompleted,
	}, kinds(events))

	completed := events[len(events)-1]
	require.NotNil(t, completed.Result)
	assert.Equal(t, "https://vk.com/video1_2", completed.Result.URL)

	got, err := h.queue.Task(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, got.Status)
	assert.False(t, got.StartedAt.IsZero())
	assert.False(t, got.CompletedAt.Before(got.StartedAt))
}

func TestUploadQueue_PermanentFailuresInOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		order   []string
		active  atomic.Int32
		overlap atomic.Bool
	)
	uploader := uploaderFunc(func(_ context.Context, task model.Task, _ model.ProgressSink) (*model.UploadResult, error) {
		if active.Add(1) > 1 {
			overlap.Store(true)
		}
		defer active.Add(-1)

		mu.Lock()
		order = append(order, task.Title)
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		return nil, &model.APIError{Method: "video.save", Code: 204, Message: "access denied"}
	})

	h := newHarness(t, uploader, application.QueueConfig{Concurrency: 1})
	for _, title := range []string{"c1", "c2", "c3"} {
		_, err := h.queue.Enqueue(spec(title))
		require.NoError(t, err)
	}
	h.waitIdle(t)

	assert.False(t, overlap.Load())
	assert.Equal(t, 0, h.events.count(model.EventCompleted))

	final := 0
	for _, ev := range h.events.all() {
		if ev.Kind == model.EventFailed && ev.Final {
			final++
		}
	}
	assert.Equal(t, 3, final)

	// Each task exhausts its retries before the next one starts.
	mu.Lock()
	defer mu.Unlock()
	want := []string{}
	for _, title := range []string{"c1", "c2", "c3"} {
		for range application.DefaultMaxRetries + 1 {
			want = append(want, title)
		}
	}
	assert.Equal(t, want, order)
}

func TestUploadQueue_CancelPending(t *testing.T) {
	var ran atomic.Int32
	h := newHarness(t, uploaderFunc(func(context.Context, model.Task, model.ProgressSink) (*model.UploadResult, error) {
		ran.Add(1)
		return okResult(), nil
	}), application.QueueConfig{})

	h.queue.PauseQueue()
	task, err := h.queue.Enqueue(spec("cancel-me"))
	require.NoError(t, err)

	require.NoError(t, h.queue.Cancel(task.ID))
	h.queue.ResumeQueue()
	h.waitIdle(t)

	assert.Equal(t, []model.EventKind{model.EventQueued, model.EventCancelled}, kinds(h.events.forTask(task.ID)))
	assert.Equal(t, int32(0), ran.Load())

	_, err = h.queue.Task(task.ID)
	assert.ErrorIs(t, err, model.ErrTaskNotFound)
	assert.Equal(t, model.QueueStatus{Limit: application.DefaultConcurrency}, h.queue.Status())
}

func TestUploadQueue_HandlersMayCallBack(t *testing.T) {
	h := newHarness(t, uploaderFunc(func(context.Context, model.Task, model.ProgressSink) (*model.UploadResult, error) {
		return okResult(), nil
	}), application.QueueConfig{})

	var cleared atomic.Int32
	h.bus.Subscribe(model.EventCompleted, func(model.Event) error {
		cleared.Add(int32(h.queue.ClearCompleted()))
		return nil
	})

	_, err := h.queue.Enqueue(spec("callback"))
	require.NoError(t, err)
	h.waitIdle(t)

	assert.Equal(t, int32(1), cleared.Load())
	assert.Empty(t, h.queue.Tasks())
}

func TestUploadQueue_AttemptTimeout(t *testing.T) {
	uploader := uploaderFunc(func(ctx context.Context, _ model.Task, _ model.ProgressSink) (*model.UploadResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	h := newHarness(t, uploader, application.QueueConfig{MaxRetries: 1, AttemptTimeout: 10 * time.Millisecond})
	task, err := h.queue.Enqueue(spec("slow"))
	require.NoError(t, err)
	h.waitIdle(t)

	got, err := h.queue.Task(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.LastError, context.DeadlineExceeded.Error())
}

func TestUploadQueue_ShutdownCancelsWorkers(t *testing.T) {
	started := make(chan struct{})
	uploader := uploaderFunc(func(ctx context.Context, _ model.Task, _ model.ProgressSink) (*model.UploadResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	bus := application.NewEventBus()
	queue := application.NewUploadQueue(uploader, bus, application.QueueConfig{})
	task, err := queue.Enqueue(spec("long"))
	require.NoError(t, err)
	<-started

	queue.Shutdown()

	got, err := queue.Task(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)

	_, err = queue.Enqueue(spec("late"))
	assert.Error(t, err)
}
