package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

// Queue defaults.
const (
	DefaultConcurrency = 2
	DefaultMaxRetries  = 3
)

// QueueConfig holds the scheduling parameters of an UploadQueue.
type QueueConfig struct {
	// Concurrency is the number of uploads allowed in flight at once.
	Concurrency int
	// MaxRetries bounds automatic and manual retries per task. Non-positive
	// values select DefaultMaxRetries.
	MaxRetries int
	// DefaultGroupID is used for tasks enqueued without a group. 0 uploads to
	// the user's own page.
	DefaultGroupID int64
	// AttemptTimeout bounds a single transfer attempt. 0 means no bound.
	AttemptTimeout time.Duration
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// UploadQueue admits upload tasks, runs at most Concurrency of them at once in
// FIFO order and applies the retry policy. All task state is guarded by mu;
// uploads run on worker goroutines and report back through finish.
type UploadQueue struct {
	uploader Uploader
	bus      *EventBus
	cfg      QueueConfig

	mu     sync.Mutex
	tasks  map[string]*model.Task
	order  []string
	active int
	limit  int
	closed bool

	workerCtx    context.Context
	cancelWorker context.CancelFunc
	wg           sync.WaitGroup
}

// NewUploadQueue creates an UploadQueue that dispatches to uploader and posts
// lifecycle events to bus.
func NewUploadQueue(uploader Uploader, bus *EventBus, cfg QueueConfig) *UploadQueue {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &UploadQueue{
		uploader:     uploader,
		bus:          bus,
		cfg:          cfg,
		tasks:        make(map[string]*model.Task),
		limit:        cfg.Concurrency,
		workerCtx:    ctx,
		cancelWorker: cancel,
	}
}

// MaxRetries returns the retry budget of each task.
func (q *UploadQueue) MaxRetries() int {
	return q.cfg.MaxRetries
}

// Enqueue creates a pending task from spec and dispatches it if a slot is
// free. It fails only when spec is invalid.
func (q *UploadQueue) Enqueue(spec model.TaskSpec) (model.Task, error) {
	if err := spec.Validate(); err != nil {
		return model.Task{}, err
	}
	if spec.GroupID == 0 {
		spec.GroupID = q.cfg.DefaultGroupID
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return model.Task{}, errors.New("upload queue is shut down")
	}

	t := &model.Task{
		ID:          uuid.NewString(),
		FilePath:    spec.FilePath,
		Title:       spec.Title,
		Description: spec.Description,
		GroupID:     spec.GroupID,
		SourceURL:   spec.SourceURL,
		Private:     spec.Private,
		Status:      model.TaskStatusPending,
		CreatedAt:   time.Now(),
	}
	q.tasks[t.ID] = t
	q.order = append(q.order, t.ID)

	slog.Info("upload queued", "task_id", t.ID, "title", t.Title, "file", t.FilePath)
	q.bus.Post(q.event(model.EventQueued, t))
	q.dispatchLocked()

	return snapshot(t), nil
}

// Cancel cancels a task that has not been dispatched yet and drops it from
// the queue.
func (q *UploadQueue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("cancel %s: %w", id, model.ErrTaskNotFound)
	}
	if t.Status != model.TaskStatusPending {
		return fmt.Errorf("cancel %s task %s: %w", t.Status, id, model.ErrInvalidTransition)
	}

	t.Status = model.TaskStatusCancelled
	t.CompletedAt = time.Now()
	q.removeLocked(id)

	slog.Info("upload cancelled", "task_id", id)
	q.bus.Post(q.event(model.EventCancelled, t))
	return nil
}

// Retry moves a failed task with retry budget left back to pending.
func (q *UploadQueue) Retry(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("retry %s: %w", id, model.ErrTaskNotFound)
	}
	if t.Status != model.TaskStatusFailed {
		return fmt.Errorf("retry %s task %s: %w", t.Status, id, model.ErrInvalidTransition)
	}
	if t.RetryCount >= q.cfg.MaxRetries {
		return fmt.Errorf("retry task %s: retry budget of %d spent: %w", id, q.cfg.MaxRetries, model.ErrInvalidTransition)
	}

	q.retryLocked(t)
	q.dispatchLocked()
	return nil
}

// PauseQueue stops new dispatches. In-flight uploads continue.
func (q *UploadQueue) PauseQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.limit = 0
	slog.Info("upload queue paused", "active", q.active)
}

// ResumeQueue restores the configured concurrency and dispatches pending tasks.
func (q *UploadQueue) ResumeQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.limit = q.cfg.Concurrency
	slog.Info("upload queue resumed", "limit", q.limit)
	q.dispatchLocked()
}

// ClearCompleted drops completed and cancelled tasks and returns how many
// were removed. Failed tasks are kept for inspection and retry.
func (q *UploadQueue) ClearCompleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.order[:0]
	removed := 0
	for _, id := range q.order {
		switch q.tasks[id].Status {
		case model.TaskStatusCompleted, model.TaskStatusCancelled:
			delete(q.tasks, id)
			removed++
		default:
			kept = append(kept, id)
		}
	}
	q.order = kept

	if removed > 0 {
		slog.Info("cleared finished uploads", "count", removed)
	}
	return removed
}

// Status summarises the live set.
func (q *UploadQueue) Status() model.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := model.QueueStatus{Active: q.active, Limit: q.limit, Paused: q.limit == 0}
	for _, id := range q.order {
		switch q.tasks[id].Status {
		case model.TaskStatusPending:
			st.Pending++
		case model.TaskStatusCompleted:
			st.Completed++
		case model.TaskStatusFailed:
			st.Failed++
		}
	}
	return st
}

// Tasks returns snapshots of the live set in enqueue order.
func (q *UploadQueue) Tasks() []model.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]model.Task, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, snapshot(q.tasks[id]))
	}
	return out
}

// Task returns a snapshot of one task.
func (q *UploadQueue) Task(id string) (model.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return model.Task{}, fmt.Errorf("task %s: %w", id, model.ErrTaskNotFound)
	}
	return snapshot(t), nil
}

// Idle reports whether no task is pending or uploading.
func (q *UploadQueue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.order {
		switch q.tasks[id].Status {
		case model.TaskStatusPending, model.TaskStatusUploading:
			return false
		}
	}
	return true
}

// Shutdown stops dispatching, cancels in-flight uploads and waits for their
// workers to return.
func (q *UploadQueue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancelWorker()
	q.wg.Wait()
}

// dispatchLocked starts the earliest pending tasks while slots are free.
func (q *UploadQueue) dispatchLocked() {
	for !q.closed && q.active < q.limit {
		t := q.nextPendingLocked()
		if t == nil {
			return
		}

		t.Status = model.TaskStatusUploading
		t.Progress = 0
		t.StartedAt = time.Now()
		t.CompletedAt = time.Time{}
		t.Result = nil
		q.active++

		slog.Info("upload started", "task_id", t.ID, "attempt", t.RetryCount+1, "active", q.active)
		q.bus.Post(q.event(model.EventStarted, t))

		q.wg.Add(1)
		go q.run(snapshot(t))
	}
}

func (q *UploadQueue) nextPendingLocked() *model.Task {
	for _, id := range q.order {
		if t := q.tasks[id]; t.Status == model.TaskStatusPending {
			return t
		}
	}
	return nil
}

// run performs one attempt on a worker goroutine.
func (q *UploadQueue) run(task model.Task) {
	defer q.wg.Done()

	ctx := q.workerCtx
	if q.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.AttemptTimeout)
		defer cancel()
	}

	result, err := q.safeUpload(ctx, task)
	q.finish(task.ID, result, err)
}

func (q *UploadQueue) safeUpload(ctx context.Context, task model.Task) (result *model.UploadResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("upload panicked: %v", r)
		}
	}()
	return q.uploader.Upload(ctx, task, func(pct int) { q.reportProgress(task.ID, pct) })
}

// reportProgress records pct if it is higher than anything reported for the
// current attempt.
func (q *UploadQueue) reportProgress(id string, pct int) {
	pct = max(0, min(100, pct))

	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok || t.Status != model.TaskStatusUploading || pct <= t.Progress {
		return
	}
	t.Progress = pct
	q.bus.Post(q.event(model.EventProgress, t))
}

// finish folds the outcome of an attempt into task state and refills the
// freed slot.
func (q *UploadQueue) finish(id string, result *model.UploadResult, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.active--
	t := q.tasks[id]

	if err == nil && result == nil {
		err = errors.New("uploader returned no result")
	}

	if err == nil {
		t.Status = model.TaskStatusCompleted
		t.Progress = 100
		t.CompletedAt = time.Now()
		t.Result = result

		slog.Info("upload completed", "task_id", id, "url", result.URL)
		ev := q.event(model.EventCompleted, t)
		ev.Result = ev.Task.Result
		q.bus.Post(ev)
		q.dispatchLocked()
		return
	}

	t.Status = model.TaskStatusFailed
	t.LastError = err.Error()
	t.CompletedAt = time.Now()

	autoRetry := t.RetryCount < q.cfg.MaxRetries && !q.closed &&
		model.Classify(err) != model.KindAuthCancelled

	ev := q.event(model.EventFailed, t)
	ev.Final = !autoRetry
	q.bus.Post(ev)

	if autoRetry {
		slog.Warn("upload failed, retrying",
			"task_id", id, "attempt", t.RetryCount+1, "max_retries", q.cfg.MaxRetries, "error", err)
		q.retryLocked(t)
	} else {
		slog.Error("upload failed", "task_id", id, "retries", t.RetryCount, "error", err)
	}

	q.dispatchLocked()
}

func (q *UploadQueue) retryLocked(t *model.Task) {
	t.Status = model.TaskStatusPending
	t.RetryCount++
	t.LastError = ""
	t.Progress = 0
	q.bus.Post(q.event(model.EventRetry, t))
}

func (q *UploadQueue) removeLocked(id string) {
	delete(q.tasks, id)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

func (q *UploadQueue) event(kind model.EventKind, t *model.Task) model.Event {
	return model.Event{Kind: kind, Task: snapshot(t), At: time.Now()}
}

// snapshot returns a copy of t that shares no memory with the queue.
func snapshot(t *model.Task) model.Task {
	c := *t
	if t.Result != nil {
		r := *t.Result
		c.Result = &r
	}
	return c
}
