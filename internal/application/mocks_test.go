package application_test

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/vidrelay/internal/application"
	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

// --- Mock implementations ---

type memCredentialStore struct {
	mu     sync.Mutex
	cred   *model.Credential
	clears int
}

func (m *memCredentialStore) Get(_ context.Context) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return nil, nil
	}
	c := *m.cred
	return &c, nil
}

func (m *memCredentialStore) Replace(_ context.Context, cred model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = &cred
	return nil
}

func (m *memCredentialStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = nil
	m.clears++
	return nil
}

func (m *memCredentialStore) token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return ""
	}
	return m.cred.AccessToken
}

// fakeVideoAPI routes calls to per-test functions and records method names.
type fakeVideoAPI struct {
	mu      sync.Mutex
	methods []string
	call    func(token, method string, params url.Values) (json.RawMessage, error)
	upload  func(ctx context.Context, path string, progress func(sent, total int64)) error
}

func (f *fakeVideoAPI) Call(_ context.Context, token, method string, params url.Values) (json.RawMessage, error) {
	f.mu.Lock()
	f.methods = append(f.methods, method)
	fn := f.call
	f.mu.Unlock()

	if fn == nil {
		return json.RawMessage(`1`), nil
	}
	return fn(token, method, params)
}

func (f *fakeVideoAPI) Upload(ctx context.Context, _, path string, progress func(sent, total int64)) error {
	if f.upload == nil {
		progress(100, 100)
		return nil
	}
	return f.upload(ctx, path, progress)
}

func (f *fakeVideoAPI) AuthorizeURL() string {
	return "https://oauth.example.test/authorize"
}

func (f *fakeVideoAPI) calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.methods {
		if m == method {
			n++
		}
	}
	return n
}

// fakeAuthorizer hands out fresh tokens, or declines when declined is set.
type fakeAuthorizer struct {
	mu        sync.Mutex
	calls     int
	declined  bool
	expiresIn string
}

func (f *fakeAuthorizer) Authorize(_ context.Context, _ string) (url.Values, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.declined {
		return nil, model.ErrAuthDeclined
	}
	v := url.Values{}
	v.Set("access_token", "fresh-"+string(rune('a'+f.calls-1)))
	v.Set("user_id", "42")
	v.Set("expires_in", f.expiresIn)
	return v, nil
}

func (f *fakeAuthorizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memSettings) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memSettings) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value
	return nil
}

func (m *memSettings) All(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

type memHistory struct {
	mu      sync.Mutex
	records []model.UploadRecord
}

func (m *memHistory) Record(_ context.Context, rec model.UploadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memHistory) List(_ context.Context, _ int) ([]model.UploadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.UploadRecord(nil), m.records...), nil
}

// --- Queue harness ---

// eventRecorder captures every delivered event.
type eventRecorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *eventRecorder) handle(ev model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) all() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

func (r *eventRecorder) forTask(id string) []model.Event {
	var out []model.Event
	for _, ev := range r.all() {
		if ev.Task.ID == id {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) count(kind model.EventKind) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func kinds(events []model.Event) []model.EventKind {
	out := make([]model.EventKind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

type harness struct {
	bus    *application.EventBus
	queue  *application.UploadQueue
	events *eventRecorder
}

func newHarness(t *testing.T, uploader application.Uploader, cfg application.QueueConfig) *harness {
	t.Helper()

	bus := application.NewEventBus()
	rec := &eventRecorder{}
	bus.SubscribeAll(rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Run(ctx)
		close(done)
	}()

	queue := application.NewUploadQueue(uploader, bus, cfg)
	t.Cleanup(func() {
		queue.Shutdown()
		cancel()
		<-done
	})

	return &harness{bus: bus, queue: queue, events: rec}
}

// waitIdle blocks until no task is pending or uploading and every event has
// been delivered.
func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, h.queue.Idle, 5*time.Second, 2*time.Millisecond)
	h.bus.WaitIdle()
}

// uploaderFunc adapts a function to the Uploader interface.
type uploaderFunc func(ctx context.Context, task model.Task, progress model.ProgressSink) (*model.UploadResult, error)

func (f uploaderFunc) Upload(ctx context.Context, task model.Task, progress model.ProgressSink) (*model.UploadResult, error) {
	return f(ctx, task, progress)
}

func okResult() *model.UploadResult {
	return &model.UploadResult{OwnerID: 1, VideoID: 2, URL: model.VideoURL(1, 2)}
}
