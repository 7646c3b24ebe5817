package application_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/vidrelay/internal/application"
	"github.com/ericfisherdev/vidrelay/internal/domain/model"
	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

type fakeExtractor struct {
	mu            sync.Mutex
	metadataCalls int
	downloads     []string
	meta          model.VideoMetadata
	downloadErr   error
}

func (f *fakeExtractor) ExtractMetadata(_ context.Context, sourceURL string) (*model.VideoMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadataCalls++
	m := f.meta
	m.URL = sourceURL
	return &m, nil
}

func (f *fakeExtractor) Download(_ context.Context, _, format, destDir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, format)
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	return filepath.Join(destDir, "Some_Video.mp4"), nil
}

type fakeThumbnails struct {
	fetched []string
}

func (f *fakeThumbnails) Fetch(_ context.Context, thumbnailURL, destDir, baseName string) (string, error) {
	f.fetched = append(f.fetched, thumbnailURL)
	return filepath.Join(destDir, baseName+".jpg"), nil
}

type memCache struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (m *memCache) Get(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blobs[id], nil
}

func (m *memCache) Put(_ context.Context, id string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blobs == nil {
		m.blobs = map[string][]byte{}
	}
	m.blobs[id] = blob
	return nil
}

type relayFixture struct {
	service   *application.RelayService
	extractor *fakeExtractor
	thumbs    *fakeThumbnails
	cache     *memCache
	settings  *memSettings
	queue     *application.UploadQueue
	dir       string
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()

	h := newHarness(t, uploaderFunc(func(context.Context, model.Task, model.ProgressSink) (*model.UploadResult, error) {
		return okResult(), nil
	}), application.QueueConfig{})
	h.queue.PauseQueue()

	f := &relayFixture{
		extractor: &fakeExtractor{meta: model.VideoMetadata{
			SourceID:     "abc123",
			Title:        "Some Video",
			Description:  "<b>Great</b> video &amp; more<script>alert(1)</script>",
			ThumbnailURL: "https://i.ytimg.test/vi/abc123/hq.jpg",
		}},
		thumbs:   &fakeThumbnails{},
		cache:    &memCache{},
		settings: &memSettings{},
		queue:    h.queue,
		dir:      t.TempDir(),
	}
	f.service = application.NewRelayService(f.extractor, f.thumbs, f.cache, f.settings, f.queue, f.dir)
	return f
}

func TestRelayService_Relay(t *testing.T) {
	f := newRelayFixture(t)
	const src = "https://www.youtube.com/watch?v=abc123"

	task, err := f.service.Relay(context.Background(), src, application.RelayOptions{GroupID: 5, Private: true})
	require.NoError(t, err)

	assert.Equal(t, "Some Video", task.Title)
	assert.Equal(t, filepath.Join(f.dir, "Some_Video.mp4"), task.FilePath)
	assert.Equal(t, "Great video & more", task.Description)
	assert.Equal(t, src, task.SourceURL)
	assert.Equal(t, int64(5), task.GroupID)
	assert.True(t, task.Private)
	assert.Equal(t, model.TaskStatusPending, task.Status)

	assert.NotNil(t, f.cache.blobs["abc123"])
	assert.Empty(t, f.thumbs.fetched)
}

func TestRelayService_MetadataIsCached(t *testing.T) {
	f := newRelayFixture(t)
	const src = "https://youtu.be/abc123"

	first, err := f.service.Metadata(context.Background(), src)
	require.NoError(t, err)
	second, err := f.service.Metadata(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 1, f.extractor.metadataCalls)
	assert.Equal(t, first.Title, second.Title)
}

func TestRelayService_SettingsDriveDownload(t *testing.T) {
	f := newRelayFixture(t)
	custom := t.TempDir()
	require.NoError(t, f.settings.Set(context.Background(), driven.SettingDownloadDir, custom))
	require.NoError(t, f.settings.Set(context.Background(), driven.SettingFormat, "best"))
	require.NoError(t, f.settings.Set(context.Background(), driven.SettingSaveThumbnails, "true"))

	task, err := f.service.Relay(context.Background(), "https://youtu.be/abc123", application.RelayOptions{Title: "Override"})
	require.NoError(t, err)

	assert.Equal(t, "Override", task.Title)
	assert.Equal(t, filepath.Join(custom, "Some_Video.mp4"), task.FilePath)
	assert.Equal(t, []string{"best"}, f.extractor.downloads)
	assert.Equal(t, []string{"https://i.ytimg.test/vi/abc123/hq.jpg"}, f.thumbs.fetched)
}

func TestRelayService_DownloadFailureIsFatal(t *testing.T) {
	f := newRelayFixture(t)
	f.extractor.downloadErr = errors.New("HTTP Error 403")

	_, err := f.service.Relay(context.Background(), "https://youtu.be/abc123", application.RelayOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download")
	assert.Len(t, f.extractor.downloads, 1)
	assert.Empty(t, f.queue.Tasks())
}
