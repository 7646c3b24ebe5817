package application

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// RelayOptions tweaks one relay. Zero values fall back to settings.
type RelayOptions struct {
	Title   string
	GroupID int64
	Private bool
	Format  string
}

// RelayService downloads a video from the source platform and enqueues it for
// upload, keeping the source URL for provenance.
type RelayService struct {
	extractor   driven.Extractor
	thumbnails  driven.ThumbnailFetcher
	cache       driven.MetadataCache
	settings    driven.SettingsStore
	queue       *UploadQueue
	downloadDir string
	sanitizer   *bluemonday.Policy
}

// NewRelayService creates a RelayService. downloadDir is used unless the
// download_dir setting overrides it.
func NewRelayService(
	extractor driven.Extractor,
	thumbnails driven.ThumbnailFetcher,
	cache driven.MetadataCache,
	settings driven.SettingsStore,
	queue *UploadQueue,
	downloadDir string,
) *RelayService {
	return &RelayService{
		extractor:   extractor,
		thumbnails:  thumbnails,
		cache:       cache,
		settings:    settings,
		queue:       queue,
		downloadDir: downloadDir,
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

// Metadata returns the source video's metadata, from the cache when possible.
// A cache failure is logged and falls through to the extractor.
func (s *RelayService) Metadata(ctx context.Context, sourceURL string) (*model.VideoMetadata, error) {
	id := sourceID(sourceURL)

	if blob, err := s.cache.Get(ctx, id); err != nil {
		slog.Warn("metadata cache read failed", "video_id", id, "error", err)
	} else if blob != nil {
		var meta model.VideoMetadata
		if err := json.Unmarshal(blob, &meta); err == nil {
			return &meta, nil
		}
		slog.Warn("discarding corrupt metadata cache entry", "video_id", id)
	}

	meta, err := s.extractor.ExtractMetadata(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	if meta.SourceID == "" {
		meta.SourceID = id
	}

	if blob, err := json.Marshal(meta); err == nil {
		if err := s.cache.Put(ctx, id, blob); err != nil {
			slog.Warn("metadata cache write failed", "video_id", id, "error", err)
		}
	}
	return meta, nil
}

// Relay downloads sourceURL and enqueues the file for upload. Extractor
// failures end the relay; they are not retried here.
func (s *RelayService) Relay(ctx context.Context, sourceURL string, opts RelayOptions) (model.Task, error) {
	meta, err := s.Metadata(ctx, sourceURL)
	if err != nil {
		return model.Task{}, fmt.Errorf("relay %s: metadata: %w", sourceURL, err)
	}

	dir := s.setting(ctx, driven.SettingDownloadDir, s.downloadDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.Task{}, fmt.Errorf("relay %s: create download dir: %w", sourceURL, err)
	}

	format := opts.Format
	if format == "" {
		format = s.setting(ctx, driven.SettingFormat, "")
	}

	path, err := s.extractor.Download(ctx, sourceURL, format, dir)
	if err != nil {
		return model.Task{}, fmt.Errorf("relay %s: download: %w", sourceURL, err)
	}

	if s.saveThumbnails(ctx) && meta.ThumbnailURL != "" {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if thumb, err := s.thumbnails.Fetch(ctx, meta.ThumbnailURL, filepath.Dir(path), base); err != nil {
			slog.Warn("thumbnail download failed", "url", meta.ThumbnailURL, "error", err)
		} else {
			slog.Debug("thumbnail saved", "path", thumb)
		}
	}

	title := opts.Title
	if title == "" {
		title = meta.Title
	}
	if title == "" {
		title = filepath.Base(path)
	}

	return s.queue.Enqueue(model.TaskSpec{
		FilePath:    path,
		Title:       title,
		Description: s.cleanDescription(meta.Description),
		GroupID:     opts.GroupID,
		SourceURL:   sourceURL,
		Private:     opts.Private,
	})
}

// cleanDescription strips markup the source platform may leave in
// descriptions. The upload side shows plain text, so entities are decoded.
func (s *RelayService) cleanDescription(desc string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(desc)))
}

func (s *RelayService) setting(ctx context.Context, key, fallback string) string {
	v, err := s.settings.Get(ctx, key)
	if err != nil {
		slog.Warn("read setting", "key", key, "error", err)
		return fallback
	}
	if v == "" {
		return fallback
	}
	return v
}

func (s *RelayService) saveThumbnails(ctx context.Context) bool {
	on, err := strconv.ParseBool(s.setting(ctx, driven.SettingSaveThumbnails, "false"))
	return err == nil && on
}

// sourceID keys the metadata cache. URLs without a recognisable video ID
// are keyed by the URL itself.
func sourceID(sourceURL string) string {
	if id := model.SourceVideoID(sourceURL); id != "" {
		return id
	}
	return sourceURL
}
