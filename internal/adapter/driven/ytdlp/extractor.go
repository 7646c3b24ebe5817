// Package ytdlp implements the Extractor port on top of the yt-dlp binary.
package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Extractor = (*Extractor)(nil)

// DefaultFormat picks the best mp4 rendition that the upload side accepts.
const DefaultFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

// ErrNoResult is returned when yt-dlp finishes without reporting a video.
var ErrNoResult = errors.New("yt-dlp returned no video info")

// Extractor shells out to yt-dlp for metadata and downloads.
type Extractor struct {
	timeout time.Duration
}

// NewExtractor creates an Extractor. timeout bounds metadata lookups; zero
// disables the bound.
func NewExtractor(timeout time.Duration) *Extractor {
	return &Extractor{timeout: timeout}
}

// ExtractMetadata fetches the source video's metadata without downloading it.
func (e *Extractor) ExtractMetadata(ctx context.Context, sourceURL string) (*model.VideoMetadata, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	dl := ytdlp.New().
		NoPlaylist().
		DumpJSON()

	result, err := dl.Run(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("extract metadata for %s: %w", sourceURL, err)
	}

	infos, err := result.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse metadata for %s: %w", sourceURL, err)
	}
	if len(infos) == 0 {
		return nil, ErrNoResult
	}
	info := infos[0]

	meta := &model.VideoMetadata{
		SourceID:     model.SourceVideoID(sourceURL),
		URL:          sourceURL,
		Title:        deref(info.Title),
		Description:  deref(info.Description),
		Uploader:     deref(info.Uploader),
		UploadDate:   deref(info.UploadDate),
		ThumbnailURL: deref(info.Thumbnail),
	}
	if info.Duration != nil {
		meta.Duration = time.Duration(float64(*info.Duration) * float64(time.Second))
	}
	if info.ViewCount != nil {
		meta.ViewCount = int64(*info.ViewCount)
	}

	return meta, nil
}

// Download saves the video into destDir and returns the written file path.
func (e *Extractor) Download(ctx context.Context, sourceURL, format, destDir string) (string, error) {
	if format == "" {
		format = DefaultFormat
	}

	dl := ytdlp.New().
		NoPlaylist().
		Format(format).
		RestrictFilenames().
		ForceOverwrites().
		PrintJSON().
		Output(filepath.Join(destDir, "%(title)s.%(ext)s"))

	start := time.Now()
	result, err := dl.Run(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", sourceURL, err)
	}

	infos, err := result.GetExtractedInfo()
	if err != nil {
		return "", fmt.Errorf("parse download result for %s: %w", sourceURL, err)
	}
	if len(infos) == 0 || infos[0].Filename == nil {
		return "", ErrNoResult
	}

	path := *infos[0].Filename
	slog.Info("source video downloaded", "url", sourceURL, "path", path, "duration", time.Since(start))
	return path, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
