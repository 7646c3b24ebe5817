package driven

import (
	"context"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

// Extractor defines the driven port for the source video platform. Failures
// are fatal for the single operation; any retrying is the extractor's business.
type Extractor interface {
	ExtractMetadata(ctx context.Context, sourceURL string) (*model.VideoMetadata, error)
	// Download saves the video into destDir and returns the local file path.
	Download(ctx context.Context, sourceURL, format, destDir string) (string, error)
}

// ThumbnailFetcher saves a thumbnail image into destDir and returns its path.
type ThumbnailFetcher interface {
	Fetch(ctx context.Context, thumbnailURL, destDir, baseName string) (string, error)
}
