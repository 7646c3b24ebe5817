package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

// Uploader performs one transfer attempt for a task. The queue treats any
// returned error as a failed attempt.
type Uploader interface {
	Upload(ctx context.Context, task model.Task, progress model.ProgressSink) (*model.UploadResult, error)
}

// Compile-time interface satisfaction check.
var _ Uploader = (*VideoUploader)(nil)

// VideoUploader uploads a local file in three steps: resolve a destination,
// stream the bytes, then finalize the video's metadata.
type VideoUploader struct {
	api    *APIClient
	tokens *TokenManager
}

// NewVideoUploader creates a VideoUploader.
func NewVideoUploader(api *APIClient, tokens *TokenManager) *VideoUploader {
	return &VideoUploader{api: api, tokens: tokens}
}

// Upload implements Uploader.
func (u *VideoUploader) Upload(ctx context.Context, task model.Task, progress model.ProgressSink) (*model.UploadResult, error) {
	info, err := os.Stat(task.FilePath)
	if err != nil {
		return nil, err
	}

	if !u.tokens.EnsureValid(ctx) {
		return nil, fmt.Errorf("no usable credential: %w", model.ErrAuthDeclined)
	}

	req := task.UploadRequest()

	dest, err := u.api.ResolveUploadDestination(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("resolve upload destination: %w", err)
	}

	start := time.Now()
	if err := u.api.StreamUpload(ctx, dest, task.FilePath, progress); err != nil {
		return nil, fmt.Errorf("stream upload: %w", err)
	}
	elapsed := time.Since(start)

	if err := u.api.FinalizeMetadata(ctx, dest, req); err != nil {
		return nil, fmt.Errorf("finalize metadata: %w", err)
	}

	ownerID := dest.OwnerID
	if req.GroupID != 0 {
		ownerID = -req.GroupID
	}

	slog.Info("video uploaded",
		"task_id", task.ID,
		"size", humanize.Bytes(uint64(info.Size())),
		"duration", elapsed.Round(time.Millisecond),
		"owner_id", ownerID,
		"video_id", dest.VideoID,
	)

	return &model.UploadResult{
		OwnerID: ownerID,
		VideoID: dest.VideoID,
		URL:     model.VideoURL(ownerID, dest.VideoID),
	}, nil
}
