package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MetadataCache = (*MetadataRepo)(nil)

// MetadataRepo caches source video metadata blobs in SQLite.
type MetadataRepo struct {
	db *DB
}

// NewMetadataRepo creates a new MetadataRepo backed by the given DB.
func NewMetadataRepo(db *DB) *MetadataRepo {
	return &MetadataRepo{db: db}
}

// Get returns the cached blob for videoID, or (nil, nil) on a miss.
func (r *MetadataRepo) Get(ctx context.Context, videoID string) ([]byte, error) {
	var blob []byte
	err := r.db.Reader.QueryRowContext(ctx, `SELECT data FROM video_metadata WHERE video_id = ?`, videoID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata[%s]: %w", videoID, err)
	}
	return blob, nil
}

// Put stores blob for videoID, replacing any previous entry.
func (r *MetadataRepo) Put(ctx context.Context, videoID string, blob []byte) error {
	_, err := r.db.Writer.ExecContext(ctx, `
		INSERT INTO video_metadata (video_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, videoID, blob, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("put metadata[%s]: %w", videoID, err)
	}
	return nil
}
