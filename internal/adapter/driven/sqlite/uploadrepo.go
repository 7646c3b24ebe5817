package sqlite

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.UploadHistoryStore = (*UploadRepo)(nil)

// UploadRepo is the SQLite implementation of the UploadHistoryStore port interface.
type UploadRepo struct {
	db *DB
}

// NewUploadRepo creates a new UploadRepo backed by the given DB.
func NewUploadRepo(db *DB) *UploadRepo {
	return &UploadRepo{db: db}
}

// Record stores the provenance of a completed upload. Recording the same task
// twice keeps the latest result.
func (r *UploadRepo) Record(ctx context.Context, rec model.UploadRecord) error {
	const query = `
		INSERT INTO uploads (task_id, file_path, title, source_url, owner_id, video_id, url, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			video_id = excluded.video_id,
			url = excluded.url,
			completed_at = excluded.completed_at
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		rec.TaskID, rec.FilePath, rec.Title, rec.SourceURL,
		rec.OwnerID, rec.VideoID, rec.URL, rec.CompletedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record upload %s: %w", rec.TaskID, err)
	}
	return nil
}

// List returns upload records newest first. A limit of 0 returns all records.
func (r *UploadRepo) List(ctx context.Context, limit int) ([]model.UploadRecord, error) {
	query := `
		SELECT id, task_id, file_path, title, source_url, owner_id, video_id, url, completed_at
		FROM uploads
		ORDER BY completed_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	records := []model.UploadRecord{}
	for rows.Next() {
		var rec model.UploadRecord
		var completedAt string
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.FilePath, &rec.Title, &rec.SourceURL,
			&rec.OwnerID, &rec.VideoID, &rec.URL, &completedAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}

		rec.CompletedAt, err = parseTime(completedAt)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at for upload %s: %w", rec.TaskID, err)
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}

	return records, nil
}
