package driven

import (
	"context"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

// UploadHistoryStore defines the driven port for upload provenance records.
type UploadHistoryStore interface {
	Record(ctx context.Context, rec model.UploadRecord) error
	// List returns records newest first, at most limit (0 = all).
	List(ctx context.Context, limit int) ([]model.UploadRecord, error)
}
