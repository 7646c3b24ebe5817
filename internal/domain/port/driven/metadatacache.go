package driven

import "context"

// MetadataCache defines the driven port for last-known source video metadata,
// stored as an opaque blob keyed by the source video ID.
// Get returns (nil, nil) on a miss.
type MetadataCache interface {
	Get(ctx context.Context, videoID string) ([]byte, error)
	Put(ctx context.Context, videoID string, blob []byte) error
}
