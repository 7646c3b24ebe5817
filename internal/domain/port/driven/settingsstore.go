package driven

import "context"

// Settings keys read by the application.
const (
	SettingDefaultGroupID = "default_group_id"
	SettingMaxConcurrent  = "max_concurrent_uploads"
	SettingDownloadDir    = "download_dir"
	SettingSaveThumbnails = "save_thumbnails"
	SettingFormat         = "format"
)

// SettingsStore defines the driven port for user preference persistence.
// Get returns ("", nil) if the key has never been set, callers apply defaults.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}
