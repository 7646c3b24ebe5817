package application

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// QueueConfigFromSettings overlays user preferences from the settings store on
// base. Unset or malformed settings leave the base value in place. The result
// is read once; later settings changes need a restart.
func QueueConfigFromSettings(ctx context.Context, store driven.SettingsStore, base QueueConfig) QueueConfig {
	cfg := base

	if raw, err := store.Get(ctx, driven.SettingDefaultGroupID); err != nil {
		slog.Warn("read setting", "key", driven.SettingDefaultGroupID, "error", err)
	} else if raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id >= 0 {
			cfg.DefaultGroupID = id
		} else {
			slog.Warn("ignoring invalid setting", "key", driven.SettingDefaultGroupID, "value", raw)
		}
	}

	if raw, err := store.Get(ctx, driven.SettingMaxConcurrent); err != nil {
		slog.Warn("read setting", "key", driven.SettingMaxConcurrent, "error", err)
	} else if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.Concurrency = n
		} else {
			slog.Warn("ignoring invalid setting", "key", driven.SettingMaxConcurrent, "value", raw)
		}
	}

	return cfg
}
