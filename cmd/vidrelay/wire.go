package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ericfisherdev/vidrelay/internal/adapter/driven/authprompt"
	sqliteadapter "github.com/ericfisherdev/vidrelay/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/vidrelay/internal/adapter/driven/tokenfile"
	"github.com/ericfisherdev/vidrelay/internal/adapter/driven/vk"
	"github.com/ericfisherdev/vidrelay/internal/adapter/driven/ytdlp"
	"github.com/ericfisherdev/vidrelay/internal/adapter/driving/cli"
	"github.com/ericfisherdev/vidrelay/internal/application"
	"github.com/ericfisherdev/vidrelay/internal/config"
	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// metadataTimeout bounds one yt-dlp metadata lookup.
const metadataTimeout = 2 * time.Minute

// newFactory returns the cli.Factory that wires every adapter from cfg.
func newFactory(cfg *config.Config) cli.Factory {
	return func(ctx context.Context) (*cli.Services, error) {
		// 1. Open database (dual reader/writer with WAL mode).
		db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		slog.Debug("database opened", "path", cfg.DBPath)

		// 2. Run migrations on writer connection.
		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			return nil, errors.Join(err, db.Close())
		}

		// 3. Wire storage adapters. The credential lives in the database when a
		// secret key is configured, otherwise in a 0600 token file.
		var credentials driven.CredentialStore
		if cfg.HasSecretKey() {
			credentials = sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
		} else {
			credentials = tokenfile.New(cfg.TokenFile)
		}
		settings := sqliteadapter.NewSettingsRepo(db)
		history := sqliteadapter.NewUploadRepo(db)
		metadata := sqliteadapter.NewMetadataRepo(db)

		// 4. Remote API client, token lifecycle and retrying call layer.
		if cfg.ClientID == "" {
			slog.Debug("VIDRELAY_CLIENT_ID not set, interactive authorization will be rejected")
		}
		vkClient := vk.NewClient(vk.Options{
			BaseURL:         cfg.APIBaseURL,
			OAuthURL:        cfg.OAuthBaseURL,
			ClientID:        cfg.ClientID,
			Version:         cfg.APIVersion,
			RequestInterval: cfg.RequestInterval,
		})
		tokens := application.NewTokenManager(credentials, vkClient, authprompt.New())
		api := application.NewAPIClient(vkClient, tokens, application.DefaultMaxAttempts, application.DefaultRetryDelay)

		// 5. Queue, dispatcher and subscribers.
		bus := application.NewEventBus()
		queueCfg := application.QueueConfigFromSettings(ctx, settings, application.QueueConfig{
			Concurrency:    cfg.MaxConcurrent,
			MaxRetries:     cfg.MaxRetries,
			AttemptTimeout: cfg.UploadTimeout,
		})
		queue := application.NewUploadQueue(application.NewVideoUploader(api, tokens), bus, queueCfg)

		provenance := application.NewProvenanceRecorder(history)
		provenance.Attach(bus)

		// 6. Source platform relay.
		relay := application.NewRelayService(
			ytdlp.NewExtractor(metadataTimeout),
			ytdlp.NewThumbnailFetcher(),
			metadata,
			settings,
			queue,
			cfg.DownloadDir,
		)

		return &cli.Services{
			Bus:        bus,
			Queue:      queue,
			Relay:      relay,
			Provenance: provenance,
			Tokens:     tokens,
			API:        api,
			Settings:   settings,
			ListenAddr: cfg.ListenAddr,
			Close: func() error {
				queue.Shutdown()
				return db.Close()
			},
		}, nil
	}
}
