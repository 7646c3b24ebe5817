package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "golang.org/x/crypto/x509roots/fallback" // CA roots for HTTPS to VK when the host has none

	"github.com/ericfisherdev/vidrelay/internal/adapter/driving/cli"
	"github.com/ericfisherdev/vidrelay/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Install the structured logger at the configured level.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Debug("config loaded",
		"db_path", cfg.DBPath,
		"listen_addr", cfg.ListenAddr,
		"encrypted_credentials", cfg.HasSecretKey(),
		"max_concurrent", cfg.MaxConcurrent,
		"max_retries", cfg.MaxRetries,
	)

	// 3. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Dispatch to the requested command. Adapters are wired per command.
	return cli.NewRootCommand(newFactory(cfg)).ExecuteContext(ctx)
}
