// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath          string
	SecretKey       []byte // 32-byte AES key; nil selects the plain token file.
	TokenFile       string
	ClientID        string
	APIVersion      string
	APIBaseURL      string
	OAuthBaseURL    string
	RequestInterval time.Duration
	MaxConcurrent   int
	MaxRetries      int
	UploadTimeout   time.Duration
	ListenAddr      string
	DownloadDir     string
	LogLevel        slog.Level
}

// HasSecretKey returns true when credentials should be stored encrypted in the
// database rather than in the token file.
func (c *Config) HasSecretKey() bool {
	return len(c.SecretKey) > 0
}

// Load reads configuration from environment variables and returns a validated Config.
// Every variable is optional. Defaults: VIDRELAY_DB_PATH (vidrelay.db),
// VIDRELAY_TOKEN_FILE (vidrelay_token.json), VIDRELAY_API_VERSION (5.131),
// VIDRELAY_API_BASE_URL (https://api.vk.com), VIDRELAY_OAUTH_BASE_URL
// (https://oauth.vk.com), VIDRELAY_REQUEST_INTERVAL (340ms),
// VIDRELAY_MAX_CONCURRENT (2), VIDRELAY_MAX_RETRIES (3),
// VIDRELAY_UPLOAD_TIMEOUT (0, no limit), VIDRELAY_LISTEN_ADDR (127.0.0.1:8080),
// VIDRELAY_DOWNLOAD_DIR (downloads), VIDRELAY_LOG_LEVEL (info).
// VIDRELAY_SECRET_KEY, when set, must be 64 hex characters.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:          stringEnv("VIDRELAY_DB_PATH", "vidrelay.db"),
		TokenFile:       stringEnv("VIDRELAY_TOKEN_FILE", "vidrelay_token.json"),
		ClientID:        os.Getenv("VIDRELAY_CLIENT_ID"),
		APIVersion:      stringEnv("VIDRELAY_API_VERSION", "5.131"),
		APIBaseURL:      stringEnv("VIDRELAY_API_BASE_URL", "https://api.vk.com"),
		OAuthBaseURL:    stringEnv("VIDRELAY_OAUTH_BASE_URL", "https://oauth.vk.com"),
		ListenAddr:      stringEnv("VIDRELAY_LISTEN_ADDR", "127.0.0.1:8080"),
		DownloadDir:     stringEnv("VIDRELAY_DOWNLOAD_DIR", "downloads"),
		RequestInterval: 340 * time.Millisecond,
		MaxConcurrent:   2,
		MaxRetries:      3,
		LogLevel:        slog.LevelInfo,
	}

	var err error
	if cfg.RequestInterval, err = durationEnv("VIDRELAY_REQUEST_INTERVAL", cfg.RequestInterval); err != nil {
		return nil, err
	}
	if cfg.UploadTimeout, err = durationEnv("VIDRELAY_UPLOAD_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrent, err = positiveIntEnv("VIDRELAY_MAX_CONCURRENT", cfg.MaxConcurrent); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = positiveIntEnv("VIDRELAY_MAX_RETRIES", cfg.MaxRetries); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("VIDRELAY_SECRET_KEY"); ok && v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("VIDRELAY_SECRET_KEY is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("VIDRELAY_SECRET_KEY must be 64 hex characters (32 bytes), got %d bytes", len(key))
		}
		cfg.SecretKey = key
	}

	if v, ok := os.LookupEnv("VIDRELAY_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
			return nil, fmt.Errorf("VIDRELAY_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	return cfg, nil
}

func stringEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, v)
	}
	return parsed, nil
}

func positiveIntEnv(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
