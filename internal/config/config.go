// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Telegram
	BotToken      string
	BotAPIURL     string // override for tests; empty = api.telegram.org
	WebhookSecret string

	// Snapshot persistence ("file", "s3" or "postgres")
	SnapshotBackend string
	SnapshotPath    string
	DatabaseURL     string

	// S3 snapshot storage
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// Pagination token signing
	TokenSecret string
	TokenTTL    time.Duration

	// Limits
	MaxSessions      int
	ListPageSize     int
	ContentChunkSize int
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:      envOr("METRICS_ADDR", ":9090"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "json"),
		BotToken:         envOr("BOT_TOKEN", ""),
		BotAPIURL:        envOr("BOT_API_URL", ""),
		WebhookSecret:    envOr("WEBHOOK_SECRET", ""),
		SnapshotBackend:  envOr("SNAPSHOT_BACKEND", "file"),
		SnapshotPath:     envOr("SNAPSHOT_PATH", "/data/snapshot.json"),
		DatabaseURL:      envOr("DATABASE_URL", ""),
		S3Endpoint:       envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:         envOr("S3_BUCKET", "infinitecloud"),
		S3AccessKey:      envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:         envOr("S3_REGION", "us-east-1"),
		S3UseSSL:         envBool("S3_USE_SSL", false),
		TokenSecret:      envOr("TOKEN_SECRET", ""),
		TokenTTL:         envDuration("TOKEN_TTL", 15*time.Minute),
		MaxSessions:      envInt("MAX_SESSIONS", 0), // 0 = unbounded
		ListPageSize:     envInt("LIST_PAGE_SIZE", 10),
		ContentChunkSize: envInt("CONTENT_CHUNK_SIZE", 256*1024),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if cfg.TokenSecret == "" {
		// Pagination tokens are only redeemed by this process; defaulting to
		// the webhook secret keeps single-var deployments working.
		cfg.TokenSecret = cfg.WebhookSecret
	}
	switch cfg.SnapshotBackend {
	case "file", "s3":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres snapshot backend")
		}
	default:
		return nil, fmt.Errorf("unknown SNAPSHOT_BACKEND %q", cfg.SnapshotBackend)
	}
	if cfg.ListPageSize < 1 {
		return nil, fmt.Errorf("LIST_PAGE_SIZE must be >= 1")
	}
	if cfg.ContentChunkSize < 1 {
		return nil, fmt.Errorf("CONTENT_CHUNK_SIZE must be >= 1")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
