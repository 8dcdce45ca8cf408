package snapshot

import (
	"context"
	"fmt"

	"github.com/infinitecloud/infinitecloud/internal/config"
)

// Open creates the Store selected by the configuration.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.SnapshotBackend {
	case "file":
		return NewFileStore(cfg.SnapshotPath)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
	case "postgres":
		return NewPostgresStore(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("snapshot: unknown backend %q", cfg.SnapshotBackend)
	}
}
