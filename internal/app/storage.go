package app

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/inkpress/inkpress/internal/media"
)

// NewStorage builds the media backend selected by STORAGE_DRIVER.
func NewStorage(ctx context.Context, cfg *Config) (media.Storage, error) {
	switch cfg.StorageDriver {
	case StorageMinIO:
		return media.NewMinIOStorage(ctx, media.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
	case StorageLocal, "":
		fs := afero.NewOsFs()
		if err := fs.MkdirAll(cfg.StorageDir, 0o755); err != nil {
			return nil, fmt.Errorf("app: create storage dir: %w", err)
		}
		return media.NewLocalStorage(fs, cfg.StorageDir, cfg.StoragePublicURL), nil
	default:
		return nil, fmt.Errorf("app: unknown storage driver %q", cfg.StorageDriver)
	}
}
