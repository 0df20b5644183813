package storage

import (
	"context"
	"fmt"

	"comfy-gateway/internal/config"
	"comfy-gateway/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// New picks the driver named in cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig, logger *zerolog.Logger) (adapter.ObjectStorage, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Storage(ctx, cfg, logger)
	case "local":
		return NewLocalStorage(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
