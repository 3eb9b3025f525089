package objectclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/config"
	"github.com/markdave123-py/documind/internal/core"
)

// New returns the blob store selected by STORAGE_DRIVER.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (core.ObjectClient, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverS3:
		return NewS3Client(ctx, cfg, log)
	case config.StorageDriverFilesystem:
		return NewFilesystemClient(cfg.StorageRoot, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
