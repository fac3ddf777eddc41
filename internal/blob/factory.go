// Package blob selects the asset blob store configured for the process.
package blob

import (
	"context"
	"fmt"

	"cadcore/internal/blob/core"
	"cadcore/internal/config"
	"cadcore/internal/infra/blob/fs"
	memorystore "cadcore/internal/infra/blob/memory"
	infraS3 "cadcore/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

// Open builds the blob store described by cfg. An empty driver means fs.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch core.Driver(cfg.Driver) {
	case "", core.DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case core.DriverMemory:
		return memorystore.New(), nil
	case core.DriverS3:
		return infraS3.New(ctx, infraS3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKey,
			SecretAccessKey: cfg.S3.SecretKey,
			PathStyle:       cfg.S3.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
