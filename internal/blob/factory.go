package blob

import (
	"context"

	"github.com/rotisserie/eris"

	"tracechain/internal/infra/blob/fs"
	memorystore "tracechain/internal/infra/blob/memory"
	infraS3 "tracechain/internal/infra/blob/s3"
)

// S3Config re-exports the S3 adapter configuration.
type S3Config = infraS3.Config

// Config selects a backend. It is populated from the blob.* configuration keys.
type Config struct {
	Driver string
	FSRoot string
	S3     S3Config
}

// Open builds the Store named by cfg.Driver. An empty driver selects memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := Driver(cfg.Driver)
	if driver == "" {
		driver = DriverMemory
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return infraS3.New(ctx, cfg.S3)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, eris.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
