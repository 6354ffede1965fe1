package blob

import (
	"context"
	"fmt"
)

// Config selects and parameterizes a blob driver.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
	Redis  RedisConfig
}

// Open builds the configured Store. An empty driver selects the filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	case DriverRedis:
		return NewRedis(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
