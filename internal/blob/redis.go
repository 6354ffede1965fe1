package blob

import (
	"context"

	infraRedis "btxclinic/internal/infra/blob/redis"
)

// RedisConfig re-exports the infra Redis configuration type.
type RedisConfig = infraRedis.Config

// NewRedis connects a Redis-backed Store.
func NewRedis(ctx context.Context, cfg RedisConfig) (Store, error) {
	store, err := infraRedis.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}
