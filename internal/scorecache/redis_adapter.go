package scorecache

import (
	"context"
	"errors"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// redisClientAdapter narrows *redis.Client down to the byte-slice
// Get/Set shape this package depends on, so the cache logic above stays
// free of go-redis's richer *Cmd return types.
type redisClientAdapter struct {
	client *goredis.Client
}

// NewRedisClientAdapter wraps a real Redis client for use with NewRedisCache.
func NewRedisClientAdapter(client *goredis.Client) redisClient {
	return &redisClientAdapter{client: client}
}

func (a *redisClientAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := a.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (a *redisClientAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return a.client.Set(ctx, key, value, ttl).Err()
}
