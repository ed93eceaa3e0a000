// Package cachesvc implements core.Cache on top of Redis, with an in-memory fallback for DEV & tests.
package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/kikundi/core"
)

type redisCache struct {
	client *redis.Client
}

var _ core.Cache = (*redisCache)(nil)

// NewRedisCache connects to Redis and checks the connection.
func NewRedisCache(ctx context.Context, conf core.RedisConfig) (*redisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         conf.Addr,
		Password:     conf.Password,
		DB:           conf.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "connecting to redis")
	}
	return &redisCache{client: client}, nil
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.ErrCacheMiss
		}
		return errors.Wrap(err, "reading cache")
	}
	return errors.Wrap(json.Unmarshal(data, dest), "decoding cached value")
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "encoding cached value")
	}
	return errors.Wrap(c.client.Set(ctx, key, data, ttl).Err(), "writing cache")
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return errors.Wrap(c.client.Del(ctx, keys...).Err(), "deleting cache keys")
}

// New returns the Redis cache when enabled, the in-memory cache otherwise.
// A Redis outage at startup is logged and falls back to memory.
func New(ctx context.Context, conf core.RedisConfig, logger core.Logger) core.Cache {
	if !conf.Enabled {
		return NewMemoryCache()
	}
	c, err := NewRedisCache(ctx, conf)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory cache", err, map[string]interface{}{"addr": conf.Addr})
		return NewMemoryCache()
	}
	return c
}
