package core

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrCacheMiss is returned when the requested key is not found in cache.
var ErrCacheMiss = errors.New("cache: key not found")

// Cache stores JSON serializable values.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Cache key prefixes
const (
	CacheKeyReport = "kikundi:report:"
)
