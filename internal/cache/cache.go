// Package cache stores rendered API responses for a short time, in process
// or in Redis.
package cache

import (
	"context"
	"time"
)

// Cache is a byte cache with per entry expiry.
type Cache interface {
	// Name labels the backend in metrics.
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DefaultCapacity is the number of entries the in-process cache keeps.
const DefaultCapacity = 64

// New returns a Redis cache when redisURL is set and an in-process LRU
// otherwise.
func New(redisURL string) (Cache, error) {
	if redisURL == "" {
		return NewLRU(DefaultCapacity), nil
	}
	return NewRedis(redisURL, "powermap:")
}
