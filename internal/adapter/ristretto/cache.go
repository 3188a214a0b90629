// Package ristretto implements the cache port with an in-process
// dgraph-io/ristretto cache. It backs the matcher's per-generation match
// results.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/fraudgrid/fraudgrid/internal/config"
)

// Cache wraps a ristretto cache keyed by string with raw byte values.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache sized from the config: MaxSizeMB bounds total value
// bytes, NumCounters sizes the admission frequency sketch.
func New(cfg config.Cache) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: cfg.NumCounters,
		MaxCost:     int64(cfg.MaxSizeMB) << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get retrieves a value from the cache.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value costed by its size with the given TTL. Admission is
// best-effort; a rejected write is not an error.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close shuts down the cache and releases its buffers.
func (c *Cache) Close() {
	c.c.Close()
}
