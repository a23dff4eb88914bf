package memcache

import (
	"context"
	"errors"
	"time"

	"github.com/maypok86/otter"
	"github.com/sirupsen/logrus"
)

var ErrNoExpiry = errors.New("memory cache: refusing to store entry without expiry")

// Cache is an in-process ports.Cache for single-node deployments without Redis.
// Entries are evicted by otter once their TTL elapses or the capacity is reached.
type Cache struct {
	store  otter.CacheWithVariableTTL[string, []byte]
	logger *logrus.Logger
}

func New(capacity int, logger *logrus.Logger) (*Cache, error) {
	if capacity <= 0 {
		return nil, errors.New("memory cache: capacity must be positive")
	}
	store, err := otter.MustBuilder[string, []byte](capacity).
		WithVariableTTL().
		Build()
	if err != nil {
		return nil, err
	}
	return &Cache{store: store, logger: logger}, nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := c.store.Get(key)
	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{"key": key, "found": ok}).Trace("memory cache lookup")
	}
	return v, ok, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrNoExpiry
	}
	c.store.Set(key, value, ttl)
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	c.store.Delete(key)
	return nil
}

// Close stops otter's background maintenance.
func (c *Cache) Close() {
	c.store.Close()
}
