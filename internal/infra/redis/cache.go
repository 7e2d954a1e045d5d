// Package redis caches enriched source content so repeated workflow runs
// over the same selection skip the expensive enrichment fetch.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shahabnazari/litpipe/internal/core/domain"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	TTL      time.Duration `yaml:"ttl"`
}

// Cache wraps Redis for enriched-content caching.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache creates and verifies a Redis connection.
func NewCache(cfg Config) (*Cache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{rdb: rdb, ttl: cfg.TTL}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

func enrichedKey(persistedID string) string {
	return fmt.Sprintf("litpipe:enriched:%s", persistedID)
}

// GetEnriched returns the cached enriched record, with found=false on a miss.
func (c *Cache) GetEnriched(ctx context.Context, persistedID string) (*domain.Source, bool, error) {
	data, err := c.rdb.Get(ctx, enrichedKey(persistedID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var src domain.Source
	if err := json.Unmarshal(data, &src); err != nil {
		// A corrupt entry is treated as a miss; it will be overwritten.
		return nil, false, nil
	}
	return &src, true, nil
}

// SetEnriched stores the enriched record under the configured TTL.
func (c *Cache) SetEnriched(ctx context.Context, src *domain.Source) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, enrichedKey(src.PersistedID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
