package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

// scanBatch is the COUNT hint used while walking keys for invalidation.
const scanBatch = 100

// TemplateCache stores resolved template sets as JSON strings with a bounded,
// jittered lifetime. It implements the obligation domain's TemplateCache.
type TemplateCache struct {
	client *Client
	logger logging.Logger
	ttl    time.Duration
	group  singleflight.Group
}

var _ domain.TemplateCache = (*TemplateCache)(nil)

// CacheOption configures a TemplateCache.
type CacheOption func(*TemplateCache)

// WithTTL sets the entry lifetime. Non-positive values are ignored.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *TemplateCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(log logging.Logger) CacheOption {
	return func(c *TemplateCache) {
		if log != nil {
			c.logger = log
		}
	}
}

// NewTemplateCache builds a cache over client. The default lifetime is five
// minutes.
func NewTemplateCache(client *Client, opts ...CacheOption) *TemplateCache {
	c := &TemplateCache{
		client: client,
		logger: logging.NewNopLogger(),
		ttl:    5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TemplateCache) jitterTTL(ttl time.Duration) time.Duration {
	// +/- 10%
	jitter := float64(ttl) * 0.1 * (rand.Float64()*2 - 1)
	return ttl + time.Duration(jitter)
}

// GetTemplates returns the cached set under key. Concurrent lookups of the
// same key share one round trip.
func (c *TemplateCache) GetTemplates(ctx context.Context, key string) ([]*domain.Template, bool, error) {
	fullKey := c.client.Key(key)
	v, err, _ := c.group.Do(fullKey, func() (interface{}, error) {
		data, err := c.client.Get(ctx, fullKey).Bytes()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
		}
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}

	var out []*domain.Template
	if err := json.Unmarshal(v.([]byte), &out); err != nil {
		c.logger.Warn("dropping undecodable cache entry", logging.String("key", fullKey), logging.Err(err))
		_ = c.client.Del(ctx, fullKey).Err()
		return nil, false, nil
	}
	if out == nil {
		out = []*domain.Template{}
	}
	return out, true, nil
}

// SetTemplates stores templates under key. An empty set is cached too.
func (c *TemplateCache) SetTemplates(ctx context.Context, key string, templates []*domain.Template) error {
	if templates == nil {
		templates = []*domain.Template{}
	}
	data, err := json.Marshal(templates)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode templates")
	}
	if err := c.client.Set(ctx, c.client.Key(key), data, c.jitterTTL(c.ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set cache")
	}
	return nil
}

// InvalidatePrefix deletes every entry under prefix using SCAN so large
// keyspaces are not blocked.
func (c *TemplateCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	var deleted int64
	var cursor uint64
	match := c.client.Key(prefix) + "*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeCacheError, "failed to scan cache keys")
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete cache keys")
			}
			deleted += int64(len(keys))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Debug("template cache invalidated", logging.String("prefix", prefix), logging.Int64("deleted", deleted))
	return nil
}

//Personal.AI order the ending
