package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/ledger"
	"stockflow/pkg/logger"
)

const cacheKeyPrefix = "stockflow:catalog:item:"

// CachedClient is a read-through Redis cache in front of another catalog.
// Redis failures fall through to the origin. Misses are not cached.
type CachedClient struct {
	origin ledger.Catalog
	redis  *redis.Client
	ttl    time.Duration
}

// NewCachedClient wraps origin with a cache of entries living ttl.
func NewCachedClient(origin ledger.Catalog, rdb *redis.Client, ttl time.Duration) *CachedClient {
	return &CachedClient{origin: origin, redis: rdb, ttl: ttl}
}

func (c *CachedClient) GetItem(ctx context.Context, itemID id.ID) (ledger.CatalogItem, error) {
	key := cacheKeyPrefix + itemID.String()

	raw, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var item ledger.CatalogItem
		if jsonErr := json.Unmarshal(raw, &item); jsonErr == nil {
			return item, nil
		}
		logger.Warn(ctx, "discarding corrupt catalog cache entry", "item_id", itemID)
	case !errors.Is(err, redis.Nil):
		logger.Warn(ctx, "catalog cache read failed", "item_id", itemID, "error", err)
	}

	item, err := c.origin.GetItem(ctx, itemID)
	if err != nil {
		return ledger.CatalogItem{}, err
	}

	if payload, err := json.Marshal(item); err == nil {
		if err := c.redis.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			logger.Warn(ctx, "catalog cache write failed", "item_id", itemID, "error", err)
		}
	}
	return item, nil
}

// Invalidate drops the cached entry of an item.
func (c *CachedClient) Invalidate(ctx context.Context, itemID id.ID) error {
	if err := c.redis.Del(ctx, cacheKeyPrefix+itemID.String()).Err(); err != nil {
		return apperror.NewUpstreamUnavailable("redis", err)
	}
	return nil
}

// NewRedisClient parses url, connects and pings.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
