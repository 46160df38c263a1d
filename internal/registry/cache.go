package registry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cachedStore is a Redis read-through decorator over another Store.
// Only Find is cached; Insert and BumpUsage write through and drop the
// cached entry so a rotated credential is never served stale.
type cachedStore struct {
	inner Store
	rdb   *redis.Client
	ttl   time.Duration
	log   *zap.SugaredLogger
}

func NewCachedStore(inner Store, rdb *redis.Client, ttl time.Duration, log *zap.SugaredLogger) Store {
	return &cachedStore{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func cacheKey(tenantID string) string { return "tenantdb:" + tenantID }

func (c *cachedStore) Find(ctx context.Context, tenantID string) (*TenantRecord, error) {
	if b, err := c.rdb.Get(ctx, cacheKey(tenantID)).Bytes(); err == nil {
		var rec TenantRecord
		if jerr := json.Unmarshal(b, &rec); jerr == nil {
			return &rec, nil
		}
		// Corrupt entry: drop it and fall through to the store.
		c.rdb.Del(ctx, cacheKey(tenantID))
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warnw("registry cache read", "tenant", tenantID, "err", err)
	}

	rec, err := c.inner.Find(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(rec); err == nil {
		if err := c.rdb.Set(ctx, cacheKey(tenantID), b, c.ttl).Err(); err != nil {
			c.log.Warnw("registry cache write", "tenant", tenantID, "err", err)
		}
	}
	return rec, nil
}

func (c *cachedStore) Insert(ctx context.Context, rec *TenantRecord) error {
	if err := c.inner.Insert(ctx, rec); err != nil {
		return err
	}
	c.rdb.Del(ctx, cacheKey(rec.TenantID))
	return nil
}

func (c *cachedStore) BumpUsage(ctx context.Context, tenantID string, delta int64) error {
	if err := c.inner.BumpUsage(ctx, tenantID, delta); err != nil {
		return err
	}
	c.rdb.Del(ctx, cacheKey(tenantID))
	return nil
}

func (c *cachedStore) EnsureSchema(ctx context.Context) error {
	return c.inner.EnsureSchema(ctx)
}
