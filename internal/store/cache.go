package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is a Redis-backed snapshot of a collection per owner, refreshed
// after successful writes and used only to accelerate reads and offline
// display. It is never consulted for correctness-critical decisions.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

// NewCache builds a snapshot cache. ttl bounds how long a snapshot may
// outlive its last refresh.
func NewCache(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl, log: log.Named("snapshot")}
}

func snapshotKey(collection, owner string) string {
	return "snapshot:" + collection + ":" + owner
}

// Refresh replaces the owner's snapshot of a collection. Failures are
// logged and swallowed.
func (c *Cache) Refresh(ctx context.Context, collection, owner string, records interface{}) {
	payload, err := json.Marshal(records)
	if err != nil {
		c.log.Debug("marshal snapshot failed", zap.String("collection", collection), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, snapshotKey(collection, owner), payload, c.ttl).Err(); err != nil {
		c.log.Debug("write snapshot failed", zap.String("collection", collection), zap.Error(err))
	}
}

// Snapshot reads the owner's snapshot into dst. Returns false when no
// snapshot exists.
func (c *Cache) Snapshot(ctx context.Context, collection, owner string, dst interface{}) (bool, error) {
	payload, err := c.rdb.Get(ctx, snapshotKey(collection, owner)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Invalidate drops all snapshots for an owner, used on sign-out.
func (c *Cache) Invalidate(ctx context.Context, owner string) {
	iter := c.rdb.Scan(ctx, 0, "snapshot:*:"+owner, 0).Iterator()
	for iter.Next(ctx) {
		c.rdb.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Debug("invalidate scan failed", zap.String("owner", owner), zap.Error(err))
	}
}
