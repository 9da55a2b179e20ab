// Package pending holds draft data that must survive page navigation
// within a session but is not yet part of the permanent record: form
// drafts, and materials staged before a tender exists. Values are
// stored and retrieved verbatim; callers must treat every read as
// possibly stale and every write as a merge (see the reconciliation
// engine), because several clients may share a key.
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/awraqsoft/munaqasat/internal/model/entity"
)

// itemsKey is the well-known key for line items staged before a tender
// exists.
const itemsKey = "line_items"

// Store is an owner-scoped key/value store for ephemeral session data.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

// New builds a pending-data store. ttl is the session scope; keys
// untouched that long simply disappear.
func New(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl, log: log.Named("pending")}
}

func (s *Store) key(owner, key string) string {
	return fmt.Sprintf("pending:%s:%s", owner, key)
}

// Get reads a payload into dst. Returns false when the key is absent.
func (s *Store) Get(ctx context.Context, owner, key string, dst interface{}) (bool, error) {
	payload, err := s.rdb.Get(ctx, s.key(owner, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("get pending %q: %w", key, err)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return false, fmt.Errorf("decode pending %q: %w", key, err)
	}
	return true, nil
}

// Set stores a payload verbatim under the owner-scoped key.
func (s *Store) Set(ctx context.Context, owner, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode pending %q: %w", key, err)
	}
	if err := s.rdb.Set(ctx, s.key(owner, key), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("set pending %q: %w", key, err)
	}
	return nil
}

// Clear removes a key; clearing an absent key is not an error.
func (s *Store) Clear(ctx context.Context, owner, key string) error {
	if err := s.rdb.Del(ctx, s.key(owner, key)).Err(); err != nil {
		return fmt.Errorf("clear pending %q: %w", key, err)
	}
	return nil
}

// ClearAll drops every pending key for an owner, used on sign-out.
func (s *Store) ClearAll(ctx context.Context, owner string) {
	iter := s.rdb.Scan(ctx, 0, s.key(owner, "*"), 0).Iterator()
	for iter.Next(ctx) {
		s.rdb.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.log.Debug("clear all failed", zap.String("owner", owner), zap.Error(err))
	}
}

// PendingItems returns the line items staged for the owner, empty when
// none are staged.
func (s *Store) PendingItems(ctx context.Context, owner string) ([]entity.TenderItem, error) {
	var items []entity.TenderItem
	if _, err := s.Get(ctx, owner, itemsKey, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SetPendingItems replaces the staged line items.
func (s *Store) SetPendingItems(ctx context.Context, owner string, items []entity.TenderItem) error {
	return s.Set(ctx, owner, itemsKey, items)
}

// ClearPendingItems drops the staged line items once they have been
// committed to a tender.
func (s *Store) ClearPendingItems(ctx context.Context, owner string) error {
	return s.Clear(ctx, owner, itemsKey)
}
