// Package store provides uniform CRUD semantics over a named collection,
// enforcing per-record ownership and monotonic versioning, with
// optimistic writes that report progress on a mutation channel. It is
// the sole interface to the backing database; consumers never issue raw
// queries.
package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/awraqsoft/munaqasat/internal/ident"
	"github.com/awraqsoft/munaqasat/internal/model/entity"
)

// Record constrains store element types to pointers of entities that
// embed entity.Meta.
type Record[T any] interface {
	*T
	DocMeta() *entity.Meta
}

// Store is a generic document-store adapter over one collection.
type Store[T any, PT Record[T]] struct {
	db         *gorm.DB
	cache      *Cache
	log        *zap.Logger
	collection string
	kind       ident.Kind
}

// New builds a store for one collection. cache may be nil; the snapshot
// cache only accelerates reads and is never consulted for correctness.
func New[T any, PT Record[T]](db *gorm.DB, cache *Cache, log *zap.Logger, collection string, kind ident.Kind) *Store[T, PT] {
	return &Store[T, PT]{
		db:         db,
		cache:      cache,
		log:        log.Named(collection),
		collection: collection,
		kind:       kind,
	}
}

// DB exposes the underlying handle for specialized repository queries.
func (s *Store[T, PT]) DB() *gorm.DB { return s.db }

// Collection returns the collection name the store was built for.
func (s *Store[T, PT]) Collection() string { return s.collection }

// Create stamps ownership, timestamps and Version=1, emits a provisional
// Pending record synchronously, then commits or rolls back.
func (s *Store[T, PT]) Create(ctx context.Context, owner string, rec PT) <-chan Mutation[T] {
	ch := make(chan Mutation[T], 2)

	m := rec.DocMeta()
	if m.ID == "" {
		id, err := ident.New(s.kind)
		if err != nil {
			ch <- Mutation[T]{Phase: PhaseRolledBack, Err: opErr("create", s.collection, err)}
			close(ch)
			return ch
		}
		m.ID = id
	}
	now := time.Now()
	m.OwnerID = owner
	m.Version = 1
	m.CreatedAt = now
	m.UpdatedAt = now

	provisional := *(*T)(rec)
	ch <- Mutation[T]{Phase: PhasePending, Record: &provisional}

	go func() {
		defer close(ch)
		if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
			s.log.Error("create failed", zap.String("id", m.ID), zap.Error(err))
			ch <- Mutation[T]{Phase: PhaseRolledBack, Record: &provisional, Err: opErr("create", s.collection, err)}
			return
		}
		s.refreshSnapshot(ctx, owner)
		ch <- Mutation[T]{Phase: PhaseCommitted, Record: (*T)(rec)}
	}()
	return ch
}

// Update loads the record, verifies ownership, applies mutate to a
// working copy, bumps the version and persists. The channel contract
// matches Create; lookup and ownership failures roll back immediately
// without a Pending phase.
func (s *Store[T, PT]) Update(ctx context.Context, owner, id string, mutate func(PT) error) <-chan Mutation[T] {
	ch := make(chan Mutation[T], 2)

	current, err := s.load(ctx, id)
	if err != nil {
		s.logLookupErr("update", id, err)
		ch <- Mutation[T]{Phase: PhaseRolledBack, Err: err}
		close(ch)
		return ch
	}
	if current.DocMeta().OwnerID != owner {
		s.log.Error("ownership violation on update", zap.String("id", id))
		ch <- Mutation[T]{Phase: PhaseRolledBack, Err: ErrUnauthorized}
		close(ch)
		return ch
	}

	prior := *(*T)(current)
	if err := mutate(current); err != nil {
		ch <- Mutation[T]{Phase: PhaseRolledBack, Record: &prior, Err: err}
		close(ch)
		return ch
	}
	m := current.DocMeta()
	m.Version++
	m.UpdatedAt = time.Now()

	provisional := *(*T)(current)
	ch <- Mutation[T]{Phase: PhasePending, Record: &provisional}

	go func() {
		defer close(ch)
		if err := s.db.WithContext(ctx).Save(current).Error; err != nil {
			s.log.Error("update failed", zap.String("id", id), zap.Error(err))
			ch <- Mutation[T]{Phase: PhaseRolledBack, Record: &prior, Err: opErr("update", s.collection, err)}
			return
		}
		s.refreshSnapshot(ctx, owner)
		ch <- Mutation[T]{Phase: PhaseCommitted, Record: (*T)(current)}
	}()
	return ch
}

// Delete soft-deletes after the same ownership check. On failure the
// rollback carries the record so the caller can restore its reference.
func (s *Store[T, PT]) Delete(ctx context.Context, owner, id string) <-chan Mutation[T] {
	ch := make(chan Mutation[T], 2)

	current, err := s.load(ctx, id)
	if err != nil {
		s.logLookupErr("delete", id, err)
		ch <- Mutation[T]{Phase: PhaseRolledBack, Err: err}
		close(ch)
		return ch
	}
	if current.DocMeta().OwnerID != owner {
		s.log.Error("ownership violation on delete", zap.String("id", id))
		ch <- Mutation[T]{Phase: PhaseRolledBack, Err: ErrUnauthorized}
		close(ch)
		return ch
	}

	prior := *(*T)(current)
	ch <- Mutation[T]{Phase: PhasePending, Record: (*T)(current)}

	go func() {
		defer close(ch)
		now := time.Now()
		err := s.db.WithContext(ctx).Model(current).
			Updates(map[string]interface{}{"deleted_at": now, "updated_at": now}).Error
		if err != nil {
			s.log.Error("delete failed", zap.String("id", id), zap.Error(err))
			ch <- Mutation[T]{Phase: PhaseRolledBack, Record: &prior, Err: opErr("delete", s.collection, err)}
			return
		}
		current.DocMeta().DeletedAt = &now
		s.refreshSnapshot(ctx, owner)
		ch <- Mutation[T]{Phase: PhaseCommitted, Record: (*T)(current)}
	}()
	return ch
}

// Restore clears the soft-delete mark on a trashed record, after the
// usual ownership check.
func (s *Store[T, PT]) Restore(ctx context.Context, owner, id string) (PT, error) {
	var rec T
	err := s.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NOT NULL", id).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, opErr("restore", s.collection, err)
	}
	pt := PT(&rec)
	if pt.DocMeta().OwnerID != owner {
		s.log.Error("ownership violation on restore", zap.String("id", id))
		return nil, ErrUnauthorized
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Model(pt).
		Updates(map[string]interface{}{"deleted_at": nil, "updated_at": now}).Error
	if err != nil {
		return nil, opErr("restore", s.collection, err)
	}
	pt.DocMeta().DeletedAt = nil
	pt.DocMeta().UpdatedAt = now
	s.refreshSnapshot(ctx, owner)
	return pt, nil
}

// Purge permanently removes a record. Only soft-deleted records can be
// purged; everything else must go through the trash first.
func (s *Store[T, PT]) Purge(ctx context.Context, owner, id string) error {
	var rec T
	err := s.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NOT NULL", id).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return opErr("purge", s.collection, err)
	}
	if PT(&rec).DocMeta().OwnerID != owner {
		s.log.Error("ownership violation on purge", zap.String("id", id))
		return ErrUnauthorized
	}
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&rec).Error; err != nil {
		return opErr("purge", s.collection, err)
	}
	return nil
}

// WarmSnapshot refreshes the owner's read-through snapshot, used by the
// sign-in lifecycle hook.
func (s *Store[T, PT]) WarmSnapshot(ctx context.Context, owner string) {
	s.refreshSnapshot(ctx, owner)
}

// Get returns (nil, nil) when the record is absent and ErrUnauthorized
// when it belongs to another owner.
func (s *Store[T, PT]) Get(ctx context.Context, owner, id string) (PT, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if rec.DocMeta().OwnerID != owner {
		s.log.Error("ownership violation on get", zap.String("id", id))
		return nil, ErrUnauthorized
	}
	return rec, nil
}

// ListOptions tune List. Ordering is only guaranteed when OrderBy is
// set.
type ListOptions struct {
	Limit   int
	OrderBy string
}

// List returns all non-deleted records owned by the caller. When the
// backing database is unreachable it degrades to the owner's last
// snapshot, so the collection stays readable offline; snapshot order
// is insertion order, not opts.OrderBy.
func (s *Store[T, PT]) List(ctx context.Context, owner string, opts ListOptions) ([]T, error) {
	var recs []T
	q := s.db.WithContext(ctx).
		Where("owner_id = ? AND deleted_at IS NULL", owner)
	if opts.OrderBy != "" {
		q = q.Order(opts.OrderBy)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		if cached, ok := s.listSnapshot(ctx, owner, opts); ok {
			s.log.Warn("list served from snapshot", zap.Error(err))
			return cached, nil
		}
		return nil, opErr("list", s.collection, err)
	}
	return recs, nil
}

// listSnapshot reads the owner's cached collection snapshot for the
// degraded List path.
func (s *Store[T, PT]) listSnapshot(ctx context.Context, owner string, opts ListOptions) ([]T, bool) {
	var cached []T
	ok, err := s.Snapshot(ctx, owner, &cached)
	if err != nil || !ok {
		return nil, false
	}
	if opts.Limit > 0 && len(cached) > opts.Limit {
		cached = cached[:opts.Limit]
	}
	return cached, true
}

// load fetches a record by ID regardless of owner, mapping absence to
// ErrNotFound. Soft-deleted records are treated as absent.
func (s *Store[T, PT]) load(ctx context.Context, id string) (PT, error) {
	var rec T
	err := s.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, opErr("load", s.collection, err)
	}
	return &rec, nil
}

func (s *Store[T, PT]) logLookupErr(op, id string, err error) {
	if errors.Is(err, ErrNotFound) {
		// Expected for first-time lookups, keep it quiet.
		s.log.Debug("record not found", zap.String("op", op), zap.String("id", id))
		return
	}
	s.log.Error("lookup failed", zap.String("op", op), zap.String("id", id), zap.Error(err))
}

// refreshSnapshot rewrites the owner's read-through snapshot after a
// successful write. Best effort: the remote store stays the source of
// truth and a stale or missing snapshot is never an error.
func (s *Store[T, PT]) refreshSnapshot(ctx context.Context, owner string) {
	if s.cache == nil {
		return
	}
	recs, err := s.List(ctx, owner, ListOptions{})
	if err != nil {
		s.log.Debug("snapshot refresh skipped", zap.Error(err))
		return
	}
	s.cache.Refresh(ctx, s.collection, owner, recs)
}

// Snapshot reads the owner's cached collection snapshot into dst (a
// *[]T). The boolean reports whether a snapshot existed.
func (s *Store[T, PT]) Snapshot(ctx context.Context, owner string, dst *[]T) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	return s.cache.Snapshot(ctx, s.collection, owner, dst)
}
