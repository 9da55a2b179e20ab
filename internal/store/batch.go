package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// OpKind tags one element of a batch.
type OpKind int

const (
	OpCreate OpKind = iota
	OpUpdate
	OpDelete
)

// Operation is one create/update/delete in a batch. Create takes
// Record; Update takes ID and Mutate; Delete takes ID.
type Operation[T any, PT Record[T]] struct {
	Kind   OpKind
	Record PT
	ID     string
	Mutate func(PT) error
}

// Batch applies a mixed list of operations atomically. Ownership is
// validated for every update and delete before anything is written, so
// a violation aborts the whole batch untouched.
func (s *Store[T, PT]) Batch(ctx context.Context, owner string, ops []Operation[T, PT]) error {
	if len(ops) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Validation pass: every referenced record must exist and be ours.
		targets := make(map[string]PT, len(ops))
		for _, op := range ops {
			if op.Kind == OpCreate {
				continue
			}
			var rec T
			err := tx.Where("id = ? AND deleted_at IS NULL", op.ID).First(&rec).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			if PT(&rec).DocMeta().OwnerID != owner {
				return ErrUnauthorized
			}
			targets[op.ID] = &rec
		}

		now := time.Now()
		for _, op := range ops {
			switch op.Kind {
			case OpCreate:
				m := op.Record.DocMeta()
				m.OwnerID = owner
				m.Version = 1
				m.CreatedAt = now
				m.UpdatedAt = now
				if err := tx.Create(op.Record).Error; err != nil {
					return err
				}
			case OpUpdate:
				rec := targets[op.ID]
				if op.Mutate != nil {
					if err := op.Mutate(rec); err != nil {
						return err
					}
				}
				m := rec.DocMeta()
				m.Version++
				m.UpdatedAt = now
				if err := tx.Save(rec).Error; err != nil {
					return err
				}
			case OpDelete:
				rec := targets[op.ID]
				err := tx.Model(rec).
					Updates(map[string]interface{}{"deleted_at": now, "updated_at": now}).Error
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
			return err
		}
		return opErr("batch", s.collection, err)
	}

	s.refreshSnapshot(ctx, owner)
	return nil
}
