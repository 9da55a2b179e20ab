package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/awraqsoft/munaqasat/internal/model/entity"
	"github.com/awraqsoft/munaqasat/internal/store"
)

// TrashRepository keeps snapshots of soft-deleted records until they
// are restored or hard-deleted.
type TrashRepository struct {
	db *gorm.DB
}

func NewTrashRepository(db *gorm.DB) *TrashRepository {
	return &TrashRepository{db: db}
}

func (r *TrashRepository) Create(ctx context.Context, rec *entity.TrashRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *TrashRepository) FindByID(ctx context.Context, ownerID, id string) (*entity.TrashRecord, error) {
	var rec entity.TrashRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, store.ErrUnauthorized
	}
	return &rec, nil
}

func (r *TrashRepository) ListByOwner(ctx context.Context, ownerID string) ([]entity.TrashRecord, error) {
	var recs []entity.TrashRecord
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&recs).Error
	return recs, err
}

// Delete removes the trash record itself; restoring or hard-deleting
// the source record is the service's job.
func (r *TrashRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.TrashRecord{}).Error
}

// DeleteOlderThan drops trash records past the retention cutoff and
// returns how many were removed. Used by the maintenance CLI.
func (r *TrashRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&entity.TrashRecord{})
	return res.RowsAffected, res.Error
}
