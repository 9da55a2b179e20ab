package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/awraqsoft/munaqasat/internal/model/entity"
)

// ActivityRepository persists activity events. It satisfies
// activity.Repository.
type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Create(ctx context.Context, event *entity.ActivityEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *ActivityRepository) CountByCompany(ctx context.Context, companyID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.ActivityEvent{}).
		Where("company_id = ?", companyID).
		Count(&count).Error
	return count, err
}

func (r *ActivityRepository) ListByCompany(ctx context.Context, companyID string, limit int) ([]entity.ActivityEvent, error) {
	var events []entity.ActivityEvent
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// IDsBeyondNewest returns the IDs of every event older than the newest
// keep events, newest first.
func (r *ActivityRepository) IDsBeyondNewest(ctx context.Context, companyID string, keep int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entity.ActivityEvent{}).
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Offset(keep).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *ActivityRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&entity.ActivityEvent{}).Error
}
