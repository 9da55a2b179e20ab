package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/awraqsoft/munaqasat/internal/model/entity"
)

// TenderRepository holds tender queries that fall outside the generic
// store's owner-scoped CRUD.
type TenderRepository struct {
	db *gorm.DB
}

func NewTenderRepository(db *gorm.DB) *TenderRepository {
	return &TenderRepository{db: db}
}

// ReferenceExists reports whether another non-trashed tender of the
// same owner already uses the reference number. excludeID skips the
// tender being updated.
func (r *TenderRepository) ReferenceExists(ctx context.Context, ownerID, referenceNo, excludeID string) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&entity.Tender{}).
		Where("owner_id = ? AND reference_no = ? AND deleted_at IS NULL AND status <> ?",
			ownerID, referenceNo, entity.TenderStatusTrash)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountByStatus returns the owner's tender counts grouped by status,
// for the dashboard.
func (r *TenderRepository) CountByStatus(ctx context.Context, ownerID string) (map[string]int64, error) {
	type row struct {
		Status string
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&entity.Tender{}).
		Select("status, COUNT(*) AS total").
		Where("owner_id = ? AND deleted_at IS NULL", ownerID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}
