package entity

import "time"

// TrashRecord holds the serialized snapshot of a soft-deleted record so
// it can be restored or hard-deleted later. SourceTable names the
// collection the payload came from.
type TrashRecord struct {
	ID          string    `json:"id" gorm:"primaryKey;size:40"`
	OwnerID     string    `json:"owner_id" gorm:"size:40;not null;index"`
	SourceTable string    `json:"source_table" gorm:"size:64;not null"`
	SourceID    string    `json:"source_id" gorm:"size:40;not null;index"`
	Payload     JSONB     `json:"payload" gorm:"type:jsonb"`
	DeletedBy   string    `json:"deleted_by" gorm:"size:40"`
	CreatedAt   time.Time `json:"created_at"`
}

func (TrashRecord) TableName() string {
	return "trash_records"
}
