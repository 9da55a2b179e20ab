package entity

import "time"

// ActivityEvent is one immutable entry in the activity trail. Events are
// append-only: no version counter, no updates, retention-pruned in bulk.
type ActivityEvent struct {
	ID          string    `json:"id" gorm:"primaryKey;size:40"`
	CompanyID   string    `json:"company_id" gorm:"size:40;not null;index:idx_activity_company_time"`
	ActorID     string    `json:"actor_id" gorm:"size:40;not null"`
	Type        string    `json:"type" gorm:"size:50;not null"`
	Description string    `json:"description" gorm:"size:500;not null"`
	Details     JSONB     `json:"details,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time `json:"created_at" gorm:"index:idx_activity_company_time"`
}

func (ActivityEvent) TableName() string {
	return "activity_events"
}
