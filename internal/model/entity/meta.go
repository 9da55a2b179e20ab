package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Meta carries the bookkeeping fields every permanent record shares:
// identity, ownership, a monotonic version counter and timestamps.
// Entities embed it and thereby satisfy store.Record.
type Meta struct {
	ID        string     `json:"id" gorm:"primaryKey;size:40"`
	OwnerID   string     `json:"owner_id" gorm:"size:40;not null;index"`
	Version   int        `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"index"`
}

// DocMeta exposes the embedded bookkeeping fields to the generic store.
func (m *Meta) DocMeta() *Meta { return m }

// JSONB maps an arbitrary object onto a jsonb column.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

// scanJSON is the shared Scan body for the typed jsonb slices below.
func scanJSON(dst interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan jsonb column: %v", value)
	}
	return json.Unmarshal(bytes, dst)
}
