package entity

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// TenderStatus lifecycle: created in draft, moved through transitions,
// never hard-deleted (trash is a terminal-but-restorable state).
const (
	TenderStatusDraft     = "draft"
	TenderStatusSubmitted = "submitted"
	TenderStatusActive    = "active"
	TenderStatusTracking  = "tracking"
	TenderStatusWon       = "won"
	TenderStatusLost      = "lost"
	TenderStatusArchived  = "archived"
	TenderStatusTrash     = "trash"
)

// Tender is one procurement opportunity. Line items, competitor prices
// and document references are embedded jsonb arrays (denormalized), so a
// tender row reads and writes as a single document.
type Tender struct {
	Meta
	Title          string     `json:"title" gorm:"size:200;not null"`
	ReferenceNo    string     `json:"reference_no" gorm:"size:64;not null;index"`
	IssuingEntity  string     `json:"issuing_entity" gorm:"size:200"`
	Deadline       *time.Time `json:"deadline"`
	Status         string     `json:"status" gorm:"size:16;not null;default:draft"`
	EstimatedValue float64    `json:"estimated_value" gorm:"type:decimal(15,2)"`

	Items       ItemList       `json:"items" gorm:"type:jsonb"`
	Competitors CompetitorList `json:"competitors" gorm:"type:jsonb"`
	Documents   DocumentRefs   `json:"documents" gorm:"type:jsonb"`
}

func (Tender) TableName() string {
	return "tenders"
}

// TenderItem is a quantity of a material attached to a tender. Price and
// supplier are snapshots taken at staging time; RefreshPrices updates
// them from the current catalog.
type TenderItem struct {
	ID           string  `json:"id"`
	MaterialID   string  `json:"material_id"`
	MaterialType string  `json:"material_type"`
	Name         string  `json:"name"`
	Unit         string  `json:"unit"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	TotalPrice   float64 `json:"total_price"`
	Supplier     string  `json:"supplier,omitempty"`
	AddedAt      int64   `json:"added_at,omitempty"`
}

// CompetitorPrice is one competitor's submitted amount for a tender.
type CompetitorPrice struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// DocumentRef points at a Document record attached to the tender.
type DocumentRef struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
}

// ItemList stores tender line items as a jsonb array.
type ItemList []TenderItem

func (l ItemList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal(ItemList{})
	}
	return json.Marshal(l)
}

func (l *ItemList) Scan(value interface{}) error { return scanJSON(l, value) }

// CompetitorList stores competitor prices as a jsonb array.
type CompetitorList []CompetitorPrice

func (l CompetitorList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal(CompetitorList{})
	}
	return json.Marshal(l)
}

func (l *CompetitorList) Scan(value interface{}) error { return scanJSON(l, value) }

// DocumentRefs stores attached document references as a jsonb array.
type DocumentRefs []DocumentRef

func (l DocumentRefs) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal(DocumentRefs{})
	}
	return json.Marshal(l)
}

func (l *DocumentRefs) Scan(value interface{}) error { return scanJSON(l, value) }
