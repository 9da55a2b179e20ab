package entity

import (
	"database/sql/driver"
	"encoding/json"
)

// Material type tags. One catalog entity covers all four; the tag decides
// which identifier prefix it gets and how line items dispatch lookups.
const (
	MaterialTypeRaw          = "raw_material"
	MaterialTypeLocal        = "local_product"
	MaterialTypeForeign      = "foreign_product"
	MaterialTypeManufactured = "manufactured_product"
)

// Material is a catalog entry. (Name, Unit) is unique within a type for
// a given owner; the service layer enforces it because the store adapter
// is schema-agnostic.
type Material struct {
	Meta
	Type      string    `json:"type" gorm:"size:24;not null;index"`
	Name      string    `json:"name" gorm:"size:200;not null"`
	Unit      string    `json:"unit" gorm:"size:24;not null;default:pcs"`
	BasePrice float64   `json:"base_price" gorm:"type:decimal(15,2)"`
	Supplier  string    `json:"supplier" gorm:"size:200"`
	Quotes    QuoteList `json:"quotes" gorm:"type:jsonb"`
}

func (Material) TableName() string {
	return "materials"
}

// SupplierQuote is one supplier's offered price for a material.
type SupplierQuote struct {
	Supplier string  `json:"supplier"`
	Price    float64 `json:"price"`
}

// QuoteList stores supplier quotes as a jsonb array.
type QuoteList []SupplierQuote

func (l QuoteList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal(QuoteList{})
	}
	return json.Marshal(l)
}

func (l *QuoteList) Scan(value interface{}) error { return scanJSON(l, value) }

// EffectivePrice is the minimum of all supplier quotes when quotes
// exist, else the base price.
func (m *Material) EffectivePrice() float64 {
	if len(m.Quotes) == 0 {
		return m.BasePrice
	}
	min := m.Quotes[0].Price
	for _, q := range m.Quotes[1:] {
		if q.Price < min {
			min = q.Price
		}
	}
	return min
}

// CheapestSupplier names the supplier behind EffectivePrice, empty when
// there are no quotes.
func (m *Material) CheapestSupplier() string {
	if len(m.Quotes) == 0 {
		return m.Supplier
	}
	best := m.Quotes[0]
	for _, q := range m.Quotes[1:] {
		if q.Price < best.Price {
			best = q
		}
	}
	return best.Supplier
}
