// Package recon merges staged line items into a tender, filtering
// duplicates and recomputing derived totals, and guards the merge/save
// cycle against races with an explicit per-tender state machine.
package recon

import (
	"math"
	"strings"

	"github.com/awraqsoft/munaqasat/internal/model/entity"
)

// Criterion names which index classified a candidate as a duplicate.
// Identifier matches take precedence over name matches.
type Criterion string

const (
	ByItemID     Criterion = "item_id"
	ByMaterialID Criterion = "material_id"
	ByName       Criterion = "name"
)

// Collision records a duplicate candidate, which existing item it
// collided with, and by which criterion.
type Collision struct {
	Candidate entity.TenderItem
	Existing  entity.TenderItem
	Criterion Criterion
}

// materialKey builds the (material identifier, material type) identity
// of a line item.
func materialKey(it entity.TenderItem) string {
	return it.MaterialType + "\x00" + it.MaterialID
}

// normalizeName lowers and trims a display name for the name index.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// indexes holds the three lookup structures built from an existing list.
type indexes struct {
	byItemID     map[string]int
	byMaterialID map[string]int
	byName       map[string]int
}

func buildIndexes(existing []entity.TenderItem) indexes {
	idx := indexes{
		byItemID:     make(map[string]int, len(existing)),
		byMaterialID: make(map[string]int, len(existing)),
		byName:       make(map[string]int, len(existing)),
	}
	for i, it := range existing {
		if it.ID != "" {
			idx.byItemID[it.ID] = i
		}
		if it.MaterialID != "" {
			idx.byMaterialID[materialKey(it)] = i
		}
		if name := normalizeName(it.Name); name != "" {
			// First occurrence wins; names are not guaranteed unique.
			if _, ok := idx.byName[name]; !ok {
				idx.byName[name] = i
			}
		}
	}
	return idx
}

// classify tests a candidate against the indexes in priority order and
// returns the index of the colliding existing item, or -1.
func (idx indexes) classify(c entity.TenderItem) (int, Criterion) {
	if c.ID != "" {
		if i, ok := idx.byItemID[c.ID]; ok {
			return i, ByItemID
		}
	}
	if c.MaterialID != "" {
		if i, ok := idx.byMaterialID[materialKey(c)]; ok {
			return i, ByMaterialID
		}
	}
	if name := normalizeName(c.Name); name != "" {
		if i, ok := idx.byName[name]; ok {
			return i, ByName
		}
	}
	return -1, ""
}

// Merge reconciles candidates into existing. Unique candidates are
// appended. A candidate matching an existing item's internal identifier
// is a re-submission of that same line and is dropped, so re-merging an
// uncleared staging area changes nothing. Candidates sharing a material
// identity (material ID within the same type) are distinct staged lines
// for one material and have their quantity summed into the existing
// item. Name-only collisions are dropped, because a name match does not
// prove the same material. Returns the merged list and the collisions
// observed.
func Merge(existing, candidates []entity.TenderItem) ([]entity.TenderItem, []Collision) {
	merged := make([]entity.TenderItem, len(existing))
	copy(merged, existing)

	idx := buildIndexes(merged)
	var collisions []Collision

	for _, c := range candidates {
		i, crit := idx.classify(c)
		if i < 0 {
			merged = append(merged, c)
			// Index the newcomer so a second occurrence inside the same
			// candidate batch is caught too.
			pos := len(merged) - 1
			if c.ID != "" {
				idx.byItemID[c.ID] = pos
			}
			if c.MaterialID != "" {
				idx.byMaterialID[materialKey(c)] = pos
			}
			if name := normalizeName(c.Name); name != "" {
				if _, ok := idx.byName[name]; !ok {
					idx.byName[name] = pos
				}
			}
			continue
		}

		collisions = append(collisions, Collision{Candidate: c, Existing: merged[i], Criterion: crit})
		if crit == ByMaterialID {
			merged[i].Quantity += c.Quantity
			merged[i].TotalPrice = round2(merged[i].Quantity * merged[i].UnitPrice)
		}
	}
	return merged, collisions
}

// Total sums quantity × unit price over all items, rounded to 2
// decimals.
func Total(items []entity.TenderItem) float64 {
	var sum float64
	for _, it := range items {
		sum += it.Quantity * it.UnitPrice
	}
	return round2(sum)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
