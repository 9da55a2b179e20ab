package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awraqsoft/munaqasat/internal/model/entity"
)

func item(id, materialID, materialType, name string, qty, price float64) entity.TenderItem {
	return entity.TenderItem{
		ID:           id,
		MaterialID:   materialID,
		MaterialType: materialType,
		Name:         name,
		Quantity:     qty,
		UnitPrice:    price,
		TotalPrice:   qty * price,
	}
}

func TestMergeAppendsUniqueCandidates(t *testing.T) {
	existing := []entity.TenderItem{
		item("itm_1", "raw_1", entity.MaterialTypeRaw, "Cement", 10, 25),
	}
	candidates := []entity.TenderItem{
		item("itm_2", "raw_2", entity.MaterialTypeRaw, "Sand", 5, 10),
	}

	merged, collisions := Merge(existing, candidates)
	require.Len(t, merged, 2)
	assert.Empty(t, collisions)
	assert.Equal(t, "Sand", merged[1].Name)
}

func TestMergeDetectsDuplicateByItemID(t *testing.T) {
	existing := []entity.TenderItem{
		item("itm_1", "raw_1", entity.MaterialTypeRaw, "Cement", 10, 25),
	}
	// Same internal identifier, entirely different name.
	candidates := []entity.TenderItem{
		item("itm_1", "raw_9", entity.MaterialTypeRaw, "Something Else", 2, 25),
	}

	merged, collisions := Merge(existing, candidates)
	require.Len(t, merged, 1)
	require.Len(t, collisions, 1)
	assert.Equal(t, ByItemID, collisions[0].Criterion)
	// An item-ID match is the same line re-submitted, not a second
	// staging of the material; nothing is summed.
	assert.Equal(t, 10.0, merged[0].Quantity)
	assert.Equal(t, "Cement", merged[0].Name)
}

func TestMergeDetectsDuplicateByMaterialID(t *testing.T) {
	existing := []entity.TenderItem{
		item("itm_1", "raw_1", entity.MaterialTypeRaw, "Cement", 2, 25),
	}
	candidates := []entity.TenderItem{
		item("itm_2", "raw_1", entity.MaterialTypeRaw, "Cement Grade A", 3, 25),
	}

	merged, collisions := Merge(existing, candidates)
	require.Len(t, merged, 1)
	require.Len(t, collisions, 1)
	assert.Equal(t, ByMaterialID, collisions[0].Criterion)
	assert.Equal(t, 5.0, merged[0].Quantity)
	assert.Equal(t, 125.0, merged[0].TotalPrice)
}

func TestMergeSameMaterialIDDifferentTypeIsNotDuplicate(t *testing.T) {
	existing := []entity.TenderItem{
		item("itm_1", "mat_1", entity.MaterialTypeRaw, "Pipe", 2, 25),
	}
	candidates := []entity.TenderItem{
		item("itm_2", "mat_1", entity.MaterialTypeLocal, "Pipe Local", 3, 20),
	}

	merged, collisions := Merge(existing, candidates)
	assert.Len(t, merged, 2)
	assert.Empty(t, collisions)
}

func TestMergeDetectsDuplicateByNormalizedName(t *testing.T) {
	existing := []entity.TenderItem{
		item("itm_1", "raw_1", entity.MaterialTypeRaw, "Steel Rebar", 10, 40),
	}
	candidates := []entity.TenderItem{
		item("itm_2", "raw_7", entity.MaterialTypeRaw, "  steel rebar ", 4, 40),
	}

	merged, collisions := Merge(existing, candidates)
	require.Len(t, merged, 1)
	require.Len(t, collisions, 1)
	assert.Equal(t, ByName, collisions[0].Criterion)
	// Name collisions do not prove the same material, so quantities are
	// not summed; the candidate is dropped.
	assert.Equal(t, 10.0, merged[0].Quantity)
}

func TestMergeIDMatchTakesPrecedenceOverName(t *testing.T) {
	existing := []entity.TenderItem{
		item("itm_1", "raw_1", entity.MaterialTypeRaw, "Cement", 10, 25),
		item("itm_2", "raw_2", entity.MaterialTypeRaw, "Gravel", 8, 15),
	}
	// Candidate matches itm_2 by material ID and itm_1 by name; the
	// identifier index is consulted first.
	candidates := []entity.TenderItem{
		item("itm_3", "raw_2", entity.MaterialTypeRaw, "Cement", 1, 15),
	}

	merged, collisions := Merge(existing, candidates)
	require.Len(t, merged, 2)
	require.Len(t, collisions, 1)
	assert.Equal(t, ByMaterialID, collisions[0].Criterion)
	assert.Equal(t, "itm_2", collisions[0].Existing.ID)
	assert.Equal(t, 9.0, merged[1].Quantity)
}

func TestMergeIdempotent(t *testing.T) {
	existing := []entity.TenderItem{
		item("itm_1", "raw_1", entity.MaterialTypeRaw, "Cement", 10, 25),
	}
	candidates := []entity.TenderItem{
		item("itm_2", "raw_2", entity.MaterialTypeRaw, "Sand", 5, 10),
		item("itm_3", "raw_3", entity.MaterialTypeRaw, "Gravel", 3, 15),
	}

	once, _ := Merge(existing, candidates)
	twice, collisions := Merge(once, candidates)

	assert.Equal(t, once, twice, "second merge must contribute zero new items")
	assert.Len(t, collisions, 2)
	// Quantities stay put too: the appended candidates re-match by item
	// ID, which never sums.
	assert.Equal(t, 5.0, twice[1].Quantity)
	assert.Equal(t, 3.0, twice[2].Quantity)
}

func TestMergeDuplicateWithinCandidateBatch(t *testing.T) {
	candidates := []entity.TenderItem{
		item("itm_1", "raw_1", entity.MaterialTypeRaw, "Cement", 2, 25),
		item("itm_2", "raw_1", entity.MaterialTypeRaw, "Cement", 3, 25),
	}

	merged, collisions := Merge(nil, candidates)
	require.Len(t, merged, 1)
	require.Len(t, collisions, 1)
	assert.Equal(t, 5.0, merged[0].Quantity, "staging the same material twice merges into one item")
}

func TestTotal(t *testing.T) {
	items := []entity.TenderItem{
		item("a", "m1", entity.MaterialTypeRaw, "A", 2, 10.555),
		item("b", "m2", entity.MaterialTypeRaw, "B", 3, 1.115),
	}
	// 21.11 + 3.345 = 24.455 → 24.46 at 2-decimal precision.
	assert.Equal(t, 24.46, Total(items))
	assert.Equal(t, 0.0, Total(nil))
}
