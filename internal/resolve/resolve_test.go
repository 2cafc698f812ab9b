package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakerline/qtour/internal/model"
)

func rec(category model.Category, cycle int, item string, criteria model.Criteria) model.ItemRecord {
	return model.ItemRecord{
		Category:    category,
		CycleNumber: cycle,
		ItemKey:     item,
		Criteria:    criteria,
		RecordedAt:  time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestResolve_AdditiveServerBeatsStaleQueue(t *testing.T) {
	queued := []model.OfflineSubmission{{
		Category:    model.CategoryCBB,
		CycleNumber: 1,
		Records:     []model.ItemRecord{rec(model.CategoryCBB, 1, "CBB 1", model.CriteriaNotOkay)},
	}}
	server := []model.ItemRecord{rec(model.CategoryCBB, 1, "CBB 1", model.CriteriaOkay)}

	out := Resolve(server, nil, queued, model.CategoryCBB)
	require.Len(t, out, 1)
	assert.Equal(t, model.CriteriaOkay, out[0].Criteria)
}

func TestResolve_AdditiveDraftBeatsEverything(t *testing.T) {
	server := []model.ItemRecord{rec(model.CategoryCBB, 2, "CBB 4", model.CriteriaOkay)}
	draft := []model.ItemRecord{rec(model.CategoryCBB, 2, "CBB 4", model.CriteriaNotOkay)}

	out := Resolve(server, draft, nil, model.CategoryCBB)
	require.Len(t, out, 1)
	assert.Equal(t, model.CriteriaNotOkay, out[0].Criteria)
}

func TestResolve_LatestWinsKeepsWholeRow(t *testing.T) {
	a := rec(model.CategorySealIntegrity, 3, "Seal A", model.CriteriaOkay)
	a.Remarks = "first"
	b := rec(model.CategorySealIntegrity, 3, "Seal B", model.CriteriaNotOkay)
	b.Remarks = "second"

	// Fetch order [a, b]: b replaces a entirely, no field-level blending.
	out := Resolve([]model.ItemRecord{a, b}, nil, nil, model.CategorySealIntegrity)
	require.Len(t, out, 1)
	assert.Equal(t, "Seal B", out[0].ItemKey)
	assert.Equal(t, "second", out[0].Remarks)
	assert.Equal(t, model.CriteriaNotOkay, out[0].Criteria)
}

func TestResolve_MostCompleteWinsByReadingCount(t *testing.T) {
	sparse := rec(model.CategoryNetWeight, 1, "Packer 1", model.CriteriaOkay)
	sparse.Context.Readings = map[string][]string{
		"Packer 1": {"12.1", "12.2", "12.3", "", ""},
	}
	full := rec(model.CategoryNetWeight, 1, "Packer 1", model.CriteriaOkay)
	full.Remarks = "complete"
	full.Context.Readings = map[string][]string{
		"Packer 1": {"12.1", "12.2", "12.3", "12.4", "12.5"},
	}

	// Five parseable readings beat three regardless of processing order.
	out := Resolve([]model.ItemRecord{full, sparse}, nil, nil, model.CategoryNetWeight)
	require.Len(t, out, 1)
	assert.Equal(t, "complete", out[0].Remarks)

	out = Resolve([]model.ItemRecord{sparse, full}, nil, nil, model.CategoryNetWeight)
	require.Len(t, out, 1)
	assert.Equal(t, "complete", out[0].Remarks)
}

func TestResolve_MostCompleteTieKeepsFirstSeen(t *testing.T) {
	first := rec(model.CategoryNetWeight, 2, "Packer 2", model.CriteriaOkay)
	first.Remarks = "first"
	first.Context.Readings = map[string][]string{"Packer 2": {"10.0", "10.1"}}
	second := rec(model.CategoryNetWeight, 2, "Packer 2", model.CriteriaOkay)
	second.Remarks = "second"
	second.Context.Readings = map[string][]string{"Packer 2": {"10.2", "10.3"}}

	out := Resolve([]model.ItemRecord{first, second}, nil, nil, model.CategoryNetWeight)
	require.Len(t, out, 1)
	assert.Equal(t, "first", out[0].Remarks)
}

func TestResolve_AreaUnionAccumulatesWithinArea(t *testing.T) {
	a1 := rec(model.CategoryALC, 1, "spillage", model.CriteriaNotOkay)
	a1.Area, a1.ItemIndex = "Mixing", 0
	a2 := rec(model.CategoryALC, 1, "open drain", model.CriteriaNotOkay)
	a2.Area, a2.ItemIndex = "Mixing", 1
	b1 := rec(model.CategoryALC, 1, "spillage", model.CriteriaNotOkay)
	b1.Area, b1.ItemIndex = "Packing", 0

	out := Resolve([]model.ItemRecord{a1, a2, b1}, nil, nil, model.CategoryALC)
	// Same item key in two areas and two items in one area all survive.
	assert.Len(t, out, 3)
}

func TestResolve_Idempotent(t *testing.T) {
	server := []model.ItemRecord{
		rec(model.CategoryCBB, 1, "CBB 1", model.CriteriaOkay),
		rec(model.CategoryCBB, 1, "CBB 2", model.CriteriaNotOkay),
		rec(model.CategoryCBB, 2, "CBB 1", model.CriteriaOkay),
	}
	queued := []model.OfflineSubmission{{
		Category:    model.CategoryCBB,
		CycleNumber: 2,
		Records:     []model.ItemRecord{rec(model.CategoryCBB, 2, "CBB 2", model.CriteriaOkay)},
	}}

	once := Resolve(server, nil, queued, model.CategoryCBB)
	twice := Resolve(once, nil, queued, model.CategoryCBB)
	assert.Equal(t, once, twice)
}

func TestResolve_FiltersForeignCategories(t *testing.T) {
	server := []model.ItemRecord{
		rec(model.CategoryCBB, 1, "CBB 1", model.CriteriaOkay),
		rec(model.CategoryPrimary, 1, "Coding", model.CriteriaOkay),
	}
	out := Resolve(server, nil, nil, model.CategoryCBB)
	require.Len(t, out, 1)
	assert.Equal(t, model.CategoryCBB, out[0].Category)
}

func TestDeriveMissed(t *testing.T) {
	items := []string{"CBB 1", "CBB 2", "CBB 3", "CBB 4"}

	missed := DeriveMissed(items, map[string]bool{"CBB 1": true, "CBB 3": true})
	assert.Equal(t, []string{"CBB 2", "CBB 4"}, missed)

	// Evaluated and missed partition the checklist.
	assert.Empty(t, DeriveMissed(items, map[string]bool{
		"CBB 1": true, "CBB 2": true, "CBB 3": true, "CBB 4": true,
	}))

	// An untouched cycle derives nothing.
	assert.Nil(t, DeriveMissed(items, nil))
	assert.Nil(t, DeriveMissed(items, map[string]bool{}))
}

func TestSynthesizeMissed(t *testing.T) {
	ctx := model.CycleContext{Product: "Rusk", Executive: "A. Khan"}
	out := SynthesizeMissed(model.CategorySecondary, 3, []string{"Carton print", "Tape seal"}, ctx)

	require.Len(t, out, 2)
	for _, rec := range out {
		assert.Equal(t, model.CriteriaNotOkay, rec.Criteria)
		assert.Equal(t, model.DefectCategoryMissed, rec.DefectCategory)
		assert.Equal(t, MissedRemarks, rec.Remarks)
		assert.Equal(t, 3, rec.CycleNumber)
		assert.Equal(t, "Rusk", rec.Context.Product)
	}
}
