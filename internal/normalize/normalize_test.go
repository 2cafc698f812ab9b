package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakerline/qtour/internal/model"
)

func TestMachineAverage_WithGaps(t *testing.T) {
	avg := MachineAverage([]string{"12.5", "", "13.0", "nan", "12.8"})
	require.NotNil(t, avg)
	// Three parseable values; the empty slot and "nan" are excluded and
	// the divisor is 3, not 5.
	assert.InDelta(t, 12.77, *avg, 0.001)
}

func TestMachineAverage_NothingParseable(t *testing.T) {
	assert.Nil(t, MachineAverage([]string{"", "abc", "nan", "inf"}))
	assert.Nil(t, MachineAverage(nil))
}

func TestMachineAverage_TruncatesToSlotLimit(t *testing.T) {
	avg := MachineAverage([]string{"1", "1", "1", "1", "1", "100"})
	require.NotNil(t, avg)
	assert.InDelta(t, 1.0, *avg, 0.001)
}

func TestParseReading(t *testing.T) {
	v, ok := ParseReading(" 12.5 ")
	assert.True(t, ok)
	assert.InDelta(t, 12.5, v, 0.001)

	for _, raw := range []string{"", "  ", "abc", "nan", "+inf", "-inf"} {
		_, ok := ParseReading(raw)
		assert.False(t, ok, "expected %q to be unparseable", raw)
	}
}

func TestFromForm_CriteriaStates(t *testing.T) {
	cases := map[string]model.Criteria{
		"OK":        model.CriteriaOkay,
		"okay":      model.CriteriaOkay,
		"pass":      model.CriteriaOkay,
		"Not OK":    model.CriteriaNotOkay,
		"ng":        model.CriteriaNotOkay,
		"fail":      model.CriteriaNotOkay,
		"":          model.CriteriaAbsent,
		"unmarked":  model.CriteriaAbsent,
		"whatever?": model.CriteriaAbsent,
	}
	for raw, want := range cases {
		rec := FromForm(FormItem{ItemKey: "CBB 1", Criteria: raw}, model.CategoryCBB, 1, model.CycleContext{}, model.CycleContext{})
		assert.Equal(t, want, rec.Criteria, "criteria %q", raw)
	}
}

func TestFromForm_DefectCategoryStates(t *testing.T) {
	cases := map[string]model.DefectCategory{
		"A":          model.DefectCategoryA,
		"category a": model.DefectCategoryA,
		"category_a": model.DefectCategoryA,
		"B":          model.DefectCategoryB,
		"category_b": model.DefectCategoryB,
		"c":          model.DefectCategoryC,
		"category_c": model.DefectCategoryC,
		"missed":     model.DefectCategoryMissed,
		"Missed":     model.DefectCategoryMissed,
		"":           model.DefectCategoryNone,
		"severe":     model.DefectCategoryNone,
	}
	for raw, want := range cases {
		rec := FromForm(FormItem{ItemKey: "CBB 1", Criteria: "not ok", DefectCategory: raw}, model.CategoryCBB, 1, model.CycleContext{}, model.CycleContext{})
		assert.Equal(t, want, rec.DefectCategory, "defect category %q", raw)
	}
}

func TestFromFlat_WireConstantsRoundTrip(t *testing.T) {
	// Rows coming back from the service carry the canonical constants,
	// not the UI spellings; both must land on the same parsed values.
	row := model.FlatRecord{
		"CycleNo":        "1",
		"ItemName":       "CBB 1",
		"Criteria":       string(model.CriteriaNotOkay),
		"DefectCategory": string(model.DefectCategoryMissed),
	}
	rec := FromFlat(row, model.CategoryCBB)
	assert.Equal(t, model.CriteriaNotOkay, rec.Criteria)
	assert.Equal(t, model.DefectCategoryMissed, rec.DefectCategory)

	row["Criteria"] = string(model.CriteriaOkay)
	row["DefectCategory"] = string(model.DefectCategoryA)
	rec = FromFlat(row, model.CategoryCBB)
	assert.Equal(t, model.CriteriaOkay, rec.Criteria)
	assert.Equal(t, model.DefectCategoryA, rec.DefectCategory)
}

func TestFromForm_StringDefaults(t *testing.T) {
	rec := FromForm(FormItem{ItemKey: "CBB 2"}, model.CategoryCBB, 1, model.CycleContext{}, model.CycleContext{})
	assert.Equal(t, NA, rec.Remarks)
	assert.Equal(t, NA, rec.DefectDescription)
	assert.Equal(t, NA, rec.Context.Product)
	assert.Equal(t, NA, rec.Context.Executive)
}

func TestFromForm_AutoFillDoesNotOverwrite(t *testing.T) {
	fallback := model.CycleContext{Product: "Wafer 90g", Executive: "R. Dsouza", Batch: "B-17"}
	ctx := model.CycleContext{Product: "Wafer 45g"}

	rec := FromForm(FormItem{ItemKey: "CBB 1", Criteria: "okay"}, model.CategoryCBB, 2, ctx, fallback)

	// Edited field survives; blanks fill from the cached context.
	assert.Equal(t, "Wafer 45g", rec.Context.Product)
	assert.Equal(t, "R. Dsouza", rec.Context.Executive)
	assert.Equal(t, "B-17", rec.Context.Batch)
}

func TestFlatRoundTrip(t *testing.T) {
	rec := FromForm(FormItem{
		ItemKey:        "CBB 3",
		Criteria:       "not ok",
		DefectCategory: "B",
		Remarks:        "torn liner",
	}, model.CategoryCBB, 4, model.CycleContext{Product: "Rusk", Executive: "A. Khan"}, model.CycleContext{})

	row := ToFlat(rec, "TOUR-1")
	assert.Equal(t, "TOUR-1", row["TourId"])
	assert.Equal(t, "4", row["CycleNo"])
	assert.Equal(t, "CBB 3", row["ItemName"])

	back := FromFlat(row, model.CategoryCBB)
	assert.Equal(t, rec.ItemKey, back.ItemKey)
	assert.Equal(t, rec.CycleNumber, back.CycleNumber)
	assert.Equal(t, model.CriteriaNotOkay, back.Criteria)
	assert.Equal(t, model.DefectCategoryB, back.DefectCategory)
	assert.Equal(t, "torn liner", back.Remarks)
	assert.Equal(t, "Rusk", back.Context.Product)
}

func TestFromFlat_NetWeightReadings(t *testing.T) {
	row := model.FlatRecord{
		"CycleNo":     "2",
		"MachineName": "Packer 3",
		"TestResult":  "okay",
		"Slot1":       "12.5",
		"Slot2":       "",
		"Slot3":       "13.0",
	}
	rec := FromFlat(row, model.CategoryNetWeight)
	require.Contains(t, rec.Context.Readings, "Packer 3")
	assert.Len(t, rec.Context.Readings["Packer 3"], MaxInspectionSlots)
	assert.Equal(t, 2, CountReadings(rec.Context))
}
