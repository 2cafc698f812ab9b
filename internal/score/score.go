// Package score computes the weighted product quality index over the
// fully reconciled record set. The per-item points, deduction rates and
// category weights are fixed business parameters, not derived values.
package score

import (
	"math"

	"github.com/bakerline/qtour/internal/checklist"
	"github.com/bakerline/qtour/internal/model"
)

// Deduction points per defect severity.
const (
	DeductionCategoryA = 80.0
	DeductionCategoryB = 30.0
	DeductionCategoryC = 10.0
)

// PassThreshold is the minimum final score for a PASS verdict.
const PassThreshold = 90.0

// contributing lists the categories that carry score weight, in report
// order. The weights sum to 1.00.
var contributing = []model.Category{
	model.CategoryCBB,
	model.CategorySecondary,
	model.CategoryPrimary,
	model.CategoryProduct,
	model.CategoryNetWeight,
}

// Aggregate computes per-category scores and the overall weighted index.
// It is a pure function of its inputs: re-running it on the same
// reconciled set yields the same summary.
func Aggregate(records []model.ItemRecord, defs checklist.Set) model.ScoreSummary {
	return AggregateWithBroken(records, defs, 0)
}

// AggregateWithBroken is Aggregate with an explicit broken-product
// percentage subtracted from the final score. The input is reserved for
// a future data source and is currently always 0 in callers.
func AggregateWithBroken(records []model.ItemRecord, defs checklist.Set, brokenPercentage float64) model.ScoreSummary {
	byCategory := make(map[model.Category][]model.ItemRecord)
	for _, rec := range records {
		byCategory[rec.Category] = append(byCategory[rec.Category], rec)
	}

	summary := model.ScoreSummary{
		BrokenPercentage: brokenPercentage,
	}

	var final float64
	for _, category := range contributing {
		row, bonus := scoreCategory(category, byCategory[category], defs[category])
		summary.PerCategory = append(summary.PerCategory, row)
		final += bonus
	}

	final -= brokenPercentage
	summary.FinalScore = round2(final)
	if summary.FinalScore >= PassThreshold {
		summary.Status = model.TourStatusPass
	} else {
		summary.Status = model.TourStatusHold
	}
	return summary
}

// scoreCategory returns the display row and the unrounded weighted bonus.
// The final score accumulates the unrounded bonuses and is rounded once;
// the row fields are rounded independently for display.
func scoreCategory(category model.Category, records []model.ItemRecord, def checklist.Definition) (model.ScoreRow, float64) {
	itemsPerCycle := len(def.Items)
	if itemsPerCycle == 0 {
		// Machine-sheet categories record one row per cycle.
		itemsPerCycle = 1
	}

	cycles := make(map[int]bool)
	counts := make(map[model.DefectCategory]int)
	for _, rec := range records {
		if !rec.Evaluated() {
			continue
		}
		cycles[rec.CycleNumber] = true
		if rec.Defective() {
			counts[rec.DefectCategory]++
		}
	}

	maxScore := float64(itemsPerCycle) * def.PointsPerItem * float64(len(cycles))
	deduction := float64(counts[model.DefectCategoryA])*DeductionCategoryA +
		float64(counts[model.DefectCategoryB])*DeductionCategoryB +
		float64(counts[model.DefectCategoryC])*DeductionCategoryC

	obtained := math.Max(maxScore-deduction, 0)
	percent := 0.0
	if maxScore > 0 {
		percent = obtained / maxScore * 100
	}

	row := model.ScoreRow{
		Category:       category,
		CyclesObserved: len(cycles),
		MaxScore:       maxScore,
		Deduction:      deduction,
		ScoreObtained:  obtained,
		ScorePercent:   round2(percent),
		Weight:         def.Weight,
		BonusScore:     round2(percent * def.Weight),
	}
	return row, percent * def.Weight
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
