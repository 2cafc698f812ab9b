package resolve

import (
	"time"

	"github.com/bakerline/qtour/internal/model"
)

// MissedRemarks is the remarks text stamped on synthesized missed items.
const MissedRemarks = "Missed evaluation"

// DeriveMissed returns the checklist items that were never evaluated, in
// checklist order. An empty evaluated set means the cycle never started,
// so nothing is derived — missed items only exist for completed cycles.
func DeriveMissed(allChecklistItems []string, evaluatedItemKeys map[string]bool) []string {
	if len(evaluatedItemKeys) == 0 {
		return nil
	}
	var missed []string
	for _, item := range allChecklistItems {
		if !evaluatedItemKeys[item] {
			missed = append(missed, item)
		}
	}
	return missed
}

// SynthesizeMissed materializes missed checklist items as NotOkay records
// with the Missed defect category, so they participate uniformly in counts
// and in any downstream save payload.
func SynthesizeMissed(category model.Category, cycle int, missed []string, ctx model.CycleContext) []model.ItemRecord {
	out := make([]model.ItemRecord, 0, len(missed))
	for _, item := range missed {
		out = append(out, model.ItemRecord{
			Category:       category,
			CycleNumber:    cycle,
			ItemKey:        item,
			Criteria:       model.CriteriaNotOkay,
			DefectCategory: model.DefectCategoryMissed,
			Remarks:        MissedRemarks,
			Context:        ctx,
			RecordedAt:     time.Now().UTC(),
		})
	}
	return out
}
