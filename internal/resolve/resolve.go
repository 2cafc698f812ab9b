// Package resolve reconciles the three sources of cycle records — the
// remote service fetch, the local draft, and the offline queue — into one
// record set per category. Each category carries a named merge policy;
// the policies are deliberately not unified (see the divergence between
// the seal-integrity and net-weight sheets) because changing one would
// change which historical record the auditor is shown.
package resolve

import (
	"sort"

	"github.com/bakerline/qtour/internal/model"
	"github.com/bakerline/qtour/internal/normalize"
)

// Policy names a category's merge strategy.
type Policy string

const (
	// PolicyAdditive accumulates one record per (cycle, item key); on a
	// conflict the most recently processed source wins, with confirmed
	// server rows processed after stale queue entries.
	PolicyAdditive Policy = "additive"

	// PolicyLatestWins keeps, per cycle, only the last record encountered
	// in fetch order. No field-level merging.
	PolicyLatestWins Policy = "latest_wins"

	// PolicyMostComplete keeps, per cycle, the candidate with the strictly
	// greater count of parseable inspection readings; ties keep the
	// first-seen candidate.
	PolicyMostComplete Policy = "most_complete"

	// PolicyAreaUnion groups records by area and accumulates items within
	// an area as an ordered list; the merge key is (cycle, area, index).
	PolicyAreaUnion Policy = "area_union"
)

// PolicyFor returns the merge policy for a category.
func PolicyFor(category model.Category) Policy {
	switch category {
	case model.CategorySealIntegrity:
		return PolicyLatestWins
	case model.CategoryNetWeight:
		return PolicyMostComplete
	case model.CategoryALC:
		return PolicyAreaUnion
	default:
		return PolicyAdditive
	}
}

// Resolve combines the three candidate sources into one record set for
// the category. Processing order is queue, then server rows, then the
// local draft, so confirmed server data beats stale queue entries and the
// draft the auditor is editing beats both. Resolve is idempotent: feeding
// its output back in as server rows yields the same result.
func Resolve(serverRows, localDraft []model.ItemRecord, queued []model.OfflineSubmission, category model.Category) []model.ItemRecord {
	candidates := make([]model.ItemRecord, 0, len(serverRows)+len(localDraft))
	for _, sub := range queued {
		for _, rec := range sub.Records {
			if rec.Category == category {
				candidates = append(candidates, rec)
			}
		}
	}
	for _, rec := range serverRows {
		if rec.Category == category {
			candidates = append(candidates, rec)
		}
	}
	for _, rec := range localDraft {
		if rec.Category == category {
			candidates = append(candidates, rec)
		}
	}

	var out []model.ItemRecord
	switch PolicyFor(category) {
	case PolicyLatestWins:
		out = latestWins(candidates)
	case PolicyMostComplete:
		out = mostComplete(candidates)
	case PolicyAreaUnion:
		out = areaUnion(candidates)
	default:
		out = additive(candidates)
	}

	sortRecords(out)
	return out
}

// additive dedups by (cycle, item key); the last-processed candidate for
// a key replaces the earlier one outright.
func additive(candidates []model.ItemRecord) []model.ItemRecord {
	type key struct {
		cycle int
		item  string
	}
	byKey := make(map[key]model.ItemRecord, len(candidates))
	for _, rec := range candidates {
		byKey[key{rec.CycleNumber, rec.ItemKey}] = rec
	}
	out := make([]model.ItemRecord, 0, len(byKey))
	for _, rec := range byKey {
		out = append(out, rec)
	}
	return out
}

// latestWins keeps one record per cycle: whichever was encountered last.
func latestWins(candidates []model.ItemRecord) []model.ItemRecord {
	byCycle := make(map[int]model.ItemRecord)
	for _, rec := range candidates {
		byCycle[rec.CycleNumber] = rec
	}
	out := make([]model.ItemRecord, 0, len(byCycle))
	for _, rec := range byCycle {
		out = append(out, rec)
	}
	return out
}

// mostComplete keeps, per cycle, the candidate whose context carries the
// strictly greatest number of parseable inspection readings.
func mostComplete(candidates []model.ItemRecord) []model.ItemRecord {
	type best struct {
		rec   model.ItemRecord
		count int
	}
	byCycle := make(map[int]best)
	for _, rec := range candidates {
		n := normalize.CountReadings(rec.Context)
		cur, seen := byCycle[rec.CycleNumber]
		if !seen || n > cur.count {
			byCycle[rec.CycleNumber] = best{rec: rec, count: n}
		}
	}
	out := make([]model.ItemRecord, 0, len(byCycle))
	for _, b := range byCycle {
		out = append(out, b.rec)
	}
	return out
}

// areaUnion dedups by (cycle, area, item index) so multiple findings in
// one area accumulate instead of collapsing onto a single item key.
func areaUnion(candidates []model.ItemRecord) []model.ItemRecord {
	type key struct {
		cycle int
		area  string
		index int
	}
	byKey := make(map[key]model.ItemRecord, len(candidates))
	for _, rec := range candidates {
		byKey[key{rec.CycleNumber, rec.Area, rec.ItemIndex}] = rec
	}
	out := make([]model.ItemRecord, 0, len(byKey))
	for _, rec := range byKey {
		out = append(out, rec)
	}
	return out
}

// sortRecords orders the reconciled set canonically so repeated resolves
// over the same inputs are byte-for-byte identical.
func sortRecords(recs []model.ItemRecord) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.CycleNumber != b.CycleNumber {
			return a.CycleNumber < b.CycleNumber
		}
		if a.Area != b.Area {
			return a.Area < b.Area
		}
		if a.ItemIndex != b.ItemIndex {
			return a.ItemIndex < b.ItemIndex
		}
		return a.ItemKey < b.ItemKey
	})
}
