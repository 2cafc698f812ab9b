// Package normalize converts raw form-state and flat remote-service rows
// into the canonical ItemRecord shape. It is the only package that knows
// the wire field names of the remote service.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bakerline/qtour/internal/model"
)

// MaxInspectionSlots is the number of per-machine sample slots on the
// net-weight monitoring sheet.
const MaxInspectionSlots = 5

// NA is the placeholder stored for absent string fields. Downstream
// display code relies on it never being the empty string.
const NA = "N/A"

// FormItem is one checklist line as supplied by the presentation layer.
// The core never inspects a UI tree; callers hand over this typed shape.
type FormItem struct {
	ItemKey           string
	Area              string
	ItemIndex         int
	Criteria          string
	DefectCategory    string
	Remarks           string
	DefectDescription string
}

// FormState is the full form for one cycle.
type FormState struct {
	Context model.CycleContext
	Items   []FormItem
}

// FromForm converts a single form item into a canonical record. The
// fallback context fills product/executive/batch fields the form left
// blank, typically from the cached initial-cycle data.
func FromForm(item FormItem, category model.Category, cycle int, ctx, fallback model.CycleContext) model.ItemRecord {
	merged := mergeContext(ctx, fallback)
	return model.ItemRecord{
		Category:          category,
		CycleNumber:       cycle,
		ItemKey:           orNA(item.ItemKey),
		Area:              item.Area,
		ItemIndex:         item.ItemIndex,
		Criteria:          parseCriteria(item.Criteria),
		DefectCategory:    parseDefectCategory(item.DefectCategory),
		Remarks:           orNA(item.Remarks),
		DefectDescription: orNA(item.DefectDescription),
		Context:           merged,
		RecordedAt:        time.Now().UTC(),
	}
}

// FromFlat converts a remote-service row into a canonical record using
// the category's field mapping.
func FromFlat(row model.FlatRecord, category model.Category) model.ItemRecord {
	m := fieldMapFor(category)

	cycle, _ := strconv.Atoi(row[m.cycle])
	itemIndex, _ := strconv.Atoi(row[m.itemIndex])

	recordedAt := time.Time{}
	if raw := row[m.recordedAt]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			recordedAt = t
		}
	}

	readings := map[string][]string{}
	if category == model.CategoryNetWeight {
		machine := row[m.item]
		slots := make([]string, 0, MaxInspectionSlots)
		for i := 1; i <= MaxInspectionSlots; i++ {
			slots = append(slots, row["Slot"+strconv.Itoa(i)])
		}
		readings[machine] = slots
	}

	rec := model.ItemRecord{
		Category:          category,
		CycleNumber:       cycle,
		ItemKey:           orNA(row[m.item]),
		Area:              row[m.area],
		ItemIndex:         itemIndex,
		Criteria:          parseCriteria(row[m.criteria]),
		DefectCategory:    parseDefectCategory(row[m.defect]),
		Remarks:           orNA(row[m.remarks]),
		DefectDescription: orNA(row[m.description]),
		Context: model.CycleContext{
			Product:   orNA(row["Product"]),
			Executive: orNA(row["Executive"]),
			Batch:     orNA(row["Batch"]),
			Line:      orNA(row["Line"]),
			Shift:     orNA(row["Shift"]),
		},
		RecordedAt: recordedAt,
	}
	if len(readings) > 0 {
		rec.Context.Readings = readings
	}
	return rec
}

// ToFlat converts a canonical record back into the remote-service row
// shape for delivery.
func ToFlat(rec model.ItemRecord, tourID string) model.FlatRecord {
	m := fieldMapFor(rec.Category)

	row := model.FlatRecord{
		"TourId":      tourID,
		"Category":    string(rec.Category),
		m.cycle:       strconv.Itoa(rec.CycleNumber),
		m.item:        rec.ItemKey,
		m.criteria:    string(rec.Criteria),
		m.defect:      string(rec.DefectCategory),
		m.remarks:     rec.Remarks,
		m.description: rec.DefectDescription,
		"Product":     rec.Context.Product,
		"Executive":   rec.Context.Executive,
		"Batch":       rec.Context.Batch,
		"Line":        rec.Context.Line,
		"Shift":       rec.Context.Shift,
	}
	if rec.Area != "" {
		row[m.area] = rec.Area
		row[m.itemIndex] = strconv.Itoa(rec.ItemIndex)
	}
	if !rec.RecordedAt.IsZero() {
		row[m.recordedAt] = rec.RecordedAt.UTC().Format(time.RFC3339)
	}
	if slots, ok := rec.Context.Readings[rec.ItemKey]; ok {
		for i, v := range slots {
			if i >= MaxInspectionSlots {
				break
			}
			row["Slot"+strconv.Itoa(i+1)] = v
		}
	}
	return row
}

// ParseReading parses one inspection slot value. Empty, non-numeric and
// non-finite inputs report ok=false and are excluded from averaging.
func ParseReading(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// MachineAverage computes the arithmetic mean of the parseable entries
// among a machine's inspection slots, rounded to two decimals. It divides
// by the count of values that parsed, never the slot count, and returns
// nil when nothing parsed.
func MachineAverage(slots []string) *float64 {
	if len(slots) > MaxInspectionSlots {
		slots = slots[:MaxInspectionSlots]
	}

	var sum float64
	var n int
	for _, s := range slots {
		if v, ok := ParseReading(s); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := math.Round(sum/float64(n)*100) / 100
	return &avg
}

// CountReadings returns the number of parseable inspection values across
// all machines in a context. The most-complete-wins merge policy compares
// candidates by this count.
func CountReadings(ctx model.CycleContext) int {
	var n int
	for _, slots := range ctx.Readings {
		for _, s := range slots {
			if _, ok := ParseReading(s); ok {
				n++
			}
		}
	}
	return n
}

func parseCriteria(raw string) model.Criteria {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ok", "okay", "pass":
		return model.CriteriaOkay
	case "not ok", "not okay", "notokay", "ng", "fail", string(model.CriteriaNotOkay):
		return model.CriteriaNotOkay
	default:
		return model.CriteriaAbsent
	}
}

func parseDefectCategory(raw string) model.DefectCategory {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "a", "category a", string(model.DefectCategoryA):
		return model.DefectCategoryA
	case "b", "category b", string(model.DefectCategoryB):
		return model.DefectCategoryB
	case "c", "category c", string(model.DefectCategoryC):
		return model.DefectCategoryC
	case "missed":
		return model.DefectCategoryMissed
	default:
		return model.DefectCategoryNone
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return NA
	}
	return s
}

// mergeContext fills blank fields of primary from fallback. A field the
// auditor already filled in is never overwritten.
func mergeContext(primary, fallback model.CycleContext) model.CycleContext {
	out := primary
	if blank(out.Product) {
		out.Product = fallback.Product
	}
	if blank(out.Executive) {
		out.Executive = fallback.Executive
	}
	if blank(out.Batch) {
		out.Batch = fallback.Batch
	}
	if blank(out.Line) {
		out.Line = fallback.Line
	}
	if blank(out.Shift) {
		out.Shift = fallback.Shift
	}
	if blank(out.Product) {
		out.Product = NA
	}
	if blank(out.Executive) {
		out.Executive = NA
	}
	if blank(out.Batch) {
		out.Batch = NA
	}
	if blank(out.Line) {
		out.Line = NA
	}
	if blank(out.Shift) {
		out.Shift = NA
	}
	return out
}

func blank(s string) bool {
	return strings.TrimSpace(s) == "" || s == NA
}
