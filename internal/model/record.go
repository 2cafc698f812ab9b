package model

import "time"

// Category identifies one of the independent inspection checklist types
// performed during a quality tour.
type Category string

const (
	CategoryCBB           Category = "cbb"
	CategorySecondary     Category = "secondary"
	CategoryPrimary       Category = "primary"
	CategoryProduct       Category = "product"
	CategoryALC           Category = "alc"
	CategorySealIntegrity Category = "seal_integrity"
	CategoryNetWeight     Category = "net_weight"
	CategoryBakingProcess Category = "baking_process"
)

// AllCategories lists every category in display order.
var AllCategories = []Category{
	CategoryCBB,
	CategorySecondary,
	CategoryPrimary,
	CategoryProduct,
	CategoryALC,
	CategorySealIntegrity,
	CategoryNetWeight,
	CategoryBakingProcess,
}

// CounterBased reports whether the category tracks a single running cycle
// counter instead of a fixed checklist with a cycle cap.
func (c Category) CounterBased() bool {
	switch c {
	case CategoryALC, CategorySealIntegrity, CategoryNetWeight, CategoryBakingProcess:
		return true
	default:
		return false
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Criteria is the evaluation outcome of a single checklist item.
// The empty string means the item was never evaluated.
type Criteria string

const (
	CriteriaOkay    Criteria = "okay"
	CriteriaNotOkay Criteria = "not_okay"
	CriteriaAbsent  Criteria = ""
)

// DefectCategory classifies a NotOkay item by severity. Missed marks an
// item synthesized for a checklist entry that was never evaluated in a
// completed cycle; it is a NotOkay variant, not a fourth criteria value.
type DefectCategory string

const (
	DefectCategoryA      DefectCategory = "category_a"
	DefectCategoryB      DefectCategory = "category_b"
	DefectCategoryC      DefectCategory = "category_c"
	DefectCategoryMissed DefectCategory = "missed"
	DefectCategoryNone   DefectCategory = ""
)

// CycleContext is the shared metadata attached uniformly to every item
// of one cycle. Readings carries category-specific numeric samples
// (e.g. up to five net-weight inspection slots per machine).
type CycleContext struct {
	Product   string              `json:"product"`
	Executive string              `json:"executive"`
	Batch     string              `json:"batch"`
	Line      string              `json:"line"`
	Shift     string              `json:"shift"`
	Readings  map[string][]string `json:"readings,omitempty"`
}

// ItemRecord is one evaluated checklist line, the canonical record shape
// every component of the engine operates on.
type ItemRecord struct {
	Category          Category       `json:"category"`
	CycleNumber       int            `json:"cycle_number"`
	ItemKey           string         `json:"item_key"`
	Area              string         `json:"area,omitempty"`
	ItemIndex         int            `json:"item_index,omitempty"`
	Criteria          Criteria       `json:"criteria"`
	DefectCategory    DefectCategory `json:"defect_category,omitempty"`
	Remarks           string         `json:"remarks,omitempty"`
	DefectDescription string         `json:"defect_description,omitempty"`
	Context           CycleContext   `json:"context"`
	RecordedAt        time.Time      `json:"recorded_at"`
}

// Defective reports whether the record carries a NotOkay evaluation.
func (r ItemRecord) Defective() bool {
	return r.Criteria == CriteriaNotOkay
}

// Evaluated reports whether the item was explicitly marked Okay or NotOkay.
func (r ItemRecord) Evaluated() bool {
	return r.Criteria == CriteriaOkay || r.Criteria == CriteriaNotOkay
}

// FlatRecord is the opaque key-value shape the remote persistence service
// accepts and returns. The normalizer owns the mapping between this shape
// and ItemRecord; nothing else touches it.
type FlatRecord map[string]string

// OfflineSubmission is a completed-cycle payload buffered while the
// network is unavailable. It is owned by the offline queue until the sync
// driver delivers it.
type OfflineSubmission struct {
	ID          string       `json:"id"`
	TourID      string       `json:"tour_id"`
	Category    Category     `json:"category"`
	CycleNumber int          `json:"cycle_number"`
	Records     []ItemRecord `json:"records"`
	EnqueuedAt  time.Time    `json:"enqueued_at"`
}
