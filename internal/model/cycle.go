package model

// CycleState is the lifecycle state of one (category, cycle) pair.
type CycleState string

const (
	CycleNotStarted CycleState = "not_started"
	CycleStarted    CycleState = "started"
	CycleCompleted  CycleState = "completed"
)

// CycleStatus is the derived status of one cycle. For completed cycles it
// carries the ordered defect/okay item keys, the per-severity counts and
// the computed missed-item set.
type CycleStatus struct {
	Category     Category               `json:"category"`
	CycleNumber  int                    `json:"cycle_number"`
	State        CycleState             `json:"state"`
	DefectItems  []string               `json:"defect_items,omitempty"`
	OkayItems    []string               `json:"okay_items,omitempty"`
	DefectCounts map[DefectCategory]int `json:"defect_counts,omitempty"`
	MissedItems  []string               `json:"missed_items,omitempty"`
}

// ScoreRow is the per-category breakdown produced by the score aggregator.
type ScoreRow struct {
	Category       Category `json:"category"`
	CyclesObserved int      `json:"cycles_observed"`
	MaxScore       float64  `json:"max_score"`
	Deduction      float64  `json:"deduction"`
	ScoreObtained  float64  `json:"score_obtained"`
	ScorePercent   float64  `json:"score_percent"`
	Weight         float64  `json:"weight"`
	BonusScore     float64  `json:"bonus_score"`
}

// TourStatus is the overall PASS/HOLD verdict for a tour.
type TourStatus string

const (
	TourStatusPass TourStatus = "PASS"
	TourStatusHold TourStatus = "HOLD"
)

// ScoreSummary is the tour-level product quality index.
type ScoreSummary struct {
	PerCategory      []ScoreRow `json:"per_category"`
	BrokenPercentage float64    `json:"broken_percentage"`
	FinalScore       float64    `json:"final_score"`
	Status           TourStatus `json:"status"`
}
