// Package cyclestate tracks the lifecycle of every cycle within one
// category and computes the next cycle the presentation layer should
// offer. It is driven by the reconciled record set; recomputing from an
// unchanged set is a no-op guarded by an in-memory content hash, so a
// reactive caller can feed it the same data repeatedly without update
// loops. The hash is deliberately not persisted: a fresh process always
// rebuilds its statuses from the record set on the first recompute.
package cyclestate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/bakerline/qtour/internal/model"
	"github.com/bakerline/qtour/internal/resolve"
)

// KV is the slice of local durable storage the tracker uses for the
// started-cycle marker and the cached initial-cycle context. Started
// state has no confirmed records to rebuild from, so it must survive a
// process restart on its own.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Tracker owns the cycle statuses for one category. It is not safe for
// concurrent use; the owning tour service serializes access.
type Tracker struct {
	category  model.Category
	items     []string
	maxCycles int

	kv       KV
	statuses map[int]*model.CycleStatus
	initial  *model.CycleContext
	lastHash string
}

// New creates a tracker for a category. items and maxCycles come from the
// checklist definition; both are zero for counter-based categories. The
// kv store may be nil, in which case started cycles and the
// initial-cycle cache are kept in memory only.
func New(category model.Category, items []string, maxCycles int, kv KV) *Tracker {
	t := &Tracker{
		category:  category,
		items:     items,
		maxCycles: maxCycles,
		kv:        kv,
		statuses:  make(map[int]*model.CycleStatus),
	}
	t.loadCached()
	return t
}

func (t *Tracker) startedKey() string { return "cyclestate:" + string(t.category) + ":started" }
func (t *Tracker) initialKey() string { return "cyclestate:" + string(t.category) + ":initial" }

func (t *Tracker) loadCached() {
	if t.kv == nil {
		return
	}
	if v, ok, err := t.kv.Get(t.startedKey()); err == nil && ok {
		var cycles []int
		if json.Unmarshal([]byte(v), &cycles) == nil {
			for _, n := range cycles {
				t.statuses[n] = &model.CycleStatus{
					Category:    t.category,
					CycleNumber: n,
					State:       model.CycleStarted,
				}
			}
		}
	}
	if v, ok, err := t.kv.Get(t.initialKey()); err == nil && ok {
		var ctx model.CycleContext
		if json.Unmarshal([]byte(v), &ctx) == nil {
			t.initial = &ctx
		}
	}
}

// persistStarted writes the current started-cycle set to the KV store.
func (t *Tracker) persistStarted() {
	if t.kv == nil {
		return
	}
	var cycles []int
	for n, st := range t.statuses {
		if st.State == model.CycleStarted {
			cycles = append(cycles, n)
		}
	}
	if len(cycles) == 0 {
		_ = t.kv.Delete(t.startedKey())
		return
	}
	sort.Ints(cycles)
	if data, err := json.Marshal(cycles); err == nil {
		_ = t.kv.Set(t.startedKey(), string(data))
	}
}

// State returns the lifecycle state of a cycle.
func (t *Tracker) State(cycle int) model.CycleState {
	if st, ok := t.statuses[cycle]; ok {
		return st.State
	}
	return model.CycleNotStarted
}

// Status returns the derived status for a cycle, or nil if the cycle has
// no recorded state yet.
func (t *Tracker) Status(cycle int) *model.CycleStatus {
	if st, ok := t.statuses[cycle]; ok {
		cp := *st
		return &cp
	}
	return nil
}

// Statuses returns a copy of all known cycle statuses keyed by cycle.
func (t *Tracker) Statuses() map[int]model.CycleStatus {
	out := make(map[int]model.CycleStatus, len(t.statuses))
	for n, st := range t.statuses {
		out[n] = *st
	}
	return out
}

// InitialContext returns the cached initial-cycle context used to
// auto-fill later cycles, or nil if no cycle has been started yet.
func (t *Tracker) InitialContext() *model.CycleContext {
	if t.initial == nil {
		return nil
	}
	cp := *t.initial
	return &cp
}

// Start transitions a cycle from NotStarted to Started and snapshots the
// cycle context for auto-fill reuse. Only the current next cycle may be
// started; completed cycles are terminal.
func (t *Tracker) Start(cycle int, ctx model.CycleContext) error {
	switch t.State(cycle) {
	case model.CycleCompleted:
		return eris.Errorf("cyclestate: %s cycle %d already completed", t.category, cycle)
	case model.CycleStarted:
		return eris.Errorf("cyclestate: %s cycle %d already started", t.category, cycle)
	}
	next := t.NextCycle()
	if next == 0 {
		return eris.Errorf("cyclestate: %s has no remaining cycles", t.category)
	}
	if cycle != next {
		return eris.Errorf("cyclestate: %s cycle %d is not next (next is %d)", t.category, cycle, next)
	}

	t.statuses[cycle] = &model.CycleStatus{
		Category:    t.category,
		CycleNumber: cycle,
		State:       model.CycleStarted,
	}
	t.persistStarted()

	if t.initial == nil {
		snap := ctx
		t.initial = &snap
		if t.kv != nil {
			if data, err := json.Marshal(snap); err == nil {
				_ = t.kv.Set(t.initialKey(), string(data))
			}
		}
	}
	return nil
}

// Complete transitions a Started cycle to Completed and derives its
// status from the cycle's records. There is no direct NotStarted to
// Completed transition and no transition back out of Completed.
func (t *Tracker) Complete(cycle int, records []model.ItemRecord) error {
	switch t.State(cycle) {
	case model.CycleCompleted:
		return eris.Errorf("cyclestate: %s cycle %d already completed", t.category, cycle)
	case model.CycleNotStarted:
		return eris.Errorf("cyclestate: %s cycle %d not started", t.category, cycle)
	}
	evaluated := 0
	for _, rec := range records {
		if rec.Evaluated() {
			evaluated++
		}
	}
	if evaluated == 0 {
		return eris.Errorf("cyclestate: %s cycle %d has no evaluated items", t.category, cycle)
	}
	t.statuses[cycle] = t.deriveCompleted(cycle, records)
	t.persistStarted()
	return nil
}

// Recompute rebuilds cycle statuses from the reconciled confirmed record
// set (server rows plus offline queue; the in-progress draft is not part
// of it). It returns true when observable state changed. A record set
// with the same content hash as the previous call in this process leaves
// all state untouched.
func (t *Tracker) Recompute(records []model.ItemRecord) (bool, error) {
	hash, err := contentHash(records)
	if err != nil {
		return false, err
	}
	if hash == t.lastHash {
		return false, nil
	}

	byCycle := make(map[int][]model.ItemRecord)
	for _, rec := range records {
		if rec.Category != t.category || rec.CycleNumber < 1 {
			continue
		}
		byCycle[rec.CycleNumber] = append(byCycle[rec.CycleNumber], rec)
	}

	next := make(map[int]*model.CycleStatus, len(byCycle))
	for cycle, recs := range byCycle {
		evaluated := false
		for _, rec := range recs {
			if rec.Evaluated() {
				evaluated = true
				break
			}
		}
		if !evaluated {
			continue
		}
		next[cycle] = t.deriveCompleted(cycle, recs)
	}

	// Locally started cycles that have no confirmed records yet survive
	// the rebuild.
	for cycle, st := range t.statuses {
		if st.State == model.CycleStarted {
			if _, ok := next[cycle]; !ok {
				next[cycle] = st
			}
		}
	}

	t.statuses = next
	t.lastHash = hash
	t.persistStarted()
	return true, nil
}

// NextCycle computes the cycle the presentation layer should offer next.
// Checklist-bounded categories return the smallest uncompleted cycle up
// to the cap, or 0 once every cycle is completed. Counter-based
// categories return max completed plus one, defaulting to 1.
func (t *Tracker) NextCycle() int {
	if t.maxCycles > 0 {
		for n := 1; n <= t.maxCycles; n++ {
			if t.State(n) != model.CycleCompleted {
				return n
			}
		}
		return 0
	}

	maxCompleted := 0
	for n, st := range t.statuses {
		if st.State == model.CycleCompleted && n > maxCompleted {
			maxCompleted = n
		}
	}
	return maxCompleted + 1
}

// Visible reports whether a cycle is eligible for display: completed
// cycles, the current next cycle, and a one-cycle look-ahead placeholder.
// Anything beyond is hidden.
func (t *Tracker) Visible(cycle int) bool {
	if cycle < 1 {
		return false
	}
	if t.maxCycles > 0 && cycle > t.maxCycles {
		return false
	}
	if t.State(cycle) == model.CycleCompleted {
		return true
	}
	next := t.NextCycle()
	if next == 0 {
		return false
	}
	return cycle == next || cycle == next+1
}

// deriveCompleted builds the Completed status for a cycle from its
// records, including the synthesized missed-item set.
func (t *Tracker) deriveCompleted(cycle int, records []model.ItemRecord) *model.CycleStatus {
	st := &model.CycleStatus{
		Category:     t.category,
		CycleNumber:  cycle,
		State:        model.CycleCompleted,
		DefectCounts: make(map[model.DefectCategory]int),
	}

	evaluated := make(map[string]bool, len(records))
	for _, rec := range records {
		switch rec.Criteria {
		case model.CriteriaOkay:
			st.OkayItems = append(st.OkayItems, rec.ItemKey)
			evaluated[rec.ItemKey] = true
		case model.CriteriaNotOkay:
			st.DefectItems = append(st.DefectItems, rec.ItemKey)
			st.DefectCounts[rec.DefectCategory]++
			evaluated[rec.ItemKey] = true
		}
	}

	missed := resolve.DeriveMissed(t.items, evaluated)
	st.MissedItems = missed
	if len(missed) > 0 {
		st.DefectCounts[model.DefectCategoryMissed] += len(missed)
	}
	return st
}

func contentHash(records []model.ItemRecord) (string, error) {
	sorted := make([]model.ItemRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.CycleNumber != b.CycleNumber {
			return a.CycleNumber < b.CycleNumber
		}
		if a.ItemKey != b.ItemKey {
			return a.ItemKey < b.ItemKey
		}
		return a.ItemIndex < b.ItemIndex
	})

	data, err := json.Marshal(sorted)
	if err != nil {
		return "", eris.Wrap(err, "cyclestate: hash records")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
