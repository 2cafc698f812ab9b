package cyclestate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakerline/qtour/internal/model"
)

var cbbItems = []string{"CBB 1", "CBB 2", "CBB 3"}

type memKV struct {
	m map[string]string
}

func newMemKV() *memKV { return &memKV{m: map[string]string{}} }

func (kv *memKV) Get(key string) (string, bool, error) {
	v, ok := kv.m[key]
	return v, ok, nil
}

func (kv *memKV) Set(key, value string) error {
	kv.m[key] = value
	return nil
}

func (kv *memKV) Delete(key string) error {
	delete(kv.m, key)
	return nil
}

func evaluated(cycle int, items ...string) []model.ItemRecord {
	out := make([]model.ItemRecord, 0, len(items))
	for _, item := range items {
		out = append(out, model.ItemRecord{
			Category:    model.CategoryCBB,
			CycleNumber: cycle,
			ItemKey:     item,
			Criteria:    model.CriteriaOkay,
		})
	}
	return out
}

func TestTracker_Transitions(t *testing.T) {
	tr := New(model.CategoryCBB, cbbItems, 8, nil)

	assert.Equal(t, model.CycleNotStarted, tr.State(1))

	// Completing before starting is rejected.
	require.Error(t, tr.Complete(1, evaluated(1, "CBB 1")))

	require.NoError(t, tr.Start(1, model.CycleContext{Product: "Rusk"}))
	assert.Equal(t, model.CycleStarted, tr.State(1))

	// A started cycle cannot be started again.
	require.Error(t, tr.Start(1, model.CycleContext{}))

	require.NoError(t, tr.Complete(1, evaluated(1, "CBB 1", "CBB 2", "CBB 3")))
	assert.Equal(t, model.CycleCompleted, tr.State(1))

	// Completed is terminal.
	require.Error(t, tr.Start(1, model.CycleContext{}))
	require.Error(t, tr.Complete(1, evaluated(1, "CBB 1")))
}

func TestTracker_CompleteRequiresEvaluatedItem(t *testing.T) {
	tr := New(model.CategoryCBB, cbbItems, 8, nil)
	require.NoError(t, tr.Start(1, model.CycleContext{}))

	unmarked := []model.ItemRecord{{
		Category:    model.CategoryCBB,
		CycleNumber: 1,
		ItemKey:     "CBB 1",
		Criteria:    model.CriteriaAbsent,
	}}
	require.Error(t, tr.Complete(1, unmarked))
}

func TestTracker_OnlyNextCycleMayStart(t *testing.T) {
	tr := New(model.CategoryCBB, cbbItems, 8, nil)

	require.Error(t, tr.Start(3, model.CycleContext{}))
	require.NoError(t, tr.Start(1, model.CycleContext{}))
}

func TestTracker_NextCycleBounded(t *testing.T) {
	tr := New(model.CategoryCBB, cbbItems, 3, nil)

	assert.Equal(t, 1, tr.NextCycle())
	for n := 1; n <= 3; n++ {
		require.NoError(t, tr.Start(n, model.CycleContext{}))
		require.NoError(t, tr.Complete(n, evaluated(n, "CBB 1")))
		if n < 3 {
			assert.Equal(t, n+1, tr.NextCycle())
		}
	}

	// Every cycle completed: nothing further is ever proposed.
	assert.Equal(t, 0, tr.NextCycle())
	require.Error(t, tr.Start(4, model.CycleContext{}))
}

func TestTracker_NextCycleNeverExceedsCap(t *testing.T) {
	tr := New(model.CategoryCBB, cbbItems, 8, nil)
	for n := 1; n <= 8; n++ {
		assert.LessOrEqual(t, tr.NextCycle(), 8)
		require.NoError(t, tr.Start(n, model.CycleContext{}))
		require.NoError(t, tr.Complete(n, evaluated(n, "CBB 1")))
	}
	assert.Equal(t, 0, tr.NextCycle())
}

func TestTracker_NextCycleCounterBased(t *testing.T) {
	tr := New(model.CategorySealIntegrity, nil, 0, nil)

	assert.Equal(t, 1, tr.NextCycle())

	recs := []model.ItemRecord{
		{Category: model.CategorySealIntegrity, CycleNumber: 1, ItemKey: "Seal", Criteria: model.CriteriaOkay},
		{Category: model.CategorySealIntegrity, CycleNumber: 4, ItemKey: "Seal", Criteria: model.CriteriaOkay},
	}
	changed, err := tr.Recompute(recs)
	require.NoError(t, err)
	assert.True(t, changed)

	// Counter categories continue past gaps: max completed plus one.
	assert.Equal(t, 5, tr.NextCycle())
}

func TestTracker_Visibility(t *testing.T) {
	tr := New(model.CategoryCBB, cbbItems, 8, nil)

	require.NoError(t, tr.Start(1, model.CycleContext{}))
	require.NoError(t, tr.Complete(1, evaluated(1, "CBB 1")))

	assert.True(t, tr.Visible(1), "completed cycle stays visible")
	assert.True(t, tr.Visible(2), "next cycle visible")
	assert.True(t, tr.Visible(3), "one-cycle look-ahead visible")
	assert.False(t, tr.Visible(4), "beyond look-ahead hidden")
	assert.False(t, tr.Visible(0))
	assert.False(t, tr.Visible(9), "beyond the cap hidden")
}

func TestTracker_RecomputeDerivesMissed(t *testing.T) {
	tr := New(model.CategoryCBB, cbbItems, 8, nil)

	recs := []model.ItemRecord{
		{Category: model.CategoryCBB, CycleNumber: 1, ItemKey: "CBB 1", Criteria: model.CriteriaOkay},
		{Category: model.CategoryCBB, CycleNumber: 1, ItemKey: "CBB 2", Criteria: model.CriteriaNotOkay, DefectCategory: model.DefectCategoryB},
	}
	changed, err := tr.Recompute(recs)
	require.NoError(t, err)
	require.True(t, changed)

	st := tr.Status(1)
	require.NotNil(t, st)
	assert.Equal(t, model.CycleCompleted, st.State)
	assert.Equal(t, []string{"CBB 1"}, st.OkayItems)
	assert.Equal(t, []string{"CBB 2"}, st.DefectItems)
	assert.Equal(t, []string{"CBB 3"}, st.MissedItems)
	assert.Equal(t, 1, st.DefectCounts[model.DefectCategoryB])
	assert.Equal(t, 1, st.DefectCounts[model.DefectCategoryMissed])
}

func TestTracker_RecomputeUnchangedIsNoOp(t *testing.T) {
	tr := New(model.CategoryCBB, cbbItems, 8, newMemKV())

	recs := evaluated(1, "CBB 1", "CBB 2")
	changed, err := tr.Recompute(recs)
	require.NoError(t, err)
	assert.True(t, changed)

	// Same content, different slice order: hash matches, nothing moves.
	reordered := []model.ItemRecord{recs[1], recs[0]}
	changed, err = tr.Recompute(reordered)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestTracker_RecomputePreservesLocallyStarted(t *testing.T) {
	tr := New(model.CategoryCBB, cbbItems, 8, nil)

	changed, err := tr.Recompute(evaluated(1, "CBB 1"))
	require.NoError(t, err)
	require.True(t, changed)

	require.NoError(t, tr.Start(2, model.CycleContext{}))

	// A refetch that still has no rows for cycle 2 must not knock the
	// auditor out of the cycle they are working in.
	changed, err = tr.Recompute(append(evaluated(1, "CBB 1"), evaluated(1, "CBB 2")...))
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, model.CycleStarted, tr.State(2))
}

func TestTracker_RecomputeRebuildsAfterRestart(t *testing.T) {
	kv := newMemKV()
	tr := New(model.CategoryCBB, cbbItems, 8, kv)

	recs := evaluated(1, "CBB 1")
	changed, err := tr.Recompute(recs)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, model.CycleCompleted, tr.State(1))

	// A fresh tracker over the same durable store must rebuild from the
	// identical record set, not skip it: otherwise completed cycles read
	// as not started and cycle 1 is offered again.
	again := New(model.CategoryCBB, cbbItems, 8, kv)
	changed, err = again.Recompute(recs)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.CycleCompleted, again.State(1))
	assert.Equal(t, 2, again.NextCycle())
}

func TestTracker_StartedStateSurvivesRestart(t *testing.T) {
	kv := newMemKV()
	tr := New(model.CategoryCBB, cbbItems, 8, kv)

	require.NoError(t, tr.Start(1, model.CycleContext{Product: "Rusk"}))

	// Started cycles have no confirmed records to rebuild from, so a
	// fresh tracker restores them from the durable marker and can
	// complete them.
	again := New(model.CategoryCBB, cbbItems, 8, kv)
	assert.Equal(t, model.CycleStarted, again.State(1))
	require.NoError(t, again.Complete(1, evaluated(1, "CBB 1")))
	assert.Equal(t, 2, again.NextCycle())

	// Completion clears the marker: the next restart does not resurrect
	// cycle 1 as started.
	third := New(model.CategoryCBB, cbbItems, 8, kv)
	assert.Equal(t, model.CycleNotStarted, third.State(1))
}

func TestTracker_InitialContextCachedOnce(t *testing.T) {
	kv := newMemKV()
	tr := New(model.CategoryCBB, cbbItems, 8, kv)

	require.NoError(t, tr.Start(1, model.CycleContext{Product: "Rusk", Executive: "A. Khan"}))
	require.NoError(t, tr.Complete(1, evaluated(1, "CBB 1")))
	require.NoError(t, tr.Start(2, model.CycleContext{Product: "Wafer"}))

	initial := tr.InitialContext()
	require.NotNil(t, initial)
	assert.Equal(t, "Rusk", initial.Product)

	// A fresh tracker over the same kv store recovers the snapshot.
	again := New(model.CategoryCBB, cbbItems, 8, kv)
	initial = again.InitialContext()
	require.NotNil(t, initial)
	assert.Equal(t, "Rusk", initial.Product)
	assert.Equal(t, "A. Khan", initial.Executive)
}
