// Package tour owns the per-category state of one inspection tour and
// exposes the operations the presentation layer drives: start a cycle,
// save a cycle, sync the offline queue, read cycle statuses and the
// score summary. Each category is an independently owned slice of state;
// all mutation goes through these operations.
package tour

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bakerline/qtour/internal/checklist"
	"github.com/bakerline/qtour/internal/cyclestate"
	"github.com/bakerline/qtour/internal/model"
	"github.com/bakerline/qtour/internal/normalize"
	"github.com/bakerline/qtour/internal/queue"
	"github.com/bakerline/qtour/internal/remote"
	"github.com/bakerline/qtour/internal/resolve"
	"github.com/bakerline/qtour/internal/score"
	"github.com/bakerline/qtour/internal/syncer"
)

// Validation errors surfaced to the auditor before any network or queue
// operation. No state mutates when one of these is returned.
var (
	ErrEmptySave       = eris.New("tour: cycle has no evaluated items")
	ErrMissingContext  = eris.New("tour: executive and product are required")
	ErrUnknownCategory = eris.New("tour: unknown category")
	ErrCycleNotStarted = eris.New("tour: cycle not started")
)

// AttachmentUploader stores a cycle image with the remote attachment
// service. It is an external collaborator; only the offline fallback
// lives here.
type AttachmentUploader interface {
	Upload(ctx context.Context, att model.QueuedAttachment) error
}

// Service is the engine for one tour.
type Service struct {
	tourID string
	defs   checklist.Set
	store  queue.Store
	svc    remote.Service
	driver *syncer.Driver

	mu         sync.Mutex
	trackers   map[model.Category]*cyclestate.Tracker
	serverRows map[model.Category][]model.ItemRecord
	drafts     map[model.Category][]model.ItemRecord
}

// New creates the tour service. The queue store doubles as the local
// durable KV the trackers persist their markers in.
func New(tourID string, defs checklist.Set, store queue.Store, svc remote.Service) *Service {
	s := &Service{
		tourID:     tourID,
		defs:       defs,
		store:      store,
		svc:        svc,
		driver:     syncer.New(tourID, store, svc),
		trackers:   make(map[model.Category]*cyclestate.Tracker),
		serverRows: make(map[model.Category][]model.ItemRecord),
		drafts:     make(map[model.Category][]model.ItemRecord),
	}
	kv := &storeKV{store: store, tourID: tourID}
	for _, category := range model.AllCategories {
		def := defs[category]
		s.trackers[category] = cyclestate.New(category, def.Items, def.MaxCycles, kv)
	}
	return s
}

// TourID returns the tour identifier.
func (s *Service) TourID() string { return s.tourID }

// Refresh fetches the category's records from the remote service and
// rebuilds cycle state. A fetch failure leaves the previously known
// server rows in place so the tour keeps working offline.
func (s *Service) Refresh(ctx context.Context, category model.Category) error {
	if !category.Valid() {
		return ErrUnknownCategory
	}
	rows, err := s.svc.Fetch(ctx, s.tourID, category)
	if err != nil {
		zap.L().Warn("tour: fetch failed, keeping cached rows",
			zap.String("tour_id", s.tourID),
			zap.String("category", string(category)),
			zap.Error(err),
		)
	} else {
		records := make([]model.ItemRecord, 0, len(rows))
		for _, row := range rows {
			records = append(records, normalize.FromFlat(row, category))
		}
		s.mu.Lock()
		s.serverRows[category] = records
		s.mu.Unlock()
	}
	return s.reconcile(ctx, category)
}

// CurrentCycle returns the cycle the presentation layer should offer
// next for a category; 0 means every cycle is completed.
func (s *Service) CurrentCycle(category model.Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackers[category].NextCycle()
}

// CycleStatuses returns the known cycle statuses for a category.
func (s *Service) CycleStatuses(category model.Category) map[int]model.CycleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackers[category].Statuses()
}

// VisibleCycle reports whether a cycle should be shown: completed
// cycles, the next cycle, and a one-cycle look-ahead placeholder.
func (s *Service) VisibleCycle(category model.Category, cycle int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackers[category].Visible(cycle)
}

// StartCycle transitions a cycle to Started, capturing its shared
// context. Fields the auditor left blank are auto-filled from the cached
// initial-cycle context; a field the auditor edited is never overwritten.
func (s *Service) StartCycle(ctx context.Context, category model.Category, cycle int, cycleCtx model.CycleContext) error {
	if !category.Valid() {
		return ErrUnknownCategory
	}
	if cycleCtx.Executive == "" || cycleCtx.Product == "" {
		return ErrMissingContext
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackers[category].Start(cycle, cycleCtx)
}

// SetDraft replaces the local draft records for the active cycle of a
// category. Drafts participate in the reconciled view but never in the
// confirmed cycle state.
func (s *Service) SetDraft(category model.Category, cycle int, form normalize.FormState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fallback := s.initialContext(category)
	records := make([]model.ItemRecord, 0, len(form.Items))
	for _, item := range form.Items {
		records = append(records, normalize.FromForm(item, category, cycle, form.Context, fallback))
	}
	s.drafts[category] = records
}

// SaveCycle validates and completes a cycle, delivering its records to
// the remote service. A delivery failure is returned to the caller
// undelivered and unqueued: the caller decides whether to retry or fall
// back to QueueCycle. Validation failures happen before any network
// traffic and mutate nothing.
func (s *Service) SaveCycle(ctx context.Context, category model.Category, cycle int, form normalize.FormState) error {
	records, err := s.buildCycleRecords(category, cycle, form)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if _, err := s.svc.Create(ctx, normalize.ToFlat(rec, s.tourID)); err != nil {
			return eris.Wrapf(err, "tour: save %s cycle %d", category, cycle)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.trackers[category].Complete(cycle, records); err != nil {
		return err
	}
	s.serverRows[category] = append(s.serverRows[category], records...)
	delete(s.drafts, category)
	return nil
}

// QueueCycle validates and completes a cycle while disconnected,
// buffering the records as an offline submission. Duplicate completions
// accumulate as separate entries; the sync driver handles final dedup.
func (s *Service) QueueCycle(ctx context.Context, category model.Category, cycle int, form normalize.FormState) (*model.OfflineSubmission, error) {
	records, err := s.buildCycleRecords(category, cycle, form)
	if err != nil {
		return nil, err
	}

	sub, err := s.store.Enqueue(ctx, model.OfflineSubmission{
		TourID:      s.tourID,
		Category:    category,
		CycleNumber: cycle,
		Records:     records,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "tour: queue %s cycle %d", category, cycle)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.trackers[category].Complete(cycle, records); err != nil {
		return nil, err
	}
	delete(s.drafts, category)

	zap.L().Info("tour: cycle queued offline",
		zap.String("tour_id", s.tourID),
		zap.String("category", string(category)),
		zap.Int("cycle", cycle),
		zap.Int("records", len(records)),
	)
	return sub, nil
}

// Sync replays the offline queue for one category and folds confirmed
// records back into cycle state.
func (s *Service) Sync(ctx context.Context, category model.Category) (*syncer.Result, error) {
	if !category.Valid() {
		return nil, ErrUnknownCategory
	}
	res, err := s.driver.Sync(ctx, category)
	if err != nil {
		return nil, err
	}
	if err := s.reconcile(ctx, category); err != nil {
		return res, err
	}
	return res, nil
}

// SyncAll replays every queued category.
func (s *Service) SyncAll(ctx context.Context) (map[model.Category]*syncer.Result, error) {
	results, err := s.driver.SyncAll(ctx)
	if err != nil {
		return results, err
	}
	for category := range results {
		if rerr := s.reconcile(ctx, category); rerr != nil && err == nil {
			err = rerr
		}
	}
	return results, err
}

// DiscardOffline irreversibly drops every queued submission for the
// tour. Operator-initiated abandonment of unsynced work only.
func (s *Service) DiscardOffline(ctx context.Context) (int, error) {
	return s.store.Discard(ctx, s.tourID)
}

// PendingSubmissions lists the queued submissions without removing them.
func (s *Service) PendingSubmissions(ctx context.Context) ([]model.OfflineSubmission, error) {
	return s.store.Drain(ctx, s.tourID)
}

// UploadAttachment stores a cycle image. Unlike record saves, a failed
// upload always falls back to the offline attachment queue, because the
// binary is otherwise lost.
func (s *Service) UploadAttachment(ctx context.Context, uploader AttachmentUploader, att model.QueuedAttachment) error {
	att.TourID = s.tourID
	if uploader != nil {
		err := uploader.Upload(ctx, att)
		if err == nil {
			return nil
		}
		zap.L().Warn("tour: attachment upload failed, queueing",
			zap.String("file", att.FileName),
			zap.Error(err),
		)
	}
	_, err := s.store.EnqueueAttachment(ctx, att)
	return err
}

// ResolvedRecords returns the reconciled record set for a category:
// server rows, confirmed sync results, queued submissions and the local
// draft, merged under the category's policy.
func (s *Service) ResolvedRecords(ctx context.Context, category model.Category) ([]model.ItemRecord, error) {
	queued, err := s.store.Drain(ctx, s.tourID)
	if err != nil {
		return nil, eris.Wrap(err, "tour: drain queue")
	}
	s.mu.Lock()
	server := s.combinedServerRows(category)
	draft := s.drafts[category]
	s.mu.Unlock()
	return resolve.Resolve(server, draft, queued, category), nil
}

// ScoreSummary computes the tour's product quality index over the fully
// reconciled record set of every category.
func (s *Service) ScoreSummary(ctx context.Context) (model.ScoreSummary, error) {
	var all []model.ItemRecord
	for _, category := range model.AllCategories {
		recs, err := s.ResolvedRecords(ctx, category)
		if err != nil {
			return model.ScoreSummary{}, err
		}
		all = append(all, recs...)
	}
	return score.Aggregate(all, s.defs), nil
}

// reconcile rebuilds a category's cycle state from the confirmed record
// sources (server rows, sync confirmations and the offline queue; the
// in-progress draft is excluded).
func (s *Service) reconcile(ctx context.Context, category model.Category) error {
	queued, err := s.store.Drain(ctx, s.tourID)
	if err != nil {
		return eris.Wrap(err, "tour: drain queue")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	resolved := resolve.Resolve(s.combinedServerRows(category), nil, queued, category)
	_, err = s.trackers[category].Recompute(resolved)
	return err
}

// buildCycleRecords validates a save and normalizes the form into the
// canonical records, including the synthesized missed items.
func (s *Service) buildCycleRecords(category model.Category, cycle int, form normalize.FormState) ([]model.ItemRecord, error) {
	if !category.Valid() {
		return nil, ErrUnknownCategory
	}

	s.mu.Lock()
	fallback := s.initialContext(category)
	state := s.trackers[category].State(cycle)
	s.mu.Unlock()

	switch state {
	case model.CycleCompleted:
		return nil, eris.Errorf("tour: %s cycle %d already completed", category, cycle)
	case model.CycleNotStarted:
		return nil, eris.Wrapf(ErrCycleNotStarted, "tour: %s cycle %d", category, cycle)
	}

	records := make([]model.ItemRecord, 0, len(form.Items))
	evaluated := make(map[string]bool, len(form.Items))
	var anyEvaluated bool
	for _, item := range form.Items {
		rec := normalize.FromForm(item, category, cycle, form.Context, fallback)
		if rec.Evaluated() {
			anyEvaluated = true
			evaluated[rec.ItemKey] = true
		}
		records = append(records, rec)
	}
	if !anyEvaluated {
		return nil, ErrEmptySave
	}

	if items := s.defs.Items(category); len(items) > 0 {
		missed := resolve.DeriveMissed(items, evaluated)
		if len(missed) > 0 {
			recCtx := records[0].Context
			records = append(records, resolve.SynthesizeMissed(category, cycle, missed, recCtx)...)
		}
	}
	return records, nil
}

// combinedServerRows merges the last fetch with records confirmed by the
// sync driver. Callers hold s.mu.
func (s *Service) combinedServerRows(category model.Category) []model.ItemRecord {
	rows := s.serverRows[category]
	confirmed := s.driver.Confirmed(category)
	out := make([]model.ItemRecord, 0, len(rows)+len(confirmed))
	out = append(out, rows...)
	out = append(out, confirmed...)
	return out
}

func (s *Service) initialContext(category model.Category) model.CycleContext {
	if ctx := s.trackers[category].InitialContext(); ctx != nil {
		return *ctx
	}
	return model.CycleContext{}
}

// storeKV adapts the queue store's KV slots to the tracker interface,
// scoping keys by tour.
type storeKV struct {
	store  queue.Store
	tourID string
}

func (kv *storeKV) key(k string) string { return kv.tourID + ":" + k }

func (kv *storeKV) Get(k string) (string, bool, error) {
	return kv.store.GetValue(context.Background(), kv.key(k))
}

func (kv *storeKV) Set(k, v string) error {
	return kv.store.SetValue(context.Background(), kv.key(k), v)
}

func (kv *storeKV) Delete(k string) error {
	return kv.store.DeleteValue(context.Background(), kv.key(k))
}

// MarshalStatuses renders every category's cycle statuses as JSON for
// the serve surface.
func (s *Service) MarshalStatuses() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.Category]map[int]model.CycleStatus, len(s.trackers))
	for category, tracker := range s.trackers {
		out[category] = tracker.Statuses()
	}
	data, err := json.Marshal(out)
	return data, eris.Wrap(err, "tour: marshal statuses")
}
