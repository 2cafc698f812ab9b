// Package syncer replays the offline submission queue against the remote
// persistence service and folds confirmed records back into the
// reconciled record set. Sync never runs on a timer; it is triggered by
// connectivity restoration or an explicit user action.
package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bakerline/qtour/internal/model"
	"github.com/bakerline/qtour/internal/normalize"
	"github.com/bakerline/qtour/internal/queue"
	"github.com/bakerline/qtour/internal/remote"
)

// Failure pairs a submission with the reason it could not be delivered.
type Failure struct {
	Submission model.OfflineSubmission
	Reason     string
}

// Result is the outcome of one category sync.
type Result struct {
	Delivered []model.OfflineSubmission
	Failed    []Failure
}

// Driver replays queued submissions for one tour. Syncs for the same
// category are single-flight; different categories may run in parallel.
type Driver struct {
	tourID string
	store  queue.Store
	svc    remote.Service

	flight singleflight.Group

	mu        sync.Mutex
	confirmed map[model.Category][]model.ItemRecord
}

// New creates a sync driver for a tour.
func New(tourID string, store queue.Store, svc remote.Service) *Driver {
	return &Driver{
		tourID:    tourID,
		store:     store,
		svc:       svc,
		confirmed: make(map[model.Category][]model.ItemRecord),
	}
}

// Sync replays the queued submissions for one category in FIFO enqueue
// order. The batch is the unit of retry: if any record of a submission is
// rejected, the whole submission is marked failed and retained in the
// queue, and the category's replay stops so later submissions cannot
// overtake it. Concurrent calls for the same category share one flight.
func (d *Driver) Sync(ctx context.Context, category model.Category) (*Result, error) {
	v, err, _ := d.flight.Do(string(category), func() (any, error) {
		return d.syncCategory(ctx, category)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// SyncAll replays every category found in the queue; categories run in
// parallel, each internally FIFO.
func (d *Driver) SyncAll(ctx context.Context) (map[model.Category]*Result, error) {
	subs, err := d.store.Drain(ctx, d.tourID)
	if err != nil {
		return nil, eris.Wrap(err, "syncer: drain queue")
	}

	seen := make(map[model.Category]bool)
	var categories []model.Category
	for _, sub := range subs {
		if !seen[sub.Category] {
			seen[sub.Category] = true
			categories = append(categories, sub.Category)
		}
	}

	results := make(map[model.Category]*Result, len(categories))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, category := range categories {
		category := category
		g.Go(func() error {
			res, err := d.Sync(gctx, category)
			if err != nil {
				return err
			}
			mu.Lock()
			results[category] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Confirmed returns the records confirmed by earlier syncs for a
// category. Callers merge them with the remote fetch as server rows.
func (d *Driver) Confirmed(category model.Category) []model.ItemRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	recs := d.confirmed[category]
	out := make([]model.ItemRecord, len(recs))
	copy(out, recs)
	return out
}

func (d *Driver) syncCategory(ctx context.Context, category model.Category) (*Result, error) {
	subs, err := d.store.Drain(ctx, d.tourID)
	if err != nil {
		return nil, eris.Wrap(err, "syncer: drain queue")
	}

	var pending []model.OfflineSubmission
	for _, sub := range subs {
		if sub.Category == category {
			pending = append(pending, sub)
		}
	}
	if len(pending) == 0 {
		return &Result{}, nil
	}

	syncID, err := d.store.SyncStarted(ctx, d.tourID, category)
	if err != nil {
		return nil, eris.Wrap(err, "syncer: log start")
	}

	result := &Result{}
	for _, sub := range pending {
		stored, deliverErr := d.deliver(ctx, sub)
		if deliverErr != nil {
			result.Failed = append(result.Failed, Failure{
				Submission: sub,
				Reason:     deliverErr.Error(),
			})
			zap.L().Warn("sync: submission delivery failed",
				zap.String("tour_id", d.tourID),
				zap.String("category", string(category)),
				zap.Int("cycle", sub.CycleNumber),
				zap.Error(deliverErr),
			)
			// Stop here so a later submission cannot overtake the
			// retained one.
			break
		}

		if err := d.store.Remove(ctx, sub.ID); err != nil {
			return nil, eris.Wrapf(err, "syncer: remove delivered submission %s", sub.ID)
		}
		d.fold(category, stored)
		result.Delivered = append(result.Delivered, sub)

		zap.L().Info("sync: submission delivered",
			zap.String("tour_id", d.tourID),
			zap.String("category", string(category)),
			zap.Int("cycle", sub.CycleNumber),
			zap.Int("records", len(sub.Records)),
		)
	}

	if len(result.Failed) > 0 {
		_ = d.store.SyncFailed(ctx, syncID, result.Failed[0].Reason)
	} else {
		_ = d.store.SyncCompleted(ctx, syncID, len(result.Delivered), 0)
	}
	return result, nil
}

// deliver sends every record of a submission. Any rejection fails the
// whole batch; partially delivered records are not retried individually.
// Panics from the remote client are converted into a failure.
func (d *Driver) deliver(ctx context.Context, sub model.OfflineSubmission) (stored []model.ItemRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			stored = nil
			err = eris.New(fmt.Sprintf("syncer: remote service panic: %v", r))
		}
	}()

	stored = make([]model.ItemRecord, 0, len(sub.Records))
	for _, rec := range sub.Records {
		row, createErr := d.svc.Create(ctx, normalize.ToFlat(rec, sub.TourID))
		if createErr != nil {
			return nil, createErr
		}
		stored = append(stored, normalize.FromFlat(row, sub.Category))
	}
	return stored, nil
}

func (d *Driver) fold(category model.Category, records []model.ItemRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confirmed[category] = append(d.confirmed[category], records...)
}
