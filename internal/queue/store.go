// Package queue persists the offline submission buffer, the attachment
// fallback queue, the small key-value slots the engine needs across
// restarts, and the sync audit log. Two backends exist: SQLite for the
// default single-terminal install and Postgres for plants that
// centralize the buffer.
package queue

import (
	"context"

	"github.com/bakerline/qtour/internal/model"
)

// Store is the durable storage interface for the offline engine.
//
// Enqueue is append-only: a duplicate completion of the same cycle while
// offline accumulates as a separate entry, and any final dedup is the
// sync driver's job. Drain lists entries without removing them, in FIFO
// enqueue order per category. Remove deletes a single delivered entry;
// Discard irreversibly drops every queued entry for a tour and is meant
// only for operator-initiated abandonment of unsynced work.
type Store interface {
	Enqueue(ctx context.Context, sub model.OfflineSubmission) (*model.OfflineSubmission, error)
	Drain(ctx context.Context, tourID string) ([]model.OfflineSubmission, error)
	Remove(ctx context.Context, id string) error
	Discard(ctx context.Context, tourID string) (int, error)

	// Attachment fallback queue.
	EnqueueAttachment(ctx context.Context, att model.QueuedAttachment) (*model.QueuedAttachment, error)
	DrainAttachments(ctx context.Context, tourID string) ([]model.QueuedAttachment, error)
	RemoveAttachment(ctx context.Context, id string) error

	// Key-value slots: the initial-cycle auto-fill cache and the
	// started-cycle markers.
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
	DeleteValue(ctx context.Context, key string) error

	// Sync audit log.
	SyncStarted(ctx context.Context, tourID string, category model.Category) (string, error)
	SyncCompleted(ctx context.Context, syncID string, delivered, failed int) error
	SyncFailed(ctx context.Context, syncID, errMsg string) error

	Migrate(ctx context.Context) error
	Close() error
}
