package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/bakerline/qtour/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS offline_queue (
	id          TEXT PRIMARY KEY,
	tour_id     TEXT NOT NULL,
	category    TEXT NOT NULL,
	cycle_no    INTEGER NOT NULL,
	records     TEXT NOT NULL,
	enqueued_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS attachment_queue (
	id          TEXT PRIMARY KEY,
	tour_id     TEXT NOT NULL,
	category    TEXT NOT NULL,
	cycle_no    INTEGER NOT NULL,
	file_name   TEXT NOT NULL,
	data        BLOB NOT NULL,
	enqueued_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS kv_cache (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_log (
	id           TEXT PRIMARY KEY,
	tour_id      TEXT NOT NULL,
	category     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME,
	delivered    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_offline_queue_tour ON offline_queue(tour_id, category, enqueued_at);
CREATE INDEX IF NOT EXISTS idx_attachment_queue_tour ON attachment_queue(tour_id, enqueued_at);
CREATE INDEX IF NOT EXISTS idx_sync_log_tour ON sync_log(tour_id, started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Enqueue(ctx context.Context, sub model.OfflineSubmission) (*model.OfflineSubmission, error) {
	sub.ID = uuid.New().String()
	sub.EnqueuedAt = time.Now().UTC()

	recordsJSON, err := json.Marshal(sub.Records)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal records")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO offline_queue (id, tour_id, category, cycle_no, records, enqueued_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.TourID, string(sub.Category), sub.CycleNumber, string(recordsJSON), sub.EnqueuedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: enqueue submission")
	}
	return &sub, nil
}

func (s *SQLiteStore) Drain(ctx context.Context, tourID string) ([]model.OfflineSubmission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tour_id, category, cycle_no, records, enqueued_at FROM offline_queue
		 WHERE tour_id = ? ORDER BY category, enqueued_at, id`,
		tourID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: drain queue")
	}
	defer rows.Close()

	var subs []model.OfflineSubmission
	for rows.Next() {
		var sub model.OfflineSubmission
		var recordsJSON string
		if err := rows.Scan(&sub.ID, &sub.TourID, &sub.Category, &sub.CycleNumber, &recordsJSON, &sub.EnqueuedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		if err := json.Unmarshal([]byte(recordsJSON), &sub.Records); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal records")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: drain iterate")
}

func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM offline_queue WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: remove submission %s", id)
	}
	return checkRowsAffected(res, "submission", id)
}

func (s *SQLiteStore) Discard(ctx context.Context, tourID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM offline_queue WHERE tour_id = ?`, tourID)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: discard queue for tour %s", tourID)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) EnqueueAttachment(ctx context.Context, att model.QueuedAttachment) (*model.QueuedAttachment, error) {
	att.ID = uuid.New().String()
	att.EnqueuedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attachment_queue (id, tour_id, category, cycle_no, file_name, data, enqueued_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		att.ID, att.TourID, string(att.Category), att.CycleNumber, att.FileName, att.Data, att.EnqueuedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: enqueue attachment")
	}
	return &att, nil
}

func (s *SQLiteStore) DrainAttachments(ctx context.Context, tourID string) ([]model.QueuedAttachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tour_id, category, cycle_no, file_name, data, enqueued_at FROM attachment_queue
		 WHERE tour_id = ? ORDER BY enqueued_at, id`,
		tourID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: drain attachments")
	}
	defer rows.Close()

	var atts []model.QueuedAttachment
	for rows.Next() {
		var att model.QueuedAttachment
		if err := rows.Scan(&att.ID, &att.TourID, &att.Category, &att.CycleNumber, &att.FileName, &att.Data, &att.EnqueuedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attachment")
		}
		atts = append(atts, att)
	}
	return atts, eris.Wrap(rows.Err(), "sqlite: drain attachments iterate")
}

func (s *SQLiteStore) RemoveAttachment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attachment_queue WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: remove attachment %s", id)
	}
	return checkRowsAffected(res, "attachment", id)
}

func (s *SQLiteStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_cache WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "sqlite: get value %s", key)
	}
	return value, true, nil
}

func (s *SQLiteStore) SetValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_cache (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return eris.Wrapf(err, "sqlite: set value %s", key)
}

func (s *SQLiteStore) DeleteValue(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_cache WHERE key = ?`, key)
	return eris.Wrapf(err, "sqlite: delete value %s", key)
}

func (s *SQLiteStore) SyncStarted(ctx context.Context, tourID string, category model.Category) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_log (id, tour_id, category, status, started_at) VALUES (?, ?, ?, 'running', ?)`,
		id, tourID, string(category), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: sync started")
	}
	return id, nil
}

func (s *SQLiteStore) SyncCompleted(ctx context.Context, syncID string, delivered, failed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = 'complete', completed_at = ?, delivered = ?, failed = ? WHERE id = ?`,
		time.Now().UTC(), delivered, failed, syncID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: sync completed %s", syncID)
	}
	return checkRowsAffected(res, "sync", syncID)
}

func (s *SQLiteStore) SyncFailed(ctx context.Context, syncID, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = 'failed', completed_at = ?, error = ? WHERE id = ?`,
		time.Now().UTC(), errMsg, syncID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: sync failed %s", syncID)
	}
	return checkRowsAffected(res, "sync", syncID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
