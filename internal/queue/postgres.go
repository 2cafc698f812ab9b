package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/bakerline/qtour/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS offline_queue (
	id          TEXT PRIMARY KEY,
	tour_id     TEXT NOT NULL,
	category    TEXT NOT NULL,
	cycle_no    INTEGER NOT NULL,
	records     JSONB NOT NULL,
	enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS attachment_queue (
	id          TEXT PRIMARY KEY,
	tour_id     TEXT NOT NULL,
	category    TEXT NOT NULL,
	cycle_no    INTEGER NOT NULL,
	file_name   TEXT NOT NULL,
	data        BYTEA NOT NULL,
	enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	delivered    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_offline_queue_tour ON offline_queue(tour_id, category, enqueued_at);
CREATE INDEX IF NOT EXISTS idx_attachment_queue_tour ON attachment_queue(tour_id, enqueued_at);
CREATE INDEX IF NOT EXISTS idx_sync_log_tour ON sync_log(tour_id, started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Enqueue(ctx context.Context, sub model.OfflineSubmission) (*model.OfflineSubmission, error) {
	sub.ID = uuid.New().String()
	sub.EnqueuedAt = time.Now().UTC()

	recordsJSON, err := json.Marshal(sub.Records)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal records")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO offline_queue (id, tour_id, category, cycle_no, records, enqueued_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID, sub.TourID, string(sub.Category), sub.CycleNumber, recordsJSON, sub.EnqueuedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: enqueue submission")
	}
	return &sub, nil
}

func (s *PostgresStore) Drain(ctx context.Context, tourID string) ([]model.OfflineSubmission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tour_id, category, cycle_no, records, enqueued_at FROM offline_queue
		 WHERE tour_id = $1 ORDER BY category, enqueued_at, id`,
		tourID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: drain queue")
	}
	defer rows.Close()

	var subs []model.OfflineSubmission
	for rows.Next() {
		var sub model.OfflineSubmission
		var recordsJSON []byte
		if err := rows.Scan(&sub.ID, &sub.TourID, &sub.Category, &sub.CycleNumber, &recordsJSON, &sub.EnqueuedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		if err := json.Unmarshal(recordsJSON, &sub.Records); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal records")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: drain iterate")
}

func (s *PostgresStore) Remove(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM offline_queue WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: remove submission %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("submission not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) Discard(ctx context.Context, tourID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM offline_queue WHERE tour_id = $1`, tourID)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: discard queue for tour %s", tourID)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) EnqueueAttachment(ctx context.Context, att model.QueuedAttachment) (*model.QueuedAttachment, error) {
	att.ID = uuid.New().String()
	att.EnqueuedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO attachment_queue (id, tour_id, category, cycle_no, file_name, data, enqueued_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		att.ID, att.TourID, string(att.Category), att.CycleNumber, att.FileName, att.Data, att.EnqueuedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: enqueue attachment")
	}
	return &att, nil
}

func (s *PostgresStore) DrainAttachments(ctx context.Context, tourID string) ([]model.QueuedAttachment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tour_id, category, cycle_no, file_name, data, enqueued_at FROM attachment_queue
		 WHERE tour_id = $1 ORDER BY enqueued_at, id`,
		tourID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: drain attachments")
	}
	defer rows.Close()

	var atts []model.QueuedAttachment
	for rows.Next() {
		var att model.QueuedAttachment
		if err := rows.Scan(&att.ID, &att.TourID, &att.Category, &att.CycleNumber, &att.FileName, &att.Data, &att.EnqueuedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan attachment")
		}
		atts = append(atts, att)
	}
	return atts, eris.Wrap(rows.Err(), "postgres: drain attachments iterate")
}

func (s *PostgresStore) RemoveAttachment(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM attachment_queue WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: remove attachment %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("attachment not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_cache WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "postgres: get value %s", key)
	}
	return value, true, nil
}

func (s *PostgresStore) SetValue(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_cache (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	return eris.Wrapf(err, "postgres: set value %s", key)
}

func (s *PostgresStore) DeleteValue(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM kv_cache WHERE key = $1`, key)
	return eris.Wrapf(err, "postgres: delete value %s", key)
}

func (s *PostgresStore) SyncStarted(ctx context.Context, tourID string, category model.Category) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_log (id, tour_id, category, status, started_at) VALUES ($1, $2, $3, 'running', $4)`,
		id, tourID, string(category), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: sync started")
	}
	return id, nil
}

func (s *PostgresStore) SyncCompleted(ctx context.Context, syncID string, delivered, failed int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_log SET status = 'complete', completed_at = $1, delivered = $2, failed = $3 WHERE id = $4`,
		time.Now().UTC(), delivered, failed, syncID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: sync completed %s", syncID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("sync not found: %s", syncID)
	}
	return nil
}

func (s *PostgresStore) SyncFailed(ctx context.Context, syncID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_log SET status = 'failed', completed_at = $1, error = $2 WHERE id = $3`,
		time.Now().UTC(), errMsg, syncID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: sync failed %s", syncID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("sync not found: %s", syncID)
	}
	return nil
}
