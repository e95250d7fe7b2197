package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/impactflow/notify-client/internal/model"
)

// Store persists notification rows.
type Store interface {
	// Insert writes rows and returns how many were new.
	Insert(ctx context.Context, rows []model.Notification) (inserted int, err error)
}

// DB is the subset of *pgxpool.Pool the archive uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notifications (
	id          UUID PRIMARY KEY,
	source_id   TEXT NOT NULL DEFAULT '',
	identity    TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	payload     JSONB NOT NULL,
	server_ts   BIGINT NOT NULL DEFAULT 0,
	received_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS notifications_identity_received_idx
	ON notifications (identity, received_at DESC);
`

const insertSQL = `
	INSERT INTO notifications (id, source_id, identity, title, payload, server_ts, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING
`

// PGStore writes notifications with pgx batches.
type PGStore struct {
	db DB
}

// NewPGStore wraps a pool.
func NewPGStore(db DB) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema creates the notifications table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create notifications schema: %w", err)
	}
	return nil
}

// Insert queues one INSERT per row in a single batch. Rows that already exist
// are skipped and not counted.
func (s *PGStore) Insert(ctx context.Context, rows []model.Notification) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSQL,
			r.ID, r.SourceID, r.Identity, r.Title, r.Payload, r.ServerTS, r.ReceivedAt)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert notification: %w", err)
		}
		inserted += int(ct.RowsAffected())
	}

	return inserted, nil
}
