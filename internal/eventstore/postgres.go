package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"schemaregistry/pkg/platform/sentinel"
	txcontext "schemaregistry/pkg/platform/tx"
)

// Schema creates the event and outbox tables. Payloads are JSON, not JSONB,
// so bodies read back byte for byte: key order and number literals survive.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		position BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		stream_type TEXT NOT NULL,
		stream_id UUID NOT NULL,
		version BIGINT NOT NULL,
		event_type TEXT NOT NULL,
		payload JSON NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		UNIQUE (stream_type, stream_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload JSON NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		published_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_unpublished_idx ON outbox (seq) WHERE published_at IS NULL`,
}

const uniqueViolation = "23505"

// appendLock is held by every append until commit, so feed positions become
// visible in increasing order and ReadAll never skips a late commit.
const appendLock int64 = 0x7265676973747279

// PostgresStore stores events in Postgres and writes each appended event to
// the outbox in the same transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a store over pool. Tables must exist; see Schema.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresStore) querier(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.pool
}

func (s *PostgresStore) Load(ctx context.Context, streamType string, id uuid.UUID) ([]Record, error) {
	rows, err := s.querier(ctx).Query(ctx, `
		SELECT id, stream_type, stream_id, version, position, event_type, payload, recorded_at
		FROM events
		WHERE stream_type = $1 AND stream_id = $2
		ORDER BY version`, streamType, id)
	if err != nil {
		return nil, fmt.Errorf("query stream: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) ReadAll(ctx context.Context, after int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.querier(ctx).Query(ctx, `
		SELECT id, stream_type, stream_id, version, position, event_type, payload, recorded_at
		FROM events
		WHERE position > $1
		ORDER BY position
		LIMIT $2`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		var payload []byte
		if err := rows.Scan(&r.ID, &r.StreamType, &r.StreamID, &r.Version, &r.Position, &r.Type, &payload, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.Payload = json.RawMessage(payload)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Append(ctx context.Context, streamType string, id uuid.UUID, expectedVersion int64, records []Record) ([]Record, error) {
	if len(records) == 0 {
		return nil, nil
	}

	// A transaction carried in ctx is joined through a savepoint, so the
	// caller decides whether the append survives.
	var tx pgx.Tx
	var err error
	if outer, ok := txcontext.From(ctx); ok {
		tx, err = outer.Begin(ctx)
	} else {
		tx, err = s.pool.Begin(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLock); err != nil {
		return nil, fmt.Errorf("lock append: %w", err)
	}

	var current int64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_type = $1 AND stream_id = $2`,
		streamType, id).Scan(&current); err != nil {
		return nil, fmt.Errorf("read stream version: %w", err)
	}
	if current != expectedVersion {
		return nil, fmt.Errorf("stream %s/%s at version %d, expected %d: %w", streamType, id, current, expectedVersion, sentinel.ErrConflict)
	}

	stamped := stamp(streamType, id, expectedVersion, records, time.Now().UTC())
	for i := range stamped {
		r := &stamped[i]
		err := tx.QueryRow(ctx, `
			INSERT INTO events (id, stream_type, stream_id, version, event_type, payload, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING position`,
			r.ID, r.StreamType, r.StreamID, r.Version, r.Type, []byte(r.Payload), r.RecordedAt,
		).Scan(&r.Position)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return nil, fmt.Errorf("stream %s/%s version %d already written: %w", streamType, id, r.Version, sentinel.ErrConflict)
			}
			return nil, fmt.Errorf("insert event: %w", err)
		}

		envelope, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal envelope: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), r.StreamType, r.StreamID.String(), r.Type, envelope, r.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("insert outbox entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("commit append: %w", sentinel.ErrConflict)
		}
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return stamped, nil
}
