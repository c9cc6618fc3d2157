package projector

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OffsetSchema creates the projector_offsets table.
var OffsetSchema = []string{
	`CREATE TABLE IF NOT EXISTS projector_offsets (
		name TEXT NOT NULL,
		key TEXT NOT NULL,
		position BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (name, key)
	)`,
}

type PostgresOffsets struct {
	pool *pgxpool.Pool
}

func NewPostgresOffsets(pool *pgxpool.Pool) *PostgresOffsets {
	return &PostgresOffsets{pool: pool}
}

func (s *PostgresOffsets) Read(ctx context.Context, name, key string) (int64, error) {
	var pos int64
	err := s.pool.QueryRow(ctx,
		`SELECT position FROM projector_offsets WHERE name = $1 AND key = $2`, name, key).Scan(&pos)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read offset: %w", err)
	}
	return pos, nil
}

func (s *PostgresOffsets) Upsert(ctx context.Context, name, key string, offset int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projector_offsets (name, key, position, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name, key) DO UPDATE
		SET position = EXCLUDED.position, updated_at = EXCLUDED.updated_at`,
		name, key, offset)
	if err != nil {
		return fmt.Errorf("upsert offset: %w", err)
	}
	return nil
}
