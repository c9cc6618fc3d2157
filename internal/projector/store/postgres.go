// Package store is the Postgres read model written by the projector.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"schemaregistry/internal/definition"
	"schemaregistry/internal/projection"
	"schemaregistry/internal/projector"
	"schemaregistry/pkg/platform/sentinel"
)

// Schema creates the registry_definitions table.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS registry_definitions (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		schema TEXT NOT NULL,
		source_file TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		projection_table TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		version BIGINT NOT NULL
	)`,
}

const undefinedTable = "42P01"

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) UpsertDefinition(ctx context.Context, row projector.DefinitionRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO registry_definitions
			(id, title, schema, source_file, status, projection_table, created_by, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			schema = EXCLUDED.schema,
			source_file = EXCLUDED.source_file,
			status = EXCLUDED.status,
			projection_table = EXCLUDED.projection_table,
			updated_at = EXCLUDED.updated_at,
			version = EXCLUDED.version
		WHERE registry_definitions.version < EXCLUDED.version`,
		row.ID, row.Title, row.Schema, row.SourceFile, string(row.Status), row.Table,
		row.CreatedBy, row.CreatedAt, row.UpdatedAt, row.Version)
	if err != nil {
		return fmt.Errorf("upsert definition: %w", err)
	}
	return nil
}

func (s *Postgres) Definition(ctx context.Context, id uuid.UUID) (projector.DefinitionRow, error) {
	var row projector.DefinitionRow
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, schema, source_file, status, projection_table, created_by, created_at, updated_at, version
		FROM registry_definitions WHERE id = $1`, id).
		Scan(&row.ID, &row.Title, &row.Schema, &row.SourceFile, &status, &row.Table,
			&row.CreatedBy, &row.CreatedAt, &row.UpdatedAt, &row.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return projector.DefinitionRow{}, sentinel.ErrNotFound
	}
	if err != nil {
		return projector.DefinitionRow{}, fmt.Errorf("query definition: %w", err)
	}
	row.Status = definition.Status(status)
	return row, nil
}

func (s *Postgres) ExecDDL(ctx context.Context, statements []string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("exec ddl: %w", err)
			}
		}
		return nil
	})
}

func (s *Postgres) InsertEntity(ctx context.Context, table string, row projector.EntityRow) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s
			(id, entity_type, created_by, created_at, registry_def_id, registry_def_version, version, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		ON CONFLICT (id) DO NOTHING`, projection.Ident(table), projection.RootColumn),
		row.ID, row.EntityType, row.CreatedBy, row.CreatedAt,
		row.RegistryDefID, row.RegistryDefVersion, row.Version, string(row.Data))
	return tableError(table, "insert entity", err)
}

func (s *Postgres) UpdateEntity(ctx context.Context, table string, row projector.EntityRow) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET %s = $2::jsonb, version = $3
		WHERE id = $1 AND version < $3`, projection.Ident(table), projection.RootColumn),
		row.ID, string(row.Data), row.Version)
	return tableError(table, "update entity", err)
}

func (s *Postgres) DeleteEntity(ctx context.Context, table string, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, projection.Ident(table)), id)
	return tableError(table, "delete entity", err)
}

func tableError(table, op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%s: %w: %s", op, projector.ErrNoTable, table)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Count returns the number of rows in a projection table.
func (s *Postgres) Count(ctx context.Context, table string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, projection.Ident(table))).Scan(&n)
	if err != nil {
		return 0, tableError(table, "count", err)
	}
	return n, nil
}
