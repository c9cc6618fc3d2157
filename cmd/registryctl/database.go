package main

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"schemaregistry/internal/eventstore"
	"schemaregistry/internal/platform/config"
	"schemaregistry/internal/platform/postgres"
	"schemaregistry/internal/projector"
	projectorstore "schemaregistry/internal/projector/store"
)

// openDatabase connects with the server's POSTGRES_* settings and makes
// sure every registry table exists.
func openDatabase(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.SectionFromEnv[config.PostgresConfig]("POSTGRES_")
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, errors.New("POSTGRES_URL is required")
	}
	pool, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := postgres.Bootstrap(ctx, pool, eventstore.Schema, projectorstore.Schema, projector.OffsetSchema); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
