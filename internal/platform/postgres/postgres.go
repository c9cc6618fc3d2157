// Package postgres opens the shared pgx pool and bootstraps the registry's
// own tables.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"schemaregistry/internal/platform/config"
)

// Open returns nil when no URL is configured.
func Open(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// Bootstrap runs idempotent CREATE statements in order.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool, stmts ...[]string) error {
	for _, group := range stmts {
		for _, stmt := range group {
			if _, err := pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
		}
	}
	return nil
}
