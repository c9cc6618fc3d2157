package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	defservice "schemaregistry/internal/definition/service"
	entservice "schemaregistry/internal/entity/service"
	"schemaregistry/internal/eventstore"
	jwttoken "schemaregistry/internal/jwt_token"
	"schemaregistry/internal/platform/config"
	"schemaregistry/internal/platform/httpserver"
	"schemaregistry/internal/platform/logger"
	"schemaregistry/internal/platform/metrics"
	"schemaregistry/internal/platform/middleware"
	"schemaregistry/internal/platform/postgres"
	"schemaregistry/internal/projector"
	projectorstore "schemaregistry/internal/projector/store"
	"schemaregistry/internal/schema"
	httptransport "schemaregistry/internal/transport/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires the registry. Without POSTGRES_URL everything lives in memory
// and no projector runs; with it, events are durable and the read model is
// kept up to date either from Kafka or straight from the event feed.
func run(ctx context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pool, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	health := map[string]httptransport.HealthCheck{}

	var store interface {
		eventstore.Store
		eventstore.Feed
	}
	if pool != nil {
		defer pool.Close()
		if err := postgres.Bootstrap(ctx, pool, eventstore.Schema, projectorstore.Schema, projector.OffsetSchema); err != nil {
			return err
		}
		store = eventstore.NewPostgres(pool)
		health["postgres"] = pool.Ping
		log.Info("using postgres event store")
	} else {
		store = eventstore.NewMemoryStore()
		log.Warn("POSTGRES_URL not set, events are kept in memory and no read model is maintained")
	}

	cache := schema.NewCache(cfg.Schema.CacheTTL)
	defs := defservice.New(store,
		defservice.WithLogger(log),
		defservice.WithMetrics(m),
		defservice.WithSchemas(cache),
		defservice.WithMaxRetries(cfg.Server.CommandRetries),
	)
	ents := entservice.New(store,
		entservice.WithLogger(log),
		entservice.WithMetrics(m),
		entservice.WithSchemas(cache),
		entservice.WithMaxRetries(cfg.Server.CommandRetries),
	)

	g, ctx := errgroup.WithContext(ctx)
	if pool != nil {
		w := &workers{cfg: cfg, pool: pool, feed: store, metrics: m, logger: log, health: health}
		if err := w.start(ctx, g); err != nil {
			return err
		}
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Definitions: defs,
		Entities:    ents,
		Validator:   validator(cfg.Auth, log),
		Gatherer:    reg,
		Health:      health,
		Logger:      log,
	})
	srv := httpserver.New(cfg.Server.Addr, router)
	g.Go(func() error {
		return httpserver.Run(ctx, srv, cfg.Server.ShutdownTimeout, log)
	})

	err = g.Wait()
	log.Info("schema registry stopped", "error", err)
	return err
}

func validator(cfg config.Auth, log *slog.Logger) middleware.JWTValidator {
	if cfg.SigningKey == "" {
		log.Warn("AUTH_JWT_SIGNING_KEY not set, requests are not authenticated")
		return nil
	}
	return jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.SigningKey, cfg.Issuer, cfg.Audience))
}
