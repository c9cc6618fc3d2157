package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"schemaregistry/internal/eventstore"
	"schemaregistry/internal/outbox"
	"schemaregistry/internal/platform/config"
	"schemaregistry/internal/platform/kafka/consumer"
	"schemaregistry/internal/platform/kafka/producer"
	"schemaregistry/internal/platform/metrics"
	"schemaregistry/internal/platform/redis"
	"schemaregistry/internal/projector"
	projectorstore "schemaregistry/internal/projector/store"
	httptransport "schemaregistry/internal/transport/http"
)

// workers starts the background loops that need Postgres: the outbox relay
// and the projector. A worker that stops is reported by /healthz; the API
// keeps serving.
type workers struct {
	cfg     config.Config
	pool    *pgxpool.Pool
	feed    eventstore.Feed
	metrics *metrics.Metrics
	logger  *slog.Logger
	health  map[string]httptransport.HealthCheck
}

func (w *workers) start(ctx context.Context, g *errgroup.Group) error {
	offsets, err := w.offsets(ctx, g)
	if err != nil {
		return err
	}
	p := projector.New(w.cfg.Projector.Name, projectorstore.NewPostgres(w.pool), offsets,
		projector.WithLogger(w.logger.With("component", "projector")),
		projector.WithMetrics(w.metrics),
		projector.WithFlushEvery(w.cfg.Projector.FlushEvery),
	)
	w.health["projector"] = p.Health

	if !w.cfg.KafkaEnabled() {
		w.logger.Info("projector following the event feed")
		w.supervise(g, "projector", func() error {
			return p.Follow(ctx, w.feed, w.cfg.Projector.BatchSize, w.cfg.Projector.PollInterval)
		})
		return nil
	}
	return w.startKafka(ctx, g, p)
}

// workerState remembers why a worker stopped.
type workerState struct {
	mu  sync.Mutex
	err error
}

func (s *workerState) stopped(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *workerState) check(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return fmt.Errorf("stopped: %w", s.err)
	}
	return nil
}

// supervise runs fn in g without letting its error cancel g.
func (w *workers) supervise(g *errgroup.Group, name string, fn func() error) {
	state := &workerState{}
	w.health[name+"_worker"] = state.check
	g.Go(func() error {
		if err := fn(); err != nil {
			w.logger.Error("worker stopped", "worker", name, "error", err)
			state.stopped(err)
		}
		return nil
	})
}

func (w *workers) offsets(ctx context.Context, g *errgroup.Group) (projector.OffsetStore, error) {
	switch w.cfg.Projector.OffsetBackend {
	case "memory":
		return projector.NewMemoryOffsets(), nil
	case "redis":
		conn, err := redis.Open(ctx, w.cfg.Redis)
		if err != nil {
			return nil, err
		}
		w.health["redis"] = conn.Health
		g.Go(func() error {
			<-ctx.Done()
			return conn.Close()
		})
		return projector.NewRedisOffsets(conn.Client), nil
	default:
		return projector.NewPostgresOffsets(w.pool), nil
	}
}

func (w *workers) startKafka(ctx context.Context, g *errgroup.Group, p *projector.Projector) error {
	kc := w.cfg.Kafka
	prod, err := producer.New(producer.Config{Brokers: kc.Brokers, ClientID: kc.ClientID}, w.logger)
	if err != nil {
		return err
	}
	if err := prod.EnsureTopics(ctx, kc.Partitions, kc.ReplicationFactor, kc.DefinitionsTopic, kc.EntitiesTopic); err != nil {
		prod.Close()
		return err
	}
	w.health["kafka"] = prod.Ping

	relay := outbox.NewRelay(outbox.NewPostgres(w.pool), prod, map[string]string{
		eventstore.StreamDefinition: kc.DefinitionsTopic,
		eventstore.StreamEntity:     kc.EntitiesTopic,
	},
		outbox.WithLogger(w.logger.With("component", "outbox")),
		outbox.WithMetrics(w.metrics),
		outbox.WithBatchSize(w.cfg.Outbox.BatchSize),
		outbox.WithPollInterval(w.cfg.Outbox.PollInterval),
	)
	w.supervise(g, "outbox", func() error {
		defer prod.Close()
		return relay.Run(ctx)
	})

	router := projector.NewRouter(w.logger, nil)
	router.Register(kc.DefinitionsTopic, projector.NewStreamHandler(p, eventstore.StreamDefinition))
	router.Register(kc.EntitiesTopic, projector.NewStreamHandler(p, eventstore.StreamEntity))
	cons, err := consumer.New(consumer.Config{
		Brokers:  kc.Brokers,
		ClientID: kc.ClientID,
		Group:    kc.ConsumerGroup,
		Topics:   router.Topics(),
	}, router, w.logger.With("component", "consumer"))
	if err != nil {
		return err
	}
	w.supervise(g, "projector", func() error {
		runErr := cons.Run(ctx)
		if err := p.Flush(context.WithoutCancel(ctx)); err != nil {
			w.logger.Error("projector offset flush failed", "error", err)
		}
		if runErr != nil {
			return fmt.Errorf("projector consumer: %w", runErr)
		}
		return nil
	})
	w.logger.Info("projector consuming from kafka", "topics", router.Topics(), "group", kc.ConsumerGroup)
	return nil
}
