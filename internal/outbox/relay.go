package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"schemaregistry/internal/platform/kafka/producer"
	"schemaregistry/internal/platform/logger"
	"schemaregistry/internal/platform/metrics"
)

// Relay moves outbox entries to Kafka, keyed by aggregate id so each stream
// stays ordered within its partition.
type Relay struct {
	store     Store
	publisher Publisher
	topics    map[string]string
	batchSize int
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewRelay maps each aggregate type (stream type) to a topic.
func NewRelay(store Store, publisher Publisher, topics map[string]string, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		topics:    topics,
		batchSize: 100,
		interval:  500 * time.Millisecond,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Drain publishes pending entries until none are left and returns how many
// were published.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.publishBatch(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < r.batchSize {
			return total, nil
		}
	}
}

func (r *Relay) publishBatch(ctx context.Context) (int, error) {
	entries, err := r.store.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	msgs := make([]producer.Message, 0, len(entries))
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		topic, ok := r.topics[e.AggregateType]
		if !ok {
			r.logger.WarnContext(ctx, "no topic for outbox entry, skipping",
				"outbox_id", e.ID,
				"aggregate_type", e.AggregateType,
			)
			ids = append(ids, e.ID)
			continue
		}
		msgs = append(msgs, producer.Message{
			Topic: topic,
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: map[string]string{
				HeaderEventType:  e.EventType,
				HeaderStreamType: e.AggregateType,
				HeaderOutboxID:   e.ID.String(),
			},
		})
		ids = append(ids, e.ID)
	}

	if err := r.publisher.Publish(ctx, msgs...); err != nil {
		r.metrics.IncrementPublishFailure()
		return 0, fmt.Errorf("publish outbox batch: %w", err)
	}
	if err := r.store.MarkPublished(ctx, ids, r.now()); err != nil {
		// The batch will be published again; consumers are idempotent.
		return 0, err
	}
	r.metrics.AddPublished(len(msgs))
	return len(entries), nil
}

// Run drains on every tick until ctx is cancelled. Publish failures are
// logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		n, err := r.Drain(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
		}
		if n > 0 {
			r.logger.DebugContext(ctx, "outbox relayed", "count", n)
		}
		if backlog, err := r.store.Backlog(ctx); err == nil {
			r.metrics.SetBacklog(backlog)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
