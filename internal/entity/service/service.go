// Package service runs entity commands. Each command reads the definition
// stream named by the entity type, then the entity's own stream.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"schemaregistry/internal/definition"
	"schemaregistry/internal/entity"
	"schemaregistry/internal/eventstore"
	"schemaregistry/internal/platform/logger"
	"schemaregistry/internal/platform/metrics"
	dErrors "schemaregistry/pkg/domain-errors"
	"schemaregistry/pkg/platform/sentinel"
)

const aggregate = "entity"

type Service struct {
	store      eventstore.Store
	decider    entity.Decider
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	maxRetries int
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithDecider(d entity.Decider) Option {
	return func(s *Service) {
		s.decider = d
	}
}

func WithSchemas(c definition.Compiler) Option {
	return func(s *Service) {
		s.decider.Schemas = c
	}
}

func WithMaxRetries(n int) Option {
	return func(s *Service) {
		s.maxRetries = n
	}
}

func New(store eventstore.Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		decider:    entity.NewDecider(),
		logger:     logger.Discard(),
		tracer:     otel.Tracer("schemaregistry/entity"),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates body against the Active definition named entityType and
// starts a new entity stream.
func (s *Service) Create(ctx context.Context, entityType string, body []byte, actor string) (entity.State, error) {
	return s.run(ctx, entity.Create{EntityType: entityType, Body: body, CreatedBy: actor}, uuid.Nil, entityType)
}

// Modify replaces the body of an existing entity. The body is checked
// against the definition's current schema.
func (s *Service) Modify(ctx context.Context, entityType string, id uuid.UUID, body []byte, actor string) (entity.State, error) {
	return s.run(ctx, entity.Modify{ID: id, Body: body, ModifiedBy: actor}, id, entityType)
}

func (s *Service) Delete(ctx context.Context, entityType string, id uuid.UUID, actor string) (entity.State, error) {
	return s.run(ctx, entity.Delete{ID: id, DeletedBy: actor}, id, entityType)
}

// Get returns a live entity. A non-empty entityType must match the entity's
// own type.
func (s *Service) Get(ctx context.Context, entityType string, id uuid.UUID) (entity.State, error) {
	st, err := s.loadEntity(ctx, id)
	if err != nil {
		return entity.State{}, err
	}
	if !st.Exists() || !typeMatches(entityType, st.EntityType) {
		return entity.State{}, entity.ErrEntityNotFound
	}
	return st, nil
}

func (s *Service) run(ctx context.Context, cmd entity.Command, id uuid.UUID, entityType string) (entity.State, error) {
	name := entity.CommandName(cmd)
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "entity."+name, trace.WithAttributes(
		attribute.String("entity.type", definition.NormalizeTitle(entityType)),
	))
	defer span.End()

	st, err := s.execute(ctx, cmd, id, entityType)
	outcome := outcomeOf(err)
	s.metrics.ObserveCommand(aggregate, name, outcome, time.Since(start))

	if err != nil {
		span.RecordError(err)
		if outcome == "error" {
			span.SetStatus(codes.Error, err.Error())
			s.logger.ErrorContext(ctx, "entity command failed",
				"command", name,
				"entity_type", entityType,
				"entity_id", id,
				"error", err,
			)
		} else {
			s.logger.InfoContext(ctx, "entity command rejected",
				"command", name,
				"entity_type", entityType,
				"entity_id", id,
				"reason", err.Error(),
			)
		}
		return entity.State{}, err
	}

	span.SetAttributes(attribute.String("entity.id", st.ID.String()))
	s.logger.InfoContext(ctx, "entity command applied",
		"command", name,
		"entity_type", st.EntityType,
		"entity_id", st.ID,
		"version", st.Version,
	)
	return st, nil
}

func (s *Service) execute(ctx context.Context, cmd entity.Command, id uuid.UUID, entityType string) (entity.State, error) {
	for attempt := 0; ; attempt++ {
		var st entity.State
		if id != uuid.Nil {
			var err error
			st, err = s.loadEntity(ctx, id)
			if err != nil {
				return entity.State{}, err
			}
			if st.Exists() && !typeMatches(entityType, st.EntityType) {
				return entity.State{}, entity.ErrEntityNotFound
			}
			if st.Exists() {
				entityType = st.EntityType
			}
		}

		def, err := s.loadDefinition(ctx, entityType)
		if err != nil {
			return entity.State{}, err
		}

		events, err := s.decider.Decide(def, st, cmd)
		if err != nil {
			return entity.State{}, err
		}
		records, err := entity.EncodeAll(events)
		if err != nil {
			return entity.State{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode entity events")
		}

		streamID := records[0].StreamID
		_, err = s.store.Append(ctx, eventstore.StreamEntity, streamID, st.Version, records)
		if err == nil {
			for _, e := range events {
				st = entity.Fold(st, e)
			}
			return st, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return entity.State{}, dErrors.Wrap(err, dErrors.CodeInternal, "append entity events")
		}
		if attempt >= s.maxRetries {
			return entity.State{}, dErrors.Wrap(err, dErrors.CodeConflict, "entity changed concurrently, retry the command")
		}
		s.metrics.IncrementConcurrencyRetry(aggregate)
		s.logger.DebugContext(ctx, "append conflict, re-deciding",
			"entity_id", streamID,
			"attempt", attempt+1,
		)
	}
}

func (s *Service) loadEntity(ctx context.Context, id uuid.UUID) (entity.State, error) {
	records, err := s.store.Load(ctx, eventstore.StreamEntity, id)
	if err != nil {
		return entity.State{}, dErrors.Wrap(err, dErrors.CodeInternal, "load entity stream")
	}
	history, err := entity.DecodeAll(records)
	if err != nil {
		return entity.State{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode entity stream")
	}
	return entity.DeriveState(history), nil
}

func (s *Service) loadDefinition(ctx context.Context, entityType string) (definition.State, error) {
	records, err := s.store.Load(ctx, eventstore.StreamDefinition, definition.IdentityFor(entityType))
	if err != nil {
		return definition.State{}, dErrors.Wrap(err, dErrors.CodeInternal, "load definition stream")
	}
	history, err := definition.DecodeAll(records)
	if err != nil {
		return definition.State{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode definition stream")
	}
	return definition.DeriveState(history), nil
}

func typeMatches(requested, actual string) bool {
	requested = definition.NormalizeTitle(requested)
	return requested == "" || requested == actual
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case dErrors.CodeOf(err) == dErrors.CodeInternal:
		return "error"
	default:
		return "rejected"
	}
}
