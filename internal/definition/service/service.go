// Package service runs definition commands against the event store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"schemaregistry/internal/definition"
	"schemaregistry/internal/eventstore"
	"schemaregistry/internal/platform/logger"
	"schemaregistry/internal/platform/metrics"
	"schemaregistry/internal/projection"
	dErrors "schemaregistry/pkg/domain-errors"
	"schemaregistry/pkg/platform/sentinel"
)

const aggregate = "definition"

// Service loads a definition stream, decides, and appends the result with
// an expected-version check. A lost race is retried by re-loading and
// re-deciding.
type Service struct {
	store      eventstore.Store
	decider    definition.Decider
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

func WithDecider(d definition.Decider) Option {
	return func(s *Service) {
		s.decider = d
	}
}

// WithSchemas swaps the decider's schema compiler, typically for a
// *schema.Cache.
func WithSchemas(c definition.Compiler) Option {
	return func(s *Service) {
		s.decider.Schemas = c
	}
}

// WithMaxRetries bounds re-decides after a concurrency conflict.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		s.maxRetries = n
	}
}

// New constructs a Service.
func New(store eventstore.Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		decider:    definition.NewDecider(),
		logger:     logger.Discard(),
		tracer:     otel.Tracer("schemaregistry/definition"),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, title, schemaText, actor string) (definition.State, error) {
	return s.Execute(ctx, title, definition.Create{Title: title, Schema: schemaText, CreatedBy: actor})
}

// Load is Create with the schema's source file recorded.
func (s *Service) Load(ctx context.Context, title, schemaText, sourceFile, actor string) (definition.State, error) {
	return s.Execute(ctx, title, definition.Load{Title: title, Schema: schemaText, SourceFile: sourceFile, LoadedBy: actor})
}

func (s *Service) Update(ctx context.Context, title, schemaText, actor string) (definition.State, error) {
	return s.Execute(ctx, title, definition.Update{Schema: schemaText, UpdatedBy: actor})
}

func (s *Service) Validate(ctx context.Context, title, actor string) (definition.State, error) {
	return s.Execute(ctx, title, definition.Validate{ValidatedBy: actor})
}

func (s *Service) Activate(ctx context.Context, title, actor string) (definition.State, error) {
	return s.Execute(ctx, title, definition.Activate{ActivatedBy: actor})
}

func (s *Service) Deactivate(ctx context.Context, title, actor string) (definition.State, error) {
	return s.Execute(ctx, title, definition.Deactivate{DeactivatedBy: actor})
}

func (s *Service) Delete(ctx context.Context, title, actor string) (definition.State, error) {
	return s.Execute(ctx, title, definition.Delete{DeletedBy: actor})
}

// Execute runs cmd against the definition named title and returns the state
// after the new events.
func (s *Service) Execute(ctx context.Context, title string, cmd definition.Command) (definition.State, error) {
	name := definition.CommandName(cmd)
	id := definition.IdentityFor(title)
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "definition."+name, trace.WithAttributes(
		attribute.String("definition.title", definition.NormalizeTitle(title)),
		attribute.String("definition.id", id.String()),
	))
	defer span.End()

	st, err := s.execute(ctx, id, cmd)
	outcome := outcomeOf(err)
	s.metrics.ObserveCommand(aggregate, name, outcome, time.Since(start))

	if err != nil {
		span.RecordError(err)
		if outcome == "error" {
			span.SetStatus(codes.Error, err.Error())
			s.logger.ErrorContext(ctx, "definition command failed",
				"command", name,
				"definition_id", id,
				"error", err,
			)
		} else {
			s.logger.InfoContext(ctx, "definition command rejected",
				"command", name,
				"definition_id", id,
				"reason", err.Error(),
			)
		}
		return definition.State{}, err
	}

	s.logger.InfoContext(ctx, "definition command applied",
		"command", name,
		"definition_id", id,
		"status", st.Status,
		"version", st.Version,
	)
	return st, nil
}

func (s *Service) execute(ctx context.Context, id uuid.UUID, cmd definition.Command) (definition.State, error) {
	for attempt := 0; ; attempt++ {
		st, err := s.load(ctx, id)
		if err != nil {
			return definition.State{}, err
		}

		events, err := s.decider.Decide(st, cmd)
		if err != nil {
			return definition.State{}, err
		}

		records, err := definition.EncodeAll(events)
		if err != nil {
			return definition.State{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode definition events")
		}
		_, err = s.store.Append(ctx, eventstore.StreamDefinition, id, st.Version, records)
		if err == nil {
			for _, e := range events {
				st = definition.Fold(st, e)
			}
			return st, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return definition.State{}, dErrors.Wrap(err, dErrors.CodeInternal, "append definition events")
		}
		if attempt >= s.maxRetries {
			return definition.State{}, dErrors.Wrap(err, dErrors.CodeConflict, "definition changed concurrently, retry the command")
		}
		s.metrics.IncrementConcurrencyRetry(aggregate)
		s.logger.DebugContext(ctx, "append conflict, re-deciding",
			"definition_id", id,
			"attempt", attempt+1,
		)
	}
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (definition.State, error) {
	records, err := s.store.Load(ctx, eventstore.StreamDefinition, id)
	if err != nil {
		return definition.State{}, dErrors.Wrap(err, dErrors.CodeInternal, "load definition stream")
	}
	history, err := definition.DecodeAll(records)
	if err != nil {
		return definition.State{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode definition stream")
	}
	return definition.DeriveState(history), nil
}

// Get returns the current state of the definition named title.
func (s *Service) Get(ctx context.Context, title string) (definition.State, error) {
	return s.GetByID(ctx, definition.IdentityFor(title))
}

// GetByID returns the current state of a definition stream.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (definition.State, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return definition.State{}, err
	}
	if !st.Exists() {
		return definition.State{}, definition.ErrDefinitionNotFound
	}
	return st, nil
}

// DDL previews the projection statements for the definition's current schema.
func (s *Service) DDL(ctx context.Context, title string) (*projection.Synthesis, error) {
	st, err := s.Get(ctx, title)
	if err != nil {
		return nil, err
	}
	synth, err := projection.SynthesizeText(st.Schema)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("cannot project %s", st.Title))
	}
	return synth, nil
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
