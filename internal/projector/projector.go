// Package projector maintains the relational read model: one projection
// table per Active definition, one row per live entity.
//
// Events arrive either from Kafka (see Router) or from the event store's
// global feed (see Catchup). Both paths go through Apply, which skips events
// at or below the stream's stored offset, so redelivery is harmless.
//
// A definition whose schema cannot be synthesized is parked: its events and
// its entities' events are skipped, and Health reports it until a later
// activation succeeds.
package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
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
	"schemaregistry/internal/projection"
	"schemaregistry/pkg/jsonvalue"
	"schemaregistry/pkg/platform/sentinel"
)

// ErrNoTable is returned by a Store when an entity's projection table does
// not exist yet.
var ErrNoTable = errors.New("projection table does not exist")

// SynthesisError means a definition's schema cannot be turned into DDL.
// Retrying the event cannot help.
type SynthesisError struct {
	DefinitionID uuid.UUID
	Err          error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize projection for definition %s: %v", e.DefinitionID, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// DefinitionRow is the read-side record of a definition. It keeps the latest
// schema so DefActivated, which carries none, can be synthesized.
type DefinitionRow struct {
	ID         uuid.UUID
	Title      string
	Schema     string
	SourceFile string
	Status     definition.Status
	// Table is the projection table created by the last successful
	// activation. It is named after the schema title, which need not match
	// the definition title.
	Table     string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// EntityRow is one projection table row. Data is the entity body as JSON.
type EntityRow struct {
	ID                 uuid.UUID
	EntityType         string
	CreatedBy          string
	CreatedAt          time.Time
	RegistryDefID      uuid.UUID
	RegistryDefVersion int64
	Version            int64
	Data               json.RawMessage
}

// Store writes the read model.
type Store interface {
	UpsertDefinition(ctx context.Context, row DefinitionRow) error
	// Definition returns sentinel.ErrNotFound for an unknown id.
	Definition(ctx context.Context, id uuid.UUID) (DefinitionRow, error)
	// ExecDDL runs statements in order in one transaction.
	ExecDDL(ctx context.Context, statements []string) error
	// InsertEntity does nothing when the row already exists.
	InsertEntity(ctx context.Context, table string, row EntityRow) error
	// UpdateEntity overwrites only when row.Version is newer than the stored one.
	UpdateEntity(ctx context.Context, table string, row EntityRow) error
	DeleteEntity(ctx context.Context, table string, id uuid.UUID) error
}

// Projector applies events to a Store. It is not safe for concurrent use:
// run one per consumer.
type Projector struct {
	name       string
	store      Store
	offsets    OffsetStore
	flushEvery int

	seen    map[string]int64
	dirty   map[string]int64
	pending int
	tables  map[uuid.UUID]string

	mu     sync.RWMutex
	parked map[uuid.UUID]*SynthesisError

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Projector)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Projector) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Projector) {
		p.metrics = m
	}
}

// WithFlushEvery sets how many applied events pass between offset flushes.
func WithFlushEvery(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.flushEvery = n
		}
	}
}

// New creates a projector. name namespaces its offsets so several
// projectors can share one OffsetStore.
func New(name string, store Store, offsets OffsetStore, opts ...Option) *Projector {
	p := &Projector{
		name:       name,
		store:      store,
		offsets:    offsets,
		flushEvery: 50,
		seen:       make(map[string]int64),
		dirty:      make(map[string]int64),
		tables:     make(map[uuid.UUID]string),
		parked:     make(map[uuid.UUID]*SynthesisError),
		logger:     logger.Discard(),
		tracer:     otel.Tracer("schemaregistry/projector"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func streamKey(rec eventstore.Record) string {
	return rec.StreamType + "/" + rec.StreamID.String()
}

// Apply projects one event. Events at or below the stream's offset are
// skipped. Offsets are flushed every N applied events; call Flush before
// shutting down to persist the rest.
func (p *Projector) Apply(ctx context.Context, rec eventstore.Record) (err error) {
	ctx, span := p.tracer.Start(ctx, "projector.apply", trace.WithAttributes(
		attribute.String("event_type", rec.Type),
		attribute.String("stream_id", rec.StreamID.String()),
		attribute.Int64("version", rec.Version),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.metrics.IncrementProjected(rec.Type, "failed")
		}
		span.End()
	}()

	key := streamKey(rec)
	offset, err := p.offset(ctx, key)
	if err != nil {
		return err
	}
	if rec.Version <= offset {
		p.metrics.IncrementProjected(rec.Type, "skipped")
		p.logger.DebugContext(ctx, "event already projected",
			"event_type", rec.Type,
			"stream", key,
			"version", rec.Version,
			"offset", offset,
		)
		return nil
	}

	switch rec.StreamType {
	case eventstore.StreamDefinition:
		err = p.applyDefinition(ctx, rec)
	case eventstore.StreamEntity:
		err = p.applyEntity(ctx, rec)
	default:
		p.logger.WarnContext(ctx, "unknown stream type, skipping", "stream_type", rec.StreamType)
	}
	outcome := "applied"
	var se *SynthesisError
	if errors.As(err, &se) {
		p.park(ctx, rec, se)
		outcome, err = "parked", nil
	}
	if err != nil {
		return err
	}

	p.seen[key] = rec.Version
	p.dirty[key] = rec.Version
	p.pending++
	p.metrics.IncrementProjected(rec.Type, outcome)
	if p.pending >= p.flushEvery {
		return p.Flush(ctx)
	}
	return nil
}

func (p *Projector) offset(ctx context.Context, key string) (int64, error) {
	if v, ok := p.seen[key]; ok {
		return v, nil
	}
	v, err := p.offsets.Read(ctx, p.name, key)
	if err != nil {
		return 0, fmt.Errorf("read offset %s: %w", key, err)
	}
	p.seen[key] = v
	return v, nil
}

// park records a definition whose schema cannot be projected. Retrying
// cannot help, so the event is treated as handled.
func (p *Projector) park(ctx context.Context, rec eventstore.Record, se *SynthesisError) {
	p.mu.Lock()
	p.parked[se.DefinitionID] = se
	n := len(p.parked)
	p.mu.Unlock()
	p.metrics.SetParked(n)
	p.logger.ErrorContext(ctx, "definition cannot be projected, skipping event",
		"definition_id", se.DefinitionID,
		"event_type", rec.Type,
		"stream_id", rec.StreamID,
		"error", se.Err,
	)
}

func (p *Projector) unpark(id uuid.UUID) {
	p.mu.Lock()
	delete(p.parked, id)
	n := len(p.parked)
	p.mu.Unlock()
	p.metrics.SetParked(n)
}

// Parked returns the definitions currently skipped because their schema
// cannot be synthesized. Safe to call while Apply runs.
func (p *Projector) Parked() map[uuid.UUID]error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[uuid.UUID]error, len(p.parked))
	for id, se := range p.parked {
		out[id] = se
	}
	return out
}

// Health fails while any definition is parked. Safe to call while Apply runs.
func (p *Projector) Health(context.Context) error {
	parked := p.Parked()
	if len(parked) == 0 {
		return nil
	}
	ids := make([]string, 0, len(parked))
	for id := range parked {
		ids = append(ids, id.String())
	}
	slices.Sort(ids)
	return fmt.Errorf("%d definition(s) cannot be projected: %s", len(ids), strings.Join(ids, ", "))
}

// Flush persists every offset advanced since the last flush.
func (p *Projector) Flush(ctx context.Context) error {
	for key, v := range p.dirty {
		if err := p.offsets.Upsert(ctx, p.name, key, v); err != nil {
			return fmt.Errorf("flush offset %s: %w", key, err)
		}
		delete(p.dirty, key)
	}
	p.pending = 0
	return nil
}

func (p *Projector) applyDefinition(ctx context.Context, rec eventstore.Record) error {
	ev, err := definition.Decode(rec)
	if err != nil {
		p.logger.ErrorContext(ctx, "undecodable definition event, skipping",
			"event_type", rec.Type,
			"definition_id", rec.StreamID,
			"error", err,
		)
		return nil
	}

	switch e := ev.(type) {
	case definition.DefCreated:
		return p.store.UpsertDefinition(ctx, DefinitionRow{
			ID: e.DefinitionID, Title: e.Title, Schema: e.Schema,
			Status: definition.StatusDraft, CreatedBy: e.CreatedBy,
			CreatedAt: e.OccurredAt, UpdatedAt: e.OccurredAt, Version: rec.Version,
		})
	case definition.DefLoaded:
		return p.store.UpsertDefinition(ctx, DefinitionRow{
			ID: e.DefinitionID, Title: e.Title, Schema: e.Schema, SourceFile: e.SourceFile,
			Status: definition.StatusDraft, CreatedBy: e.CreatedBy,
			CreatedAt: e.OccurredAt, UpdatedAt: e.OccurredAt, Version: rec.Version,
		})
	case definition.DefUpdated:
		return p.updateDefinition(ctx, rec, func(row *DefinitionRow) {
			row.Schema = e.Schema
			row.Status = definition.StatusDraft
		})
	case definition.DefValidated:
		return p.updateDefinition(ctx, rec, func(row *DefinitionRow) { row.Status = definition.StatusValid })
	case definition.DefValidatedFailed:
		return p.updateDefinition(ctx, rec, func(row *DefinitionRow) { row.Status = definition.StatusInvalid })
	case definition.DefDeactivated:
		return p.updateDefinition(ctx, rec, func(row *DefinitionRow) { row.Status = definition.StatusDeactivated })
	case definition.DefDeleted:
		return p.updateDefinition(ctx, rec, func(row *DefinitionRow) { row.Status = definition.StatusMarkedForDeletion })
	case definition.DefActivated:
		row, err := p.store.Definition(ctx, e.DefinitionID)
		if err != nil {
			return fmt.Errorf("load definition %s: %w", e.DefinitionID, err)
		}
		table, err := p.createTable(ctx, row)
		if err != nil {
			return err
		}
		row.Table = table
		row.Status = definition.StatusActive
		row.UpdatedAt = e.OccurredAt
		row.Version = rec.Version
		if err := p.store.UpsertDefinition(ctx, row); err != nil {
			return err
		}
		p.tables[row.ID] = table
		p.unpark(row.ID)
	}
	return nil
}

func (p *Projector) updateDefinition(ctx context.Context, rec eventstore.Record, change func(*DefinitionRow)) error {
	row, err := p.store.Definition(ctx, rec.StreamID)
	if errors.Is(err, sentinel.ErrNotFound) {
		p.logger.WarnContext(ctx, "definition event before creation, skipping",
			"event_type", rec.Type,
			"definition_id", rec.StreamID,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load definition %s: %w", rec.StreamID, err)
	}
	change(&row)
	row.UpdatedAt = rec.RecordedAt
	row.Version = rec.Version
	return p.store.UpsertDefinition(ctx, row)
}

// createTable issues the synthesized DDL for row's schema and returns the
// table name. Every statement is IF NOT EXISTS, so reactivating an existing
// table keeps its columns even when the schema has changed.
func (p *Projector) createTable(ctx context.Context, row DefinitionRow) (string, error) {
	doc, err := jsonvalue.ParseString(row.Schema)
	if err != nil {
		return "", &SynthesisError{DefinitionID: row.ID, Err: err}
	}
	syn, err := projection.Synthesize(doc)
	if err != nil {
		return "", &SynthesisError{DefinitionID: row.ID, Err: err}
	}
	stmts := syn.Statements()
	if err := p.store.ExecDDL(ctx, stmts); err != nil {
		return "", fmt.Errorf("create %s: %w", syn.Table, err)
	}
	p.metrics.AddDDL(len(stmts))
	p.logger.InfoContext(ctx, "projection table ready",
		"definition_id", row.ID,
		"table", syn.Table,
		"statements", len(stmts),
	)
	return syn.Table, nil
}

func (p *Projector) applyEntity(ctx context.Context, rec eventstore.Record) error {
	ev, err := entity.Decode(rec)
	if err != nil {
		p.logger.ErrorContext(ctx, "undecodable entity event, skipping",
			"event_type", rec.Type,
			"entity_id", rec.StreamID,
			"error", err,
		)
		return nil
	}

	switch e := ev.(type) {
	case entity.EntityCreated:
		row, err := entityRow(e.EntityID, e.EntityType, e.RegistryDefID, e.RegistryDefVersion, e.Version, e.Body)
		if err != nil {
			return err
		}
		row.CreatedBy = e.CreatedBy
		row.CreatedAt = e.CreatedAt
		return p.withTable(ctx, e.RegistryDefID, func(table string) error {
			return p.store.InsertEntity(ctx, table, row)
		})
	case entity.EntityUpdated:
		row, err := entityRow(e.EntityID, e.EntityType, e.RegistryDefID, e.RegistryDefVersion, e.Version, e.Body)
		if err != nil {
			return err
		}
		return p.withTable(ctx, e.RegistryDefID, func(table string) error {
			return p.store.UpdateEntity(ctx, table, row)
		})
	case entity.EntityDeleted:
		table, err := p.deleteTable(ctx, e)
		if err != nil || table == "" {
			return err
		}
		err = p.store.DeleteEntity(ctx, table, e.EntityID)
		if errors.Is(err, ErrNoTable) {
			return nil
		}
		return err
	}
	return nil
}

// deleteTable finds the table a deleted entity lives in. An empty name means
// there is nothing to delete.
func (p *Projector) deleteTable(ctx context.Context, e entity.EntityDeleted) (string, error) {
	if e.RegistryDefID == uuid.Nil {
		return projection.TableName(e.EntityType), nil
	}
	if t, ok := p.tables[e.RegistryDefID]; ok {
		return t, nil
	}
	row, err := p.store.Definition(ctx, e.RegistryDefID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load definition %s: %w", e.RegistryDefID, err)
	}
	if row.Table != "" {
		p.tables[row.ID] = row.Table
	}
	return row.Table, nil
}

func entityRow(id uuid.UUID, entityType string, defID uuid.UUID, defVersion, version int64, body jsonvalue.Value) (EntityRow, error) {
	data, err := body.MarshalJSON()
	if err != nil {
		return EntityRow{}, fmt.Errorf("encode entity %s: %w", id, err)
	}
	return EntityRow{
		ID:                 id,
		EntityType:         entityType,
		RegistryDefID:      defID,
		RegistryDefVersion: defVersion,
		Version:            version,
		Data:               data,
	}, nil
}

// withTable runs write against the table of the pinned definition. When the
// table is missing, it is created from the definition and write runs once
// more.
func (p *Projector) withTable(ctx context.Context, defID uuid.UUID, write func(table string) error) error {
	row, table, err := p.tableFor(ctx, defID)
	if err != nil {
		return err
	}
	err = write(table)
	if !errors.Is(err, ErrNoTable) {
		return err
	}

	p.logger.WarnContext(ctx, "entity arrived before its table, creating it",
		"definition_id", defID,
		"table", table,
	)
	if row.ID == uuid.Nil {
		if row, err = p.store.Definition(ctx, defID); err != nil {
			return fmt.Errorf("load definition %s for %s: %w", defID, table, err)
		}
	}
	if table, err = p.createTable(ctx, row); err != nil {
		return err
	}
	p.tables[defID] = table
	return write(table)
}

// tableFor resolves the table of defID. A definition whose activation has
// not been projected yet gets its table created here. row is zero when the
// name came from the cache.
func (p *Projector) tableFor(ctx context.Context, defID uuid.UUID) (DefinitionRow, string, error) {
	if t, ok := p.tables[defID]; ok {
		return DefinitionRow{}, t, nil
	}
	row, err := p.store.Definition(ctx, defID)
	if err != nil {
		return DefinitionRow{}, "", fmt.Errorf("load definition %s: %w", defID, err)
	}
	table := row.Table
	if table == "" {
		if table, err = p.createTable(ctx, row); err != nil {
			return DefinitionRow{}, "", err
		}
	}
	p.tables[defID] = table
	return row, table, nil
}
