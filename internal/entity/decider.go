package entity

import (
	"time"

	"github.com/google/uuid"

	"schemaregistry/internal/definition"
	"schemaregistry/internal/schema"
	dErrors "schemaregistry/pkg/domain-errors"
	"schemaregistry/pkg/jsonvalue"
)

// Decider holds the clock, the id source and the schema compiler.
type Decider struct {
	Schemas definition.Compiler
	Now     func() time.Time
	NewID   func() uuid.UUID
}

// NewDecider uses uncached compilation, the UTC wall clock and UUIDv7 ids.
func NewDecider() Decider {
	return Decider{
		Schemas: schema.Direct,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   newV7,
	}
}

func newV7() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Decide returns the events cmd produces. def is the current state of the
// definition named by the entity type; st is the entity's own state and is
// ignored by Create.
func (d Decider) Decide(def definition.State, st State, cmd Command) ([]Event, error) {
	switch c := cmd.(type) {
	case Create:
		body, err := d.checkBody(def, c.EntityType, c.Body)
		if err != nil {
			return nil, err
		}
		now := d.now()
		return []Event{EntityCreated{
			Header:             Header{EntityID: d.newID(), OccurredAt: now},
			EntityType:         definition.NormalizeTitle(c.EntityType),
			RegistryDefID:      def.ID,
			RegistryDefVersion: def.Version,
			Body:               body,
			CreatedAt:          now,
			CreatedBy:          c.CreatedBy,
			Version:            1,
		}}, nil
	case Modify:
		if !st.Exists() {
			return nil, ErrEntityNotFound
		}
		body, err := d.checkBody(def, st.EntityType, c.Body)
		if err != nil {
			return nil, err
		}
		return []Event{EntityUpdated{
			Header:             Header{EntityID: st.ID, OccurredAt: d.now()},
			EntityType:         st.EntityType,
			RegistryDefID:      st.RegistryDefID,
			RegistryDefVersion: st.RegistryDefVersion,
			Body:               body,
			UpdatedBy:          c.ModifiedBy,
			Version:            st.Version + 1,
		}}, nil
	case Delete:
		if !st.Exists() {
			return nil, ErrEntityNotFound
		}
		return []Event{EntityDeleted{
			Header:        Header{EntityID: st.ID, OccurredAt: d.now()},
			EntityType:    st.EntityType,
			RegistryDefID: st.RegistryDefID,
			DeletedBy:     c.DeletedBy,
			Version:       st.Version + 1,
		}}, nil
	}
	return nil, dErrors.New(dErrors.CodeBadRequest, "unsupported entity command")
}

// checkBody requires an Active definition and a conforming body.
func (d Decider) checkBody(def definition.State, entityType string, raw []byte) (jsonvalue.Value, error) {
	if def.Status != definition.StatusActive {
		actual := def.Status
		if actual == "" {
			actual = definition.StatusNone
		}
		return jsonvalue.Value{}, &definition.NotInProperStateError{Expected: definition.StatusActive, Actual: actual}
	}

	body, err := jsonvalue.Parse(raw)
	if err != nil {
		return jsonvalue.Value{}, newJSONSchemaError(entityType, []schema.Violation{{
			Location: "/",
			Message:  "malformed JSON: " + err.Error(),
		}})
	}

	compiler := d.Schemas
	if compiler == nil {
		compiler = schema.Direct
	}
	compiled, err := compiler.Compile(def.Schema)
	if err != nil {
		// Active implies the schema compiled at validation time
		return jsonvalue.Value{}, dErrors.Wrap(err, dErrors.CodeInternal, "compile active schema")
	}
	if violations := compiled.Validate(body); len(violations) > 0 {
		return jsonvalue.Value{}, newJSONSchemaError(entityType, violations)
	}
	return body, nil
}

func (d Decider) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now()
}

func (d Decider) newID() uuid.UUID {
	if d.NewID == nil {
		return newV7()
	}
	return d.NewID()
}
