// Package entity is the decision engine for registry entities: JSON documents
// validated against the schema of the Active definition named by their type.
package entity

import (
	"time"

	"github.com/google/uuid"

	"schemaregistry/pkg/jsonvalue"
)

// Event types, as stored and published.
const (
	TypeEntityCreated = "EntityCreated"
	TypeEntityUpdated = "EntityUpdated"
	TypeEntityDeleted = "EntityDeleted"
)

// Header is common to every entity event.
type Header struct {
	EntityID   uuid.UUID `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (h Header) header() Header { return h }

// Event is the closed set of entity events.
type Event interface {
	EventType() string
	header() Header
}

// EntityCreated pins the definition identity and version the body was
// validated against.
type EntityCreated struct {
	Header
	EntityType         string          `json:"entity_type"`
	RegistryDefID      uuid.UUID       `json:"registry_def_id"`
	RegistryDefVersion int64           `json:"registry_def_version"`
	Body               jsonvalue.Value `json:"entity_body"`
	CreatedAt          time.Time       `json:"created_at"`
	CreatedBy          string          `json:"created_by"`
	Version            int64           `json:"version"`
}

// EntityUpdated carries the creation-time definition pin forward unchanged.
type EntityUpdated struct {
	Header
	EntityType         string          `json:"entity_type"`
	RegistryDefID      uuid.UUID       `json:"registry_def_id"`
	RegistryDefVersion int64           `json:"registry_def_version"`
	Body               jsonvalue.Value `json:"entity_body"`
	UpdatedBy          string          `json:"updated_by"`
	Version            int64           `json:"version"`
}

// EntityDeleted names the pinned definition so the read side can find the
// entity's table. Events written before the field existed carry uuid.Nil.
type EntityDeleted struct {
	Header
	EntityType    string    `json:"entity_type"`
	RegistryDefID uuid.UUID `json:"registry_def_id"`
	DeletedBy     string    `json:"deleted_by"`
	Version       int64     `json:"version"`
}

func (EntityCreated) EventType() string { return TypeEntityCreated }
func (EntityUpdated) EventType() string { return TypeEntityUpdated }
func (EntityDeleted) EventType() string { return TypeEntityDeleted }

// Command is the closed set of entity commands.
type Command interface {
	commandName() string
}

// Create registers a new entity of EntityType. Body is raw JSON text.
type Create struct {
	EntityType string
	Body       []byte
	CreatedBy  string
}

type Modify struct {
	ID         uuid.UUID
	Body       []byte
	ModifiedBy string
}

type Delete struct {
	ID        uuid.UUID
	DeletedBy string
}

func (Create) commandName() string { return "create" }
func (Modify) commandName() string { return "modify" }
func (Delete) commandName() string { return "delete" }

// CommandName is the lowercase command name used in logs and metrics.
func CommandName(c Command) string { return c.commandName() }

// State is the folded view of one entity stream.
type State struct {
	ID                 uuid.UUID
	EntityType         string
	RegistryDefID      uuid.UUID
	RegistryDefVersion int64
	Body               jsonvalue.Value
	CreatedAt          time.Time
	CreatedBy          string
	UpdatedAt          time.Time
	UpdatedBy          string
	Deleted            bool
	Version            int64
}

// Exists reports whether the entity was created and not deleted.
func (s State) Exists() bool { return s.Version > 0 && !s.Deleted }

// Fold applies one event.
func Fold(s State, e Event) State {
	h := e.header()
	s.UpdatedAt = h.OccurredAt
	switch ev := e.(type) {
	case EntityCreated:
		s.ID = h.EntityID
		s.EntityType = ev.EntityType
		s.RegistryDefID = ev.RegistryDefID
		s.RegistryDefVersion = ev.RegistryDefVersion
		s.Body = ev.Body
		s.CreatedAt = ev.CreatedAt
		s.CreatedBy = ev.CreatedBy
		s.UpdatedBy = ev.CreatedBy
		s.Version = ev.Version
	case EntityUpdated:
		s.Body = ev.Body
		s.UpdatedBy = ev.UpdatedBy
		s.Version = ev.Version
	case EntityDeleted:
		s.Deleted = true
		s.UpdatedBy = ev.DeletedBy
		s.Version = ev.Version
	}
	return s
}

// DeriveState folds a full history.
func DeriveState(history []Event) State {
	var s State
	for _, e := range history {
		s = Fold(s, e)
	}
	return s
}
