package definition

import (
	"time"

	"github.com/google/uuid"
)

// Event types, as stored and published.
const (
	TypeDefCreated         = "DefCreated"
	TypeDefLoaded          = "DefLoaded"
	TypeDefUpdated         = "DefUpdated"
	TypeDefValidated       = "DefValidated"
	TypeDefValidatedFailed = "DefValidatedFailed"
	TypeDefActivated       = "DefActivated"
	TypeDefDeactivated     = "DefDeactivated"
	TypeDefDeleted         = "DefDeleted"
)

// Validation results carried by the validation events.
const (
	ValidationSuccess = "Success"
	ValidationFailure = "Failure"
)

// Header is common to every definition event.
type Header struct {
	DefinitionID uuid.UUID `json:"definition_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Event is the closed set of definition events.
type Event interface {
	EventType() string
	header() Header
}

func (h Header) header() Header { return h }

type DefCreated struct {
	Header
	Title     string `json:"title"`
	Schema    string `json:"schema"`
	CreatedBy string `json:"created_by"`
}

// DefLoaded is DefCreated with the file the schema was read from.
type DefLoaded struct {
	Header
	Title      string `json:"title"`
	Schema     string `json:"schema"`
	SourceFile string `json:"source_file"`
	CreatedBy  string `json:"created_by"`
}

type DefUpdated struct {
	Header
	Schema    string `json:"schema"`
	UpdatedBy string `json:"updated_by"`
}

type DefValidated struct {
	Header
	Result      string `json:"validation_result"`
	ValidatedBy string `json:"validated_by"`
}

// DefValidatedFailed records a schema that does not compile. Errors keeps the
// order the problems were reported in.
type DefValidatedFailed struct {
	Header
	Result      string   `json:"validation_result"`
	Errors      []string `json:"validation_errors"`
	ValidatedBy string   `json:"validated_by"`
}

type DefActivated struct {
	Header
	ActivatedBy string `json:"activated_by"`
}

type DefDeactivated struct {
	Header
	DeactivatedBy string `json:"deactivated_by"`
}

type DefDeleted struct {
	Header
	DeletedBy string `json:"deleted_by"`
}

func (DefCreated) EventType() string         { return TypeDefCreated }
func (DefLoaded) EventType() string          { return TypeDefLoaded }
func (DefUpdated) EventType() string         { return TypeDefUpdated }
func (DefValidated) EventType() string       { return TypeDefValidated }
func (DefValidatedFailed) EventType() string { return TypeDefValidatedFailed }
func (DefActivated) EventType() string       { return TypeDefActivated }
func (DefDeactivated) EventType() string     { return TypeDefDeactivated }
func (DefDeleted) EventType() string         { return TypeDefDeleted }
