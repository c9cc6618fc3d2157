// Package definition is the decision engine for schema definitions.
//
// A definition's state is never stored directly: it is the fold of its event
// stream. Decide maps the current state and a command to new events or a
// domain error, without I/O.
//
// Lifecycle:
//
//	None --Create/Load--> Draft --Validate--> Valid --Activate--> Active
//	                        |  \--Validate--> Invalid --Update--> Draft
//	                        |                 Active --Deactivate--> Deactivated --Update--> Draft
//	any existing status --Delete--> MarkedForDeletion (terminal)
package definition

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is a definition's lifecycle position.
type Status string

const (
	StatusNone              Status = "None"
	StatusDraft             Status = "Draft"
	StatusValid             Status = "Valid"
	StatusInvalid           Status = "Invalid"
	StatusActive            Status = "Active"
	StatusDeactivated       Status = "Deactivated"
	StatusMarkedForDeletion Status = "MarkedForDeletion"
)

// Statuses lists every status, None first.
var Statuses = []Status{
	StatusNone, StatusDraft, StatusValid, StatusInvalid,
	StatusActive, StatusDeactivated, StatusMarkedForDeletion,
}

// namespace scopes definition identities so they cannot collide with UUIDv5
// values derived for other purposes.
var namespace = uuid.MustParse("5b0f5f2e-9d4c-4c57-8f0a-6c1f3e1d2a90")

// NormalizeTitle trims surrounding whitespace. Case is preserved.
func NormalizeTitle(title string) string {
	return strings.TrimSpace(title)
}

// IdentityFor derives the definition identity from its title. The same
// normalized title always yields the same identity.
func IdentityFor(title string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(NormalizeTitle(title)))
}

// State is the folded view of one definition stream.
type State struct {
	ID               uuid.UUID
	Title            string
	Schema           string
	Status           Status
	SourceFile       string
	CreatedAt        time.Time
	CreatedBy        string
	UpdatedAt        time.Time
	UpdatedBy        string
	ActivatedBy      string
	ValidationErrors []string
	// Version counts applied events.
	Version int64
}

// Exists reports whether the stream has any events.
func (s State) Exists() bool { return s.Status != StatusNone && s.Status != "" }

// Initial is the state of an empty stream.
func Initial() State { return State{Status: StatusNone} }

// Fold applies one event.
func Fold(s State, e Event) State {
	h := e.header()
	s.Version++
	s.UpdatedAt = h.OccurredAt

	switch ev := e.(type) {
	case DefCreated:
		s.ID = h.DefinitionID
		s.Title = ev.Title
		s.Schema = ev.Schema
		s.Status = StatusDraft
		s.CreatedAt = h.OccurredAt
		s.CreatedBy = ev.CreatedBy
		s.UpdatedBy = ev.CreatedBy
	case DefLoaded:
		s.ID = h.DefinitionID
		s.Title = ev.Title
		s.Schema = ev.Schema
		s.SourceFile = ev.SourceFile
		s.Status = StatusDraft
		s.CreatedAt = h.OccurredAt
		s.CreatedBy = ev.CreatedBy
		s.UpdatedBy = ev.CreatedBy
	case DefUpdated:
		s.Schema = ev.Schema
		s.Status = StatusDraft
		s.ValidationErrors = nil
		s.UpdatedBy = ev.UpdatedBy
	case DefValidated:
		s.Status = StatusValid
		s.ValidationErrors = nil
		s.UpdatedBy = ev.ValidatedBy
	case DefValidatedFailed:
		s.Status = StatusInvalid
		s.ValidationErrors = append([]string(nil), ev.Errors...)
		s.UpdatedBy = ev.ValidatedBy
	case DefActivated:
		s.Status = StatusActive
		s.ActivatedBy = ev.ActivatedBy
		s.UpdatedBy = ev.ActivatedBy
	case DefDeactivated:
		s.Status = StatusDeactivated
		s.UpdatedBy = ev.DeactivatedBy
	case DefDeleted:
		s.Status = StatusMarkedForDeletion
		s.UpdatedBy = ev.DeletedBy
	}
	return s
}

// DeriveState folds a full history from the initial state.
func DeriveState(history []Event) State {
	s := Initial()
	for _, e := range history {
		s = Fold(s, e)
	}
	return s
}
