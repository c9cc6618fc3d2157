package definition

import (
	"errors"
	"time"

	"schemaregistry/internal/schema"
	dErrors "schemaregistry/pkg/domain-errors"
)

// Compiler compiles schema text. *schema.Cache and schema.Direct satisfy it.
type Compiler interface {
	Compile(text string) (*schema.Compiled, error)
}

// Decider holds the decision's only inputs besides state and command.
type Decider struct {
	Schemas Compiler
	Now     func() time.Time
}

// NewDecider uses uncached compilation and the UTC wall clock.
func NewDecider() Decider {
	return Decider{Schemas: schema.Direct, Now: func() time.Time { return time.Now().UTC() }}
}

// Decide returns the events cmd produces from state s, or a domain error.
// It never returns both.
func (d Decider) Decide(s State, cmd Command) ([]Event, error) {
	switch c := cmd.(type) {
	case Create:
		return d.create(s, c.Title, func(h Header, title string) Event {
			return DefCreated{Header: h, Title: title, Schema: c.Schema, CreatedBy: c.CreatedBy}
		})
	case Load:
		return d.create(s, c.Title, func(h Header, title string) Event {
			return DefLoaded{Header: h, Title: title, Schema: c.Schema, SourceFile: c.SourceFile, CreatedBy: c.LoadedBy}
		})
	}

	if !s.Exists() {
		return nil, ErrDefinitionNotFound
	}
	h := d.header(s)

	switch c := cmd.(type) {
	case Update:
		switch s.Status {
		case StatusDraft, StatusInvalid, StatusDeactivated:
			return []Event{DefUpdated{Header: h, Schema: c.Schema, UpdatedBy: c.UpdatedBy}}, nil
		}
		return nil, ErrDefinitionNotValid
	case Validate:
		if s.Status != StatusDraft {
			return nil, &NotInProperStateError{Expected: StatusDraft, Actual: s.Status}
		}
		if problems := d.problems(s.Schema); len(problems) > 0 {
			return []Event{DefValidatedFailed{Header: h, Result: ValidationFailure, Errors: problems, ValidatedBy: c.ValidatedBy}}, nil
		}
		return []Event{DefValidated{Header: h, Result: ValidationSuccess, ValidatedBy: c.ValidatedBy}}, nil
	case Activate:
		if s.Status != StatusValid {
			return nil, ErrDefinitionNotValid
		}
		return []Event{DefActivated{Header: h, ActivatedBy: c.ActivatedBy}}, nil
	case Deactivate:
		if s.Status != StatusActive {
			return nil, ErrDefinitionNotActive
		}
		return []Event{DefDeactivated{Header: h, DeactivatedBy: c.DeactivatedBy}}, nil
	case Delete:
		if s.Status == StatusMarkedForDeletion {
			return nil, ErrDefinitionNotFound
		}
		return []Event{DefDeleted{Header: h, DeletedBy: c.DeletedBy}}, nil
	}
	return nil, dErrors.New(dErrors.CodeBadRequest, "unsupported definition command")
}

func (d Decider) create(s State, title string, build func(Header, string) Event) ([]Event, error) {
	if s.Exists() {
		return nil, ErrDefinitionAlreadyExists
	}
	title = NormalizeTitle(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	h := Header{DefinitionID: IdentityFor(title), OccurredAt: d.now()}
	return []Event{build(h, title)}, nil
}

func (d Decider) header(s State) Header {
	return Header{DefinitionID: s.ID, OccurredAt: d.now()}
}

func (d Decider) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now()
}

func (d Decider) problems(text string) []string {
	compiler := d.Schemas
	if compiler == nil {
		compiler = schema.Direct
	}
	_, err := compiler.Compile(text)
	if err == nil {
		return nil
	}
	var ce *schema.CompileError
	if errors.As(err, &ce) {
		return ce.Problems
	}
	return []string{schema.ProblemPrefix + err.Error()}
}
