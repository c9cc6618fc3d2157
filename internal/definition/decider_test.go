package definition

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"pgregory.net/rapid"

	"schemaregistry/internal/schema"
	dErrors "schemaregistry/pkg/domain-errors"
	"schemaregistry/pkg/testutil"
)

const studentSchema = `{
  "title": "Student",
  "type": "object",
  "properties": {
    "identityDetails": {
      "type": "object",
      "properties": {
        "fullName": {"type": "string"},
        "gender": {"type": "string", "enum": ["Male", "Female", "Other"]}
      }
    }
  }
}`

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func testDecider() Decider {
	return Decider{Schemas: schema.Direct, Now: func() time.Time { return fixedNow }}
}

type DeciderSuite struct {
	suite.Suite
	decider Decider
}

func TestDeciderSuite(t *testing.T) {
	suite.Run(t, new(DeciderSuite))
}

func (s *DeciderSuite) SetupTest() {
	s.decider = testDecider()
}

// given folds the events produced by running cmds in order from None.
func (s *DeciderSuite) given(cmds ...Command) State {
	st := Initial()
	for _, c := range cmds {
		events, err := s.decider.Decide(st, c)
		s.Require().NoError(err)
		for _, e := range events {
			st = Fold(st, e)
		}
	}
	return st
}

func (s *DeciderSuite) TestCreate() {
	s.Run("empty history emits DefCreated", func() {
		events, err := s.decider.Decide(Initial(), Create{Title: "Student", Schema: studentSchema, CreatedBy: "admin"})
		s.Require().NoError(err)
		s.Equal([]Event{DefCreated{
			Header:    Header{DefinitionID: IdentityFor("Student"), OccurredAt: fixedNow},
			Title:     "Student",
			Schema:    studentSchema,
			CreatedBy: "admin",
		}}, events)
	})

	s.Run("title is trimmed", func() {
		events, err := s.decider.Decide(Initial(), Create{Title: "  Student ", Schema: "{}"})
		s.Require().NoError(err)
		s.Equal("Student", events[0].(DefCreated).Title)
	})

	s.Run("blank title rejected", func() {
		_, err := s.decider.Decide(Initial(), Create{Title: "   "})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("second create fails", func() {
		st := s.given(Create{Title: "Student", Schema: studentSchema})
		events, err := s.decider.Decide(st, Create{Title: "Student", Schema: studentSchema})
		s.ErrorIs(err, ErrDefinitionAlreadyExists)
		s.Nil(events)
	})

	s.Run("load after create fails", func() {
		st := s.given(Create{Title: "Student", Schema: studentSchema})
		_, err := s.decider.Decide(st, Load{Title: "Student", Schema: studentSchema, SourceFile: "student.json"})
		s.ErrorIs(err, ErrDefinitionAlreadyExists)
	})
}

func (s *DeciderSuite) TestLoadRecordsProvenance() {
	st := s.given(Load{Title: "Student", Schema: studentSchema, SourceFile: "schemas/student.json", LoadedBy: "cli"})
	s.Equal(StatusDraft, st.Status)
	s.Equal("schemas/student.json", st.SourceFile)
	s.Equal("cli", st.CreatedBy)
	s.Equal(IdentityFor("Student"), st.ID)
}

func (s *DeciderSuite) TestActivateBeforeValidateFails() {
	st := s.given(Create{Title: "Student", Schema: studentSchema})
	_, err := s.decider.Decide(st, Activate{ActivatedBy: "admin"})
	s.ErrorIs(err, ErrDefinitionNotValid)
}

func (s *DeciderSuite) TestValidate() {
	s.Run("compiling schema", func() {
		st := s.given(Create{Title: "Student", Schema: studentSchema})
		events, err := s.decider.Decide(st, Validate{ValidatedBy: "admin"})
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(DefValidated{Header: Header{DefinitionID: st.ID, OccurredAt: fixedNow}, Result: "Success", ValidatedBy: "admin"}, events[0])
	})

	s.Run("empty schema is recorded, not rejected", func() {
		st := s.given(Create{Title: "Student", Schema: "{}"})
		events, err := s.decider.Decide(st, Validate{})
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		failed, ok := events[0].(DefValidatedFailed)
		s.Require().True(ok)
		s.Equal([]string{"Invalid Schema: Schema is empty"}, failed.Errors)
		s.Equal(ValidationFailure, failed.Result)

		st = Fold(st, failed)
		s.Equal(StatusInvalid, st.Status)
		s.Equal(failed.Errors, st.ValidationErrors)
	})

	s.Run("invalid must be updated before revalidating", func() {
		st := s.given(Create{Title: "Student", Schema: "{}"}, Validate{})
		s.Require().Equal(StatusInvalid, st.Status)

		_, err := s.decider.Decide(st, Validate{})
		var stateErr *NotInProperStateError
		s.Require().ErrorAs(err, &stateErr)
		s.Equal(StatusDraft, stateErr.Expected)
		s.Equal(StatusInvalid, stateErr.Actual)

		st = s.given(Create{Title: "Student", Schema: "{}"}, Validate{}, Update{Schema: studentSchema}, Validate{})
		s.Equal(StatusValid, st.Status)
		s.Empty(st.ValidationErrors)
	})
}

func (s *DeciderSuite) TestFullLifecycle() {
	st := s.given(
		Create{Title: "Student", Schema: studentSchema, CreatedBy: "alice"},
		Validate{ValidatedBy: "alice"},
		Activate{ActivatedBy: "bob"},
	)
	s.Equal(StatusActive, st.Status)
	s.Equal("bob", st.ActivatedBy)
	s.Equal(int64(3), st.Version)

	st = s.given(
		Create{Title: "Student", Schema: studentSchema},
		Validate{}, Activate{}, Deactivate{}, Update{Schema: `{"title":"Student"}`},
	)
	s.Equal(StatusDraft, st.Status)
	s.Equal(`{"title":"Student"}`, st.Schema)
	s.Equal(int64(5), st.Version)
}

func (s *DeciderSuite) TestDelete() {
	st := s.given(Create{Title: "Student", Schema: studentSchema}, Delete{DeletedBy: "admin"})
	s.Equal(StatusMarkedForDeletion, st.Status)

	_, err := s.decider.Decide(st, Delete{})
	s.ErrorIs(err, ErrDefinitionNotFound)

	_, err = s.decider.Decide(st, Create{Title: "Student"})
	s.ErrorIs(err, ErrDefinitionAlreadyExists)
}

func (s *DeciderSuite) TestCommandsOnMissingDefinition() {
	for _, cmd := range []Command{Update{}, Validate{}, Activate{}, Deactivate{}, Delete{}} {
		_, err := s.decider.Decide(Initial(), cmd)
		s.ErrorIs(err, ErrDefinitionNotFound, CommandName(cmd))
	}
}

func TestIdentityIsDeterministic(t *testing.T) {
	testutil.Given(t, "the title Student", func(t *testing.T) {
		testutil.Then(t, "identity is stable across calls", func(t *testing.T) {
			assert.Equal(t, IdentityFor("Student"), IdentityFor("Student"))
			assert.Equal(t, IdentityFor("Student"), IdentityFor("  Student\t"))
		})
		testutil.Then(t, "case is significant", func(t *testing.T) {
			assert.NotEqual(t, IdentityFor("Student"), IdentityFor("student"))
		})
	})
}

// stateWith builds a state in the given status via the legal path.
func stateWith(t *testing.T, d Decider, status Status) State {
	t.Helper()
	paths := map[Status][]Command{
		StatusNone:              nil,
		StatusDraft:             {Create{Title: "T", Schema: studentSchema}},
		StatusValid:             {Create{Title: "T", Schema: studentSchema}, Validate{}},
		StatusInvalid:           {Create{Title: "T", Schema: "{}"}, Validate{}},
		StatusActive:            {Create{Title: "T", Schema: studentSchema}, Validate{}, Activate{}},
		StatusDeactivated:       {Create{Title: "T", Schema: studentSchema}, Validate{}, Activate{}, Deactivate{}},
		StatusMarkedForDeletion: {Create{Title: "T", Schema: studentSchema}, Delete{}},
	}
	st := Initial()
	for _, c := range paths[status] {
		events, err := d.Decide(st, c)
		require.NoError(t, err)
		for _, e := range events {
			st = Fold(st, e)
		}
	}
	require.Equal(t, status, st.Status)
	return st
}

func TestTransitionTableIsTotal(t *testing.T) {
	d := testDecider()
	allowed := map[Status]map[string]bool{
		StatusNone:              {"create": true, "load": true},
		StatusDraft:             {"update": true, "validate": true, "delete": true},
		StatusValid:             {"activate": true, "delete": true},
		StatusInvalid:           {"update": true, "delete": true},
		StatusActive:            {"deactivate": true, "delete": true},
		StatusDeactivated:       {"update": true, "delete": true},
		StatusMarkedForDeletion: {},
	}
	commands := []Command{
		Create{Title: "T", Schema: studentSchema}, Load{Title: "T", Schema: studentSchema, SourceFile: "t.json"},
		Update{Schema: studentSchema}, Validate{}, Activate{}, Deactivate{}, Delete{},
	}

	for _, status := range Statuses {
		for _, cmd := range commands {
			name := string(status) + "/" + CommandName(cmd)
			t.Run(name, func(t *testing.T) {
				st := stateWith(t, d, status)
				var (
					events []Event
					err    error
				)
				require.NotPanics(t, func() { events, err = d.Decide(st, cmd) })
				if allowed[status][CommandName(cmd)] {
					require.NoError(t, err)
					require.Len(t, events, 1)
				} else {
					require.Error(t, err)
					require.Empty(t, events)
					var de *dErrors.Error
					require.True(t, errors.As(err, &de), "domain error expected, got %T", err)
				}
			})
		}
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	d := testDecider()
	cmdGen := rapid.SampledFrom([]Command{
		Create{Title: "Student", Schema: studentSchema},
		Load{Title: "Student", Schema: "{}", SourceFile: "s.json"},
		Update{Schema: studentSchema},
		Update{Schema: ""},
		Validate{}, Activate{}, Deactivate{}, Delete{},
	})

	rapid.Check(t, func(t *rapid.T) {
		cmds := rapid.SliceOfN(cmdGen, 0, 20).Draw(t, "commands")

		st := Initial()
		var history []Event
		for _, c := range cmds {
			events, err := d.Decide(st, c)
			if err != nil && len(events) > 0 {
				t.Fatalf("%s returned events and an error", CommandName(c))
			}
			for _, e := range events {
				st = Fold(st, e)
				history = append(history, e)
			}
		}

		first := DeriveState(history)
		second := DeriveState(history)
		if first.Status != second.Status || first.Version != second.Version || first.Schema != second.Schema {
			t.Fatalf("replay diverged: %+v vs %+v", first, second)
		}
		if first.Status != st.Status || first.Version != int64(len(history)) {
			t.Fatalf("replay %+v does not match incremental state %+v", first, st)
		}
	})
}

func TestCodecPreservesEvents(t *testing.T) {
	d := testDecider()
	st := stateWith(t, d, StatusInvalid)
	events := []Event{
		DefLoaded{Header: Header{DefinitionID: st.ID, OccurredAt: fixedNow}, Title: "T", Schema: "{}", SourceFile: "t.json", CreatedBy: "cli"},
		DefValidatedFailed{Header: Header{DefinitionID: st.ID, OccurredAt: fixedNow}, Result: ValidationFailure, Errors: []string{"a", "b"}},
	}

	records, err := EncodeAll(events)
	require.NoError(t, err)
	assert.Equal(t, TypeDefLoaded, records[0].Type)
	assert.Equal(t, st.ID, records[1].StreamID)

	decoded, err := DecodeAll(records)
	require.NoError(t, err)
	assert.Equal(t, events, decoded)

	records[0].Type = "DefExploded"
	_, err = DecodeAll(records)
	assert.Error(t, err)
}
