//go:build integration

package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	defservice "schemaregistry/internal/definition/service"
	entservice "schemaregistry/internal/entity/service"
	"schemaregistry/internal/eventstore"
	"schemaregistry/internal/projector"
	"schemaregistry/internal/projector/store"
	"schemaregistry/internal/schema"
	"schemaregistry/pkg/testutil/containers"
)

const studentSchema = `{
  "title": "Student",
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "address": {
      "type": "object",
      "properties": {"city": {"type": "string"}}
    },
    "grades": {"type": "array", "items": {"type": "integer"}}
  },
  "_osConfig": {"indexFields": ["name"], "uniqueIndexFields": ["city"]}
}`

// ProjectionSuite runs the projector against Postgres end to end: events
// come from the Postgres event store and land in the generated tables.
type ProjectionSuite struct {
	suite.Suite
	ctx      context.Context
	postgres *containers.PostgresContainer
	events   *eventstore.PostgresStore
	defs     *defservice.Service
	ents     *entservice.Service
	store    *store.Postgres
}

func TestProjectionSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProjectionSuite))
}

func (s *ProjectionSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(s.postgres.Exec(s.ctx, eventstore.Schema...))
	s.Require().NoError(s.postgres.Exec(s.ctx, store.Schema...))
	s.Require().NoError(s.postgres.Exec(s.ctx, projector.OffsetSchema...))
	s.events = eventstore.NewPostgres(s.postgres.Pool)
	s.store = store.NewPostgres(s.postgres.Pool)
	cache := schema.NewCache(0)
	s.defs = defservice.New(s.events, defservice.WithSchemas(cache))
	s.ents = entservice.New(s.events, entservice.WithSchemas(cache))
}

func (s *ProjectionSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "events", "outbox", "registry_definitions", "projector_offsets"))
	s.Require().NoError(s.postgres.DropTables(s.ctx, "student_projection"))
}

func (s *ProjectionSuite) activateStudent() {
	_, err := s.defs.Create(s.ctx, "Student", studentSchema, "admin")
	s.Require().NoError(err)
	_, err = s.defs.Validate(s.ctx, "Student", "admin")
	s.Require().NoError(err)
	_, err = s.defs.Activate(s.ctx, "Student", "admin")
	s.Require().NoError(err)
}

func (s *ProjectionSuite) catchup(p *projector.Projector) int {
	n, err := p.Catchup(s.ctx, s.events, 100)
	s.Require().NoError(err)
	return n
}

func (s *ProjectionSuite) TestEntitiesLandInGeneratedColumns() {
	s.activateStudent()
	created, err := s.ents.Create(s.ctx, "Student",
		[]byte(`{"name": "Ada", "address": {"city": "London"}, "grades": [1, 2]}`), "clerk")
	s.Require().NoError(err)

	p := projector.New("it", s.store, projector.NewPostgresOffsets(s.postgres.Pool))
	s.Equal(4, s.catchup(p))

	var name, city, grades string
	var version int64
	s.Require().NoError(s.postgres.Pool.QueryRow(s.ctx,
		`SELECT name, address_city, grades::text, version FROM student_projection WHERE id = $1`, created.ID).
		Scan(&name, &city, &grades, &version))
	s.Equal("Ada", name)
	s.Equal("London", city)
	s.JSONEq(`[1, 2]`, grades)
	s.Equal(int64(1), version)

	var indexes int
	s.Require().NoError(s.postgres.Pool.QueryRow(s.ctx,
		`SELECT COUNT(*) FROM pg_indexes WHERE tablename = 'student_projection'`).Scan(&indexes))
	s.Equal(4, indexes, "primary key, name, unique city and GIN")

	row, err := s.store.Definition(s.ctx, created.RegistryDefID)
	s.Require().NoError(err)
	s.Equal("Active", string(row.Status))
	s.Equal("student_projection", row.Table)
}

func (s *ProjectionSuite) TestReactivationKeepsExistingColumns() {
	s.activateStudent()
	p := projector.New("it", s.store, projector.NewPostgresOffsets(s.postgres.Pool))
	s.catchup(p)

	_, err := s.defs.Deactivate(s.ctx, "Student", "admin")
	s.Require().NoError(err)
	_, err = s.defs.Update(s.ctx, "Student", strings.Replace(studentSchema,
		`"name": {"type": "string"},`, `"name": {"type": "string"}, "nickname": {"type": "string"},`, 1), "admin")
	s.Require().NoError(err)
	_, err = s.defs.Validate(s.ctx, "Student", "admin")
	s.Require().NoError(err)
	_, err = s.defs.Activate(s.ctx, "Student", "admin")
	s.Require().NoError(err)
	s.catchup(p)

	var columns int
	s.Require().NoError(s.postgres.Pool.QueryRow(s.ctx, `
		SELECT COUNT(*) FROM information_schema.columns
		WHERE table_name = 'student_projection' AND column_name = 'nickname'`).Scan(&columns))
	s.Zero(columns, "CREATE TABLE IF NOT EXISTS leaves an existing table as it is")
}

func (s *ProjectionSuite) TestUpdatesAreVersionGuarded() {
	s.activateStudent()
	created, err := s.ents.Create(s.ctx, "Student", []byte(`{"name": "Ada"}`), "clerk")
	s.Require().NoError(err)
	_, err = s.ents.Modify(s.ctx, "Student", created.ID, []byte(`{"name": "Grace"}`), "clerk")
	s.Require().NoError(err)

	p := projector.New("it", s.store, projector.NewPostgresOffsets(s.postgres.Pool))
	s.catchup(p)

	stale := projector.EntityRow{ID: created.ID, Version: 1, Data: []byte(`{"name": "Stale"}`)}
	s.Require().NoError(s.store.UpdateEntity(s.ctx, "student_projection", stale))

	var name string
	s.Require().NoError(s.postgres.Pool.QueryRow(s.ctx,
		`SELECT name FROM student_projection WHERE id = $1`, created.ID).Scan(&name))
	s.Equal("Grace", name)
}

func (s *ProjectionSuite) TestDeleteRemovesRow() {
	s.activateStudent()
	created, err := s.ents.Create(s.ctx, "Student", []byte(`{"name": "Ada"}`), "clerk")
	s.Require().NoError(err)
	_, err = s.ents.Delete(s.ctx, "Student", created.ID, "clerk")
	s.Require().NoError(err)

	s.catchup(projector.New("it", s.store, projector.NewPostgresOffsets(s.postgres.Pool)))

	n, err := s.store.Count(s.ctx, "student_projection")
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ProjectionSuite) TestRebuildIsIdempotent() {
	s.activateStudent()
	_, err := s.ents.Create(s.ctx, "Student", []byte(`{"name": "Ada"}`), "clerk")
	s.Require().NoError(err)

	s.catchup(projector.New("it", s.store, projector.NewPostgresOffsets(s.postgres.Pool)))
	// A rebuild starts from nothing and replays every event again.
	s.Equal(4, s.catchup(projector.New("rebuild", s.store, projector.NewMemoryOffsets())))

	n, err := s.store.Count(s.ctx, "student_projection")
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *ProjectionSuite) TestMissingTableIsReported() {
	err := s.store.InsertEntity(s.ctx, "student_projection", projector.EntityRow{ID: uuid.New(), Data: []byte(`{}`)})
	s.ErrorIs(err, projector.ErrNoTable)

	_, err = s.store.Count(s.ctx, "student_projection")
	s.ErrorIs(err, projector.ErrNoTable)
}

func (s *ProjectionSuite) TestUnknownDefinition() {
	_, err := s.store.Definition(s.ctx, uuid.New())
	s.Error(err)
}
