package projector_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"schemaregistry/internal/definition"
	defservice "schemaregistry/internal/definition/service"
	entservice "schemaregistry/internal/entity/service"
	"schemaregistry/internal/eventstore"
	"schemaregistry/internal/platform/metrics"
	"schemaregistry/internal/projector"
	"schemaregistry/internal/projector/mocks"
	"schemaregistry/internal/schema"
	"schemaregistry/pkg/platform/sentinel"
)

const teacherSchema = `{
  "title": "Teacher",
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "age": {"type": "integer"}
  },
  "_osConfig": {"indexFields": ["name"]}
}`

//go:generate mockgen -source=projector.go -destination=mocks/store.go -package=mocks Store
//go:generate mockgen -source=offsets.go -destination=mocks/offsets.go -package=mocks OffsetStore
type ProjectorSuite struct {
	suite.Suite
	ctx     context.Context
	events  *eventstore.MemoryStore
	defs    *defservice.Service
	ents    *entservice.Service
	store   *mocks.MockStore
	rows    map[uuid.UUID]projector.DefinitionRow
	metrics *metrics.Metrics
}

func TestProjectorSuite(t *testing.T) {
	suite.Run(t, new(ProjectorSuite))
}

func (s *ProjectorSuite) SetupTest() {
	s.ctx = context.Background()
	s.events = eventstore.NewMemoryStore()
	cache := schema.NewCache(0)
	s.defs = defservice.New(s.events, defservice.WithSchemas(cache))
	s.ents = entservice.New(s.events, entservice.WithSchemas(cache))
	s.metrics = metrics.New(prometheus.NewRegistry())

	// Definition rows behave like the real table so status changes can be
	// asserted on the final row.
	s.store = mocks.NewMockStore(gomock.NewController(s.T()))
	s.rows = make(map[uuid.UUID]projector.DefinitionRow)
	s.store.EXPECT().UpsertDefinition(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, row projector.DefinitionRow) error {
			s.rows[row.ID] = row
			return nil
		}).AnyTimes()
	s.store.EXPECT().Definition(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id uuid.UUID) (projector.DefinitionRow, error) {
			row, ok := s.rows[id]
			if !ok {
				return projector.DefinitionRow{}, sentinel.ErrNotFound
			}
			return row, nil
		}).AnyTimes()
}

func (s *ProjectorSuite) newProjector(offsets projector.OffsetStore, opts ...projector.Option) *projector.Projector {
	opts = append(opts, projector.WithMetrics(s.metrics))
	return projector.New("test", s.store, offsets, opts...)
}

func (s *ProjectorSuite) activate(title, text string) definition.State {
	_, err := s.defs.Create(s.ctx, title, text, "admin")
	s.Require().NoError(err)
	_, err = s.defs.Validate(s.ctx, title, "admin")
	s.Require().NoError(err)
	st, err := s.defs.Activate(s.ctx, title, "admin")
	s.Require().NoError(err)
	return st
}

func (s *ProjectorSuite) history() []eventstore.Record {
	records, err := s.events.ReadAll(s.ctx, 0, 1000)
	s.Require().NoError(err)
	return records
}

func (s *ProjectorSuite) applyAll(p *projector.Projector, records []eventstore.Record) {
	for _, rec := range records {
		s.Require().NoError(p.Apply(s.ctx, rec), rec.Type)
	}
}

func (s *ProjectorSuite) TestActivationCreatesTable() {
	def := s.activate("Teacher", teacherSchema)

	var ddl []string
	s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, stmts []string) error {
			ddl = stmts
			return nil
		})

	s.applyAll(s.newProjector(projector.NewMemoryOffsets()), s.history())

	s.Require().Len(ddl, 3)
	s.True(strings.HasPrefix(ddl[0], "CREATE TABLE IF NOT EXISTS teacher_projection ("))
	s.Contains(ddl[1], "idx_teacher_projection_name")
	s.Contains(ddl[2], "USING GIN (entity_data)")

	row := s.rows[def.ID]
	s.Equal(definition.StatusActive, row.Status)
	s.Equal("Teacher", row.Title)
	s.Equal("teacher_projection", row.Table)
	s.Equal(int64(3), row.Version)
	s.Equal(3.0, promtest.ToFloat64(s.metrics.ProjectorDDL))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.ProjectorEvents.WithLabelValues(definition.TypeDefActivated, "applied")))
}

func (s *ProjectorSuite) TestDefinitionStatusFollowsEvents() {
	_, err := s.defs.Create(s.ctx, "Draft", `{"title": "Draft", "type": 12}`, "admin")
	s.Require().NoError(err)
	_, err = s.defs.Validate(s.ctx, "Draft", "admin")
	s.Require().NoError(err)

	s.applyAll(s.newProjector(projector.NewMemoryOffsets()), s.history())

	row := s.rows[definition.IdentityFor("Draft")]
	s.Equal(definition.StatusInvalid, row.Status)
	s.Equal("admin", row.CreatedBy)
}

func (s *ProjectorSuite) TestEntityRows() {
	def := s.activate("Teacher", teacherSchema)
	created, err := s.ents.Create(s.ctx, "Teacher", []byte(`{"name": "Ada", "age": 36}`), "clerk")
	s.Require().NoError(err)
	_, err = s.ents.Modify(s.ctx, "Teacher", created.ID, []byte(`{"name": "Ada Lovelace"}`), "clerk")
	s.Require().NoError(err)
	_, err = s.ents.Delete(s.ctx, "Teacher", created.ID, "clerk")
	s.Require().NoError(err)

	s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).Return(nil)
	gomock.InOrder(
		s.store.EXPECT().InsertEntity(gomock.Any(), "teacher_projection", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, row projector.EntityRow) error {
				s.Equal(created.ID, row.ID)
				s.Equal("Teacher", row.EntityType)
				s.Equal("clerk", row.CreatedBy)
				s.Equal(def.ID, row.RegistryDefID)
				s.Equal(def.Version, row.RegistryDefVersion)
				s.Equal(int64(1), row.Version)
				s.JSONEq(`{"name": "Ada", "age": 36}`, string(row.Data))
				return nil
			}),
		s.store.EXPECT().UpdateEntity(gomock.Any(), "teacher_projection", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, row projector.EntityRow) error {
				s.Equal(int64(2), row.Version)
				s.Equal(def.ID, row.RegistryDefID)
				s.JSONEq(`{"name": "Ada Lovelace"}`, string(row.Data))
				return nil
			}),
		s.store.EXPECT().DeleteEntity(gomock.Any(), "teacher_projection", created.ID).Return(nil),
	)

	s.applyAll(s.newProjector(projector.NewMemoryOffsets()), s.history())
}

func (s *ProjectorSuite) TestRedeliveredEventsAreSkipped() {
	s.activate("Teacher", teacherSchema)
	_, err := s.ents.Create(s.ctx, "Teacher", []byte(`{"name": "Ada"}`), "clerk")
	s.Require().NoError(err)

	s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	s.store.EXPECT().InsertEntity(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	p := s.newProjector(projector.NewMemoryOffsets())
	records := s.history()
	s.applyAll(p, records)
	s.applyAll(p, records)

	s.Equal(1.0, promtest.ToFloat64(s.metrics.ProjectorEvents.WithLabelValues("EntityCreated", "skipped")))
}

func (s *ProjectorSuite) TestStoredOffsetsSurviveRestart() {
	s.activate("Teacher", teacherSchema)
	s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	offsets := projector.NewMemoryOffsets()
	first := s.newProjector(offsets)
	s.applyAll(first, s.history())
	s.Require().NoError(first.Flush(s.ctx))

	second := s.newProjector(offsets)
	s.applyAll(second, s.history())
}

func (s *ProjectorSuite) TestFlushEveryN() {
	def := s.activate("Teacher", teacherSchema)
	s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).Return(nil)
	key := eventstore.StreamDefinition + "/" + def.ID.String()

	offsets := mocks.NewMockOffsetStore(gomock.NewController(s.T()))
	offsets.EXPECT().Read(gomock.Any(), "test", key).Return(int64(0), nil).Times(1)
	p := s.newProjector(offsets, projector.WithFlushEvery(2))

	records := s.history()
	s.Require().Len(records, 3)

	s.Require().NoError(p.Apply(s.ctx, records[0]))

	offsets.EXPECT().Upsert(gomock.Any(), "test", key, int64(2)).Return(nil).Times(1)
	s.Require().NoError(p.Apply(s.ctx, records[1]))
	s.Require().NoError(p.Apply(s.ctx, records[2]))

	offsets.EXPECT().Upsert(gomock.Any(), "test", key, int64(3)).Return(nil).Times(1)
	s.Require().NoError(p.Flush(s.ctx))
	s.Require().NoError(p.Flush(s.ctx))
}

func (s *ProjectorSuite) TestTableCreatedWhenEntityArrivesFirst() {
	s.activate("Teacher", teacherSchema)
	_, err := s.ents.Create(s.ctx, "Teacher", []byte(`{"name": "Ada"}`), "clerk")
	s.Require().NoError(err)

	records := s.history()
	// Definition events are already in the read table, but its DDL was lost.
	p := s.newProjector(projector.NewMemoryOffsets())
	s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).Return(nil)
	s.applyAll(p, records[:3])

	gomock.InOrder(
		s.store.EXPECT().InsertEntity(gomock.Any(), "teacher_projection", gomock.Any()).Return(projector.ErrNoTable),
		s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).Return(nil),
		s.store.EXPECT().InsertEntity(gomock.Any(), "teacher_projection", gomock.Any()).Return(nil),
	)
	s.Require().NoError(p.Apply(s.ctx, records[3]))
}

func (s *ProjectorSuite) TestDeleteWithoutTableIsIgnored() {
	s.activate("Teacher", teacherSchema)
	created, err := s.ents.Create(s.ctx, "Teacher", []byte(`{"name": "Ada"}`), "clerk")
	s.Require().NoError(err)
	_, err = s.ents.Delete(s.ctx, "Teacher", created.ID, "clerk")
	s.Require().NoError(err)
	records := s.history()

	s.Run("unknown definition", func() {
		s.Require().NoError(s.newProjector(projector.NewMemoryOffsets()).Apply(s.ctx, records[len(records)-1]))
	})

	s.Run("table dropped", func() {
		p := s.newProjector(projector.NewMemoryOffsets())
		s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).Return(nil)
		s.applyAll(p, records[:3])

		s.store.EXPECT().DeleteEntity(gomock.Any(), "teacher_projection", created.ID).Return(projector.ErrNoTable)
		s.Require().NoError(p.Apply(s.ctx, records[len(records)-1]))
	})
}

func (s *ProjectorSuite) TestTableFollowsSchemaTitle() {
	def := s.activate("Student", `{
  "title": "StudentRecord",
  "type": "object",
  "properties": {"name": {"type": "string"}}
}`)
	created, err := s.ents.Create(s.ctx, "Student", []byte(`{"name": "Ada"}`), "clerk")
	s.Require().NoError(err)
	_, err = s.ents.Modify(s.ctx, "Student", created.ID, []byte(`{"name": "Grace"}`), "clerk")
	s.Require().NoError(err)
	_, err = s.ents.Delete(s.ctx, "Student", created.ID, "clerk")
	s.Require().NoError(err)
	records := s.history()
	s.Require().Len(records, 6)

	s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, stmts []string) error {
			s.True(strings.HasPrefix(stmts[0], "CREATE TABLE IF NOT EXISTS studentrecord_projection ("))
			return nil
		})
	gomock.InOrder(
		s.store.EXPECT().InsertEntity(gomock.Any(), "studentrecord_projection", gomock.Any()).Return(nil),
		s.store.EXPECT().UpdateEntity(gomock.Any(), "studentrecord_projection", gomock.Any()).Return(nil),
		s.store.EXPECT().DeleteEntity(gomock.Any(), "studentrecord_projection", created.ID).Return(nil),
	)
	s.applyAll(s.newProjector(projector.NewMemoryOffsets()), records)
	s.Equal("studentrecord_projection", s.rows[def.ID].Table)

	s.Run("restarted projector reads the table from the definition row", func() {
		s.store.EXPECT().InsertEntity(gomock.Any(), "studentrecord_projection", gomock.Any()).Return(nil)
		s.Require().NoError(s.newProjector(projector.NewMemoryOffsets()).Apply(s.ctx, records[3]))
	})
}

func (s *ProjectorSuite) TestUnsynthesizableDefinitionIsParked() {
	untitled := s.activate("Course", `{"type": "object", "properties": {"code": {"type": "string"}}}`)
	_, err := s.ents.Create(s.ctx, "Course", []byte(`{"code": "CS101"}`), "clerk")
	s.Require().NoError(err)
	s.activate("Teacher", teacherSchema)
	_, err = s.ents.Create(s.ctx, "Teacher", []byte(`{"name": "Ada"}`), "clerk")
	s.Require().NoError(err)

	p := s.newProjector(projector.NewMemoryOffsets())
	s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().InsertEntity(gomock.Any(), "teacher_projection", gomock.Any()).Return(nil)

	n, err := p.Catchup(s.ctx, s.events, 100)
	s.Require().NoError(err, "other definitions keep flowing")
	s.Equal(8, n)

	s.Contains(p.Parked(), untitled.ID)
	health := p.Health(s.ctx)
	s.Require().Error(health)
	s.Contains(health.Error(), untitled.ID.String())
	s.Equal(1.0, promtest.ToFloat64(s.metrics.ProjectorParked))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.ProjectorEvents.WithLabelValues(definition.TypeDefActivated, "parked")))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.ProjectorEvents.WithLabelValues("EntityCreated", "parked")))
	s.Zero(promtest.ToFloat64(s.metrics.ProjectorEvents.WithLabelValues(definition.TypeDefActivated, "failed")))

	s.Run("a titled reactivation releases it", func() {
		_, err := s.defs.Deactivate(s.ctx, "Course", "admin")
		s.Require().NoError(err)
		_, err = s.defs.Update(s.ctx, "Course", `{"title": "Course", "type": "object", "properties": {"code": {"type": "string"}}}`, "admin")
		s.Require().NoError(err)
		_, err = s.defs.Validate(s.ctx, "Course", "admin")
		s.Require().NoError(err)
		_, err = s.defs.Activate(s.ctx, "Course", "admin")
		s.Require().NoError(err)

		s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).Return(nil)
		_, err = p.Catchup(s.ctx, s.events, 100)
		s.Require().NoError(err)

		s.Empty(p.Parked())
		s.NoError(p.Health(s.ctx))
		s.Zero(promtest.ToFloat64(s.metrics.ProjectorParked))
		s.Equal("course_projection", s.rows[untitled.ID].Table)
	})
}

func (s *ProjectorSuite) TestReactivationKeepsExistingTable() {
	s.activate("Teacher", teacherSchema)
	_, err := s.defs.Deactivate(s.ctx, "Teacher", "admin")
	s.Require().NoError(err)
	_, err = s.defs.Update(s.ctx, "Teacher", strings.Replace(teacherSchema,
		`"age": {"type": "integer"}`, `"age": {"type": "integer"}, "subject": {"type": "string"}`, 1), "admin")
	s.Require().NoError(err)
	_, err = s.defs.Validate(s.ctx, "Teacher", "admin")
	s.Require().NoError(err)
	_, err = s.defs.Activate(s.ctx, "Teacher", "admin")
	s.Require().NoError(err)

	var ddl [][]string
	s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, stmts []string) error {
			ddl = append(ddl, stmts)
			return nil
		}).Times(2)
	s.applyAll(s.newProjector(projector.NewMemoryOffsets()), s.history())

	s.Require().Len(ddl, 2)
	// The second CREATE TABLE names the new column but is a no-op on a
	// table that already exists; the table keeps its first shape.
	s.NotContains(ddl[0][0], "subject")
	s.Contains(ddl[1][0], "subject")
	for _, stmts := range ddl {
		for _, stmt := range stmts {
			s.Contains(stmt, "IF NOT EXISTS")
		}
	}
}

func (s *ProjectorSuite) TestCatchup() {
	s.activate("Teacher", teacherSchema)
	_, err := s.ents.Create(s.ctx, "Teacher", []byte(`{"name": "Ada"}`), "clerk")
	s.Require().NoError(err)

	s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().InsertEntity(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	offsets := projector.NewMemoryOffsets()
	p := s.newProjector(offsets)
	n, err := p.Catchup(s.ctx, s.events, 2)
	s.Require().NoError(err)
	s.Equal(4, n)

	pos, err := offsets.Read(s.ctx, "test", "$position")
	s.Require().NoError(err)
	s.Equal(int64(4), pos)

	n, err = p.Catchup(s.ctx, s.events, 2)
	s.Require().NoError(err)
	s.Zero(n)

	_, err = s.ents.Create(s.ctx, "Teacher", []byte(`{"name": "Grace"}`), "clerk")
	s.Require().NoError(err)
	s.store.EXPECT().InsertEntity(gomock.Any(), "teacher_projection", gomock.Any()).Return(nil)
	n, err = projector.New("test", s.store, offsets).Catchup(s.ctx, s.events, 2)
	s.Require().NoError(err)
	s.Equal(1, n)
}
