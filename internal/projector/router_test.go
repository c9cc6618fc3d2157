package projector_test

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/mock/gomock"

	"schemaregistry/internal/eventstore"
	"schemaregistry/internal/platform/kafka/consumer"
	"schemaregistry/internal/platform/logger"
	"schemaregistry/internal/projector"
)

func (s *ProjectorSuite) message(topic string, rec eventstore.Record) *consumer.Message {
	value, err := json.Marshal(rec)
	s.Require().NoError(err)
	return &consumer.Message{Topic: topic, Key: []byte(rec.StreamID.String()), Value: value}
}

func (s *ProjectorSuite) router(p *projector.Projector, fallback projector.TopicHandler) *projector.Router {
	r := projector.NewRouter(logger.Discard(), fallback)
	r.Register("registry.definitions", projector.NewStreamHandler(p, eventstore.StreamDefinition))
	r.Register("registry.entities", projector.NewStreamHandler(p, eventstore.StreamEntity))
	return r
}

func (s *ProjectorSuite) TestRouterAppliesEnvelopes() {
	s.activate("Teacher", teacherSchema)
	s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).Return(nil)

	r := s.router(s.newProjector(projector.NewMemoryOffsets()), nil)
	for _, rec := range s.history() {
		s.Require().NoError(r.Handle(s.ctx, s.message("registry.definitions", rec)))
	}
	s.ElementsMatch([]string{"registry.definitions", "registry.entities"}, r.Topics())
}

func (s *ProjectorSuite) TestRouterSkipsWhatItCannotUse() {
	s.activate("Teacher", teacherSchema)
	records := s.history()
	r := s.router(s.newProjector(projector.NewMemoryOffsets()), nil)

	s.NoError(r.Handle(s.ctx, s.message("registry.audit", records[0])))
	s.NoError(r.Handle(s.ctx, &consumer.Message{Topic: "registry.entities", Value: []byte("{not json")}))
	// A definition event on the entity topic is dropped without touching the store.
	s.NoError(r.Handle(s.ctx, s.message("registry.entities", records[0])))
	s.Empty(s.rows)
}

func (s *ProjectorSuite) TestRouterFallback() {
	var seen string
	fallback := consumer.HandlerFunc(func(_ context.Context, msg *consumer.Message) error {
		seen = msg.Topic
		return errors.New("unroutable")
	})
	r := s.router(s.newProjector(projector.NewMemoryOffsets()), fallback)

	err := r.Handle(s.ctx, &consumer.Message{Topic: "elsewhere"})
	s.EqualError(err, "unroutable")
	s.Equal("elsewhere", seen)
}

func (s *ProjectorSuite) TestSynthesisFailureIsCommitted() {
	def := s.activate("Untitled", `{"type": "object"}`)
	records := s.history()
	p := s.newProjector(projector.NewMemoryOffsets())
	r := s.router(p, nil)

	for _, rec := range records {
		s.Require().NoError(r.Handle(s.ctx, s.message("registry.definitions", rec)))
	}
	s.Contains(p.Parked(), def.ID)
}

func (s *ProjectorSuite) TestStoreFailuresAreRetryable() {
	s.activate("Teacher", teacherSchema)
	records := s.history()
	s.store.EXPECT().ExecDDL(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

	r := s.router(s.newProjector(projector.NewMemoryOffsets()), nil)
	for _, rec := range records[:2] {
		s.Require().NoError(r.Handle(s.ctx, s.message("registry.definitions", rec)))
	}
	err := r.Handle(s.ctx, s.message("registry.definitions", records[2]))
	s.Require().Error(err)
	s.False(consumer.IsPermanent(err))
}
