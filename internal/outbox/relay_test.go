package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"schemaregistry/internal/outbox/mocks"
	"schemaregistry/internal/platform/kafka/producer"
	"schemaregistry/internal/platform/metrics"
)

//go:generate mockgen -source=outbox.go -destination=mocks/mocks.go -package=mocks Store,Publisher
type RelaySuite struct {
	suite.Suite
	store     *mocks.MockStore
	publisher *mocks.MockPublisher
	metrics   *metrics.Metrics
	at        time.Time
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.store = mocks.NewMockStore(ctrl)
	s.publisher = mocks.NewMockPublisher(ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.at = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *RelaySuite) newRelay(batch int) *Relay {
	r := NewRelay(s.store, s.publisher, map[string]string{
		"definition": "registry.definitions",
		"entity":     "registry.entities",
	}, WithBatchSize(batch), WithMetrics(s.metrics))
	r.now = func() time.Time { return s.at }
	return r
}

func entry(seq int64, aggregateType, aggregateID, eventType string) Entry {
	return Entry{
		Seq:           seq,
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       []byte(`{"seq":1}`),
	}
}

func (s *RelaySuite) TestPublishesKeyedByStream() {
	ctx := context.Background()
	def := entry(1, "definition", "def-1", "DefCreated")
	ent := entry(2, "entity", "ent-1", "EntityCreated")

	s.store.EXPECT().Pending(ctx, 10).Return([]Entry{def, ent}, nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...producer.Message) error {
			s.Require().Len(msgs, 2)
			s.Equal("registry.definitions", msgs[0].Topic)
			s.Equal([]byte("def-1"), msgs[0].Key)
			s.Equal("DefCreated", msgs[0].Headers[HeaderEventType])
			s.Equal("definition", msgs[0].Headers[HeaderStreamType])
			s.Equal(def.ID.String(), msgs[0].Headers[HeaderOutboxID])
			s.Equal("registry.entities", msgs[1].Topic)
			s.JSONEq(`{"seq":1}`, string(msgs[1].Value))
			return nil
		})
	s.store.EXPECT().MarkPublished(ctx, []uuid.UUID{def.ID, ent.ID}, s.at).Return(nil)

	n, err := s.newRelay(10).Drain(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Equal(2.0, promtest.ToFloat64(s.metrics.OutboxPublished))
}

func (s *RelaySuite) TestSkipsUnmappedAggregate() {
	ctx := context.Background()
	odd := entry(1, "audit", "x", "Something")
	ent := entry(2, "entity", "ent-1", "EntityCreated")

	s.store.EXPECT().Pending(ctx, 10).Return([]Entry{odd, ent}, nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)
	s.store.EXPECT().MarkPublished(ctx, []uuid.UUID{odd.ID, ent.ID}, s.at).Return(nil)

	n, err := s.newRelay(10).Drain(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.OutboxPublished))
}

func (s *RelaySuite) TestPublishFailureLeavesEntriesPending() {
	ctx := context.Background()
	s.store.EXPECT().Pending(ctx, 10).Return([]Entry{entry(1, "entity", "e", "EntityCreated")}, nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(errors.New("broker down"))

	n, err := s.newRelay(10).Drain(ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "broker down")
	s.Zero(n)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.OutboxFailures))
}

func (s *RelaySuite) TestDrainLoopsUntilShortBatch() {
	ctx := context.Background()
	first := []Entry{entry(1, "entity", "a", "EntityCreated"), entry(2, "entity", "b", "EntityCreated")}
	second := []Entry{entry(3, "entity", "c", "EntityCreated")}

	gomock.InOrder(
		s.store.EXPECT().Pending(ctx, 2).Return(first, nil),
		s.publisher.EXPECT().Publish(ctx, gomock.Any(), gomock.Any()).Return(nil),
		s.store.EXPECT().MarkPublished(ctx, gomock.Len(2), s.at).Return(nil),
		s.store.EXPECT().Pending(ctx, 2).Return(second, nil),
		s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil),
		s.store.EXPECT().MarkPublished(ctx, gomock.Len(1), s.at).Return(nil),
	)

	n, err := s.newRelay(2).Drain(ctx)
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *RelaySuite) TestEmptyOutbox() {
	ctx := context.Background()
	s.store.EXPECT().Pending(ctx, 10).Return(nil, nil)

	n, err := s.newRelay(10).Drain(ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RelaySuite) TestRunStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	s.store.EXPECT().Pending(gomock.Any(), 10).Return(nil, nil).AnyTimes()
	s.store.EXPECT().Backlog(gomock.Any()).DoAndReturn(func(context.Context) (int, error) {
		cancel()
		return 7, nil
	})

	s.Require().NoError(s.newRelay(10).Run(ctx))
	s.Equal(7.0, promtest.ToFloat64(s.metrics.OutboxBacklog))
}
