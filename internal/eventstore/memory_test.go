package eventstore

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"schemaregistry/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.ctx = context.Background()
}

func event(typ string) Record {
	return Record{Type: typ, Payload: json.RawMessage(`{}`)}
}

func (s *MemoryStoreSuite) TestAppendAssignsVersionsAndPositions() {
	a, b := uuid.New(), uuid.New()

	first, err := s.store.Append(s.ctx, StreamDefinition, a, 0, []Record{event("DefCreated"), event("DefValidated")})
	s.Require().NoError(err)
	second, err := s.store.Append(s.ctx, StreamEntity, b, 0, []Record{event("EntityCreated")})
	s.Require().NoError(err)

	s.Equal([]int64{1, 2}, []int64{first[0].Version, first[1].Version})
	s.Equal([]int64{1, 2}, []int64{first[0].Position, first[1].Position})
	s.Equal(int64(1), second[0].Version)
	s.Equal(int64(3), second[0].Position)
	s.NotEqual(uuid.Nil, first[0].ID)
	s.False(first[0].RecordedAt.IsZero())
	s.Equal(StreamDefinition, first[0].StreamType)
	s.Equal(a, first[1].StreamID)

	loaded, err := s.store.Load(s.ctx, StreamDefinition, a)
	s.Require().NoError(err)
	s.Equal(first, loaded)
}

func (s *MemoryStoreSuite) TestStaleExpectedVersionConflicts() {
	id := uuid.New()
	_, err := s.store.Append(s.ctx, StreamDefinition, id, 0, []Record{event("DefCreated")})
	s.Require().NoError(err)

	s.Run("behind", func() {
		_, err := s.store.Append(s.ctx, StreamDefinition, id, 0, []Record{event("DefCreated")})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("ahead", func() {
		_, err := s.store.Append(s.ctx, StreamDefinition, id, 5, []Record{event("DefUpdated")})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	loaded, err := s.store.Load(s.ctx, StreamDefinition, id)
	s.Require().NoError(err)
	s.Len(loaded, 1)
}

func (s *MemoryStoreSuite) TestStreamTypesAreSeparate() {
	id := uuid.New()
	_, err := s.store.Append(s.ctx, StreamDefinition, id, 0, []Record{event("DefCreated")})
	s.Require().NoError(err)

	loaded, err := s.store.Load(s.ctx, StreamEntity, id)
	s.Require().NoError(err)
	s.Empty(loaded)
}

func (s *MemoryStoreSuite) TestReadAllPages() {
	for i := 0; i < 5; i++ {
		_, err := s.store.Append(s.ctx, StreamEntity, uuid.New(), 0, []Record{event("EntityCreated")})
		s.Require().NoError(err)
	}

	page, err := s.store.ReadAll(s.ctx, 0, 2)
	s.Require().NoError(err)
	s.Require().Len(page, 2)
	s.Equal(int64(1), page[0].Position)

	page, err = s.store.ReadAll(s.ctx, 4, 10)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(int64(5), page[0].Position)

	page, err = s.store.ReadAll(s.ctx, 5, 10)
	s.Require().NoError(err)
	s.Empty(page)
}

func (s *MemoryStoreSuite) TestConcurrentAppendsExactlyOneWins() {
	id := uuid.New()
	const writers = 20

	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Append(s.ctx, StreamDefinition, id, 0, []Record{event("DefCreated")})
			if err == nil {
				wins.Add(1)
			} else {
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(writers-1), conflicts.Load())
}
