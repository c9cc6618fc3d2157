package eventstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"schemaregistry/pkg/platform/sentinel"
)

type streamKey struct {
	streamType string
	id         uuid.UUID
}

// MemoryStore is an in-process Store and Feed.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[streamKey][]Record
	log     []Record
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: make(map[streamKey][]Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Load(_ context.Context, streamType string, id uuid.UUID) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream := s.streams[streamKey{streamType, id}]
	out := make([]Record, len(stream))
	copy(out, stream)
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, streamType string, id uuid.UUID, expectedVersion int64, records []Record) ([]Record, error) {
	if len(records) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey{streamType, id}
	current := int64(len(s.streams[key]))
	if current != expectedVersion {
		return nil, fmt.Errorf("stream %s/%s at version %d, expected %d: %w", streamType, id, current, expectedVersion, sentinel.ErrConflict)
	}

	stamped := stamp(streamType, id, expectedVersion, records, s.now())
	for i := range stamped {
		stamped[i].Position = int64(len(s.log)) + 1
		s.log = append(s.log, stamped[i])
	}
	s.streams[key] = append(s.streams[key], stamped...)
	return stamped, nil
}

func (s *MemoryStore) ReadAll(_ context.Context, after int64, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if after < 0 {
		after = 0
	}
	if after >= int64(len(s.log)) {
		return nil, nil
	}
	end := int64(len(s.log))
	if limit > 0 && after+int64(limit) < end {
		end = after + int64(limit)
	}
	out := make([]Record, end-after)
	copy(out, s.log[after:end])
	return out, nil
}
