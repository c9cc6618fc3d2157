package projector

import (
	"context"
	"sync"
)

// OffsetStore remembers, per projector name and key, the last applied
// offset. A key that was never written reads as 0.
type OffsetStore interface {
	Read(ctx context.Context, name, key string) (int64, error)
	Upsert(ctx context.Context, name, key string, offset int64) error
}

// MemoryOffsets keeps offsets for the life of the process. Rebuilds use it
// so that nothing is skipped.
type MemoryOffsets struct {
	mu      sync.RWMutex
	offsets map[string]map[string]int64
}

func NewMemoryOffsets() *MemoryOffsets {
	return &MemoryOffsets{offsets: make(map[string]map[string]int64)}
}

func (m *MemoryOffsets) Read(_ context.Context, name, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offsets[name][key], nil
}

func (m *MemoryOffsets) Upsert(_ context.Context, name, key string, offset int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offsets[name] == nil {
		m.offsets[name] = make(map[string]int64)
	}
	m.offsets[name][key] = offset
	return nil
}
