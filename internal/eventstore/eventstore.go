// Package eventstore persists ordered, append-only event streams with an
// optimistic concurrency check on append.
package eventstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Stream types.
const (
	StreamDefinition = "definition"
	StreamEntity     = "entity"
)

// Record is one stored event. It is also the wire envelope published to
// Kafka through the outbox.
type Record struct {
	ID         uuid.UUID       `json:"event_id"`
	StreamType string          `json:"stream_type"`
	StreamID   uuid.UUID       `json:"stream_id"`
	Version    int64           `json:"version"`
	Position   int64           `json:"position"`
	Type       string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Store loads and appends streams. Append fails with sentinel.ErrConflict
// when the stream's current version differs from expectedVersion.
type Store interface {
	Load(ctx context.Context, streamType string, id uuid.UUID) ([]Record, error)
	Append(ctx context.Context, streamType string, id uuid.UUID, expectedVersion int64, records []Record) ([]Record, error)
}

// Feed reads every stream in global order.
type Feed interface {
	ReadAll(ctx context.Context, after int64, limit int) ([]Record, error)
}

// stamp fills the fields a store assigns on append.
func stamp(streamType string, id uuid.UUID, expectedVersion int64, records []Record, now time.Time) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		r.StreamType = streamType
		r.StreamID = id
		r.Version = expectedVersion + int64(i) + 1
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		if r.RecordedAt.IsZero() {
			r.RecordedAt = now
		}
		out[i] = r
	}
	return out
}
