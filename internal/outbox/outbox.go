// Package outbox relays events written to the outbox table by the event
// store to Kafka. Delivery is at least once: an entry is marked published
// only after the broker acknowledged it.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"schemaregistry/internal/platform/kafka/producer"
)

// Entry is one unpublished outbox row. Payload is the eventstore.Record
// envelope as JSON.
type Entry struct {
	Seq           int64
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	CreatedAt     time.Time
}

// Store reads and acknowledges outbox entries.
type Store interface {
	Pending(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
	Backlog(ctx context.Context) (int, error)
}

// Publisher sends messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msgs ...producer.Message) error
}

// Header names set on every published record.
const (
	HeaderEventType  = "event_type"
	HeaderStreamType = "stream_type"
	HeaderOutboxID   = "outbox_id"
)
