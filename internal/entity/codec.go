package entity

import (
	"encoding/json"
	"fmt"

	"schemaregistry/internal/eventstore"
)

// Encode converts an event to an unstamped store record.
func Encode(e Event) (eventstore.Record, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return eventstore.Record{}, fmt.Errorf("encode %s: %w", e.EventType(), err)
	}
	h := e.header()
	return eventstore.Record{
		StreamType: eventstore.StreamEntity,
		StreamID:   h.EntityID,
		Type:       e.EventType(),
		Payload:    payload,
		RecordedAt: h.OccurredAt,
	}, nil
}

func EncodeAll(events []Event) ([]eventstore.Record, error) {
	out := make([]eventstore.Record, 0, len(events))
	for _, e := range events {
		r, err := Encode(e)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Decode restores an event from a record.
func Decode(r eventstore.Record) (Event, error) {
	switch r.Type {
	case TypeEntityCreated:
		var e EntityCreated
		if err := json.Unmarshal(r.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", r.Type, err)
		}
		return e, nil
	case TypeEntityUpdated:
		var e EntityUpdated
		if err := json.Unmarshal(r.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", r.Type, err)
		}
		return e, nil
	case TypeEntityDeleted:
		var e EntityDeleted
		if err := json.Unmarshal(r.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", r.Type, err)
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown entity event type %q", r.Type)
}

func DecodeAll(records []eventstore.Record) ([]Event, error) {
	out := make([]Event, 0, len(records))
	for _, r := range records {
		e, err := Decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
