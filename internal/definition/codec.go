package definition

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
	return eventstore.Record{
		StreamType: eventstore.StreamDefinition,
		StreamID:   e.header().DefinitionID,
		Type:       e.EventType(),
		Payload:    payload,
		RecordedAt: e.header().OccurredAt,
	}, nil
}

// EncodeAll encodes events in order.
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
	var (
		e   Event
		err error
	)
	switch r.Type {
	case TypeDefCreated:
		e, err = decodeAs[DefCreated](r.Payload)
	case TypeDefLoaded:
		e, err = decodeAs[DefLoaded](r.Payload)
	case TypeDefUpdated:
		e, err = decodeAs[DefUpdated](r.Payload)
	case TypeDefValidated:
		e, err = decodeAs[DefValidated](r.Payload)
	case TypeDefValidatedFailed:
		e, err = decodeAs[DefValidatedFailed](r.Payload)
	case TypeDefActivated:
		e, err = decodeAs[DefActivated](r.Payload)
	case TypeDefDeactivated:
		e, err = decodeAs[DefDeactivated](r.Payload)
	case TypeDefDeleted:
		e, err = decodeAs[DefDeleted](r.Payload)
	default:
		return nil, fmt.Errorf("unknown definition event type %q", r.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.Type, err)
	}
	return e, nil
}

// DecodeAll decodes a stream in order.
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

func decodeAs[T Event](payload []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}
