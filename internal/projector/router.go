package projector

import (
	"context"
	"encoding/json"
	"log/slog"

	"schemaregistry/internal/eventstore"
	"schemaregistry/internal/outbox"
	"schemaregistry/internal/platform/kafka/consumer"
)

// TopicHandler handles messages from one topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router dispatches consumed messages to topic handlers.
type Router struct {
	handlers map[string]TopicHandler
	fallback TopicHandler
	logger   *slog.Logger
}

// NewRouter creates a router. fallback may be nil, in which case messages
// from unregistered topics are committed and dropped.
func NewRouter(logger *slog.Logger, fallback TopicHandler) *Router {
	return &Router{
		handlers: make(map[string]TopicHandler),
		fallback: fallback,
		logger:   logger,
	}
}

func (r *Router) Register(topic string, handler TopicHandler) {
	r.handlers[topic] = handler
}

// Topics lists the registered topics.
func (r *Router) Topics() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, msg)
		}
		r.logger.WarnContext(ctx, "no handler for topic, skipping message",
			"topic", msg.Topic,
			"key", string(msg.Key),
		)
		return nil
	}
	return handler.Handle(ctx, msg)
}

// StreamHandler decodes event envelopes of one stream type and applies them.
type StreamHandler struct {
	projector  *Projector
	streamType string
	logger     *slog.Logger
}

func NewStreamHandler(p *Projector, streamType string) *StreamHandler {
	return &StreamHandler{projector: p, streamType: streamType, logger: p.logger}
}

// Handle skips malformed or misrouted envelopes, since redelivering them
// cannot help. Store errors are returned for the consumer to retry.
func (h *StreamHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var rec eventstore.Record
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		h.logger.ErrorContext(ctx, "failed to unmarshal event envelope",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"outbox_id", msg.Headers[outbox.HeaderOutboxID],
			"error", err,
		)
		return nil
	}
	if rec.StreamType != h.streamType {
		h.logger.WarnContext(ctx, "event on wrong topic, skipping",
			"topic", msg.Topic,
			"stream_type", rec.StreamType,
			"event_type", rec.Type,
		)
		return nil
	}

	return h.projector.Apply(ctx, rec)
}
