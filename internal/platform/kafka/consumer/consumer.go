// Package consumer runs a Kafka consumer group with manual commits. A record
// is committed only after its handler returns nil.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one consumed record.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Partition int32
	Offset    int64
}

// Handler processes one message. Returning an error wrapped with Permanent
// stops the consumer without committing; any other error is retried with
// backoff.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type Config struct {
	Brokers  []string
	ClientID string
	Group    string
	Topics   []string
	// MaxBackoff caps the delay between retries of a failing record.
	MaxBackoff time.Duration
}

type Consumer struct {
	client     *kgo.Client
	handler    Handler
	logger     *slog.Logger
	maxBackoff time.Duration
}

func New(cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: no brokers")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	backoff := cfg.MaxBackoff
	if backoff <= 0 {
		backoff = 30 * time.Second
	}
	return &Consumer{client: client, handler: handler, logger: logger, maxBackoff: backoff}, nil
}

// Run polls until ctx is cancelled or a handler fails permanently.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		for _, fe := range fetches.Errors() {
			c.logger.WarnContext(ctx, "kafka fetch error",
				"topic", fe.Topic,
				"partition", fe.Partition,
				"error", fe.Err,
			)
		}

		var done []*kgo.Record
		var runErr error
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			if runErr != nil {
				return
			}
			for _, rec := range p.Records {
				if err := c.deliver(ctx, rec); err != nil {
					runErr = err
					return
				}
				done = append(done, rec)
			}
		})

		if len(done) > 0 {
			if err := c.client.CommitRecords(context.WithoutCancel(ctx), done...); err != nil {
				c.logger.ErrorContext(ctx, "kafka commit failed", "error", err)
			}
		}
		if runErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return runErr
		}
	}
}

// deliver retries rec until it succeeds, fails permanently, or ctx ends.
func (c *Consumer) deliver(ctx context.Context, rec *kgo.Record) error {
	msg := toMessage(rec)
	delay := 100 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err := c.handler.Handle(ctx, msg)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			c.logger.ErrorContext(ctx, "kafka handler failed permanently",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			return err
		}
		c.logger.WarnContext(ctx, "kafka handler failed, retrying",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, c.maxBackoff)
	}
}

func toMessage(rec *kgo.Record) *Message {
	msg := &Message{
		Topic:     rec.Topic,
		Key:       rec.Key,
		Value:     rec.Value,
		Partition: rec.Partition,
		Offset:    rec.Offset,
	}
	if len(rec.Headers) > 0 {
		msg.Headers = make(map[string]string, len(rec.Headers))
		for _, h := range rec.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}
