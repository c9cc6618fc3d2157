package consumer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestPermanent(t *testing.T) {
	base := errors.New("cannot synthesize")
	err := fmt.Errorf("apply: %w", Permanent(base))

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

func TestToMessage(t *testing.T) {
	msg := toMessage(&kgo.Record{
		Topic:     "registry.entities",
		Key:       []byte("k"),
		Value:     []byte("v"),
		Partition: 2,
		Offset:    41,
		Headers:   []kgo.RecordHeader{{Key: "event_type", Value: []byte("EntityCreated")}},
	})
	assert.Equal(t, "registry.entities", msg.Topic)
	assert.Equal(t, int32(2), msg.Partition)
	assert.Equal(t, int64(41), msg.Offset)
	assert.Equal(t, "EntityCreated", msg.Headers["event_type"])
}
