package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/tariffwise/internal/classify/engine"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishCompleted(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewPublisherWithWriter(writer, "tariffwise.classifications", logging.NewNopLogger())

	ev := engine.CompletedEvent{
		ConversationID: "conv-123",
		Query:          "roasted coffee",
		Code:           "0901.21",
		Confidence:     93,
		Rounds:         0,
		Path:           "direct",
		CompletedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.PublishCompleted(context.Background(), ev))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, []byte("conv-123"), msg.Key)

	var decoded engine.CompletedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev, decoded)

	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("classification.completed"), msg.Headers[0].Value)
}

func TestPublishCompletedWriteFailure(t *testing.T) {
	writer := &fakeWriter{err: fmt.Errorf("broker unavailable")}
	pub := NewPublisherWithWriter(writer, "tariffwise.classifications", logging.NewNopLogger())

	err := pub.PublishCompleted(context.Background(), engine.CompletedEvent{ConversationID: "x"})
	require.Error(t, err)
}

func TestNewPublisherValidation(t *testing.T) {
	_, err := NewPublisher(config.KafkaConfig{Topic: "t"}, logging.NewNopLogger())
	require.Error(t, err)

	_, err = NewPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, logging.NewNopLogger())
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewPublisherWithWriter(writer, "t", logging.NewNopLogger())
	require.NoError(t, pub.Close())
	assert.True(t, writer.closed)
}
