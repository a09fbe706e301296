// Package kafka publishes terminal classification events to the event bus.
// Publishing is best effort from the engine's point of view: downstream
// consumers (billing, analytics, compliance review) tolerate gaps, so a
// broker outage must never fail a classification.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/tariffwise/internal/classify/engine"
	"github.com/turtacn/tariffwise/internal/config"
	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/pkg/errors"
)

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes classification-completed events. It implements
// engine.EventPublisher.
type Publisher struct {
	writer WriterInterface
	topic  string
	logger logging.Logger
}

// NewPublisher builds a publisher from config. Messages are keyed by
// conversation ID so replays of one conversation stay ordered per partition.
func NewPublisher(cfg config.KafkaConfig, logger logging.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New(errors.ErrCodeValidation, "kafka: topic is required")
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = 100 * time.Millisecond
	}
	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)
	switch requiredAcks {
	case kafka.RequireNone, kafka.RequireOne, kafka.RequireAll:
	default:
		requiredAcks = kafka.RequireOne
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: requiredAcks,
		Compression:  kafka.Snappy,
	}

	return &Publisher{
		writer: writer,
		topic:  cfg.Topic,
		logger: logger.Named("kafka"),
	}, nil
}

// NewPublisherWithWriter injects a prebuilt writer. Test constructor.
func NewPublisherWithWriter(writer WriterInterface, topic string, logger logging.Logger) *Publisher {
	return &Publisher{writer: writer, topic: topic, logger: logger.Named("kafka")}
}

// PublishCompleted writes one classification-completed event.
func (p *Publisher) PublishCompleted(ctx context.Context, ev engine.CompletedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "kafka: failed to encode event")
	}

	msg := kafka.Message{
		Key:   []byte(ev.ConversationID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("classification.completed")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "kafka: failed to publish event")
	}

	p.logger.Debug("classification event published",
		logging.String("conversation_id", ev.ConversationID),
		logging.String("code", ev.Code))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
