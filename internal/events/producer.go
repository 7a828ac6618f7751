package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// Publisher abstracts event publication so services stay testable and the
// broker stays optional in development.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, env Envelope) error
	Close() error
}

// KafkaPublisher writes envelopes to Kafka.
type KafkaPublisher struct {
	w      *kafka.Writer
	logger *slog.Logger
}

// NewKafkaPublisher builds a publisher over the given brokers. The topic is
// selected per message.
func NewKafkaPublisher(brokers []string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		logger: logger,
	}
}

// Publish marshals and writes one envelope.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, key []byte, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  env.OccurredAt,
	})
	if err != nil && p.logger != nil {
		p.logger.Error("publish event", slog.String("topic", topic), slog.Any("error", err))
	}
	return err
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// NopPublisher discards events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, []byte, Envelope) error { return nil }
func (NopPublisher) Close() error                                            { return nil }
