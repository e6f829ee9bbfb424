// Package kafka publishes domain events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fundpool/fundpool/internal/interfaces"
)

// envelope wraps every event with its type so consumers can demultiplex a
// single topic.
type envelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, eventType string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	value, err := json.Marshal(envelope{
		Type:       eventType,
		OccurredAt: time.Now(),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(eventType),
		Value: value,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Compile-time check: Publisher implements the event boundary.
var _ interfaces.EventPublisher = (*Publisher)(nil)
