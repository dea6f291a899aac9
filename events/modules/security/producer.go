// Package security handles Kafka event production for recorded security events.
package security

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ortelius/storefront-guard/model"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by the producer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer sends security events to Kafka
type Producer struct {
	Writer   MessageWriter
	Instance string
}

// NewProducer wraps a Kafka writer
func NewProducer(writer MessageWriter, instance string) *Producer {
	return &Producer{Writer: writer, Instance: instance}
}

// PublishSecurityEvent sends the event keyed by its source so that events from
// one caller stay ordered within a partition
func (p *Producer) PublishSecurityEvent(ctx context.Context, event model.SecurityEvent) error {

	envelope := SecurityEventRecorded{
		EventType:     EventTypeRecorded,
		EventID:       uuid.New().String(),
		EventTime:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Instance:      p.Instance,
		Event:         event,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Source),
		Value: payload,
	})
}

// Close cleans up the Kafka writer
func (p *Producer) Close() error {
	return p.Writer.Close()
}
