// Package events publishes contract lifecycle events for downstream
// collaborators (notifications, chat, document rendering).
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventQuoted           EventType = "QUOTED"
	EventContractCreated  EventType = "CONTRACT_CREATED"
	EventDepositConfirmed EventType = "DEPOSIT_CONFIRMED"
	EventReserved         EventType = "RESERVED"
	EventConsumed         EventType = "CONSUMED"
	EventCancelled        EventType = "CANCELLED"
	EventExpired          EventType = "EXPIRED"
)

// Event is one lifecycle transition, keyed by order so all events of one
// order land in the same partition, in order.
type Event struct {
	Type       EventType  `json:"type"`
	OrderID    uuid.UUID  `json:"order_id"`
	ContractID *uuid.UUID `json:"contract_id,omitempty"`
	At         time.Time  `json:"at"`
	Detail     string     `json:"detail,omitempty"`
}

// Publisher is the narrow surface the workflow needs; nil-able in tests.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) Publish(ctx context.Context, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.OrderID.String()), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
