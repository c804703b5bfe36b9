// Package events publishes credential lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"certledger/internal/credential/models"
	"certledger/internal/platform/kafka/producer"
	"certledger/internal/platform/outbox"
)

// Type names a lifecycle transition.
type Type string

const (
	TypeCreated Type = "credential.created"
	TypeMinted  Type = "credential.minted"
	TypePending Type = "credential.mint_pending"
	TypeRevoked Type = "credential.revoked"
)

// HeaderEventType carries the event type so consumers can filter without decoding.
const HeaderEventType = "event_type"

// Event is the JSON payload written to the topic, keyed by credential code.
type Event struct {
	Type       Type          `json:"type"`
	Code       string        `json:"credentialCode"`
	Status     models.Status `json:"status"`
	PolicyID   string        `json:"policyId,omitempty"`
	AssetID    string        `json:"assetId,omitempty"`
	TxHash     string        `json:"txHash,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// FromCredential builds an event describing c's current state.
func FromCredential(t Type, c *models.Credential, at time.Time) Event {
	return Event{
		Type:       t,
		Code:       c.Code,
		Status:     c.Status,
		PolicyID:   c.PolicyID,
		AssetID:    c.AssetID,
		TxHash:     c.TxHash,
		Reason:     c.RevocationReason,
		OccurredAt: at.UTC(),
	}
}

// Decode parses an event payload.
func Decode(value []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(value, &e); err != nil {
		return Event{}, fmt.Errorf("decode credential event: %w", err)
	}
	return e, nil
}

// Producer is the subset of the Kafka producer the publisher needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Publisher writes events to one topic.
type Publisher struct {
	producer Producer
	topic    string
}

func NewPublisher(p Producer, topic string) *Publisher {
	return &Publisher{producer: p, topic: topic}
}

func (p *Publisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode credential event: %w", err)
	}
	return p.producer.Produce(ctx, &producer.Message{
		Topic:   p.topic,
		Key:     []byte(e.Code),
		Value:   value,
		Headers: map[string]string{HeaderEventType: string(e.Type)},
	})
}

// AggregateType tags outbox entries written for credentials.
const AggregateType = "credential"

// Appender is the subset of an outbox store the relay publisher needs.
type Appender interface {
	Append(ctx context.Context, entry *outbox.Entry) error
}

// OutboxPublisher appends events to the outbox; an outbox.Worker relays them
// to Kafka with the same key and event type header as Publisher.
type OutboxPublisher struct {
	store Appender
}

func NewOutboxPublisher(store Appender) *OutboxPublisher {
	return &OutboxPublisher{store: store}
}

func (p *OutboxPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode credential event: %w", err)
	}
	return p.store.Append(ctx, outbox.NewEntry(AggregateType, e.Code, string(e.Type), value))
}
