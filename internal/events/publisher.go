package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Producer publishes a keyed message to the broker.
type Producer interface {
	Publish(ctx context.Context, key string, event any) error
}

// Publisher emits cart lifecycle events on behalf of the cart store. Messages
// are keyed by cart ID; ordering across redeliveries is not guaranteed, the
// consumer's version gate is what makes that safe.
type Publisher struct {
	producer Producer
}

func NewPublisher(producer Producer) *Publisher {
	return &Publisher{producer: producer}
}

func (p *Publisher) PublishCartCreated(ctx context.Context, e CartCreated) error {
	return p.publish(ctx, e.CartID, TypeCartCreated, e)
}

func (p *Publisher) PublishCartUpdated(ctx context.Context, e CartUpdated) error {
	return p.publish(ctx, e.CartID, TypeCartUpdated, e)
}

func (p *Publisher) PublishCartDeleted(ctx context.Context, e CartDeleted) error {
	return p.publish(ctx, e.CartID, TypeCartDeleted, e)
}

func (p *Publisher) publish(ctx context.Context, key, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", eventType, err)
	}

	envelope := Envelope{
		ID:         uuid.New().String(),
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}

	return p.producer.Publish(ctx, key, envelope)
}
