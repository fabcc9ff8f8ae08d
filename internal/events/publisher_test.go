package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	keys   []string
	values []any
}

func (f *fakeProducer) Publish(ctx context.Context, key string, event any) error {
	f.keys = append(f.keys, key)
	f.values = append(f.values, event)
	return nil
}

func TestPublisher_KeysByCartID(t *testing.T) {
	producer := &fakeProducer{}
	publisher := NewPublisher(producer)
	ctx := context.Background()

	require.NoError(t, publisher.PublishCartCreated(ctx, CartCreated{CartID: "cart-1", UserID: "user-1"}))
	require.NoError(t, publisher.PublishCartUpdated(ctx, CartUpdated{CartID: "cart-1", UserID: "user-1", Version: 1}))
	require.NoError(t, publisher.PublishCartDeleted(ctx, CartDeleted{CartID: "cart-2", UserID: "user-1", Version: 1}))

	assert.Equal(t, []string{"cart-1", "cart-1", "cart-2"}, producer.keys)
}

func TestPublisher_WrapsPayloadInEnvelope(t *testing.T) {
	producer := &fakeProducer{}
	publisher := NewPublisher(producer)

	require.NoError(t, publisher.PublishCartUpdated(context.Background(), CartUpdated{
		CartID:  "cart-1",
		UserID:  "user-1",
		Version: 3,
	}))

	require.Len(t, producer.values, 1)
	envelope, ok := producer.values[0].(Envelope)
	require.True(t, ok)
	assert.Equal(t, TypeCartUpdated, envelope.Type)
	assert.NotEmpty(t, envelope.ID)
	assert.False(t, envelope.OccurredAt.IsZero())

	var payload CartUpdated
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, "cart-1", payload.CartID)
	assert.Equal(t, 3, payload.Version)
}
