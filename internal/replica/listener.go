package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/ec-store-sync/internal/events"
	"github.com/example/ec-store-sync/internal/infrastructure/store"
	"github.com/example/ec-store-sync/internal/model"
)

// SnapshotStore is the order-side replica written by the listener. The
// version-gated operations return store.ErrVersionMismatch on a
// precondition miss.
type SnapshotStore interface {
	Get(ctx context.Context, cartID string) (*model.CartSnapshot, error)
	Put(ctx context.Context, snap model.CartSnapshot) error
	UpdateIfVersion(ctx context.Context, cartID string, expected int, snap model.CartSnapshot) error
	DeleteIfVersion(ctx context.Context, cartID string, expected int) error
}

// Listener applies cart lifecycle events to the snapshot replica.
//
// Returning nil acknowledges the message (the consumer commits the offset);
// that covers success, duplicates and precondition misses alike, since all
// three are definitive outcomes. Only transient failures (store unavailable,
// serialization error) return an error, which makes the consumer redeliver
// the same message until it is handled.
type Listener struct {
	snapshots SnapshotStore
}

func NewListener(snapshots SnapshotStore) *Listener {
	return &Listener{snapshots: snapshots}
}

func (l *Listener) HandleMessage(ctx context.Context, key, value []byte) error {
	var envelope events.Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	log.Printf("[Replicator] Received event: %s (cart: %s)", envelope.Type, string(key))

	switch envelope.Type {
	case events.TypeCartCreated:
		var e events.CartCreated
		if err := json.Unmarshal(envelope.Data, &e); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", envelope.Type, err)
		}
		return l.handleCreated(ctx, e)

	case events.TypeCartUpdated:
		var e events.CartUpdated
		if err := json.Unmarshal(envelope.Data, &e); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", envelope.Type, err)
		}
		return l.handleUpdated(ctx, e)

	case events.TypeCartDeleted:
		var e events.CartDeleted
		if err := json.Unmarshal(envelope.Data, &e); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", envelope.Type, err)
		}
		return l.handleDeleted(ctx, e)
	}

	log.Printf("[Replicator] Ignoring unknown event type: %s", envelope.Type)
	return nil
}

func (l *Listener) handleCreated(ctx context.Context, e events.CartCreated) error {
	current, err := l.snapshots.Get(ctx, e.CartID)
	if err != nil {
		return err
	}

	next, outcome := applyCreate(current, e, time.Now())
	if outcome == OutcomeDuplicate {
		log.Printf("[Replicator] Duplicate create for cart %s, upserting again", e.CartID)
	}

	if err := l.snapshots.Put(ctx, next); err != nil {
		return err
	}

	log.Printf("[Replicator] Snapshot created for cart %s (version %d)", e.CartID, e.Version)
	return nil
}

func (l *Listener) handleUpdated(ctx context.Context, e events.CartUpdated) error {
	current, err := l.snapshots.Get(ctx, e.CartID)
	if err != nil {
		return err
	}

	next, outcome := applyUpdate(current, e, time.Now())
	if outcome == OutcomeSkipped {
		log.Printf("[Replicator] Dropping update for cart %s: snapshot not at version %d, reconciliation will repair", e.CartID, e.Version-1)
		return nil
	}

	if err := l.snapshots.UpdateIfVersion(ctx, e.CartID, e.Version-1, *next); err != nil {
		if errors.Is(err, store.ErrVersionMismatch) {
			// Lost a race between Get and the conditional write.
			log.Printf("[Replicator] Dropping update for cart %s: version moved under us", e.CartID)
			return nil
		}
		return err
	}

	log.Printf("[Replicator] Snapshot updated for cart %s (version %d)", e.CartID, e.Version)
	return nil
}

func (l *Listener) handleDeleted(ctx context.Context, e events.CartDeleted) error {
	current, err := l.snapshots.Get(ctx, e.CartID)
	if err != nil {
		return err
	}

	if outcome := applyDelete(current, e); outcome == OutcomeAlreadyGone {
		log.Printf("[Replicator] Delete for cart %s: snapshot not at version %d, nothing to do", e.CartID, e.Version-1)
		return nil
	}

	if err := l.snapshots.DeleteIfVersion(ctx, e.CartID, e.Version-1); err != nil {
		if errors.Is(err, store.ErrVersionMismatch) {
			log.Printf("[Replicator] Delete for cart %s: already gone", e.CartID)
			return nil
		}
		return err
	}

	log.Printf("[Replicator] Snapshot deleted for cart %s", e.CartID)
	return nil
}
