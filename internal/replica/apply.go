package replica

import (
	"time"

	"github.com/example/ec-store-sync/internal/events"
	"github.com/example/ec-store-sync/internal/model"
)

// Outcome classifies the effect of applying a lifecycle event to the current
// snapshot state.
type Outcome int

const (
	// OutcomeApplied means the snapshot was created or advanced one version.
	OutcomeApplied Outcome = iota
	// OutcomeDuplicate means a Create arrived for a cart that already has a
	// snapshot; the upsert is repeated, which is harmless.
	OutcomeDuplicate
	// OutcomeSkipped means the required prior version is absent. The event
	// is dropped and the gap is left for reconciliation to close.
	OutcomeSkipped
	// OutcomeRemoved means the snapshot was deleted.
	OutcomeRemoved
	// OutcomeAlreadyGone means a Delete arrived for a snapshot that is
	// absent or past the expected version; already consistent.
	OutcomeAlreadyGone
)

// The apply functions are pure: they map (current snapshot or nil, payload)
// to the next snapshot state without touching any store, so each transition
// is testable without a broker or a database.

func applyCreate(current *model.CartSnapshot, e events.CartCreated, now time.Time) (model.CartSnapshot, Outcome) {
	next := snapshotFromEvent(e.CartID, e.UserID, e.Product, e.CartQuantity, e.Total, e.Version, now)
	if current != nil {
		next.CreatedAt = current.CreatedAt
		return next, OutcomeDuplicate
	}
	return next, OutcomeApplied
}

func applyUpdate(current *model.CartSnapshot, e events.CartUpdated, now time.Time) (*model.CartSnapshot, Outcome) {
	if current == nil || current.Version != e.Version-1 {
		return nil, OutcomeSkipped
	}
	next := snapshotFromEvent(e.CartID, e.UserID, e.Product, e.CartQuantity, e.Total, e.Version, now)
	next.CreatedAt = current.CreatedAt
	return &next, OutcomeApplied
}

func applyDelete(current *model.CartSnapshot, e events.CartDeleted) Outcome {
	if current == nil || current.Version != e.Version-1 {
		return OutcomeAlreadyGone
	}
	return OutcomeRemoved
}

func snapshotFromEvent(cartID, userID string, p events.ProductPayload, cartQuantity, total, version int, now time.Time) model.CartSnapshot {
	return model.CartSnapshot{
		CartID:          cartID,
		UserID:          userID,
		ProductID:       p.ID,
		ProductTitle:    p.Title,
		ProductPrice:    p.Price,
		ProductImage:    p.Image,
		SellerID:        p.SellerID,
		ProductQuantity: p.Quantity,
		CartQuantity:    cartQuantity,
		Total:           total,
		Version:         version,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
