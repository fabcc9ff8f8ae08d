package events

import (
	"encoding/json"
	"time"
)

const (
	TypeCartCreated = "CartCreated"
	TypeCartUpdated = "CartUpdated"
	TypeCartDeleted = "CartDeleted"
)

// Envelope wraps a cart lifecycle payload on the wire.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// ProductPayload is the denormalized product carried inside cart events.
type ProductPayload struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Price    int    `json:"price"`
	Image    string `json:"image"`
	SellerID string `json:"seller_id"`
	Quantity int    `json:"quantity"`
}

// CartCreated announces a new cart row. Version is normally 0.
type CartCreated struct {
	CartID       string         `json:"cart_id"`
	UserID       string         `json:"user_id"`
	Product      ProductPayload `json:"product"`
	CartQuantity int            `json:"cart_quantity"`
	Total        int            `json:"total"`
	Version      int            `json:"version"`
}

// CartUpdated carries the full new state of the cart at Version; consumers
// require the replica to be at Version-1 before applying it.
type CartUpdated struct {
	CartID       string         `json:"cart_id"`
	UserID       string         `json:"user_id"`
	Product      ProductPayload `json:"product"`
	CartQuantity int            `json:"cart_quantity"`
	Total        int            `json:"total"`
	Version      int            `json:"version"`
}

type CartDeleted struct {
	CartID  string `json:"cart_id"`
	UserID  string `json:"user_id"`
	Version int    `json:"version"`
}
