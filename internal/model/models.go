package model

import "time"

// Product is a catalog product. The same shape is used for the document in
// the product service store and for the replica row kept by the cart service;
// the replica carries no independent identity or version and is refreshed by
// full-row overwrite during reconciliation.
type Product struct {
	ID       string `json:"id" bson:"_id"`
	Title    string `json:"title" bson:"title"`
	Price    int    `json:"price" bson:"price"`
	Image    string `json:"image" bson:"image"`
	SellerID string `json:"seller_id" bson:"seller_id"`
	Quantity int    `json:"quantity" bson:"quantity"`
}

// CartWithProduct is a cart row joined with its product replica, flattened
// into the shape the cart->order pipeline reads from the cart store.
type CartWithProduct struct {
	CartID          string `json:"cart_id"`
	UserID          string `json:"user_id"`
	CartQuantity    int    `json:"cart_quantity"`
	Version         int    `json:"version"`
	ProductID       string `json:"product_id"`
	ProductTitle    string `json:"product_title"`
	ProductPrice    int    `json:"product_price"`
	ProductImage    string `json:"product_image"`
	SellerID        string `json:"seller_id"`
	ProductQuantity int    `json:"product_quantity"`
}

// CartSnapshot is the denormalized cart replica held by the order side.
// Exactly one snapshot exists per CartID; Version never decreases and
// advances by one on every legitimate update.
type CartSnapshot struct {
	CartID          string    `json:"cart_id"`
	UserID          string    `json:"user_id"`
	ProductID       string    `json:"product_id"`
	ProductTitle    string    `json:"product_title"`
	ProductPrice    int       `json:"product_price"`
	ProductImage    string    `json:"product_image"`
	SellerID        string    `json:"seller_id"`
	ProductQuantity int       `json:"product_quantity"`
	CartQuantity    int       `json:"cart_quantity"`
	Total           int       `json:"total"`
	Version         int       `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Snapshot converts a source cart row into the target replica shape. Both
// write paths (listener and reconciliation) must produce the same key and
// version semantics, so this is the single transformation they share.
func (c CartWithProduct) Snapshot(now time.Time) CartSnapshot {
	return CartSnapshot{
		CartID:          c.CartID,
		UserID:          c.UserID,
		ProductID:       c.ProductID,
		ProductTitle:    c.ProductTitle,
		ProductPrice:    c.ProductPrice,
		ProductImage:    c.ProductImage,
		SellerID:        c.SellerID,
		ProductQuantity: c.ProductQuantity,
		CartQuantity:    c.CartQuantity,
		Total:           c.ProductPrice * c.CartQuantity,
		Version:         c.Version,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
