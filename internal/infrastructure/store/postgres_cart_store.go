package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/example/ec-store-sync/internal/model"
)

// PostgresCartStore gives typed access to the cart service database: the
// carts table (source of the cart->order pipeline) and the products replica
// table (target of the product pipeline). Reconciliation is the only writer
// of the products replica; carts are read-only here.
type PostgresCartStore struct {
	db *sql.DB
}

func NewPostgresCartStore(db *sql.DB) *PostgresCartStore {
	return &PostgresCartStore{db: db}
}

func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// ListCarts returns all cart rows joined with their product replica,
// flattened into the pipeline source shape. Carts whose product replica has
// not been synced yet fall back to placeholder product fields rather than
// being dropped. userID scopes the extract to a single user when non-empty.
func (s *PostgresCartStore) ListCarts(ctx context.Context, userID string) ([]model.CartWithProduct, error) {
	query := `
		SELECT c.id, c.user_id, c.quantity, c.version,
		       COALESCE(p.id, c.product_id),
		       COALESCE(p.title, 'Unknown'),
		       COALESCE(p.price, 0),
		       COALESCE(p.image, ''),
		       COALESCE(p.seller_id, 'unknown'),
		       COALESCE(p.quantity, 0)
		FROM carts c
		LEFT JOIN products p ON p.id = c.product_id
	`
	var args []any
	if userID != "" {
		query += " WHERE c.user_id = $1"
		args = append(args, userID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list carts: %w", err)
	}
	defer rows.Close()

	var carts []model.CartWithProduct
	for rows.Next() {
		var c model.CartWithProduct
		if err := rows.Scan(&c.CartID, &c.UserID, &c.CartQuantity, &c.Version,
			&c.ProductID, &c.ProductTitle, &c.ProductPrice, &c.ProductImage,
			&c.SellerID, &c.ProductQuantity); err != nil {
			return nil, fmt.Errorf("failed to scan cart row: %w", err)
		}
		carts = append(carts, c)
	}
	return carts, rows.Err()
}

// ListProducts returns every product replica row.
func (s *PostgresCartStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, price, image, seller_id, quantity FROM products
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list product replicas: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Price, &p.Image, &p.SellerID, &p.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// BulkUpsertProducts writes a batch of product replicas in one statement,
// overwriting existing rows in full (the replica carries no version).
func (s *PostgresCartStore) BulkUpsertProducts(ctx context.Context, products []model.Product) error {
	if len(products) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO products (id, title, price, image, seller_id, quantity) VALUES ")

	args := make([]any, 0, len(products)*6)
	for i, p := range products {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 6
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args, p.ID, p.Title, p.Price, p.Image, p.SellerID, p.Quantity)
	}

	sb.WriteString(`
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			image = EXCLUDED.image,
			seller_id = EXCLUDED.seller_id,
			quantity = EXCLUDED.quantity
	`)

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to upsert product batch: %w", err)
	}
	return nil
}
