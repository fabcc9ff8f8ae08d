package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/example/ec-store-sync/internal/model"
)

// MockProductSource is an in-memory product catalog (the Mongo side).
type MockProductSource struct {
	Products []model.Product
	Err      error
}

func (m *MockProductSource) ListProducts(ctx context.Context) ([]model.Product, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Products, nil
}

// MockProductReplicaStore is an in-memory product replica table (the
// Postgres side).
type MockProductReplicaStore struct {
	mu       sync.Mutex
	replicas map[string]model.Product

	UpsertCalls      int
	FailUpsertOnCall int // 1-based call number that fails; 0 disables
	UpsertErr        error
	ListErr          error
}

func NewMockProductReplicaStore() *MockProductReplicaStore {
	return &MockProductReplicaStore{replicas: make(map[string]model.Product)}
}

// Seed inserts replicas without recording calls.
func (m *MockProductReplicaStore) Seed(products ...model.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range products {
		m.replicas[p.ID] = p
	}
}

func (m *MockProductReplicaStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]model.Product, 0, len(m.replicas))
	for _, p := range m.replicas {
		out = append(out, p)
	}
	return out, nil
}

func (m *MockProductReplicaStore) BulkUpsertProducts(ctx context.Context, products []model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpsertCalls++
	if m.FailUpsertOnCall == m.UpsertCalls && m.UpsertErr != nil {
		return m.UpsertErr
	}
	for _, p := range products {
		m.replicas[p.ID] = p
	}
	return nil
}

// Len returns the number of stored replicas.
func (m *MockProductReplicaStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replicas)
}

// MockCartSource is an in-memory cart store extract (the Postgres side).
type MockCartSource struct {
	Carts []model.CartWithProduct
	Err   error
}

func (m *MockCartSource) ListCarts(ctx context.Context, userID string) ([]model.CartWithProduct, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if userID == "" {
		return m.Carts, nil
	}
	var out []model.CartWithProduct
	for _, c := range m.Carts {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

// MockSyncLog records run results in memory.
type MockSyncLog struct {
	mu      sync.Mutex
	Results map[string]any
	Times   map[string]time.Time
}

func NewMockSyncLog() *MockSyncLog {
	return &MockSyncLog{Results: make(map[string]any), Times: make(map[string]time.Time)}
}

func (m *MockSyncLog) Record(ctx context.Context, pipeline string, result any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results[pipeline] = result
	m.Times[pipeline] = time.Now()
	return nil
}

func (m *MockSyncLog) LastSyncTime(ctx context.Context, pipeline string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Times[pipeline], nil
}
