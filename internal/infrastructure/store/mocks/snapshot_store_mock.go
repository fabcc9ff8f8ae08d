package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/example/ec-store-sync/internal/infrastructure/store"
	"github.com/example/ec-store-sync/internal/model"
)

// MockSnapshotStore is an in-memory stand-in for the DynamoDB snapshot store
type MockSnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]model.CartSnapshot

	// For tracking calls in tests
	PutCalls        []model.CartSnapshot
	UpdateCalls     []UpdateCall
	DeleteCalls     []DeleteCall
	BulkInsertCalls int

	// Failure injection
	GetErr               error
	PutErr               error
	UpdateErr            error
	ListErr              error
	FailBulkInsertOnCall int // 1-based call number that fails; 0 disables
	BulkInsertErr        error
}

// UpdateCall records parameters passed to UpdateIfVersion
type UpdateCall struct {
	CartID   string
	Expected int
	Snapshot model.CartSnapshot
}

// DeleteCall records parameters passed to DeleteIfVersion
type DeleteCall struct {
	CartID   string
	Expected int
}

func NewMockSnapshotStore() *MockSnapshotStore {
	return &MockSnapshotStore{snapshots: make(map[string]model.CartSnapshot)}
}

// Seed inserts snapshots without recording calls.
func (m *MockSnapshotStore) Seed(snapshots ...model.CartSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range snapshots {
		m.snapshots[s.CartID] = s
	}
}

func (m *MockSnapshotStore) Get(ctx context.Context, cartID string) (*model.CartSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	snap, ok := m.snapshots[cartID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *MockSnapshotStore) Put(ctx context.Context, snap model.CartSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PutCalls = append(m.PutCalls, snap)
	if m.PutErr != nil {
		return m.PutErr
	}
	m.snapshots[snap.CartID] = snap
	return nil
}

func (m *MockSnapshotStore) UpdateIfVersion(ctx context.Context, cartID string, expected int, snap model.CartSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateCalls = append(m.UpdateCalls, UpdateCall{CartID: cartID, Expected: expected, Snapshot: snap})
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	current, ok := m.snapshots[cartID]
	if !ok || current.Version != expected {
		return store.ErrVersionMismatch
	}
	m.snapshots[cartID] = snap
	return nil
}

func (m *MockSnapshotStore) DeleteIfVersion(ctx context.Context, cartID string, expected int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteCalls = append(m.DeleteCalls, DeleteCall{CartID: cartID, Expected: expected})
	current, ok := m.snapshots[cartID]
	if !ok || current.Version != expected {
		return store.ErrVersionMismatch
	}
	delete(m.snapshots, cartID)
	return nil
}

func (m *MockSnapshotStore) List(ctx context.Context, userID string) ([]model.CartSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []model.CartSnapshot
	for _, s := range m.snapshots {
		if userID == "" || s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CartID < out[j].CartID })
	return out, nil
}

func (m *MockSnapshotStore) BulkInsert(ctx context.Context, snapshots []model.CartSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.BulkInsertCalls++
	if m.FailBulkInsertOnCall == m.BulkInsertCalls && m.BulkInsertErr != nil {
		return m.BulkInsertErr
	}
	for _, s := range snapshots {
		m.snapshots[s.CartID] = s
	}
	return nil
}

// Len returns the number of stored snapshots.
func (m *MockSnapshotStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}
