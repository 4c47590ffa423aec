package ops

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/opentill/opentill/services/terminal/internal/pos"
	"github.com/opentill/opentill/services/terminal/internal/syncq"
)

// MockCache is an in-memory Cache.
type MockCache struct {
	mu       sync.Mutex
	records  map[string]map[string]json.RawMessage
	settings map[string]json.RawMessage
	PutFunc  func(ctx context.Context, collection, id string, v any) error
}

func NewMockCache() *MockCache {
	return &MockCache{
		records:  make(map[string]map[string]json.RawMessage),
		settings: make(map[string]json.RawMessage),
	}
}

func (m *MockCache) Put(ctx context.Context, collection, id string, v any) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, collection, id, v)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[collection] == nil {
		m.records[collection] = make(map[string]json.RawMessage)
	}
	m.records[collection][id] = raw
	return nil
}

func (m *MockCache) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records[collection], id)
	return nil
}

func (m *MockCache) GetAll(ctx context.Context, collection string, out any) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.records[collection]))
	for id := range m.records[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, string(m.records[collection][id]))
	}
	m.mu.Unlock()
	return json.Unmarshal([]byte("["+strings.Join(parts, ",")+"]"), out)
}

func (m *MockCache) PutSetting(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = raw
	return nil
}

func (m *MockCache) GetSetting(ctx context.Context, key string, out any) (bool, error) {
	m.mu.Lock()
	raw, found := m.settings[key]
	m.mu.Unlock()
	if !found {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (m *MockCache) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records[collection])
}

// MockRecorder records enqueued kinds and drain triggers.
type MockRecorder struct {
	mu          sync.Mutex
	Kinds       []syncq.Kind
	AsyncDrains int
	EnqueueFunc func(ctx context.Context, kind syncq.Kind, payload any) (*syncq.Mutation, error)
}

func (m *MockRecorder) Enqueue(ctx context.Context, kind syncq.Kind, payload any) (*syncq.Mutation, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, kind, payload)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Kinds = append(m.Kinds, kind)
	return &syncq.Mutation{Kind: kind}, nil
}

func (m *MockRecorder) DrainAsync() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AsyncDrains++
}

func (m *MockRecorder) EnqueuedKinds() []syncq.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]syncq.Kind(nil), m.Kinds...)
}

// MockLedger serves canned remote logs and records bulk reorders.
type MockLedger struct {
	GetSalesFunc   func(ctx context.Context) ([]pos.Sale, error)
	GetHistoryFunc func(ctx context.Context) ([]pos.HistoryEntry, error)
	ReorderFunc    func(ctx context.Context, ids []uuid.UUID) error
	ReorderedIDs   [][]uuid.UUID
}

func (m *MockLedger) GetSales(ctx context.Context) ([]pos.Sale, error) {
	if m.GetSalesFunc != nil {
		return m.GetSalesFunc(ctx)
	}
	return nil, errors.New("remote unavailable")
}

func (m *MockLedger) GetHistory(ctx context.Context) ([]pos.HistoryEntry, error) {
	if m.GetHistoryFunc != nil {
		return m.GetHistoryFunc(ctx)
	}
	return nil, errors.New("remote unavailable")
}

func (m *MockLedger) Reorder(ctx context.Context, ids []uuid.UUID) error {
	if m.ReorderFunc != nil {
		return m.ReorderFunc(ctx, ids)
	}
	m.ReorderedIDs = append(m.ReorderedIDs, ids)
	return nil
}

// MockFanout records session notifications.
type MockFanout struct {
	mu            sync.Mutex
	online        bool
	MutatedTables []int
	Resized       int
	Sales         []*pos.Sale
	Tickets       []*pos.Ticket
	Receipts      []*pos.Sale
	ResyncFunc    func(ctx context.Context) error
}

func NewMockFanout(online bool) *MockFanout {
	return &MockFanout{online: online}
}

func (m *MockFanout) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *MockFanout) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = online
}

func (m *MockFanout) Resync(ctx context.Context) error {
	if m.ResyncFunc != nil {
		return m.ResyncFunc(ctx)
	}
	return nil
}

func (m *MockFanout) TableMutated(ctx context.Context, tableID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MutatedTables = append(m.MutatedTables, tableID)
}

func (m *MockFanout) TablesResized(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resized++
}

func (m *MockFanout) SaleFinalized(ctx context.Context, sale *pos.Sale) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sales = append(m.Sales, sale)
}

func (m *MockFanout) EmitTicket(ctx context.Context, ticket *pos.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tickets = append(m.Tickets, ticket)
}

func (m *MockFanout) EmitReceipt(ctx context.Context, sale *pos.Sale) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Receipts = append(m.Receipts, sale)
}

func (m *MockFanout) Mutated() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.MutatedTables...)
}
