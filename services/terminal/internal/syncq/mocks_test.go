package syncq

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/opentill/opentill/services/terminal/internal/pos"
)

// MockStorage is an in-memory stand-in for the local store. Records come
// back ordered by id, matching the real store's scan order.
type MockStorage struct {
	mu         sync.Mutex
	records    map[string]map[string]json.RawMessage
	PutFunc    func(ctx context.Context, collection, id string, v any) error
	GetAllFunc func(ctx context.Context, collection string, out any) error
	DeleteFunc func(ctx context.Context, collection, id string) error
}

func NewMockStorage() *MockStorage {
	return &MockStorage{records: make(map[string]map[string]json.RawMessage)}
}

func (m *MockStorage) Put(ctx context.Context, collection, id string, v any) error {
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

func (m *MockStorage) GetAll(ctx context.Context, collection string, out any) error {
	if m.GetAllFunc != nil {
		return m.GetAllFunc(ctx, collection, out)
	}
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

func (m *MockStorage) Delete(ctx context.Context, collection, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, collection, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records[collection], id)
	return nil
}

func (m *MockStorage) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records[collection])
}

// MockDispatcher records every remote call in order and can be told to fail.
type MockDispatcher struct {
	mu    sync.Mutex
	Calls []string

	AddUserFunc        func(ctx context.Context, user pos.User) error
	AddMenuItemFunc    func(ctx context.Context, item pos.MenuItem) error
	UpdateMenuItemFunc func(ctx context.Context, item pos.MenuItem) error
	AddSaleFunc        func(ctx context.Context, sale pos.Sale) error
	SetTaxRateFunc     func(ctx context.Context, rate float64) error
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

func (m *MockDispatcher) called(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, name)
}

func (m *MockDispatcher) CallNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

func (m *MockDispatcher) AddUser(ctx context.Context, user pos.User) error {
	m.called("add_user:" + user.Username)
	if m.AddUserFunc != nil {
		return m.AddUserFunc(ctx, user)
	}
	return nil
}

func (m *MockDispatcher) DeleteUser(ctx context.Context, id uuid.UUID) error {
	m.called("delete_user")
	return nil
}

func (m *MockDispatcher) AddMenuItem(ctx context.Context, item pos.MenuItem) error {
	m.called("add_menu_item:" + item.Name)
	if m.AddMenuItemFunc != nil {
		return m.AddMenuItemFunc(ctx, item)
	}
	return nil
}

func (m *MockDispatcher) UpdateMenuItem(ctx context.Context, item pos.MenuItem) error {
	m.called("update_menu_item:" + item.Name)
	if m.UpdateMenuItemFunc != nil {
		return m.UpdateMenuItemFunc(ctx, item)
	}
	return nil
}

func (m *MockDispatcher) DeleteMenuItem(ctx context.Context, id uuid.UUID) error {
	m.called("delete_menu_item")
	return nil
}

func (m *MockDispatcher) AddCategory(ctx context.Context, category pos.MenuCategory) error {
	m.called("add_category:" + category.Name)
	return nil
}

func (m *MockDispatcher) UpdateCategory(ctx context.Context, category pos.MenuCategory) error {
	m.called("update_category:" + category.Name)
	return nil
}

func (m *MockDispatcher) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	m.called("delete_category")
	return nil
}

func (m *MockDispatcher) AddSale(ctx context.Context, sale pos.Sale) error {
	m.called("add_sale:" + sale.ID)
	if m.AddSaleFunc != nil {
		return m.AddSaleFunc(ctx, sale)
	}
	return nil
}

func (m *MockDispatcher) AddHistory(ctx context.Context, entry pos.HistoryEntry) error {
	m.called("add_history")
	return nil
}

func (m *MockDispatcher) SetTaxRate(ctx context.Context, rate float64) error {
	m.called("set_tax_rate")
	if m.SetTaxRateFunc != nil {
		return m.SetTaxRateFunc(ctx, rate)
	}
	return nil
}
