package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/opentill/opentill/services/terminal/internal/catalog"
	"github.com/opentill/opentill/services/terminal/internal/store"
	"github.com/opentill/opentill/services/terminal/internal/syncq"
)

// MockRemote is a test stand-in for the catalog client's bootstrap call.
type MockRemote struct {
	BootstrapFunc func(ctx context.Context) (*catalog.Snapshot, error)
}

func (m *MockRemote) Bootstrap(ctx context.Context) (*catalog.Snapshot, error) {
	if m.BootstrapFunc != nil {
		return m.BootstrapFunc(ctx)
	}
	return nil, errors.New("no bootstrap configured")
}

// MockPending serves a fixed mutation list.
type MockPending struct {
	Mutations   []syncq.Mutation
	PendingFunc func(ctx context.Context) ([]syncq.Mutation, error)
}

func (m *MockPending) Pending(ctx context.Context) ([]syncq.Mutation, error) {
	if m.PendingFunc != nil {
		return m.PendingFunc(ctx)
	}
	return m.Mutations, nil
}

// MockCache is an in-memory store with the same ordered-scan behavior as the
// real one.
type MockCache struct {
	mu       sync.Mutex
	records  map[string]map[string]json.RawMessage
	settings map[string]json.RawMessage
}

func NewMockCache() *MockCache {
	return &MockCache{
		records:  make(map[string]map[string]json.RawMessage),
		settings: make(map[string]json.RawMessage),
	}
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

func (m *MockCache) ReplaceAll(ctx context.Context, collection string, records []store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := make(map[string]json.RawMessage, len(records))
	for _, record := range records {
		raw, err := json.Marshal(record.Value)
		if err != nil {
			return err
		}
		fresh[record.ID] = raw
	}
	m.records[collection] = fresh
	return nil
}

func (m *MockCache) Seed(collection, id string, v any) {
	raw, _ := json.Marshal(v)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[collection] == nil {
		m.records[collection] = make(map[string]json.RawMessage)
	}
	m.records[collection][id] = raw
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
