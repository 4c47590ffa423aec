package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/appetiteclub/apt/events"

	"github.com/opentill/opentill/services/terminal/internal/reconcile"
)

// MockPublisher is a test mock for events.Publisher.
type MockPublisher struct {
	mu              sync.Mutex
	PublishedEvents []PublishedEvent
	PublishFunc     func(ctx context.Context, topic string, data []byte) error
}

type PublishedEvent struct {
	Topic string
	Data  []byte
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{PublishedEvents: make([]PublishedEvent, 0)}
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, data []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedEvents = append(m.PublishedEvents, PublishedEvent{Topic: topic, Data: data})
	return nil
}

// OnTopic returns the published payloads for one topic, in order.
func (m *MockPublisher) OnTopic(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, e := range m.PublishedEvents {
		if e.Topic == topic {
			out = append(out, e.Data)
		}
	}
	return out
}

func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedEvents = m.PublishedEvents[:0]
}

// MockSubscriber records handlers by topic and lets tests deliver messages.
type MockSubscriber struct {
	mu            sync.Mutex
	handlers      map[string]events.HandlerFunc
	SubscribeFunc func(ctx context.Context, topic string, handler events.HandlerFunc) error
}

func NewMockSubscriber() *MockSubscriber {
	return &MockSubscriber{handlers: make(map[string]events.HandlerFunc)}
}

func (m *MockSubscriber) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, topic, handler)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockSubscriber) Deliver(ctx context.Context, topic string, payload any) error {
	m.mu.Lock()
	handler, found := m.handlers[topic]
	m.mu.Unlock()
	if !found {
		return errors.New("no handler subscribed to " + topic)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return handler(ctx, raw)
}

func (m *MockSubscriber) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.handlers))
	for topic := range m.handlers {
		out = append(out, topic)
	}
	return out
}

// MockSettings is an in-memory settings store.
type MockSettings struct {
	mu     sync.Mutex
	values map[string]json.RawMessage
}

func NewMockSettings() *MockSettings {
	return &MockSettings{values: make(map[string]json.RawMessage)}
}

func (m *MockSettings) PutSetting(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = raw
	return nil
}

func (m *MockSettings) GetSetting(ctx context.Context, key string, out any) (bool, error) {
	m.mu.Lock()
	raw, found := m.values[key]
	m.mu.Unlock()
	if !found {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

// MockReconciler returns a canned result.
type MockReconciler struct {
	Result  *reconcile.Result
	RunFunc func(ctx context.Context) (*reconcile.Result, error)
}

func (m *MockReconciler) Run(ctx context.Context) (*reconcile.Result, error) {
	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return nil, errors.New("no result configured")
}

// MockDrainer counts drain passes.
type MockDrainer struct {
	mu        sync.Mutex
	DrainFunc func(ctx context.Context) error
	drains    int
}

func (m *MockDrainer) Drain(ctx context.Context) error {
	m.mu.Lock()
	m.drains++
	m.mu.Unlock()
	if m.DrainFunc != nil {
		return m.DrainFunc(ctx)
	}
	return nil
}

func (m *MockDrainer) Drains() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drains
}
