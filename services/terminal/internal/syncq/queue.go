package syncq

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"

	"github.com/opentill/opentill/services/terminal/internal/pos"
	"github.com/opentill/opentill/services/terminal/internal/store"
)

// Kind tags a queued mutation with the remote call it maps to.
type Kind string

const (
	KindAddUser        Kind = "add_user"
	KindDeleteUser     Kind = "delete_user"
	KindAddMenuItem    Kind = "add_menu_item"
	KindUpdateMenuItem Kind = "update_menu_item"
	KindDeleteMenuItem Kind = "delete_menu_item"
	KindAddCategory    Kind = "add_category"
	KindUpdateCategory Kind = "update_category"
	KindDeleteCategory Kind = "delete_category"
	KindAddSale        Kind = "add_sale"
	KindAddHistory     Kind = "add_history"
	KindSetTaxRate     Kind = "set_tax_rate"
)

// Mutation is one durable entry in the queue. Entries are never rewritten or
// deduplicated after enqueue.
type Mutation struct {
	ID         uuid.UUID       `json:"id"`
	Seq        int64           `json:"seq"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// DeletePayload carries the id of the entity a delete mutation targets.
type DeletePayload struct {
	ID uuid.UUID `json:"id"`
}

// TaxRatePayload carries the scalar for a set-tax-rate mutation.
type TaxRatePayload struct {
	Rate float64 `json:"rate"`
}

// Storage is the slice of the local durable store the queue needs.
type Storage interface {
	Put(ctx context.Context, collection, id string, v any) error
	GetAll(ctx context.Context, collection string, out any) error
	Delete(ctx context.Context, collection, id string) error
}

// Dispatcher performs the remote call a mutation maps to. The catalog client
// implements it; tests substitute fakes.
type Dispatcher interface {
	AddUser(ctx context.Context, user pos.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	AddMenuItem(ctx context.Context, item pos.MenuItem) error
	UpdateMenuItem(ctx context.Context, item pos.MenuItem) error
	DeleteMenuItem(ctx context.Context, id uuid.UUID) error
	AddCategory(ctx context.Context, category pos.MenuCategory) error
	UpdateCategory(ctx context.Context, category pos.MenuCategory) error
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	AddSale(ctx context.Context, sale pos.Sale) error
	AddHistory(ctx context.Context, entry pos.HistoryEntry) error
	SetTaxRate(ctx context.Context, rate float64) error
}

// Queue is the ordered durable log of not-yet-confirmed remote writes.
// Drain replays it strictly FIFO and halts on the first failure so later
// entries are never applied out of order.
type Queue struct {
	mu         sync.Mutex
	storage    Storage
	dispatcher Dispatcher
	logger     apt.Logger
	nextSeq    int64
	draining   atomic.Bool
}

func NewQueue(storage Storage, dispatcher Dispatcher, logger apt.Logger) *Queue {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Queue{
		storage:    storage,
		dispatcher: dispatcher,
		logger:     logger,
		nextSeq:    1,
	}
}

// Start restores the sequence counter from whatever survived the last run.
func (q *Queue) Start(ctx context.Context) error {
	pending, err := q.Pending(ctx)
	if err != nil {
		return fmt.Errorf("cannot load sync queue: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range pending {
		if m.Seq >= q.nextSeq {
			q.nextSeq = m.Seq + 1
		}
	}
	return nil
}

// Enqueue durably appends a mutation. The local optimistic write must
// already have happened by the time this is called.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, payload any) (*Mutation, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("cannot encode %s payload: %w", kind, err)
	}

	q.mu.Lock()
	seq := q.nextSeq
	q.nextSeq++
	q.mu.Unlock()

	mutation := Mutation{
		ID:         apt.GenerateNewID(),
		Seq:        seq,
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.storage.Put(ctx, store.CollectionSyncQueue, queueKey(seq), mutation); err != nil {
		return nil, err
	}
	return &mutation, nil
}

// Pending returns the queued mutations in enqueue order.
func (q *Queue) Pending(ctx context.Context) ([]Mutation, error) {
	var pending []Mutation
	if err := q.storage.GetAll(ctx, store.CollectionSyncQueue, &pending); err != nil {
		return nil, err
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Seq < pending[j].Seq })
	return pending, nil
}

// Drain pushes pending mutations to the remote service in FIFO order. Each
// entry is removed only after its remote call succeeds; the first failure
// halts the pass, leaving the failed entry and everything after it in place
// for the next trigger. Overlapping triggers collapse into a single pass.
func (q *Queue) Drain(ctx context.Context) error {
	if !q.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer q.draining.Store(false)

	pending, err := q.Pending(ctx)
	if err != nil {
		return err
	}

	for _, mutation := range pending {
		if err := q.dispatch(ctx, mutation); err != nil {
			q.logger.Info("sync halted, will retry",
				"kind", mutation.Kind, "seq", mutation.Seq, "error", err)
			return err
		}
		if err := q.storage.Delete(ctx, store.CollectionSyncQueue, queueKey(mutation.Seq)); err != nil {
			return err
		}
	}
	return nil
}

// DrainAsync triggers an opportunistic drain without blocking the caller.
// Failures are already logged inside Drain.
func (q *Queue) DrainAsync() {
	go func() {
		_ = q.Drain(context.Background())
	}()
}

func (q *Queue) dispatch(ctx context.Context, mutation Mutation) error {
	switch mutation.Kind {
	case KindAddUser:
		var user pos.User
		if err := json.Unmarshal(mutation.Payload, &user); err != nil {
			return err
		}
		return q.dispatcher.AddUser(ctx, user)
	case KindDeleteUser:
		var payload DeletePayload
		if err := json.Unmarshal(mutation.Payload, &payload); err != nil {
			return err
		}
		return q.dispatcher.DeleteUser(ctx, payload.ID)
	case KindAddMenuItem:
		var item pos.MenuItem
		if err := json.Unmarshal(mutation.Payload, &item); err != nil {
			return err
		}
		return q.dispatcher.AddMenuItem(ctx, item)
	case KindUpdateMenuItem:
		var item pos.MenuItem
		if err := json.Unmarshal(mutation.Payload, &item); err != nil {
			return err
		}
		return q.dispatcher.UpdateMenuItem(ctx, item)
	case KindDeleteMenuItem:
		var payload DeletePayload
		if err := json.Unmarshal(mutation.Payload, &payload); err != nil {
			return err
		}
		return q.dispatcher.DeleteMenuItem(ctx, payload.ID)
	case KindAddCategory:
		var category pos.MenuCategory
		if err := json.Unmarshal(mutation.Payload, &category); err != nil {
			return err
		}
		return q.dispatcher.AddCategory(ctx, category)
	case KindUpdateCategory:
		var category pos.MenuCategory
		if err := json.Unmarshal(mutation.Payload, &category); err != nil {
			return err
		}
		return q.dispatcher.UpdateCategory(ctx, category)
	case KindDeleteCategory:
		var payload DeletePayload
		if err := json.Unmarshal(mutation.Payload, &payload); err != nil {
			return err
		}
		return q.dispatcher.DeleteCategory(ctx, payload.ID)
	case KindAddSale:
		var sale pos.Sale
		if err := json.Unmarshal(mutation.Payload, &sale); err != nil {
			return err
		}
		return q.dispatcher.AddSale(ctx, sale)
	case KindAddHistory:
		var entry pos.HistoryEntry
		if err := json.Unmarshal(mutation.Payload, &entry); err != nil {
			return err
		}
		return q.dispatcher.AddHistory(ctx, entry)
	case KindSetTaxRate:
		var payload TaxRatePayload
		if err := json.Unmarshal(mutation.Payload, &payload); err != nil {
			return err
		}
		return q.dispatcher.SetTaxRate(ctx, payload.Rate)
	default:
		// Unknown kinds would wedge the queue forever; drop them loudly.
		q.logger.Error("dropping unknown mutation kind", "kind", mutation.Kind)
		return nil
	}
}

func queueKey(seq int64) string {
	return fmt.Sprintf("%020d", seq)
}
