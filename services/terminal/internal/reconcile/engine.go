package reconcile

import (
	"context"
	"encoding/json"

	"github.com/appetiteclub/apt"

	"github.com/opentill/opentill/services/terminal/internal/catalog"
	"github.com/opentill/opentill/services/terminal/internal/pos"
	"github.com/opentill/opentill/services/terminal/internal/store"
	"github.com/opentill/opentill/services/terminal/internal/syncq"
)

// Bootstrapper fetches the full remote snapshot.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) (*catalog.Snapshot, error)
}

// PendingLister exposes the not-yet-drained mutation queue.
type PendingLister interface {
	Pending(ctx context.Context) ([]syncq.Mutation, error)
}

// Cache is the slice of the local durable store the engine reads and writes.
type Cache interface {
	GetAll(ctx context.Context, collection string, out any) error
	ReplaceAll(ctx context.Context, collection string, records []store.Record) error
	GetSetting(ctx context.Context, key string, out any) (bool, error)
	PutSetting(ctx context.Context, key string, v any) error
}

// Defaults are used when neither the remote service nor the local cache can
// provide a value (first run, or a corrupted cache).
type Defaults struct {
	TaxRate    float64
	TableCount int
}

// Result is the corrected snapshot produced by a reconciliation pass.
type Result struct {
	Snapshot catalog.Snapshot
	Online   bool
}

// Engine merges the last fetched server snapshot with every queued local
// intent, so the device's view reflects what the user did even though the
// server has not seen it yet. The merged view is persisted and published
// BEFORE any drain runs: a pending local change must never look dropped
// while the push is in flight or failing.
type Engine struct {
	remote   Bootstrapper
	cache    Cache
	queue    PendingLister
	defaults Defaults
	logger   apt.Logger
}

func NewEngine(remote Bootstrapper, cache Cache, queue PendingLister, defaults Defaults, logger apt.Logger) *Engine {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Engine{
		remote:   remote,
		cache:    cache,
		queue:    queue,
		defaults: defaults,
		logger:   logger,
	}
}

// Run executes one reconciliation pass. Callers publish the result into the
// in-memory state and only then trigger a queue drain.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	snapshot, err := e.remote.Bootstrap(ctx)
	online := err == nil
	if err != nil {
		e.logger.Info("bootstrap failed, falling back to cached snapshot", "error", err)
		snapshot, err = e.loadCached(ctx)
		if err != nil {
			return nil, err
		}
	}

	pending, err := e.queue.Pending(ctx)
	if err != nil {
		return nil, err
	}

	e.replay(snapshot, pending)

	if err := e.persist(ctx, snapshot); err != nil {
		return nil, err
	}

	return &Result{Snapshot: *snapshot, Online: online}, nil
}

func (e *Engine) loadCached(ctx context.Context) (*catalog.Snapshot, error) {
	snapshot := &catalog.Snapshot{
		TaxRate:    e.defaults.TaxRate,
		TableCount: e.defaults.TableCount,
	}

	if err := e.cache.GetAll(ctx, store.CollectionUsers, &snapshot.Users); err != nil {
		return nil, err
	}
	if err := e.cache.GetAll(ctx, store.CollectionMenuItems, &snapshot.MenuItems); err != nil {
		return nil, err
	}
	if err := e.cache.GetAll(ctx, store.CollectionMenuCategories, &snapshot.MenuCategories); err != nil {
		return nil, err
	}

	if _, err := e.cache.GetSetting(ctx, store.SettingTaxRate, &snapshot.TaxRate); err != nil {
		return nil, err
	}
	if _, err := e.cache.GetSetting(ctx, store.SettingTableCount, &snapshot.TableCount); err != nil {
		return nil, err
	}

	return snapshot, nil
}

// replay applies queued intents on top of the server snapshot, never the
// reverse. Adds dedupe by natural key so re-running reconciliation before a
// successful drain stays idempotent.
func (e *Engine) replay(snapshot *catalog.Snapshot, pending []syncq.Mutation) {
	for _, mutation := range pending {
		switch mutation.Kind {
		case syncq.KindAddUser:
			var user pos.User
			if !decode(e.logger, mutation, &user) {
				continue
			}
			if userByPIN(snapshot.Users, user.PIN) < 0 {
				user.EnsureID()
				snapshot.Users = append(snapshot.Users, user)
			}
		case syncq.KindDeleteUser:
			var payload syncq.DeletePayload
			if !decode(e.logger, mutation, &payload) {
				continue
			}
			snapshot.Users = deleteUser(snapshot.Users, payload)
		case syncq.KindAddMenuItem:
			var item pos.MenuItem
			if !decode(e.logger, mutation, &item) {
				continue
			}
			if itemByName(snapshot.MenuItems, item.Name, item.Category) < 0 {
				item.EnsureID()
				snapshot.MenuItems = append(snapshot.MenuItems, item)
			}
		case syncq.KindUpdateMenuItem:
			var item pos.MenuItem
			if !decode(e.logger, mutation, &item) {
				continue
			}
			for i := range snapshot.MenuItems {
				if snapshot.MenuItems[i].ID == item.ID {
					snapshot.MenuItems[i] = item
					break
				}
			}
		case syncq.KindDeleteMenuItem:
			var payload syncq.DeletePayload
			if !decode(e.logger, mutation, &payload) {
				continue
			}
			items := snapshot.MenuItems[:0]
			for _, item := range snapshot.MenuItems {
				if item.ID != payload.ID {
					items = append(items, item)
				}
			}
			snapshot.MenuItems = items
		case syncq.KindAddCategory:
			var category pos.MenuCategory
			if !decode(e.logger, mutation, &category) {
				continue
			}
			if categoryByName(snapshot.MenuCategories, category.Name) < 0 {
				category.EnsureID()
				snapshot.MenuCategories = append(snapshot.MenuCategories, category)
			}
		case syncq.KindUpdateCategory:
			var category pos.MenuCategory
			if !decode(e.logger, mutation, &category) {
				continue
			}
			for i := range snapshot.MenuCategories {
				if snapshot.MenuCategories[i].ID == category.ID {
					snapshot.MenuCategories[i] = category
					break
				}
			}
		case syncq.KindDeleteCategory:
			var payload syncq.DeletePayload
			if !decode(e.logger, mutation, &payload) {
				continue
			}
			categories := snapshot.MenuCategories[:0]
			for _, category := range snapshot.MenuCategories {
				if category.ID != payload.ID {
					categories = append(categories, category)
				}
			}
			snapshot.MenuCategories = categories
		case syncq.KindSetTaxRate:
			var payload syncq.TaxRatePayload
			if !decode(e.logger, mutation, &payload) {
				continue
			}
			snapshot.TaxRate = payload.Rate
		case syncq.KindAddSale, syncq.KindAddHistory:
			// Sales and history are append-only logs outside the snapshot;
			// they are already cached locally and only await the drain.
		}
	}
}

func (e *Engine) persist(ctx context.Context, snapshot *catalog.Snapshot) error {
	users := make([]store.Record, 0, len(snapshot.Users))
	for _, u := range snapshot.Users {
		users = append(users, store.Record{ID: u.ID.String(), Value: u})
	}
	if err := e.cache.ReplaceAll(ctx, store.CollectionUsers, users); err != nil {
		return err
	}

	items := make([]store.Record, 0, len(snapshot.MenuItems))
	for _, m := range snapshot.MenuItems {
		items = append(items, store.Record{ID: m.ID.String(), Value: m})
	}
	if err := e.cache.ReplaceAll(ctx, store.CollectionMenuItems, items); err != nil {
		return err
	}

	categories := make([]store.Record, 0, len(snapshot.MenuCategories))
	for _, c := range snapshot.MenuCategories {
		categories = append(categories, store.Record{ID: c.ID.String(), Value: c})
	}
	if err := e.cache.ReplaceAll(ctx, store.CollectionMenuCategories, categories); err != nil {
		return err
	}

	if err := e.cache.PutSetting(ctx, store.SettingTaxRate, snapshot.TaxRate); err != nil {
		return err
	}
	return e.cache.PutSetting(ctx, store.SettingTableCount, snapshot.TableCount)
}

func decode(logger apt.Logger, mutation syncq.Mutation, out any) bool {
	if err := json.Unmarshal(mutation.Payload, out); err != nil {
		logger.Error("skipping malformed queued mutation",
			"kind", mutation.Kind, "seq", mutation.Seq, "error", err)
		return false
	}
	return true
}

func userByPIN(users []pos.User, pin string) int {
	for i := range users {
		if users[i].PIN == pin {
			return i
		}
	}
	return -1
}

func deleteUser(users []pos.User, payload syncq.DeletePayload) []pos.User {
	out := users[:0]
	for _, user := range users {
		if user.ID != payload.ID {
			out = append(out, user)
		}
	}
	return out
}

func itemByName(items []pos.MenuItem, name, category string) int {
	for i := range items {
		if items[i].Name == name && items[i].Category == category {
			return i
		}
	}
	return -1
}

func categoryByName(categories []pos.MenuCategory, name string) int {
	for i := range categories {
		if categories[i].Name == name {
			return i
		}
	}
	return -1
}
