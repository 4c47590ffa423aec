package pos

import (
	"sync"

	"github.com/google/uuid"
)

// Catalog is the in-memory view of the remote catalog service, corrected by
// reconciliation with queued local intent. It is device-local; the single
// logical writer per device keeps locking trivial.
type Catalog struct {
	mu         sync.RWMutex
	users      []User
	items      []MenuItem
	categories []MenuCategory
	taxRate    float64
	tableCount int
}

func NewCatalog() *Catalog {
	return &Catalog{}
}

// Replace swaps in a full snapshot, typically the output of reconciliation.
func (c *Catalog) Replace(users []User, items []MenuItem, categories []MenuCategory, taxRate float64, tableCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = append([]User(nil), users...)
	c.items = append([]MenuItem(nil), items...)
	c.categories = append([]MenuCategory(nil), categories...)
	c.taxRate = taxRate
	c.tableCount = tableCount
}

func (c *Catalog) Users() []User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]User(nil), c.users...)
}

func (c *Catalog) Items() []MenuItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	items := append([]MenuItem(nil), c.items...)
	SortMenuItems(items)
	return items
}

func (c *Catalog) Categories() []MenuCategory {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]MenuCategory(nil), c.categories...)
}

func (c *Catalog) TaxRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.taxRate
}

func (c *Catalog) SetTaxRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taxRate = rate
}

func (c *Catalog) TableCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tableCount
}

func (c *Catalog) SetTableCount(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tableCount = count
}

// UserByPIN returns the user whose PIN matches, if any. PIN uniqueness is
// enforced at creation so the first match is the only match.
func (c *Catalog) UserByPIN(pin string) (*User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, user := range c.users {
		if user.PIN == pin {
			u := user
			return &u, true
		}
	}
	return nil, false
}

func (c *Catalog) ItemByID(id uuid.UUID) (*MenuItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, item := range c.items {
		if item.ID == id {
			i := item
			return &i, true
		}
	}
	return nil, false
}

func (c *Catalog) UpsertUser(user User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.users {
		if c.users[i].ID == user.ID {
			c.users[i] = user
			return
		}
	}
	c.users = append(c.users, user)
}

func (c *Catalog) RemoveUser(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = removeByID(c.users, id, func(u User) uuid.UUID { return u.ID })
}

func (c *Catalog) UpsertItem(item MenuItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == item.ID {
			c.items[i] = item
			return
		}
	}
	c.items = append(c.items, item)
}

func (c *Catalog) RemoveItem(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = removeByID(c.items, id, func(m MenuItem) uuid.UUID { return m.ID })
}

func (c *Catalog) UpsertCategory(category MenuCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.categories {
		if c.categories[i].ID == category.ID {
			c.categories[i] = category
			return
		}
	}
	c.categories = append(c.categories, category)
}

func (c *Catalog) RemoveCategory(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories = removeByID(c.categories, id, func(m MenuCategory) uuid.UUID { return m.ID })
}

// AdjustStock applies a delta to an item's stock counter and returns every
// item whose persisted stock changed. For items in a stock group the group
// shares one conceptual counter, so each member reflects the same
// post-adjustment value. The counter is allowed to go negative: concurrent
// finalization against a shrinking pool is not blocked.
func (c *Catalog) AdjustStock(itemID uuid.UUID, delta int) []MenuItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i := range c.items {
		if c.items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	item := &c.items[idx]
	if !item.TrackStock || item.Stock == nil {
		return nil
	}

	newValue := *item.Stock + delta

	if item.StockGroupID == "" {
		stock := newValue
		item.Stock = &stock
		return []MenuItem{*item}
	}

	var changed []MenuItem
	for i := range c.items {
		if c.items[i].StockGroupID == item.StockGroupID {
			stock := newValue
			c.items[i].Stock = &stock
			changed = append(changed, c.items[i])
		}
	}
	return changed
}

func removeByID[T any](list []T, id uuid.UUID, idOf func(T) uuid.UUID) []T {
	out := list[:0]
	for _, v := range list {
		if idOf(v) != id {
			out = append(out, v)
		}
	}
	return out
}
