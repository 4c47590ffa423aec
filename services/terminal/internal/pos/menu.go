package pos

import (
	"sort"
	"strings"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// MenuItem is a sellable catalog entry. Stock is nil for unbounded items.
// Items sharing a non-empty StockGroupID pool their stock: decrementing one
// decrements the group total, and every member reflects the same counter.
type MenuItem struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Price        float64   `json:"price"`
	Category     string    `json:"category"`
	Printer      string    `json:"printer,omitempty"`
	Stock        *int      `json:"stock,omitempty"`
	LowStock     int       `json:"low_stock,omitempty"`
	TrackStock   bool      `json:"track_stock"`
	StockGroupID string    `json:"stock_group_id,omitempty"`
	DisplayOrder *int      `json:"display_order,omitempty"`
}

func (m *MenuItem) GetID() uuid.UUID {
	return m.ID
}

func (m *MenuItem) ResourceType() string {
	return "menu/item"
}

func (m *MenuItem) SetID(id uuid.UUID) {
	m.ID = id
}

func NewMenuItem() *MenuItem {
	return &MenuItem{ID: apt.GenerateNewID()}
}

func (m *MenuItem) EnsureID() {
	if m.ID == uuid.Nil {
		m.ID = apt.GenerateNewID()
	}
}

func (m *MenuItem) BeforeCreate() {
	m.EnsureID()
	m.Name = strings.TrimSpace(m.Name)
	m.Category = strings.TrimSpace(m.Category)
	m.StockGroupID = strings.TrimSpace(m.StockGroupID)
}

// MenuCategory groups items for display filtering only; it carries no stock
// implication.
type MenuCategory struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	DisplayOrder int       `json:"display_order"`
}

func (c *MenuCategory) GetID() uuid.UUID {
	return c.ID
}

func (c *MenuCategory) ResourceType() string {
	return "menu/category"
}

func (c *MenuCategory) SetID(id uuid.UUID) {
	c.ID = id
}

func NewMenuCategory() *MenuCategory {
	return &MenuCategory{ID: apt.GenerateNewID()}
}

func (c *MenuCategory) EnsureID() {
	if c.ID == uuid.Nil {
		c.ID = apt.GenerateNewID()
	}
}

// SortMenuItems orders items by display order; items without one sort after
// all ordered ones, alphabetically.
func SortMenuItems(items []MenuItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].DisplayOrder, items[j].DisplayOrder
		switch {
		case a != nil && b != nil:
			return *a < *b
		case a != nil:
			return true
		case b != nil:
			return false
		default:
			return items[i].Name < items[j].Name
		}
	})
}
