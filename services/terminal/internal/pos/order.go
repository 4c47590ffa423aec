package pos

import (
	"math"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

type LineStatus string

const (
	// LineStatusNew marks lines not yet sent to the kitchen.
	LineStatusNew LineStatus = "new"
	// LineStatusOrdered marks lines already sent on a previous save.
	LineStatusOrdered LineStatus = "ordered"
)

// OrderLine is one line of an open order. The item fields are a snapshot
// frozen at add time, so a later menu edit never rewrites an open order.
// Each add produces a fresh line; lines are never silently merged, which
// preserves per-waiter attribution.
type OrderLine struct {
	ID         uuid.UUID  `json:"id"`
	ItemID     uuid.UUID  `json:"item_id"`
	Name       string     `json:"name"`
	Price      float64    `json:"price"`
	Category   string     `json:"category,omitempty"`
	Printer    string     `json:"printer,omitempty"`
	Quantity   int        `json:"quantity"`
	AddedBy    string     `json:"added_by"`
	Status     LineStatus `json:"status"`
	TrackStock bool       `json:"track_stock,omitempty"`
}

// NewOrderLine snapshots a menu item into a fresh line with quantity 1.
func NewOrderLine(item MenuItem, addedBy string) OrderLine {
	return OrderLine{
		ID:         apt.GenerateNewID(),
		ItemID:     item.ID,
		Name:       item.Name,
		Price:      item.Price,
		Category:   item.Category,
		Printer:    item.Printer,
		Quantity:   1,
		AddedBy:    addedBy,
		Status:     LineStatusNew,
		TrackStock: item.TrackStock,
	}
}

// Order is the ephemeral content of an occupied table. It only becomes a
// persisted entity once embedded in a Sale.
type Order struct {
	Lines    []OrderLine `json:"lines"`
	Subtotal float64     `json:"subtotal"`
	Tax      float64     `json:"tax"`
	Total    float64     `json:"total"`
}

// Recalculate recomputes totals over all lines at the given tax rate.
func (o *Order) Recalculate(taxRate float64) {
	var subtotal float64
	for _, line := range o.Lines {
		subtotal += line.Price * float64(line.Quantity)
	}
	o.Subtotal = roundCents(subtotal)
	o.Tax = roundCents(subtotal * taxRate)
	o.Total = roundCents(o.Subtotal + o.Tax)
}

// NewLines returns the lines not yet sent to the kitchen.
func (o *Order) NewLines() []OrderLine {
	var lines []OrderLine
	for _, line := range o.Lines {
		if line.Status == LineStatusNew {
			lines = append(lines, line)
		}
	}
	return lines
}

// QuantityOf sums the quantity across every line for the given item,
// regardless of which waiter added it.
func (o *Order) QuantityOf(itemID uuid.UUID) int {
	if o == nil {
		return 0
	}
	var total int
	for _, line := range o.Lines {
		if line.ItemID == itemID {
			total += line.Quantity
		}
	}
	return total
}

// Clone deep-copies the order so snapshots never alias live state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = make([]OrderLine, len(o.Lines))
	copy(clone.Lines, o.Lines)
	return &clone
}

// Ticket is the kitchen/bar print payload. It carries only the lines added
// since the previous save, so stations never reprint already-sent items.
type Ticket struct {
	TableID   int         `json:"table_id"`
	TableName string      `json:"table_name"`
	Lines     []OrderLine `json:"lines"`
	CreatedAt time.Time   `json:"created_at"`
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
