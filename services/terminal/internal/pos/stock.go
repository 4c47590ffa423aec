package pos

import (
	"errors"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

type MovementType string

const (
	MovementSale   MovementType = "sale"
	MovementWaste  MovementType = "waste"
	MovementSupply MovementType = "supply"
)

var (
	ErrItemNotFound    = errors.New("menu item not found")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// StockMovement is the auditable record written for every stock adjustment.
type StockMovement struct {
	ID       uuid.UUID    `json:"id"`
	ItemID   uuid.UUID    `json:"item_id"`
	ItemName string       `json:"item_name"`
	Type     MovementType `json:"type"`
	Delta    int          `json:"delta"`
	Reason   string       `json:"reason,omitempty"`
	User     string       `json:"user"`
	At       time.Time    `json:"at"`
}

// StockLedger projects stock counters from finalized sales and from waste
// and supply events. It mutates the catalog's counters (including stock
// group pooling) and returns the changed items plus the movements to
// persist; writing them to the store and queueing the remote item updates is
// the caller's job.
type StockLedger struct {
	catalog *Catalog
	logger  apt.Logger
}

func NewStockLedger(catalog *Catalog, logger apt.Logger) *StockLedger {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &StockLedger{catalog: catalog, logger: logger}
}

// ApplySale decrements stock for every tracked line of a finalized sale.
// Lines for untracked or unbounded items produce no movement.
func (l *StockLedger) ApplySale(sale *Sale) ([]MenuItem, []StockMovement) {
	var changed []MenuItem
	var movements []StockMovement

	for _, line := range sale.Order.Lines {
		items := l.catalog.AdjustStock(line.ItemID, -line.Quantity)
		if len(items) == 0 {
			continue
		}
		changed = mergeChanged(changed, items)
		movements = append(movements, StockMovement{
			ID:       apt.GenerateNewID(),
			ItemID:   line.ItemID,
			ItemName: line.Name,
			Type:     MovementSale,
			Delta:    -line.Quantity,
			Reason:   sale.ID,
			User:     sale.ClosedBy,
			At:       time.Now().UTC(),
		})
	}

	for _, item := range changed {
		if item.Stock != nil && *item.Stock <= item.LowStock {
			l.logger.Info("stock low", "item", item.Name, "stock", *item.Stock)
		}
	}
	return changed, movements
}

// RecordWaste subtracts quantity from an item's counter, propagating across
// its stock group.
func (l *StockLedger) RecordWaste(itemID uuid.UUID, quantity int, reason, user string) ([]MenuItem, []StockMovement, error) {
	if quantity <= 0 {
		return nil, nil, ErrInvalidQuantity
	}
	return l.adjust(itemID, -quantity, MovementWaste, reason, user)
}

// RecordSupply adds quantity to an item's counter, propagating across its
// stock group.
func (l *StockLedger) RecordSupply(itemID uuid.UUID, quantity int, reason, user string) ([]MenuItem, []StockMovement, error) {
	if quantity <= 0 {
		return nil, nil, ErrInvalidQuantity
	}
	return l.adjust(itemID, quantity, MovementSupply, reason, user)
}

func (l *StockLedger) adjust(itemID uuid.UUID, delta int, movementType MovementType, reason, user string) ([]MenuItem, []StockMovement, error) {
	if delta == 0 {
		return nil, nil, ErrInvalidQuantity
	}
	item, ok := l.catalog.ItemByID(itemID)
	if !ok {
		return nil, nil, ErrItemNotFound
	}

	changed := l.catalog.AdjustStock(itemID, delta)
	if len(changed) == 0 {
		return nil, nil, nil
	}

	movement := StockMovement{
		ID:       apt.GenerateNewID(),
		ItemID:   itemID,
		ItemName: item.Name,
		Type:     movementType,
		Delta:    delta,
		Reason:   reason,
		User:     user,
		At:       time.Now().UTC(),
	}
	return changed, []StockMovement{movement}, nil
}

func mergeChanged(into, items []MenuItem) []MenuItem {
	for _, item := range items {
		replaced := false
		for i := range into {
			if into[i].ID == item.ID {
				into[i] = item
				replaced = true
				break
			}
		}
		if !replaced {
			into = append(into, item)
		}
	}
	return into
}
