package pos

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

var (
	ErrTableNotFound       = errors.New("table not found")
	ErrNoOpenOrder         = errors.New("table has no open order")
	ErrLineNotFound        = errors.New("order line not found")
	ErrOutOfStock          = errors.New("item is out of stock")
	ErrInsufficientPayment = errors.New("amount paid is less than the order total")
	ErrDestinationOccupied = errors.New("destination table already has an order")
)

// Board holds every table and its current order contents for this device's
// view. Mutations go through the board so totals and line statuses stay
// consistent; fan-out to other terminals is the session's concern, not the
// board's.
//
// Stock checks at add time are advisory only. The authoritative decrement
// happens at finalize time, so two terminals can both pass the check and the
// later one may drive the counter negative. That gap is accepted.
type Board struct {
	mu      sync.RWMutex
	tables  []Table
	taxRate float64
	logger  apt.Logger
}

func NewBoard(tableCount int, taxRate float64, logger apt.Logger) *Board {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	b := &Board{taxRate: taxRate, logger: logger}
	b.resizeLocked(tableCount)
	return b
}

// Resize recreates the table grid for the configured count. Tables are
// positionally assigned; an existing table whose id is reused keeps its
// order, tables beyond the new count are dropped with whatever they held.
func (b *Board) Resize(count int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resizeLocked(count)
}

func (b *Board) resizeLocked(count int) {
	if count < 0 {
		count = 0
	}
	tables := make([]Table, count)
	for i := 0; i < count; i++ {
		tables[i] = NewTable(i + 1)
		if i < len(b.tables) {
			tables[i].Name = b.tables[i].Name
			tables[i].Order = b.tables[i].Order
		}
	}
	b.tables = tables
}

// Tables returns a deep copy of the current table array.
func (b *Board) Tables() []Table {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneTables(b.tables)
}

func (b *Board) TableCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tables)
}

// Table returns a deep copy of one table.
func (b *Board) Table(tableID int) (Table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, err := b.lookup(tableID)
	if err != nil {
		return Table{}, err
	}
	clone := *t
	clone.Order = t.Order.Clone()
	return clone, nil
}

func (b *Board) TaxRate() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.taxRate
}

func (b *Board) SetTaxRate(rate float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.taxRate = rate
	for i := range b.tables {
		if b.tables[i].Order != nil {
			b.tables[i].Order.Recalculate(rate)
		}
	}
}

// AddToOrder appends a new line for the item, attributed to the acting user.
// A fresh line is created on every call so attribution survives; quantities
// are never merged into an existing line. Tracked items are rejected when
// the remaining stock, net of every line already in this order, is gone.
func (b *Board) AddToOrder(tableID int, item MenuItem, user string) (*OrderLine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.lookup(tableID)
	if err != nil {
		return nil, err
	}

	if item.TrackStock && item.Stock != nil {
		remaining := *item.Stock - t.Order.QuantityOf(item.ID)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrOutOfStock, item.Name)
		}
	}

	if t.Order == nil {
		t.Order = &Order{}
	}
	line := NewOrderLine(item, user)
	t.Order.Lines = append(t.Order.Lines, line)
	t.Order.Recalculate(b.taxRate)
	return &line, nil
}

// RemoveFromOrder deletes exactly one line by identity. Removal is
// all-or-nothing per line; quantity adjustments go through SetLineQuantity.
func (b *Board) RemoveFromOrder(tableID int, lineID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.lookup(tableID)
	if err != nil {
		return err
	}
	if t.Order == nil {
		return ErrNoOpenOrder
	}

	lines := t.Order.Lines[:0]
	found := false
	for _, line := range t.Order.Lines {
		if line.ID == lineID {
			found = true
			continue
		}
		lines = append(lines, line)
	}
	if !found {
		return ErrLineNotFound
	}

	t.Order.Lines = lines
	if len(t.Order.Lines) == 0 {
		t.Order = nil
		return nil
	}
	t.Order.Recalculate(b.taxRate)
	return nil
}

// SetLineQuantity adjusts a line's quantity, clamping at zero; a zeroed line
// is pruned immediately.
func (b *Board) SetLineQuantity(tableID int, lineID uuid.UUID, quantity int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.lookup(tableID)
	if err != nil {
		return err
	}
	if t.Order == nil {
		return ErrNoOpenOrder
	}

	for i := range t.Order.Lines {
		if t.Order.Lines[i].ID != lineID {
			continue
		}
		if quantity <= 0 {
			t.Order.Lines = append(t.Order.Lines[:i], t.Order.Lines[i+1:]...)
			if len(t.Order.Lines) == 0 {
				t.Order = nil
				return nil
			}
		} else {
			t.Order.Lines[i].Quantity = quantity
		}
		t.Order.Recalculate(b.taxRate)
		return nil
	}
	return ErrLineNotFound
}

// SaveOrder recomputes totals over all lines, marks every line as ordered
// and returns a ticket carrying only the lines that were still new. A nil
// ticket means nothing needs printing.
func (b *Board) SaveOrder(tableID int) (*Ticket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.lookup(tableID)
	if err != nil {
		return nil, err
	}
	if t.Order == nil {
		return nil, ErrNoOpenOrder
	}

	t.Order.Recalculate(b.taxRate)
	newLines := t.Order.NewLines()
	for i := range t.Order.Lines {
		t.Order.Lines[i].Status = LineStatusOrdered
	}

	if len(newLines) == 0 {
		return nil, nil
	}
	return &Ticket{
		TableID:   t.ID,
		TableName: t.Name,
		Lines:     newLines,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// FinalizeSale closes a table against a payment. Underpayment is rejected
// with no state change. On acceptance the order is snapshotted into an
// immutable Sale and the table is cleared. The caller must durably record
// the sale before treating the clear as final; RestoreOrder undoes it when
// the write fails.
func (b *Board) FinalizeSale(tableID int, amountPaid float64, user string) (*Sale, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.lookup(tableID)
	if err != nil {
		return nil, err
	}
	if t.Order == nil {
		return nil, ErrNoOpenOrder
	}

	t.Order.Recalculate(b.taxRate)
	if amountPaid < t.Order.Total {
		return nil, fmt.Errorf("%w: paid %.2f of %.2f", ErrInsufficientPayment, amountPaid, t.Order.Total)
	}

	sale := NewSale(t, amountPaid, user)
	t.Order = nil
	return sale, nil
}

// RestoreOrder puts an order back on a table after a finalize whose sale
// could not be recorded. The snapshot inside the Sale is the source.
func (b *Board) RestoreOrder(tableID int, order *Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.lookup(tableID)
	if err != nil {
		return err
	}
	t.Order = order.Clone()
	return nil
}

// TransferTable moves the entire order from source to destination, which
// must be empty. The move is atomic under the board lock.
func (b *Board) TransferTable(sourceID, destinationID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	src, err := b.lookup(sourceID)
	if err != nil {
		return err
	}
	dst, err := b.lookup(destinationID)
	if err != nil {
		return err
	}
	if src.Order == nil {
		return ErrNoOpenOrder
	}
	if dst.Order != nil {
		return ErrDestinationOccupied
	}

	dst.Order = src.Order
	src.Order = nil
	return nil
}

// ClearTable drops a table's order without a sale. Used for voids and when
// applying a canonical clear from the master.
func (b *Board) ClearTable(tableID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.lookup(tableID)
	if err != nil {
		return err
	}
	t.Order = nil
	return nil
}

// ApplyCanonical replaces the whole table array with a master broadcast.
// Last broadcast wins: any local edit not yet folded in by the master is
// discarded.
func (b *Board) ApplyCanonical(tables []Table) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables = cloneTables(tables)
}

// ApplyClientUpdate folds a single-table edit from a client terminal into
// the canonical state. Only the master calls this.
func (b *Board) ApplyClientUpdate(tableID int, order *Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.lookup(tableID)
	if err != nil {
		return err
	}
	t.Order = order.Clone()
	if t.Order != nil {
		t.Order.Recalculate(b.taxRate)
	}
	return nil
}

func (b *Board) lookup(tableID int) (*Table, error) {
	if tableID < 1 || tableID > len(b.tables) {
		return nil, fmt.Errorf("%w: %d", ErrTableNotFound, tableID)
	}
	return &b.tables[tableID-1], nil
}

func cloneTables(tables []Table) []Table {
	out := make([]Table, len(tables))
	for i, t := range tables {
		out[i] = t
		out[i].Order = t.Order.Clone()
	}
	return out
}
