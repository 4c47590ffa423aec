package pos

import (
	"errors"
	"testing"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

func testItem(name string, price float64) MenuItem {
	return MenuItem{
		ID:       uuid.New(),
		Name:     name,
		Price:    price,
		Category: "Drinks",
	}
}

func trackedItem(name string, price float64, stock int) MenuItem {
	item := testItem(name, price)
	item.TrackStock = true
	item.Stock = &stock
	return item
}

func TestNewBoard(t *testing.T) {
	board := NewBoard(4, 0.21, nil)

	if got := board.TableCount(); got != 4 {
		t.Fatalf("TableCount() = %d, want 4", got)
	}
	tables := board.Tables()
	if tables[0].ID != 1 || tables[3].ID != 4 {
		t.Errorf("tables not numbered from 1: first=%d last=%d", tables[0].ID, tables[3].ID)
	}
	if tables[0].Name != "Table 1" {
		t.Errorf("default name = %q, want %q", tables[0].Name, "Table 1")
	}
}

func TestBoardAddToOrderTotals(t *testing.T) {
	board := NewBoard(2, 0.10, apt.NewNoopLogger())
	beer := testItem("Beer", 3.50)

	if _, err := board.AddToOrder(1, beer, "ana"); err != nil {
		t.Fatalf("AddToOrder() error = %v", err)
	}
	line, err := board.AddToOrder(1, beer, "ana")
	if err != nil {
		t.Fatalf("AddToOrder() error = %v", err)
	}
	if line.Status != LineStatusNew {
		t.Errorf("line status = %q, want %q", line.Status, LineStatusNew)
	}

	table, err := board.Table(1)
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}
	if len(table.Order.Lines) != 2 {
		t.Fatalf("lines = %d, want 2 (adds never merge)", len(table.Order.Lines))
	}
	if table.Order.Subtotal != 7.00 {
		t.Errorf("subtotal = %.2f, want 7.00", table.Order.Subtotal)
	}
	if table.Order.Tax != 0.70 {
		t.Errorf("tax = %.2f, want 0.70", table.Order.Tax)
	}
	if table.Order.Total != 7.70 {
		t.Errorf("total = %.2f, want 7.70", table.Order.Total)
	}
}

func TestBoardAddToOrderRounding(t *testing.T) {
	board := NewBoard(1, 0.21, apt.NewNoopLogger())

	if _, err := board.AddToOrder(1, testItem("Espresso", 1.15), "ana"); err != nil {
		t.Fatalf("AddToOrder() error = %v", err)
	}

	table, _ := board.Table(1)
	if table.Order.Tax != 0.24 {
		t.Errorf("tax = %v, want 0.24 (rounded to cents)", table.Order.Tax)
	}
	if table.Order.Total != 1.39 {
		t.Errorf("total = %v, want 1.39", table.Order.Total)
	}
}

func TestBoardAddToOrderStockAdvisory(t *testing.T) {
	board := NewBoard(1, 0, apt.NewNoopLogger())
	cake := trackedItem("Cake", 4.00, 2)

	for i := 0; i < 2; i++ {
		if _, err := board.AddToOrder(1, cake, "ana"); err != nil {
			t.Fatalf("add %d: error = %v", i+1, err)
		}
	}

	if _, err := board.AddToOrder(1, cake, "ana"); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("third add error = %v, want ErrOutOfStock", err)
	}

	// An untracked item is never rejected.
	if _, err := board.AddToOrder(1, testItem("Water", 1.00), "ana"); err != nil {
		t.Errorf("untracked add error = %v", err)
	}
}

func TestBoardAddToOrderUnknownTable(t *testing.T) {
	board := NewBoard(2, 0, apt.NewNoopLogger())

	for _, id := range []int{0, -1, 3} {
		if _, err := board.AddToOrder(id, testItem("Beer", 3.50), "ana"); !errors.Is(err, ErrTableNotFound) {
			t.Errorf("AddToOrder(%d) error = %v, want ErrTableNotFound", id, err)
		}
	}
}

func TestBoardRemoveFromOrder(t *testing.T) {
	board := NewBoard(1, 0, apt.NewNoopLogger())
	first, _ := board.AddToOrder(1, testItem("Beer", 3.50), "ana")
	second, _ := board.AddToOrder(1, testItem("Wine", 5.00), "ana")

	if err := board.RemoveFromOrder(1, first.ID); err != nil {
		t.Fatalf("RemoveFromOrder() error = %v", err)
	}

	table, _ := board.Table(1)
	if len(table.Order.Lines) != 1 || table.Order.Lines[0].ID != second.ID {
		t.Fatalf("expected only the second line to remain")
	}
	if table.Order.Total != 5.00 {
		t.Errorf("total = %.2f, want 5.00 after removal", table.Order.Total)
	}

	if err := board.RemoveFromOrder(1, first.ID); !errors.Is(err, ErrLineNotFound) {
		t.Errorf("removing a removed line: error = %v, want ErrLineNotFound", err)
	}

	// Removing the last line closes the order entirely.
	if err := board.RemoveFromOrder(1, second.ID); err != nil {
		t.Fatalf("RemoveFromOrder() error = %v", err)
	}
	table, _ = board.Table(1)
	if table.Order != nil {
		t.Error("order should be nil after the last line is removed")
	}
}

func TestBoardSetLineQuantity(t *testing.T) {
	board := NewBoard(1, 0, apt.NewNoopLogger())
	line, _ := board.AddToOrder(1, testItem("Beer", 2.00), "ana")

	if err := board.SetLineQuantity(1, line.ID, 3); err != nil {
		t.Fatalf("SetLineQuantity() error = %v", err)
	}
	table, _ := board.Table(1)
	if table.Order.Lines[0].Quantity != 3 {
		t.Errorf("quantity = %d, want 3", table.Order.Lines[0].Quantity)
	}
	if table.Order.Total != 6.00 {
		t.Errorf("total = %.2f, want 6.00", table.Order.Total)
	}

	// Zero and below prune the line.
	if err := board.SetLineQuantity(1, line.ID, 0); err != nil {
		t.Fatalf("SetLineQuantity(0) error = %v", err)
	}
	table, _ = board.Table(1)
	if table.Order != nil {
		t.Error("order should be nil after the only line is pruned")
	}
}

func TestBoardSaveOrderTicketsOnlyNewLines(t *testing.T) {
	board := NewBoard(1, 0, apt.NewNoopLogger())
	board.AddToOrder(1, testItem("Beer", 3.50), "ana")

	ticket, err := board.SaveOrder(1)
	if err != nil {
		t.Fatalf("SaveOrder() error = %v", err)
	}
	if ticket == nil || len(ticket.Lines) != 1 {
		t.Fatalf("first save should ticket the single new line")
	}

	// Saving again without new lines prints nothing.
	ticket, err = board.SaveOrder(1)
	if err != nil {
		t.Fatalf("SaveOrder() error = %v", err)
	}
	if ticket != nil {
		t.Fatalf("second save ticket = %+v, want nil", ticket)
	}

	// A new line after a save tickets alone.
	board.AddToOrder(1, testItem("Wine", 5.00), "ana")
	ticket, err = board.SaveOrder(1)
	if err != nil {
		t.Fatalf("SaveOrder() error = %v", err)
	}
	if ticket == nil || len(ticket.Lines) != 1 || ticket.Lines[0].Name != "Wine" {
		t.Fatalf("third save should ticket only the wine line, got %+v", ticket)
	}

	table, _ := board.Table(1)
	for _, line := range table.Order.Lines {
		if line.Status != LineStatusOrdered {
			t.Errorf("line %q status = %q, want ordered", line.Name, line.Status)
		}
	}
}

func TestBoardFinalizeSale(t *testing.T) {
	board := NewBoard(1, 0.10, apt.NewNoopLogger())
	board.AddToOrder(1, testItem("Beer", 10.00), "ana")

	// Underpayment is rejected with no state change.
	if _, err := board.FinalizeSale(1, 10.99, "ana"); !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("underpaid finalize error = %v, want ErrInsufficientPayment", err)
	}
	table, _ := board.Table(1)
	if table.Order == nil {
		t.Fatal("underpaid finalize must not clear the table")
	}

	sale, err := board.FinalizeSale(1, 15.00, "ana")
	if err != nil {
		t.Fatalf("FinalizeSale() error = %v", err)
	}
	if sale.Order.Total != 11.00 {
		t.Errorf("sale total = %.2f, want 11.00", sale.Order.Total)
	}
	if sale.AmountPaid != 15.00 {
		t.Errorf("amount paid = %.2f, want 15.00", sale.AmountPaid)
	}
	if sale.ClosedBy != "ana" {
		t.Errorf("closed by = %q, want ana", sale.ClosedBy)
	}

	table, _ = board.Table(1)
	if table.Order != nil {
		t.Error("table should be empty after finalize")
	}

	if _, err := board.FinalizeSale(1, 100, "ana"); !errors.Is(err, ErrNoOpenOrder) {
		t.Errorf("finalize on empty table error = %v, want ErrNoOpenOrder", err)
	}
}

func TestBoardRestoreOrder(t *testing.T) {
	board := NewBoard(1, 0.10, apt.NewNoopLogger())
	board.AddToOrder(1, testItem("Beer", 10.00), "ana")

	sale, err := board.FinalizeSale(1, 15.00, "ana")
	if err != nil {
		t.Fatalf("FinalizeSale() error = %v", err)
	}

	if err := board.RestoreOrder(1, &sale.Order); err != nil {
		t.Fatalf("RestoreOrder() error = %v", err)
	}

	table, _ := board.Table(1)
	if table.Order == nil || table.Order.Total != 11.00 {
		t.Fatal("restored order should carry the finalized totals")
	}

	// The restored order is a copy; the sale snapshot stays untouched.
	board.SetLineQuantity(1, table.Order.Lines[0].ID, 3)
	if sale.Order.Lines[0].Quantity != 1 {
		t.Error("mutating the restored order must not reach into the sale")
	}

	if err := board.RestoreOrder(9, &sale.Order); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("restore on unknown table error = %v, want ErrTableNotFound", err)
	}
}

func TestBoardTransferTable(t *testing.T) {
	board := NewBoard(3, 0, apt.NewNoopLogger())
	board.AddToOrder(1, testItem("Beer", 3.50), "ana")
	board.AddToOrder(3, testItem("Wine", 5.00), "bea")

	if err := board.TransferTable(1, 3); !errors.Is(err, ErrDestinationOccupied) {
		t.Fatalf("transfer to occupied table error = %v, want ErrDestinationOccupied", err)
	}

	if err := board.TransferTable(1, 2); err != nil {
		t.Fatalf("TransferTable() error = %v", err)
	}
	src, _ := board.Table(1)
	dst, _ := board.Table(2)
	if src.Order != nil {
		t.Error("source should be empty after transfer")
	}
	if dst.Order == nil || dst.Order.Lines[0].Name != "Beer" {
		t.Error("destination should hold the transferred order")
	}

	if err := board.TransferTable(1, 2); !errors.Is(err, ErrNoOpenOrder) {
		t.Errorf("transfer from empty table error = %v, want ErrNoOpenOrder", err)
	}
}

func TestBoardResizePreservesOrders(t *testing.T) {
	board := NewBoard(4, 0, apt.NewNoopLogger())
	board.AddToOrder(2, testItem("Beer", 3.50), "ana")
	board.AddToOrder(4, testItem("Wine", 5.00), "ana")

	board.Resize(3)
	if got := board.TableCount(); got != 3 {
		t.Fatalf("TableCount() = %d, want 3", got)
	}
	table, _ := board.Table(2)
	if table.Order == nil {
		t.Error("table 2 should keep its order across a shrink")
	}

	board.Resize(5)
	table, _ = board.Table(4)
	if table.Order != nil {
		t.Error("table 4 was dropped on shrink; regrowing must not resurrect it")
	}
}

func TestBoardSetTaxRateRecalculatesOpenOrders(t *testing.T) {
	board := NewBoard(1, 0.10, apt.NewNoopLogger())
	board.AddToOrder(1, testItem("Beer", 10.00), "ana")

	board.SetTaxRate(0.20)

	table, _ := board.Table(1)
	if table.Order.Total != 12.00 {
		t.Errorf("total = %.2f, want 12.00 after rate change", table.Order.Total)
	}
}

func TestBoardApplyCanonical(t *testing.T) {
	board := NewBoard(2, 0, apt.NewNoopLogger())
	board.AddToOrder(1, testItem("Beer", 3.50), "ana")

	incoming := []Table{NewTable(1), NewTable(2)}
	incoming[1].Order = &Order{Lines: []OrderLine{NewOrderLine(testItem("Wine", 5.00), "bea")}}

	board.ApplyCanonical(incoming)

	table, _ := board.Table(1)
	if table.Order != nil {
		t.Error("local edit should be discarded by the canonical broadcast")
	}
	table, _ = board.Table(2)
	if table.Order == nil || table.Order.Lines[0].Name != "Wine" {
		t.Error("canonical order should be applied to table 2")
	}

	// The applied array must not alias the caller's slice.
	incoming[1].Order.Lines[0].Name = "Changed"
	table, _ = board.Table(2)
	if table.Order.Lines[0].Name != "Wine" {
		t.Error("board must deep copy the canonical array")
	}
}

func TestBoardApplyClientUpdate(t *testing.T) {
	board := NewBoard(2, 0.10, apt.NewNoopLogger())

	order := &Order{Lines: []OrderLine{NewOrderLine(testItem("Beer", 10.00), "bea")}}
	if err := board.ApplyClientUpdate(2, order); err != nil {
		t.Fatalf("ApplyClientUpdate() error = %v", err)
	}

	table, _ := board.Table(2)
	if table.Order == nil {
		t.Fatal("client order should be folded into the board")
	}
	if table.Order.Total != 11.00 {
		t.Errorf("total = %.2f, want 11.00 recalculated at the master rate", table.Order.Total)
	}

	// A nil order clears the table.
	if err := board.ApplyClientUpdate(2, nil); err != nil {
		t.Fatalf("ApplyClientUpdate(nil) error = %v", err)
	}
	table, _ = board.Table(2)
	if table.Order != nil {
		t.Error("nil client update should clear the table")
	}
}
