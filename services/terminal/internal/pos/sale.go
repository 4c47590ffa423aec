package pos

import (
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// Sale is an immutable record of a finalized order. Sales are append-only;
// nothing updates or deletes them through normal flow. The id is generated
// locally so offline sales keep a stable identity until the remote ledger
// accepts them.
type Sale struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	Order      Order     `json:"order"`
	ClosedBy   string    `json:"closed_by"`
	TableID    int       `json:"table_id"`
	TableName  string    `json:"table_name"`
	AmountPaid float64   `json:"amount_paid"`
}

func NewSale(table *Table, amountPaid float64, closedBy string) *Sale {
	order := table.Order.Clone()
	return &Sale{
		ID:         apt.GenerateNewID().String(),
		Date:       time.Now().UTC(),
		Order:      *order,
		ClosedBy:   closedBy,
		TableID:    table.ID,
		TableName:  table.Name,
		AmountPaid: amountPaid,
	}
}

// HistoryEntry is an append-only audit record. It is a side channel and is
// never consulted during reconciliation.
type HistoryEntry struct {
	ID      uuid.UUID `json:"id"`
	TableID int       `json:"table_id"`
	At      time.Time `json:"at"`
	User    string    `json:"user"`
	Details string    `json:"details"`
}

func NewHistoryEntry(tableID int, user, details string) HistoryEntry {
	return HistoryEntry{
		ID:      apt.GenerateNewID(),
		TableID: tableID,
		At:      time.Now().UTC(),
		User:    user,
		Details: details,
	}
}
