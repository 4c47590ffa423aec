package event

import "time"

const (
	// PresenceTopic carries terminal announcements made at connect time.
	PresenceTopic = "pos.presence"
	// TableStateTopic carries the canonical table array broadcast by the master.
	TableStateTopic = "pos.tables.state"
	// TableRequestTopic carries state requests answered by the master.
	TableRequestTopic = "pos.tables.request"
	// ClientUpdateTopic carries scoped table edits forwarded by client terminals.
	ClientUpdateTopic = "pos.tables.client"
	// SalesTopic carries sale finalization notifications.
	SalesTopic = "pos.sales"
	// PrintTopic carries print requests for kitchen tickets and receipts.
	PrintTopic = "pos.print"

	EventIdentifyAsMaster    = "terminal.identify_as_master"
	EventRequestLatestState  = "terminal.request_latest_state"
	EventShareYourState      = "tables.share_your_state"
	EventRequestInitialState = "tables.request_initial_state"
	EventHereIsMyState       = "tables.here_is_my_state"
	EventProvideInitialState = "tables.provide_initial_state"
	EventOrderUpdate         = "tables.order_update"
	EventClientOrderUpdate   = "tables.client_order_update"
	EventSaleFinalized       = "sales.finalized"
	EventPrintOrderTicket    = "print.order_ticket"
	EventPrintSaleReceipt    = "print.sale_receipt"
)

// Envelope is shared by every relay event so receivers can identify the
// sender and drop their own echoes.
type Envelope struct {
	EventType  string    `json:"event_type"`
	Terminal   string    `json:"terminal"`
	Role       string    `json:"role,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PresenceEvent announces a terminal on connect or reconnect.
type PresenceEvent struct {
	Envelope
}

// TableStateRequestEvent asks the master to replay its current table array.
type TableStateRequestEvent struct {
	Envelope
}

// OrderLineState is the wire form of a single order line.
type OrderLineState struct {
	ID         string  `json:"id"`
	ItemID     string  `json:"item_id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Category   string  `json:"category,omitempty"`
	Printer    string  `json:"printer,omitempty"`
	Quantity   int     `json:"quantity"`
	AddedBy    string  `json:"added_by"`
	Status     string  `json:"status"`
	TrackStock bool    `json:"track_stock,omitempty"`
}

// OrderState is the wire form of an order attached to a table.
type OrderState struct {
	Lines    []OrderLineState `json:"lines"`
	Subtotal float64          `json:"subtotal"`
	Tax      float64          `json:"tax"`
	Total    float64          `json:"total"`
}

// TableState is the wire form of a table within a canonical broadcast.
type TableState struct {
	ID    int         `json:"id"`
	Name  string      `json:"name"`
	Order *OrderState `json:"order,omitempty"`
}

// TableStateEvent carries the full canonical table array. Broadcast by the
// master on every local mutation and in answer to state requests; applied
// wholesale by clients (last broadcast wins).
type TableStateEvent struct {
	Envelope
	Tables []TableState `json:"tables"`
}

// ClientOrderUpdateEvent carries a single table edit from a client terminal
// to the master, which folds it in and rebroadcasts the canonical array.
type ClientOrderUpdateEvent struct {
	Envelope
	TableID int         `json:"table_id"`
	Order   *OrderState `json:"order"`
}

// SaleFinalizedEvent notifies other terminals that a table was cashed out.
type SaleFinalizedEvent struct {
	Envelope
	SaleID    string  `json:"sale_id"`
	TableID   int     `json:"table_id"`
	TableName string  `json:"table_name"`
	Total     float64 `json:"total"`
	ClosedBy  string  `json:"closed_by"`
}

// PrintTicketEvent carries a kitchen/bar ticket payload. Only lines added
// since the previous save are included so stations never reprint sent items.
type PrintTicketEvent struct {
	Envelope
	TableID   int              `json:"table_id"`
	TableName string           `json:"table_name"`
	Lines     []OrderLineState `json:"lines"`
}

// PrintReceiptEvent carries a finalized sale for receipt printing.
type PrintReceiptEvent struct {
	Envelope
	SaleID     string      `json:"sale_id"`
	TableName  string      `json:"table_name"`
	Order      OrderState  `json:"order"`
	AmountPaid float64     `json:"amount_paid"`
	ClosedBy   string      `json:"closed_by"`
}
