package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"

	"github.com/opentill/opentill/pkg/event"
	"github.com/opentill/opentill/services/terminal/internal/pos"
	"github.com/opentill/opentill/services/terminal/internal/reconcile"
	"github.com/opentill/opentill/services/terminal/internal/store"
)

// Role decides which side of the broadcast protocol this terminal plays.
// It is explicit operator configuration fixed for the whole session; there
// is no election and no failover.
type Role string

const (
	// RoleMaster is the sole broadcaster of the canonical table array.
	RoleMaster Role = "master"
	// RoleClient defers to the master and forwards its edits through it.
	RoleClient Role = "client"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleMaster:
		return RoleMaster, nil
	case RoleClient:
		return RoleClient, nil
	default:
		return "", fmt.Errorf("unknown terminal role %q", s)
	}
}

// SettingsStore is the slice of the local store the session needs for the
// instant-reload cache of the table array.
type SettingsStore interface {
	PutSetting(ctx context.Context, key string, v any) error
	GetSetting(ctx context.Context, key string, out any) (bool, error)
}

// Reconciler runs one snapshot merge pass.
type Reconciler interface {
	Run(ctx context.Context) (*reconcile.Result, error)
}

// Drainer flushes the mutation queue.
type Drainer interface {
	Drain(ctx context.Context) error
}

// Deps collects the collaborators injected into a DeviceSession.
type Deps struct {
	Board      *pos.Board
	Catalog    *pos.Catalog
	Publisher  events.Publisher
	Subscriber events.Subscriber
	Settings   SettingsStore
	Reconciler Reconciler
	Queue      Drainer
}

// DeviceSession owns a terminal's live state for one process lifetime: its
// role, its relay subscriptions, its offline flag and the fan-out of local
// edits. It replaces what the source kept as module-level globals; tests
// build as many isolated sessions as they need.
type DeviceSession struct {
	name string
	role Role

	board      *pos.Board
	catalog    *pos.Catalog
	publisher  events.Publisher
	subscriber events.Subscriber
	settings   SettingsStore
	reconciler Reconciler
	queue      Drainer
	logger     apt.Logger

	mu     sync.Mutex
	online bool
}

func NewDeviceSession(name string, role Role, deps Deps, logger apt.Logger) *DeviceSession {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &DeviceSession{
		name:       name,
		role:       role,
		board:      deps.Board,
		catalog:    deps.Catalog,
		publisher:  deps.Publisher,
		subscriber: deps.Subscriber,
		settings:   deps.Settings,
		reconciler: deps.Reconciler,
		queue:      deps.Queue,
		logger:     logger,
	}
}

func (s *DeviceSession) Name() string { return s.name }
func (s *DeviceSession) Role() Role   { return s.role }

func (s *DeviceSession) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *DeviceSession) setOnline(online bool) {
	s.mu.Lock()
	s.online = online
	s.mu.Unlock()
}

// Start restores the cached table array for instant display, wires the
// role's subscriptions, announces the terminal and runs the first
// reconciliation pass.
func (s *DeviceSession) Start(ctx context.Context) error {
	s.restoreCachedTables(ctx)

	if err := s.subscribe(ctx); err != nil {
		return err
	}

	s.announce(ctx)
	if err := s.Resync(ctx); err != nil {
		s.logger.Info("initial reconciliation incomplete", "error", err)
	}
	return nil
}

func (s *DeviceSession) Stop(ctx context.Context) error {
	return s.persistCachedTables(ctx)
}

// OnRelayStatus is hooked to the relay's reconnect handler. Every regained
// connection repeats the self-announcement and triggers a reconciliation
// pass followed by a drain; there is no backoff beyond the relay's own
// reconnect cadence.
func (s *DeviceSession) OnRelayStatus(connected bool) {
	if !connected {
		s.setOnline(false)
		s.logger.Info("relay connection lost, operating offline")
		return
	}
	s.logger.Info("relay connection regained")
	ctx := context.Background()
	s.announce(ctx)
	go func() {
		if err := s.Resync(ctx); err != nil {
			s.logger.Info("reconnect reconciliation incomplete", "error", err)
		}
	}()
}

// Resync runs reconciliation, publishes the merged snapshot into the
// in-memory state and only then drains the queue. The ordering is load
// bearing: the UI must see queued local intent before the push happens.
// A client closes the pass by asking the master for the live table array,
// which the reconciled catalog snapshot does not carry.
func (s *DeviceSession) Resync(ctx context.Context) error {
	result, err := s.reconciler.Run(ctx)
	if err != nil {
		return err
	}

	snap := result.Snapshot
	s.catalog.Replace(snap.Users, snap.MenuItems, snap.MenuCategories, snap.TaxRate, snap.TableCount)
	s.board.SetTaxRate(snap.TaxRate)
	if s.board.TableCount() != snap.TableCount {
		s.board.Resize(snap.TableCount)
		s.persistCachedTables(ctx)
	}

	s.setOnline(result.Online)
	if result.Online {
		if err := s.queue.Drain(ctx); err != nil {
			s.setOnline(false)
			return nil
		}
	}

	if s.role == RoleClient {
		s.publish(ctx, event.TableRequestTopic, event.TableStateRequestEvent{
			Envelope: s.envelope(event.EventShareYourState),
		})
	}
	return nil
}

// TableMutated is called after every local table edit. The cached array is
// persisted first; then a master broadcasts the canonical state while a
// client forwards only the scoped edit and trusts the master to fold it in.
func (s *DeviceSession) TableMutated(ctx context.Context, tableID int) {
	s.persistCachedTables(ctx)

	if s.role == RoleMaster {
		s.broadcastState(ctx, event.EventOrderUpdate)
		return
	}
	s.sendClientUpdate(ctx, tableID)
}

// TablesResized is called after the table count changes. The master pushes
// the resized array; a client can only persist locally and wait for the next
// canonical broadcast.
func (s *DeviceSession) TablesResized(ctx context.Context) {
	s.persistCachedTables(ctx)
	if s.role == RoleMaster {
		s.broadcastState(ctx, event.EventOrderUpdate)
	}
}

// SaleFinalized notifies the other terminals and rebroadcasts the cleared
// table through the usual mutation path.
func (s *DeviceSession) SaleFinalized(ctx context.Context, sale *pos.Sale) {
	s.publish(ctx, event.SalesTopic, event.SaleFinalizedEvent{
		Envelope:  s.envelope(event.EventSaleFinalized),
		SaleID:    sale.ID,
		TableID:   sale.TableID,
		TableName: sale.TableName,
		Total:     sale.Order.Total,
		ClosedBy:  sale.ClosedBy,
	})
	s.TableMutated(ctx, sale.TableID)
}

// EmitTicket publishes the kitchen/bar print payload for newly sent lines.
func (s *DeviceSession) EmitTicket(ctx context.Context, ticket *pos.Ticket) {
	if ticket == nil {
		return
	}
	var lines []event.OrderLineState
	if !rehydrate(ticket.Lines, &lines) {
		s.logger.Error("cannot encode ticket lines", "table_id", ticket.TableID)
		return
	}
	s.publish(ctx, event.PrintTopic, event.PrintTicketEvent{
		Envelope:  s.envelope(event.EventPrintOrderTicket),
		TableID:   ticket.TableID,
		TableName: ticket.TableName,
		Lines:     lines,
	})
}

// EmitReceipt publishes the receipt print payload for a finalized sale.
func (s *DeviceSession) EmitReceipt(ctx context.Context, sale *pos.Sale) {
	var order event.OrderState
	if !rehydrate(sale.Order, &order) {
		s.logger.Error("cannot encode receipt order", "sale_id", sale.ID)
		return
	}
	s.publish(ctx, event.PrintTopic, event.PrintReceiptEvent{
		Envelope:   s.envelope(event.EventPrintSaleReceipt),
		SaleID:     sale.ID,
		TableName:  sale.TableName,
		Order:      order,
		AmountPaid: sale.AmountPaid,
		ClosedBy:   sale.ClosedBy,
	})
}

func (s *DeviceSession) subscribe(ctx context.Context) error {
	if s.role == RoleMaster {
		if err := s.subscriber.Subscribe(ctx, event.PresenceTopic, s.handlePresence); err != nil {
			return err
		}
		if err := s.subscriber.Subscribe(ctx, event.TableRequestTopic, s.handleStateRequest); err != nil {
			return err
		}
		return s.subscriber.Subscribe(ctx, event.ClientUpdateTopic, s.handleClientUpdate)
	}

	if err := s.subscriber.Subscribe(ctx, event.PresenceTopic, s.handlePresence); err != nil {
		return err
	}
	return s.subscriber.Subscribe(ctx, event.TableStateTopic, s.handleOrderUpdate)
}

func (s *DeviceSession) announce(ctx context.Context) {
	eventType := event.EventRequestLatestState
	if s.role == RoleMaster {
		eventType = event.EventIdentifyAsMaster
	}
	s.publish(ctx, event.PresenceTopic, event.PresenceEvent{Envelope: s.envelope(eventType)})
}

// handlePresence reacts to the other side's announcements: the master
// replays its state whenever a client asks for it, a client re-requests
// state whenever a master (re)appears.
func (s *DeviceSession) handlePresence(ctx context.Context, msg []byte) error {
	var announcement event.PresenceEvent
	if err := json.Unmarshal(msg, &announcement); err != nil {
		s.logger.Info("invalid presence event", "error", err)
		return nil
	}
	if announcement.Terminal == s.name {
		return nil
	}

	switch {
	case s.role == RoleMaster && announcement.EventType == event.EventRequestLatestState:
		s.broadcastState(ctx, event.EventProvideInitialState)
	case s.role == RoleClient && announcement.EventType == event.EventIdentifyAsMaster:
		s.publish(ctx, event.TableRequestTopic, event.TableStateRequestEvent{
			Envelope: s.envelope(event.EventRequestInitialState),
		})
	}
	return nil
}

// handleStateRequest answers share-your-state and request-initial-state
// queries. Master only.
func (s *DeviceSession) handleStateRequest(ctx context.Context, msg []byte) error {
	var request event.TableStateRequestEvent
	if err := json.Unmarshal(msg, &request); err != nil {
		s.logger.Info("invalid state request", "error", err)
		return nil
	}
	if request.Terminal == s.name {
		return nil
	}
	if request.EventType == event.EventRequestInitialState {
		s.broadcastState(ctx, event.EventProvideInitialState)
		return nil
	}
	s.broadcastState(ctx, event.EventHereIsMyState)
	return nil
}

// handleClientUpdate folds a client's scoped edit into the canonical state
// and rebroadcasts the whole array. Master only.
func (s *DeviceSession) handleClientUpdate(ctx context.Context, msg []byte) error {
	var update event.ClientOrderUpdateEvent
	if err := json.Unmarshal(msg, &update); err != nil {
		s.logger.Info("invalid client order update", "error", err)
		return nil
	}
	if update.Terminal == s.name {
		return nil
	}

	var order *pos.Order
	if update.Order != nil {
		order = &pos.Order{}
		if !rehydrate(update.Order, order) {
			s.logger.Info("cannot decode client order update", "table_id", update.TableID)
			return nil
		}
	}

	if err := s.board.ApplyClientUpdate(update.TableID, order); err != nil {
		s.logger.Info("rejecting client order update", "table_id", update.TableID, "error", err)
		return nil
	}

	s.persistCachedTables(ctx)
	s.broadcastState(ctx, event.EventOrderUpdate)
	return nil
}

// handleOrderUpdate applies a canonical broadcast wholesale. Client only.
// Last broadcast wins: a local edit the master has not folded in yet is
// overwritten without a merge.
func (s *DeviceSession) handleOrderUpdate(ctx context.Context, msg []byte) error {
	var broadcast event.TableStateEvent
	if err := json.Unmarshal(msg, &broadcast); err != nil {
		s.logger.Info("invalid table state broadcast", "error", err)
		return nil
	}
	if broadcast.Terminal == s.name {
		return nil
	}

	var tables []pos.Table
	if !rehydrate(broadcast.Tables, &tables) {
		s.logger.Info("cannot decode table state broadcast")
		return nil
	}

	s.board.ApplyCanonical(tables)
	s.persistCachedTables(ctx)
	return nil
}

func (s *DeviceSession) broadcastState(ctx context.Context, eventType string) {
	var tables []event.TableState
	if !rehydrate(s.board.Tables(), &tables) {
		s.logger.Error("cannot encode table state broadcast")
		return
	}
	s.publish(ctx, event.TableStateTopic, event.TableStateEvent{
		Envelope: s.envelope(eventType),
		Tables:   tables,
	})
}

func (s *DeviceSession) sendClientUpdate(ctx context.Context, tableID int) {
	table, err := s.board.Table(tableID)
	if err != nil {
		s.logger.Error("cannot load table for client update", "table_id", tableID, "error", err)
		return
	}

	var order *event.OrderState
	if table.Order != nil {
		order = &event.OrderState{}
		if !rehydrate(table.Order, order) {
			s.logger.Error("cannot encode client update", "table_id", tableID)
			return
		}
	}

	s.publish(ctx, event.ClientUpdateTopic, event.ClientOrderUpdateEvent{
		Envelope: s.envelope(event.EventClientOrderUpdate),
		TableID:  tableID,
		Order:    order,
	})
}

func (s *DeviceSession) restoreCachedTables(ctx context.Context) {
	var tables []pos.Table
	found, err := s.settings.GetSetting(ctx, store.SettingCachedTables, &tables)
	if err != nil {
		s.logger.Info("cannot restore cached tables", "error", err)
		return
	}
	if found {
		s.board.ApplyCanonical(tables)
	}
}

func (s *DeviceSession) persistCachedTables(ctx context.Context) error {
	if err := s.settings.PutSetting(ctx, store.SettingCachedTables, s.board.Tables()); err != nil {
		s.logger.Error("cannot persist cached tables", "error", err)
		return err
	}
	return nil
}

// publish is best effort: a relay failure degrades to offline behavior, it
// never propagates to the caller once the local write has happened.
func (s *DeviceSession) publish(ctx context.Context, topic string, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("cannot marshal relay event", "topic", topic, "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, topic, encoded); err != nil {
		s.logger.Info("cannot publish relay event", "topic", topic, "error", err)
	}
}

func (s *DeviceSession) envelope(eventType string) event.Envelope {
	return event.Envelope{
		EventType:  eventType,
		Terminal:   s.name,
		Role:       string(s.role),
		OccurredAt: time.Now().UTC(),
	}
}

// rehydrate converts between the domain and wire representations through
// their shared JSON shape.
func rehydrate(in, out any) bool {
	encoded, err := json.Marshal(in)
	if err != nil {
		return false
	}
	return json.Unmarshal(encoded, out) == nil
}
