package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opentill/opentill/services/terminal/internal/csvimport"
	"github.com/opentill/opentill/services/terminal/internal/pos"
	"github.com/opentill/opentill/services/terminal/internal/store"
	"github.com/opentill/opentill/services/terminal/internal/syncq"
)

const MaxBodyBytes = 1 << 20

// Fanout is the session surface the handler pushes local mutations through.
type Fanout interface {
	Online() bool
	Resync(ctx context.Context) error
	TableMutated(ctx context.Context, tableID int)
	TablesResized(ctx context.Context)
	SaleFinalized(ctx context.Context, sale *pos.Sale)
	EmitTicket(ctx context.Context, ticket *pos.Ticket)
	EmitReceipt(ctx context.Context, sale *pos.Sale)
}

// Cache is the slice of the local durable store the handler writes through.
type Cache interface {
	Put(ctx context.Context, collection, id string, v any) error
	Delete(ctx context.Context, collection, id string) error
	GetAll(ctx context.Context, collection string, out any) error
	PutSetting(ctx context.Context, key string, v any) error
	GetSetting(ctx context.Context, key string, out any) (bool, error)
}

// Recorder is the mutation queue surface: durable enqueue plus the
// opportunistic drain trigger that follows every successful local mutation.
type Recorder interface {
	Enqueue(ctx context.Context, kind syncq.Kind, payload any) (*syncq.Mutation, error)
	DrainAsync()
}

// Ledger is the slice of the remote service used outside the mutation
// queue: append-only log reads plus the bulk menu reorder.
type Ledger interface {
	GetSales(ctx context.Context) ([]pos.Sale, error)
	GetHistory(ctx context.Context) ([]pos.HistoryEntry, error)
	Reorder(ctx context.Context, ids []uuid.UUID) error
}

// Handler exposes every terminal operation to the UI layer. Validation
// failures reject before any state changes; network failures after a local
// optimistic write never surface as hard errors.
type Handler struct {
	board   *pos.Board
	catalog *pos.Catalog
	stock   *pos.StockLedger
	cache   Cache
	queue   Recorder
	remote  Ledger
	fanout  Fanout
	logger  apt.Logger
	config  *apt.Config
	tlm     *telemetry.HTTP
}

func NewHandler(
	board *pos.Board,
	catalog *pos.Catalog,
	stock *pos.StockLedger,
	cache Cache,
	queue Recorder,
	remote Ledger,
	fanout Fanout,
	config *apt.Config,
	logger apt.Logger,
) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		board:   board,
		catalog: catalog,
		stock:   stock,
		cache:   cache,
		queue:   queue,
		remote:  remote,
		fanout:  fanout,
		config:  config,
		logger:  logger,
		tlm:     telemetry.NewHTTP(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Get("/status", h.Status)
	})

	r.Route("/tables", func(r chi.Router) {
		r.Get("/", h.ListTables)
		r.Get("/{id}", h.GetTable)
		r.Post("/{id}/lines", h.AddToOrder)
		r.Delete("/{id}/lines/{lineID}", h.RemoveFromOrder)
		r.Patch("/{id}/lines/{lineID}", h.SetLineQuantity)
		r.Post("/{id}/save", h.SaveOrder)
		r.Post("/{id}/finalize", h.FinalizeSale)
		r.Post("/{id}/clear", h.ClearTable)
		r.Post("/transfer", h.TransferTable)
		r.Put("/count", h.SetTableCount)
	})

	r.Route("/menu", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListMenuItems)
			r.Post("/", h.CreateMenuItem)
			r.Put("/{id}", h.UpdateMenuItem)
			r.Delete("/{id}", h.DeleteMenuItem)
			r.Post("/{id}/waste", h.RecordWaste)
			r.Post("/{id}/supply", h.RecordSupply)
		})
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Post("/", h.CreateCategory)
			r.Put("/{id}", h.UpdateCategory)
			r.Delete("/{id}", h.DeleteCategory)
		})
		r.Post("/import", h.ImportCSV)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Post("/", h.CreateUser)
		r.Delete("/{id}", h.DeleteUser)
	})

	r.Route("/sections", func(r chi.Router) {
		r.Get("/", h.ListSections)
		r.Post("/", h.CreateSection)
		r.Put("/{id}", h.UpdateSection)
		r.Delete("/{id}", h.DeleteSection)
	})

	r.Get("/sales", h.ListSales)
	r.Get("/history", h.ListHistory)
	r.Get("/stock/movements", h.ListStockMovements)

	r.Route("/settings", func(r chi.Router) {
		r.Put("/tax-rate", h.SetTaxRate)
		r.Put("/layout", h.SetLayout)
	})

	r.Post("/sync", h.Sync)
}

// Session

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Login")
	defer finish()
	log := h.log(r)

	var req struct {
		PIN string `json:"pin"`
	}
	if !h.decode(w, r, log, &req) {
		return
	}

	user, ok := h.catalog.UserByPIN(strings.TrimSpace(req.PIN))
	if !ok {
		apt.RespondError(w, http.StatusUnauthorized, "Unknown PIN")
		return
	}
	apt.RespondSuccess(w, user)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Status")
	defer finish()

	status := map[string]any{
		"online":      h.fanout.Online(),
		"table_count": h.board.TableCount(),
		"tax_rate":    h.board.TaxRate(),
	}
	apt.RespondSuccess(w, status)
}

// Tables

func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListTables")
	defer finish()

	apt.RespondCollection(w, h.board.Tables(), "tables")
}

func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetTable")
	defer finish()
	log := h.log(r)

	tableID, ok := h.parseTableID(w, r, log)
	if !ok {
		return
	}

	table, err := h.board.Table(tableID)
	if err != nil {
		apt.RespondError(w, http.StatusNotFound, "Table not found")
		return
	}
	apt.RespondSuccess(w, table)
}

func (h *Handler) AddToOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.AddToOrder")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	tableID, ok := h.parseTableID(w, r, log)
	if !ok {
		return
	}

	var req struct {
		ItemID uuid.UUID `json:"item_id"`
		User   string    `json:"user"`
	}
	if !h.decode(w, r, log, &req) {
		return
	}

	item, found := h.catalog.ItemByID(req.ItemID)
	if !found {
		apt.RespondError(w, http.StatusNotFound, "Menu item not found")
		return
	}

	line, err := h.board.AddToOrder(tableID, *item, req.User)
	if err != nil {
		h.respondBoardError(w, log, err)
		return
	}

	h.fanout.TableMutated(ctx, tableID)
	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, line)
}

func (h *Handler) RemoveFromOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RemoveFromOrder")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	tableID, ok := h.parseTableID(w, r, log)
	if !ok {
		return
	}
	lineID, ok := h.parseUUIDParam(w, r, log, "lineID")
	if !ok {
		return
	}

	if err := h.board.RemoveFromOrder(tableID, lineID); err != nil {
		h.respondBoardError(w, log, err)
		return
	}

	h.fanout.TableMutated(ctx, tableID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetLineQuantity(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetLineQuantity")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	tableID, ok := h.parseTableID(w, r, log)
	if !ok {
		return
	}
	lineID, ok := h.parseUUIDParam(w, r, log, "lineID")
	if !ok {
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if !h.decode(w, r, log, &req) {
		return
	}

	if err := h.board.SetLineQuantity(tableID, lineID, req.Quantity); err != nil {
		h.respondBoardError(w, log, err)
		return
	}

	h.fanout.TableMutated(ctx, tableID)
	table, _ := h.board.Table(tableID)
	apt.RespondSuccess(w, table)
}

func (h *Handler) SaveOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SaveOrder")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	tableID, ok := h.parseTableID(w, r, log)
	if !ok {
		return
	}

	ticket, err := h.board.SaveOrder(tableID)
	if err != nil {
		h.respondBoardError(w, log, err)
		return
	}

	h.fanout.TableMutated(ctx, tableID)
	if ticket != nil {
		h.fanout.EmitTicket(ctx, ticket)
	}

	table, _ := h.board.Table(tableID)
	apt.RespondSuccess(w, table)
}

func (h *Handler) FinalizeSale(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.FinalizeSale")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	tableID, ok := h.parseTableID(w, r, log)
	if !ok {
		return
	}

	var req struct {
		AmountPaid float64 `json:"amount_paid"`
		User       string  `json:"user"`
	}
	if !h.decode(w, r, log, &req) {
		return
	}

	sale, err := h.board.FinalizeSale(tableID, req.AmountPaid, req.User)
	if err != nil {
		h.respondBoardError(w, log, err)
		return
	}

	// Local durable writes first, then the queue, then fan-out. The order
	// goes back on the table if the sale cannot be recorded, so nothing is
	// lost and the cashier can retry.
	if err := h.cache.Put(ctx, store.CollectionSales, sale.ID, sale); err != nil {
		log.Error("cannot cache sale", "error", err)
		if restoreErr := h.board.RestoreOrder(tableID, &sale.Order); restoreErr != nil {
			log.Error("cannot restore order after failed sale write", "error", restoreErr)
		}
		apt.RespondError(w, http.StatusInternalServerError, "Could not record sale")
		return
	}
	h.record(ctx, log, syncq.KindAddSale, sale)

	entry := pos.NewHistoryEntry(tableID, req.User, "sale "+sale.ID)
	if err := h.cache.Put(ctx, store.CollectionHistory, entry.ID.String(), entry); err != nil {
		log.Error("cannot cache history entry", "error", err)
	}
	h.record(ctx, log, syncq.KindAddHistory, entry)

	changed, movements := h.stock.ApplySale(sale)
	h.persistStockChanges(ctx, log, changed, movements)

	h.fanout.SaleFinalized(ctx, sale)
	h.fanout.EmitReceipt(ctx, sale)
	h.queue.DrainAsync()

	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, sale)
}

func (h *Handler) ClearTable(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ClearTable")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	tableID, ok := h.parseTableID(w, r, log)
	if !ok {
		return
	}

	if err := h.board.ClearTable(tableID); err != nil {
		h.respondBoardError(w, log, err)
		return
	}

	h.fanout.TableMutated(ctx, tableID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) TransferTable(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.TransferTable")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	var req struct {
		SourceID      int `json:"source_id"`
		DestinationID int `json:"destination_id"`
	}
	if !h.decode(w, r, log, &req) {
		return
	}

	if err := h.board.TransferTable(req.SourceID, req.DestinationID); err != nil {
		h.respondBoardError(w, log, err)
		return
	}

	h.fanout.TableMutated(ctx, req.SourceID)
	h.fanout.TableMutated(ctx, req.DestinationID)
	apt.RespondSuccess(w, h.board.Tables())
}

func (h *Handler) SetTableCount(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetTableCount")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	var req struct {
		Count int `json:"count"`
	}
	if !h.decode(w, r, log, &req) {
		return
	}
	if req.Count < 1 {
		apt.RespondError(w, http.StatusBadRequest, "Table count must be at least 1")
		return
	}

	h.board.Resize(req.Count)
	h.catalog.SetTableCount(req.Count)
	if err := h.cache.PutSetting(ctx, store.SettingTableCount, req.Count); err != nil {
		log.Error("cannot persist table count", "error", err)
	}

	h.fanout.TablesResized(ctx)
	apt.RespondSuccess(w, h.board.Tables())
}

// Menu items

func (h *Handler) ListMenuItems(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListMenuItems")
	defer finish()

	apt.RespondCollection(w, h.catalog.Items(), "menu/items")
}

func (h *Handler) CreateMenuItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CreateMenuItem")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	item := pos.NewMenuItem()
	if !h.decode(w, r, log, item) {
		return
	}
	item.BeforeCreate()

	if validationErrors := pos.ValidateMenuItem(ctx, item); len(validationErrors) > 0 {
		log.Debug("validation failed", "errors", validationErrors)
		h.respondValidationErrors(w, validationErrors)
		return
	}

	h.catalog.UpsertItem(*item)
	if err := h.cache.Put(ctx, store.CollectionMenuItems, item.ID.String(), item); err != nil {
		log.Error("cannot cache menu item", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not create menu item")
		return
	}
	h.record(ctx, log, syncq.KindAddMenuItem, item)
	h.queue.DrainAsync()

	links := apt.RESTfulLinksFor(item)
	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, item, links...)
}

func (h *Handler) UpdateMenuItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateMenuItem")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseUUIDParam(w, r, log, "id")
	if !ok {
		return
	}

	item := &pos.MenuItem{}
	if !h.decode(w, r, log, item) {
		return
	}
	item.ID = id

	if validationErrors := pos.ValidateMenuItem(ctx, item); len(validationErrors) > 0 {
		log.Debug("validation failed", "errors", validationErrors)
		h.respondValidationErrors(w, validationErrors)
		return
	}

	h.catalog.UpsertItem(*item)
	if err := h.cache.Put(ctx, store.CollectionMenuItems, item.ID.String(), item); err != nil {
		log.Error("cannot cache menu item", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not update menu item")
		return
	}
	h.record(ctx, log, syncq.KindUpdateMenuItem, item)
	h.queue.DrainAsync()

	links := apt.RESTfulLinksFor(item)
	apt.RespondSuccess(w, item, links...)
}

func (h *Handler) DeleteMenuItem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.DeleteMenuItem")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseUUIDParam(w, r, log, "id")
	if !ok {
		return
	}

	h.catalog.RemoveItem(id)
	if err := h.cache.Delete(ctx, store.CollectionMenuItems, id.String()); err != nil {
		log.Error("cannot delete cached menu item", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not delete menu item")
		return
	}
	h.record(ctx, log, syncq.KindDeleteMenuItem, syncq.DeletePayload{ID: id})
	h.queue.DrainAsync()

	w.WriteHeader(http.StatusNoContent)
}

// Stock

func (h *Handler) RecordWaste(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RecordWaste")
	defer finish()
	h.recordMovement(w, r, h.stock.RecordWaste)
}

func (h *Handler) RecordSupply(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RecordSupply")
	defer finish()
	h.recordMovement(w, r, h.stock.RecordSupply)
}

func (h *Handler) recordMovement(
	w http.ResponseWriter,
	r *http.Request,
	apply func(itemID uuid.UUID, quantity int, reason, user string) ([]pos.MenuItem, []pos.StockMovement, error),
) {
	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseUUIDParam(w, r, log, "id")
	if !ok {
		return
	}

	var req struct {
		Quantity int    `json:"quantity"`
		Reason   string `json:"reason"`
		User     string `json:"user"`
	}
	if !h.decode(w, r, log, &req) {
		return
	}

	changed, movements, err := apply(id, req.Quantity, req.Reason, req.User)
	if err != nil {
		h.respondBoardError(w, log, err)
		return
	}

	h.persistStockChanges(ctx, log, changed, movements)
	h.queue.DrainAsync()
	apt.RespondSuccess(w, changed)
}

func (h *Handler) ListStockMovements(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListStockMovements")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	var movements []pos.StockMovement
	if err := h.cache.GetAll(ctx, store.CollectionStockMovements, &movements); err != nil {
		log.Error("cannot list stock movements", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not list stock movements")
		return
	}
	apt.RespondCollection(w, movements, "stock/movements")
}

// Categories

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListCategories")
	defer finish()

	apt.RespondCollection(w, h.catalog.Categories(), "menu/categories")
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CreateCategory")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	category := pos.NewMenuCategory()
	if !h.decode(w, r, log, category) {
		return
	}
	category.EnsureID()

	if validationErrors := pos.ValidateCategory(ctx, category); len(validationErrors) > 0 {
		h.respondValidationErrors(w, validationErrors)
		return
	}

	h.catalog.UpsertCategory(*category)
	if err := h.cache.Put(ctx, store.CollectionMenuCategories, category.ID.String(), category); err != nil {
		log.Error("cannot cache category", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not create category")
		return
	}
	h.record(ctx, log, syncq.KindAddCategory, category)
	h.queue.DrainAsync()

	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, category)
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateCategory")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseUUIDParam(w, r, log, "id")
	if !ok {
		return
	}

	category := &pos.MenuCategory{}
	if !h.decode(w, r, log, category) {
		return
	}
	category.ID = id

	if validationErrors := pos.ValidateCategory(ctx, category); len(validationErrors) > 0 {
		h.respondValidationErrors(w, validationErrors)
		return
	}

	h.catalog.UpsertCategory(*category)
	if err := h.cache.Put(ctx, store.CollectionMenuCategories, category.ID.String(), category); err != nil {
		log.Error("cannot cache category", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not update category")
		return
	}
	h.record(ctx, log, syncq.KindUpdateCategory, category)
	h.queue.DrainAsync()

	apt.RespondSuccess(w, category)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.DeleteCategory")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseUUIDParam(w, r, log, "id")
	if !ok {
		return
	}

	h.catalog.RemoveCategory(id)
	if err := h.cache.Delete(ctx, store.CollectionMenuCategories, id.String()); err != nil {
		log.Error("cannot delete cached category", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not delete category")
		return
	}
	h.record(ctx, log, syncq.KindDeleteCategory, syncq.DeletePayload{ID: id})
	h.queue.DrainAsync()

	w.WriteHeader(http.StatusNoContent)
}

// Users

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListUsers")
	defer finish()

	apt.RespondCollection(w, h.catalog.Users(), "users")
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CreateUser")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	user := pos.NewUser()
	if !h.decode(w, r, log, user) {
		return
	}
	user.BeforeCreate()

	if validationErrors := pos.ValidateUserCreate(ctx, user, h.catalog.Users()); len(validationErrors) > 0 {
		log.Debug("validation failed", "errors", validationErrors)
		h.respondValidationErrors(w, validationErrors)
		return
	}

	h.catalog.UpsertUser(*user)
	if err := h.cache.Put(ctx, store.CollectionUsers, user.ID.String(), user); err != nil {
		log.Error("cannot cache user", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not create user")
		return
	}
	h.record(ctx, log, syncq.KindAddUser, user)
	h.queue.DrainAsync()

	links := apt.RESTfulLinksFor(user)
	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, user, links...)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.DeleteUser")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseUUIDParam(w, r, log, "id")
	if !ok {
		return
	}

	h.catalog.RemoveUser(id)
	if err := h.cache.Delete(ctx, store.CollectionUsers, id.String()); err != nil {
		log.Error("cannot delete cached user", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not delete user")
		return
	}
	h.record(ctx, log, syncq.KindDeleteUser, syncq.DeletePayload{ID: id})
	h.queue.DrainAsync()

	w.WriteHeader(http.StatusNoContent)
}

// Sections

func (h *Handler) ListSections(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListSections")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	var sections []pos.Section
	if err := h.cache.GetAll(ctx, store.CollectionSections, &sections); err != nil {
		log.Error("cannot list sections", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not list sections")
		return
	}
	apt.RespondCollection(w, sections, "sections")
}

func (h *Handler) CreateSection(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CreateSection")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	section := pos.NewSection()
	if !h.decode(w, r, log, section) {
		return
	}
	section.EnsureID()

	if validationErrors := pos.ValidateSection(ctx, section); len(validationErrors) > 0 {
		h.respondValidationErrors(w, validationErrors)
		return
	}

	if err := h.cache.Put(ctx, store.CollectionSections, section.ID.String(), section); err != nil {
		log.Error("cannot cache section", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not create section")
		return
	}
	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, section)
}

func (h *Handler) UpdateSection(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateSection")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseUUIDParam(w, r, log, "id")
	if !ok {
		return
	}

	section := &pos.Section{}
	if !h.decode(w, r, log, section) {
		return
	}
	section.ID = id

	if validationErrors := pos.ValidateSection(ctx, section); len(validationErrors) > 0 {
		h.respondValidationErrors(w, validationErrors)
		return
	}

	if err := h.cache.Put(ctx, store.CollectionSections, section.ID.String(), section); err != nil {
		log.Error("cannot cache section", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not update section")
		return
	}
	apt.RespondSuccess(w, section)
}

func (h *Handler) DeleteSection(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.DeleteSection")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	id, ok := h.parseUUIDParam(w, r, log, "id")
	if !ok {
		return
	}

	if err := h.cache.Delete(ctx, store.CollectionSections, id.String()); err != nil {
		log.Error("cannot delete section", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not delete section")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Logs

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListSales")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	if h.fanout.Online() {
		if sales, err := h.remote.GetSales(ctx); err == nil {
			apt.RespondCollection(w, sales, "sales")
			return
		}
	}

	var sales []pos.Sale
	if err := h.cache.GetAll(ctx, store.CollectionSales, &sales); err != nil {
		log.Error("cannot list sales", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not list sales")
		return
	}
	apt.RespondCollection(w, sales, "sales")
}

func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListHistory")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	if h.fanout.Online() {
		if entries, err := h.remote.GetHistory(ctx); err == nil {
			apt.RespondCollection(w, entries, "history")
			return
		}
	}

	var entries []pos.HistoryEntry
	if err := h.cache.GetAll(ctx, store.CollectionHistory, &entries); err != nil {
		log.Error("cannot list history", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not list history")
		return
	}
	apt.RespondCollection(w, entries, "history")
}

// Settings

func (h *Handler) SetTaxRate(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetTaxRate")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	var req struct {
		Rate float64 `json:"rate"`
	}
	if !h.decode(w, r, log, &req) {
		return
	}

	if validationErrors := pos.ValidateTaxRate(ctx, req.Rate); len(validationErrors) > 0 {
		h.respondValidationErrors(w, validationErrors)
		return
	}

	h.catalog.SetTaxRate(req.Rate)
	h.board.SetTaxRate(req.Rate)
	if err := h.cache.PutSetting(ctx, store.SettingTaxRate, req.Rate); err != nil {
		log.Error("cannot persist tax rate", "error", err)
	}
	h.record(ctx, log, syncq.KindSetTaxRate, syncq.TaxRatePayload{Rate: req.Rate})
	h.queue.DrainAsync()

	apt.RespondSuccess(w, map[string]float64{"rate": req.Rate})
}

func (h *Handler) SetLayout(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetLayout")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	var req struct {
		TablesPerRow int `json:"tables_per_row"`
		SizePercent  int `json:"size_percent"`
	}
	if !h.decode(w, r, log, &req) {
		return
	}

	if req.TablesPerRow > 0 {
		if err := h.cache.PutSetting(ctx, store.SettingTablesPerRow, req.TablesPerRow); err != nil {
			log.Error("cannot persist layout", "error", err)
		}
	}
	if req.SizePercent > 0 {
		if err := h.cache.PutSetting(ctx, store.SettingSizePercent, req.SizePercent); err != nil {
			log.Error("cannot persist layout", "error", err)
		}
	}
	apt.RespondSuccess(w, req)
}

// Sync

func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Sync")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	if err := h.fanout.Resync(ctx); err != nil {
		log.Error("manual sync failed", "error", err)
		apt.RespondError(w, http.StatusServiceUnavailable, "Sync failed, will retry on reconnect")
		return
	}
	apt.RespondSuccess(w, map[string]bool{"online": h.fanout.Online()})
}

// CSV import

func (h *Handler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ImportCSV")
	defer finish()
	log := h.log(r)
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	result, err := csvimport.Import(r.Body, h.catalog.Items())
	if err != nil {
		log.Debug("cannot parse CSV", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Invalid CSV payload")
		return
	}

	for i := range result.NewItems {
		item := result.NewItems[i]
		h.catalog.UpsertItem(item)
		if err := h.cache.Put(ctx, store.CollectionMenuItems, item.ID.String(), item); err != nil {
			log.Error("cannot cache imported item", "error", err, "item", item.Name)
			continue
		}
		h.record(ctx, log, syncq.KindAddMenuItem, item)
	}
	reordered := make([]pos.MenuItem, 0, len(result.Reordered))
	for i := range result.Reordered {
		item := result.Reordered[i]
		h.catalog.UpsertItem(item)
		if err := h.cache.Put(ctx, store.CollectionMenuItems, item.ID.String(), item); err != nil {
			log.Error("cannot cache reordered item", "error", err, "item", item.Name)
			continue
		}
		reordered = append(reordered, item)
	}
	if len(reordered) > 0 {
		h.pushReorder(ctx, log, reordered)
	}
	h.queue.DrainAsync()

	apt.RespondSuccess(w, result.Report)
}

// pushReorder sends the new display order as one bulk call while online.
// Offline, or when the call fails, each item rides the mutation queue
// instead so the order still reaches the remote menu eventually.
func (h *Handler) pushReorder(ctx context.Context, log apt.Logger, items []pos.MenuItem) {
	if h.fanout.Online() {
		ids := make([]uuid.UUID, len(items))
		for i := range items {
			ids[i] = items[i].ID
		}
		err := h.remote.Reorder(ctx, ids)
		if err == nil {
			return
		}
		log.Info("bulk reorder failed, queueing per-item updates", "error", err)
	}
	for i := range items {
		h.record(ctx, log, syncq.KindUpdateMenuItem, items[i])
	}
}

// Helpers

func (h *Handler) persistStockChanges(ctx context.Context, log apt.Logger, changed []pos.MenuItem, movements []pos.StockMovement) {
	for i := range changed {
		item := changed[i]
		if err := h.cache.Put(ctx, store.CollectionMenuItems, item.ID.String(), item); err != nil {
			log.Error("cannot cache stock change", "error", err, "item", item.Name)
			continue
		}
		h.record(ctx, log, syncq.KindUpdateMenuItem, item)
	}
	for i := range movements {
		movement := movements[i]
		if err := h.cache.Put(ctx, store.CollectionStockMovements, movement.ID.String(), movement); err != nil {
			log.Error("cannot cache stock movement", "error", err, "item", movement.ItemName)
		}
	}
}

func (h *Handler) record(ctx context.Context, log apt.Logger, kind syncq.Kind, payload any) {
	if _, err := h.queue.Enqueue(ctx, kind, payload); err != nil {
		log.Error("cannot enqueue mutation", "kind", kind, "error", err)
	}
}

func (h *Handler) respondBoardError(w http.ResponseWriter, log apt.Logger, err error) {
	switch {
	case errors.Is(err, pos.ErrTableNotFound),
		errors.Is(err, pos.ErrLineNotFound),
		errors.Is(err, pos.ErrItemNotFound):
		apt.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pos.ErrOutOfStock),
		errors.Is(err, pos.ErrInsufficientPayment),
		errors.Is(err, pos.ErrDestinationOccupied),
		errors.Is(err, pos.ErrNoOpenOrder):
		apt.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pos.ErrInvalidQuantity):
		apt.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error("operation failed", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Operation failed")
	}
}

func (h *Handler) respondValidationErrors(w http.ResponseWriter, validationErrors []string) {
	apt.RespondError(w, http.StatusBadRequest, strings.Join(validationErrors, "; "))
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", r.Context().Value("request_id"))
}

func (h *Handler) parseTableID(w http.ResponseWriter, r *http.Request, log apt.Logger) (int, bool) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		apt.RespondError(w, http.StatusBadRequest, "Missing table id")
		return 0, false
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		log.Debug("invalid table id", "id", idStr, "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Invalid table id")
		return 0, false
	}
	return id, true
}

func (h *Handler) parseUUIDParam(w http.ResponseWriter, r *http.Request, log apt.Logger, name string) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, name)
	if idStr == "" {
		apt.RespondError(w, http.StatusBadRequest, "Missing "+name+" parameter")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		log.Debug("invalid id parameter", "id", idStr, "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Invalid "+name+" parameter")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, log apt.Logger, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Debug("error reading request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Could not read request body")
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		apt.RespondError(w, http.StatusBadRequest, "Request body is empty")
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		log.Debug("error decoding JSON", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return false
	}
	return true
}
