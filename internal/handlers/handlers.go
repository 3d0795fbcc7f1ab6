// Package handlers implements the HTTP API: warehouse commands, stock and
// event queries, and the outbox operator endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/palletline-systems/palletline-stack/internal/agents"
	"github.com/palletline-systems/palletline-stack/internal/directory"
	"github.com/palletline-systems/palletline-stack/internal/eventstore"
	"github.com/palletline-systems/palletline-stack/internal/httputil"
	"github.com/palletline-systems/palletline-stack/internal/inventory"
	"github.com/palletline-systems/palletline-stack/internal/logging"
	"github.com/palletline-systems/palletline-stack/internal/middleware"
	"github.com/palletline-systems/palletline-stack/internal/outbox"
	"github.com/palletline-systems/palletline-stack/internal/service"
)

// Handler serves the HTTP API.
type Handler struct {
	svc   *service.Service
	stock inventory.StockRepository
	store eventstore.Store
	box   outbox.Repository
	log   *logging.Logger
}

// NewHandler creates a handler.
func NewHandler(svc *service.Service, stock inventory.StockRepository, store eventstore.Store, box outbox.Repository, log *logging.Logger) *Handler {
	return &Handler{
		svc:   svc,
		stock: stock,
		store: store,
		box:   box,
		log:   log.With(logging.Component("http")),
	}
}

// HealthCheck handles GET /healthz.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReceiptRequest is the POST /api/v1/receipts body.
type ReceiptRequest struct {
	TenantID    string          `json:"tenant_id"`
	WarehouseID string          `json:"warehouse_id"`
	ProductID   string          `json:"product_id"`
	VariantID   string          `json:"variant_id,omitempty"`
	LocationID  string          `json:"location_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	LotNumber   string          `json:"lot_number,omitempty"`
	Expiration  *time.Time      `json:"expiration_date,omitempty"`
	ActorID     string          `json:"actor_id,omitempty"`
}

// CreateReceipt handles POST /api/v1/receipts.
func (h *Handler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req ReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, "VALIDATION", "invalid request body", false)
		return
	}

	env, err := h.svc.RecordReceipt(r.Context(), service.ReceiptCommand{
		TenantID:      req.TenantID,
		WarehouseID:   req.WarehouseID,
		ProductID:     req.ProductID,
		VariantID:     req.VariantID,
		LocationID:    req.LocationID,
		Quantity:      req.Quantity,
		LotNumber:     req.LotNumber,
		Expiration:    req.Expiration,
		CorrelationID: middleware.GetCorrelationID(r.Context()),
		Actor:         service.Actor{ID: req.ActorID},
	})
	if err != nil {
		h.writeCommandError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, envelopeResponse(env.EventID, env.CorrelationID))
}

// OrderRequest is the POST /api/v1/orders body.
type OrderRequest struct {
	TenantID    string      `json:"tenant_id"`
	WarehouseID string      `json:"warehouse_id"`
	OrderID     string      `json:"order_id"`
	Lines       []OrderLine `json:"lines"`
	ActorID     string      `json:"actor_id,omitempty"`
}

// OrderLine is one demand line of an order request.
type OrderLine struct {
	LineID    string          `json:"line_id"`
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// CreateOrder handles POST /api/v1/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, "VALIDATION", "invalid request body", false)
		return
	}

	cmd := service.OrderCommand{
		TenantID:      req.TenantID,
		WarehouseID:   req.WarehouseID,
		OrderID:       req.OrderID,
		CorrelationID: middleware.GetCorrelationID(r.Context()),
		Actor:         service.Actor{ID: req.ActorID},
	}
	for _, line := range req.Lines {
		cmd.Lines = append(cmd.Lines, agents.OrderLine{
			LineID:    line.LineID,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		})
	}

	env, err := h.svc.PlaceOrder(r.Context(), cmd)
	if err != nil {
		h.writeCommandError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, envelopeResponse(env.EventID, env.CorrelationID))
}

// MovementRequest is the POST /api/v1/movements body.
type MovementRequest struct {
	TenantID      string          `json:"tenant_id"`
	WarehouseID   string          `json:"warehouse_id"`
	ProductID     string          `json:"product_id"`
	VariantID     string          `json:"variant_id,omitempty"`
	LocationID    string          `json:"location_id"`
	LotID         string          `json:"lot_id,omitempty"`
	MovementType  string          `json:"movement_type"`
	Quantity      decimal.Decimal `json:"quantity"`
	AllowNegative bool            `json:"allow_negative,omitempty"`
	ActorID       string          `json:"actor_id,omitempty"`
}

// CreateMovement handles POST /api/v1/movements.
func (h *Handler) CreateMovement(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, "VALIDATION", "invalid request body", false)
		return
	}

	env, err := h.svc.RecordMovement(r.Context(), service.MovementCommand{
		TenantID:      req.TenantID,
		WarehouseID:   req.WarehouseID,
		ProductID:     req.ProductID,
		VariantID:     req.VariantID,
		LocationID:    req.LocationID,
		LotID:         req.LotID,
		Type:          inventory.MovementType(req.MovementType),
		Quantity:      req.Quantity,
		AllowNegative: req.AllowNegative,
		CorrelationID: middleware.GetCorrelationID(r.Context()),
		Actor:         service.Actor{ID: req.ActorID},
	})
	if err != nil {
		h.writeCommandError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, envelopeResponse(env.EventID, env.CorrelationID))
}

// StockLevelView is the read shape of one stock level.
type StockLevelView struct {
	ID          string          `json:"id"`
	WarehouseID string          `json:"warehouse_id"`
	ProductID   string          `json:"product_id"`
	VariantID   string          `json:"variant_id,omitempty"`
	LocationID  string          `json:"location_id"`
	LotID       string          `json:"lot_id,omitempty"`
	OnHand      decimal.Decimal `json:"on_hand"`
	Reserved    decimal.Decimal `json:"reserved"`
	Available   decimal.Decimal `json:"available"`
	Version     int64           `json:"version"`
}

// ListStockLevels handles GET /api/v1/stock-levels.
func (h *Handler) ListStockLevels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		httputil.WriteError(w, r, http.StatusBadRequest, "VALIDATION", "tenant_id is required", false)
		return
	}

	levels, err := h.stock.FindStockLevels(r.Context(), inventory.StockFilter{
		TenantID:    tenantID,
		WarehouseID: q.Get("warehouse_id"),
		ProductID:   q.Get("product_id"),
		LocationID:  q.Get("location_id"),
		Limit:       parseInt(q.Get("limit"), 100),
	})
	if err != nil {
		h.log.ErrorContext(r.Context(), "stock level query failed", logging.Error(err))
		httputil.WriteError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list stock levels", true)
		return
	}

	views := make([]StockLevelView, 0, len(levels))
	for _, l := range levels {
		views = append(views, StockLevelView{
			ID:          l.ID,
			WarehouseID: l.WarehouseID,
			ProductID:   l.ProductID,
			VariantID:   l.VariantID,
			LocationID:  l.LocationID,
			LotID:       l.LotID,
			OnHand:      l.OnHand,
			Reserved:    l.Reserved,
			Available:   l.Available(),
			Version:     l.Version,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"stock_levels": views})
}

// ListEvents handles GET /api/v1/events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		httputil.WriteError(w, r, http.StatusBadRequest, "VALIDATION", "tenant_id is required", false)
		return
	}

	records, err := h.store.List(r.Context(), eventstore.Filter{
		TenantID:      tenantID,
		EventType:     q.Get("event_type"),
		CorrelationID: q.Get("correlation_id"),
		Limit:         parseInt(q.Get("limit"), 100),
	})
	if err != nil {
		h.log.ErrorContext(r.Context(), "event query failed", logging.Error(err))
		httputil.WriteError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list events", true)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": toEnvelopes(records)})
}

// GetEventChain handles GET /api/v1/events/{id}/chain.
func (h *Handler) GetEventChain(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	records, err := h.store.Chain(r.Context(), id)
	if err != nil {
		if errors.Is(err, eventstore.ErrNotFound) {
			httputil.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "event not found", false)
			return
		}
		h.log.ErrorContext(r.Context(), "chain query failed", logging.Error(err))
		httputil.WriteError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load event chain", true)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"chain": toEnvelopes(records)})
}

// OutboxStats handles GET /api/v1/outbox/stats.
func (h *Handler) OutboxStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.box.Stats(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "outbox stats failed", logging.Error(err))
		httputil.WriteError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load outbox stats", true)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// RequeueOutboxEntry handles POST /api/v1/outbox/{id}/requeue.
func (h *Handler) RequeueOutboxEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.box.Requeue(r.Context(), id); err != nil {
		if errors.Is(err, outbox.ErrNotFound) {
			httputil.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "outbox entry not found", false)
			return
		}
		h.log.ErrorContext(r.Context(), "requeue failed", logging.OutboxID(id), logging.Error(err))
		httputil.WriteError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to requeue entry", true)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(outbox.StatusPending)})
}

// writeCommandError maps command failures onto the error taxonomy.
func (h *Handler) writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		httputil.WriteError(w, r, http.StatusBadRequest, "VALIDATION", err.Error(), false)
	case errors.Is(err, inventory.ErrNotFound), errors.Is(err, directory.ErrNotFound):
		httputil.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), false)
	case errors.Is(err, inventory.ErrNegativeStockBlocked):
		httputil.WriteError(w, r, http.StatusConflict, "NEGATIVE_STOCK_BLOCKED", err.Error(), false)
	case errors.Is(err, inventory.ErrRetriesExhausted), errors.Is(err, inventory.ErrOptimisticLockConflict):
		httputil.WriteError(w, r, http.StatusConflict, "CONCURRENCY_CONFLICT", err.Error(), true)
	default:
		h.log.ErrorContext(r.Context(), "command failed", logging.Error(err))
		httputil.WriteError(w, r, http.StatusInternalServerError, "INTERNAL", "command failed", true)
	}
}

func envelopeResponse(eventID, correlationID string) map[string]string {
	return map[string]string{
		"event_id":       eventID,
		"correlation_id": correlationID,
	}
}

func toEnvelopes(records []*eventstore.Record) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		out = append(out, json.RawMessage(r.Envelope))
	}
	return out
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
