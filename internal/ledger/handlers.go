package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/varejo-erp/varejo-erp/internal/shared"
)

type lotRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Note      string          `json:"note"`
}

type createEntryRequest struct {
	Code       string       `json:"code" validate:"required"`
	Kind       string       `json:"kind" validate:"omitempty,oneof=PURCHASE ONLINE LOCAL ADJUSTMENT"`
	Supplier   string       `json:"supplier"`
	ReceivedAt time.Time    `json:"received_at"`
	TripRef    string       `json:"trip_ref"`
	Note       string       `json:"note"`
	Lots       []lotRequest `json:"lots" validate:"required,min=1,dive"`
}

type editLotRequest struct {
	Quantity *int64           `json:"quantity" validate:"omitempty,gt=0"`
	UnitCost *decimal.Decimal `json:"unit_cost"`
	Note     *string          `json:"note"`
}

type adjustRequest struct {
	TargetQuantity int64            `json:"target_quantity" validate:"gte=0"`
	Reason         string           `json:"reason" validate:"required"`
	UnitCost       *decimal.Decimal `json:"unit_cost"`
}

type stockPolicyRequest struct {
	MinStock int64 `json:"min_stock" validate:"gte=0"`
	MaxStock int64 `json:"max_stock" validate:"gte=0"`
}

func (h *Handler) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	var req createEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := EntryInput{
		Code:       req.Code,
		Kind:       EntryKind(req.Kind),
		Supplier:   req.Supplier,
		ReceivedAt: req.ReceivedAt,
		TripRef:    req.TripRef,
		Note:       req.Note,
	}
	for _, lot := range req.Lots {
		input.Lots = append(input.Lots, LotInput{
			ProductID:   lot.ProductID,
			QtyReceived: lot.Quantity,
			UnitCost:    lot.UnitCost,
			Note:        lot.Note,
		})
	}
	entry, lots, err := h.service.CreateEntry(r.Context(), tenantID, input, actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"entry": entry, "lots": lots})
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	entryID, ok := h.pathID(w, r, "entryID")
	if !ok {
		return
	}
	entry, lots, err := h.service.GetEntry(r.Context(), tenantID, entryID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entry": entry, "lots": lots})
}

func (h *Handler) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	entryID, ok := h.pathID(w, r, "entryID")
	if !ok {
		return
	}
	if err := h.service.DeleteEntry(r.Context(), tenantID, entryID, actorFrom(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEditLot(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	lotID, ok := h.pathID(w, r, "lotID")
	if !ok {
		return
	}
	var req editLotRequest
	if !h.decode(w, r, &req) {
		return
	}
	lot, err := h.service.EditEntryItem(r.Context(), tenantID, lotID, EntryItemChanges{
		QtyReceived: req.Quantity,
		UnitCost:    req.UnitCost,
		Note:        req.Note,
	}, actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lot)
}

func (h *Handler) handleListLots(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	productID, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	lots, err := h.service.ListLots(r.Context(), tenantID, productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lots)
}

func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	productID, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	if h.cache != nil {
		if qty, err := h.cache.Get(r.Context(), tenantID, productID); err == nil {
			h.writeJSON(w, http.StatusOK, map[string]any{"product_id": productID, "quantity": qty, "cached": true})
			return
		}
	}
	agg, err := h.service.GetAggregate(r.Context(), tenantID, productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(r.Context(), tenantID, productID, agg.Quantity); err != nil {
			h.logger.Warn("stock cache set", slog.Any("error", err))
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"product_id": agg.ProductID,
		"quantity":   agg.Quantity,
		"min_stock":  agg.MinStock,
		"max_stock":  agg.MaxStock,
		"updated_at": agg.UpdatedAt,
	})
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	productID, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	unitCost, err := h.adjustUnitCost(r.Context(), tenantID, productID, req.UnitCost)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.service.Adjust(r.Context(), tenantID, AdjustInput{
		ProductID:      productID,
		TargetQuantity: req.TargetQuantity,
		Reason:         req.Reason,
		UnitCost:       unitCost,
		ActorID:        actorFrom(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// adjustUnitCost resolves the cost booked for a synthetic adjustment lot.
// An explicit value always wins; otherwise the product's default cost is
// looked up. Booking at zero would understate COGS, so an adjustment with
// no resolvable cost is rejected instead.
func (h *Handler) adjustUnitCost(ctx context.Context, tenantID, productID int64, explicit *decimal.Decimal) (decimal.Decimal, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if h.costs == nil {
		return decimal.Zero, fmt.Errorf("%w: unit_cost is required", ErrInvalidAdjustment)
	}
	cost, err := h.costs.DefaultUnitCost(ctx, tenantID, productID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("default unit cost: %w", err)
	}
	if !cost.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: product has no cost price, unit_cost is required", ErrInvalidAdjustment)
	}
	return cost, nil
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	productID, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	result, err := h.service.Reconcile(r.Context(), tenantID, productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStockPolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	productID, ok := h.pathID(w, r, "productID")
	if !ok {
		return
	}
	var req stockPolicyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetStockPolicy(r.Context(), tenantID, productID, req.MinStock, req.MaxStock); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("encode response", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrLotNotFound), errors.Is(err, ErrAggregateNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrLotLocked),
		errors.Is(err, ErrEntryHasSales), errors.Is(err, ErrOverRestore):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidAdjustment):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		http.Error(w, http.StatusText(status), status)
		return
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func actorFrom(r *http.Request) int64 {
	raw := r.Header.Get("X-Actor-ID")
	if raw == "" {
		return 0
	}
	id, _ := strconv.ParseInt(raw, 10, 64)
	return id
}
