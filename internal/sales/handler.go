package sales

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/varejo-erp/varejo-erp/internal/ledger"
	"github.com/varejo-erp/varejo-erp/internal/shared"
)

// Handler wires HTTP endpoints for the sales module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{saleID}", h.handleGet)
	r.Post("/{saleID}/cancel", h.handleCancel)
	r.Post("/{saleID}/lines/{lineID}/return", h.handleReturn)
	r.Get("/{saleID}/costs", h.handleCosts)
}

type lineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Qty       int64           `json:"qty" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type createSaleRequest struct {
	Number      string        `json:"number" validate:"required"`
	CustomerRef string        `json:"customer_ref"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (req createSaleRequest) input(actorID int64) SaleInput {
	lines := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, LineInput{ProductID: l.ProductID, Qty: l.Qty, UnitPrice: l.UnitPrice})
	}
	return SaleInput{Number: req.Number, CustomerRef: req.CustomerRef, Lines: lines, ActorID: actorID}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	var req createSaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	sale, err := h.service.CreateSale(r.Context(), tenantID, req.input(actorFrom(r)))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sale)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	items, pagination, err := h.service.ListSales(r.Context(), tenantID, page, perPage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"sales": items, "pagination": pagination})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	saleID, ok := h.pathID(w, r, "saleID")
	if !ok {
		return
	}
	sale, err := h.service.GetSale(r.Context(), tenantID, saleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sale)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	saleID, ok := h.pathID(w, r, "saleID")
	if !ok {
		return
	}
	if err := h.service.CancelSale(r.Context(), tenantID, saleID, actorFrom(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type returnRequest struct {
	Qty int64 `json:"qty" validate:"required,gt=0"`
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	saleID, ok := h.pathID(w, r, "saleID")
	if !ok {
		return
	}
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}
	var req returnRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ReturnLine(r.Context(), tenantID, saleID, lineID, req.Qty, actorFrom(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCosts(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	saleID, ok := h.pathID(w, r, "saleID")
	if !ok {
		return
	}
	report, err := h.service.CostReport(r.Context(), tenantID, saleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
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
	case errors.Is(err, ErrSaleNotFound), errors.Is(err, ErrLineNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrDuplicateSale), errors.Is(err, ErrSaleCancelled),
		errors.Is(err, ErrReturnExceedsSold), errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, ledger.ErrOverRestore):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("sales request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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
