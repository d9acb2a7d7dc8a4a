package catalog

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/varejo-erp/varejo-erp/internal/shared"
)

// Handler wires HTTP endpoints for the catalog module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products", h.handleCreate)
	r.Get("/products", h.handleList)
	r.Get("/products/{productID}", h.handleGet)
	r.Put("/products/{productID}", h.handleUpdate)
	r.Post("/products/{productID}/activate", h.handleActivate)
	r.Post("/products/import", h.handleImport)
}

type productRequest struct {
	SKU        string          `json:"sku" validate:"required"`
	Name       string          `json:"name" validate:"required"`
	CostPrice  decimal.Decimal `json:"cost_price"`
	SalePrice  decimal.Decimal `json:"sale_price"`
	InitialQty int64           `json:"initial_qty" validate:"gte=0"`
	MinStock   int64           `json:"min_stock" validate:"gte=0"`
	MaxStock   int64           `json:"max_stock" validate:"gte=0"`
}

func (req productRequest) input() ProductInput {
	return ProductInput{
		SKU:        req.SKU,
		Name:       req.Name,
		CostPrice:  req.CostPrice,
		SalePrice:  req.SalePrice,
		InitialQty: req.InitialQty,
		MinStock:   req.MinStock,
		MaxStock:   req.MaxStock,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.service.CreateProduct(r.Context(), tenantID, req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	products, pagination, err := h.service.ListProducts(r.Context(), tenantID, page, perPage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"products": products, "pagination": pagination})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	productID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), tenantID, productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	productID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), tenantID, productID, req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	productID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	product, err := h.service.ActivateProduct(r.Context(), tenantID, productID, actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, product)
}

type importRequest struct {
	Products []productRequest `json:"products" validate:"required,min=1,dive"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	var req importRequest
	if !h.decode(w, r, &req) {
		return
	}
	inputs := make([]ProductInput, 0, len(req.Products))
	for _, p := range req.Products {
		inputs = append(inputs, p.input())
	}
	result, err := h.service.ImportProducts(r.Context(), tenantID, inputs, actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
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

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
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
	case errors.Is(err, ErrProductNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrSKUConflict), errors.Is(err, ErrAlreadyActive):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("catalog request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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
