package ledger

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// QuantityCache is the read cache consulted by the stock endpoint. The
// ledger stays the source of truth; a miss falls through to the aggregate.
type QuantityCache interface {
	Get(ctx context.Context, tenantID, productID int64) (int64, error)
	Set(ctx context.Context, tenantID, productID, qty int64) error
}

// CostSource resolves the cost to book for an upward adjustment when the
// caller does not supply one, normally the product's catalog cost price.
type CostSource interface {
	DefaultUnitCost(ctx context.Context, tenantID, productID int64) (decimal.Decimal, error)
}

// Handler wires HTTP endpoints for the inventory ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	cache    QuantityCache
	costs    CostSource
	validate *validator.Validate
}

// NewHandler constructs the ledger handler. cache and costs may be nil;
// without a cost source, adjustments that add stock must carry a unit cost.
func NewHandler(logger *slog.Logger, service *Service, cache QuantityCache, costs CostSource) *Handler {
	return &Handler{logger: logger, service: service, cache: cache, costs: costs, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/entries", h.handleCreateEntry)
	r.Get("/entries/{entryID}", h.handleGetEntry)
	r.Delete("/entries/{entryID}", h.handleDeleteEntry)
	r.Patch("/lots/{lotID}", h.handleEditLot)
	r.Get("/products/{productID}/lots", h.handleListLots)
	r.Get("/products/{productID}/stock", h.handleGetStock)
	r.Post("/products/{productID}/adjustments", h.handleAdjust)
	r.Post("/products/{productID}/reconcile", h.handleReconcile)
	r.Put("/products/{productID}/stock-policy", h.handleStockPolicy)
}
