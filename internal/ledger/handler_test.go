package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/varejo-erp/varejo-erp/internal/shared"
)

type stubCache struct {
	values map[[2]int64]int64
	sets   int
}

func (c *stubCache) Get(ctx context.Context, tenantID, productID int64) (int64, error) {
	if qty, ok := c.values[[2]int64{tenantID, productID}]; ok {
		return qty, nil
	}
	return 0, ErrAggregateNotFound
}

func (c *stubCache) Set(ctx context.Context, tenantID, productID, qty int64) error {
	c.sets++
	c.values[[2]int64{tenantID, productID}] = qty
	return nil
}

type stubCostSource struct {
	cost decimal.Decimal
}

func (c *stubCostSource) DefaultUnitCost(context.Context, int64, int64) (decimal.Decimal, error) {
	return c.cost, nil
}

func newTestRouter(t *testing.T) (*chi.Mux, *Service, *stubCache) {
	t.Helper()
	svc, _ := newTestService()
	cache := &stubCache{values: map[[2]int64]int64{}}
	handler := NewHandler(slog.Default(), svc, cache, &stubCostSource{cost: dec("35")})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithTenant(req.Context(), tenant)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	handler.MountRoutes(r)
	return r, svc, cache
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateEntryAndListLots(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/entries", `{
		"code": "NF-100",
		"supplier": "Fornecedor A",
		"lots": [
			{"product_id": 1, "quantity": 30, "unit_cost": "35"},
			{"product_id": 1, "quantity": 50, "unit_cost": "40"}
		]
	}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/products/1/lots", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var lots []EntryItem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lots))
	require.Len(t, lots, 2)
	require.EqualValues(t, 30, lots[0].QtyRemaining)
}

func TestHandlerValidationErrors(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/entries", `{"code": "", "lots": []}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/entries", `not json`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/entries/abc", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerErrorMapping(t *testing.T) {
	router, svc, _ := newTestRouter(t)
	ctx := context.Background()

	rr := doJSON(t, router, http.MethodGet, "/entries/404", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	seedLots(t, svc, 1, LotInput{ProductID: 1, QtyReceived: 5, UnitCost: dec("35")})
	_, err := svc.Allocate(ctx, tenant, 1, 2)
	require.NoError(t, err)

	// Locked lot edit maps to 409.
	rr = doJSON(t, router, http.MethodPatch, "/lots/1", `{"quantity": 10}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	// Negative adjustment target is a validation failure.
	rr = doJSON(t, router, http.MethodPost, "/products/1/adjustments", `{"target_quantity": -1, "reason": "x"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHandlerStockReadThrough(t *testing.T) {
	router, svc, cache := newTestRouter(t)

	seedLots(t, svc, 1, LotInput{ProductID: 1, QtyReceived: 30, UnitCost: dec("35")})

	rr := doJSON(t, router, http.MethodGet, "/products/1/stock", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var first map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &first))
	require.EqualValues(t, 30, first["quantity"])
	require.Equal(t, 1, cache.sets)

	// Second read is served from the cache.
	rr = doJSON(t, router, http.MethodGet, "/products/1/stock", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var second map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &second))
	require.Equal(t, true, second["cached"])
	require.Equal(t, 1, cache.sets)
}

func TestHandlerAdjustAndReconcile(t *testing.T) {
	router, svc, _ := newTestRouter(t)

	seedLots(t, svc, 1, LotInput{ProductID: 1, QtyReceived: 30, UnitCost: dec("35")})

	rr := doJSON(t, router, http.MethodPost, "/products/1/adjustments", `{
		"target_quantity": 50, "reason": "contagem", "unit_cost": "38"
	}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var result AdjustResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.EqualValues(t, 20, result.Delta)

	rr = doJSON(t, router, http.MethodPost, "/products/1/reconcile", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var rec ReconcileResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	require.False(t, rec.Drift())
}

func TestHandlerAdjustDefaultsToCatalogCost(t *testing.T) {
	router, _, _ := newTestRouter(t)

	// An upward adjustment with no unit_cost books the lot at the product's
	// cost price, never at zero.
	rr := doJSON(t, router, http.MethodPost, "/products/1/adjustments", `{
		"target_quantity": 30, "reason": "contagem"
	}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var result AdjustResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.EqualValues(t, 30, result.Delta)

	rr = doJSON(t, router, http.MethodGet, "/products/1/lots", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var lots []EntryItem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &lots))
	require.Len(t, lots, 1)
	require.False(t, lots[0].UnitCost.IsZero())
	require.True(t, lots[0].UnitCost.Equal(dec("35")))
}

func TestHandlerAdjustWithoutCostSourceRequiresUnitCost(t *testing.T) {
	svc, _ := newTestService()
	handler := NewHandler(slog.Default(), svc, nil, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithTenant(req.Context(), tenant)))
		})
	})
	handler.MountRoutes(r)

	rr := doJSON(t, r, http.MethodPost, "/products/1/adjustments", `{
		"target_quantity": 30, "reason": "contagem"
	}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	// An explicit cost still goes through.
	rr = doJSON(t, r, http.MethodPost, "/products/1/adjustments", `{
		"target_quantity": 30, "reason": "contagem", "unit_cost": "12.5"
	}`)
	require.Equal(t, http.StatusOK, rr.Code)
}
