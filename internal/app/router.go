package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/varejo-erp/varejo-erp/internal/catalog"
	"github.com/varejo-erp/varejo-erp/internal/ledger"
	"github.com/varejo-erp/varejo-erp/internal/observability"
	"github.com/varejo-erp/varejo-erp/internal/sales"
	"github.com/varejo-erp/varejo-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	LedgerHandler  *ledger.Handler
	CatalogHandler *catalog.Handler
	SalesHandler   *sales.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(TenantMiddleware)
		if params.LedgerHandler != nil {
			api.Route("/inventory", params.LedgerHandler.MountRoutes)
		}
		if params.CatalogHandler != nil {
			api.Route("/catalog", params.CatalogHandler.MountRoutes)
		}
		if params.SalesHandler != nil {
			api.Route("/sales", params.SalesHandler.MountRoutes)
		}
	})

	return r
}
