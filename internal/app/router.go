package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ledgerkite/ledgerkite/internal/billing"
	"github.com/ledgerkite/ledgerkite/internal/customers"
	"github.com/ledgerkite/ledgerkite/internal/items"
	"github.com/ledgerkite/ledgerkite/internal/observability"
	"github.com/ledgerkite/ledgerkite/internal/recon"
	"github.com/ledgerkite/ledgerkite/internal/tenants"
	"github.com/ledgerkite/ledgerkite/internal/vendors"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	TenantsHandler   *tenants.Handler
	CustomersHandler *customers.Handler
	VendorsHandler   *vendors.Handler
	ItemsHandler     *items.Handler
	BillingHandler   *billing.Handler
	ReconHandler     *recon.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with default middleware and all
// tenant-scoped API routes.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/tenants", func(r chi.Router) {
		params.TenantsHandler.MountRoutes(r)
		r.Route("/{tenantID}", func(r chi.Router) {
			params.TenantsHandler.MountTenantRoutes(r)
			r.Route("/customers", params.CustomersHandler.MountRoutes)
			r.Route("/vendors", params.VendorsHandler.MountRoutes)
			r.Route("/items", params.ItemsHandler.MountRoutes)
			params.BillingHandler.MountRoutes(r)
			r.Route("/recon", params.ReconHandler.MountRoutes)
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
