package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	analytichttp "github.com/x-run/PipeStock/internal/analytics/http"
	"github.com/x-run/PipeStock/internal/ledger"
	"github.com/x-run/PipeStock/internal/observability"
	"github.com/x-run/PipeStock/internal/products"
	"github.com/x-run/PipeStock/internal/sales"
	"github.com/x-run/PipeStock/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	ProductHandler   *products.Handler
	LedgerHandler    *ledger.Handler
	SalesHandler     *sales.Handler
	AnalyticsHandler *analytichttp.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi router with PipeStock defaults. Ledger
// routes hang off the product resource so a transaction is always
// scoped to one product.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			params.ProductHandler.MountRoutes(r)
			params.LedgerHandler.MountRoutes(r)
		})
		r.Route("/sales", params.SalesHandler.MountRoutes)
		r.Route("/stock", params.AnalyticsHandler.MountStock)
		r.Route("/dashboard", params.AnalyticsHandler.MountDashboard)
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
