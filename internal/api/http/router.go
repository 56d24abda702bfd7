package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/arkilian/drilldown/internal/observability"
	"github.com/arkilian/drilldown/internal/report"
	"github.com/arkilian/drilldown/internal/viewstore"
)

// MaxBodyBytes bounds every API request body.
const MaxBodyBytes = 1 << 20

// Dependencies wires the router.
type Dependencies struct {
	Reports *report.Service
	Views   *viewstore.Store
	// Usage is optional; without it /v1/stats/usage is not served.
	Usage *observability.QueryStats
	// Metrics is optional; without it /metrics is not served.
	Metrics http.Handler
	// Middleware runs outside the default chain, e.g. shutdown tracking.
	Middleware []func(http.Handler) http.Handler
	Logger     logrus.FieldLogger
}

type handlers struct {
	reports *report.Service
	views   *viewstore.Store
	usage   *observability.QueryStats
	log     logrus.FieldLogger
}

// NewRouter builds the API routes.
func NewRouter(deps Dependencies) http.Handler {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "http")
	h := &handlers{reports: deps.Reports, views: deps.Views, usage: deps.Usage, log: log}

	mux := chi.NewRouter()
	for _, mw := range deps.Middleware {
		mux.Use(mw)
	}
	mux.Use(RecoveryMiddleware(log), RequestIDMiddleware, CorrelationIDMiddleware, LoggingMiddleware(log))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if deps.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	mux.Route("/v1", func(r chi.Router) {
		r.Use(ContentTypeMiddleware, middleware.RequestSize(MaxBodyBytes))

		r.Get("/ads/partitions", h.partitions)
		r.Post("/ads/partitions/load", h.loadPartitions)
		r.Post("/ads/overview", h.overview)
		r.Post("/ads/rollup", h.rollup)
		r.Post("/ads/series", h.series)

		r.Post("/events/load", h.loadEvents)
		r.Post("/events/summary", h.eventSummary)
		r.Post("/events/rows", h.eventRows)
		r.Post("/events/attrs", h.attrs)

		r.Post("/columns/derive", h.derive)
		r.Get("/columns/defaults", h.defaultColumns)
		r.Post("/columns/custom", h.customColumn)

		r.Get("/views", h.listViews)
		r.Post("/views", h.saveView)
		r.Get("/views/{id}", h.getView)
		r.Delete("/views/{id}", h.deleteView)

		if h.usage != nil {
			r.Get("/stats/usage", h.statsUsage)
		}
	})
	return mux
}
