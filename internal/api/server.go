// Package api serves the lead-finder JSON HTTP surface: run submission and
// polling, lead review, imports and stats.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/pipeline"
	"github.com/sells-group/lead-finder/internal/source"
	"github.com/sells-group/lead-finder/internal/store"
)

// Runner submits and tracks background runs.
type Runner interface {
	Submit(ctx context.Context, kind model.RunKind, params json.RawMessage) (*model.Run, error)
	Get(ctx context.Context, id int64) (*model.Run, error)
	List(ctx context.Context, filter model.RunFilter) ([]model.Run, error)
}

// Importer ingests a candidate stream synchronously.
type Importer interface {
	Ingest(ctx context.Context, s source.Stream, opts pipeline.Options) (pipeline.Summary, error)
}

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Runs     Runner
	Leads    store.LeadStore
	Importer Importer

	// Gatherer backs GET /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer

	CORSOrigins []string

	// MaxUploadBytes bounds import request bodies. 0 means 32 MiB.
	MaxUploadBytes int64
}

const defaultMaxUpload = 32 << 20

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = defaultMaxUpload
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestID, accessLog, recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	rh := runsHandler{runs: d.Runs}
	lh := leadsHandler{leads: d.Leads}
	ih := importHandler{importer: d.Importer, maxBytes: d.MaxUploadBytes}

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", rh.list)
		r.Get("/runs/{id:[0-9]+}", rh.get)
		r.Post("/runs/{kind}", rh.submit)

		r.Get("/leads", lh.list)
		r.Get("/leads/{id}", lh.get)
		r.Patch("/leads/{id}", lh.patch)
		r.Get("/stats", lh.stats)

		r.Post("/import/csv", ih.csv)
		r.Post("/import/leads-json", ih.leadsJSON)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed on "+r.URL.Path)
	})
	return r
}
