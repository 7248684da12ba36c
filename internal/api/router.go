// Package api serves KPI uploads, records and reports over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/kpi-cli/internal/loader"
	"github.com/sells-group/kpi-cli/internal/monitoring"
	"github.com/sells-group/kpi-cli/internal/store"
)

// Options configures NewRouter.
type Options struct {
	MaxUploadBytes   int64
	UploadsPerMinute int
	AllowedOrigins   []string
	Gatherer         prometheus.Gatherer // /metrics is not mounted when nil
	Collector        *monitoring.Collector
}

type server struct {
	loader         *loader.Loader
	store          store.Store
	table          string
	maxUploadBytes int64
	collector      *monitoring.Collector
}

// NewRouter builds the HTTP handler. ld performs uploads; st and table back
// the read endpoints.
func NewRouter(ld *loader.Loader, st store.Store, table string, opts Options) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &server{
		loader:         ld,
		store:          st,
		table:          table,
		maxUploadBytes: opts.MaxUploadBytes,
		collector:      opts.Collector,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if opts.Gatherer != nil {
		r.Handle("/metrics", monitoring.Handler(opts.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.Timeout(2 * time.Minute))

		r.With(uploadLimiter(opts.UploadsPerMinute)).Post("/uploads", s.handleUpload)
		r.Get("/uploads", s.handleListUploads)
		r.Get("/uploads/stats", s.handleUploadStats)
		r.Get("/records", s.handleRecords)
		r.Get("/reports/{kind}", s.handleReport)
	})

	return r
}
