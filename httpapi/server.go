// Package httpapi exposes the queue over HTTP.
//
// The handlers translate between the JSON surface and the core
// components; all queue semantics live behind the Admission, Manager and
// Estimator types.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/genforge/forgeq"
)

// Server routes the public API.
//
//	POST /projects                submit a generation request
//	GET  /projects/{job_id}       job status view
//	POST /projects/{job_id}/cancel
//	GET  /queue/stats             queue snapshot
//	GET  /health                  liveness
//	GET  /metrics                 prometheus scrape
type Server struct {
	admission *forgeq.Admission
	manager   *forgeq.Manager
	estimator *forgeq.Estimator
	log       *slog.Logger
	router    chi.Router
}

// New assembles the router over the core components. The metrics handler
// is mounted as-is; pass nil to omit the scrape endpoint.
func New(admission *forgeq.Admission, manager *forgeq.Manager, estimator *forgeq.Estimator, metricsHandler http.Handler, log *slog.Logger) *Server {
	s := &Server{
		admission: admission,
		manager:   manager,
		estimator: estimator,
		log:       log,
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/projects", s.submit)
	r.Get("/projects/{jobID}", s.status)
	r.Post("/projects/{jobID}/cancel", s.cancel)
	r.Get("/queue/stats", s.stats)
	r.Get("/health", s.health)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
