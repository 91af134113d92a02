// Package httpapi binds internal/ingest's orchestration logic to chi
// routes: health and readiness probes, an authenticated ingestion
// endpoint, status diagnostics, and admin reprocessing.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/ingestd/internal/auth"
	"github.com/claude/ingestd/internal/ingest"
	"github.com/claude/ingestd/internal/obsv"
	"github.com/claude/ingestd/internal/ratelimit"
	"github.com/claude/ingestd/internal/statusbook"
	"github.com/claude/ingestd/internal/store"
)

// StatusStore is the narrow slice of internal/store.DB the diagnostic and
// admin routes need, separated from internal/ingest.Store so this package
// never has to know about raw-ingestion insertion or finalization.
type StatusStore interface {
	Ping(ctx context.Context) error
	GetByID(ctx context.Context, id uuid.UUID) (store.RawIngestion, error)
	ListNeedingAttention(ctx context.Context, limit int) ([]store.RawIngestion, error)
}

// Server holds every dependency the HTTP surface needs and owns the chi
// router.
type Server struct {
	handler   *ingest.Handler
	gate      *auth.Gate
	store     StatusStore
	limiter   ratelimit.Limiter
	metrics   obsv.Metrics
	log       *slog.Logger
	startedAt time.Time
	router    chi.Router
}

// New builds a Server with every route mounted. limiter and metrics may be
// nil, in which case ratelimit.Noop and obsv.NoopMetrics are used — the
// ingestion path never requires either external collaborator to be wired.
func New(h *ingest.Handler, gate *auth.Gate, st StatusStore, limiter ratelimit.Limiter, metrics obsv.Metrics, log *slog.Logger) *Server {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	if metrics == nil {
		metrics = obsv.NoopMetrics{}
	}
	s := &Server{
		handler:   h,
		gate:      gate,
		store:     st,
		limiter:   limiter,
		metrics:   metrics,
		log:       log,
		startedAt: time.Now(),
		router:    chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))

	// Health and readiness probes bypass the auth gate entirely.
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/health/live", s.handleLive)
	s.router.Get("/health/ready", s.handleReady)

	s.router.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)

		r.Post("/api/v1/ingest", s.handleIngest)
		r.Get("/api/v1/status", s.handleStatus)
		r.Post("/api/v1/admin/reprocess/{id}", s.handleReprocess)
		r.Get("/api/v1/admin/raw-ingestions", s.handleListAttention)
	})
}
