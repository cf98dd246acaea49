// Package httpapi exposes the ledger service as JSON over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tracechain/internal/adapters/passports"
	"tracechain/internal/core"
	"tracechain/internal/events"
)

// PassportQueue schedules asynchronous passport publications.
type PassportQueue interface {
	Enqueue(ctx context.Context, lot, requestedBy, reason string) (passports.Job, error)
	Get(id string) (passports.Job, bool)
}

// Server routes HTTP requests to a ledger Service.
type Server struct {
	svc     *core.Service
	ring    *events.Ring
	limiter *rate.Limiter
	metrics http.Handler
	jobs    PassportQueue
	logger  *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithEventRing serves recent notifications from ring on GET /events.
func WithEventRing(ring *events.Ring) Option {
	return func(s *Server) { s.ring = ring }
}

// WithRateLimit caps the request rate across all clients. rps <= 0 disables
// limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithPassportQueue enables the asynchronous passport routes.
func WithPassportQueue(q PassportQueue) Option {
	return func(s *Server) { s.jobs = q }
}

// WithLogger sets the access logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer builds a Server over svc.
func NewServer(svc *core.Service, opts ...Option) *Server {
	s := &Server{svc: svc, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler. Lots are addressed by a single
// path segment, so identifiers containing "/" are reachable only through the
// service and the CLI.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(accessLog(s.logger.Named("http")))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(api chi.Router) {
		if s.limiter != nil {
			api.Use(rateLimit(s.limiter))
		}

		api.Get("/events", s.handleRecentEvents)
		api.Get("/tokens/{token}", s.handleLookupToken)
		api.Get("/leaderboard", s.handleLeaderboard)
		if s.jobs != nil {
			api.Get("/passport-jobs/{id}", s.handleGetPassportJob)
		}

		api.Route("/roles", func(roles chi.Router) {
			roles.Get("/", s.handleListRoles)
			roles.Get("/{identity}", s.handleGetRole)
			roles.With(requireCaller).Put("/{identity}", s.handleAssignRole)
		})

		api.Route("/lots", func(lots chi.Router) {
			lots.Get("/", s.handleListLots)
			lots.With(requireCaller).Post("/", s.handleRegister)

			lots.Route("/{lot}", func(lot chi.Router) {
				lot.Get("/", s.handleLookupLot)
				lot.Get("/record", s.handleGetProduct)
				lot.Get("/exists", s.handleExists)
				lot.Get("/observations", s.handleGetObservations)
				lot.Get("/analytics", s.handleAnalytics)
				lot.Get("/compliance", s.handleCompliance)
				lot.Get("/badges", s.handleGetBadges)
				lot.Get("/badges/{badge}", s.handleHasBadge)
				lot.Get("/passports", s.handleListPassports)
				lot.Get("/passports/{id}", s.handleReadPassport)

				lot.Group(func(mut chi.Router) {
					mut.Use(requireCaller)
					mut.Put("/thresholds", s.handleSetThresholds)
					mut.Post("/stage", s.handleUpdateStage)
					mut.Post("/observations", s.handleCaptureObservation)
					mut.Post("/badges", s.handleAwardBadge)
					mut.Post("/tokens", s.handleGenerateToken)
					mut.Post("/passport", s.handlePublishPassport)
					if s.jobs != nil {
						mut.Post("/passport/jobs", s.handleEnqueuePassport)
					}
				})
			})
		})
	})

	return r
}
