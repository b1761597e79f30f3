// Package web serves the admin HTTP API: health, metrics, ledger lookups,
// export and manual sync/reconcile triggers.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"donation-subscription-bot/internal/usecase"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Server struct {
	ledgerUC    usecase.LedgerUseCase
	statsUC     usecase.StatsUseCase
	exportUC    usecase.ExportUseCase
	syncUC      usecase.SyncUseCase
	reconcileUC usecase.ReconcileUseCase

	channel string
	apiKey  string
	auth    *AuthManager
	checks  map[string]Pinger
	loc     *time.Location
	log     *zerolog.Logger
	now     func() time.Time
}

func NewServer(
	ledgerUC usecase.LedgerUseCase,
	statsUC usecase.StatsUseCase,
	exportUC usecase.ExportUseCase,
	syncUC usecase.SyncUseCase,
	reconcileUC usecase.ReconcileUseCase,
	channel string,
	apiKey string,
	auth *AuthManager,
	loc *time.Location,
	logger *zerolog.Logger,
) *Server {
	if loc == nil {
		loc = time.UTC
	}
	compLog := logger.With().Str("component", "AdminAPI").Logger()
	return &Server{
		ledgerUC:    ledgerUC,
		statsUC:     statsUC,
		exportUC:    exportUC,
		syncUC:      syncUC,
		reconcileUC: reconcileUC,
		channel:     channel,
		apiKey:      apiKey,
		auth:        auth,
		checks:      map[string]Pinger{},
		loc:         loc,
		log:         &compLog,
		now:         time.Now,
	}
}

// AddHealthCheck registers a dependency probed by /healthz.
func (s *Server) AddHealthCheck(name string, p Pinger) {
	s.checks[name] = p
}

// Router builds the admin API. Everything under /api/v1 except the session
// endpoint requires the admin key or a session token.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID, RequestLog(s.log), Recover(s.log))

	r.Get("/healthz", s.healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session", s.sessionCreateHandler)
		r.Delete("/session", s.sessionDeleteHandler)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/entries", s.entriesHandler)
			r.Get("/entries/expired", s.expiredHandler)
			r.Get("/entries/{id}", s.entryGetHandler)
			r.Get("/stats", s.statsHandler)
			r.Get("/export", s.exportHandler)
			r.Post("/sync", s.syncHandler)
			r.Post("/reconcile", s.reconcileHandler)
		})
	})
	return r
}

// authMiddleware accepts "Authorization: Bearer <admin key>" or a session
// token from the header or cookie.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("Admin API key is not configured")
			writeError(w, http.StatusForbidden, "admin api disabled")
			return
		}
		if tok, ok := bearer(r); ok && keyMatches(tok, s.apiKey) {
			next.ServeHTTP(w, r)
			return
		}
		if s.auth != nil {
			if _, err := s.auth.ParseFromRequest(r); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, http.StatusUnauthorized, "unauthorized")
	})
}

// NewHTTPServer wraps handler with the admin listener timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
