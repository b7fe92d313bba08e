package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/health"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/ledger"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/registry"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/round"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/validate"
	"github.com/orchai-labs/oracle-hub/pkg/config"
	"github.com/orchai-labs/oracle-hub/pkg/models"
)

// Submitter abstracts the round controller
type Submitter interface {
	Submit(ctx context.Context, batch models.RoundBatch) (*models.RoundReport, error)
}

// Server exposes the inbound round endpoint, the read surface, and the
// admin surface over HTTP.
type Server struct {
	controller Submitter
	ledger     ledger.Store
	registry   registry.Store
	health     *health.Manager
	validator  *validate.Validator
	history    round.History
	ping       func(ctx context.Context) error
	cfg        config.HubConfig
	logger     *zap.Logger
}

func NewServer(
	controller Submitter,
	store ledger.Store,
	reg registry.Store,
	hm *health.Manager,
	v *validate.Validator,
	history round.History,
	ping func(ctx context.Context) error,
	cfg config.HubConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		controller: controller,
		ledger:     store,
		registry:   reg,
		health:     hm,
		validator:  v,
		history:    history,
		ping:       ping,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/rounds", s.handleSubmitRound)
		r.Get("/prices/{key}", s.handleGetPrice)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/rounds/reports", s.handleListReports)
			r.Get("/subscribers", s.handleListSubscribers)
			r.Post("/subscribers", s.handleRegisterSubscriber)
			r.Delete("/subscribers/{id}", s.handleUnregisterSubscriber)
			r.Get("/subscribers/{id}/health", s.handleSubscriberHealth)
			r.Post("/subscribers/{id}/reinstate", s.handleReinstate)
			r.Post("/subscribers/{id}/quarantine", s.handleForceQuarantine)
			r.Get("/config", s.handleGetConfig)
			r.Put("/config/ceiling", s.handleSetCeiling)
		})
	})

	return r
}

// requireAdmin guards the admin surface with the admin bearer token. An
// empty configured token disables the surface entirely.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if s.cfg.AdminToken == "" || token != s.cfg.AdminToken {
			writeError(w, http.StatusUnauthorized, "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
