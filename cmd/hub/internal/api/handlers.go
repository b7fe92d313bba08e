package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/ledger"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/registry"
	"github.com/orchai-labs/oracle-hub/cmd/hub/internal/validate"
	"github.com/orchai-labs/oracle-hub/pkg/models"
)

// Report-listing pagination, mirroring the proposal queries this replaced.
const (
	defaultReportLimit = 10
	maxReportLimit     = 30
)

type submitRoundRequest struct {
	Entries []models.RoundEntry `json:"entries"`
}

func (s *Server) handleSubmitRound(w http.ResponseWriter, r *http.Request) {
	var req submitRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "batch has no entries")
		return
	}

	// The caller's bearer token is the principal the validator checks.
	batch := models.RoundBatch{Source: bearerToken(r), Entries: req.Entries}
	report, err := s.controller.Submit(r.Context(), batch)
	if err != nil {
		if errors.Is(err, validate.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "caller is not the price source")
			return
		}
		s.logger.Error("Round submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "round processing failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	// Keys contain slashes (BTC/USD), so callers percent-encode the path
	// segment and chi hands us the raw form.
	key := chi.URLParam(r, "key")
	if dec, err := url.PathUnescape(key); err == nil {
		key = dec
	}
	rec, err := s.ledger.Read(r.Context(), key)
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no price committed for key")
		return
	}
	if err != nil {
		s.logger.Error("Ledger read failed", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultReportLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxReportLimit {
		limit = maxReportLimit
	}

	reports, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Report listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": reports})
}

type registerSubscriberRequest struct {
	Name  string   `json:"name"`
	URL   string   `json:"url"`
	Token string   `json:"token"`
	Keys  []string `json:"keys"`
}

func (s *Server) handleRegisterSubscriber(w http.ResponseWriter, r *http.Request) {
	var req registerSubscriberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || len(req.Keys) == 0 {
		writeError(w, http.StatusBadRequest, "name and keys are required")
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be a valid http(s) endpoint")
		return
	}

	sub := models.Subscriber{
		ID:    uuid.NewString(),
		Name:  req.Name,
		URL:   req.URL,
		Token: req.Token,
		Keys:  req.Keys,
	}
	if err := s.registry.Register(r.Context(), sub); err != nil {
		s.logger.Error("Register failed", zap.String("subscriber", req.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "registry unavailable")
		return
	}
	s.logger.Info("Subscriber registered",
		zap.String("subscriber_id", sub.ID), zap.String("subscriber", sub.Name), zap.Strings("keys", sub.Keys))
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleUnregisterSubscriber(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.Unregister(r.Context(), id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown subscriber")
			return
		}
		s.logger.Error("Unregister failed", zap.String("subscriber_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "registry unavailable")
		return
	}
	if err := s.health.Forget(r.Context(), id); err != nil {
		s.logger.Warn("Failed to drop health state", zap.String("subscriber_id", id), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("List failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"subscribers": subs})
}

func (s *Server) handleSubscriberHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.registry.Get(r.Context(), id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown subscriber")
			return
		}
		writeError(w, http.StatusInternalServerError, "registry unavailable")
		return
	}

	state, err := s.health.State(r.Context(), id)
	if err != nil {
		s.logger.Error("Health lookup failed", zap.String("subscriber_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "health state unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":  state,
		"status": state.Status(),
	})
}

func (s *Server) handleReinstate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.registry.Get(r.Context(), id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown subscriber")
			return
		}
		writeError(w, http.StatusInternalServerError, "registry unavailable")
		return
	}

	state, err := s.health.Reinstate(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "health state unavailable")
		return
	}
	s.logger.Info("Subscriber reinstated by admin", zap.String("subscriber_id", id))
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleForceQuarantine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.registry.Get(r.Context(), id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown subscriber")
			return
		}
		writeError(w, http.StatusInternalServerError, "registry unavailable")
		return
	}

	state, err := s.health.ForceQuarantine(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "health state unavailable")
		return
	}
	s.logger.Info("Subscriber force-quarantined by admin", zap.String("subscriber_id", id))
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"price_ceiling":        s.validator.Ceiling(),
		"quarantine_threshold": s.cfg.QuarantineThreshold,
		"quarantine_cooldown":  s.cfg.QuarantineCooldown.String(),
		"delivery_timeout":     s.cfg.DeliveryTimeout.String(),
		"report_history":       s.cfg.ReportHistory,
	})
}

type setCeilingRequest struct {
	Ceiling string `json:"ceiling"`
}

func (s *Server) handleSetCeiling(w http.ResponseWriter, r *http.Request) {
	var req setCeilingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validator.SetCeiling(req.Ceiling); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("Sanity ceiling updated", zap.String("ceiling", req.Ceiling))
	writeJSON(w, http.StatusOK, map[string]string{"ceiling": s.validator.Ceiling()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "storage unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
