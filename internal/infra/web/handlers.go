package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"donation-subscription-bot/internal/domain"
	"donation-subscription-bot/internal/domain/model"
	"donation-subscription-bot/internal/infra/logging"
)

const healthTimeout = 2 * time.Second

type entryDTO struct {
	ID                 string      `json:"id"`
	AttributionKey     string      `json:"attribution_key"`
	CumulativeAmount   json.Number `json:"cumulative_amount"`
	LastDonationAt     time.Time   `json:"last_donation_at"`
	SubscriptionExpiry *time.Time  `json:"subscription_expiry"`
	Active             bool        `json:"active"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func toEntryDTO(e *model.LedgerEntry, now time.Time) entryDTO {
	return entryDTO{
		ID:                 e.ID,
		AttributionKey:     e.AttributionKey,
		CumulativeAmount:   json.Number(e.CumulativeAmount.String()),
		LastDonationAt:     e.LastDonationAt,
		SubscriptionExpiry: e.SubscriptionExpiry,
		Active:             e.IsActive(now),
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

func (s *Server) entryList(entries []*model.LedgerEntry) []entryDTO {
	now := s.now()
	out := make([]entryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryDTO(e, now))
	}
	return out
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	result := map[string]string{}
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			logging.With(r.Context(), s.log).Warn().Err(err).Str("check", name).Msg("health check failed")
			result[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		result[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": result})
}

type sessionRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) sessionCreateHandler(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil || s.apiKey == "" {
		writeError(w, http.StatusForbidden, "admin api disabled")
		return
	}
	var req sessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if !keyMatches(req.APIKey, s.apiKey) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	tok, exp, err := s.auth.Mint(w)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": tok, "expires_at": exp})
}

func (s *Server) sessionDeleteHandler(w http.ResponseWriter, r *http.Request) {
	if s.auth != nil {
		s.auth.Clear(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

// entriesHandler searches by message substring (?q=) or by handle (?handle=).
func (s *Server) entriesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		entries []*model.LedgerEntry
		err     error
	)
	switch {
	case q.Get("handle") != "":
		entries, err = s.ledgerUC.QueryByHandle(r.Context(), q.Get("handle"))
	case q.Get("q") != "":
		entries, err = s.ledgerUC.QueryByAttribution(r.Context(), q.Get("q"))
	default:
		writeError(w, http.StatusBadRequest, "q or handle is required")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.entryList(entries))
}

func (s *Server) expiredHandler(w http.ResponseWriter, r *http.Request) {
	asOf := s.now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "as_of must be RFC3339")
			return
		}
		asOf = t
	}
	entries, err := s.ledgerUC.QueryExpired(r.Context(), asOf)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.entryList(entries))
}

func (s *Server) entryGetHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be a UUID")
		return
	}
	e, err := s.ledgerUC.Get(r.Context(), id.String())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e, s.now()))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.statsUC.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	data, _, err := s.exportUC.LedgerJSON(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	name := "subscriptions_" + s.now().In(s.loc).Format("2006-01-02") + ".json"
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type syncRequest struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

// syncHandler runs a watermark sync, or refetches an explicit window when the
// body names one.
func (s *Server) syncHandler(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}

	var (
		rep *model.SyncReport
		err error
	)
	if req.From != nil {
		to := s.now()
		if req.To != nil {
			to = *req.To
		}
		if to.Before(*req.From) {
			writeError(w, http.StatusBadRequest, "to is before from")
			return
		}
		rep, err = s.syncUC.SyncRange(r.Context(), *req.From, to)
	} else {
		rep, err = s.syncUC.Sync(r.Context())
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) reconcileHandler(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reconcileUC.Run(r.Context(), s.channel)
	if err != nil && rep == nil {
		s.fail(w, r, err)
		return
	}
	if err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("reconciliation interrupted")
	}
	writeJSON(w, http.StatusOK, rep)
}

// fail maps domain errors to status codes; anything unexpected is logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("admin api request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}
