package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/permitdesk/folio/internal/allocator"
	domain "github.com/permitdesk/folio/internal/domain/folio"
	"github.com/permitdesk/folio/internal/lifecycle"
	"github.com/permitdesk/folio/internal/logger"
	"github.com/permitdesk/folio/internal/storage"
	"github.com/permitdesk/folio/internal/version"
)

// Service abstracts the lifecycle operations the transport layer depends on.
type Service interface {
	Issue(ctx context.Context, requester domain.Requester, payload json.RawMessage) (*domain.Record, error)
	Confirm(ctx context.Context, f domain.Folio) error
	Override(ctx context.Context, f domain.Folio, actor *domain.Actor) error
	Stop(ctx context.Context, f domain.Folio) error
	Status(ctx context.Context, f domain.Folio) (*domain.Record, time.Duration, error)
	PendingByRequester(requester domain.Requester) []domain.Folio
}

// Server exposes the folio lifecycle over HTTP.
type Server struct {
	// service provides the lifecycle business logic.
	service Service
	// adminToken authorizes override requests. Empty disables overrides.
	adminToken string
}

// NewServer wires the provided service implementation into an HTTP handler.
func NewServer(service Service, adminToken string) *Server {
	return &Server{
		service:    service,
		adminToken: adminToken,
	}
}

// Router builds the chi router with all folio endpoints mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)

	r.Get("/healthz", s.handleHealth)
	r.Get("/consulta/{folio}", s.handleConsulta)

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/folios", s.handleIssue)
		api.Get("/folios/{folio}", s.handleStatus)
		api.Post("/folios/{folio}/confirm", s.handleConfirm)
		api.Post("/folios/{folio}/override", s.handleOverride)
		api.Post("/folios/{folio}/stop", s.handleStop)
		api.Get("/requesters/{requester}/folios", s.handlePending)
	})

	return r
}

// issueRequest is the issuance payload supplied by the conversational flow.
type issueRequest struct {
	Requester string          `json:"requester"`
	Payload   json.RawMessage `json:"payload"`
}

// issueResponse returns the folio and its computed deadline for display.
type issueResponse struct {
	Folio    string    `json:"folio"`
	Deadline time.Time `json:"deadline"`
}

// handleIssue allocates a folio and starts its countdown.
func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")

		return
	}

	if req.Requester == "" {
		writeError(w, http.StatusBadRequest, "requester is required")

		return
	}

	record, err := s.service.Issue(r.Context(), domain.Requester(req.Requester), req.Payload)

	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, issueResponse{
			Folio:    string(record.Folio),
			Deadline: record.Deadline,
		})
	case errors.Is(err, allocator.ErrAllocationExhausted):
		writeError(w, http.StatusServiceUnavailable, "no folio available, retry later")
	default:
		logger.ErrorKV(r.Context(), "Issuance failed", "error", err)
		writeError(w, http.StatusInternalServerError, "issuance failed")
	}
}

// triggerResponse reports which way a trigger went. AlreadyResolved is a
// valid outcome for the caller, not an error.
type triggerResponse struct {
	Folio   string `json:"folio"`
	Outcome string `json:"outcome"`
}

// handleConfirm applies the user-confirmation trigger.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, "confirmed", func(ctx context.Context, f domain.Folio) error {
		return s.service.Confirm(ctx, f)
	})
}

// handleStop applies the explicit-stop trigger.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, "stopped", func(ctx context.Context, f domain.Folio) error {
		return s.service.Stop(ctx, f)
	})
}

// handleOverride applies the administrative trigger. Requires the admin
// token; the acting admin is taken from the X-Admin-Actor header.
func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	if s.adminToken == "" {
		writeError(w, http.StatusForbidden, "overrides are disabled")

		return
	}

	token := r.Header.Get("X-Admin-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid admin token")

		return
	}

	actor := &domain.Actor{
		Hostname: r.Header.Get("X-Admin-Host"),
		Username: r.Header.Get("X-Admin-Actor"),
	}

	s.trigger(w, r, "overridden", func(ctx context.Context, f domain.Folio) error {
		return s.service.Override(ctx, f, actor)
	})
}

// trigger runs the shared trigger plumbing for confirm/override/stop.
func (s *Server) trigger(w http.ResponseWriter, r *http.Request, outcome string, apply func(context.Context, domain.Folio) error) {
	f := domain.Folio(chi.URLParam(r, "folio"))

	err := apply(r.Context(), f)

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, triggerResponse{Folio: string(f), Outcome: outcome})
	case errors.Is(err, lifecycle.ErrAlreadyResolved):
		writeJSON(w, http.StatusOK, triggerResponse{Folio: string(f), Outcome: "already_resolved"})
	default:
		// The transition won but a downstream write failed; the folio is
		// permanently out of the countdown either way.
		logger.ErrorKV(r.Context(), "Trigger partially failed", "folio", f, "error", err)
		writeJSON(w, http.StatusOK, triggerResponse{Folio: string(f), Outcome: outcome})
	}
}

// statusResponse reports the persisted record and remaining countdown.
type statusResponse struct {
	Folio            string          `json:"folio"`
	Requester        string          `json:"requester"`
	Status           string          `json:"status"`
	IssuedAt         time.Time       `json:"issued_at"`
	Deadline         time.Time       `json:"deadline"`
	RemainingSeconds int64           `json:"remaining_seconds"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

// handleStatus reports a folio's record and remaining time.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	f := domain.Folio(chi.URLParam(r, "folio"))

	record, remaining, err := s.service.Status(r.Context(), f)

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, statusResponse{
			Folio:            string(record.Folio),
			Requester:        string(record.Requester),
			Status:           string(record.Status),
			IssuedAt:         record.IssuedAt,
			Deadline:         record.Deadline,
			RemainingSeconds: int64(remaining / time.Second),
			Payload:          record.Payload,
		})
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "folio not found")
	default:
		logger.ErrorKV(r.Context(), "Status lookup failed", "folio", f, "error", err)
		writeError(w, http.StatusInternalServerError, "status lookup failed")
	}
}

// pendingResponse lists a requester's folios still under countdown.
type pendingResponse struct {
	Requester string   `json:"requester"`
	Folios    []string `json:"folios"`
}

// handlePending lists the requester's pending folios.
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	requester := domain.Requester(chi.URLParam(r, "requester"))

	folios := s.service.PendingByRequester(requester)

	out := make([]string, 0, len(folios))
	for _, f := range folios {
		out = append(out, string(f))
	}

	writeJSON(w, http.StatusOK, pendingResponse{
		Requester: string(requester),
		Folios:    out,
	})
}

// handleHealth reports service liveness and build version.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Short(),
	})
}

// writeJSON encodes v with the given HTTP status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends a JSON error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
