// Package server exposes the writing feedback pipeline over HTTP.
//
// The main route is POST /api/feedback, which accepts a diary entry and
// returns context feedback plus per-sentence grammar feedback. Anonymous
// learners are identified by a long-lived session cookie that the handler
// mints on first contact. Health probes and Prometheus metrics are served
// alongside on /healthz, /readyz, and /metrics.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyojeong/bff/internal/feedback"
	"github.com/gyojeong/bff/internal/health"
	"github.com/gyojeong/bff/internal/observe"
)

// SessionCookieName identifies the learner across requests. The value is an
// opaque UUID; no server-side session state is kept.
const SessionCookieName = "user_session_id"

// sessionCookieMaxAge keeps the cookie for one year.
const sessionCookieMaxAge = 365 * 24 * 60 * 60

// FeedbackService produces a full feedback response for one diary entry.
type FeedbackService interface {
	Create(ctx context.Context, userID string, req feedback.Request) (*feedback.Response, error)
}

// Server handles HTTP routing for the feedback API.
type Server struct {
	svc    FeedbackService
	health *health.Handler
	logger *slog.Logger
}

// New creates a Server. The health handler may be nil, in which case the
// probe routes are not registered.
func New(svc FeedbackService, h *health.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, health: h, logger: logger}
}

// Handler returns the fully wired root handler: API routes, health probes,
// and the Prometheus scrape endpoint, all behind the tracing middleware.
func (s *Server) Handler(m *observe.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/feedback", s.handleFeedback)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}
	return observe.Middleware(m)(mux)
}

// errorBody is the JSON error envelope for non-200 responses.
type errorBody struct {
	Error string `json:"error"`
}

// handleFeedback runs the full pipeline for one diary entry.
//
// A malformed request body yields 400. A pipeline failure yields 500; this
// only happens when sentence splitting fails, every later stage degrades into
// a partial 200 response instead.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedback.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}

	userID := s.sessionID(w, r)

	resp, err := s.svc.Create(r.Context(), userID, req)
	if err != nil {
		observe.Logger(r.Context()).Error("feedback pipeline failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "feedback generation failed"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// sessionID returns the learner ID from the session cookie, minting and
// setting a fresh one when the cookie is absent or empty.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   sessionCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}
