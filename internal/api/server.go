// Package api implements the companion HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/verdant-labs/companiond/internal/avatar"
	"github.com/verdant-labs/companiond/internal/checkpoint"
	"github.com/verdant-labs/companiond/internal/history"
	"github.com/verdant-labs/companiond/internal/llm"
	"github.com/verdant-labs/companiond/internal/persona"
	"github.com/verdant-labs/companiond/internal/prompt"
	"github.com/verdant-labs/companiond/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	store     *store.Store
	generator *prompt.Generator
	defaults  checkpoint.ModelParams

	// Optional collaborators; nil disables the feature.
	auditLog *history.Log
	selfies  *avatar.Service

	intakes *intakeSessions

	logger *slog.Logger
	server *http.Server
}

// NewServer creates the API server. auditLog and selfies may be nil.
func NewServer(listen string, st *store.Store, gen *prompt.Generator, defaults checkpoint.ModelParams, auditLog *history.Log, selfies *avatar.Service, logger *slog.Logger) *Server {
	s := &Server{
		store:     st,
		generator: gen,
		defaults:  defaults,
		auditLog:  auditLog,
		selfies:   selfies,
		intakes:   newIntakeSessions(),
		logger:    logger,
	}
	s.server = &http.Server{
		Addr:              listen,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed separately so tests can drive the
// handlers through httptest without binding a port.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1/users/{userID}", func(r chi.Router) {
		r.Post("/companions", s.handleCreate)
		r.Get("/companions", s.handleList)
		r.Delete("/companions", s.handleDeleteAll)

		r.Post("/intake", s.handleIntakeStart)
		r.Post("/intake/answers", s.handleIntakeAnswer)

		r.Post("/companions/active/messages", s.handleMessage)
		r.Post("/companions/active/tone", s.handleSetTone)
		r.Post("/companions/active/debug", s.handleToggleDebug)

		r.Post("/companions/{checkpointID}/activate", s.handleSwitch)
		r.Post("/companions/{checkpointID}/clear-history", s.handleClearHistory)
		r.Post("/companions/{checkpointID}/selfie", s.handleSelfie)
		r.Delete("/companions/{checkpointID}", s.handleDelete)

		r.Get("/history", s.handleHistory)
		r.Get("/chat", s.handleChatWS)
	})

	return r
}

// ListenAndServe runs the server until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("api listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// writeError maps domain errors onto HTTP statuses: unknown or
// cross-user checkpoints are 404, bad persona or request input is 400,
// provider rate limiting is 429, other provider failures are 502, and
// everything else (including persistence failures) is 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, persona.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, llm.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, llm.ErrProvider):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()}, s.logger)
}
