package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/verdant-labs/companiond/internal/checkpoint"
	"github.com/verdant-labs/companiond/internal/persona"
)

// CreateRequest is the companion creation payload.
type CreateRequest struct {
	Persona persona.Persona `json:"persona"`

	// Optional overrides of the configured defaults.
	Model             string  `json:"model,omitempty"`
	MemoryTokenBudget int     `json:"memory_token_budget,omitempty"`
	Temperature       float64 `json:"temperature,omitempty"`
}

// CompanionResponse is the wire shape of one companion checkpoint.
// Memory contents stay server-side.
type CompanionResponse struct {
	CheckpointID string `json:"checkpoint_id"`
	CreatedAt    string `json:"created_at"`
	Description  string `json:"description"`
	Tone         string `json:"tone"`
	SelfieURL    string `json:"selfie_url,omitempty"`
}

func companionResponse(rec *checkpoint.Record) CompanionResponse {
	return CompanionResponse{
		CheckpointID: rec.ID,
		CreatedAt:    rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Description:  rec.Description,
		Tone:         rec.Params.Tone,
		SelfieURL:    rec.SelfieURL,
	}
}

// createCompanion runs the full creation pipeline: persona validation,
// prompt generation, persistence, and initial tone normalization.
func (s *Server) createCompanion(ctx context.Context, userID string, p persona.Persona, req CreateRequest) (CompanionResponse, error) {
	if err := p.Validate(); err != nil {
		return CompanionResponse{}, err
	}
	sheet := p.Sheet()

	companionPrompt, err := s.generator.Generate(ctx, sheet)
	if err != nil {
		return CompanionResponse{}, err
	}

	params := s.defaults
	if req.Model != "" {
		params.Model = req.Model
	}
	if req.MemoryTokenBudget > 0 {
		params.MemoryTokenBudget = req.MemoryTokenBudget
	}
	if req.Temperature > 0 {
		params.Temperature = req.Temperature
	}

	rec, err := s.store.Create(ctx, userID, params,
		companionPrompt.Text, companionPrompt.UserName, companionPrompt.BotName, sheet)
	if err != nil {
		return CompanionResponse{}, err
	}

	// The persona's mood seeds the conversation tone, normalized the
	// same way later tone changes are.
	if p.Mood != "" {
		if tone, err := s.store.SetTone(ctx, userID, p.Mood); err != nil {
			s.logger.Warn("initial tone normalization failed, keeping default",
				"user", userID, "error", err)
		} else {
			rec.Params.Tone = tone
		}
	}
	return companionResponse(rec), nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", persona.ErrInvalid, err))
		return
	}

	resp, err := s.createCompanion(r.Context(), chi.URLParam(r, "userID"), req.Persona, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp, s.logger)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]CompanionResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, companionResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"companions": out}, s.logger)
}

// MessageRequest is one chat turn.
type MessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse carries the companion's reply.
type MessageResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		s.writeError(w, fmt.Errorf("%w: message text is required", persona.ErrInvalid))
		return
	}

	ctx := r.Context()
	reply, err := s.store.Message(ctx, userID, req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if s.auditLog != nil {
		if active, aerr := s.store.Active(userID); aerr == nil {
			s.auditLog.Record(ctx, userID, active.ID(), req.Text, reply)
		}
	}

	writeJSON(w, http.StatusOK, MessageResponse{Reply: reply}, s.logger)
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.SwitchTo(r.Context(),
		chi.URLParam(r, "userID"), chi.URLParam(r, "checkpointID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, companionResponse(rec), s.logger)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := s.store.Delete(r.Context(),
		chi.URLParam(r, "userID"), chi.URLParam(r, "checkpointID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.DeleteAll(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n}, s.logger)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	err := s.store.ClearHistory(r.Context(),
		chi.URLParam(r, "userID"), chi.URLParam(r, "checkpointID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToneRequest carries free-form tone text, normalized server-side.
type ToneRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSetTone(w http.ResponseWriter, r *http.Request) {
	var req ToneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		s.writeError(w, fmt.Errorf("%w: tone text is required", persona.ErrInvalid))
		return
	}

	tone, err := s.store.SetTone(r.Context(), chi.URLParam(r, "userID"), req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tone": tone}, s.logger)
}

func (s *Server) handleToggleDebug(w http.ResponseWriter, r *http.Request) {
	debug, err := s.store.ToggleDebug(chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"debug": debug}, s.logger)
}

func (s *Server) handleSelfie(w http.ResponseWriter, r *http.Request) {
	if s.selfies == nil {
		writeJSON(w, http.StatusNotImplemented,
			map[string]string{"error": "selfie generation is not configured"}, s.logger)
		return
	}

	userID := chi.URLParam(r, "userID")
	checkpointID := chi.URLParam(r, "checkpointID")
	ctx := r.Context()

	active, err := s.store.Active(userID)
	if err != nil || active.ID() != checkpointID {
		if _, err := s.store.SwitchTo(ctx, userID, checkpointID); err != nil {
			s.writeError(w, err)
			return
		}
		active, err = s.store.Active(userID)
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	url, err := s.selfies.CreateSelfie(ctx, checkpointID, active.Description())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.SetSelfieURL(ctx, userID, checkpointID, url); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"selfie_url": url}, s.logger)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil {
		writeJSON(w, http.StatusNotImplemented,
			map[string]string{"error": "history logging is not configured"}, s.logger)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, fmt.Errorf("%w: bad limit %q", persona.ErrInvalid, raw))
			return
		}
		limit = n
	}

	entries, err := s.auditLog.Recent(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries}, s.logger)
}
