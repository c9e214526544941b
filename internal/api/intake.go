package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/verdant-labs/companiond/internal/persona"
)

// intakeSessions holds at most one in-flight companion creation
// dialogue per user. Sessions live in memory only; an abandoned intake
// is simply replaced by the next start.
type intakeSessions struct {
	mu sync.Mutex
	m  map[string]*persona.Intake
}

func newIntakeSessions() *intakeSessions {
	return &intakeSessions{m: make(map[string]*persona.Intake)}
}

func (s *intakeSessions) start(userID string) *persona.Intake {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := persona.NewIntake()
	s.m[userID] = i
	return i
}

func (s *intakeSessions) get(userID string) (*persona.Intake, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.m[userID]
	return i, ok
}

func (s *intakeSessions) finish(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}

// IntakeResponse reports the dialogue position after a start or answer.
type IntakeResponse struct {
	State    string `json:"state"`
	Question string `json:"question,omitempty"`
	Done     bool   `json:"done"`
}

func intakeResponse(i *persona.Intake) IntakeResponse {
	return IntakeResponse{
		State:    i.State().String(),
		Question: i.Question(),
		Done:     i.Done(),
	}
}

// handleIntakeStart begins (or restarts) the staged creation dialogue.
func (s *Server) handleIntakeStart(w http.ResponseWriter, r *http.Request) {
	i := s.intakes.start(chi.URLParam(r, "userID"))
	writeJSON(w, http.StatusOK, intakeResponse(i), s.logger)
}

// IntakeAnswerRequest is one answer in the creation dialogue.
type IntakeAnswerRequest struct {
	Text string `json:"text"`
}

// handleIntakeAnswer records one answer. A rejected answer returns 400
// with the same question so the client can re-ask; the final answer
// creates the companion and returns it.
func (s *Server) handleIntakeAnswer(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	i, ok := s.intakes.get(userID)
	if !ok {
		s.writeError(w, fmt.Errorf("%w: no intake in progress", persona.ErrInvalid))
		return
	}

	var req IntakeAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", persona.ErrInvalid, err))
		return
	}

	if _, err := i.Submit(req.Text); err != nil {
		resp := intakeResponse(i)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    err.Error(),
			"state":    resp.State,
			"question": resp.Question,
		}, s.logger)
		return
	}

	if !i.Done() {
		writeJSON(w, http.StatusOK, intakeResponse(i), s.logger)
		return
	}

	p, err := i.Persona()
	if err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := s.createCompanion(r.Context(), userID, p, CreateRequest{})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.intakes.finish(userID)
	writeJSON(w, http.StatusCreated, rec, s.logger)
}
