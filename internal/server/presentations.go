package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/payperwork/payperwork/internal/store"
)

type createPresentationRequest struct {
	Prompt string `json:"prompt"`
}

// handleCreatePresentation dispatches a generation job. A provider dispatch
// failure surfaces as 502: the presentation exists but is already in error.
func (s *Server) handleCreatePresentation(w http.ResponseWriter, r *http.Request) {
	var req createPresentationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	p, err := s.slides.StartGeneration(r.Context(), userID(r), req.Prompt)
	if err != nil {
		log.Printf("[Server] start generation: %v", err)
		respondError(w, http.StatusBadGateway, "failed to dispatch generation task")
		return
	}

	if s.watcher != nil {
		// Poll fallback in case the webhook never arrives. Watch goroutines
		// must outlive this request.
		s.watcher.Watch(context.Background(), p.TaskID)
	}
	respondData(w, http.StatusCreated, p)
}

func (s *Server) handleListPresentations(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListPresentations(r.Context(), userID(r))
	if err != nil {
		log.Printf("[Server] list presentations: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list presentations")
		return
	}
	respondData(w, http.StatusOK, list)
}

// presentationView is a presentation with its slides attached.
type presentationView struct {
	*store.Presentation
	Slides []store.Slide `json:"slides"`
}

func (s *Server) handleGetPresentation(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPresentation(w, r)
	if !ok {
		return
	}

	slideSet, err := s.store.ListSlides(r.Context(), p.ID)
	if err != nil {
		log.Printf("[Server] list slides for %s: %v", p.ID, err)
		respondError(w, http.StatusInternalServerError, "failed to load slides")
		return
	}
	respondData(w, http.StatusOK, presentationView{Presentation: p, Slides: slideSet})
}

func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.ownedPresentation(w, r); !ok {
		return
	}

	ws, err := s.slides.WorkflowStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("[Server] workflow status: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	respondData(w, http.StatusOK, ws)
}

// ownedPresentation loads the presentation in the path and enforces
// ownership. Someone else's presentation 404s rather than 403s so ids are
// not probeable.
func (s *Server) ownedPresentation(w http.ResponseWriter, r *http.Request) (*store.Presentation, bool) {
	p, err := s.store.GetPresentation(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "presentation not found")
		return nil, false
	}
	if err != nil {
		log.Printf("[Server] get presentation: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load presentation")
		return nil, false
	}
	if p.UserID != userID(r) {
		respondError(w, http.StatusNotFound, "presentation not found")
		return nil, false
	}
	return p, true
}
