package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/payperwork/payperwork/internal/store"
)

type createMediaRequest struct {
	Kind     string          `json:"kind"`
	URL      string          `json:"url"`
	Prompt   string          `json:"prompt"`
	Metadata json.RawMessage `json:"metadata"`
}

func (s *Server) handleCreateMedia(w http.ResponseWriter, r *http.Request) {
	var req createMediaRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Kind != "image" && req.Kind != "video" {
		respondError(w, http.StatusBadRequest, "kind must be image or video")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	a := &store.MediaAsset{
		UserID:   userID(r),
		Kind:     req.Kind,
		URL:      req.URL,
		Prompt:   req.Prompt,
		Metadata: req.Metadata,
	}
	if err := s.store.CreateMediaAsset(r.Context(), a); err != nil {
		log.Printf("[Server] create media asset: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to save asset")
		return
	}
	respondData(w, http.StatusCreated, a)
}

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListMediaAssets(r.Context(), userID(r))
	if err != nil {
		log.Printf("[Server] list media assets: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list assets")
		return
	}
	respondData(w, http.StatusOK, list)
}
