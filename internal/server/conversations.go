package server

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/payperwork/payperwork/internal/store"
)

type createConversationRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = "New conversation"
	}

	c := &store.Conversation{UserID: userID(r), Title: req.Title}
	if err := s.store.CreateConversation(r.Context(), c); err != nil {
		log.Printf("[Server] create conversation: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	respondData(w, http.StatusCreated, c)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListConversations(r.Context(), userID(r))
	if err != nil {
		log.Printf("[Server] list conversations: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	respondData(w, http.StatusOK, list)
}

// conversationView is a conversation with its messages attached.
type conversationView struct {
	*store.Conversation
	Messages []store.Message `json:"messages"`
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	c, ok := s.ownedConversation(w, r)
	if !ok {
		return
	}
	messages, err := s.store.ListMessages(r.Context(), c.ID)
	if err != nil {
		log.Printf("[Server] list messages for %s: %v", c.ID, err)
		respondError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	respondData(w, http.StatusOK, conversationView{Conversation: c, Messages: messages})
}

type appendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.ownedConversation(w, r)
	if !ok {
		return
	}

	var req appendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role == "" || req.Content == "" {
		respondError(w, http.StatusBadRequest, "role and content are required")
		return
	}

	m := &store.Message{ConversationID: c.ID, Role: req.Role, Content: req.Content}
	if err := s.store.AppendMessage(r.Context(), m); err != nil {
		log.Printf("[Server] append message: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to append message")
		return
	}
	respondData(w, http.StatusCreated, m)
}

func (s *Server) handleExportConversation(w http.ResponseWriter, r *http.Request) {
	c, ok := s.ownedConversation(w, r)
	if !ok {
		return
	}
	exp, err := s.store.ExportConversation(r.Context(), c.ID)
	if err != nil {
		log.Printf("[Server] export conversation %s: %v", c.ID, err)
		respondError(w, http.StatusInternalServerError, "failed to export conversation")
		return
	}
	respondData(w, http.StatusOK, exp)
}

func (s *Server) handleImportConversation(w http.ResponseWriter, r *http.Request) {
	var exp store.ConversationExport
	if err := decodeJSON(r, &exp); err != nil {
		respondError(w, http.StatusBadRequest, "invalid export payload")
		return
	}
	c, err := s.store.ImportConversation(r.Context(), userID(r), &exp)
	if err != nil {
		log.Printf("[Server] import conversation: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to import conversation")
		return
	}
	respondData(w, http.StatusCreated, c)
}

func (s *Server) ownedConversation(w http.ResponseWriter, r *http.Request) (*store.Conversation, bool) {
	c, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	if err != nil {
		log.Printf("[Server] get conversation: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load conversation")
		return nil, false
	}
	if c.UserID != userID(r) {
		respondError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	return c, true
}
