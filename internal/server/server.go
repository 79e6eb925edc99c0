// Package server is the HTTP surface: the REST API, the provider webhook and
// the websocket upgrade route. Handlers stay thin; lifecycle logic lives in
// the slides service.
package server

import (
	"context"
	"net/http"

	"github.com/payperwork/payperwork/internal/relay"
	"github.com/payperwork/payperwork/internal/slides"
	"github.com/payperwork/payperwork/internal/store"
)

// Watcher starts polling fallback for a dispatched task. The poller satisfies
// it; tests substitute a recorder.
type Watcher interface {
	Watch(ctx context.Context, taskID string)
}

// Server wires handlers to their collaborators.
type Server struct {
	store         *store.Store
	slides        *slides.Service
	hub           *relay.Hub
	watcher       Watcher
	authSecret    string
	webhookSecret string
}

// New creates the server. watcher may be nil when polling fallback is
// disabled.
func New(st *store.Store, svc *slides.Service, hub *relay.Hub, watcher Watcher, authSecret, webhookSecret string) *Server {
	return &Server{
		store:         st,
		slides:        svc,
		hub:           hub,
		watcher:       watcher,
		authSecret:    authSecret,
		webhookSecret: webhookSecret,
	}
}

// Routes builds the full route table. The webhook authenticates by signature,
// the socket route authenticates in its handshake; everything else under
// /api/ requires a bearer token.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /api/slides/manus-webhook", s.handleWebhook)
	mux.HandleFunc("GET /api/socket", s.hub.HandleWS)

	mux.Handle("GET /api/slides/workflow/{id}", s.auth(s.handleWorkflowStatus))

	mux.Handle("POST /api/presentations", s.auth(s.handleCreatePresentation))
	mux.Handle("GET /api/presentations", s.auth(s.handleListPresentations))
	mux.Handle("GET /api/presentations/{id}", s.auth(s.handleGetPresentation))

	mux.Handle("POST /api/conversations", s.auth(s.handleCreateConversation))
	mux.Handle("GET /api/conversations", s.auth(s.handleListConversations))
	mux.Handle("GET /api/conversations/{id}", s.auth(s.handleGetConversation))
	mux.Handle("POST /api/conversations/{id}/messages", s.auth(s.handleAppendMessage))
	mux.Handle("GET /api/conversations/{id}/export", s.auth(s.handleExportConversation))
	mux.Handle("POST /api/conversations/import", s.auth(s.handleImportConversation))

	mux.Handle("POST /api/media", s.auth(s.handleCreateMedia))
	mux.Handle("GET /api/media", s.auth(s.handleListMedia))

	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "ok"})
}
