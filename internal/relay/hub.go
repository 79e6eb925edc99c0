// Package relay fans realtime generation events out to connected clients.
// Each user gets a room; events for a presentation go to its owner's room
// only. Connections must authenticate with a signed token before joining.
package relay

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/payperwork/payperwork/internal/auth"
	"github.com/payperwork/payperwork/internal/protocol"
)

const (
	authDeadline = 10 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from the app origin; the token handshake is
	// what actually gates access.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one authenticated socket. Writes are serialized per connection.
type client struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex
}

func (c *client) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// Hub owns the room table. Register/unregister go through channels so the
// table is only mutated from Run's goroutine; emits take a read lock.
type Hub struct {
	authSecret string

	rooms   map[string]map[*client]bool
	roomsMu sync.RWMutex

	register   chan *client
	unregister chan *client
	done       chan struct{}
}

// NewHub creates a hub that verifies handshake tokens with authSecret.
func NewHub(authSecret string) *Hub {
	return &Hub{
		authSecret: authSecret,
		rooms:      make(map[string]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run processes joins and leaves until ctx is cancelled, then closes every
// remaining connection. Closing done releases handlers parked on the
// register/unregister channels once there is no receiver anymore.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.roomsMu.Lock()
			room := h.rooms[c.userID]
			if room == nil {
				room = make(map[*client]bool)
				h.rooms[c.userID] = room
			}
			room[c] = true
			size := len(room)
			h.roomsMu.Unlock()
			log.Printf("[Relay] client joined room %s (%d in room)", c.userID, size)
		case c := <-h.unregister:
			h.roomsMu.Lock()
			if room, ok := h.rooms[c.userID]; ok {
				if _, ok := room[c]; ok {
					delete(room, c)
					c.conn.Close()
					if len(room) == 0 {
						delete(h.rooms, c.userID)
					}
				}
			}
			h.roomsMu.Unlock()
			log.Printf("[Relay] client left room %s", c.userID)
		case <-ctx.Done():
			h.roomsMu.Lock()
			for _, room := range h.rooms {
				for c := range room {
					c.conn.Close()
				}
			}
			h.rooms = make(map[string]map[*client]bool)
			h.roomsMu.Unlock()
			return
		}
	}
}

// authMessage is the first frame a client must send after upgrading.
type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// HandleWS upgrades the request and runs the connection's read loop. The
// first message must be {"type":"authenticate","token":...}; the room joined
// comes from the verified token, never from a client-asserted id.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Relay] upgrade failed: %v", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(authDeadline))
	var msg authMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "authenticate" {
		conn.WriteJSON(map[string]string{"error": "authentication required"})
		conn.Close()
		return
	}
	userID, err := auth.Verify(msg.Token, h.authSecret)
	if err != nil {
		conn.WriteJSON(map[string]string{"error": "invalid token"})
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	c := &client{conn: conn, userID: userID}
	if err := c.send(map[string]string{"type": "authenticated", "user_id": userID}); err != nil {
		conn.Close()
		return
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	stopPing := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.ping(); err != nil {
					return
				}
			case <-stopPing:
				return
			}
		}
	}()

	// Read loop. Inbound frames beyond the handshake are ignored; the socket
	// is a downstream channel. Reading is still needed to notice disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(stopPing)
	select {
	case h.unregister <- c:
	case <-h.done:
		conn.Close()
	}
}

// Emit sends a named event to every connection in a user's room. Emitting to
// an empty room is a no-op: generation continues whether or not anyone is
// watching.
func (h *Hub) Emit(userID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Relay] drop %s for %s: marshal: %v", event, userID, err)
		return
	}
	ev := protocol.Event{
		Name:      event,
		Payload:   data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	for c := range h.rooms[userID] {
		if err := c.send(ev); err != nil {
			// Reader loop notices the broken socket and unregisters;
			// unregistering here would deadlock against the read lock.
			log.Printf("[Relay] write to room %s failed: %v", userID, err)
		}
	}
}

// RoomSize reports how many connections a user currently has.
func (h *Hub) RoomSize(userID string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[userID])
}

// Typed emit helpers. Call sites stay free of event-name strings.

func (h *Hub) EmitGenerationStatus(userID string, p protocol.GenerationStatus) {
	h.Emit(userID, protocol.EventGenerationStatus, p)
}

func (h *Hub) EmitGenerationProgress(userID string, p protocol.GenerationProgress) {
	h.Emit(userID, protocol.EventGenerationProgress, p)
}

func (h *Hub) EmitGenerationCompleted(userID string, p protocol.GenerationCompleted) {
	h.Emit(userID, protocol.EventGenerationCompleted, p)
}

func (h *Hub) EmitGenerationError(userID string, p protocol.GenerationError) {
	h.Emit(userID, protocol.EventGenerationError, p)
}

func (h *Hub) EmitThinkingStep(userID string, p protocol.ThinkingStep) {
	h.Emit(userID, protocol.EventThinkingStepUpdate, p)
}

func (h *Hub) EmitThinkingAction(userID string, p protocol.ThinkingAction) {
	h.Emit(userID, protocol.EventThinkingActionAdd, p)
}

func (h *Hub) EmitSlidePreview(userID string, p protocol.SlidePreview) {
	h.Emit(userID, protocol.EventSlidePreviewUpdate, p)
}

func (h *Hub) EmitTopicsGenerated(userID string, p protocol.TopicsGenerated) {
	h.Emit(userID, protocol.EventTopicsGenerated, p)
}

func (h *Hub) EmitToolAction(userID string, p protocol.ToolAction) {
	h.Emit(userID, protocol.EventToolAction, p)
}

func (h *Hub) EmitPresentationReady(userID string, p protocol.PresentationReady) {
	h.Emit(userID, protocol.EventPresentationReady, p)
}

func (h *Hub) EmitPresentationError(userID string, p protocol.PresentationError) {
	h.Emit(userID, protocol.EventPresentationError, p)
}
